package dict

import "errors"

var (
	ErrOverflow           = errors.New("value does not fit in a record slot")
	ErrInvalidText        = errors.New("text contains a NUL byte")
	ErrMalformedInput     = errors.New("buffer is not a valid sequence of records")
	ErrCapacityInvalid    = errors.New("destination capacity is outside the backing buffer")
	ErrRecordSizeMismatch = errors.New("dictionaries use different record sizes")
	ErrRecordSize         = errors.New("record size out of range")
)
