package dict

// segment hands out fixed-size slots from the caller's buffer, front to
// back. It never owns the buffer.
type segment struct {
	data     []byte
	capacity int
	offset   int
}

func (s *segment) bind(data []byte, offset int) {
	s.data = data
	s.capacity = len(data)
	s.offset = offset
}

// grow widens the view up to capacity bytes of the underlying array.
func (s *segment) grow(capacity int) {
	s.data = s.data[:capacity]
	s.capacity = capacity
}

func (s *segment) CanWrite(end int) bool {
	return end <= s.capacity
}

func (s *segment) allocate(size int) (int, bool) {
	offset := s.offset
	if !s.CanWrite(offset + size) {
		return 0, false
	}
	s.offset = offset + size
	return offset, true
}

func (s *segment) remaining() int {
	return s.capacity - s.offset
}

func (s *segment) reset() {
	s.data = nil
	s.capacity = 0
	s.offset = 0
}
