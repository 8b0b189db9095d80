package settings

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/zhangxinngang/murmur"
	"gopkg.in/yaml.v3"
)

var (
	ErrSchema         = errors.New("invalid settings schema")
	ErrUnknownSetting = errors.New("unknown setting")
)

// Kind is how a setting is stored and read back.
type Kind int

const (
	KindBool Kind = iota + 1
	KindInt
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindString:
		return "string"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Setting is one configurable value. A checkbox group is a single Setting
// spanning Count consecutive keys starting at Key.
type Setting struct {
	Name  string
	Type  string
	Kind  Kind
	Key   uint32
	Count int

	DefaultBools  []bool
	DefaultInt    int32
	DefaultString string
}

// Keys lists every message key the setting occupies.
func (s Setting) Keys() []uint32 {
	keys := make([]uint32, s.Count)
	for i := range keys {
		keys[i] = s.Key + uint32(i)
	}
	return keys
}

type Schema struct {
	Settings []Setting
	byName   map[string]int
	byKey    map[uint32]keyRef
}

type keyRef struct {
	setting int
	element int
}

func (s *Schema) Lookup(name string) (Setting, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Setting{}, false
	}
	return s.Settings[i], true
}

// KeyFor returns the message key of a named setting, or its key derived
// from the name when the schema does not know it.
func (s *Schema) KeyFor(name string) uint32 {
	if setting, ok := s.Lookup(name); ok {
		return setting.Key
	}
	return KeyFromName(name)
}

// KeyFromName derives a message key for names missing from messageKeys.
func KeyFromName(name string) uint32 {
	return murmur.Murmur3([]byte(name))
}

type clayItem struct {
	Type         string     `yaml:"type"`
	MessageKey   string     `yaml:"messageKey"`
	DefaultValue yaml.Node  `yaml:"defaultValue"`
	Options      yaml.Node  `yaml:"options"`
	Items        []clayItem `yaml:"items"`
}

type clayOption struct {
	Label string `yaml:"label"`
	Value string `yaml:"value"`
}

type schemaDocument struct {
	MessageKeys map[string]uint32 `yaml:"messageKeys"`
	Config      []clayItem        `yaml:"config"`
}

// ParseSchema reads a Clay configuration. data is either the bare Clay item
// array, or a mapping with "config" holding that array and "messageKeys"
// mapping setting names to numeric keys. JSON input is accepted as is.
func ParseSchema(data []byte) (*Schema, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrSchema)
	}

	var doc schemaDocument
	node := root.Content[0]
	switch node.Kind {
	case yaml.SequenceNode:
		if err := node.Decode(&doc.Config); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSchema, err)
		}
	case yaml.MappingNode:
		if err := node.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSchema, err)
		}
	default:
		return nil, fmt.Errorf("%w: top level must be a list or a mapping", ErrSchema)
	}

	schema := &Schema{
		byName: make(map[string]int),
		byKey:  make(map[uint32]keyRef),
	}
	if err := schema.addItems(doc.Config, doc.MessageKeys); err != nil {
		return nil, err
	}
	return schema, nil
}

func (s *Schema) addItems(items []clayItem, messageKeys map[string]uint32) error {
	for _, item := range items {
		if item.Type == "section" {
			if err := s.addItems(item.Items, messageKeys); err != nil {
				return err
			}
			continue
		}
		if item.MessageKey == "" {
			// heading, text, submit and anything else without a value
			continue
		}

		setting, err := newSetting(item)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrSchema, item.MessageKey, err)
		}
		if key, ok := messageKeys[setting.Name]; ok {
			setting.Key = key
		} else {
			setting.Key = KeyFromName(setting.Name)
		}
		if err := s.add(setting); err != nil {
			return err
		}
	}
	return nil
}

func (s *Schema) add(setting Setting) error {
	if _, ok := s.byName[setting.Name]; ok {
		return fmt.Errorf("%w: %s declared twice", ErrSchema, setting.Name)
	}
	for element, key := range setting.Keys() {
		if other, ok := s.byKey[key]; ok {
			return fmt.Errorf("%w: %s and %s share key %d", ErrSchema, setting.Name, s.Settings[other.setting].Name, key)
		}
		s.byKey[key] = keyRef{setting: len(s.Settings), element: element}
	}
	s.byName[setting.Name] = len(s.Settings)
	s.Settings = append(s.Settings, setting)
	return nil
}

func newSetting(item clayItem) (Setting, error) {
	setting := Setting{Name: item.MessageKey, Type: item.Type, Count: 1}
	hasDefault := !item.DefaultValue.IsZero()

	switch item.Type {
	case "toggle":
		setting.Kind = KindBool
		setting.DefaultBools = []bool{false}
		if hasDefault {
			if err := item.DefaultValue.Decode(&setting.DefaultBools[0]); err != nil {
				return Setting{}, err
			}
		}

	case "color":
		setting.Kind = KindInt
		if hasDefault {
			color, err := parseColor(item.DefaultValue)
			if err != nil {
				return Setting{}, err
			}
			setting.DefaultInt = color
		}

	case "slider":
		setting.Kind = KindInt
		if hasDefault {
			var v float64
			if err := item.DefaultValue.Decode(&v); err != nil {
				return Setting{}, err
			}
			setting.DefaultInt = int32(v)
		}

	case "input":
		setting.Kind = KindString
		if hasDefault {
			setting.DefaultString = item.DefaultValue.Value
		}

	case "select", "radiogroup":
		options, err := decodeOptions(item.Options)
		if err != nil {
			return Setting{}, err
		}
		value := ""
		if len(options) > 0 {
			value = options[0].Value
		}
		if hasDefault {
			value = item.DefaultValue.Value
		}
		if allNumeric(options) {
			setting.Kind = KindInt
			if value != "" {
				n, err := strconv.ParseInt(value, 10, 32)
				if err != nil {
					return Setting{}, fmt.Errorf("default %q: %v", value, err)
				}
				setting.DefaultInt = int32(n)
			}
		} else {
			setting.Kind = KindString
			setting.DefaultString = value
		}

	case "checkboxgroup":
		options, err := decodeOptions(item.Options)
		if err != nil {
			return Setting{}, err
		}
		if len(options) == 0 {
			return Setting{}, errors.New("checkboxgroup without options")
		}
		setting.Kind = KindBool
		setting.Count = len(options)
		setting.DefaultBools = make([]bool, len(options))
		if hasDefault {
			var defaults []bool
			if err := item.DefaultValue.Decode(&defaults); err != nil {
				return Setting{}, err
			}
			copy(setting.DefaultBools, defaults)
		}

	default:
		return Setting{}, fmt.Errorf("unsupported item type %q", item.Type)
	}
	return setting, nil
}

// decodeOptions accepts both {label, value} objects and bare strings.
func decodeOptions(node yaml.Node) ([]clayOption, error) {
	if node.IsZero() {
		return nil, nil
	}
	if node.Kind != yaml.SequenceNode {
		return nil, errors.New("options must be a list")
	}
	options := make([]clayOption, 0, len(node.Content))
	for _, child := range node.Content {
		if child.Kind == yaml.ScalarNode {
			options = append(options, clayOption{Label: child.Value, Value: child.Value})
			continue
		}
		var option clayOption
		if err := child.Decode(&option); err != nil {
			return nil, err
		}
		options = append(options, option)
	}
	return options, nil
}

func allNumeric(options []clayOption) bool {
	if len(options) == 0 {
		return false
	}
	for _, option := range options {
		if _, err := strconv.ParseInt(option.Value, 10, 32); err != nil {
			return false
		}
	}
	return true
}

// parseColor accepts strings such as "FF0000", "#FF0000", "0xFF0000" or
// "255". YAML and JSON integers are taken as written.
func parseColor(node yaml.Node) (int32, error) {
	if node.ShortTag() == "!!int" {
		var n int32
		if err := node.Decode(&n); err != nil {
			return 0, fmt.Errorf("color %s: %v", node.Value, err)
		}
		return n, nil
	}

	value := node.Value
	lower := strings.ToLower(value)
	hex, prefixed := strings.CutPrefix(lower, "#")
	if !prefixed {
		hex, prefixed = strings.CutPrefix(lower, "0x")
	}
	if prefixed || len(hex) == 6 {
		n, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return 0, fmt.Errorf("color %q: %v", value, err)
		}
		return int32(n), nil
	}
	n, err := strconv.ParseInt(value, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("color %q: %v", value, err)
	}
	return int32(n), nil
}
