package object

import (
	"fmt"
	"strings"
)

// String is the heap body of a string. It owns a private copy of its bytes.
type String struct {
	value []byte
}

func (s *String) Type() Type {
	return STRING
}

func (s *String) Size() int {
	return len(s.value)
}

func (s *String) Trace(v Visitor) {}

func (s *String) Value() string {
	return string(s.value)
}

// Bytes returns a copy of the string's bytes.
func (s *String) Bytes() []byte {
	return append([]byte(nil), s.value...)
}

func (s *String) Len() int {
	return len(s.value)
}

func (s *String) Inspect() string {
	value := string(s.value)
	if strings.Contains(value, `"`) && !strings.Contains(value, "'") {
		return fmt.Sprintf("'%s'", value)
	}
	return fmt.Sprintf("%q", value)
}

func (s *String) String() string {
	return string(s.value)
}

func NewStringBody(value string) *String {
	return &String{value: []byte(value)}
}
