package object

import "strconv"

// Number is the heap body of an allocated double-precision number.
type Number struct {
	value float64
}

func (n *Number) Type() Type {
	return NUMBER
}

func (n *Number) Size() int {
	return 8
}

func (n *Number) Trace(v Visitor) {}

func (n *Number) Value() Value {
	return NewNumber(n.value)
}

func (n *Number) Float() float64 {
	return n.value
}

func (n *Number) Set(value float64) {
	n.value = value
}

func (n *Number) Inspect() string {
	return strconv.FormatFloat(n.value, 'g', -1, 64)
}

func (n *Number) String() string {
	return n.Inspect()
}

func NewNumberBody(value float64) *Number {
	return &Number{value: value}
}
