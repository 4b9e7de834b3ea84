package object

// Bool is the heap body of an allocated boolean.
type Bool struct {
	value bool
}

func (b *Bool) Type() Type {
	return BOOL
}

func (b *Bool) Size() int {
	return 1
}

func (b *Bool) Trace(v Visitor) {}

func (b *Bool) Value() Value {
	return NewBool(b.value)
}

func (b *Bool) Bool() bool {
	return b.value
}

func (b *Bool) Inspect() string {
	return b.Value().Inspect()
}

func (b *Bool) String() string {
	return b.Inspect()
}

func NewBoolBody(value bool) *Bool {
	return &Bool{value: value}
}
