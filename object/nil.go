package object

// NullType is the heap body of an allocated null.
type NullType struct{}

func (n *NullType) Type() Type {
	return NULL
}

func (n *NullType) Size() int {
	return 0
}

func (n *NullType) Trace(v Visitor) {}

func (n *NullType) Value() Value {
	return Null
}

func (n *NullType) Inspect() string {
	return "null"
}

func (n *NullType) String() string {
	return "null"
}
