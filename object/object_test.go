package object

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingVisitor struct {
	values []Value
	refs   []ID
}

func (r *recordingVisitor) VisitValue(v Value) { r.values = append(r.values, v) }
func (r *recordingVisitor) VisitRef(id ID)     { r.refs = append(r.refs, id) }

type socket struct {
	peer ID
}

func (s *socket) Size() int       { return 24 }
func (s *socket) Trace(v Visitor) { v.VisitRef(s.peer) }

func TestTypeOf(t *testing.T) {
	assert.Equal(t, NULL, TypeOf(&NullType{}))
	assert.Equal(t, NUMBER, TypeOf(NewNumberBody(1)))
	assert.Equal(t, STRING, TypeOf(NewStringBody("x")))
	assert.Equal(t, LIST, TypeOf(NewListBody(nil)))
	assert.Equal(t, MAP, TypeOf(NewMapBody(nil)))
	assert.Equal(t, HOST, TypeOf(&socket{}))
}

func TestStringOwnsBytes(t *testing.T) {
	s := NewStringBody("hi")
	assert.Equal(t, 2, s.Size())
	b := s.Bytes()
	b[0] = 'x'
	assert.Equal(t, "hi", s.Value())
	assert.Equal(t, `"hi"`, s.Inspect())
	assert.Equal(t, `'say "hi"'`, NewStringBody(`say "hi"`).Inspect())
}

func TestListTraceVisitsEveryItem(t *testing.T) {
	items := []Value{NewNumber(1), NewRef(STRING, 3), Null, NewRef(MAP, 9)}
	ls := NewListBody(items)
	assert.Equal(t, 4*ValueSize, ls.Size())

	var rv recordingVisitor
	ls.Trace(&rv)
	assert.Equal(t, items, rv.values)
}

func TestListMutation(t *testing.T) {
	ls := NewListBody([]Value{NewNumber(1)})
	ls.Append(NewNumber(2))
	assert.Equal(t, 2, ls.Len())
	assert.NoError(t, ls.Set(0, True))
	assert.Error(t, ls.Set(5, True))

	v, ok := ls.Get(0)
	assert.True(t, ok)
	assert.Equal(t, True, v)
	_, ok = ls.Get(-1)
	assert.False(t, ok)

	assert.Equal(t, 1, ls.Index(NewNumber(2)))
	assert.Equal(t, -1, ls.Index(Null))

	last, ok := ls.Pop()
	assert.True(t, ok)
	assert.Equal(t, NewNumber(2), last)
	ls.Truncate(0)
	assert.Equal(t, 0, ls.Len())
	_, ok = ls.Pop()
	assert.False(t, ok)
	assert.Equal(t, "[]", ls.Inspect())
}

func TestListCopiesInput(t *testing.T) {
	items := []Value{NewNumber(1)}
	ls := NewListBody(items)
	items[0] = Null
	v, _ := ls.Get(0)
	assert.Equal(t, NewNumber(1), v)
}

func TestMapBody(t *testing.T) {
	m := NewMapBody(map[string]Value{"k": NewRef(LIST, 2)})
	assert.Equal(t, 1+ValueSize, m.Size())
	m.Set("b", NewNumber(3))
	assert.Equal(t, []string{"b", "k"}, m.Keys())
	assert.Equal(t, `{"b": 3, "k": <list#2>}`, m.Inspect())

	var rv recordingVisitor
	m.Trace(&rv)
	assert.ElementsMatch(t, []Value{NewRef(LIST, 2), NewNumber(3)}, rv.values)

	assert.True(t, m.Delete("b"))
	assert.False(t, m.Delete("b"))
	_, ok := m.Get("b")
	assert.False(t, ok)
}

func TestHostTrace(t *testing.T) {
	var rv recordingVisitor
	(&socket{peer: 5}).Trace(&rv)
	assert.Equal(t, []ID{5}, rv.refs)
}

func TestTraceValues(t *testing.T) {
	var rv recordingVisitor
	TraceValues(&rv, Null, NewNumber(1))
	assert.Len(t, rv.values, 2)
}
