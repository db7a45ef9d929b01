package result

import (
	"errors"
	"testing"

	"github.com/eternalApril/moonview/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	events []string
}

func (r *recorder) ChildrenAdded(child *Node) {
	r.events = append(r.events, "added "+child.Kind().String())
}

func (r *recorder) Updated(node *Node, value core.Value) {
	r.events = append(r.events, "updated "+node.Kind().String()+" "+value.String())
}

func TestTree_ChildrenOrder(t *testing.T) {
	root := NewRoot("load page")
	first := NewCommand(root, "SCAN 0")
	second := NewCommand(root, "TYPE a")
	AppendChild(second, core.MakeString("string"))
	AppendChild(first, core.MakeStringArray("0", "a"))

	kids := root.Children()
	require.Len(t, kids, 2)
	assert.Same(t, first, kids[0])
	assert.Same(t, second, kids[1])
	assert.Same(t, root, first.Parent())
	assert.Same(t, root, second.Children()[0].Root())
	assert.Nil(t, root.Parent())

	v, ok := second.FirstValue()
	require.True(t, ok)
	assert.Equal(t, "string", v.String())

	_, ok = NewCommand(root, "TTL a").FirstValue()
	assert.False(t, ok)
}

func TestAppendChild_NestedContainers(t *testing.T) {
	root := NewRoot("SCAN 0")
	reply := core.MakeArray([]core.Value{
		core.MakeString("17"),
		core.MakeStringArray("a", "b"),
		core.MakeHash([]core.Pair{{Field: []byte("f"), Value: []byte("v")}}),
	})

	node := AppendChild(root, reply)
	assert.Equal(t, KindArray, node.Kind())

	kids := node.Children()
	require.Len(t, kids, 2)
	assert.Equal(t, KindArray, kids[0].Kind())
	assert.Equal(t, "a b", kids[0].Value().String())
	assert.Equal(t, core.TypeHash, kids[1].Value().Type)

	scalar := AppendChild(root, core.MakeInteger(1))
	assert.Equal(t, KindScalar, scalar.Kind())
	assert.Empty(t, scalar.Children())
}

func TestTree_Observers(t *testing.T) {
	first, second := &recorder{}, &recorder{}
	root := NewRoot("GET a", first)
	root.Observe(second)

	node := AppendChild(root, core.MakeNull())
	node.SetValue(core.MakeString("x"))
	root.SetError(errors.New("boom"))

	want := []string{
		"added scalar",
		"updated scalar x",
		"updated root boom",
	}
	assert.Equal(t, want, first.events)
	assert.Equal(t, want, second.events)

	assert.EqualError(t, root.Err(), "boom")
	assert.True(t, root.Value().IsError())
}

func TestTree_ObserverMayReadTree(t *testing.T) {
	var seen int
	root := NewRoot("GET a", ObserverFuncs{OnChildrenAdded: func(child *Node) {
		seen = len(child.Parent().Children())
	}})

	AppendChild(root, core.MakeString("1"))
	assert.Equal(t, 1, seen)
}

func TestTree_Identity(t *testing.T) {
	a := NewRoot("a")
	b := NewRoot("b")
	child := NewCommand(a, "GET a")

	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, a.ID(), child.ID())
	assert.Equal(t, a.Started(), child.Started())
	assert.Equal(t, "GET a", child.Text())
}

func TestWalk_Stops(t *testing.T) {
	root := NewRoot("r")
	NewCommand(root, "a")
	NewCommand(root, "b")

	var visited []string
	Walk(root, func(n *Node, depth int) bool {
		visited = append(visited, n.Text())
		return n.Text() != "a"
	})
	assert.Equal(t, []string{"r", "a"}, visited)
}

func TestNode_String(t *testing.T) {
	root := NewRoot("load key a")
	get := NewCommand(root, "GET a")
	AppendChild(get, core.MakeString("1"))
	ttl := NewCommand(root, "TTL a")
	ttl.SetError(core.ErrTransport)
	AppendChild(NewCommand(root, "LRANGE l 0 -1"), core.MakeStringArray("x", "y"))

	want := "load key a\n" +
		"  GET a\n" +
		"    1\n" +
		"  TTL a -> (error) transport error\n" +
		"  LRANGE l 0 -1\n" +
		"    [x, y]\n"
	assert.Equal(t, want, root.String())
}
