package result

import (
	"strings"
	"sync"
	"time"

	"github.com/eternalApril/moonview/internal/core"
	"github.com/google/uuid"
)

// Kind is the role of a node in the result tree
type Kind int

const (
	KindRoot Kind = iota + 1
	KindCommand
	KindArray
	KindScalar
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindCommand:
		return "command"
	case KindArray:
		return "array"
	case KindScalar:
		return "scalar"
	}
	return "unknown"
}

// Observer receives the mutations of a tree.
//
// Callbacks are invoked synchronously by the goroutine that mutates the tree,
// in the order the mutations happen, without buffering. They run outside the
// tree lock, so an observer may read the tree, but it must not block: the
// executing command waits for it
type Observer interface {
	// ChildrenAdded is called after child was appended to its parent
	ChildrenAdded(child *Node)
	// Updated is called after the value of node was replaced
	Updated(node *Node, value core.Value)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped
type ObserverFuncs struct {
	OnChildrenAdded func(child *Node)
	OnUpdated       func(node *Node, value core.Value)
}

func (o ObserverFuncs) ChildrenAdded(child *Node) {
	if o.OnChildrenAdded != nil {
		o.OnChildrenAdded(child)
	}
}

func (o ObserverFuncs) Updated(node *Node, value core.Value) {
	if o.OnUpdated != nil {
		o.OnUpdated(node, value)
	}
}

// tree is the state shared by all nodes of one result tree
type tree struct {
	mu        sync.RWMutex
	observers []Observer
}

// Node is an element of a result tree. A node has a single parent which owns it
type Node struct {
	tree     *tree
	parent   *Node
	kind     Kind
	text     string // command text for Root and Command nodes
	value    core.Value
	err      error
	children []*Node

	id      uuid.UUID // Root only
	started time.Time // Root only
}

// NewRoot creates the root of a new tree for the top level command text
func NewRoot(text string, observers ...Observer) *Node {
	t := &tree{observers: append([]Observer(nil), observers...)}
	return &Node{
		tree:    t,
		kind:    KindRoot,
		text:    text,
		id:      uuid.New(),
		started: time.Now(),
	}
}

// Observe registers o on the tree of n
func (n *Node) Observe(o Observer) {
	n.tree.mu.Lock()
	n.tree.observers = append(n.tree.observers, o)
	n.tree.mu.Unlock()
}

// NewCommand appends a Command node for text under parent
func NewCommand(parent *Node, text string) *Node {
	child := &Node{tree: parent.tree, parent: parent, kind: KindCommand, text: text}
	parent.appendNode(child)
	return child
}

// AppendChild appends a node holding value under node and returns it.
// Container values become Array nodes; every nested container element gets
// its own child Array node, in element order
func AppendChild(node *Node, value core.Value) *Node {
	if !value.IsContainer() {
		child := &Node{tree: node.tree, parent: node, kind: KindScalar, value: value}
		node.appendNode(child)
		return child
	}

	child := &Node{tree: node.tree, parent: node, kind: KindArray, value: value}
	node.appendNode(child)
	for _, el := range value.Array {
		if el.IsContainer() {
			AppendChild(child, el)
		}
	}
	return child
}

// Children returns the ordered children of node
func Children(node *Node) []*Node {
	return node.Children()
}

func (n *Node) appendNode(child *Node) {
	n.tree.mu.Lock()
	n.children = append(n.children, child)
	observers := n.tree.observers
	n.tree.mu.Unlock()

	for _, o := range observers {
		o.ChildrenAdded(child)
	}
}

// SetValue replaces the value of the node. Identity is unchanged
func (n *Node) SetValue(value core.Value) {
	n.tree.mu.Lock()
	n.value = value
	observers := n.tree.observers
	n.tree.mu.Unlock()

	for _, o := range observers {
		o.Updated(n, value)
	}
}

// SetError records err on the node and publishes it as an error value
func (n *Node) SetError(err error) {
	value := core.MakeError(err.Error())

	n.tree.mu.Lock()
	n.err = err
	n.value = value
	observers := n.tree.observers
	n.tree.mu.Unlock()

	for _, o := range observers {
		o.Updated(n, value)
	}
}

// Children returns a copy of the ordered children
func (n *Node) Children() []*Node {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// Kind returns the role of the node
func (n *Node) Kind() Kind {
	return n.kind
}

// Parent returns the owner of the node, nil for a root
func (n *Node) Parent() *Node {
	return n.parent
}

// Root returns the root of the tree the node belongs to
func (n *Node) Root() *Node {
	for n.parent != nil {
		n = n.parent
	}
	return n
}

// Text returns the command text of Root and Command nodes
func (n *Node) Text() string {
	return n.text
}

// Value returns the current value of the node
func (n *Node) Value() core.Value {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	return n.value
}

// Err returns the error recorded with SetError
func (n *Node) Err() error {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	return n.err
}

// ID identifies the tree of the node
func (n *Node) ID() uuid.UUID {
	return n.Root().id
}

// Started returns when the tree was created
func (n *Node) Started() time.Time {
	return n.Root().started
}

// FirstValue returns the value of the first child, the reply of a command node
func (n *Node) FirstValue() (core.Value, bool) {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	if len(n.children) == 0 {
		return core.Value{}, false
	}
	return n.children[0].value, true
}

// Walk visits node and its descendants depth first in insertion order.
// Returning false from fn stops the walk
func Walk(node *Node, fn func(n *Node, depth int) bool) {
	walk(node, 0, fn)
}

func walk(node *Node, depth int, fn func(n *Node, depth int) bool) bool {
	if !fn(node, depth) {
		return false
	}
	for _, child := range node.Children() {
		if !walk(child, depth+1, fn) {
			return false
		}
	}
	return true
}

// String renders the tree as an indented transcript
func (n *Node) String() string {
	var sb strings.Builder
	Walk(n, func(node *Node, depth int) bool {
		sb.WriteString(strings.Repeat("  ", depth))
		switch node.kind {
		case KindRoot, KindCommand:
			sb.WriteString(node.text)
			if err := node.Err(); err != nil {
				sb.WriteString(" -> (error) ")
				sb.WriteString(err.Error())
			}
		case KindArray:
			sb.WriteString("[")
			sb.WriteString(node.Value().Render(", "))
			sb.WriteString("]")
		default:
			v := node.Value()
			if v.IsError() {
				sb.WriteString("(error) ")
			}
			sb.WriteString(v.String())
		}
		sb.WriteString("\n")
		return true
	})
	return sb.String()
}
