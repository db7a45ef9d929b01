package driver

import "strings"

// Namespace is a node of the keyspace tree built from the key name prefixes of a page
type Namespace struct {
	Name     string // prefix part, empty for the root
	Children []*Namespace
	Keys     []int // indexes in Page.Keys of the keys directly under the namespace

	index map[string]*Namespace
}

// Size returns the number of keys in the namespace and all its children
func (n *Namespace) Size() int {
	size := len(n.Keys)
	for _, c := range n.Children {
		size += c.Size()
	}
	return size
}

func (n *Namespace) child(name string) *Namespace {
	if c, ok := n.index[name]; ok {
		return c
	}
	if n.index == nil {
		n.index = make(map[string]*Namespace)
	}
	c := &Namespace{Name: name}
	n.index[name] = c
	n.Children = append(n.Children, c)
	return c
}

// Namespaces groups the keys of the page by the prefixes separated by sep:
// "user:1:name" lands in namespace "user", child "1". Namespaces and keys keep
// page order. An empty sep puts every key under the root
func (p *Page) Namespaces(sep string) *Namespace {
	root := &Namespace{}
	for i, kv := range p.Keys {
		node := root
		if sep != "" {
			parts := strings.Split(kv.Key.Key().String(), sep)
			for _, part := range parts[:len(parts)-1] {
				node = node.child(part)
			}
		}
		node.Keys = append(node.Keys, i)
	}
	return root
}
