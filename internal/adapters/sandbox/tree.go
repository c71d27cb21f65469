package sandbox

import (
	"go.trai.ch/sidefx/internal/core/domain"
)

// Node is one node of a sandbox object graph. Attribute values are memoized per node.
type Node struct {
	Type     string
	Label    string
	Start    int
	End      int
	Children []*Node

	parent *Node
	// ntaName is set on nodes created by a nonterminal attribute of parent.
	ntaName string
	cache   map[string]*cacheEntry
}

// NewNode creates a node and adopts children.
func NewNode(typ, label string, start, end int, children ...*Node) *Node {
	n := &Node{Type: typ, Label: label, Start: start, End: end}
	for _, c := range children {
		n.Add(c)
	}
	return n
}

// Add appends c as the last child of n.
func (n *Node) Add(c *Node) {
	c.parent = n
	n.Children = append(n.Children, c)
}

// Parent returns the parent node, or nil for a root or detached node.
func (n *Node) Parent() *Node {
	return n.parent
}

// SimpleType returns the unqualified type name.
func (n *Node) SimpleType() string {
	return domain.SimpleTypeName(n.Type)
}

// Walk visits n and its descendants in pre-order. Nodes created by nonterminal attributes are
// not visited.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

func (n *Node) depth() int {
	d := 0
	for p := n.parent; p != nil; p = p.parent {
		d++
	}
	return d
}

func (n *Node) childIndex() int {
	if n.parent == nil {
		return -1
	}
	for i, c := range n.parent.Children {
		if c == n {
			return i
		}
	}
	return -1
}

func (n *Node) typeAtLocation() domain.TypeAtLocation {
	return domain.TypeAtLocation{
		Type:  n.Type,
		Label: n.Label,
		Start: n.Start,
		End:   n.End,
		Depth: n.depth(),
	}
}

// attachedTo reports whether root can be reached from n through parent links.
func (n *Node) attachedTo(root *Node) bool {
	for p := n; p != nil; p = p.parent {
		if p == root {
			return true
		}
	}
	return false
}

// locator builds the structural path from root to n. ok is false when n is not attached.
func (n *Node) locator(root *Node) (domain.Locator, bool) {
	if !n.attachedTo(root) {
		return domain.Locator{}, false
	}
	var steps []domain.LocatorStep
	for cur := n; cur != root; cur = cur.parent {
		if cur.ntaName != "" {
			prop := domain.NewProperty(cur.ntaName)
			steps = append(steps, domain.LocatorStep{Kind: domain.StepNTA, Prop: &prop})
			continue
		}
		steps = append(steps, domain.LocatorStep{Kind: domain.StepChild, Child: cur.childIndex()})
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return domain.Locator{Result: n.typeAtLocation(), Steps: steps}, true
}

func (n *Node) matches(t domain.TypeAtLocation) bool {
	return n.Type == t.Type && n.Start == t.Start && n.End == t.End
}

// findTAL searches the subtree of n for a node with the given type and span.
func (n *Node) findTAL(t domain.TypeAtLocation) *Node {
	var found *Node
	n.Walk(func(c *Node) bool {
		if found != nil {
			return false
		}
		if c.matches(t) {
			found = c
			return false
		}
		return true
	})
	return found
}
