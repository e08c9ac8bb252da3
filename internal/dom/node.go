// Package dom is a small mutable document tree used as the binding target.
// Documents are parsed with golang.org/x/net/html and serialized back to markup.
package dom

import (
	"strings"
)

// NodeType identifies the kind of a Node.
type NodeType int

const (
	DocumentNode NodeType = iota
	ElementNode
	TextNode
	CommentNode
)

// Attr is an element attribute.
type Attr struct {
	Key   string
	Value string
}

// Node is a document, element, text or comment node.
type Node struct {
	Type     NodeType
	Tag      string // element tag name, lower case
	Data     string // text or comment content
	Attrs    []Attr
	Parent   *Node
	Children []*Node

	disposers []func()
}

// NewDocument creates an empty document node.
func NewDocument() *Node {
	return &Node{Type: DocumentNode}
}

// NewElement creates an element with the given attributes (key, value pairs).
func NewElement(tag string, attrs ...string) *Node {
	n := &Node{Type: ElementNode, Tag: strings.ToLower(tag)}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.SetAttr(attrs[i], attrs[i+1])
	}
	return n
}

// NewText creates a text node.
func NewText(text string) *Node {
	return &Node{Type: TextNode, Data: text}
}

// NewComment creates a comment node.
func NewComment(text string) *Node {
	return &Node{Type: CommentNode, Data: text}
}

// Attr returns an attribute value.
func (n *Node) Attr(key string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// SetAttr sets or replaces an attribute.
func (n *Node) SetAttr(key, value string) {
	for i, a := range n.Attrs {
		if a.Key == key {
			n.Attrs[i].Value = value
			return
		}
	}
	n.Attrs = append(n.Attrs, Attr{Key: key, Value: value})
}

// RemoveAttr deletes an attribute if present.
func (n *Node) RemoveAttr(key string) {
	for i, a := range n.Attrs {
		if a.Key == key {
			n.Attrs = append(n.Attrs[:i:i], n.Attrs[i+1:]...)
			return
		}
	}
}

// ID returns the id attribute.
func (n *Node) ID() string {
	id, _ := n.Attr("id")
	return id
}

// AppendChild adds child as the last child of n, detaching it from any previous parent.
func (n *Node) AppendChild(child *Node) {
	if child.Parent != nil {
		child.Parent.detach(child)
	}
	child.Parent = n
	n.Children = append(n.Children, child)
}

func (n *Node) detach(child *Node) {
	for i, c := range n.Children {
		if c == child {
			n.Children = append(n.Children[:i:i], n.Children[i+1:]...)
			break
		}
	}
	child.Parent = nil
}

// AddDisposeCallback registers fn to run when n is cleaned or removed.
func (n *Node) AddDisposeCallback(fn func()) {
	n.disposers = append(n.disposers, fn)
}

// CleanNode runs the dispose callbacks of n and all of its descendants.
// Descendants are cleaned first. Each callback runs at most once.
func CleanNode(n *Node) {
	for _, c := range n.Children {
		CleanNode(c)
	}
	callbacks := n.disposers
	n.disposers = nil
	for _, fn := range callbacks {
		fn()
	}
}

// RemoveNode cleans n and detaches it from its parent.
func RemoveNode(n *Node) {
	CleanNode(n)
	if n.Parent != nil {
		n.Parent.detach(n)
	}
}

// SetChildren replaces the children of n. Replaced children are cleaned.
func SetChildren(n *Node, children []*Node) {
	old := n.Children
	n.Children = nil
	for _, c := range old {
		c.Parent = nil
		CleanNode(c)
	}
	for _, c := range children {
		n.AppendChild(c)
	}
}

// TakeChildren detaches and returns the children of n without cleaning them.
func TakeChildren(n *Node) []*Node {
	children := n.Children
	n.Children = nil
	for _, c := range children {
		c.Parent = nil
	}
	return children
}

// Walk visits n and its descendants depth first. Returning false skips the
// node's children.
func Walk(n *Node, visit func(*Node) bool) {
	if !visit(n) {
		return
	}
	// children may change during the visit
	children := append([]*Node(nil), n.Children...)
	for _, c := range children {
		Walk(c, visit)
	}
}

// GetElementByID finds the first element below root with the given id.
func GetElementByID(root *Node, id string) *Node {
	var found *Node
	Walk(root, func(n *Node) bool {
		if found != nil {
			return false
		}
		if n.Type == ElementNode && n.ID() == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// IsAnonymous reports whether n has element or comment children, meaning its
// content can serve as an inline template.
func IsAnonymous(n *Node) bool {
	for _, c := range n.Children {
		if c.Type == ElementNode || c.Type == CommentNode {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of n without parent or dispose callbacks.
func Clone(n *Node) *Node {
	cp := &Node{Type: n.Type, Tag: n.Tag, Data: n.Data}
	if len(n.Attrs) > 0 {
		cp.Attrs = append([]Attr(nil), n.Attrs...)
	}
	for _, c := range n.Children {
		cp.AppendChild(Clone(c))
	}
	return cp
}

// CloneAll deep-copies a list of nodes.
func CloneAll(nodes []*Node) []*Node {
	out := make([]*Node, len(nodes))
	for i, n := range nodes {
		out[i] = Clone(n)
	}
	return out
}

// TextContent returns the concatenated text of n and its descendants.
func TextContent(n *Node) string {
	var sb strings.Builder
	Walk(n, func(c *Node) bool {
		if c.Type == TextNode {
			sb.WriteString(c.Data)
		}
		return c.Type != CommentNode
	})
	return sb.String()
}

// InnerText returns the text content with runs of whitespace collapsed to a
// single space and the ends trimmed.
func InnerText(n *Node) string {
	return strings.Join(strings.Fields(TextContent(n)), " ")
}
