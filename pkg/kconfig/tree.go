// Package kconfig holds the in-memory configuration tree explored by the pipeline.
//
// The tree is an arena: nodes live in a single slice and refer to each other by
// NodeID. It is built once by the loader and treated as read-only afterwards.
package kconfig

import (
	"fmt"
	"strings"
)

// NodeID indexes a node inside a Tree.
type NodeID int

// NoNode marks an absent link.
const NoNode NodeID = -1

// Kind is the structural variant of a node.
type Kind int

const (
	// KindMenu is a container shown as a directory in menuconfig.
	KindMenu Kind = iota
	// KindComment is a display-only line. It never produces knowledge.
	KindComment
	// KindSymbol is a configurable option.
	KindSymbol
	// KindChoice is a group of mutually exclusive symbols.
	KindChoice
)

// String returns the dump spelling of the kind.
func (k Kind) String() string {
	switch k {
	case KindMenu:
		return "menu"
	case KindComment:
		return "comment"
	case KindSymbol:
		return "symbol"
	case KindChoice:
		return "choice"
	default:
		return "invalid"
	}
}

// ParseKind accepts the kind names used by tree dumps.
// "config" and "menuconfig" are accepted as symbol aliases.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "menu":
		return KindMenu, nil
	case "comment":
		return KindComment, nil
	case "symbol", "config", "menuconfig":
		return KindSymbol, nil
	case "choice":
		return KindChoice, nil
	default:
		return 0, fmt.Errorf("unknown node kind %q", s)
	}
}

// ValueType is the value domain of a symbol.
type ValueType int

const (
	TypeUnknown ValueType = iota
	TypeBool
	TypeTristate
	TypeInt
	TypeHex
	TypeString
)

// String returns the Kconfig spelling of the type.
func (t ValueType) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeTristate:
		return "tristate"
	case TypeInt:
		return "int"
	case TypeHex:
		return "hex"
	case TypeString:
		return "string"
	default:
		return "unknown"
	}
}

// ParseValueType accepts the Kconfig type names. An empty string is TypeUnknown.
func ParseValueType(s string) (ValueType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return TypeUnknown, nil
	case "bool", "boolean":
		return TypeBool, nil
	case "tristate":
		return TypeTristate, nil
	case "int":
		return TypeInt, nil
	case "hex":
		return TypeHex, nil
	case "string":
		return TypeString, nil
	default:
		return TypeUnknown, fmt.Errorf("unknown value type %q", s)
	}
}

// Range bounds an int or hex symbol, inclusive on both ends.
type Range struct {
	Min int64
	Max int64
}

// Contains reports whether v lies inside the range.
func (r Range) Contains(v int64) bool {
	return v >= r.Min && v <= r.Max
}

// Node is one entry of the configuration tree.
//
// Help is always present and may be empty. HasPrompt distinguishes an absent
// prompt from an empty one; see Visible.
type Node struct {
	ID        NodeID
	Kind      Kind
	Prompt    string
	HasPrompt bool
	Help      string
	Name      string
	Type      ValueType
	Default   string
	Range     *Range

	Parent      NodeID
	FirstChild  NodeID
	NextSibling NodeID
}

// DisplayName is the name a node contributes to the knowledge graph.
// Menus are named after their prompt. Symbols and choices prefer their machine
// name and fall back to the prompt. Comments have no name.
func (n *Node) DisplayName() string {
	switch n.Kind {
	case KindComment:
		return ""
	case KindMenu:
		return n.Prompt
	default:
		if n.Name != "" {
			return n.Name
		}
		return n.Prompt
	}
}

// Visible reports whether the user can see the node: it has a prompt and the
// prompt is not blank. Invisible nodes are pruned with their subtree.
func (n *Node) Visible() bool {
	return n.HasPrompt && strings.TrimSpace(n.Prompt) != ""
}

// IsBoolean reports whether the symbol takes y/n (or y/m/n) values.
func (n *Node) IsBoolean() bool {
	return n.Kind == KindSymbol && (n.Type == TypeBool || n.Type == TypeTristate)
}

// IsNumeric reports whether the symbol takes an int or hex value.
func (n *Node) IsNumeric() bool {
	return n.Kind == KindSymbol && (n.Type == TypeInt || n.Type == TypeHex)
}

// Tree is an arena of nodes with a single root.
type Tree struct {
	Source string

	nodes     []Node
	lastChild []NodeID
	root      NodeID
}

// NewTree returns an empty tree. source identifies where the tree came from and
// is stamped on every knowledge record derived from it.
func NewTree(source string) *Tree {
	return &Tree{
		Source: source,
		root:   NoNode,
	}
}

// Add appends n as the last child of parent and returns its id.
// Passing NoNode as parent installs the root; a tree has exactly one root.
func (t *Tree) Add(parent NodeID, n Node) (NodeID, error) {
	id := NodeID(len(t.nodes))
	n.ID = id
	n.Parent = parent
	n.FirstChild = NoNode
	n.NextSibling = NoNode

	if parent == NoNode {
		if t.root != NoNode {
			return NoNode, fmt.Errorf("tree already has a root")
		}
		t.root = id
	} else if !t.valid(parent) {
		return NoNode, fmt.Errorf("parent %d does not exist", parent)
	}

	t.nodes = append(t.nodes, n)
	t.lastChild = append(t.lastChild, NoNode)

	if parent != NoNode {
		if last := t.lastChild[parent]; last == NoNode {
			t.nodes[parent].FirstChild = id
		} else {
			t.nodes[last].NextSibling = id
		}
		t.lastChild[parent] = id
	}
	return id, nil
}

// Root returns the root id, or NoNode for an empty tree.
func (t *Tree) Root() NodeID {
	return t.root
}

// Node returns the node stored under id. Callers must not modify it.
func (t *Tree) Node(id NodeID) *Node {
	if !t.valid(id) {
		return nil
	}
	return &t.nodes[id]
}

// Children returns the direct children of id in declaration order.
func (t *Tree) Children(id NodeID) []NodeID {
	if !t.valid(id) {
		return nil
	}
	var out []NodeID
	for c := t.nodes[id].FirstChild; c != NoNode; c = t.nodes[c].NextSibling {
		out = append(out, c)
	}
	return out
}

// Len returns the number of nodes in the arena.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Path returns the prompts from the root down to id, skipping invisible nodes.
func (t *Tree) Path(id NodeID) []string {
	var rev []string
	for cur := id; t.valid(cur); cur = t.nodes[cur].Parent {
		if n := &t.nodes[cur]; n.Visible() {
			rev = append(rev, n.Prompt)
		}
	}
	out := make([]string, len(rev))
	for i := range rev {
		out[i] = rev[len(rev)-1-i]
	}
	return out
}

// FindSymbol returns the first symbol with the given machine name.
func (t *Tree) FindSymbol(name string) (NodeID, bool) {
	for i := range t.nodes {
		if t.nodes[i].Kind == KindSymbol && t.nodes[i].Name == name {
			return NodeID(i), true
		}
	}
	return NoNode, false
}

func (t *Tree) valid(id NodeID) bool {
	return id >= 0 && int(id) < len(t.nodes)
}
