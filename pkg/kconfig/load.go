package kconfig

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format selects the encoding of a tree dump.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Document is the on-disk shape of a tree dump produced by an external
// Kconfig parser.
type Document struct {
	Source string   `yaml:"source" json:"source"`
	Root   NodeSpec `yaml:"root" json:"root"`
}

// NodeSpec describes one node of a dump. A missing prompt key means the node
// has no prompt; range bounds are strings so hex symbols can use 0x notation.
type NodeSpec struct {
	Kind     string     `yaml:"kind" json:"kind"`
	Prompt   *string    `yaml:"prompt,omitempty" json:"prompt,omitempty"`
	Help     string     `yaml:"help,omitempty" json:"help,omitempty"`
	Name     string     `yaml:"name,omitempty" json:"name,omitempty"`
	Type     string     `yaml:"type,omitempty" json:"type,omitempty"`
	Default  string     `yaml:"default,omitempty" json:"default,omitempty"`
	Range    *RangeSpec `yaml:"range,omitempty" json:"range,omitempty"`
	Children []NodeSpec `yaml:"children,omitempty" json:"children,omitempty"`
}

// RangeSpec is the textual form of Range.
type RangeSpec struct {
	Min string `yaml:"min" json:"min"`
	Max string `yaml:"max" json:"max"`
}

// Load reads a tree dump from path. Files ending in .json are decoded as JSON,
// everything else as YAML.
func Load(path string) (*Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open tree dump: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	format := FormatYAML
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = FormatJSON
	}

	tree, err := Decode(f, format)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	if tree.Source == "" {
		tree.Source = filepath.Base(path)
	}
	return tree, nil
}

// Decode reads a dump in the given format and builds the tree.
func Decode(r io.Reader, format Format) (*Tree, error) {
	var doc Document
	switch format {
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to parse tree JSON: %w", err)
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to parse tree YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported tree format %q", format)
	}
	return Build(&doc)
}

// Build converts a decoded document into a Tree without recursion, so deep
// dumps cannot exhaust the goroutine stack.
func Build(doc *Document) (*Tree, error) {
	tree := NewTree(doc.Source)

	type frame struct {
		spec   *NodeSpec
		parent NodeID
		path   string
	}
	stack := []frame{{spec: &doc.Root, parent: NoNode, path: "root"}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		node, err := nodeFromSpec(top.spec)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", top.path, err)
		}
		id, err := tree.Add(top.parent, node)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", top.path, err)
		}

		// Reverse push keeps siblings in declaration order.
		for i := len(top.spec.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{
				spec:   &top.spec.Children[i],
				parent: id,
				path:   fmt.Sprintf("%s.children[%d]", top.path, i),
			})
		}
	}
	return tree, nil
}

func nodeFromSpec(spec *NodeSpec) (Node, error) {
	kind, err := ParseKind(spec.Kind)
	if err != nil {
		return Node{}, err
	}
	vt, err := ParseValueType(spec.Type)
	if err != nil {
		return Node{}, err
	}

	n := Node{
		Kind:    kind,
		Help:    spec.Help,
		Name:    spec.Name,
		Type:    vt,
		Default: spec.Default,
	}
	if spec.Prompt != nil {
		n.Prompt = *spec.Prompt
		n.HasPrompt = true
	}

	if spec.Range != nil {
		if vt != TypeInt && vt != TypeHex {
			return Node{}, fmt.Errorf("range given for %s symbol %q", vt, spec.Name)
		}
		lo, err := strconv.ParseInt(strings.TrimSpace(spec.Range.Min), 0, 64)
		if err != nil {
			return Node{}, fmt.Errorf("invalid range min %q: %w", spec.Range.Min, err)
		}
		hi, err := strconv.ParseInt(strings.TrimSpace(spec.Range.Max), 0, 64)
		if err != nil {
			return Node{}, fmt.Errorf("invalid range max %q: %w", spec.Range.Max, err)
		}
		if lo > hi {
			return Node{}, fmt.Errorf("range min %d exceeds max %d", lo, hi)
		}
		n.Range = &Range{Min: lo, Max: hi}
	}
	return n, nil
}
