// Package knowledge stores the configuration knowledge graph and free-text
// statements, and retrieves the KNOWLEDGE context used in oracle prompts.
package knowledge

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/awalterschulze/gographviz"
)

const graphName = "KconfigKnowledge"

// Node is one stored entity.
type Node struct {
	ID          string // entity name
	Type        string // config|help_text
	Description string
	SourceID    string
}

// Edge is one stored relationship.
type Edge struct {
	FromID   string
	ToID     string
	Relation string
	Keywords string
	Weight   float64
}

// Graph is an in-memory copy of the knowledge graph.
type Graph struct {
	Nodes map[string]*Node
	Edges []*Edge
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes: make(map[string]*Node),
		Edges: make([]*Edge, 0),
	}
}

// NodeIDs returns every node id in sorted order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Filter creates a new graph containing only nodes matching the predicate.
// Edges are preserved only if both nodes are included.
func (g *Graph) Filter(predicate func(*Node) bool) *Graph {
	result := NewGraph()
	for id, node := range g.Nodes {
		if predicate(node) {
			result.Nodes[id] = node
		}
	}
	for _, edge := range g.Edges {
		if _, fromOK := result.Nodes[edge.FromID]; fromOK {
			if _, toOK := result.Nodes[edge.ToID]; toOK {
				result.Edges = append(result.Edges, edge)
			}
		}
	}
	return result
}

// Subgraph creates a new graph containing specified nodes and their neighbors up to depth.
// depth=0 means only specified nodes, depth=1 includes immediate neighbors, etc.
func (g *Graph) Subgraph(nodeIDs []string, depth int) *Graph {
	if depth < 0 {
		depth = 0
	}

	included := make(map[string]bool)
	for _, id := range nodeIDs {
		if _, exists := g.Nodes[id]; exists {
			included[id] = true
		}
	}

	for d := 0; d < depth; d++ {
		neighbors := make(map[string]bool)
		for _, edge := range g.Edges {
			if included[edge.FromID] {
				if _, exists := g.Nodes[edge.ToID]; exists {
					neighbors[edge.ToID] = true
				}
			}
			if included[edge.ToID] {
				if _, exists := g.Nodes[edge.FromID]; exists {
					neighbors[edge.FromID] = true
				}
			}
		}
		if len(neighbors) == 0 {
			break
		}
		for id := range neighbors {
			included[id] = true
		}
	}

	result := NewGraph()
	for id := range included {
		result.Nodes[id] = g.Nodes[id]
	}
	for _, edge := range g.Edges {
		if included[edge.FromID] && included[edge.ToID] {
			result.Edges = append(result.Edges, edge)
		}
	}
	return result
}

// ToDOT renders the graph in Graphviz DOT format. Help-text entities are
// drawn as notes, everything else as boxes.
func (g *Graph) ToDOT() (string, error) {
	gv := gographviz.NewGraph()
	if err := gv.SetName(graphName); err != nil {
		return "", fmt.Errorf("failed to name graph: %w", err)
	}
	if err := gv.SetDir(true); err != nil {
		return "", fmt.Errorf("failed to set graph direction: %w", err)
	}

	for _, id := range g.NodeIDs() {
		node := g.Nodes[id]
		shape := "box"
		if node.Type == "help_text" {
			shape = "note"
		}
		attrs := map[string]string{
			"shape": shape,
			"label": strconv.Quote(node.Type),
		}
		if node.Description != "" {
			attrs["tooltip"] = strconv.Quote(node.Description)
		}
		if err := gv.AddNode(graphName, strconv.Quote(id), attrs); err != nil {
			return "", fmt.Errorf("failed to add node %s: %w", id, err)
		}
	}

	for _, edge := range g.Edges {
		attrs := map[string]string{}
		if edge.Relation != "" {
			attrs["label"] = strconv.Quote(edge.Relation)
		}
		if err := gv.AddEdge(strconv.Quote(edge.FromID), strconv.Quote(edge.ToID), true, attrs); err != nil {
			return "", fmt.Errorf("failed to add edge %s->%s: %w", edge.FromID, edge.ToID, err)
		}
	}

	return gv.String(), nil
}

// ParseDOT reads a graph written by ToDOT.
func ParseDOT(content string) (*Graph, error) {
	if strings.TrimSpace(content) == "" {
		return NewGraph(), nil
	}

	graphAst, err := gographviz.ParseString(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DOT: %w", err)
	}
	gv := gographviz.NewGraph()
	if err := gographviz.Analyse(graphAst, gv); err != nil {
		return nil, fmt.Errorf("failed to analyze DOT: %w", err)
	}

	result := NewGraph()
	for name, node := range gv.Nodes.Lookup {
		id := unquote(name)
		result.Nodes[id] = &Node{
			ID:          id,
			Type:        unquote(node.Attrs[gographviz.Label]),
			Description: unquote(node.Attrs[gographviz.Tooltip]),
		}
	}
	for _, edge := range gv.Edges.Edges {
		result.Edges = append(result.Edges, &Edge{
			FromID:   unquote(edge.Src),
			ToID:     unquote(edge.Dst),
			Relation: unquote(edge.Attrs[gographviz.Label]),
		})
	}
	return result, nil
}

// unquote removes surrounding quotes from a DOT string if present.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		if u, err := strconv.Unquote(s); err == nil {
			return u
		}
		return s[1 : len(s)-1]
	}
	return s
}
