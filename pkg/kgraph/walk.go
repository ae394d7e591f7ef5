// Package kgraph linearizes a configuration tree into knowledge-graph entities
// and relationships.
package kgraph

import (
	"fmt"

	"kcexplore/pkg/kconfig"
)

// Entity types.
const (
	EntityConfig   = "config"
	EntityHelpText = "help_text"
)

// Relationship descriptions.
const (
	RelParentOf  = "parent of"
	RelDescribes = "helper text describes this config"
)

// Entity is a named knowledge record.
type Entity struct {
	Name        string `json:"entity_name"`
	Type        string `json:"entity_type"`
	Description string `json:"description"`
	SourceID    string `json:"source_id"`
}

// Relationship is a directed edge between two entities of the same walk.
type Relationship struct {
	SrcName     string  `json:"src_id"`
	TgtName     string  `json:"tgt_id"`
	Description string  `json:"description"`
	Keywords    string  `json:"keywords"`
	Weight      float64 `json:"weight"`
	SourceID    string  `json:"source_id"`
}

// HelpEntityName is the entity name given to the help text of a node.
func HelpEntityName(name string) string {
	return fmt.Sprintf("HELPER TEXT(%s)", name)
}

// Walk traverses the tree from its root in depth-first pre-order and returns
// the entities and relationships it produces.
//
// Comment nodes produce nothing. A child with an absent or blank prompt is
// pruned together with its subtree; the root itself is never pruned. Names are not
// deduplicated.
func Walk(tree *kconfig.Tree, sourceID string) ([]Entity, []Relationship) {
	var (
		entities []Entity
		rels     []Relationship
	)
	root := tree.Root()
	if root == kconfig.NoNode {
		return entities, rels
	}

	stack := []kconfig.NodeID{root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := tree.Node(id)

		if node.Kind == kconfig.KindComment {
			continue
		}

		name := node.DisplayName()
		if name != "" {
			entities = append(entities, nodeEntity(node, name, sourceID))
			if node.Help != "" {
				help := HelpEntityName(name)
				entities = append(entities, Entity{
					Name:        help,
					Type:        EntityHelpText,
					Description: node.Help,
					SourceID:    sourceID,
				})
				rels = append(rels, Relationship{
					SrcName:     name,
					TgtName:     help,
					Description: RelDescribes,
					Keywords:    "describes",
					Weight:      1.0,
					SourceID:    sourceID,
				})
			}
		}

		children := tree.Children(id)
		visible := children[:0:0]
		for _, c := range children {
			child := tree.Node(c)
			if !child.Visible() {
				continue
			}
			visible = append(visible, c)
			if childName := child.DisplayName(); name != "" && childName != "" {
				rels = append(rels, Relationship{
					SrcName:     name,
					TgtName:     childName,
					Description: RelParentOf,
					Keywords:    RelParentOf,
					Weight:      1.0,
					SourceID:    sourceID,
				})
			}
		}

		for i := len(visible) - 1; i >= 0; i-- {
			stack = append(stack, visible[i])
		}
	}
	return entities, rels
}

func nodeEntity(node *kconfig.Node, name, sourceID string) Entity {
	e := Entity{
		Name:     name,
		Type:     EntityConfig,
		SourceID: sourceID,
	}
	if node.Kind != kconfig.KindMenu && node.Name != "" {
		e.Description = node.Prompt
	}
	return e
}
