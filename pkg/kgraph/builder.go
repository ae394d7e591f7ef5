package kgraph

import (
	"encoding/json"
	"fmt"
	"io"

	"kcexplore/pkg/kconfig"
	"kcexplore/pkg/logx"
)

// CustomKG is the entity/relationship document accepted by the knowledge store.
type CustomKG struct {
	Entities      []Entity       `json:"entities"`
	Relationships []Relationship `json:"relationships"`
}

// Build walks the tree and wraps the result into a CustomKG.
// An empty sourceID falls back to the tree's own source.
func Build(tree *kconfig.Tree, sourceID string) *CustomKG {
	if sourceID == "" {
		sourceID = tree.Source
	}
	entities, rels := Walk(tree, sourceID)

	logger := logx.NewLogger("kgraph")
	logger.Info("built knowledge graph from %s: %d entities, %d relationships", sourceID, len(entities), len(rels))
	if dups := DuplicateNames(entities); len(dups) > 0 {
		logger.Warn("%d entity names occur more than once and will be merged by the store (first: %s)", len(dups), dups[0])
	}

	return &CustomKG{
		Entities:      entities,
		Relationships: rels,
	}
}

// Validate checks that every relationship endpoint names an entity.
func (kg *CustomKG) Validate() error {
	names := make(map[string]struct{}, len(kg.Entities))
	for i := range kg.Entities {
		if kg.Entities[i].Name == "" {
			return fmt.Errorf("entity %d has an empty name", i)
		}
		names[kg.Entities[i].Name] = struct{}{}
	}
	for i := range kg.Relationships {
		r := &kg.Relationships[i]
		if _, ok := names[r.SrcName]; !ok {
			return fmt.Errorf("relationship %d: unknown source %q", i, r.SrcName)
		}
		if _, ok := names[r.TgtName]; !ok {
			return fmt.Errorf("relationship %d: unknown target %q", i, r.TgtName)
		}
	}
	return nil
}

// WriteJSON encodes the document as indented JSON.
func (kg *CustomKG) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(kg); err != nil {
		return fmt.Errorf("failed to encode knowledge graph: %w", err)
	}
	return nil
}

// ReadJSON decodes a document previously written by WriteJSON.
func ReadJSON(r io.Reader) (*CustomKG, error) {
	var kg CustomKG
	if err := json.NewDecoder(r).Decode(&kg); err != nil {
		return nil, fmt.Errorf("failed to decode knowledge graph: %w", err)
	}
	return &kg, nil
}

// DuplicateNames returns entity names that occur more than once, in first-seen order.
func DuplicateNames(entities []Entity) []string {
	seen := make(map[string]int, len(entities))
	var dups []string
	for i := range entities {
		seen[entities[i].Name]++
		if seen[entities[i].Name] == 2 {
			dups = append(dups, entities[i].Name)
		}
	}
	return dups
}
