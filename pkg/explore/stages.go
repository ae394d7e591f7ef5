package explore

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"kcexplore/pkg/kconfig"
	"kcexplore/pkg/oracle"
	"kcexplore/pkg/tokens"
)

// normalizeName folds the spellings an oracle uses for a symbol.
func normalizeName(s string) string {
	s = strings.Trim(strings.TrimSpace(s), "[](){}<>'\"`:,.")
	s = strings.ToUpper(s)
	return strings.TrimPrefix(s, "CONFIG_")
}

func (e *Explorer) batches(lines []string) [][]string {
	return e.opts.Counter.Batch(lines, e.opts.BatchSize, e.opts.MaxBatchTokens)
}

func (e *Explorer) runBooleans(ctx context.Context, ids []kconfig.NodeID) error {
	if len(ids) == 0 {
		return nil
	}
	names := make([]string, len(ids))
	byName := make(map[string]kconfig.NodeID, len(ids))
	for i, id := range ids {
		names[i] = e.tree.Node(id).Name
		byName[normalizeName(names[i])] = id
	}
	batches := e.batches(names)

	return e.forEach(ctx, len(batches), func(ctx context.Context, s *oracle.Session, i int) error {
		batch := batches[i]
		decision, err := s.SelectBooleanOptions(ctx, e.retrieve(ctx, batch), tokens.Join(batch))
		if err != nil {
			return err
		}
		for name, verdict := range decision {
			id, ok := byName[normalizeName(name)]
			if !ok {
				e.logger.Warn("boolean verdict for unlisted option %q ignored", name)
				continue
			}
			switch verdict {
			case oracle.VerdictFavor:
				e.recommend(id, "y", oracle.StageBoolean)
			case oracle.VerdictDisfavor:
				e.recommend(id, "n", oracle.StageBoolean)
			}
		}
		return nil
	})
}

func (e *Explorer) runChoices(ctx context.Context, groups []choiceGroup) error {
	return e.forEach(ctx, len(groups), func(ctx context.Context, s *oracle.Session, i int) error {
		group := groups[i]
		names := make([]string, len(group.members))
		labels := []string{e.tree.Node(group.id).Prompt}
		for j, id := range group.members {
			names[j] = e.tree.Node(id).Name
			labels = append(labels, names[j])
		}

		choice, err := s.Disambiguate(ctx, e.retrieve(ctx, labels), tokens.Join(names))
		if err != nil {
			return err
		}
		want := normalizeName(choice)
		for _, id := range group.members {
			if normalizeName(e.tree.Node(id).Name) == want {
				e.recommend(id, "y", oracle.StageChoice)
				return nil
			}
		}
		e.logger.Warn("choice %q: reply %q names no member", e.tree.Node(group.id).Prompt, choice)
		return nil
	})
}

// valueLine renders "<prompt> (<NAME>) {<min>..<max>} (<default>)". Hex
// numbers are shown in decimal so the reply grammar can carry them. Without a
// usable default the lower bound, or else 0, is shown.
func (e *Explorer) valueLine(n *kconfig.Node) string {
	var sb strings.Builder
	sb.WriteString(n.Prompt)
	sb.WriteString(" (")
	sb.WriteString(n.Name)
	sb.WriteString(")")
	if n.Range != nil {
		fmt.Fprintf(&sb, " {%d..%d}", n.Range.Min, n.Range.Max)
	}
	def := "0"
	if v, ok := parseNumber(n.Default); ok {
		def = strconv.FormatUint(v, 10)
	} else if v, ok := parseInteger(n.Default); ok {
		def = strconv.FormatInt(v, 10)
	} else if n.Range != nil {
		def = strconv.FormatInt(n.Range.Min, 10)
	}
	fmt.Fprintf(&sb, " (%s)", def)
	return sb.String()
}

func (e *Explorer) valueKnowledge(ctx context.Context, ids []kconfig.NodeID) string {
	var sb strings.Builder
	labels := make([]string, 0, len(ids))
	for _, id := range ids {
		n := e.tree.Node(id)
		labels = append(labels, n.Name)
		if help := strings.TrimSpace(n.Help); help != "" {
			fmt.Fprintf(&sb, "%s: %s\n", n.Name, strings.Join(strings.Fields(help), " "))
		}
	}
	if extra := e.retrieve(ctx, labels); extra != "" {
		sb.WriteString(extra)
	}
	return sb.String()
}

func (e *Explorer) runValues(ctx context.Context, ids []kconfig.NodeID) error {
	if len(ids) == 0 {
		return nil
	}
	lines := make([]string, len(ids))
	for i, id := range ids {
		lines[i] = e.valueLine(e.tree.Node(id))
	}
	batches := e.batches(lines)
	// batches are consecutive runs of lines
	starts := make([]int, len(batches))
	for i, off := 0, 0; i < len(batches); i++ {
		starts[i] = off
		off += len(batches[i])
	}

	return e.forEach(ctx, len(batches), func(ctx context.Context, s *oracle.Session, i int) error {
		batchIDs := ids[starts[i] : starts[i]+len(batches[i])]
		pairs, err := s.RecommendValues(ctx, e.valueKnowledge(ctx, batchIDs), tokens.Join(batches[i]))
		if err != nil {
			return err
		}
		for _, p := range pairs {
			id, ok := e.matchValueLabel(batchIDs, p.Label)
			if !ok {
				e.logger.Warn("value for unlisted option %q ignored", p.Label)
				continue
			}
			n := e.tree.Node(id)
			value, err := ValidateValue(n, p.Value)
			if err != nil {
				e.logger.Warn("%s: %v", n.Name, err)
				continue
			}
			if value == "" {
				continue
			}
			e.recommend(id, value, oracle.StageValue)
		}
		return nil
	})
}

// matchValueLabel finds the symbol a reply label refers to: by "(NAME)" in the
// label first, then by prompt prefix, then by the bare symbol name or prompt
// such as "[FRAME_WARN]".
func (e *Explorer) matchValueLabel(ids []kconfig.NodeID, label string) (kconfig.NodeID, bool) {
	upper := strings.ToUpper(label)
	for _, id := range ids {
		if strings.Contains(upper, "("+strings.ToUpper(e.tree.Node(id).Name)+")") {
			return id, true
		}
	}
	trimmed := strings.TrimLeft(strings.TrimSpace(label), "['\"")
	for _, id := range ids {
		prompt := e.tree.Node(id).Prompt
		if prompt != "" && strings.HasPrefix(strings.ToLower(trimmed), strings.ToLower(prompt)) {
			return id, true
		}
	}
	bare := normalizeName(label)
	for _, id := range ids {
		n := e.tree.Node(id)
		if bare != "" && (bare == normalizeName(n.Name) || bare == normalizeName(n.Prompt)) {
			return id, true
		}
	}
	return kconfig.NoNode, false
}

// ValidateValue checks a recommended literal against the symbol's domain and
// returns its .config spelling. An arrow placeholder yields "" with no error.
func ValidateValue(n *kconfig.Node, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	switch raw {
	case "-->":
		return "", nil
	case "on", "off", "M":
		if !n.IsBoolean() {
			return "", fmt.Errorf("%q is not a value for a %s option", raw, n.Type)
		}
		if raw == "M" && n.Type != kconfig.TypeTristate {
			return "", fmt.Errorf("module value for a bool option")
		}
		return map[string]string{"on": "y", "off": "n", "M": "m"}[raw], nil
	}

	if !n.IsNumeric() {
		return "", fmt.Errorf("number %q for a %s option", raw, n.Type)
	}
	if n.Type == kconfig.TypeHex {
		v, ok := parseNumber(raw)
		if !ok {
			return "", fmt.Errorf("%q is not a hex option value", raw)
		}
		if n.Range != nil && (v > math.MaxInt64 || !n.Range.Contains(int64(v))) {
			return "", fmt.Errorf("%d outside range %d..%d", v, n.Range.Min, n.Range.Max)
		}
		return "0x" + strconv.FormatUint(v, 16), nil
	}
	v, ok := parseInteger(raw)
	if !ok {
		return "", fmt.Errorf("%q is not a number", raw)
	}
	if n.Range != nil && !n.Range.Contains(v) {
		return "", fmt.Errorf("%d outside range %d..%d", v, n.Range.Min, n.Range.Max)
	}
	return strconv.FormatInt(v, 10), nil
}

// parseInteger reads an optionally negative decimal or 0x-prefixed hex number.
func parseInteger(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	u, ok := parseNumber(strings.TrimPrefix(s, "-"))
	if !ok || u > math.MaxInt64 {
		return 0, false
	}
	if neg {
		return -int64(u), true
	}
	return int64(u), true
}

// parseNumber reads a non-negative decimal or 0x-prefixed hex number.
func parseNumber(s string) (uint64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	base := 10
	if lower := strings.ToLower(s); strings.HasPrefix(lower, "0x") {
		s, base = s[2:], 16
	}
	v, err := strconv.ParseUint(s, base, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
