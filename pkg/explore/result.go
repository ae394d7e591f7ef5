package explore

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"kcexplore/pkg/kconfig"
	"kcexplore/pkg/oracle"
)

// Recommendation is one option setting. Value is y, n, m or a number in
// .config spelling.
type Recommendation struct {
	Symbol string       `json:"symbol"`
	Value  string       `json:"value"`
	Stage  oracle.Stage `json:"stage"`
	Prompt string       `json:"prompt"`
}

// Result is the outcome of a run.
type Result struct {
	Target          string           `json:"target"`
	Recommendations []Recommendation `json:"recommendations"`
	ExploredMenus   []string         `json:"explored_menus"`
	Cost            float64          `json:"cost_usd"`
}

// recommend records a setting. The first recommendation for a symbol wins.
func (e *Explorer) recommend(id kconfig.NodeID, value string, stage oracle.Stage) {
	n := e.tree.Node(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	if prev, ok := e.recs[n.Name]; ok {
		if prev.Value != value {
			e.logger.Warn("%s already set to %s by the %s stage, ignoring %s", n.Name, prev.Value, prev.Stage, value)
		}
		return
	}
	e.recs[n.Name] = Recommendation{Symbol: n.Name, Value: value, Stage: stage, Prompt: n.Prompt}
}

func (e *Explorer) recommendations() []Recommendation {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Recommendation, 0, len(e.recs))
	for _, r := range e.recs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func configName(symbol string) string {
	if strings.HasPrefix(symbol, "CONFIG_") {
		return symbol
	}
	return "CONFIG_" + symbol
}

// WriteConfig writes the recommendations as a .config fragment.
func (r *Result) WriteConfig(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "#\n# Recommended by kcexplore\n# Target: %s\n# Oracle cost: $%.4f\n#\n", strings.Join(strings.Fields(r.Target), " "), r.Cost)
	for _, rec := range r.Recommendations {
		name := configName(rec.Symbol)
		if rec.Value == "n" {
			fmt.Fprintf(bw, "# %s is not set\n", name)
			continue
		}
		fmt.Fprintf(bw, "%s=%s\n", name, rec.Value)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write config fragment: %w", err)
	}
	return nil
}
