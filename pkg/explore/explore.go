// Package explore drives an oracle session over a configuration tree:
// directory selection narrows the tree to relevant menus, the boolean and
// choice stages settle on/off options, and the value stage assigns numbers.
package explore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"kcexplore/pkg/kconfig"
	"kcexplore/pkg/knowledge"
	"kcexplore/pkg/logx"
	"kcexplore/pkg/oracle"
	"kcexplore/pkg/tokens"
)

// KnowledgeSource supplies the KNOWLEDGE block of a prompt. *knowledge.Store
// implements it.
type KnowledgeSource interface {
	Retrieve(ctx context.Context, options knowledge.RetrievalOptions) (*knowledge.RetrievalResult, error)
}

// Options bound the exploration.
type Options struct {
	BatchSize      int // lines per query
	MaxBatchTokens int // approximate tokens of content per query
	MaxDepth       int // menu levels below the root that may be selected
	Parallelism    int // concurrent queries within one stage

	MaxResults     int // knowledge matches per batch
	KnowledgeDepth int // neighbour expansion for knowledge retrieval

	Counter *tokens.Counter
	Logger  *logx.Logger
}

func (o *Options) applyDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 20
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = 3
	}
	if o.Parallelism <= 0 {
		o.Parallelism = 1
	}
	if o.MaxResults <= 0 {
		o.MaxResults = 20
	}
	if o.Logger == nil {
		o.Logger = logx.NewLogger("explore")
	}
}

// Explorer runs the staged pipeline for one session.
type Explorer struct {
	tree      *kconfig.Tree
	session   *oracle.Session
	knowledge KnowledgeSource
	opts      Options
	logger    *logx.Logger

	mu   sync.Mutex
	recs map[string]Recommendation
}

// New creates an explorer. src may be nil to run without retrieved knowledge.
func New(tree *kconfig.Tree, session *oracle.Session, src KnowledgeSource, opts Options) *Explorer {
	opts.applyDefaults()
	return &Explorer{
		tree:      tree,
		session:   session,
		knowledge: src,
		opts:      opts,
		logger:    opts.Logger,
		recs:      make(map[string]Recommendation),
	}
}

// Run executes the stages in order. A transport error aborts the run; parse
// problems never do.
func (e *Explorer) Run(ctx context.Context) (*Result, error) {
	if e.tree.Root() == kconfig.NoNode {
		return nil, fmt.Errorf("configuration tree is empty")
	}

	e.logger.Info("🔎 exploring %d nodes for: %s", e.tree.Len(), e.session.Target())

	scope, err := e.selectMenus(ctx)
	if err != nil {
		return nil, fmt.Errorf("directory stage: %w", err)
	}

	work := e.gather(scope)
	e.logger.Info("📋 %d menus in scope: %d on/off options, %d choices, %d numeric options",
		len(scope), len(work.booleans), len(work.choices), len(work.values))

	if err := e.runBooleans(ctx, work.booleans); err != nil {
		return nil, fmt.Errorf("boolean stage: %w", err)
	}
	if err := e.runChoices(ctx, work.choices); err != nil {
		return nil, fmt.Errorf("choice stage: %w", err)
	}
	if err := e.runValues(ctx, work.values); err != nil {
		return nil, fmt.Errorf("value stage: %w", err)
	}

	result := &Result{
		Target:          e.session.Target(),
		Recommendations: e.recommendations(),
		Cost:            e.session.Cost(),
	}
	for _, id := range scope {
		result.ExploredMenus = append(result.ExploredMenus, strings.Join(e.tree.Path(id), " > "))
	}
	e.logger.Info("✅ %d recommendations, total cost $%.4f", len(result.Recommendations), result.Cost)
	return result, nil
}

type menuLevel struct {
	id    kconfig.NodeID
	depth int
}

type directoryJob struct {
	menu       menuLevel
	candidates []kconfig.NodeID
	offset     int // index of the batch's first candidate
	lines      []string
}

// selectMenus walks the menu hierarchy breadth first, asking the oracle which
// submenus of each in-scope menu are worth descending into.
func (e *Explorer) selectMenus(ctx context.Context) ([]kconfig.NodeID, error) {
	root := e.tree.Root()
	scope := []kconfig.NodeID{root}
	level := []menuLevel{{id: root}}

	for len(level) > 0 {
		var jobs []directoryJob
		for _, m := range level {
			if m.depth >= e.opts.MaxDepth {
				continue
			}
			candidates := e.submenus(m.id)
			if len(candidates) == 0 {
				continue
			}
			lines := make([]string, len(candidates))
			for i, id := range candidates {
				lines[i] = strconv.Itoa(i+1) + " " + e.tree.Node(id).Prompt
			}
			offset := 0
			for _, batch := range e.opts.Counter.Batch(lines, e.opts.BatchSize, e.opts.MaxBatchTokens) {
				jobs = append(jobs, directoryJob{menu: m, candidates: candidates, offset: offset, lines: batch})
				offset += len(batch)
			}
		}

		picked := make([][]kconfig.NodeID, len(jobs))
		err := e.forEach(ctx, len(jobs), func(ctx context.Context, s *oracle.Session, i int) error {
			job := jobs[i]
			labels := make([]string, len(job.lines))
			for j := range job.lines {
				labels[j] = e.tree.Node(job.candidates[job.offset+j]).Prompt
			}
			picks, err := s.SelectDirectories(ctx, e.retrieve(ctx, labels), tokens.Join(job.lines))
			if err != nil {
				return err
			}
			picked[i] = e.resolveDirectories(job, picks)
			return nil
		})
		if err != nil {
			return nil, err
		}

		seen := make(map[kconfig.NodeID]bool)
		var next []menuLevel
		for i, ids := range picked {
			for _, id := range ids {
				if seen[id] {
					continue
				}
				seen[id] = true
				scope = append(scope, id)
				next = append(next, menuLevel{id: id, depth: jobs[i].menu.depth + 1})
			}
		}
		level = next
	}
	return scope, nil
}

// submenus lists the prompted menus directly below id.
func (e *Explorer) submenus(id kconfig.NodeID) []kconfig.NodeID {
	var out []kconfig.NodeID
	for _, c := range e.tree.Children(id) {
		if n := e.tree.Node(c); n.Kind == kconfig.KindMenu && n.Visible() {
			out = append(out, c)
		}
	}
	return out
}

// resolveDirectories maps picks to menus by index, then by label.
func (e *Explorer) resolveDirectories(job directoryJob, picks []oracle.DirectoryPick) []kconfig.NodeID {
	var out []kconfig.NodeID
	for _, p := range picks {
		if p.HasIndex && p.Index >= 1 && p.Index <= len(job.candidates) {
			out = append(out, job.candidates[p.Index-1])
			continue
		}
		if id, ok := e.matchPrompt(job.candidates, p.Label, p.Token); ok {
			out = append(out, id)
			continue
		}
		e.logger.Warn("directory pick %q does not name a listed menu", p.Label)
	}
	return out
}

func (e *Explorer) matchPrompt(candidates []kconfig.NodeID, labels ...string) (kconfig.NodeID, bool) {
	for _, label := range labels {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		for _, id := range candidates {
			if strings.EqualFold(e.tree.Node(id).Prompt, label) {
				return id, true
			}
		}
	}
	return kconfig.NoNode, false
}

// retrieve returns the knowledge block for a batch. Retrieval problems are
// logged and yield an empty block.
func (e *Explorer) retrieve(ctx context.Context, labels []string) string {
	if e.knowledge == nil {
		return ""
	}
	res, err := e.knowledge.Retrieve(ctx, knowledge.RetrievalOptions{
		Terms:      knowledge.ExtractKeyTerms(e.session.Target(), labels),
		MaxResults: e.opts.MaxResults,
		Depth:      e.opts.KnowledgeDepth,
	})
	if err != nil {
		e.logger.Warn("knowledge retrieval failed, continuing without: %v", err)
		return ""
	}
	return res.Text
}

// forEach runs fn for 0..n-1 with at most Parallelism calls in flight, each
// on its own fork of the session.
func (e *Explorer) forEach(ctx context.Context, n int, fn func(ctx context.Context, s *oracle.Session, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Parallelism)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			return fn(gctx, e.session.Fork(), i)
		})
	}
	return g.Wait() //nolint:wrapcheck // stage name is added by Run
}
