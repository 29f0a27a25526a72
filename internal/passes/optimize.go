package passes

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/roach88/aotc/internal/graph"
)

// DefaultMaxRounds is the number of optimization rounds run when the
// caller does not choose. Two rounds resolve size-then-view chains.
const DefaultMaxRounds = 2

// Pass is one named graph rewrite.
type Pass interface {
	Name() string
	Run(g *graph.Graph) (*graph.Graph, bool, error)
}

type funcPass struct {
	name string
	run  func(*graph.Graph) (*graph.Graph, bool, error)
}

func (p funcPass) Name() string { return p.name }

func (p funcPass) Run(g *graph.Graph) (*graph.Graph, bool, error) { return p.run(g) }

// NewPass wraps a rewrite function.
func NewPass(name string, run func(*graph.Graph) (*graph.Graph, bool, error)) Pass {
	return funcPass{name: name, run: run}
}

func infallible(run func(*graph.Graph) (*graph.Graph, bool)) func(*graph.Graph) (*graph.Graph, bool, error) {
	return func(g *graph.Graph) (*graph.Graph, bool, error) {
		g, changed := run(g)
		return g, changed, nil
	}
}

// DefaultRound returns the passes of one optimization round in order.
func DefaultRound() []Pass {
	return []Pass{
		NewPass("propagate-shapes", PropagateShapes),
		NewPass("peephole", infallible(Peephole)),
		NewPass("constant-propagation", ConstantPropagation),
	}
}

// OptimizeStats summarizes a fixpoint run.
type OptimizeStats struct {
	Rounds    int
	Converged bool
	// Changes counts, per pass name, the rounds in which that pass changed
	// the graph.
	Changes map[string]int
}

// Optimizer repeats a round of passes until nothing changes or MaxRounds
// is reached.
type Optimizer struct {
	MaxRounds int
	Passes    []Pass
	Logger    *logrus.Entry
}

// Run optimizes g in place and returns it.
func (o *Optimizer) Run(ctx context.Context, g *graph.Graph) (*graph.Graph, OptimizeStats, error) {
	rounds := o.MaxRounds
	if rounds <= 0 {
		rounds = DefaultMaxRounds
	}
	passes := o.Passes
	if len(passes) == 0 {
		passes = DefaultRound()
	}
	log := o.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	stats := OptimizeStats{Changes: make(map[string]int)}
	for round := 1; round <= rounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		changed := false
		for _, p := range passes {
			next, c, err := p.Run(g)
			if err != nil {
				return nil, stats, err
			}
			g = next
			if c {
				changed = true
				stats.Changes[p.Name()]++
				log.WithFields(logrus.Fields{"round": round, "pass": p.Name(), "nodes": len(g.Nodes)}).Debug("pass changed graph")
			}
		}
		stats.Rounds = round
		if !changed {
			stats.Converged = true
			break
		}
	}
	return g, stats, nil
}
