// Package rule implements the forward-chaining rule engine (spec.md
// §4.6): after a transaction's primary mutations, repeatedly find
// triggered auto rules, fire the highest-priority ones first, and track
// (rule_id, bindings_hash) pairs already fired this round to prevent
// immediate re-firing, until quiescence or a hard limit is hit.
package rule

import (
	"github.com/mitchellh/hashstructure/v2"

	"github.com/mewdb/mew/internal/mewerr"
	"github.com/mewdb/mew/internal/mewlog"
	"github.com/mewdb/mew/internal/obs"
	"github.com/mewdb/mew/internal/pattern"
	"github.com/mewdb/mew/internal/registry"
)

var logger = mewlog.For("rule")

// Limits bounds a single firing round (spec.md §4.6, §5).
type Limits struct {
	MaxDepth   int
	MaxActions int
}

// DefaultLimits mirrors the engine.toml defaults (SPEC_FULL.md §A.3).
var DefaultLimits = Limits{MaxDepth: 64, MaxActions: 10_000}

// Production applies one rule's production list (SPAWN/LINK/KILL/
// UNLINK/SET fragments) for a single binding row. The mutation executor
// supplies this so the rule engine stays decoupled from internal/mutate.
type Production func(row pattern.Binding) (actionsTaken int, err error)

// Firing is one candidate rule match: its descriptor, its binding, and
// the production to run if selected.
type Firing struct {
	Rule    *registry.RuleDef
	Binding pattern.Binding
	Run     Production
}

// FindFn discovers every currently-triggered firing for a single rule
// descriptor (pattern match against the live graph). The caller
// (internal/engine) wires this to pattern.Compile + pattern.RunOps plus a
// production closure bound to internal/mutate.
type FindFn func(rd *registry.RuleDef) ([]Firing, error)

// Engine runs the quiescence loop.
type Engine struct {
	Rules  []*registry.RuleDef // auto rules only, any priority order; re-sorted per round
	Find   FindFn
	Limits Limits

	// Metrics, when non-nil, counts every production fired.
	Metrics *obs.Metrics
}

// New constructs a rule Engine. rules should already be filtered to
// auto == true entries (manual rules are invoked explicitly, not fired
// automatically).
func New(rules []*registry.RuleDef, find FindFn, limits Limits) *Engine {
	return &Engine{Rules: rules, Find: find, Limits: limits}
}

// Run fires rules to quiescence (spec.md §4.6). Returns the number of
// productions executed, or a MaxDepthExceeded/MaxActionsExceeded error
// which the caller (the transaction manager) turns into an abort.
func (e *Engine) Run() (actionsTaken int, err error) {
	fired := map[string]bool{} // key: rule_id + "/" + bindings_hash

	for depth := 0; ; depth++ {
		if depth > e.Limits.MaxDepth {
			return actionsTaken, mewerr.New(mewerr.MaxDepthExceeded, "rule engine exceeded max depth %d", e.Limits.MaxDepth)
		}

		var candidates []Firing
		for _, rd := range e.Rules {
			matches, err := e.Find(rd)
			if err != nil {
				return actionsTaken, err
			}
			for _, m := range matches {
				key, err := firingKey(rd, m.Binding)
				if err != nil {
					return actionsTaken, err
				}
				if fired[key] {
					continue
				}
				candidates = append(candidates, m)
			}
		}
		if len(candidates) == 0 {
			logger.Debug("quiescence", "depth", depth, "actions", actionsTaken)
			return actionsTaken, nil // quiescence
		}

		sortByDescendingPriority(candidates)

		fire := candidates[0]
		key, err := firingKey(fire.Rule, fire.Binding)
		if err != nil {
			return actionsTaken, err
		}
		fired[key] = true

		n, err := fire.Run(fire.Binding)
		if err != nil {
			return actionsTaken, err
		}
		actionsTaken += n
		if e.Metrics != nil {
			e.Metrics.RuleFirings.Inc()
		}
		if actionsTaken > e.Limits.MaxActions {
			return actionsTaken, mewerr.New(mewerr.MaxActionsExceeded, "rule engine exceeded max actions %d", e.Limits.MaxActions)
		}
	}
}

func sortByDescendingPriority(firings []Firing) {
	// Insertion sort: firing sets are small per round and this keeps the
	// dependency surface to hashstructure alone.
	for i := 1; i < len(firings); i++ {
		for j := i; j > 0 && firings[j].Rule.Priority > firings[j-1].Rule.Priority; j-- {
			firings[j], firings[j-1] = firings[j-1], firings[j]
		}
	}
}

// firingKey hashes a rule's binding deterministically via
// mitchellh/hashstructure, matching the spec's "(rule_id, bindings_hash)"
// de-duplication key (spec.md §4.6).
func firingKey(rd *registry.RuleDef, b pattern.Binding) (string, error) {
	canon := make(map[string]any, len(b))
	for k, v := range b {
		if v.Hashable() {
			canon[k] = v.CanonicalKey()
		} else {
			canon[k] = v.String()
		}
	}
	h, err := hashstructure.Hash(canon, hashstructure.FormatV2, nil)
	if err != nil {
		return "", mewerr.Wrap(mewerr.InvalidOperation, err, "hashing rule bindings")
	}
	return itoa(uint64(rd.ID)) + "/" + itoa(h), nil
}

func itoa(h uint64) string {
	if h == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for h > 0 {
		i--
		buf[i] = byte('0' + h%10)
		h /= 10
	}
	return string(buf[i:])
}
