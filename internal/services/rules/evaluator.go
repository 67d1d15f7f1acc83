package rules

import (
	"errors"
	"fmt"

	"SetupScan/internal/domain/models"
	"SetupScan/internal/domain/repository"
	"SetupScan/pkg/logger"
)

// Source serves per-tick analyses. Implementations must be safe for concurrent readers.
type Source interface {
	Analysis(pair string, tf repository.Timeframe) *models.Analysis
}

// Evaluator runs catalog checks for model rules. It never returns an error: unresolved
// rules, missing data and failing checks all count as a failed rule and are logged.
type Evaluator struct {
	registry *Registry
	params   Params
	log      *logger.Logger
	metrics  repository.Metrics
}

func NewEvaluator(registry *Registry, params Params, log *logger.Logger, metrics repository.Metrics) *Evaluator {
	if log == nil {
		log = logger.NewNop()
	}
	if metrics == nil {
		metrics = repository.NopMetrics{}
	}
	return &Evaluator{registry: registry, params: params, log: log, metrics: metrics}
}

func (e *Evaluator) Registry() *Registry { return e.registry }

// Evaluate reports whether rule holds for (pair, tf, dir) against src.
func (e *Evaluator) Evaluate(rule models.Rule, pair string, tf repository.Timeframe, dir models.Direction, src Source) (passed bool) {
	def, ok := e.registry.Resolve(rule)
	if !ok {
		e.log.Warn("unresolved rule",
			logger.String("rule", rule.ID),
			logger.String("name", rule.Name),
			logger.String("tag", rule.Tag))
		e.metrics.RecordUnresolvedRule(rule.ID)
		return false
	}

	kind := string(def.Kind)
	target := def.Scope.Resolve(tf)
	defer func() {
		if rec := recover(); rec != nil {
			e.log.Error("rule check panicked",
				logger.String("kind", kind),
				logger.String("rule", rule.ID),
				logger.String("pair", pair),
				logger.String("timeframe", string(target)),
				logger.String("direction", string(dir)),
				logger.Error(fmt.Errorf("%v", rec)))
			e.metrics.RecordCheckError(kind)
			passed = false
		}
	}()

	a := src.Analysis(pair, target)
	if a.Empty() {
		e.metrics.RecordRule(kind, "no_data")
		return false
	}
	passed, err := def.check(Input{Pair: pair, Timeframe: target, Direction: dir, Analysis: a, Params: e.params})
	if err != nil {
		if !errors.Is(err, errNoData) {
			e.log.Error("rule check failed",
				logger.String("kind", kind),
				logger.String("rule", rule.ID),
				logger.String("pair", pair),
				logger.String("timeframe", string(target)),
				logger.Error(err))
			e.metrics.RecordCheckError(kind)
		}
		e.metrics.RecordRule(kind, "error")
		return false
	}
	if passed {
		e.metrics.RecordRule(kind, "pass")
	} else {
		e.metrics.RecordRule(kind, "fail")
	}
	return passed
}

// EvaluateAll evaluates rules in order and returns outcomes keyed by rule id.
func (e *Evaluator) EvaluateAll(rules []models.Rule, pair string, tf repository.Timeframe, dir models.Direction, src Source) map[string]bool {
	out := make(map[string]bool, len(rules))
	for _, r := range rules {
		out[r.ID] = e.Evaluate(r, pair, tf, dir, src)
	}
	return out
}
