package rules

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"SetupScan/internal/domain/models"
)

var ErrUnresolvedRule = errors.New("rule does not map to a known check")

const minFuzzyOverlap = 2

// Registry resolves model rules onto catalog checks. Resolution order is exact tag, then
// name prefixed by a kind, then normalized name or alias, then keyword overlap.
type Registry struct {
	defs   []Definition
	byKind map[Kind]int
	alias  map[string]int
	cache  sync.Map // resolveKey -> int (-1 when unresolved)
}

// NewRegistry builds a registry over the built-in catalog.
func NewRegistry() *Registry {
	return newRegistry(catalog)
}

func newRegistry(defs []Definition) *Registry {
	r := &Registry{
		defs:   defs,
		byKind: make(map[Kind]int, len(defs)),
		alias:  make(map[string]int),
	}
	for i, d := range defs {
		r.byKind[d.Kind] = i
		for _, a := range d.Aliases {
			r.alias[normalize(a)] = i
		}
	}
	return r
}

// Kinds lists the catalog in resolution order.
func (r *Registry) Kinds() []Kind {
	out := make([]Kind, len(r.defs))
	for i, d := range r.defs {
		out[i] = d.Kind
	}
	return out
}

// Resolve returns the definition a rule maps to.
func (r *Registry) Resolve(rule models.Rule) (Definition, bool) {
	key := rule.Tag + "\x00" + rule.Name
	if v, ok := r.cache.Load(key); ok {
		i := v.(int)
		if i < 0 {
			return Definition{}, false
		}
		return r.defs[i], true
	}
	i := r.resolve(rule)
	r.cache.Store(key, i)
	if i < 0 {
		return Definition{}, false
	}
	return r.defs[i], true
}

func (r *Registry) resolve(rule models.Rule) int {
	if tag := strings.TrimSpace(rule.Tag); tag != "" {
		if i, ok := r.byKind[Kind(tag)]; ok {
			return i
		}
	}
	if i := r.byPrefix(rule.Name); i >= 0 {
		return i
	}
	norm := normalize(rule.Name)
	if i, ok := r.byKind[Kind(norm)]; ok {
		return i
	}
	if i, ok := r.alias[norm]; ok {
		return i
	}
	return r.byKeywords(norm)
}

// byPrefix matches names like "bos_confirmed (1h)"; the longest kind wins.
func (r *Registry) byPrefix(name string) int {
	lower := strings.ToLower(strings.TrimSpace(name))
	best, bestLen := -1, 0
	for i, d := range r.defs {
		k := string(d.Kind)
		if !strings.HasPrefix(lower, k) || len(k) <= bestLen {
			continue
		}
		if rest := lower[len(k):]; rest != "" {
			next := rune(rest[0])
			if unicode.IsLetter(next) || unicode.IsDigit(next) || next == '_' {
				continue
			}
		}
		best, bestLen = i, len(k)
	}
	return best
}

func (r *Registry) byKeywords(norm string) int {
	words := make(map[string]struct{})
	for _, w := range strings.Split(norm, "_") {
		if w != "" {
			words[w] = struct{}{}
		}
	}
	best, bestScore := -1, minFuzzyOverlap-1
	for i, d := range r.defs {
		score := 0
		for _, kw := range d.Keywords {
			if _, ok := words[kw]; ok {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

// ValidateModel rejects a model containing any rule the registry cannot map.
func (r *Registry) ValidateModel(m *models.Model) error {
	var unresolved []string
	for _, rule := range m.Rules {
		if _, ok := r.Resolve(rule); !ok {
			unresolved = append(unresolved, rule.ID)
		}
	}
	if len(unresolved) > 0 {
		return fmt.Errorf("%w: %w: model %s rules %s",
			models.ErrInvalidModel, ErrUnresolvedRule, m.ID, strings.Join(unresolved, ", "))
	}
	return nil
}

func normalize(s string) string {
	var b strings.Builder
	underscore := false
	for _, c := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(c) || unicode.IsDigit(c) {
			b.WriteRune(c)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
