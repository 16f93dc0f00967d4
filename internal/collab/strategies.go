package collab

import (
	"fmt"
	"sort"

	"github.com/inamate/anchors/internal/anchor"
)

var strategies = map[string]func(eps float64) anchor.Strategy{
	"chopbox":         func(eps float64) anchor.Strategy { return anchor.ChopBoxStrategy{Epsilon: eps} },
	"orthogonal":      func(eps float64) anchor.Strategy { return anchor.OrthogonalStrategy{Epsilon: eps} },
	"reference-point": func(float64) anchor.Strategy { return anchor.ReferencePointStrategy{} },
}

// StrategyByName returns the anchor strategy registered under name.
func StrategyByName(name string, eps float64) (anchor.Strategy, error) {
	mk, ok := strategies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return mk(eps), nil
}

// StrategyNames lists the registered strategy names.
func StrategyNames() []string {
	names := make([]string, 0, len(strategies))
	for name := range strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
