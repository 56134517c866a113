package models

// Instrument is one row of the instrument universe CSV. It carries the static
// attributes the broker cannot provide: asset class, correlation grouping and
// the tail-risk flag.
type Instrument struct {
	Symbol     string `csv:"symbol"`
	AssetClass string `csv:"asset_class"`
	Group      string `csv:"group"`
	Inverse    bool   `csv:"inverse"`
	TailRisk   bool   `csv:"tail_risk"`
}

// CorrelationGroup is a static set of symbols sharing a risk driver, defined
// at startup and never mutated. Symbols in Inverse are expected to move
// opposite the rest of the group.
type CorrelationGroup struct {
	Name    string
	Symbols []string
	Inverse map[string]bool
}

// Contains reports whether the group includes the symbol.
func (g CorrelationGroup) Contains(symbol string) bool {
	for _, s := range g.Symbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// IsInverse reports whether the symbol is marked as moving opposite the group.
func (g CorrelationGroup) IsInverse(symbol string) bool {
	return g.Inverse[symbol]
}
