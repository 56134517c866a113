package config

import (
	"fmt"
	"os"

	"github.com/gocarina/gocsv"

	"forex-scanner/internal/models"
)

// LoadInstruments reads the instrument universe CSV. An unreadable or empty
// universe is a fatal configuration error: the scanner has nothing to scan.
func LoadInstruments(path string) ([]models.Instrument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening instruments file: %w", err)
	}
	defer f.Close()

	var instruments []models.Instrument
	if err := gocsv.UnmarshalFile(f, &instruments); err != nil {
		return nil, fmt.Errorf("parsing instruments file: %w", err)
	}
	if len(instruments) == 0 {
		return nil, fmt.Errorf("instruments file %s is empty", path)
	}

	seen := make(map[string]bool, len(instruments))
	for _, inst := range instruments {
		if inst.Symbol == "" {
			return nil, fmt.Errorf("instruments file %s contains a row without a symbol", path)
		}
		if seen[inst.Symbol] {
			return nil, fmt.Errorf("duplicate symbol %s in instruments file", inst.Symbol)
		}
		seen[inst.Symbol] = true
	}

	return instruments, nil
}

// BuildCorrelationGroups folds instrument rows into static correlation groups.
func BuildCorrelationGroups(instruments []models.Instrument) map[string]models.CorrelationGroup {
	groups := make(map[string]models.CorrelationGroup)
	for _, inst := range instruments {
		if inst.Group == "" {
			continue
		}
		g, ok := groups[inst.Group]
		if !ok {
			g = models.CorrelationGroup{Name: inst.Group, Inverse: make(map[string]bool)}
		}
		g.Symbols = append(g.Symbols, inst.Symbol)
		if inst.Inverse {
			g.Inverse[inst.Symbol] = true
		}
		groups[inst.Group] = g
	}
	return groups
}

// TailRiskSymbols returns the set of symbols flagged for the tail-risk clamp.
func TailRiskSymbols(instruments []models.Instrument) map[string]bool {
	flagged := make(map[string]bool)
	for _, inst := range instruments {
		if inst.TailRisk {
			flagged[inst.Symbol] = true
		}
	}
	return flagged
}

// Symbols returns the scan universe in file order.
func Symbols(instruments []models.Instrument) []string {
	out := make([]string, 0, len(instruments))
	for _, inst := range instruments {
		out = append(out, inst.Symbol)
	}
	return out
}
