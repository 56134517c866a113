package risk

import (
	"fmt"
	"strings"
	"time"

	"forex-scanner/internal/config"
)

// NewsWindow is a scheduled blackout affecting symbols quoting any of its
// currencies.
type NewsWindow struct {
	Start      time.Time
	End        time.Time
	Currencies []string
}

// NewsCalendar answers whether a symbol is inside a blackout window.
type NewsCalendar struct {
	windows []NewsWindow
}

// NewNewsCalendar parses configured windows. A malformed window is a
// configuration error surfaced at startup.
func NewNewsCalendar(cfg config.NewsConfig) (*NewsCalendar, error) {
	cal := &NewsCalendar{}
	for i, w := range cfg.Windows {
		start, err := time.Parse(time.RFC3339, w.Start)
		if err != nil {
			return nil, fmt.Errorf("news window %d: bad start: %w", i, err)
		}
		end, err := time.Parse(time.RFC3339, w.End)
		if err != nil {
			return nil, fmt.Errorf("news window %d: bad end: %w", i, err)
		}
		if !end.After(start) {
			return nil, fmt.Errorf("news window %d: end must be after start", i)
		}
		currencies := make([]string, 0, len(w.Currencies))
		for _, c := range w.Currencies {
			currencies = append(currencies, strings.ToUpper(c))
		}
		cal.windows = append(cal.windows, NewsWindow{Start: start, End: end, Currencies: currencies})
	}
	return cal, nil
}

// Blackout reports whether the symbol is inside an active window, with the
// window's currency for the rejection detail.
func (c *NewsCalendar) Blackout(symbol string, now time.Time) (bool, string) {
	upper := strings.ToUpper(symbol)
	for _, w := range c.windows {
		if now.Before(w.Start) || !now.Before(w.End) {
			continue
		}
		if len(w.Currencies) == 0 {
			return true, "all symbols"
		}
		for _, cur := range w.Currencies {
			if strings.Contains(upper, cur) {
				return true, cur
			}
		}
	}
	return false, ""
}
