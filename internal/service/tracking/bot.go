package tracking

import "strings"

// BotFilter recognizes user agents of crawlers and security link scanners
// that fetch pixels and follow links without a human behind them.
type BotFilter struct {
	patterns []string
}

// NewBotFilter creates a filter with the default pattern list plus extra.
func NewBotFilter(extra ...string) *BotFilter {
	patterns := []string{
		"bot", "crawler", "spider", "slurp", "preview", "scanner",
		"barracuda", "proofpoint", "mimecast", "safelinks", "headlesschrome",
	}
	for _, p := range extra {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			patterns = append(patterns, p)
		}
	}
	return &BotFilter{patterns: patterns}
}

// IsBot checks if the user agent belongs to automated traffic.
func (f *BotFilter) IsBot(userAgent string) bool {
	if f == nil {
		return false
	}
	ua := strings.ToLower(userAgent)
	for _, p := range f.patterns {
		if strings.Contains(ua, p) {
			return true
		}
	}
	return false
}
