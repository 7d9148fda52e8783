// Package access decides which subscription tiers may receive which data.
package access

import "strings"

// Tier is an ordered subscription level.
type Tier int

const (
	Free Tier = iota
	Basic
	Premium
	Pro
)

var tierNames = [...]string{"free", "basic", "premium", "pro"}

func (t Tier) String() string {
	if t < Free || t > Pro {
		return tierNames[Free]
	}
	return tierNames[t]
}

// ParseTier maps a tier name to its Tier. Unknown names resolve to Free.
func ParseTier(s string) Tier {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range tierNames {
		if name == s {
			return Tier(i)
		}
	}
	return Free
}

// Authorize reports whether tier may receive data gated at required.
func Authorize(tier, required Tier) bool {
	return normalize(tier) >= normalize(required)
}

// AuthorizeName is Authorize over tier names.
func AuthorizeName(tier, required string) bool {
	return Authorize(ParseTier(tier), ParseTier(required))
}

func normalize(t Tier) Tier {
	if t < Free || t > Pro {
		return Free
	}
	return t
}

// Feature names gated by tier.
const (
	FeaturePrice           = "price"
	FeatureTickers         = "tickers"
	FeatureCandles         = "candles"
	FeatureSignals         = "signals"
	FeatureRealtimeSignals = "realtime_signals"
	FeatureAPIAccess       = "api_access"
)

var requirements = map[string]Tier{
	FeaturePrice:           Free,
	FeatureTickers:         Free,
	FeatureCandles:         Basic,
	FeatureSignals:         Basic,
	FeatureRealtimeSignals: Basic,
	FeatureAPIAccess:       Pro,
}

// Requirement returns the minimum tier for a feature. Unlisted features
// require Pro.
func Requirement(feature string) Tier {
	if t, ok := requirements[feature]; ok {
		return t
	}
	return Pro
}
