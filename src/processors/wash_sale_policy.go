package processors

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/shopspring/decimal"
)

//go:embed wash_sale_policy.toml
var defaultWashSalePolicy []byte

// ErrInvalidPolicy is returned for a wash-sale policy that fails validation.
var ErrInvalidPolicy = errors.New("invalid wash-sale policy")

const (
	GroupIdentical  = "identical"
	GroupCorrelated = "correlated"
)

// SimilarityGroup lists tickers that track each other.
type SimilarityGroup struct {
	Name    string   `toml:"name"`
	Kind    string   `toml:"kind"`
	Score   float64  `toml:"score"`
	Tickers []string `toml:"tickers"`
}

// WashSalePolicy scores how alike two securities are. It approximates the IRS
// "substantially identical" test and makes no claim to completeness.
type WashSalePolicy struct {
	Threshold           float64           `toml:"threshold"`
	WindowDays          int               `toml:"window_days"`
	SameAssetClassScore float64           `toml:"same_asset_class_score"`
	UnrelatedScore      float64           `toml:"unrelated_score"`
	Groups              []SimilarityGroup `toml:"groups"`
}

// DefaultWashSalePolicy returns the embedded policy.
func DefaultWashSalePolicy() (*WashSalePolicy, error) {
	return ParseWashSalePolicy(defaultWashSalePolicy)
}

// LoadWashSalePolicy reads a policy file, or the embedded default when path is empty.
func LoadWashSalePolicy(path string) (*WashSalePolicy, error) {
	if path == "" {
		return DefaultWashSalePolicy()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read wash-sale policy %s: %w", path, err)
	}
	return ParseWashSalePolicy(data)
}

// ParseWashSalePolicy decodes and validates a TOML policy.
func ParseWashSalePolicy(data []byte) (*WashSalePolicy, error) {
	policy := &WashSalePolicy{}
	if err := toml.Unmarshal(data, policy); err != nil {
		return nil, fmt.Errorf("failed to parse wash-sale policy: %w", err)
	}
	if err := policy.validate(); err != nil {
		return nil, err
	}
	for i := range policy.Groups {
		for j, t := range policy.Groups[i].Tickers {
			policy.Groups[i].Tickers[j] = normalizeTicker(t)
		}
	}
	return policy, nil
}

func (p *WashSalePolicy) validate() error {
	if p.Threshold <= 0 || p.Threshold > 1 {
		return fmt.Errorf("%w: threshold %.2f must be in (0, 1]", ErrInvalidPolicy, p.Threshold)
	}
	if p.WindowDays <= 0 {
		return fmt.Errorf("%w: window_days must be positive", ErrInvalidPolicy)
	}
	for _, s := range []float64{p.SameAssetClassScore, p.UnrelatedScore} {
		if s < 0 || s > 1 {
			return fmt.Errorf("%w: scores must be in [0, 1]", ErrInvalidPolicy)
		}
	}
	for _, g := range p.Groups {
		if g.Kind != GroupIdentical && g.Kind != GroupCorrelated {
			return fmt.Errorf("%w: group %q has unknown kind %q", ErrInvalidPolicy, g.Name, g.Kind)
		}
		if g.Score < 0 || g.Score > 1 {
			return fmt.Errorf("%w: group %q score must be in [0, 1]", ErrInvalidPolicy, g.Name)
		}
	}
	return nil
}

func normalizeTicker(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}

func (g SimilarityGroup) contains(ticker string) bool {
	for _, t := range g.Tickers {
		if t == ticker {
			return true
		}
	}
	return false
}

// ThresholdDecimal is the substantially-identical cut-off.
func (p *WashSalePolicy) ThresholdDecimal() decimal.Decimal {
	return decimal.NewFromFloat(p.Threshold)
}

// SharedGroup returns the highest-scoring group containing both tickers.
func (p *WashSalePolicy) SharedGroup(a, b string) (SimilarityGroup, bool) {
	a, b = normalizeTicker(a), normalizeTicker(b)
	var (
		best  SimilarityGroup
		found bool
	)
	for _, g := range p.Groups {
		if (!found || g.Score > best.Score) && g.contains(a) && g.contains(b) {
			best, found = g, true
		}
	}
	return best, found
}

// Similarity scores two tickers: 1 for the same ticker, else the best group both belong to,
// else the same-asset-class score, else the unrelated score.
func (p *WashSalePolicy) Similarity(a, b string, sameAssetClass bool) decimal.Decimal {
	if normalizeTicker(a) == normalizeTicker(b) {
		return decimal.NewFromInt(1)
	}
	if g, ok := p.SharedGroup(a, b); ok {
		return decimal.NewFromFloat(g.Score)
	}
	if sameAssetClass {
		return decimal.NewFromFloat(p.SameAssetClassScore)
	}
	return decimal.NewFromFloat(p.UnrelatedScore)
}

// SubstantiallyIdentical reports whether score reaches the threshold.
func (p *WashSalePolicy) SubstantiallyIdentical(score decimal.Decimal) bool {
	return score.GreaterThanOrEqual(p.ThresholdDecimal())
}

// CorrelatedTickers lists the tickers sharing a correlated group with ticker, sorted.
func (p *WashSalePolicy) CorrelatedTickers(ticker string) []string {
	ticker = normalizeTicker(ticker)
	seen := make(map[string]bool)
	for _, g := range p.Groups {
		if g.Kind != GroupCorrelated || !g.contains(ticker) {
			continue
		}
		for _, t := range g.Tickers {
			if t != ticker {
				seen[t] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
