package processors

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultPolicy(t *testing.T) *WashSalePolicy {
	t.Helper()
	policy, err := DefaultWashSalePolicy()
	require.NoError(t, err)
	return policy
}

func TestDefaultWashSalePolicy(t *testing.T) {
	policy := defaultPolicy(t)

	assert.Equal(t, 0.9, policy.Threshold)
	assert.Equal(t, 30, policy.WindowDays)
	assert.NotEmpty(t, policy.Groups)
}

func TestSimilarity(t *testing.T) {
	policy := defaultPolicy(t)

	tests := []struct {
		a, b      string
		sameClass bool
		want      string
		identical bool
	}{
		{"SPY", "spy", true, "1", true},
		{"SPY", "VOO", true, "0.95", true},
		{"QQQ", "QQQM", true, "0.97", true},
		{"SPY", "VTI", true, "0.7", false},
		{"QQQ", "XLK", true, "0.65", false},
		{"SPY", "AAPL", true, "0.5", false},
		{"SPY", "BND", false, "0.3", false},
	}
	for _, tt := range tests {
		score := policy.Similarity(tt.a, tt.b, tt.sameClass)
		assert.True(t, score.Equal(d(tt.want)), "%s/%s: got %s", tt.a, tt.b, score)
		assert.Equal(t, tt.identical, policy.SubstantiallyIdentical(score), "%s/%s", tt.a, tt.b)
	}
}

func TestSharedGroup_PrefersHighestScore(t *testing.T) {
	policy := defaultPolicy(t)

	group, ok := policy.SharedGroup("voo", "IVV")
	require.True(t, ok)
	assert.Equal(t, GroupIdentical, group.Kind)
	assert.Equal(t, "S&P 500 index funds", group.Name)

	_, ok = policy.SharedGroup("SPY", "AAPL")
	assert.False(t, ok)
}

func TestCorrelatedTickers(t *testing.T) {
	policy := defaultPolicy(t)

	assert.Equal(t, []string{"QQQM", "VGT", "XLK"}, policy.CorrelatedTickers("qqq"))
	assert.Empty(t, policy.CorrelatedTickers("AAPL"))
}

func TestParseWashSalePolicy_Invalid(t *testing.T) {
	tests := map[string]string{
		"threshold above one": "threshold = 1.5\nwindow_days = 30",
		"zero window":         "threshold = 0.9\nwindow_days = 0",
		"bad score":           "threshold = 0.9\nwindow_days = 30\nunrelated_score = 2.0",
		"bad kind": `threshold = 0.9
window_days = 30
[[groups]]
name = "x"
kind = "similar"
score = 0.5
tickers = ["A", "B"]`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseWashSalePolicy([]byte(doc))
			assert.ErrorIs(t, err, ErrInvalidPolicy)
		})
	}

	_, err := ParseWashSalePolicy([]byte("threshold = ["))
	assert.Error(t, err)
}

func TestLoadWashSalePolicy_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.toml")
	doc := `threshold = 0.8
window_days = 45
same_asset_class_score = 0.4
unrelated_score = 0.1

[[groups]]
name = "Gold"
kind = "identical"
score = 0.85
tickers = ["gld", "iau"]
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	policy, err := LoadWashSalePolicy(path)
	require.NoError(t, err)
	assert.Equal(t, 45, policy.WindowDays)
	assert.True(t, policy.Similarity("GLD", "IAU", false).Equal(d("0.85")))
	assert.True(t, policy.SubstantiallyIdentical(d("0.85")))

	_, err = LoadWashSalePolicy(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	fallback, err := LoadWashSalePolicy("")
	require.NoError(t, err)
	assert.Equal(t, 30, fallback.WindowDays)
}
