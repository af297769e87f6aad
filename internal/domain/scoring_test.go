package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreAssessment(t *testing.T) {
	tests := []struct {
		legit, risk string
		want        Scores
	}{
		{"Yes", "Low", Scores{8, 8, 8}},
		{"yes ", "Medium", Scores{8, 5, 6}},
		{"Maybe", "High", Scores{5, 3, 4}},
		{"No", "Low", Scores{2, 8, 5}},
		{"", "", Scores{2, 3, 2}},
	}
	for _, tt := range tests {
		got := ScoreAssessment(Assessment{IsLegitimate: tt.legit, RiskLevel: tt.risk})
		assert.Equal(t, tt.want, got, "%s/%s", tt.legit, tt.risk)
	}
}

func TestParsePercentage(t *testing.T) {
	v, ok := ParsePercentage("about 12.5% of supply, maybe 15%")
	assert.True(t, ok)
	assert.InDelta(t, 12.5, v, 1e-9)

	_, ok = ParsePercentage("unknown")
	assert.False(t, ok)
}

func TestProjectHelpers(t *testing.T) {
	assert.Equal(t, "ZRO", TokenSymbolFor("zro"))
	assert.Empty(t, TokenSymbolFor("LayerZero"))
	assert.Equal(t, "Solana", BlockchainFor("Solana Saga"))
	assert.Empty(t, BlockchainFor("  "))

	long := "x"
	for len(long) < 150 {
		long += "y"
	}
	d := DiscoveryDescription(long)
	assert.Equal(t, "Project discovered via Twitter analysis: "+long[:100]+"...", d)

	assert.Equal(t, "Unknown", Assessment{}.ProjectName())
	assert.True(t, Assessment{AirdropPercentage: "5%"}.HasTokenomics())
	assert.False(t, Assessment{}.HasTokenomics())
}
