package domain

import (
	"regexp"
	"strconv"
	"strings"
)

// Scores derived from an Assessment, each in [1,10].
type Scores struct {
	Legitimacy int
	Potential  int
	Overall    int
}

// ScoreAssessment maps the categorical verdict to numeric scores. Low risk
// means high potential; anything unrecognised takes the pessimistic value.
func ScoreAssessment(a Assessment) Scores {
	var s Scores
	switch normalizeVerdict(a.IsLegitimate) {
	case "yes":
		s.Legitimacy = 8
	case "maybe":
		s.Legitimacy = 5
	default:
		s.Legitimacy = 2
	}
	switch normalizeVerdict(a.RiskLevel) {
	case "low":
		s.Potential = 8
	case "medium":
		s.Potential = 5
	default:
		s.Potential = 3
	}
	s.Overall = (s.Legitimacy + s.Potential) / 2
	return s
}

func normalizeVerdict(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

var percentRe = regexp.MustCompile(`(\d+(?:\.\d+)?)%`)

// ParsePercentage extracts the first "NN%" or "NN.N%" figure.
func ParsePercentage(s string) (float64, bool) {
	m := percentRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// TokenSymbolFor guesses a ticker: short project names are used upper-cased.
func TokenSymbolFor(project string) string {
	project = strings.TrimSpace(project)
	if project == "" || len(project) > 5 {
		return ""
	}
	return strings.ToUpper(project)
}

// BlockchainFor takes the first word of the related crypto name.
func BlockchainFor(project string) string {
	f := strings.Fields(project)
	if len(f) == 0 {
		return ""
	}
	return f[0]
}

// DiscoveryDescription is the project description for posts that create a project.
func DiscoveryDescription(text string) string {
	r := []rune(text)
	if len(r) > 100 {
		r = r[:100]
	}
	return "Project discovered via Twitter analysis: " + string(r) + "..."
}

// HasTokenomics reports whether the assessment carries tokenomics hints.
func (a Assessment) HasTokenomics() bool {
	return strings.TrimSpace(a.TokenUtility) != "" || strings.TrimSpace(a.AirdropPercentage) != ""
}

// ProjectName is the related crypto or "Unknown".
func (a Assessment) ProjectName() string {
	if n := strings.TrimSpace(a.RelatedCrypto); n != "" {
		return n
	}
	return "Unknown"
}
