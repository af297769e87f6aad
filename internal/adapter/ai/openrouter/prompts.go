package openrouter

import (
	"strings"

	"github.com/fairyhunter13/airdrop-analyzer/internal/domain"
)

const (
	projectAnalysisSystem = "You are an expert cryptocurrency analyst specializing in tokenomics, blockchain technology, and investment analysis. " +
		"You have deep experience evaluating early-stage crypto projects and airdrops. " +
		"Respond only with a valid JSON object based on the data provided."
	textAnalysisSystem = "You are an expert cryptocurrency analyst specializing in analyzing airdrops, tokenomics, and crypto projects."
	codeSystem         = "You are an expert programmer specialized in blockchain and cryptocurrency technologies."
	scrapeAssistSystem = "You are an expert in web scraping, data extraction, and cryptocurrency information retrieval. " +
		"Help the user with strategic advice for scraping crypto-related information efficiently."
)

// projectInstructions closes every project analysis prompt.
const projectInstructions = `Conduct a thorough analysis of this crypto project focusing on:

1. BACKGROUND CHECK: legitimacy of the team, previous projects, red flags in their history.
2. INVESTOR ANALYSIS: quality and credibility of investors and partners, notable VCs or established crypto backers.
3. TOKENOMICS ASSESSMENT: distribution fairness, supply mechanics, inflation and the utility model.
4. ROADMAP EVALUATION: feasibility, progress against promises, likelihood of meeting future milestones.
5. AIRDROP POTENTIAL: likelihood of an airdrop, potential value, qualification requirements, community allocation.
6. RISK FACTORS: regulatory concerns, competition, centralization and technical challenges.
7. INVESTMENT OUTLOOK: short and long-term growth potential based on fundamentals, not hype.

Structure your analysis as a JSON object with the following fields:
- legitimacy_score (1-10)
- team_assessment (text)
- investor_quality (text)
- tokenomics_rating (1-10 with explanation)
- roadmap_feasibility (1-10 with explanation)
- airdrop_likelihood (percentage)
- estimated_airdrop_value (range in USD)
- primary_risks (array of risk factors)
- growth_potential (text)
- recommendation (text)
- detailed_analysis (comprehensive text)`

type promptLine struct {
	label, value, missing string
}

// ProjectPrompt renders the user message for a project analysis.
func ProjectPrompt(f domain.ProjectFields) string {
	sections := []struct {
		title string
		lines []promptLine
	}{
		{"", []promptLine{
			{"Project Name", f.ProjectName, "Unknown"},
			{"Token Symbol", f.TokenSymbol, "Unknown"},
			{"Description", f.Description, "No description available"},
			{"Website", f.WebsiteURL, "Not provided"},
			{"Twitter", f.TwitterHandle, "Not provided"},
		}},
		{"Project Background", []promptLine{
			{"Team", f.TeamInfo, "Limited information available"},
			{"Founded", f.FoundedDate, "Unknown"},
			{"Blockchain", f.Blockchain, "Unknown"},
			{"Previous Projects", f.PreviousProjects, "No information"},
		}},
		{"Backing & Investors", []promptLine{
			{"Investors", f.Investors, "No information available"},
			{"Partnerships", f.Partnerships, "No information available"},
			{"Funding Rounds", f.FundingRounds, "No information available"},
			{"Total Funding", f.TotalFunding, "Unknown"},
		}},
		{"Tokenomics", []promptLine{
			{"Total Supply", f.TotalSupply, "Unknown"},
			{"Circulating Supply", f.CirculatingSupply, "Unknown"},
			{"Token Distribution", f.TokenDistribution, "No information available"},
			{"Vesting Schedule", f.VestingSchedule, "No information available"},
			{"Token Utility", f.TokenUtility, "Unknown"},
			{"Airdrop Percentage", f.AirdropPercentage, "Unknown"},
		}},
		{"Roadmap", []promptLine{
			{"Current Phase", f.CurrentPhase, "Unknown"},
			{"Upcoming Milestones", f.UpcomingMilestones, "No information available"},
			{"Recent Achievements", f.RecentAchievements, "No information available"},
		}},
		{"Social Statistics", []promptLine{
			{"Twitter Followers", f.TwitterFollowers, "Unknown"},
			{"Engagement Rate", f.EngagementRate, "Unknown"},
			{"Tweet Frequency", f.TweetFrequency, "Unknown"},
			{"Community Size", f.CommunitySize, "Unknown"},
		}},
	}

	var b strings.Builder
	for _, s := range sections {
		if s.title != "" {
			b.WriteString("## ")
			b.WriteString(s.title)
			b.WriteString("\n")
		}
		for _, l := range s.lines {
			v := strings.TrimSpace(l.value)
			if v == "" {
				v = l.missing
			}
			b.WriteString(l.label)
			b.WriteString(": ")
			b.WriteString(v)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString(projectInstructions)
	return b.String()
}

func withInstruction(system, extra string) string {
	if extra = strings.TrimSpace(extra); extra != "" {
		return system + " " + extra
	}
	return system
}
