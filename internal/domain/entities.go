package domain

import (
	"context"
	"time"
)

// Context aliases the std context so ports read the same everywhere.
type Context = context.Context

// KVStore is the persistence port used for credential pool state and cached
// analyses. Get returns ErrNotFound when the key is absent. Put replaces the
// whole value; implementations must never leave a partially written value.
//
// Update is an atomic read-modify-write of one key, serialised against every
// other Update on the same key, including from other processes sharing the
// store. fn gets the current value (found=false when absent) and returns the
// replacement; a nil replacement leaves the value untouched. fn may run more
// than once.
type KVStore interface {
	Get(ctx Context, key string) ([]byte, error)
	Put(ctx Context, key string, value []byte) error
	Delete(ctx Context, key string) error
	Keys(ctx Context, prefix string) ([]string, error)
	Update(ctx Context, key string, fn UpdateFunc) error
}

// UpdateFunc computes a replacement value inside KVStore.Update.
type UpdateFunc func(current []byte, found bool) ([]byte, error)

// Message is one chat turn sent to the model backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the inbound completion request. Model is a logical name
// ("smart", "fast", ...) or a literal concrete model id.
type ChatRequest struct {
	Messages    []Message
	Model       string
	Temperature float64
	MaxTokens   int
	// ExpectJSON makes a non-JSON content body a MalformedResponse.
	ExpectJSON bool
}

// Completion is a successful backend answer.
type Completion struct {
	ID       string   `json:"id"`
	Model    string   `json:"model"`
	Content  string   `json:"content"`
	Usage    Usage    `json:"usage"`
	Raw      []byte   `json:"-"`
	Attempts int      `json:"attempts"`
	Tried    []string `json:"tried,omitempty"`
}

// Usage mirrors the token accounting block of an OpenAI-style response.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ProjectFields describes a crypto project submitted for analysis. The first
// four fields form the cache identity.
type ProjectFields struct {
	ProjectName        string `json:"project_name" validate:"required,max=200"`
	TokenSymbol        string `json:"token_symbol,omitempty"`
	WebsiteURL         string `json:"website_url,omitempty"`
	TwitterHandle      string `json:"twitter_handle,omitempty"`
	Description        string `json:"description,omitempty"`
	TeamInfo           string `json:"team_info,omitempty"`
	FoundedDate        string `json:"founded_date,omitempty"`
	Blockchain         string `json:"blockchain,omitempty"`
	PreviousProjects   string `json:"previous_projects,omitempty"`
	Investors          string `json:"investors,omitempty"`
	Partnerships       string `json:"partnerships,omitempty"`
	FundingRounds      string `json:"funding_rounds,omitempty"`
	TotalFunding       string `json:"total_funding,omitempty"`
	TotalSupply        string `json:"total_supply,omitempty"`
	CirculatingSupply  string `json:"circulating_supply,omitempty"`
	TokenDistribution  string `json:"token_distribution,omitempty"`
	VestingSchedule    string `json:"vesting_schedule,omitempty"`
	TokenUtility       string `json:"token_utility,omitempty"`
	AirdropPercentage  string `json:"airdrop_percentage,omitempty"`
	CurrentPhase       string `json:"current_phase,omitempty"`
	UpcomingMilestones string `json:"upcoming_milestones,omitempty"`
	RecentAchievements string `json:"recent_achievements,omitempty"`
	TwitterFollowers   string `json:"twitter_followers,omitempty"`
	EngagementRate     string `json:"engagement_rate,omitempty"`
	TweetFrequency     string `json:"tweet_frequency,omitempty"`
	CommunitySize      string `json:"community_size,omitempty"`
}

// Analysis source values.
const (
	SourceCache = "cache"
	SourceAPI   = "api"
)

// AnalysisResult is returned by the project analysis entry point.
type AnalysisResult struct {
	Success  bool           `json:"success"`
	Analysis map[string]any `json:"analysis,omitempty"`
	Source   string         `json:"source,omitempty"`
	Model    string         `json:"model,omitempty"`
	Error    string         `json:"error,omitempty"`
	Kind     ErrorKind      `json:"kind,omitempty"`
}

// Author is the account that published a post.
type Author struct {
	Name      string `json:"name"`
	Username  string `json:"username"`
	Followers int    `json:"followers"`
	Verified  bool   `json:"verified"`
}

// Post is a social-media post that may announce an airdrop.
type Post struct {
	ID       string    `json:"id"`
	Text     string    `json:"text"`
	URL      string    `json:"tweet_url"`
	Author   Author    `json:"author"`
	Score    float64   `json:"score"`
	PostedAt time.Time `json:"created_at"`
}

// PostSource yields candidate posts. Scraping mechanics live behind it.
type PostSource interface {
	FetchPosts(ctx Context, limit int) ([]Post, error)
}

// Assessment is the model's structured verdict on a single post.
type Assessment struct {
	IsLegitimate      string   `json:"is_legitimate"`
	RelatedCrypto     string   `json:"related_crypto"`
	RequiredAction    string   `json:"required_action"`
	RiskLevel         string   `json:"risk_level"`
	RiskExplanation   string   `json:"risk_explanation"`
	EstimatedValue    string   `json:"estimated_value"`
	ClaimSteps        []string `json:"claim_steps"`
	AdditionalNotes   string   `json:"additional_notes"`
	TokenUtility      string   `json:"token_utility,omitempty"`
	AirdropPercentage string   `json:"airdrop_percentage,omitempty"`
}

// AnalyzedPost pairs a post with its assessment.
type AnalyzedPost struct {
	Post       Post       `json:"post"`
	Assessment Assessment `json:"assessment"`
	RawJSON    []byte     `json:"-"`
	Model      string     `json:"model"`
	AnalyzedAt time.Time  `json:"analyzed_at"`
}

// ProjectSummary is a read model of a stored project and its latest rating.
type ProjectSummary struct {
	ID              string    `json:"id"`
	ProjectName     string    `json:"project_name"`
	TokenSymbol     string    `json:"token_symbol,omitempty"`
	TwitterHandle   string    `json:"twitter_handle,omitempty"`
	LegitimacyScore int       `json:"legitimacy_score"`
	PotentialScore  int       `json:"potential_score"`
	OverallRating   int       `json:"overall_rating"`
	RiskLevel       string    `json:"risk_level"`
	AnalyzedAt      time.Time `json:"analyzed_at"`
}

// StoreOutcome reports what a Save call wrote.
type StoreOutcome struct {
	ProjectID        string
	ProjectCreated   bool
	PostDuplicate    bool
	AnalysisID       string
	TokenomicsStored bool
}

// AirdropRepository persists analysed posts.
type AirdropRepository interface {
	Save(ctx Context, a AnalyzedPost) (StoreOutcome, error)
	ListLatest(ctx Context, limit int) ([]ProjectSummary, error)
}

// AnalysisPublisher emits an event for each stored analysis.
type AnalysisPublisher interface {
	PublishAnalysis(ctx Context, a AnalyzedPost, out StoreOutcome) error
}

// ChatCompleter runs one orchestrated completion.
type ChatCompleter interface {
	ChatCompletion(ctx Context, req ChatRequest) (*Completion, error)
}
