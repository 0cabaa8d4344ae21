package models

import "time"

// Submission represents a discussion thread fetched from a source platform
type Submission struct {
	Platform     string    `json:"platform"`   // "reddit", etc.
	ID           string    `json:"id"`         // platform-native thread id
	ChannelID    string    `json:"channel_id"` // e.g. subreddit name, lowercase
	Title        string    `json:"title"`
	Author       string    `json:"author"`
	URL          string    `json:"url"`
	CreatedAt    time.Time `json:"created_at"`
	Score        int       `json:"score"` // upvotes, likes, etc.
	CommentCount int       `json:"comment_count"`
}

// ChannelMetrics holds the raw engagement signals aggregated for one
// channel during discovery, before any normalization.
type ChannelMetrics struct {
	Mentions     int     `json:"mentions"`      // submissions matching the product
	AvgScore     float64 `json:"avg_score"`     // mean submission score
	CommentCount int     `json:"comment_count"` // total comments across submissions
}

// ChannelCandidate is a ranked discussion channel produced by discovery.
// Candidates are ephemeral; a channel is only persisted once ingestion
// selects it.
type ChannelCandidate struct {
	Platform    string         `json:"platform"`
	ChannelID   string         `json:"channel_id"`
	DisplayName string         `json:"display_name"` // e.g. "r/apple"
	Metrics     ChannelMetrics `json:"metrics"`
	Score       float64        `json:"score"` // composite relevance, 0-1
}

// Comment is a single ingested user comment. The pair
// (source_platform, native_comment_id) is the identity used for
// deduplication and is enforced by a unique index.
type Comment struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	SourcePlatform     string    `gorm:"not null;uniqueIndex:idx_comments_platform_native,priority:1" json:"source_platform"`
	NativeCommentID    string    `gorm:"not null;uniqueIndex:idx_comments_platform_native,priority:2" json:"native_comment_id"`
	ProductName        string    `gorm:"index" json:"product_name"`
	BrandName          string    `json:"brand_name"`
	Text               string    `json:"text"`
	Timestamp          time.Time `gorm:"index" json:"timestamp"` // creation time on the platform
	Upvotes            int       `json:"upvotes"`
	ThreadID           string    `json:"thread_id"`
	ThreadTitle        string    `json:"thread_title"`
	SentimentLabel     string    `gorm:"index" json:"sentiment_label"` // "" until analyzed
	AttributeDiscussed string    `json:"attribute_discussed"`
	AttributeSentiment string    `json:"attribute_sentiment"`
	CreatedAt          time.Time `json:"created_at"` // ingestion time
}

// Analyzed reports whether the comment has been through sentiment analysis.
func (c *Comment) Analyzed() bool {
	return c.SentimentLabel != ""
}

// SourceChannel is a channel that ingestion selected, persisted so that
// later runs and operators can see where comments come from.
type SourceChannel struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Platform     string    `gorm:"not null;uniqueIndex:idx_source_channels_platform_channel,priority:1" json:"platform"`
	ChannelID    string    `gorm:"not null;uniqueIndex:idx_source_channels_platform_channel,priority:2" json:"channel_id"`
	DisplayName  string    `json:"display_name"`
	Score        float64   `json:"score"`
	Mentions     int       `json:"mentions"`
	AvgScore     float64   `json:"avg_score"`
	CommentCount int       `json:"comment_count"`
	SelectedAt   time.Time `json:"selected_at"`
}

// IngestionOutcome aggregates what a single ingestion call accomplished.
// Failed counts cover validation rejects and fetch errors; duplicates are
// not failures and appear in neither counter.
type IngestionOutcome struct {
	CommentsIngested  int `json:"comments_ingested"`
	CommentsFailed    int `json:"comments_failed"`
	ChannelsProcessed int `json:"channels_processed"`
}

// AnalysisProgress is a point-in-time reading derived from the comment
// store. It is never persisted.
type AnalysisProgress struct {
	TotalComments      int64 `json:"total_comments"`
	AnalyzedComments   int64 `json:"analyzed_comments"`
	UnanalyzedComments int64 `json:"unanalyzed_comments"`
}

// AnalysisSummary reports one sentiment analysis sweep over unlabeled
// comments.
type AnalysisSummary struct {
	TotalScanned int `json:"total_scanned"`
	Updated      int `json:"updated"`
	Skipped      int `json:"skipped"` // empty text, nothing to analyze
	Failed       int `json:"failed"`
}

// SearchResult pairs a stored comment with its similarity to a query.
type SearchResult struct {
	Comment         Comment `json:"comment"`
	SimilarityScore float64 `json:"similarity_score"` // cosine similarity, higher is closer
}

// Answer is the outcome of a question answering call. Sources is the
// number of comments the answer was grounded on; zero means no generation
// happened and Answer holds a fixed no-data message.
type Answer struct {
	Answer           string         `json:"answer"`
	RelevantComments []SearchResult `json:"relevant_comments"`
	Sources          int            `json:"sources"`
}

// Report summarizes a scheduled ingestion run for notification and
// archiving.
type Report struct {
	RunID       string           `json:"run_id"`
	GeneratedAt time.Time        `json:"generated_at"`
	Period      string           `json:"period"` // "daily" or "weekly"
	Products    []string         `json:"products"`
	Outcome     IngestionOutcome `json:"outcome"`
	Progress    AnalysisProgress `json:"progress"`
	Errors      []string         `json:"errors,omitempty"`
}

// Alert represents an urgent notification
type Alert struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"` // "critical", "warning", "info"
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
