package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Schedule configuration
	IngestSchedule string // "daily" or "weekly"
	TimeZone       string

	// Products to track
	DefaultProducts []string

	// Discovery configuration
	DiscoveryLookbackDays int
	DiscoveryPostsLimit   int     // submissions sampled per product during discovery
	MaxDiscoveryResults   int     // candidates returned per platform
	WeightMentions        float64 // composite score weights, must sum to 1.0
	WeightAvgScore        float64
	WeightComments        float64

	// Ingestion configuration
	TopChannelsLimit         int // channels auto-selected per product
	MaxSubmissionsPerProduct int
	MaxCommentsPerSubmission int
	SourceRetryAttempts      int
	SourceRetryBaseDelay     time.Duration

	// Analysis configuration
	AnalysisLimit int // unlabeled comments scanned per sweep

	// Semantic index configuration
	EmbedBatchSize  int
	SearchLimit     int // default hits per search
	AnswerSourceCap int // comments fed to the generator per question

	// Database configuration
	DatabasePath string

	// Azure Storage configuration (report and index archive)
	StorageAccount   string
	StorageContainer string

	// Notification configuration
	WebhookURL        string
	NotificationEmail string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string

	// API Keys and credentials
	RedditClientID     string
	RedditClientSecret string
	RedditUserAgent    string
	YouTubeAPIKey      string
	OpenAIAPIKey       string
	OpenAIEmbedModel   string
	OpenAIChatModel    string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		Debug:          getBoolEnv("DEBUG", false),
		IngestSchedule: getEnv("INGEST_SCHEDULE", "daily"),
		TimeZone:       getEnv("TIMEZONE", "UTC"),

		DefaultProducts: getSliceEnv("DEFAULT_PRODUCTS", []string{"iPhone16"}),

		DiscoveryLookbackDays: getIntEnv("DISCOVERY_LOOKBACK_DAYS", 7),
		DiscoveryPostsLimit:   getIntEnv("DISCOVERY_POSTS_LIMIT", 100),
		MaxDiscoveryResults:   getIntEnv("MAX_DISCOVERY_RESULTS", 20),
		WeightMentions:        getFloatEnv("DISCOVERY_WEIGHT_MENTIONS", 0.6),
		WeightAvgScore:        getFloatEnv("DISCOVERY_WEIGHT_AVG_SCORE", 0.2),
		WeightComments:        getFloatEnv("DISCOVERY_WEIGHT_COMMENTS", 0.2),

		// TOP_SUBREDDITS_LIMIT is the pre-rename name, still honored.
		TopChannelsLimit:         getIntEnv("TOP_CHANNELS_LIMIT", getIntEnv("TOP_SUBREDDITS_LIMIT", 2)),
		MaxSubmissionsPerProduct: getIntEnv("MAX_SUBMISSIONS_PER_PRODUCT", 10),
		MaxCommentsPerSubmission: getIntEnv("MAX_COMMENTS_PER_SUBMISSION", 50),
		SourceRetryAttempts:      getIntEnv("SOURCE_RETRY_ATTEMPTS", 3),
		SourceRetryBaseDelay:     getDurationEnv("SOURCE_RETRY_BASE_DELAY", 2*time.Second),

		AnalysisLimit: getIntEnv("ANALYSIS_LIMIT", 100),

		EmbedBatchSize:  getIntEnv("EMBED_BATCH_SIZE", 64),
		SearchLimit:     getIntEnv("SEARCH_LIMIT", 10),
		AnswerSourceCap: getIntEnv("ANSWER_SOURCE_CAP", 10),

		DatabasePath: getEnv("DATABASE_PATH", "data/comments.db"),

		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "sensing-runs"),

		WebhookURL:        getEnv("WEBHOOK_URL", ""),
		NotificationEmail: getEnv("NOTIFICATION_EMAIL", ""),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getIntEnv("SMTP_PORT", 587),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),

		RedditClientID:     getEnv("REDDIT_CLIENT_ID", ""),
		RedditClientSecret: getEnv("REDDIT_CLIENT_SECRET", ""),
		RedditUserAgent:    getEnv("REDDIT_USER_AGENT", "product-sensing-bot/1.0"),
		YouTubeAPIKey:      getEnv("YOUTUBE_API_KEY", ""),
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		OpenAIEmbedModel:   getEnv("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
		OpenAIChatModel:    getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
	}

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.IngestSchedule != "daily" && c.IngestSchedule != "weekly" {
		return fmt.Errorf("INGEST_SCHEDULE must be 'daily' or 'weekly'")
	}

	if len(c.DefaultProducts) == 0 {
		return fmt.Errorf("DEFAULT_PRODUCTS must list at least one product")
	}

	sum := c.WeightMentions + c.WeightAvgScore + c.WeightComments
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("discovery weights must sum to 1.0, got %.3f", sum)
	}
	for _, w := range []float64{c.WeightMentions, c.WeightAvgScore, c.WeightComments} {
		if w < 0 || w > 1 {
			return fmt.Errorf("discovery weights must be in [0, 1]")
		}
	}

	for name, v := range map[string]int{
		"DISCOVERY_POSTS_LIMIT":       c.DiscoveryPostsLimit,
		"MAX_DISCOVERY_RESULTS":       c.MaxDiscoveryResults,
		"TOP_CHANNELS_LIMIT":          c.TopChannelsLimit,
		"MAX_SUBMISSIONS_PER_PRODUCT": c.MaxSubmissionsPerProduct,
		"MAX_COMMENTS_PER_SUBMISSION": c.MaxCommentsPerSubmission,
		"SOURCE_RETRY_ATTEMPTS":       c.SourceRetryAttempts,
		"EMBED_BATCH_SIZE":            c.EmbedBatchSize,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if c.NotificationEmail != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when NOTIFICATION_EMAIL is set")
		}
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
