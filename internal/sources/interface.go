package sources

import (
	"context"
	"time"

	"github.com/prodsense/product-sensing-bot/internal/models"
)

// SubmissionSort selects the ordering a platform applies to submission search
type SubmissionSort string

const (
	SortNew      SubmissionSort = "new"
	SortTop      SubmissionSort = "top"
	SortComments SubmissionSort = "comments"
)

// Source interface defines the contract for all content platforms
type Source interface {
	GetName() string
	IsEnabled() bool
	// ChannelDisplayName renders a channel id the way users know it on the
	// platform, e.g. "r/apple"
	ChannelDisplayName(channelID string) string
	// SearchSubmissions returns up to limit submissions in channel whose
	// content matches query. Channel "all" searches the whole platform.
	SearchSubmissions(ctx context.Context, channel, query string, sort SubmissionSort, since time.Duration, limit int) ([]models.Submission, error)
	// FetchComments returns up to limit comments under the submission,
	// shaped into comment records for product.
	FetchComments(ctx context.Context, sub models.Submission, product string, limit int) ([]models.Comment, error)
}
