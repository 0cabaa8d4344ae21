package store

import (
	"context"
	"errors"

	"github.com/prodsense/product-sensing-bot/internal/models"
)

// ErrDuplicateComment reports that a comment with the same
// (source_platform, native_comment_id) identity is already stored.
var ErrDuplicateComment = errors.New("duplicate comment")

// CommentStore is the durable home of ingested comments and selected
// channels.
type CommentStore interface {
	// InsertComment stores a new comment or returns ErrDuplicateComment.
	InsertComment(ctx context.Context, c *models.Comment) error
	// RecentComments returns comments newest first. limit <= 0 returns all.
	RecentComments(ctx context.Context, limit int) ([]models.Comment, error)
	// CommentsForProduct narrows RecentComments to one product.
	CommentsForProduct(ctx context.Context, product string, limit int) ([]models.Comment, error)
	// CommentsByID fetches the given comments; missing ids are silently absent.
	CommentsByID(ctx context.Context, ids []uint) ([]models.Comment, error)
	// UnlabeledComments returns comments without a sentiment label, newest first.
	UnlabeledComments(ctx context.Context, limit int) ([]models.Comment, error)
	// SetCommentLabels records the analysis outcome for one comment.
	SetCommentLabels(ctx context.Context, id uint, sentiment, attribute, attributeSentiment string) error
	CountComments(ctx context.Context) (int64, error)
	CountAnalyzed(ctx context.Context) (int64, error)
	// SaveSelectedChannels upserts the channels an ingestion run selected.
	SaveSelectedChannels(ctx context.Context, channels []models.ChannelCandidate) error
	// TopChannels returns stored channels for a platform by descending score.
	TopChannels(ctx context.Context, platform string, limit int) ([]models.SourceChannel, error)
	Close() error
}
