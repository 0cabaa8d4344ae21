package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prodsense/product-sensing-bot/internal/models"
	"github.com/prodsense/product-sensing-bot/internal/store"
	"github.com/sirupsen/logrus"
)

// ErrNoLabeler reports that sentiment analysis is not configured.
var ErrNoLabeler = errors.New("no labeler configured")

// Service tracks analysis progress and runs sentiment sweeps over stored
// comments
type Service struct {
	store        store.CommentStore
	labeler      Labeler
	defaultLimit int
}

// NewService creates a new analysis service. The labeler may be nil, in
// which case only progress reads work.
func NewService(st store.CommentStore, labeler Labeler, defaultLimit int) *Service {
	return &Service{
		store:        st,
		labeler:      labeler,
		defaultLimit: defaultLimit,
	}
}

// Progress reports how far sentiment analysis has come. It is computed on
// demand; two calls without writes in between see identical numbers.
func (s *Service) Progress(ctx context.Context) (*models.AnalysisProgress, error) {
	total, err := s.store.CountComments(ctx)
	if err != nil {
		return nil, fmt.Errorf("count comments: %w", err)
	}
	analyzed, err := s.store.CountAnalyzed(ctx)
	if err != nil {
		return nil, fmt.Errorf("count analyzed comments: %w", err)
	}

	return &models.AnalysisProgress{
		TotalComments:      total,
		AnalyzedComments:   analyzed,
		UnanalyzedComments: total - analyzed,
	}, nil
}

// Analyze labels up to limit unlabeled comments. limit <= 0 falls back to
// the configured default. Failures are counted and skipped so one bad
// comment never stops the sweep.
func (s *Service) Analyze(ctx context.Context, limit int) (*models.AnalysisSummary, error) {
	if s.labeler == nil {
		return nil, ErrNoLabeler
	}
	if limit <= 0 {
		limit = s.defaultLimit
	}

	comments, err := s.store.UnlabeledComments(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list unlabeled comments: %w", err)
	}

	summary := &models.AnalysisSummary{TotalScanned: len(comments)}

	for _, c := range comments {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			summary.Skipped++
			continue
		}

		labels, err := s.labeler.LabelComment(ctx, text)
		if err != nil {
			logrus.Warnf("Failed to analyze comment %d: %v", c.ID, err)
			summary.Failed++
			continue
		}

		if err := s.store.SetCommentLabels(ctx, c.ID, labels.Sentiment, labels.AttributeDiscussed, labels.AttributeSentiment); err != nil {
			logrus.Errorf("Failed to store labels for comment %d: %v", c.ID, err)
			summary.Failed++
			continue
		}
		summary.Updated++
	}

	logrus.Infof("Analysis sweep done: %d updated, %d skipped, %d failed of %d scanned",
		summary.Updated, summary.Skipped, summary.Failed, summary.TotalScanned)

	return summary, nil
}
