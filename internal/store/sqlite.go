package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prodsense/product-sensing-bot/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLiteStore implements CommentStore on an embedded SQLite database
type SQLiteStore struct {
	db *gorm.DB
}

var _ CommentStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens the database at path, creating it and running
// migrations if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(&models.Comment{}, &models.SourceChannel{}); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	logrus.Infof("SQLite store ready at %s", path)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) InsertComment(ctx context.Context, c *models.Comment) error {
	if err := models.ValidateComment(c); err != nil {
		return err
	}
	if c.BrandName == "" {
		c.BrandName = "unknown"
	}

	var count int64
	err := s.db.WithContext(ctx).Model(&models.Comment{}).
		Where("source_platform = ? AND native_comment_id = ?", c.SourcePlatform, c.NativeCommentID).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("check duplicate: %w", err)
	}
	if count > 0 {
		return ErrDuplicateComment
	}

	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		// A concurrent run can land between the check and the insert; the
		// unique index has the final word.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateComment
		}
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecentComments(ctx context.Context, limit int) ([]models.Comment, error) {
	var comments []models.Comment
	q := s.db.WithContext(ctx).Order("timestamp DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&comments).Error; err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

func (s *SQLiteStore) CommentsForProduct(ctx context.Context, product string, limit int) ([]models.Comment, error) {
	var comments []models.Comment
	q := s.db.WithContext(ctx).
		Where("product_name = ?", product).
		Order("timestamp DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&comments).Error; err != nil {
		return nil, fmt.Errorf("list comments for product: %w", err)
	}
	return comments, nil
}

func (s *SQLiteStore) CommentsByID(ctx context.Context, ids []uint) ([]models.Comment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var comments []models.Comment
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&comments).Error; err != nil {
		return nil, fmt.Errorf("fetch comments by id: %w", err)
	}
	return comments, nil
}

func (s *SQLiteStore) UnlabeledComments(ctx context.Context, limit int) ([]models.Comment, error) {
	var comments []models.Comment
	q := s.db.WithContext(ctx).
		Where("sentiment_label = ''").
		Order("timestamp DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&comments).Error; err != nil {
		return nil, fmt.Errorf("list unlabeled comments: %w", err)
	}
	return comments, nil
}

func (s *SQLiteStore) SetCommentLabels(ctx context.Context, id uint, sentiment, attribute, attributeSentiment string) error {
	res := s.db.WithContext(ctx).Model(&models.Comment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"sentiment_label":     sentiment,
			"attribute_discussed": attribute,
			"attribute_sentiment": attributeSentiment,
		})
	if res.Error != nil {
		return fmt.Errorf("update comment labels: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("comment %d not found", id)
	}
	return nil
}

func (s *SQLiteStore) CountComments(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Comment{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count comments: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) CountAnalyzed(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Comment{}).
		Where("sentiment_label <> ''").
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count analyzed comments: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) SaveSelectedChannels(ctx context.Context, channels []models.ChannelCandidate) error {
	if len(channels) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([]models.SourceChannel, 0, len(channels))
	for _, ch := range channels {
		rows = append(rows, models.SourceChannel{
			Platform:     ch.Platform,
			ChannelID:    ch.ChannelID,
			DisplayName:  ch.DisplayName,
			Score:        ch.Score,
			Mentions:     ch.Metrics.Mentions,
			AvgScore:     ch.Metrics.AvgScore,
			CommentCount: ch.Metrics.CommentCount,
			SelectedAt:   now,
		})
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "platform"}, {Name: "channel_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "score", "mentions", "avg_score", "comment_count", "selected_at"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("save selected channels: %w", err)
	}
	return nil
}

func (s *SQLiteStore) TopChannels(ctx context.Context, platform string, limit int) ([]models.SourceChannel, error) {
	var rows []models.SourceChannel
	q := s.db.WithContext(ctx).
		Where("platform = ?", platform).
		Order("score DESC, channel_id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	return rows, nil
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
