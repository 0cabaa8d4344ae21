package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prodsense/product-sensing-bot/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "comments.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testComment(platform, nativeID, product string, ts time.Time) *models.Comment {
	return &models.Comment{
		SourcePlatform:  platform,
		NativeCommentID: nativeID,
		ProductName:     product,
		BrandName:       product,
		Text:            "The battery easily lasts two days",
		Timestamp:       ts,
		Upvotes:         5,
		ThreadID:        "p1",
		ThreadTitle:     "First impressions",
	}
}

func TestSQLiteStore_InsertAndRetrieve(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := testComment("reddit", "c1", "iPhone16", ts)
	require.NoError(t, store.InsertComment(ctx, c))
	assert.NotZero(t, c.ID)

	comments, err := store.RecentComments(ctx, 0)
	require.NoError(t, err)
	require.Len(t, comments, 1)

	got := comments[0]
	assert.Equal(t, "reddit", got.SourcePlatform)
	assert.Equal(t, "c1", got.NativeCommentID)
	assert.Equal(t, "iPhone16", got.ProductName)
	assert.Equal(t, "The battery easily lasts two days", got.Text)
	assert.Equal(t, 5, got.Upvotes)
	assert.WithinDuration(t, ts, got.Timestamp, time.Second)
	assert.False(t, got.Analyzed())
}

func TestSQLiteStore_InsertComment_Duplicate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.InsertComment(ctx, testComment("reddit", "c1", "iPhone16", ts)))

	// Same identity, even with different content
	dup := testComment("reddit", "c1", "iPhone16", ts)
	dup.Text = "completely different text"
	err := store.InsertComment(ctx, dup)
	assert.ErrorIs(t, err, ErrDuplicateComment)

	// Same native id on another platform is a different comment
	require.NoError(t, store.InsertComment(ctx, testComment("youtube", "c1", "iPhone16", ts)))

	count, err := store.CountComments(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestSQLiteStore_InsertComment_Validation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	c := testComment("reddit", "c1", "iPhone16", time.Now())
	c.Text = ""

	err := store.InsertComment(ctx, c)
	require.Error(t, err)

	var validationErr *models.ValidationError
	assert.True(t, errors.As(err, &validationErr))

	count, err := store.CountComments(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSQLiteStore_InsertComment_DefaultsBrand(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	c := testComment("reddit", "c1", "iPhone16", time.Now())
	c.BrandName = ""
	require.NoError(t, store.InsertComment(ctx, c))

	comments, err := store.RecentComments(ctx, 0)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "unknown", comments[0].BrandName)
}

func TestSQLiteStore_RecentComments_OrderAndLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.InsertComment(ctx, testComment("reddit", "c1", "iPhone16", base)))
	require.NoError(t, store.InsertComment(ctx, testComment("reddit", "c2", "iPhone16", base.Add(2*time.Hour))))
	require.NoError(t, store.InsertComment(ctx, testComment("reddit", "c3", "iPhone16", base.Add(time.Hour))))

	comments, err := store.RecentComments(ctx, 0)
	require.NoError(t, err)
	require.Len(t, comments, 3)
	assert.Equal(t, "c2", comments[0].NativeCommentID)
	assert.Equal(t, "c3", comments[1].NativeCommentID)
	assert.Equal(t, "c1", comments[2].NativeCommentID)

	limited, err := store.RecentComments(ctx, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "c2", limited[0].NativeCommentID)
	assert.Equal(t, "c3", limited[1].NativeCommentID)
}

func TestSQLiteStore_CommentsForProduct(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.InsertComment(ctx, testComment("reddit", "c1", "iPhone16", base)))
	require.NoError(t, store.InsertComment(ctx, testComment("reddit", "c2", "PixelWatch", base.Add(time.Hour))))
	require.NoError(t, store.InsertComment(ctx, testComment("reddit", "c3", "iPhone16", base.Add(2*time.Hour))))

	comments, err := store.CommentsForProduct(ctx, "iPhone16", 0)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "c3", comments[0].NativeCommentID)
	assert.Equal(t, "c1", comments[1].NativeCommentID)

	none, err := store.CommentsForProduct(ctx, "GalaxyFold", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteStore_CommentsByID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	first := testComment("reddit", "c1", "iPhone16", base)
	second := testComment("reddit", "c2", "iPhone16", base)
	require.NoError(t, store.InsertComment(ctx, first))
	require.NoError(t, store.InsertComment(ctx, second))

	comments, err := store.CommentsByID(ctx, []uint{first.ID, 9999})
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "c1", comments[0].NativeCommentID)

	empty, err := store.CommentsByID(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSQLiteStore_LabelsAndCounts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	first := testComment("reddit", "c1", "iPhone16", base)
	second := testComment("reddit", "c2", "iPhone16", base.Add(time.Hour))
	third := testComment("reddit", "c3", "iPhone16", base.Add(2*time.Hour))
	require.NoError(t, store.InsertComment(ctx, first))
	require.NoError(t, store.InsertComment(ctx, second))
	require.NoError(t, store.InsertComment(ctx, third))

	require.NoError(t, store.SetCommentLabels(ctx, second.ID, "positive", "battery life", "positive"))

	unlabeled, err := store.UnlabeledComments(ctx, 0)
	require.NoError(t, err)
	require.Len(t, unlabeled, 2)
	assert.Equal(t, "c3", unlabeled[0].NativeCommentID)
	assert.Equal(t, "c1", unlabeled[1].NativeCommentID)

	total, err := store.CountComments(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	analyzed, err := store.CountAnalyzed(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), analyzed)

	labeled, err := store.CommentsByID(ctx, []uint{second.ID})
	require.NoError(t, err)
	require.Len(t, labeled, 1)
	assert.Equal(t, "positive", labeled[0].SentimentLabel)
	assert.Equal(t, "battery life", labeled[0].AttributeDiscussed)
	assert.True(t, labeled[0].Analyzed())
}

func TestSQLiteStore_SetCommentLabels_NotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.SetCommentLabels(context.Background(), 42, "positive", "general", "positive")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLiteStore_SaveSelectedChannels_Upsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	channels := []models.ChannelCandidate{
		{
			Platform:    "reddit",
			ChannelID:   "apple",
			DisplayName: "r/apple",
			Metrics:     models.ChannelMetrics{Mentions: 12, AvgScore: 40, CommentCount: 300},
			Score:       0.91,
		},
		{
			Platform:    "reddit",
			ChannelID:   "iphone",
			DisplayName: "r/iphone",
			Metrics:     models.ChannelMetrics{Mentions: 8, AvgScore: 25, CommentCount: 150},
			Score:       0.55,
		},
	}
	require.NoError(t, store.SaveSelectedChannels(ctx, channels))

	// Re-selecting a known channel updates it in place
	channels[1].Score = 0.97
	channels[1].Metrics.Mentions = 20
	require.NoError(t, store.SaveSelectedChannels(ctx, channels[1:]))

	top, err := store.TopChannels(ctx, "reddit", 0)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "iphone", top[0].ChannelID)
	assert.Equal(t, 0.97, top[0].Score)
	assert.Equal(t, 20, top[0].Mentions)
	assert.Equal(t, "apple", top[1].ChannelID)

	limited, err := store.TopChannels(ctx, "reddit", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "iphone", limited[0].ChannelID)

	other, err := store.TopChannels(ctx, "youtube", 0)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSQLiteStore_SaveSelectedChannels_Empty(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.SaveSelectedChannels(context.Background(), nil))
}
