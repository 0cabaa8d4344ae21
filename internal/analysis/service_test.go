package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prodsense/product-sensing-bot/internal/models"
)

// fakeStore is a minimal in-memory CommentStore for analysis tests
type fakeStore struct {
	comments []models.Comment
	labelErr error
}

func (f *fakeStore) InsertComment(ctx context.Context, c *models.Comment) error {
	c.ID = uint(len(f.comments) + 1)
	f.comments = append(f.comments, *c)
	return nil
}

func (f *fakeStore) RecentComments(ctx context.Context, limit int) ([]models.Comment, error) {
	return f.comments, nil
}

func (f *fakeStore) CommentsForProduct(ctx context.Context, product string, limit int) ([]models.Comment, error) {
	return nil, nil
}

func (f *fakeStore) CommentsByID(ctx context.Context, ids []uint) ([]models.Comment, error) {
	return nil, nil
}

func (f *fakeStore) UnlabeledComments(ctx context.Context, limit int) ([]models.Comment, error) {
	var out []models.Comment
	for _, c := range f.comments {
		if c.Analyzed() {
			continue
		}
		out = append(out, c)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) SetCommentLabels(ctx context.Context, id uint, sentiment, attribute, attributeSentiment string) error {
	if f.labelErr != nil {
		return f.labelErr
	}
	for i := range f.comments {
		if f.comments[i].ID == id {
			f.comments[i].SentimentLabel = sentiment
			f.comments[i].AttributeDiscussed = attribute
			f.comments[i].AttributeSentiment = attributeSentiment
			return nil
		}
	}
	return errors.New("comment not found")
}

func (f *fakeStore) CountComments(ctx context.Context) (int64, error) {
	return int64(len(f.comments)), nil
}

func (f *fakeStore) CountAnalyzed(ctx context.Context) (int64, error) {
	var n int64
	for _, c := range f.comments {
		if c.Analyzed() {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) SaveSelectedChannels(ctx context.Context, channels []models.ChannelCandidate) error {
	return nil
}

func (f *fakeStore) TopChannels(ctx context.Context, platform string, limit int) ([]models.SourceChannel, error) {
	return nil, nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) add(text, label string) {
	f.comments = append(f.comments, models.Comment{
		ID:              uint(len(f.comments) + 1),
		SourcePlatform:  "reddit",
		NativeCommentID: time.Now().Format("150405.000000"),
		ProductName:     "iPhone16",
		Text:            text,
		SentimentLabel:  label,
	})
}

type fakeLabeler struct {
	errFor map[string]error
	calls  int
}

func (f *fakeLabeler) LabelComment(ctx context.Context, text string) (*Labels, error) {
	f.calls++
	if err, ok := f.errFor[text]; ok {
		return nil, err
	}
	return &Labels{Sentiment: "positive", AttributeDiscussed: "battery life", AttributeSentiment: "positive"}, nil
}

func TestProgress(t *testing.T) {
	st := &fakeStore{}
	st.add("one", "positive")
	st.add("two", "")
	st.add("three", "")

	service := NewService(st, nil, 100)
	progress, err := service.Progress(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(3), progress.TotalComments)
	assert.Equal(t, int64(1), progress.AnalyzedComments)
	assert.Equal(t, int64(2), progress.UnanalyzedComments)
}

func TestProgress_Empty(t *testing.T) {
	service := NewService(&fakeStore{}, nil, 100)

	progress, err := service.Progress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), progress.TotalComments)
	assert.Equal(t, int64(0), progress.UnanalyzedComments)
}

func TestAnalyze_LabelsUnanalyzedComments(t *testing.T) {
	st := &fakeStore{}
	st.add("already done", "negative")
	st.add("battery is great", "")
	st.add("really solid phone", "")

	labeler := &fakeLabeler{}
	service := NewService(st, labeler, 100)

	summary, err := service.Analyze(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.TotalScanned)
	assert.Equal(t, 2, summary.Updated)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 2, labeler.calls)

	// The previously labeled comment was not touched
	assert.Equal(t, "negative", st.comments[0].SentimentLabel)
	assert.Equal(t, "positive", st.comments[1].SentimentLabel)
	assert.Equal(t, "battery life", st.comments[1].AttributeDiscussed)
	assert.Equal(t, "positive", st.comments[2].SentimentLabel)
}

func TestAnalyze_SkipsEmptyText(t *testing.T) {
	st := &fakeStore{}
	st.add("   ", "")
	st.add("good phone", "")

	labeler := &fakeLabeler{}
	service := NewService(st, labeler, 100)

	summary, err := service.Analyze(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.TotalScanned)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, labeler.calls)
}

func TestAnalyze_LabelerFailureIsolated(t *testing.T) {
	st := &fakeStore{}
	st.add("this one fails", "")
	st.add("this one works", "")

	labeler := &fakeLabeler{errFor: map[string]error{
		"this one fails": errors.New("model refused"),
	}}
	service := NewService(st, labeler, 100)

	summary, err := service.Analyze(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, "", st.comments[0].SentimentLabel)
	assert.Equal(t, "positive", st.comments[1].SentimentLabel)
}

func TestAnalyze_StoreFailureCounted(t *testing.T) {
	st := &fakeStore{labelErr: errors.New("db locked")}
	st.add("good phone", "")

	service := NewService(st, &fakeLabeler{}, 100)

	summary, err := service.Analyze(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Updated)
	assert.Equal(t, 1, summary.Failed)
}

func TestAnalyze_HonorsLimit(t *testing.T) {
	st := &fakeStore{}
	st.add("one", "")
	st.add("two", "")
	st.add("three", "")

	service := NewService(st, &fakeLabeler{}, 100)

	summary, err := service.Analyze(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalScanned)
	assert.Equal(t, 2, summary.Updated)
}

func TestAnalyze_DefaultLimit(t *testing.T) {
	st := &fakeStore{}
	st.add("one", "")
	st.add("two", "")

	service := NewService(st, &fakeLabeler{}, 1)

	summary, err := service.Analyze(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalScanned)
}

func TestAnalyze_NoLabeler(t *testing.T) {
	service := NewService(&fakeStore{}, nil, 100)

	_, err := service.Analyze(context.Background(), 0)
	assert.ErrorIs(t, err, ErrNoLabeler)
}
