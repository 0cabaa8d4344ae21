package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/prodsense/product-sensing-bot/internal/models"
	"github.com/sirupsen/logrus"
)

const youTubeAPIURL = "https://www.googleapis.com/youtube/v3"

// YouTubeSource implements YouTube Data API source. Channels are native
// YouTube channels, submissions are videos and comments come from each
// video's top level comment threads.
type YouTubeSource struct {
	apiKey        string
	client        *resty.Client
	apiURL        string
	retryAttempts int
	retryBase     time.Duration
}

type youTubeSearchResponse struct {
	Items []youTubeVideo `json:"items"`
}

type youTubeVideo struct {
	ID struct {
		VideoID string `json:"videoId"`
	} `json:"id"`
	Snippet struct {
		Title        string `json:"title"`
		ChannelID    string `json:"channelId"`
		ChannelTitle string `json:"channelTitle"`
		PublishedAt  string `json:"publishedAt"`
	} `json:"snippet"`
}

type youTubeVideosResponse struct {
	Items []youTubeVideoStats `json:"items"`
}

type youTubeVideoStats struct {
	ID         string `json:"id"`
	Statistics struct {
		// The statistics API reports counts as strings.
		LikeCount    string `json:"likeCount"`
		CommentCount string `json:"commentCount"`
	} `json:"statistics"`
}

type youTubeCommentsResponse struct {
	Items []youTubeComment `json:"items"`
}

type youTubeComment struct {
	ID      string `json:"id"`
	Snippet struct {
		TopLevelComment struct {
			Snippet struct {
				TextDisplay       string `json:"textDisplay"`
				AuthorDisplayName string `json:"authorDisplayName"`
				PublishedAt       string `json:"publishedAt"`
				LikeCount         int    `json:"likeCount"`
			} `json:"snippet"`
		} `json:"topLevelComment"`
	} `json:"snippet"`
}

// NewYouTubeSource creates a new YouTube source
func NewYouTubeSource(apiKey string, retryAttempts int, retryBase time.Duration) *YouTubeSource {
	if retryAttempts < 1 {
		retryAttempts = 1
	}
	return &YouTubeSource{
		apiKey: apiKey,
		client: resty.New().
			SetTimeout(30 * time.Second).
			SetHeader("User-Agent", "product-sensing-bot/1.0"),
		apiURL:        youTubeAPIURL,
		retryAttempts: retryAttempts,
		retryBase:     retryBase,
	}
}

func (y *YouTubeSource) GetName() string {
	return "youtube"
}

func (y *YouTubeSource) IsEnabled() bool {
	return y.apiKey != ""
}

func (y *YouTubeSource) ChannelDisplayName(channelID string) string {
	return "youtube.com/channel/" + channelID
}

func (y *YouTubeSource) SearchSubmissions(ctx context.Context, channel, query string, sort SubmissionSort, since time.Duration, limit int) ([]models.Submission, error) {
	if !y.IsEnabled() {
		logrus.Debug("YouTube source disabled - missing API key")
		return nil, nil
	}
	if limit <= 0 || limit > 50 {
		limit = 50
	}

	searchURL := fmt.Sprintf("%s/search?part=snippet&type=video&q=%s&order=%s&maxResults=%d&key=%s",
		y.apiURL, url.QueryEscape(query), youTubeOrder(sort), limit, y.apiKey)
	if since > 0 {
		searchURL += "&publishedAfter=" + url.QueryEscape(time.Now().Add(-since).UTC().Format(time.RFC3339))
	}
	if channel != "all" {
		searchURL += "&channelId=" + url.QueryEscape(channel)
	}

	var searchResp youTubeSearchResponse
	if err := y.getJSON(ctx, searchURL, &searchResp); err != nil {
		return nil, err
	}
	if len(searchResp.Items) == 0 {
		return nil, nil
	}

	stats, err := y.videoStats(ctx, searchResp.Items)
	if err != nil {
		return nil, err
	}

	submissions := make([]models.Submission, 0, len(searchResp.Items))
	for _, video := range searchResp.Items {
		if video.ID.VideoID == "" {
			continue
		}

		publishedAt, err := time.Parse(time.RFC3339, video.Snippet.PublishedAt)
		if err != nil {
			logrus.Errorf("Failed to parse YouTube timestamp: %v", err)
			continue
		}

		st := stats[video.ID.VideoID]
		submissions = append(submissions, models.Submission{
			Platform:     "youtube",
			ID:           video.ID.VideoID,
			ChannelID:    video.Snippet.ChannelID,
			Title:        video.Snippet.Title,
			Author:       video.Snippet.ChannelTitle,
			URL:          fmt.Sprintf("https://www.youtube.com/watch?v=%s", video.ID.VideoID),
			CreatedAt:    publishedAt.UTC(),
			Score:        st.likes,
			CommentCount: st.comments,
		})
	}

	return submissions, nil
}

type youTubeCounts struct {
	likes    int
	comments int
}

// videoStats resolves like and comment counts for the found videos. The
// search endpoint does not carry statistics, so this is a second call.
func (y *YouTubeSource) videoStats(ctx context.Context, videos []youTubeVideo) (map[string]youTubeCounts, error) {
	ids := make([]string, 0, len(videos))
	for _, v := range videos {
		if v.ID.VideoID != "" {
			ids = append(ids, v.ID.VideoID)
		}
	}
	if len(ids) == 0 {
		return map[string]youTubeCounts{}, nil
	}

	statsURL := fmt.Sprintf("%s/videos?part=statistics&id=%s&key=%s",
		y.apiURL, url.QueryEscape(strings.Join(ids, ",")), y.apiKey)

	var videosResp youTubeVideosResponse
	if err := y.getJSON(ctx, statsURL, &videosResp); err != nil {
		return nil, err
	}

	stats := make(map[string]youTubeCounts, len(videosResp.Items))
	for _, item := range videosResp.Items {
		likes, _ := strconv.Atoi(item.Statistics.LikeCount)
		comments, _ := strconv.Atoi(item.Statistics.CommentCount)
		stats[item.ID] = youTubeCounts{likes: likes, comments: comments}
	}
	return stats, nil
}

func (y *YouTubeSource) FetchComments(ctx context.Context, sub models.Submission, product string, limit int) ([]models.Comment, error) {
	if !y.IsEnabled() || limit <= 0 {
		return nil, nil
	}
	if limit > 100 {
		limit = 100
	}

	commentsURL := fmt.Sprintf("%s/commentThreads?part=snippet&videoId=%s&maxResults=%d&textFormat=plainText&key=%s",
		y.apiURL, url.QueryEscape(sub.ID), limit, y.apiKey)

	resp, err := y.client.R().
		SetContext(ctx).
		Get(commentsURL)
	if err != nil {
		return nil, fmt.Errorf("youtube request failed (%v): %w", err, ErrUnavailable)
	}

	switch code := resp.StatusCode(); {
	case code == 200:
	case code == 403:
		// Comments are disabled on this video, nothing to fetch.
		return nil, nil
	case transientStatus(code):
		return nil, fmt.Errorf("youtube API returned status %d: %w", code, ErrUnavailable)
	default:
		return nil, fmt.Errorf("youtube API returned status %d: %s", code, string(resp.Body()))
	}

	var commentsResp youTubeCommentsResponse
	if err := json.Unmarshal(resp.Body(), &commentsResp); err != nil {
		return nil, fmt.Errorf("decode youtube comments response: %w", err)
	}

	comments := make([]models.Comment, 0, len(commentsResp.Items))
	for _, item := range commentsResp.Items {
		snippet := item.Snippet.TopLevelComment.Snippet
		text := strings.TrimSpace(snippet.TextDisplay)
		if text == "" {
			continue
		}

		publishedAt, err := time.Parse(time.RFC3339, snippet.PublishedAt)
		if err != nil {
			logrus.Errorf("Failed to parse YouTube comment timestamp: %v", err)
			continue
		}

		comments = append(comments, models.Comment{
			SourcePlatform:  "youtube",
			NativeCommentID: item.ID,
			ProductName:     product,
			BrandName:       product,
			Text:            text,
			Timestamp:       publishedAt.UTC(),
			Upvotes:         snippet.LikeCount,
			ThreadID:        sub.ID,
			ThreadTitle:     sub.Title,
		})
		if len(comments) >= limit {
			break
		}
	}

	return comments, nil
}

// getJSON performs a GET with the source's retry policy. Transient failures
// carry ErrUnavailable in their chain once the policy is exhausted.
func (y *YouTubeSource) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	op := func() error {
		resp, err := y.client.R().
			SetContext(ctx).
			Get(rawURL)
		if err != nil {
			return fmt.Errorf("youtube request failed (%v): %w", err, ErrUnavailable)
		}

		switch code := resp.StatusCode(); {
		case code == 200:
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return backoff.Permanent(fmt.Errorf("decode youtube response: %w", err))
			}
			return nil
		case transientStatus(code):
			return fmt.Errorf("youtube API returned status %d: %w", code, ErrUnavailable)
		default:
			return backoff.Permanent(fmt.Errorf("youtube API returned status %d: %s", code, string(resp.Body())))
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = y.retryBase
	bo.MaxElapsedTime = 0

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(y.retryAttempts-1)), ctx))
}

// youTubeOrder maps the generic sort onto the search API's order values.
func youTubeOrder(sort SubmissionSort) string {
	switch sort {
	case SortNew:
		return "date"
	case SortTop:
		return "viewCount"
	default:
		return "relevance"
	}
}
