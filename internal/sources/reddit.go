package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/prodsense/product-sensing-bot/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	redditAuthURL = "https://www.reddit.com/api/v1/access_token"
	redditAPIURL  = "https://oauth.reddit.com"
)

// RedditSource implements Reddit API source
type RedditSource struct {
	clientID      string
	clientSecret  string
	userAgent     string
	client        *resty.Client
	authURL       string
	apiURL        string
	retryAttempts int
	retryBase     time.Duration

	mu          sync.Mutex
	accessToken string
}

type redditAuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type redditSearchResponse struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Author      string  `json:"author"`
	Subreddit   string  `json:"subreddit"`
	Permalink   string  `json:"permalink"`
	Created     float64 `json:"created_utc"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
}

type redditCommentListing struct {
	Data struct {
		Children []redditCommentNode `json:"children"`
	} `json:"data"`
}

type redditCommentNode struct {
	Kind string        `json:"kind"`
	Data redditComment `json:"data"`
}

type redditComment struct {
	ID      string          `json:"id"`
	Body    string          `json:"body"`
	Author  string          `json:"author"`
	Created float64         `json:"created_utc"`
	Score   int             `json:"score"`
	Replies json.RawMessage `json:"replies"` // empty string when the comment has no replies
}

// NewRedditSource creates a new Reddit source
func NewRedditSource(clientID, clientSecret, userAgent string, retryAttempts int, retryBase time.Duration) *RedditSource {
	if retryAttempts < 1 {
		retryAttempts = 1
	}
	return &RedditSource{
		clientID:      clientID,
		clientSecret:  clientSecret,
		userAgent:     userAgent,
		client:        resty.New().SetTimeout(30 * time.Second),
		authURL:       redditAuthURL,
		apiURL:        redditAPIURL,
		retryAttempts: retryAttempts,
		retryBase:     retryBase,
	}
}

func (r *RedditSource) GetName() string {
	return "reddit"
}

func (r *RedditSource) IsEnabled() bool {
	return r.clientID != "" && r.clientSecret != ""
}

func (r *RedditSource) ChannelDisplayName(channelID string) string {
	return "r/" + channelID
}

func (r *RedditSource) SearchSubmissions(ctx context.Context, channel, query string, sort SubmissionSort, since time.Duration, limit int) ([]models.Submission, error) {
	if !r.IsEnabled() {
		logrus.Debug("Reddit source disabled - missing credentials")
		return nil, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	searchURL := fmt.Sprintf("%s/r/%s/search.json?q=%s&restrict_sr=1&sort=%s&t=%s&limit=%d",
		r.apiURL, url.PathEscape(channel), url.QueryEscape(query), sort, timeWindow(since), limit)

	var searchResp redditSearchResponse
	if err := r.getJSON(ctx, searchURL, &searchResp); err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-since)
	seen := make(map[string]bool)
	submissions := make([]models.Submission, 0, len(searchResp.Data.Children))

	for _, child := range searchResp.Data.Children {
		post := child.Data
		if post.ID == "" || seen[post.ID] {
			continue
		}
		seen[post.ID] = true

		createdAt := time.Unix(int64(post.Created), 0).UTC()
		if since > 0 && createdAt.Before(cutoff) {
			continue
		}

		submissions = append(submissions, models.Submission{
			Platform:     "reddit",
			ID:           post.ID,
			ChannelID:    strings.ToLower(post.Subreddit),
			Title:        post.Title,
			Author:       post.Author,
			URL:          fmt.Sprintf("https://reddit.com%s", post.Permalink),
			CreatedAt:    createdAt,
			Score:        post.Score,
			CommentCount: post.NumComments,
		})
	}

	return submissions, nil
}

func (r *RedditSource) FetchComments(ctx context.Context, sub models.Submission, product string, limit int) ([]models.Comment, error) {
	if !r.IsEnabled() || limit <= 0 {
		return nil, nil
	}

	commentsURL := fmt.Sprintf("%s/comments/%s.json?limit=%d&raw_json=1", r.apiURL, url.PathEscape(sub.ID), limit)

	// The endpoint answers with two listings: the submission itself and
	// its comment tree.
	var listings []json.RawMessage
	if err := r.getJSON(ctx, commentsURL, &listings); err != nil {
		return nil, err
	}
	if len(listings) < 2 {
		return nil, fmt.Errorf("reddit comments response missing comment listing")
	}

	var listing redditCommentListing
	if err := json.Unmarshal(listings[1], &listing); err != nil {
		return nil, fmt.Errorf("decode reddit comment listing: %w", err)
	}

	var raw []redditComment
	collectComments(listing.Data.Children, &raw, limit)

	comments := make([]models.Comment, 0, len(raw))
	for _, rc := range raw {
		body := strings.TrimSpace(rc.Body)
		if body == "" || body == "[deleted]" || body == "[removed]" {
			continue
		}
		comments = append(comments, models.Comment{
			SourcePlatform:  "reddit",
			NativeCommentID: rc.ID,
			ProductName:     product,
			BrandName:       product,
			Text:            body,
			Timestamp:       time.Unix(int64(rc.Created), 0).UTC(),
			Upvotes:         rc.Score,
			ThreadID:        sub.ID,
			ThreadTitle:     sub.Title,
		})
	}

	return comments, nil
}

// collectComments walks the comment tree depth-first until limit comments
// are collected. "more" stubs are skipped; resolving them needs extra API
// calls that rarely pay off at our depth.
func collectComments(nodes []redditCommentNode, out *[]redditComment, limit int) {
	for _, node := range nodes {
		if len(*out) >= limit {
			return
		}
		if node.Kind != "t1" {
			continue
		}
		*out = append(*out, node.Data)

		replies := node.Data.Replies
		if len(replies) > 0 && replies[0] == '{' {
			var nested redditCommentListing
			if err := json.Unmarshal(replies, &nested); err == nil {
				collectComments(nested.Data.Children, out, limit)
			}
		}
	}
}

// getJSON performs an authenticated GET with the source's retry policy.
// Transient failures carry ErrUnavailable in their chain once the policy
// is exhausted.
func (r *RedditSource) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	op := func() error {
		token, err := r.ensureToken(ctx)
		if err != nil {
			return err
		}

		resp, err := r.client.R().
			SetContext(ctx).
			SetHeader("Authorization", "Bearer "+token).
			SetHeader("User-Agent", r.userAgent).
			Get(rawURL)
		if err != nil {
			return fmt.Errorf("reddit request failed (%v): %w", err, ErrUnavailable)
		}

		switch code := resp.StatusCode(); {
		case code == 200:
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return backoff.Permanent(fmt.Errorf("decode reddit response: %w", err))
			}
			return nil
		case code == 401:
			// Token expired mid-run; drop it so the next attempt re-authenticates.
			r.invalidateToken()
			return fmt.Errorf("reddit API returned status 401")
		case transientStatus(code):
			return fmt.Errorf("reddit API returned status %d: %w", code, ErrUnavailable)
		default:
			return backoff.Permanent(fmt.Errorf("reddit API returned status %d", code))
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.retryBase
	bo.MaxElapsedTime = 0

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(r.retryAttempts-1)), ctx))
}

func (r *RedditSource) ensureToken(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.accessToken != "" {
		return r.accessToken, nil
	}

	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", r.userAgent).
		SetBasicAuth(r.clientID, r.clientSecret).
		SetFormData(map[string]string{
			"grant_type": "client_credentials",
		}).
		Post(r.authURL)
	if err != nil {
		return "", fmt.Errorf("reddit authentication failed (%v): %w", err, ErrUnavailable)
	}
	if code := resp.StatusCode(); code != 200 {
		if transientStatus(code) {
			return "", fmt.Errorf("reddit auth returned status %d: %w", code, ErrUnavailable)
		}
		return "", backoff.Permanent(fmt.Errorf("reddit auth returned status %d", code))
	}

	var authResp redditAuthResponse
	if err := json.Unmarshal(resp.Body(), &authResp); err != nil {
		return "", backoff.Permanent(fmt.Errorf("decode reddit auth response: %w", err))
	}
	if authResp.AccessToken == "" {
		return "", backoff.Permanent(fmt.Errorf("reddit auth returned no access token"))
	}

	r.accessToken = authResp.AccessToken
	return r.accessToken, nil
}

func (r *RedditSource) invalidateToken() {
	r.mu.Lock()
	r.accessToken = ""
	r.mu.Unlock()
}

// timeWindow maps a lookback duration onto Reddit's search t parameter.
func timeWindow(since time.Duration) string {
	switch {
	case since <= 0:
		return "all"
	case since <= 24*time.Hour:
		return "day"
	case since <= 7*24*time.Hour:
		return "week"
	case since <= 31*24*time.Hour:
		return "month"
	default:
		return "year"
	}
}
