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
	"golang.org/x/net/html"
)

const stackOverflowAPIURL = "https://api.stackexchange.com/2.3"

// StackOverflowSource implements Stack Overflow API source. Tags play the
// role of channels, questions are submissions and answers are ingested as
// comments.
type StackOverflowSource struct {
	client        *resty.Client
	apiURL        string
	retryAttempts int
	retryBase     time.Duration
}

type stackOverflowQuestionsResponse struct {
	Items []stackOverflowQuestion `json:"items"`
}

type stackOverflowQuestion struct {
	QuestionID   int               `json:"question_id"`
	Title        string            `json:"title"`
	Tags         []string          `json:"tags"`
	Owner        stackOverflowUser `json:"owner"`
	CreationDate int64             `json:"creation_date"`
	Score        int               `json:"score"`
	AnswerCount  int               `json:"answer_count"`
	Link         string            `json:"link"`
}

type stackOverflowAnswersResponse struct {
	Items []stackOverflowAnswer `json:"items"`
}

type stackOverflowAnswer struct {
	AnswerID     int               `json:"answer_id"`
	Body         string            `json:"body"`
	Owner        stackOverflowUser `json:"owner"`
	CreationDate int64             `json:"creation_date"`
	Score        int               `json:"score"`
}

type stackOverflowUser struct {
	DisplayName string `json:"display_name"`
}

// NewStackOverflowSource creates a new Stack Overflow source
func NewStackOverflowSource(retryAttempts int, retryBase time.Duration) *StackOverflowSource {
	if retryAttempts < 1 {
		retryAttempts = 1
	}
	return &StackOverflowSource{
		client: resty.New().
			SetTimeout(30 * time.Second).
			SetHeader("User-Agent", "product-sensing-bot/1.0"),
		apiURL:        stackOverflowAPIURL,
		retryAttempts: retryAttempts,
		retryBase:     retryBase,
	}
}

func (s *StackOverflowSource) GetName() string {
	return "stackoverflow"
}

func (s *StackOverflowSource) IsEnabled() bool {
	return true // the API allows keyless requests at a reduced quota
}

func (s *StackOverflowSource) ChannelDisplayName(channelID string) string {
	return "[" + channelID + "]"
}

func (s *StackOverflowSource) SearchSubmissions(ctx context.Context, channel, query string, sort SubmissionSort, since time.Duration, limit int) ([]models.Submission, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	searchURL := fmt.Sprintf("%s/search/advanced?order=desc&sort=%s&q=%s&site=stackoverflow&pagesize=%d",
		s.apiURL, stackOverflowSort(sort), url.QueryEscape(query), limit)
	if since > 0 {
		searchURL += "&fromdate=" + strconv.FormatInt(time.Now().Add(-since).Unix(), 10)
	}
	if channel != "all" {
		searchURL += "&tagged=" + url.QueryEscape(channel)
	}

	var searchResp stackOverflowQuestionsResponse
	if err := s.getJSON(ctx, searchURL, &searchResp); err != nil {
		return nil, err
	}

	submissions := make([]models.Submission, 0, len(searchResp.Items))
	for _, question := range searchResp.Items {
		channelID := channel
		if channelID == "all" {
			if len(question.Tags) == 0 {
				continue
			}
			channelID = question.Tags[0]
		}

		submissions = append(submissions, models.Submission{
			Platform:     "stackoverflow",
			ID:           strconv.Itoa(question.QuestionID),
			ChannelID:    strings.ToLower(channelID),
			Title:        question.Title,
			Author:       question.Owner.DisplayName,
			URL:          question.Link,
			CreatedAt:    time.Unix(question.CreationDate, 0).UTC(),
			Score:        question.Score,
			CommentCount: question.AnswerCount,
		})
	}

	return submissions, nil
}

func (s *StackOverflowSource) FetchComments(ctx context.Context, sub models.Submission, product string, limit int) ([]models.Comment, error) {
	if limit <= 0 {
		return nil, nil
	}
	if limit > 100 {
		limit = 100
	}

	answersURL := fmt.Sprintf("%s/questions/%s/answers?order=desc&sort=votes&site=stackoverflow&pagesize=%d&filter=withbody",
		s.apiURL, url.PathEscape(sub.ID), limit)

	var answersResp stackOverflowAnswersResponse
	if err := s.getJSON(ctx, answersURL, &answersResp); err != nil {
		return nil, err
	}

	comments := make([]models.Comment, 0, len(answersResp.Items))
	for _, answer := range answersResp.Items {
		text := stripHTML(answer.Body)
		if text == "" {
			continue
		}

		comments = append(comments, models.Comment{
			SourcePlatform:  "stackoverflow",
			NativeCommentID: strconv.Itoa(answer.AnswerID),
			ProductName:     product,
			BrandName:       product,
			Text:            text,
			Timestamp:       time.Unix(answer.CreationDate, 0).UTC(),
			Upvotes:         answer.Score,
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
func (s *StackOverflowSource) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	op := func() error {
		resp, err := s.client.R().
			SetContext(ctx).
			Get(rawURL)
		if err != nil {
			return fmt.Errorf("stack overflow request failed (%v): %w", err, ErrUnavailable)
		}

		switch code := resp.StatusCode(); {
		case code == 200:
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return backoff.Permanent(fmt.Errorf("decode stack overflow response: %w", err))
			}
			return nil
		case transientStatus(code):
			return fmt.Errorf("stack overflow API returned status %d: %w", code, ErrUnavailable)
		default:
			return backoff.Permanent(fmt.Errorf("stack overflow API returned status %d: %s", code, string(resp.Body())))
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.retryBase
	bo.MaxElapsedTime = 0

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(s.retryAttempts-1)), ctx))
}

// stackOverflowSort maps the generic sort onto the search API's sort values.
func stackOverflowSort(sort SubmissionSort) string {
	switch sort {
	case SortNew:
		return "creation"
	case SortTop:
		return "votes"
	default:
		return "activity"
	}
}

// stripHTML renders an API body to plain text. Paragraphs and line breaks
// become newlines, code spans keep backtick markers.
func stripHTML(content string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(content))
	var b strings.Builder

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())
		case html.TextToken:
			b.Write(tokenizer.Text())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "p", "br":
				b.WriteByte('\n')
			case "code":
				b.WriteByte('`')
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if string(name) == "code" {
				b.WriteByte('`')
			}
		}
	}
}
