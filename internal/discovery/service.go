package discovery

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/prodsense/product-sensing-bot/internal/config"
	"github.com/prodsense/product-sensing-bot/internal/models"
	"github.com/prodsense/product-sensing-bot/internal/sources"
	"github.com/sirupsen/logrus"
)

// Weights is the scoring configuration for channel ranking. The three
// weights sum to 1.0.
type Weights struct {
	Mentions float64
	AvgScore float64
	Comments float64
}

// Service finds and ranks the channels where products are being discussed
type Service struct {
	sources    []sources.Source
	weights    Weights
	lookback   time.Duration
	postsLimit int
	maxResults int
}

// NewService creates a discovery service over the given sources
func NewService(srcs []sources.Source, cfg *config.Config) *Service {
	return &Service{
		sources: srcs,
		weights: Weights{
			Mentions: cfg.WeightMentions,
			AvgScore: cfg.WeightAvgScore,
			Comments: cfg.WeightComments,
		},
		lookback:   time.Duration(cfg.DiscoveryLookbackDays) * 24 * time.Hour,
		postsLimit: cfg.DiscoveryPostsLimit,
		maxResults: cfg.MaxDiscoveryResults,
	}
}

// Discover returns ranked channel candidates per platform. Products that
// fail are skipped; whatever was found is returned together with the
// joined error so callers can tell partial results from clean ones.
func (s *Service) Discover(ctx context.Context, products []string) (map[string][]models.ChannelCandidate, error) {
	products = CleanProducts(products)
	if len(products) == 0 {
		return nil, fmt.Errorf("no products given")
	}

	results := make(map[string][]models.ChannelCandidate)
	var errs []error

	for _, src := range s.sources {
		if !src.IsEnabled() {
			logrus.Debugf("Skipping disabled source: %s", src.GetName())
			continue
		}

		merged := make(map[string]models.ChannelCandidate)
		for _, product := range products {
			candidates, err := s.discoverProduct(ctx, src, product)
			if err != nil {
				logrus.Errorf("Discovery failed for product '%s' on %s: %v", product, src.GetName(), err)
				errs = append(errs, fmt.Errorf("%s/%s: %w", src.GetName(), product, err))
				continue
			}
			// A channel found for several products keeps its best score.
			for _, c := range candidates {
				if prev, ok := merged[c.ChannelID]; !ok || c.Score > prev.Score {
					merged[c.ChannelID] = c
				}
			}
		}

		list := make([]models.ChannelCandidate, 0, len(merged))
		for _, c := range merged {
			list = append(list, c)
		}
		rankCandidates(list)
		if len(list) > s.maxResults {
			list = list[:s.maxResults]
		}
		results[src.GetName()] = list

		logrus.Infof("Discovered %d candidate channels on %s", len(list), src.GetName())
	}

	return results, errors.Join(errs...)
}

// discoverProduct samples recent submissions matching one product and
// aggregates them into scored channel candidates.
func (s *Service) discoverProduct(ctx context.Context, src sources.Source, product string) ([]models.ChannelCandidate, error) {
	submissions, err := src.SearchSubmissions(ctx, "all", product, sources.SortNew, s.lookback, s.postsLimit)
	if err != nil {
		return nil, err
	}

	byChannel := make(map[string]*models.ChannelCandidate)
	scoreSums := make(map[string]float64)

	for _, sub := range submissions {
		if sub.ChannelID == "" {
			continue
		}
		c, ok := byChannel[sub.ChannelID]
		if !ok {
			c = &models.ChannelCandidate{
				Platform:    src.GetName(),
				ChannelID:   sub.ChannelID,
				DisplayName: src.ChannelDisplayName(sub.ChannelID),
			}
			byChannel[sub.ChannelID] = c
		}
		c.Metrics.Mentions++
		c.Metrics.CommentCount += sub.CommentCount
		scoreSums[sub.ChannelID] += float64(sub.Score)
	}

	candidates := make([]models.ChannelCandidate, 0, len(byChannel))
	for id, c := range byChannel {
		if c.Metrics.Mentions > 0 {
			c.Metrics.AvgScore = scoreSums[id] / float64(c.Metrics.Mentions)
		}
		candidates = append(candidates, *c)
	}

	scoreCandidates(candidates, s.weights)
	rankCandidates(candidates)
	return candidates, nil
}

// scoreCandidates assigns each candidate the weighted sum of its min-max
// normalized signals. Scores only compare candidates within one call; they
// are not stable across calls.
func scoreCandidates(candidates []models.ChannelCandidate, w Weights) {
	if len(candidates) == 0 {
		return
	}

	first := candidates[0].Metrics
	minMentions, maxMentions := float64(first.Mentions), float64(first.Mentions)
	minAvg, maxAvg := first.AvgScore, first.AvgScore
	minComments, maxComments := float64(first.CommentCount), float64(first.CommentCount)

	for _, c := range candidates[1:] {
		minMentions = math.Min(minMentions, float64(c.Metrics.Mentions))
		maxMentions = math.Max(maxMentions, float64(c.Metrics.Mentions))
		minAvg = math.Min(minAvg, c.Metrics.AvgScore)
		maxAvg = math.Max(maxAvg, c.Metrics.AvgScore)
		minComments = math.Min(minComments, float64(c.Metrics.CommentCount))
		maxComments = math.Max(maxComments, float64(c.Metrics.CommentCount))
	}

	for i := range candidates {
		m := normalize(float64(candidates[i].Metrics.Mentions), minMentions, maxMentions)
		a := normalize(candidates[i].Metrics.AvgScore, minAvg, maxAvg)
		cc := normalize(float64(candidates[i].Metrics.CommentCount), minComments, maxComments)
		candidates[i].Score = round4(w.Mentions*m + w.AvgScore*a + w.Comments*cc)
	}
}

// normalize maps v onto [0, 1] over the observed range. A flat signal
// carries no ranking information and contributes zero.
func normalize(v, min, max float64) float64 {
	if max == min {
		return 0
	}
	return (v - min) / (max - min)
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// rankCandidates orders by score, then comment volume, then channel id, so
// equal inputs always rank identically.
func rankCandidates(candidates []models.ChannelCandidate) {
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Metrics.CommentCount != b.Metrics.CommentCount {
			return a.Metrics.CommentCount > b.Metrics.CommentCount
		}
		return a.ChannelID < b.ChannelID
	})
}

// CleanProducts trims, drops empties and deduplicates case-insensitively
// while preserving order.
func CleanProducts(products []string) []string {
	out := make([]string, 0, len(products))
	seen := make(map[string]bool)
	for _, p := range products {
		p = strings.TrimSpace(p)
		key := strings.ToLower(p)
		if p == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}
