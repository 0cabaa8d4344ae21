package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prodsense/product-sensing-bot/internal/config"
	"github.com/prodsense/product-sensing-bot/internal/discovery"
	"github.com/prodsense/product-sensing-bot/internal/models"
	"github.com/prodsense/product-sensing-bot/internal/notifications"
	"github.com/prodsense/product-sensing-bot/internal/sources"
	"github.com/prodsense/product-sensing-bot/internal/storage"
	"github.com/prodsense/product-sensing-bot/internal/store"
	"github.com/sirupsen/logrus"
)

// Service drives comment ingestion from source platforms into the store
type Service struct {
	config              *config.Config
	store               store.CommentStore
	discovery           *discovery.Service
	sources             []sources.Source
	storage             storage.StorageInterface
	notificationService notifications.NotificationInterface
	metrics             *Metrics
	mu                  sync.RWMutex
}

// Metrics holds ingestion metrics
type Metrics struct {
	LastRun           time.Time      `json:"last_run"`
	LastRunDuration   string         `json:"last_run_duration"`
	CommentsIngested  int            `json:"comments_ingested"`
	CommentsFailed    int            `json:"comments_failed"`
	DuplicatesSkipped int            `json:"duplicates_skipped"`
	ChannelsProcessed int            `json:"channels_processed"`
	ProductMetrics    map[string]int `json:"product_metrics"`
	ErrorCount        int            `json:"error_count"`
}

// runStats tracks one run's counters before they fan out into the outcome
// and the service metrics.
type runStats struct {
	ingested   int
	failed     int
	duplicates int
	channels   int
	perProduct map[string]int
	errs       []error
}

// NewService creates a new ingestion service. The archive and notifier are
// optional; pass nil to run without them.
func NewService(cfg *config.Config, st store.CommentStore, disc *discovery.Service, srcs []sources.Source, archive storage.StorageInterface, notifier notifications.NotificationInterface) *Service {
	return &Service{
		config:              cfg,
		store:               st,
		discovery:           disc,
		sources:             srcs,
		storage:             archive,
		notificationService: notifier,
		metrics: &Metrics{
			ProductMetrics: make(map[string]int),
		},
	}
}

// Run ingests comments for the given products from the selected channels.
// Individual fetch and store failures are counted, not fatal; the outcome
// is always returned, together with the joined per-product errors.
func (s *Service) Run(ctx context.Context, products []string, sel ChannelSelection) (*models.IngestionOutcome, error) {
	start := time.Now()

	products = discovery.CleanProducts(products)
	if len(products) == 0 {
		return nil, fmt.Errorf("no products given")
	}

	logrus.Infof("Starting ingestion run for products: %s", strings.Join(products, ", "))

	stats := &runStats{perProduct: make(map[string]int)}

	for _, product := range products {
		channels, err := s.channelsForProduct(ctx, product, sel)
		if err != nil {
			logrus.Errorf("Channel selection failed for product '%s': %v", product, err)
			stats.errs = append(stats.errs, fmt.Errorf("%s: %w", product, err))
			continue
		}
		if len(channels) == 0 {
			logrus.Warnf("No channels to ingest for product '%s'", product)
			continue
		}
		for _, ch := range channels {
			s.ingestChannel(ctx, product, ch, stats)
		}
	}

	outcome := &models.IngestionOutcome{
		CommentsIngested:  stats.ingested,
		CommentsFailed:    stats.failed,
		ChannelsProcessed: stats.channels,
	}
	s.updateMetrics(outcome, stats, time.Since(start))

	logrus.Infof("Ingestion run completed in %v: %d ingested, %d failed, %d duplicates, %d channels",
		time.Since(start), stats.ingested, stats.failed, stats.duplicates, stats.channels)

	return outcome, errors.Join(stats.errs...)
}

func (s *Service) channelsForProduct(ctx context.Context, product string, sel ChannelSelection) ([]models.ChannelCandidate, error) {
	switch sel := sel.(type) {
	case ExplicitChannels:
		src := s.sourceByName(sel.Platform)
		if src == nil {
			return nil, fmt.Errorf("no enabled source for platform %q", sel.Platform)
		}
		seen := make(map[string]bool)
		channels := make([]models.ChannelCandidate, 0, len(sel.IDs))
		for _, id := range sel.IDs {
			id = normalizeChannelID(sel.Platform, id)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			channels = append(channels, models.ChannelCandidate{
				Platform:    sel.Platform,
				ChannelID:   id,
				DisplayName: src.ChannelDisplayName(id),
			})
		}
		return channels, nil

	case AutoSelect:
		limit := sel.Limit
		if limit <= 0 {
			limit = s.config.TopChannelsLimit
		}

		byPlatform, err := s.discovery.Discover(ctx, []string{product})
		if err != nil {
			if allEmpty(byPlatform) {
				saved := s.savedChannels(ctx, limit)
				if len(saved) == 0 {
					return nil, err
				}
				logrus.Warnf("Discovery failed for product '%s', reusing %d previously selected channels: %v",
					product, len(saved), err)
				return saved, nil
			}
			logrus.Warnf("Discovery for product '%s' was partial: %v", product, err)
		}

		var channels []models.ChannelCandidate
		for _, list := range byPlatform {
			if len(list) > limit {
				list = list[:limit]
			}
			channels = append(channels, list...)
		}

		if err := s.store.SaveSelectedChannels(ctx, channels); err != nil {
			logrus.Warnf("Failed to persist selected channels: %v", err)
		}
		return channels, nil

	default:
		return nil, fmt.Errorf("unknown channel selection %T", sel)
	}
}

func (s *Service) ingestChannel(ctx context.Context, product string, ch models.ChannelCandidate, stats *runStats) {
	src := s.sourceByName(ch.Platform)
	if src == nil {
		logrus.Warnf("No enabled source for platform %q, skipping %s", ch.Platform, ch.DisplayName)
		return
	}

	stats.channels++
	logrus.Infof("Ingesting %s for product '%s'", ch.DisplayName, product)

	lookback := time.Duration(s.config.DiscoveryLookbackDays) * 24 * time.Hour
	submissions, err := src.SearchSubmissions(ctx, ch.ChannelID, product, sources.SortNew, lookback, s.config.MaxSubmissionsPerProduct)
	if err != nil {
		logrus.Errorf("Failed to search %s: %v", ch.DisplayName, err)
		stats.errs = append(stats.errs, fmt.Errorf("%s/%s: %w", ch.Platform, ch.ChannelID, err))
		return
	}
	if len(submissions) > s.config.MaxSubmissionsPerProduct {
		submissions = submissions[:s.config.MaxSubmissionsPerProduct]
	}

	for _, sub := range submissions {
		comments, err := src.FetchComments(ctx, sub, product, s.config.MaxCommentsPerSubmission)
		if err != nil {
			logrus.Warnf("Failed to fetch comments for submission %s: %v", sub.ID, err)
			stats.failed++
			continue
		}
		if len(comments) > s.config.MaxCommentsPerSubmission {
			comments = comments[:s.config.MaxCommentsPerSubmission]
		}
		for i := range comments {
			s.storeComment(ctx, &comments[i], product, stats)
		}
	}
}

func (s *Service) storeComment(ctx context.Context, c *models.Comment, product string, stats *runStats) {
	if err := models.ValidateComment(c); err != nil {
		logrus.Debugf("Skipping comment from %s: %v", c.SourcePlatform, err)
		stats.failed++
		return
	}

	switch err := s.store.InsertComment(ctx, c); {
	case err == nil:
		stats.ingested++
		stats.perProduct[product]++
	case errors.Is(err, store.ErrDuplicateComment):
		stats.duplicates++
	default:
		logrus.Errorf("Failed to store comment %s/%s: %v", c.SourcePlatform, c.NativeCommentID, err)
		stats.failed++
	}
}

// RunScheduled performs the full scheduled pipeline: ingest the configured
// default products from freshly discovered channels, then archive and send
// the run report.
func (s *Service) RunScheduled() error {
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	products := s.config.DefaultProducts
	outcome, runErr := s.Run(ctx, products, AutoSelect{Limit: s.config.TopChannelsLimit})
	if outcome == nil {
		s.sendRunAlert(runErr)
		return runErr
	}
	if runErr != nil {
		logrus.Warnf("Ingestion run finished with errors: %v", runErr)
		if outcome.CommentsIngested == 0 {
			s.sendRunAlert(runErr)
		}
	}

	report := s.buildReport(ctx, products, outcome, runErr)

	if err := s.archiveReport(ctx, report); err != nil {
		logrus.Errorf("Failed to archive run report: %v", err)
	}

	if s.notificationService != nil {
		if err := s.notificationService.SendReport(report); err != nil {
			logrus.Errorf("Failed to send run report: %v", err)
			return err
		}
	}

	logrus.Infof("Scheduled ingestion completed in %v", time.Since(start))
	return nil
}

func (s *Service) buildReport(ctx context.Context, products []string, outcome *models.IngestionOutcome, runErr error) *models.Report {
	report := &models.Report{
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Period:      s.config.IngestSchedule,
		Products:    products,
		Outcome:     *outcome,
	}
	if runErr != nil {
		report.Errors = strings.Split(runErr.Error(), "\n")
	}

	total, err := s.store.CountComments(ctx)
	if err != nil {
		logrus.Warnf("Failed to count comments for report: %v", err)
		return report
	}
	analyzed, err := s.store.CountAnalyzed(ctx)
	if err != nil {
		logrus.Warnf("Failed to count analyzed comments for report: %v", err)
		return report
	}
	report.Progress = models.AnalysisProgress{
		TotalComments:      total,
		AnalyzedComments:   analyzed,
		UnanalyzedComments: total - analyzed,
	}
	return report
}

func (s *Service) archiveReport(ctx context.Context, report *models.Report) error {
	if s.storage == nil {
		return nil
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}

	name := fmt.Sprintf("runs/run-%s-%s.json", report.GeneratedAt.Format("2006-01-02-15-04-05"), report.RunID[:8])
	return s.storage.Store(ctx, name, data)
}

func (s *Service) sendRunAlert(runErr error) {
	if s.notificationService == nil || runErr == nil {
		return
	}

	alert := &models.Alert{
		ID:        uuid.NewString(),
		Type:      "critical",
		Title:     "Ingestion run failed",
		Message:   runErr.Error(),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.notificationService.SendAlert(alert); err != nil {
		logrus.Errorf("Failed to send alert: %v", err)
	}
}

// savedChannels reads the channel picks persisted by an earlier run, for
// when discovery is down.
func (s *Service) savedChannels(ctx context.Context, limit int) []models.ChannelCandidate {
	var channels []models.ChannelCandidate
	for _, src := range s.sources {
		if !src.IsEnabled() {
			continue
		}
		saved, err := s.store.TopChannels(ctx, src.GetName(), limit)
		if err != nil {
			logrus.Warnf("Failed to read saved channels for %s: %v", src.GetName(), err)
			continue
		}
		for _, sc := range saved {
			channels = append(channels, models.ChannelCandidate{
				Platform:    sc.Platform,
				ChannelID:   sc.ChannelID,
				DisplayName: sc.DisplayName,
			})
		}
	}
	return channels
}

func (s *Service) sourceByName(name string) sources.Source {
	for _, src := range s.sources {
		if src.GetName() == name && src.IsEnabled() {
			return src
		}
	}
	return nil
}

func (s *Service) updateMetrics(outcome *models.IngestionOutcome, stats *runStats, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.LastRun = time.Now()
	s.metrics.LastRunDuration = duration.String()
	s.metrics.CommentsIngested = outcome.CommentsIngested
	s.metrics.CommentsFailed = outcome.CommentsFailed
	s.metrics.DuplicatesSkipped = stats.duplicates
	s.metrics.ChannelsProcessed = outcome.ChannelsProcessed
	s.metrics.ErrorCount = len(stats.errs)

	s.metrics.ProductMetrics = make(map[string]int)
	for product, n := range stats.perProduct {
		s.metrics.ProductMetrics[product] = n
	}
}

// GetMetrics returns current metrics as JSON
func (s *Service) GetMetrics() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, _ := json.MarshalIndent(s.metrics, "", "  ")
	return string(data)
}

// normalizeChannelID canonicalizes an explicit channel id. Subreddits and
// tags are case-insensitive; YouTube channel ids are not and pass through
// untouched.
func normalizeChannelID(platform, id string) string {
	id = strings.TrimSpace(id)
	switch platform {
	case "reddit":
		return strings.TrimPrefix(strings.ToLower(id), "r/")
	case "stackoverflow":
		return strings.ToLower(id)
	default:
		return id
	}
}

func allEmpty(m map[string][]models.ChannelCandidate) bool {
	for _, list := range m {
		if len(list) > 0 {
			return false
		}
	}
	return true
}
