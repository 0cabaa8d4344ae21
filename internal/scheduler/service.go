package scheduler

import (
	"context"
	"time"

	"github.com/prodsense/product-sensing-bot/internal/analysis"
	"github.com/prodsense/product-sensing-bot/internal/config"
	"github.com/prodsense/product-sensing-bot/internal/ingestion"
	"github.com/prodsense/product-sensing-bot/internal/semantic"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Service handles scheduling of ingestion and analysis tasks
type Service struct {
	config           *config.Config
	ingestionService *ingestion.Service
	analysisService  *analysis.Service
	index            *semantic.Index
	cron             *cron.Cron
}

// NewService creates a new scheduler service
func NewService(cfg *config.Config, ingestionService *ingestion.Service, analysisService *analysis.Service, index *semantic.Index) *Service {
	location, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		logrus.Warnf("Unknown timezone %q, falling back to UTC", cfg.TimeZone)
		location = time.UTC
	}

	return &Service{
		config:           cfg,
		ingestionService: ingestionService,
		analysisService:  analysisService,
		index:            index,
		cron:             cron.New(cron.WithSeconds(), cron.WithLocation(location)),
	}
}

// Start begins the scheduled ingestion and analysis
func (s *Service) Start() error {
	var cronExpression string

	switch s.config.IngestSchedule {
	case "daily":
		// Run daily at 9 AM
		cronExpression = "0 0 9 * * *"
	case "weekly":
		// Run weekly on Monday at 9 AM
		cronExpression = "0 0 9 * * MON"
	default:
		// Default to daily
		cronExpression = "0 0 9 * * *"
	}

	_, err := s.cron.AddFunc(cronExpression, func() {
		logrus.Info("Starting scheduled ingestion run")
		if err := s.ingestionService.RunScheduled(); err != nil {
			logrus.Errorf("Scheduled ingestion run failed: %v", err)
		}
	})

	if err != nil {
		return err
	}

	// Also sweep unanalyzed comments into the labeler and index every hour
	_, err = s.cron.AddFunc("0 30 * * * *", func() {
		logrus.Info("Starting hourly analysis sweep")
		s.runSweep()
	})

	if err != nil {
		return err
	}

	s.cron.Start()
	logrus.Infof("Scheduler started with %s ingestion schedule (plus hourly analysis sweeps)", s.config.IngestSchedule)
	return nil
}

func (s *Service) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Minute)
	defer cancel()

	if s.analysisService != nil {
		if _, err := s.analysisService.Analyze(ctx, 0); err != nil {
			logrus.Errorf("Analysis sweep failed: %v", err)
		}
	}

	if s.index != nil {
		if _, err := s.index.Sync(ctx, 0); err != nil {
			logrus.Errorf("Index sync failed: %v", err)
		}
	}
}

// Stop stops the scheduler
func (s *Service) Stop() {
	if s.cron != nil {
		s.cron.Stop()
		logrus.Info("Scheduler stopped")
	}
}
