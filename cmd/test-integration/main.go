package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/prodsense/product-sensing-bot/internal/analysis"
	"github.com/prodsense/product-sensing-bot/internal/config"
	"github.com/prodsense/product-sensing-bot/internal/discovery"
	"github.com/prodsense/product-sensing-bot/internal/ingestion"
	"github.com/prodsense/product-sensing-bot/internal/models"
	"github.com/prodsense/product-sensing-bot/internal/sources"
	"github.com/prodsense/product-sensing-bot/internal/store"
)

// SimpleTestNotification for local testing
type SimpleTestNotification struct{}

func (s *SimpleTestNotification) SendReport(report *models.Report) error {
	fmt.Println("\n🎉 REPORT GENERATED!")
	fmt.Printf("📊 Comments Ingested: %d\n", report.Outcome.CommentsIngested)
	fmt.Printf("📍 Channels Processed: %d\n", report.Outcome.ChannelsProcessed)
	return nil
}

func (s *SimpleTestNotification) SendAlert(alert *models.Alert) error {
	fmt.Printf("🚨 ALERT: %s\n", alert.Message)
	return nil
}

func main() {
	fmt.Println("🧪 Product Sensing Bot - Local Integration Test")
	fmt.Println("===============================================")

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg.DatabasePath = "test_output/integration.db"

	storeClient, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open comment store: %v", err)
	}
	defer storeClient.Close()

	reddit := sources.NewRedditSource(cfg.RedditClientID, cfg.RedditClientSecret, cfg.RedditUserAgent,
		cfg.SourceRetryAttempts, cfg.SourceRetryBaseDelay)
	if !reddit.IsEnabled() {
		fmt.Println("⚠️  Reddit credentials missing. Set REDDIT_CLIENT_ID and REDDIT_CLIENT_SECRET in .env")
		return
	}
	stackoverflow := sources.NewStackOverflowSource(cfg.SourceRetryAttempts, cfg.SourceRetryBaseDelay)
	srcs := []sources.Source{reddit, stackoverflow}

	discoveryService := discovery.NewService(srcs, cfg)
	notifier := &SimpleTestNotification{}
	ingestionService := ingestion.NewService(cfg, storeClient, discoveryService, srcs, nil, notifier)

	fmt.Println("🔍 Running full ingestion cycle...")
	fmt.Println("⏱️  This will test real APIs and may take 30-60 seconds...")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// Step 1: discover candidate channels
	fmt.Printf("\n🔸 Discovering channels for %v...\n", cfg.DefaultProducts)
	ranked, err := discoveryService.Discover(ctx, cfg.DefaultProducts)
	if err != nil {
		fmt.Printf("   ⚠️  Discovery reported errors: %v\n", err)
	}
	for product, candidates := range ranked {
		fmt.Printf("   📝 %s:\n", product)
		for i, c := range candidates {
			if i >= 5 {
				break
			}
			fmt.Printf("      %d. %s (score %.4f, %d mentions)\n", i+1, c.DisplayName, c.Score, c.Metrics.Mentions)
		}
	}

	// Step 2: ingest from the top channels
	fmt.Println("\n🔸 Ingesting comments from top channels...")
	outcome, err := ingestionService.Run(ctx, cfg.DefaultProducts, ingestion.AutoSelect{Limit: cfg.TopChannelsLimit})
	if err != nil {
		fmt.Printf("   ⚠️  Ingestion reported errors: %v\n", err)
	}
	if outcome != nil {
		fmt.Printf("   ✅ Ingested %d comments (%d failed, %d channels)\n",
			outcome.CommentsIngested, outcome.CommentsFailed, outcome.ChannelsProcessed)
	}

	// Step 3: check analysis progress bookkeeping
	progress, err := analysis.NewService(storeClient, nil, cfg.AnalysisLimit).Progress(ctx)
	if err != nil {
		fmt.Printf("   ❌ Progress check failed: %v\n", err)
	} else {
		fmt.Printf("\n💭 Analysis progress: %d of %d comments analyzed\n",
			progress.AnalyzedComments, progress.TotalComments)
	}

	// Step 4: show a sample of what landed
	comments, err := storeClient.RecentComments(ctx, 3)
	if err == nil && len(comments) > 0 {
		fmt.Println("\n📝 Sample Comments:")
		for i, c := range comments {
			fmt.Printf("   %d. [%s] %.80s\n", i+1, c.ThreadTitle, c.Text)
		}
	}

	fmt.Println("\n✅ Local integration test completed!")
	fmt.Println("\n🚀 Ready for deployment:")
	fmt.Println("   • Add OPENAI_API_KEY to .env to enable analysis and semantic search")
	fmt.Println("   • Deploy to AKS: kubectl apply -f k8s/deployment.yaml")
	fmt.Println("   • Or deploy to ACA: make azd-up")
}
