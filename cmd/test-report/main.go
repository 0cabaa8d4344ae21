package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prodsense/product-sensing-bot/internal/config"
	"github.com/prodsense/product-sensing-bot/internal/models"
	"github.com/prodsense/product-sensing-bot/internal/notifications"
)

func main() {
	fmt.Println("🤖 Product Sensing Bot - Test Report Generator")
	fmt.Println("==============================================")

	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using system environment variables")
	}

	report := sampleReport()

	fmt.Printf("\n📊 Generating sample report for %s...\n", strings.Join(report.Products, ", "))

	printReport(report)

	if err := saveReportToFile(report); err != nil {
		fmt.Printf("\n⚠️  Warning: Could not save to file: %v\n", err)
	}

	// Send through the real notification pipeline when one is configured
	if os.Getenv("WEBHOOK_URL") != "" || os.Getenv("NOTIFICATION_EMAIL") != "" {
		cfg, err := config.Load()
		if err != nil {
			fmt.Printf("❌ Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		service := notifications.NewService(cfg)
		if err := service.SendReport(report); err != nil {
			fmt.Printf("❌ Error sending report: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("\n📨 Report sent via configured notification channels")
	}

	fmt.Println("\n✅ Test report generation completed!")
	fmt.Println("\n💡 Next steps:")
	fmt.Println("   • Check the 'test_output' directory for the saved JSON report")
	fmt.Println("   • Set WEBHOOK_URL or NOTIFICATION_EMAIL to exercise real delivery")
	fmt.Println("   • Configure real API keys and run the full bot with 'go run cmd/bot/main.go'")
}

func sampleReport() *models.Report {
	return &models.Report{
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Period:      "daily",
		Products:    []string{"iPhone16"},
		Outcome: models.IngestionOutcome{
			CommentsIngested:  142,
			CommentsFailed:    3,
			ChannelsProcessed: 2,
		},
		Progress: models.AnalysisProgress{
			TotalComments:      310,
			AnalyzedComments:   168,
			UnanalyzedComments: 142,
		},
		Errors: []string{
			"reddit: fetch comments for t3_sample1: source unavailable",
		},
	}
}

func printReport(report *models.Report) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	fmt.Println("📊 PRODUCT SENSING REPORT")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("📅 Period: %s\n", report.Period)
	fmt.Printf("🕒 Generated: %s\n", report.GeneratedAt.Format("2006-01-02 15:04:05 UTC"))
	fmt.Printf("🆔 Run: %s\n", report.RunID)
	fmt.Printf("📦 Products: %s\n", strings.Join(report.Products, ", "))

	fmt.Println("\n📥 Ingestion:")
	fmt.Printf("   • Comments ingested:  %d\n", report.Outcome.CommentsIngested)
	fmt.Printf("   • Comments failed:    %d\n", report.Outcome.CommentsFailed)
	fmt.Printf("   • Channels processed: %d\n", report.Outcome.ChannelsProcessed)

	fmt.Println("\n💭 Analysis Progress:")
	fmt.Printf("   • %d of %d comments analyzed (%d remaining)\n",
		report.Progress.AnalyzedComments, report.Progress.TotalComments, report.Progress.UnanalyzedComments)

	if len(report.Errors) > 0 {
		fmt.Println("\n🚨 Errors:")
		for _, e := range report.Errors {
			fmt.Printf("   • %s\n", e)
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
}

func saveReportToFile(report *models.Report) error {
	dir := "test_output"
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	timestamp := report.GeneratedAt.Format("2006-01-02_15-04-05")
	filename := filepath.Join(dir, fmt.Sprintf("sensing_report_%s.json", timestamp))

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return err
	}

	fmt.Printf("\n💾 Report saved to: %s\n", filename)
	return nil
}
