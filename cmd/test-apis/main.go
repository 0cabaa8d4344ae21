package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/prodsense/product-sensing-bot/internal/config"
	"github.com/prodsense/product-sensing-bot/internal/sources"
)

func main() {
	fmt.Println("🔍 Product Sensing Bot - API Connectivity Test")
	fmt.Println("==============================================")

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	product := cfg.DefaultProducts[0]
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Println("\n📡 Testing API Sources...")
	fmt.Println(strings.Repeat("-", 40))

	reddit := sources.NewRedditSource(cfg.RedditClientID, cfg.RedditClientSecret, cfg.RedditUserAgent,
		cfg.SourceRetryAttempts, cfg.SourceRetryBaseDelay)
	testSource(ctx, "Reddit", reddit, product)

	youtube := sources.NewYouTubeSource(cfg.YouTubeAPIKey, cfg.SourceRetryAttempts, cfg.SourceRetryBaseDelay)
	testSource(ctx, "YouTube", youtube, product)

	stackoverflow := sources.NewStackOverflowSource(cfg.SourceRetryAttempts, cfg.SourceRetryBaseDelay)
	testSource(ctx, "Stack Overflow", stackoverflow, product)

	fmt.Println("\n✅ API connectivity test completed!")
	fmt.Println("\n💡 Next steps:")
	fmt.Println("   • Configure missing API keys in .env file")
	fmt.Println("   • Run full bot with: make run")
	fmt.Println("   • Deploy to your preferred platform")
}

func testSource(ctx context.Context, name string, source sources.Source, product string) {
	fmt.Printf("🔸 Testing %s... ", name)

	if !source.IsEnabled() {
		fmt.Printf("⚠️  DISABLED (missing API key)\n")
		return
	}

	submissions, err := source.SearchSubmissions(ctx, "all", product, sources.SortNew, 7*24*time.Hour, 5)
	if err != nil {
		fmt.Printf("❌ ERROR: %v\n", err)
		return
	}

	fmt.Printf("✅ SUCCESS (%d submissions found)\n", len(submissions))

	if len(submissions) == 0 {
		return
	}

	// Show a sample submission and pull its comments
	fmt.Printf("   📝 Sample: \"%s\" in %s\n", submissions[0].Title, submissions[0].ChannelID)

	comments, err := source.FetchComments(ctx, submissions[0], product, 10)
	if err != nil {
		fmt.Printf("   ❌ Comment fetch failed: %v\n", err)
		return
	}
	fmt.Printf("   💬 %d comments fetched\n", len(comments))
}
