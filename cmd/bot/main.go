package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prodsense/product-sensing-bot/internal/analysis"
	"github.com/prodsense/product-sensing-bot/internal/config"
	"github.com/prodsense/product-sensing-bot/internal/discovery"
	"github.com/prodsense/product-sensing-bot/internal/ingestion"
	"github.com/prodsense/product-sensing-bot/internal/models"
	"github.com/prodsense/product-sensing-bot/internal/notifications"
	"github.com/prodsense/product-sensing-bot/internal/scheduler"
	"github.com/prodsense/product-sensing-bot/internal/semantic"
	"github.com/prodsense/product-sensing-bot/internal/sources"
	"github.com/prodsense/product-sensing-bot/internal/store"
	"github.com/prodsense/product-sensing-bot/internal/storage"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set up logging
	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Info("Starting Product Sensing Bot")

	// Initialize comment store
	storeClient, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		logrus.Fatalf("Failed to initialize comment store: %v", err)
	}
	defer storeClient.Close()

	// Initialize sources
	reddit := sources.NewRedditSource(cfg.RedditClientID, cfg.RedditClientSecret, cfg.RedditUserAgent,
		cfg.SourceRetryAttempts, cfg.SourceRetryBaseDelay)
	youtube := sources.NewYouTubeSource(cfg.YouTubeAPIKey, cfg.SourceRetryAttempts, cfg.SourceRetryBaseDelay)
	stackoverflow := sources.NewStackOverflowSource(cfg.SourceRetryAttempts, cfg.SourceRetryBaseDelay)
	srcs := []sources.Source{reddit, youtube, stackoverflow}

	// Initialize discovery service
	discoveryService := discovery.NewService(srcs, cfg)

	// Initialize Azure storage for run archival (optional)
	var archive storage.StorageInterface
	if cfg.StorageAccount != "" {
		azureStorage, err := storage.NewAzureStorage(cfg.StorageAccount, cfg.StorageContainer)
		if err != nil {
			logrus.Fatalf("Failed to initialize storage: %v", err)
		}
		archive = azureStorage
	} else {
		logrus.Info("STORAGE_ACCOUNT not set, run archival disabled")
	}

	// Initialize notification services
	notificationService := notifications.NewService(cfg)

	// Initialize AI components (optional, disabled without an API key)
	var (
		labeler   analysis.Labeler
		embedder  semantic.Embedder
		generator semantic.Generator
	)
	if cfg.OpenAIAPIKey != "" {
		openAILabeler, err := analysis.NewOpenAILabeler(cfg.OpenAIAPIKey, cfg.OpenAIChatModel)
		if err != nil {
			logrus.Fatalf("Failed to initialize labeler: %v", err)
		}
		labeler = openAILabeler

		openAIEmbedder, err := semantic.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIEmbedModel)
		if err != nil {
			logrus.Fatalf("Failed to initialize embedder: %v", err)
		}
		embedder = openAIEmbedder

		openAIGenerator, err := semantic.NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIChatModel)
		if err != nil {
			logrus.Fatalf("Failed to initialize generator: %v", err)
		}
		generator = openAIGenerator
	} else {
		logrus.Warn("OPENAI_API_KEY not set, sentiment analysis and semantic search are disabled")
	}

	// Initialize semantic index
	index, err := semantic.NewIndex(storeClient, embedder, generator, archive, cfg.EmbedBatchSize, cfg.AnswerSourceCap)
	if err != nil {
		logrus.Fatalf("Failed to initialize semantic index: %v", err)
	}
	defer index.Close()

	if archive != nil {
		loadCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		if err := index.LoadSnapshot(loadCtx); err != nil {
			logrus.Warnf("Failed to load index snapshot: %v", err)
		}
		cancel()
	}

	// Initialize ingestion and analysis services
	ingestionService := ingestion.NewService(cfg, storeClient, discoveryService, srcs, archive, notificationService)
	analysisService := analysis.NewService(storeClient, labeler, cfg.AnalysisLimit)

	// Initialize scheduler
	schedulerService := scheduler.NewService(cfg, ingestionService, analysisService, index)

	// Start scheduler
	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}
	defer schedulerService.Stop()

	// Set up HTTP server
	router := mux.NewRouter()

	// Health check endpoint
	router.HandleFunc("/health", healthCheckHandler).Methods("GET")

	// Metrics endpoint
	router.HandleFunc("/metrics", metricsHandler(ingestionService, index)).Methods("GET")

	// Manual trigger endpoint (for testing)
	router.HandleFunc("/trigger", triggerHandler(ingestionService)).Methods("POST")

	// Core API
	router.HandleFunc("/discover", discoverHandler(discoveryService, cfg)).Methods("POST")
	router.HandleFunc("/ingest", ingestHandler(ingestionService, cfg)).Methods("POST")
	router.HandleFunc("/comments", commentsHandler(storeClient)).Methods("GET")
	router.HandleFunc("/analysis/progress", progressHandler(analysisService)).Methods("GET")
	router.HandleFunc("/analysis/run", analyzeHandler(analysisService)).Methods("POST")
	router.HandleFunc("/qa/search", searchHandler(index, cfg)).Methods("GET")
	router.HandleFunc("/qa/ask", askHandler(index)).Methods("POST")
	router.HandleFunc("/qa/sync", syncHandler(index)).Methods("POST")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start HTTP server in a goroutine
	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	// Create a deadline for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","timestamp":"` + time.Now().Format(time.RFC3339) + `"}`))
}

func metricsHandler(ingestionService *ingestion.Service, index *semantic.Index) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var metrics map[string]any
		if err := json.Unmarshal([]byte(ingestionService.GetMetrics()), &metrics); err != nil {
			metrics = map[string]any{}
		}
		metrics["indexed_comments"] = index.Count()

		writeJSON(w, http.StatusOK, metrics)
	}
}

func triggerHandler(ingestionService *ingestion.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		go func() {
			if err := ingestionService.RunScheduled(); err != nil {
				logrus.Errorf("Manual ingestion trigger failed: %v", err)
			}
		}()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"message":"Ingestion triggered successfully"}`))
	}
}

func discoverHandler(discoveryService *discovery.Service, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Products []string `json:"products"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		products := discovery.CleanProducts(req.Products)
		if len(products) == 0 {
			products = cfg.DefaultProducts
		}

		ranked, err := discoveryService.Discover(r.Context(), products)
		if err != nil {
			empty := true
			for _, list := range ranked {
				if len(list) > 0 {
					empty = false
					break
				}
			}
			// Partial results still go out; only a fully failed batch errors.
			if empty {
				writeError(w, statusForError(err), err.Error())
				return
			}
		}

		resp := map[string]any{"products": ranked}
		if err != nil {
			resp["warning"] = err.Error()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func ingestHandler(ingestionService *ingestion.Service, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Products []string `json:"products"`
			Platform string   `json:"platform"`
			Channels []string `json:"channels"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		products := discovery.CleanProducts(req.Products)
		if len(products) == 0 {
			products = cfg.DefaultProducts
		}

		var sel ingestion.ChannelSelection
		if len(req.Channels) > 0 {
			platform := req.Platform
			if platform == "" {
				platform = "reddit"
			}
			sel = ingestion.ExplicitChannels{Platform: platform, IDs: req.Channels}
		} else {
			sel = ingestion.AutoSelect{Limit: cfg.TopChannelsLimit}
		}

		outcome, err := ingestionService.Run(r.Context(), products, sel)
		if err != nil && (outcome == nil || outcome.CommentsIngested == 0) {
			writeError(w, statusForError(err), err.Error())
			return
		}

		resp := map[string]any{"outcome": outcome}
		if err != nil {
			resp["warning"] = err.Error()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func commentsHandler(storeClient store.CommentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := intQuery(r, "limit", 50)
		product := r.URL.Query().Get("product")

		var (
			comments []models.Comment
			err      error
		)
		if product != "" {
			comments, err = storeClient.CommentsForProduct(r.Context(), product, limit)
		} else {
			comments, err = storeClient.RecentComments(r.Context(), limit)
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"comments": comments, "count": len(comments)})
	}
}

func progressHandler(analysisService *analysis.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		progress, err := analysisService.Progress(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, progress)
	}
}

func analyzeHandler(analysisService *analysis.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Limit int `json:"limit"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		summary, err := analysisService.Analyze(r.Context(), req.Limit)
		if err != nil {
			writeError(w, statusForError(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

func searchHandler(index *semantic.Index, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := strings.TrimSpace(r.URL.Query().Get("q"))
		if query == "" {
			writeError(w, http.StatusBadRequest, "q query parameter is required")
			return
		}

		results, err := index.Search(r.Context(), query, intQuery(r, "limit", cfg.SearchLimit))
		if err != nil {
			writeError(w, statusForError(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": results, "count": len(results)})
	}
}

func askHandler(index *semantic.Index) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Question string `json:"question"`
			Limit    int    `json:"limit"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(req.Question) == "" {
			writeError(w, http.StatusBadRequest, "question is required")
			return
		}

		answer, err := index.Ask(r.Context(), req.Question, req.Limit)
		if err != nil {
			writeError(w, statusForError(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, answer)
	}
}

func syncHandler(index *semantic.Index) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Limit int `json:"limit"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		added, err := index.Sync(r.Context(), req.Limit)
		if err != nil {
			writeError(w, statusForError(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"indexed": added, "total": index.Count()})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logrus.Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func statusForError(err error) int {
	var validationErr *models.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.Is(err, sources.ErrUnavailable),
		errors.Is(err, semantic.ErrRetrievalUnavailable),
		errors.Is(err, semantic.ErrGenerationUnavailable),
		errors.Is(err, analysis.ErrNoLabeler):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func intQuery(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
