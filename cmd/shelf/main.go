package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"shelf/internal/books"
	"shelf/internal/config"
	"shelf/internal/enrich"
	"shelf/internal/extract"
	"shelf/internal/ingest"
	"shelf/internal/metrics"
	"shelf/internal/storage"
	"shelf/internal/tagging"
)

var (
	configDir string

	cfg config.Config
	log *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:           "shelf",
	Short:         "Save links, books and notes for later, enriched with metadata and tags",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configDir)
		if err != nil {
			return fmt.Errorf("error loading configuration: %w", err)
		}
		log, err = newLogger(cfg.LogLevel)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "./configs", "Directory containing config.yaml")
	rootCmd.AddCommand(botCmd, ingestCmd, extractCmd, bookCmd, listCmd, updateCmd, deleteCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// newLogger logs JSON to stderr so command output on stdout stays clean.
func newLogger(level string) (*logrus.Logger, error) {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetOutput(os.Stderr)
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}
	l.SetLevel(lvl)
	return l, nil
}

// pipeline is everything between raw input and a stored, tagged item.
type pipeline struct {
	registry *prometheus.Registry
	metrics  *metrics.Recorder
	repo     storage.Repository
	browser  *extract.BrowserFetcher
	router   *extract.Router
	books    *books.Client
	enricher *enrich.Enricher
	queue    *enrich.TagQueue
	ingest   *ingest.Service
}

func openRepository(ctx context.Context) (storage.Repository, error) {
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		return storage.NewPostgresRepository(ctx, cfg.PostgresDSN, log)
	default:
		return storage.NewBadgerRepository(cfg.BadgerDBPath, log)
	}
}

func newRouter(rec *metrics.Recorder) (*extract.Router, *extract.BrowserFetcher) {
	opts := extract.Options{
		Client:        http.DefaultClient,
		Credentials:   cfg.Credentials,
		APITimeout:    cfg.APITimeout,
		ScrapeTimeout: cfg.ScrapeTimeout,
	}
	var browser *extract.BrowserFetcher
	if cfg.ScraperBrowser {
		browser = extract.NewBrowserFetcher(cfg.ScrapeTimeout, log)
		opts.Pages = browser
	}
	return extract.NewDefaultRouter(opts, rec, log), browser
}

func newBooks(rec *metrics.Recorder) *books.Client {
	return books.NewClient(http.DefaultClient, cfg.GoogleAPIKey, cfg.APITimeout, rec, log)
}

// newPipeline wires storage, extraction, enrichment and the AI tag queue.
func newPipeline(ctx context.Context) (*pipeline, error) {
	p := &pipeline{registry: prometheus.NewRegistry()}
	p.metrics = metrics.New(p.registry)

	repo, err := openRepository(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	p.repo = repo

	p.router, p.browser = newRouter(p.metrics)
	p.books = newBooks(p.metrics)

	tagger := tagging.NewTagger(tagging.NewAnthropicGenerator(cfg.AnthropicAPIKey, cfg.AnthropicModel), log)
	p.enricher = enrich.NewEnricher(repo, p.router, p.books, tagger, p.metrics, log)
	p.enricher.SetAITimeout(cfg.AITimeout)
	p.queue = enrich.NewTagQueue(ctx, p.enricher, cfg.AITagWorkers, log)
	p.ingest = ingest.NewService(repo, p.enricher, p.queue, log)
	return p, nil
}

// Close drains background tagging before closing storage.
func (p *pipeline) Close() {
	p.queue.Close()
	if p.browser != nil {
		if err := p.browser.Close(); err != nil {
			log.WithError(err).Warn("Error closing browser")
		}
	}
	if err := p.repo.Close(); err != nil {
		log.WithError(err).Error("Error closing database")
	}
}

func printYAML(cmd *cobra.Command, v any) error {
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
