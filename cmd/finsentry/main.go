package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/finsentry/finsentry/internal/collect"
	"github.com/finsentry/finsentry/internal/config"
	"github.com/finsentry/finsentry/internal/database"
	"github.com/finsentry/finsentry/internal/dedup"
	"github.com/finsentry/finsentry/internal/gate"
	"github.com/finsentry/finsentry/internal/llm"
	"github.com/finsentry/finsentry/internal/orchestrator"
	"github.com/finsentry/finsentry/internal/provider"
	"github.com/finsentry/finsentry/internal/retrieval"
	"github.com/finsentry/finsentry/internal/server"
	"github.com/finsentry/finsentry/internal/story"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "finsentry",
	Short:   "Financial news monitoring and alerting",
	Long:    "Finsentry collects market news, verifies stories across sources, enriches them with historical context, and alerts on verified negative high-impact developments.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(corpusCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("finsentry", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/finsentry/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure feeds, tickers, API keys, and the LLM provider.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show archive and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Println("Events:")
		fmt.Printf("  Total: %d\n", stats.TotalEvents)
		fmt.Printf("  Alerts: %d\n", stats.Alerts)
		fmt.Printf("  Logged: %d\n", stats.Logged)
		fmt.Printf("  Suppressed: %d\n", stats.Suppressed)
		fmt.Println("\nCorpus:")
		fmt.Printf("  Documents: %d\n", stats.CorpusDocuments)
		return nil
	},
}

// --- collect command ---

// previewSink counts dedup outcomes without running the pipeline.
type previewSink struct {
	d *dedup.Deduplicator
}

func (s *previewSink) Submit(raw story.RawItem) (dedup.Result, error) {
	return s.d.Submit(raw), nil
}

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Preview collection: fetch from sources and report counts without processing",
	RunE: func(cmd *cobra.Command, args []string) error {
		collector := collect.NewCollector(collectOptions(), &previewSink{
			d: dedup.New(cfg.Pipeline.DedupWindow.Std()),
		})
		result := collector.Collect(cmd.Context())

		fmt.Println("\nCollection preview:")
		fmt.Printf("  Total found: %d\n", result.TotalFound)
		fmt.Printf("  Distinct stories: %d\n", result.NewStories)
		fmt.Printf("  Duplicates: %d\n", result.Duplicates)

		if len(result.Sources) > 0 {
			fmt.Println("\nStories by first source:")
			type kv struct {
				key string
				val int
			}
			var sorted []kv
			for k, v := range result.Sources {
				sorted = append(sorted, kv{k, v})
			}
			sort.Slice(sorted, func(i, j int) bool { return sorted[i].val > sorted[j].val })
			for _, s := range sorted {
				fmt.Printf("  %s: %d\n", s.key, s.val)
			}
		}
		return nil
	},
}

// --- run command ---

var runWait time.Duration

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one pipeline pass: collect, classify, verify, retrieve, synthesize, gate",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		orch := newOrchestrator(db)

		collector := collect.NewCollector(collectOptions(), orch)
		result := collector.Collect(cmd.Context())
		fmt.Printf("Collected %d items: %d new stories, %d duplicates\n",
			result.TotalFound, result.NewStories, result.Duplicates)

		// Give stories a window to reach their quorum before shutdown
		// resolves the stragglers as unconfirmed.
		deadline := time.Now().Add(runWait)
		for {
			stats := orch.Stats()
			if stats.InFlight == 0 || time.Now().After(deadline) {
				break
			}
			time.Sleep(time.Second)
		}
		orch.Close()

		stats, err := db.GetStats()
		if err != nil {
			return err
		}
		fmt.Printf("\nPipeline pass complete. Archive: %d events, %d alerts.\n",
			stats.TotalEvents, stats.Alerts)
		fmt.Println("Run 'finsentry serve' to browse the feed.")
		return nil
	},
}

func init() {
	runCmd.Flags().DurationVar(&runWait, "wait", 2*time.Minute,
		"How long to wait for pending verifications before shutting down")
}

// --- serve command ---

var (
	servePort       int
	collectInterval time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pipeline continuously and serve the event feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		orch := newOrchestrator(db)
		defer orch.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		collector := collect.NewCollector(collectOptions(), orch)
		go func() {
			collector.Collect(ctx)
			ticker := time.NewTicker(collectInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					collector.Collect(ctx)
				}
			}
		}()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")

		errCh := make(chan error, 1)
		go func() { errCh <- server.Serve(db, orch, port) }()

		select {
		case <-ctx.Done():
			fmt.Println("\nShutting down...")
			return nil
		case err := <-errCh:
			return err
		}
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
	serveCmd.Flags().DurationVar(&collectInterval, "interval", 15*time.Minute, "Collection interval")
}

// --- corpus commands ---

var corpusCmd = &cobra.Command{
	Use:   "corpus",
	Short: "Manage the historical context corpus",
}

var corpusIngestCmd = &cobra.Command{
	Use:   "ingest [dir]",
	Short: "Ingest .txt/.md documents from a directory into the corpus",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		embedder := llm.NewOllamaEmbedder(cfg.LLM.EmbeddingModel, cfg.LLM.OllamaURL)
		ingestor := retrieval.NewIngestor(db, embedder)

		result, err := ingestor.IngestDir(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Ingested %d files into %d chunks (%d errors)\n",
			result.Files, result.Chunks, result.Errors)
		return nil
	},
}

var corpusStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show corpus size",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.CorpusCount()
		if err != nil {
			return err
		}
		fmt.Printf("Corpus documents: %d\n", n)
		return nil
	},
}

func init() {
	corpusCmd.AddCommand(corpusIngestCmd)
	corpusCmd.AddCommand(corpusStatusCmd)
}

// --- wiring ---

func newOrchestrator(db *database.DB) *orchestrator.Orchestrator {
	llmProvider := llm.CreateProvider(llm.Options{
		Backend:     cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		OllamaURL:   cfg.LLM.OllamaURL,
		OpenAIModel: cfg.LLM.OpenAIModel,
		APIKeyEnv:   cfg.LLM.APIKeyEnv,
		Temperature: cfg.LLM.Temperature,
	})
	embedder := llm.NewOllamaEmbedder(cfg.LLM.EmbeddingModel, cfg.LLM.OllamaURL)

	providers := provider.Set{
		Classifier:  provider.NewLLMClassifier(llmProvider, cfg.Tickers),
		Sentiment:   provider.NewLLMSentimentScorer(llmProvider),
		Impact:      provider.NewLLMImpactRater(llmProvider),
		Retriever:   retrieval.New(db, embedder),
		Synthesizer: provider.NewLLMSynthesizer(llmProvider),
	}

	return orchestrator.New(orchestrator.Options{
		Workers:             cfg.Pipeline.Workers,
		RetryAttempts:       cfg.Pipeline.RetryAttempts,
		RetryBase:           cfg.Pipeline.RetryBackoff.Std(),
		RequiredSources:     cfg.Pipeline.RequiredSources,
		VerificationTimeout: cfg.Pipeline.VerificationTimeout.Std(),
		RetrievalK:          cfg.Pipeline.RetrievalK,
		DedupWindow:         cfg.Pipeline.DedupWindow.Std(),
		SweepInterval:       cfg.Pipeline.SweepInterval.Std(),
		Rule: gate.Rule{
			Sentiment: cfg.Pipeline.Alert.Sentiment,
			Impact:    cfg.Pipeline.Alert.Impact,
		},
	}, providers, db)
}

func collectOptions() collect.Options {
	opts := collect.Options{
		Tickers:      cfg.Tickers,
		DaysBack:     cfg.Collect.DaysBack,
		EnrichBodies: cfg.Collect.EnrichBodies,
	}
	for _, f := range cfg.Sources.Feeds {
		opts.Feeds = append(opts.Feeds, collect.FeedConfig{URL: f.URL, Name: f.Name})
	}
	if api := cfg.Sources.APIs.NewsAPI; api.Enabled {
		opts.NewsAPIKeyEnv = api.APIKeyEnv
		opts.NewsAPIQuery = api.Query
	}
	return opts
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "finsentry.db")
	return database.Open(dbPath)
}
