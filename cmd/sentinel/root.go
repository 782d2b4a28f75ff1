package main

import (
	"context"
	"fmt"

	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/aggregator"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/config"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/detector"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/llm"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/logger"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/parser"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/repository"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/service"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const legalNote = `AI-generated intent labels are probabilistic inferences.
Do not present them as legal conclusions without attorney review.`

var (
	cfgFile  string
	dbPath   string
	logLevel string
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Offline SMS and call log intent analyzer",
	Long: `Sentinel parses SMS Backup & Restore XML exports, flags harmful or
legally relevant messages with a keyword pass and optional LLM confirmation,
and builds per-contact risk profiles in a local SQLite database.

` + legalNote,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (defaults only when empty)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides database.path)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides logging.level)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// app holds everything a command needs; close releases it
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	db       *sqlx.DB
	repo     repository.Repository
	adapter  *llm.MultiProviderAdapter
	sentinel *service.Sentinel
}

// llmMode selects how a command builds its LLM chain
type llmMode int

const (
	llmNone     llmMode = iota // never build providers
	llmOptional                // keyword-only fallback when providers fail
	llmRequired                // error when no provider can be built
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

func newApp(ctx context.Context, mode llmMode) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		return nil, err
	}

	db, err := repository.Open(cfg.Database.Path, log)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a := &app{cfg: cfg, logger: log, db: db, repo: repository.NewRepository(db, log)}

	var dict *detector.Dictionary
	if cfg.Scan.KeywordsFile != "" {
		if dict, err = detector.LoadDictionary(cfg.Scan.KeywordsFile); err != nil {
			a.close()
			return nil, fmt.Errorf("load keywords: %w", err)
		}
		names := make([]string, 0)
		for _, c := range dict.Categories() {
			names = append(names, c.Name)
		}
		log.Info("Keyword dictionary loaded", zap.Strings("categories", names))
	}

	if mode == llmRequired || (mode == llmOptional && !cfg.Scan.KeywordOnly) {
		adapter, err := llm.NewFromConfig(ctx, cfg.Providers, cfg.MaxFailuresBeforeSwitch, log)
		switch {
		case err == nil:
			a.adapter = adapter
		case mode == llmRequired:
			a.close()
			return nil, err
		default:
			log.Warn("No LLM provider available, scans run keyword-only", zap.Error(err))
		}
	}

	var adapter llm.Adapter
	if a.adapter != nil {
		adapter = a.adapter
	}

	a.sentinel = service.NewSentinel(
		a.repo,
		parser.New(log),
		detector.NewIntentAnalyzer(detector.NewKeywordDetector(dict, cfg.Scan.ContextWindow), log),
		aggregator.NewContactAggregator(cfg.ContactRelationships, log),
		adapter,
		service.Options{
			RunLabel:      cfg.Scan.RunLabel,
			ReportVersion: cfg.Report.Version,
			ContextWindow: cfg.Scan.ContextWindow,
		},
		log,
	)
	return a, nil
}

func (a *app) close() {
	if a.sentinel != nil {
		a.sentinel.Wait()
	}
	if a.adapter != nil {
		a.adapter.Close()
	}
	a.db.Close()
	a.logger.Sync()
}
