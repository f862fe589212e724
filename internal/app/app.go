// Package app wires the application: storage, topic bus, the news
// enrichment services, the indicator pipeline, and the agent layer.
// Initialization order matters; Close tears down in reverse.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/finpulse/finpulse/internal/broker"
	"github.com/finpulse/finpulse/internal/common"
	"github.com/finpulse/finpulse/internal/interfaces"
	"github.com/finpulse/finpulse/internal/pipeline"
	"github.com/finpulse/finpulse/internal/services/agents"
	"github.com/finpulse/finpulse/internal/services/dedup"
	"github.com/finpulse/finpulse/internal/services/enricher"
	"github.com/finpulse/finpulse/internal/services/fetcher"
	"github.com/finpulse/finpulse/internal/services/llm"
	"github.com/finpulse/finpulse/internal/services/marketdata"
	"github.com/finpulse/finpulse/internal/services/portfolio"
	"github.com/finpulse/finpulse/internal/services/sentiment"
	"github.com/finpulse/finpulse/internal/services/summarizer"
	"github.com/finpulse/finpulse/internal/signals"
	storage "github.com/finpulse/finpulse/internal/storage/badger"
)

// bloomPersistSchedule flushes the dedup bloom filter to disk so a restart
// does not forget recently seen URLs.
const bloomPersistSchedule = "@every 15m"

// App holds all initialized components.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Storage and messaging
	DB             *storage.BadgerDB
	StorageManager interfaces.StorageManager
	Broker         *broker.Broker

	// LLM providers: primary for summarization and synthesis, decision for
	// orchestrator routing.
	Provider         interfaces.LLMProvider
	DecisionProvider interfaces.LLMProvider

	// News enrichment
	DedupService      interfaces.DedupService
	FetcherService    interfaces.FetcherService
	SentimentService  interfaces.SentimentService
	EnricherService   *enricher.Service
	SummarizerService *summarizer.Service

	// Indicator pipeline
	MarketData *marketdata.Client
	Runtime    *pipeline.Runtime

	// Agent layer
	PortfolioService *portfolio.Service
	Coordinator      *agents.Coordinator
	Router           *agents.Router

	cron *cron.Cron
}

// New initializes the application. Components are created in dependency
// order; any failure aborts startup.
func New(ctx context.Context, config *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{
		Config: config,
		Logger: logger,
	}

	if err := a.initStorage(); err != nil {
		return nil, fmt.Errorf("storage init failed: %w", err)
	}
	if err := a.initProviders(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("llm init failed: %w", err)
	}
	if err := a.initNewsServices(); err != nil {
		a.Close()
		return nil, fmt.Errorf("news services init failed: %w", err)
	}
	if err := a.initPipeline(); err != nil {
		a.Close()
		return nil, fmt.Errorf("pipeline init failed: %w", err)
	}
	if err := a.initAgents(); err != nil {
		a.Close()
		return nil, fmt.Errorf("agents init failed: %w", err)
	}
	a.initJobs()

	logger.Info().Str("environment", config.Environment).Msg("Application initialized")
	return a, nil
}

func (a *App) initStorage() error {
	db, err := storage.NewBadgerDB(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return err
	}
	a.DB = db
	a.StorageManager = storage.NewManagerFromDB(db, a.Logger)

	// The broker shares the storage connection; topic logs and offsets live
	// next to the documents they describe.
	a.Broker = broker.NewBroker(db, &a.Config.Broker, a.Logger)

	a.Logger.Info().Str("path", a.Config.Storage.Badger.Path).Msg("Storage initialized")
	return nil
}

func (a *App) initProviders(ctx context.Context) error {
	provider, err := llm.NewProvider(ctx, a.Config.LLM.DefaultProvider, a.Config, a.Logger)
	if err != nil {
		return err
	}
	a.Provider = provider

	decision, err := llm.NewDecisionProvider(ctx, a.Config, a.Logger)
	if err != nil {
		return err
	}
	a.DecisionProvider = decision

	a.Logger.Info().
		Str("provider", provider.Name()).
		Str("decision_provider", decision.Name()).
		Msg("LLM providers initialized")
	return nil
}

func (a *App) initNewsServices() error {
	mgr := a.StorageManager

	a.DedupService = dedup.NewService(mgr.KV(), mgr.Articles(), a.Logger)
	a.FetcherService = fetcher.NewService(&a.Config.Fetcher, a.Logger)

	classifier := sentiment.NewHTTPClassifier(&a.Config.Sentiment, a.Logger)
	a.SentimentService = sentiment.NewService(classifier, &a.Config.Sentiment, a.Logger)

	a.EnricherService = enricher.NewService(mgr, a.DedupService, a.FetcherService, a.SentimentService, &a.Config.Enricher, a.Logger)
	a.SummarizerService = summarizer.NewService(mgr, a.Provider, a.Broker, &a.Config.Summarizer, a.Logger)

	a.Logger.Info().Msg("News enrichment services initialized")
	return nil
}

func (a *App) initPipeline() error {
	client, err := marketdata.NewClient(&a.Config.MarketData, a.Logger)
	if err != nil {
		return err
	}
	a.MarketData = client

	cfg := &a.Config.Pipeline
	gate, err := pipeline.NewMarketGate(cfg.Timezone, cfg.MarketOpen, cfg.MarketClose)
	if err != nil {
		return err
	}

	var subject pipeline.Subject
	if cfg.LiveMode {
		subject = pipeline.NewLiveSubject(client, gate, cfg.Tickers, cfg.Interval,
			common.DurationOr(cfg.PollDelay, time.Second), a.Logger)
	} else {
		subject = pipeline.NewReplaySubject(cfg.BacktestCSV,
			common.DurationOr(cfg.BacktestDelay, 3*time.Second), a.Logger)
	}

	persister, err := pipeline.NewPersister(cfg.PersistenceDir)
	if err != nil {
		return err
	}

	sinks := []pipeline.Sink{
		pipeline.NewStoreSink(a.StorageManager.Signals()),
		pipeline.NewUniverseSink(a.StorageManager.Signals(), cfg.UniverseBatch),
		pipeline.NewBrokerSink(a.Broker, a.Logger),
	}
	if cfg.HistoryCSV != "" {
		csvSink, err := pipeline.NewCSVSink(cfg.HistoryCSV)
		if err != nil {
			return err
		}
		sinks = append(sinks, csvSink)
	}

	runtime, err := pipeline.NewRuntime(cfg, subject, signals.NewGenerator(&a.Config.Signals, nil), persister, sinks, a.Logger)
	if err != nil {
		return err
	}
	a.Runtime = runtime

	a.Logger.Info().
		Bool("live_mode", cfg.LiveMode).
		Int("tickers", len(cfg.Tickers)).
		Str("interval", cfg.Interval).
		Msg("Indicator pipeline initialized")
	return nil
}

func (a *App) initAgents() error {
	cfg := &a.Config.Agents
	a.PortfolioService = portfolio.NewService(a.StorageManager.Portfolios(), &a.Config.Portfolio, a.Logger)

	var resolver interfaces.TickerResolver
	if cfg.SymbolsCSV != "" {
		r, err := agents.NewTickerResolver(cfg.SymbolsCSV, a.Logger)
		if err != nil {
			return err
		}
		resolver = r
	} else {
		a.Logger.Warn().Msg("No symbols CSV configured, ticker resolution disabled")
	}

	userID := a.Config.Portfolio.DefaultUser
	orchestrator := agents.NewOrchestrator(a.DecisionProvider, resolver, a.Logger)
	news := agents.NewNewsAgent(a.StorageManager.Summaries(), a.Provider, a.Logger)
	twitter := agents.NewTwitterAgent(nil, a.Provider, a.Logger)
	technical := agents.NewTechnicalAgent(a.MarketData, a.Logger)
	fundamental := agents.NewFundamentalAgent(a.PortfolioService, a.Provider, userID, a.Logger)
	montecarlo := agents.NewMonteCarloAgent(a.MarketData, cfg.MonteCarloRuns, a.Logger)
	explain := agents.NewExplainabilityAgent(a.Provider, a.PortfolioService, a.MarketData, userID, cfg.MaxToolIterations, a.Logger)

	a.Coordinator = agents.NewCoordinator(orchestrator, news, twitter, technical, fundamental, montecarlo, explain, nil, a.Logger)
	a.Router = agents.NewRouter(cfg, a.Broker, a.Coordinator, a.Logger)

	a.Logger.Info().
		Int("max_concurrent", cfg.MaxConcurrent).
		Str("user", userID).
		Msg("Agent layer initialized")
	return nil
}

func (a *App) initJobs() {
	a.cron = cron.New()
	if _, err := a.cron.AddFunc(bloomPersistSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.DedupService.PersistBloom(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Bloom filter persist failed")
		}
	}); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to schedule bloom persist job")
	}
}

// Run starts the long-running loops and blocks until the context is
// cancelled or a loop fails. The router is event-driven and stopped on the
// way out.
func (a *App) Run(ctx context.Context) error {
	if err := a.Router.Start(ctx); err != nil {
		return fmt.Errorf("router start failed: %w", err)
	}
	a.cron.Start()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.EnricherService.Run(ctx) })
	g.Go(func() error { return a.SummarizerService.Run(ctx) })
	g.Go(func() error { return a.Runtime.Run(ctx) })

	a.Logger.Info().Msg("Application running")
	err := g.Wait()
	if err != nil && ctx.Err() == nil {
		a.Logger.Error().Err(err).Msg("Service loop failed")
	}
	return err
}

// Close shuts down in reverse initialization order. Errors are logged, not
// returned; teardown always runs to completion.
func (a *App) Close() {
	a.Logger.Info().Msg("Shutting down application")

	if a.cron != nil {
		<-a.cron.Stop().Done()
	}
	if a.Router != nil {
		a.Router.Stop()
	}
	if a.DedupService != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := a.DedupService.PersistBloom(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Final bloom persist failed")
		}
		cancel()
	}
	if a.FetcherService != nil {
		if err := a.FetcherService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Fetcher close failed")
		}
	}
	if a.Broker != nil {
		if err := a.Broker.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Broker close failed")
		}
	}
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Storage close failed")
		}
	}

	a.Logger.Info().Msg("Application stopped")
}
