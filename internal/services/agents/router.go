package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"golang.org/x/sync/semaphore"

	"github.com/finpulse/finpulse/internal/common"
	"github.com/finpulse/finpulse/internal/interfaces"
	"github.com/finpulse/finpulse/internal/models"
)

const (
	routerGroup            = "analysis-router"
	defaultMaxConcurrent   = 3
	defaultShutdownTimeout = 60 * time.Second
)

// News liquidity labels that justify spending an analysis run.
var highImpactLiquidity = map[string]bool{
	"HIGH_POSITIVE": true,
	"HIGH_NEGATIVE": true,
}

// Router consumes trade_signals and summarized_news, runs the agent graph
// for qualifying messages, and publishes reports to stock_analysis.
//
// Messages are processed fire-and-forget so consumption never stalls behind
// a slow analysis. A weighted semaphore bounds concurrent runs and a
// per-ticker mutex serializes runs for the same instrument.
type Router struct {
	broker      interfaces.MessageBroker
	coordinator *Coordinator
	logger      arbor.ILogger

	sem             *semaphore.Weighted
	shutdownTimeout time.Duration

	mu          sync.Mutex
	tickerLocks map[string]*sync.Mutex

	tasks   sync.WaitGroup
	runCtx  context.Context
	cancel  context.CancelFunc
	started bool
}

func NewRouter(config *common.AgentsConfig, broker interfaces.MessageBroker, coordinator *Coordinator, logger arbor.ILogger) *Router {
	maxConcurrent := defaultMaxConcurrent
	shutdownTimeout := defaultShutdownTimeout
	if config != nil {
		if config.MaxConcurrent > 0 {
			maxConcurrent = config.MaxConcurrent
		}
		shutdownTimeout = common.DurationOr(config.ShutdownTimeout, defaultShutdownTimeout)
	}
	return &Router{
		broker:          broker,
		coordinator:     coordinator,
		logger:          logger,
		sem:             semaphore.NewWeighted(int64(maxConcurrent)),
		shutdownTimeout: shutdownTimeout,
		tickerLocks:     make(map[string]*sync.Mutex),
	}
}

// Start subscribes to both trigger topics. Handlers return immediately; the
// analysis itself runs on tracked goroutines.
func (r *Router) Start(ctx context.Context) error {
	if r.started {
		return fmt.Errorf("router already started")
	}
	r.runCtx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))
	r.started = true

	if err := r.broker.Subscribe(interfaces.TopicTradeSignals, routerGroup, r.handleSignal); err != nil {
		return fmt.Errorf("subscribe %s: %w", interfaces.TopicTradeSignals, err)
	}
	if err := r.broker.Subscribe(interfaces.TopicSummarizedNews, routerGroup, r.handleNews); err != nil {
		return fmt.Errorf("subscribe %s: %w", interfaces.TopicSummarizedNews, err)
	}
	r.logger.Info().
		Str("group", routerGroup).
		Msg("Analysis router subscribed to trade_signals and summarized_news")
	return nil
}

// Stop drains in-flight analyses, cancelling whatever is still running when
// the drain deadline passes.
func (r *Router) Stop() {
	if !r.started {
		return
	}
	_ = r.broker.Unsubscribe(interfaces.TopicTradeSignals, routerGroup)
	_ = r.broker.Unsubscribe(interfaces.TopicSummarizedNews, routerGroup)

	done := make(chan struct{})
	go func() {
		r.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.logger.Info().Msg("All analysis tasks drained")
	case <-time.After(r.shutdownTimeout):
		r.logger.Warn().
			Str("timeout", r.shutdownTimeout.String()).
			Msg("Drain deadline passed, cancelling remaining analyses")
	}
	r.cancel()
	r.started = false
}

func (r *Router) handleSignal(_ context.Context, msg interfaces.BrokerMessage) error {
	var signal models.TradeSignal
	if err := json.Unmarshal(msg.Value, &signal); err != nil {
		r.logger.Warn().Err(err).Msg("Undecodable trade signal, dropping")
		return nil
	}
	if signal.Action == models.ActionHold {
		return nil
	}

	taskID := uuid.NewString()[:8]
	r.logger.Info().
		Str("task", taskID).
		Str("ticker", signal.Ticker).
		Str("action", signal.Action).
		Msg("Trade signal accepted for analysis")

	r.spawn(signal.Ticker, taskID, AnalysisRequest{
		Query:   fmt.Sprintf("Analyze %s based on technical %s signal", signal.Ticker, signal.Action),
		Trigger: models.TriggerTechnicalSignal,
		Signal:  &signal,
	})
	return nil
}

func (r *Router) handleNews(_ context.Context, msg interfaces.BrokerMessage) error {
	var news models.NewsMessage
	if err := json.Unmarshal(msg.Value, &news); err != nil {
		r.logger.Warn().Err(err).Msg("Undecodable news message, dropping")
		return nil
	}
	if !highImpactLiquidity[news.LiquidityImpact] {
		r.logger.Debug().
			Str("ticker", news.Company).
			Str("liquidity", news.LiquidityImpact).
			Msg("Skipping low-impact news")
		return nil
	}

	taskID := uuid.NewString()[:8]
	r.logger.Info().
		Str("task", taskID).
		Str("ticker", news.Company).
		Str("title", news.Title).
		Msg("High-impact news accepted for analysis")

	r.spawn(news.Company, taskID, AnalysisRequest{
		Query:   fmt.Sprintf("Analyze %s based on high-impact news", news.Company),
		Trigger: models.TriggerNewsSignal,
		News:    &news,
	})
	return nil
}

// spawn runs one analysis under the global semaphore and the ticker's lock.
func (r *Router) spawn(ticker, taskID string, req AnalysisRequest) {
	r.tasks.Add(1)
	go func() {
		defer r.tasks.Done()

		if err := r.sem.Acquire(r.runCtx, 1); err != nil {
			r.logger.Warn().Str("task", taskID).Msg("Analysis cancelled before start")
			return
		}
		defer r.sem.Release(1)

		lock := r.lockFor(ticker)
		lock.Lock()
		defer lock.Unlock()

		report := r.coordinator.Analyze(r.runCtx, req)
		if !report.ShouldPublish {
			r.logger.Warn().
				Str("task", taskID).
				Str("ticker", ticker).
				Str("reason", report.ConflictReason).
				Msg("Report suppressed by conflict check")
			return
		}
		if err := r.broker.Publish(r.runCtx, interfaces.TopicStockAnalysis, ticker, report); err != nil {
			r.logger.Error().Str("task", taskID).Str("ticker", ticker).Err(err).Msg("Report publish failed")
			return
		}
		r.logger.Info().
			Str("task", taskID).
			Str("ticker", ticker).
			Str("topic", interfaces.TopicStockAnalysis).
			Msg("Analysis report published")
	}()
}

func (r *Router) lockFor(ticker string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.tickerLocks[ticker]
	if !ok {
		lock = &sync.Mutex{}
		r.tickerLocks[ticker] = lock
	}
	return lock
}
