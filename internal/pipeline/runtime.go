// Package pipeline is the streaming indicator runtime: a subject feeds
// candles in, per-ticker sliding windows accumulate them, and every window
// emission fans an indicator snapshot plus trade signal out to the sinks.
package pipeline

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/finpulse/finpulse/internal/common"
	"github.com/finpulse/finpulse/internal/indicators"
	"github.com/finpulse/finpulse/internal/models"
	"github.com/finpulse/finpulse/internal/signals"
)

const (
	defaultWindowSpan    = 900 * time.Minute
	defaultWindowHop     = 5 * time.Minute
	defaultSnapshotEvery = 60 * time.Second
	defaultWorkers       = 5
	ingestBuffer         = 256
)

// shard owns a disjoint set of tickers. Each shard is serviced by exactly
// one worker, which serializes window updates per ticker.
type shard struct {
	mu       sync.Mutex
	windows  map[string]*indicators.Window
	lastEmit map[string]time.Time
}

func newShard() *shard {
	return &shard{
		windows:  make(map[string]*indicators.Window),
		lastEmit: make(map[string]time.Time),
	}
}

// Runtime drives the indicator pipeline.
type Runtime struct {
	subject   Subject
	generator *signals.Generator
	sinks     []Sink
	persister *Persister
	logger    arbor.ILogger

	windowSpan    time.Duration
	windowHop     time.Duration
	snapshotEvery time.Duration

	shards []*shard
}

// NewRuntime assembles the runtime and restores any persisted window state.
// A corrupt state file has already been wiped by the persister; the runtime
// logs it and starts cold.
func NewRuntime(
	config *common.PipelineConfig,
	subject Subject,
	generator *signals.Generator,
	persister *Persister,
	sinks []Sink,
	logger arbor.ILogger,
) (*Runtime, error) {
	r := &Runtime{
		subject:       subject,
		generator:     generator,
		sinks:         sinks,
		persister:     persister,
		logger:        logger,
		windowSpan:    common.DurationOr(config.WindowDuration, defaultWindowSpan),
		windowHop:     common.DurationOr(config.WindowHop, defaultWindowHop),
		snapshotEvery: common.DurationOr(config.SnapshotInterval, defaultSnapshotEvery),
	}

	r.shards = make([]*shard, defaultWorkers)
	for i := range r.shards {
		r.shards[i] = newShard()
	}

	if persister != nil {
		state, err := persister.Load()
		if err != nil {
			logger.Warn().Err(err).Msg("State restore failed, starting cold")
		}
		restored := 0
		for ticker, ts := range state.Tickers {
			sh := r.shardFor(ticker)
			w := indicators.NewWindow(ticker)
			for _, b := range ts.Bars {
				w.Add(b)
			}
			sh.windows[ticker] = w
			sh.lastEmit[ticker] = ts.LastEmit
			restored++
		}
		if restored > 0 {
			logger.Info().Int("tickers", restored).Msg("Restored window state")
		}
	}

	return r, nil
}

func (r *Runtime) shardFor(ticker string) *shard {
	h := fnv.New32a()
	h.Write([]byte(ticker))
	return r.shards[int(h.Sum32())%len(r.shards)]
}

// Run blocks until the subject is exhausted or the context is cancelled,
// then persists state and flushes sinks.
func (r *Runtime) Run(ctx context.Context) error {
	out := make(chan models.Candle, ingestBuffer)

	go func() {
		defer close(out)
		if err := r.subject.Run(ctx, out); err != nil && ctx.Err() == nil {
			r.logger.Error().Err(err).Msg("Subject terminated")
		}
	}()

	// One worker per shard keeps each ticker's updates in arrival order.
	inputs := make([]chan models.Candle, len(r.shards))
	var wg sync.WaitGroup
	for i := range r.shards {
		inputs[i] = make(chan models.Candle, ingestBuffer)
		wg.Add(1)
		go func(sh *shard, in <-chan models.Candle) {
			defer wg.Done()
			for c := range in {
				r.ingest(ctx, sh, c)
			}
		}(r.shards[i], inputs[i])
	}

	snapTick := time.NewTicker(r.snapshotEvery)
	defer snapTick.Stop()

	drain := func() error {
		for _, in := range inputs {
			close(in)
		}
		wg.Wait()
		r.persist()
		r.flushSinks(context.WithoutCancel(ctx))
		return nil
	}

	for {
		select {
		case c, ok := <-out:
			if !ok {
				return drain()
			}
			sh := r.shardFor(c.Ticker)
			for i := range r.shards {
				if r.shards[i] == sh {
					select {
					case inputs[i] <- c:
					case <-ctx.Done():
						return drain()
					}
					break
				}
			}
		case <-snapTick.C:
			r.persist()
		case <-ctx.Done():
			return drain()
		}
	}
}

// ingest applies one candle: add to the window, retract bars that fell out
// of the span, and emit once per (ticker, window end). Bars landing in an
// already-sealed window still update state but never re-emit.
func (r *Runtime) ingest(ctx context.Context, sh *shard, c models.Candle) {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	w, ok := sh.windows[c.Ticker]
	if !ok {
		w = indicators.NewWindow(c.Ticker)
		sh.windows[c.Ticker] = w
	}
	if !w.Add(c) {
		r.logger.Debug().Str("ticker", c.Ticker).Str("ts", c.Timestamp.Format(time.RFC3339)).Msg("Dropped bar failing date sanity")
		return
	}

	latest, _ := w.Latest()
	w.RetractBefore(latest.Timestamp.Add(-r.windowSpan))

	windowEnd := c.Timestamp.Truncate(r.windowHop).Add(r.windowHop)
	if !windowEnd.After(sh.lastEmit[c.Ticker]) {
		return // sealed window, state-only update
	}

	snap := w.Compute(windowEnd)
	if snap == nil {
		return
	}
	sig := r.generator.Generate(snap, avgVolume(w.Bars))

	for _, sink := range r.sinks {
		if err := sink.Emit(ctx, snap, &sig); err != nil {
			r.logger.Warn().Str("ticker", c.Ticker).Err(err).Msg("Sink emit failed")
		}
	}
	sh.lastEmit[c.Ticker] = windowEnd
}

func (r *Runtime) persist() {
	if r.persister == nil {
		return
	}
	state := persistedState{Tickers: make(map[string]tickerState)}
	for _, sh := range r.shards {
		sh.mu.Lock()
		for ticker, w := range sh.windows {
			state.Tickers[ticker] = tickerState{
				Bars:     append([]models.Candle(nil), w.Bars...),
				LastEmit: sh.lastEmit[ticker],
			}
		}
		sh.mu.Unlock()
	}
	if err := r.persister.Save(state); err != nil {
		r.logger.Warn().Err(err).Msg("State persist failed")
	}
}

func (r *Runtime) flushSinks(ctx context.Context) {
	for _, sink := range r.sinks {
		if err := sink.Flush(ctx); err != nil {
			r.logger.Warn().Err(err).Msg("Sink flush failed")
		}
	}
}

func avgVolume(bars []models.Candle) float64 {
	if len(bars) == 0 {
		return 0
	}
	sum := 0.0
	for _, b := range bars {
		sum += b.Volume
	}
	return sum / float64(len(bars))
}
