package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/finpulse/finpulse/internal/interfaces"
	"github.com/finpulse/finpulse/internal/models"
)

const stateFileName = "pipeline.state"

// tickerState is the persisted form of one ticker's window.
type tickerState struct {
	Bars     []models.Candle `msgpack:"bars"`
	LastEmit time.Time       `msgpack:"last_emit"`
}

// persistedState is the on-disk runtime image.
type persistedState struct {
	SavedAt time.Time              `msgpack:"saved_at"`
	Tickers map[string]tickerState `msgpack:"tickers"`
}

// Persister snapshots runtime state to disk so a restart resumes instead of
// rebuilding windows from scratch.
type Persister struct {
	dir string
}

func NewPersister(dir string) (*Persister, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create persistence dir: %w", err)
	}
	return &Persister{dir: dir}, nil
}

func (p *Persister) path() string {
	return filepath.Join(p.dir, stateFileName)
}

// Save writes the state atomically: temp file then rename.
func (p *Persister) Save(state persistedState) error {
	state.SavedAt = time.Now().UTC()
	data, err := msgpack.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	tmp := p.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, p.path()); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

// Load reads the previous state. A missing file yields an empty state. A
// file that fails to decode, or that holds bars with insane dates, is wiped
// and ErrSnapshotCorrupt returned so the caller rebuilds from scratch.
func (p *Persister) Load() (persistedState, error) {
	empty := persistedState{Tickers: make(map[string]tickerState)}

	data, err := os.ReadFile(p.path())
	if os.IsNotExist(err) {
		return empty, nil
	}
	if err != nil {
		return empty, fmt.Errorf("read state: %w", err)
	}

	var state persistedState
	if err := msgpack.Unmarshal(data, &state); err != nil {
		p.wipe()
		return empty, fmt.Errorf("decode state: %w", interfaces.ErrSnapshotCorrupt)
	}
	if state.Tickers == nil {
		state.Tickers = make(map[string]tickerState)
	}
	for ticker, ts := range state.Tickers {
		for _, b := range ts.Bars {
			if !b.ValidDate() {
				p.wipe()
				return empty, fmt.Errorf("ticker %s holds invalid bars: %w", ticker, interfaces.ErrSnapshotCorrupt)
			}
		}
	}
	return state, nil
}

func (p *Persister) wipe() {
	os.Remove(p.path())
}
