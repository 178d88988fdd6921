// Package memdiag provides memory diagnostics for checking that a split run
// stays flat in memory regardless of entry sizes.
//
// Enable periodic heap logging with TARSPLIT_MEM_DEBUG=1
// Enable pprof server with TARSPLIT_MEM_PPROF=1 (listens on :6060)
package memdiag

import (
	"net/http"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	// Registers pprof handlers on DefaultServeMux for the pprof HTTP server.
	_ "net/http/pprof"

	"github.com/rs/zerolog"

	"github.com/eunmann/tarsplit/pkg/humanfmt"
)

// Config holds configuration for memory diagnostics.
type Config struct {
	// Enabled controls whether periodic heap logging is active.
	Enabled bool

	// PprofEnabled controls whether pprof server is started.
	PprofEnabled bool

	// LogInterval is the interval for periodic memory logging.
	LogInterval time.Duration
}

// DefaultConfig returns the default configuration, reading from environment.
func DefaultConfig() Config {
	return Config{
		Enabled:      os.Getenv("TARSPLIT_MEM_DEBUG") == "1",
		PprofEnabled: os.Getenv("TARSPLIT_MEM_PPROF") == "1",
		LogInterval:  5 * time.Second,
	}
}

// Stats holds the heap figures that are logged.
type Stats struct {
	HeapAlloc  int64
	HeapInuse  int64
	Sys        int64
	TotalAlloc int64
	NumGC      uint32
}

// Read reads current memory statistics.
func Read() Stats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return Stats{
		HeapAlloc:  int64(m.HeapAlloc),
		HeapInuse:  int64(m.HeapInuse),
		Sys:        int64(m.Sys),
		TotalAlloc: int64(m.TotalAlloc),
		NumGC:      m.NumGC,
	}
}

// Tracker samples the heap while a run is in progress and remembers the peak.
type Tracker struct {
	config   Config
	log      zerolog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  atomic.Bool
	mu       sync.Mutex
	peakHeap int64
}

// NewTracker creates a new memory tracker logging to log.
func NewTracker(config Config, log zerolog.Logger) *Tracker {
	if config.LogInterval <= 0 {
		config.LogInterval = 5 * time.Second
	}
	return &Tracker{
		config: config,
		log:    log,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins periodic sampling if enabled.
func (t *Tracker) Start() {
	if !t.config.Enabled {
		return
	}
	if !t.started.CompareAndSwap(false, true) {
		return
	}

	t.log.Info().Dur("interval", t.config.LogInterval).Msg("memory diagnostics enabled")

	if t.config.PprofEnabled {
		go func() {
			t.log.Info().Str("addr", ":6060").Msg("starting pprof server")
			if err := http.ListenAndServe(":6060", nil); err != nil {
				t.log.Error().Err(err).Msg("pprof server failed")
			}
		}()
	}

	go t.logLoop()
}

// Stop stops sampling and logs a final sample.
func (t *Tracker) Stop() {
	if !t.started.Load() {
		return
	}
	close(t.stopCh)
	<-t.doneCh
}

// Sample records the current heap, updating the peak, and returns it.
func (t *Tracker) Sample() Stats {
	stats := Read()
	t.mu.Lock()
	if stats.HeapAlloc > t.peakHeap {
		t.peakHeap = stats.HeapAlloc
	}
	t.mu.Unlock()
	return stats
}

// LogNow logs current memory stats immediately.
func (t *Tracker) LogNow(reason string) {
	stats := t.Sample()
	t.log.Debug().
		Str("reason", reason).
		Str("heap_alloc", humanfmt.Bytes(stats.HeapAlloc)).
		Str("heap_inuse", humanfmt.Bytes(stats.HeapInuse)).
		Str("sys_total", humanfmt.Bytes(stats.Sys)).
		Str("peak_heap", humanfmt.Bytes(t.PeakHeap())).
		Uint32("num_gc", stats.NumGC).
		Msg("memory stats")
}

// PeakHeap returns the peak heap allocation seen.
func (t *Tracker) PeakHeap() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peakHeap
}

func (t *Tracker) logLoop() {
	defer close(t.doneCh)

	ticker := time.NewTicker(t.config.LogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			t.LogNow("shutdown")
			return
		case <-ticker.C:
			t.LogNow("periodic")
		}
	}
}
