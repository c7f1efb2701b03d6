package game

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	EventBufferSize      = 4096                   // Circular buffer size
	MaxEventsPerSec      = 2000                   // Global rate limit
	MaxEventsPerPlayer   = 200                    // Per-player rate limit per second
	BatchFlushSize       = 128                    // Events per batch write
	BatchFlushInterval   = 100 * time.Millisecond // How often to flush
	PlayerLimiterCleanup = 5 * time.Minute        // Cleanup interval for player limiters
	HistorySize          = 256                    // Entries kept for Recent
)

// EventLog provides bounded, rate-limited event logging with backpressure.
// Entries are appended to an NDJSON file by a background writer.
type EventLog struct {
	// Circular buffer (single producer: the engine tick)
	buffer    [EventBufferSize]LogEntry
	writeHead uint64 // atomic - producer position
	readHead  uint64 // atomic - consumer position

	// Rate limiting for DoS protection
	globalLimiter  *rate.Limiter
	playerLimiters sync.Map // map[string]*playerLimiterEntry

	// Async writer
	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	// File output
	filePath string
	file     *os.File
	fileMu   sync.Mutex

	// Recent entries for the HTTP API
	historyMu sync.Mutex
	history   [HistorySize]LogEntry
	histHead  int
	histLen   int

	// Stats for DoS detection and monitoring
	droppedCount uint64 // atomic
	totalCount   uint64 // atomic
}

// playerLimiterEntry tracks per-player rate limiting
type playerLimiterEntry struct {
	limiter  *rate.Limiter
	lastUsed atomic.Int64 // unix nano
}

// NewEventLog creates a new bounded event log accepting up to perSecond
// entries per second (MaxEventsPerSec when perSecond <= 0).
func NewEventLog(perSecond int) *EventLog {
	if perSecond <= 0 {
		perSecond = MaxEventsPerSec
	}
	return &EventLog{
		globalLimiter: rate.NewLimiter(rate.Limit(perSecond), max(perSecond/10, 1)),
		stopChan:      make(chan struct{}),
	}
}

// Start begins the async writer goroutine. An empty path keeps entries in
// memory only.
func (el *EventLog) Start(filePath string) error {
	if el.running.Load() {
		return nil
	}

	el.filePath = filePath

	if filePath != "" {
		file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("open event log: %w", err)
		}
		el.file = file
		log.Printf("📝 Event log writing to %s", filePath)
	}

	el.running.Store(true)
	el.writerWg.Add(2)
	go el.writerLoop()
	go el.cleanupLoop()

	return nil
}

// Stop gracefully shuts down the event log
func (el *EventLog) Stop() {
	el.stopOnce.Do(func() {
		if !el.running.Load() {
			return
		}
		el.running.Store(false)
		close(el.stopChan)
		el.writerWg.Wait()

		el.fileMu.Lock()
		if el.file != nil {
			el.file.Close()
		}
		el.fileMu.Unlock()
	})
}

// Emit adds an entry with rate limiting.
// Returns false if rate limited or not running (DoS protection)
func (el *EventLog) Emit(entry LogEntry) bool {
	if !el.running.Load() {
		return false
	}

	if !el.globalLimiter.Allow() {
		atomic.AddUint64(&el.droppedCount, 1)
		return false
	}

	// Per-player rate limit (prevents a single player from flooding)
	if entry.PlayerID != "" {
		limiter := el.getPlayerLimiter(entry.PlayerID)
		if !limiter.Allow() {
			atomic.AddUint64(&el.droppedCount, 1)
			return false
		}
	}

	head := atomic.AddUint64(&el.writeHead, 1)
	tail := atomic.LoadUint64(&el.readHead)

	// Buffer full: drop the oldest entry (rolling window)
	if head-tail >= EventBufferSize {
		atomic.AddUint64(&el.readHead, 1)
		atomic.AddUint64(&el.droppedCount, 1)
	}

	entry.Sequence = head
	el.buffer[head%EventBufferSize] = entry
	el.remember(entry)

	atomic.AddUint64(&el.totalCount, 1)
	return true
}

// Append logs every event of a tick for the given match.
func (el *EventLog) Append(matchID string, events []Event) int {
	n := 0
	for _, e := range events {
		if el.Emit(NewLogEntry(matchID, e)) {
			n++
		}
	}
	return n
}

// Recent returns up to n of the most recent entries, oldest first.
func (el *EventLog) Recent(n int) []LogEntry {
	el.historyMu.Lock()
	defer el.historyMu.Unlock()

	if n <= 0 || n > el.histLen {
		n = el.histLen
	}
	out := make([]LogEntry, 0, n)
	start := el.histHead - n
	for i := 0; i < n; i++ {
		idx := (start + i + HistorySize) % HistorySize
		out = append(out, el.history[idx])
	}
	return out
}

func (el *EventLog) remember(entry LogEntry) {
	el.historyMu.Lock()
	el.history[el.histHead] = entry
	el.histHead = (el.histHead + 1) % HistorySize
	if el.histLen < HistorySize {
		el.histLen++
	}
	el.historyMu.Unlock()
}

// getPlayerLimiter returns/creates a per-player rate limiter
func (el *EventLog) getPlayerLimiter(playerID string) *rate.Limiter {
	now := time.Now().UnixNano()
	if v, ok := el.playerLimiters.Load(playerID); ok {
		e := v.(*playerLimiterEntry)
		e.lastUsed.Store(now)
		return e.limiter
	}

	entry := &playerLimiterEntry{
		limiter: rate.NewLimiter(MaxEventsPerPlayer, MaxEventsPerPlayer/10),
	}
	entry.lastUsed.Store(now)
	actual, _ := el.playerLimiters.LoadOrStore(playerID, entry)
	return actual.(*playerLimiterEntry).limiter
}

// writerLoop batches and writes entries to disk asynchronously
func (el *EventLog) writerLoop() {
	defer el.writerWg.Done()

	ticker := time.NewTicker(BatchFlushInterval)
	defer ticker.Stop()

	batch := make([]LogEntry, 0, BatchFlushSize)

	for {
		select {
		case <-el.stopChan:
			// Final flush until drained
			for {
				batch = el.collectBatch(batch[:0])
				if len(batch) == 0 {
					return
				}
				el.flushBatch(batch)
			}

		case <-ticker.C:
			batch = el.collectBatch(batch[:0])
			if len(batch) > 0 {
				el.flushBatch(batch)
			}
		}
	}
}

// cleanupLoop removes stale player limiters to prevent memory leak
func (el *EventLog) cleanupLoop() {
	defer el.writerWg.Done()

	ticker := time.NewTicker(PlayerLimiterCleanup)
	defer ticker.Stop()

	for {
		select {
		case <-el.stopChan:
			return
		case <-ticker.C:
			el.cleanupPlayerLimiters()
		}
	}
}

// cleanupPlayerLimiters removes inactive player limiters
func (el *EventLog) cleanupPlayerLimiters() {
	cutoff := time.Now().Add(-PlayerLimiterCleanup).UnixNano()
	el.playerLimiters.Range(func(key, value interface{}) bool {
		if value.(*playerLimiterEntry).lastUsed.Load() < cutoff {
			el.playerLimiters.Delete(key)
		}
		return true
	})
}

// collectBatch reads available entries from the circular buffer
func (el *EventLog) collectBatch(batch []LogEntry) []LogEntry {
	head := atomic.LoadUint64(&el.writeHead)
	tail := atomic.LoadUint64(&el.readHead)

	for i := tail + 1; i <= head && len(batch) < BatchFlushSize; i++ {
		batch = append(batch, el.buffer[i%EventBufferSize])
	}

	if len(batch) > 0 {
		atomic.AddUint64(&el.readHead, uint64(len(batch)))
	}

	return batch
}

// flushBatch writes entries to disk (append-only, newline-delimited JSON)
func (el *EventLog) flushBatch(batch []LogEntry) {
	el.fileMu.Lock()
	defer el.fileMu.Unlock()

	if el.file == nil {
		return
	}

	w := bufio.NewWriter(el.file)
	enc := json.NewEncoder(w)
	for _, entry := range batch {
		if err := enc.Encode(entry); err != nil {
			continue
		}
	}
	if err := w.Flush(); err != nil {
		log.Printf("⚠️ Event log write failed: %v", err)
	}
}

// GetStats returns metrics for DoS monitoring
func (el *EventLog) GetStats() map[string]interface{} {
	head := atomic.LoadUint64(&el.writeHead)
	tail := atomic.LoadUint64(&el.readHead)

	return map[string]interface{}{
		"total":   atomic.LoadUint64(&el.totalCount),
		"dropped": atomic.LoadUint64(&el.droppedCount),
		"pending": head - tail,
		"running": el.running.Load(),
	}
}

// GetDroppedCount returns the number of dropped entries
func (el *EventLog) GetDroppedCount() uint64 {
	return atomic.LoadUint64(&el.droppedCount)
}

// GetTotalCount returns the total number of entries accepted
func (el *EventLog) GetTotalCount() uint64 {
	return atomic.LoadUint64(&el.totalCount)
}
