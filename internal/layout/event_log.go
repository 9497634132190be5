package layout

import (
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	LogBufferSize    = 1024                   // Circular buffer size
	MaxLogPerSec     = 1000                   // Global rate limit
	MaxLogPerType    = 200                    // Per-type rate limit per second
	LogFlushSize     = 64                     // Entries per batch write
	LogFlushInterval = 100 * time.Millisecond // How often to flush
)

// LogEventType classifies audit log entries.
type LogEventType uint8

const (
	LogUnknown LogEventType = iota
	LogInit
	LogStart
	LogStop
	LogConfig
	LogEdges
	LogResize
	LogPin
	LogUnpin
	LogReheat
	LogEnd
	LogError
	LogTerminate
)

// String returns the human-readable entry type.
func (t LogEventType) String() string {
	switch t {
	case LogInit:
		return "init"
	case LogStart:
		return "start"
	case LogStop:
		return "stop"
	case LogConfig:
		return "config"
	case LogEdges:
		return "edges"
	case LogResize:
		return "resize"
	case LogPin:
		return "pin"
	case LogUnpin:
		return "unpin"
	case LogReheat:
		return "reheat"
	case LogEnd:
		return "end"
	case LogError:
		return "error"
	case LogTerminate:
		return "terminate"
	default:
		return "unknown"
	}
}

// logEntryVersion for backwards compatibility when replaying logs.
const logEntryVersion uint8 = 1

// LogEntry is one audit record: what the engine did and when.
type LogEntry struct {
	Version   uint8           `json:"version"`
	Type      LogEventType    `json:"type"`
	Name      string          `json:"name"`
	Timestamp int64           `json:"timestamp"` // Unix nano
	Sequence  uint64          `json:"sequence"`  // Monotonic sequence
	Tick      uint64          `json:"tick"`      // Simulation tick this occurred in
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Typed payloads for audit entries.

type InitPayload struct {
	NodeCount int `json:"nodeCount"`
	EdgeCount int `json:"edgeCount"`
}

type StartPayload struct {
	Alpha float64 `json:"alpha"`
}

type EdgesPayload struct {
	EdgeCount int `json:"edgeCount"`
}

type ResizePayload struct {
	NodeCount int `json:"nodeCount"`
}

type PinPayload struct {
	Index int     `json:"index"`
	X     float64 `json:"x,omitempty"`
	Y     float64 `json:"y,omitempty"`
}

type EndPayload struct {
	TotalTicks  int   `json:"totalTicks"`
	TotalTimeMs int64 `json:"totalTimeMs"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// EventLog provides bounded, rate-limited audit logging of engine activity
// with an async JSONL writer. The engine goroutine is the only producer;
// under pressure the oldest entries roll off so the log never stalls a tick.
type EventLog struct {
	// Circular buffer (single producer, single consumer)
	buffer    [LogBufferSize]LogEntry
	writeHead uint64 // atomic - producer position
	readHead  uint64 // atomic - consumer position

	// Rate limiting: a global cap plus per-type caps so a pin flood cannot
	// drown lifecycle entries.
	globalLimiter *rate.Limiter
	typeLimiters  [16]*rate.Limiter

	// Async writer
	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	// File output
	filePath string
	file     *os.File
	fileMu   sync.Mutex

	// Stats for monitoring
	droppedCount uint64 // atomic
	totalCount   uint64 // atomic
}

// NewEventLog creates a bounded audit log. It drops everything until Start
// is called.
func NewEventLog() *EventLog {
	el := &EventLog{
		globalLimiter: rate.NewLimiter(MaxLogPerSec, MaxLogPerSec/10),
		stopChan:      make(chan struct{}),
	}
	for i := range el.typeLimiters {
		el.typeLimiters[i] = rate.NewLimiter(MaxLogPerType, MaxLogPerType/10)
	}
	return el
}

// Start opens the output file and begins the async writer goroutine.
func (el *EventLog) Start(filePath string) error {
	if el.running.Load() {
		return nil
	}

	el.filePath = filePath
	if filePath != "" {
		file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		el.file = file
	}

	el.running.Store(true)
	el.writerWg.Add(1)
	go el.writerLoop()
	return nil
}

// Stop flushes what remains and shuts the writer down.
func (el *EventLog) Stop() {
	el.stopOnce.Do(func() {
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

// Emit records one audit entry. Returns false when rate limited or not
// running.
func (el *EventLog) Emit(t LogEventType, tick uint64, payload any) bool {
	if !el.running.Load() {
		return false
	}

	if !el.globalLimiter.Allow() {
		atomic.AddUint64(&el.droppedCount, 1)
		return false
	}
	if !el.typeLimiters[int(t)%len(el.typeLimiters)].Allow() {
		atomic.AddUint64(&el.droppedCount, 1)
		return false
	}

	var raw json.RawMessage
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			raw = data
		}
	}

	head := atomic.LoadUint64(&el.writeHead)
	tail := atomic.LoadUint64(&el.readHead)

	// Rolling window: drop the oldest entry when full.
	if head-tail >= LogBufferSize {
		atomic.AddUint64(&el.readHead, 1)
		atomic.AddUint64(&el.droppedCount, 1)
	}

	el.buffer[head%LogBufferSize] = LogEntry{
		Version:   logEntryVersion,
		Type:      t,
		Name:      t.String(),
		Timestamp: time.Now().UnixNano(),
		Sequence:  head + 1,
		Tick:      tick,
		Payload:   raw,
	}
	// Publish after the slot write so the writer never sees a half-built
	// entry.
	atomic.AddUint64(&el.writeHead, 1)

	atomic.AddUint64(&el.totalCount, 1)
	return true
}

// writerLoop batches and writes entries to disk asynchronously.
func (el *EventLog) writerLoop() {
	defer el.writerWg.Done()

	ticker := time.NewTicker(LogFlushInterval)
	defer ticker.Stop()

	batch := make([]LogEntry, 0, LogFlushSize)
	for {
		select {
		case <-el.stopChan:
			// Final flush
			batch = el.collectBatch(batch[:0])
			if len(batch) > 0 {
				el.flushBatch(batch)
			}
			return
		case <-ticker.C:
			batch = el.collectBatch(batch[:0])
			if len(batch) > 0 {
				el.flushBatch(batch)
			}
		}
	}
}

// collectBatch reads available entries from the circular buffer.
func (el *EventLog) collectBatch(batch []LogEntry) []LogEntry {
	head := atomic.LoadUint64(&el.writeHead)
	tail := atomic.LoadUint64(&el.readHead)

	for i := tail; i < head && len(batch) < LogFlushSize; i++ {
		batch = append(batch, el.buffer[i%LogBufferSize])
	}
	if len(batch) > 0 {
		atomic.AddUint64(&el.readHead, uint64(len(batch)))
	}
	return batch
}

// flushBatch writes entries to disk as newline-delimited JSON.
func (el *EventLog) flushBatch(batch []LogEntry) {
	el.fileMu.Lock()
	defer el.fileMu.Unlock()

	if el.file == nil {
		return
	}
	for _, entry := range batch {
		data, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		el.file.Write(data)
		el.file.Write([]byte("\n"))
	}
}

// GetStats returns audit log counters for monitoring.
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

// GetDroppedCount returns the number of dropped entries.
func (el *EventLog) GetDroppedCount() uint64 {
	return atomic.LoadUint64(&el.droppedCount)
}

// GetTotalCount returns the total number of entries accepted.
func (el *EventLog) GetTotalCount() uint64 {
	return atomic.LoadUint64(&el.totalCount)
}
