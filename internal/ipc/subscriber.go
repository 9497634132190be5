package ipc

import (
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Subscriber receives layout frames from the daemon via Unix socket
type Subscriber struct {
	socketPath string
	conn       net.Conn
	connMu     sync.Mutex

	// Latest frame (lock-free access)
	latestFrame atomic.Value // *FrameMessage

	// Graph description received from the daemon
	meta   MetaMessage
	metaMu sync.RWMutex
	metaCh chan MetaMessage

	// Stats
	framesReceived int64 // atomic
	reconnects     int64 // atomic
	errors         int64 // atomic

	// Control
	running int32 // atomic
	stopCh  chan struct{}
	wg      sync.WaitGroup

	// Callbacks
	onFrame      func(*FrameMessage)
	onMeta       func(*MetaMessage)
	onConnect    func()
	onDisconnect func()
}

// NewSubscriber creates a new IPC subscriber
func NewSubscriber(socketPath string) *Subscriber {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	return &Subscriber{
		socketPath: socketPath,
		metaCh:     make(chan MetaMessage, 1),
		stopCh:     make(chan struct{}),
	}
}

// OnFrame sets a callback for when a frame is received
func (s *Subscriber) OnFrame(fn func(*FrameMessage)) {
	s.onFrame = fn
}

// OnMeta sets a callback for when a graph description is received
func (s *Subscriber) OnMeta(fn func(*MetaMessage)) {
	s.onMeta = fn
}

// OnConnect sets a callback for when connection is established
func (s *Subscriber) OnConnect(fn func()) {
	s.onConnect = fn
}

// OnDisconnect sets a callback for when connection is lost
func (s *Subscriber) OnDisconnect(fn func()) {
	s.onDisconnect = fn
}

// Start starts the subscriber, connecting to the daemon
func (s *Subscriber) Start() error {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return nil // Already running
	}

	s.wg.Add(1)
	go s.connectionLoop()

	log.Printf("📡 IPC subscriber started, connecting to %s", GetPlatformAddress(s.socketPath))
	return nil
}

// Stop stops the subscriber
func (s *Subscriber) Stop() {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return // Not running
	}

	close(s.stopCh)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	log.Println("📡 IPC subscriber stopped")
}

// GetLatestFrame returns the most recent frame (lock-free)
func (s *Subscriber) GetLatestFrame() *FrameMessage {
	if val := s.latestFrame.Load(); val != nil {
		return val.(*FrameMessage)
	}
	return nil
}

// GetMeta returns the current graph description
func (s *Subscriber) GetMeta() MetaMessage {
	s.metaMu.RLock()
	defer s.metaMu.RUnlock()
	return s.meta
}

// WaitForMeta blocks until a graph description arrives or timeout
func (s *Subscriber) WaitForMeta(timeout time.Duration) *MetaMessage {
	select {
	case meta := <-s.metaCh:
		return &meta
	case <-time.After(timeout):
		return nil
	case <-s.stopCh:
		return nil
	}
}

// GetStats returns subscriber statistics
func (s *Subscriber) GetStats() (received int64, reconnects int64, errors int64) {
	return atomic.LoadInt64(&s.framesReceived),
		atomic.LoadInt64(&s.reconnects),
		atomic.LoadInt64(&s.errors)
}

// IsConnected returns whether the subscriber is connected
func (s *Subscriber) IsConnected() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn != nil
}

// connectionLoop maintains the connection to the daemon
func (s *Subscriber) connectionLoop() {
	defer s.wg.Done()

	for atomic.LoadInt32(&s.running) == 1 {
		// Try to connect
		conn, err := ConnectPlatform(s.socketPath)
		if err != nil {
			select {
			case <-s.stopCh:
				return
			case <-time.After(ReconnectDelay):
				continue
			}
		}

		log.Printf("✅ Connected to daemon at %s", GetPlatformAddress(s.socketPath))

		// Connection established
		s.connMu.Lock()
		s.conn = conn
		s.connMu.Unlock()

		if s.onConnect != nil {
			s.onConnect()
		}

		// Read loop
		s.readLoop(conn)

		// Connection lost
		s.connMu.Lock()
		s.conn = nil
		s.connMu.Unlock()

		if s.onDisconnect != nil {
			s.onDisconnect()
		}

		atomic.AddInt64(&s.reconnects, 1)

		select {
		case <-s.stopCh:
			return
		case <-time.After(ReconnectDelay):
			// Reconnect
		}
	}
}

// readLoop reads messages from the connection
func (s *Subscriber) readLoop(conn net.Conn) {
	for atomic.LoadInt32(&s.running) == 1 {
		// Set read deadline
		conn.SetReadDeadline(time.Now().Add(ReadTimeout))

		msgType, data, err := ReadMessage(conn)
		if err != nil {
			if err == io.EOF {
				log.Println("🔌 Daemon closed connection")
				return
			}
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				// Timeout is normal, continue
				continue
			}
			log.Printf("⚠️ IPC read error: %v", err)
			atomic.AddInt64(&s.errors, 1)
			return
		}

		switch msgType {
		case MsgTypeFrame:
			s.handleFrame(data)

		case MsgTypeMeta:
			s.handleMeta(data)

		case MsgTypePing:
			// Respond with pong
			conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
			WriteMessage(conn, MsgTypePong, nil)
		}
	}
}

// handleFrame processes a received frame
func (s *Subscriber) handleFrame(data []byte) {
	frame, err := DecodeFrame(data)
	if err != nil {
		log.Printf("⚠️ Failed to decode frame: %v", err)
		atomic.AddInt64(&s.errors, 1)
		return
	}

	// Store latest frame (lock-free)
	s.latestFrame.Store(frame)
	atomic.AddInt64(&s.framesReceived, 1)

	// Call callback if set
	if s.onFrame != nil {
		s.onFrame(frame)
	}
}

// handleMeta processes a received graph description
func (s *Subscriber) handleMeta(data []byte) {
	meta, err := DecodeMeta(data)
	if err != nil {
		log.Printf("⚠️ Failed to decode meta: %v", err)
		atomic.AddInt64(&s.errors, 1)
		return
	}

	s.metaMu.Lock()
	s.meta = *meta
	s.metaMu.Unlock()

	log.Printf("🗺️ Received graph meta: %d nodes, %d edges, world %gx%g",
		meta.NodeCount, len(meta.Edges), meta.WorldWidth, meta.WorldHeight)

	// Non-blocking send to meta channel
	select {
	case s.metaCh <- *meta:
	default:
	}

	// Call callback if set
	if s.onMeta != nil {
		s.onMeta(meta)
	}
}
