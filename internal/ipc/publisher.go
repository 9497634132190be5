package ipc

import (
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"graphsim/internal/layout"
)

// Publisher broadcasts layout frames to connected renderer processes. One
// frame channel with drop-oldest behavior keeps a slow renderer from ever
// backpressuring the engine.
type Publisher struct {
	socketPath string
	listener   net.Listener

	// Connected clients
	clients   map[net.Conn]struct{}
	clientsMu sync.RWMutex

	// Frame channel (ring buffer behavior - drop old if full)
	frameCh chan *FrameMessage

	// Graph description to send to new clients
	meta   MetaMessage
	metaMu sync.RWMutex

	// Stats
	clientCount   int32 // atomic
	framesSent    int64 // atomic
	droppedFrames int64 // atomic

	// Control
	running int32 // atomic
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewPublisher creates a new IPC publisher
func NewPublisher(socketPath string) *Publisher {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	return &Publisher{
		socketPath: socketPath,
		clients:    make(map[net.Conn]struct{}),
		frameCh:    make(chan *FrameMessage, 8), // Buffer 8 frames
		stopCh:     make(chan struct{}),
	}
}

// SetMeta sets the graph description sent to new clients. Call it whenever
// a graph is loaded or resized; connected clients get the update too.
func (p *Publisher) SetMeta(meta MetaMessage) {
	p.metaMu.Lock()
	p.meta = meta
	p.metaMu.Unlock()

	if atomic.LoadInt32(&p.running) == 0 {
		return
	}

	// Push the new description to everyone already connected.
	p.clientsMu.RLock()
	clients := make([]net.Conn, 0, len(p.clients))
	for conn := range p.clients {
		clients = append(clients, conn)
	}
	p.clientsMu.RUnlock()

	for _, conn := range clients {
		conn.SetWriteDeadline(time.Now().Add(time.Second))
		if err := WriteMessage(conn, MsgTypeMeta, meta); err != nil {
			p.removeClient(conn)
		}
	}
}

// Start starts the publisher server
func (p *Publisher) Start() error {
	if !atomic.CompareAndSwapInt32(&p.running, 0, 1) {
		return nil // Already running
	}

	listener, err := CreatePlatformListener(p.socketPath)
	if err != nil {
		atomic.StoreInt32(&p.running, 0)
		return err
	}
	p.listener = listener

	// Start accept loop
	p.wg.Add(1)
	go p.acceptLoop()

	// Start broadcast loop
	p.wg.Add(1)
	go p.broadcastLoop()

	log.Printf("📡 IPC publisher started on %s", GetPlatformAddress(p.socketPath))
	return nil
}

// Stop stops the publisher
func (p *Publisher) Stop() {
	if !atomic.CompareAndSwapInt32(&p.running, 1, 0) {
		return // Not running
	}

	close(p.stopCh)

	if p.listener != nil {
		p.listener.Close()
	}

	// Close all clients
	p.clientsMu.Lock()
	for conn := range p.clients {
		conn.Close()
	}
	p.clients = make(map[net.Conn]struct{})
	p.clientsMu.Unlock()

	p.wg.Wait()

	CleanupSocket(p.socketPath)
	log.Println("📡 IPC publisher stopped")
}

// Publish queues a position snapshot for broadcast. The snapshot is copied
// immediately because ring slots get reused; after that this is
// non-blocking and drops the oldest frame if the buffer is full.
func (p *Publisher) Publish(snap *layout.PositionSnapshot) {
	if atomic.LoadInt32(&p.running) == 0 || snap == nil {
		return
	}

	msg := frameFromSnapshot(snap)
	select {
	case p.frameCh <- msg:
		// Sent successfully
	default:
		// Buffer full, drop oldest and add new
		select {
		case <-p.frameCh:
			atomic.AddInt64(&p.droppedFrames, 1)
		default:
		}
		select {
		case p.frameCh <- msg:
		default:
		}
	}
}

// GetStats returns publisher statistics
func (p *Publisher) GetStats() (clients int, sent int64, dropped int64) {
	return int(atomic.LoadInt32(&p.clientCount)),
		atomic.LoadInt64(&p.framesSent),
		atomic.LoadInt64(&p.droppedFrames)
}

// acceptLoop accepts new client connections
func (p *Publisher) acceptLoop() {
	defer p.wg.Done()

	for atomic.LoadInt32(&p.running) == 1 {
		conn, err := p.listener.Accept()
		if err != nil {
			if atomic.LoadInt32(&p.running) == 0 {
				return // Expected during shutdown
			}
			log.Printf("⚠️ IPC accept error: %v", err)
			continue
		}

		p.addClient(conn)
	}
}

// addClient adds a new client connection
func (p *Publisher) addClient(conn net.Conn) {
	p.clientsMu.Lock()
	p.clients[conn] = struct{}{}
	p.clientsMu.Unlock()

	atomic.AddInt32(&p.clientCount, 1)
	log.Printf("✅ Renderer connected: %s (total: %d)", conn.RemoteAddr(), atomic.LoadInt32(&p.clientCount))

	// Send the graph description to the new client
	p.metaMu.RLock()
	meta := p.meta
	p.metaMu.RUnlock()

	go func() {
		conn.SetWriteDeadline(time.Now().Add(time.Second))
		if err := WriteMessage(conn, MsgTypeMeta, meta); err != nil {
			log.Printf("⚠️ Failed to send graph meta to renderer: %v", err)
		}
	}()
}

// removeClient removes a client connection
func (p *Publisher) removeClient(conn net.Conn) {
	p.clientsMu.Lock()
	if _, ok := p.clients[conn]; ok {
		delete(p.clients, conn)
		conn.Close()
		p.clientsMu.Unlock()

		count := atomic.AddInt32(&p.clientCount, -1)
		log.Printf("🔌 Renderer disconnected (remaining: %d)", count)
	} else {
		p.clientsMu.Unlock()
	}
}

// broadcastLoop broadcasts frames to all clients
func (p *Publisher) broadcastLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return

		case msg := <-p.frameCh:
			p.broadcast(msg)
		}
	}
}

// broadcast sends a frame to all connected clients
func (p *Publisher) broadcast(msg *FrameMessage) {
	p.clientsMu.RLock()
	clients := make([]net.Conn, 0, len(p.clients))
	for conn := range p.clients {
		clients = append(clients, conn)
	}
	p.clientsMu.RUnlock()

	var failed []net.Conn
	for _, conn := range clients {
		conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
		if err := WriteMessage(conn, MsgTypeFrame, msg); err != nil {
			failed = append(failed, conn)
		}
	}

	// Remove failed clients
	for _, conn := range failed {
		p.removeClient(conn)
	}

	if len(clients) > 0 && len(failed) < len(clients) {
		atomic.AddInt64(&p.framesSent, 1)
	}
}

// frameFromSnapshot copies a ring snapshot into a wire frame
func frameFromSnapshot(s *layout.PositionSnapshot) *FrameMessage {
	msg := &FrameMessage{
		Sequence:  s.Sequence,
		Timestamp: s.Timestamp.UnixNano(),
		Tick:      s.Tick,
		Alpha:     s.Alpha,
		Count:     s.Count,
		Positions: make([]float64, len(s.Positions)),
	}
	copy(msg.Positions, s.Positions)
	return msg
}
