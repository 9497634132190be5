// Package ipc streams layout frames from the daemon to renderer processes.
// Uses Unix domain sockets for low-latency local transport.
package ipc

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

const (
	// DefaultSocketPath is the Unix socket path for IPC
	DefaultSocketPath = "/tmp/graphsim.sock"

	// DefaultTCPPort is the localhost fallback where Unix sockets are
	// unavailable
	DefaultTCPPort = "127.0.0.1:7602"

	// Message types
	MsgTypeFrame byte = 0x01
	MsgTypePing  byte = 0x02
	MsgTypePong  byte = 0x03
	MsgTypeMeta  byte = 0x04

	// Protocol version for compatibility checking
	ProtocolVersion uint16 = 1

	// Connection settings
	MaxMessageSize = 4 * 1024 * 1024 // 4MB: a frame for ~260k nodes
	WriteTimeout   = 50 * time.Millisecond
	ReadTimeout    = 100 * time.Millisecond
	ReconnectDelay = 500 * time.Millisecond
	MaxReconnects  = 20
)

// FrameMessage carries one tick's worth of node positions.
type FrameMessage struct {
	Sequence  uint64
	Timestamp int64 // Unix nano
	Tick      uint64
	Alpha     float64
	Count     int
	Positions []float64 // xy pairs, len = 2*Count
}

// EdgeData is the wire representation of one edge, just enough to draw it.
type EdgeData struct {
	Source int32
	Target int32
}

// MetaMessage describes the loaded graph to a new subscriber. It arrives
// once per connection, before any frames.
type MetaMessage struct {
	NodeCount   int
	Radii       []float64 // per node, index order
	Edges       []EdgeData
	WorldWidth  float64
	WorldHeight float64
}

// Header is the message header for framing
type Header struct {
	Version  uint16
	Type     byte
	Reserved byte
	Length   uint32
}

const HeaderSize = 8 // 2 + 1 + 1 + 4

// Buffer pool for gob encoding
var encodePool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// WriteMessage writes a framed message to the connection
func WriteMessage(w io.Writer, msgType byte, data interface{}) error {
	var payload []byte
	if data != nil {
		buf := encodePool.Get().(*bytes.Buffer)
		defer encodePool.Put(buf)
		buf.Reset()

		if err := gob.NewEncoder(buf).Encode(data); err != nil {
			return fmt.Errorf("gob encode: %w", err)
		}
		payload = buf.Bytes()
	}

	if len(payload) > MaxMessageSize {
		return fmt.Errorf("message too large: %d > %d", len(payload), MaxMessageSize)
	}

	headerBuf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint16(headerBuf[0:2], ProtocolVersion)
	headerBuf[2] = msgType
	binary.LittleEndian.PutUint32(headerBuf[4:8], uint32(len(payload)))

	if _, err := w.Write(headerBuf); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("write body: %w", err)
		}
	}
	return nil
}

// ReadMessage reads a framed message from the connection
func ReadMessage(r io.Reader) (byte, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return 0, nil, fmt.Errorf("read header: %w", err)
	}

	header := Header{
		Version: binary.LittleEndian.Uint16(headerBuf[0:2]),
		Type:    headerBuf[2],
		Length:  binary.LittleEndian.Uint32(headerBuf[4:8]),
	}

	if header.Version != ProtocolVersion {
		return 0, nil, fmt.Errorf("version mismatch: got %d, want %d", header.Version, ProtocolVersion)
	}
	if header.Length > MaxMessageSize {
		return 0, nil, fmt.Errorf("message too large: %d > %d", header.Length, MaxMessageSize)
	}

	var body []byte
	if header.Length > 0 {
		body = make([]byte, header.Length)
		if _, err := io.ReadFull(r, body); err != nil {
			return 0, nil, fmt.Errorf("read body: %w", err)
		}
	}
	return header.Type, body, nil
}

// DecodeFrame decodes a position frame from gob bytes
func DecodeFrame(data []byte) (*FrameMessage, error) {
	var msg FrameMessage
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&msg); err != nil {
		return nil, fmt.Errorf("gob decode frame: %w", err)
	}
	return &msg, nil
}

// DecodeMeta decodes a graph description from gob bytes
func DecodeMeta(data []byte) (*MetaMessage, error) {
	var msg MetaMessage
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&msg); err != nil {
		return nil, fmt.Errorf("gob decode meta: %w", err)
	}
	return &msg, nil
}

// CleanupSocket removes the socket file if it exists
func CleanupSocket(path string) error {
	if _, err := os.Stat(path); err == nil {
		return os.Remove(path)
	}
	return nil
}
