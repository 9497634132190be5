package ipc

import (
	"bytes"
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"
	"time"

	"graphsim/internal/layout"
)

func testFrame() *FrameMessage {
	return &FrameMessage{
		Sequence:  42,
		Timestamp: time.Now().UnixNano(),
		Tick:      7,
		Alpha:     0.5,
		Count:     2,
		Positions: []float64{1.5, -2.5, 3.25, 4},
	}
}

// TestFrameRoundTrip tests write/read framing and gob payload decoding.
func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	frame := testFrame()

	if err := WriteMessage(&buf, MsgTypeFrame, frame); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	msgType, data, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if msgType != MsgTypeFrame {
		t.Errorf("Expected type 0x%02x, got 0x%02x", MsgTypeFrame, msgType)
	}

	got, err := DecodeFrame(data)
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	if got.Sequence != frame.Sequence || got.Tick != frame.Tick || got.Alpha != frame.Alpha {
		t.Errorf("Frame fields mangled: %+v", got)
	}
	if got.Count != 2 || len(got.Positions) != 4 {
		t.Fatalf("Expected 2 nodes with 4 coords, got %d/%d", got.Count, len(got.Positions))
	}
	for i, want := range frame.Positions {
		if got.Positions[i] != want {
			t.Errorf("Position %d: expected %g, got %g", i, want, got.Positions[i])
		}
	}
}

// TestMetaRoundTrip tests the graph metadata message.
func TestMetaRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	meta := MetaMessage{
		NodeCount:   3,
		Radii:       []float64{5, 8, 5},
		Edges:       []EdgeData{{Source: 0, Target: 1}, {Source: 1, Target: 2}},
		WorldWidth:  800,
		WorldHeight: 600,
	}

	if err := WriteMessage(&buf, MsgTypeMeta, meta); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	msgType, data, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if msgType != MsgTypeMeta {
		t.Errorf("Expected meta type, got 0x%02x", msgType)
	}

	got, err := DecodeMeta(data)
	if err != nil {
		t.Fatalf("DecodeMeta failed: %v", err)
	}
	if got.NodeCount != 3 || len(got.Radii) != 3 || len(got.Edges) != 2 {
		t.Errorf("Meta fields mangled: %+v", got)
	}
	if got.Edges[1] != (EdgeData{Source: 1, Target: 2}) {
		t.Errorf("Edge 1 mangled: %+v", got.Edges[1])
	}
	if got.WorldWidth != 800 || got.WorldHeight != 600 {
		t.Errorf("World size mangled: %gx%g", got.WorldWidth, got.WorldHeight)
	}
}

// TestHeaderLayout tests the wire header byte layout.
func TestHeaderLayout(t *testing.T) {
	var buf bytes.Buffer
	// Pings carry no payload; the header alone goes on the wire.
	if err := WriteMessage(&buf, MsgTypePing, nil); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	raw := buf.Bytes()
	if len(raw) != HeaderSize {
		t.Fatalf("Expected a bare header, got %d bytes", len(raw))
	}
	if version := binary.LittleEndian.Uint16(raw[0:2]); version != ProtocolVersion {
		t.Errorf("Expected version %d, got %d", ProtocolVersion, version)
	}
	if raw[2] != MsgTypePing {
		t.Errorf("Expected type byte 0x%02x, got 0x%02x", MsgTypePing, raw[2])
	}
	if bodyLen := binary.LittleEndian.Uint32(raw[4:8]); bodyLen != 0 {
		t.Errorf("Expected zero body length, got %d", bodyLen)
	}

	// A framed message reports its body length in the header.
	buf.Reset()
	if err := WriteMessage(&buf, MsgTypeFrame, testFrame()); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	raw = buf.Bytes()
	if bodyLen := binary.LittleEndian.Uint32(raw[4:8]); int(bodyLen) != len(raw)-HeaderSize {
		t.Errorf("Header length %d does not match body %d", bodyLen, len(raw)-HeaderSize)
	}
}

// TestReadRejectsBadVersion tests that a foreign protocol version is refused.
func TestReadRejectsBadVersion(t *testing.T) {
	var buf bytes.Buffer
	header := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint16(header[0:2], 99)
	header[2] = MsgTypeFrame
	binary.LittleEndian.PutUint32(header[4:8], 0)
	buf.Write(header)

	if _, _, err := ReadMessage(&buf); err == nil {
		t.Error("Expected error for unknown protocol version")
	}
}

// TestReadRejectsOversize tests the incoming size cap.
func TestReadRejectsOversize(t *testing.T) {
	var buf bytes.Buffer
	header := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint16(header[0:2], ProtocolVersion)
	header[2] = MsgTypeFrame
	binary.LittleEndian.PutUint32(header[4:8], MaxMessageSize+1)
	buf.Write(header)

	if _, _, err := ReadMessage(&buf); err == nil {
		t.Error("Expected error for oversized message")
	}
}

// TestWriteRejectsOversize tests the outgoing size cap.
func TestWriteRejectsOversize(t *testing.T) {
	var buf bytes.Buffer
	frame := &FrameMessage{
		Count:     600000,
		Positions: make([]float64, 1200000), // ~9.6MB encoded
	}

	if err := WriteMessage(&buf, MsgTypeFrame, frame); err == nil {
		t.Error("Expected error for frame above the size cap")
	}
	if buf.Len() != 0 {
		t.Errorf("Oversized write must not emit bytes, wrote %d", buf.Len())
	}
}

// TestDecodeGarbage tests decoder behavior on corrupt payloads.
func TestDecodeGarbage(t *testing.T) {
	if _, err := DecodeFrame([]byte{0xde, 0xad, 0xbe, 0xef}); err == nil {
		t.Error("Expected error decoding garbage frame")
	}
	if _, err := DecodeMeta([]byte{0x01}); err == nil {
		t.Error("Expected error decoding garbage meta")
	}
}

// TestFrameFromSnapshotCopies tests that published frames detach from ring
// memory, which gets reused two publishes later.
func TestFrameFromSnapshotCopies(t *testing.T) {
	snap := &layout.PositionSnapshot{
		Sequence:  3,
		Timestamp: time.Now(),
		Tick:      9,
		Alpha:     0.25,
		Count:     2,
		Positions: []float64{1, 2, 3, 4},
	}

	frame := frameFromSnapshot(snap)
	snap.Positions[0] = math.NaN()
	snap.Positions[3] = -99

	if frame.Positions[0] != 1 || frame.Positions[3] != 4 {
		t.Error("Frame shares memory with the snapshot")
	}
	if frame.Sequence != 3 || frame.Tick != 9 || frame.Alpha != 0.25 || frame.Count != 2 {
		t.Errorf("Frame fields mangled: %+v", frame)
	}
}

// TestToSnapshot tests the wire to domain conversion.
func TestToSnapshot(t *testing.T) {
	frame := testFrame()
	snap := frame.ToSnapshot()

	if snap.Sequence != frame.Sequence || snap.Tick != frame.Tick || snap.Alpha != frame.Alpha {
		t.Errorf("Snapshot fields mangled: %+v", snap)
	}
	if snap.Timestamp.UnixNano() != frame.Timestamp {
		t.Errorf("Timestamp mangled: %d != %d", snap.Timestamp.UnixNano(), frame.Timestamp)
	}
	if len(snap.Positions) != len(frame.Positions) {
		t.Errorf("Positions length mangled: %d", len(snap.Positions))
	}
}

// TestMetaFromGraph tests building subscriber metadata from engine buffers.
func TestMetaFromGraph(t *testing.T) {
	nodes := layout.AllocNodeBuffer(3)
	nodes.SetRadius(0, 5)
	nodes.SetRadius(1, 8)
	nodes.SetRadius(2, 13)
	edges := []layout.Edge{
		{Source: 0, Target: 2, Distance: 30, Strength: 1},
	}

	meta := MetaFromGraph(nodes, edges, 1000, 800)
	if meta.NodeCount != 3 {
		t.Errorf("Expected 3 nodes, got %d", meta.NodeCount)
	}
	if len(meta.Radii) != 3 || meta.Radii[1] != 8 {
		t.Errorf("Radii mangled: %v", meta.Radii)
	}
	if len(meta.Edges) != 1 || meta.Edges[0] != (EdgeData{Source: 0, Target: 2}) {
		t.Errorf("Edges mangled: %v", meta.Edges)
	}
	if meta.WorldWidth != 1000 || meta.WorldHeight != 800 {
		t.Errorf("World size mangled: %gx%g", meta.WorldWidth, meta.WorldHeight)
	}
}

// TestPublisherSubscriberEndToEnd tests frame delivery over a real socket.
func TestPublisherSubscriberEndToEnd(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "graphsim-test.sock")

	pub := NewPublisher(socketPath)
	if err := pub.Start(); err != nil {
		t.Fatalf("Publisher start failed: %v", err)
	}
	t.Cleanup(pub.Stop)

	pub.SetMeta(MetaMessage{
		NodeCount:   2,
		Radii:       []float64{5, 5},
		Edges:       []EdgeData{{Source: 0, Target: 1}},
		WorldWidth:  640,
		WorldHeight: 480,
	})

	sub := NewSubscriber(socketPath)
	frames := make(chan *FrameMessage, 16)
	sub.OnFrame(func(f *FrameMessage) {
		select {
		case frames <- f:
		default:
		}
	})
	if err := sub.Start(); err != nil {
		t.Fatalf("Subscriber start failed: %v", err)
	}
	t.Cleanup(sub.Stop)

	meta := sub.WaitForMeta(5 * time.Second)
	if meta == nil {
		t.Fatal("Subscriber never received metadata")
	}
	if meta.NodeCount != 2 || len(meta.Edges) != 1 {
		t.Errorf("Unexpected meta: %+v", meta)
	}

	// Publish a few frames; drop-oldest means at least the last lands.
	for i := 1; i <= 5; i++ {
		pub.Publish(&layout.PositionSnapshot{
			Sequence:  uint64(i),
			Timestamp: time.Now(),
			Tick:      uint64(i),
			Alpha:     1.0 / float64(i),
			Count:     2,
			Positions: []float64{float64(i), 0, 0, float64(i)},
		})
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case f := <-frames:
		if f.Count != 2 || len(f.Positions) != 4 {
			t.Errorf("Unexpected frame shape: %+v", f)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Subscriber never received a frame")
	}

	// Latest frame is also available by polling.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sub.GetLatestFrame() != nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if sub.GetLatestFrame() == nil {
		t.Error("Expected a latest frame after delivery")
	}

	received, _, _ := sub.GetStats()
	if received == 0 {
		t.Error("Expected nonzero received counter")
	}
}
