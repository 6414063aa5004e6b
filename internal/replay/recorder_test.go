package replay

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

func fixedClock(start time.Time, step time.Duration) func() time.Time {
	current := start
	return func() time.Time {
		now := current
		current = current.Add(step)
		return now
	}
}

func TestRecorderWritesManifestAndEvents(t *testing.T) {
	root := t.TempDir()
	clock := fixedClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), time.Millisecond)
	recorder, manifest, err := NewRecorder(root, "match/1!", "arcade", []string{"ada", "linus"}, clock)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	if err := recorder.AppendEvent(12, "goal", json.RawMessage(`{"scorer":"left"}`)); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if err := recorder.AppendEvent(30, "finished", nil); err != nil {
		t.Fatalf("AppendEvent finished: %v", err)
	}
	if err := recorder.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	//1.- The manifest names the artefacts and the players involved.
	data, err := os.ReadFile(filepath.Join(recorder.Directory(), "manifest.json"))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var onDisk Manifest
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if onDisk.SessionID != "match/1!" || onDisk.Mode != "arcade" || len(onDisk.Players) != 2 {
		t.Fatalf("unexpected manifest: %+v", onDisk)
	}
	if manifest.EventsPath != "events.jsonl.sz" {
		t.Fatalf("events path: %q", manifest.EventsPath)
	}

	//2.- The event log decompresses back into ordered JSONL records.
	file, err := os.Open(filepath.Join(recorder.Directory(), "events.jsonl.sz"))
	if err != nil {
		t.Fatalf("open events: %v", err)
	}
	defer file.Close()
	scanner := bufio.NewScanner(snappy.NewReader(file))
	var ticks []uint64
	for scanner.Scan() {
		var record struct {
			Tick uint64 `json:"tick"`
			Type string `json:"type"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			t.Fatalf("decode event line: %v", err)
		}
		ticks = append(ticks, record.Tick)
	}
	if len(ticks) != 2 || ticks[0] != 12 || ticks[1] != 30 {
		t.Fatalf("event ticks: %v", ticks)
	}
}

func TestRecorderFrameRoundTrip(t *testing.T) {
	root := t.TempDir()
	clock := fixedClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), time.Millisecond)
	recorder, _, err := NewRecorder(root, "frames", "coop", nil, clock)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	payloads := [][]byte{[]byte(`{"tick":1}`), []byte(`{"tick":2}`)}
	for i, payload := range payloads {
		if err := recorder.AppendFrame(uint64(i+1), payload); err != nil {
			t.Fatalf("AppendFrame %d: %v", i, err)
		}
	}
	if err := recorder.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	file, err := os.Open(filepath.Join(recorder.Directory(), "frames.bin.zst"))
	if err != nil {
		t.Fatalf("open frames: %v", err)
	}
	defer file.Close()
	decoder, err := zstd.NewReader(file)
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer decoder.Close()

	for i, want := range payloads {
		header := make([]byte, 20)
		if _, err := io.ReadFull(decoder, header); err != nil {
			t.Fatalf("read frame %d header: %v", i, err)
		}
		tick := binary.LittleEndian.Uint64(header[0:8])
		size := binary.LittleEndian.Uint32(header[16:20])
		payload := make([]byte, size)
		if _, err := io.ReadFull(decoder, payload); err != nil {
			t.Fatalf("read frame %d payload: %v", i, err)
		}
		if tick != uint64(i+1) || string(payload) != string(want) {
			t.Fatalf("frame %d: tick %d payload %s", i, tick, payload)
		}
	}
	if _, err := io.ReadFull(decoder, make([]byte, 1)); err != io.EOF {
		t.Fatalf("expected EOF after last frame, got %v", err)
	}
}

func TestRecorderCadenceBuffersFrames(t *testing.T) {
	root := t.TempDir()
	//1.- A 50ms clock step keeps successive frames inside the 200ms window.
	clock := fixedClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), 50*time.Millisecond)
	recorder, _, err := NewRecorder(root, "cadence", "coop", nil, clock)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	defer recorder.Close()

	recorder.AppendFrame(1, []byte("a"))
	recorder.AppendFrame(2, []byte("b"))
	recorder.mu.Lock()
	pending := len(recorder.pending)
	recorder.mu.Unlock()
	if pending != 2 {
		t.Fatalf("frames flushed early: %d pending", pending)
	}
	if err := recorder.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	recorder.mu.Lock()
	pending = len(recorder.pending)
	recorder.mu.Unlock()
	if pending != 0 {
		t.Fatalf("flush left %d pending frames", pending)
	}
}

func TestRecorderCloseIsIdempotent(t *testing.T) {
	recorder, _, err := NewRecorder(t.TempDir(), "twice", "coop", nil, nil)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	if err := recorder.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := recorder.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := recorder.AppendEvent(1, "goal", nil); err == nil {
		t.Fatalf("append after close must fail")
	}
}
