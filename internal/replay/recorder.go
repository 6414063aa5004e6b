package replay

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

var sessionCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// frameInterval throttles snapshot persistence to 5 Hz; the event log still
// captures every goal and lifecycle change at full fidelity.
const frameInterval = 200 * time.Millisecond

// Manifest describes the replay bundle layout so tooling can locate artefacts.
type Manifest struct {
	Version         int      `json:"version"`
	SessionID       string   `json:"session_id"`
	Mode            string   `json:"mode"`
	Players         []string `json:"players"`
	CreatedAt       string   `json:"created_at"`
	FrameIntervalMs int      `json:"frame_interval_ms"`
	EventsPath      string   `json:"events_path"`
	FramesPath      string   `json:"frames_path"`
}

type frameBlob struct {
	Tick       uint64
	CapturedAt time.Time
	Payload    []byte
}

// Recorder streams match artefacts to disk: a snappy-compressed JSONL event
// log and a zstd stream of length-prefixed state frames.
type Recorder struct {
	mu          sync.Mutex
	dir         string
	now         func() time.Time
	eventFile   *os.File
	eventStream *snappy.Writer
	frameFile   *os.File
	frameStream *zstd.Encoder
	pending     []frameBlob
	lastFlush   time.Time
	closed      bool
}

// NewRecorder prepares the replay directory and opens compressed sinks. The
// bundle lands under root in a folder named after the session and start time.
func NewRecorder(root, sessionID, mode string, players []string, clock func() time.Time) (*Recorder, Manifest, error) {
	if root == "" {
		return nil, Manifest{}, fmt.Errorf("replay root must be provided")
	}
	if clock == nil {
		clock = time.Now
	}
	cleaned := sessionCleaner.ReplaceAllString(sessionID, "")
	if cleaned == "" {
		cleaned = "match"
	}
	created := clock().UTC()
	path := filepath.Join(root, fmt.Sprintf("%s-%s", cleaned, created.Format("20060102T150405Z")))
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, Manifest{}, err
	}

	eventFile, err := os.Create(filepath.Join(path, "events.jsonl.sz"))
	if err != nil {
		return nil, Manifest{}, err
	}
	eventStream := snappy.NewBufferedWriter(eventFile)

	frameFile, err := os.Create(filepath.Join(path, "frames.bin.zst"))
	if err != nil {
		eventStream.Close()
		eventFile.Close()
		return nil, Manifest{}, err
	}
	frameStream, err := zstd.NewWriter(frameFile)
	if err != nil {
		eventStream.Close()
		eventFile.Close()
		frameFile.Close()
		return nil, Manifest{}, err
	}

	manifest := Manifest{
		Version:         1,
		SessionID:       sessionID,
		Mode:            mode,
		Players:         append([]string(nil), players...),
		CreatedAt:       created.Format(time.RFC3339Nano),
		FrameIntervalMs: int(frameInterval / time.Millisecond),
		EventsPath:      "events.jsonl.sz",
		FramesPath:      "frames.bin.zst",
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err == nil {
		err = os.WriteFile(filepath.Join(path, "manifest.json"), data, 0o644)
	}
	if err != nil {
		frameStream.Close()
		frameFile.Close()
		eventStream.Close()
		eventFile.Close()
		return nil, Manifest{}, err
	}

	recorder := &Recorder{
		dir:         path,
		now:         clock,
		eventFile:   eventFile,
		eventStream: eventStream,
		frameFile:   frameFile,
		frameStream: frameStream,
	}
	return recorder, manifest, nil
}

// Directory exposes the directory backing the replay bundle.
func (r *Recorder) Directory() string {
	if r == nil {
		return ""
	}
	return r.dir
}

// AppendEvent writes a single JSON event line to the compressed event log.
// The payload must already be valid JSON; it is embedded verbatim.
func (r *Recorder) AppendEvent(tick uint64, eventType string, payload json.RawMessage) error {
	if r == nil {
		return fmt.Errorf("recorder not initialised")
	}
	captured := r.now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("recorder is closed")
	}
	record := struct {
		Tick       uint64          `json:"tick"`
		CapturedAt string          `json:"captured_at"`
		Type       string          `json:"type"`
		Payload    json.RawMessage `json:"payload,omitempty"`
	}{
		Tick:       tick,
		CapturedAt: captured.Format(time.RFC3339Nano),
		Type:       eventType,
		Payload:    payload,
	}
	line, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if _, err := r.eventStream.Write(append(line, '\n')); err != nil {
		return err
	}
	return r.eventStream.Flush()
}

// AppendFrame buffers a state frame until the persistence cadence is reached.
func (r *Recorder) AppendFrame(tick uint64, payload []byte) error {
	if r == nil {
		return fmt.Errorf("recorder not initialised")
	}
	captured := r.now().UTC()
	clone := append([]byte(nil), payload...)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("recorder is closed")
	}
	//1.- Stage the frame so cadence enforcement can persist batches together.
	r.pending = append(r.pending, frameBlob{Tick: tick, CapturedAt: captured, Payload: clone})
	if r.lastFlush.IsZero() {
		r.lastFlush = captured
		return nil
	}
	if captured.Sub(r.lastFlush) >= frameInterval {
		if err := r.flushLocked(); err != nil {
			return err
		}
		r.lastFlush = captured
	}
	return nil
}

// Flush forces pending frames to disk regardless of cadence.
func (r *Recorder) Flush() error {
	if r == nil {
		return fmt.Errorf("recorder not initialised")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	if err := r.flushLocked(); err != nil {
		return err
	}
	r.lastFlush = r.now().UTC()
	return nil
}

// Close flushes all buffers and releases file handles. Safe to call twice.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	//1.- Attempt every flush/close and surface the first failure for callers.
	var firstErr error
	if err := r.flushLocked(); err != nil {
		firstErr = err
	}
	if err := r.eventStream.Flush(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := r.eventStream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := r.eventFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := r.frameStream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := r.frameFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// flushLocked writes buffered frames to the zstd stream; callers hold the lock.
func (r *Recorder) flushLocked() error {
	if len(r.pending) == 0 {
		return nil
	}
	//1.- Length-prefix each frame so replayers can step without parsing JSON.
	for _, frame := range r.pending {
		header := make([]byte, 8+8+4)
		binary.LittleEndian.PutUint64(header[0:8], frame.Tick)
		binary.LittleEndian.PutUint64(header[8:16], uint64(frame.CapturedAt.UnixNano()))
		binary.LittleEndian.PutUint32(header[16:20], uint32(len(frame.Payload)))
		if _, err := r.frameStream.Write(header); err != nil {
			return err
		}
		if _, err := r.frameStream.Write(frame.Payload); err != nil {
			return err
		}
	}
	r.pending = r.pending[:0]
	return nil
}
