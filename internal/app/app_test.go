package app_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aslstream/fingerspell/internal/app"
	"github.com/aslstream/fingerspell/internal/classifier"
	"github.com/aslstream/fingerspell/internal/config"
	"github.com/aslstream/fingerspell/internal/handext"
	"github.com/aslstream/fingerspell/internal/objectstore"
	"github.com/aslstream/fingerspell/pkg/provider/llm/mock"
)

// recordingWriter is a fake outbound.ConnectionWriter that records every
// payload delivered to a connection instead of dialing a real bridge.
type recordingWriter struct {
	mu        sync.Mutex
	delivered []deliveredPayload
	notify    chan struct{}
}

type deliveredPayload struct {
	ConnectionID string
	Payload      []byte
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{notify: make(chan struct{}, 16)}
}

func (w *recordingWriter) Write(_ context.Context, connectionID string, payload []byte) error {
	w.mu.Lock()
	w.delivered = append(w.delivered, deliveredPayload{ConnectionID: connectionID, Payload: payload})
	w.mu.Unlock()
	select {
	case w.notify <- struct{}{}:
	default:
	}
	return nil
}

func (w *recordingWriter) waitForDelivery(t *testing.T, timeout time.Duration) deliveredPayload {
	t.Helper()
	select {
	case <-w.notify:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for outbound delivery")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.delivered) == 0 {
		t.Fatal("notified of delivery but recording is empty")
	}
	return w.delivered[len(w.delivered)-1]
}

// testConfig builds a minimal config with in-memory-friendly settings and
// commit thresholds loose enough for a single letter event to commit and
// finalize promptly.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server:  config.ServerConfig{ListenAddr: "127.0.0.1:0"},
		Streams: config.StreamsConfig{ShardCount: 1, ConsumerName: "test-consumer"},
		Commit: config.CommitConfig{
			WindowMS:           5000,
			StabilityMS:        0,
			VoteThreshold:      0,
			CommitThreshold:    0,
			PauseMS:            50,
			MaxConsecutiveSame: 5,
			PauseSweepInterval: 20 * time.Millisecond,
		},
		Session: config.SessionConfig{
			WindowTTL:     time.Minute,
			ConnectionTTL: time.Minute,
		},
		Lexicon: config.LexiconConfig{
			ObjectStoreRoot: t.TempDir(),
		},
	}
}

// seededBridge returns a classifier bridge whose lookup model recognizes a
// single centroid, the same arrangement internal/fanout's own consumer
// tests use to produce a deterministic prediction.
func seededBridge() *classifier.Bridge {
	model := classifier.NewLookupModel(handext.FeatureLen)
	centroid := make([]float64, handext.FeatureLen)
	for i := range centroid {
		centroid[i] = 0.5
	}
	model.SetCentroid('A', centroid)
	return classifier.NewBridge(model, nil)
}

func activeHandFrame() []float64 {
	frame := make([]float64, handext.FrameLen)
	frame[handext.RightStart] = 0.1
	frame[handext.RightStart+1] = 0.1
	frame[handext.RightStart+3] = 0.3
	frame[handext.RightStart+4] = 0.2
	return frame
}

func doRequest(t *testing.T, mux *http.ServeMux, method, path, connectionID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = strings.NewReader(string(b))
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if connectionID != "" {
		req.Header.Set("X-Connection-Id", connectionID)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestNewWiresSubsystemsWithInjectedDoubles(t *testing.T) {
	cfg := testConfig(t)
	a, err := app.New(t.Context(), cfg, &app.Providers{}, app.WithClassifierBridge(seededBridge()), app.WithConnectionWriter(newRecordingWriter()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.SessionStore() == nil {
		t.Fatal("expected a session store to be wired")
	}
	if a.LexiconStore() == nil {
		t.Fatal("expected a lexicon store to be wired")
	}
	if a.JobStore() == nil {
		t.Fatal("expected a job store to be wired")
	}
	if a.Mux() == nil {
		t.Fatal("expected an http mux to be wired")
	}
}

// TestEndToEndIngressToOutboundDelivery drives a landmark frame through
// connect -> sendlandmarks -> fan-out -> commit -> resolver -> outbound and
// asserts the resolved word reaches the recording connection writer.
func TestEndToEndIngressToOutboundDelivery(t *testing.T) {
	cfg := testConfig(t)
	writer := newRecordingWriter()
	a, err := app.New(t.Context(), cfg, &app.Providers{}, app.WithClassifierBridge(seededBridge()), app.WithConnectionWriter(writer))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	// Give the background consumers time to subscribe before anything is
	// published, mirroring the synchronization sleeps used throughout the
	// streambus/fanout test suites.
	time.Sleep(30 * time.Millisecond)

	connectionID := "conn-1"
	sessionID := "sess-1"

	if rec := doRequest(t, a.Mux(), http.MethodPost, "/v1/ingress/connect", connectionID, nil); rec.Code != http.StatusOK {
		t.Fatalf("connect: expected 200, got %d: %s", rec.Code, rec.Body)
	}

	frame := activeHandFrame()
	landmarksBody := map[string]any{"session_id": sessionID, "data": frame}
	if rec := doRequest(t, a.Mux(), http.MethodPost, "/v1/ingress/sendlandmarks", connectionID, landmarksBody); rec.Code != http.StatusOK {
		t.Fatalf("sendlandmarks: expected 200, got %d: %s", rec.Code, rec.Body)
	}

	delivered := writer.waitForDelivery(t, 2*time.Second)
	if delivered.ConnectionID != connectionID {
		t.Fatalf("expected delivery to %q, got %q", connectionID, delivered.ConnectionID)
	}
	var resolved struct {
		SessionID string `json:"session_id"`
		RawWord   string `json:"raw_word"`
	}
	if err := json.Unmarshal(delivered.Payload, &resolved); err != nil {
		t.Fatalf("unmarshal delivered payload: %v", err)
	}
	if resolved.SessionID != sessionID {
		t.Fatalf("expected resolved session_id %q, got %q", sessionID, resolved.SessionID)
	}
	if resolved.RawWord != "A" {
		t.Fatalf("expected resolved raw_word %q, got %q", "A", resolved.RawWord)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Run to return after cancellation")
	}
}

func TestSendLandmarksRejectsWrongFrameLength(t *testing.T) {
	cfg := testConfig(t)
	a, err := app.New(t.Context(), cfg, &app.Providers{}, app.WithClassifierBridge(seededBridge()), app.WithConnectionWriter(newRecordingWriter()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	body := map[string]any{"session_id": "sess-x", "data": []float64{0.1, 0.2}}
	rec := doRequest(t, a.Mux(), http.MethodPost, "/v1/ingress/sendlandmarks", "conn-x", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a malformed landmark frame, got %d", rec.Code)
	}
}

func TestAliasRoutesRejectWhenNoLLMProviderConfigured(t *testing.T) {
	cfg := testConfig(t)
	a, err := app.New(t.Context(), cfg, &app.Providers{}, app.WithClassifierBridge(seededBridge()), app.WithConnectionWriter(newRecordingWriter()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	body := map[string]any{"bucket": "b", "key": "k", "user_id": "u"}
	rec := doRequest(t, a.Mux(), http.MethodPost, "/v1/aliases/jobs", "", body)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when no llm provider is configured, got %d: %s", rec.Code, rec.Body)
	}
}

func TestAliasJobLifecycleOverHTTP(t *testing.T) {
	cfg := testConfig(t)
	objects, err := objectstore.NewFSStore(cfg.Lexicon.ObjectStoreRoot)
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	if _, err := objects.Put(t.Context(), "uploads", "doc.txt", []byte("hello world")); err != nil {
		t.Fatalf("seed uploaded object: %v", err)
	}

	providers := &app.Providers{LLM: &mock.Provider{}}
	a, err := app.New(t.Context(), cfg, providers,
		app.WithClassifierBridge(seededBridge()),
		app.WithConnectionWriter(newRecordingWriter()),
		app.WithObjectStore(objects))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	submitBody := map[string]any{"bucket": "uploads", "key": "doc.txt", "user_id": "user-1"}
	submitRec := doRequest(t, a.Mux(), http.MethodPost, "/v1/aliases/jobs", "", submitBody)
	if submitRec.Code != http.StatusAccepted {
		t.Fatalf("submit job: expected 202, got %d: %s", submitRec.Code, submitRec.Body)
	}
	var job struct {
		JobID string
	}
	if err := json.Unmarshal(submitRec.Body.Bytes(), &job); err != nil {
		t.Fatalf("unmarshal submit response: %v", err)
	}
	if job.JobID == "" {
		t.Fatal("expected a non-empty job_id from Submit")
	}

	getRec := doRequest(t, a.Mux(), http.MethodGet, "/v1/aliases/jobs/"+job.JobID, "", nil)
	if getRec.Code != http.StatusOK {
		t.Fatalf("get job: expected 200, got %d: %s", getRec.Code, getRec.Body)
	}

	missingRec := doRequest(t, a.Mux(), http.MethodGet, "/v1/aliases/jobs/does-not-exist", "", nil)
	if missingRec.Code != http.StatusNotFound {
		t.Fatalf("get missing job: expected 404, got %d", missingRec.Code)
	}

	ingestBody := map[string]any{"notification_id": "n1", "raw_text": "hello world"}
	ingestRec := doRequest(t, a.Mux(), http.MethodPost, "/v1/aliases/jobs/"+job.JobID+"/ingest", "", ingestBody)
	if ingestRec.Code != http.StatusOK {
		t.Fatalf("ingest job: expected 200, got %d: %s", ingestRec.Code, ingestRec.Body)
	}

	// Replaying the same notification id is treated as an idempotent
	// acknowledgement, not an error.
	dupRec := doRequest(t, a.Mux(), http.MethodPost, "/v1/aliases/jobs/"+job.JobID+"/ingest", "", ingestBody)
	if dupRec.Code != http.StatusOK {
		t.Fatalf("duplicate ingest: expected 200 ack, got %d: %s", dupRec.Code, dupRec.Body)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	a, err := app.New(t.Context(), cfg, &app.Providers{}, app.WithClassifierBridge(seededBridge()), app.WithConnectionWriter(newRecordingWriter()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown should be a no-op, got: %v", err)
	}
}
