package ingress

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aslstream/fingerspell/internal/sessionstore"
	"github.com/aslstream/fingerspell/internal/streambus"
)

func newTestHandler() (*Handler, *streambus.Stream, sessionstore.Store) {
	stream := streambus.New("landmarks", 4)
	store := sessionstore.NewMemStore()
	return New(stream, store, 0, nil), stream, store
}

func doRequest(h *Handler, method, action, connectionID string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/v1/ingress/"+action, bytes.NewReader(body))
	req.SetPathValue("action", action)
	if connectionID != "" {
		req.Header.Set(connectionIDHeader, connectionID)
	}
	rec := httptest.NewRecorder()
	h.handle(rec, req)
	return rec
}

func TestConnectRegistersConnection(t *testing.T) {
	h, _, store := newTestHandler()

	rec := doRequest(h, http.MethodPost, "connect", "conn-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	if _, err := store.ConnectionForSession(t.Context(), "conn-1"); err != sessionstore.ErrConnectionNotFound {
		t.Fatalf("expected no session bound yet, got err = %v", err)
	}
}

func TestConnectWithoutConnectionIDIsRejected(t *testing.T) {
	h, _, _ := newTestHandler()

	rec := doRequest(h, http.MethodPost, "connect", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestDisconnectRemovesConnection(t *testing.T) {
	h, _, store := newTestHandler()
	doRequest(h, http.MethodPost, "connect", "conn-1", nil)

	rec := doRequest(h, http.MethodPost, "disconnect", "conn-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	if err := store.TouchConnection(t.Context(), "conn-1", "sess-1", 0); err != sessionstore.ErrConnectionNotFound {
		t.Fatalf("expected connection to be gone, got err = %v", err)
	}
}

func TestSendLandmarksEnqueuesRecordAndDefaultsSessionID(t *testing.T) {
	h, stream, store := newTestHandler()
	doRequest(h, http.MethodPost, "connect", "conn-1", nil)

	data := make([]float64, landmarkVectorLen)
	body, _ := json.Marshal(landmarksRequest{Data: data})
	rec := doRequest(h, http.MethodPost, "sendlandmarks", "conn-1", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body = %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	sub, err := stream.Subscribe(stream.ShardFor("conn-1"), 0, 0)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	rec2, err := sub.Next(t.Context())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	var got landmarksRecord
	if err := json.Unmarshal(rec2.Payload, &got); err != nil {
		t.Fatalf("unmarshal record: %v", err)
	}
	if got.SessionID != "conn-1" {
		t.Errorf("session_id = %q, want %q (defaulted to connection_id)", got.SessionID, "conn-1")
	}
	if got.ConnectionID != "conn-1" {
		t.Errorf("connection_id = %q, want %q", got.ConnectionID, "conn-1")
	}
	if len(got.Landmarks) != landmarkVectorLen {
		t.Errorf("len(landmarks) = %d, want %d", len(got.Landmarks), landmarkVectorLen)
	}

	if connID, err := store.ConnectionForSession(t.Context(), "conn-1"); err != nil || connID != "conn-1" {
		t.Errorf("ConnectionForSession(conn-1) = (%q, %v), want (conn-1, nil)", connID, err)
	}
}

func TestSendLandmarksHonorsExplicitSessionID(t *testing.T) {
	h, stream, _ := newTestHandler()

	data := make([]float64, landmarkVectorLen)
	body, _ := json.Marshal(landmarksRequest{SessionID: "sess-explicit", Data: data})
	rec := doRequest(h, http.MethodPost, "sendlandmarks", "conn-1", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	sub, err := stream.Subscribe(stream.ShardFor("sess-explicit"), 0, 0)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	got, err := sub.Next(t.Context())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	var record landmarksRecord
	if err := json.Unmarshal(got.Payload, &record); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if record.SessionID != "sess-explicit" {
		t.Errorf("session_id = %q, want %q", record.SessionID, "sess-explicit")
	}
}

func TestSendLandmarksRejectsWrongLength(t *testing.T) {
	h, _, _ := newTestHandler()

	body, _ := json.Marshal(landmarksRequest{Data: make([]float64, 10)})
	rec := doRequest(h, http.MethodPost, "sendlandmarks", "conn-1", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestSendLandmarksRejectsNonFiniteValues(t *testing.T) {
	h, _, _ := newTestHandler()

	data := make([]float64, landmarkVectorLen)
	data[5] = math.Inf(1)
	body, _ := json.Marshal(landmarksRequest{Data: data})
	rec := doRequest(h, http.MethodPost, "sendlandmarks", "conn-1", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestUnknownActionReturns404(t *testing.T) {
	h, _, _ := newTestHandler()

	rec := doRequest(h, http.MethodPost, "bogus", "conn-1", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
