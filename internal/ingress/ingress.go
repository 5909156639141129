// Package ingress implements the ingress multiplexer (§4.1): the single
// entry point an external gateway calls for every per-connection lifecycle
// event — connect, disconnect, and landmark frames — for the fingerspelling
// pipeline.
//
// Grounded on ingress_handler.py's lambda_handler/handle_connect/
// handle_disconnect/handle_landmarks, reworked from an API Gateway
// WebSocket Lambda into a plain net/http handler so it can sit behind any
// WebSocket-to-HTTP bridge, per the bridge-agnostic wire shape this pipeline
// was redesigned around. The connection_id a bridge assigns to each
// long-lived client connection is carried on the X-Connection-Id header for
// all three routes, since the client's own JSON payload never names it.
package ingress

import (
	"encoding/json"
	"math"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/aslstream/fingerspell/internal/observe"
	"github.com/aslstream/fingerspell/internal/sessionstore"
	"github.com/aslstream/fingerspell/internal/streambus"
)

// landmarkVectorLen is the fixed holistic-pose frame size: pose (33x4),
// face (468x3), left hand (21x3), right hand (21x3).
const landmarkVectorLen = 1662

// connectionIDHeader carries the gateway-assigned connection id for every
// route; the ingress multiplexer itself never generates one.
const connectionIDHeader = "X-Connection-Id"

// Handler serves the ingress multiplexer's three routes behind a single
// POST /v1/ingress/{action} endpoint.
type Handler struct {
	landmarks     *streambus.Stream
	store         sessionstore.Store
	connectionTTL time.Duration
	metrics       *observe.Metrics
}

// New constructs a [Handler]. landmarks is the partitioned stream
// sendlandmarks enqueues onto; store backs the connection registry.
// connectionTTL defaults to 24h (matching the original DynamoDB row TTL) if
// zero or negative. metrics may be nil, in which case
// [observe.DefaultMetrics] is used.
func New(landmarks *streambus.Stream, store sessionstore.Store, connectionTTL time.Duration, metrics *observe.Metrics) *Handler {
	if connectionTTL <= 0 {
		connectionTTL = 24 * time.Hour
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Handler{landmarks: landmarks, store: store, connectionTTL: connectionTTL, metrics: metrics}
}

// Register adds the ingress route to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/ingress/{action}", h.handle)
}

type ackResponse struct {
	Status string `json:"status"`
}

func writeAck(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(ackResponse{Status: "ok"})
}

func (h *Handler) handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	action := r.PathValue("action")
	defer func() {
		h.metrics.HTTPRequestDuration.Record(r.Context(), time.Since(start).Seconds(),
			metric.WithAttributes(
				observe.Attr("method", r.Method),
				observe.Attr("path", "/v1/ingress/"+action),
			))
	}()

	switch action {
	case "connect":
		h.handleConnect(w, r)
	case "disconnect":
		h.handleDisconnect(w, r)
	case "sendlandmarks":
		h.handleSendLandmarks(w, r)
	default:
		http.Error(w, "unknown action: "+action, http.StatusNotFound)
	}
}

// handleConnect implements handle_connect: records a pending connection row
// with a 24h TTL. The ingress never sends content back to the client, so
// the response is a bare acknowledgement regardless of registry outcome.
func (h *Handler) handleConnect(w http.ResponseWriter, r *http.Request) {
	ctx, span := observe.StartSpan(r.Context(), "ingress.connect")
	defer span.End()

	connectionID := r.Header.Get(connectionIDHeader)
	if connectionID == "" {
		http.Error(w, connectionIDHeader+" header is required", http.StatusBadRequest)
		return
	}

	if err := h.store.RegisterConnection(ctx, connectionID, h.connectionTTL); err != nil {
		observe.Logger(ctx).Warn("ingress: register connection failed", "connection_id", connectionID, "error", err)
	}
	h.metrics.ActiveConnections.Add(ctx, 1)
	writeAck(w)
}

// handleDisconnect implements handle_disconnect: removes the connection row.
func (h *Handler) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	ctx, span := observe.StartSpan(r.Context(), "ingress.disconnect")
	defer span.End()

	connectionID := r.Header.Get(connectionIDHeader)
	if connectionID == "" {
		http.Error(w, connectionIDHeader+" header is required", http.StatusBadRequest)
		return
	}

	if err := h.store.RemoveConnection(ctx, connectionID); err != nil {
		observe.Logger(ctx).Warn("ingress: remove connection failed", "connection_id", connectionID, "error", err)
	}
	h.metrics.ActiveConnections.Add(ctx, -1)
	writeAck(w)
}

// landmarksRequest is the client wire payload for sendlandmarks (§6).
type landmarksRequest struct {
	SessionID string    `json:"session_id,omitempty"`
	Data      []float64 `json:"data"`
}

// landmarksRecord is the JSON record published to the landmarks stream (§6).
type landmarksRecord struct {
	SessionID    string         `json:"session_id"`
	ConnectionID string         `json:"connection_id"`
	Timestamp    int64          `json:"timestamp"`
	Landmarks    []float64      `json:"landmarks"`
	Metadata     map[string]any `json:"metadata"`
}

// handleSendLandmarks implements handle_landmarks: validates the frame,
// best-effort updates the connection registry, then enqueues one record
// onto the landmarks stream partitioned by session_id. A registry failure
// is logged but never aborts the enqueue — the registry is a convenience,
// not the source of truth.
func (h *Handler) handleSendLandmarks(w http.ResponseWriter, r *http.Request) {
	ctx, span := observe.StartSpan(r.Context(), "ingress.sendlandmarks")
	defer span.End()

	connectionID := r.Header.Get(connectionIDHeader)
	if connectionID == "" {
		http.Error(w, connectionIDHeader+" header is required", http.StatusBadRequest)
		return
	}

	var req landmarksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := validateLandmarks(req.Data); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = connectionID
	}

	if err := h.store.TouchConnection(ctx, connectionID, sessionID, h.connectionTTL); err != nil {
		observe.Logger(ctx).Warn("ingress: touch connection failed", "connection_id", connectionID, "session_id", sessionID, "error", err)
	}

	now := time.Now().UTC()
	record := landmarksRecord{
		SessionID:    sessionID,
		ConnectionID: connectionID,
		Timestamp:    now.UnixMilli(),
		Landmarks:    req.Data,
		Metadata: map[string]any{
			"source":     "ingress",
			"event_time": now.UnixMilli(),
		},
	}
	payload, err := json.Marshal(record)
	if err != nil {
		http.Error(w, "failed to encode landmark record", http.StatusInternalServerError)
		return
	}

	if _, err := h.landmarks.Publish(sessionID, payload); err != nil {
		observe.Logger(ctx).Error("ingress: publish landmark record failed", "session_id", sessionID, "error", err)
		http.Error(w, "failed to enqueue landmark record", http.StatusInternalServerError)
		return
	}

	writeAck(w)
}

func validateLandmarks(data []float64) error {
	if len(data) != landmarkVectorLen {
		return errInvalidLandmarkLen
	}
	for _, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errNonFiniteLandmark
		}
	}
	return nil
}

var (
	errInvalidLandmarkLen = httpError("data must contain exactly 1662 values")
	errNonFiniteLandmark  = httpError("data must contain only finite values")
)

// httpError is a trivial string-backed error, matching the plain
// fmt.Errorf-free error values used for validation failures elsewhere in
// this package.
type httpError string

func (e httpError) Error() string { return string(e) }
