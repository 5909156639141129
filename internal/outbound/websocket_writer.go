package outbound

import (
	"context"
	"fmt"
	"time"

	"github.com/coder/websocket"
)

// WebSocketWriter is the reference [ConnectionWriter]: it dials the
// gateway's outbound channel for a connection and writes one text frame,
// mirroring the client-dial idiom the teacher's realtime providers
// (pkg/provider/s2s) use against their own upstream WebSocket endpoints.
// Since the real gateway is an external collaborator not present in this
// module, this is the pluggable stub named in the outbound dispatcher's
// design: any deployment can substitute its own [ConnectionWriter] without
// touching [RegistryPusher].
type WebSocketWriter struct {
	// baseURL is the gateway's outbound-delivery endpoint, e.g.
	// "wss://gateway.internal/outbound". The connection id is appended as
	// a path segment.
	baseURL     string
	dialTimeout time.Duration
}

// NewWebSocketWriter constructs a [WebSocketWriter]. dialTimeout defaults
// to 5s if zero or negative.
func NewWebSocketWriter(baseURL string, dialTimeout time.Duration) *WebSocketWriter {
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	return &WebSocketWriter{baseURL: baseURL, dialTimeout: dialTimeout}
}

// Write implements [ConnectionWriter]: dials baseURL/connectionID, writes
// payload as a single text frame, and closes the connection.
func (w *WebSocketWriter) Write(ctx context.Context, connectionID string, payload []byte) error {
	dialCtx, cancel := context.WithTimeout(ctx, w.dialTimeout)
	defer cancel()

	url := w.baseURL + "/" + connectionID
	conn, _, err := websocket.Dial(dialCtx, url, nil)
	if err != nil {
		return fmt.Errorf("outbound: dial %s: %w", url, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "delivered")

	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("outbound: write frame: %w", err)
	}
	return nil
}

var _ ConnectionWriter = (*WebSocketWriter)(nil)
