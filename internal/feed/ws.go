// Package feed connects the pipeline to a live rate-update stream. A
// Socket dials a WebSocket endpoint and forwards decoded updates into
// the shared pipeline queue alongside the synthetic producer.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tokenarb/cyclescan/internal/domain"
)

// handshakeTimeout bounds the WebSocket dial.
const handshakeTimeout = 15 * time.Second

// rateMessage is the JSON shape the feed emits per update.
type rateMessage struct {
	EdgeIndex int     `json:"edge_index"`
	Rate      float64 `json:"rate"`
}

// Socket is a WebSocket update source. It satisfies the pipeline's
// UpdateSource contract: Run forwards messages until the connection
// drops or ctx is cancelled.
type Socket struct {
	url    string
	logger *slog.Logger
}

// NewSocket creates a Socket for the given ws:// or wss:// URL.
func NewSocket(url string, logger *slog.Logger) *Socket {
	return &Socket{
		url:    url,
		logger: logger.With(slog.String("component", "rate_feed")),
	}
}

// Run dials the feed and pumps updates into out. Malformed frames are
// skipped; the writer still validates every forwarded record, so the
// feed never needs to be trusted.
func (s *Socket) Run(ctx context.Context, out chan<- domain.RateUpdate) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("feed: connect %s: %w", s.url, err)
	}

	// Unblock the read loop when the context ends.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	defer conn.Close()

	s.logger.Info("rate feed connected", slog.String("url", s.url))
	defer s.logger.Info("rate feed disconnected")

	for {
		var msg rateMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				s.logger.Warn("skipping malformed feed frame", slog.String("error", err.Error()))
				continue
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("feed: read %s: %w", s.url, err)
		}

		select {
		case out <- domain.RateUpdate{EdgeIndex: msg.EdgeIndex, Rate: msg.Rate}:
		case <-ctx.Done():
			return nil
		}
	}
}
