package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/cryptofolio/internal/domain"
	"github.com/aristath/cryptofolio/internal/modules/performance"
)

const streamWriteTimeout = 10 * time.Second

// StreamMessage is one frame of the performance stream
type StreamMessage struct {
	Type        string                       `json:"type"`
	Performance *domain.PortfolioPerformance `json:"performance,omitempty"`
	Error       string                       `json:"error,omitempty"`
	SentAt      time.Time                    `json:"sent_at"`
}

// HandleStreamPerformance handles GET /api/portfolios/{id}/stream.
// It upgrades to a websocket and pushes the portfolio's performance every stream interval
// until the client disconnects.
func (h *Handler) HandleStreamPerformance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// The hijacked connection keeps the server's write deadline unless it is cleared
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.log.Warn().Err(err).Str("portfolio_id", id).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream ended")

	// Clients never send data; CloseRead handles control frames and cancels ctx on close
	ctx := conn.CloseRead(r.Context())

	h.log.Info().Str("portfolio_id", id).Msg("Performance stream opened")

	ticker := time.NewTicker(h.streamInterval)
	defer ticker.Stop()

	for {
		done, err := h.pushPerformance(ctx, conn, id)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				h.log.Info().Str("portfolio_id", id).Msg("Performance stream closed by client")
			} else {
				h.log.Warn().Err(err).Str("portfolio_id", id).Msg("Performance stream write failed")
			}
			return
		}
		if done {
			conn.Close(websocket.StatusNormalClosure, "portfolio not found")
			return
		}

		select {
		case <-ctx.Done():
			h.log.Info().Str("portfolio_id", id).Msg("Performance stream closed")
			return
		case <-ticker.C:
		}
	}
}

// pushPerformance sends one frame. done is true when the stream should end normally.
func (h *Handler) pushPerformance(ctx context.Context, conn *websocket.Conn, id string) (bool, error) {
	msg := StreamMessage{Type: "performance", SentAt: time.Now().UTC()}
	done := false

	perf, err := h.service.CalculateByID(ctx, id)
	switch {
	case err == nil:
		msg.Performance = perf
	case performance.IsNotFound(err):
		msg.Type = "error"
		msg.Error = "portfolio not found"
		done = true
	case ctx.Err() != nil:
		return false, ctx.Err()
	default:
		h.log.Warn().Err(err).Str("portfolio_id", id).Msg("Stream calculation failed")
		msg.Type = "error"
		msg.Error = "performance temporarily unavailable"
	}

	writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	if err := wsjson.Write(writeCtx, conn, msg); err != nil {
		return false, err
	}
	return done, nil
}
