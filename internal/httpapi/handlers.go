// Package httpapi exposes the dispatcher over HTTP: the binary poll
// endpoint clients hammer, plus the moderation hook and a health check.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/mikoto-dev/banchod/internal/dispatch"
	"github.com/mikoto-dev/banchod/internal/packet"
)

// TokenHeader carries the opaque bearer token on polls; the same header on
// the response delivers a freshly minted token after login.
const TokenHeader = "osu-token"

// maxBodyBytes bounds a poll body; legitimate clients stay far below this.
const maxBodyBytes = 1 << 20

// Poll is the presence-poll endpoint: raw framed packets in, raw framed
// packets out. An unknown token gets a restart volley so the client
// re-authenticates.
func Poll(d *dispatch.Dispatcher, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}

		token := r.Header.Get(TokenHeader)
		resp, newToken, err := d.Poll(r.Context(), token, body)
		if err != nil {
			if errors.Is(err, dispatch.ErrAuthRequired) {
				w.Header().Set(TokenHeader, "no")
				w.Header().Set("Content-Type", "application/octet-stream")
				_, _ = w.Write(packet.Restart(0))
				return
			}
			log.Error("poll failed", zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		if newToken != "" {
			w.Header().Set(TokenHeader, newToken)
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(resp)
	}
}

// SystemMessage lets external moderation tooling push an announcement to
// every connected session.
func SystemMessage(d *dispatch.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
			http.Error(w, "message required", http.StatusBadRequest)
			return
		}
		d.BroadcastSystemMessage(req.Message)
		w.WriteHeader(http.StatusAccepted)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
