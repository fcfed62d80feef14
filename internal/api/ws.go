package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/dgnsrekt/booktabs/internal/bridge"
)

type wsError struct {
	Error string `json:"error"`
}

// messagesWSHandler upgrades to a WebSocket and answers each text frame
// holding a bridge message with one reply frame. Messages on one socket are
// handled in arrival order.
func messagesWSHandler(h MessageHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			slog.Warn("messages ws upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		reqID := middleware.GetReqID(r.Context())
		slog.Info("messages ws connected", "remote", r.RemoteAddr, "request_id", reqID)

		seq := 0
		for {
			data, op, err := wsutil.ReadClientData(conn)
			if err != nil {
				slog.Debug("messages ws closed", "request_id", reqID, "error", err)
				return
			}
			if op != ws.OpText {
				continue
			}
			seq++

			var reply any
			msg, err := decodeMessage(data)
			if err != nil {
				reply = wsError{Error: "malformed message: " + err.Error()}
			} else {
				ctx := bridge.WithRequestID(context.WithoutCancel(r.Context()), fmt.Sprintf("%s-%d", reqID, seq))
				reply = h.Handle(ctx, msg)
			}

			out, err := json.Marshal(reply)
			if err != nil {
				slog.Error("messages ws marshal failed", "error", err)
				return
			}
			if err := wsutil.WriteServerMessage(conn, ws.OpText, out); err != nil {
				slog.Debug("messages ws write failed", "request_id", reqID, "error", err)
				return
			}
		}
	}
}
