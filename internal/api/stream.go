package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/zikrgate/zikrgate/internal/observe"
)

// streamIdleTimeout bounds how long a verification stream may sit without
// a client message before the server closes it.
const streamIdleTimeout = 2 * time.Minute

// streamRequest is one client message on the verification stream. The
// client sends the transcript accumulated so far; final commits the
// attempt.
type streamRequest struct {
	Transcript string `json:"transcript"`
	Final      bool   `json:"final"`
}

// streamProgress is the server's reply to an interim transcript: live
// repetition progress against the currently required recitation.
type streamProgress struct {
	Type     string `json:"type"` // always "progress"
	Detected int    `json:"detected"`
	Required int    `json:"required"`
}

// streamResult is the server's reply to a final transcript.
type streamResult struct {
	Type    string      `json:"type"` // always "result"
	Verdict verdictJSON `json:"verdict"`
	Granted bool        `json:"granted"`
	Status  statusJSON  `json:"status"`
}

// handleVerifyStream upgrades to a WebSocket and answers each interim
// transcript with live repetition progress, letting the client render a
// counter while the user recites. A message with final=true commits the
// attempt through the regular verification path and closes the stream.
//
// Interim messages never mutate ledger state.
func (s *Server) handleVerifyStream(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	ctx := r.Context()
	log := observe.Logger(ctx).With("user_id", userID, "stream_id", uuid.NewString())

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Warn("stream: accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")

	s.metrics.ActiveStreams.Add(ctx, 1)
	defer s.metrics.ActiveStreams.Add(ctx, -1)
	log.Info("verification stream opened")

	for {
		readCtx, cancel := context.WithTimeout(ctx, streamIdleTimeout)
		var req streamRequest
		err := wsjson.Read(readCtx, conn, &req)
		cancel()
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				errors.Is(err, context.Canceled) {
				log.Info("verification stream closed by client")
			} else {
				log.Warn("stream: read failed", "err", err)
			}
			return
		}

		if !req.Final {
			detected, required, err := s.gatekeeper.Progress(ctx, userID, req.Transcript)
			if err != nil {
				log.Error("stream: progress failed", "err", err)
				conn.Close(websocket.StatusInternalError, "progress failed")
				return
			}
			if err := wsjson.Write(ctx, conn, streamProgress{
				Type:     "progress",
				Detected: detected,
				Required: required,
			}); err != nil {
				log.Warn("stream: write failed", "err", err)
				return
			}
			continue
		}

		res, err := s.gatekeeper.Verify(ctx, userID, req.Transcript)
		if err != nil {
			log.Error("stream: verify failed", "err", err)
			conn.Close(websocket.StatusInternalError, "verify failed")
			return
		}
		if err := wsjson.Write(ctx, conn, streamResult{
			Type:    "result",
			Verdict: toVerdictJSON(res.Verdict),
			Granted: res.Granted,
			Status:  toStatusJSON(res.Status),
		}); err != nil {
			log.Warn("stream: write failed", "err", err)
			return
		}

		log.Info("verification stream committed",
			"verdict", res.Verdict.String(),
			"granted", res.Granted,
		)
		conn.Close(websocket.StatusNormalClosure, "")
		return
	}
}
