package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/p-n-ai/apprend-go/internal/chat"
)

// wsEvent is pushed to the client for every transcript change and after each reply.
type wsEvent struct {
	Type     string     `json:"type"`
	Index    int        `json:"index,omitempty"`
	Turn     *chat.Turn `json:"turn,omitempty"`
	Awaiting bool       `json:"awaiting"`
}

// ChatWebSocket streams tutor replies for the open course. The client sends
// {"text": "..."}; the server pushes one "turn" event per change and a final "done",
// or "ignored" when the message was blank or arrived while a reply was in flight.
// Closing the socket cancels the reply being streamed.
func (h *Handler) ChatWebSocket(w http.ResponseWriter, r *http.Request) {
	session, err := h.app.Chat()
	if err != nil {
		writeError(w, err)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns(h.allowedOrigins),
	})
	if err != nil {
		slog.Error("failed to accept websocket", "error", err, "session_id", session.ID())
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("failed to close websocket", "error", closeErr)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	var replies sync.WaitGroup
	defer func() {
		cancel()
		replies.Wait()
	}()

	// The connection is read continuously so a disconnect is seen while a reply is
	// still streaming. Each message is submitted on its own goroutine; the session
	// ignores messages sent while a reply is in flight.
	slog.Info("chat websocket connected", "session_id", session.ID())
	for {
		var msg chatMessage
		if err := wsjson.Read(ctx, ws, &msg); err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("chat websocket closed by client", "session_id", session.ID())
			} else if ctx.Err() == nil {
				slog.Warn("chat websocket read error", "error", err, "session_id", session.ID())
			}
			return
		}

		replies.Add(1)
		go func(text string) {
			defer replies.Done()
			h.streamReply(ctx, cancel, ws, session, text)
		}(msg.Text)
	}
}

// streamReply submits text and pushes every transcript change to the client. A failed
// write means the client is gone, so it cancels the connection context and with it
// the reply.
func (h *Handler) streamReply(ctx context.Context, cancel context.CancelFunc, ws *websocket.Conn, session *chat.Session, text string) {
	submitted := session.Submit(ctx, text, func(i int, t chat.Turn) {
		if err := wsjson.Write(ctx, ws, wsEvent{Type: "turn", Index: i, Turn: &t, Awaiting: session.Awaiting()}); err != nil {
			cancel()
		}
	})

	event := wsEvent{Type: "done", Awaiting: session.Awaiting()}
	if !submitted {
		event.Type = "ignored"
	}
	if err := wsjson.Write(ctx, ws, event); err != nil {
		slog.Debug("chat websocket write error", "error", err, "session_id", session.ID())
		cancel()
	}
}
