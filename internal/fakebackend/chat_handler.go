package fakebackend

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

type chatIncoming struct {
	Content string `json:"content"`
}

type chatOutgoing struct {
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
}

// ChatHandler echoes every message sent on a conversation back to the sender. The
// access token arrives as the token query parameter.
func (b *Backend) ChatHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.count(CallChat)
		a, err := b.authenticate(r.URL.Query().Get("token"))
		if err != nil {
			writeDetail(w, http.StatusForbidden, "Invalid authentication token")
			return
		}
		conversationID := chi.URLParam(r, "conversationID")

		conn, err := b.upgrader.Upgrade(w, r, nil)
		if err != nil {
			b.log.Err(err).Msg("chat upgrade failed")
			return
		}
		defer conn.Close()

		for {
			var in chatIncoming
			if err := conn.ReadJSON(&in); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					b.log.Debug().Err(err).Msg("chat read ended")
				}
				return
			}
			out := chatOutgoing{
				ConversationID: conversationID,
				SenderID:       a.UID,
				Content:        in.Content,
				Timestamp:      NowTimeFunc().UTC(),
			}
			if err := conn.WriteJSON(out); err != nil {
				return
			}
		}
	}
}
