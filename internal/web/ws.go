package web

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"meowpedia/internal/history"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 16
)

type wsEvent struct {
	Type    string       `json:"type"`
	State   string       `json:"state"`
	Message *messageJSON `json:"message,omitempty"`
}

func toWSEvent(ev history.Event) wsEvent {
	out := wsEvent{Type: "message", State: ev.State.String()}
	if ev.Kind == history.EventReset {
		out.Type = "reset"
		return out
	}
	m := toJSON(ev.Message)
	out.Message = &m
	return out
}

// handleWS streams every change of the caller's conversation. A client that
// falls behind by more than sendBuffer events is disconnected.
func (s *Server) handleWS(c *gin.Context) {
	key, conv := s.session(c)
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "session", key, "err", err)
		return
	}

	send := make(chan wsEvent, sendBuffer)
	done := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(done) }) }

	send <- wsEvent{Type: "state", State: conv.State().String()}
	unsubscribe := conv.Subscribe(func(ev history.Event) {
		select {
		case <-done:
		case send <- toWSEvent(ev):
		default:
			log.Warn("dropping slow websocket client", "session", key)
			stop()
		}
	})

	go func() {
		defer conn.Close()
		for {
			select {
			case ev := <-send:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(ev); err != nil {
					stop()
					return
				}
			case <-done:
				return
			}
		}
	}()

	log.Debug("websocket connected", "session", key)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	stop()
	unsubscribe()
	log.Debug("websocket closed", "session", key)
}
