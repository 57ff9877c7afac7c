package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"code-quizzer/internal/app"
	"code-quizzer/internal/domain"
	"github.com/gorilla/websocket"
)

// Verifier checks session tokens.
type Verifier interface {
	Verify(token string) (domain.Principal, error)
}

type WSHandler struct {
	service  *app.QuizService
	verifier Verifier
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, verifier Verifier) *WSHandler {
	return &WSHandler{
		service:  service,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type startPayload struct {
	Topic string `json:"topic"`
}

type answerPayload struct {
	Option string `json:"option"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// ServeWS upgrades HTTP requests to websockets and drives the user's quiz.
// Leaving the socket quits the active quiz, saving partial progress.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	principal, err := h.verifier.Verify(r.URL.Query().Get("token"))
	if err != nil {
		writeError(w, err)
		return
	}
	ctx := context.WithoutCancel(r.Context())
	if err := h.service.Ensure(ctx, principal); err != nil {
		writeError(w, err)
		return
	}
	userID := principal.ID

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	notices, cancelNotices := h.service.Notices(userID)
	defer cancelNotices()
	ticks, cancelTicks := h.service.Ticks(userID)
	defer cancelTicks()

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			var msg outboundMessage
			select {
			case n, ok := <-notices:
				if !ok {
					return
				}
				msg = outboundMessage{Type: "notice", Payload: n}
			case t, ok := <-ticks:
				if !ok {
					return
				}
				msg = outboundMessage{Type: "tick", Payload: t}
			case <-closeSignals:
				return
			}
			select {
			case send <- msg:
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		send <- h.handle(ctx, userID, inbound)
	}

	if err := h.service.Quit(ctx, userID); err != nil && !errors.Is(err, domain.ErrNoActiveQuiz) && !errors.Is(err, domain.ErrPlayerNotFound) {
		log.Printf("ws quit on close for %s: %v", userID, err)
	}
	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) handle(ctx context.Context, userID string, in inboundMessage) outboundMessage {
	switch in.Type {
	case "start":
		var payload startPayload
		if err := json.Unmarshal(in.Payload, &payload); err != nil || payload.Topic == "" {
			return errorMessage("invalid start payload")
		}
		view, err := h.service.StartQuiz(ctx, userID, payload.Topic)
		if err != nil {
			return errorMessage(err.Error())
		}
		return viewMessage(view)
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(in.Payload, &payload); err != nil {
			return errorMessage("invalid answer payload")
		}
		feedback, err := h.service.Submit(ctx, userID, payload.Option)
		if err != nil {
			return errorMessage(err.Error())
		}
		return outboundMessage{Type: "feedback", Payload: feedback}
	case "continue":
		view, err := h.service.Acknowledge(ctx, userID)
		if err != nil {
			return errorMessage(err.Error())
		}
		return viewMessage(view)
	case "quit":
		if err := h.service.Quit(ctx, userID); err != nil {
			return errorMessage(err.Error())
		}
		topics, err := h.service.Topics(ctx, userID)
		if err != nil {
			return errorMessage(err.Error())
		}
		return outboundMessage{Type: "topics", Payload: topics}
	case "retry":
		view, err := h.service.Retry(ctx, userID)
		if err != nil {
			return errorMessage(err.Error())
		}
		return viewMessage(view)
	default:
		return errorMessage("unsupported message type")
	}
}

func viewMessage(view app.QuizView) outboundMessage {
	if view.Summary != nil {
		return outboundMessage{Type: "completed", Payload: view}
	}
	return outboundMessage{Type: "question", Payload: view}
}

func errorMessage(message string) outboundMessage {
	return outboundMessage{Type: "error", Payload: errorPayload{Message: message}}
}
