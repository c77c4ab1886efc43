package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"scorm-quiz-service/internal/app"
	"scorm-quiz-service/internal/domain"
)

// WSHandler drives attempt sessions over a websocket. Every state change is
// pushed to the client as a snapshot.
type WSHandler struct {
	attempts *app.AttemptService
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewWSHandler(attempts *app.AttemptService, log *zap.Logger) *WSHandler {
	return &WSHandler{
		attempts: attempts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	Position int `json:"position"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS attaches the connection to the attempt of (quizId, clientId).
// Tabs sharing a client id share one session.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	key := app.SessionKey{
		QuizID:   r.URL.Query().Get("quizId"),
		ClientID: r.URL.Query().Get("clientId"),
	}
	if key.QuizID == "" || key.ClientID == "" {
		http.Error(w, "missing quizId or clientId", http.StatusBadRequest)
		return
	}

	session, resources, err := h.attempts.Open(r.Context(), key)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	defer h.attempts.Release(key)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	updates, cancel := session.Subscribe()
	defer cancel()

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})
	resourcesDone := make(chan struct{})

	push := func(msg outboundMessage) bool {
		select {
		case send <- msg:
			return true
		case <-closeSignals:
			return false
		case <-writerDone:
			return false
		}
	}

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write error", zap.Error(err))
				_ = conn.Close()
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case snap, ok := <-updates:
				if !ok {
					return
				}
				if !push(outboundMessage{Type: "snapshot", Payload: snap}) {
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	go func() {
		defer close(resourcesDone)
		ctx, stop := context.WithCancel(r.Context())
		defer stop()
		go func() {
			select {
			case <-closeSignals:
				stop()
			case <-ctx.Done():
			}
		}()
		if err := resources.Wait(ctx); err != nil {
			return
		}
		if push(outboundMessage{Type: "resources", Payload: mediaPaths(key.QuizID, resources)}) {
			push(outboundMessage{Type: "snapshot", Payload: session.Snapshot()})
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if err := h.dispatch(r.Context(), session, inbound); err != nil {
			if !push(outboundMessage{Type: "error", Payload: errorPayload{Message: clientMessage(err)}}) {
				break
			}
		}
	}

	close(closeSignals)
	<-updatesDone
	<-resourcesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) dispatch(ctx context.Context, session *app.Session, msg inboundMessage) error {
	switch msg.Type {
	case "identify":
		var identity domain.UserData
		if err := json.Unmarshal(msg.Payload, &identity); err != nil {
			return errInvalidPayload
		}
		return session.SetIdentity(ctx, identity)
	case "start":
		return session.Start(ctx)
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return errInvalidPayload
		}
		return session.Select(ctx, payload.Position)
	case "finish":
		return session.Finish(ctx)
	case "retake":
		return session.Retake(ctx)
	default:
		return errUnsupported
	}
}

var (
	errInvalidPayload = errors.New("invalid payload")
	errUnsupported    = errors.New("unsupported message type")
)

// clientMessage keeps session rule violations readable and hides the rest.
func clientMessage(err error) string {
	for _, known := range []error{
		errInvalidPayload,
		errUnsupported,
		domain.ErrInvalidTransition,
		domain.ErrResourcesNotReady,
		domain.ErrIdentityRequired,
		domain.ErrAnswerOutOfRange,
		domain.ErrSessionClosed,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "submission failed, please try again"
}

// mediaPaths maps each prefetched media URL to the path it is served from.
func mediaPaths(quizID string, resources *app.Resources) map[string]string {
	keys := resources.Keys()
	out := make(map[string]string, len(keys))
	for url, key := range keys {
		out[url] = "/api/quiz/" + quizID + "/media/" + key
	}
	return out
}
