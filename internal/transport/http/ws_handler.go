package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"quiz-live-service/internal/app"
	"quiz-live-service/internal/domain"
	xlog "quiz-live-service/internal/log"
)

const (
	wsSendBuffer = 16
	wsWriteWait  = 10 * time.Second
)

// WSHandler is the realtime player gateway: a player joins over the socket,
// receives phase changes as they happen and submits answers and chat.
type WSHandler struct {
	sessions *app.SessionService
	players  *app.PlayerGateway
	upgrader websocket.Upgrader
}

func NewWSHandler(sessions *app.SessionService, players *app.PlayerGateway) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		players:  players,
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

type positionPayload struct {
	Position int `json:"position"`
}

type answerPayload struct {
	Position  int   `json:"position"`
	AnswerIDs []int `json:"answerIds"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type joinedPayload struct {
	PlayerID  int `json:"playerId"`
	SessionID int `json:"sessionId"`
}

func errorMessage(err error) outboundMessage[any] {
	p := errorPayload{Message: err.Error()}
	if de, ok := asDomain(err); ok {
		p.Code = de.Code
	}
	return outboundMessage[any]{Type: "error", Payload: p}
}

// ServeWS upgrades the request, joins the player to sessionId and streams
// player-visible status until the session ends or the socket closes.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID, err := strconv.Atoi(r.URL.Query().Get("sessionId"))
	if err != nil {
		http.Error(w, "missing or invalid sessionId", http.StatusBadRequest)
		return
	}
	name := r.URL.Query().Get("name")
	ctx := r.Context()
	logger := xlog.FromContext(ctx).With().Int("session_id", sessionID).Logger()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	playerID, err := h.players.Join(ctx, sessionID, name)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}

	updates, cancel, err := h.sessions.Subscribe(ctx, sessionID)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], wsSendBuffer)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// Single writer: gorilla connections allow one concurrent writer. A failed
	// write closes the socket so the read loop below stops too.
	go func() {
		defer close(writerDone)
		for msg := range send {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(msg); err != nil {
				logger.Debug().Err(err).Msg("ws write failed")
				_ = conn.Close()
				return
			}
		}
	}()

	// Queued before the first status so clients always see "joined" first.
	enqueue(send, writerDone, outboundMessage[any]{Type: "joined", Payload: joinedPayload{PlayerID: playerID, SessionID: sessionID}})
	logger.Debug().Int("player_id", playerID).Msg("player connected")

	go func() {
		defer close(updatesDone)
		for {
			select {
			case status, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "status", Payload: playerView(status)}:
				case <-closeSignals:
					return
				case <-writerDone:
					return
				}
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
		if !enqueue(send, writerDone, h.dispatch(ctx, playerID, inbound)) {
			break
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// enqueue hands msg to the writer. It reports false once the writer has
// exited, so callers never block on a dead connection.
func enqueue(send chan<- outboundMessage[any], writerDone <-chan struct{}, msg outboundMessage[any]) bool {
	select {
	case send <- msg:
		return true
	case <-writerDone:
		return false
	}
}

// dispatch runs one inbound player command and returns the reply.
func (h *WSHandler) dispatch(ctx context.Context, playerID int, in inboundMessage) outboundMessage[any] {
	invalid := func() outboundMessage[any] {
		return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid " + in.Type + " payload"}}
	}
	reply := func(typ string, payload any, err error) outboundMessage[any] {
		if err != nil {
			return errorMessage(err)
		}
		return outboundMessage[any]{Type: typ, Payload: payload}
	}

	switch in.Type {
	case "answer":
		var p answerPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return invalid()
		}
		err := h.players.Answer(ctx, playerID, p.Position, p.AnswerIDs)
		return reply("answerAccepted", positionPayload{Position: p.Position}, err)
	case "question":
		var p positionPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return invalid()
		}
		info, err := h.players.QuestionInfo(ctx, playerID, p.Position)
		return reply("question", info, err)
	case "questionResult":
		var p positionPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return invalid()
		}
		res, err := h.players.QuestionResult(ctx, playerID, p.Position)
		return reply("questionResult", res, err)
	case "results":
		res, err := h.players.Results(ctx, playerID)
		return reply("results", res, err)
	case "chat":
		var p chatRequest
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return invalid()
		}
		if err := h.players.ChatSend(ctx, playerID, p.MessageBody); err != nil {
			return errorMessage(err)
		}
		messages, err := h.players.ChatView(ctx, playerID)
		return reply("chat", messages, err)
	default:
		return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
	}
}

// playerView strips the quiz snapshot, which carries correct-answer flags.
func playerView(status domain.SessionStatus) domain.PlayerStatus {
	return domain.PlayerStatus{
		State:        status.State,
		NumQuestions: len(status.Metadata.Questions),
		AtQuestion:   status.AtQuestion,
	}
}
