package app

import (
	"context"

	"quiz-live-service/internal/domain"
	xlog "quiz-live-service/internal/log"
)

// PlayerGateway translates player actions into session operations. Players
// are addressed by id alone; ids are allocated process-wide so each resolves
// to exactly one session.
type PlayerGateway struct {
	sessions *SessionService
}

func NewPlayerGateway(sessions *SessionService) *PlayerGateway {
	return &PlayerGateway{sessions: sessions}
}

func (g *PlayerGateway) session(playerID int) (*Session, error) {
	session, ok := g.sessions.sessions.SessionForPlayer(playerID)
	if !ok {
		return nil, domain.ErrInvalidPlayer.ForPlayer(playerID)
	}
	return session, nil
}

// Join admits a player to a session in LOBBY and returns the new player id.
// Names are unique per session; an empty name gets a generated one.
func (g *PlayerGateway) Join(ctx context.Context, sessionID int, name string) (int, error) {
	session, ok := g.sessions.sessions.Get(sessionID)
	if !ok {
		return 0, reject(domain.ErrSessionNotFound.ForSession(sessionID))
	}
	player, err := session.join(g.sessions.allocatePlayerID(), name)
	if err != nil {
		return 0, reject(err)
	}
	g.sessions.sessions.BindPlayer(player.ID, session)
	xlog.FromContext(ctx).Debug().
		Int("session_id", sessionID).
		Int("player_id", player.ID).
		Str("name", player.Name).
		Msg("player joined")
	return player.ID, nil
}

// Answer submits answerIDs for the question at position (1-based).
func (g *PlayerGateway) Answer(_ context.Context, playerID, position int, answerIDs []int) error {
	session, err := g.session(playerID)
	if err != nil {
		return reject(err)
	}
	return reject(session.answer(playerID, position, answerIDs))
}

// QuestionResult returns the revealed result of the question at position.
func (g *PlayerGateway) QuestionResult(_ context.Context, playerID, position int) (domain.QuestionResult, error) {
	session, err := g.session(playerID)
	if err != nil {
		return domain.QuestionResult{}, reject(err)
	}
	res, err := session.questionResult(position)
	return res, reject(err)
}

// QuestionInfo returns the active question without its correct answers.
func (g *PlayerGateway) QuestionInfo(_ context.Context, playerID, position int) (domain.QuestionInfo, error) {
	session, err := g.session(playerID)
	if err != nil {
		return domain.QuestionInfo{}, reject(err)
	}
	info, err := session.questionInfo(position)
	return info, reject(err)
}

// Status returns the player's view of the session phase.
func (g *PlayerGateway) Status(_ context.Context, playerID int) (domain.PlayerStatus, error) {
	session, err := g.session(playerID)
	if err != nil {
		return domain.PlayerStatus{}, reject(err)
	}
	return session.playerStatus(), nil
}

// Results returns the final results to a player; FINAL_RESULTS only.
func (g *PlayerGateway) Results(_ context.Context, playerID int) (domain.SessionResults, error) {
	session, err := g.session(playerID)
	if err != nil {
		return domain.SessionResults{}, reject(err)
	}
	res, err := session.Results()
	return res, reject(err)
}

// ChatSend appends a message to the session chat.
func (g *PlayerGateway) ChatSend(_ context.Context, playerID int, body string) error {
	session, err := g.session(playerID)
	if err != nil {
		return reject(err)
	}
	return reject(session.sendMessage(playerID, body))
}

// ChatView returns the session chat in send order.
func (g *PlayerGateway) ChatView(_ context.Context, playerID int) ([]domain.Message, error) {
	session, err := g.session(playerID)
	if err != nil {
		return nil, reject(err)
	}
	return session.chatLog(), nil
}

// SessionID resolves the session a player belongs to.
func (g *PlayerGateway) SessionID(playerID int) (int, error) {
	session, err := g.session(playerID)
	if err != nil {
		return 0, err
	}
	return session.ID(), nil
}
