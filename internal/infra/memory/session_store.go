package memory

import (
	"sync"

	"quiz-live-service/internal/app"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[int]*app.Session
	byQuiz   map[string][]*app.Session
	players  map[int]*app.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[int]*app.Session),
		byQuiz:   make(map[string][]*app.Session),
		players:  make(map[int]*app.Session),
	}
}

func (s *SessionStore) Add(session *app.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID()] = session
	s.byQuiz[session.QuizID()] = append(s.byQuiz[session.QuizID()], session)
}

func (s *SessionStore) Get(sessionID int) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	return session, ok
}

func (s *SessionStore) ListByQuiz(quizID string) []*app.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*app.Session(nil), s.byQuiz[quizID]...)
}

func (s *SessionStore) BindPlayer(playerID int, session *app.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[playerID] = session
}

func (s *SessionStore) SessionForPlayer(playerID int) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.players[playerID]
	return session, ok
}
