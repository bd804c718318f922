package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"quiz-live-service/internal/domain"
	xlog "quiz-live-service/internal/log"
	"quiz-live-service/internal/scoring"
	"quiz-live-service/internal/timer"
)

// SessionRepository abstracts where live sessions are kept (in-memory, Redis, etc).
type SessionRepository interface {
	Add(session *Session)
	Get(sessionID int) (*Session, bool)
	// ListByQuiz returns the quiz's sessions in creation order.
	ListByQuiz(quizID string) []*Session
	BindPlayer(playerID int, session *Session)
	SessionForPlayer(playerID int) (*Session, bool)
}

// StateRecorder is implemented by repositories that mirror session status
// somewhere external. RecordState is called off the session lock.
type StateRecorder interface {
	RecordState(ctx context.Context, status domain.SessionStatus) error
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizInvalidator is implemented by quiz repositories that cache content.
type QuizInvalidator interface {
	Invalidate(ctx context.Context, quizID string) error
}

// Options tunes the session core. Zero durations and limits fall back to
// DefaultOptions; ScorePrecision is used as given.
type Options struct {
	Countdown        time.Duration
	QuestionUnit     time.Duration
	MaxActivePerQuiz int
	MaxAutoStart     int
	ScorePrecision   int
	Scheduler        timer.Scheduler
	Now              func() time.Time
}

// DefaultOptions returns the production limits.
func DefaultOptions() Options {
	return Options{
		Countdown:        3 * time.Second,
		QuestionUnit:     time.Second,
		MaxActivePerQuiz: 10,
		MaxAutoStart:     50,
		ScorePrecision:   scoring.DefaultPrecision,
		Scheduler:        timer.Real{},
		Now:              time.Now,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Countdown <= 0 {
		o.Countdown = d.Countdown
	}
	if o.QuestionUnit <= 0 {
		o.QuestionUnit = d.QuestionUnit
	}
	if o.MaxActivePerQuiz <= 0 {
		o.MaxActivePerQuiz = d.MaxActivePerQuiz
	}
	if o.MaxAutoStart <= 0 {
		o.MaxAutoStart = d.MaxAutoStart
	}
	if o.Scheduler == nil {
		o.Scheduler = d.Scheduler
	}
	if o.Now == nil {
		o.Now = d.Now
	}
	return o
}

// SessionService is the session registry: it creates sessions from quiz
// snapshots, enforces per-quiz limits and routes actions to sessions.
type SessionService struct {
	sessions SessionRepository
	quizzes  QuizRepository
	opts     Options
	scorer   scoring.Scorer
	log      zerolog.Logger

	startMu       sync.Mutex
	started       []*Session
	stopMirrors   []func()
	nextSessionID atomic.Int64
	nextPlayerID  atomic.Int64
	mirrors       sync.WaitGroup
}

func NewSessionService(store SessionRepository, quizzes QuizRepository, opts Options) *SessionService {
	opts = opts.withDefaults()
	return &SessionService{
		sessions: store,
		quizzes:  quizzes,
		opts:     opts,
		scorer:   scoring.New(opts.ScorePrecision),
		log:      xlog.WithComponent("sessions"),
	}
}

// StartSession snapshots the quiz and opens a new session in LOBBY.
func (s *SessionService) StartSession(ctx context.Context, quizID string, autoStartNum int) (int, error) {
	if autoStartNum < 0 || autoStartNum > s.opts.MaxAutoStart {
		return 0, reject(domain.ErrInvalidAutoStartNum.ForQuiz(quizID))
	}

	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return 0, reject(err)
	}
	quiz.ID = quizID

	s.startMu.Lock()
	defer s.startMu.Unlock()

	active := 0
	for _, session := range s.sessions.ListByQuiz(quizID) {
		if session.Active() {
			active++
		}
	}
	if active >= s.opts.MaxActivePerQuiz {
		return 0, reject(domain.ErrTooManySessions.ForQuiz(quizID))
	}
	if len(quiz.Questions) == 0 {
		return 0, reject(domain.ErrNoQuestions.ForQuiz(quizID))
	}
	if quiz.Trashed {
		return 0, reject(domain.ErrQuizInTrash.ForQuiz(quizID))
	}

	id := int(s.nextSessionID.Add(1))
	session := NewSession(id, quiz, autoStartNum, SessionConfig{
		Countdown:    s.opts.Countdown,
		QuestionUnit: s.opts.QuestionUnit,
		Scorer:       s.scorer,
		Scheduler:    s.opts.Scheduler,
		Now:          s.opts.Now,
	})
	s.sessions.Add(session)
	s.started = append(s.started, session)
	s.mirror(session)
	sessionsStarted.Inc()
	activeSessions.Inc()

	xlog.FromContext(ctx).Info().
		Str("quiz_id", quizID).
		Int("session_id", id).
		Int("auto_start_num", autoStartNum).
		Int("questions", len(quiz.Questions)).
		Msg("session started")
	return id, nil
}

// mirror streams status changes to the repository when it records them.
// Called with startMu held.
func (s *SessionService) mirror(session *Session) {
	recorder, ok := s.sessions.(StateRecorder)
	if !ok {
		return
	}
	updates, cancel := session.Subscribe()
	s.stopMirrors = append(s.stopMirrors, cancel)
	s.mirrors.Add(1)
	go func() {
		defer s.mirrors.Done()
		for status := range updates {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			if err := recorder.RecordState(ctx, status); err != nil {
				s.log.Warn().Err(err).Int("session_id", status.SessionID).Msg("record session state")
			}
			cancel()
		}
	}()
}

// sessionForQuiz resolves a session and checks it belongs to quizID.
func (s *SessionService) sessionForQuiz(quizID string, sessionID int) (*Session, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok || session.QuizID() != quizID {
		return nil, domain.ErrInvalidSessionForQuiz.ForQuiz(quizID).ForSession(sessionID)
	}
	return session, nil
}

// UpdateSession applies an administrator action token to a session.
func (s *SessionService) UpdateSession(ctx context.Context, quizID string, sessionID int, rawAction string) error {
	session, err := s.sessionForQuiz(quizID, sessionID)
	if err != nil {
		return reject(err)
	}
	action, ok := domain.ParseAction(rawAction)
	if !ok {
		return reject(domain.ErrInvalidAction.ForSession(sessionID))
	}
	if err := session.Update(action); err != nil {
		xlog.FromContext(ctx).Debug().Err(err).Str("action", rawAction).Msg("session action rejected")
		return reject(err)
	}
	return nil
}

// GetSessionStatus returns the administrator view of a session.
func (s *SessionService) GetSessionStatus(_ context.Context, quizID string, sessionID int) (domain.SessionStatus, error) {
	session, err := s.sessionForQuiz(quizID, sessionID)
	if err != nil {
		return domain.SessionStatus{}, reject(err)
	}
	return session.Status(), nil
}

// ListSessions partitions the quiz's sessions into active and ended ids.
func (s *SessionService) ListSessions(_ context.Context, quizID string) domain.SessionList {
	out := domain.SessionList{ActiveSessions: []int{}, InactiveSessions: []int{}}
	for _, session := range s.sessions.ListByQuiz(quizID) {
		if session.Active() {
			out.ActiveSessions = append(out.ActiveSessions, session.ID())
		} else {
			out.InactiveSessions = append(out.InactiveSessions, session.ID())
		}
	}
	return out
}

// GetSessionResults returns the final results; FINAL_RESULTS only.
func (s *SessionService) GetSessionResults(_ context.Context, quizID string, sessionID int) (domain.SessionResults, error) {
	session, err := s.sessionForQuiz(quizID, sessionID)
	if err != nil {
		return domain.SessionResults{}, reject(err)
	}
	res, err := session.Results()
	return res, reject(err)
}

// SessionResultsCSV renders the final results as CSV; FINAL_RESULTS only.
func (s *SessionService) SessionResultsCSV(_ context.Context, quizID string, sessionID int) ([]byte, error) {
	session, err := s.sessionForQuiz(quizID, sessionID)
	if err != nil {
		return nil, reject(err)
	}
	out, err := session.ResultsCSV()
	return out, reject(err)
}

// EnsureQuizDeletable is called by the quiz CRUD layer before deleting a quiz.
func (s *SessionService) EnsureQuizDeletable(_ context.Context, quizID string) error {
	for _, session := range s.sessions.ListByQuiz(quizID) {
		if session.Active() {
			return reject(domain.ErrQuizHasActiveSessions.ForQuiz(quizID).ForSession(session.ID()))
		}
	}
	return nil
}

// QuizChanged drops any cached copy of the quiz so the next StartSession
// sees the CRUD layer's latest content, including its trash flag. Running
// sessions keep their own snapshot.
func (s *SessionService) QuizChanged(ctx context.Context, quizID string) error {
	inv, ok := s.quizzes.(QuizInvalidator)
	if !ok {
		return nil
	}
	if err := inv.Invalidate(ctx, quizID); err != nil {
		return fmt.Errorf("invalidate quiz %s: %w", quizID, err)
	}
	xlog.FromContext(ctx).Debug().Str("quiz_id", quizID).Msg("quiz cache invalidated")
	return nil
}

// Subscribe streams status snapshots for a session until it ends or cancel is called.
func (s *SessionService) Subscribe(_ context.Context, sessionID int) (<-chan domain.SessionStatus, func(), error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, nil, domain.ErrSessionNotFound.ForSession(sessionID)
	}
	ch, cancel := session.Subscribe()
	return ch, cancel, nil
}

// Shutdown cancels every pending session timer and waits for state mirrors
// to drain or ctx to expire. Sessions keep their current state.
func (s *SessionService) Shutdown(ctx context.Context) error {
	s.startMu.Lock()
	cancelled := 0
	for _, session := range s.started {
		if session.stop() {
			cancelled++
		}
	}
	for _, cancel := range s.stopMirrors {
		cancel()
	}
	s.stopMirrors = nil
	s.startMu.Unlock()
	s.log.Info().Int("timers_cancelled", cancelled).Msg("session core stopping")

	done := make(chan struct{})
	go func() {
		s.mirrors.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SessionService) allocatePlayerID() int {
	return int(s.nextPlayerID.Add(1))
}

// reject counts domain rejections by code and passes err through.
func reject(err error) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		rejectedOperations.WithLabelValues(de.Code).Inc()
	}
	return err
}
