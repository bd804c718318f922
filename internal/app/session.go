package app

import (
	"bytes"
	"encoding/csv"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"quiz-live-service/internal/domain"
	xlog "quiz-live-service/internal/log"
	"quiz-live-service/internal/scoring"
	"quiz-live-service/internal/timer"
)

const (
	maxMessageLength = 100
	subscriberBuffer = 8
)

// SessionConfig holds per-session timing and scoring parameters.
type SessionConfig struct {
	Countdown time.Duration
	// QuestionUnit scales Question.Duration; one second in production.
	QuestionUnit time.Duration
	Scorer       scoring.Scorer
	Scheduler    timer.Scheduler
	Now          func() time.Time
}

// Session is one live run of a quiz. All mutation happens under mu, including
// timer-fired transitions, so a manual action and an expiring timer can never
// both observe QUESTION_OPEN.
type Session struct {
	id        int
	quiz      domain.Quiz
	autoStart int
	cfg       SessionConfig
	log       zerolog.Logger

	mu          sync.Mutex
	state       domain.State
	atQuestion  int
	players     []domain.Player
	names       map[string]struct{}
	submissions map[int]domain.Submission
	openedAt    time.Time
	outcomes    []scoring.Outcome // one per closed question, by position
	finalScores map[int]float64
	messages    []domain.Message
	timer       *timer.Slot
	rnd         *rand.Rand
	subscribers map[chan domain.SessionStatus]struct{}
}

// NewSession builds a session in LOBBY over a private copy of quiz.
func NewSession(id int, quiz domain.Quiz, autoStartNum int, cfg SessionConfig) *Session {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = timer.Real{}
	}
	if cfg.QuestionUnit <= 0 {
		cfg.QuestionUnit = time.Second
	}
	now := cfg.Now()
	return &Session{
		id:          id,
		quiz:        quiz.Clone(),
		autoStart:   autoStartNum,
		cfg:         cfg,
		log:         xlog.WithComponent("session").With().Int("session_id", id).Str("quiz_id", quiz.ID).Logger(),
		state:       domain.StateLobby,
		names:       make(map[string]struct{}),
		submissions: make(map[int]domain.Submission),
		timer:       timer.NewSlot(cfg.Scheduler),
		rnd:         rand.New(rand.NewSource(now.UnixNano() + int64(id))),
		subscribers: make(map[chan domain.SessionStatus]struct{}),
	}
}

func (s *Session) ID() int { return s.id }

func (s *Session) QuizID() string { return s.quiz.ID }

// State returns the current phase.
func (s *Session) State() domain.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Active reports whether the session has not reached END.
func (s *Session) Active() bool {
	return s.State() != domain.StateEnd
}

// Status returns the administrator view.
func (s *Session) Status() domain.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

// Update applies an administrator action.
func (s *Session) Update(action domain.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(action, triggerManual)
}

func (s *Session) applyLocked(action domain.Action, trig trigger) error {
	tr, derr := transitionFor(s.state, action)
	if derr != nil {
		return derr.ForSession(s.id)
	}
	from := s.state

	switch action {
	case domain.ActionNextQuestion:
		if s.atQuestion >= len(s.quiz.Questions) {
			return domain.ErrNoMoreQuestions.ForSession(s.id)
		}
		s.enterLocked(tr.to)
		s.atQuestion++
		s.submissions = make(map[int]domain.Submission)
		s.timer.Arm(s.cfg.Countdown, s.fire(domain.ActionSkipCountdown))

	case domain.ActionSkipCountdown:
		s.enterLocked(tr.to)
		s.openedAt = s.cfg.Now()
		q := s.quiz.Questions[s.atQuestion-1]
		s.timer.Arm(time.Duration(q.Duration)*s.cfg.QuestionUnit, s.fire(actionCloseQuestion))

	case actionCloseQuestion:
		s.closeQuestionLocked()
		s.enterLocked(tr.to)

	case domain.ActionGoToAnswer:
		if s.state == domain.StateQuestionOpen {
			s.closeQuestionLocked()
		}
		s.enterLocked(tr.to)

	case domain.ActionGoToFinalResults:
		s.finalScores = s.cfg.Scorer.Totals(s.outcomes)
		s.enterLocked(tr.to)
		s.atQuestion = 0

	case domain.ActionEnd:
		s.enterLocked(tr.to)
		s.atQuestion = 0
		activeSessions.Dec()
	}

	sessionTransitions.WithLabelValues(string(from), string(s.state), string(trig)).Inc()
	s.log.Debug().
		Str("action", string(action)).
		Str("from", string(from)).
		Str("to", string(s.state)).
		Str("trigger", string(trig)).
		Int("at_question", s.atQuestion).
		Msg("session transition")
	if s.state == domain.StateEnd {
		s.log.Info().Int("players", len(s.players)).Msg("session ended")
	}
	s.broadcastLocked()
	return nil
}

// enterLocked switches state, cancelling any pending timer first.
func (s *Session) enterLocked(state domain.State) {
	s.timer.Cancel()
	s.state = state
}

// fire returns the timer callback for action. The callback claims its token
// under mu, so a cancelled or superseded timer does nothing even if its
// goroutine was already running.
func (s *Session) fire(action domain.Action) func(uint64) {
	return func(token uint64) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.timer.Claim(token) {
			return
		}
		if err := s.applyLocked(action, triggerTimer); err != nil {
			s.log.Error().Err(err).Str("action", string(action)).Msg("timer transition rejected")
		}
	}
}

// closeQuestionLocked scores the active question exactly once.
func (s *Session) closeQuestionLocked() {
	if s.atQuestion == 0 || len(s.outcomes) >= s.atQuestion {
		return
	}
	outcome := s.cfg.Scorer.Score(scoring.Input{
		Question:    s.quiz.Questions[s.atQuestion-1],
		OpenedAt:    s.openedAt,
		Players:     append([]domain.Player(nil), s.players...),
		Submissions: s.submissions,
	})
	s.outcomes = append(s.outcomes, outcome)
	s.submissions = make(map[int]domain.Submission)
	questionsScored.Inc()
	s.log.Debug().
		Int("question", s.atQuestion).
		Int("correct", len(outcome.Result.PlayersCorrectList)).
		Int("percent_correct", outcome.Result.PercentCorrect).
		Msg("question scored")
}

// join admits a player. An empty name is replaced by a generated one.
func (s *Session) join(playerID int, name string) (domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.StateLobby {
		return domain.Player{}, domain.ErrSessionNotInLobby.ForSession(s.id)
	}
	if name == "" {
		name = s.generateNameLocked()
	}
	if _, taken := s.names[name]; taken {
		return domain.Player{}, domain.ErrNameTaken.ForSession(s.id)
	}

	p := domain.Player{ID: playerID, Name: name}
	s.players = append(s.players, p)
	s.names[name] = struct{}{}
	playersJoined.Inc()

	if s.autoStart > 0 && len(s.players) == s.autoStart {
		if err := s.applyLocked(domain.ActionNextQuestion, triggerAutoStart); err != nil {
			s.log.Error().Err(err).Msg("auto-start failed")
		}
		return p, nil
	}
	s.broadcastLocked()
	return p, nil
}

// generateNameLocked returns five distinct letters followed by three distinct
// digits, unused in this session.
func (s *Session) generateNameLocked() string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	const digits = "0123456789"
	for {
		buf := make([]byte, 0, 8)
		for _, i := range s.rnd.Perm(len(letters))[:5] {
			buf = append(buf, letters[i])
		}
		for _, i := range s.rnd.Perm(len(digits))[:3] {
			buf = append(buf, digits[i])
		}
		if _, taken := s.names[string(buf)]; !taken {
			return string(buf)
		}
	}
}

func (s *Session) hasPlayerLocked(playerID int) bool {
	for _, p := range s.players {
		if p.ID == playerID {
			return true
		}
	}
	return false
}

func (s *Session) playerLocked(playerID int) (domain.Player, bool) {
	for _, p := range s.players {
		if p.ID == playerID {
			return p, true
		}
	}
	return domain.Player{}, false
}

func (s *Session) checkPositionLocked(position int) error {
	if position < 1 || position > len(s.quiz.Questions) {
		return domain.ErrInvalidPosition.ForSession(s.id)
	}
	return nil
}

// answer records or overwrites a player's submission for the open question.
func (s *Session) answer(playerID, position int, answerIDs []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasPlayerLocked(playerID) {
		return domain.ErrInvalidPlayer.ForPlayer(playerID)
	}
	if err := s.checkPositionLocked(position); err != nil {
		return err
	}
	if s.state != domain.StateQuestionOpen {
		return domain.ErrNotOpenState.ForSession(s.id)
	}
	if position != s.atQuestion {
		return domain.ErrWrongQuestion.ForSession(s.id)
	}
	if len(answerIDs) == 0 {
		return domain.ErrNoAnswerIDs.ForPlayer(playerID)
	}
	q := s.quiz.Questions[position-1]
	seen := make(map[int]struct{}, len(answerIDs))
	for _, id := range answerIDs {
		if _, dup := seen[id]; dup {
			return domain.ErrDuplicateAnswerIDs.ForPlayer(playerID)
		}
		seen[id] = struct{}{}
		if !q.HasAnswer(id) {
			return domain.ErrInvalidAnswerIDs.ForPlayer(playerID)
		}
	}

	s.submissions[playerID] = domain.Submission{
		AnswerIDs:   append([]int(nil), answerIDs...),
		SubmittedAt: s.cfg.Now(),
	}
	answersSubmitted.Inc()
	return nil
}

// questionResult returns the revealed result for the active question.
func (s *Session) questionResult(position int) (domain.QuestionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkPositionLocked(position); err != nil {
		return domain.QuestionResult{}, err
	}
	if s.state != domain.StateAnswerShow {
		return domain.QuestionResult{}, domain.ErrNotInAnswerShowState.ForSession(s.id)
	}
	if position != s.atQuestion {
		return domain.QuestionResult{}, domain.ErrWrongQuestion.ForSession(s.id)
	}
	return cloneResult(s.outcomes[position-1].Result), nil
}

// questionInfo returns the active question without correct flags.
func (s *Session) questionInfo(position int) (domain.QuestionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkPositionLocked(position); err != nil {
		return domain.QuestionInfo{}, err
	}
	switch s.state {
	case domain.StateLobby, domain.StateQuestionCountdown, domain.StateFinalResults, domain.StateEnd:
		return domain.QuestionInfo{}, domain.ErrQuestionNotActive.ForSession(s.id)
	}
	if position != s.atQuestion {
		return domain.QuestionInfo{}, domain.ErrWrongQuestion.ForSession(s.id)
	}
	q := s.quiz.Questions[position-1]
	info := domain.QuestionInfo{
		QuestionID: q.ID,
		Question:   q.Prompt,
		Duration:   q.Duration,
		Thumbnail:  q.Thumbnail,
		Points:     q.Points,
		Answers:    make([]domain.AnswerInfo, len(q.Answers)),
	}
	for i, a := range q.Answers {
		info.Answers[i] = domain.AnswerInfo{ID: a.ID, Text: a.Text, Colour: a.Colour}
	}
	return info, nil
}

func (s *Session) playerStatus() domain.PlayerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.PlayerStatus{
		State:        s.state,
		NumQuestions: len(s.quiz.Questions),
		AtQuestion:   s.atQuestion,
	}
}

// Results returns the final leaderboard and every question result.
func (s *Session) Results() (domain.SessionResults, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.StateFinalResults {
		return domain.SessionResults{}, domain.ErrNotInFinalResultsState.ForSession(s.id)
	}
	out := domain.SessionResults{
		UsersRankedByScore: scoring.Rank(s.players, s.finalScores),
		QuestionResults:    make([]domain.QuestionResult, len(s.outcomes)),
	}
	for i, o := range s.outcomes {
		out.QuestionResults[i] = cloneResult(o.Result)
	}
	return out, nil
}

// ResultsCSV renders one row per player, sorted by name, with score and rank
// columns for every question. Rank is 0 for players who were not correct.
func (s *Session) ResultsCSV() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.StateFinalResults {
		return nil, domain.ErrNotInFinalResultsState.ForSession(s.id)
	}

	header := []string{"Player"}
	for i := range s.outcomes {
		n := strconv.Itoa(i + 1)
		header = append(header, "question"+n+"score", "question"+n+"rank")
	}
	players := append([]domain.Player(nil), s.players...)
	sort.Slice(players, func(i, j int) bool { return players[i].Name < players[j].Name })

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, p := range players {
		row := []string{p.Name}
		for _, o := range s.outcomes {
			row = append(row,
				strconv.FormatFloat(o.Awarded[p.ID], 'f', -1, 64),
				strconv.Itoa(o.Ranks[p.ID]),
			)
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// sendMessage appends to the chat log; allowed in every state.
func (s *Session) sendMessage(playerID int, body string) error {
	if n := utf8.RuneCountInString(body); n < 1 || n > maxMessageLength {
		return domain.ErrInvalidMessageLength.ForPlayer(playerID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.playerLocked(playerID)
	if !ok {
		return domain.ErrInvalidPlayer.ForPlayer(playerID)
	}
	s.messages = append(s.messages, domain.Message{
		Body:       body,
		PlayerID:   p.ID,
		PlayerName: p.Name,
		TimeSent:   s.cfg.Now().Unix(),
	})
	return nil
}

func (s *Session) chatLog() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message{}, s.messages...)
}

// stop cancels any pending timer without changing state. It reports whether
// a timer was armed.
func (s *Session) stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := s.timer.Pending()
	s.timer.Cancel()
	if pending {
		s.log.Info().Str("state", string(s.state)).Msg("pending transition cancelled")
	}
	return pending
}

// Subscribe returns a channel of status snapshots, starting with the current
// one. The channel is closed when the session reaches END or cancel is called.
func (s *Session) Subscribe() (<-chan domain.SessionStatus, func()) {
	ch := make(chan domain.SessionStatus, subscriberBuffer)

	s.mu.Lock()
	ch <- s.statusLocked()
	if s.state == domain.StateEnd {
		close(ch)
		s.mu.Unlock()
		return ch, func() {}
	}
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) broadcastLocked() {
	status := s.statusLocked()
	for ch := range s.subscribers {
		select {
		case ch <- status:
		default:
			// Slow subscriber: drop its oldest snapshot to make room.
			select {
			case <-ch:
			default:
			}
			ch <- status
		}
	}
	if s.state == domain.StateEnd {
		for ch := range s.subscribers {
			delete(s.subscribers, ch)
			close(ch)
		}
	}
}

func (s *Session) statusLocked() domain.SessionStatus {
	names := make([]string, len(s.players))
	for i, p := range s.players {
		names[i] = p.Name
	}
	return domain.SessionStatus{
		SessionID:  s.id,
		QuizID:     s.quiz.ID,
		State:      s.state,
		AtQuestion: s.atQuestion,
		Players:    names,
		Metadata:   s.quiz.Clone(),
	}
}

func cloneResult(r domain.QuestionResult) domain.QuestionResult {
	r.PlayersCorrectList = append([]string{}, r.PlayersCorrectList...)
	return r
}
