package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies errors so the transport can map them without string parsing.
type Kind string

const (
	KindNotFound      Kind = "NOT_FOUND"
	KindInvalidState  Kind = "INVALID_STATE"
	KindInvalidAction Kind = "INVALID_ACTION"
	KindInvalidInput  Kind = "INVALID_INPUT"
	KindUnauthorised  Kind = "UNAUTHORISED"
	KindConflict      Kind = "CONFLICT"
)

// Error is the structured error returned by the session core.
type Error struct {
	Kind      Kind
	Code      string
	Message   string
	QuizID    string
	SessionID int
	PlayerID  int
}

func (e *Error) Error() string {
	var ctx []string
	if e.QuizID != "" {
		ctx = append(ctx, "quiz="+e.QuizID)
	}
	if e.SessionID != 0 {
		ctx = append(ctx, fmt.Sprintf("session=%d", e.SessionID))
	}
	if e.PlayerID != 0 {
		ctx = append(ctx, fmt.Sprintf("player=%d", e.PlayerID))
	}
	if len(ctx) == 0 {
		return e.Message
	}
	return e.Message + " (" + strings.Join(ctx, " ") + ")"
}

// Is matches errors by code so sentinels compare equal to enriched copies.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// ForQuiz returns a copy annotated with the quiz id.
func (e *Error) ForQuiz(quizID string) *Error {
	c := *e
	c.QuizID = quizID
	return &c
}

// ForSession returns a copy annotated with the session id.
func (e *Error) ForSession(sessionID int) *Error {
	c := *e
	c.SessionID = sessionID
	return &c
}

// ForPlayer returns a copy annotated with the player id.
func (e *Error) ForPlayer(playerID int) *Error {
	c := *e
	c.PlayerID = playerID
	return &c
}

// KindOf returns the kind of err, or "" when err is not a domain error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = newError(KindNotFound, "QuizNotFound", "quiz not found")
	// ErrSessionNotFound is returned when a session id does not resolve.
	ErrSessionNotFound = newError(KindNotFound, "SessionNotFound", "session not found")
	// ErrInvalidSessionForQuiz is returned when a session belongs to a different quiz.
	ErrInvalidSessionForQuiz = newError(KindNotFound, "InvalidSessionForQuiz", "session does not belong to quiz")
	// ErrInvalidPlayer is returned when a player id does not resolve.
	ErrInvalidPlayer = newError(KindNotFound, "InvalidPlayer", "player not found")

	ErrInvalidAutoStartNum   = newError(KindInvalidInput, "InvalidAutoStartNum", "autoStartNum out of range")
	ErrTooManySessions       = newError(KindConflict, "TooManySessions", "too many active sessions for quiz")
	ErrNoQuestions           = newError(KindInvalidState, "NoQuestions", "quiz has no questions")
	ErrQuizInTrash           = newError(KindInvalidState, "QuizInTrash", "quiz is in trash")
	ErrQuizHasActiveSessions = newError(KindInvalidState, "QuizHasActiveSessions", "quiz has sessions not in END state")

	ErrInvalidAction         = newError(KindInvalidAction, "InvalidAction", "unknown action")
	ErrInvalidStateForAction = newError(KindInvalidState, "InvalidStateForAction", "action not allowed in current state")
	ErrNoMoreQuestions       = newError(KindInvalidState, "NoMoreQuestions", "no more questions in session")

	ErrNotInFinalResultsState = newError(KindInvalidState, "NotInFinalResultsState", "session is not in FINAL_RESULTS")
	ErrNotInAnswerShowState   = newError(KindInvalidState, "NotInAnswerShowState", "session is not in ANSWER_SHOW")

	ErrNameTaken         = newError(KindConflict, "NameTaken", "player name already taken in session")
	ErrSessionNotInLobby = newError(KindInvalidState, "SessionNotInLobby", "session is not in LOBBY")

	ErrInvalidPosition    = newError(KindInvalidInput, "InvalidPosition", "question position out of range")
	ErrNotOpenState       = newError(KindInvalidState, "NotOpenState", "session is not accepting answers")
	ErrWrongQuestion      = newError(KindInvalidInput, "WrongQuestion", "session is not on this question")
	ErrQuestionNotActive  = newError(KindInvalidState, "QuestionNotActive", "question is not visible in current state")
	ErrInvalidAnswerIDs   = newError(KindInvalidInput, "InvalidAnswerIds", "answer id is not valid for question")
	ErrDuplicateAnswerIDs = newError(KindInvalidInput, "DuplicateAnswerIds", "duplicate answer ids")
	ErrNoAnswerIDs        = newError(KindInvalidInput, "NoAnswerIds", "no answer ids submitted")

	ErrInvalidMessageLength = newError(KindInvalidInput, "InvalidMessageLength", "message body must be 1-100 characters")

	// ErrUnauthorised is available to callers that check quiz ownership.
	ErrUnauthorised = newError(KindUnauthorised, "Unauthorised", "caller does not own quiz")
)
