package domain

import "time"

// State is a live session phase.
type State string

const (
	StateLobby             State = "LOBBY"
	StateQuestionCountdown State = "QUESTION_COUNTDOWN"
	StateQuestionOpen      State = "QUESTION_OPEN"
	StateQuestionClose     State = "QUESTION_CLOSE"
	StateAnswerShow        State = "ANSWER_SHOW"
	StateFinalResults      State = "FINAL_RESULTS"
	StateEnd               State = "END"
)

// Action is an administrator command accepted by UpdateSession.
type Action string

const (
	ActionNextQuestion     Action = "NEXT_QUESTION"
	ActionSkipCountdown    Action = "SKIP_COUNTDOWN"
	ActionGoToAnswer       Action = "GO_TO_ANSWER"
	ActionGoToFinalResults Action = "GO_TO_FINAL_RESULTS"
	ActionEnd              Action = "END"
)

// ParseAction returns the canonical action for a wire token.
func ParseAction(raw string) (Action, bool) {
	switch a := Action(raw); a {
	case ActionNextQuestion, ActionSkipCountdown, ActionGoToAnswer, ActionGoToFinalResults, ActionEnd:
		return a, true
	}
	return "", false
}

// Answer is one selectable option of a question.
type Answer struct {
	ID      int    `json:"answerId"`
	Text    string `json:"answer"`
	Colour  string `json:"colour,omitempty"`
	Correct bool   `json:"correct"`
}

// Question models a multiple-choice question. Duration is in seconds.
type Question struct {
	ID        int      `json:"questionId"`
	Prompt    string   `json:"question"`
	Duration  int      `json:"duration"`
	Points    int      `json:"points"`
	Thumbnail string   `json:"thumbnailUrl,omitempty"`
	Answers   []Answer `json:"answers"`
}

// CorrectAnswerIDs returns the ids flagged correct, in declaration order.
func (q Question) CorrectAnswerIDs() []int {
	ids := make([]int, 0, len(q.Answers))
	for _, a := range q.Answers {
		if a.Correct {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// HasAnswer reports whether id names one of the question's answers.
func (q Question) HasAnswer(id int) bool {
	for _, a := range q.Answers {
		if a.ID == id {
			return true
		}
	}
	return false
}

// Quiz is the quiz content owned by the CRUD layer.
type Quiz struct {
	ID          string     `json:"quizId"`
	OwnerID     string     `json:"ownerId"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Thumbnail   string     `json:"thumbnailUrl,omitempty"`
	Trashed     bool       `json:"trashed"`
	Questions   []Question `json:"questions"`
}

// Clone returns a deep copy that shares no slices with q.
func (q Quiz) Clone() Quiz {
	out := q
	out.Questions = make([]Question, len(q.Questions))
	for i, question := range q.Questions {
		question.Answers = append([]Answer(nil), question.Answers...)
		out.Questions[i] = question
	}
	return out
}

// Player is a session-scoped participant.
type Player struct {
	ID   int    `json:"playerId"`
	Name string `json:"name"`
}

// Submission is a player's answer to the open question.
type Submission struct {
	AnswerIDs   []int
	SubmittedAt time.Time
}

// QuestionResult is the scored outcome of one closed question.
type QuestionResult struct {
	QuestionID         int      `json:"questionId"`
	PlayersCorrectList []string `json:"playersCorrectList"`
	AverageAnswerTime  int      `json:"averageAnswerTime"`
	PercentCorrect     int      `json:"percentCorrect"`
}

// Message is a chat entry.
type Message struct {
	Body       string `json:"messageBody"`
	PlayerID   int    `json:"playerId"`
	PlayerName string `json:"playerName"`
	TimeSent   int64  `json:"timeSent"`
}

// SessionStatus is the administrator view of a session.
type SessionStatus struct {
	SessionID  int      `json:"sessionId"`
	QuizID     string   `json:"quizId"`
	State      State    `json:"state"`
	AtQuestion int      `json:"atQuestion"`
	Players    []string `json:"players"`
	Metadata   Quiz     `json:"metadata"`
}

// PlayerStatus is the player view of a session.
type PlayerStatus struct {
	State        State `json:"state"`
	NumQuestions int   `json:"numQuestions"`
	AtQuestion   int   `json:"atQuestion"`
}

// QuestionInfo is the active question as shown to players, without correct flags.
type QuestionInfo struct {
	QuestionID int          `json:"questionId"`
	Question   string       `json:"question"`
	Duration   int          `json:"duration"`
	Thumbnail  string       `json:"thumbnailUrl,omitempty"`
	Points     int          `json:"points"`
	Answers    []AnswerInfo `json:"answers"`
}

// AnswerInfo is an answer without its correct flag.
type AnswerInfo struct {
	ID     int    `json:"answerId"`
	Text   string `json:"answer"`
	Colour string `json:"colour,omitempty"`
}

// SessionList partitions a quiz's sessions by liveness.
type SessionList struct {
	ActiveSessions   []int `json:"activeSessions"`
	InactiveSessions []int `json:"inactiveSessions"`
}

// RankedPlayer is one leaderboard row.
type RankedPlayer struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// SessionResults is the final results payload.
type SessionResults struct {
	UsersRankedByScore []RankedPlayer   `json:"usersRankedByScore"`
	QuestionResults    []QuestionResult `json:"questionResults"`
}
