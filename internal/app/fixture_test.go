package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quiz-live-service/internal/app"
	"quiz-live-service/internal/domain"
	"quiz-live-service/internal/infra/memory"
	"quiz-live-service/internal/scoring"
	"quiz-live-service/internal/timer"
)

const quizID = "quiz-1"

type fixture struct {
	t       *testing.T
	ctx     context.Context
	fake    *timer.Fake
	loader  *memory.StaticQuizLoader
	quizzes *memory.QuizRepository
	service *app.SessionService
	players *app.PlayerGateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fake := timer.NewFake(time.Unix(1_700_000_000, 0))
	loader := memory.NewStaticQuizLoader(map[string]domain.Quiz{
		quizID:    sampleQuiz(),
		"quiz-2":  otherQuiz(),
		"empty":   {ID: "empty", Name: "Nothing yet"},
		"trashed": trashedQuiz(),
	})
	quizzes := memory.NewQuizRepository(loader, time.Minute)
	service := app.NewSessionService(memory.NewSessionStore(), quizzes, app.Options{
		ScorePrecision: scoring.DefaultPrecision,
		Scheduler:      fake,
		Now:            fake.Now,
	})
	return &fixture{
		t:       t,
		ctx:     context.Background(),
		fake:    fake,
		loader:  loader,
		quizzes: quizzes,
		service: service,
		players: app.NewPlayerGateway(service),
	}
}

// sampleQuiz has two questions: q1 (10 points, 10s, answer 1 correct) and
// q2 (4 points, 5s, answers 5 and 6 correct).
func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:      quizID,
		OwnerID: "owner-1",
		Name:    "General knowledge",
		Questions: []domain.Question{
			{
				ID: 11, Prompt: "Largest planet?", Duration: 10, Points: 10,
				Answers: []domain.Answer{
					{ID: 1, Text: "Jupiter", Correct: true},
					{ID: 2, Text: "Mars"},
					{ID: 3, Text: "Venus"},
				},
			},
			{
				ID: 12, Prompt: "Pick the even numbers", Duration: 5, Points: 4,
				Answers: []domain.Answer{
					{ID: 4, Text: "3"},
					{ID: 5, Text: "4", Correct: true},
					{ID: 6, Text: "8", Correct: true},
				},
			},
		},
	}
}

func otherQuiz() domain.Quiz {
	q := sampleQuiz()
	q.ID = "quiz-2"
	return q
}

func trashedQuiz() domain.Quiz {
	q := sampleQuiz()
	q.ID = "trashed"
	q.Trashed = true
	return q
}

func (f *fixture) start(autoStart int) int {
	f.t.Helper()
	id, err := f.service.StartSession(f.ctx, quizID, autoStart)
	require.NoError(f.t, err)
	return id
}

func (f *fixture) act(sessionID int, action domain.Action) {
	f.t.Helper()
	require.NoError(f.t, f.service.UpdateSession(f.ctx, quizID, sessionID, string(action)))
}

func (f *fixture) join(sessionID int, name string) int {
	f.t.Helper()
	id, err := f.players.Join(f.ctx, sessionID, name)
	require.NoError(f.t, err)
	return id
}

func (f *fixture) state(sessionID int) domain.State {
	f.t.Helper()
	status, err := f.service.GetSessionStatus(f.ctx, quizID, sessionID)
	require.NoError(f.t, err)
	return status.State
}

// driveTo moves a fresh session into target using manual actions and timers.
func (f *fixture) driveTo(sessionID int, target domain.State) {
	f.t.Helper()
	steps := map[domain.State]func(){
		domain.StateLobby: func() {},
		domain.StateQuestionCountdown: func() {
			f.act(sessionID, domain.ActionNextQuestion)
		},
		domain.StateQuestionOpen: func() {
			f.act(sessionID, domain.ActionNextQuestion)
			f.act(sessionID, domain.ActionSkipCountdown)
		},
		domain.StateQuestionClose: func() {
			f.act(sessionID, domain.ActionNextQuestion)
			f.act(sessionID, domain.ActionSkipCountdown)
			f.fake.Advance(10 * time.Second)
		},
		domain.StateAnswerShow: func() {
			f.act(sessionID, domain.ActionNextQuestion)
			f.act(sessionID, domain.ActionSkipCountdown)
			f.act(sessionID, domain.ActionGoToAnswer)
		},
		domain.StateFinalResults: func() {
			f.act(sessionID, domain.ActionNextQuestion)
			f.act(sessionID, domain.ActionSkipCountdown)
			f.act(sessionID, domain.ActionGoToAnswer)
			f.act(sessionID, domain.ActionGoToFinalResults)
		},
		domain.StateEnd: func() {
			f.act(sessionID, domain.ActionEnd)
		},
	}
	steps[target]()
	require.Equal(f.t, target, f.state(sessionID))
}
