package app_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-live-service/internal/domain"
)

func TestStartSessionValidation(t *testing.T) {
	tests := []struct {
		name      string
		quizID    string
		autoStart int
		want      *domain.Error
	}{
		{name: "auto start above limit", quizID: quizID, autoStart: 51, want: domain.ErrInvalidAutoStartNum},
		{name: "negative auto start", quizID: quizID, autoStart: -1, want: domain.ErrInvalidAutoStartNum},
		{name: "unknown quiz", quizID: "missing", want: domain.ErrQuizNotFound},
		{name: "no questions", quizID: "empty", want: domain.ErrNoQuestions},
		{name: "trashed quiz", quizID: "trashed", want: domain.ErrQuizInTrash},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.service.StartSession(f.ctx, tt.quizID, tt.autoStart)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.want.Kind, domain.KindOf(err))
		})
	}
}

func TestStartSessionAcceptsAutoStartBoundary(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.StartSession(f.ctx, quizID, 50)
	require.NoError(t, err)
}

func TestActiveSessionLimitPerQuiz(t *testing.T) {
	f := newFixture(t)
	var ids []int
	for i := 0; i < 10; i++ {
		ids = append(ids, f.start(0))
	}

	_, err := f.service.StartSession(f.ctx, quizID, 0)
	require.ErrorIs(t, err, domain.ErrTooManySessions)

	// Other quizzes are counted separately.
	_, err = f.service.StartSession(f.ctx, "quiz-2", 0)
	require.NoError(t, err)

	f.act(ids[3], domain.ActionEnd)
	_, err = f.service.StartSession(f.ctx, quizID, 0)
	require.NoError(t, err)
}

func TestQuizChangedRefreshesCachedQuiz(t *testing.T) {
	f := newFixture(t)
	running := f.start(0)

	trashed := sampleQuiz()
	trashed.Trashed = true
	f.loader.Put(trashed)

	// Cached copy still says live until the CRUD layer reports the change.
	_, err := f.service.StartSession(f.ctx, quizID, 0)
	require.NoError(t, err)

	require.NoError(t, f.service.QuizChanged(f.ctx, quizID))
	_, err = f.service.StartSession(f.ctx, quizID, 0)
	require.ErrorIs(t, err, domain.ErrQuizInTrash)

	restored := sampleQuiz()
	restored.Questions = restored.Questions[:1]
	f.loader.Put(restored)
	require.NoError(t, f.service.QuizChanged(f.ctx, quizID))
	id := f.start(0)

	status, err := f.service.GetSessionStatus(f.ctx, quizID, id)
	require.NoError(t, err)
	assert.Len(t, status.Metadata.Questions, 1)

	// Sessions already running keep their snapshot.
	status, err = f.service.GetSessionStatus(f.ctx, quizID, running)
	require.NoError(t, err)
	assert.Len(t, status.Metadata.Questions, 2)
}

func TestSessionIDsAreUnique(t *testing.T) {
	f := newFixture(t)
	a := f.start(0)
	b := f.start(0)
	c, err := f.service.StartSession(f.ctx, "quiz-2", 0)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, b, c)
	assert.NotEqual(t, a, c)
}

func TestListSessionsPartitionsByLiveness(t *testing.T) {
	f := newFixture(t)
	a := f.start(0)
	b := f.start(0)
	c := f.start(0)
	f.act(b, domain.ActionEnd)

	list := f.service.ListSessions(f.ctx, quizID)
	assert.Equal(t, []int{a, c}, list.ActiveSessions)
	assert.Equal(t, []int{b}, list.InactiveSessions)

	empty := f.service.ListSessions(f.ctx, "quiz-2")
	assert.Empty(t, empty.ActiveSessions)
	assert.NotNil(t, empty.InactiveSessions)
}

func TestEnsureQuizDeletable(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.service.EnsureQuizDeletable(f.ctx, quizID))

	id := f.start(0)
	err := f.service.EnsureQuizDeletable(f.ctx, quizID)
	require.ErrorIs(t, err, domain.ErrQuizHasActiveSessions)

	f.act(id, domain.ActionEnd)
	require.NoError(t, f.service.EnsureQuizDeletable(f.ctx, quizID))
}

func TestAutoStartOnThreshold(t *testing.T) {
	f := newFixture(t)
	id := f.start(2)

	f.join(id, "first")
	assert.Equal(t, domain.StateLobby, f.state(id))
	f.join(id, "second")

	status, err := f.service.GetSessionStatus(f.ctx, quizID, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateQuestionCountdown, status.State)
	assert.Equal(t, 1, status.AtQuestion)
	assert.Equal(t, []string{"first", "second"}, status.Players)

	f.fake.Advance(3 * time.Second)
	assert.Equal(t, domain.StateQuestionOpen, f.state(id))
}

func TestAutoStartWithSinglePlayer(t *testing.T) {
	f := newFixture(t)
	id := f.start(1)
	f.join(id, "solo")
	assert.Equal(t, domain.StateQuestionCountdown, f.state(id))

	_, err := f.players.Join(f.ctx, id, "late")
	require.ErrorIs(t, err, domain.ErrSessionNotInLobby)
}

func TestJoinNames(t *testing.T) {
	f := newFixture(t)
	a := f.start(0)
	b := f.start(0)

	f.join(a, "Hayden")
	_, err := f.players.Join(f.ctx, a, "Hayden")
	require.ErrorIs(t, err, domain.ErrNameTaken)
	f.join(b, "Hayden")

	_, err = f.players.Join(f.ctx, 999, "ghost")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestJoinGeneratesDistinctNames(t *testing.T) {
	f := newFixture(t)
	id := f.start(0)
	for i := 0; i < 20; i++ {
		f.join(id, "")
	}

	status, err := f.service.GetSessionStatus(f.ctx, quizID, id)
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, name := range status.Players {
		require.Regexp(t, `^[a-z]{5}[0-9]{3}$`, name)
		assert.Len(t, uniqueRunes(name[:5]), 5, name)
		assert.Len(t, uniqueRunes(name[5:]), 3, name)
		assert.False(t, seen[name], "duplicate generated name %q", name)
		seen[name] = true
	}
}

func uniqueRunes(s string) map[rune]bool {
	out := map[rune]bool{}
	for _, r := range s {
		out[r] = true
	}
	return out
}

func TestScoringThroughSession(t *testing.T) {
	f := newFixture(t)
	id := f.start(0)
	a := f.join(id, "A")
	b := f.join(id, "B")
	c := f.join(id, "C")
	d := f.join(id, "D")

	f.act(id, domain.ActionNextQuestion)
	f.act(id, domain.ActionSkipCountdown)
	for _, p := range []int{a, b, c} {
		f.fake.Advance(time.Second)
		require.NoError(t, f.players.Answer(f.ctx, p, 1, []int{1}))
	}
	f.fake.Advance(time.Second)
	require.NoError(t, f.players.Answer(f.ctx, d, 1, []int{2}))
	f.act(id, domain.ActionGoToAnswer)

	res, err := f.players.QuestionResult(f.ctx, a, 1)
	require.NoError(t, err)
	assert.Equal(t, 11, res.QuestionID)
	assert.Equal(t, []string{"A", "B", "C"}, res.PlayersCorrectList)
	assert.Equal(t, 75, res.PercentCorrect)
	// Answers at 1s, 2s, 3s and 4s average 2.5s.
	assert.Equal(t, 3, res.AverageAnswerTime)

	// Second question: only D picks both correct answers.
	f.act(id, domain.ActionNextQuestion)
	f.act(id, domain.ActionSkipCountdown)
	require.NoError(t, f.players.Answer(f.ctx, a, 2, []int{5}))
	require.NoError(t, f.players.Answer(f.ctx, d, 2, []int{6, 5}))
	f.fake.Advance(5 * time.Second)
	require.Equal(t, domain.StateQuestionClose, f.state(id))
	f.act(id, domain.ActionGoToFinalResults)

	results, err := f.service.GetSessionResults(f.ctx, quizID, id)
	require.NoError(t, err)
	assert.Equal(t, []domain.RankedPlayer{
		{Name: "A", Score: 10},
		{Name: "B", Score: 5},
		{Name: "D", Score: 4},
		{Name: "C", Score: 3.3},
	}, results.UsersRankedByScore)
	require.Len(t, results.QuestionResults, 2)
	assert.Equal(t, 25, results.QuestionResults[1].PercentCorrect)

	playerView, err := f.players.Results(f.ctx, c)
	require.NoError(t, err)
	assert.Equal(t, results, playerView)
}

func TestAnswerOverwriteKeepsLatestSubmission(t *testing.T) {
	f := newFixture(t)
	id := f.start(0)
	p := f.join(id, "fickle")
	f.act(id, domain.ActionNextQuestion)
	f.act(id, domain.ActionSkipCountdown)

	require.NoError(t, f.players.Answer(f.ctx, p, 1, []int{1}))
	require.NoError(t, f.players.Answer(f.ctx, p, 1, []int{2}))
	f.act(id, domain.ActionGoToAnswer)

	res, err := f.players.QuestionResult(f.ctx, p, 1)
	require.NoError(t, err)
	assert.Empty(t, res.PlayersCorrectList)
	assert.Equal(t, 0, res.PercentCorrect)
}

func TestAnswerValidation(t *testing.T) {
	f := newFixture(t)
	id := f.start(0)
	p := f.join(id, "ada")

	require.ErrorIs(t, f.players.Answer(f.ctx, p, 1, []int{1}), domain.ErrNotOpenState)
	f.act(id, domain.ActionNextQuestion)
	f.act(id, domain.ActionSkipCountdown)

	tests := []struct {
		name     string
		player   int
		position int
		ids      []int
		want     *domain.Error
	}{
		{"unknown player", 12345, 1, []int{1}, domain.ErrInvalidPlayer},
		{"position zero", p, 0, []int{1}, domain.ErrInvalidPosition},
		{"position past end", p, 3, []int{1}, domain.ErrInvalidPosition},
		{"future question", p, 2, []int{5}, domain.ErrWrongQuestion},
		{"no answers", p, 1, nil, domain.ErrNoAnswerIDs},
		{"duplicate answers", p, 1, []int{1, 1}, domain.ErrDuplicateAnswerIDs},
		{"foreign answer", p, 1, []int{5}, domain.ErrInvalidAnswerIDs},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, f.players.Answer(f.ctx, tt.player, tt.position, tt.ids), tt.want)
		})
	}
}

func TestQuestionInfoHidesCorrectFlags(t *testing.T) {
	f := newFixture(t)
	id := f.start(0)
	p := f.join(id, "ada")

	_, err := f.players.QuestionInfo(f.ctx, p, 1)
	require.ErrorIs(t, err, domain.ErrQuestionNotActive)

	f.act(id, domain.ActionNextQuestion)
	_, err = f.players.QuestionInfo(f.ctx, p, 1)
	require.ErrorIs(t, err, domain.ErrQuestionNotActive)

	f.act(id, domain.ActionSkipCountdown)
	info, err := f.players.QuestionInfo(f.ctx, p, 1)
	require.NoError(t, err)
	assert.Equal(t, "Largest planet?", info.Question)
	assert.Equal(t, 10, info.Points)
	assert.Equal(t, []domain.AnswerInfo{
		{ID: 1, Text: "Jupiter"},
		{ID: 2, Text: "Mars"},
		{ID: 3, Text: "Venus"},
	}, info.Answers)

	_, err = f.players.QuestionInfo(f.ctx, p, 2)
	require.ErrorIs(t, err, domain.ErrWrongQuestion)
}

func TestQuestionResultOnlyInAnswerShow(t *testing.T) {
	f := newFixture(t)
	id := f.start(0)
	p := f.join(id, "ada")
	f.act(id, domain.ActionNextQuestion)
	f.act(id, domain.ActionSkipCountdown)

	_, err := f.players.QuestionResult(f.ctx, p, 1)
	require.ErrorIs(t, err, domain.ErrNotInAnswerShowState)
	f.fake.Advance(10 * time.Second)
	_, err = f.players.QuestionResult(f.ctx, p, 1)
	require.ErrorIs(t, err, domain.ErrNotInAnswerShowState)

	f.act(id, domain.ActionGoToAnswer)
	_, err = f.players.QuestionResult(f.ctx, p, 1)
	require.NoError(t, err)
	_, err = f.players.QuestionResult(f.ctx, p, 2)
	require.ErrorIs(t, err, domain.ErrWrongQuestion)
}

func TestPlayerStatus(t *testing.T) {
	f := newFixture(t)
	id := f.start(0)
	p := f.join(id, "ada")

	status, err := f.players.Status(f.ctx, p)
	require.NoError(t, err)
	assert.Equal(t, domain.PlayerStatus{State: domain.StateLobby, NumQuestions: 2}, status)

	f.act(id, domain.ActionNextQuestion)
	status, _ = f.players.Status(f.ctx, p)
	assert.Equal(t, 1, status.AtQuestion)

	_, err = f.players.Status(f.ctx, 4242)
	require.ErrorIs(t, err, domain.ErrInvalidPlayer)

	sid, err := f.players.SessionID(p)
	require.NoError(t, err)
	assert.Equal(t, id, sid)
}

func TestResultsOnlyInFinalResults(t *testing.T) {
	f := newFixture(t)
	id := f.start(0)
	_, err := f.service.GetSessionResults(f.ctx, quizID, id)
	require.ErrorIs(t, err, domain.ErrNotInFinalResultsState)
	_, err = f.service.SessionResultsCSV(f.ctx, quizID, id)
	require.ErrorIs(t, err, domain.ErrNotInFinalResultsState)

	f.driveTo(id, domain.StateFinalResults)
	status, _ := f.service.GetSessionStatus(f.ctx, quizID, id)
	assert.Equal(t, 0, status.AtQuestion)

	f.act(id, domain.ActionEnd)
	_, err = f.service.GetSessionResults(f.ctx, quizID, id)
	require.ErrorIs(t, err, domain.ErrNotInFinalResultsState)
}

func TestResultsCSV(t *testing.T) {
	f := newFixture(t)
	id := f.start(0)
	zed := f.join(id, "zed")
	amy := f.join(id, "amy")

	f.act(id, domain.ActionNextQuestion)
	f.act(id, domain.ActionSkipCountdown)
	require.NoError(t, f.players.Answer(f.ctx, zed, 1, []int{1}))
	f.fake.Advance(time.Second)
	require.NoError(t, f.players.Answer(f.ctx, amy, 1, []int{1}))
	f.act(id, domain.ActionGoToAnswer)
	f.act(id, domain.ActionGoToFinalResults)

	out, err := f.service.SessionResultsCSV(f.ctx, quizID, id)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	assert.Equal(t, []string{
		"Player,question1score,question1rank",
		"amy,5,2",
		"zed,10,1",
	}, lines)
}

func TestChat(t *testing.T) {
	f := newFixture(t)
	id := f.start(0)
	p := f.join(id, "ada")
	q := f.join(id, "bob")

	require.ErrorIs(t, f.players.ChatSend(f.ctx, p, ""), domain.ErrInvalidMessageLength)
	require.ErrorIs(t, f.players.ChatSend(f.ctx, p, strings.Repeat("x", 101)), domain.ErrInvalidMessageLength)
	require.NoError(t, f.players.ChatSend(f.ctx, p, strings.Repeat("é", 100)))
	require.NoError(t, f.players.ChatSend(f.ctx, q, "hi"))

	f.act(id, domain.ActionEnd)
	require.NoError(t, f.players.ChatSend(f.ctx, p, "gg"))

	log, err := f.players.ChatView(f.ctx, q)
	require.NoError(t, err)
	require.Len(t, log, 3)
	assert.Equal(t, "bob", log[1].PlayerName)
	assert.Equal(t, "gg", log[2].Body)
	assert.Equal(t, f.fake.Now().Unix(), log[2].TimeSent)
}

func TestSubscribeUnknownSession(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.service.Subscribe(f.ctx, 77)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestShutdownStopsTimers(t *testing.T) {
	f := newFixture(t)
	id := f.start(0)
	f.act(id, domain.ActionNextQuestion)
	require.Equal(t, 1, f.fake.Pending())

	require.NoError(t, f.service.Shutdown(f.ctx))
	assert.Equal(t, 0, f.fake.Pending())
	f.fake.Advance(time.Minute)
	assert.Equal(t, domain.StateQuestionCountdown, f.state(id))
}
