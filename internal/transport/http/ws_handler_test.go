package http

import (
	"context"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"quiz-live-service/internal/app"
	"quiz-live-service/internal/domain"
	"quiz-live-service/internal/infra/memory"
	"quiz-live-service/internal/scoring"
	"quiz-live-service/internal/timer"
)

type harness struct {
	fake     *timer.Fake
	loader   *memory.StaticQuizLoader
	sessions *app.SessionService
	players  *app.PlayerGateway
	server   *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fake := timer.NewFake(time.Unix(1_700_000_000, 0))
	loader := memory.NewStaticQuizLoader(sampleQuiz())
	quizRepo := memory.NewQuizRepository(loader, time.Minute)
	sessions := app.NewSessionService(memory.NewSessionStore(), quizRepo, app.Options{
		ScorePrecision: scoring.DefaultPrecision,
		Scheduler:      fake,
		Now:            fake.Now,
	})
	players := app.NewPlayerGateway(sessions)
	server := httptest.NewServer(NewRouter(NewAPI(sessions, players), NewWSHandler(sessions, players)))
	t.Cleanup(server.Close)
	return &harness{fake: fake, loader: loader, sessions: sessions, players: players, server: server}
}

func TestWebSocketPlayerFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sessionID, err := h.sessions.StartSession(ctx, "quiz-1", 0)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}

	u := "ws" + h.server.URL[len("http"):] + "/ws?sessionId=" + strconv.Itoa(sessionID) + "&name=Alice"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_, payload := readNext(conn, t, "joined")
	if int(payload["sessionId"].(float64)) != sessionID {
		t.Fatalf("joined wrong session: %v", payload)
	}
	_, payload = readNext(conn, t, "status")
	if payload["state"] != string(domain.StateLobby) {
		t.Fatalf("expected LOBBY status, got %v", payload)
	}

	if err := h.sessions.UpdateSession(ctx, "quiz-1", sessionID, "NEXT_QUESTION"); err != nil {
		t.Fatalf("next question: %v", err)
	}
	if err := h.sessions.UpdateSession(ctx, "quiz-1", sessionID, "SKIP_COUNTDOWN"); err != nil {
		t.Fatalf("skip countdown: %v", err)
	}
	waitForState(conn, t, domain.StateQuestionOpen)

	answer := map[string]any{
		"type":    "answer",
		"payload": map[string]any{"position": 1, "answerIds": []int{2}},
	}
	if err := conn.WriteJSON(answer); err != nil {
		t.Fatalf("write answer: %v", err)
	}
	readNext(conn, t, "answerAccepted")

	if err := h.sessions.UpdateSession(ctx, "quiz-1", sessionID, "GO_TO_ANSWER"); err != nil {
		t.Fatalf("go to answer: %v", err)
	}
	waitForState(conn, t, domain.StateAnswerShow)

	if err := conn.WriteJSON(map[string]any{"type": "questionResult", "payload": map[string]any{"position": 1}}); err != nil {
		t.Fatalf("write result request: %v", err)
	}
	_, payload = readNext(conn, t, "questionResult")
	if payload["percentCorrect"].(float64) != 100 {
		t.Fatalf("expected 100%% correct, got %v", payload)
	}
}

func TestWebSocketRejectsJoinOutsideLobby(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sessionID, _ := h.sessions.StartSession(ctx, "quiz-1", 0)
	_ = h.sessions.UpdateSession(ctx, "quiz-1", sessionID, "END")

	u := "ws" + h.server.URL[len("http"):] + "/ws?sessionId=" + strconv.Itoa(sessionID)
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_, payload := readNext(conn, t, "error")
	if payload["code"] != domain.ErrSessionNotInLobby.Code {
		t.Fatalf("expected SessionNotInLobby, got %v", payload)
	}
}

func TestWebSocketUnsupportedMessage(t *testing.T) {
	h := newHarness(t)
	sessionID, _ := h.sessions.StartSession(context.Background(), "quiz-1", 0)

	u := "ws" + h.server.URL[len("http"):] + "/ws?sessionId=" + strconv.Itoa(sessionID) + "&name=Bob"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	readNext(conn, t, "joined")
	readNext(conn, t, "status")

	if err := conn.WriteJSON(map[string]any{"type": "dance"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readNext(conn, t, "error")
}

// waitForState reads status messages until state arrives.
func waitForState(conn *websocket.Conn, t *testing.T, state domain.State) {
	t.Helper()
	for i := 0; i < 10; i++ {
		_, payload := readNext(conn, t, "status")
		if payload["state"] == string(state) {
			return
		}
	}
	t.Fatalf("state %s never arrived", state)
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s (%v)", expect, msg.Type, msg.Payload)
	}
	return msg.Type, msg.Payload
}

func sampleQuiz() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:   "quiz-1",
			Name: "Arithmetic",
			Questions: []domain.Question{
				{
					ID:       1,
					Prompt:   "What is 2 + 2?",
					Duration: 10,
					Points:   5,
					Answers: []domain.Answer{
						{ID: 1, Text: "3"},
						{ID: 2, Text: "4", Correct: true},
						{ID: 3, Text: "5"},
					},
				},
			},
		},
	}
}

func TestEnqueueStopsWhenWriterExits(t *testing.T) {
	send := make(chan outboundMessage[any], wsSendBuffer)
	writerDone := make(chan struct{})

	for i := 0; i < wsSendBuffer; i++ {
		if !enqueue(send, writerDone, outboundMessage[any]{Type: "status"}) {
			t.Fatalf("enqueue %d rejected with live writer", i)
		}
	}

	close(writerDone)
	done := make(chan bool)
	go func() { done <- enqueue(send, writerDone, outboundMessage[any]{Type: "status"}) }()
	select {
	case ok := <-done:
		if ok {
			t.Fatal("enqueue accepted a message with a full buffer and no writer")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("enqueue blocked after the writer exited")
	}
}
