package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"quiz-live-service/internal/app"
)

// API serves the administrator and player REST surface.
type API struct {
	sessions *app.SessionService
	players  *app.PlayerGateway
}

func NewAPI(sessions *app.SessionService, players *app.PlayerGateway) *API {
	return &API{sessions: sessions, players: players}
}

// NewRouter wires the REST API, the player websocket, health and metrics.
func NewRouter(api *API, ws *WSHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(metrics)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/quizzes/{quizId}", func(r chi.Router) {
		r.Get("/deletable", api.ensureDeletable)
		r.Post("/invalidate", api.quizChanged)
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", api.startSession)
			r.Get("/", api.listSessions)
			r.Route("/{sessionId}", func(r chi.Router) {
				r.Put("/", api.updateSession)
				r.Get("/status", api.sessionStatus)
				r.Get("/results", api.sessionResults)
				r.Get("/results/csv", api.sessionResultsCSV)
			})
		})
	})

	r.Post("/players/join", api.join)
	r.Route("/players/{playerId}", func(r chi.Router) {
		r.Get("/status", api.playerStatus)
		r.Get("/results", api.playerResults)
		r.Get("/chat", api.chatView)
		r.Post("/chat", api.chatSend)
		r.Route("/questions/{position}", func(r chi.Router) {
			r.Get("/", api.questionInfo)
			r.Put("/answer", api.answer)
			r.Get("/result", api.questionResult)
		})
	})

	if ws != nil {
		r.Get("/ws", ws.ServeWS)
	}
	return r
}

type startSessionRequest struct {
	AutoStartNum int `json:"autoStartNum"`
}

type updateSessionRequest struct {
	Action string `json:"action"`
}

type joinRequest struct {
	SessionID int    `json:"sessionId"`
	Name      string `json:"name"`
}

type answerRequest struct {
	AnswerIDs []int `json:"answerIds"`
}

type chatRequest struct {
	MessageBody string `json:"messageBody"`
}

func (a *API) startSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, r, "invalid JSON body")
		return
	}
	id, err := a.sessions.StartSession(r.Context(), chi.URLParam(r, "quizId"), req.AutoStartNum)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"sessionId": id})
}

func (a *API) listSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.sessions.ListSessions(r.Context(), chi.URLParam(r, "quizId")))
}

func (a *API) ensureDeletable(w http.ResponseWriter, r *http.Request) {
	if err := a.sessions.EnsureQuizDeletable(r.Context(), chi.URLParam(r, "quizId")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) quizChanged(w http.ResponseWriter, r *http.Request) {
	if err := a.sessions.QuizChanged(r.Context(), chi.URLParam(r, "quizId")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) updateSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := intParam(w, r, "sessionId")
	if !ok {
		return
	}
	var req updateSessionRequest
	if !decode(w, r, &req) {
		return
	}
	if err := a.sessions.UpdateSession(r.Context(), chi.URLParam(r, "quizId"), sessionID, req.Action); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (a *API) sessionStatus(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := intParam(w, r, "sessionId")
	if !ok {
		return
	}
	status, err := a.sessions.GetSessionStatus(r.Context(), chi.URLParam(r, "quizId"), sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *API) sessionResults(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := intParam(w, r, "sessionId")
	if !ok {
		return
	}
	results, err := a.sessions.GetSessionResults(r.Context(), chi.URLParam(r, "quizId"), sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (a *API) sessionResultsCSV(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := intParam(w, r, "sessionId")
	if !ok {
		return
	}
	out, err := a.sessions.SessionResultsCSV(r.Context(), chi.URLParam(r, "quizId"), sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="session-`+strconv.Itoa(sessionID)+`.csv"`)
	_, _ = w.Write(out)
}

func (a *API) join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := a.players.Join(r.Context(), req.SessionID, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"playerId": id})
}

func (a *API) playerStatus(w http.ResponseWriter, r *http.Request) {
	playerID, ok := intParam(w, r, "playerId")
	if !ok {
		return
	}
	status, err := a.players.Status(r.Context(), playerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *API) playerResults(w http.ResponseWriter, r *http.Request) {
	playerID, ok := intParam(w, r, "playerId")
	if !ok {
		return
	}
	results, err := a.players.Results(r.Context(), playerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (a *API) questionInfo(w http.ResponseWriter, r *http.Request) {
	playerID, position, ok := playerPosition(w, r)
	if !ok {
		return
	}
	info, err := a.players.QuestionInfo(r.Context(), playerID, position)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (a *API) answer(w http.ResponseWriter, r *http.Request) {
	playerID, position, ok := playerPosition(w, r)
	if !ok {
		return
	}
	var req answerRequest
	if !decode(w, r, &req) {
		return
	}
	if err := a.players.Answer(r.Context(), playerID, position, req.AnswerIDs); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (a *API) questionResult(w http.ResponseWriter, r *http.Request) {
	playerID, position, ok := playerPosition(w, r)
	if !ok {
		return
	}
	result, err := a.players.QuestionResult(r.Context(), playerID, position)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) chatView(w http.ResponseWriter, r *http.Request) {
	playerID, ok := intParam(w, r, "playerId")
	if !ok {
		return
	}
	messages, err := a.players.ChatView(r.Context(), playerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (a *API) chatSend(w http.ResponseWriter, r *http.Request) {
	playerID, ok := intParam(w, r, "playerId")
	if !ok {
		return
	}
	var req chatRequest
	if !decode(w, r, &req) {
		return
	}
	if err := a.players.ChatSend(r.Context(), playerID, req.MessageBody); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeBadRequest(w, r, "invalid JSON body")
		return false
	}
	return true
}

func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		writeBadRequest(w, r, name+" must be an integer")
		return 0, false
	}
	return n, true
}

func playerPosition(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	playerID, ok := intParam(w, r, "playerId")
	if !ok {
		return 0, 0, false
	}
	position, ok := intParam(w, r, "position")
	if !ok {
		return 0, 0, false
	}
	return playerID, position, true
}
