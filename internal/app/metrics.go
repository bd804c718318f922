package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizlive_session_transitions_total",
			Help: "Session state transitions by source state, destination state and trigger.",
		},
		[]string{"from", "to", "trigger"},
	)

	sessionsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quizlive_sessions_started_total",
			Help: "Sessions created by StartSession.",
		},
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quizlive_active_sessions",
			Help: "Sessions not yet in END state.",
		},
	)

	rejectedOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizlive_rejected_operations_total",
			Help: "Operations rejected by the session core, by error code.",
		},
		[]string{"code"},
	)

	questionsScored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quizlive_questions_scored_total",
			Help: "Questions closed and scored.",
		},
	)

	answersSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quizlive_answers_submitted_total",
			Help: "Accepted player answer submissions, including overwrites.",
		},
	)

	playersJoined = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quizlive_players_joined_total",
			Help: "Players admitted to sessions.",
		},
	)
)
