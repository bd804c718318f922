// Package sqlite serves quizzes from a local SQLite catalogue, for development
// and single-node deployments without Postgres.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"quiz-live-service/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS quizzes (
    id      TEXT PRIMARY KEY,
    data    TEXT NOT NULL,
    trashed INTEGER NOT NULL DEFAULT 0
)`

// QuizLoader reads quiz JSON documents from SQLite.
type QuizLoader struct {
	db *sql.DB
}

// Open opens (creating if needed) the catalogue at path.
func Open(ctx context.Context, path string) (*QuizLoader, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" catalogues coherent.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &QuizLoader{db: db}, nil
}

func (l *QuizLoader) Close() error {
	return l.db.Close()
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var (
		raw     string
		trashed bool
	)
	err := l.db.QueryRowContext(ctx, `SELECT data, trashed FROM quizzes WHERE id = ?`, quizID).Scan(&raw, &trashed)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound.ForQuiz(quizID)
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	var quiz domain.Quiz
	if err := json.Unmarshal([]byte(raw), &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	quiz.ID = quizID
	quiz.Trashed = trashed
	return quiz, nil
}

// Save upserts a quiz document.
func (l *QuizLoader) Save(ctx context.Context, quiz domain.Quiz) error {
	data, err := json.Marshal(quiz)
	if err != nil {
		return fmt.Errorf("marshal quiz: %w", err)
	}
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO quizzes (id, data, trashed) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data, trashed = excluded.trashed`,
		quiz.ID, string(data), quiz.Trashed)
	if err != nil {
		return fmt.Errorf("save quiz: %w", err)
	}
	return nil
}
