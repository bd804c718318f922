package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-live-service/internal/domain"
	"quiz-live-service/internal/infra/memory"
)

// SessionStore keeps live sessions in process and mirrors their status to
// Redis so dashboards and other instances can read session liveness:
//
//	HSET quiz:session:{id} quizId state atQuestion players   (EX ttl)
//	SADD quiz:{quizID}:sessions:active {id}   removed on END
//	SADD quiz:{quizID}:sessions:inactive {id} added on END
//
// Session timers and locks stay in this process; Redis is a read model.
type SessionStore struct {
	*memory.SessionStore
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		SessionStore: memory.NewSessionStore(),
		client:       client,
		ttl:          ttl,
	}
}

// RecordState implements app.StateRecorder.
func (s *SessionStore) RecordState(ctx context.Context, status domain.SessionStatus) error {
	id := strconv.Itoa(status.SessionID)
	key := s.key(status.SessionID)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"quizId", status.QuizID,
		"state", string(status.State),
		"atQuestion", status.AtQuestion,
		"players", len(status.Players),
	)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if status.State == domain.StateEnd {
		pipe.SRem(ctx, activeKey(status.QuizID), id)
		pipe.SAdd(ctx, inactiveKey(status.QuizID), id)
	} else {
		pipe.SAdd(ctx, activeKey(status.QuizID), id)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// ActiveSessionIDs reads the mirrored active set for a quiz.
func (s *SessionStore) ActiveSessionIDs(ctx context.Context, quizID string) ([]int, error) {
	members, err := s.client.SMembers(ctx, activeKey(quizID)).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(members))
	for _, m := range members {
		id, err := strconv.Atoi(m)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *SessionStore) key(sessionID int) string {
	return "quiz:session:" + strconv.Itoa(sessionID)
}

func activeKey(quizID string) string {
	return "quiz:" + quizID + ":sessions:active"
}

func inactiveKey(quizID string) string {
	return "quiz:" + quizID + ":sessions:inactive"
}
