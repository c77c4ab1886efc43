package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"scorm-quiz-service/internal/domain"
)

// QuizLoader fetches a quiz definition from the document store.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizRepository caches quiz definitions in Redis as JSON (quiz:{id}) and
// falls back to the loader on a miss. Redis errors degrade to the loader.
type QuizRepository struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	log    *zap.Logger
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuizRepository(client *redis.Client, loader QuizLoader, ttl time.Duration, log *zap.Logger) *QuizRepository {
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		log:    log,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := r.cached(ctx, quizID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		// Re-check cache in case another instance filled it.
		if quiz, ok := r.cached(ctx, quizID); ok {
			return quiz, nil
		}
		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}
		raw, err := json.Marshal(quiz)
		if err == nil {
			err = r.client.Set(ctx, r.key(quizID), raw, r.ttlWithJitter()).Err()
		}
		if err != nil {
			r.log.Warn("cache quiz", zap.String("quizId", quizID), zap.Error(err))
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz).Clone(), nil
}

// Invalidate drops the cached copy of a quiz after it was edited.
func (r *QuizRepository) Invalidate(ctx context.Context, quizID string) {
	if err := r.client.Del(ctx, r.key(quizID)).Err(); err != nil {
		r.log.Warn("invalidate quiz cache", zap.String("quizId", quizID), zap.Error(err))
	}
	r.sf.Forget(quizID)
}

func (r *QuizRepository) cached(ctx context.Context, quizID string) (domain.Quiz, bool) {
	raw, err := r.client.Get(ctx, r.key(quizID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.log.Warn("read quiz cache", zap.String("quizId", quizID), zap.Error(err))
		}
		return domain.Quiz{}, false
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		r.log.Warn("corrupt quiz cache entry", zap.String("quizId", quizID), zap.Error(err))
		return domain.Quiz{}, false
	}
	return quiz, true
}

func (r *QuizRepository) key(quizID string) string {
	return "quiz:" + quizID
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
