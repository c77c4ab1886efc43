package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"scorm-quiz-service/internal/domain"
	"scorm-quiz-service/internal/infra/memory"
)

func TestQuizRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)
	loader := &countingLoader{QuizLoader: memory.NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()})}
	repo := NewQuizRepository(client, loader, time.Minute, zap.NewNop())

	quiz, err := repo.GetQuiz(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.calls != 1 || quiz.Questions[0].CorrectIdx != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if !mr.Exists("quiz:quiz-1") {
		t.Fatalf("expected quiz cached in redis")
	}
	if ttl := mr.TTL("quiz:quiz-1"); ttl < time.Minute || ttl > time.Minute+6*time.Second {
		t.Fatalf("expected ttl with jitter, got %v", ttl)
	}

	// Second call should hit cache, loader not incremented.
	cached, _ := repo.GetQuiz(context.Background(), "quiz-1")
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if cached.Title != "Arithmetic" || len(cached.Questions[0].Answers) != 2 {
		t.Fatalf("cached quiz lost content: %+v", cached)
	}
}

func TestQuizRepositoryInvalidate(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{QuizLoader: memory.NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()})}
	repo := NewQuizRepository(newClient(mr), loader, time.Minute, zap.NewNop())
	ctx := context.Background()

	_, _ = repo.GetQuiz(ctx, "quiz-1")
	repo.Invalidate(ctx, "quiz-1")
	if mr.Exists("quiz:quiz-1") {
		t.Fatalf("expected cache entry removed")
	}
	_, _ = repo.GetQuiz(ctx, "quiz-1")
	if loader.calls != 2 {
		t.Fatalf("expected reload after invalidate, loader calls=%d", loader.calls)
	}
}

func TestQuizRepositoryFallsBackWhenRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	client := newClient(mr)
	mr.Close()

	loader := &countingLoader{QuizLoader: memory.NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()})}
	repo := NewQuizRepository(client, loader, time.Minute, zap.NewNop())
	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("expected loader fallback, got %v", err)
	}
}

type countingLoader struct {
	memory.QuizLoader
	calls int
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	l.calls++
	return l.QuizLoader.LoadQuiz(ctx, quizID)
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Arithmetic",
		Questions: []domain.Question{
			{
				ID:         "q1",
				Title:      "What is 2 + 2?",
				Answers:    []domain.Answer{{Title: "3"}, {Title: "4"}},
				CorrectIdx: 1,
			},
		},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
