package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"scorm-quiz-service/internal/domain"
)

// QuizLoader fetches a quiz definition from the document store.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizRepository caches quiz definitions for a TTL so attempts and grading do
// not hit the document store on every request.
type QuizRepository struct {
	loader QuizLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedQuiz
}

type cachedQuiz struct {
	quiz      domain.Quiz
	expiresAt time.Time
}

func NewQuizRepository(loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuiz),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := r.lookup(quizID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		if quiz, ok := r.lookup(quizID); ok {
			return quiz, nil
		}
		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}
		if r.ttl > 0 {
			r.mu.Lock()
			r.cache[quizID] = cachedQuiz{quiz: quiz, expiresAt: r.clock().Add(r.ttlWithJitterLocked())}
			r.mu.Unlock()
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	// Callers may rewrite questions; hand out a copy.
	return result.(domain.Quiz).Clone(), nil
}

// Invalidate drops the cached copy of a quiz after it was edited.
func (r *QuizRepository) Invalidate(_ context.Context, quizID string) {
	r.mu.Lock()
	delete(r.cache, quizID)
	r.mu.Unlock()
	r.sf.Forget(quizID)
}

func (r *QuizRepository) lookup(quizID string) (domain.Quiz, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[quizID]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.Quiz{}, false
	}
	return entry.quiz.Clone(), true
}

// StaticQuizLoader is a loader backed by a map (tests and demos).
type StaticQuizLoader struct {
	mu      sync.RWMutex
	quizzes map[string]domain.Quiz
}

func NewStaticQuizLoader(quizzes map[string]domain.Quiz) *StaticQuizLoader {
	if quizzes == nil {
		quizzes = make(map[string]domain.Quiz)
	}
	return &StaticQuizLoader{quizzes: quizzes}
}

func (l *StaticQuizLoader) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if quiz, ok := l.quizzes[quizID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

func (l *StaticQuizLoader) Put(quiz domain.Quiz) {
	l.mu.Lock()
	l.quizzes[quiz.ID] = quiz
	l.mu.Unlock()
}

func (r *QuizRepository) ttlWithJitterLocked() time.Duration {
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
