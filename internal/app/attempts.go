package app

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"scorm-quiz-service/internal/domain"
)

// SessionRepository keeps the live attempt sessions of this process.
type SessionRepository interface {
	// GetOrCreate returns the session for key, calling create when absent.
	// The bool reports whether create was used.
	GetOrCreate(key SessionKey, create func() *Session) (*Session, bool)
	Get(key SessionKey) (*Session, bool)
	// DeleteIfIdle closes and removes the session when no client is attached.
	DeleteIfIdle(key SessionKey)
}

// AttemptService opens attempt sessions for quiz takers. It loads the quiz,
// starts the media prefetch and restores the taker's durable slots.
type AttemptService struct {
	sessions   SessionRepository
	quizzes    QuizRepository
	prefetcher *Prefetcher
	state      StateStore
	submitter  Submitter
	newTicker  TickerFunc
	log        *zap.Logger
}

func NewAttemptService(sessions SessionRepository, quizzes QuizRepository, prefetcher *Prefetcher, state StateStore, submitter Submitter, log *zap.Logger) *AttemptService {
	return &AttemptService{
		sessions:   sessions,
		quizzes:    quizzes,
		prefetcher: prefetcher,
		state:      state,
		submitter:  submitter,
		newTicker:  NewRealTicker,
		log:        log,
	}
}

// WithTicker replaces the one-second clock; used by tests.
func (a *AttemptService) WithTicker(fn TickerFunc) *AttemptService {
	a.newTicker = fn
	return a
}

// Open attaches a client to the attempt identified by key. Callers must
// Release the key when the client goes away.
func (a *AttemptService) Open(ctx context.Context, key SessionKey) (*Session, *Resources, error) {
	if key.QuizID == "" {
		return nil, nil, domain.ErrMissingQuizID
	}
	quiz, err := a.quizzes.GetQuiz(ctx, key.QuizID)
	if err != nil {
		return nil, nil, err
	}
	resources := a.prefetcher.Prefetch(ctx, quiz)

	var (
		session *Session
		created bool
	)
	for {
		session, created = a.sessions.GetOrCreate(key, func() *Session {
			return NewSession(quiz, key, SessionConfig{
				Store:     a.state,
				Submitter: a.submitter,
				Readiness: resources,
				Rand:      rand.New(rand.NewSource(time.Now().UnixNano())),
				NewTicker: a.newTicker,
				NewID:     uuid.NewString,
				Log:       a.log.With(zap.String("quizId", key.QuizID), zap.String("clientId", key.ClientID)),
			})
		})
		session.attach()
		// A concurrent Release may have closed the session before attach.
		if current, ok := a.sessions.Get(key); ok && current == session {
			break
		}
		session.detach()
	}
	if created {
		if err := session.Restore(ctx); err != nil {
			a.log.Warn("restore attempt", zap.String("quizId", key.QuizID), zap.Error(err))
		}
	}
	return session, resources, nil
}

// Release detaches a client and tears the session down when it was the last one.
func (a *AttemptService) Release(key SessionKey) {
	session, ok := a.sessions.Get(key)
	if !ok {
		return
	}
	session.detach()
	a.sessions.DeleteIfIdle(key)
}

// Resources returns the prefetched media of a quiz, starting the prefetch
// when needed.
func (a *AttemptService) Resources(ctx context.Context, quizID string) (*Resources, error) {
	quiz, err := a.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	return a.prefetcher.Prefetch(ctx, quiz), nil
}
