package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"scorm-quiz-service/internal/domain"
)

// QuizStore persists quiz definitions.
type QuizStore interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	SaveQuiz(ctx context.Context, quiz domain.Quiz) error
	DeleteQuiz(ctx context.Context, quizID string) error
	ListByOwner(ctx context.Context, owner string) ([]domain.Quiz, error)
}

// QuizService contains the quiz authoring use cases. Reads go through the
// cached repository; writes go to the store and evict the cache entry.
type QuizService struct {
	store   QuizStore
	quizzes QuizRepository
	log     *zap.Logger
	newID   func() string
	now     func() time.Time
}

func NewQuizService(store QuizStore, quizzes QuizRepository, log *zap.Logger) *QuizService {
	return &QuizService{store: store, quizzes: quizzes, log: log, newID: uuid.NewString, now: time.Now}
}

// NewQuizServiceWithClock is used by tests for deterministic ids and timestamps.
func NewQuizServiceWithClock(store QuizStore, quizzes QuizRepository, log *zap.Logger, newID func() string, now func() time.Time) *QuizService {
	return &QuizService{store: store, quizzes: quizzes, log: log, newID: newID, now: now}
}

// DefaultQuestion is the placeholder question a new quiz starts with.
func DefaultQuestion(id string) domain.Question {
	return domain.Question{
		ID:         id,
		Title:      "Type the question...",
		CorrectIdx: 1,
		Answers: []domain.Answer{
			{Title: "Answer 1"},
			{Title: "Answer 2"},
			{Title: "Answer 3"},
			{Title: "Answer 4"},
		},
	}
}

// Get returns a quiz for taking or editing.
func (s *QuizService) Get(ctx context.Context, quizID string) (domain.Quiz, error) {
	return s.quizzes.GetQuiz(ctx, quizID)
}

// Create stores a new untimed quiz with one default question.
func (s *QuizService) Create(ctx context.Context, owner string) (domain.Quiz, error) {
	if owner == "" {
		return domain.Quiz{}, domain.ErrForbidden
	}
	now := s.now().UnixMilli()
	quiz := domain.Quiz{
		ID:              s.newID(),
		Title:           "New quiz",
		BackgroundColor: "#fff",
		CreatedBy:       owner,
		CreatedAt:       now,
		UpdatedAt:       now,
		Questions:       []domain.Question{DefaultQuestion(s.newID())},
		MinSampleRate:   3,
		PassPercentage:  80,
	}
	if err := s.store.SaveQuiz(ctx, quiz); err != nil {
		return domain.Quiz{}, err
	}
	s.log.Info("quiz created", zap.String("quizId", quiz.ID), zap.String("owner", owner))
	return quiz, nil
}

// Save replaces a quiz owned by owner, or creates it when the id is new.
func (s *QuizService) Save(ctx context.Context, owner string, quiz domain.Quiz) (domain.Quiz, error) {
	if owner == "" {
		return domain.Quiz{}, domain.ErrForbidden
	}
	existing, err := s.store.LoadQuiz(ctx, quiz.ID)
	switch {
	case errors.Is(err, domain.ErrQuizNotFound):
		quiz.CreatedBy = owner
		if quiz.CreatedAt == 0 {
			quiz.CreatedAt = s.now().UnixMilli()
		}
	case err != nil:
		return domain.Quiz{}, err
	case existing.CreatedBy != owner:
		return domain.Quiz{}, domain.ErrForbidden
	default:
		quiz.CreatedBy = existing.CreatedBy
		quiz.CreatedAt = existing.CreatedAt
	}
	if err := quiz.Validate(); err != nil {
		return domain.Quiz{}, err
	}
	quiz.UpdatedAt = s.now().UnixMilli()
	if err := s.store.SaveQuiz(ctx, quiz); err != nil {
		return domain.Quiz{}, err
	}
	s.quizzes.Invalidate(ctx, quiz.ID)
	return quiz, nil
}

// Duplicate copies a quiz under a new id owned by the caller.
func (s *QuizService) Duplicate(ctx context.Context, owner, quizID string) (domain.Quiz, error) {
	src, err := s.ownedQuiz(ctx, owner, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	now := s.now().UnixMilli()
	dup := src.Clone()
	dup.ID = s.newID()
	dup.Title = "Duplicate " + src.Title
	dup.CreatedAt = now
	dup.UpdatedAt = now
	if err := s.store.SaveQuiz(ctx, dup); err != nil {
		return domain.Quiz{}, err
	}
	return dup, nil
}

// Delete removes a quiz owned by the caller.
func (s *QuizService) Delete(ctx context.Context, owner, quizID string) error {
	if _, err := s.ownedQuiz(ctx, owner, quizID); err != nil {
		return err
	}
	if err := s.store.DeleteQuiz(ctx, quizID); err != nil {
		return fmt.Errorf("delete quiz: %w", err)
	}
	s.quizzes.Invalidate(ctx, quizID)
	return nil
}

// List returns the quizzes created by owner, most recently updated first.
func (s *QuizService) List(ctx context.Context, owner string) ([]domain.Quiz, error) {
	if owner == "" {
		return nil, domain.ErrForbidden
	}
	return s.store.ListByOwner(ctx, owner)
}

func (s *QuizService) ownedQuiz(ctx context.Context, owner, quizID string) (domain.Quiz, error) {
	if owner == "" {
		return domain.Quiz{}, domain.ErrForbidden
	}
	quiz, err := s.store.LoadQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if quiz.CreatedBy != owner {
		return domain.Quiz{}, domain.ErrForbidden
	}
	return quiz, nil
}
