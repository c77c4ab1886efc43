package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"scorm-quiz-service/internal/app"
	"scorm-quiz-service/internal/domain"
)

func newQuizService(f *fixture) *app.QuizService {
	n := 0
	clock := time.UnixMilli(1_700_000_000_000)
	return app.NewQuizServiceWithClock(f.store, f.quizzes, zap.NewNop(), func() string {
		n++
		return "id-" + string(rune('0'+n))
	}, func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})
}

func TestCreateUsesDefaults(t *testing.T) {
	f := newFixture(t)
	service := newQuizService(f)

	quiz, err := service.Create(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if quiz.Title != "New quiz" || quiz.BackgroundColor != "#fff" || quiz.MaxTime != nil {
		t.Fatalf("unexpected defaults: %+v", quiz)
	}
	if quiz.MinSampleRate != 3 || quiz.PassPercentage != 80 {
		t.Fatalf("unexpected pass policy: %v %v", quiz.MinSampleRate, quiz.PassPercentage)
	}
	if len(quiz.Questions) != 1 || len(quiz.Questions[0].Answers) != 4 || quiz.Questions[0].CorrectIdx != 1 {
		t.Fatalf("expected one default question, got %+v", quiz.Questions)
	}
	if _, err := f.store.LoadQuiz(context.Background(), quiz.ID); err != nil {
		t.Fatalf("expected quiz stored: %v", err)
	}
}

func TestSaveRequiresOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	service := newQuizService(f)
	quiz, _ := service.Create(ctx, "owner-1")

	quiz.Title = "Hijacked"
	if _, err := service.Save(ctx, "owner-2", quiz); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := service.Delete(ctx, "owner-2", quiz.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden on delete, got %v", err)
	}
}

func TestSaveInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	service := newQuizService(f)
	quiz, _ := service.Create(ctx, "owner-1")

	if _, err := service.Get(ctx, quiz.ID); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	quiz.Title = "Renamed"
	saved, err := service.Save(ctx, "owner-1", quiz)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.UpdatedAt <= quiz.CreatedAt {
		t.Fatalf("expected updatedAt to move forward")
	}
	got, _ := service.Get(ctx, quiz.ID)
	if got.Title != "Renamed" {
		t.Fatalf("expected cache to be invalidated, got %q", got.Title)
	}
}

func TestSaveValidates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	service := newQuizService(f)
	quiz, _ := service.Create(ctx, "owner-1")

	quiz.Questions[0].CorrectIdx = 9
	if _, err := service.Save(ctx, "owner-1", quiz); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDuplicateAndList(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	service := newQuizService(f)
	quiz, _ := service.Create(ctx, "owner-1")

	dup, err := service.Duplicate(ctx, "owner-1", quiz.ID)
	if err != nil {
		t.Fatalf("duplicate: %v", err)
	}
	if dup.ID == quiz.ID || dup.Title != "Duplicate New quiz" || dup.CreatedBy != "owner-1" {
		t.Fatalf("unexpected duplicate: %+v", dup)
	}

	list, err := service.List(ctx, "owner-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != dup.ID {
		t.Fatalf("expected duplicate first, got %+v", list)
	}

	if err := service.Delete(ctx, "owner-1", quiz.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := service.Get(ctx, quiz.ID); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected deleted quiz to be gone, got %v", err)
	}
}
