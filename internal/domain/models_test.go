package domain

import (
	"errors"
	"testing"
)

func TestMediaURLsDistinctInOrder(t *testing.T) {
	q := Quiz{Questions: []Question{
		{ID: "q1", AudioURL: "a.mp3", Answers: []Answer{{ImageURL: "x.png"}, {Title: "t"}, {ImageURL: "x.png"}}},
		{ID: "q2", AudioURL: "a.mp3", Answers: []Answer{{ImageURL: "y.png"}}},
	}}
	got := MediaURLs(q)
	want := []string{"a.mp3", "x.png", "y.png"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestValidateRejectsCorrectIdxOutOfRange(t *testing.T) {
	q := Quiz{ID: "quiz-1", Questions: []Question{{ID: "q1", Answers: []Answer{{Title: "a"}}, CorrectIdx: 1}}}
	err := q.Validate()
	if !errors.Is(err, ErrInvalidQuiz) || !errors.Is(err, ErrValidation) {
		t.Fatalf("expected invalid quiz validation error, got %v", err)
	}
}

func TestCloneDoesNotShareAnswers(t *testing.T) {
	q := Quiz{ID: "quiz-1", MaxTime: &MaxTime{Minutes: 1}, Questions: []Question{{ID: "q1", Answers: []Answer{{Title: "a"}}}}}
	c := q.Clone()
	c.Questions[0].Answers[0].Title = "changed"
	c.MaxTime.Minutes = 5
	if q.Questions[0].Answers[0].Title != "a" || q.MaxTime.Minutes != 1 {
		t.Fatalf("clone mutated source: %+v", q)
	}
}
