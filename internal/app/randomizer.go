package app

import (
	"math/rand"

	"scorm-quiz-service/internal/domain"
)

// ShuffledAnswer is an answer tagged with its index in the original question.
type ShuffledAnswer struct {
	domain.Answer
	OriginalIdx int `json:"originalIdx"`
}

// ShuffledQuestion is a question whose answers have been reordered.
type ShuffledQuestion struct {
	ID       string           `json:"id"`
	Title    string           `json:"title"`
	AudioURL string           `json:"audioUrl,omitempty"`
	Answers  []ShuffledAnswer `json:"answers"`
}

// Shuffle returns a uniformly random permutation of the questions, each with
// its answers independently permuted. The input slice is not modified.
func Shuffle(questions []domain.Question, rnd *rand.Rand) []ShuffledQuestion {
	out := make([]ShuffledQuestion, len(questions))
	for i, q := range questions {
		answers := make([]ShuffledAnswer, len(q.Answers))
		for j, a := range q.Answers {
			answers[j] = ShuffledAnswer{Answer: a, OriginalIdx: j}
		}
		rnd.Shuffle(len(answers), func(a, b int) { answers[a], answers[b] = answers[b], answers[a] })
		out[i] = ShuffledQuestion{ID: q.ID, Title: q.Title, AudioURL: q.AudioURL, Answers: answers}
	}
	rnd.Shuffle(len(out), func(a, b int) { out[a], out[b] = out[b], out[a] })
	return out
}

// QuestionOrder is the persisted shape of a shuffle: question id plus the
// original answer indices in display order.
type QuestionOrder struct {
	QuestionID string `json:"questionId"`
	Answers    []int  `json:"answers"`
}

func orderOf(shuffled []ShuffledQuestion) []QuestionOrder {
	order := make([]QuestionOrder, len(shuffled))
	for i, q := range shuffled {
		idx := make([]int, len(q.Answers))
		for j, a := range q.Answers {
			idx[j] = a.OriginalIdx
		}
		order[i] = QuestionOrder{QuestionID: q.ID, Answers: idx}
	}
	return order
}

// applyOrder rebuilds a shuffle from a persisted order. It reports false when
// the order no longer matches the quiz, e.g. after the owner edited it.
func applyOrder(questions []domain.Question, order []QuestionOrder) ([]ShuffledQuestion, bool) {
	if len(order) != len(questions) {
		return nil, false
	}
	byID := make(map[string]domain.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	out := make([]ShuffledQuestion, len(order))
	seen := make(map[string]struct{}, len(order))
	for i, o := range order {
		q, ok := byID[o.QuestionID]
		if !ok || len(o.Answers) != len(q.Answers) {
			return nil, false
		}
		if _, dup := seen[o.QuestionID]; dup {
			return nil, false
		}
		seen[o.QuestionID] = struct{}{}
		answers := make([]ShuffledAnswer, len(o.Answers))
		used := make([]bool, len(q.Answers))
		for j, idx := range o.Answers {
			if idx < 0 || idx >= len(q.Answers) || used[idx] {
				return nil, false
			}
			used[idx] = true
			answers[j] = ShuffledAnswer{Answer: q.Answers[idx], OriginalIdx: idx}
		}
		out[i] = ShuffledQuestion{ID: q.ID, Title: q.Title, AudioURL: q.AudioURL, Answers: answers}
	}
	return out, true
}
