package domain

import "fmt"

// MediaURLs returns the distinct media references of a quiz in question order:
// each question's audio first, then its answer images.
func MediaURLs(q Quiz) []string {
	seen := make(map[string]struct{})
	var urls []string
	add := func(u string) {
		if u == "" {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}
	for _, question := range q.Questions {
		add(question.AudioURL)
		for _, answer := range question.Answers {
			add(answer.ImageURL)
		}
	}
	return urls
}

// Validate checks the structural invariants a quiz must hold before it can be
// taken or packaged.
func (q Quiz) Validate() error {
	if q.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidQuiz)
	}
	for i, question := range q.Questions {
		if question.ID == "" {
			return fmt.Errorf("%w: question %d has no id", ErrInvalidQuiz, i)
		}
		if question.CorrectIdx < 0 || question.CorrectIdx >= len(question.Answers) {
			return fmt.Errorf("%w: question %s correctIdx %d out of range", ErrInvalidQuiz, question.ID, question.CorrectIdx)
		}
	}
	if q.PassPercentage < 0 || q.PassPercentage > 100 {
		return fmt.Errorf("%w: passPercentage %v", ErrInvalidQuiz, q.PassPercentage)
	}
	if q.MaxTime != nil && q.MaxTime.TotalSeconds() <= 0 {
		return fmt.Errorf("%w: maxTime must be positive", ErrInvalidQuiz)
	}
	return nil
}
