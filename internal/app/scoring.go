package app

import (
	"math"

	"scorm-quiz-service/internal/domain"
)

// Score grades a submission against its quiz. Answers are matched by position:
// submission.Answers[i] is graded against quiz.Questions[i]; the queId carried by
// each answer is not used for matching.
func Score(quiz domain.Quiz, submission domain.Submission) domain.SubmissionResult {
	result := domain.SubmissionResult{
		ID:          submission.ID,
		Name:        submission.Name,
		RollNo:      submission.RollNo,
		QuizID:      submission.QuizID,
		SubmittedAt: submission.SubmittedAt,
		TimeTaken:   submission.TimeTaken,
		Answers:     make([]domain.ResultAnswer, 0, len(quiz.Questions)),
	}

	for i, question := range quiz.Questions {
		if i >= len(submission.Answers) {
			result.Answers = append(result.Answers, domain.ResultAnswer{
				QueID:       question.ID,
				SelectedIdx: nil,
				Correct:     false,
				MarkGiven:   0,
			})
			continue
		}

		answer := submission.Answers[i]
		graded := domain.ResultAnswer{QueID: answer.QueID, SelectedIdx: answer.SelectedIdx}
		if answer.SelectedIdx != nil {
			result.Answered++
			if *answer.SelectedIdx == question.CorrectIdx {
				graded.Correct = true
				graded.MarkGiven = 1
				result.Correct++
			}
		}
		result.Answers = append(result.Answers, graded)
	}

	result.Percentage = percentage(result.Correct, result.Answered)
	result.SampleRate = sampleRate(result.Answered, submission.TimeTaken)
	result.Passed = result.SampleRate >= quiz.MinSampleRate && float64(result.Percentage) >= quiz.PassPercentage
	return result
}

// percentage rounds to two decimals and then drops the fraction.
func percentage(correct, answered int) int {
	if answered == 0 {
		return 0
	}
	raw := float64(correct) * 100 / float64(answered)
	return int(math.Trunc(round(raw, 2)))
}

// sampleRate is answered questions per minute, rounded to four decimals.
func sampleRate(answered int, timeTakenSec float64) float64 {
	if timeTakenSec <= 0 {
		return 0
	}
	minutes := timeTakenSec / 60
	return round(float64(answered)/minutes, 4)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
