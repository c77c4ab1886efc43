package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"scorm-quiz-service/internal/domain"
	"scorm-quiz-service/internal/metrics"
)

// ScoringService grades submissions and persists their results.
type ScoringService struct {
	quizzes QuizRepository
	docs    DocumentStore
	log     *zap.Logger
	newID   func() string
	now     func() time.Time
}

func NewScoringService(quizzes QuizRepository, docs DocumentStore, log *zap.Logger) *ScoringService {
	return &ScoringService{
		quizzes: quizzes,
		docs:    docs,
		log:     log,
		newID:   uuid.NewString,
		now:     time.Now,
	}
}

// WithIDs replaces the id generator and clock; used by tests.
func (s *ScoringService) WithIDs(newID func() string, now func() time.Time) *ScoringService {
	s.newID = newID
	s.now = now
	return s
}

// SubmitJSON parses a raw submission body posted for routeQuizID and grades it.
// An empty quizId in the body is filled from the route.
func (s *ScoringService) SubmitJSON(ctx context.Context, routeQuizID string, body []byte) (domain.SubmissionResult, error) {
	var submission domain.Submission
	if err := json.Unmarshal(body, &submission); err != nil {
		return domain.SubmissionResult{}, fmt.Errorf("%w: %v", domain.ErrMalformedSubmission, err)
	}
	if submission.QuizID == "" {
		submission.QuizID = routeQuizID
	}
	if routeQuizID != "" && submission.QuizID != routeQuizID {
		return domain.SubmissionResult{}, domain.ErrQuizMismatch
	}
	return s.Grade(ctx, submission)
}

// Grade scores a submission and persists the result before returning it.
// A submission carrying a UUID is stored under that id, and grading it again
// returns the stored result. Other submissions get a fresh id. Nothing is
// persisted when grading fails.
func (s *ScoringService) Grade(ctx context.Context, submission domain.Submission) (domain.SubmissionResult, error) {
	if submission.QuizID == "" {
		return domain.SubmissionResult{}, domain.ErrMissingQuizID
	}
	quiz, err := s.quizzes.GetQuiz(ctx, submission.QuizID)
	if err != nil {
		return domain.SubmissionResult{}, err
	}

	id := s.newID()
	if _, err := uuid.Parse(submission.ID); err == nil {
		id = submission.ID
		prev, ok, err := s.graded(ctx, id, submission.QuizID)
		if err != nil {
			return domain.SubmissionResult{}, err
		}
		if ok {
			s.log.Info("submission already graded", zap.String("quizId", prev.QuizID), zap.String("resultId", id))
			return prev, nil
		}
	}

	s.checkPositions(quiz, submission)

	result := Score(quiz, submission)
	result.ID = id
	result.SubmittedAt = s.now().UnixMilli()

	raw, err := json.Marshal(result)
	if err != nil {
		return domain.SubmissionResult{}, fmt.Errorf("marshal result: %w", err)
	}
	if err := s.docs.Set(ctx, submissionPath(result.ID), raw); err != nil {
		return domain.SubmissionResult{}, fmt.Errorf("persist result: %w", err)
	}

	outcome := "failed"
	if result.Passed {
		outcome = "passed"
	}
	metrics.Submissions.WithLabelValues(outcome).Inc()
	s.log.Info("submission graded",
		zap.String("quizId", result.QuizID),
		zap.String("resultId", result.ID),
		zap.Int("answered", result.Answered),
		zap.Int("correct", result.Correct),
		zap.Float64("sampleRate", result.SampleRate),
		zap.Bool("passed", result.Passed),
	)
	return result, nil
}

// graded returns the result already stored under id for quizID.
func (s *ScoringService) graded(ctx context.Context, id, quizID string) (domain.SubmissionResult, bool, error) {
	raw, err := s.docs.Get(ctx, submissionPath(id))
	if errors.Is(err, domain.ErrNotFound) {
		return domain.SubmissionResult{}, false, nil
	}
	if err != nil {
		return domain.SubmissionResult{}, false, fmt.Errorf("load result: %w", err)
	}
	var prev domain.SubmissionResult
	if err := json.Unmarshal(raw, &prev); err != nil || prev.QuizID != quizID {
		return domain.SubmissionResult{}, false, fmt.Errorf("%w: submission id %s is taken", domain.ErrValidation, id)
	}
	return prev, true, nil
}

// checkPositions logs answers whose queId disagrees with the question at the
// same position. Grading stays positional either way.
func (s *ScoringService) checkPositions(quiz domain.Quiz, submission domain.Submission) {
	if len(submission.Answers) != len(quiz.Questions) {
		s.log.Warn("submission answer count differs from question count",
			zap.String("quizId", quiz.ID),
			zap.Int("questions", len(quiz.Questions)),
			zap.Int("answers", len(submission.Answers)),
		)
	}
	for i, answer := range submission.Answers {
		if i >= len(quiz.Questions) {
			break
		}
		if answer.QueID != "" && answer.QueID != quiz.Questions[i].ID {
			s.log.Warn("submission answer out of position",
				zap.String("quizId", quiz.ID),
				zap.Int("position", i),
				zap.String("expected", quiz.Questions[i].ID),
				zap.String("got", answer.QueID),
			)
		}
	}
}

// ListSubmissions returns every graded result of a quiz, oldest first.
func (s *ScoringService) ListSubmissions(ctx context.Context, quizID string) ([]domain.SubmissionResult, error) {
	if quizID == "" {
		return nil, domain.ErrMissingQuizID
	}
	docs, err := s.docs.Query(ctx, "submissions", "quizId", quizID)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	out := make([]domain.SubmissionResult, 0, len(docs))
	for id, raw := range docs {
		var result domain.SubmissionResult
		if err := json.Unmarshal(raw, &result); err != nil {
			s.log.Warn("skipping unreadable submission", zap.String("id", id), zap.Error(err))
			continue
		}
		out = append(out, result)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt != out[j].SubmittedAt {
			return out[i].SubmittedAt < out[j].SubmittedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ResultsService stores arbitrary result blobs reported by offline players
// under results/{quizId}/{id}.
type ResultsService struct {
	docs DocumentStore
}

func NewResultsService(docs DocumentStore) *ResultsService {
	return &ResultsService{docs: docs}
}

// Store saves body under the quiz id and the blob's own "id" field.
func (s *ResultsService) Store(ctx context.Context, quizID string, body []byte) (string, error) {
	if quizID == "" {
		return "", domain.ErrMissingQuizID
	}
	var blob map[string]json.RawMessage
	if err := json.Unmarshal(body, &blob); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrMalformedSubmission, err)
	}
	var id string
	if raw, ok := blob["id"]; ok {
		if err := json.Unmarshal(raw, &id); err != nil {
			return "", domain.ErrMissingResultID
		}
	}
	if id == "" {
		return "", domain.ErrMissingResultID
	}
	if err := s.docs.Set(ctx, resultsPath(quizID)+"/"+id, body); err != nil {
		return "", fmt.Errorf("persist result: %w", err)
	}
	return id, nil
}

// List returns every stored blob of a quiz keyed by id.
func (s *ResultsService) List(ctx context.Context, quizID string) (map[string]json.RawMessage, error) {
	if quizID == "" {
		return nil, domain.ErrMissingQuizID
	}
	out, err := s.docs.Children(ctx, resultsPath(quizID))
	if errors.Is(err, domain.ErrNotFound) {
		return map[string]json.RawMessage{}, nil
	}
	return out, err
}
