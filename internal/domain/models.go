package domain

// Answer is one option of a multiple-choice question. Either Title or ImageURL
// should be set; that is left to the author.
type Answer struct {
	Title    string `json:"title"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// Question models an MCQ question. CorrectIdx indexes the original, unshuffled
// Answers slice.
type Question struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	AudioURL   string   `json:"audioUrl,omitempty"`
	Answers    []Answer `json:"answers"`
	CorrectIdx int      `json:"correctIdx"`
}

// MaxTime is the time limit of a timed quiz.
type MaxTime struct {
	Minutes int `json:"minutes"`
	Seconds int `json:"seconds"`
}

// TotalSeconds converts the limit to seconds.
func (m MaxTime) TotalSeconds() int {
	return m.Minutes*60 + m.Seconds
}

// Quiz is a collection of questions plus the pass policy.
type Quiz struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	BackgroundColor string     `json:"backgroundColor"`
	CreatedBy       string     `json:"createdBy"`
	CreatedAt       int64      `json:"createdAt"`
	UpdatedAt       int64      `json:"updatedAt"`
	MaxTime         *MaxTime   `json:"maxTime"` // nil means untimed
	Questions       []Question `json:"questions"`
	MinSampleRate   float64    `json:"minSampleRate"` // answered questions per minute
	PassPercentage  float64    `json:"passPercentage"`
}

// Timed reports whether the quiz has a time limit.
func (q Quiz) Timed() bool {
	return q.MaxTime != nil
}

// Clone returns a deep copy so callers can rewrite questions without touching
// the source definition.
func (q Quiz) Clone() Quiz {
	out := q
	if q.MaxTime != nil {
		mt := *q.MaxTime
		out.MaxTime = &mt
	}
	out.Questions = make([]Question, len(q.Questions))
	for i, question := range q.Questions {
		question.Answers = append([]Answer(nil), question.Answers...)
		out.Questions[i] = question
	}
	return out
}

// UserData identifies the quiz taker.
type UserData struct {
	Name   string `json:"name"`
	RollNo string `json:"rollNo"`
}

// Complete reports whether both identity fields are filled in.
func (u UserData) Complete() bool {
	return u.Name != "" && u.RollNo != ""
}

// SubmissionAnswer is what the client sends for one question. SelectedIdx is
// nil when the question was not answered.
type SubmissionAnswer struct {
	QueID       string `json:"queId"`
	SelectedIdx *int   `json:"selectedIdx"`
}

// Submission is sent once per attempt. Answers are positional: Answers[i]
// belongs to quiz.Questions[i].
type Submission struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	RollNo      string             `json:"rollNo"`
	QuizID      string             `json:"quizId"`
	SubmittedAt int64              `json:"submittedAt"`
	Answers     []SubmissionAnswer `json:"answers"`
	TimeTaken   float64            `json:"timeTaken"` // seconds
}

// ResultAnswer is the graded form of a SubmissionAnswer.
type ResultAnswer struct {
	QueID       string `json:"queId"`
	SelectedIdx *int   `json:"selectedIdx"`
	Correct     bool   `json:"correct"`
	MarkGiven   int    `json:"markGiven"`
}

// SubmissionResult is the persisted, terminal outcome of one submission.
type SubmissionResult struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	RollNo      string         `json:"rollNo"`
	QuizID      string         `json:"quizId"`
	SubmittedAt int64          `json:"submittedAt"`
	TimeTaken   float64        `json:"timeTaken"`
	Answered    int            `json:"answered"`
	Correct     int            `json:"correct"`
	Percentage  int            `json:"percentage"`
	SampleRate  float64        `json:"sampleRate"`
	Passed      bool           `json:"passed"`
	Answers     []ResultAnswer `json:"answers"`
}

// IntPtr is a small helper for building optional selections.
func IntPtr(v int) *int {
	return &v
}
