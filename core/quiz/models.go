package quiz

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-quiz/core"
)

type Quiz struct {
	ID               string     `json:"id"`
	CourseID         string     `json:"course_id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	TimeLimit        *int       `json:"time_limit"` // minutes
	MaxScore         float64    `json:"max_score"`
	PassingScore     *float64   `json:"passing_score"`
	MaxAttempts      int        `json:"max_attempts"`
	ShowAnswers      bool       `json:"show_answers_after_submit"`
	ShowCorrect      bool       `json:"show_correct_answers"`
	RandomizeQs      bool       `json:"randomize_questions"`
	RandomizeAnswers bool       `json:"randomize_answers"`
	SendToGradebook  bool       `json:"send_to_gradebook"`
	AvailableFrom    *time.Time `json:"available_from"`
	AvailableUntil   *time.Time `json:"available_until"`
	IsPublished      bool       `json:"is_published"`
	CreatedBy        string     `json:"created_by"`
	CreatedAt        time.Time  `json:"created_at"` // UTC
	UpdatedAt        time.Time  `json:"updated_at"` // UTC
}

// IsAvailable reports whether the quiz can be started at `now`. Window bounds are inclusive.
func (q Quiz) IsAvailable(now time.Time) bool {
	if !q.IsPublished {
		return false
	}
	if q.AvailableFrom != nil && now.Before(*q.AvailableFrom) {
		return false
	}
	if q.AvailableUntil != nil && now.After(*q.AvailableUntil) {
		return false
	}
	return true
}

// Deadline returns when an attempt started at `startedAt` times out, if the quiz has a time limit.
func (q Quiz) Deadline(startedAt time.Time) (time.Time, bool) {
	if q.TimeLimit == nil {
		return time.Time{}, false
	}
	return startedAt.Add(time.Duration(*q.TimeLimit) * time.Minute), true
}

type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type Question struct {
	ID        string   `json:"id"`
	QuizID    string   `json:"quiz_id"`
	Position  int      `json:"position"`
	Prompt    string   `json:"prompt"`
	Options   []Option `json:"options"`
	AnswerKey []string `json:"answer_key,omitempty"`
	Points    float64  `json:"points"`
}

// Answers maps a question ID to the option IDs the student picked.
type Answers map[string][]string

func (a Answers) clone() Answers {
	if a == nil {
		return Answers{}
	}
	c := make(Answers, len(a))
	for qid, opts := range a {
		c[qid] = append([]string(nil), opts...)
	}
	return c
}

// merge overwrites the answers in `a` with the ones in `other`.
func (a Answers) merge(other Answers) Answers {
	merged := a.clone()
	for qid, opts := range other {
		merged[qid] = append([]string(nil), opts...)
	}
	return merged
}

type Attempt struct {
	ID          string     `json:"id"`
	QuizID      string     `json:"quiz_id"`
	StudentID   string     `json:"student_id"`
	Ordinal     int        `json:"ordinal"`
	Status      Status     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	SubmittedAt *time.Time `json:"submitted_at"`
	Answers     Answers    `json:"answers"`
	Score       *float64   `json:"score"`
	MaxScore    *float64   `json:"max_score"`
	Passed      *bool      `json:"passed"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Mark is the gradebook entry of a student for a quiz.
type Mark struct {
	QuizID    string    `json:"quiz_id"`
	StudentID string    `json:"student_id"`
	CourseID  string    `json:"course_id"`
	BestScore float64   `json:"best_score"`
	MaxScore  float64   `json:"max_score"`
	Attempts  int       `json:"attempts"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StudentResult aggregates the graded attempts of a student on a quiz.
type StudentResult struct {
	StudentID string  `json:"student_id"`
	Attempts  int     `json:"attempts"`
	BestScore float64 `json:"best_score"`
	LastScore float64 `json:"last_score"`
	Passed    *bool   `json:"passed"`
}

// AttemptView is what a student sees of a running attempt.
type AttemptView struct {
	Attempt   Attempt    `json:"attempt"`
	Deadline  *time.Time `json:"deadline"`
	Questions []Question `json:"questions"`
}

// Result is what a student sees of a graded attempt.
type Result struct {
	AttemptID   string              `json:"attempt_id"`
	Ordinal     int                 `json:"ordinal"`
	Status      Status              `json:"status"`
	SubmittedAt *time.Time          `json:"submitted_at"`
	Score       float64             `json:"score"`
	MaxScore    float64             `json:"max_score"`
	Passed      *bool               `json:"passed"`
	Answers     Answers             `json:"answers,omitempty"`
	AnswerKeys  map[string][]string `json:"answer_keys,omitempty"`
}

// NewQuiz contains information needed to create a new Quiz.
type NewQuiz struct {
	CourseID         string     `json:"course_id" validate:"required"`
	Title            string     `json:"title" validate:"required,max=255"`
	Description      string     `json:"description"`
	TimeLimit        *int       `json:"time_limit" validate:"omitempty,min=1"`
	MaxScore         float64    `json:"max_score" validate:"required,gt=0"`
	PassingScore     *float64   `json:"passing_score" validate:"omitempty,min=0"`
	MaxAttempts      int        `json:"max_attempts" validate:"required,min=1"`
	ShowAnswers      bool       `json:"show_answers_after_submit"`
	ShowCorrect      bool       `json:"show_correct_answers"`
	RandomizeQs      bool       `json:"randomize_questions"`
	RandomizeAnswers bool       `json:"randomize_answers"`
	SendToGradebook  bool       `json:"send_to_gradebook"`
	AvailableFrom    *time.Time `json:"available_from"`
	AvailableUntil   *time.Time `json:"available_until"`
	IsPublished      bool       `json:"is_published"`
}

func (nq *NewQuiz) Validate(validate *validator.Validate) error {
	nq.CourseID = core.CleanString(nq.CourseID)
	nq.Title = core.CleanString(nq.Title)
	nq.Description = core.CleanString(nq.Description)
	return validate.Struct(nq)
}

// UpdateQuiz defines what information may be provided to modify an existing Quiz.
// Nil fields are left untouched.
type UpdateQuiz struct {
	Title            *string    `json:"title" validate:"omitempty,min=1,max=255"`
	Description      *string    `json:"description"`
	TimeLimit        *int       `json:"time_limit" validate:"omitempty,min=0"` // 0 removes the limit
	MaxScore         *float64   `json:"max_score" validate:"omitempty,gt=0"`
	PassingScore     *float64   `json:"passing_score" validate:"omitempty,min=0"`
	MaxAttempts      *int       `json:"max_attempts" validate:"omitempty,min=1"`
	ShowAnswers      *bool      `json:"show_answers_after_submit"`
	ShowCorrect      *bool      `json:"show_correct_answers"`
	RandomizeQs      *bool      `json:"randomize_questions"`
	RandomizeAnswers *bool      `json:"randomize_answers"`
	SendToGradebook  *bool      `json:"send_to_gradebook"`
	AvailableFrom    *time.Time `json:"available_from"`
	AvailableUntil   *time.Time `json:"available_until"`
	IsPublished      *bool      `json:"is_published"`

	// Clear flags remove an optional setting. They win over a value sent along.
	ClearPassingScore   bool `json:"clear_passing_score"`
	ClearAvailableFrom  bool `json:"clear_available_from"`
	ClearAvailableUntil bool `json:"clear_available_until"`
}

// apply returns a copy of `q` with the set fields of `uq`.
func (uq UpdateQuiz) apply(q Quiz) Quiz {
	if uq.Title != nil {
		q.Title = core.CleanString(*uq.Title)
	}
	if uq.Description != nil {
		q.Description = core.CleanString(*uq.Description)
	}
	if uq.TimeLimit != nil {
		if *uq.TimeLimit == 0 {
			q.TimeLimit = nil
		} else {
			limit := *uq.TimeLimit
			q.TimeLimit = &limit
		}
	}
	if uq.MaxScore != nil {
		q.MaxScore = *uq.MaxScore
	}
	if uq.PassingScore != nil {
		passing := *uq.PassingScore
		q.PassingScore = &passing
	}
	if uq.ClearPassingScore {
		q.PassingScore = nil
	}
	if uq.MaxAttempts != nil {
		q.MaxAttempts = *uq.MaxAttempts
	}
	if uq.ShowAnswers != nil {
		q.ShowAnswers = *uq.ShowAnswers
	}
	if uq.ShowCorrect != nil {
		q.ShowCorrect = *uq.ShowCorrect
	}
	if uq.RandomizeQs != nil {
		q.RandomizeQs = *uq.RandomizeQs
	}
	if uq.RandomizeAnswers != nil {
		q.RandomizeAnswers = *uq.RandomizeAnswers
	}
	if uq.SendToGradebook != nil {
		q.SendToGradebook = *uq.SendToGradebook
	}
	if uq.AvailableFrom != nil {
		q.AvailableFrom = uq.AvailableFrom
	}
	if uq.ClearAvailableFrom {
		q.AvailableFrom = nil
	}
	if uq.AvailableUntil != nil {
		q.AvailableUntil = uq.AvailableUntil
	}
	if uq.ClearAvailableUntil {
		q.AvailableUntil = nil
	}
	if uq.IsPublished != nil {
		q.IsPublished = *uq.IsPublished
	}
	return q
}

// NewQuestion contains information needed to add a Question to a Quiz.
type NewQuestion struct {
	Prompt    string      `json:"prompt" validate:"required"`
	Options   []NewOption `json:"options" validate:"required,min=2,dive"`
	AnswerKey []int       `json:"answer_key" validate:"required,min=1,dive,min=0"` // indexes in Options
	Points    float64     `json:"points" validate:"required,gt=0"`
}

type NewOption struct {
	Text string `json:"text" validate:"required"`
}

func (nq *NewQuestion) Validate(validate *validator.Validate) error {
	nq.Prompt = core.CleanString(nq.Prompt)
	for i := range nq.Options {
		nq.Options[i].Text = core.CleanString(nq.Options[i].Text)
	}
	return validate.Struct(nq)
}

type QueryFilter struct {
	CourseID    string `query:"course_id"`
	Search      string `query:"search"`
	IsPublished *bool  `query:"is_published"`
}

func (qf *QueryFilter) Clean() {
	qf.CourseID = core.CleanString(qf.CourseID)
	qf.Search = core.CleanString(qf.Search)
}

type AttemptFilter struct {
	QuizID    string   `query:"quiz_id"`
	StudentID string   `query:"student_id"`
	Statuses  []Status `query:"status"`
}

// SaveAnswers carries the answers a student sends while taking or submitting an attempt.
type SaveAnswers struct {
	Answers Answers `json:"answers"`
}
