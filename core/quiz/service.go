package quiz

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-quiz/core"
	"github.com/trezcool/masomo-quiz/core/user"
)

type (
	// UserGetter finds the users attempts belong to.
	UserGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	ServiceInterface interface {
		CreateQuiz(ctx context.Context, nq NewQuiz, createdBy string) (Quiz, error)
		GetQuiz(ctx context.Context, id string) (Quiz, error)
		QueryQuizzes(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Quiz, error)
		UpdateQuiz(ctx context.Context, id string, uq UpdateQuiz) (Quiz, error)
		DeleteQuiz(ctx context.Context, id string) error

		AddQuestion(ctx context.Context, quizID string, nq NewQuestion) (Question, error)
		QueryQuestions(ctx context.Context, quizID string) ([]Question, error)
		DeleteQuestion(ctx context.Context, quizID, id string) error

		StartAttempt(ctx context.Context, quizID, studentID string) (Attempt, error)
		TakeAttempt(ctx context.Context, attemptID, studentID string) (Session, error)
		SaveAnswers(ctx context.Context, attemptID, studentID string, answers Answers) (Attempt, error)
		SubmitAttempt(ctx context.Context, attemptID, studentID string, answers Answers) (Attempt, error)
		AttemptResult(ctx context.Context, attemptID, studentID string) (Result, error)

		GetAttempt(ctx context.Context, id string) (Attempt, error)
		QueryAttempts(ctx context.Context, filter AttemptFilter) ([]Attempt, error)
		ReturnAttempt(ctx context.Context, id string) (Attempt, error)
		CancelAttempt(ctx context.Context, id string) (Attempt, error)
		DeleteAttempt(ctx context.Context, id string) error

		QueryResults(ctx context.Context, quizID string) ([]StudentResult, error)
		QueryMarks(ctx context.Context, quizID string) ([]Mark, error)
		SweepTimedOut(ctx context.Context) (int, error)
	}

	Service struct {
		repo          Repository
		users         UserGetter
		mailSvc       core.EmailService
		logger        core.Logger
		now           core.Clock
		notifyResults bool
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(
	conf *core.Config,
	repo Repository,
	users UserGetter,
	mailSvc core.EmailService,
	logger core.Logger,
	clock core.Clock,
) *Service {
	return &Service{
		repo:          repo,
		users:         users,
		mailSvc:       mailSvc,
		logger:        logger,
		now:           clock,
		notifyResults: conf.Quiz.NotifyResults,
	}
}

// Quizzes

func (svc *Service) CreateQuiz(ctx context.Context, nq NewQuiz, createdBy string) (Quiz, error) {
	now := svc.now()
	q := Quiz{
		CourseID:         nq.CourseID,
		Title:            nq.Title,
		Description:      nq.Description,
		TimeLimit:        nq.TimeLimit,
		MaxScore:         nq.MaxScore,
		PassingScore:     nq.PassingScore,
		MaxAttempts:      nq.MaxAttempts,
		ShowAnswers:      nq.ShowAnswers,
		ShowCorrect:      nq.ShowCorrect,
		RandomizeQs:      nq.RandomizeQs,
		RandomizeAnswers: nq.RandomizeAnswers,
		SendToGradebook:  nq.SendToGradebook,
		AvailableFrom:    utcPtr(nq.AvailableFrom),
		AvailableUntil:   utcPtr(nq.AvailableUntil),
		IsPublished:      nq.IsPublished,
		CreatedBy:        createdBy,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := checkQuiz(q); err != nil {
		return Quiz{}, err
	}
	return svc.repo.CreateQuiz(ctx, q)
}

func (svc *Service) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	return svc.repo.GetQuiz(ctx, id)
}

func (svc *Service) QueryQuizzes(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Quiz, error) {
	return svc.repo.QueryQuizzes(ctx, filter, ordering)
}

// UpdateQuiz edits a quiz. Attempts already graded keep the score they were given.
func (svc *Service) UpdateQuiz(ctx context.Context, id string, uq UpdateQuiz) (Quiz, error) {
	var q Quiz
	err := svc.repo.WithTx(ctx, func(repo Repository) error {
		orig, err := repo.GetQuiz(ctx, id)
		if err != nil {
			return err
		}
		uq.AvailableFrom = utcPtr(uq.AvailableFrom)
		uq.AvailableUntil = utcPtr(uq.AvailableUntil)
		updated := uq.apply(orig)
		if err := checkQuiz(updated); err != nil {
			return err
		}
		updated.UpdatedAt = svc.now()
		q, err = repo.UpdateQuiz(ctx, updated)
		return err
	})
	return q, err
}

func (svc *Service) DeleteQuiz(ctx context.Context, id string) error {
	return svc.repo.DeleteQuiz(ctx, id)
}

// Questions

// AddQuestion appends a question at the end of the quiz.
func (svc *Service) AddQuestion(ctx context.Context, quizID string, nq NewQuestion) (Question, error) {
	var qn Question
	err := svc.repo.WithTx(ctx, func(repo Repository) error {
		if _, err := repo.GetQuiz(ctx, quizID); err != nil {
			return err
		}
		if err := checkQuestion(nq); err != nil {
			return err
		}
		questions, err := repo.QueryQuestions(ctx, quizID)
		if err != nil {
			return err
		}
		var pos int
		for _, existing := range questions {
			if existing.Position > pos {
				pos = existing.Position
			}
		}

		opts := make([]Option, 0, len(nq.Options))
		for _, o := range nq.Options {
			opts = append(opts, Option{ID: uuid.New().String(), Text: o.Text})
		}
		key := make([]string, 0, len(nq.AnswerKey))
		for _, idx := range nq.AnswerKey {
			key = append(key, opts[idx].ID)
		}

		qn, err = repo.CreateQuestion(ctx, Question{
			QuizID:    quizID,
			Position:  pos + 1,
			Prompt:    nq.Prompt,
			Options:   opts,
			AnswerKey: key,
			Points:    nq.Points,
		})
		return err
	})
	return qn, err
}

func (svc *Service) QueryQuestions(ctx context.Context, quizID string) ([]Question, error) {
	if _, err := svc.repo.GetQuiz(ctx, quizID); err != nil {
		return nil, err
	}
	return svc.repo.QueryQuestions(ctx, quizID)
}

func (svc *Service) DeleteQuestion(ctx context.Context, quizID, id string) error {
	return svc.repo.DeleteQuestion(ctx, quizID, id)
}

// Attempts

// StartAttempt creates a new attempt of the student on the quiz, if the quiz is available
// and the student has tries left.
func (svc *Service) StartAttempt(ctx context.Context, quizID, studentID string) (Attempt, error) {
	var (
		att     Attempt
		refusal error
	)
	err := svc.repo.WithTx(ctx, func(repo Repository) error {
		q, err := repo.GetQuiz(ctx, quizID)
		if err != nil {
			return err
		}
		now := svc.now()
		if !q.IsAvailable(now) {
			refusal = ErrQuizUnavailable
			return nil
		}

		if err = repo.LockStudentQuiz(ctx, quizID, studentID); err != nil {
			return errors.Wrap(err, "locking student attempts")
		}
		attempts, err := repo.QueryAttempts(ctx, AttemptFilter{QuizID: quizID, StudentID: studentID})
		if err != nil {
			return err
		}

		var consumed, open int
		for _, a := range attempts {
			switch {
			case a.Status.IsConsuming():
				consumed++
			case a.Status == StatusInProgress && a.IsTimedOut(q, now):
				// overdue attempts are closed for good
				if err = a.transition(StatusTimedOut, now); err != nil {
					return err
				}
				if _, err = repo.UpdateAttempt(ctx, a); err != nil {
					return err
				}
			case a.Status == StatusInProgress:
				open++
			}
		}
		if consumed+open >= q.MaxAttempts {
			refusal = ErrAttemptLimitExceeded
			return nil
		}
		if open > 0 {
			refusal = ErrAttemptInProgress
			return nil
		}

		att, err = repo.CreateAttempt(ctx, Attempt{
			QuizID:    quizID,
			StudentID: studentID,
			Ordinal:   consumed + 1,
			Status:    StatusInProgress,
			StartedAt: now,
			Answers:   Answers{},
			UpdatedAt: now,
		})
		return err
	})
	if err != nil {
		return Attempt{}, err
	}
	if refusal != nil {
		return Attempt{}, refusal
	}
	return att, nil
}

// Session is a running attempt together with the questions in the order the student gets them.
type Session struct {
	Attempt   Attempt
	Quiz      Quiz
	Questions *Sequence
}

func (s Session) View() AttemptView {
	v := AttemptView{Attempt: s.Attempt, Questions: s.Questions.All()}
	if deadline, ok := s.Quiz.Deadline(s.Attempt.StartedAt); ok {
		v.Deadline = &deadline
	}
	return v
}

// TakeAttempt returns the questions of an open attempt of the student.
func (svc *Service) TakeAttempt(ctx context.Context, attemptID, studentID string) (Session, error) {
	a, err := svc.studentAttempt(ctx, svc.repo, attemptID, studentID, false)
	if err != nil {
		return Session{}, err
	}
	q, err := svc.repo.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return Session{}, err
	}
	if !a.IsOpen(q, svc.now()) {
		return Session{}, ErrAttemptNotAccessible
	}
	questions, err := svc.repo.QueryQuestions(ctx, q.ID)
	if err != nil {
		return Session{}, err
	}
	return Session{Attempt: a, Quiz: q, Questions: NewSequence(q, a.ID, questions)}, nil
}

// SaveAnswers merges answers into an open attempt of the student.
func (svc *Service) SaveAnswers(ctx context.Context, attemptID, studentID string, answers Answers) (Attempt, error) {
	var att Attempt
	err := svc.repo.WithTx(ctx, func(repo Repository) error {
		a, err := svc.studentAttempt(ctx, repo, attemptID, studentID, true)
		if err != nil {
			return err
		}
		q, err := repo.GetQuiz(ctx, a.QuizID)
		if err != nil {
			return err
		}
		now := svc.now()
		if !a.IsOpen(q, now) {
			return ErrAttemptNotAccessible
		}
		questions, err := repo.QueryQuestions(ctx, q.ID)
		if err != nil {
			return err
		}
		if err = checkAnswers(answers, questions); err != nil {
			return err
		}
		a.Answers = a.Answers.merge(answers)
		a.UpdatedAt = now
		att, err = repo.UpdateAttempt(ctx, a)
		return err
	})
	return att, err
}

// SubmitAttempt merges the final answers into an open attempt of the student and grades it.
// A refused submission writes nothing.
func (svc *Service) SubmitAttempt(ctx context.Context, attemptID, studentID string, answers Answers) (Attempt, error) {
	var (
		att Attempt
		q   Quiz
	)
	err := svc.repo.WithTx(ctx, func(repo Repository) error {
		a, err := svc.studentAttempt(ctx, repo, attemptID, studentID, true)
		if err != nil {
			return err
		}
		if q, err = repo.GetQuiz(ctx, a.QuizID); err != nil {
			return err
		}
		now := svc.now()
		if !a.IsOpen(q, now) {
			return ErrAttemptNotSubmittable
		}
		questions, err := repo.QueryQuestions(ctx, q.ID)
		if err != nil {
			return err
		}
		if err = checkAnswers(answers, questions); err != nil {
			return err
		}

		a.Answers = a.Answers.merge(answers)
		if err = a.transition(StatusSubmitted, now); err != nil {
			return err
		}
		g, err := GradeAnswers(q, questions, a.Answers)
		if err != nil {
			return err
		}
		if err = a.setGrade(g, now); err != nil {
			return err
		}
		att, err = repo.UpdateAttempt(ctx, a)
		return err
	})
	if err != nil {
		return Attempt{}, err
	}

	if q.SendToGradebook {
		svc.recordMark(ctx, q, att)
	}
	svc.notifyGraded(ctx, q, att)
	return att, nil
}

// AttemptResult returns the grade of an attempt of the student, with the answers and the answer keys
// when the quiz shows them.
func (svc *Service) AttemptResult(ctx context.Context, attemptID, studentID string) (Result, error) {
	a, err := svc.studentAttempt(ctx, svc.repo, attemptID, studentID, false)
	if err != nil {
		return Result{}, err
	}
	if !a.Status.IsScored() || a.Score == nil || a.MaxScore == nil {
		return Result{}, ErrAttemptNotGraded
	}
	q, err := svc.repo.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		AttemptID:   a.ID,
		Ordinal:     a.Ordinal,
		Status:      a.Status,
		SubmittedAt: a.SubmittedAt,
		Score:       *a.Score,
		MaxScore:    *a.MaxScore,
		Passed:      a.Passed,
	}
	if q.ShowAnswers {
		res.Answers = a.Answers.clone()
	}
	if q.ShowCorrect {
		questions, err := svc.repo.QueryQuestions(ctx, q.ID)
		if err != nil {
			return Result{}, err
		}
		res.AnswerKeys = make(map[string][]string, len(questions))
		for _, qn := range questions {
			res.AnswerKeys[qn.ID] = append([]string(nil), qn.AnswerKey...)
		}
	}
	return res, nil
}

func (svc *Service) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	return svc.repo.GetAttempt(ctx, id, false)
}

func (svc *Service) QueryAttempts(ctx context.Context, filter AttemptFilter) ([]Attempt, error) {
	return svc.repo.QueryAttempts(ctx, filter)
}

// ReturnAttempt hands a graded attempt back to the student.
func (svc *Service) ReturnAttempt(ctx context.Context, id string) (Attempt, error) {
	return svc.override(ctx, id, StatusReturned)
}

// CancelAttempt voids an in-progress attempt. It does not count against the attempt limit.
func (svc *Service) CancelAttempt(ctx context.Context, id string) (Attempt, error) {
	return svc.override(ctx, id, StatusCancelled)
}

func (svc *Service) override(ctx context.Context, id string, next Status) (Attempt, error) {
	var att Attempt
	err := svc.repo.WithTx(ctx, func(repo Repository) error {
		a, err := repo.GetAttempt(ctx, id, true)
		if err != nil {
			return err
		}
		if err = a.transition(next, svc.now()); err != nil {
			return err
		}
		att, err = repo.UpdateAttempt(ctx, a)
		return err
	})
	return att, err
}

func (svc *Service) DeleteAttempt(ctx context.Context, id string) error {
	return svc.repo.DeleteAttempt(ctx, id)
}

// Reports

func (svc *Service) QueryResults(ctx context.Context, quizID string) ([]StudentResult, error) {
	if _, err := svc.repo.GetQuiz(ctx, quizID); err != nil {
		return nil, err
	}
	return svc.repo.QueryResults(ctx, quizID)
}

func (svc *Service) QueryMarks(ctx context.Context, quizID string) ([]Mark, error) {
	if _, err := svc.repo.GetQuiz(ctx, quizID); err != nil {
		return nil, err
	}
	return svc.repo.QueryMarks(ctx, quizID)
}

// SweepTimedOut stores as timed out every overdue in-progress attempt.
func (svc *Service) SweepTimedOut(ctx context.Context) (int, error) {
	n, err := svc.repo.TimeOutAttempts(ctx, svc.now())
	if err != nil {
		return 0, errors.Wrap(err, "timing out attempts")
	}
	return n, nil
}

// helpers

// studentAttempt finds an attempt of the student. Attempts of other students are not found.
func (svc *Service) studentAttempt(ctx context.Context, repo Repository, id, studentID string, forUpdate bool) (Attempt, error) {
	a, err := repo.GetAttempt(ctx, id, forUpdate)
	if err != nil {
		return Attempt{}, err
	}
	if a.StudentID != studentID {
		return Attempt{}, ErrAttemptNotFound
	}
	return a, nil
}

func (svc *Service) recordMark(ctx context.Context, q Quiz, a Attempt) {
	m := Mark{
		QuizID:    q.ID,
		StudentID: a.StudentID,
		CourseID:  q.CourseID,
		BestScore: *a.Score,
		MaxScore:  *a.MaxScore,
		Attempts:  1,
		UpdatedAt: a.UpdatedAt,
	}
	if _, err := svc.repo.RecordMark(ctx, m); err != nil {
		err = errors.Wrap(err, "recording mark")
		svc.logger.Error(err.Error(), err, a)
	}
}

type gradedMailData struct {
	Name      string
	QuizTitle string
	AttemptID string
	Ordinal   int
	Score     float64
	MaxScore  float64
	HasPassed bool
	Passed    bool
}

func (svc *Service) notifyGraded(ctx context.Context, q Quiz, a Attempt) {
	if !svc.notifyResults || svc.mailSvc == nil || svc.users == nil {
		return
	}
	usr, err := svc.users.GetByID(ctx, a.StudentID)
	if err != nil {
		err = errors.Wrap(err, "finding student to notify")
		svc.logger.Warn(err.Error(), err, a)
		return
	}
	if usr.Email == "" {
		return
	}

	data := gradedMailData{
		Name:      usr.Name,
		QuizTitle: q.Title,
		AttemptID: a.ID,
		Ordinal:   a.Ordinal,
		Score:     *a.Score,
		MaxScore:  *a.MaxScore,
	}
	if a.Passed != nil {
		data.HasPassed = true
		data.Passed = *a.Passed
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      fmt.Sprintf("%s: attempt #%d graded", q.Title, a.Ordinal),
		TemplateName: "attempt_graded",
		TemplateData: data,
	})
}

// setGrade stores the grade on a submitted attempt and marks it graded.
func (a *Attempt) setGrade(g Grade, now time.Time) error {
	score, maxScore := g.Score, g.MaxScore
	a.Score = &score
	a.MaxScore = &maxScore
	a.Passed = g.Passed
	return a.transition(StatusGraded, now)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
