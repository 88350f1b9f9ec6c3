package sqlxrepos

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"
	"github.com/volatiletech/sqlboiler/v4/types"

	"github.com/trezcool/masomo-quiz/core"
	"github.com/trezcool/masomo-quiz/core/quiz"
)

const (
	quizColumns = `id, course_id, title, description, time_limit, max_score, passing_score, max_attempts,
		show_answers_after_submit, show_correct_answers, randomize_questions, randomize_answers, send_to_gradebook,
		available_from, available_until, is_published, created_by, created_at, updated_at`
	questionColumns = `id, quiz_id, position, prompt, options, answer_key, points`
	attemptColumns  = `id, quiz_id, student_id, ordinal, status, started_at, submitted_at, answers, score, max_score,
		passed, updated_at`
	markColumns = `quiz_id, student_id, course_id, best_score, max_score, attempts, updated_at`
)

type (
	quizRow struct {
		ID               string       `db:"id"`
		CourseID         string       `db:"course_id"`
		Title            string       `db:"title"`
		Description      string       `db:"description"`
		TimeLimit        null.Int     `db:"time_limit"`
		MaxScore         float64      `db:"max_score"`
		PassingScore     null.Float64 `db:"passing_score"`
		MaxAttempts      int          `db:"max_attempts"`
		ShowAnswers      bool         `db:"show_answers_after_submit"`
		ShowCorrect      bool         `db:"show_correct_answers"`
		RandomizeQs      bool         `db:"randomize_questions"`
		RandomizeAnswers bool         `db:"randomize_answers"`
		SendToGradebook  bool         `db:"send_to_gradebook"`
		AvailableFrom    null.Time    `db:"available_from"`
		AvailableUntil   null.Time    `db:"available_until"`
		IsPublished      bool         `db:"is_published"`
		CreatedBy        null.String  `db:"created_by"`
		CreatedAt        time.Time    `db:"created_at"`
		UpdatedAt        time.Time    `db:"updated_at"`
	}

	questionRow struct {
		ID        string     `db:"id"`
		QuizID    string     `db:"quiz_id"`
		Position  int        `db:"position"`
		Prompt    string     `db:"prompt"`
		Options   types.JSON `db:"options"`
		AnswerKey types.JSON `db:"answer_key"`
		Points    float64    `db:"points"`
	}

	attemptRow struct {
		ID          string       `db:"id"`
		QuizID      string       `db:"quiz_id"`
		StudentID   string       `db:"student_id"`
		Ordinal     int          `db:"ordinal"`
		Status      string       `db:"status"`
		StartedAt   time.Time    `db:"started_at"`
		SubmittedAt null.Time    `db:"submitted_at"`
		Answers     types.JSON   `db:"answers"`
		Score       null.Float64 `db:"score"`
		MaxScore    null.Float64 `db:"max_score"`
		Passed      null.Bool    `db:"passed"`
		UpdatedAt   time.Time    `db:"updated_at"`
	}

	markRow struct {
		QuizID    string    `db:"quiz_id"`
		StudentID string    `db:"student_id"`
		CourseID  string    `db:"course_id"`
		BestScore float64   `db:"best_score"`
		MaxScore  float64   `db:"max_score"`
		Attempts  int       `db:"attempts"`
		UpdatedAt time.Time `db:"updated_at"`
	}

	// resultRow is bound by sqlboiler, hence the boil tags.
	resultRow struct {
		StudentID string    `boil:"student_id"`
		Attempts  int       `boil:"attempts"`
		BestScore float64   `boil:"best_score"`
		LastScore float64   `boil:"last_score"`
		Passed    null.Bool `boil:"passed"`
	}
)

func toQuizRow(q quiz.Quiz) quizRow {
	return quizRow{
		ID:               q.ID,
		CourseID:         q.CourseID,
		Title:            q.Title,
		Description:      q.Description,
		TimeLimit:        null.IntFromPtr(q.TimeLimit),
		MaxScore:         q.MaxScore,
		PassingScore:     null.Float64FromPtr(q.PassingScore),
		MaxAttempts:      q.MaxAttempts,
		ShowAnswers:      q.ShowAnswers,
		ShowCorrect:      q.ShowCorrect,
		RandomizeQs:      q.RandomizeQs,
		RandomizeAnswers: q.RandomizeAnswers,
		SendToGradebook:  q.SendToGradebook,
		AvailableFrom:    null.TimeFromPtr(q.AvailableFrom),
		AvailableUntil:   null.TimeFromPtr(q.AvailableUntil),
		IsPublished:      q.IsPublished,
		CreatedBy:        null.NewString(q.CreatedBy, q.CreatedBy != ""),
		CreatedAt:        q.CreatedAt.UTC(),
		UpdatedAt:        q.UpdatedAt.UTC(),
	}
}

func (r quizRow) quiz() quiz.Quiz {
	return quiz.Quiz{
		ID:               r.ID,
		CourseID:         r.CourseID,
		Title:            r.Title,
		Description:      r.Description,
		TimeLimit:        r.TimeLimit.Ptr(),
		MaxScore:         r.MaxScore,
		PassingScore:     r.PassingScore.Ptr(),
		MaxAttempts:      r.MaxAttempts,
		ShowAnswers:      r.ShowAnswers,
		ShowCorrect:      r.ShowCorrect,
		RandomizeQs:      r.RandomizeQs,
		RandomizeAnswers: r.RandomizeAnswers,
		SendToGradebook:  r.SendToGradebook,
		AvailableFrom:    utcPtr(r.AvailableFrom),
		AvailableUntil:   utcPtr(r.AvailableUntil),
		IsPublished:      r.IsPublished,
		CreatedBy:        r.CreatedBy.String,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

func toQuestionRow(qn quiz.Question) (questionRow, error) {
	r := questionRow{ID: qn.ID, QuizID: qn.QuizID, Position: qn.Position, Prompt: qn.Prompt, Points: qn.Points}
	opts, key := qn.Options, qn.AnswerKey
	if opts == nil {
		opts = []quiz.Option{}
	}
	if key == nil {
		key = []string{}
	}
	if err := r.Options.Marshal(opts); err != nil {
		return questionRow{}, errors.Wrap(err, "encoding options")
	}
	if err := r.AnswerKey.Marshal(key); err != nil {
		return questionRow{}, errors.Wrap(err, "encoding answer key")
	}
	return r, nil
}

func (r questionRow) question() (quiz.Question, error) {
	qn := quiz.Question{ID: r.ID, QuizID: r.QuizID, Position: r.Position, Prompt: r.Prompt, Points: r.Points}
	if err := r.Options.Unmarshal(&qn.Options); err != nil {
		return quiz.Question{}, errors.Wrap(err, "decoding options")
	}
	if err := r.AnswerKey.Unmarshal(&qn.AnswerKey); err != nil {
		return quiz.Question{}, errors.Wrap(err, "decoding answer key")
	}
	return qn, nil
}

func toAttemptRow(a quiz.Attempt) (attemptRow, error) {
	r := attemptRow{
		ID:          a.ID,
		QuizID:      a.QuizID,
		StudentID:   a.StudentID,
		Ordinal:     a.Ordinal,
		Status:      string(a.Status),
		StartedAt:   a.StartedAt.UTC(),
		SubmittedAt: null.TimeFromPtr(a.SubmittedAt),
		Score:       null.Float64FromPtr(a.Score),
		MaxScore:    null.Float64FromPtr(a.MaxScore),
		Passed:      null.BoolFromPtr(a.Passed),
		UpdatedAt:   a.UpdatedAt.UTC(),
	}
	answers := a.Answers
	if answers == nil {
		answers = quiz.Answers{}
	}
	if err := r.Answers.Marshal(answers); err != nil {
		return attemptRow{}, errors.Wrap(err, "encoding answers")
	}
	return r, nil
}

func (r attemptRow) attempt() (quiz.Attempt, error) {
	a := quiz.Attempt{
		ID:          r.ID,
		QuizID:      r.QuizID,
		StudentID:   r.StudentID,
		Ordinal:     r.Ordinal,
		Status:      quiz.Status(r.Status),
		StartedAt:   r.StartedAt.UTC(),
		SubmittedAt: utcPtr(r.SubmittedAt),
		Score:       r.Score.Ptr(),
		MaxScore:    r.MaxScore.Ptr(),
		Passed:      r.Passed.Ptr(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
	if err := r.Answers.Unmarshal(&a.Answers); err != nil {
		return quiz.Attempt{}, errors.Wrap(err, "decoding answers")
	}
	if a.Answers == nil {
		a.Answers = quiz.Answers{}
	}
	return a, nil
}

func (r markRow) mark() quiz.Mark {
	return quiz.Mark{
		QuizID:    r.QuizID,
		StudentID: r.StudentID,
		CourseID:  r.CourseID,
		BestScore: r.BestScore,
		MaxScore:  r.MaxScore,
		Attempts:  r.Attempts,
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func utcPtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

func isUUID(ids ...string) bool {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return false
		}
	}
	return true
}

type quizRepository struct {
	db   *sqlx.DB
	exec executor
}

var _ quiz.Repository = (*quizRepository)(nil) // interface compliance check

func NewQuizRepository(db *sqlx.DB) *quizRepository {
	return &quizRepository{db: db, exec: db}
}

func (repo *quizRepository) WithTx(ctx context.Context, fn func(repo quiz.Repository) error) error {
	return withTx(ctx, repo.db, repo.exec, func(tx executor) error {
		return fn(&quizRepository{db: repo.db, exec: tx})
	})
}

// Quizzes

func (repo *quizRepository) CreateQuiz(ctx context.Context, q quiz.Quiz) (quiz.Quiz, error) {
	q.ID = uuid.New().String()
	_, err := sqlx.NamedExecContext(ctx, repo.exec, `
		INSERT INTO quiz (`+quizColumns+`)
		VALUES (:id, :course_id, :title, :description, :time_limit, :max_score, :passing_score, :max_attempts,
			:show_answers_after_submit, :show_correct_answers, :randomize_questions, :randomize_answers,
			:send_to_gradebook, :available_from, :available_until, :is_published, :created_by, :created_at, :updated_at)`,
		toQuizRow(q))
	if err != nil {
		return quiz.Quiz{}, errors.Wrap(err, "inserting quiz")
	}
	return q, nil
}

func (repo *quizRepository) GetQuiz(ctx context.Context, id string) (quiz.Quiz, error) {
	if !isUUID(id) {
		return quiz.Quiz{}, quiz.ErrQuizNotFound
	}
	var r quizRow
	if err := sqlx.GetContext(ctx, repo.exec, &r, `SELECT `+quizColumns+` FROM quiz WHERE id = $1`, id); err != nil {
		return quiz.Quiz{}, trapNoRowsErr(err, quiz.ErrQuizNotFound, "finding quiz")
	}
	return r.quiz(), nil
}

func (repo *quizRepository) QueryQuizzes(ctx context.Context, filter *quiz.QueryFilter, ordering []core.DBOrdering) ([]quiz.Quiz, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter != nil {
		if filter.CourseID != "" {
			args = append(args, filter.CourseID)
			conds = append(conds, fmt.Sprintf("course_id = $%d", len(args)))
		}
		if filter.IsPublished != nil {
			args = append(args, *filter.IsPublished)
			conds = append(conds, fmt.Sprintf("is_published = $%d", len(args)))
		}
		if filter.Search != "" {
			args = append(args, "%"+filter.Search+"%")
			conds = append(conds, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
		}
	}

	q := `SELECT ` + quizColumns + ` FROM quiz`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += orderBy(core.CleanOrdering(ordering, "title", "created_at", "course_id"), "created_at DESC")

	var rows []quizRow
	if err := sqlx.SelectContext(ctx, repo.exec, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying quizzes")
	}
	quizzes := make([]quiz.Quiz, 0, len(rows))
	for _, r := range rows {
		quizzes = append(quizzes, r.quiz())
	}
	return quizzes, nil
}

func (repo *quizRepository) UpdateQuiz(ctx context.Context, q quiz.Quiz) (quiz.Quiz, error) {
	res, err := sqlx.NamedExecContext(ctx, repo.exec, `
		UPDATE quiz SET
			title = :title, description = :description, time_limit = :time_limit, max_score = :max_score,
			passing_score = :passing_score, max_attempts = :max_attempts,
			show_answers_after_submit = :show_answers_after_submit, show_correct_answers = :show_correct_answers,
			randomize_questions = :randomize_questions, randomize_answers = :randomize_answers,
			send_to_gradebook = :send_to_gradebook, available_from = :available_from,
			available_until = :available_until, is_published = :is_published, updated_at = :updated_at
		WHERE id = :id`,
		toQuizRow(q))
	if err != nil {
		return quiz.Quiz{}, errors.Wrap(err, "updating quiz")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return quiz.Quiz{}, quiz.ErrQuizNotFound
	}
	return q, nil
}

// DeleteQuiz deletes the quiz, its questions, attempts and marks.
func (repo *quizRepository) DeleteQuiz(ctx context.Context, id string) error {
	if !isUUID(id) {
		return quiz.ErrQuizNotFound
	}
	res, err := repo.exec.ExecContext(ctx, `DELETE FROM quiz WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting quiz")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return quiz.ErrQuizNotFound
	}
	return nil
}

// Questions

func (repo *quizRepository) CreateQuestion(ctx context.Context, qn quiz.Question) (quiz.Question, error) {
	qn.ID = uuid.New().String()
	r, err := toQuestionRow(qn)
	if err != nil {
		return quiz.Question{}, err
	}
	_, err = sqlx.NamedExecContext(ctx, repo.exec, `
		INSERT INTO question (`+questionColumns+`)
		VALUES (:id, :quiz_id, :position, :prompt, :options, :answer_key, :points)`,
		r)
	if err != nil {
		return quiz.Question{}, errors.Wrap(err, "inserting question")
	}
	return qn, nil
}

func (repo *quizRepository) QueryQuestions(ctx context.Context, quizID string) ([]quiz.Question, error) {
	if !isUUID(quizID) {
		return nil, nil
	}
	var rows []questionRow
	err := sqlx.SelectContext(ctx, repo.exec, &rows,
		`SELECT `+questionColumns+` FROM question WHERE quiz_id = $1 ORDER BY position`, quizID)
	if err != nil {
		return nil, errors.Wrap(err, "querying questions")
	}
	questions := make([]quiz.Question, 0, len(rows))
	for _, r := range rows {
		qn, err := r.question()
		if err != nil {
			return nil, err
		}
		questions = append(questions, qn)
	}
	return questions, nil
}

func (repo *quizRepository) DeleteQuestion(ctx context.Context, quizID, id string) error {
	if !isUUID(quizID, id) {
		return quiz.ErrQuestionNotFound
	}
	res, err := repo.exec.ExecContext(ctx, `DELETE FROM question WHERE quiz_id = $1 AND id = $2`, quizID, id)
	if err != nil {
		return errors.Wrap(err, "deleting question")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return quiz.ErrQuestionNotFound
	}
	return nil
}

// Attempts

// LockStudentQuiz takes a transaction level advisory lock on the (quiz, student) pair.
func (repo *quizRepository) LockStudentQuiz(ctx context.Context, quizID, studentID string) error {
	h := fnv.New64a()
	_, _ = h.Write([]byte(quizID + ":" + studentID))
	if _, err := repo.exec.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(h.Sum64())); err != nil {
		return errors.Wrap(err, "acquiring advisory lock")
	}
	return nil
}

func (repo *quizRepository) CreateAttempt(ctx context.Context, a quiz.Attempt) (quiz.Attempt, error) {
	a.ID = uuid.New().String()
	r, err := toAttemptRow(a)
	if err != nil {
		return quiz.Attempt{}, err
	}
	_, err = sqlx.NamedExecContext(ctx, repo.exec, `
		INSERT INTO attempt (`+attemptColumns+`)
		VALUES (:id, :quiz_id, :student_id, :ordinal, :status, :started_at, :submitted_at, :answers, :score,
			:max_score, :passed, :updated_at)`,
		r)
	if err != nil {
		return quiz.Attempt{}, errors.Wrap(err, "inserting attempt")
	}
	return a, nil
}

func (repo *quizRepository) GetAttempt(ctx context.Context, id string, forUpdate bool) (quiz.Attempt, error) {
	if !isUUID(id) {
		return quiz.Attempt{}, quiz.ErrAttemptNotFound
	}
	q := `SELECT ` + attemptColumns + ` FROM attempt WHERE id = $1`
	if forUpdate {
		q += " FOR UPDATE"
	}
	var r attemptRow
	if err := sqlx.GetContext(ctx, repo.exec, &r, q, id); err != nil {
		return quiz.Attempt{}, trapNoRowsErr(err, quiz.ErrAttemptNotFound, "finding attempt")
	}
	return r.attempt()
}

func (repo *quizRepository) QueryAttempts(ctx context.Context, filter quiz.AttemptFilter) ([]quiz.Attempt, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.QuizID != "" {
		if !isUUID(filter.QuizID) {
			return nil, nil
		}
		args = append(args, filter.QuizID)
		conds = append(conds, fmt.Sprintf("quiz_id = $%d", len(args)))
	}
	if filter.StudentID != "" {
		if !isUUID(filter.StudentID) {
			return nil, nil
		}
		args = append(args, filter.StudentID)
		conds = append(conds, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		args = append(args, pq.Array(statuses))
		conds = append(conds, fmt.Sprintf("status = ANY($%d)", len(args)))
	}

	q := `SELECT ` + attemptColumns + ` FROM attempt`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY started_at, ordinal"

	var rows []attemptRow
	if err := sqlx.SelectContext(ctx, repo.exec, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying attempts")
	}
	attempts := make([]quiz.Attempt, 0, len(rows))
	for _, r := range rows {
		a, err := r.attempt()
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, nil
}

func (repo *quizRepository) UpdateAttempt(ctx context.Context, a quiz.Attempt) (quiz.Attempt, error) {
	r, err := toAttemptRow(a)
	if err != nil {
		return quiz.Attempt{}, err
	}
	res, err := sqlx.NamedExecContext(ctx, repo.exec, `
		UPDATE attempt SET
			status = :status, submitted_at = :submitted_at, answers = :answers, score = :score,
			max_score = :max_score, passed = :passed, updated_at = :updated_at
		WHERE id = :id`,
		r)
	if err != nil {
		return quiz.Attempt{}, errors.Wrap(err, "updating attempt")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return quiz.Attempt{}, quiz.ErrAttemptNotFound
	}
	return a, nil
}

func (repo *quizRepository) DeleteAttempt(ctx context.Context, id string) error {
	if !isUUID(id) {
		return quiz.ErrAttemptNotFound
	}
	res, err := repo.exec.ExecContext(ctx, `DELETE FROM attempt WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting attempt")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return quiz.ErrAttemptNotFound
	}
	return nil
}

func (repo *quizRepository) TimeOutAttempts(ctx context.Context, now time.Time) (int, error) {
	res, err := repo.exec.ExecContext(ctx, `
		UPDATE attempt a SET status = $1, updated_at = $2
		FROM quiz q
		WHERE a.quiz_id = q.id
		  AND a.status = $3
		  AND q.time_limit IS NOT NULL
		  AND a.started_at + make_interval(mins => q.time_limit) < $2`,
		string(quiz.StatusTimedOut), now.UTC(), string(quiz.StatusInProgress))
	if err != nil {
		return 0, errors.Wrap(err, "timing out attempts")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "timing out attempts")
	}
	return int(n), nil
}

// Gradebook

func (repo *quizRepository) RecordMark(ctx context.Context, m quiz.Mark) (quiz.Mark, error) {
	var r markRow
	err := sqlx.GetContext(ctx, repo.exec, &r, `
		INSERT INTO mark (`+markColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (quiz_id, student_id) DO UPDATE SET
			course_id = EXCLUDED.course_id,
			best_score = GREATEST(mark.best_score, EXCLUDED.best_score),
			max_score = EXCLUDED.max_score,
			attempts = mark.attempts + EXCLUDED.attempts,
			updated_at = EXCLUDED.updated_at
		RETURNING `+markColumns,
		m.QuizID, m.StudentID, m.CourseID, m.BestScore, m.MaxScore, m.Attempts, m.UpdatedAt.UTC())
	if err != nil {
		return quiz.Mark{}, errors.Wrap(err, "recording mark")
	}
	return r.mark(), nil
}

func (repo *quizRepository) QueryMarks(ctx context.Context, quizID string) ([]quiz.Mark, error) {
	if !isUUID(quizID) {
		return nil, nil
	}
	var rows []markRow
	err := sqlx.SelectContext(ctx, repo.exec, &rows,
		`SELECT `+markColumns+` FROM mark WHERE quiz_id = $1 ORDER BY student_id`, quizID)
	if err != nil {
		return nil, errors.Wrap(err, "querying marks")
	}
	marks := make([]quiz.Mark, 0, len(rows))
	for _, r := range rows {
		marks = append(marks, r.mark())
	}
	return marks, nil
}

// QueryResults takes the passed flag of the best attempt, the earliest one on ties.
func (repo *quizRepository) QueryResults(ctx context.Context, quizID string) ([]quiz.StudentResult, error) {
	if !isUUID(quizID) {
		return nil, nil
	}
	var rows []resultRow
	err := queries.Raw(`
		SELECT student_id,
		       COUNT(*) AS attempts,
		       MAX(score) AS best_score,
		       (ARRAY_AGG(score ORDER BY submitted_at DESC NULLS LAST, ordinal DESC))[1] AS last_score,
		       (ARRAY_AGG(passed ORDER BY score DESC, started_at))[1] AS passed
		FROM attempt
		WHERE quiz_id = $1 AND status = ANY($2) AND score IS NOT NULL
		GROUP BY student_id
		ORDER BY student_id`,
		quizID, pq.Array([]string{string(quiz.StatusGraded), string(quiz.StatusReturned)}),
	).Bind(ctx, repo.exec, &rows)
	if err != nil {
		return nil, errors.Wrap(err, "querying results")
	}

	results := make([]quiz.StudentResult, 0, len(rows))
	for _, r := range rows {
		results = append(results, quiz.StudentResult{
			StudentID: r.StudentID,
			Attempts:  r.Attempts,
			BestScore: r.BestScore,
			LastScore: r.LastScore,
			Passed:    r.Passed.Ptr(),
		})
	}
	return results, nil
}
