package tests

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-quiz/core/quiz"
	"github.com/trezcool/masomo-quiz/core/user"
	emailsvc "github.com/trezcool/masomo-quiz/services/email"
	"github.com/trezcool/masomo-quiz/tests"
)

func Test_attemptApi_takeAndSubmit(t *testing.T) {
	e := setupQuiz(t)
	ctx := context.Background()

	other := testutil.CreateUser(t, e.usrRepo, "Other", "other", "other@test.cd", "", []string{user.RoleStudent}, true)
	otherToken := e.getToken(t, other)

	nq := newQuiz("Algebra", true)
	limit := 30
	passing := 50.0
	nq.TimeLimit = &limit
	nq.PassingScore = &passing
	nq.RandomizeQs = true
	nq.ShowAnswers = true
	q, questions := testutil.CreateQuiz(t, e.quizSvc, nq, e.teacher.ID, 4)

	a, err := e.quizSvc.StartAttempt(ctx, q.ID, e.student.ID)
	require.NoError(t, err)
	path := func(suffix string) string { return fmt.Sprintf("/v1/attempts/%s/%s", a.ID, suffix) }

	answers := testutil.Answers(questions, 3)
	notFound := marchallObj(t, httpErr{Error: "attempt not found"})

	tests := []httpTest{
		{name: "take (teacher)", path: path("questions"), token: e.teacherToken, wantCode: http.StatusForbidden},
		{name: "take (other student)", path: path("questions"), token: otherToken, wantCode: http.StatusNotFound, wantData: notFound},
		{name: "take (unknown)", path: "/v1/attempts/lol/questions", token: e.studentToken, wantCode: http.StatusNotFound, wantData: notFound},
		{
			name: "take", path: path("questions"), token: e.studentToken, wantCode: http.StatusOK,
			extra: func(t *testing.T, rec []byte) {
				var view quiz.AttemptView
				unmarshalBytes(t, rec, &view)
				assert.Equal(t, a.ID, view.Attempt.ID)
				require.NotNil(t, view.Deadline)
				assert.True(t, view.Deadline.Equal(a.StartedAt.Add(30*time.Minute)))
				require.Len(t, view.Questions, 4)
				for _, qn := range view.Questions {
					assert.Empty(t, qn.AnswerKey)
				}
			},
		},
		{
			name: "save unknown option", method: http.MethodPut, path: path("answers"), token: e.studentToken,
			body:     marchallObj(t, quiz.SaveAnswers{Answers: quiz.Answers{questions[0].ID: {"lol"}}}),
			wantCode: http.StatusBadRequest, wantData: []byte(fmt.Sprintf(`{%q: "unknown option"}`, questions[0].ID)),
		},
		{
			name: "save", method: http.MethodPut, path: path("answers"), token: e.studentToken,
			body:     marchallObj(t, quiz.SaveAnswers{Answers: quiz.Answers{questions[0].ID: answers[questions[0].ID]}}),
			wantCode: http.StatusOK,
			extra: func(t *testing.T, rec []byte) {
				var saved quiz.Attempt
				unmarshalBytes(t, rec, &saved)
				assert.Equal(t, quiz.StatusInProgress, saved.Status)
				assert.Equal(t, answers[questions[0].ID], saved.Answers[questions[0].ID])
			},
		},
		{
			name: "result before submit", path: path("result"), token: e.studentToken,
			wantCode: http.StatusUnprocessableEntity, wantData: marchallObj(t, httpErr{Error: "attempt has not been graded"}),
		},
		{
			name: "submit", method: http.MethodPost, path: path("submit"), token: e.studentToken,
			body: marchallObj(t, quiz.SaveAnswers{Answers: answers}), wantCode: http.StatusOK,
			extra: func(t *testing.T, rec []byte) {
				var graded quiz.Attempt
				unmarshalBytes(t, rec, &graded)
				assert.Equal(t, quiz.StatusGraded, graded.Status)
				require.NotNil(t, graded.Score)
				assert.Equal(t, 75.0, *graded.Score)
				require.NotNil(t, graded.Passed)
				assert.True(t, *graded.Passed)
			},
		},
		{
			name: "submit twice", method: http.MethodPost, path: path("submit"), token: e.studentToken,
			body:     marchallObj(t, quiz.SaveAnswers{Answers: answers}),
			wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: "attempt cannot be submitted"}),
		},
		{
			name: "take after submit", path: path("questions"), token: e.studentToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "attempt is no longer accessible"}),
		},
		{
			name: "result", path: path("result"), token: e.studentToken, wantCode: http.StatusOK,
			extra: func(t *testing.T, rec []byte) {
				var res quiz.Result
				unmarshalBytes(t, rec, &res)
				assert.Equal(t, a.ID, res.AttemptID)
				assert.Equal(t, 75.0, res.Score)
				assert.Equal(t, 100.0, res.MaxScore)
				assert.Equal(t, answers, res.Answers)
				assert.Empty(t, res.AnswerKeys)
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := e.do(tc)
			checkCodeAndData(t, tc, rec)

			if check, ok := tc.extra.(func(*testing.T, []byte)); ok {
				check(t, rec.Body.Bytes())
			}
		})
	}

	// the graded attempt is e-mailed to the student
	require.Len(t, emailsvc.SentMessages, 1)
	assert.Equal(t, e.student.Email, emailsvc.SentMessages[0].To[0].Address)
}

func Test_attemptApi_overrides(t *testing.T) {
	e := setupQuiz(t)
	ctx := context.Background()

	q, questions := testutil.CreateQuiz(t, e.quizSvc, newQuiz("Algebra", true), e.teacher.ID, 2)

	open, err := e.quizSvc.StartAttempt(ctx, q.ID, e.student.ID)
	require.NoError(t, err)

	other := testutil.CreateUser(t, e.usrRepo, "Other", "other", "other@test.cd", "", []string{user.RoleStudent}, true)
	graded, err := e.quizSvc.StartAttempt(ctx, q.ID, other.ID)
	require.NoError(t, err)
	_, err = e.quizSvc.SubmitAttempt(ctx, graded.ID, other.ID, testutil.Answers(questions, 2))
	require.NoError(t, err)

	path := func(id, action string) string { return fmt.Sprintf("/v1/attempts/%s/%s", id, action) }
	invalid := marchallObj(t, httpErr{Error: "invalid attempt status transition"})

	tests := []httpTest{
		{name: "cancel (student)", method: http.MethodPost, path: path(open.ID, "cancel"), token: e.studentToken, wantCode: http.StatusForbidden},
		{
			name: "return in progress", method: http.MethodPost, path: path(open.ID, "return"), token: e.teacherToken,
			wantCode: http.StatusConflict, wantData: invalid,
		},
		{
			name: "cancel", method: http.MethodPost, path: path(open.ID, "cancel"), token: e.teacherToken, wantCode: http.StatusOK,
			extra: quiz.StatusCancelled,
		},
		{
			name: "cancel graded", method: http.MethodPost, path: path(graded.ID, "cancel"), token: e.teacherToken,
			wantCode: http.StatusConflict, wantData: invalid,
		},
		{
			name: "return", method: http.MethodPost, path: path(graded.ID, "return"), token: e.adminToken, wantCode: http.StatusOK,
			extra: quiz.StatusReturned,
		},
		{
			name: "delete unknown", method: http.MethodDelete, path: "/v1/attempts/lol", token: e.teacherToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "attempt not found"}),
		},
		{name: "delete", method: http.MethodDelete, path: "/v1/attempts/" + open.ID, token: e.teacherToken, wantCode: http.StatusNoContent},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := e.do(tc)
			checkCodeAndData(t, tc, rec)

			if status, ok := tc.extra.(quiz.Status); ok {
				var a quiz.Attempt
				unmarshal(t, rec, &a)
				assert.Equal(t, status, a.Status)
			}
		})
	}
}
