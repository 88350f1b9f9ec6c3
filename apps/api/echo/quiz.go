package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-quiz/core"
	"github.com/trezcool/masomo-quiz/core/quiz"
	"github.com/trezcool/masomo-quiz/core/user"
)

var quizOrderingFields = []string{"title", "created_at", "course_id"}

type quizApi struct {
	svc      quiz.ServiceInterface
	usrSvc   user.ServiceInterface
	validate *validator.Validate
}

func registerQuizAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc quiz.ServiceInterface,
	usrSvc user.ServiceInterface,
	validate *validator.Validate,
) {
	api := quizApi{
		svc:      svc,
		usrSvc:   usrSvc,
		validate: validate,
	}
	staff := staffMiddleware()

	qg := g.Group("/quizzes", jwt)
	qg.POST("", api.create, staff)
	qg.GET("", api.query)

	// detail endpoints
	dg := qg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, staff)
	dg.DELETE("", api.destroy, staff)

	dg.POST("/questions", api.addQuestion, staff)
	dg.GET("/questions", api.queryQuestions, staff)
	dg.DELETE("/questions/:qid", api.destroyQuestion, staff)

	dg.POST("/attempts", api.startAttempt, studentMiddleware())
	dg.GET("/attempts", api.queryAttempts, staff)
	dg.GET("/results", api.queryResults, staff)
	dg.GET("/marks", api.queryMarks, staff)
}

// isStaff reports whether the context user may manage quizzes.
func isStaff(ctx echo.Context) bool {
	claims, err := getContextClaims(ctx)
	return err == nil && (claims.IsTeacher || claims.IsAdmin)
}

// Handlers

func (api *quizApi) create(ctx echo.Context) error {
	var data quiz.NewQuiz
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewQuiz")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	q, err := api.svc.CreateQuiz(ctx.Request().Context(), data, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "creating quiz")
	}
	return ctx.JSON(http.StatusCreated, q)
}

func (api *quizApi) query(ctx echo.Context) error {
	var filter quiz.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	filter.Clean()
	if !isStaff(ctx) {
		published := true
		filter.IsPublished = &published
	}

	var ord Ordering
	ord.Bind(ctx)

	quizzes, err := api.svc.QueryQuizzes(
		ctx.Request().Context(),
		&filter,
		core.CleanOrdering(ord.Orderings, quizOrderingFields...),
	)
	if err != nil {
		return errors.Wrap(err, "querying quizzes")
	}
	return ctx.JSON(http.StatusOK, quizzes)
}

func (api *quizApi) retrieve(ctx echo.Context) error {
	q, err := api.svc.GetQuiz(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting quiz")
	}
	if !(q.IsPublished || isStaff(ctx)) {
		return quiz.ErrQuizNotFound
	}
	return ctx.JSON(http.StatusOK, q)
}

func (api *quizApi) update(ctx echo.Context) error {
	var data quiz.UpdateQuiz
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateQuiz")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	q, err := api.svc.UpdateQuiz(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating quiz")
	}
	return ctx.JSON(http.StatusOK, q)
}

func (api *quizApi) destroy(ctx echo.Context) error {
	if err := api.svc.DeleteQuiz(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting quiz")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *quizApi) addQuestion(ctx echo.Context) error {
	var data quiz.NewQuestion
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewQuestion")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	qn, err := api.svc.AddQuestion(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adding question")
	}
	return ctx.JSON(http.StatusCreated, qn)
}

func (api *quizApi) queryQuestions(ctx echo.Context) error {
	questions, err := api.svc.QueryQuestions(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying questions")
	}
	return ctx.JSON(http.StatusOK, questions)
}

func (api *quizApi) destroyQuestion(ctx echo.Context) error {
	if err := api.svc.DeleteQuestion(ctx.Request().Context(), ctx.Param("id"), ctx.Param("qid")); err != nil {
		return errors.Wrap(err, "deleting question")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *quizApi) startAttempt(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	a, err := api.svc.StartAttempt(ctx.Request().Context(), ctx.Param("id"), usr.ID)
	if err != nil {
		return errors.Wrap(err, "starting attempt")
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *quizApi) queryAttempts(ctx echo.Context) error {
	var filter quiz.AttemptFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to AttemptFilter")
	}
	filter.QuizID = ctx.Param("id")

	if _, err := api.svc.GetQuiz(ctx.Request().Context(), filter.QuizID); err != nil {
		return errors.Wrap(err, "getting quiz")
	}
	attempts, err := api.svc.QueryAttempts(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying attempts")
	}
	return ctx.JSON(http.StatusOK, attempts)
}

func (api *quizApi) queryResults(ctx echo.Context) error {
	results, err := api.svc.QueryResults(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying results")
	}
	return ctx.JSON(http.StatusOK, results)
}

func (api *quizApi) queryMarks(ctx echo.Context) error {
	marks, err := api.svc.QueryMarks(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying marks")
	}
	return ctx.JSON(http.StatusOK, marks)
}
