package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-quiz/core/quiz"
	"github.com/trezcool/masomo-quiz/core/user"
)

type attemptApi struct {
	svc    quiz.ServiceInterface
	usrSvc user.ServiceInterface
}

func registerAttemptAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc quiz.ServiceInterface, usrSvc user.ServiceInterface) {
	api := attemptApi{
		svc:    svc,
		usrSvc: usrSvc,
	}
	staff := staffMiddleware()
	student := studentMiddleware()

	ag := g.Group("/attempts/:id", jwt)

	// owning student
	ag.GET("/questions", api.take, student)
	ag.PUT("/answers", api.save, student)
	ag.POST("/submit", api.submit, student)
	ag.GET("/result", api.result, student)

	// instructor overrides
	ag.POST("/return", api.giveBack, staff)
	ag.POST("/cancel", api.cancel, staff)
	ag.DELETE("", api.destroy, staff)
}

func (api *attemptApi) studentID(ctx echo.Context) (string, error) {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return "", errors.Wrap(err, "getting context user")
	}
	return usr.ID, nil
}

// Handlers

func (api *attemptApi) take(ctx echo.Context) error {
	sid, err := api.studentID(ctx)
	if err != nil {
		return err
	}
	session, err := api.svc.TakeAttempt(ctx.Request().Context(), ctx.Param("id"), sid)
	if err != nil {
		return errors.Wrap(err, "taking attempt")
	}
	return ctx.JSON(http.StatusOK, session.View())
}

func (api *attemptApi) save(ctx echo.Context) error {
	var data quiz.SaveAnswers
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SaveAnswers")
	}
	sid, err := api.studentID(ctx)
	if err != nil {
		return err
	}
	a, err := api.svc.SaveAnswers(ctx.Request().Context(), ctx.Param("id"), sid, data.Answers)
	if err != nil {
		return errors.Wrap(err, "saving answers")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *attemptApi) submit(ctx echo.Context) error {
	var data quiz.SaveAnswers
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SaveAnswers")
	}
	sid, err := api.studentID(ctx)
	if err != nil {
		return err
	}
	a, err := api.svc.SubmitAttempt(ctx.Request().Context(), ctx.Param("id"), sid, data.Answers)
	if err != nil {
		return errors.Wrap(err, "submitting attempt")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *attemptApi) result(ctx echo.Context) error {
	sid, err := api.studentID(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.AttemptResult(ctx.Request().Context(), ctx.Param("id"), sid)
	if err != nil {
		return errors.Wrap(err, "getting attempt result")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *attemptApi) giveBack(ctx echo.Context) error {
	a, err := api.svc.ReturnAttempt(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "returning attempt")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *attemptApi) cancel(ctx echo.Context) error {
	a, err := api.svc.CancelAttempt(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "cancelling attempt")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *attemptApi) destroy(ctx echo.Context) error {
	if err := api.svc.DeleteAttempt(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting attempt")
	}
	return ctx.NoContent(http.StatusNoContent)
}
