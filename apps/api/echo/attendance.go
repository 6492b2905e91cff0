package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/enlighten-ed/backend/core/attendance"
)

type attendanceApi struct {
	svc      attendance.Service
	validate *validator.Validate
}

func registerAttendanceAPI(g *echo.Group, jwt echo.MiddlewareFunc, a *auth, svc attendance.Service, validate *validator.Validate) {
	api := attendanceApi{svc: svc, validate: validate}

	ag := g.Group("/attendance", jwt)
	ag.POST("", api.report)
	ag.GET("/:meetingId", api.meetingHistory, a.lecturerMiddleware())
}

func (api *attendanceApi) report(ctx echo.Context) error {
	var data attendance.ReportRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ReportRequest")
	}
	if err := api.validate.Struct(&data); err != nil {
		return err
	}

	rec, written, err := api.svc.Report(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "recording attendance")
	}
	if !written {
		// duplicate within the dedup window
		return ctx.NoContent(http.StatusNoContent)
	}
	return ctx.JSON(http.StatusCreated, rec)
}

func (api *attendanceApi) meetingHistory(ctx echo.Context) error {
	recs, err := api.svc.MeetingHistory(ctx.Request().Context(), ctx.Param("meetingId"))
	if err != nil {
		return errors.Wrap(err, "querying attendance")
	}
	if recs == nil {
		recs = []attendance.Record{}
	}
	return ctx.JSON(http.StatusOK, recs)
}
