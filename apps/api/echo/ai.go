package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/enlighten-ed/backend/core"
	aisvc "github.com/enlighten-ed/backend/services/ai"
)

type aiApi struct {
	svc    aisvc.Service
	logger core.Logger
}

func registerAIAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc aisvc.Service, logger core.Logger) {
	api := aiApi{svc: svc, logger: logger}

	ag := g.Group("/ai", jwt)
	ag.POST("/chat", api.chat)
}

type (
	AIChatRequest struct {
		Message string `json:"message"`
	}

	AIChatResponse struct {
		Response string `json:"response"`
	}
)

func (api *aiApi) chat(ctx echo.Context) error {
	var data AIChatRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AIChatRequest")
	}
	if data.Message == "" {
		return ctx.JSON(http.StatusBadRequest, echo.Map{"error": "Message is required"})
	}

	reply, err := api.svc.Chat(ctx.Request().Context(), data.Message)
	if err != nil {
		api.logger.Error("ai chat failed", err)
		return ctx.JSON(http.StatusInternalServerError, echo.Map{"error": "AI service failed"})
	}
	return ctx.JSON(http.StatusOK, AIChatResponse{Response: reply})
}
