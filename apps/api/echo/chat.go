package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/enlighten-ed/backend/core/chat"
)

type chatApi struct {
	svc  chat.Service
	auth *auth
}

func registerChatAPI(g *echo.Group, jwt echo.MiddlewareFunc, a *auth, svc chat.Service) {
	api := chatApi{svc: svc, auth: a}

	cg := g.Group("/chat", jwt)
	cg.GET("/conversations/:userId", api.conversation)
	cg.GET("/groups/:groupId/messages", api.groupHistory)
}

// conversation returns the authed user's direct message history with another
// user, oldest first.
func (api *chatApi) conversation(ctx echo.Context) error {
	claims, err := api.auth.getContextClaims(ctx)
	if err != nil {
		return err
	}

	msgs, err := api.svc.Conversation(ctx.Request().Context(), claims.Subject, ctx.Param("userId"))
	if err != nil {
		return errors.Wrap(err, "querying conversation")
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	return ctx.JSON(http.StatusOK, msgs)
}

func (api *chatApi) groupHistory(ctx echo.Context) error {
	msgs, err := api.svc.GroupHistory(ctx.Request().Context(), ctx.Param("groupId"))
	if err != nil {
		return errors.Wrap(err, "querying group messages")
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	return ctx.JSON(http.StatusOK, msgs)
}
