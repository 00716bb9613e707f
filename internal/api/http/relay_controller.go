package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/telemed/internal/domain"
	"github.com/immxrtalbeast/telemed/internal/repository"
	"github.com/immxrtalbeast/telemed/internal/service"
	"github.com/immxrtalbeast/telemed/lib/logger/sl"
)

// Relay serves one websocket connection until it closes.
type Relay interface {
	Serve(ctx context.Context, ws *websocket.Conn, identity string, role domain.Role)
}

type RelayController struct {
	relay    Relay
	users    service.UserInteractor
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewRelayController(relay Relay, users service.UserInteractor, log *slog.Logger) *RelayController {
	return &RelayController{
		relay: relay,
		users: users,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: log,
	}
}

// Connect upgrades to the relay websocket. The identity must be a known user
// with the given role.
func (c *RelayController) Connect(ctx *gin.Context) {
	const op = "api.http.relay.connect"

	identity := ctx.Query("user_id")
	role := domain.Role(ctx.Query("role"))
	if identity == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	if !role.Valid() {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
		return
	}

	if c.users != nil {
		user, err := c.users.GetUser(ctx.Request.Context(), identity)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				ctx.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
				return
			}
			writeError(ctx, err)
			return
		}
		if user.Role != role {
			ctx.JSON(http.StatusForbidden, gin.H{"error": "role does not match user"})
			return
		}
	}

	ws, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		c.log.Warn("websocket upgrade failed", slog.String("op", op), sl.Err(err))
		return
	}

	c.relay.Serve(ctx.Request.Context(), ws, identity, role)
}
