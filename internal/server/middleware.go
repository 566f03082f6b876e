package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/stockledger/internal/observability/context"
)

const (
	HeaderActor     = "X-Actor-ID"
	contextActorKey = "actor_id"
)

// ActorContext copies the caller identity into the request context for logging.
// The identity is opaque: nothing here authenticates it.
func ActorContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := strings.TrimSpace(c.GetHeader(HeaderActor))
		if actor != "" {
			c.Set(contextActorKey, actor)
			ctx := obscontext.WithActor(c.Request.Context(), obscontext.ActorTypeUser, actor)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

// RequireActor rejects mutations that carry no X-Actor-ID.
func RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actorFrom(c) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

func actorFrom(c *gin.Context) string {
	if actor := strings.TrimSpace(c.GetString(contextActorKey)); actor != "" {
		return actor
	}
	return strings.TrimSpace(c.GetHeader(HeaderActor))
}
