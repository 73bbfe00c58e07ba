package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/duesledger/internal/observability/context"
)

const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

// ActorContext copies the identity set by the upstream auth layer into the
// request context. The role header is informational; authorization reads
// roles from profiles.
func ActorContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID := strings.TrimSpace(c.GetHeader(HeaderActorID))
		if actorID != "" {
			role := strings.TrimSpace(c.GetHeader(HeaderActorRole))
			c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), actorID, role))
		}
		c.Next()
	}
}

func ActorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actorID(c) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.authzSvc.Authorize(c.Request.Context(), actorID(c), object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// authorizeOwner lets members through for their own resources and requires
// the broader action otherwise.
func (s *Server) authorizeOwner(c *gin.Context, ownerID string, object string, action string) error {
	if ownerID != "" && ownerID == actorID(c) {
		return nil
	}
	return s.authzSvc.Authorize(c.Request.Context(), actorID(c), object, action)
}

func actorID(c *gin.Context) string {
	id, _ := obscontext.ActorFromContext(c.Request.Context())
	return id
}

func parseIDParam(c *gin.Context, name string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param(name)))
	if err != nil || id == 0 {
		return 0, newValidationError(name, "invalid_"+name, "invalid "+name)
	}
	return id, nil
}
