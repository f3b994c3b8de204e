package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/wacrm/pkg/domains/whatsapp"
	"github.com/wacrm/pkg/middleware"
)

type liveSession struct {
	SessionID   string `json:"session_id"`
	WorkspaceID string `json:"workspace_id"`
	Status      string `json:"status"`
	Phone       string `json:"phone_number,omitempty"`
	Attempts    int    `json:"attempts"`
}

// AdminRoutes exposes the in-memory registry across all workspaces.
func AdminRoutes(r *gin.RouterGroup, registry *whatsapp.Registry) {
	adminGroup := r.Group("", middleware.Admin())
	{
		adminGroup.GET("/sessions", func(c *gin.Context) {
			entries := registry.List()
			out := make([]liveSession, 0, len(entries))
			for _, e := range entries {
				out = append(out, liveSession{
					SessionID:   e.SessionID,
					WorkspaceID: e.WorkspaceID,
					Status:      e.Status,
					Phone:       e.Phone,
					Attempts:    e.Attempts,
				})
			}
			c.JSON(200, gin.H{"data": out})
		})
	}
}
