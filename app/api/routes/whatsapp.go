package routes

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/wacrm/pkg/constant"
	"github.com/wacrm/pkg/domains/whatsapp"
	"github.com/wacrm/pkg/dtos"
	"github.com/wacrm/pkg/middleware"
	"go.uber.org/zap"
)

func WhatsAppRoutes(r *gin.RouterGroup, s whatsapp.Service) {
	// Apply JWT authentication to all WhatsApp endpoints
	authGroup := r.Group("", middleware.CheckAuth())
	{
		authGroup.POST("/sessions", createSession(s))
		authGroup.GET("/sessions", listSessions(s))
		authGroup.GET("/sessions/:id", getSession(s))
		authGroup.POST("/sessions/:id/disconnect", disconnectSession(s))
		authGroup.POST("/sessions/:id/reconnect", reconnectSession(s))
		authGroup.DELETE("/sessions/:id", deleteSession(s))
		authGroup.POST("/sessions/:id/messages", sendMessage(s))

		authGroup.GET("/conversations", listConversations(s))
		authGroup.GET("/conversations/:id/messages", listMessages(s))
		authGroup.POST("/conversations/:id/read", markConversationRead(s))
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, whatsapp.ErrQuotaExceeded), errors.Is(err, whatsapp.ErrSessionNotConnected):
		return http.StatusConflict
	case errors.Is(err, whatsapp.ErrSessionNotFound), errors.Is(err, whatsapp.ErrConversationNotFound):
		return http.StatusNotFound
	case errors.Is(err, whatsapp.ErrInvalidPhone):
		return http.StatusBadRequest
	case errors.Is(err, whatsapp.ErrWorkspaceRequired):
		return http.StatusForbidden
	case errors.Is(err, whatsapp.ErrConnectionSetupFailed):
		return http.StatusBadGateway
	case errors.Is(err, whatsapp.ErrManagerStopped):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func fail(c *gin.Context, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		zap.L().Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(code, gin.H{"error": constant.SOMETHING_WENT_WRONG})
		return
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

// @Summary Create or re-create a WhatsApp session
// @Tags whatsapp
// @Accept json
// @Produce json
// @Param body body dtos.CreateSessionDTO true "session"
// @Success 201 {object} dtos.SessionDTO
// @Router /whatsapp/sessions [post]
func createSession(s whatsapp.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		var req dtos.CreateSessionDTO
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": constant.INVALID_REQUEST})
			return
		}

		session, err := s.CreateSession(c, req)
		if err != nil {
			fail(c, err)
			return
		}

		c.JSON(201, gin.H{
			"message": constant.SESSION_CREATED,
			"data":    session,
		})
	}
}

func listSessions(s whatsapp.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		sessions, err := s.ListSessions(c)
		if err != nil {
			fail(c, err)
			return
		}

		c.JSON(200, gin.H{
			"message": constant.SESSIONS_RETRIEVED,
			"data":    sessions,
		})
	}
}

// getSession is polled by clients waiting for the QR code or a status change.
func getSession(s whatsapp.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		session, err := s.GetSession(c, c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}

		c.JSON(200, gin.H{
			"message": constant.SESSION_RETRIEVED,
			"data":    session,
		})
	}
}

func disconnectSession(s whatsapp.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		if err := s.DisconnectSession(c, c.Param("id")); err != nil {
			fail(c, err)
			return
		}

		c.JSON(200, gin.H{
			"message": constant.WHATSAPP_DISCONNECTED,
		})
	}
}

func reconnectSession(s whatsapp.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		session, err := s.ReconnectSession(c, c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}

		c.JSON(200, gin.H{
			"message": constant.SESSION_RECONNECTING,
			"data":    session,
		})
	}
}

func deleteSession(s whatsapp.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		if err := s.DeleteSession(c, c.Param("id")); err != nil {
			fail(c, err)
			return
		}

		c.JSON(200, gin.H{
			"message": constant.SESSION_DELETED,
		})
	}
}

func sendMessage(s whatsapp.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		var req dtos.SendMessageDTO
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": constant.INVALID_REQUEST})
			return
		}

		response, err := s.SendMessage(c, c.Param("id"), req)
		if err != nil {
			fail(c, err)
			return
		}

		c.JSON(200, gin.H{
			"message": constant.MESSAGE_SENT,
			"data":    response,
		})
	}
}

func listConversations(s whatsapp.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
		if err != nil || page <= 0 {
			c.JSON(400, gin.H{"error": constant.INVALID_PAGE_NUMBER})
			return
		}

		result, err := s.ListConversations(c, page)
		if err != nil {
			if err.Error() == constant.PAGE_NUMBER_OUT_OF_RANGE {
				c.JSON(400, gin.H{"error": err.Error()})
				return
			}
			fail(c, err)
			return
		}

		c.JSON(200, gin.H{
			"message": constant.CONVERSATIONS_RETRIEVED,
			"data":    result,
		})
	}
}

func listMessages(s whatsapp.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		messages, err := s.ListMessages(c, c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}

		c.JSON(200, gin.H{
			"message": constant.MESSAGES_RETRIEVED,
			"data":    messages,
		})
	}
}

func markConversationRead(s whatsapp.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		if err := s.MarkConversationRead(c, c.Param("id")); err != nil {
			fail(c, err)
			return
		}

		c.JSON(200, gin.H{
			"message": constant.CONVERSATION_READ,
		})
	}
}
