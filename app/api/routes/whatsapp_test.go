package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wacrm/pkg/constant"
	"github.com/wacrm/pkg/domains/whatsapp"
	"github.com/wacrm/pkg/dtos"
	"github.com/wacrm/pkg/state"
	"github.com/wacrm/pkg/utils"
)

const testSecret = "route-test-secret"

type fakeService struct {
	createErr error
	sendErr   error
	listErr   error
	workspace string
	created   dtos.CreateSessionDTO
}

func (f *fakeService) CreateSession(ctx context.Context, req dtos.CreateSessionDTO) (*dtos.SessionDTO, error) {
	f.workspace = state.CurrentWorkspace(ctx)
	f.created = req
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &dtos.SessionDTO{SessionID: "s1", SessionName: req.SessionName, Status: "connecting"}, nil
}

func (f *fakeService) ListSessions(ctx context.Context) ([]dtos.SessionDTO, error) {
	return []dtos.SessionDTO{{SessionID: "s1"}}, nil
}

func (f *fakeService) GetSession(ctx context.Context, sessionID string) (*dtos.SessionDTO, error) {
	if sessionID != "s1" {
		return nil, whatsapp.ErrSessionNotFound
	}
	return &dtos.SessionDTO{SessionID: "s1", Status: "connected"}, nil
}

func (f *fakeService) DisconnectSession(ctx context.Context, sessionID string) error {
	return nil
}

func (f *fakeService) ReconnectSession(ctx context.Context, sessionID string) (*dtos.SessionDTO, error) {
	return &dtos.SessionDTO{SessionID: sessionID, Status: "connecting"}, nil
}

func (f *fakeService) DeleteSession(ctx context.Context, sessionID string) error {
	return whatsapp.ErrSessionNotFound
}

func (f *fakeService) SendMessage(ctx context.Context, sessionID string, req dtos.SendMessageDTO) (*dtos.MessageDTO, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &dtos.MessageDTO{MessageID: "OUT-1", FromMe: true, Text: req.Message}, nil
}

func (f *fakeService) ListConversations(ctx context.Context, page int) (*dtos.ConversationPageDTO, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &dtos.ConversationPageDTO{Page: page}, nil
}

func (f *fakeService) ListMessages(ctx context.Context, conversationID string) ([]dtos.MessageDTO, error) {
	return nil, whatsapp.ErrConversationNotFound
}

func (f *fakeService) MarkConversationRead(ctx context.Context, conversationID string) error {
	return nil
}

func newRouter(t *testing.T, s whatsapp.Service) *gin.Engine {
	t.Helper()
	t.Setenv("SECRET", testSecret)
	gin.SetMode(gin.TestMode)
	utils.RegisterBindingValidations()

	r := gin.New()
	WhatsAppRoutes(r.Group("/api/v1/whatsapp"), s)
	return r
}

func token(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func validToken(t *testing.T) string {
	return token(t, jwt.MapClaims{
		"id":           float64(7),
		"workspace_id": "ws-1",
		"exp":          time.Now().Add(time.Hour).Unix(),
	})
}

func do(r *gin.Engine, method, path, bearer, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	msg, _ := body["error"].(string)
	return msg
}

func TestRoutesRequireToken(t *testing.T) {
	r := newRouter(t, &fakeService{})

	w := do(r, http.MethodGet, "/api/v1/whatsapp/sessions", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodGet, "/api/v1/whatsapp/sessions", "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRoutesRejectExpiredToken(t *testing.T) {
	r := newRouter(t, &fakeService{})
	expired := token(t, jwt.MapClaims{"workspace_id": "ws-1", "exp": time.Now().Add(-time.Minute).Unix()})

	w := do(r, http.MethodGet, "/api/v1/whatsapp/sessions", expired, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRoutesRequireWorkspaceClaim(t *testing.T) {
	r := newRouter(t, &fakeService{})
	noWorkspace := token(t, jwt.MapClaims{"id": float64(1), "exp": time.Now().Add(time.Hour).Unix()})

	w := do(r, http.MethodGet, "/api/v1/whatsapp/sessions", noWorkspace, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, constant.WORKSPACE_REQUIRED, errorOf(t, w))
}

func TestCreateSessionRoute(t *testing.T) {
	svc := &fakeService{}
	r := newRouter(t, svc)

	w := do(r, http.MethodPost, "/api/v1/whatsapp/sessions", validToken(t), `{"session_name":"main"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "ws-1", svc.workspace)
	assert.Equal(t, "main", svc.created.SessionName)

	var body struct {
		Message string          `json:"message"`
		Data    dtos.SessionDTO `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, constant.SESSION_CREATED, body.Message)
	assert.Equal(t, "connecting", body.Data.Status)

	w = do(r, http.MethodPost, "/api/v1/whatsapp/sessions", validToken(t), `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouteErrorMapping(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want int
	}{
		{whatsapp.ErrQuotaExceeded, http.StatusConflict},
		{errors.Wrap(whatsapp.ErrConnectionSetupFailed, "dial"), http.StatusBadGateway},
		{whatsapp.ErrSessionNotFound, http.StatusNotFound},
		{whatsapp.ErrWorkspaceRequired, http.StatusForbidden},
		{whatsapp.ErrManagerStopped, http.StatusServiceUnavailable},
		{errors.New("database is on fire"), http.StatusInternalServerError},
	} {
		r := newRouter(t, &fakeService{createErr: tc.err})
		w := do(r, http.MethodPost, "/api/v1/whatsapp/sessions", validToken(t), `{"session_name":"main"}`)
		assert.Equal(t, tc.want, w.Code, tc.err.Error())
		if tc.want == http.StatusInternalServerError {
			assert.Equal(t, constant.SOMETHING_WENT_WRONG, errorOf(t, w))
		}
	}
}

func TestSendMessageRoute(t *testing.T) {
	r := newRouter(t, &fakeService{})

	w := do(r, http.MethodPost, "/api/v1/whatsapp/sessions/s1/messages", validToken(t), `{"phone_number":"+1 555 123 4567","message":"hi"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodPost, "/api/v1/whatsapp/sessions/s1/messages", validToken(t), `{"phone_number":"12ab","message":"hi"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	r = newRouter(t, &fakeService{sendErr: whatsapp.ErrSessionNotConnected})
	w = do(r, http.MethodPost, "/api/v1/whatsapp/sessions/s1/messages", validToken(t), `{"phone_number":"15551234567","message":"hi"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSessionLookupRoutes(t *testing.T) {
	r := newRouter(t, &fakeService{})

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/whatsapp/sessions/s1", validToken(t), "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/v1/whatsapp/sessions/s2", validToken(t), "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodDelete, "/api/v1/whatsapp/sessions/s1", validToken(t), "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/v1/whatsapp/sessions/s1/disconnect", validToken(t), "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/v1/whatsapp/sessions/s1/reconnect", validToken(t), "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/v1/whatsapp/conversations/c1/messages", validToken(t), "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/v1/whatsapp/conversations/c1/read", validToken(t), "").Code)
}

func TestListConversationsPageParam(t *testing.T) {
	r := newRouter(t, &fakeService{})

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/whatsapp/conversations", validToken(t), "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/whatsapp/conversations?page=2", validToken(t), "").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/v1/whatsapp/conversations?page=0", validToken(t), "").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/v1/whatsapp/conversations?page=abc", validToken(t), "").Code)

	r = newRouter(t, &fakeService{listErr: errors.New(constant.PAGE_NUMBER_OUT_OF_RANGE)})
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/v1/whatsapp/conversations?page=9", validToken(t), "").Code)
}
