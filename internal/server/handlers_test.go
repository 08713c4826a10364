package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"agora/internal/config"
	"agora/internal/featureflags"
	"agora/internal/middleware"
	"agora/internal/models"
	"agora/internal/notifications"
	"agora/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockCore is a mock of the Core interface
type MockCore struct {
	mock.Mock
}

func (m *MockCore) ToggleEngagement(ctx context.Context, p models.Principal, ref models.ContentRef, d models.Direction) (*service.ToggleResult, error) {
	args := m.Called(ctx, p, ref, d)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ToggleResult), args.Error(1)
}

func (m *MockCore) CreateComment(ctx context.Context, p models.Principal, in service.CreateCommentInput) (*models.Content, error) {
	args := m.Called(ctx, p, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Content), args.Error(1)
}

func (m *MockCore) EditContent(ctx context.Context, p models.Principal, ref models.ContentRef, in service.EditInput) (*models.Content, error) {
	args := m.Called(ctx, p, ref, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Content), args.Error(1)
}

func (m *MockCore) RemoveContent(ctx context.Context, p models.Principal, ref models.ContentRef) (*models.Content, error) {
	args := m.Called(ctx, p, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Content), args.Error(1)
}

func (m *MockCore) ListThreadedComments(ctx context.Context, postID uint) ([]models.ThreadedComment, error) {
	args := m.Called(ctx, postID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ThreadedComment), args.Error(1)
}

func (m *MockCore) CreateBoard(ctx context.Context, p models.Principal, in service.CreateBoardInput) (*models.Board, error) {
	args := m.Called(ctx, p, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Board), args.Error(1)
}

func (m *MockCore) CreatePost(ctx context.Context, p models.Principal, in service.CreatePostInput) (*models.Content, error) {
	args := m.Called(ctx, p, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Content), args.Error(1)
}

func (m *MockCore) RecordView(ctx context.Context, postID uint) error {
	return m.Called(ctx, postID).Error(0)
}

func (m *MockCore) GetContent(ctx context.Context, ref models.ContentRef) (*models.Content, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Content), args.Error(1)
}

var visitor = models.AnonymousSession("visitor-token")

// mockedApp routes requests to s with the principal fixed to visitor.
func mockedApp(core Core) (*fiber.App, *Server) {
	s := &Server{
		config:       &config.Config{},
		core:         core,
		featureFlags: featureflags.NewManager("invalidation_stream=on"),
	}
	app := fiber.New(fiber.Config{ErrorHandler: errorHandler})
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(middleware.PrincipalLocal, visitor)
		return c.Next()
	})
	s.SetupRoutes(app)
	return app, s
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind models.ErrorKind
		want int
	}{
		{models.KindNotFound, http.StatusNotFound},
		{models.KindForbidden, http.StatusForbidden},
		{models.KindInvalidInput, http.StatusBadRequest},
		{models.KindInvalidParent, http.StatusBadRequest},
		{models.KindConflict, http.StatusConflict},
		{models.KindStoreUnavailable, http.StatusServiceUnavailable},
		{models.KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.kind))
		})
	}
}

func TestHumanizeParam(t *testing.T) {
	assert.Equal(t, "ID", humanizeParam("id"))
	assert.Equal(t, "post ID", humanizeParam("postId"))
	assert.Equal(t, "parent comment ID", humanizeParam("parentCommentId"))
	assert.Equal(t, "something", humanizeParam("something"))
}

func TestParseTopics(t *testing.T) {
	assert.Equal(t, []string{"post:1", "board:2"}, parseTopics(" post:1, ,board:2,"))
	assert.Nil(t, parseTopics(""))
}

func TestToggleEngagementHandler(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       any
		setup      func(m *MockCore)
		wantStatus int
		wantCode   string
	}{
		{
			name: "like toggled on",
			path: "/api/content/post/3/engagement",
			body: fiber.Map{"direction": "like"},
			setup: func(m *MockCore) {
				m.On("ToggleEngagement", mock.Anything, visitor, models.PostRef(3), models.DirectionLike).
					Return(&service.ToggleResult{Ref: models.PostRef(3), Counter: models.CounterLikes, DeltaApplied: 1,
						State: models.EdgeState{HasEdge: true, Direction: models.DirectionLike}}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "invalid direction",
			path: "/api/content/comment/4/engagement",
			body: fiber.Map{"direction": "up"},
			setup: func(m *MockCore) {
				m.On("ToggleEngagement", mock.Anything, visitor, models.CommentRef(4), models.DirectionUp).
					Return(nil, models.NewInvalidDirectionError(models.DirectionUp, models.StyleLike))
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   models.CodeInvalidDirection,
		},
		{
			name: "exhausted retries",
			path: "/api/content/post/3/engagement",
			body: fiber.Map{"direction": "down"},
			setup: func(m *MockCore) {
				m.On("ToggleEngagement", mock.Anything, visitor, models.PostRef(3), models.DirectionDown).
					Return(nil, models.NewConflictError("too much contention", nil))
			},
			wantStatus: http.StatusConflict,
			wantCode:   models.CodeConflict,
		},
		{
			name:       "unknown content type",
			path:       "/api/content/board/3/engagement",
			body:       fiber.Map{"direction": "like"},
			setup:      func(m *MockCore) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   models.CodeValidation,
		},
		{
			name:       "bad id",
			path:       "/api/content/post/abc/engagement",
			body:       fiber.Map{"direction": "like"},
			setup:      func(m *MockCore) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   models.CodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core := new(MockCore)
			tt.setup(core)
			app, _ := mockedApp(core)

			resp, body := doJSON(t, app, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode, string(body))
			if tt.wantCode != "" {
				var errResp models.ErrorResponse
				require.NoError(t, json.Unmarshal(body, &errResp))
				assert.Equal(t, tt.wantCode, errResp.Code)
			}
			core.AssertExpectations(t)
		})
	}
}

func TestCreateCommentHandler(t *testing.T) {
	core := new(MockCore)
	parent := uint(7)
	core.On("CreateComment", mock.Anything, visitor, service.CreateCommentInput{PostID: 2, Body: "hi", ParentID: &parent}).
		Return(&models.Content{Ref: models.CommentRef(9), PostID: 2, ParentCommentID: &parent, Body: "hi", Byline: visitor.View()}, nil)
	core.On("CreateComment", mock.Anything, visitor, service.CreateCommentInput{PostID: 2, Body: "deep"}).
		Return(nil, models.NewInvalidParentError("replies cannot be nested"))
	app, _ := mockedApp(core)

	resp, body := doJSON(t, app, http.MethodPost, "/api/posts/2/comments", fiber.Map{"body": "hi", "parent_comment_id": 7})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, float64(7), got["parent_comment_id"])
	assert.NotContains(t, string(body), "visitor-token", "session tokens never leave the server")

	resp, _ = doJSON(t, app, http.MethodPost, "/api/posts/2/comments", fiber.Map{"body": "deep"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	core.AssertExpectations(t)
}

func TestContentHandlers(t *testing.T) {
	core := new(MockCore)
	title := "New"
	core.On("GetContent", mock.Anything, models.PostRef(1)).
		Return(&models.Content{Ref: models.PostRef(1), IsDeleted: true}, nil)
	core.On("EditContent", mock.Anything, visitor, models.PostRef(1), service.EditInput{Body: "b", Title: &title}).
		Return(nil, models.NewForbiddenError("not yours"))
	core.On("RemoveContent", mock.Anything, visitor, models.CommentRef(5)).
		Return(nil, models.NewNotFoundError("comment", 5))
	core.On("ListThreadedComments", mock.Anything, uint(1)).
		Return([]models.ThreadedComment{}, nil)
	core.On("RecordView", mock.Anything, uint(1)).Return(nil)
	core.On("CreateBoard", mock.Anything, visitor, service.CreateBoardInput{Name: "x"}).
		Return(nil, models.NewForbiddenError("accounts only"))
	core.On("CreatePost", mock.Anything, visitor, service.CreatePostInput{BoardID: 4, Title: "t", Body: "b"}).
		Return(nil, models.NewStoreUnavailableError(errors.New("connection refused")))
	app, _ := mockedApp(core)

	resp, body := doJSON(t, app, http.MethodGet, "/api/content/post/1", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"is_deleted":true`)

	resp, _ = doJSON(t, app, http.MethodPatch, "/api/content/post/1", fiber.Map{"body": "b", "title": "New"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodDelete, "/api/content/comment/5", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = doJSON(t, app, http.MethodGet, "/api/posts/1/comments", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))

	resp, _ = doJSON(t, app, http.MethodPost, "/api/posts/1/views", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodPost, "/api/boards", fiber.Map{"name": "x"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = doJSON(t, app, http.MethodPost, "/api/boards/4/posts", fiber.Map{"title": "t", "body": "b"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.NotContains(t, string(body), "connection refused")

	core.AssertExpectations(t)
}

func TestGetIdentity(t *testing.T) {
	app, _ := mockedApp(new(MockCore))

	resp, body := doJSON(t, app, http.MethodGet, "/api/identity", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got IdentityResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, visitor.View(), got.Principal)
	assert.True(t, got.Anonymous)
	assert.True(t, got.Features[featureflags.InvalidationStream])
}

func TestInvalidationStream_Gates(t *testing.T) {
	app, s := mockedApp(new(MockCore))

	// No Redis means no hub.
	resp, _ := doJSON(t, app, http.MethodGet, "/api/ws/invalidations", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	s.hub = notifications.NewHub()
	resp, _ = doJSON(t, app, http.MethodGet, "/api/ws/invalidations?topics=post:1", nil)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)

	s.featureFlags = featureflags.NewManager("invalidation_stream=off")
	resp, _ = doJSON(t, app, http.MethodGet, "/api/ws/invalidations", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
