package server

import (
	"agora/internal/middleware"
	"agora/internal/models"
	"agora/internal/service"

	"github.com/gofiber/fiber/v2"
)

// IdentityResponse describes the caller without exposing session tokens.
type IdentityResponse struct {
	Principal models.AuthorView `json:"principal"`
	Anonymous bool              `json:"anonymous"`
	Features  map[string]bool   `json:"features"`
}

type createBoardRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Style       string `json:"style"`
}

type createPostRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type createCommentRequest struct {
	Body            string `json:"body"`
	ParentCommentID *uint  `json:"parent_comment_id"`
}

type editContentRequest struct {
	Body  string  `json:"body"`
	Title *string `json:"title"`
}

type toggleRequest struct {
	Direction models.Direction `json:"direction"`
}

func invalidBody(c *fiber.Ctx) error {
	return respondWithError(c, models.NewValidationError("Invalid request body"))
}

// GetIdentity handles GET /api/identity
// @Summary Resolve the caller
// @Tags identity
// @Produce json
// @Success 200 {object} IdentityResponse
// @Router /identity [get]
func (s *Server) GetIdentity(c *fiber.Ctx) error {
	principal := middleware.PrincipalFrom(c)
	return c.JSON(IdentityResponse{
		Principal: principal.View(),
		Anonymous: principal.IsAnonymous(),
		Features:  s.featureFlags.Snapshot(principal),
	})
}

// CreateBoard handles POST /api/boards
// @Summary Create a board
// @Tags boards
// @Accept json
// @Produce json
// @Param request body createBoardRequest true "Board"
// @Success 201 {object} models.Board
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Router /boards [post]
func (s *Server) CreateBoard(c *fiber.Ctx) error {
	var req createBoardRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	board, err := s.core.CreateBoard(c.UserContext(), middleware.PrincipalFrom(c), service.CreateBoardInput{
		Name:        req.Name,
		Description: req.Description,
		Style:       req.Style,
	})
	if err != nil {
		return respondWithError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(board)
}

// CreatePost handles POST /api/boards/:id/posts
// @Summary Create a post on a board
// @Tags posts
// @Accept json
// @Produce json
// @Param id path int true "Board ID"
// @Param request body createPostRequest true "Post"
// @Success 201 {object} models.Content
// @Failure 404 {object} models.ErrorResponse
// @Router /boards/{id}/posts [post]
func (s *Server) CreatePost(c *fiber.Ctx) error {
	boardID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var req createPostRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	post, err := s.core.CreatePost(c.UserContext(), middleware.PrincipalFrom(c), service.CreatePostInput{
		BoardID: boardID,
		Title:   req.Title,
		Body:    req.Body,
	})
	if err != nil {
		return respondWithError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// RecordView handles POST /api/posts/:id/views
// @Summary Record a post view
// @Tags posts
// @Param id path int true "Post ID"
// @Success 204
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id}/views [post]
func (s *Server) RecordView(c *fiber.Ctx) error {
	postID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.core.RecordView(c.UserContext(), postID); err != nil {
		return respondWithError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListComments handles GET /api/posts/:id/comments
// @Summary List threaded comments
// @Tags comments
// @Produce json
// @Param id path int true "Post ID"
// @Success 200 {array} models.ThreadedComment
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id}/comments [get]
func (s *Server) ListComments(c *fiber.Ctx) error {
	postID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	threads, err := s.core.ListThreadedComments(c.UserContext(), postID)
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(threads)
}

// CreateComment handles POST /api/posts/:id/comments
// @Summary Create a comment or reply
// @Tags comments
// @Accept json
// @Produce json
// @Param id path int true "Post ID"
// @Param request body createCommentRequest true "Comment"
// @Success 201 {object} models.Content
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id}/comments [post]
func (s *Server) CreateComment(c *fiber.Ctx) error {
	postID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var req createCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	comment, err := s.core.CreateComment(c.UserContext(), middleware.PrincipalFrom(c), service.CreateCommentInput{
		PostID:   postID,
		Body:     req.Body,
		ParentID: req.ParentCommentID,
	})
	if err != nil {
		return respondWithError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}

// GetContent handles GET /api/content/:type/:id
// @Summary Get a post or comment
// @Tags content
// @Produce json
// @Param type path string true "post or comment"
// @Param id path int true "Content ID"
// @Success 200 {object} models.Content
// @Failure 404 {object} models.ErrorResponse
// @Router /content/{type}/{id} [get]
func (s *Server) GetContent(c *fiber.Ctx) error {
	ref, err := parseRef(c)
	if err != nil {
		return nil
	}
	content, err := s.core.GetContent(c.UserContext(), ref)
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(content)
}

// EditContent handles PATCH /api/content/:type/:id
// @Summary Edit owned content
// @Tags content
// @Accept json
// @Produce json
// @Param type path string true "post or comment"
// @Param id path int true "Content ID"
// @Param request body editContentRequest true "New text"
// @Success 200 {object} models.Content
// @Failure 403 {object} models.ErrorResponse
// @Router /content/{type}/{id} [patch]
func (s *Server) EditContent(c *fiber.Ctx) error {
	ref, err := parseRef(c)
	if err != nil {
		return nil
	}
	var req editContentRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	content, err := s.core.EditContent(c.UserContext(), middleware.PrincipalFrom(c), ref, service.EditInput{
		Body:  req.Body,
		Title: req.Title,
	})
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(content)
}

// RemoveContent handles DELETE /api/content/:type/:id
// @Summary Remove owned content
// @Tags content
// @Produce json
// @Param type path string true "post or comment"
// @Param id path int true "Content ID"
// @Success 200 {object} models.Content
// @Failure 403 {object} models.ErrorResponse
// @Router /content/{type}/{id} [delete]
func (s *Server) RemoveContent(c *fiber.Ctx) error {
	ref, err := parseRef(c)
	if err != nil {
		return nil
	}
	content, err := s.core.RemoveContent(c.UserContext(), middleware.PrincipalFrom(c), ref)
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(content)
}

// ToggleEngagement handles POST /api/content/:type/:id/engagement
// @Summary Toggle a like or vote
// @Tags engagement
// @Accept json
// @Produce json
// @Param type path string true "post or comment"
// @Param id path int true "Content ID"
// @Param request body toggleRequest true "Direction"
// @Success 200 {object} service.ToggleResult
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /content/{type}/{id}/engagement [post]
func (s *Server) ToggleEngagement(c *fiber.Ctx) error {
	ref, err := parseRef(c)
	if err != nil {
		return nil
	}
	var req toggleRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	result, err := s.core.ToggleEngagement(c.UserContext(), middleware.PrincipalFrom(c), ref, req.Direction)
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(result)
}
