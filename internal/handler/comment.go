package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/donation-market/internal/model"
	"github.com/iliyamo/donation-market/internal/policy"
	"github.com/iliyamo/donation-market/internal/repository"
)

// CommentHandler serves comments on posts.  It talks to the repository
// directly; the only rule is authorship.
type CommentHandler struct {
	Comments *repository.CommentRepo
}

func NewCommentHandler(r *repository.CommentRepo) *CommentHandler { return &CommentHandler{Comments: r} }

type commentReq struct {
	PostID  uint64 `json:"post_id" validate:"required"`
	Content string `json:"content" validate:"required,max=2000"`
}

type editCommentReq struct {
	Content string `json:"content" validate:"required,max=2000"`
}

// List handles GET /comments?post_id=N.
func (h *CommentHandler) List(c echo.Context) error {
	postID, err := queryID(c, "post_id")
	if err != nil {
		return respondError(c, err)
	}
	if postID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "post_id is required"})
	}
	pg := pageFrom(c)
	res, err := h.Comments.ListByPost(c.Request().Context(), postID, pg)
	if err != nil {
		return respondError(c, err)
	}
	return listJSON(c, res, pg)
}

// Get handles GET /comments/:id.
func (h *CommentHandler) Get(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	m, err := h.Comments.GetByID(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

// Create handles POST /comments.
func (h *CommentHandler) Create(c echo.Context) error {
	actor, err := getActor(c)
	if err != nil {
		return err
	}
	var req commentReq
	if err := bindValid(c, &req); err != nil {
		return respondError(c, err)
	}
	m := &model.Comment{PostID: req.PostID, ClientID: actor.ID, Content: req.Content}
	if err := h.Comments.Create(c.Request().Context(), m); err != nil {
		return respondError(c, err)
	}
	created, err := h.Comments.GetByID(c.Request().Context(), m.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

// authorOf loads a comment and checks the caller wrote it or is an admin.
func (h *CommentHandler) authorOf(c echo.Context) (*model.Comment, error) {
	actor, err := getActor(c)
	if err != nil {
		return nil, err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return nil, err
	}
	m, err := h.Comments.GetByID(c.Request().Context(), id)
	if err != nil {
		return nil, err
	}
	if d := policy.SelfOrAdmin(actor, policy.Owned(m.ClientID)); !d.Allowed {
		return nil, echo.NewHTTPError(http.StatusForbidden, d.Reason)
	}
	return m, nil
}

// Update handles PATCH /comments/:id.
func (h *CommentHandler) Update(c echo.Context) error {
	m, err := h.authorOf(c)
	if err != nil {
		return respondError(c, err)
	}
	var req editCommentReq
	if err := bindValid(c, &req); err != nil {
		return respondError(c, err)
	}
	if err := h.Comments.Update(c.Request().Context(), m.ID, req.Content); err != nil {
		return respondError(c, err)
	}
	m.Content = req.Content
	return c.JSON(http.StatusOK, m)
}

// Delete handles DELETE /comments/:id.
func (h *CommentHandler) Delete(c echo.Context) error {
	m, err := h.authorOf(c)
	if err != nil {
		return respondError(c, err)
	}
	if err := h.Comments.Delete(c.Request().Context(), m.ID); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
