package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/donation-market/internal/repository"
	"github.com/iliyamo/donation-market/internal/service"
)

// PostHandler serves listings.
type PostHandler struct {
	Posts  *service.PostService
	Photos *PhotoStore
}

func NewPostHandler(posts *service.PostService, photos *PhotoStore) *PostHandler {
	return &PostHandler{Posts: posts, Photos: photos}
}

type createPostReq struct {
	Title          string   `json:"title" form:"title" validate:"required,max=255"`
	Description    string   `json:"description" form:"description"`
	NumberOfPlaces int      `json:"number_of_places" form:"number_of_places" validate:"required,min=1"`
	Status         string   `json:"post_status" form:"post_status" validate:"omitempty,oneof=available unavailable"`
	Street         string   `json:"street" form:"street"`
	StreetNumber   string   `json:"street_number" form:"street_number"`
	City           string   `json:"city" form:"city" validate:"required"`
	PostalCode     string   `json:"postal_code" form:"postal_code" validate:"required"`
	Categories     []uint64 `json:"categories" form:"-" validate:"required,min=1"`
}

type updatePostReq struct {
	Title          *string   `json:"title" validate:"omitempty,max=255"`
	Description    *string   `json:"description"`
	NumberOfPlaces *int      `json:"number_of_places" validate:"omitempty,min=1"`
	Status         *string   `json:"post_status" validate:"omitempty,oneof=available unavailable"`
	Street         *string   `json:"street"`
	StreetNumber   *string   `json:"street_number"`
	City           *string   `json:"city"`
	PostalCode     *string   `json:"postal_code"`
	Categories     *[]uint64 `json:"categories" validate:"omitempty,min=1"`
}

// Create handles POST /posts.
func (h *PostHandler) Create(c echo.Context) error {
	actor, err := getActor(c)
	if err != nil {
		return err
	}
	var req createPostReq
	if err := c.Bind(&req); err != nil {
		return respondError(c, echo.NewHTTPError(http.StatusBadRequest, "invalid request body"))
	}
	if isMultipart(c) {
		ids, _, err := formIDs(c, "categories")
		if err != nil {
			return respondError(c, err)
		}
		req.Categories = ids
	}
	if err := c.Validate(&req); err != nil {
		return respondError(c, err)
	}
	photo, err := h.Photos.Save(c, "photo")
	if err != nil {
		return respondError(c, err)
	}
	p, err := h.Posts.Create(c.Request().Context(), actor, service.PostInput{
		Title:          req.Title,
		Description:    req.Description,
		NumberOfPlaces: req.NumberOfPlaces,
		Status:         req.Status,
		Street:         req.Street,
		StreetNumber:   req.StreetNumber,
		City:           req.City,
		PostalCode:     req.PostalCode,
		Categories:     req.Categories,
		Photo:          photo,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

func filterFrom(c echo.Context) (repository.PostFilter, error) {
	cat, err := queryID(c, "category")
	if err != nil {
		return repository.PostFilter{}, err
	}
	return repository.PostFilter{
		City:       c.QueryParam("city"),
		Status:     strings.ToLower(strings.TrimSpace(c.QueryParam("status"))),
		Username:   c.QueryParam("username"),
		CategoryID: cat,
	}, nil
}

// List handles GET /posts.
func (h *PostHandler) List(c echo.Context) error {
	f, err := filterFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	pg := pageFrom(c)
	res, err := h.Posts.Search(c.Request().Context(), f, pg)
	if err != nil {
		return respondError(c, err)
	}
	return listJSON(c, res, pg)
}

// ByCategory handles GET /posts/byCategory?category_id=N.
func (h *PostHandler) ByCategory(c echo.Context) error {
	catID, err := queryID(c, "category_id")
	if err != nil {
		return respondError(c, err)
	}
	f, err := filterFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	if catID == 0 {
		catID = f.CategoryID
	}
	if catID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "category_id is required"})
	}
	pg := pageFrom(c)
	res, err := h.Posts.ByCategory(c.Request().Context(), catID, f, pg)
	if err != nil {
		return respondError(c, err)
	}
	return listJSON(c, res, pg)
}

// Mine handles GET /posts/me.
func (h *PostHandler) Mine(c echo.Context) error {
	actor, err := getActor(c)
	if err != nil {
		return err
	}
	f, err := filterFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	f.ClientID = actor.ID
	pg := pageFrom(c)
	res, err := h.Posts.Search(c.Request().Context(), f, pg)
	if err != nil {
		return respondError(c, err)
	}
	return listJSON(c, res, pg)
}

// Get handles GET /posts/:id.
func (h *PostHandler) Get(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	p, err := h.Posts.Get(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// Update handles PATCH /posts/:id.  Only supplied fields change; a
// categories list replaces the current one.
func (h *PostHandler) Update(c echo.Context) error {
	actor, err := getActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	req, err := readPostUpdate(c)
	if err != nil {
		return respondError(c, err)
	}
	photo, err := h.Photos.Save(c, "photo")
	if err != nil {
		return respondError(c, err)
	}
	p, err := h.Posts.Update(c.Request().Context(), actor, id, service.PostUpdate{
		Title:          req.Title,
		Description:    req.Description,
		NumberOfPlaces: req.NumberOfPlaces,
		Status:         req.Status,
		Street:         req.Street,
		StreetNumber:   req.StreetNumber,
		City:           req.City,
		PostalCode:     req.PostalCode,
		Categories:     req.Categories,
		Photo:          photo,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func readPostUpdate(c echo.Context) (updatePostReq, error) {
	var req updatePostReq
	if !isMultipart(c) {
		return req, bindValid(c, &req)
	}
	var err error
	for key, dst := range map[string]**string{
		"title":         &req.Title,
		"description":   &req.Description,
		"post_status":   &req.Status,
		"street":        &req.Street,
		"street_number": &req.StreetNumber,
		"city":          &req.City,
		"postal_code":   &req.PostalCode,
	} {
		if *dst, err = formValue(c, key); err != nil {
			return req, err
		}
	}
	if req.NumberOfPlaces, err = formInt(c, "number_of_places"); err != nil {
		return req, err
	}
	ids, ok, err := formIDs(c, "categories")
	if err != nil {
		return req, err
	}
	if ok {
		req.Categories = &ids
	}
	return req, c.Validate(&req)
}

// Delete handles DELETE /posts/:id.
func (h *PostHandler) Delete(c echo.Context) error {
	actor, err := getActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.Posts.Delete(c.Request().Context(), actor, id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
