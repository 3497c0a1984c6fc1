package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/donation-market/internal/handler"
	"github.com/iliyamo/donation-market/internal/middleware"
)

// RegisterPosts registers donation posts and their comments.  Browsing is
// public; writing requires a token and ownership is checked by the
// service.
func RegisterPosts(e *echo.Echo, p *handler.PostHandler, m *handler.CommentHandler, jwtSecret string) {
	auth := middleware.JWTAuth(jwtSecret)

	e.GET("/posts", p.List)
	e.GET("/posts/byCategory", p.ByCategory)
	e.GET("/posts/me", p.Mine, auth)
	e.GET("/posts/:id", p.Get)
	e.POST("/posts", p.Create, auth)
	e.PATCH("/posts/:id", p.Update, auth)
	e.DELETE("/posts/:id", p.Delete, auth)

	e.GET("/comments", m.List)
	e.GET("/comments/:id", m.Get)
	e.POST("/comments", m.Create, auth)
	e.PATCH("/comments/:id", m.Update, auth)
	e.DELETE("/comments/:id", m.Delete, auth)
}
