package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/donation-market/internal/config"
	"github.com/iliyamo/donation-market/internal/database"
	"github.com/iliyamo/donation-market/internal/handler"
	"github.com/iliyamo/donation-market/internal/middleware"
	"github.com/iliyamo/donation-market/internal/notify"
	"github.com/iliyamo/donation-market/internal/queue"
	"github.com/iliyamo/donation-market/internal/repository"
	"github.com/iliyamo/donation-market/internal/router"
	"github.com/iliyamo/donation-market/internal/service"
)

const secret = "router-test-secret"

type app struct {
	e       *echo.Echo
	clients *service.ClientService
	hub     *notify.Hub
}

func newApp(t *testing.T) *app {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, database.SQLite))

	e := echo.New()
	e.HTTPErrorHandler = router.ErrorHandler
	e.Validator = handler.NewValidator()

	d := repository.SQLite
	clients := repository.NewClientRepo(db, d)
	addresses := repository.NewAddressRepo(db, d)
	categories := repository.NewCategoryRepo(db, d)
	posts := repository.NewPostRepo(db, d)
	hub := notify.NewHub()

	clientSvc := service.NewClientService(clients, addresses, nil, service.AuthSettings{
		JWTSecret: secret, TokenTTL: time.Hour, BcryptCost: bcrypt.MinCost,
	})
	events := queue.DirectPublisher{Notifier: notify.LocalNotifier{Hub: hub}}
	reservationSvc := service.NewReservationService(posts, clients, repository.NewReservationRepo(db), events, e.Logger)
	photos := &handler.PhotoStore{Dir: t.TempDir(), MaxBytes: 1 << 20}
	off := middleware.NewRedisCache(config.CacheConfig{}, nil)

	router.RegisterRoutes(e, db, photos.Dir)
	router.RegisterAuth(e, handler.NewAuthHandler(clientSvc, photos), handler.NewUserHandler(clientSvc, photos),
		secret, middleware.NewTokenBucket(config.RateLimitConfig{}, nil))
	router.RegisterPosts(e, handler.NewPostHandler(service.NewPostService(posts, categories, addresses), photos),
		handler.NewCommentHandler(repository.NewCommentRepo(db)), secret)
	router.RegisterReservations(e, handler.NewReservationHandler(reservationSvc), secret)
	router.RegisterReference(e,
		&handler.CategoryHandler{Categories: categories},
		&handler.AddressHandler{Addresses: addresses},
		handler.Stats(repository.NewStatsRepo(db)),
		secret, off)
	return &app{e: e, clients: clientSvc, hub: hub}
}

func (a *app) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

// signup registers through the API and logs in, returning the id and token.
func (a *app) signup(t *testing.T, name string) (uint64, string) {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/users", "", map[string]any{
		"username": name, "email": name + "@example.com", "password": "secret123",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = a.do(t, http.MethodPost, "/login", "", map[string]any{"email": name + "@example.com", "password": "secret123"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sess struct {
		Token string `json:"token"`
		User  struct {
			ID uint64 `json:"id"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	return sess.User.ID, sess.Token
}

func (a *app) admin(t *testing.T) string {
	t.Helper()
	_, err := a.clients.Register(context.Background(), service.RegisterInput{
		Username: "root", Email: "root@example.com", Password: "secret123", IsAdmin: true,
	})
	require.NoError(t, err)
	sess, err := a.clients.Login(context.Background(), "root@example.com", "secret123")
	require.NoError(t, err)
	return sess.Token
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type idBody struct {
	ID uint64 `json:"id"`
}

func (a *app) category(t *testing.T, adminToken, name string) uint64 {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/productType", adminToken, map[string]any{"name_category": name})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[idBody](t, rec).ID
}

func (a *app) post(t *testing.T, token string, places int, cats ...uint64) uint64 {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/posts", token, map[string]any{
		"title": "bike", "description": "kids bike", "number_of_places": places,
		"city": "Paris", "postal_code": "75010", "categories": cats,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[idBody](t, rec).ID
}

func TestHealthAndErrors(t *testing.T) {
	a := newApp(t)
	rec := a.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = a.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Not Found"}`, rec.Body.String())

	rec = a.do(t, http.MethodGet, "/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(t, http.MethodGet, "/posts/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthFlow(t *testing.T) {
	a := newApp(t)
	id, token := a.signup(t, "alice")

	rec := a.do(t, http.MethodGet, "/users/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[map[string]any](t, rec)
	assert.Equal(t, "alice", me["username"])
	assert.NotContains(t, me, "password_hash")

	rec = a.do(t, http.MethodPost, "/users", "", map[string]any{"username": "alice", "email": "x@example.com", "password": "secret123"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(t, http.MethodPost, "/users", "", map[string]any{"username": "bad", "email": "nope", "password": "1"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields := decode[struct {
		Fields map[string]string `json:"fields"`
	}](t, rec).Fields
	assert.Equal(t, "email", fields["email"])
	assert.Equal(t, "min", fields["password"])

	rec = a.do(t, http.MethodPost, "/login", "", map[string]any{"email": "alice@example.com", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(t, http.MethodPost, "/loginWithGoogle", "", map[string]any{"idToken": "abc"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	_, other := a.signup(t, "bob")
	rec = a.do(t, http.MethodGet, fmt.Sprintf("/users/%d", id), other, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = a.do(t, http.MethodGet, "/users", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, http.MethodPatch, fmt.Sprintf("/users/%d", id), token, map[string]any{"street": "rue Lepic"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "rue Lepic", decode[map[string]any](t, rec)["street"])
	rec = a.do(t, http.MethodPatch, fmt.Sprintf("/users/%d", id), token, map[string]any{"is_admin": true})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin := a.admin(t)
	rec = a.do(t, http.MethodGet, "/users?username=ali", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, rec)["total"])
}

func TestReservationFlow(t *testing.T) {
	a := newApp(t)
	admin := a.admin(t)
	cat := a.category(t, admin, "sport")
	ownerID, owner := a.signup(t, "owner")
	_, alice := a.signup(t, "alice")
	_, bob := a.signup(t, "bob")
	post := a.post(t, owner, 1, cat)

	rec := a.do(t, http.MethodPost, "/reservations", owner, map[string]any{"post_id": post})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, http.MethodPost, "/reservations", alice, map[string]any{"post_id": post})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resID := decode[idBody](t, rec).ID

	rec = a.do(t, http.MethodPost, "/reservations", alice, map[string]any{"post_id": post})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(t, http.MethodPost, "/reservations", bob, map[string]any{"post_id": post})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(t, http.MethodPost, "/reservations", bob, map[string]any{"post_id": 999})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, http.MethodGet, "/reservations/me", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, rec)["total"])

	rec = a.do(t, http.MethodGet, fmt.Sprintf("/reservations/post/%d", post), owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = a.do(t, http.MethodGet, fmt.Sprintf("/reservations/post/%d", post), bob, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = a.do(t, http.MethodGet, fmt.Sprintf("/reservations/client/%d", ownerID), bob, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, http.MethodPatch, "/reservations", alice, map[string]any{"id": resID, "reservation_status": "withdrawal"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = a.do(t, http.MethodPatch, "/reservations", alice, map[string]any{"id": resID, "reservation_date": "2001-01-01T00:00:00Z"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = a.do(t, http.MethodPatch, "/reservations", alice, map[string]any{"id": resID, "reservation_status": "Cancelled"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "cancelled", decode[map[string]any](t, rec)["reservation_status"])

	rec = a.do(t, http.MethodGet, fmt.Sprintf("/posts/%d", post), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, rec)["places_remaining"])

	rec = a.do(t, http.MethodGet, "/reservations?status=cancelled", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, rec)["total"])
	rec = a.do(t, http.MethodGet, "/reservations", alice, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, http.MethodDelete, fmt.Sprintf("/reservations/%d", resID), bob, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = a.do(t, http.MethodDelete, fmt.Sprintf("/reservations/%d", resID), owner, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = a.do(t, http.MethodGet, "/stats", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, rec)["total_posts"])
}

func TestPostBrowsing(t *testing.T) {
	a := newApp(t)
	admin := a.admin(t)
	books := a.category(t, admin, "books")
	toys := a.category(t, admin, "toys")
	_, owner := a.signup(t, "owner")
	for i := 0; i < 12; i++ {
		a.post(t, owner, 1, books)
	}
	mixed := a.post(t, owner, 2, books, toys)

	rec := a.do(t, http.MethodGet, "/posts?limit=5&page=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[struct {
		Rows  []idBody `json:"rows"`
		Total int      `json:"total"`
		Page  int      `json:"page"`
		Limit int      `json:"limit"`
	}](t, rec)
	assert.Equal(t, 13, page.Total)
	assert.Len(t, page.Rows, 5)
	assert.Equal(t, mixed, page.Rows[0].ID)
	assert.Equal(t, 5, page.Limit)

	rec = a.do(t, http.MethodGet, fmt.Sprintf("/posts/byCategory?category_id=%d", toys), "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, decode[map[string]any](t, rec)["total"])

	rec = a.do(t, http.MethodGet, "/posts?city=PAR&username=own", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 13, decode[map[string]any](t, rec)["total"])

	rec = a.do(t, http.MethodGet, "/posts/me", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 13, decode[map[string]any](t, rec)["total"])

	rec = a.do(t, http.MethodGet, "/productType", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 2)

	rec = a.do(t, http.MethodGet, "/getAllCities?q=par", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)

	_, stranger := a.signup(t, "stranger")
	rec = a.do(t, http.MethodPatch, fmt.Sprintf("/posts/%d", mixed), stranger, map[string]any{"title": "mine now"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = a.do(t, http.MethodPatch, fmt.Sprintf("/posts/%d", mixed), owner, map[string]any{"title": "two bikes"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "two bikes", decode[map[string]any](t, rec)["title"])

	rec = a.do(t, http.MethodDelete, fmt.Sprintf("/productType/%d", toys), owner, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = a.do(t, http.MethodDelete, fmt.Sprintf("/productType/%d", books), admin, nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "twelve posts are tagged books only")
	rec = a.do(t, http.MethodDelete, fmt.Sprintf("/productType/%d", toys), admin, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMultipartPostWithPhoto(t *testing.T) {
	a := newApp(t)
	admin := a.admin(t)
	cat := a.category(t, admin, "kitchen")
	_, owner := a.signup(t, "owner")

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range map[string]string{
		"title": "pans", "number_of_places": "2", "city": "Lyon", "postal_code": "69001",
		"categories": fmt.Sprint(cat),
	} {
		require.NoError(t, w.WriteField(k, v))
	}
	fw, err := w.CreateFormFile("photo", "pans.png")
	require.NoError(t, err)
	_, err = fw.Write(append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/posts", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+owner)
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decode[map[string]any](t, rec)
	photo, _ := body["photo"].(string)
	require.True(t, strings.HasPrefix(photo, handler.ImagesPrefix+"/"), photo)
	assert.True(t, strings.HasSuffix(photo, ".png"))

	rec = a.do(t, http.MethodGet, photo, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestComments(t *testing.T) {
	a := newApp(t)
	admin := a.admin(t)
	cat := a.category(t, admin, "garden")
	_, owner := a.signup(t, "owner")
	_, alice := a.signup(t, "alice")
	post := a.post(t, owner, 1, cat)

	rec := a.do(t, http.MethodPost, "/comments", alice, map[string]any{"post_id": post, "content": "is it still free?"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode[idBody](t, rec).ID

	rec = a.do(t, http.MethodGet, fmt.Sprintf("/comments?post_id=%d", post), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, rec)["total"])
	rec = a.do(t, http.MethodGet, "/comments", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPatch, fmt.Sprintf("/comments/%d", id), owner, map[string]any{"content": "edited"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = a.do(t, http.MethodPatch, fmt.Sprintf("/comments/%d", id), alice, map[string]any{"content": "edited"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "edited", decode[map[string]any](t, rec)["content"])

	rec = a.do(t, http.MethodDelete, fmt.Sprintf("/comments/%d", id), admin, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = a.do(t, http.MethodGet, fmt.Sprintf("/comments/%d", id), "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReservationNotifiesOwner(t *testing.T) {
	a := newApp(t)
	admin := a.admin(t)
	cat := a.category(t, admin, "toys")
	ownerID, owner := a.signup(t, "owner")
	_, alice := a.signup(t, "alice")
	post := a.post(t, owner, 1, cat)

	conn := &sink{ch: make(chan []byte, 4)}
	a.hub.Register(ownerID, conn)

	rec := a.do(t, http.MethodPost, "/reservations", alice, map[string]any{"post_id": post})
	require.Equal(t, http.StatusCreated, rec.Code)

	select {
	case b := <-conn.ch:
		var msg struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(b, &msg))
		assert.Equal(t, queue.ReservationCreated, msg.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("owner was not notified")
	}
}

type sink struct{ ch chan []byte }

func (s *sink) Send(b []byte) bool {
	select {
	case s.ch <- b:
		return true
	default:
		return false
	}
}
