package service_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	glog "github.com/labstack/gommon/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/donation-market/internal/auth"
	"github.com/iliyamo/donation-market/internal/database"
	"github.com/iliyamo/donation-market/internal/model"
	"github.com/iliyamo/donation-market/internal/policy"
	"github.com/iliyamo/donation-market/internal/queue"
	"github.com/iliyamo/donation-market/internal/repository"
	"github.com/iliyamo/donation-market/internal/service"
	"github.com/iliyamo/donation-market/internal/utils"
)

const testSecret = "service-test-secret"

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.ReservationEvent
}

func (r *recordingPublisher) Publish(_ context.Context, ev queue.ReservationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingPublisher) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

type fakeGoogle struct {
	id  *auth.GoogleIdentity
	err error
}

func (f fakeGoogle) Verify(context.Context, string) (*auth.GoogleIdentity, error) { return f.id, f.err }

type env struct {
	db           *sql.DB
	clients      *service.ClientService
	posts        *service.PostService
	reservations *service.ReservationService
	events       *recordingPublisher
	categories   *repository.CategoryRepo
}

func newEnv(t *testing.T, google auth.GoogleVerifier) *env {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, database.SQLite))

	d := repository.SQLite
	clientRepo := repository.NewClientRepo(db, d)
	addrRepo := repository.NewAddressRepo(db, d)
	catRepo := repository.NewCategoryRepo(db, d)
	postRepo := repository.NewPostRepo(db, d)
	events := &recordingPublisher{}
	return &env{
		db: db,
		clients: service.NewClientService(clientRepo, addrRepo, google, service.AuthSettings{
			JWTSecret:  testSecret,
			TokenTTL:   time.Hour,
			Pepper:     "pepper",
			BcryptCost: bcrypt.MinCost,
		}),
		posts:        service.NewPostService(postRepo, catRepo, addrRepo),
		reservations: service.NewReservationService(postRepo, clientRepo, repository.NewReservationRepo(db), events, glog.New("test")),
		events:       events,
		categories:   catRepo,
	}
}

func (e *env) user(t *testing.T, name string, admin bool) policy.Actor {
	t.Helper()
	c, err := e.clients.Register(context.Background(), service.RegisterInput{
		Username: name,
		Email:    name + "@example.com",
		Password: "secret123",
		IsAdmin:  admin,
	})
	require.NoError(t, err)
	return policy.Actor{ID: c.ID, Email: c.Email, IsAdmin: c.IsAdmin}
}

func (e *env) post(t *testing.T, owner policy.Actor, places int) *model.PostDetail {
	t.Helper()
	ctx := context.Background()
	cats, err := e.categories.List(ctx)
	require.NoError(t, err)
	var catID uint64
	if len(cats) == 0 {
		c, err := e.categories.Create(ctx, "furniture")
		require.NoError(t, err)
		catID = c.ID
	} else {
		catID = cats[0].ID
	}
	p, err := e.posts.Create(ctx, owner, service.PostInput{
		Title:          "sofa",
		Description:    "blue, slightly worn",
		NumberOfPlaces: places,
		City:           "Paris",
		PostalCode:     "75011",
		Categories:     []uint64{catID},
	})
	require.NoError(t, err)
	return p
}

func TestReservationRules(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	owner := e.user(t, "owner", false)
	alice := e.user(t, "alice", false)
	admin := e.user(t, "admin", true)
	p := e.post(t, owner, 2)

	_, err := e.reservations.Create(ctx, alice, 999, nil)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = e.reservations.Create(ctx, owner, p.ID, nil)
	assert.ErrorIs(t, err, service.ErrOwnPost)
	assert.ErrorIs(t, err, repository.ErrForbidden)

	other := owner.ID
	_, err = e.reservations.Create(ctx, alice, p.ID, &other)
	assert.ErrorIs(t, err, service.ErrReserveForOther)

	missing := uint64(999)
	_, err = e.reservations.Create(ctx, admin, p.ID, &missing)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	res, err := e.reservations.Create(ctx, alice, p.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationConfirmed, res.Status)
	assert.Equal(t, alice.ID, res.ClientID)

	_, err = e.reservations.Create(ctx, alice, p.ID, nil)
	assert.ErrorIs(t, err, service.ErrAlreadyReserved)

	unavailable := model.PostUnavailable
	_, err = e.posts.Update(ctx, owner, p.ID, service.PostUpdate{Status: &unavailable})
	require.NoError(t, err)
	bob := e.user(t, "bob", false)
	_, err = e.reservations.Create(ctx, bob, p.ID, nil)
	assert.ErrorIs(t, err, service.ErrPostUnavailable)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestAdminReservesForAnotherClient(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	owner := e.user(t, "owner", false)
	alice := e.user(t, "alice", false)
	admin := e.user(t, "admin", true)
	p := e.post(t, owner, 1)

	target := alice.ID
	res, err := e.reservations.Create(ctx, admin, p.ID, &target)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, res.ClientID)
}

// Capacity 1: A reserves, B is turned away, A's reservation is deleted and
// B gets the place.
func TestReservationCapacityScenario(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	owner := e.user(t, "owner", false)
	a := e.user(t, "a", false)
	b := e.user(t, "b", false)
	p := e.post(t, owner, 1)

	ra, err := e.reservations.Create(ctx, a, p.ID, nil)
	require.NoError(t, err)

	_, err = e.reservations.Create(ctx, b, p.ID, nil)
	assert.ErrorIs(t, err, service.ErrCapacityReached)
	assert.ErrorIs(t, err, repository.ErrConflict)

	d, err := e.posts.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, d.PlacesRemaining)

	require.NoError(t, e.reservations.Delete(ctx, a, ra.ID))

	_, err = e.reservations.Create(ctx, b, p.ID, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(e.events.kinds()) == 3 }, time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t,
		[]string{queue.ReservationCreated, queue.ReservationDeleted, queue.ReservationCreated},
		e.events.kinds())
}

func TestConcurrentReservationsRespectCapacity(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	owner := e.user(t, "owner", false)
	const places, clients = 3, 12
	p := e.post(t, owner, places)

	actors := make([]policy.Actor, clients)
	for i := range actors {
		actors[i] = e.user(t, "client"+string(rune('a'+i)), false)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, full int
	)
	for _, a := range actors {
		wg.Add(1)
		go func(a policy.Actor) {
			defer wg.Done()
			_, err := e.reservations.Create(ctx, a, p.ID, nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, service.ErrCapacityReached):
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(a)
	}
	wg.Wait()

	assert.Equal(t, places, ok)
	assert.Equal(t, clients-places, full)
	d, err := e.posts.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, d.PlacesRemaining)
}

func TestReservationUpdate(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	owner := e.user(t, "owner", false)
	a := e.user(t, "a", false)
	b := e.user(t, "b", false)
	admin := e.user(t, "admin", true)
	p := e.post(t, owner, 1)

	res, err := e.reservations.Create(ctx, a, p.ID, nil)
	require.NoError(t, err)

	_, err = e.reservations.Update(ctx, a, res.ID, service.ReservationUpdate{})
	assert.ErrorIs(t, err, repository.ErrNoChange)

	withdrawal := model.ReservationWithdrawal
	_, err = e.reservations.Update(ctx, a, res.ID, service.ReservationUpdate{Status: &withdrawal})
	assert.ErrorIs(t, err, service.ErrInvalidStatus)

	past := time.Now().Add(-48 * time.Hour)
	_, err = e.reservations.Update(ctx, a, res.ID, service.ReservationUpdate{Date: &past})
	assert.ErrorIs(t, err, service.ErrDateInPast)

	cancelled := model.ReservationCancelled
	_, err = e.reservations.Update(ctx, b, res.ID, service.ReservationUpdate{Status: &cancelled})
	assert.ErrorIs(t, err, repository.ErrForbidden)

	// the post owner does not control the client's reservation
	_, err = e.reservations.Update(ctx, owner, res.ID, service.ReservationUpdate{Status: &cancelled})
	assert.ErrorIs(t, err, repository.ErrForbidden)

	updated, err := e.reservations.Update(ctx, a, res.ID, service.ReservationUpdate{Status: &cancelled})
	require.NoError(t, err)
	assert.Equal(t, model.ReservationCancelled, updated.Status)

	// the freed place goes to b, so a cannot re-confirm
	_, err = e.reservations.Create(ctx, b, p.ID, nil)
	require.NoError(t, err)
	confirmed := model.ReservationConfirmed
	_, err = e.reservations.Update(ctx, admin, res.ID, service.ReservationUpdate{Status: &confirmed})
	assert.ErrorIs(t, err, service.ErrCapacityReached)

	future := time.Now().UTC().Add(72 * time.Hour).Truncate(time.Second)
	updated, err = e.reservations.Update(ctx, admin, res.ID, service.ReservationUpdate{Date: &future})
	require.NoError(t, err)
	assert.True(t, future.Equal(updated.Date), "got %s", updated.Date)
	assert.Equal(t, model.ReservationCancelled, updated.Status)
}

func TestReservationVisibility(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	owner := e.user(t, "owner", false)
	a := e.user(t, "a", false)
	stranger := e.user(t, "stranger", false)
	p := e.post(t, owner, 2)
	res, err := e.reservations.Create(ctx, a, p.ID, nil)
	require.NoError(t, err)

	_, err = e.reservations.Get(ctx, owner, res.ID)
	assert.NoError(t, err)
	_, err = e.reservations.Get(ctx, stranger, res.ID)
	assert.ErrorIs(t, err, repository.ErrForbidden)

	list, err := e.reservations.ListForPost(ctx, owner, p.ID, repository.ReservationFilter{}, repository.Page{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, list.Total)
	_, err = e.reservations.ListForPost(ctx, a, p.ID, repository.ReservationFilter{}, repository.Page{})
	assert.ErrorIs(t, err, repository.ErrForbidden)

	list, err = e.reservations.ListForClient(ctx, a, a.ID, repository.ReservationFilter{}, repository.Page{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, list.Total)
	_, err = e.reservations.ListForClient(ctx, stranger, a.ID, repository.ReservationFilter{}, repository.Page{})
	assert.ErrorIs(t, err, repository.ErrForbidden)

	assert.ErrorIs(t, e.reservations.Delete(ctx, stranger, res.ID), repository.ErrForbidden)
	assert.NoError(t, e.reservations.Delete(ctx, owner, res.ID))
}

func TestPostServiceValidation(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	owner := e.user(t, "owner", false)
	other := e.user(t, "other", false)

	_, err := e.posts.Create(ctx, policy.Actor{}, service.PostInput{Title: "x"})
	assert.ErrorIs(t, err, repository.ErrForbidden)

	_, err = e.posts.Create(ctx, owner, service.PostInput{Title: "x", NumberOfPlaces: 0})
	assert.ErrorIs(t, err, service.ErrInvalidInput)

	_, err = e.posts.Create(ctx, owner, service.PostInput{
		Title: "x", NumberOfPlaces: 1, City: "Paris", PostalCode: "75001", Categories: []uint64{77},
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	p := e.post(t, owner, 2)
	title := "armchair"
	_, err = e.posts.Update(ctx, other, p.ID, service.PostUpdate{Title: &title})
	assert.ErrorIs(t, err, repository.ErrForbidden)

	city := "Lyon"
	updated, err := e.posts.Update(ctx, owner, p.ID, service.PostUpdate{Title: &title, City: &city})
	require.NoError(t, err)
	assert.Equal(t, "armchair", updated.Title)
	assert.Equal(t, "LYON", updated.City)
	assert.Equal(t, "75011", updated.PostalCode)
	assert.Equal(t, p.Description, updated.Description)

	assert.ErrorIs(t, e.posts.Delete(ctx, other, p.ID), repository.ErrForbidden)
	require.NoError(t, e.posts.Delete(ctx, owner, p.ID))
	_, err = e.posts.Get(ctx, p.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRegisterAndLogin(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	e.user(t, "alice", false)

	_, err := e.clients.Register(ctx, service.RegisterInput{Username: "alice2", Email: "alice@example.com", Password: "secret123"})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
	_, err = e.clients.Register(ctx, service.RegisterInput{Username: "x", Email: "not-an-email", Password: "secret123"})
	assert.ErrorIs(t, err, service.ErrInvalidInput)

	sess, err := e.clients.Login(ctx, "ALICE@example.com", "secret123")
	require.NoError(t, err)
	claims, err := utils.ParseAccessToken(testSecret, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.Client.ID, claims.ID)
	assert.False(t, claims.IsAdmin)

	_, err = e.clients.Login(ctx, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, service.ErrInvalidCredentials)
	_, err = e.clients.Login(ctx, "nobody@example.com", "secret123")
	assert.ErrorIs(t, err, service.ErrInvalidCredentials)

	_, err = e.clients.LoginWithGoogle(ctx, "token")
	assert.ErrorIs(t, err, auth.ErrGoogleDisabled)
}

func TestLoginWithGoogle(t *testing.T) {
	google := fakeGoogle{id: &auth.GoogleIdentity{Subject: "g-1", Email: "alice@example.com", EmailVerified: true}}
	e := newEnv(t, google)
	ctx := context.Background()
	alice := e.user(t, "alice", false)

	// an existing account with the same email gets linked
	sess, err := e.clients.LoginWithGoogle(ctx, "token")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, sess.Client.ID)
	again, err := e.clients.LoginWithGoogle(ctx, "token")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, again.Client.ID)

	// a new email creates an account, suffixing a taken username
	e2 := newEnv(t, fakeGoogle{id: &auth.GoogleIdentity{Subject: "g-2", Email: "bob@gmail.com", EmailVerified: true}})
	e2.user(t, "bob", false)
	sess, err = e2.clients.LoginWithGoogle(ctx, "token")
	require.NoError(t, err)
	assert.Equal(t, "bob@gmail.com", sess.Client.Email)
	assert.NotEqual(t, "bob", sess.Client.Username)

	e3 := newEnv(t, fakeGoogle{err: errors.New("bad signature")})
	_, err = e3.clients.LoginWithGoogle(ctx, "token")
	assert.ErrorIs(t, err, service.ErrInvalidCredentials)
}

func TestClientUpdate(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	alice := e.user(t, "alice", false)
	bob := e.user(t, "bob", false)
	admin := e.user(t, "admin", true)

	street := "rue Oberkampf"
	_, err := e.clients.Update(ctx, bob, alice.ID, service.ClientUpdate{Street: &street})
	assert.ErrorIs(t, err, repository.ErrForbidden)

	yes := true
	_, err = e.clients.Update(ctx, alice, alice.ID, service.ClientUpdate{IsAdmin: &yes})
	assert.ErrorIs(t, err, repository.ErrForbidden)

	city, postal := "Paris", "75011"
	c, err := e.clients.Update(ctx, alice, alice.ID, service.ClientUpdate{Street: &street, City: &city, PostalCode: &postal})
	require.NoError(t, err)
	assert.Equal(t, street, c.Street)
	require.NotNil(t, c.City)
	assert.Equal(t, "PARIS", *c.City)
	assert.Equal(t, "alice", c.Username)

	c, err = e.clients.Update(ctx, admin, alice.ID, service.ClientUpdate{IsAdmin: &yes})
	require.NoError(t, err)
	assert.True(t, c.IsAdmin)

	require.NoError(t, e.clients.Delete(ctx, alice, alice.ID))
	_, err = e.clients.Get(ctx, admin, alice.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
