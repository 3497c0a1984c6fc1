package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/donation-market/internal/auth"
	"github.com/iliyamo/donation-market/internal/model"
	"github.com/iliyamo/donation-market/internal/policy"
	"github.com/iliyamo/donation-market/internal/repository"
	"github.com/iliyamo/donation-market/internal/utils"
)

// AuthSettings are the secrets and costs used to issue credentials.
type AuthSettings struct {
	JWTSecret  string
	TokenTTL   time.Duration
	Pepper     string
	BcryptCost int
}

// ClientService manages accounts and sign-in.
type ClientService struct {
	clients   *repository.ClientRepo
	addresses *repository.AddressRepo
	google    auth.GoogleVerifier
	settings  AuthSettings
}

// NewClientService builds the service.  google may be nil when Google
// sign-in is not configured.
func NewClientService(clients *repository.ClientRepo, addresses *repository.AddressRepo, google auth.GoogleVerifier, s AuthSettings) *ClientService {
	return &ClientService{clients: clients, addresses: addresses, google: google, settings: s}
}

// Session is what a successful sign-in returns.
type Session struct {
	Token   string        `json:"token"`
	Expires time.Time     `json:"expires"`
	Client  *model.Client `json:"user"`
}

// RegisterInput carries a new account.
type RegisterInput struct {
	Username     string
	Email        string
	Password     string
	Street       string
	StreetNumber string
	City         string
	PostalCode   string
	Photo        *string
	IsAdmin      bool
}

// ClientUpdate is a partial account update.
type ClientUpdate struct {
	Username     *string
	Email        *string
	Password     *string
	Street       *string
	StreetNumber *string
	City         *string
	PostalCode   *string
	Photo        *string
	IsAdmin      *bool
}

// Register creates an account.  IsAdmin is honoured only by trusted
// callers such as the operator CLI; handlers never set it.
func (s *ClientService) Register(ctx context.Context, in RegisterInput) (*model.Client, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" {
		return nil, invalid("username is required")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, invalid("email is not valid")
	}
	if len(in.Password) < 6 {
		return nil, invalid("password must be at least 6 characters")
	}
	hash, err := utils.HashPassword(in.Password, s.settings.Pepper, s.settings.BcryptCost)
	if err != nil {
		return nil, err
	}
	c := &model.Client{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Street:       in.Street,
		StreetNumber: in.StreetNumber,
		Photo:        in.Photo,
		IsAdmin:      in.IsAdmin,
	}
	if in.City != "" || in.PostalCode != "" {
		id, err := s.addresses.FindOrCreate(ctx, in.City, in.PostalCode)
		if err != nil {
			return nil, err
		}
		c.AddressID = &id
	}
	if err := s.clients.Create(ctx, c); err != nil {
		return nil, err
	}
	return s.clients.GetByID(ctx, c.ID)
}

// Login checks an email and password pair.
func (s *ClientService) Login(ctx context.Context, email, password string) (*Session, error) {
	c, err := s.clients.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !utils.VerifyPassword(c.PasswordHash, password, s.settings.Pepper) {
		return nil, ErrInvalidCredentials
	}
	return s.session(c)
}

// LoginWithGoogle signs in with a Google ID token, linking or creating the
// account on first use.
func (s *ClientService) LoginWithGoogle(ctx context.Context, idToken string) (*Session, error) {
	if s.google == nil {
		return nil, auth.ErrGoogleDisabled
	}
	id, err := s.google.Verify(ctx, idToken)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	c, err := s.clients.GetByGoogleID(ctx, id.Subject)
	if err == nil {
		return s.session(c)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if id.Email == "" || !id.EmailVerified {
		return nil, ErrInvalidCredentials
	}

	c, err = s.clients.GetByEmail(ctx, id.Email)
	switch {
	case err == nil:
		if err := s.clients.LinkGoogle(ctx, c.ID, id.Subject); err != nil {
			return nil, err
		}
	case errors.Is(err, repository.ErrNotFound):
		c, err = s.createGoogleClient(ctx, id)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}
	return s.session(c)
}

func (s *ClientService) createGoogleClient(ctx context.Context, id *auth.GoogleIdentity) (*model.Client, error) {
	// Google accounts get an unusable random password.
	hash, err := utils.HashPassword(uuid.NewString(), s.settings.Pepper, s.settings.BcryptCost)
	if err != nil {
		return nil, err
	}
	sub := id.Subject
	c := &model.Client{
		Username:     usernameFromEmail(id.Email),
		Email:        id.Email,
		PasswordHash: hash,
		GoogleID:     &sub,
	}
	if id.Picture != "" {
		pic := id.Picture
		c.Photo = &pic
	}
	err = s.clients.Create(ctx, c)
	if errors.Is(err, repository.ErrDuplicate) {
		c.Username += "-" + uuid.NewString()[:8]
		err = s.clients.Create(ctx, c)
	}
	if err != nil {
		return nil, err
	}
	return s.clients.GetByID(ctx, c.ID)
}

func usernameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	if local == "" {
		return "user"
	}
	return local
}

func (s *ClientService) session(c *model.Client) (*Session, error) {
	tok, err := utils.NewAccessToken(s.settings.JWTSecret, c.ID, c.Email, c.IsAdmin, s.settings.TokenTTL)
	if err != nil {
		return nil, err
	}
	return &Session{Token: tok.Token, Expires: tok.Exp, Client: c}, nil
}

// Get returns an account to its owner or an administrator.
func (s *ClientService) Get(ctx context.Context, actor policy.Actor, id uint64) (*model.Client, error) {
	if err := authorize(policy.SelfOrAdmin, actor, policy.Owned(id)); err != nil {
		return nil, err
	}
	return s.clients.GetByID(ctx, id)
}

// List searches accounts.  Callers restrict it to administrators.
func (s *ClientService) List(ctx context.Context, f repository.ClientFilter, pg repository.Page) (repository.Result[model.Client], error) {
	return s.clients.List(ctx, f, pg)
}

// Update edits an account.  Only administrators may change is_admin.
func (s *ClientService) Update(ctx context.Context, actor policy.Actor, id uint64, in ClientUpdate) (*model.Client, error) {
	if err := authorize(policy.SelfOrAdmin, actor, policy.Owned(id)); err != nil {
		return nil, err
	}
	if in.IsAdmin != nil {
		if err := authorize(policy.Admin, actor, policy.Resource{}); err != nil {
			return nil, err
		}
	}
	current, err := s.clients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	patch := repository.ClientPatch{
		Username:     in.Username,
		Email:        in.Email,
		Street:       in.Street,
		StreetNumber: in.StreetNumber,
		Photo:        in.Photo,
		IsAdmin:      in.IsAdmin,
	}
	if in.Username != nil && strings.TrimSpace(*in.Username) == "" {
		return nil, invalid("username cannot be empty")
	}
	if in.Email != nil {
		if _, err := mail.ParseAddress(*in.Email); err != nil {
			return nil, invalid("email is not valid")
		}
	}
	if in.Password != nil {
		if len(*in.Password) < 6 {
			return nil, invalid("password must be at least 6 characters")
		}
		hash, err := utils.HashPassword(*in.Password, s.settings.Pepper, s.settings.BcryptCost)
		if err != nil {
			return nil, err
		}
		patch.PasswordHash = &hash
	}
	if in.City != nil || in.PostalCode != nil {
		city, postal := deref(current.City), deref(current.PostalCode)
		if in.City != nil {
			city = *in.City
		}
		if in.PostalCode != nil {
			postal = *in.PostalCode
		}
		addressID, err := s.addresses.FindOrCreate(ctx, city, postal)
		if err != nil {
			return nil, err
		}
		patch.AddressID = &addressID
	}
	if err := s.clients.Update(ctx, id, patch); err != nil {
		return nil, err
	}
	return s.clients.GetByID(ctx, id)
}

// Delete removes an account and everything it owns.
func (s *ClientService) Delete(ctx context.Context, actor policy.Actor, id uint64) error {
	if err := authorize(policy.SelfOrAdmin, actor, policy.Owned(id)); err != nil {
		return err
	}
	return s.clients.Delete(ctx, id)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
