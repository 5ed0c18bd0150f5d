package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-forms-backend/internal/auth"
	"github.com/tbourn/go-forms-backend/internal/domain"
	"github.com/tbourn/go-forms-backend/internal/repo"
)

// minPasswordRunes is the shortest accepted password.
const minPasswordRunes = 8

// UserInput describes a new back-office account.
type UserInput struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
	Role      string
	Password  string
}

// Session is the result of a successful login.
type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *domain.User `json:"user"`
}

// UserService manages back-office accounts and logins.
type UserService struct {
	DB     *gorm.DB
	Issuer *auth.Issuer
}

// Create validates in and stores a new account with a hashed password.
func (s *UserService) Create(ctx context.Context, in UserInput) (*domain.User, error) {
	u := &domain.User{
		Username:  strings.ToLower(strings.TrimSpace(in.Username)),
		Email:     strings.ToLower(strings.TrimSpace(in.Email)),
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Role:      strings.TrimSpace(in.Role),
	}
	if u.Role == "" {
		u.Role = domain.RoleEditor
	}

	var msgs []string
	if u.Username == "" {
		msgs = append(msgs, "Le nom d'utilisateur est requis")
	}
	if !strings.Contains(u.Email, "@") {
		msgs = append(msgs, "L'adresse e-mail est invalide")
	}
	if u.Role != domain.RoleAdmin && u.Role != domain.RoleEditor {
		msgs = append(msgs, "Le rôle est invalide")
	}
	if len([]rune(in.Password)) < minPasswordRunes {
		msgs = append(msgs, "Le mot de passe doit contenir au moins 8 caractères")
	}
	if err := invalid(msgs...); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	u.PasswordHash = hash
	if err := repo.CreateUser(ctx, s.DB, u); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	return u, nil
}

// List returns every account.
func (s *UserService) List(ctx context.Context) ([]domain.User, error) {
	return repo.ListUsers(ctx, s.DB)
}

// Get returns one account.
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	u, err := repo.GetUser(ctx, s.DB, id)
	if err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}
	return u, nil
}

// Login checks credentials and issues a token. Unknown users and wrong
// passwords both yield ErrInvalidCredentials.
func (s *UserService) Login(ctx context.Context, username, password string) (*Session, error) {
	u, err := repo.GetUserByUsername(ctx, s.DB, strings.ToLower(strings.TrimSpace(username)))
	if err != nil {
		if isNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	tok, exp, err := s.Issuer.Issue(u.ID, u.Username, u.Role)
	if err != nil {
		return nil, err
	}
	return &Session{Token: tok, ExpiresAt: exp, User: u}, nil
}

// Bootstrap creates the first admin account when no account exists yet.
// It does nothing when username or password is empty.
func (s *UserService) Bootstrap(ctx context.Context, username, password string) (*domain.User, error) {
	if username == "" || password == "" {
		return nil, nil
	}
	n, err := repo.CountUsers(ctx, s.DB)
	if err != nil || n > 0 {
		return nil, err
	}
	u, err := s.Create(ctx, UserInput{
		Username: username,
		Email:    username + "@localhost",
		Role:     domain.RoleAdmin,
		Password: password,
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("username", u.Username).Msg("bootstrap admin created")
	return u, nil
}
