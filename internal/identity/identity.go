// Package identity signs users in and out and reports who is signed in.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"sync"
	"time"

	"code-quizzer/internal/domain"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
)

const (
	ProviderPassword = "password"
	ProviderGoogle   = "google"

	minPasswordLength = 6
	accountsPrefix    = "accounts/"
)

// Documents is the part of the document store accounts are kept in.
type Documents interface {
	Get(ctx context.Context, path string) (domain.Fields, bool, error)
	Set(ctx context.Context, path string, fields domain.Fields, merge bool) error
}

// Account is the stored identity record of a user.
type Account struct {
	UserID       string
	Email        string
	DisplayName  string
	PasswordHash string
	Provider     string
}

func (a Account) principal() domain.Principal {
	return domain.Principal{ID: a.UserID, DisplayName: a.DisplayName, Email: a.Email}
}

// Session is a signed-in principal and the bearer token that proves it.
type Session struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expiresAt"`
	Principal domain.Principal `json:"user"`
}

type Config struct {
	Secret   []byte
	TokenTTL time.Duration
	// Google is nil when federated sign-in is not configured.
	Google      *oauth2.Config
	UserInfoURL string
	Clock       func() time.Time
}

// Service is the identity provider: password and Google sign-in, JWT
// session tokens and a stream of principal changes.
type Service struct {
	docs        Documents
	tokens      *tokens
	google      *oauth2.Config
	userInfoURL string
	clock       func() time.Time
	changes     *changes

	mu      sync.Mutex
	revoked map[string]time.Time
}

func NewService(docs Documents, cfg Config) *Service {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 72 * time.Hour
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = GoogleUserInfoURL
	}
	return &Service{
		docs:        docs,
		tokens:      &tokens{secret: cfg.Secret, ttl: cfg.TokenTTL, clock: cfg.Clock},
		google:      cfg.Google,
		userInfoURL: cfg.UserInfoURL,
		clock:       cfg.Clock,
		changes:     newChanges(32),
		revoked:     make(map[string]time.Time),
	}
}

// Changes streams sign-ins and sign-outs.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *Service) Changes() (<-chan domain.AuthChange, func()) {
	return s.changes.subscribe()
}

// SignUp creates a password account and signs it in.
func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (Session, error) {
	const op = "sign up"
	email, err := normalizeEmail(email)
	if err != nil {
		return Session{}, &domain.AuthError{Op: op, Err: err}
	}
	if len(password) < minPasswordLength {
		return Session{}, &domain.AuthError{Op: op, Err: domain.ErrWeakPassword}
	}

	_, found, err := s.account(ctx, email)
	if err != nil {
		return Session{}, &domain.AuthError{Op: op, Err: err}
	}
	if found {
		return Session{}, &domain.AuthError{Op: op, Err: domain.ErrEmailTaken}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Session{}, &domain.AuthError{Op: op, Err: fmt.Errorf("hash password: %w", err)}
	}
	acc := Account{
		UserID:       uuid.NewString(),
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: string(hash),
		Provider:     ProviderPassword,
	}
	if err := s.saveAccount(ctx, acc); err != nil {
		return Session{}, &domain.AuthError{Op: op, Err: err}
	}
	log.Printf("[auth] created account %s", acc.UserID)
	return s.signedIn(op, acc)
}

// SignIn checks an email and password pair.
func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	const op = "sign in"
	email, err := normalizeEmail(email)
	if err != nil {
		return Session{}, &domain.AuthError{Op: op, Err: domain.ErrInvalidCredentials}
	}
	acc, found, err := s.account(ctx, email)
	if err != nil {
		return Session{}, &domain.AuthError{Op: op, Err: err}
	}
	if !found || acc.PasswordHash == "" {
		return Session{}, &domain.AuthError{Op: op, Err: domain.ErrInvalidCredentials}
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return Session{}, &domain.AuthError{Op: op, Err: domain.ErrInvalidCredentials}
	}
	return s.signedIn(op, acc)
}

// SignOut revokes the token and reports the user as signed out.
func (s *Service) SignOut(token string) error {
	c, err := s.tokens.parse(token)
	if err != nil {
		return &domain.AuthError{Op: "sign out", Err: domain.ErrInvalidToken}
	}

	now := s.clock()
	s.mu.Lock()
	for id, exp := range s.revoked {
		if now.After(exp) {
			delete(s.revoked, id)
		}
	}
	s.revoked[c.ID] = c.ExpiresAt.Time
	s.mu.Unlock()

	log.Printf("[auth] %s signed out", c.Subject)
	s.changes.publish(domain.AuthChange{UserID: c.Subject})
	return nil
}

// Verify returns the principal a token was issued to.
func (s *Service) Verify(token string) (domain.Principal, error) {
	c, err := s.tokens.parse(token)
	if err != nil {
		return domain.Principal{}, &domain.AuthError{Op: "verify", Err: domain.ErrInvalidToken}
	}
	s.mu.Lock()
	_, revoked := s.revoked[c.ID]
	s.mu.Unlock()
	if revoked {
		return domain.Principal{}, &domain.AuthError{Op: "verify", Err: domain.ErrInvalidToken}
	}
	return c.principal(), nil
}

func (s *Service) signedIn(op string, acc Account) (Session, error) {
	principal := acc.principal()
	token, exp, err := s.tokens.issue(principal)
	if err != nil {
		return Session{}, &domain.AuthError{Op: op, Err: fmt.Errorf("sign token: %w", err)}
	}
	s.changes.publish(domain.AuthChange{UserID: principal.ID, Principal: &principal})
	return Session{Token: token, ExpiresAt: exp, Principal: principal}, nil
}

func (s *Service) account(ctx context.Context, email string) (Account, bool, error) {
	fields, found, err := s.docs.Get(ctx, accountsPrefix+email)
	if err != nil || !found {
		return Account{}, false, err
	}
	str := func(key string) string {
		v, _ := fields[key].(string)
		return v
	}
	acc := Account{
		UserID:       str("uid"),
		Email:        str("email"),
		DisplayName:  str("displayName"),
		PasswordHash: str("passwordHash"),
		Provider:     str("provider"),
	}
	if acc.UserID == "" {
		log.Printf("[auth] %v", &domain.ValidationError{Path: accountsPrefix + email, Field: "uid", Reason: "is missing"})
		return Account{}, false, nil
	}
	return acc, true, nil
}

func (s *Service) saveAccount(ctx context.Context, acc Account) error {
	return s.docs.Set(ctx, accountsPrefix+acc.Email, domain.Fields{
		"uid":          acc.UserID,
		"email":        acc.Email,
		"displayName":  acc.DisplayName,
		"passwordHash": acc.PasswordHash,
		"provider":     acc.Provider,
	}, false)
}

var errInvalidEmail = errors.New("invalid email address")

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || strings.Contains(email, "/") {
		return "", errInvalidEmail
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", errInvalidEmail
	}
	return email, nil
}
