package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"code-quizzer/internal/domain"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const GoogleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// ErrGoogleDisabled is returned when no OAuth client is configured.
var ErrGoogleDisabled = errors.New("google sign-in is not configured")

// NewGoogleConfig builds the OAuth2 client for Google sign-in.
func NewGoogleConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     google.Endpoint,
	}
}

type googleUser struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
}

// GoogleAuthURL is where the client is sent to start federated sign-in.
func (s *Service) GoogleAuthURL(state string) (string, error) {
	if s.google == nil {
		return "", ErrGoogleDisabled
	}
	return s.google.AuthCodeURL(state), nil
}

// SignInWithGoogle completes the authorization-code flow. The first sign-in
// with an email creates the account; later ones reuse its user id.
func (s *Service) SignInWithGoogle(ctx context.Context, code string) (Session, error) {
	const op = "google sign in"
	if s.google == nil {
		return Session{}, &domain.AuthError{Op: op, Err: ErrGoogleDisabled}
	}
	if code == "" {
		return Session{}, &domain.AuthError{Op: op, Err: domain.ErrProviderCancelled}
	}

	token, err := s.google.Exchange(ctx, code)
	if err != nil {
		return Session{}, &domain.AuthError{Op: op, Err: fmt.Errorf("exchange code: %w", err)}
	}
	info, err := s.userInfo(ctx, token)
	if err != nil {
		return Session{}, &domain.AuthError{Op: op, Err: err}
	}
	if !info.VerifiedEmail {
		return Session{}, &domain.AuthError{Op: op, Err: domain.ErrInvalidCredentials}
	}
	email, err := normalizeEmail(info.Email)
	if err != nil {
		return Session{}, &domain.AuthError{Op: op, Err: err}
	}

	acc, found, err := s.account(ctx, email)
	if err != nil {
		return Session{}, &domain.AuthError{Op: op, Err: err}
	}
	if !found {
		acc = Account{
			UserID:      uuid.NewString(),
			Email:       email,
			DisplayName: info.Name,
			Provider:    ProviderGoogle,
		}
		if err := s.saveAccount(ctx, acc); err != nil {
			return Session{}, &domain.AuthError{Op: op, Err: err}
		}
		log.Printf("[auth] created google account %s", acc.UserID)
	}
	return s.signedIn(op, acc)
}

func (s *Service) userInfo(ctx context.Context, token *oauth2.Token) (googleUser, error) {
	client := s.google.Client(ctx, token)
	resp, err := client.Get(s.userInfoURL)
	if err != nil {
		return googleUser{}, fmt.Errorf("get user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return googleUser{}, fmt.Errorf("userinfo request failed with status: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return googleUser{}, fmt.Errorf("read user info: %w", err)
	}
	var info googleUser
	if err := json.Unmarshal(body, &info); err != nil {
		return googleUser{}, fmt.Errorf("parse user info: %w", err)
	}
	return info, nil
}
