package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"code-quizzer/internal/app"
	"code-quizzer/internal/domain"
	"code-quizzer/internal/identity"
)

func do(t *testing.T, h *harness, method, path, token string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, h.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestAuthProfileAndSignOut(t *testing.T) {
	h := newHarness(t)

	var session identity.Session
	status := do(t, h, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": "ada@example.com", "password": "secret1", "displayName": "Ada",
	}, &session)
	if status != http.StatusCreated || session.Token == "" {
		t.Fatalf("sign up: status %d, session %+v", status, session)
	}

	if status := do(t, h, http.MethodGet, "/api/topics", "", nil, nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", status)
	}

	var topics []app.TopicOverview
	if status := do(t, h, http.MethodGet, "/api/topics", session.Token, nil, &topics); status != http.StatusOK {
		t.Fatalf("topics: status %d", status)
	}
	if len(topics) != 1 || topics[0].Name != "basics" || topics[0].Total != 2 {
		t.Fatalf("unexpected topics %+v", topics)
	}

	var profile app.ProfileView
	status = do(t, h, http.MethodPut, "/api/profile", session.Token, map[string]string{"displayName": "Countess", "bio": " Analyst "}, &profile)
	if status != http.StatusOK || profile.DisplayName != "Countess" || profile.Bio != "Analyst" || profile.Streak != 1 {
		t.Fatalf("update profile: status %d, profile %+v", status, profile)
	}

	var achievements []app.AchievementView
	if status := do(t, h, http.MethodGet, "/api/achievements", session.Token, nil, &achievements); status != http.StatusOK || len(achievements) != len(app.Catalog) {
		t.Fatalf("achievements: status %d, %d entries", status, len(achievements))
	}

	var rows []domain.LeaderboardRow
	if status := do(t, h, http.MethodGet, "/api/leaderboard", session.Token, nil, &rows); status != http.StatusOK {
		t.Fatalf("leaderboard: status %d", status)
	}

	if status := do(t, h, http.MethodPost, "/api/progress/reset", session.Token, nil, nil); status != http.StatusNoContent {
		t.Fatalf("reset: status %d", status)
	}

	if status := do(t, h, http.MethodPost, "/api/auth/signout", session.Token, nil, nil); status != http.StatusNoContent {
		t.Fatalf("sign out: status %d", status)
	}
	if status := do(t, h, http.MethodGet, "/api/topics", session.Token, nil, nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 after sign out, got %d", status)
	}
}

func TestSignInErrors(t *testing.T) {
	h := newHarness(t)
	h.signUp(t, "ada@example.com")

	var payload errorPayload
	status := do(t, h, http.MethodPost, "/api/auth/signup", "", map[string]string{"email": "ada@example.com", "password": "secret1"}, &payload)
	if status != http.StatusConflict || payload.Message != domain.ErrEmailTaken.Error() {
		t.Fatalf("duplicate sign up: status %d, %+v", status, payload)
	}

	status = do(t, h, http.MethodPost, "/api/auth/signin", "", map[string]string{"email": "ada@example.com", "password": "nope"}, &payload)
	if status != http.StatusUnauthorized || payload.Message != domain.ErrInvalidCredentials.Error() {
		t.Fatalf("bad password: status %d, %+v", status, payload)
	}

	if status := do(t, h, http.MethodGet, "/api/auth/google", "", nil, nil); status != http.StatusNotFound {
		t.Fatalf("google without config: status %d", status)
	}
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	var body map[string]string
	if status := do(t, h, http.MethodGet, "/healthz", "", nil, &body); status != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("healthz: status %d, %v", status, body)
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&domain.AuthError{Op: "sign in", Err: domain.ErrInvalidCredentials}, http.StatusUnauthorized},
		{&domain.AuthError{Op: "sign up", Err: domain.ErrEmailTaken}, http.StatusConflict},
		{&domain.AuthError{Op: "sign up", Err: domain.ErrWeakPassword}, http.StatusBadRequest},
		{&domain.StoreError{Op: "get", Path: "users/u1", Err: errors.New("down")}, http.StatusServiceUnavailable},
		{domain.ErrTopicNotFound, http.StatusNotFound},
		{domain.ErrInputLocked, http.StatusConflict},
		{domain.ErrPlayerNotFound, http.StatusUnauthorized},
		{fmt.Errorf("load bank: %w", errors.New("boom")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusOf(tt.err); got != tt.want {
			t.Errorf("statusOf(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
