package http

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"code-quizzer/internal/app"
	"code-quizzer/internal/domain"
	"code-quizzer/internal/identity"
	"code-quizzer/internal/infra/memory"
)

func stoppedTicker(time.Duration) (<-chan time.Time, func()) {
	return nil, func() {}
}

func sampleBank() domain.Bank {
	return domain.Bank{Topics: []domain.Topic{{
		Name: "basics",
		Questions: []domain.Question{
			{Text: "What is 2 + 2?", Options: []string{"3", "4", "5"}, Correct: "4", Difficulty: 5},
			{Text: "Which keyword declares a constant?", Options: []string{"var", "const"}, Correct: "const", Difficulty: 15},
		},
	}}}
}

type harness struct {
	server   *httptest.Server
	service  *app.QuizService
	identity *identity.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	docs := memory.NewDocumentStore()
	store := app.NewStore(docs)
	service := app.NewQuizService(
		store,
		memory.NewBankRepository(memory.NewStaticBankLoader(sampleBank()), time.Minute),
		memory.NewPlayerStore(),
		app.Options{Location: time.UTC, Ticker: stoppedTicker},
	)
	id := identity.NewService(docs, identity.Config{Secret: []byte("test-secret")})
	api := NewAPI(service, id, APIOptions{Health: store})

	h := &harness{server: httptest.NewServer(api.Handler()), service: service, identity: id}
	t.Cleanup(h.server.Close)
	return h
}

func (h *harness) signUp(t *testing.T, email string) identity.Session {
	t.Helper()
	session, err := h.identity.SignUp(context.Background(), email, "secret1", "Ada")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	return session
}
