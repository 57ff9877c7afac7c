package memory

import (
	"testing"

	"code-quizzer/internal/domain"
)

func TestPlayerStoreLifecycle(t *testing.T) {
	store := NewPlayerStore()
	principal := domain.Principal{ID: "u1", Email: "ada@example.com"}

	player, created := store.GetOrCreate(principal)
	if player == nil || !created {
		t.Fatalf("expected new player")
	}
	again, created := store.GetOrCreate(principal)
	if created || again != player {
		t.Fatalf("expected existing player to be reused")
	}
	if _, ok := store.Get("u1"); !ok {
		t.Fatalf("expected player present")
	}

	if _, ok := store.Delete("u1"); !ok {
		t.Fatalf("expected delete to report the player")
	}
	if _, ok := store.Get("u1"); ok {
		t.Fatalf("expected player removed")
	}
	if _, ok := store.Delete("u1"); ok {
		t.Fatalf("expected second delete to find nothing")
	}
}
