package redis

import (
	"context"
	"sync"
	"time"

	"code-quizzer/internal/app"
	"code-quizzer/internal/domain"
	"github.com/redis/go-redis/v9"
)

// PlayerStore is a Redis-aware implementation of app.PlayerRepository.
// Notes:
//   - Players (and their open quiz sessions) stay in a local map; a session
//     ticker cannot move between instances.
//   - Redis marks which users are signed in somewhere, with a TTL refreshed
//     on every sign-in, so other instances can see who is online.
type PlayerStore struct {
	client  *redis.Client
	ttl     time.Duration
	mu      sync.RWMutex
	players map[string]*app.Player
}

func NewPlayerStore(client *redis.Client, ttl time.Duration) *PlayerStore {
	return &PlayerStore{
		client:  client,
		ttl:     ttl,
		players: make(map[string]*app.Player),
	}
}

func (s *PlayerStore) GetOrCreate(principal domain.Principal) (*app.Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(principal.ID), principal.Name(), s.ttl).Err()
	if player, ok := s.players[principal.ID]; ok {
		return player, false
	}
	player := app.NewPlayer(principal)
	s.players[principal.ID] = player
	return player, true
}

func (s *PlayerStore) Get(userID string) (*app.Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	player, ok := s.players[userID]
	return player, ok
}

func (s *PlayerStore) Delete(userID string) (*app.Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	player, ok := s.players[userID]
	if ok {
		delete(s.players, userID)
	}
	_ = s.client.Del(context.Background(), s.key(userID)).Err()
	return player, ok
}

// Online reports whether the user is signed in on any instance.
func (s *PlayerStore) Online(ctx context.Context, userID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(userID)).Result()
	return n > 0, err
}

func (s *PlayerStore) key(userID string) string {
	return "quiz:player:" + userID
}
