package memory

import (
	"sync"

	"code-quizzer/internal/app"
	"code-quizzer/internal/domain"
)

// PlayerStore is an in-memory implementation of app.PlayerRepository.
type PlayerStore struct {
	mu      sync.RWMutex
	players map[string]*app.Player
}

func NewPlayerStore() *PlayerStore {
	return &PlayerStore{
		players: make(map[string]*app.Player),
	}
}

func (s *PlayerStore) GetOrCreate(principal domain.Principal) (*app.Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
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
	return player, ok
}
