package app

import (
	"sync"

	"code-quizzer/internal/domain"
)

// Player is the per-user context that lives between a sign-in and a
// sign-out. Every QuizService operation on a player holds its lock, which
// serialises that user's store calls.
type Player struct {
	id string

	mu           sync.Mutex
	principal    domain.Principal
	bank         domain.Bank
	progress     domain.ProgressMap
	scores       []domain.HighScore
	profile      domain.Profile
	achievements domain.AchievementState
	session      *Session
	pending      *attempt
	closed       bool
}

// attempt is the outcome of a session transition waiting to be persisted.
type attempt struct {
	topic    string
	progress domain.TopicProgress
	result   *Result
	retried  bool
}

// NewPlayer is exported for the player repositories.
func NewPlayer(principal domain.Principal) *Player {
	return &Player{
		id:           principal.ID,
		principal:    principal,
		progress:     domain.ProgressMap{},
		achievements: domain.AchievementState{},
	}
}

// ID is the user id.
func (p *Player) ID() string { return p.id }

// Close stops the active session without persisting anything.
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session != nil {
		p.session.Close()
		p.session = nil
	}
	p.pending = nil
	p.closed = true
}

func (p *Player) displayName() string {
	if p.profile.DisplayName != "" {
		return p.profile.DisplayName
	}
	return p.principal.Name()
}
