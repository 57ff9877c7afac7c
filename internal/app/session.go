package app

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"code-quizzer/internal/domain"
	"github.com/google/uuid"
)

// State is the position of a quiz session in its lifecycle.
type State int

const (
	StateAnswering State = iota
	StateLocked
	StateCompleted
	StateQuit
)

func (s State) String() string {
	switch s {
	case StateAnswering:
		return "answering"
	case StateLocked:
		return "locked"
	case StateCompleted:
		return "completed"
	case StateQuit:
		return "quit"
	default:
		return "unknown"
	}
}

// Feedback is returned for every accepted submission.
type Feedback struct {
	Correct       bool   `json:"correct"`
	Awarded       int    `json:"awarded"`
	CorrectAnswer string `json:"correctAnswer"`
	Score         int    `json:"score"`
}

// Result is handed to the completion hook.
type Result struct {
	Topic     string                `json:"topic"`
	Score     int                   `json:"score"`
	MaxScore  int                   `json:"maxScore"`
	Correct   int                   `json:"correct"`
	Completed int                   `json:"completed"`
	Elapsed   int                   `json:"elapsed"`
	Time      string                `json:"time"`
	Answers   []domain.AnswerResult `json:"answers"`
}

// Snapshot describes a session in flight; it is also handed to the quit hook.
type Snapshot struct {
	ID        string                `json:"id"`
	Topic     string                `json:"topic"`
	State     string                `json:"state"`
	Index     int                   `json:"index"`
	Total     int                   `json:"total"`
	Score     int                   `json:"score"`
	Completed int                   `json:"completed"`
	Elapsed   int                   `json:"elapsed"`
	Answers   []domain.AnswerResult `json:"answers"`
}

// SessionHooks are invoked after the session lock is released, in the
// goroutine that caused the transition (the ticker goroutine for OnTick).
type SessionHooks struct {
	OnComplete func(Result)
	OnQuit     func(Snapshot)
	OnRetry    func()
	OnTick     func(elapsed int)
}

// TickerFunc starts a periodic ticker and returns its channel and stop function.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Session walks one topic's questions for one user.
type Session struct {
	id        string
	topic     domain.Topic
	hooks     SessionHooks
	newTicker TickerFunc

	mu       sync.Mutex
	state    State
	cursor   int
	score    int
	correct  int
	elapsed  int
	answers  []domain.AnswerResult
	stopTick func()
}

// NewSession creates a session resumed from the stored progress record.
func NewSession(topic domain.Topic, seed domain.TopicProgress, hooks SessionHooks) *Session {
	return NewSessionWithTicker(topic, seed, hooks, realTicker)
}

// NewSessionWithTicker allows deterministic elapsed time in tests.
func NewSessionWithTicker(topic domain.Topic, seed domain.TopicProgress, hooks SessionHooks, ticker TickerFunc) *Session {
	s := &Session{
		id:        uuid.NewString(),
		topic:     topic,
		hooks:     hooks,
		newTicker: ticker,
	}

	total := len(topic.Questions)
	cursor := seed.Completed
	if cursor < 0 {
		cursor = 0
	}
	if cursor > total {
		cursor = total
	}
	s.cursor = cursor
	s.score = max(seed.Score, 0)
	s.elapsed = max(seed.Elapsed, 0)
	s.answers = append([]domain.AnswerResult(nil), seed.AnswerResults...)
	for _, a := range s.answers {
		if a.IsCorrect {
			s.correct++
		}
	}

	if cursor >= total {
		s.state = StateCompleted
		return s
	}
	s.state = StateAnswering
	s.mu.Lock()
	s.startTickerLocked()
	s.mu.Unlock()
	return s
}

// ID identifies the session.
func (s *Session) ID() string { return s.id }

// Topic is the topic being played.
func (s *Session) Topic() domain.Topic { return s.topic }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ticking reports whether the elapsed-time ticker is running.
func (s *Session) Ticking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopTick != nil
}

// Question returns the question under the cursor while one is in play.
func (s *Session) Question() (domain.Question, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAnswering && s.state != StateLocked {
		return domain.Question{}, 0, false
	}
	return s.topic.Questions[s.cursor], s.cursor, true
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Submit answers the current question.
func (s *Session) Submit(option string) (Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateLocked:
		return Feedback{}, domain.ErrInputLocked
	case StateCompleted, StateQuit:
		return Feedback{}, domain.ErrQuizFinished
	}

	q := s.topic.Questions[s.cursor]
	correct := option == q.Correct
	awarded := 0
	if correct {
		awarded = q.Points()
		s.score += awarded
		s.correct++
	}
	s.answers = append(s.answers, domain.AnswerResult{
		Question:      q.Text,
		UserAnswer:    option,
		CorrectAnswer: q.Correct,
		IsCorrect:     correct,
	})
	s.state = StateLocked

	return Feedback{
		Correct:       correct,
		Awarded:       awarded,
		CorrectAnswer: q.Correct,
		Score:         s.score,
	}, nil
}

// Acknowledge dismisses the feedback and moves to the next question, or
// completes the session after the last one.
func (s *Session) Acknowledge() (State, error) {
	s.mu.Lock()
	switch s.state {
	case StateAnswering:
		s.mu.Unlock()
		return StateAnswering, domain.ErrNotLocked
	case StateCompleted, StateQuit:
		state := s.state
		s.mu.Unlock()
		return state, domain.ErrQuizFinished
	}

	if s.cursor+1 < len(s.topic.Questions) {
		s.cursor++
		s.state = StateAnswering
		s.mu.Unlock()
		return StateAnswering, nil
	}

	s.cursor = len(s.topic.Questions)
	s.state = StateCompleted
	s.stopTickerLocked()
	result := Result{
		Topic:     s.topic.Name,
		Score:     s.score,
		MaxScore:  s.topic.MaxScore(),
		Correct:   s.correct,
		Completed: s.cursor,
		Elapsed:   s.elapsed,
		Time:      FormatElapsed(s.elapsed),
		Answers:   append([]domain.AnswerResult(nil), s.answers...),
	}
	hook := s.hooks.OnComplete
	s.mu.Unlock()

	if hook != nil {
		hook(result)
	}
	return StateCompleted, nil
}

// Quit leaves the session. Partial progress is reported to the quit hook;
// quitting a completed session only closes it.
func (s *Session) Quit() error {
	s.mu.Lock()
	switch s.state {
	case StateQuit:
		s.mu.Unlock()
		return domain.ErrQuizFinished
	case StateCompleted:
		s.state = StateQuit
		s.mu.Unlock()
		return nil
	}

	locked := s.state == StateLocked
	s.stopTickerLocked()
	s.state = StateQuit
	snap := s.snapshotLocked()
	if locked {
		if s.cursor+1 < len(s.topic.Questions) {
			snap.Completed = s.cursor + 1
		} else {
			// The final answer only counts once acknowledged; resume re-asks it.
			last := snap.Answers[len(snap.Answers)-1]
			if last.IsCorrect {
				snap.Score -= s.topic.Questions[s.cursor].Points()
			}
			snap.Answers = snap.Answers[:len(snap.Answers)-1]
		}
	}
	hook := s.hooks.OnQuit
	s.mu.Unlock()

	if hook != nil {
		hook(snap)
	}
	return nil
}

// Retry restarts a completed session from the first question.
func (s *Session) Retry() error {
	s.mu.Lock()
	if s.state != StateCompleted {
		s.mu.Unlock()
		return domain.ErrNotCompleted
	}
	s.cursor = 0
	s.score = 0
	s.correct = 0
	s.elapsed = 0
	s.answers = nil
	s.state = StateAnswering
	s.startTickerLocked()
	hook := s.hooks.OnRetry
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

// Close stops the session without notifying any hook.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTickerLocked()
	s.state = StateQuit
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		ID:        s.id,
		Topic:     s.topic.Name,
		State:     s.state.String(),
		Index:     s.cursor,
		Total:     len(s.topic.Questions),
		Score:     s.score,
		Completed: s.cursor,
		Elapsed:   s.elapsed,
		Answers:   append([]domain.AnswerResult(nil), s.answers...),
	}
}

func (s *Session) startTickerLocked() {
	ch, stop := s.newTicker(time.Second)
	done := make(chan struct{})
	s.stopTick = func() {
		stop()
		close(done)
	}
	go s.tick(ch, done)
}

// stopTickerLocked is idempotent; the stop function runs at most once per ticker.
func (s *Session) stopTickerLocked() {
	if s.stopTick == nil {
		return
	}
	s.stopTick()
	s.stopTick = nil
}

func (s *Session) tick(ch <-chan time.Time, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			s.mu.Lock()
			select {
			case <-done:
				s.mu.Unlock()
				return
			default:
			}
			s.elapsed++
			elapsed := s.elapsed
			hook := s.hooks.OnTick
			s.mu.Unlock()
			if hook != nil {
				hook(elapsed)
			}
		}
	}
}

// FormatElapsed renders seconds as MM:SS.
func FormatElapsed(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// ParseElapsed reads an MM:SS string back into seconds.
func ParseElapsed(v string) (int, bool) {
	minutes, seconds, ok := strings.Cut(v, ":")
	if !ok {
		return 0, false
	}
	m, err := strconv.Atoi(minutes)
	if err != nil || m < 0 {
		return 0, false
	}
	sec, err := strconv.Atoi(seconds)
	if err != nil || sec < 0 || sec > 59 {
		return 0, false
	}
	return m*60 + sec, true
}
