package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"code-quizzer/internal/domain"
)

// PlayerRepository abstracts where signed-in players are kept (in-memory, Redis, etc).
type PlayerRepository interface {
	GetOrCreate(principal domain.Principal) (*Player, bool)
	Get(userID string) (*Player, bool)
	Delete(userID string) (*Player, bool)
}

// BankRepository loads the question bank (from cache/backing store).
type BankRepository interface {
	GetBank(ctx context.Context) (domain.Bank, error)
}

// EventPublisher emits domain events once the records they describe are stored.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// Recorder counts quiz activity.
type Recorder interface {
	QuizCompleted(topic string)
	QuizQuit(topic string)
	QuizRetried(topic string)
	AchievementUnlocked(name string)
	Login(change string)
	StoreError(op string)
}

type nopRecorder struct{}

func (nopRecorder) QuizCompleted(string)       {}
func (nopRecorder) QuizQuit(string)            {}
func (nopRecorder) QuizRetried(string)         {}
func (nopRecorder) AchievementUnlocked(string) {}
func (nopRecorder) Login(string)               {}
func (nopRecorder) StoreError(string)          {}

// Tick is pushed once per second while a quiz is running.
type Tick struct {
	Topic   string `json:"topic"`
	Elapsed int    `json:"elapsed"`
	Time    string `json:"time"`
}

// Options carries the optional collaborators of a QuizService.
type Options struct {
	Events                 EventPublisher
	Metrics                Recorder
	Location               *time.Location
	Clock                  func() time.Time
	Ticker                 TickerFunc
	Catalog                []Achievement
	LeaderboardParallelism int
}

// QuizService contains the quiz use cases for signed-in players.
type QuizService struct {
	store       *Store
	bank        BankRepository
	players     PlayerRepository
	leaderboard *LeaderboardService
	notices     *Hub[Notice]
	ticks       *Hub[Tick]
	events      EventPublisher
	metrics     Recorder
	catalog     []Achievement
	location    *time.Location
	clock       func() time.Time
	ticker      TickerFunc
}

func NewQuizService(store *Store, bank BankRepository, players PlayerRepository, opts Options) *QuizService {
	s := &QuizService{
		store:    store,
		bank:     bank,
		players:  players,
		notices:  NewHub[Notice](16),
		ticks:    NewHub[Tick](4),
		events:   opts.Events,
		metrics:  opts.Metrics,
		catalog:  opts.Catalog,
		location: opts.Location,
		clock:    opts.Clock,
		ticker:   opts.Ticker,
	}
	if s.metrics == nil {
		s.metrics = nopRecorder{}
	}
	if s.catalog == nil {
		s.catalog = Catalog
	}
	if s.location == nil {
		s.location = time.Local
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.ticker == nil {
		s.ticker = realTicker
	}
	s.leaderboard = NewLeaderboardService(store, len(s.catalog), opts.LeaderboardParallelism)
	return s
}

// QuestionView is the question under the cursor, without its answer.
type QuestionView struct {
	Index      int      `json:"index"`
	Total      int      `json:"total"`
	Text       string   `json:"question"`
	Options    []string `json:"options"`
	Difficulty int      `json:"difficulty"`
	Points     int      `json:"points"`
}

// Summary is shown once a topic is completed.
type Summary struct {
	Topic            string                `json:"topic"`
	Score            int                   `json:"score"`
	MaxScore         int                   `json:"maxScore"`
	Correct          int                   `json:"correct"`
	Total            int                   `json:"total"`
	Time             string                `json:"time"`
	CorrectAnswers   []domain.AnswerResult `json:"correctAnswers"`
	IncorrectAnswers []domain.AnswerResult `json:"incorrectAnswers"`
	Resources        []domain.Resource     `json:"resources"`
}

// QuizView is what a client needs to render the active quiz.
type QuizView struct {
	Session  Snapshot      `json:"session"`
	Question *QuestionView `json:"question,omitempty"`
	Summary  *Summary      `json:"summary,omitempty"`
}

// TopicOverview is one entry of the topic list.
type TopicOverview struct {
	Name      string `json:"name"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Percent   int    `json:"percent"`
	Score     int    `json:"score"`
	Time      string `json:"time,omitempty"`
	Done      bool   `json:"done"`
}

// ProfileView is the profile page of a user.
type ProfileView struct {
	UserID       string `json:"userId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	Bio          string `json:"bio"`
	LastLogin    string `json:"lastLogin"`
	Streak       int    `json:"streak"`
	LoginDays    int    `json:"loginDays"`
	TotalScore   int    `json:"totalScore"`
	Achievements int    `json:"achievements"`
}

// Notices returns the notice stream of a user.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *QuizService) Notices(userID string) (<-chan Notice, func()) {
	return s.notices.Subscribe(userID)
}

// Ticks returns the elapsed-time stream of a user's active quiz.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *QuizService) Ticks(userID string) (<-chan Tick, func()) {
	return s.ticks.Subscribe(userID)
}

// Watch follows the identity stream until ctx is done or the stream closes.
func (s *QuizService) Watch(ctx context.Context, changes <-chan domain.AuthChange) {
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			if change.Principal == nil {
				s.SignedOut(change.UserID)
				continue
			}
			if err := s.SignedIn(ctx, *change.Principal); err != nil {
				log.Printf("[quiz] sign-in of %s: %v", change.UserID, err)
			}
		}
	}
}

// SignedIn creates or refreshes the player, loads its records, records the
// login for the streak and evaluates achievements, in that order.
func (s *QuizService) SignedIn(ctx context.Context, principal domain.Principal) error {
	bank, err := s.bank.GetBank(ctx)
	if err != nil {
		return fmt.Errorf("load bank: %w", err)
	}

	p, _ := s.players.GetOrCreate(principal)
	p.mu.Lock()
	defer p.mu.Unlock()

	p.principal = principal
	p.bank = bank
	p.closed = false
	s.reload(ctx, p)
	s.recordLogin(ctx, p)
	s.evaluate(ctx, p)
	return nil
}

// Ensure signs the principal in unless a player already exists for it.
func (s *QuizService) Ensure(ctx context.Context, principal domain.Principal) error {
	if _, ok := s.players.Get(principal.ID); ok {
		return nil
	}
	return s.SignedIn(ctx, principal)
}

// SignedOut tears the player down; an active quiz is stopped without saving.
func (s *QuizService) SignedOut(userID string) {
	if p, ok := s.players.Delete(userID); ok {
		p.Close()
	}
}

// Topics lists every topic with the user's progress.
func (s *QuizService) Topics(_ context.Context, userID string) ([]TopicOverview, error) {
	p, err := s.player(userID)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]TopicOverview, 0, len(p.bank.Topics))
	for _, t := range p.bank.Topics {
		tp := p.progress[t.Name]
		total := len(t.Questions)
		completed := min(max(tp.Completed, 0), total)
		overview := TopicOverview{
			Name:      t.Name,
			Completed: completed,
			Total:     total,
			Score:     tp.Score,
			Done:      total > 0 && completed == total,
		}
		if total > 0 {
			overview.Percent = completed * 100 / total
		}
		if tp.Time != nil {
			overview.Time = *tp.Time
		}
		out = append(out, overview)
	}
	return out, nil
}

// Progress returns a copy of the user's progress map.
func (s *QuizService) Progress(_ context.Context, userID string) (domain.ProgressMap, error) {
	p, err := s.player(userID)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress.Clone(), nil
}

// StartQuiz opens a session on topic, resumed from the stored progress.
// A session already open for another topic is quit first.
func (s *QuizService) StartQuiz(ctx context.Context, userID, topicName string) (QuizView, error) {
	p, err := s.player(userID)
	if err != nil {
		return QuizView{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	topic, ok := p.bank.Topic(topicName)
	if !ok {
		return QuizView{}, domain.ErrTopicNotFound
	}
	if p.session != nil {
		s.quitLocked(ctx, p)
	}
	p.session = NewSessionWithTicker(topic, p.progress[topic.Name], s.hooks(p, topic), s.ticker)
	return s.view(p.session), nil
}

// Current returns the active quiz.
func (s *QuizService) Current(_ context.Context, userID string) (QuizView, error) {
	p, err := s.player(userID)
	if err != nil {
		return QuizView{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return QuizView{}, domain.ErrNoActiveQuiz
	}
	return s.view(p.session), nil
}

// Submit answers the current question of the active quiz.
func (s *QuizService) Submit(_ context.Context, userID, option string) (Feedback, error) {
	p, err := s.player(userID)
	if err != nil {
		return Feedback{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return Feedback{}, domain.ErrNoActiveQuiz
	}
	return p.session.Submit(option)
}

// Acknowledge moves past the feedback. After the last question the attempt
// is persisted and the view carries the summary.
func (s *QuizService) Acknowledge(ctx context.Context, userID string) (QuizView, error) {
	p, err := s.player(userID)
	if err != nil {
		return QuizView{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return QuizView{}, domain.ErrNoActiveQuiz
	}
	state, err := p.session.Acknowledge()
	if err != nil {
		return QuizView{}, err
	}
	if state == StateCompleted {
		s.metrics.QuizCompleted(p.session.Topic().Name)
		s.persist(ctx, p)
	}
	return s.view(p.session), nil
}

// Quit leaves the active quiz, saving partial progress.
func (s *QuizService) Quit(ctx context.Context, userID string) error {
	p, err := s.player(userID)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return domain.ErrNoActiveQuiz
	}
	s.quitLocked(ctx, p)
	return nil
}

// Retry restarts a completed quiz and clears the stored record for its topic.
func (s *QuizService) Retry(ctx context.Context, userID string) (QuizView, error) {
	p, err := s.player(userID)
	if err != nil {
		return QuizView{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return QuizView{}, domain.ErrNoActiveQuiz
	}
	if err := p.session.Retry(); err != nil {
		return QuizView{}, err
	}
	s.metrics.QuizRetried(p.session.Topic().Name)
	s.persist(ctx, p)
	return s.view(p.session), nil
}

// ResetAll clears the user's progress and zeroes every high score.
// Achievements are kept.
func (s *QuizService) ResetAll(ctx context.Context, userID string) error {
	p, err := s.player(userID)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session != nil {
		p.session.Close()
		p.session = nil
	}
	resetErr := s.store.ResetAll(ctx, userID, p.displayName(), p.bank)
	s.reload(ctx, p)
	if resetErr != nil {
		s.fail(p, "reset", "Failed to reset progress. Please try again.", resetErr)
		return resetErr
	}
	s.notices.Publish(userID, Notice{Level: NoticeSuccess, Title: "Progress Reset", Text: "All your progress has been reset."})
	return nil
}

// Achievements lists the catalog with the user's completion flags.
func (s *QuizService) Achievements(_ context.Context, userID string) ([]AchievementView, error) {
	p, err := s.player(userID)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return ViewAchievements(s.catalog, p.achievements), nil
}

// Profile returns the user's profile page.
func (s *QuizService) Profile(_ context.Context, userID string) (ProfileView, error) {
	p, err := s.player(userID)
	if err != nil {
		return ProfileView{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return s.profileView(p), nil
}

// UpdateProfile stores a new display name and bio. A new display name is
// also written onto the user's high-score records.
func (s *QuizService) UpdateProfile(ctx context.Context, userID, displayName, bio string) (ProfileView, error) {
	p, err := s.player(userID)
	if err != nil {
		return ProfileView{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = p.displayName()
	}
	renamed := displayName != p.displayName()

	profile := p.profile
	profile.DisplayName = displayName
	profile.Bio = strings.TrimSpace(bio)
	if err := s.store.SaveProfile(ctx, userID, profile); err != nil {
		s.fail(p, "save profile", "Failed to update your profile. Please try again.", err)
		return s.profileView(p), err
	}
	p.profile = profile

	if renamed {
		if err := s.store.RenameHighScores(ctx, userID, displayName, p.bank); err != nil {
			s.fail(p, "rename high scores", "Your profile was saved but the leaderboard name could not be updated.", err)
		}
		s.reload(ctx, p)
	}
	s.notices.Publish(userID, Notice{Level: NoticeSuccess, Title: "Profile Updated", Text: "Your profile has been saved."})
	return s.profileView(p), nil
}

// Leaderboard ranks every user with a high-score record.
func (s *QuizService) Leaderboard(ctx context.Context) ([]domain.LeaderboardRow, error) {
	bank, err := s.bank.GetBank(ctx)
	if err != nil {
		return nil, fmt.Errorf("load bank: %w", err)
	}
	rows, err := s.leaderboard.Build(ctx, bank)
	if err != nil {
		log.Printf("[leaderboard] build: %v", err)
		s.metrics.StoreError("leaderboard")
		return nil, err
	}
	return rows, nil
}

func (s *QuizService) player(userID string) (*Player, error) {
	p, ok := s.players.Get(userID)
	if !ok {
		return nil, domain.ErrPlayerNotFound
	}
	return p, nil
}

// hooks run with p.mu held by the QuizService method that drove the
// transition, except OnTick which runs on the ticker goroutine.
func (s *QuizService) hooks(p *Player, topic domain.Topic) SessionHooks {
	userID := p.ID()
	return SessionHooks{
		OnComplete: func(r Result) {
			elapsed := r.Time
			p.pending = &attempt{
				topic: r.Topic,
				progress: domain.TopicProgress{
					Completed:     r.Completed,
					Time:          &elapsed,
					Elapsed:       r.Elapsed,
					Score:         r.Score,
					AnswerResults: r.Answers,
				},
				result: &r,
			}
		},
		OnQuit: func(snap Snapshot) {
			p.pending = &attempt{
				topic: snap.Topic,
				progress: domain.TopicProgress{
					Completed:     snap.Completed,
					Elapsed:       snap.Elapsed,
					Score:         snap.Score,
					AnswerResults: snap.Answers,
				},
			}
		},
		OnRetry: func() {
			p.pending = &attempt{topic: topic.Name, retried: true}
		},
		OnTick: func(elapsed int) {
			s.ticks.Publish(userID, Tick{Topic: topic.Name, Elapsed: elapsed, Time: FormatElapsed(elapsed)})
		},
	}
}

func (s *QuizService) quitLocked(ctx context.Context, p *Player) {
	topic := p.session.Topic().Name
	if err := p.session.Quit(); err == nil && p.pending != nil {
		s.metrics.QuizQuit(topic)
		s.persist(ctx, p)
	}
	p.session = nil
}

// persist stores the pending attempt: progress, then the high score, then
// both are read back and achievements are evaluated. The first failure ends
// the chain; the in-memory progress keeps the attempt either way.
func (s *QuizService) persist(ctx context.Context, p *Player) {
	a := p.pending
	p.pending = nil
	if a == nil || p.closed {
		return
	}
	userID := p.ID()

	progress := p.progress.Clone()
	progress[a.topic] = a.progress
	p.progress = progress

	if err := s.store.SaveProgress(ctx, userID, progress); err != nil {
		s.fail(p, "save progress", "Failed to save your progress. Please try again.", err)
		return
	}
	hs := domain.HighScore{
		UserID:    userID,
		Name:      p.displayName(),
		Score:     a.progress.Score,
		Topic:     a.topic,
		Completed: a.progress.Completed,
	}
	if err := s.store.SaveHighScore(ctx, hs); err != nil {
		s.fail(p, "save high score", "Failed to save your score. Please try again.", err)
		return
	}
	s.reload(ctx, p)

	if a.retried {
		return
	}
	if a.result != nil {
		s.publish(ctx, domain.Event{
			Type:   domain.EventQuizCompleted,
			UserID: userID,
			Payload: map[string]any{
				"topic":    a.result.Topic,
				"score":    a.result.Score,
				"maxScore": a.result.MaxScore,
				"time":     a.result.Time,
			},
		})
	}
	s.evaluate(ctx, p)
}

func (s *QuizService) reload(ctx context.Context, p *Player) {
	userID := p.ID()
	progress, err := s.store.LoadProgress(ctx, userID)
	if err != nil {
		s.fail(p, "load progress", "Failed to load your progress.", err)
	} else {
		p.progress = progress
	}
	scores, err := s.store.LoadHighScores(ctx, userID, p.bank)
	if err != nil {
		s.fail(p, "load high scores", "Failed to load your scores.", err)
	} else {
		p.scores = scores
	}
	achievements, err := s.store.LoadAchievements(ctx, userID)
	if err != nil {
		s.fail(p, "load achievements", "Failed to load your achievements.", err)
	} else {
		p.achievements = achievements
	}
}

func (s *QuizService) recordLogin(ctx context.Context, p *Player) {
	userID := p.ID()
	stored, _, err := s.store.LoadProfile(ctx, userID)
	if err != nil {
		s.fail(p, "load profile", "Failed to update your login streak.", err)
		return
	}
	update := AdvanceStreak(stored, s.clock().In(s.location))
	profile := update.Profile
	if profile.DisplayName == "" {
		profile.DisplayName = p.principal.Name()
	}
	p.profile = profile
	s.metrics.Login(update.Change.String())
	if !update.Changed() {
		return
	}

	if err := s.store.SaveProfile(ctx, userID, profile); err != nil {
		s.fail(p, "save profile", "Failed to update your login streak.", err)
		return
	}
	notice := Notice{Level: NoticeInfo, Title: "Streak Started!", Text: "Your login streak is now 1 day!"}
	if update.Change == StreakIncreased {
		notice = Notice{
			Level: NoticeInfo,
			Title: "Streak Increased!",
			Text:  fmt.Sprintf("Your login streak is now %d days!", profile.Streak),
		}
	}
	s.notices.Publish(userID, notice)
	s.publish(ctx, domain.Event{
		Type:    domain.EventStreakUpdated,
		UserID:  userID,
		Payload: map[string]any{"streak": profile.Streak, "loginDays": len(profile.LoginDays)},
	})
}

func (s *QuizService) evaluate(ctx context.Context, p *Player) {
	userID := p.ID()
	all, err := s.store.LoadAllHighScores(ctx)
	if err != nil {
		s.fail(p, "load all high scores", "Failed to update achievements. Please try again later.", err)
		return
	}
	next, unlocked := EvaluateAchievements(s.catalog, p.achievements, AchievementInput{
		UserID:    userID,
		Bank:      p.bank,
		Progress:  p.progress,
		Scores:    all,
		Streak:    p.profile.Streak,
		LoginDays: len(p.profile.LoginDays),
	})
	if len(unlocked) == 0 {
		return
	}
	if err := s.store.SaveAchievements(ctx, userID, next); err != nil {
		s.fail(p, "save achievements", "Failed to update achievements. Please try again later.", err)
		return
	}
	p.achievements = next
	for _, a := range unlocked {
		log.Printf("[quiz] %s unlocked %q", userID, a.Name)
		s.metrics.AchievementUnlocked(a.Name)
		s.notices.Publish(userID, Notice{Level: NoticeSuccess, Title: "Achievement Unlocked!", Text: a.Name})
		s.publish(ctx, domain.Event{
			Type:    domain.EventAchievementUnlocked,
			UserID:  userID,
			Payload: map[string]any{"name": a.Name, "description": a.Description},
		})
	}
}

// fail logs a caught store failure and turns it into an error notice.
func (s *QuizService) fail(p *Player, op, text string, err error) {
	log.Printf("[quiz] %s for %s: %v", op, p.ID(), err)
	s.metrics.StoreError(op)
	s.notices.Publish(p.ID(), Notice{Level: NoticeError, Title: "Error", Text: text})
}

func (s *QuizService) publish(ctx context.Context, event domain.Event) {
	if s.events == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.clock().UTC()
	}
	if err := s.events.Publish(ctx, event); err != nil {
		log.Printf("[quiz] publish %s: %v", event.Type, err)
	}
}

func (s *QuizService) view(sess *Session) QuizView {
	snap := sess.Snapshot()
	view := QuizView{Session: snap}
	topic := sess.Topic()
	if q, idx, ok := sess.Question(); ok {
		view.Question = &QuestionView{
			Index:      idx,
			Total:      len(topic.Questions),
			Text:       q.Text,
			Options:    append([]string(nil), q.Options...),
			Difficulty: q.Difficulty,
			Points:     q.Points(),
		}
	}
	if snap.State == StateCompleted.String() {
		view.Summary = summarize(topic, snap)
	}
	return view
}

func summarize(topic domain.Topic, snap Snapshot) *Summary {
	sum := &Summary{
		Topic:            topic.Name,
		Score:            snap.Score,
		MaxScore:         topic.MaxScore(),
		Total:            len(topic.Questions),
		Time:             FormatElapsed(snap.Elapsed),
		CorrectAnswers:   []domain.AnswerResult{},
		IncorrectAnswers: []domain.AnswerResult{},
		Resources:        topic.Resources,
	}
	for _, a := range snap.Answers {
		if a.IsCorrect {
			sum.Correct++
			sum.CorrectAnswers = append(sum.CorrectAnswers, a)
		} else {
			sum.IncorrectAnswers = append(sum.IncorrectAnswers, a)
		}
	}
	return sum
}

func (s *QuizService) profileView(p *Player) ProfileView {
	total := 0
	for _, hs := range p.scores {
		total += hs.Score
	}
	return ProfileView{
		UserID:       p.ID(),
		Email:        p.principal.Email,
		DisplayName:  p.displayName(),
		Bio:          p.profile.Bio,
		LastLogin:    p.profile.LastLogin,
		Streak:       p.profile.Streak,
		LoginDays:    len(p.profile.LoginDays),
		TotalScore:   total,
		Achievements: p.achievements.CompletedCount(),
	}
}
