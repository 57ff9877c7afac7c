package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"code-quizzer/internal/app"
	"code-quizzer/internal/domain"
	"code-quizzer/internal/infra/memory"
)

type recordingEvents struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recordingEvents) Publish(_ context.Context, e domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingEvents) count(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == kind {
			n++
		}
	}
	return n
}

type fixture struct {
	svc    *app.QuizService
	store  *app.Store
	flaky  *flakyStore
	events *recordingEvents
	now    time.Time
}

var ada = domain.Principal{ID: "u1", DisplayName: "Ada", Email: "ada@example.com"}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		flaky:  &flakyStore{DocumentStore: memory.NewDocumentStore()},
		events: &recordingEvents{},
		now:    day(1),
	}
	f.store = app.NewStore(f.flaky)
	f.svc = app.NewQuizService(
		f.store,
		memory.NewBankRepository(memory.NewStaticBankLoader(testBank()), 0),
		memory.NewPlayerStore(),
		app.Options{
			Events:   f.events,
			Location: time.UTC,
			Clock:    func() time.Time { return f.now },
			Ticker:   (&manualTicker{}).start,
		},
	)
	return f
}

func (f *fixture) signIn(t *testing.T, p domain.Principal) {
	t.Helper()
	if err := f.svc.SignedIn(context.Background(), p); err != nil {
		t.Fatalf("sign in: %v", err)
	}
}

func drain(ch <-chan app.Notice) []app.Notice {
	var out []app.Notice
	for {
		select {
		case n := <-ch:
			out = append(out, n)
		default:
			return out
		}
	}
}

func countNotices(notices []app.Notice, title, text string) int {
	n := 0
	for _, notice := range notices {
		if notice.Title == title && (text == "" || notice.Text == text) {
			n++
		}
	}
	return n
}

func playTopic(t *testing.T, svc *app.QuizService, userID string, answers ...string) app.QuizView {
	t.Helper()
	ctx := context.Background()
	var view app.QuizView
	for i, a := range answers {
		if _, err := svc.Submit(ctx, userID, a); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		v, err := svc.Acknowledge(ctx, userID)
		if err != nil {
			t.Fatalf("acknowledge %d: %v", i, err)
		}
		view = v
	}
	return view
}

func TestCompletingTopicStoresScore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signIn(t, ada)

	view, err := f.svc.StartQuiz(ctx, "u1", "loops")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if view.Question == nil || view.Question.Index != 0 || view.Question.Points != 10 {
		t.Fatalf("unexpected first question %+v", view.Question)
	}

	view = playTopic(t, f.svc, "u1", "do-while", "continue", "3")
	if view.Summary == nil || view.Summary.Score != 60 || view.Summary.MaxScore != 60 || view.Summary.Correct != 3 {
		t.Fatalf("unexpected summary %+v", view.Summary)
	}
	if len(view.Summary.Resources) != 1 || len(view.Summary.IncorrectAnswers) != 0 {
		t.Fatalf("unexpected summary details %+v", view.Summary)
	}

	progress, _ := f.store.LoadProgress(ctx, "u1")
	if progress["loops"].Completed != 3 || progress["loops"].Score != 60 || progress["loops"].Time == nil {
		t.Fatalf("unexpected stored progress %+v", progress["loops"])
	}
	scores, _ := f.store.LoadHighScores(ctx, "u1", testBank())
	if len(scores) != 1 || scores[0].Score != 60 || scores[0].Completed != 3 || scores[0].Name != "Ada" {
		t.Fatalf("unexpected high scores %+v", scores)
	}
	if f.events.count(domain.EventQuizCompleted) != 1 {
		t.Fatalf("expected one completion event")
	}

	views, _ := f.svc.Achievements(ctx, "u1")
	done := map[string]bool{}
	for _, v := range views {
		done[v.Name] = v.Completed
	}
	for _, name := range []string{"First Step", "Quick Learner", "Perfectionist", "Top Coder"} {
		if !done[name] {
			t.Fatalf("expected %s to be unlocked", name)
		}
	}
	if done["Century Scorer"] || done["Master Coder"] {
		t.Fatalf("unexpected unlocks %+v", done)
	}

	topics, _ := f.svc.Topics(ctx, "u1")
	if topics[1].Name != "loops" || !topics[1].Done || topics[1].Percent != 100 || topics[1].Time != "00:00" {
		t.Fatalf("unexpected topic overview %+v", topics[1])
	}
}

func TestLoginStreakAcrossDays(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	notices, cancel := f.svc.Notices("u1")
	defer cancel()

	steps := []struct {
		day    int
		streak int
		title  string
	}{
		{1, 1, "Streak Started!"},
		{2, 2, "Streak Increased!"},
		{4, 1, "Streak Started!"},
	}
	for _, step := range steps {
		f.now = day(step.day)
		f.signIn(t, ada)
		profile, _ := f.svc.Profile(ctx, "u1")
		if profile.Streak != step.streak {
			t.Fatalf("day %d: expected streak %d, got %d", step.day, step.streak, profile.Streak)
		}
		got := drain(notices)
		if n := countNotices(got, step.title, ""); n != 1 {
			t.Fatalf("day %d: expected one %q notice, got %d", step.day, step.title, n)
		}
		for _, n := range got {
			if n.Title == step.title && n.Level != app.NoticeInfo {
				t.Fatalf("day %d: expected info level for %q, got %s", step.day, n.Title, n.Level)
			}
		}
		f.svc.SignedOut("u1")
	}

	f.now = day(4).Add(3 * time.Hour)
	f.signIn(t, ada)
	if got := drain(notices); countNotices(got, "Streak Started!", "")+countNotices(got, "Streak Increased!", "") != 0 {
		t.Fatalf("same-day login must not notify, got %+v", got)
	}
	stored, _, _ := f.store.LoadProfile(ctx, "u1")
	if stored.Streak != 1 || len(stored.LoginDays) != 3 || stored.DisplayName != "Ada" {
		t.Fatalf("unexpected stored profile %+v", stored)
	}
	if f.events.count(domain.EventStreakUpdated) != 3 {
		t.Fatalf("expected three streak events, got %d", f.events.count(domain.EventStreakUpdated))
	}
}

func TestCenturyUnlockedExactlyOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_ = f.store.SaveHighScore(ctx, domain.HighScore{UserID: "u1", Name: "Ada", Topic: "loops", Score: 60, Completed: 3})
	_ = f.store.SaveHighScore(ctx, domain.HighScore{UserID: "u1", Name: "Ada", Topic: "variables", Score: 40, Completed: 2})
	notices, cancel := f.svc.Notices("u1")
	defer cancel()

	f.signIn(t, ada)
	if got := countNotices(drain(notices), "Achievement Unlocked!", "Century Scorer"); got != 1 {
		t.Fatalf("expected one unlock notice, got %d", got)
	}
	state, _ := f.store.LoadAchievements(ctx, "u1")
	if !state["Century Scorer"].Completed || !state["Century Scorer"].Shown {
		t.Fatalf("unexpected stored state %+v", state["Century Scorer"])
	}

	f.svc.SignedOut("u1")
	f.signIn(t, ada)
	if got := countNotices(drain(notices), "Achievement Unlocked!", ""); got != 0 {
		t.Fatalf("expected no repeated notices, got %d", got)
	}
}

func TestQuitSavesPartialProgressAndResumes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signIn(t, ada)

	_, _ = f.svc.StartQuiz(ctx, "u1", "loops")
	playTopic(t, f.svc, "u1", "do-while")
	if err := f.svc.Quit(ctx, "u1"); err != nil {
		t.Fatalf("quit: %v", err)
	}
	if _, err := f.svc.Current(ctx, "u1"); !errors.Is(err, domain.ErrNoActiveQuiz) {
		t.Fatalf("expected no active quiz after quit, got %v", err)
	}

	progress, _ := f.store.LoadProgress(ctx, "u1")
	if progress["loops"].Completed != 1 || progress["loops"].Score != 10 || progress["loops"].Time != nil {
		t.Fatalf("unexpected partial progress %+v", progress["loops"])
	}
	scores, _ := f.store.LoadHighScores(ctx, "u1", testBank())
	if len(scores) != 1 || scores[0].Score != 10 || scores[0].Completed != 1 {
		t.Fatalf("unexpected partial high score %+v", scores)
	}

	view, err := f.svc.StartQuiz(ctx, "u1", "loops")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if view.Question == nil || view.Question.Index != 1 || view.Session.Score != 10 {
		t.Fatalf("expected resume at question 1 with score 10, got %+v", view)
	}
	view = playTopic(t, f.svc, "u1", "continue", "3")
	if view.Summary == nil || view.Summary.Score != 60 {
		t.Fatalf("unexpected summary after resume %+v", view.Summary)
	}
}

func TestRetryClearsStoredRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signIn(t, ada)

	_, _ = f.svc.StartQuiz(ctx, "u1", "loops")
	playTopic(t, f.svc, "u1", "do-while", "continue", "3")
	_ = f.svc.Quit(ctx, "u1")

	view, err := f.svc.StartQuiz(ctx, "u1", "loops")
	if err != nil {
		t.Fatalf("start completed topic: %v", err)
	}
	if view.Session.State != app.StateCompleted.String() || view.Summary == nil {
		t.Fatalf("expected completed view, got %+v", view.Session)
	}

	view, err = f.svc.Retry(ctx, "u1")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if view.Question == nil || view.Question.Index != 0 || view.Session.Score != 0 {
		t.Fatalf("expected fresh quiz, got %+v", view)
	}

	progress, _ := f.store.LoadProgress(ctx, "u1")
	if p := progress["loops"]; p.Completed != 0 || p.Score != 0 || p.Time != nil || len(p.AnswerResults) != 0 {
		t.Fatalf("expected cleared record, got %+v", p)
	}
	scores, _ := f.store.LoadHighScores(ctx, "u1", testBank())
	if len(scores) != 1 || scores[0].Score != 0 {
		t.Fatalf("expected zeroed high score, got %+v", scores)
	}
	if views, _ := f.svc.Achievements(ctx, "u1"); !views[0].Completed {
		t.Fatalf("retry must not revoke achievements")
	}
}

func TestStartingAnotherTopicQuitsTheFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signIn(t, ada)

	_, _ = f.svc.StartQuiz(ctx, "u1", "loops")
	_, _ = f.svc.Submit(ctx, "u1", "do-while")
	if _, err := f.svc.StartQuiz(ctx, "u1", "variables"); err != nil {
		t.Fatalf("start second topic: %v", err)
	}

	progress, _ := f.store.LoadProgress(ctx, "u1")
	if progress["loops"].Completed != 1 || progress["loops"].Score != 10 {
		t.Fatalf("expected locked answer to count, got %+v", progress["loops"])
	}
	if _, err := f.svc.StartQuiz(ctx, "u1", "recursion"); !errors.Is(err, domain.ErrTopicNotFound) {
		t.Fatalf("expected unknown topic, got %v", err)
	}
}

func TestResetAllKeepsAchievements(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signIn(t, ada)
	_, _ = f.svc.StartQuiz(ctx, "u1", "loops")
	playTopic(t, f.svc, "u1", "do-while", "continue", "3")

	if err := f.svc.ResetAll(ctx, "u1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	progress, _ := f.svc.Progress(ctx, "u1")
	if len(progress) != 0 {
		t.Fatalf("expected empty progress, got %+v", progress)
	}
	scores, _ := f.store.LoadHighScores(ctx, "u1", testBank())
	if len(scores) != 2 {
		t.Fatalf("expected a zeroed record per topic, got %+v", scores)
	}
	for _, hs := range scores {
		if hs.Score != 0 || hs.Completed != 0 {
			t.Fatalf("expected zeroed record, got %+v", hs)
		}
	}
	views, _ := f.svc.Achievements(ctx, "u1")
	if !views[0].Completed {
		t.Fatalf("achievements must survive reset")
	}
	if _, err := f.svc.Current(ctx, "u1"); !errors.Is(err, domain.ErrNoActiveQuiz) {
		t.Fatalf("expected the active quiz to be closed")
	}
}

func TestPersistenceFailureIsReportedAndPlayContinues(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signIn(t, ada)
	notices, cancel := f.svc.Notices("u1")
	defer cancel()

	f.flaky.failWrites("users/")
	_, _ = f.svc.StartQuiz(ctx, "u1", "loops")
	view := playTopic(t, f.svc, "u1", "do-while", "continue", "3")
	if view.Session.State != app.StateCompleted.String() {
		t.Fatalf("session must complete despite the failure")
	}

	got := drain(notices)
	if countNotices(got, "Error", "Failed to save your progress. Please try again.") != 1 {
		t.Fatalf("expected one error notice, got %+v", got)
	}
	progress, _ := f.svc.Progress(ctx, "u1")
	if progress["loops"].Completed != 3 {
		t.Fatalf("expected in-memory progress to keep the attempt, got %+v", progress["loops"])
	}
	if scores, _ := f.store.LoadHighScores(ctx, "u1", testBank()); len(scores) != 0 {
		t.Fatalf("high score must not be written after a failed progress write")
	}

	if _, err := f.svc.StartQuiz(ctx, "u1", "variables"); err != nil {
		t.Fatalf("play must continue: %v", err)
	}
	if _, err := f.svc.Submit(ctx, "u1", "var"); err != nil {
		t.Fatalf("submit after failure: %v", err)
	}
}

func TestUpdateProfileRenamesHighScores(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signIn(t, ada)
	_, _ = f.svc.StartQuiz(ctx, "u1", "loops")
	playTopic(t, f.svc, "u1", "do-while", "continue", "3")

	view, err := f.svc.UpdateProfile(ctx, "u1", "  Countess  ", "I write programs")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if view.DisplayName != "Countess" || view.Bio != "I write programs" || view.TotalScore != 60 {
		t.Fatalf("unexpected profile %+v", view)
	}
	scores, _ := f.store.LoadHighScores(ctx, "u1", testBank())
	if scores[0].Name != "Countess" {
		t.Fatalf("expected renamed high score, got %+v", scores[0])
	}
	stored, _, _ := f.store.LoadProfile(ctx, "u1")
	if stored.DisplayName != "Countess" || stored.Streak != 1 {
		t.Fatalf("unexpected stored profile %+v", stored)
	}
}

func TestLeaderboardRanksSignedInPlayers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bo := domain.Principal{ID: "u2", Email: "bo@example.com"}
	f.signIn(t, ada)
	f.signIn(t, bo)

	_, _ = f.svc.StartQuiz(ctx, "u2", "variables")
	playTopic(t, f.svc, "u2", "var", "0")
	_, _ = f.svc.StartQuiz(ctx, "u1", "loops")
	playTopic(t, f.svc, "u1", "do-while", "continue", "wrong")

	rows, err := f.svc.Leaderboard(ctx)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(rows) != 2 || rows[0].UserID != "u1" || rows[0].TotalScore != 30 || rows[0].Rank != 1 {
		t.Fatalf("unexpected leaderboard %+v", rows)
	}
	if rows[1].DisplayName != "bo@example.com" || rows[1].TotalScore != 20 || rows[1].CompletedQuestions != 2 {
		t.Fatalf("unexpected second row %+v", rows[1])
	}
}

func TestOperationsRequireSignIn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.svc.StartQuiz(ctx, "ghost", "loops"); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("expected player not found, got %v", err)
	}
	if _, err := f.svc.Topics(ctx, "ghost"); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("expected player not found, got %v", err)
	}
	f.signIn(t, ada)
	if _, err := f.svc.Submit(ctx, "u1", "for"); !errors.Is(err, domain.ErrNoActiveQuiz) {
		t.Fatalf("expected no active quiz, got %v", err)
	}
}

func TestSignOutStopsQuizWithoutSaving(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signIn(t, ada)
	_, _ = f.svc.StartQuiz(ctx, "u1", "loops")
	playTopic(t, f.svc, "u1", "do-while")

	f.svc.SignedOut("u1")

	progress, _ := f.store.LoadProgress(ctx, "u1")
	if _, ok := progress["loops"]; ok {
		t.Fatalf("sign-out must not persist the open quiz")
	}
	if _, err := f.svc.Current(ctx, "u1"); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("expected player removed, got %v", err)
	}
}

func TestWatchFollowsIdentityStream(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	run := func(changes ...domain.AuthChange) {
		ch := make(chan domain.AuthChange, len(changes))
		for _, c := range changes {
			ch <- c
		}
		close(ch)
		done := make(chan struct{})
		go func() {
			f.svc.Watch(ctx, ch)
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("watch did not return")
		}
	}

	principal := ada
	run(domain.AuthChange{UserID: "u1", Principal: &principal})
	if _, err := f.svc.Topics(ctx, "u1"); err != nil {
		t.Fatalf("expected player after sign-in: %v", err)
	}

	run(domain.AuthChange{UserID: "u1"})
	if _, err := f.svc.Topics(ctx, "u1"); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("expected player removed after sign-out, got %v", err)
	}
}

func TestEnsureSignsInOnlyOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	notices, cancel := f.svc.Notices("u1")
	defer cancel()

	for i := 0; i < 2; i++ {
		if err := f.svc.Ensure(ctx, ada); err != nil {
			t.Fatalf("ensure %d: %v", i, err)
		}
	}
	if got := countNotices(drain(notices), "Streak Started!", ""); got != 1 {
		t.Fatalf("expected a single login, got %d streak notices", got)
	}
	if _, err := f.svc.Profile(ctx, "u1"); err != nil {
		t.Fatalf("profile after ensure: %v", err)
	}
}
