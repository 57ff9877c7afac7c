package app_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"code-quizzer/internal/app"
	"code-quizzer/internal/domain"
	"code-quizzer/internal/infra/memory"
	"github.com/hashicorp/go-multierror"
)

// flakyStore fails writes to paths containing any of the configured fragments.
type flakyStore struct {
	app.DocumentStore
	mu    sync.Mutex
	fails []string
}

var errUnavailable = errors.New("unavailable")

func (f *flakyStore) failWrites(fragments ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fails = fragments
}

func (f *flakyStore) Set(ctx context.Context, path string, fields domain.Fields, merge bool) error {
	f.mu.Lock()
	fails := f.fails
	f.mu.Unlock()
	for _, frag := range fails {
		if strings.Contains(path, frag) {
			return &domain.StoreError{Op: "set", Path: path, Err: errUnavailable}
		}
	}
	return f.DocumentStore.Set(ctx, path, fields, merge)
}

func TestStoreProgressRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := app.NewStore(memory.NewDocumentStore())

	progress := domain.ProgressMap{
		"loops": {
			Completed: 3,
			Time:      ptr("01:05"),
			Elapsed:   65,
			Score:     60,
			AnswerResults: []domain.AnswerResult{
				{Question: "q", UserAnswer: "a", CorrectAnswer: "a", IsCorrect: true},
			},
		},
		"variables": {Completed: 1, Elapsed: 12, Score: 10},
	}
	if err := store.SaveProgress(ctx, "u1", progress); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.LoadProgress(ctx, "u1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	loops := got["loops"]
	if loops.Completed != 3 || loops.Score != 60 || loops.Elapsed != 65 || loops.Time == nil || *loops.Time != "01:05" {
		t.Fatalf("unexpected loops progress %+v", loops)
	}
	if len(loops.AnswerResults) != 1 || !loops.AnswerResults[0].IsCorrect {
		t.Fatalf("unexpected answers %+v", loops.AnswerResults)
	}
	if got["variables"].Time != nil {
		t.Fatalf("quit attempt must have no time")
	}
}

func TestStoreDefaultsMalformedDocuments(t *testing.T) {
	ctx := context.Background()
	docs := memory.NewDocumentStore()
	store := app.NewStore(docs)

	_ = docs.Set(ctx, app.UserPath("u1"), domain.Fields{
		"loops":     map[string]any{"completed": "three", "score": 20, "answerResults": "none"},
		"variables": "broken",
	}, false)
	_ = docs.Set(ctx, app.ProfilePath("u1"), domain.Fields{"streak": "many", "loginDays": []any{"2024-03-01", 7}}, false)
	_ = docs.Set(ctx, app.AchievementsPath("u1"), domain.Fields{"completed": map[string]any{"Veteran": "yes", "First Step": true}}, false)

	progress, err := store.LoadProgress(ctx, "u1")
	if err != nil {
		t.Fatalf("load progress: %v", err)
	}
	if progress["loops"].Completed != 0 || progress["loops"].Score != 20 || len(progress["loops"].AnswerResults) != 0 {
		t.Fatalf("expected defaults for bad fields, got %+v", progress["loops"])
	}
	if _, ok := progress["variables"]; ok {
		t.Fatalf("expected malformed topic to be dropped")
	}

	profile, ok, err := store.LoadProfile(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("load profile: ok=%v err=%v", ok, err)
	}
	if profile.Streak != 0 || len(profile.LoginDays) != 1 {
		t.Fatalf("unexpected profile %+v", profile)
	}

	state, err := store.LoadAchievements(ctx, "u1")
	if err != nil {
		t.Fatalf("load achievements: %v", err)
	}
	if state["Veteran"].Completed || !state["First Step"].Completed {
		t.Fatalf("unexpected achievements %+v", state)
	}
}

func TestStoreSkipsUnattributedHighScores(t *testing.T) {
	ctx := context.Background()
	docs := memory.NewDocumentStore()
	store := app.NewStore(docs)

	_ = store.SaveHighScore(ctx, domain.HighScore{UserID: "u1", Name: "Ada", Topic: "loops", Score: 60, Completed: 3})
	_ = docs.Set(ctx, "highScores/orphan", domain.Fields{"score": 10}, false)

	all, err := store.LoadAllHighScores(ctx)
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(all) != 1 || all[0].Score != 60 || all[0].Completed != 3 {
		t.Fatalf("unexpected scores %+v", all)
	}
}

func TestStoreResetAllKeepsGoingAfterFailures(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyStore{DocumentStore: memory.NewDocumentStore()}
	store := app.NewStore(flaky)
	bank := testBank()

	_ = store.SaveProgress(ctx, "u1", domain.ProgressMap{"loops": {Completed: 3, Score: 60}})
	_ = store.SaveHighScore(ctx, domain.HighScore{UserID: "u1", Name: "Ada", Topic: "loops", Score: 60, Completed: 3})
	_ = store.SaveHighScore(ctx, domain.HighScore{UserID: "u1", Name: "Ada", Topic: "variables", Score: 20, Completed: 2})
	_ = store.SaveAchievements(ctx, "u1", domain.AchievementState{"First Step": {Completed: true, Shown: true}})

	flaky.failWrites("u1_variables")
	err := store.ResetAll(ctx, "u1", "Ada", bank)
	if err == nil {
		t.Fatalf("expected reset error")
	}
	var merr *multierror.Error
	if !errors.As(err, &merr) || len(merr.Errors) != 1 {
		t.Fatalf("expected one aggregated failure, got %v", err)
	}
	var storeErr *domain.StoreError
	if !errors.As(err, &storeErr) || storeErr.Path != "highScores/u1_variables" {
		t.Fatalf("expected store error for variables, got %v", err)
	}

	progress, _ := store.LoadProgress(ctx, "u1")
	if len(progress) != 0 {
		t.Fatalf("expected progress cleared, got %+v", progress)
	}
	scores, _ := store.LoadHighScores(ctx, "u1", bank)
	byTopic := map[string]int{}
	for _, hs := range scores {
		byTopic[hs.Topic] = hs.Score
	}
	if byTopic["loops"] != 0 || byTopic["variables"] != 20 {
		t.Fatalf("expected partial reset, got %+v", byTopic)
	}
	state, _ := store.LoadAchievements(ctx, "u1")
	if !state["First Step"].Completed {
		t.Fatalf("achievements must survive a reset")
	}
}

func TestStoreRenameHighScores(t *testing.T) {
	ctx := context.Background()
	store := app.NewStore(memory.NewDocumentStore())
	_ = store.SaveHighScore(ctx, domain.HighScore{UserID: "u1", Name: "Ada", Topic: "loops", Score: 60, Completed: 3})
	_ = store.SaveHighScore(ctx, domain.HighScore{UserID: "u2", Name: "Bo", Topic: "loops", Score: 10, Completed: 1})

	if err := store.RenameHighScores(ctx, "u1", "Ada L.", testBank()); err != nil {
		t.Fatalf("rename: %v", err)
	}
	all, _ := store.LoadAllHighScores(ctx)
	for _, hs := range all {
		switch hs.UserID {
		case "u1":
			if hs.Name != "Ada L." || hs.Score != 60 {
				t.Fatalf("expected renamed record, got %+v", hs)
			}
		case "u2":
			if hs.Name != "Bo" {
				t.Fatalf("other users must not change, got %+v", hs)
			}
		}
	}
}

func TestSplitPath(t *testing.T) {
	collection, id := app.SplitPath(app.AchievementsPath("u1"))
	if collection != "profiles/u1/achievements" || id != "progress" {
		t.Fatalf("unexpected split %s %s", collection, id)
	}
	if app.HighScorePath("u1", "data_structures") != "highScores/u1_data_structures" {
		t.Fatalf("unexpected high score path")
	}
}
