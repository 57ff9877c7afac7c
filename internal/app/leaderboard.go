package app

import (
	"context"
	"log"
	"sort"
	"sync"

	"code-quizzer/internal/domain"
	"golang.org/x/sync/errgroup"
)

// UserTotal is the per-user sum of high-score records.
type UserTotal struct {
	UserID    string
	Name      string
	Score     int
	Completed int
}

// TotalsByUser groups high-score records by user in encounter order.
func TotalsByUser(scores []domain.HighScore) []UserTotal {
	index := make(map[string]int)
	var out []UserTotal
	for _, s := range scores {
		if s.UserID == "" {
			continue
		}
		i, ok := index[s.UserID]
		if !ok {
			i = len(out)
			index[s.UserID] = i
			out = append(out, UserTotal{UserID: s.UserID})
		}
		if s.Name != "" {
			out[i].Name = s.Name
		}
		out[i].Score += s.Score
		out[i].Completed += s.Completed
	}
	return out
}

// SortTotals orders totals by descending score; ties keep their order.
func SortTotals(totals []UserTotal) {
	sort.SliceStable(totals, func(i, j int) bool {
		return totals[i].Score > totals[j].Score
	})
}

// RankInput carries the per-user records joined onto the score totals.
type RankInput struct {
	Scores       []domain.HighScore
	Progress     map[string]domain.ProgressMap
	Achievements map[string]domain.AchievementState
	Bank         domain.Bank
	CatalogSize  int
}

// Rank builds the leaderboard. Completed questions come from the user's
// progress map when it was loaded and from the high-score records otherwise.
// Users with a zero total are listed without a rank.
func Rank(in RankInput) []domain.LeaderboardRow {
	totals := TotalsByUser(in.Scores)
	SortTotals(totals)

	totalQuestions := in.Bank.TotalQuestions()
	rows := make([]domain.LeaderboardRow, 0, len(totals))
	for i, t := range totals {
		completed := t.Completed
		if progress, ok := in.Progress[t.UserID]; ok {
			completed = completedQuestions(progress, in.Bank)
		}
		row := domain.LeaderboardRow{
			UserID:             t.UserID,
			DisplayName:        t.Name,
			TotalScore:         t.Score,
			CompletedQuestions: completed,
			TotalQuestions:     totalQuestions,
			Achievements:       in.Achievements[t.UserID].CompletedCount(),
			TotalAchievements:  in.CatalogSize,
		}
		if t.Score > 0 {
			row.Rank = i + 1
		}
		rows = append(rows, row)
	}
	return rows
}

func completedQuestions(progress domain.ProgressMap, bank domain.Bank) int {
	total := 0
	for _, t := range bank.Topics {
		p, ok := progress[t.Name]
		if !ok {
			continue
		}
		total += min(max(p.Completed, 0), len(t.Questions))
	}
	return total
}

// LeaderboardService reads every user's records and ranks them.
type LeaderboardService struct {
	store       *Store
	catalogSize int
	parallelism int
}

// NewLeaderboardService limits the per-user fan-out to parallelism reads at a time.
func NewLeaderboardService(store *Store, catalogSize, parallelism int) *LeaderboardService {
	if parallelism <= 0 {
		parallelism = 8
	}
	return &LeaderboardService{store: store, catalogSize: catalogSize, parallelism: parallelism}
}

// Build reads the high-score collection, then each ranked user's progress and
// achievements. A user whose records cannot be read is still listed, using
// the high-score completed counts and zero achievements.
func (l *LeaderboardService) Build(ctx context.Context, bank domain.Bank) ([]domain.LeaderboardRow, error) {
	scores, err := l.store.LoadAllHighScores(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu           sync.Mutex
		progress     = make(map[string]domain.ProgressMap)
		achievements = make(map[string]domain.AchievementState)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.parallelism)
	for _, t := range TotalsByUser(scores) {
		uid := t.UserID
		g.Go(func() error {
			p, err := l.store.LoadProgress(gctx, uid)
			if err != nil {
				log.Printf("[leaderboard] progress for %s: %v", uid, err)
			}
			a, aerr := l.store.LoadAchievements(gctx, uid)
			if aerr != nil {
				log.Printf("[leaderboard] achievements for %s: %v", uid, aerr)
			}
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				progress[uid] = p
			}
			if aerr == nil {
				achievements[uid] = a
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return Rank(RankInput{
		Scores:       scores,
		Progress:     progress,
		Achievements: achievements,
		Bank:         bank,
		CatalogSize:  l.catalogSize,
	}), nil
}
