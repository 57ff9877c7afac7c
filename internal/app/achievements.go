package app

import "code-quizzer/internal/domain"

const quickLearnerSeconds = 5 * 60

// AchievementInput is everything the achievement predicates may look at.
type AchievementInput struct {
	UserID    string
	Bank      domain.Bank
	Progress  domain.ProgressMap
	Scores    []domain.HighScore // every user's high-score records
	Streak    int
	LoginDays int
}

// Achievement is a named, monotonic unlockable condition.
type Achievement struct {
	Name        string
	Description string
	Check       func(AchievementInput) bool
}

// Catalog is evaluated in order; order only decides notification order.
var Catalog = []Achievement{
	{Name: "First Step", Description: "Complete 1 topic", Check: completedTopicsAtLeast(1)},
	{Name: "Triple Threat", Description: "Complete 3 topics", Check: completedTopicsAtLeast(3)},
	{Name: "Master Coder", Description: "Complete every topic", Check: completedAllTopics},
	{Name: "Century Scorer", Description: "Reach a total score of 100", Check: totalScoreAtLeast(100)},
	{Name: "Half Millennium", Description: "Reach a total score of 500", Check: totalScoreAtLeast(500)},
	{Name: "Code Legend", Description: "Reach a total score of 1000", Check: totalScoreAtLeast(1000)},
	{Name: "Double Duty", Description: "Achieve a 2-day login streak", Check: streakAtLeast(2)},
	{Name: "Five Alive", Description: "Achieve a 5-day login streak", Check: streakAtLeast(5)},
	{Name: "Decade Devotion", Description: "Achieve a 10-day login streak", Check: streakAtLeast(10)},
	{Name: "Quick Learner", Description: "Complete a topic in under 5 minutes", Check: completedUnder(quickLearnerSeconds)},
	{Name: "Perfectionist", Description: "Complete a topic with a perfect score", Check: perfectTopic},
	{Name: "Top Coder", Description: "Reach #1 on the leaderboard", Check: rankedFirst},
	{Name: "Veteran", Description: "Log in on 10 different days", Check: loginDaysAtLeast(10)},
}

// EvaluateAchievements checks every achievement that is not yet completed and
// returns the updated state together with the achievements unlocked by this
// pass, in catalog order. The input state is not modified.
func EvaluateAchievements(catalog []Achievement, state domain.AchievementState, in AchievementInput) (domain.AchievementState, []Achievement) {
	next := state.Clone()
	var unlocked []Achievement
	for _, a := range catalog {
		status := next[a.Name]
		if status.Completed {
			continue
		}
		if !a.Check(in) {
			continue
		}
		status.Completed = true
		if !status.Shown {
			status.Shown = true
			unlocked = append(unlocked, a)
		}
		next[a.Name] = status
	}
	return next, unlocked
}

// AchievementView is the display form of one catalog entry for a user.
type AchievementView struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

// ViewAchievements lists the catalog with the user's completion flags.
func ViewAchievements(catalog []Achievement, state domain.AchievementState) []AchievementView {
	out := make([]AchievementView, 0, len(catalog))
	for _, a := range catalog {
		out = append(out, AchievementView{
			Name:        a.Name,
			Description: a.Description,
			Completed:   state[a.Name].Completed,
		})
	}
	return out
}

func completedTopics(in AchievementInput) []domain.Topic {
	var out []domain.Topic
	for _, t := range in.Bank.Topics {
		p, ok := in.Progress[t.Name]
		if ok && len(t.Questions) > 0 && p.Completed >= len(t.Questions) {
			out = append(out, t)
		}
	}
	return out
}

func completedTopicsAtLeast(n int) func(AchievementInput) bool {
	return func(in AchievementInput) bool {
		return len(completedTopics(in)) >= n
	}
}

func completedAllTopics(in AchievementInput) bool {
	return len(in.Bank.Topics) > 0 && len(completedTopics(in)) == len(in.Bank.Topics)
}

func ownTotalScore(in AchievementInput) int {
	total := 0
	for _, s := range in.Scores {
		if s.UserID == in.UserID {
			total += s.Score
		}
	}
	return total
}

func totalScoreAtLeast(n int) func(AchievementInput) bool {
	return func(in AchievementInput) bool {
		return ownTotalScore(in) >= n
	}
}

func streakAtLeast(n int) func(AchievementInput) bool {
	return func(in AchievementInput) bool {
		return in.Streak >= n
	}
}

func loginDaysAtLeast(n int) func(AchievementInput) bool {
	return func(in AchievementInput) bool {
		return in.LoginDays >= n
	}
}

func completedUnder(seconds int) func(AchievementInput) bool {
	return func(in AchievementInput) bool {
		for _, t := range completedTopics(in) {
			p := in.Progress[t.Name]
			if p.Time == nil {
				continue
			}
			if s, ok := ParseElapsed(*p.Time); ok && s < seconds {
				return true
			}
		}
		return false
	}
}

func perfectTopic(in AchievementInput) bool {
	for _, t := range completedTopics(in) {
		if in.Progress[t.Name].Score >= t.MaxScore() {
			return true
		}
	}
	return false
}

func rankedFirst(in AchievementInput) bool {
	totals := TotalsByUser(in.Scores)
	SortTotals(totals)
	return len(totals) > 0 && totals[0].UserID == in.UserID && totals[0].Score > 0
}
