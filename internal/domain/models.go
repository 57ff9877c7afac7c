package domain

import "time"

// Question models an MCQ question; the correct option is matched by exact string equality.
type Question struct {
	Text       string   `json:"question" yaml:"question"`
	Options    []string `json:"options" yaml:"options"`
	Correct    string   `json:"correct" yaml:"correct"`
	Difficulty int      `json:"difficulty" yaml:"difficulty"`
}

// Points returns the value awarded for answering the question correctly.
func (q Question) Points() int {
	return Points(q.Difficulty)
}

// Points maps a difficulty tier to its point value.
func Points(difficulty int) int {
	switch {
	case difficulty <= 10:
		return 10
	case difficulty <= 20:
		return 20
	default:
		return 30
	}
}

// Resource is a learning link shown on the completion summary.
type Resource struct {
	Title string `json:"title" yaml:"title"`
	URL   string `json:"url" yaml:"url"`
}

// Topic is a named, ordered set of questions.
type Topic struct {
	Name      string     `json:"name" yaml:"name"`
	Questions []Question `json:"questions" yaml:"questions"`
	Resources []Resource `json:"resources,omitempty" yaml:"resources"`
}

// MaxScore is the score of a perfect run through the topic.
func (t Topic) MaxScore() int {
	total := 0
	for _, q := range t.Questions {
		total += q.Points()
	}
	return total
}

// Bank is the ordered, read-only question bank.
type Bank struct {
	Topics []Topic `json:"topics" yaml:"topics"`
}

// Topic looks up a topic by name.
func (b Bank) Topic(name string) (Topic, bool) {
	for _, t := range b.Topics {
		if t.Name == name {
			return t, true
		}
	}
	return Topic{}, false
}

// TotalQuestions sums the question count of every topic.
func (b Bank) TotalQuestions() int {
	total := 0
	for _, t := range b.Topics {
		total += len(t.Questions)
	}
	return total
}

// AnswerResult records one submitted answer.
type AnswerResult struct {
	Question      string `json:"question"`
	UserAnswer    string `json:"userAnswer"`
	CorrectAnswer string `json:"correctAnswer"`
	IsCorrect     bool   `json:"isCorrect"`
}

// TopicProgress is a user's completion state for one topic.
// Time is nil when the last attempt was quit before the end.
type TopicProgress struct {
	Completed     int            `json:"completed"`
	Time          *string        `json:"time"`
	Elapsed       int            `json:"elapsed"`
	Score         int            `json:"score"`
	AnswerResults []AnswerResult `json:"answerResults"`
}

// ProgressMap is keyed by topic name.
type ProgressMap map[string]TopicProgress

// Clone returns a copy safe to mutate.
func (p ProgressMap) Clone() ProgressMap {
	out := make(ProgressMap, len(p))
	for k, v := range p {
		v.AnswerResults = append([]AnswerResult(nil), v.AnswerResults...)
		out[k] = v
	}
	return out
}

// HighScore is the most recent recorded score of a user for a topic.
type HighScore struct {
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	Score     int    `json:"score"`
	Topic     string `json:"topic"`
	Completed int    `json:"completed"`
}

// Profile carries the streak state and the editable profile fields.
type Profile struct {
	LastLogin   string   `json:"lastLogin"`
	Streak      int      `json:"streak"`
	LoginDays   []string `json:"loginDays"`
	DisplayName string   `json:"displayName"`
	Bio         string   `json:"bio"`
}

// AchievementStatus tracks a single achievement for a user.
type AchievementStatus struct {
	Completed bool `json:"completed"`
	Shown     bool `json:"shown"`
}

// AchievementState is keyed by achievement name.
type AchievementState map[string]AchievementStatus

// CompletedCount returns the number of completed achievements.
func (s AchievementState) CompletedCount() int {
	n := 0
	for _, st := range s {
		if st.Completed {
			n++
		}
	}
	return n
}

// Clone returns a copy safe to mutate.
func (s AchievementState) Clone() AchievementState {
	out := make(AchievementState, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Principal is the authenticated user as reported by the identity provider.
type Principal struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// Name returns the display name, falling back to the email.
func (p Principal) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Email
}

// AuthChange reports the current principal for a user. Principal is nil
// after the user signed out.
type AuthChange struct {
	UserID    string
	Principal *Principal
}

// LeaderboardRow is one ranked user on the global leaderboard.
// Rank is 0 when the user is unranked (total score of zero).
type LeaderboardRow struct {
	UserID             string `json:"userId"`
	DisplayName        string `json:"displayName"`
	TotalScore         int    `json:"totalScore"`
	CompletedQuestions int    `json:"completedQuestions"`
	TotalQuestions     int    `json:"totalQuestions"`
	Achievements       int    `json:"achievements"`
	TotalAchievements  int    `json:"totalAchievements"`
	Rank               int    `json:"rank"`
}

// Ranked reports whether the row carries a rank.
func (r LeaderboardRow) Ranked() bool {
	return r.Rank > 0
}

// Fields is the untyped payload of a stored document.
type Fields map[string]any

// Document is a stored document returned by a collection scan.
type Document struct {
	ID     string
	Path   string
	Fields Fields
}

// Event is a domain event emitted after persistence succeeds.
type Event struct {
	Type       string         `json:"type"`
	UserID     string         `json:"userId"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

const (
	EventQuizCompleted       = "quiz.completed"
	EventAchievementUnlocked = "achievement.unlocked"
	EventStreakUpdated       = "streak.updated"
)
