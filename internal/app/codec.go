package app

import (
	"encoding/json"
	"log"
	"math"

	"code-quizzer/internal/domain"
)

// decoder reads loosely typed document fields. Missing or mistyped fields
// fall back to zero values and are logged as validation errors.
type decoder struct {
	path string
}

func (d decoder) invalid(field, reason string) {
	log.Printf("[store] %v", &domain.ValidationError{Path: d.path, Field: field, Reason: reason})
}

func (d decoder) int(m map[string]any, key string) int {
	v, ok := m[key]
	if !ok || v == nil {
		return 0
	}
	n, ok := toInt(v)
	if !ok {
		d.invalid(key, "is not a number")
		return 0
	}
	return n
}

func (d decoder) string(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		d.invalid(key, "is not a string")
		return ""
	}
	return s
}

func (d decoder) optionalString(m map[string]any, key string) *string {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		d.invalid(key, "is not a string")
		return nil
	}
	return &s
}

func (d decoder) bool(m map[string]any, key string) bool {
	v, ok := m[key]
	if !ok || v == nil {
		return false
	}
	b, ok := v.(bool)
	if !ok {
		d.invalid(key, "is not a boolean")
		return false
	}
	return b
}

func (d decoder) strings(m map[string]any, key string) []string {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	items, ok := toSlice(v)
	if !ok {
		d.invalid(key, "is not a list")
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		} else {
			d.invalid(key, "has a non-string entry")
		}
	}
	return out
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float32:
		return int(n), !math.IsNaN(float64(n))
	case float64:
		return int(n), !math.IsNaN(n)
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	default:
		return 0, false
	}
}

func toMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case domain.Fields:
		return m, true
	default:
		return nil, false
	}
}

func toSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []string:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	default:
		return nil, false
	}
}

func encodeProgress(p domain.ProgressMap) domain.Fields {
	out := make(domain.Fields, len(p))
	for topic, tp := range p {
		answers := make([]any, 0, len(tp.AnswerResults))
		for _, a := range tp.AnswerResults {
			answers = append(answers, map[string]any{
				"question":      a.Question,
				"userAnswer":    a.UserAnswer,
				"correctAnswer": a.CorrectAnswer,
				"isCorrect":     a.IsCorrect,
			})
		}
		var elapsedTime any
		if tp.Time != nil {
			elapsedTime = *tp.Time
		}
		out[topic] = map[string]any{
			"completed":     tp.Completed,
			"time":          elapsedTime,
			"elapsed":       tp.Elapsed,
			"score":         tp.Score,
			"answerResults": answers,
		}
	}
	return out
}

func decodeProgress(path string, fields domain.Fields) domain.ProgressMap {
	d := decoder{path: path}
	out := make(domain.ProgressMap, len(fields))
	for topic, raw := range fields {
		m, ok := toMap(raw)
		if !ok {
			d.invalid(topic, "is not an object")
			continue
		}
		tp := domain.TopicProgress{
			Completed: max(d.int(m, "completed"), 0),
			Time:      d.optionalString(m, "time"),
			Elapsed:   max(d.int(m, "elapsed"), 0),
			Score:     max(d.int(m, "score"), 0),
		}
		if rawAnswers, ok := m["answerResults"]; ok && rawAnswers != nil {
			items, ok := toSlice(rawAnswers)
			if !ok {
				d.invalid(topic+".answerResults", "is not a list")
			}
			for _, item := range items {
				am, ok := toMap(item)
				if !ok {
					d.invalid(topic+".answerResults", "has a non-object entry")
					continue
				}
				tp.AnswerResults = append(tp.AnswerResults, domain.AnswerResult{
					Question:      d.string(am, "question"),
					UserAnswer:    d.string(am, "userAnswer"),
					CorrectAnswer: d.string(am, "correctAnswer"),
					IsCorrect:     d.bool(am, "isCorrect"),
				})
			}
		}
		out[topic] = tp
	}
	return out
}

func encodeHighScore(hs domain.HighScore) domain.Fields {
	return domain.Fields{
		"userId":    hs.UserID,
		"name":      hs.Name,
		"score":     hs.Score,
		"topic":     hs.Topic,
		"completed": hs.Completed,
	}
}

// decodeHighScore reports false for records that name no user or topic;
// they cannot be attributed and are skipped.
func decodeHighScore(path string, fields domain.Fields) (domain.HighScore, bool) {
	d := decoder{path: path}
	hs := domain.HighScore{
		UserID:    d.string(fields, "userId"),
		Name:      d.string(fields, "name"),
		Score:     max(d.int(fields, "score"), 0),
		Topic:     d.string(fields, "topic"),
		Completed: max(d.int(fields, "completed"), 0),
	}
	if hs.UserID == "" || hs.Topic == "" {
		d.invalid("userId", "or topic is missing")
		return domain.HighScore{}, false
	}
	return hs, true
}

func encodeProfile(p domain.Profile) domain.Fields {
	days := make([]any, 0, len(p.LoginDays))
	for _, day := range p.LoginDays {
		days = append(days, day)
	}
	return domain.Fields{
		"lastLogin":   p.LastLogin,
		"streak":      p.Streak,
		"loginDays":   days,
		"displayName": p.DisplayName,
		"bio":         p.Bio,
	}
}

func decodeProfile(path string, fields domain.Fields) domain.Profile {
	d := decoder{path: path}
	return domain.Profile{
		LastLogin:   d.string(fields, "lastLogin"),
		Streak:      max(d.int(fields, "streak"), 0),
		LoginDays:   d.strings(fields, "loginDays"),
		DisplayName: d.string(fields, "displayName"),
		Bio:         d.string(fields, "bio"),
	}
}

func encodeAchievements(state domain.AchievementState) domain.Fields {
	completed := make(map[string]any, len(state))
	shown := make(map[string]any, len(state))
	for name, st := range state {
		completed[name] = st.Completed
		shown[name] = st.Shown
	}
	return domain.Fields{"completed": completed, "shown": shown}
}

func decodeAchievements(path string, fields domain.Fields) domain.AchievementState {
	d := decoder{path: path}
	out := domain.AchievementState{}
	for _, key := range []string{"completed", "shown"} {
		raw, ok := fields[key]
		if !ok || raw == nil {
			continue
		}
		m, ok := toMap(raw)
		if !ok {
			d.invalid(key, "is not an object")
			continue
		}
		for name := range m {
			st := out[name]
			if key == "completed" {
				st.Completed = d.bool(m, name)
			} else {
				st.Shown = d.bool(m, name)
			}
			out[name] = st
		}
	}
	return out
}
