package app

import (
	"context"
	"fmt"
	"strings"

	"code-quizzer/internal/domain"
	"github.com/hashicorp/go-multierror"
)

// DocumentStore is the path-keyed document database the core persists into.
// Set with merge replaces only the given top-level fields.
type DocumentStore interface {
	Get(ctx context.Context, path string) (domain.Fields, bool, error)
	Set(ctx context.Context, path string, fields domain.Fields, merge bool) error
	List(ctx context.Context, collection string) ([]domain.Document, error)
}

const (
	usersCollection      = "users"
	highScoresCollection = "highScores"
	profilesCollection   = "profiles"
)

// UserPath is the document holding a user's progress map.
func UserPath(uid string) string { return usersCollection + "/" + uid }

// HighScorePath is the document holding a user's record for one topic.
func HighScorePath(uid, topic string) string {
	return highScoresCollection + "/" + uid + "_" + topic
}

// ProfilePath is the document holding streak and profile fields.
func ProfilePath(uid string) string { return profilesCollection + "/" + uid }

// AchievementsPath is the consolidated achievement document.
func AchievementsPath(uid string) string { return ProfilePath(uid) + "/achievements/progress" }

// SplitPath returns the collection and id of a document path.
func SplitPath(path string) (collection, id string) {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

// Store maps the user records onto documents. Every call is a direct
// round-trip; there is no cache and the last writer wins.
type Store struct {
	docs DocumentStore
}

func NewStore(docs DocumentStore) *Store {
	return &Store{docs: docs}
}

// LoadProgress returns the user's progress map, empty when none is stored.
func (s *Store) LoadProgress(ctx context.Context, uid string) (domain.ProgressMap, error) {
	path := UserPath(uid)
	fields, ok, err := s.docs.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return domain.ProgressMap{}, nil
	}
	return decodeProgress(path, fields), nil
}

// SaveProgress overwrites the user's progress map.
func (s *Store) SaveProgress(ctx context.Context, uid string, progress domain.ProgressMap) error {
	return s.docs.Set(ctx, UserPath(uid), encodeProgress(progress), false)
}

// LoadHighScores returns the user's records for the topics of the bank, in bank order.
func (s *Store) LoadHighScores(ctx context.Context, uid string, bank domain.Bank) ([]domain.HighScore, error) {
	var out []domain.HighScore
	for _, t := range bank.Topics {
		path := HighScorePath(uid, t.Name)
		fields, ok, err := s.docs.Get(ctx, path)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		hs, valid := decodeHighScore(path, fields)
		if !valid {
			continue
		}
		out = append(out, hs)
	}
	return out, nil
}

// LoadAllHighScores scans the whole high-score collection.
func (s *Store) LoadAllHighScores(ctx context.Context) ([]domain.HighScore, error) {
	docs, err := s.docs.List(ctx, highScoresCollection)
	if err != nil {
		return nil, err
	}
	out := make([]domain.HighScore, 0, len(docs))
	for _, d := range docs {
		hs, valid := decodeHighScore(d.Path, d.Fields)
		if !valid {
			continue
		}
		out = append(out, hs)
	}
	return out, nil
}

// SaveHighScore overwrites the record for (hs.UserID, hs.Topic).
func (s *Store) SaveHighScore(ctx context.Context, hs domain.HighScore) error {
	return s.docs.Set(ctx, HighScorePath(hs.UserID, hs.Topic), encodeHighScore(hs), false)
}

// RenameHighScores rewrites the display name on the user's records for every
// topic of the bank that has one. Failures are collected; nothing is rolled back.
func (s *Store) RenameHighScores(ctx context.Context, uid, name string, bank domain.Bank) error {
	scores, err := s.LoadHighScores(ctx, uid, bank)
	if err != nil {
		return err
	}
	var result *multierror.Error
	for _, hs := range scores {
		if err := s.docs.Set(ctx, HighScorePath(uid, hs.Topic), domain.Fields{"name": name}, true); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// ResetAll clears the progress map and zeroes the user's record for every
// topic. Each write is attempted even when an earlier one failed, so a
// failure can leave the topics partially reset. Achievements are kept.
func (s *Store) ResetAll(ctx context.Context, uid, name string, bank domain.Bank) error {
	var result *multierror.Error
	if err := s.docs.Set(ctx, UserPath(uid), domain.Fields{}, false); err != nil {
		result = multierror.Append(result, err)
	}
	for _, t := range bank.Topics {
		hs := domain.HighScore{UserID: uid, Name: name, Topic: t.Name}
		if err := s.SaveHighScore(ctx, hs); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// LoadProfile returns the stored profile and whether one exists.
func (s *Store) LoadProfile(ctx context.Context, uid string) (domain.Profile, bool, error) {
	path := ProfilePath(uid)
	fields, ok, err := s.docs.Get(ctx, path)
	if err != nil || !ok {
		return domain.Profile{}, false, err
	}
	return decodeProfile(path, fields), true, nil
}

// SaveProfile merges every profile field into the stored document.
func (s *Store) SaveProfile(ctx context.Context, uid string, p domain.Profile) error {
	return s.docs.Set(ctx, ProfilePath(uid), encodeProfile(p), true)
}

// LoadAchievements returns the achievement state, empty when none is stored.
func (s *Store) LoadAchievements(ctx context.Context, uid string) (domain.AchievementState, error) {
	path := AchievementsPath(uid)
	fields, ok, err := s.docs.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return domain.AchievementState{}, nil
	}
	return decodeAchievements(path, fields), nil
}

// SaveAchievements writes the whole achievement map in one document.
func (s *Store) SaveAchievements(ctx context.Context, uid string, state domain.AchievementState) error {
	return s.docs.Set(ctx, AchievementsPath(uid), encodeAchievements(state), false)
}

// Ping reads a document that need not exist to check the store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if _, _, err := s.docs.Get(ctx, "health/ping"); err != nil {
		return fmt.Errorf("document store unreachable: %w", err)
	}
	return nil
}
