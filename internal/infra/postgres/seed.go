package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"code-quizzer/internal/domain"
	"github.com/uptrace/bun"
)

// TopicRow is one row of the topics table.
type TopicRow struct {
	bun.BaseModel `bun:"table:topics"`

	Name     string          `bun:"name,pk"`
	Position int             `bun:"position,notnull"`
	Data     json.RawMessage `bun:"data,type:jsonb,notnull"`
}

// SeedTopics upserts every topic of the bank, keeping bank order in position.
func SeedTopics(ctx context.Context, db bun.IDB, bank domain.Bank) (int, error) {
	rows := make([]TopicRow, 0, len(bank.Topics))
	for i, t := range bank.Topics {
		data, err := json.Marshal(domain.Topic{Questions: t.Questions, Resources: t.Resources})
		if err != nil {
			return 0, fmt.Errorf("encode topic %s: %w", t.Name, err)
		}
		rows = append(rows, TopicRow{Name: t.Name, Position: i, Data: data})
	}
	if len(rows) == 0 {
		return 0, nil
	}

	_, err := db.NewInsert().
		Model(&rows).
		On("CONFLICT (name) DO UPDATE").
		Set("position = EXCLUDED.position").
		Set("data = EXCLUDED.data").
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("seed topics: %w", err)
	}
	return len(rows), nil
}
