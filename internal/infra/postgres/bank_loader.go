package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"code-quizzer/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// BankLoader loads the topics table (one JSONB document per topic) from Postgres.
type BankLoader struct {
	pool *pgxpool.Pool
}

func NewBankLoader(pool *pgxpool.Pool) *BankLoader {
	return &BankLoader{pool: pool}
}

func (l *BankLoader) LoadBank(ctx context.Context) (domain.Bank, error) {
	rows, err := l.pool.Query(ctx, `SELECT name, data FROM topics ORDER BY position, name`)
	if err != nil {
		return domain.Bank{}, fmt.Errorf("load topics: %w", err)
	}
	defer rows.Close()

	var bank domain.Bank
	for rows.Next() {
		var (
			name string
			raw  []byte
		)
		if err := rows.Scan(&name, &raw); err != nil {
			return domain.Bank{}, fmt.Errorf("scan topic: %w", err)
		}
		var topic domain.Topic
		if err := json.Unmarshal(raw, &topic); err != nil {
			return domain.Bank{}, fmt.Errorf("unmarshal topic %s: %w", name, err)
		}
		topic.Name = name
		bank.Topics = append(bank.Topics, topic)
	}
	if err := rows.Err(); err != nil {
		return domain.Bank{}, fmt.Errorf("load topics: %w", err)
	}
	if len(bank.Topics) == 0 {
		return domain.Bank{}, fmt.Errorf("load topics: %w", domain.ErrTopicNotFound)
	}
	return bank, nil
}
