package cli

import (
	"context"
	"log"

	"code-quizzer/internal/bank"
	"code-quizzer/internal/config"
	"code-quizzer/internal/infra/memory"
	pgstore "code-quizzer/internal/infra/postgres"
	redisstore "code-quizzer/internal/infra/redis"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
)

// NewSeedCmd copies the embedded question bank into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Upsert the embedded question bank into the topics table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return runSeed(cmd.Context(), cfg)
		},
	}
}

func runSeed(ctx context.Context, cfg config.Config) error {
	if err := runMigrationsWithConfig(ctx, cfg); err != nil {
		return err
	}
	embedded, err := bank.Embedded()
	if err != nil {
		return err
	}

	db, err := openBun(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	var seeded int
	err = db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		seeded, err = pgstore.SeedTopics(ctx, tx, embedded)
		return err
	})
	if err != nil {
		return err
	}
	log.Printf("seeded %d topics", seeded)

	// drop the cached bank so running instances pick the new topics up
	if cfg.Redis.Addr != "" {
		client := newRedisClient(cfg)
		defer client.Close()
		cache := redisstore.NewBankRepository(client, memory.NewStaticBankLoader(embedded), 0)
		if err := cache.Invalidate(ctx); err != nil {
			log.Printf("invalidate cached bank: %v", err)
		}
	}
	return nil
}

func newRedisClient(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}
