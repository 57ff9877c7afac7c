package cli

import (
	"context"
	"fmt"
	"log"
	"time"

	"code-quizzer/internal/app"
	"code-quizzer/internal/bank"
	"code-quizzer/internal/config"
	"code-quizzer/internal/infra/memory"
	mongostore "code-quizzer/internal/infra/mongo"
	pgstore "code-quizzer/internal/infra/postgres"
	redisstore "code-quizzer/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// backends are the storage adapters selected by store.backend. Redis, when
// configured, also caches the bank and tracks signed-in players for every backend.
type backends struct {
	name    string
	docs    app.DocumentStore
	bank    app.BankRepository
	players app.PlayerRepository
	closers []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackends(ctx context.Context, cfg config.Config) (*backends, error) {
	embedded, err := bank.Embedded()
	if err != nil {
		return nil, err
	}
	var loader memory.BankLoader = memory.NewStaticBankLoader(embedded)

	b := &backends{name: cfg.Store.Backend}
	if b.name == "" {
		b.name = config.BackendMemory
	}

	switch b.name {
	case config.BackendMemory:
		b.docs = memory.NewDocumentStore()
	case config.BackendRedis:
		// documents share the client opened below
	case config.BackendPostgres:
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
		b.docs = pgstore.NewDocumentStore(pool)
		loader = memory.NewFallbackBankLoader(pgstore.NewBankLoader(pool), loader)
	case config.BackendMongo:
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return nil, fmt.Errorf("connect to mongo: %w", err)
		}
		b.closers = append(b.closers, func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Printf("disconnect mongo: %v", err)
			}
		})
		database := cfg.Mongo.Database
		if database == "" {
			database = "code_quizzer"
		}
		docs := mongostore.NewDocumentStore(client.Database(database))
		if err := docs.EnsureIndexes(ctx); err != nil {
			b.close()
			return nil, err
		}
		b.docs = docs
	default:
		return nil, fmt.Errorf("unknown store backend %q", b.name)
	}

	bankTTL := config.TTLDuration(cfg.Bank.TTL, 10*time.Minute)
	if cfg.Redis.Addr == "" {
		b.bank = memory.NewBankRepository(loader, bankTTL)
		b.players = memory.NewPlayerStore()
		return b, nil
	}

	client := newRedisClient(cfg)
	b.closers = append(b.closers, func() { _ = client.Close() })
	if err := client.Ping(ctx).Err(); err != nil {
		b.close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	if b.docs == nil {
		b.docs = redisstore.NewDocumentStore(client)
	}
	b.bank = redisstore.NewBankRepository(client, loader, bankTTL)
	b.players = redisstore.NewPlayerStore(client, config.TTLDuration(cfg.Session.TTL, 30*time.Minute))
	return b, nil
}
