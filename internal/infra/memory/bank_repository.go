package memory

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"code-quizzer/internal/domain"
	"golang.org/x/sync/singleflight"
)

// BankLoader fetches the question bank from a backing store (e.g., embedded YAML, Postgres).
type BankLoader interface {
	LoadBank(ctx context.Context) (domain.Bank, error)
}

// BankRepository caches the bank with a TTL to avoid repeated loads.
type BankRepository struct {
	loader BankLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu        sync.RWMutex
	bank      domain.Bank
	loaded    bool
	expiresAt time.Time
}

func NewBankRepository(loader BankLoader, ttl time.Duration) *BankRepository {
	return &BankRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// GetBank returns the cached bank; a zero TTL caches forever.
func (r *BankRepository) GetBank(ctx context.Context) (domain.Bank, error) {
	if bank, ok := r.cached(r.clock()); ok {
		return bank, nil
	}

	result, err, _ := r.sf.Do("bank", func() (interface{}, error) {
		now := r.clock()
		if bank, ok := r.cached(now); ok {
			return bank, nil
		}

		bank, err := r.loader.LoadBank(ctx)
		if err != nil {
			return domain.Bank{}, err
		}

		r.mu.Lock()
		r.bank = bank
		r.loaded = true
		r.expiresAt = now.Add(r.ttlWithJitter())
		r.mu.Unlock()
		return bank, nil
	})
	if err != nil {
		return domain.Bank{}, err
	}
	return result.(domain.Bank), nil
}

func (r *BankRepository) cached(now time.Time) (domain.Bank, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.loaded {
		return domain.Bank{}, false
	}
	if r.ttl > 0 && !r.expiresAt.After(now) {
		return domain.Bank{}, false
	}
	return r.bank, true
}

func (r *BankRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticBankLoader serves a fixed bank (useful for tests/demos and the embedded bank).
type StaticBankLoader struct {
	bank domain.Bank
}

func NewStaticBankLoader(bank domain.Bank) *StaticBankLoader {
	return &StaticBankLoader{bank: bank}
}

func (l *StaticBankLoader) LoadBank(_ context.Context) (domain.Bank, error) {
	if len(l.bank.Topics) == 0 {
		return domain.Bank{}, domain.ErrTopicNotFound
	}
	return l.bank, nil
}

// FallbackBankLoader serves the fallback bank while the primary loader has
// no topics, e.g. a fresh database that has not been seeded yet.
type FallbackBankLoader struct {
	primary  BankLoader
	fallback BankLoader
}

func NewFallbackBankLoader(primary, fallback BankLoader) *FallbackBankLoader {
	return &FallbackBankLoader{primary: primary, fallback: fallback}
}

func (l *FallbackBankLoader) LoadBank(ctx context.Context) (domain.Bank, error) {
	bank, err := l.primary.LoadBank(ctx)
	if errors.Is(err, domain.ErrTopicNotFound) {
		log.Printf("[bank] primary bank is empty, serving the fallback")
		return l.fallback.LoadBank(ctx)
	}
	return bank, err
}
