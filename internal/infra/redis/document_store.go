package redis

import (
	"context"
	"encoding/json"
	"errors"

	"code-quizzer/internal/app"
	"code-quizzer/internal/domain"
	"github.com/redis/go-redis/v9"
)

// DocumentStore keeps each document as a JSON string and indexes every
// collection in a sorted set whose members all score 0, so ZRANGE returns
// document ids in lexical order.
//
//	SET  doc:{path}       {json}
//	ZADD col:{collection} 0 {id}
type DocumentStore struct {
	client *redis.Client
}

func NewDocumentStore(client *redis.Client) *DocumentStore {
	return &DocumentStore{client: client}
}

func (s *DocumentStore) Get(ctx context.Context, path string) (domain.Fields, bool, error) {
	raw, err := s.client.Get(ctx, docKey(path)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &domain.StoreError{Op: "get", Path: path, Err: err}
	}
	var fields domain.Fields
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, false, &domain.StoreError{Op: "get", Path: path, Err: err}
	}
	return fields, true, nil
}

// Set writes the document. A merge reads and rewrites it under WATCH; a
// concurrent writer makes the merge fail rather than lose either update.
func (s *DocumentStore) Set(ctx context.Context, path string, fields domain.Fields, merge bool) error {
	key := docKey(path)
	collection, id := app.SplitPath(path)

	txf := func(tx *redis.Tx) error {
		next := domain.Fields{}
		if merge {
			raw, err := tx.Get(ctx, key).Bytes()
			switch {
			case errors.Is(err, redis.Nil):
			case err != nil:
				return err
			default:
				if err := json.Unmarshal(raw, &next); err != nil {
					return err
				}
			}
		}
		for k, v := range fields {
			next[k] = v
		}
		raw, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			pipe.ZAdd(ctx, colKey(collection), redis.Z{Score: 0, Member: id})
			return nil
		})
		return err
	}

	if err := s.client.Watch(ctx, txf, key); err != nil {
		return &domain.StoreError{Op: "set", Path: path, Err: err}
	}
	return nil
}

func (s *DocumentStore) List(ctx context.Context, collection string) ([]domain.Document, error) {
	ids, err := s.client.ZRange(ctx, colKey(collection), 0, -1).Result()
	if err != nil {
		return nil, &domain.StoreError{Op: "list", Path: collection, Err: err}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = docKey(collection + "/" + id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, &domain.StoreError{Op: "list", Path: collection, Err: err}
	}

	out := make([]domain.Document, 0, len(ids))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		path := collection + "/" + ids[i]
		var fields domain.Fields
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			return nil, &domain.StoreError{Op: "list", Path: path, Err: err}
		}
		out = append(out, domain.Document{ID: ids[i], Path: path, Fields: fields})
	}
	return out, nil
}

func docKey(path string) string { return "doc:" + path }

func colKey(collection string) string { return "col:" + collection }
