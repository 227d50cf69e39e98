package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

const redisMergeRetries = 5

var ErrFieldNotIndexed = errors.New("field is not indexed")

// RedisStore keeps each document as a JSON string and maintains one set per
// indexed field value so equality queries avoid scanning the keyspace.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	indexed map[string]bool
}

func NewRedisStore(client *redis.Client, prefix string, indexedFields ...string) *RedisStore {
	if prefix == "" {
		prefix = "docs"
	}
	indexed := make(map[string]bool, len(indexedFields))
	for _, f := range indexedFields {
		indexed[f] = true
	}
	return &RedisStore{client: client, prefix: prefix, indexed: indexed}
}

func (s *RedisStore) docKey(collection, id string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, collection, id)
}

func (s *RedisStore) indexKey(collection, field string, value any) string {
	raw, _ := json.Marshal(value)
	return fmt.Sprintf("%s:%s:idx:%s:%s", s.prefix, collection, field, raw)
}

func (s *RedisStore) Get(ctx context.Context, collection, id string) (Document, error) {
	raw, err := s.client.Get(ctx, s.docKey(collection, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s/%s: %w: %w", collection, id, ErrLookupFailed, err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w: %w", collection, id, ErrLookupFailed, err)
	}
	return doc, nil
}

func (s *RedisStore) Merge(ctx context.Context, collection, id string, patch Document) error {
	normalized, err := Normalize(patch)
	if err != nil {
		return err
	}
	key := s.docKey(collection, id)

	txf := func(tx *redis.Tx) error {
		current := Document{}
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(raw, &current); err != nil {
				return err
			}
		}

		previous := make(map[string]any, len(s.indexed))
		for field := range s.indexed {
			if v, ok := current[field]; ok {
				previous[field] = v
			}
		}

		merged := MergeDocuments(current, normalized)
		encoded, err := json.Marshal(merged)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			for field := range s.indexed {
				oldValue, hadOld := previous[field]
				newValue, hasNew := merged[field]
				if hadOld && (!hasNew || !equalValue(oldValue, newValue)) {
					pipe.SRem(ctx, s.indexKey(collection, field, oldValue), id)
				}
				if hasNew {
					pipe.SAdd(ctx, s.indexKey(collection, field, newValue), id)
				}
			}
			return nil
		})
		return err
	}

	for i := 0; i < redisMergeRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return fmt.Errorf("merge %s/%s: %w: %w", collection, id, ErrWriteFailed, err)
	}
	return fmt.Errorf("merge %s/%s: %w: too many concurrent updates", collection, id, ErrWriteFailed)
}

func (s *RedisStore) Query(ctx context.Context, collection, field string, value any) ([]Snapshot, error) {
	if err := validField(field); err != nil {
		return nil, err
	}
	if !s.indexed[field] {
		return nil, fmt.Errorf("query %s.%s: %w", collection, field, ErrFieldNotIndexed)
	}

	ids, err := s.client.SMembers(ctx, s.indexKey(collection, field, value)).Result()
	if err != nil {
		return nil, fmt.Errorf("query %s.%s: %w: %w", collection, field, ErrLookupFailed, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	sort.Strings(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.docKey(collection, id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load %s: %w: %w", collection, ErrLookupFailed, err)
	}

	var out []Snapshot
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var doc Document
		if err := json.Unmarshal([]byte(str), &doc); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w: %w", collection, ids[i], ErrLookupFailed, err)
		}
		// skip stale index entries
		if stored, ok := doc[field]; !ok || !equalValue(stored, value) {
			continue
		}
		out = append(out, Snapshot{ID: ids[i], Data: doc})
	}
	return out, nil
}
