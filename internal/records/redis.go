package records

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisStore persists recordings as hashes, with a sorted set indexing
// ids by submission time so listing newest-first is a single ZREVRANGE.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection. prefix
// namespaces all keys, e.g. "voicetake:".
func NewRedisStore(ctx context.Context, addr, prefix string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) recordKey(id string) string {
	return s.prefix + "recording:" + id
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "recordings:by_date"
}

// recordFields flattens a Recording into hash fields. Nullable fields are
// simply absent when unset.
func recordFields(rec *Recording) map[string]interface{} {
	fields := map[string]interface{}{
		"id":              rec.ID,
		"submission_date": rec.SubmissionDate.Format(time.RFC3339Nano),
		"script_text":     rec.ScriptText,
		"transcription":   rec.Transcription,
	}
	if rec.AccuracyScore != nil {
		fields["accuracy_score"] = strconv.FormatFloat(*rec.AccuracyScore, 'f', -1, 64)
	}
	if rec.S3Filepath != nil {
		fields["s3_filepath"] = *rec.S3Filepath
	}
	return fields
}

// recordFromFields rebuilds a Recording from hash fields.
func recordFromFields(fields map[string]string) (*Recording, error) {
	rec := &Recording{
		ID:            fields["id"],
		ScriptText:    fields["script_text"],
		Transcription: fields["transcription"],
	}
	if v, ok := fields["submission_date"]; ok {
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("invalid submission_date %q: %w", v, err)
		}
		rec.SubmissionDate = ts
	}
	if v, ok := fields["accuracy_score"]; ok {
		score, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid accuracy_score %q: %w", v, err)
		}
		rec.AccuracyScore = &score
	}
	if v, ok := fields["s3_filepath"]; ok {
		rec.S3Filepath = &v
	}
	return rec, nil
}

func (s *RedisStore) Create(ctx context.Context, rec *Recording) error {
	key := s.recordKey(rec.ID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, recordFields(rec))
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{
		Score:  float64(rec.SubmissionDate.UnixNano()),
		Member: rec.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert recording: %w", err)
	}
	return nil
}

func (s *RedisStore) SetFilepath(ctx context.Context, id, path string) error {
	key := s.recordKey(id)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to check recording: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	if err := s.client.HSet(ctx, key, "s3_filepath", path).Err(); err != nil {
		return fmt.Errorf("failed to update recording filepath: %w", err)
	}
	return nil
}

func (s *RedisStore) SetAccuracyScore(ctx context.Context, id string, score float64) error {
	key := s.recordKey(id)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to check recording: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	value := strconv.FormatFloat(score, 'f', -1, 64)
	if err := s.client.HSet(ctx, key, "accuracy_score", value).Err(); err != nil {
		return fmt.Errorf("failed to update recording score: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Recording, error) {
	fields, err := s.client.HGetAll(ctx, s.recordKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query recording: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return recordFromFields(fields)
}

func (s *RedisStore) List(ctx context.Context) ([]*Recording, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}

	recs := make([]*Recording, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Get(ctx, id)
		if err == ErrNotFound {
			continue // index entry for a deleted hash
		}
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
