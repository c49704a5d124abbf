package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/elevend0g/vicw/internal/model"
)

// RedisChunkStore implements ChunkStore (C1) against Redis, grounded on
// original_source/app/redis_storage.py, the real chunk store of the
// distilled system: keys of shape chunk:<chunk_id>, plus an auxiliary
// created_at-ordered index (spec §6 "Persisted layouts").
type RedisChunkStore struct {
	client *redis.Client
}

// NewRedisChunkStore wraps an existing Redis client.
func NewRedisChunkStore(client *redis.Client) *RedisChunkStore {
	return &RedisChunkStore{client: client}
}

var _ ChunkStore = (*RedisChunkStore)(nil)

func chunkKey(chunkID string) string { return "chunk:" + chunkID }

const chunkIndexKey = "chunk:index"

func (r *RedisChunkStore) PutChunk(ctx context.Context, c model.Chunk) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("redis chunk store: marshal chunk: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, chunkKey(c.ChunkID), payload, 0)
	pipe.ZAdd(ctx, chunkIndexKey, redis.Z{
		Score:  float64(c.CreatedAt.UnixNano()),
		Member: c.ChunkID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis chunk store: put chunk: %w", err)
	}
	return nil
}

func (r *RedisChunkStore) GetChunk(ctx context.Context, chunkID string) (model.Chunk, bool, error) {
	raw, err := r.client.Get(ctx, chunkKey(chunkID)).Bytes()
	if err == redis.Nil {
		return model.Chunk{}, false, nil
	}
	if err != nil {
		return model.Chunk{}, false, fmt.Errorf("redis chunk store: get chunk: %w", err)
	}
	var c model.Chunk
	if err := json.Unmarshal(raw, &c); err != nil {
		return model.Chunk{}, false, fmt.Errorf("redis chunk store: unmarshal chunk: %w", err)
	}
	return c, true, nil
}

func (r *RedisChunkStore) DeleteChunk(ctx context.Context, chunkID string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, chunkKey(chunkID))
	pipe.ZRem(ctx, chunkIndexKey, chunkID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis chunk store: delete chunk: %w", err)
	}
	return nil
}

// RecentChunkIDs returns up to limit chunk IDs ordered by created_at descending, using the
// auxiliary sorted-set index.
func (r *RedisChunkStore) RecentChunkIDs(ctx context.Context, limit int) ([]string, error) {
	ids, err := r.client.ZRevRange(ctx, chunkIndexKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis chunk store: recent ids: %w", err)
	}
	return ids, nil
}

// StoreResponseEmbedding and RecentResponseEmbeddings implement the echo-history persistence pattern observed
// in tests/test_loop_detection.py (SemanticManager.store_response_embedding / check_response_similarity),
// kept as an optional durable mirror of the in-process echo ring across process restarts.
func (r *RedisChunkStore) StoreResponseEmbedding(ctx context.Context, sessionID string, seq int64, embedding model.Embedding, ringSize int) error {
	raw, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("redis chunk store: marshal embedding: %w", err)
	}
	key := "echo:" + sessionID
	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(seq), Member: raw})
	pipe.ZRemRangeByRank(ctx, key, 0, int64(-ringSize-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis chunk store: store echo embedding: %w", err)
	}
	return nil
}

// RecentResponseEmbeddings returns the most recent ring of response embeddings for a session.
func (r *RedisChunkStore) RecentResponseEmbeddings(ctx context.Context, sessionID string) ([]model.Embedding, error) {
	raws, err := r.client.ZRange(ctx, "echo:"+sessionID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis chunk store: recent echo embeddings: %w", err)
	}
	out := make([]model.Embedding, 0, len(raws))
	for _, raw := range raws {
		var e model.Embedding
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
