package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	appErrors "github.com/unclebandit/smsleopard-reminders/internal/errors"
	"github.com/unclebandit/smsleopard-reminders/internal/model"
)

const (
	redisKeyPrefix = "sms_history:key:"
	redisIDPrefix  = "sms_history:id:"
)

// claimScript sets the record only when its key is free, then indexes it by id.
var claimScript = redis.NewScript(`
if redis.call('SET', KEYS[1], ARGV[1], 'NX') then
  redis.call('SET', KEYS[2], KEYS[1])
  return 1
end
return 0
`)

// finalizeScript swaps in the final record when the stored one has the same id
// and is still queued.
var finalizeScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
  return 0
end
local rec = cjson.decode(raw)
if rec.id ~= ARGV[1] or rec.status ~= ARGV[2] then
  return 0
end
redis.call('SET', KEYS[1], ARGV[3], 'KEEPTTL')
return 1
`)

// RedisDeliveryRepository keeps the ledger as one JSON value per key.
// SET NX provides the uniqueness guarantee.
type RedisDeliveryRepository struct {
	RDB *redis.Client
}

func RedisLedgerKey(key model.DeliveryKey) string {
	return fmt.Sprintf("%s%s|%s|%s", redisKeyPrefix, key.Phone, key.TemplateCode, key.ScheduledFor.UTC().Format(time.RFC3339Nano))
}

func (r *RedisDeliveryRepository) Claim(ctx context.Context, rec *model.DeliveryRecord) error {
	rec.Status = model.DeliveryQueued
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	won, err := claimScript.Run(ctx, r.RDB, []string{RedisLedgerKey(rec.Key()), redisIDPrefix + rec.ID}, payload).Int()
	if err != nil {
		return err
	}
	if won == 0 {
		return appErrors.ErrAlreadyClaimed
	}
	return nil
}

func (r *RedisDeliveryRepository) FindByKey(ctx context.Context, key model.DeliveryKey) (*model.DeliveryRecord, error) {
	return r.get(ctx, RedisLedgerKey(key))
}

func (r *RedisDeliveryRepository) MarkSent(ctx context.Context, rec *model.DeliveryRecord) error {
	return r.finalize(ctx, rec, model.DeliverySent)
}

func (r *RedisDeliveryRepository) MarkFailed(ctx context.Context, rec *model.DeliveryRecord) error {
	return r.finalize(ctx, rec, model.DeliveryFailed)
}

// finalize replaces the stored record only while it is still rec's queued claim.
func (r *RedisDeliveryRepository) finalize(ctx context.Context, rec *model.DeliveryRecord, status model.DeliveryStatus) error {
	next := *rec
	next.Status = status
	payload, err := json.Marshal(next)
	if err != nil {
		return err
	}

	ok, err := finalizeScript.Run(ctx, r.RDB, []string{RedisLedgerKey(rec.Key())}, rec.ID, string(model.DeliveryQueued), payload).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return appErrors.ErrRecordNotFound
	}
	rec.Status = status
	return nil
}

func (r *RedisDeliveryRepository) get(ctx context.Context, key string) (*model.DeliveryRecord, error) {
	raw, err := r.RDB.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var rec model.DeliveryRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &rec, nil
}

func (r *RedisDeliveryRepository) all(ctx context.Context) ([]model.DeliveryRecord, error) {
	records := []model.DeliveryRecord{}
	iter := r.RDB.Scan(ctx, 0, redisKeyPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		rec, err := r.get(ctx, iter.Val())
		if err != nil {
			return nil, err
		}
		if rec != nil {
			records = append(records, *rec)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *RedisDeliveryRepository) ListRecent(ctx context.Context, limit int) ([]model.DeliveryRecord, error) {
	records, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (r *RedisDeliveryRepository) Stats(ctx context.Context) (model.DeliveryStats, error) {
	var stats model.DeliveryStats
	records, err := r.all(ctx)
	if err != nil {
		return stats, err
	}
	for _, rec := range records {
		stats.Add(rec.Status, 1)
	}
	return stats, nil
}

func (r *RedisDeliveryRepository) ClearFailed(ctx context.Context, id string) error {
	key, err := r.RDB.Get(ctx, redisIDPrefix+id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return appErrors.ErrRecordNotFound
		}
		return err
	}
	rec, err := r.get(ctx, key)
	if err != nil {
		return err
	}
	if rec == nil {
		return appErrors.ErrRecordNotFound
	}
	if rec.Status != model.DeliveryFailed {
		return appErrors.ErrRecordNotFailed
	}
	return r.RDB.Del(ctx, key, redisIDPrefix+id).Err()
}

var _ DeliveryRepositoryInterface = (*RedisDeliveryRepository)(nil)
