package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/okian/vsrank/internal/domain/model"
	"github.com/okian/vsrank/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

const redisBackend = "redis"

// Redis is a Store keeping one hash per mode. Field is the participant id,
// value is "mu sigma"; an empty value is a cleared row.
type Redis struct {
	client redis.UniversalClient
}

// NewRedis wraps an existing client.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

// DialRedis connects and pings the server.
func DialRedis(ctx context.Context, addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return NewRedis(client), nil
}

// HashKey is the hash holding mode's ratings.
func HashKey(mode model.Mode) string {
	return "vsrank:" + strings.ReplaceAll(TableName(mode), "_", ":")
}

func encodeRating(r Record) string {
	return strconv.FormatFloat(r.Mu, 'g', -1, 64) + " " + strconv.FormatFloat(r.Sigma, 'g', -1, 64)
}

func decodeRating(id model.ParticipantID, v string) (Record, error) {
	muS, sigmaS, ok := strings.Cut(v, " ")
	if !ok {
		return Record{}, fmt.Errorf("%w: %d: %q", ErrCorrupt, id, v)
	}
	mu, err := strconv.ParseFloat(muS, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %d: %w", ErrCorrupt, id, err)
	}
	sigma, err := strconv.ParseFloat(sigmaS, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %d: %w", ErrCorrupt, id, err)
	}
	return Record{ParticipantID: id, Mu: mu, Sigma: sigma}, nil
}

func observeRedis(op string, start time.Time, err error) {
	metrics.RecordStorageLatency(redisBackend, op, float64(time.Since(start).Microseconds())/1000)
	if err != nil && !errors.Is(err, ErrNotFound) {
		metrics.RecordStorageError(redisBackend, op)
	}
}

func checkMode(mode model.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, mode model.Mode, id model.ParticipantID) (rec Record, err error) {
	defer func(start time.Time) { observeRedis("get", start, err) }(time.Now())

	if err := checkMode(mode); err != nil {
		return Record{}, err
	}
	v, err := r.client.HGet(ctx, HashKey(mode), strconv.FormatInt(int64(id), 10)).Result()
	if errors.Is(err, redis.Nil) || (err == nil && v == "") {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return decodeRating(id, v)
}

func (r *Redis) Upsert(ctx context.Context, mode model.Mode, rec Record) error {
	return r.UpsertMany(ctx, mode, []Record{rec})
}

// UpsertMany writes every record with a single HSET, which redis applies
// atomically.
func (r *Redis) UpsertMany(ctx context.Context, mode model.Mode, recs []Record) (err error) {
	defer func(start time.Time) { observeRedis("upsert", start, err) }(time.Now())

	if err := checkMode(mode); err != nil {
		return err
	}
	if len(recs) == 0 {
		return nil
	}
	values := make([]any, 0, 2*len(recs))
	for _, rec := range recs {
		values = append(values, strconv.FormatInt(int64(rec.ParticipantID), 10), encodeRating(rec))
	}
	return r.client.HSet(ctx, HashKey(mode), values...).Err()
}

// clearScript blanks an existing field and never creates one. It replies 1
// when the field was cleared and 0 when it did not exist.
var clearScript = redis.NewScript(`
if redis.call("HEXISTS", KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call("HSET", KEYS[1], ARGV[1], "")
return 1
`)

func (r *Redis) Clear(ctx context.Context, mode model.Mode, id model.ParticipantID) (err error) {
	defer func(start time.Time) { observeRedis("clear", start, err) }(time.Now())

	if err := checkMode(mode); err != nil {
		return err
	}
	field := strconv.FormatInt(int64(id), 10)
	n, err := clearScript.Run(ctx, r.client, []string{HashKey(mode)}, field).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Redis) Scan(ctx context.Context, mode model.Mode) (out []Record, err error) {
	defer func(start time.Time) { observeRedis("scan", start, err) }(time.Now())

	if err := checkMode(mode); err != nil {
		return nil, err
	}
	all, err := r.client.HGetAll(ctx, HashKey(mode)).Result()
	if err != nil {
		return nil, err
	}
	out = make([]Record, 0, len(all))
	for field, v := range all {
		if v == "" {
			continue
		}
		n, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q", ErrCorrupt, field)
		}
		rec, err := decodeRating(model.ParticipantID(n), v)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParticipantID < out[j].ParticipantID })
	return out, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
