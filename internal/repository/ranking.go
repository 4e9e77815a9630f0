package repository

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"cartflow/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RankingType string

const (
	RankingDaily  RankingType = "DAILY"
	RankingWeekly RankingType = "WEEKLY"
)

const (
	dailyKeyPrefix  = "ranking:daily:"
	weeklyKeyPrefix = "ranking:weekly:"
	timestampSuffix = ":timestamp"

	// Superset fetched before the recency tie-break re-sort.
	maxOverFetch = 100
)

// RankingEntry is a read-only projection computed from the store on each query.
type RankingEntry struct {
	ProductID int64
	Score     float64
	Rank      int
}

type RankingStoreInterface interface {
	IncrementScore(ctx context.Context, typ RankingType, productID int64, delta float64) error
	GetTopRanking(ctx context.Context, typ RankingType, limit int) ([]RankingEntry, error)
	GetRank(ctx context.Context, typ RankingType, productID int64) (*int64, error)
	GetScore(ctx context.Context, typ RankingType, productID int64) (*float64, error)
}

// incrementScript applies the score delta, the tie-break timestamp, and the
// TTL of both keys in one atomic round trip. Doing these as separate commands
// would let the sorted set outlive its timestamp hash under concurrency.
//
// KEYS[1] ranking zset, KEYS[2] timestamp hash
// ARGV[1] delta, ARGV[2] member, ARGV[3] now (unix milli), ARGV[4] ttl (milli)
var incrementScript = redis.NewScript(`
redis.call("ZINCRBY", KEYS[1], ARGV[1], ARGV[2])
redis.call("HSET", KEYS[2], ARGV[2], ARGV[3])
redis.call("PEXPIRE", KEYS[1], ARGV[4])
redis.call("PEXPIRE", KEYS[2], ARGV[4])
return 1
`)

// RankingStore keeps one leaderboard per (type, calendar bucket). The active
// key rolls over by itself at midnight / ISO week boundary; TTLs slightly
// longer than the bucket keep it queryable for late stragglers, then the
// bucket self-expires.
type RankingStore struct {
	rdb       *redis.Client
	dailyTTL  time.Duration
	weeklyTTL time.Duration
	now       func() time.Time
}

func NewRankingStore(rdb *redis.Client, dailyTTL, weeklyTTL time.Duration) *RankingStore {
	return &RankingStore{
		rdb:       rdb,
		dailyTTL:  dailyTTL,
		weeklyTTL: weeklyTTL,
		now:       time.Now,
	}
}

// WithClock replaces the wall clock, used by tests to pin bucket derivation
// and tie-break timestamps.
func (s *RankingStore) WithClock(now func() time.Time) *RankingStore {
	s.now = now
	return s
}

func (s *RankingStore) IncrementScore(ctx context.Context, typ RankingType, productID int64, delta float64) error {
	rankingKey := s.bucketKey(typ)
	timestampKey := rankingKey + timestampSuffix
	member := strconv.FormatInt(productID, 10)
	ttl := s.ttlFor(typ)

	err := incrementScript.Run(ctx, s.rdb,
		[]string{rankingKey, timestampKey},
		delta, member, s.now().UnixMilli(), ttl.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("increment ranking score: %w", err)
	}

	logger.Debug("ranking score updated",
		zap.String("type", string(typ)),
		zap.Int64("product_id", productID),
		zap.Float64("delta", delta))
	return nil
}

// GetTopRanking returns the top limit members by score descending; equal
// scores rank the most recently updated member first. The underlying zset
// only orders by score, so a superset is fetched and re-sorted against the
// timestamp hash.
func (s *RankingStore) GetTopRanking(ctx context.Context, typ RankingType, limit int) ([]RankingEntry, error) {
	rankingKey := s.bucketKey(typ)
	timestampKey := rankingKey + timestampSuffix

	fetchLimit := limit * 2
	if fetchLimit > maxOverFetch {
		fetchLimit = maxOverFetch
	}

	members, err := s.rdb.ZRevRangeWithScores(ctx, rankingKey, 0, int64(fetchLimit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch ranking range: %w", err)
	}
	if len(members) == 0 {
		return []RankingEntry{}, nil
	}

	fields := make([]string, len(members))
	for i, m := range members {
		fields[i] = m.Member.(string)
	}
	timestamps, err := s.rdb.HMGet(ctx, timestampKey, fields...).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch ranking timestamps: %w", err)
	}

	tsByMember := make(map[string]int64, len(fields))
	for i, field := range fields {
		tsByMember[field] = parseTimestamp(timestamps[i])
	}

	sort.SliceStable(members, func(i, j int) bool {
		if members[i].Score != members[j].Score {
			return members[i].Score > members[j].Score
		}
		return tsByMember[members[i].Member.(string)] > tsByMember[members[j].Member.(string)]
	})

	if len(members) > limit {
		members = members[:limit]
	}

	entries := make([]RankingEntry, 0, len(members))
	for i, m := range members {
		productID, err := strconv.ParseInt(m.Member.(string), 10, 64)
		if err != nil {
			logger.Warn("non-numeric ranking member skipped", zap.Any("member", m.Member))
			continue
		}
		entries = append(entries, RankingEntry{
			ProductID: productID,
			Score:     m.Score,
			Rank:      i + 1,
		})
	}
	return entries, nil
}

// GetRank returns the member's 1-based rank, or nil when absent.
func (s *RankingStore) GetRank(ctx context.Context, typ RankingType, productID int64) (*int64, error) {
	rank, err := s.rdb.ZRevRank(ctx, s.bucketKey(typ), strconv.FormatInt(productID, 10)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rank++
	return &rank, nil
}

func (s *RankingStore) GetScore(ctx context.Context, typ RankingType, productID int64) (*float64, error) {
	score, err := s.rdb.ZScore(ctx, s.bucketKey(typ), strconv.FormatInt(productID, 10)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &score, nil
}

func (s *RankingStore) bucketKey(typ RankingType) string {
	today := s.now()
	if typ == RankingWeekly {
		year, week := today.ISOWeek()
		return fmt.Sprintf("%s%d:%02d", weeklyKeyPrefix, year, week)
	}
	return dailyKeyPrefix + today.Format("2006-01-02")
}

func (s *RankingStore) ttlFor(typ RankingType) time.Duration {
	if typ == RankingWeekly {
		return s.weeklyTTL
	}
	return s.dailyTTL
}

func parseTimestamp(v any) int64 {
	if v == nil {
		return 0
	}
	s, ok := v.(string)
	if !ok {
		return 0
	}
	ts, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return ts
}
