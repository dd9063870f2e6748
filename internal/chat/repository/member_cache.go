package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"team_portal_service/internal/chat/domain"
	"team_portal_service/pkg/database"
	"team_portal_service/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const memberCachePrefix = "chat:member:"

type cachedMemberRepository struct {
	next  MemberRepository
	cache database.RedisRepository[domain.Member]
	ttl   time.Duration
}

// NewCachedMemberRepository 以 redis 快取 FindByID 的成員資料 (不含密碼)
// redis 失敗時直接查 next, 不影響呼叫端
func NewCachedMemberRepository(next MemberRepository, cache database.RedisRepository[domain.Member], ttl time.Duration) MemberRepository {
	return &cachedMemberRepository{next: next, cache: cache, ttl: ttl}
}

func (r *cachedMemberRepository) FindByID(ctx context.Context, id int64) (*domain.Member, error) {
	key := strconv.FormatInt(id, 10)

	cached, err := r.cache.Get(ctx, key)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, database.ErrCacheMiss) {
		logger.Log.Warn("member cache get failed", zap.Int64("member_id", id), zap.Error(err))
	}

	member, err := r.next.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := r.cache.Set(ctx, key, *member, r.ttl); err != nil {
		logger.Log.Warn("member cache set failed", zap.Int64("member_id", id), zap.Error(err))
	}
	return member, nil
}

// FindByEmail 用於登入需要密碼, 不走快取
func (r *cachedMemberRepository) FindByEmail(ctx context.Context, email string) (*domain.Member, error) {
	return r.next.FindByEmail(ctx, email)
}

// NewMemberCache redis repository of member profile
func NewMemberCache(client *redis.Client) database.RedisRepository[domain.Member] {
	return database.NewRedisRepository[domain.Member](client, memberCachePrefix)
}
