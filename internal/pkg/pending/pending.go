package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

var ErrCorruptIntent = errors.New("corrupt pending intent")

// Store 待支付意向，按用户存放在一个 Redis hash 中，同一用户只保留最新一次
type Store struct {
	client *redis.Client
	key    string
}

// Intent 用户申请二维码后留下的待对账意向
type Intent struct {
	UserID    int64           `json:"user_id"`
	Months    int             `json:"months"`
	Amount    decimal.Decimal `json:"amount"`
	Memo      string          `json:"memo"`
	CreatedAt time.Time       `json:"created_at"`
}

func NewStore(client *redis.Client, key string) *Store {
	return &Store{
		client: client,
		key:    key,
	}
}

// Put 写入意向，覆盖该用户之前的意向
func (s *Store) Put(ctx context.Context, intent *Intent) error {
	data, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("failed to marshal intent: %w", err)
	}

	return s.client.HSet(ctx, s.key, field(intent.UserID), data).Err()
}

// Get 获取用户的意向，不存在返回 nil
func (s *Store) Get(ctx context.Context, userID int64) (*Intent, error) {
	data, err := s.client.HGet(ctx, s.key, field(userID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get intent: %w", err)
	}

	var intent Intent
	if err := json.Unmarshal(data, &intent); err != nil {
		return nil, fmt.Errorf("failed to unmarshal intent: %w", err)
	}
	return &intent, nil
}

// List 返回全部意向，按创建时间升序；任一条目无法解析时整体报错，需人工处理
func (s *Store) List(ctx context.Context) ([]*Intent, error) {
	entries, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list intents: %w", err)
	}

	intents := make([]*Intent, 0, len(entries))
	for f, raw := range entries {
		var intent Intent
		if err := json.Unmarshal([]byte(raw), &intent); err != nil {
			return nil, fmt.Errorf("%w: %s[%s]=%q: %w", ErrCorruptIntent, s.key, f, raw, err)
		}
		intents = append(intents, &intent)
	}

	sort.Slice(intents, func(i, j int) bool {
		return intents[i].CreatedAt.Before(intents[j].CreatedAt)
	})
	return intents, nil
}

// Remove 删除用户的意向
func (s *Store) Remove(ctx context.Context, userID int64) error {
	return s.client.HDel(ctx, s.key, field(userID)).Err()
}

// Length 意向数量
func (s *Store) Length(ctx context.Context) (int64, error) {
	return s.client.HLen(ctx, s.key).Result()
}

func field(userID int64) string {
	return strconv.FormatInt(userID, 10)
}
