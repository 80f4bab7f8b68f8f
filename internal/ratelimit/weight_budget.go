package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default budget configuration values.
const (
	// Binance allows 6000 weight per minute per IP; stay well below it.
	DefaultBudget     = 1200
	DefaultWindowSize = time.Minute
	DefaultKeyTTL     = 2 * time.Minute
	DefaultKeyPrefix  = "binance:weight:"
)

// ErrBudgetExhausted is returned by Wait when ctx ends before weight frees up
var ErrBudgetExhausted = errors.New("request weight budget exhausted")

// consumeScript atomically checks and charges the current window.
var consumeScript = redis.NewScript(`
	local key = KEYS[1]
	local weight = tonumber(ARGV[1])
	local budget = tonumber(ARGV[2])
	local ttl = tonumber(ARGV[3])

	local used = tonumber(redis.call('GET', key) or '0')
	if used + weight > budget then
		return {0, used}
	end

	redis.call('INCRBY', key, weight)
	redis.call('EXPIRE', key, ttl)
	return {1, used + weight}
`)

// WeightBudget coordinates request weight across every process sharing one
// Binance API key, using fixed windows in Redis.
type WeightBudget struct {
	redis      redis.Cmdable
	budget     int
	windowSize time.Duration
	keyTTL     time.Duration
	prefix     string
	now        func() time.Time
}

// WeightBudgetConfig holds configuration for the budget.
type WeightBudgetConfig struct {
	// Redis is required.
	Redis redis.Cmdable
	// Budget is the weight allowed per window. Default: 1200.
	Budget int
	// WindowSize defaults to one minute.
	WindowSize time.Duration
	// KeyTTL should be at least WindowSize. Default: two minutes.
	KeyTTL time.Duration
	// KeyPrefix namespaces the Redis keys. Default: "binance:weight:".
	KeyPrefix string
}

// WeightUsage reports consumption in the current window
type WeightUsage struct {
	Used        int       `json:"used"`
	Budget      int       `json:"budget"`
	WindowStart time.Time `json:"window_start"`
}

// Validate checks if the configuration is valid.
func (c *WeightBudgetConfig) Validate() error {
	if c.Redis == nil {
		return errors.New("redis client is required")
	}
	if c.Budget < 0 {
		return errors.New("budget cannot be negative")
	}
	if c.WindowSize < 0 || c.KeyTTL < 0 {
		return errors.New("durations cannot be negative")
	}
	return nil
}

// NewWeightBudget creates a budget with the given configuration
func NewWeightBudget(cfg *WeightBudgetConfig) (*WeightBudget, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	b := &WeightBudget{
		redis:      cfg.Redis,
		budget:     cfg.Budget,
		windowSize: cfg.WindowSize,
		keyTTL:     cfg.KeyTTL,
		prefix:     cfg.KeyPrefix,
		now:        time.Now,
	}
	if b.budget == 0 {
		b.budget = DefaultBudget
	}
	if b.windowSize == 0 {
		b.windowSize = DefaultWindowSize
	}
	if b.keyTTL == 0 {
		b.keyTTL = DefaultKeyTTL
	}
	if b.prefix == "" {
		b.prefix = DefaultKeyPrefix
	}
	return b, nil
}

func (b *WeightBudget) windowStart() time.Time {
	return b.now().Truncate(b.windowSize)
}

func (b *WeightBudget) key(windowStart time.Time) string {
	return b.prefix + strconv.FormatInt(windowStart.UnixMilli(), 10)
}

// TryConsume charges weight to the current window when it fits. When it does
// not, it returns false and the time until the next window.
func (b *WeightBudget) TryConsume(ctx context.Context, weight int) (bool, time.Duration, error) {
	if weight <= 0 {
		return true, 0, nil
	}

	start := b.windowStart()
	ttlSeconds := int(b.keyTTL.Seconds())
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}

	result, err := consumeScript.Run(ctx, b.redis, []string{b.key(start)}, weight, b.budget, ttlSeconds).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("failed to charge request weight: %w", err)
	}

	if result[0] == 1 {
		return true, 0, nil
	}
	return false, b.untilNextWindow(start), nil
}

func (b *WeightBudget) untilNextWindow(start time.Time) time.Duration {
	wait := start.Add(b.windowSize).Sub(b.now())
	if wait < 0 {
		wait = 0
	}
	// land inside the next window
	return wait + time.Millisecond
}

// Wait blocks until weight fits into a window or ctx ends. A request heavier
// than the whole budget can never fit and fails immediately.
func (b *WeightBudget) Wait(ctx context.Context, weight int) error {
	if weight > b.budget {
		return fmt.Errorf("%w: weight %d exceeds budget %d", ErrBudgetExhausted, weight, b.budget)
	}

	for {
		ok, wait, err := b.TryConsume(ctx, weight)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %v", ErrBudgetExhausted, ctx.Err())
		}
	}
}

// Usage returns consumption in the current window
func (b *WeightBudget) Usage(ctx context.Context) (*WeightUsage, error) {
	start := b.windowStart()

	used, err := b.redis.Get(ctx, b.key(start)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read request weight: %w", err)
	}

	return &WeightUsage{
		Used:        used,
		Budget:      b.budget,
		WindowStart: start,
	}, nil
}

// Budget returns the configured weight per window
func (b *WeightBudget) Budget() int {
	return b.budget
}
