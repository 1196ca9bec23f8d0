package federation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const payloadField = "payload"

// RedisTransportConfig configures the Redis Streams transport.
type RedisTransportConfig struct {
	// Stream is the stream key every instance publishes to.
	Stream string `yaml:"stream" json:"stream"`

	// MaxLen caps the stream length (approximate trimming). Zero disables it.
	MaxLen int64 `yaml:"max_len" json:"max_len"`

	// Block is how long Poll waits for new messages. Zero or less never blocks.
	Block time.Duration `yaml:"block" json:"block"`
}

// DefaultRedisTransportConfig returns the default stream settings.
func DefaultRedisTransportConfig() RedisTransportConfig {
	return RedisTransportConfig{
		Stream: "agentrouter:federation",
		MaxLen: 10000,
		Block:  500 * time.Millisecond,
	}
}

// RedisTransport publishes envelopes to a Redis stream and reads them back
// through a consumer group owned by this instance. Every instance has its own
// group, so each one sees every message once it has been acknowledged.
type RedisTransport struct {
	client     redis.UniversalClient
	config     RedisTransportConfig
	instanceID string
	group      string
	logger     *zap.Logger

	mu         sync.Mutex
	groupReady bool
	// ackFailed is set when an XACK fails so the next Poll drains this
	// consumer's pending entries before reading new ones.
	ackFailed bool
}

// NewRedisTransport creates a transport for instanceID on client.
func NewRedisTransport(client redis.UniversalClient, instanceID string, config RedisTransportConfig, logger *zap.Logger) *RedisTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Stream == "" {
		config.Stream = DefaultRedisTransportConfig().Stream
	}
	return &RedisTransport{
		client:     client,
		config:     config,
		instanceID: instanceID,
		group:      "agentrouter-" + instanceID,
		logger: logger.With(
			zap.String("component", "federation_redis"),
			zap.String("stream", config.Stream),
		),
	}
}

// EnsureGroup creates this instance's consumer group if it does not exist.
// Messages published before the group existed are not delivered to it.
func (t *RedisTransport) EnsureGroup(ctx context.Context) error {
	return t.ensureGroup(ctx, "$")
}

// ensureGroup creates the group starting at start unless it is already known
// to exist. BUSYGROUP counts as success.
func (t *RedisTransport) ensureGroup(ctx context.Context, start string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.groupReady {
		return nil
	}
	err := t.client.XGroupCreateMkStream(ctx, t.config.Stream, t.group, start).Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s: %w", t.group, err)
	}
	t.groupReady = true
	t.logger.Debug("consumer group ready", zap.String("group", t.group), zap.String("start", start))
	return nil
}

// resetGroup forgets the group after Redis reported it missing.
func (t *RedisTransport) resetGroup() {
	t.mu.Lock()
	t.groupReady = false
	t.ackFailed = false
	t.mu.Unlock()
}

func isNoGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "NOGROUP")
}

// Publish appends payload to the stream.
func (t *RedisTransport) Publish(ctx context.Context, payload []byte) error {
	args := &redis.XAddArgs{
		Stream: t.config.Stream,
		Values: map[string]any{
			payloadField:  string(payload),
			"instance_id": t.instanceID,
		},
	}
	if t.config.MaxLen > 0 {
		args.MaxLen = t.config.MaxLen
		args.Approx = true
	}
	if err := t.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", t.config.Stream, err)
	}
	return nil
}

// Poll reads up to max messages for this instance's group and acknowledges
// them. When the group has vanished (Redis restarted without persistence, or
// the stream was deleted) it is recreated from the start of the stream and the
// read is retried once.
func (t *RedisTransport) Poll(ctx context.Context, max int) ([][]byte, error) {
	if err := t.EnsureGroup(ctx); err != nil {
		return nil, err
	}
	if max <= 0 {
		max = 1
	}

	msgs, err := t.read(ctx, max)
	if isNoGroup(err) {
		t.logger.Warn("consumer group missing, recreating", zap.String("group", t.group), zap.Error(err))
		t.resetGroup()
		if err := t.ensureGroup(ctx, "0"); err != nil {
			return nil, err
		}
		msgs, err = t.read(ctx, max)
	}
	if err != nil {
		return nil, err
	}

	var (
		out [][]byte
		ids []string
	)
	for _, msg := range msgs {
		ids = append(ids, msg.ID)
		raw, ok := msg.Values[payloadField].(string)
		if !ok {
			t.logger.Info("dropping stream entry without payload", zap.String("id", msg.ID))
			continue
		}
		out = append(out, []byte(raw))
	}

	if len(ids) > 0 {
		if err := t.client.XAck(ctx, t.config.Stream, t.group, ids...).Err(); err != nil {
			// Left pending: the next Poll re-reads them and the merge dedupes samples.
			t.logger.Warn("failed to ack federation messages", zap.Int("count", len(ids)), zap.Error(err))
			t.mu.Lock()
			t.ackFailed = true
			t.mu.Unlock()
		}
	}
	return out, nil
}

// read returns this consumer's pending entries after a failed ack, otherwise
// new entries.
func (t *RedisTransport) read(ctx context.Context, max int) ([]redis.XMessage, error) {
	t.mu.Lock()
	drainPending := t.ackFailed
	t.mu.Unlock()

	if drainPending {
		msgs, err := t.readGroup(ctx, "0", max, -1)
		if err != nil {
			return nil, err
		}
		if len(msgs) > 0 {
			return msgs, nil
		}
		t.mu.Lock()
		t.ackFailed = false
		t.mu.Unlock()
	}

	block := t.config.Block
	if block <= 0 {
		block = -1
	}
	return t.readGroup(ctx, ">", max, block)
}

func (t *RedisTransport) readGroup(ctx context.Context, id string, max int, block time.Duration) ([]redis.XMessage, error) {
	streams, err := t.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    t.group,
		Consumer: t.instanceID,
		Streams:  []string{t.config.Stream, id},
		Count:    int64(max),
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup %s: %w", t.config.Stream, err)
	}

	var msgs []redis.XMessage
	for _, stream := range streams {
		msgs = append(msgs, stream.Messages...)
	}
	return msgs, nil
}
