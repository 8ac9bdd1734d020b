package messaging

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"show-controller/internal/logger"
)

// Redis keys shared with ground control.
const (
	KeyShowHash     = "show"
	KeySettingsHash = "settings"
	StreamShow      = "events:show"

	ListAuth       = "show:auth"
	ListControl    = "show:control"
	ListStartTime  = "show:start-time"
	ListTrajectory = "show:trajectory"

	ChannelShow     = "show"
	ChannelSettings = "settings"
)

const streamMaxLen = 1000

type Callbacks struct {
	AuthorizeCallback  func(bool) error      // true for "authorize", false for "revoke"
	CancelCallback     func(bool) error      // true for "cancel", false for "resume"
	TakeoffCallback    func(float64) error   // test takeoff altitude, 0 for default
	ModeCallback       func(bool) error      // true for "enter", false for "exit"
	StartTimeCallback  func(time.Time) error // zero time clears the schedule
	TrajectoryCallback func(string) error    // path to load, empty to reload the configured one
	SettingsCallback   func(string) error    // setting key that was updated (e.g., "show.motor-start-lead")
}

type RedisClient struct {
	client    *redis.Client
	callbacks Callbacks
	logger    *logger.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewRedisClient(host string, port int, l *logger.Logger) *RedisClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisClient{
		client: redis.NewClient(&redis.Options{
			Addr: fmt.Sprintf("%s:%d", host, port),
			DB:   0,
		}),
		logger: l.WithTag("redis"),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (r *RedisClient) SetCallbacks(callbacks Callbacks) {
	r.callbacks = callbacks
}

func (r *RedisClient) Connect() error {
	r.logger.Infof("Attempting to connect to Redis at %s", r.client.Options().Addr)

	if err := r.client.Ping(r.ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	r.logger.Infof("Successfully connected to Redis")
	return nil
}

// StartListening starts all Redis listeners after system initialization is complete
func (r *RedisClient) StartListening() error {
	r.logger.Infof("Starting Redis listeners")

	pubsub := r.client.Subscribe(r.ctx, ChannelSettings)

	r.wg.Add(1)
	go r.redisListener(pubsub)

	r.wg.Add(4)
	go r.listCommandListener(ListAuth, r.handleAuthCommand)
	go r.listCommandListener(ListControl, r.handleControlCommand)
	go r.listCommandListener(ListStartTime, r.handleStartTimeCommand)
	go r.listCommandListener(ListTrajectory, r.handleTrajectoryCommand)

	return nil
}

func (r *RedisClient) listCommandListener(key string, handler func(string) error) {
	defer r.wg.Done()
	r.logger.Debugf("Starting list command listener for %s", key)

	for {
		select {
		case <-r.ctx.Done():
			return
		default:
			// short timeout so cancellation is noticed
			result, err := r.client.BRPop(r.ctx, 5*time.Second, key).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				if errors.Is(err, context.Canceled) {
					return
				}
				r.logger.Warnf("Error reading from %s list: %v", key, err)
				time.Sleep(time.Second)
				continue
			}

			if len(result) >= 2 { // BRPOP returns [key, value]
				value := result[1]
				r.logger.Debugf("Received command from %s: %s", key, value)
				if err := handler(value); err != nil {
					r.logger.Warnf("Error handling %s command: %v", key, err)
				}
			}
		}
	}
}

func (r *RedisClient) handleAuthCommand(value string) error {
	if r.callbacks.AuthorizeCallback == nil {
		return nil
	}
	switch value {
	case "authorize", "revoke":
		return r.callbacks.AuthorizeCallback(value == "authorize")
	default:
		return fmt.Errorf("invalid auth command: %s", value)
	}
}

// handleControlCommand accepts cancel, resume, enter, exit and
// takeoff[:altitude].
func (r *RedisClient) handleControlCommand(value string) error {
	cmd, arg, _ := strings.Cut(value, ":")
	switch cmd {
	case "cancel", "resume":
		if r.callbacks.CancelCallback == nil {
			return nil
		}
		return r.callbacks.CancelCallback(cmd == "cancel")
	case "enter", "exit":
		if r.callbacks.ModeCallback == nil {
			return nil
		}
		return r.callbacks.ModeCallback(cmd == "enter")
	case "takeoff":
		if r.callbacks.TakeoffCallback == nil {
			return nil
		}
		var alt float64
		if arg != "" {
			var err error
			if alt, err = strconv.ParseFloat(arg, 64); err != nil || alt < 0 {
				return fmt.Errorf("invalid takeoff altitude: %s", arg)
			}
		}
		return r.callbacks.TakeoffCallback(alt)
	default:
		return fmt.Errorf("invalid control command: %s", value)
	}
}

// handleStartTimeCommand accepts a Unix timestamp in milliseconds, an
// RFC 3339 time, or "clear".
func (r *RedisClient) handleStartTimeCommand(value string) error {
	if r.callbacks.StartTimeCallback == nil {
		return nil
	}
	t, err := ParseStartTime(value)
	if err != nil {
		return err
	}
	return r.callbacks.StartTimeCallback(t)
}

func ParseStartTime(value string) (time.Time, error) {
	if value == "clear" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		if ms <= 0 {
			return time.Time{}, fmt.Errorf("invalid start time: %s", value)
		}
		return time.UnixMilli(ms), nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start time: %s", value)
	}
	return t, nil
}

func (r *RedisClient) handleTrajectoryCommand(value string) error {
	if r.callbacks.TrajectoryCallback == nil {
		return nil
	}
	switch {
	case value == "reload":
		return r.callbacks.TrajectoryCallback("")
	case strings.HasPrefix(value, "load:"):
		return r.callbacks.TrajectoryCallback(strings.TrimPrefix(value, "load:"))
	default:
		return fmt.Errorf("invalid trajectory command: %s", value)
	}
}

func (r *RedisClient) redisListener(pubsub *redis.PubSub) {
	defer r.wg.Done()
	defer pubsub.Close()

	channel := pubsub.Channel()

	for {
		select {
		case <-r.ctx.Done():
			return
		case msg, ok := <-channel:
			if !ok || msg == nil {
				r.logger.Fatalf("Redis connection lost, exiting to allow systemd restart")
			}

			r.logger.Debugf("Received Redis message: channel=%s payload=%s", msg.Channel, msg.Payload)

			switch msg.Channel {
			case ChannelSettings:
				if r.callbacks.SettingsCallback != nil {
					if err := r.callbacks.SettingsCallback(msg.Payload); err != nil {
						r.logger.Warnf("Failed to handle settings update: %v", err)
					}
				}
			}
		}
	}
}

// PublishStage records a stage change in the show hash and appends it to
// the show event stream.
func (r *RedisClient) PublishStage(session, from, to, reason string, at time.Time) error {
	ts := at.UnixMilli()

	pipe := r.client.Pipeline()
	pipe.HSet(r.ctx, KeyShowHash,
		"stage", to,
		"stage:reason", reason,
		"stage:timestamp", ts,
		"session", session,
	)
	pipe.XAdd(r.ctx, &redis.XAddArgs{
		Stream: StreamShow,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"type":    "stage",
			"session": session,
			"from":    from,
			"to":      to,
			"reason":  reason,
			"ts":      ts,
		},
	})
	pipe.Publish(r.ctx, ChannelShow, "stage")

	if _, err := pipe.Exec(r.ctx); err != nil {
		return fmt.Errorf("failed to publish stage %s: %w", to, err)
	}
	return nil
}

// PublishText appends a status text to the show event stream.
func (r *RedisClient) PublishText(session, severity, text string, at time.Time) error {
	pipe := r.client.Pipeline()
	pipe.XAdd(r.ctx, &redis.XAddArgs{
		Stream: StreamShow,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"type":     "text",
			"session":  session,
			"severity": severity,
			"text":     text,
			"ts":       at.UnixMilli(),
		},
	})
	pipe.Publish(r.ctx, ChannelShow, "text")

	if _, err := pipe.Exec(r.ctx); err != nil {
		return fmt.Errorf("failed to publish text: %w", err)
	}
	return nil
}

// PublishStatus writes status fields into the show hash.
func (r *RedisClient) PublishStatus(fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	pipe := r.client.Pipeline()
	pipe.HSet(r.ctx, KeyShowHash, fields)
	pipe.Publish(r.ctx, ChannelShow, "status")
	if _, err := pipe.Exec(r.ctx); err != nil {
		return fmt.Errorf("failed to publish status: %w", err)
	}
	return nil
}

// GetHashField reads a field from a Redis hash using HGET
func (r *RedisClient) GetHashField(hash, field string) (string, error) {
	value, err := r.client.HGet(r.ctx, hash, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get hash field %s from %s: %w", field, hash, err)
	}
	return value, nil
}

func (r *RedisClient) Close() error {
	r.logger.Infof("Closing Redis client")
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		r.logger.Warnf("Timeout waiting for Redis goroutines to finish")
	}

	return r.client.Close()
}
