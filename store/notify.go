package store

import (
	"context"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

// Notifier receives user-facing notices. Delivery is fire-and-forget: sinks
// log their own failures.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n domain.Notification)

func (f NotifierFunc) Notify(ctx context.Context, n domain.Notification) { f(ctx, n) }

// MultiNotifier fans a notification out to every sink in order.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, n domain.Notification) {
	for _, sink := range m {
		if sink != nil {
			sink.Notify(ctx, n)
		}
	}
}

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	logger *log.Logger
}

func NewLogNotifier(logger *log.Logger) *LogNotifier {
	return &LogNotifier{logger: loggerOrDefault(logger)}
}

func (l *LogNotifier) Notify(_ context.Context, n domain.Notification) {
	l.logger.WithFields(log.Fields{
		"kind":           n.Kind,
		"category_id":    n.CategoryID,
		"category":       n.CategoryName,
		"affected_tasks": n.AffectedTasks,
	}).Info(n.Message)
}

type messageQueue interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// queueSendTimeout bounds one background enqueue including its retries.
const queueSendTimeout = 30 * time.Second

// QueueNotifier publishes notifications as JSON messages on a storage queue.
// Messages are sent in the background so the caller never waits on the
// queue's retry policy.
type QueueNotifier struct {
	queue   messageQueue
	logger  *log.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewQueueNotifier connects to queueName with the given connection string.
func NewQueueNotifier(connStr, queueName string, logger *log.Logger) (*QueueNotifier, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, &opts)
	if err != nil {
		return nil, err
	}
	return &QueueNotifier{queue: q, logger: loggerOrDefault(logger), timeout: queueSendTimeout}, nil
}

func (q *QueueNotifier) Notify(ctx context.Context, n domain.Notification) {
	data, err := sonic.Marshal(n)
	if err != nil {
		q.logger.WithError(err).WithField("notification", n.ID).Error("encode notification")
		return
	}
	timeout := q.timeout
	if timeout <= 0 {
		timeout = queueSendTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		defer cancel()
		if _, err := q.queue.EnqueueMessage(ctx, string(data), nil); err != nil {
			q.logger.WithError(err).WithField("notification", n.ID).Error("enqueue notification")
		}
	}()
}

// Close waits for messages still being sent.
func (q *QueueNotifier) Close() {
	q.wg.Wait()
}

// RedisNotifier publishes notifications on a pub/sub channel.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	logger  *log.Logger
}

func NewRedisNotifier(client *redis.Client, channel string, logger *log.Logger) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel, logger: loggerOrDefault(logger)}
}

func (r *RedisNotifier) Notify(ctx context.Context, n domain.Notification) {
	data, err := sonic.Marshal(n)
	if err != nil {
		r.logger.WithError(err).WithField("notification", n.ID).Error("encode notification")
		return
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		r.logger.WithError(err).WithFields(log.Fields{"notification": n.ID, "channel": r.channel}).Error("publish notification")
	}
}
