package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

const (
	taskStream  = "ORCHESTRATOR_TASKS"
	taskSubject = "tasks.execute"
	durableName = "workers"

	fetchWait = 5 * time.Second
)

// NATSQueue is a Queue backed by a JetStream work-queue stream. Workers
// share one durable consumer and fetch one message at a time, so a slow
// task never starves the other workers of prefetched work.
type NATSQueue struct {
	nc       *nats.Conn
	js       jetstream.JetStream
	stream   jetstream.Stream
	consumer jetstream.Consumer
	logger   *zap.SugaredLogger
}

// NewNATSQueue connects to NATS and ensures the task stream and the
// shared worker consumer exist. Reads NATS_URL, defaulting to localhost.
func NewNATSQueue(ctx context.Context, logger *zap.SugaredLogger) (*NATSQueue, error) {
	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		natsURL = nats.DefaultURL
	}

	nc, err := nats.Connect(
		natsURL,
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warnw("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Infow("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.PingInterval(20*time.Second),
		nats.MaxPingsOutstanding(5),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", natsURL, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream instance: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      taskStream,
		Subjects:  []string{"tasks.>"},
		Retention: jetstream.WorkQueuePolicy,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream %s: %w", taskStream, err)
	}

	// Tasks ack on receipt, so AckWait only covers a worker that dies
	// between fetch and ack. It sits above the hard time limit so a
	// slow ack never races a redelivery.
	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:   durableName,
		AckPolicy: jetstream.AckExplicitPolicy,
		AckWait:   HardTimeLimit + time.Minute,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure consumer %s: %w", durableName, err)
	}

	logger.Infow("Connected to NATS", "url", natsURL, "stream", taskStream)
	return &NATSQueue{nc: nc, js: js, stream: stream, consumer: consumer, logger: logger}, nil
}

var _ Queue = (*NATSQueue)(nil)

func (q *NATSQueue) Enqueue(ctx context.Context, t Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	opts := []jetstream.PublishOpt{}
	if t.ID != "" {
		opts = append(opts, jetstream.WithMsgID(t.ID))
	}
	if _, err := q.js.Publish(ctx, taskSubject, data, opts...); err != nil {
		return fmt.Errorf("publish task: %w", err)
	}
	return nil
}

// Dequeue fetches one message at a time, acknowledging on receipt. Tasks
// with a future NotBefore are negatively acknowledged with a delay so the
// broker redelivers them when they become eligible.
func (q *NATSQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		batch, err := q.consumer.Fetch(1, jetstream.FetchMaxWait(fetchWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) {
				continue
			}
			return nil, fmt.Errorf("fetch task: %w", err)
		}

		for msg := range batch.Messages() {
			var t Task
			if err := json.Unmarshal(msg.Data(), &t); err != nil {
				q.logger.Errorw("discarding undecodable task", "error", err)
				_ = msg.Term()
				continue
			}
			if wait := time.Until(t.eligibleAt()); wait > 0 {
				_ = msg.NakWithDelay(wait)
				continue
			}
			// Ack on receipt: a task lost to a worker crash is not
			// redelivered.
			if err := msg.Ack(); err != nil {
				q.logger.Warnw("task ack failed", "task_id", t.ID, "error", err)
			}
			return &t, nil
		}
		if err := batch.Error(); err != nil {
			q.logger.Warnw("task fetch batch error", "error", err)
		}
	}
}

func (q *NATSQueue) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	info, err := q.stream.Info(ctx)
	if err != nil {
		return 0
	}
	return int(info.State.Msgs)
}

func (q *NATSQueue) Close() {
	if q.nc != nil && !q.nc.IsClosed() {
		q.nc.Close()
	}
}
