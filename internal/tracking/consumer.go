package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/Santonastaso/crm-demo-sub000/internal/domain"
	"github.com/Santonastaso/crm-demo-sub000/internal/pkg/logger"
	trackingsvc "github.com/Santonastaso/crm-demo-sub000/internal/service/tracking"
)

// Consumer drains the tracking queue into the tracking service. Messages
// that fail with a transient error stay on the queue and are redelivered
// after the visibility timeout.
type Consumer struct {
	client   SQSAPI
	queueURL string
	svc      EventRecorder

	waitSeconds  int32
	errorBackoff time.Duration

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewConsumer creates a consumer for queueURL.
func NewConsumer(client SQSAPI, queueURL string, svc EventRecorder) *Consumer {
	return &Consumer{
		client:       client,
		queueURL:     queueURL,
		svc:          svc,
		waitSeconds:  20,
		errorBackoff: 5 * time.Second,
		done:         make(chan struct{}),
	}
}

// Start begins polling in the background.
func (c *Consumer) Start(ctx context.Context) {
	log.Printf("[TrackingConsumer] started (queue=%s)", c.queueURL)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.poll(ctx)
	}()
}

// Stop ends polling and waits for the current batch to finish.
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
	c.wg.Wait()
	log.Printf("[TrackingConsumer] stopped")
}

func (c *Consumer) poll(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	for ctx.Err() == nil {
		out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     c.waitSeconds,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("tracking queue receive failed", "queue", c.queueURL, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.errorBackoff):
			}
			continue
		}

		for _, msg := range out.Messages {
			c.handle(ctx, msg)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg types.Message) {
	var evt domain.TrackingEvent
	if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &evt); err != nil {
		logger.Warn("dropping malformed tracking message", "message_id", aws.ToString(msg.MessageId), "error", err)
		c.delete(ctx, msg.ReceiptHandle)
		return
	}

	outcome, err := c.svc.RecordEvent(ctx, evt)
	switch {
	case errors.Is(err, trackingsvc.ErrInvalidEvent):
		logger.Warn("dropping invalid tracking event", "tracking_id", evt.TrackingID, "error", err)
	case err != nil:
		logger.Error("tracking event failed, leaving on queue", "tracking_id", evt.TrackingID, "type", string(evt.Type), "error", err)
		return
	default:
		logger.Debug("tracking event applied", "tracking_id", evt.TrackingID, "type", string(evt.Type), "outcome", string(outcome))
	}
	c.delete(ctx, msg.ReceiptHandle)
}

func (c *Consumer) delete(ctx context.Context, handle *string) {
	_, err := c.client.DeleteMessage(context.WithoutCancel(ctx), &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: handle,
	})
	if err != nil {
		logger.Warn("tracking queue delete failed", "queue", c.queueURL, "error", err)
	}
}
