package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/Santonastaso/crm-demo-sub000/internal/domain"
)

// SQSAPI is the subset of the SQS client the publisher and consumer use.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Publisher queues events on SQS. Sends happen in the background so the
// tracking response is never held up by the queue.
type Publisher struct {
	client   SQSAPI
	queueURL string
	timeout  time.Duration
	wg       sync.WaitGroup
}

// NewPublisher creates a publisher for queueURL.
func NewPublisher(client SQSAPI, queueURL string) *Publisher {
	return &Publisher{client: client, queueURL: queueURL, timeout: 5 * time.Second}
}

func (p *Publisher) Record(_ context.Context, evt domain.TrackingEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal tracking event: %w", err)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()

		_, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:    aws.String(p.queueURL),
			MessageBody: aws.String(string(body)),
		})
		if err != nil {
			log.Printf("[TrackingPublisher] ERROR publishing %s for %s: %v", evt.Type, evt.TrackingID, err)
		}
	}()
	return nil
}

// Close waits for in-flight publishes.
func (p *Publisher) Close() {
	p.wg.Wait()
}
