package ingest

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/alertdeck/alertdeck/internal/alerts"
	"github.com/alertdeck/alertdeck/internal/alerts/adapters"
	"github.com/alertdeck/alertdeck/internal/metrics"
)

// Long-poll parameters for the queue consumer.
const (
	waitTimeSeconds   = 20
	maxBatchSize      = 10
	visibilityTimeout = 60

	// receiveErrorPause keeps a broken queue (bad credentials, wrong
	// region) from turning the poll loop into a log flood.
	receiveErrorPause = 5 * time.Second
)

// SQSAPI is the subset of the SQS client the poller uses.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Sink consumes canonical alerts. Satisfied by *processor.Processor.
type Sink interface {
	Process(ctx context.Context, alert alerts.CanonicalAlert) error
}

// SQSPoller long-polls a queue of SNS-wrapped alerts, feeds them through
// the normalizer into the pipeline, and deletes messages only after they
// were fully processed so failures are redelivered.
type SQSPoller struct {
	client     SQSAPI
	queueURL   string
	adapter    adapters.Adapter
	sink       Sink
	errorPause time.Duration
}

// NewSQSPoller creates a poller over an existing SQS client.
func NewSQSPoller(client SQSAPI, queueURL string, adapter adapters.Adapter, sink Sink) *SQSPoller {
	return &SQSPoller{
		client:     client,
		queueURL:   queueURL,
		adapter:    adapter,
		sink:       sink,
		errorPause: receiveErrorPause,
	}
}

// NewSQSClient builds an SQS client for a queue, deriving the region from
// the queue URL when the environment does not set one.
func NewSQSClient(ctx context.Context, queueURL string) (*sqs.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if os.Getenv("AWS_REGION") == "" {
		if region := RegionFromQueueURL(queueURL); region != "" {
			opts = append(opts, awsconfig.WithRegion(region))
		}
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return sqs.NewFromConfig(cfg), nil
}

// RegionFromQueueURL extracts the region from a standard SQS queue URL
// (https://sqs.<region>.amazonaws.com/<account>/<name>). Returns "" when
// the URL has another shape.
func RegionFromQueueURL(queueURL string) string {
	rest, ok := strings.CutPrefix(queueURL, "https://sqs.")
	if !ok {
		return ""
	}
	region, rest, ok := strings.Cut(rest, ".")
	if !ok || !strings.HasPrefix(rest, "amazonaws.com") {
		return ""
	}
	return region
}

// Run polls until the context is canceled. Receive failures pause the
// loop briefly before the next attempt.
func (p *SQSPoller) Run(ctx context.Context) {
	log.Printf("sqs: polling %s", p.queueURL)
	for {
		if ctx.Err() != nil {
			log.Println("SQS poller stopped")
			return
		}
		if err := p.poll(ctx); err != nil && ctx.Err() == nil {
			log.Printf("sqs: receive: %v", err)
			select {
			case <-ctx.Done():
			case <-time.After(p.errorPause):
			}
		}
	}
}

func (p *SQSPoller) poll(ctx context.Context) error {
	out, err := p.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(p.queueURL),
		MaxNumberOfMessages: maxBatchSize,
		WaitTimeSeconds:     waitTimeSeconds,
		VisibilityTimeout:   visibilityTimeout,
	})
	if err != nil {
		return err
	}

	for _, msg := range out.Messages {
		if msg.Body == nil {
			continue
		}
		if err := p.handle(ctx, *msg.Body); err != nil {
			// Leave the message in the queue; the visibility timeout
			// will redeliver it.
			log.Printf("sqs: process message: %v", err)
			continue
		}
		if _, err := p.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(p.queueURL),
			ReceiptHandle: msg.ReceiptHandle,
		}); err != nil {
			log.Printf("sqs: delete message: %v", err)
		}
		metrics.QueueProcessed.Inc()
	}
	return nil
}

func (p *SQSPoller) handle(ctx context.Context, body string) error {
	parsed, err := p.adapter.Parse([]byte(body))
	if err != nil {
		return fmt.Errorf("parse queue message: %w", err)
	}
	for _, alert := range parsed {
		if err := p.sink.Process(ctx, alert); err != nil {
			return err
		}
	}
	return nil
}
