// Package sqsqueue implements queueprovider.Provider against Amazon SQS,
// using the aws-sdk-go-v2 stack (aws-sdk-go-v2, aws-sdk-go-v2/config,
// aws-sdk-go-v2/service/sqs). Queue names map to SQS queue URLs; metadata maps to SQS
// message attributes; delay maps to SendMessage's DelaySeconds, and a delay
// beyond the 900-second ceiling both SQS and queueprovider.MaxDelay share is
// rejected with queueprovider.ErrDelayTooLong.
package sqsqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/oriys/callmq/internal/errs"
	"github.com/oriys/callmq/internal/queueprovider"
)

// Client is the subset of *sqs.Client this package calls, so tests can
// substitute a fake.
type Client interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
}

// Provider implements queueprovider.Provider against SQS. queueName values
// passed to its methods are looked up in QueueURLs; DLQURLs provides the
// per-queue dead-letter target.
type Provider struct {
	client    Client
	queueURLs map[string]string
	dlqURLs   map[string]string
}

// Config configures a Provider.
type Config struct {
	// QueueURLs maps a logical queue name to its SQS queue URL.
	QueueURLs map[string]string
	// DLQURLs maps a logical queue name to its dead-letter SQS queue URL.
	// A queue name absent here has no DLQ configured.
	DLQURLs map[string]string
}

// New builds a Provider using the default AWS credential chain and region
// resolution (environment, shared config, EC2/ECS IMDS), mirroring the
// teacher's already-declared aws-sdk-go-v2/config + credentials stack.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errs.Transport("load aws config", err)
	}
	return NewFromClient(sqs.NewFromConfig(awsCfg), cfg), nil
}

// NewFromClient builds a Provider from an already-configured SQS client,
// useful for tests and for hosts that need custom client options.
func NewFromClient(client Client, cfg Config) *Provider {
	return &Provider{client: client, queueURLs: cfg.QueueURLs, dlqURLs: cfg.DLQURLs}
}

func (p *Provider) urlFor(queueName string) (string, error) {
	url, ok := p.queueURLs[queueName]
	if !ok {
		return "", errs.Transport(fmt.Sprintf("no SQS queue URL configured for %q", queueName), nil)
	}
	return url, nil
}

func toAttributes(meta queueprovider.Metadata) map[string]types.MessageAttributeValue {
	if len(meta) == 0 {
		return nil
	}
	attrs := make(map[string]types.MessageAttributeValue, len(meta))
	for k, v := range meta {
		attrs[k] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(v),
		}
	}
	return attrs
}

// Enqueue implements queueprovider.Provider.
func (p *Provider) Enqueue(ctx context.Context, queueName string, payload []byte, meta queueprovider.Metadata) error {
	return p.enqueue(ctx, queueName, payload, 0, meta)
}

// EnqueueDelayed implements queueprovider.Provider.
func (p *Provider) EnqueueDelayed(ctx context.Context, queueName string, payload []byte, delay time.Duration, meta queueprovider.Metadata) error {
	if delay > queueprovider.MaxDelay {
		return queueprovider.ErrDelayTooLong
	}
	return p.enqueue(ctx, queueName, payload, delay, meta)
}

func (p *Provider) enqueue(ctx context.Context, queueName string, payload []byte, delay time.Duration, meta queueprovider.Metadata) error {
	url, err := p.urlFor(queueName)
	if err != nil {
		return err
	}

	delaySeconds := int32((delay + time.Second - 1) / time.Second) // ceiling round to seconds

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(url),
		MessageBody:       aws.String(string(payload)),
		DelaySeconds:      delaySeconds,
		MessageAttributes: toAttributes(meta),
	})
	if err != nil {
		return errs.Transport(fmt.Sprintf("sqs SendMessage %s", queueName), err)
	}
	return nil
}

// EnqueueBulk implements queueprovider.Provider using SQS's batch send API
// (up to 10 entries per call, per SQS limits).
func (p *Provider) EnqueueBulk(ctx context.Context, queueName string, payloads [][]byte, meta queueprovider.Metadata) error {
	url, err := p.urlFor(queueName)
	if err != nil {
		return err
	}

	const batchLimit = 10
	for start := 0; start < len(payloads); start += batchLimit {
		end := start + batchLimit
		if end > len(payloads) {
			end = len(payloads)
		}

		entries := make([]types.SendMessageBatchRequestEntry, 0, end-start)
		for i, payload := range payloads[start:end] {
			entries = append(entries, types.SendMessageBatchRequestEntry{
				Id:                aws.String(fmt.Sprintf("%d", start+i)),
				MessageBody:       aws.String(string(payload)),
				MessageAttributes: toAttributes(meta),
			})
		}

		out, err := p.client.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
			QueueUrl: aws.String(url),
			Entries:  entries,
		})
		if err != nil {
			return errs.Transport(fmt.Sprintf("sqs SendMessageBatch %s", queueName), err)
		}
		if len(out.Failed) > 0 {
			return errs.Transport(fmt.Sprintf("sqs SendMessageBatch %s: %d entries failed", queueName, len(out.Failed)), nil)
		}
	}
	return nil
}

// DeadLetter implements queueprovider.Provider.
func (p *Provider) DeadLetter(ctx context.Context, queueName string, payload []byte, meta queueprovider.Metadata) error {
	url, ok := p.dlqURLs[queueName]
	if !ok {
		return queueprovider.ErrNoDeadLetterQueue
	}
	_, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(url),
		MessageBody:       aws.String(string(payload)),
		MessageAttributes: toAttributes(meta),
	})
	if err != nil {
		return errs.Transport(fmt.Sprintf("sqs DeadLetter %s", queueName), err)
	}
	return nil
}
