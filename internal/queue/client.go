package queue

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// Client wraps a single pooled SQS client shared by every consumer and
// publisher in the process (spec.md §9: "a single pooled client per
// process, created at startup and torn down on shutdown").
type Client struct {
	sqs *sqs.Client
}

// NewClient builds a Client. If endpoint is non-empty, SQS requests are
// sent there instead of the regional AWS endpoint (local development /
// integration tests against a FIFO-compatible emulator).
func NewClient(ctx context.Context, region, endpoint string) (*Client, error) {
	optFns := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("queue: load aws config: %w", err)
	}
	var sqsOpts []func(*sqs.Options)
	if endpoint != "" {
		sqsOpts = append(sqsOpts, func(o *sqs.Options) { o.BaseEndpoint = aws.String(endpoint) })
	}
	return &Client{sqs: sqs.NewFromConfig(cfg, sqsOpts...)}, nil
}

// QueueURL resolves a queue's URL from its name, once per consumer startup
// (spec.md §4.7 step 1).
func (c *Client) QueueURL(ctx context.Context, name string) (string, error) {
	out, err := c.sqs.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(name)})
	if err != nil {
		return "", fmt.Errorf("queue: resolve url for %q: %w", name, err)
	}
	return *out.QueueUrl, nil
}

// Message is the subset of an SQS message a consumer needs.
type Message struct {
	MessageID     string
	ReceiptHandle string
	Body          string
	GroupID       string
}

// Receive long-polls queueURL for up to maxMessages messages, 30s
// visibility timeout, 20s wait (spec.md §4.7 step 2). maxMessages is 1 for
// the oneshot consumer to respect strict per-group serialization.
func (c *Client) Receive(ctx context.Context, queueURL string, maxMessages int32) ([]Message, error) {
	out, err := c.sqs.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(queueURL),
		MaxNumberOfMessages:   maxMessages,
		VisibilityTimeout:     30,
		WaitTimeSeconds:       20,
		MessageAttributeNames: []string{"All"},
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameMessageGroupId,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("queue: receive: %w", err)
	}

	msgs := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		groupID := ""
		if v, ok := m.Attributes[string(types.MessageSystemAttributeNameMessageGroupId)]; ok {
			groupID = v
		}
		msgs = append(msgs, Message{
			MessageID:     aws.ToString(m.MessageId),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			Body:          aws.ToString(m.Body),
			GroupID:       groupID,
		})
	}
	return msgs, nil
}

// Delete removes a successfully processed message so it is not redelivered.
func (c *Client) Delete(ctx context.Context, queueURL, receiptHandle string) error {
	_, err := c.sqs.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("queue: delete: %w", err)
	}
	return nil
}

// Publish sends body to queueURL as a FIFO message in groupID (spec.md §6:
// "MessageGroupId = proj_id"). dedupID is used as the content-based
// deduplication id when not empty.
func (c *Client) Publish(ctx context.Context, queueURL, groupID, dedupID string, body []byte) error {
	in := &sqs.SendMessageInput{
		QueueUrl:       aws.String(queueURL),
		MessageBody:    aws.String(string(body)),
		MessageGroupId: aws.String(groupID),
	}
	if dedupID != "" {
		in.MessageDeduplicationId = aws.String(dedupID)
	}
	if _, err := c.sqs.SendMessage(ctx, in); err != nil {
		return fmt.Errorf("queue: publish: %w", err)
	}
	return nil
}
