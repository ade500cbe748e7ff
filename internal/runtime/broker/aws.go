package broker

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SNSAPI is the subset of the SNS client used by AWSClient.
type SNSAPI interface {
	CreateTopic(ctx context.Context, params *sns.CreateTopicInput, optFns ...func(*sns.Options)) (*sns.CreateTopicOutput, error)
	Subscribe(ctx context.Context, params *sns.SubscribeInput, optFns ...func(*sns.Options)) (*sns.SubscribeOutput, error)
	SetSubscriptionAttributes(ctx context.Context, params *sns.SetSubscriptionAttributesInput, optFns ...func(*sns.Options)) (*sns.SetSubscriptionAttributesOutput, error)
}

// SQSAPI is the subset of the SQS client used by AWSClient.
type SQSAPI interface {
	CreateQueue(ctx context.Context, params *sqs.CreateQueueInput, optFns ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
	SetQueueAttributes(ctx context.Context, params *sqs.SetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.SetQueueAttributesOutput, error)
	ListQueues(ctx context.Context, params *sqs.ListQueuesInput, optFns ...func(*sqs.Options)) (*sqs.ListQueuesOutput, error)
	DeleteQueue(ctx context.Context, params *sqs.DeleteQueueInput, optFns ...func(*sqs.Options)) (*sqs.DeleteQueueOutput, error)
}

// AWSClient implements Client on top of the AWS SDK SNS and SQS clients.
type AWSClient struct {
	sns SNSAPI
	sqs SQSAPI
}

var _ Client = (*AWSClient)(nil)

// NewAWSClient returns a Client backed by the given SDK clients.
func NewAWSClient(snsClient SNSAPI, sqsClient SQSAPI) *AWSClient {
	return &AWSClient{sns: snsClient, sqs: sqsClient}
}

func (c *AWSClient) CreateTopic(ctx context.Context, name string) (TopicHandle, error) {
	out, err := c.sns.CreateTopic(ctx, &sns.CreateTopicInput{Name: aws.String(name)})
	if err != nil {
		return "", err
	}
	return TopicHandle(aws.ToString(out.TopicArn)), nil
}

// CreateQueue creates the queue with every attribute but Policy. SQS rejects a
// repeated create whose Policy differs from the stored one, and the stored one
// gains topic grants on subscribe, so the configured policy is merged in with
// SetQueueAttributes instead.
func (c *AWSClient) CreateQueue(ctx context.Context, name string, attributes map[string]string) (QueueHandle, error) {
	policyName := string(sqstypes.QueueAttributeNamePolicy)
	policy, hasPolicy := attributes[policyName]

	input := &sqs.CreateQueueInput{QueueName: aws.String(name)}
	for k, v := range attributes {
		if k == policyName {
			continue
		}
		if input.Attributes == nil {
			input.Attributes = make(map[string]string, len(attributes))
		}
		input.Attributes[k] = v
	}
	out, err := c.sqs.CreateQueue(ctx, input)
	if err != nil {
		return "", err
	}
	queue := QueueHandle(aws.ToString(out.QueueUrl))

	if hasPolicy {
		if err := c.applyPolicy(ctx, queue, policy); err != nil {
			return "", err
		}
	}
	return queue, nil
}

func (c *AWSClient) applyPolicy(ctx context.Context, queue QueueHandle, configured string) error {
	attrs, err := c.sqs.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(string(queue)),
		AttributeNames: []sqstypes.QueueAttributeName{sqstypes.QueueAttributeNamePolicy},
	})
	if err != nil {
		return fmt.Errorf("get queue attributes: %w", err)
	}
	policy, changed, err := applyQueuePolicy(attrs.Attributes[string(sqstypes.QueueAttributeNamePolicy)], configured)
	if err != nil || !changed {
		return err
	}
	_, err = c.sqs.SetQueueAttributes(ctx, &sqs.SetQueueAttributesInput{
		QueueUrl:   aws.String(string(queue)),
		Attributes: map[string]string{string(sqstypes.QueueAttributeNamePolicy): policy},
	})
	if err != nil {
		return fmt.Errorf("set queue policy: %w", err)
	}
	return nil
}

func (c *AWSClient) SubscribeQueueToTopic(ctx context.Context, topic TopicHandle, queue QueueHandle) (SubscriptionHandle, error) {
	attrs, err := c.sqs.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl: aws.String(string(queue)),
		AttributeNames: []sqstypes.QueueAttributeName{
			sqstypes.QueueAttributeNameQueueArn,
			sqstypes.QueueAttributeNamePolicy,
		},
	})
	if err != nil {
		return "", fmt.Errorf("get queue attributes: %w", err)
	}
	queueArn := attrs.Attributes[string(sqstypes.QueueAttributeNameQueueArn)]
	if queueArn == "" {
		return "", fmt.Errorf("queue %s has no %s attribute", queue, sqstypes.QueueAttributeNameQueueArn)
	}

	policy, changed, err := grantTopicDelivery(attrs.Attributes[string(sqstypes.QueueAttributeNamePolicy)], string(topic), queueArn)
	if err != nil {
		return "", err
	}
	if changed {
		_, err = c.sqs.SetQueueAttributes(ctx, &sqs.SetQueueAttributesInput{
			QueueUrl:   aws.String(string(queue)),
			Attributes: map[string]string{string(sqstypes.QueueAttributeNamePolicy): policy},
		})
		if err != nil {
			return "", fmt.Errorf("set queue policy: %w", err)
		}
	}

	out, err := c.sns.Subscribe(ctx, &sns.SubscribeInput{
		TopicArn:              aws.String(string(topic)),
		Protocol:              aws.String("sqs"),
		Endpoint:              aws.String(queueArn),
		ReturnSubscriptionArn: true,
	})
	if err != nil {
		return "", err
	}
	return SubscriptionHandle(aws.ToString(out.SubscriptionArn)), nil
}

func (c *AWSClient) SetSubscriptionAttribute(ctx context.Context, subscription SubscriptionHandle, name, value string) error {
	_, err := c.sns.SetSubscriptionAttributes(ctx, &sns.SetSubscriptionAttributesInput{
		SubscriptionArn: aws.String(string(subscription)),
		AttributeName:   aws.String(name),
		AttributeValue:  aws.String(value),
	})
	return err
}

func (c *AWSClient) ListQueues(ctx context.Context, prefix string) ([]QueueHandle, error) {
	var (
		queues []QueueHandle
		token  *string
	)
	for {
		input := &sqs.ListQueuesInput{NextToken: token}
		if prefix != "" {
			input.QueueNamePrefix = aws.String(prefix)
		}
		out, err := c.sqs.ListQueues(ctx, input)
		if err != nil {
			return nil, err
		}
		for _, u := range out.QueueUrls {
			queues = append(queues, QueueHandle(u))
		}
		if aws.ToString(out.NextToken) == "" {
			return queues, nil
		}
		token = out.NextToken
	}
}

func (c *AWSClient) DeleteQueue(ctx context.Context, queue QueueHandle) error {
	_, err := c.sqs.DeleteQueue(ctx, &sqs.DeleteQueueInput{QueueUrl: aws.String(string(queue))})
	return err
}
