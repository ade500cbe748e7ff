package aws

import (
	"context"

	"github.com/ThreeDotsLabs/watermill-aws/sqs"
	"github.com/aws/aws-sdk-go-v2/aws"
	amazonsqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/smithy-go/middleware"

	"github.com/drblury/sqsbinder/internal/runtime/broker"
	"github.com/drblury/sqsbinder/transport"
)

const skipDeleteMiddlewareID = "SQSBinderSkipDelete"

// subscriberConfig builds the queue subscriber configuration. Receive
// requests and deletes follow the settings registered for each queue.
func subscriberConfig(awsCfg aws.Config, sqsOpts []func(*amazonsqs.Options), settings *transport.ReceiveSettingsRegistry) sqs.SubscriberConfig {
	optFns := make([]func(*amazonsqs.Options), 0, len(sqsOpts)+1)
	optFns = append(optFns, sqsOpts...)
	optFns = append(optFns, func(o *amazonsqs.Options) {
		o.APIOptions = append(o.APIOptions, skipDeleteOption(settings))
	})
	return sqs.SubscriberConfig{
		AWSConfig: awsCfg,
		OptFns:    optFns,
		// Queues are provisioned with their attributes before subscribing.
		DoNotCreateQueueIfNotExists: true,
		GenerateReceiveMessageInput: receiveMessageInput(settings),
	}
}

func receiveMessageInput(settings *transport.ReceiveSettingsRegistry) sqs.GenerateReceiveMessageInputFunc {
	return func(ctx context.Context, queueURL sqs.QueueURL) (*amazonsqs.ReceiveMessageInput, error) {
		input, err := sqs.GenerateReceiveMessageInputDefault(ctx, queueURL)
		if err != nil {
			return nil, err
		}
		s, ok := settings.Get(broker.QueueName(broker.QueueHandle(queueURL)))
		if !ok {
			return input, nil
		}
		if s.MaxMessages > 0 {
			input.MaxNumberOfMessages = s.MaxMessages
		}
		if s.VisibilityTimeout > 0 {
			input.VisibilityTimeout = s.VisibilityTimeout
		}
		if s.WaitTime > 0 {
			input.WaitTimeSeconds = s.WaitTime
		}
		return input, nil
	}
}

// skipDeleteOption answers DeleteMessage locally for queues whose settings
// skip deletion, so acknowledged messages stay on the queue.
func skipDeleteOption(settings *transport.ReceiveSettingsRegistry) func(*middleware.Stack) error {
	return func(stack *middleware.Stack) error {
		return stack.Initialize.Add(middleware.InitializeMiddlewareFunc(skipDeleteMiddlewareID, func(
			ctx context.Context, in middleware.InitializeInput, next middleware.InitializeHandler,
		) (middleware.InitializeOutput, middleware.Metadata, error) {
			if input, ok := in.Parameters.(*amazonsqs.DeleteMessageInput); ok {
				queue := broker.QueueName(broker.QueueHandle(aws.ToString(input.QueueUrl)))
				if s, found := settings.Get(queue); found && s.SkipDelete {
					return middleware.InitializeOutput{Result: &amazonsqs.DeleteMessageOutput{}}, middleware.Metadata{}, nil
				}
			}
			return next.HandleInitialize(ctx, in)
		}), middleware.Before)
	}
}
