// Package aws provides the SNS/SQS transport for sqsbinder.
package aws

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-aws/sns"
	"github.com/ThreeDotsLabs/watermill-aws/sqs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	amazonsns "github.com/aws/aws-sdk-go-v2/service/sns"
	amazonsqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	smithyendpoints "github.com/aws/smithy-go/endpoints"

	"github.com/drblury/sqsbinder/internal/runtime/broker"
	"github.com/drblury/sqsbinder/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "aws"

const (
	localstackAccountID = "000000000000"
	awsAccountIDLength  = 12
)

// SNSClient is the SNS surface used for provisioning and publishing.
type SNSClient interface {
	broker.SNSAPI
	SNSPublishAPI
}

// DefaultConfigLoader allows overriding the AWS config loader for testing.
var DefaultConfigLoader = awsconfig.LoadDefaultConfig

// SNSClientFactory allows overriding the SNS client creation for testing.
var SNSClientFactory = func(cfg aws.Config, optFns ...func(*amazonsns.Options)) SNSClient {
	return amazonsns.NewFromConfig(cfg, optFns...)
}

// SQSClientFactory allows overriding the SQS client creation for testing.
var SQSClientFactory = func(cfg aws.Config, optFns ...func(*amazonsqs.Options)) broker.SQSAPI {
	return amazonsqs.NewFromConfig(cfg, optFns...)
}

// TopicResolverFactory allows overriding the topic resolver creation for testing.
var TopicResolverFactory = sns.NewGenerateArnTopicResolver

// QueuePublisherFactory allows overriding the direct-mode publisher creation for testing.
var QueuePublisherFactory = func(cfg sqs.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return sqs.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the queue subscriber creation for testing.
var SubscriberFactory = func(cfg sqs.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return sqs.NewSubscriber(cfg, logger)
}

func init() {
	Register()
}

// Register adds the transport to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.AWSCapabilities)
}

// Build creates the SNS/SQS transport. The broker client and the subscriber
// are mode independent; the publisher sends to topics in the fanout mode and
// to queues in the direct mode.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	awsCfg, err := createAWSConfig(ctx, cfg, logger)
	if err != nil {
		return transport.Transport{}, err
	}
	snsOpts, sqsOpts, err := endpointOptions(cfg)
	if err != nil {
		logger.Error("Failed to parse AWS endpoint", err, watermill.LogFields{"endpoint": cfg.GetAWSEndpoint()})
		return transport.Transport{}, err
	}
	logger.Info("Created AWS config", watermill.LogFields{
		"region":          safeAWSRegion(awsCfg),
		"custom_endpoint": len(snsOpts) > 0,
		"mode":            cfg.GetMode(),
	})

	snsClient := SNSClientFactory(*awsCfg, snsOpts...)
	sqsClient := SQSClientFactory(*awsCfg, sqsOpts...)

	publisher, err := createPublisher(cfg, logger, awsCfg, snsClient, sqsOpts)
	if err != nil {
		return transport.Transport{}, err
	}

	settings := transport.NewReceiveSettingsRegistry()
	subscriber, err := SubscriberFactory(subscriberConfig(*awsCfg, sqsOpts, settings), logger)
	if err != nil {
		logger.Error("Failed to create SQS subscriber", err, watermill.LogFields{})
		_ = publisher.Close()
		return transport.Transport{}, err
	}

	return transport.Transport{
		Broker:          broker.NewAWSClient(snsClient, sqsClient),
		Publisher:       publisher,
		Subscriber:      subscriber,
		ReceiveSettings: settings,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.AWSCapabilities
}

func createAWSConfig(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (*aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if cfg != nil {
		region := cfg.GetAWSRegion()
		accessKey := cfg.GetAWSAccessKeyID()
		secretKey := cfg.GetAWSSecretAccessKey()

		if region != "" {
			logger.Info("Setting AWS region from config", watermill.LogFields{"region": region})
			opts = append(opts, awsconfig.WithRegion(region))
		}
		if accessKey != "" && secretKey != "" {
			logger.Info("Using static AWS credentials from config", watermill.LogFields{})
			opts = append(opts, awsconfig.WithCredentialsProvider(staticCredentialsProvider(accessKey, secretKey)))
		}
	}

	awsCfg, err := DefaultConfigLoader(ctx, opts...)
	if err != nil {
		fields := watermill.LogFields{}
		if cfg != nil && cfg.GetAWSRegion() != "" {
			fields["requested_region"] = cfg.GetAWSRegion()
		}
		logger.Error("Failed to load AWS default config", err, fields)
		return nil, err
	}

	// Ensure region is set even if the loader ignores options
	if cfg != nil && cfg.GetAWSRegion() != "" {
		awsCfg.Region = cfg.GetAWSRegion()
	}

	return &awsCfg, nil
}

func createPublisher(cfg transport.Config, logger watermill.LoggerAdapter, awsCfg *aws.Config, snsClient SNSPublishAPI, sqsOpts []func(*amazonsqs.Options)) (message.Publisher, error) {
	if cfg.GetMode() == "direct" {
		logger.Info("Create SQS queue publisher", watermill.LogFields{})
		return QueuePublisherFactory(sqs.PublisherConfig{
			AWSConfig: *awsCfg,
			OptFns:    sqsOpts,
		}, logger)
	}

	accountID, region := resolveAccountAndRegion(cfg, logger, safeAWSRegion(awsCfg))
	logger.Info("Create SNS topic publisher", watermill.LogFields{
		"accountID": accountID,
		"region":    region,
	})

	var resolver sns.TopicResolver
	if accountID != "" && region != "" {
		r, err := TopicResolverFactory(accountID, region)
		if err != nil {
			logger.Error("Failed to create SNS topic resolver", err, watermill.LogFields{
				"accountID": accountID,
				"region":    region,
			})
			return nil, err
		}
		resolver = r
	}

	return NewTopicPublisher(snsClient, TopicPublisherConfig{
		PartitionHeader: cfg.GetPartitionHeader(),
		TopicResolver:   resolver,
	}, logger), nil
}

func endpointOptions(cfg transport.Config) ([]func(*amazonsns.Options), []func(*amazonsqs.Options), error) {
	endpoint, err := awsEndpointURL(cfg)
	if err != nil || endpoint == nil {
		return nil, nil, err
	}
	snsOpts := []func(*amazonsns.Options){
		amazonsns.WithEndpointResolverV2(sns.OverrideEndpointResolver{
			Endpoint: smithyendpoints.Endpoint{
				URI: *endpoint,
			},
		}),
	}
	sqsOpts := []func(*amazonsqs.Options){
		amazonsqs.WithEndpointResolverV2(sqs.OverrideEndpointResolver{
			Endpoint: smithyendpoints.Endpoint{
				URI: *endpoint,
			},
		}),
	}
	return snsOpts, sqsOpts, nil
}

func resolveAccountAndRegion(cfg transport.Config, logger watermill.LoggerAdapter, fallbackRegion string) (string, string) {
	if cfg == nil {
		return "", fallbackRegion
	}

	accountID := strings.Trim(cfg.GetAWSAccountID(), "\"' ")
	region := cfg.GetAWSRegion()
	if region == "" {
		region = fallbackRegion
	}

	if accountID == "" && useLocalstackEndpoint(cfg) {
		accountID = localstackAccountID
		logger.Info("AWS account ID empty; using LocalStack default", watermill.LogFields{"accountID": accountID})
		return accountID, region
	}

	if accountID != "" && len(accountID) != awsAccountIDLength && useLocalstackEndpoint(cfg) {
		logger.Info("Invalid AWS account ID; falling back to LocalStack default", watermill.LogFields{"accountID": accountID})
		accountID = localstackAccountID
	}

	return accountID, region
}

func useLocalstackEndpoint(cfg transport.Config) bool {
	return cfg != nil && cfg.GetAWSEndpoint() != ""
}

func awsEndpointURL(cfg transport.Config) (*url.URL, error) {
	if cfg == nil || cfg.GetAWSEndpoint() == "" {
		return nil, nil
	}

	parsedURL, err := url.Parse(cfg.GetAWSEndpoint())
	if err != nil {
		return nil, fmt.Errorf("failed to parse AWS endpoint: %w", err)
	}
	return parsedURL, nil
}

func safeAWSRegion(cfg *aws.Config) string {
	if cfg == nil {
		return ""
	}
	return cfg.Region
}

func staticCredentialsProvider(accessKeyID, secretAccessKey string) aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     accessKeyID,
			SecretAccessKey: secretAccessKey,
		}, nil
	})
}
