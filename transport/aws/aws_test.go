package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-aws/sns"
	"github.com/ThreeDotsLabs/watermill-aws/sqs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/puppets/transport"
	"github.com/drblury/puppets/transport/transporttest"
)

func stubAWS(t *testing.T, loaderErr, subErr error) (*transporttest.Publisher, *[]string) {
	t.Helper()
	originalLoader, originalResolver := DefaultConfigLoader, TopicResolverFactory
	originalPub, originalSub := PublisherFactory, SubscriberFactory
	t.Cleanup(func() {
		DefaultConfigLoader = originalLoader
		TopicResolverFactory = originalResolver
		PublisherFactory = originalPub
		SubscriberFactory = originalSub
	})

	var accounts []string
	pub := &transporttest.Publisher{}
	DefaultConfigLoader = func(ctx context.Context, opts ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		if loaderErr != nil {
			return aws.Config{}, loaderErr
		}
		return aws.Config{Region: "us-east-1"}, nil
	}
	TopicResolverFactory = func(accountID, region string) (*sns.GenerateArnTopicResolver, error) {
		accounts = append(accounts, accountID+"@"+region)
		return sns.NewGenerateArnTopicResolver(accountID, region)
	}
	PublisherFactory = func(cfg sns.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		return pub, nil
	}
	SubscriberFactory = func(cfg sns.SubscriberConfig, sqsCfg sqs.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		if subErr != nil {
			return nil, subErr
		}
		assert.NotNil(t, cfg.GenerateSqsQueueName)
		return &transporttest.Subscriber{}, nil
	}
	return pub, &accounts
}

func TestRegistered(t *testing.T) {
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	assert.Equal(t, transport.AWSCapabilities, transport.DefaultRegistry.Capabilities(TransportName))
}

func TestBuild(t *testing.T) {
	pub, accounts := stubAWS(t, nil, nil)
	tr, err := Build(context.Background(), &transporttest.Config{
		AWSRegion:    "eu-west-1",
		AWSAccountID: "123456789012",
		NodeID:       "node-a",
	}, watermill.NopLogger{})

	require.NoError(t, err)
	assert.Same(t, pub, tr.Publisher)
	assert.Equal(t, []string{"123456789012@eu-west-1"}, *accounts)
}

func TestBuildLocalstackFallback(t *testing.T) {
	_, accounts := stubAWS(t, nil, nil)
	_, err := Build(context.Background(), &transporttest.Config{
		AWSEndpoint: "http://localhost:4566",
	}, watermill.NopLogger{})

	require.NoError(t, err)
	assert.Equal(t, []string{localstackAccountID + "@us-east-1"}, *accounts)
}

func TestBuildErrors(t *testing.T) {
	t.Run("loader", func(t *testing.T) {
		stubAWS(t, errors.New("no credentials"), nil)
		_, err := Build(context.Background(), &transporttest.Config{}, watermill.NopLogger{})
		assert.ErrorContains(t, err, "no credentials")
	})

	t.Run("endpoint", func(t *testing.T) {
		stubAWS(t, nil, nil)
		_, err := Build(context.Background(), &transporttest.Config{AWSEndpoint: "://bad"}, watermill.NopLogger{})
		assert.ErrorContains(t, err, "failed to parse AWS endpoint")
	})

	t.Run("subscriber closes publisher", func(t *testing.T) {
		pub, accounts := stubAWS(t, nil, errors.New("queue denied"))
		_, err := Build(context.Background(), &transporttest.Config{
			AWSRegion:    "us-east-1",
			AWSAccountID: "123456789012",
		}, watermill.NopLogger{})
		require.Len(t, *accounts, 1)
		assert.ErrorContains(t, err, "queue denied")
		assert.True(t, pub.Closed)
	})
}

func TestQueueNameGenerator(t *testing.T) {
	gen := QueueNameGenerator("node.a")
	name, err := gen(context.Background(), sns.TopicArn("arn:aws:sns:us-east-1:000000000000:puppets-events"))
	require.NoError(t, err)
	assert.Equal(t, "puppets-events-node-a", name)

	long := QueueNameGenerator(string(make([]byte, 100)))
	name, err = long(context.Background(), sns.TopicArn("arn:aws:sns:us-east-1:000000000000:t"))
	require.NoError(t, err)
	assert.Len(t, name, maxQueueNameLength)
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "puppets-global_1", SanitizeName("puppets.global_1"))
}

func TestStaticCredentials(t *testing.T) {
	creds, err := staticCredentialsProvider("id", "secret").Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "id", creds.AccessKeyID)
	assert.Equal(t, "secret", creds.SecretAccessKey)
}
