package gateway

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"notify-delivery-backend/internal/model"
)

// SNSPublisher is the subset of the SNS client used here.
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSSender publishes to SNS mobile platform endpoints. The endpoint token is
// the platform endpoint ARN.
type SNSSender struct {
	client SNSPublisher
}

// NewSNSSender loads the default AWS configuration for the region.
func NewSNSSender(ctx context.Context, region string) (*SNSSender, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return &SNSSender{client: sns.NewFromConfig(awsCfg)}, nil
}

// NewSNSSenderWithClient wraps an existing SNS client.
func NewSNSSenderWithClient(client SNSPublisher) *SNSSender {
	return &SNSSender{client: client}
}

func (s *SNSSender) Send(ctx context.Context, endpoint model.Endpoint, msg Message) error {
	payload, err := encodePayload(msg)
	if err != nil {
		return err
	}

	_, err = s.client.Publish(ctx, &sns.PublishInput{
		TargetArn: aws.String(endpoint.Token),
		Message:   aws.String(string(payload)),
	})
	if err == nil {
		return nil
	}

	var disabled *types.EndpointDisabledException
	var notFound *types.NotFoundException
	var throttled *types.ThrottledException
	switch {
	case errors.As(err, &disabled):
		return PermanentError("sns endpoint disabled", err)
	case errors.As(err, &notFound):
		return PermanentError("sns endpoint not found", err)
	case errors.As(err, &throttled):
		return TransientError("sns throttled", err)
	default:
		return TransientError("sns publish failed", err)
	}
}
