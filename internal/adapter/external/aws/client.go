package aws

import (
	"context"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/ec2"

	"reportd/internal/shared"
)

// EC2API is the EC2 surface the collector needs.
type EC2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
}

// CloudWatchAPI is the CloudWatch surface the collector needs.
type CloudWatchAPI interface {
	GetMetricStatistics(ctx context.Context, params *cloudwatch.GetMetricStatisticsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error)
}

// Clients bundles the per-profile service clients.
type Clients struct {
	EC2        EC2API
	CloudWatch CloudWatchAPI
}

// ClientFactory builds service clients for a profile/region pair.
// Tests substitute fakes here.
type ClientFactory func(ctx context.Context, profile Profile) (Clients, error)

// DefaultClientFactory builds clients from the shared credential chain
// for the given profile.
func DefaultClientFactory(ctx context.Context, profile Profile) (Clients, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithSharedConfigProfile(profile.Name),
		awsconfig.WithRegion(profile.Region),
	)
	if err != nil {
		return Clients{}, shared.MarkKind(
			shared.Wrapf(err, "load aws config for profile %s", profile.Name),
			shared.KindDependencyFailure)
	}
	return Clients{
		EC2:        ec2.NewFromConfig(cfg),
		CloudWatch: cloudwatch.NewFromConfig(cfg),
	}, nil
}
