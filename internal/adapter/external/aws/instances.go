package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/ec2"

	"reportd/internal/shared"
)

// ListInstanceIDs returns the IDs of all EC2 instances visible to the
// client, following pagination.
func ListInstanceIDs(ctx context.Context, api EC2API) ([]string, error) {
	var ids []string
	var nextToken *string
	for {
		out, err := api.DescribeInstances(ctx, &ec2.DescribeInstancesInput{NextToken: nextToken})
		if err != nil {
			return nil, shared.MarkKind(shared.Wrap(err, "describe instances"), shared.KindDependencyFailure)
		}
		for _, reservation := range out.Reservations {
			for _, instance := range reservation.Instances {
				if instance.InstanceId != nil {
					ids = append(ids, *instance.InstanceId)
				}
			}
		}
		if out.NextToken == nil {
			return ids, nil
		}
		nextToken = out.NextToken
	}
}
