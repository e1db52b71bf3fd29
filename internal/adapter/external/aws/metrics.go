package aws

import (
	"context"
	"log/slog"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"reportd/internal/shared"
)

// Metric lookback window and resolution. CPU comes from the EC2
// namespace; memory, threads and processes require the CloudWatch
// agent and live in the CWAgent namespace.
const (
	metricWindow = 10 * time.Minute
	metricPeriod = 60 // seconds
)

// Stat is a single averaged metric value. OK is false when the metric
// had no datapoints or could not be fetched; such values render as
// "N/A" in the report.
type Stat struct {
	Average float64
	OK      bool
}

// InstanceMetrics holds the per-instance report columns.
type InstanceMetrics struct {
	CPUUtilization    Stat
	MemoryUtilization Stat
	ThreadsRunning    Stat
	ProcessesRunning  Stat
}

// GetInstanceMetrics fetches the averaged statistics for one instance
// over the last ten minutes. Individual metric failures are returned
// as unknown Stats, never as errors: a partially instrumented instance
// still gets a report row.
func GetInstanceMetrics(ctx context.Context, api CloudWatchAPI, instanceID string, log *slog.Logger) InstanceMetrics {
	end := time.Now().UTC()
	start := end.Add(-metricWindow)

	fetch := func(namespace, metricName string) Stat {
		stat, err := getMetricStatistic(ctx, api, instanceID, namespace, metricName, start, end)
		if err != nil {
			log.Warn("metric fetch failed",
				slog.String("instance_id", instanceID),
				slog.String("metric", namespace+"/"+metricName),
				slog.Any("error", err))
			return Stat{}
		}
		return stat
	}

	return InstanceMetrics{
		CPUUtilization:    fetch("AWS/EC2", "CPUUtilization"),
		MemoryUtilization: fetch("CWAgent", "mem_used_percent"),
		ThreadsRunning:    fetch("CWAgent", "procstat_threads"),
		ProcessesRunning:  fetch("CWAgent", "procstat_processes"),
	}
}

func getMetricStatistic(ctx context.Context, api CloudWatchAPI, instanceID, namespace, metricName string, start, end time.Time) (Stat, error) {
	out, err := api.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:  awssdk.String(namespace),
		MetricName: awssdk.String(metricName),
		Dimensions: []types.Dimension{{
			Name:  awssdk.String("InstanceId"),
			Value: awssdk.String(instanceID),
		}},
		StartTime:  awssdk.Time(start),
		EndTime:    awssdk.Time(end),
		Period:     awssdk.Int32(metricPeriod),
		Statistics: []types.Statistic{types.StatisticAverage},
	})
	if err != nil {
		return Stat{}, shared.MarkKind(
			shared.Wrapf(err, "get %s/%s for %s", namespace, metricName, instanceID),
			shared.KindDependencyFailure)
	}

	// Take the most recent datapoint in the window.
	var latest *types.Datapoint
	for i := range out.Datapoints {
		dp := &out.Datapoints[i]
		if dp.Average == nil {
			continue
		}
		if latest == nil || (dp.Timestamp != nil && latest.Timestamp != nil && dp.Timestamp.After(*latest.Timestamp)) {
			latest = dp
		}
	}
	if latest == nil {
		return Stat{}, nil
	}
	return Stat{Average: *latest.Average, OK: true}, nil
}
