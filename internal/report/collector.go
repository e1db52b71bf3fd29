// Package report builds and delivers the weekly EC2 metrics report.
//
// Two job modes exist. Native mode is self-contained: collect metrics
// across all configured AWS profiles, export a workbook, email it.
// Script mode reproduces the legacy pipeline: install the Python
// dependencies, then invoke the external report script with the email
// bindings in its environment.
package report

import (
	"context"
	"log/slog"

	"reportd/internal/adapter/external/aws"
)

// Row is one line of the metrics report.
type Row struct {
	Profile    string
	Region     string
	InstanceID string
	Metrics    aws.InstanceMetrics
}

// Collector gathers report rows across AWS profiles.
type Collector struct {
	configFile string
	factory    aws.ClientFactory
	log        *slog.Logger
}

// NewCollector creates a Collector reading profiles from configFile.
func NewCollector(configFile string, factory aws.ClientFactory, log *slog.Logger) *Collector {
	return &Collector{configFile: configFile, factory: factory, log: log}
}

// Collect walks every profile and instance and returns the report
// rows. A profile whose clients cannot be built or whose instances
// cannot be listed is logged and skipped; per-metric failures degrade
// to "N/A" values inside the row. Only a missing config file is fatal.
func (c *Collector) Collect(ctx context.Context) ([]Row, error) {
	profiles, err := aws.LoadProfiles(c.configFile)
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0)
	for _, profile := range profiles {
		log := c.log.With(slog.String("profile", profile.Name), slog.String("region", profile.Region))
		log.Info("collecting metrics")

		clients, err := c.factory(ctx, profile)
		if err != nil {
			log.Error("skipping profile", slog.Any("error", err))
			continue
		}

		ids, err := aws.ListInstanceIDs(ctx, clients.EC2)
		if err != nil {
			log.Error("skipping profile", slog.Any("error", err))
			continue
		}

		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			metrics := aws.GetInstanceMetrics(ctx, clients.CloudWatch, id, log)
			rows = append(rows, Row{
				Profile:    profile.Name,
				Region:     profile.Region,
				InstanceID: id,
				Metrics:    metrics,
			})
		}
	}
	return rows, nil
}
