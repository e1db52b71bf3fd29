package report

import (
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"

	"reportd/internal/adapter/external/aws"
	"reportd/internal/shared"
)

const sheetName = "Sheet1"

// notAvailable renders metrics that had no datapoints or failed to fetch.
const notAvailable = "N/A"

var headers = []string{
	"Profile", "Region", "Instance ID",
	"CPU Utilization", "Memory Utilization", "Threads Running", "Processes Running",
}

// WriteWorkbook writes the report rows to an xlsx file at path.
func WriteWorkbook(rows []Row, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	for col, h := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return shared.MarkKind(err, shared.KindInternal)
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return shared.MarkKind(err, shared.KindInternal)
		}
	}

	for i, row := range rows {
		values := []any{
			row.Profile,
			row.Region,
			row.InstanceID,
			statCell(row.Metrics.CPUUtilization),
			statCell(row.Metrics.MemoryUtilization),
			statCell(row.Metrics.ThreadsRunning),
			statCell(row.Metrics.ProcessesRunning),
		}
		ref := "A" + strconv.Itoa(i+2)
		if err := f.SetSheetRow(sheetName, ref, &values); err != nil {
			return shared.MarkKind(err, shared.KindInternal)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return shared.Wrapf(err, "save workbook %s", path)
	}
	return nil
}

func statCell(s aws.Stat) any {
	if !s.OK {
		return notAvailable
	}
	return s.Average
}

// FormatStat renders a Stat the way the workbook does; used by logs.
func FormatStat(s aws.Stat) string {
	if !s.OK {
		return notAvailable
	}
	return fmt.Sprintf("%g", s.Average)
}
