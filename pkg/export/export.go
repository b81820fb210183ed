// Package export writes robot performance reports.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"

	"github.com/kilianp07/robofleet/core/fleet"
)

// WriteJSON writes the report to w in JSON format.
func WriteJSON(w io.Writer, report []fleet.RobotReport) error {
	if report == nil {
		report = []fleet.RobotReport{}
	}
	return json.NewEncoder(w).Encode(report)
}

// WriteCSV writes the report to w in CSV format with a header row.
func WriteCSV(w io.Writer, report []fleet.RobotReport) error {
	cw := csv.NewWriter(w)
	header := []string{"robot", "status", "tasks_completed", "distance", "wait_time", "collisions_avoided", "battery"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range report {
		rec := []string{
			r.Robot.String(),
			r.Status,
			strconv.Itoa(r.TasksCompleted),
			strconv.FormatFloat(r.Distance, 'f', 3, 64),
			strconv.FormatFloat(r.WaitTime, 'f', 3, 64),
			strconv.Itoa(r.CollisionsAvoided),
			strconv.FormatFloat(r.Battery, 'f', 2, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
