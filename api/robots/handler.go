package robots

import (
	"net/http"
	"strconv"

	"github.com/kilianp07/robofleet/api"
	"github.com/kilianp07/robofleet/core/fleet"
	"github.com/kilianp07/robofleet/core/model"
	"github.com/kilianp07/robofleet/pkg/export"
)

// NewListHandler serves GET /api/robots. The optional status query parameter
// filters robots by status name.
func NewListHandler(b *Board) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		robots := b.Load().Robots
		if st := r.URL.Query().Get("status"); st != "" {
			kept := make([]fleet.RobotView, 0, len(robots))
			for _, v := range robots {
				if v.Status.String() == st {
					kept = append(kept, v)
				}
			}
			robots = kept
		}
		if robots == nil {
			robots = []fleet.RobotView{}
		}
		api.WriteJSON(w, http.StatusOK, robots)
	})
}

// NewRobotHandler serves GET /api/robots/{id}.
func NewRobotHandler(b *Board) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n, err := strconv.Atoi(r.PathValue("id"))
		if err != nil {
			http.Error(w, "invalid robot id", http.StatusBadRequest)
			return
		}
		for _, v := range b.Load().Robots {
			if v.ID == model.RobotID(n) {
				api.WriteJSON(w, http.StatusOK, v)
				return
			}
		}
		http.Error(w, fleet.ErrUnknownRobot.Error(), http.StatusNotFound)
	})
}

// NewFleetHandler serves GET /api/fleet with the aggregate metrics and the
// task queue.
func NewFleetHandler(b *Board) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := b.Load()
		s.Robots, s.Report = nil, nil
		api.WriteJSON(w, http.StatusOK, s)
	})
}

// NewReportHandler serves GET /api/report as JSON, or as CSV with
// format=csv.
func NewReportHandler(b *Board) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report := b.Load().Report
		switch r.URL.Query().Get("format") {
		case "csv":
			w.Header().Set("Content-Type", "text/csv")
			if err := export.WriteCSV(w, report); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		case "", "json":
			w.Header().Set("Content-Type", "application/json")
			if err := export.WriteJSON(w, report); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		default:
			http.Error(w, "unknown format", http.StatusBadRequest)
		}
	})
}
