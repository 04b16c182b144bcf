package checks

import (
	"context"
	"strings"
	"time"

	"github.com/charlesng35/learnhub/internal/app/maintenance"
	"github.com/charlesng35/learnhub/internal/monitoring"
)

const defaultMaintenanceMaxAge = 36 * time.Hour

// MaintenanceObserver is satisfied by maintenance.Cleaner.
type MaintenanceObserver interface {
	LastRuns() []maintenance.JobRun
}

// Maintenance reports down when the latest run of a job failed and degraded
// when a job has not run within maxAge. Jobs that never ran are reported but
// do not fail the probe.
func Maintenance(observer MaintenanceObserver, maxAge time.Duration, now func() time.Time) monitoring.Check {
	if maxAge <= 0 {
		maxAge = defaultMaintenanceMaxAge
	}
	if now == nil {
		now = time.Now
	}

	return monitoring.NewCheck("maintenance", func(context.Context) monitoring.ProbeResult {
		if observer == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "maintenance disabled"}
		}

		status := monitoring.StatusUp
		var notes []string
		for _, run := range observer.LastRuns() {
			switch {
			case run.At.IsZero():
				notes = append(notes, run.Job+": pending first run")
			case run.Err != nil:
				status = monitoring.StatusDown
				notes = append(notes, run.Job+": "+run.Err.Error())
			case now().Sub(run.At) > maxAge:
				if status != monitoring.StatusDown {
					status = monitoring.StatusDegraded
				}
				notes = append(notes, run.Job+": stale run "+run.At.UTC().Format(time.RFC3339))
			}
		}
		return monitoring.ProbeResult{Status: status, Details: strings.Join(notes, "; ")}
	})
}
