package provision

import (
	"fmt"
	"io"
	"time"

	"github.com/ralt/vvvprov/internal/models"
	"github.com/sirupsen/logrus"
)

// Report collects the results of a provisioning run
type Report struct {
	Started time.Time
	Elapsed time.Duration
	Online  bool
	Results []models.StepResult
}

// Add records results, logging each one as it arrives
func (r *Report) Add(results ...models.StepResult) {
	for _, res := range results {
		switch res.Status {
		case models.StatusSuccess:
			logrus.Debug(res.String())
		case models.StatusToolError:
			logrus.Error(res.String())
		default:
			logrus.Warn(res.String())
		}
		r.Results = append(r.Results, res)
	}
}

// Count returns how many results have the given status
func (r *Report) Count(status models.StepStatus) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}

// Failures returns the results of failed tools
func (r *Report) Failures() []models.StepResult {
	var out []models.StepResult
	for _, res := range r.Results {
		if !res.OK() {
			out = append(out, res)
		}
	}
	return out
}

// Print writes the final summary: elapsed time, connectivity and counts
func (r *Report) Print(w io.Writer) {
	fmt.Fprintf(w, "Provisioning complete in %s\n", r.Elapsed.Round(time.Second))
	if r.Online {
		fmt.Fprintln(w, "External network connection: up")
	} else {
		fmt.Fprintln(w, "External network connection: down (network steps skipped)")
	}
	fmt.Fprintf(w, "%d succeeded, %d skipped (no network), %d skipped (missing file), %d failed\n",
		r.Count(models.StatusSuccess),
		r.Count(models.StatusSkippedNoNetwork),
		r.Count(models.StatusSkippedMissingFile),
		r.Count(models.StatusToolError))
	for _, res := range r.Failures() {
		fmt.Fprintf(w, "  failed: %s\n", res.String())
	}
}
