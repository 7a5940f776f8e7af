package harness

import (
	"fmt"
	"io"

	"github.com/roach88/lamportsim/internal/cluster"
)

// Result is the outcome of checking a set of logs.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Scenario names the scenario that produced the logs, if any.
	Scenario string `json:"scenario,omitempty"`

	// LogDir is where the checked logs live.
	LogDir string `json:"log_dir"`

	// Entries counts log entries per machine id.
	Entries map[int]int `json:"entries"`

	// Errors contains one message per failed assertion.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Report is set when the harness ran the cluster itself.
	Report *cluster.Report `json:"report,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Entries: make(map[int]int),
		Errors:  []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// WriteText renders the result for a terminal.
func (r *Result) WriteText(w io.Writer) error {
	status := "PASS"
	if !r.Pass {
		status = "FAIL"
	}
	name := r.Scenario
	if name == "" {
		name = r.LogDir
	}
	if _, err := fmt.Fprintf(w, "%s %s\n", status, name); err != nil {
		return err
	}
	for _, id := range sortedIDs(r.Entries) {
		fmt.Fprintf(w, "  vm_%d: %d entries\n", id, r.Entries[id])
	}
	for _, e := range r.Errors {
		fmt.Fprintf(w, "\n%s", e)
	}
	return nil
}
