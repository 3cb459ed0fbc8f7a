package pipeline

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"ytdigest/internal/domain"
)

// Outcome is the final state of one source in a run.
type Outcome struct {
	Source string
	ItemID string
	Title  string
	State  State
	Kind   domain.ContentKind
	// Err is the failure for failed states. A committed outcome under
	// best_effort delivery carries the delivery error, if any.
	Err error
}

// Report lists one outcome per source, in source order.
type Report struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Outcomes []Outcome
}

// Count returns how many outcomes ended in state.
func (r Report) Count(state State) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.State == state {
			n++
		}
	}
	return n
}

// Failures returns how many outcomes ended in a failure state.
func (r Report) Failures() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.State.Failed() {
			n++
		}
	}
	return n
}

// WriteTable prints the report as an aligned table.
func (r Report) WriteTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tITEM\tSTATE\tKIND\tERROR")
	for _, o := range r.Outcomes {
		errText := ""
		if o.Err != nil {
			errText = o.Err.Error()
		}
		item := o.ItemID
		if item == "" {
			item = "-"
		}
		kind := string(o.Kind)
		if kind == "" {
			kind = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", o.Source, item, o.State, kind, errText)
	}
	return tw.Flush()
}
