package tui

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/mpcgate/pkg/client"
	"github.com/aretw0/mpcgate/pkg/domain"
)

// Reporter prints client progress and results.
type Reporter struct {
	out    io.Writer
	render func(string) (string, error)
}

// NewReporter creates a reporter on out. Markdown is rendered only when out is a terminal
// or an explicit style was asked for.
func NewReporter(out io.Writer, style string) *Reporter {
	if style == "" || style == StyleAuto {
		if !IsTerminal(out) {
			style = StylePlain
		}
	}
	return &Reporter{out: out, render: NewRenderer(style)}
}

// Progress prints one line per queue event.
func (r *Reporter) Progress(p client.Progress) {
	switch p.Stage {
	case client.StageQueueFull:
		fmt.Fprintf(r.out, "%s: the queue is currently full, waiting for a free slot\n", p.AccessKey)
	case client.StageQueued:
		fmt.Fprintf(r.out, "%s: you are currently #%d in line\n", p.AccessKey, *p.Position)
	case client.StageReady:
		fmt.Fprintf(r.out, "%s: computation servers are ready, your computation will begin shortly\n", p.AccessKey)
	case client.StageFetchCerts:
		fmt.Fprintln(r.out, "Fetching party certificates...")
	case client.StageDispatching:
		fmt.Fprintln(r.out, "Running the MPC client...")
	case client.StageFinished:
		fmt.Fprintf(r.out, "%s: session finished\n", p.AccessKey)
	}
}

// ShareResult prints a completed contribution.
func (r *Reporter) ShareResult(res *client.ShareResult) error {
	return r.print(ShareMarkdown(res))
}

// QueryResult prints the result of a query.
func (r *Reporter) QueryResult(res *client.QueryResult) error {
	return r.print(QueryMarkdown(res))
}

// Snapshot prints the admission state.
func (r *Reporter) Snapshot(s domain.Snapshot) error {
	return r.print(SnapshotMarkdown(s))
}

func (r *Reporter) print(markdown string) error {
	out, err := r.render(markdown)
	if err != nil {
		return err
	}
	_, err = io.WriteString(r.out, out)
	return err
}

// ShareMarkdown describes a contribution.
func ShareMarkdown(res *client.ShareResult) string {
	var b strings.Builder
	b.WriteString("# Data shared\n\n")
	fmt.Fprintf(&b, "- **Access key:** `%s`\n", res.AccessKey)
	fmt.Fprintf(&b, "- **Client port base:** %d\n", res.ClientPortBase)
	writeOutput(&b, res.Output)
	return b.String()
}

// QueryMarkdown renders query results as a table when they are a flat object.
func QueryMarkdown(res *client.QueryResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Computation %d\n\n", res.ComputationIndex)
	fmt.Fprintf(&b, "- **Access key:** `%s`\n", res.AccessKey)
	fmt.Fprintf(&b, "- **Client port base:** %d\n", res.ClientPortBase)
	writeOutput(&b, res.Results)
	return b.String()
}

// SnapshotMarkdown renders the waiting line and the active session.
func SnapshotMarkdown(s domain.Snapshot) string {
	var b strings.Builder
	b.WriteString("# Admission queue\n\n")
	fmt.Fprintf(&b, "- **In line:** %d / %d\n", s.Len(), s.Capacity)
	fmt.Fprintf(&b, "- **Free port blocks:** %d\n", s.FreePortBlocks)
	fmt.Fprintf(&b, "- **Taken at:** %s\n\n", s.TakenAt.Format(time.RFC3339))

	b.WriteString("## Active session\n\n")
	if s.Active == nil {
		b.WriteString("_none_\n\n")
	} else {
		a := s.Active
		fmt.Fprintf(&b, "- **Access key:** `%s`\n", a.AccessKey)
		fmt.Fprintf(&b, "- **Ports:** %s\n", a.Ports)
		fmt.Fprintf(&b, "- **Shared data:** %t, **queried:** %t\n", a.SharedData, a.QueriedComputation)
		if !a.Consumed() {
			fmt.Fprintf(&b, "- **Head deadline:** %s\n", a.HeadDeadline.Format(time.RFC3339))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Waiting\n\n")
	if len(s.Waiting) == 0 {
		b.WriteString("_empty_\n")
		return b.String()
	}
	b.WriteString("| # | Access key | Since |\n|---|---|---|\n")
	offset := 0
	if s.Active != nil {
		offset = 1
	}
	for i, e := range s.Waiting {
		fmt.Fprintf(&b, "| %d | `%s` | %s |\n", i+offset, e.AccessKey, e.EnqueuedAt.Format(time.RFC3339))
	}
	return b.String()
}

func writeOutput(b *strings.Builder, v any) {
	switch out := v.(type) {
	case nil:
		return
	case map[string]any:
		keys := make([]string, 0, len(out))
		for k := range out {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\n| Field | Value |\n|---|---|\n")
		for _, k := range keys {
			fmt.Fprintf(b, "| %s | %v |\n", k, out[k])
		}
	case string:
		fmt.Fprintf(b, "\n```\n%s\n```\n", out)
	default:
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Fprintf(b, "\n```json\n%s\n```\n", data)
	}
}
