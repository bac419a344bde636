// Package report renders sync results for the terminal.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/christopherklint97/togglsync/internal/syncer"
)

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
}

func formatRange(r syncer.Range) string {
	return fmt.Sprintf("%s → %s", r.Start.Format("2006-01-02 15:04"), r.End.Format("2006-01-02 15:04"))
}

// Plan renders what a run would fetch.
func Plan(p *syncer.Prepared) string {
	var rows []string
	rows = append(rows, titleStyle.Render("Sync plan"))
	if p.Plan.Full {
		rows = append(rows, row("full", formatRange(p.Plan.Incremental)))
	} else {
		rows = append(rows, row("incremental", formatRange(p.Plan.Incremental)))
	}
	if p.Plan.Gap != nil {
		rows = append(rows, row("gap", warningStyle.Render(formatRange(*p.Plan.Gap))))
	} else {
		rows = append(rows, row("gap", dimStyle.Render("none")))
	}
	rows = append(rows, row("workspace", fmt.Sprint(p.WorkspaceID)))
	rows = append(rows, row("account since", p.AccountCreated.Format(time.DateOnly)))
	return boxStyle.Render(strings.Join(rows, "\n"))
}

func phase(name string, r syncer.Result) string {
	counts := fmt.Sprintf("%d created, %d updated, %d skipped", r.Created, r.Updated, r.Skipped)
	if r.Failed > 0 {
		counts += ", " + errorStyle.Render(fmt.Sprintf("%d failed", r.Failed))
	}
	windows := dimStyle.Render(fmt.Sprintf(" (%d windows, %d via reports)", r.Windows, r.ReportWindows))

	status := successStyle.Render("✓")
	switch {
	case r.Abort == syncer.AbortRun:
		status = errorStyle.Render("quota exhausted")
	case r.Abort == syncer.AbortPhase:
		status = warningStyle.Render("history limit reached")
	case !r.Success:
		status = errorStyle.Render("failed")
	}
	return row(name, status+" "+counts+windows)
}

// Reverse renders a reconcile pass.
func Reverse(r syncer.ReverseResult) string {
	s := fmt.Sprintf("%d created, %d skipped", r.Created, r.Skipped)
	if r.Failed > 0 {
		s += ", " + errorStyle.Render(fmt.Sprintf("%d failed", r.Failed))
	}
	if r.Unlinked > 0 {
		s += ", " + warningStyle.Render(fmt.Sprintf("%d unlinked", r.Unlinked))
	}
	return row("reverse", s)
}

// Run renders the summary of a full run.
func Run(r *syncer.RunReport) string {
	var rows []string
	if r.Success() {
		rows = append(rows, successStyle.Render("Sync complete"))
	} else {
		rows = append(rows, errorStyle.Render("Sync finished with errors"))
	}
	rows = append(rows, phase("incremental", r.Incremental))
	if r.Gap != nil {
		rows = append(rows, phase("gap", *r.Gap))
	}
	if r.Reverse != nil {
		rows = append(rows, Reverse(*r.Reverse))
	}
	if r.Aborted {
		rows = append(rows, warningStyle.Render("later phases skipped"))
	}
	rows = append(rows, dimStyle.Render("took "+r.Elapsed.Round(time.Second).String()))
	return boxStyle.Render(strings.Join(rows, "\n"))
}

// Headline is a one-line summary for notifications.
func Headline(r *syncer.RunReport) string {
	created := r.Incremental.Created
	updated := r.Incremental.Updated
	failed := r.Incremental.Failed
	if r.Gap != nil {
		created += r.Gap.Created
		updated += r.Gap.Updated
		failed += r.Gap.Failed
	}
	s := fmt.Sprintf("%d created, %d updated", created, updated)
	if failed > 0 {
		s += fmt.Sprintf(", %d failed", failed)
	}
	if r.Aborted {
		s += " (quota exhausted)"
	}
	return s
}
