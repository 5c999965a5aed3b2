package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	enginesync "taskbridge/backend/sync"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	labelStyle   = lipgloss.NewStyle().Width(18).Foreground(lipgloss.Color("245"))
	conflictMark = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))
)

func renderSyncResult(r *enginesync.SyncResult) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Sync pass") + "\n")
	if r.Partial {
		b.WriteString(warnStyle.Render("  partial: pass was interrupted") + "\n")
	}
	b.WriteString(fmt.Sprintf("  %s pushed %d, created %d, failed %d\n",
		labelStyle.Render("local → remote"),
		r.LocalToRemote.Updated, r.LocalToRemote.Created, r.LocalToRemote.Failed))
	b.WriteString(fmt.Sprintf("  %s pulled %d, created %d, failed %d\n",
		labelStyle.Render("remote → local"),
		r.RemoteToLocal.Updated, r.RemoteToLocal.Created, r.RemoteToLocal.Failed))
	if r.Conflicts.Detected > 0 {
		b.WriteString(fmt.Sprintf("  %s detected %d, resolved %d, remaining %d\n",
			conflictMark.Render("conflicts"),
			r.Conflicts.Detected, r.Conflicts.Resolved, r.Conflicts.Remaining))
	}
	b.WriteString(dimStyle.Render(fmt.Sprintf("  finished in %s", r.Duration.Round(time.Millisecond))))
	return b.String()
}

func renderStatus(s enginesync.EngineStatus) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Engine") + "\n")

	online := errStyle.Render("offline")
	if s.Online {
		online = okStyle.Render("online")
	}
	b.WriteString(fmt.Sprintf("  %s %s, %s\n", labelStyle.Render("state"), s.State, online))

	autoSync := "off"
	if s.AutoSync {
		autoSync = "on"
	}
	b.WriteString(fmt.Sprintf("  %s %s\n", labelStyle.Render("auto-sync"), autoSync))
	b.WriteString(fmt.Sprintf("  %s %d pending, %d dead-lettered\n",
		labelStyle.Render("queue"), s.QueueDepth, s.DeadLetters))

	conflicts := fmt.Sprintf("%d", s.LiveConflicts)
	if s.LiveConflicts > 0 {
		conflicts = conflictMark.Render(conflicts)
	}
	b.WriteString(fmt.Sprintf("  %s %s live\n", labelStyle.Render("conflicts"), conflicts))

	if s.LastResult != nil {
		b.WriteString(fmt.Sprintf("  %s %s\n", labelStyle.Render("last pass"),
			s.LastResult.FinishedAt.Local().Format(time.RFC3339)))
	} else {
		b.WriteString(dimStyle.Render("  no pass completed yet") + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderConflict(c enginesync.Conflict) string {
	var b strings.Builder
	b.WriteString(conflictMark.Render(fmt.Sprintf("Task %d", c.TaskID)))
	b.WriteString(dimStyle.Render(fmt.Sprintf("  detected %s\n", c.DetectedAt.Local().Format(time.RFC3339))))
	b.WriteString(fmt.Sprintf("  %s %q (modified %s)\n", labelStyle.Render("local"),
		c.Local.Title, c.Local.ModifiedLocal().Local().Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf("  %s %q (modified %s)", labelStyle.Render("remote"),
		c.Remote.Title, c.Remote.ModifiedRemote().Local().Format(time.RFC3339)))
	return b.String()
}

func renderQueueEntry(e enginesync.QueueEntry) string {
	state := okStyle.Render("pending")
	if e.DeadLetter {
		state = errStyle.Render("dead-letter")
	} else if e.RetryCount > 0 {
		state = warnStyle.Render(fmt.Sprintf("retry %d", e.RetryCount))
	}
	line := fmt.Sprintf("%s  task %d  %-6s  %s  enqueued %s",
		e.ID[:8], e.TaskID, e.Operation, state,
		e.EnqueuedAt.Local().Format("2006-01-02 15:04:05"))
	if e.LastError != "" {
		line += "\n" + dimStyle.Render("          "+e.LastError)
	}
	return line
}
