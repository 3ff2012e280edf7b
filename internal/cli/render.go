package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/randalmurphal/scopesync/internal/connection"
)

// renderer writes listings, styled only when the output is a terminal.
type renderer struct {
	w      io.Writer
	styled bool

	title  lipgloss.Style
	id     lipgloss.Style
	muted  lipgloss.Style
	hours  lipgloss.Style
	accent lipgloss.Style
}

func newRenderer(w io.Writer) *renderer {
	styled := false
	if f, ok := w.(*os.File); ok {
		styled = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &renderer{
		w:      w,
		styled: styled,
		title:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
		id:     lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		muted:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		hours:  lipgloss.NewStyle().Foreground(lipgloss.Color("170")).Bold(true),
		accent: lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
	}
}

func (r *renderer) paint(style lipgloss.Style, s string) string {
	if !r.styled {
		return s
	}
	return style.Render(s)
}

func (r *renderer) heading(s string) {
	fmt.Fprintln(r.w, r.paint(r.title, s))
}

// connections lists connections as "company / name  [id]".
func (r *renderer) connections(conns []*connection.Connection) {
	if len(conns) == 0 {
		fmt.Fprintln(r.w, r.paint(r.muted, "No connections. Add one with 'scopesync connect --token <token>'."))
		return
	}
	r.heading("Connections")
	for _, c := range conns {
		fmt.Fprintf(r.w, "  %s / %s  %s\n", r.paint(r.accent, c.Company), c.Name, r.paint(r.id, "["+c.ID+"]"))
	}
}

// connection prints the account behind a single connection.
func (r *renderer) connection(c *connection.Connection) {
	r.heading(c.Company)
	fmt.Fprintf(r.w, "  %s %s\n", r.paint(r.muted, "id:     "), c.ID)
	fmt.Fprintf(r.w, "  %s %s\n", r.paint(r.muted, "type:   "), c.Type)
	fmt.Fprintf(r.w, "  %s %s\n", r.paint(r.muted, "user:   "), c.Name)
	fmt.Fprintf(r.w, "  %s %s\n", r.paint(r.muted, "site:   "), c.BaseURL)
}

// projects lists the cached projects of a connection.
func (r *renderer) projects(c *connection.Connection) {
	r.heading("Projects of " + c.Company)
	projects := c.SortedProjects()
	if len(projects) == 0 {
		fmt.Fprintln(r.w, r.paint(r.muted, "  (none)"))
		return
	}
	for _, p := range projects {
		fmt.Fprintf(r.w, "  %s  %s\n", p.Name, r.paint(r.id, "["+p.ID+"]"))
	}
}

// taskLists lists the task lists of a project.
func (r *renderer) taskLists(p connection.Project) {
	r.heading("Task lists of " + p.Name)
	lists := p.SortedTaskLists()
	if len(lists) == 0 {
		fmt.Fprintln(r.w, r.paint(r.muted, "  (none)"))
		return
	}
	for _, tl := range lists {
		fmt.Fprintf(r.w, "  %s  %s\n", tl.Name, r.paint(r.id, "["+tl.ID+"]"))
	}
}

// taskTree prints a task forest with estimations and a total.
func (r *renderer) taskTree(tasks []*connection.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(r.w, r.paint(r.muted, "No tasks."))
		return
	}
	var total float64
	for i, t := range tasks {
		total += r.task(t, "", i == len(tasks)-1, true)
	}
	fmt.Fprintf(r.w, "%s %s\n", r.paint(r.muted, "Total:"), r.paint(r.hours, formatHours(total)))
}

func (r *renderer) task(t *connection.Task, prefix string, last, root bool) float64 {
	branch, next := "", ""
	if !root {
		branch, next = "├─ ", "│  "
		if last {
			branch, next = "└─ ", "   "
		}
	}
	fmt.Fprintf(r.w, "%s%s%s  %s  %s\n", prefix, branch, t.Name,
		r.paint(r.hours, formatHours(t.Estimation)), r.paint(r.id, "["+t.ID+"]"))

	sum := t.Estimation
	for i, child := range t.ChildTasks {
		sum += r.task(child, prefix+next, i == len(t.ChildTasks)-1, false)
	}
	return sum
}

// estimation prints a task after its estimation was written.
func (r *renderer) estimation(t *connection.Task) {
	fmt.Fprintf(r.w, "%s  %s  %s\n", t.Name, r.paint(r.hours, formatHours(t.Estimation)), r.paint(r.id, "["+t.ID+"]"))
}

func formatHours(h float64) string {
	s := strconv.FormatFloat(h, 'f', 2, 64)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	return s + "h"
}
