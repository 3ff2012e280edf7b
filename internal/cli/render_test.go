package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/randalmurphal/scopesync/internal/connection"
)

func TestFormatHours(t *testing.T) {
	tests := []struct {
		hours float64
		want  string
	}{
		{0, "0h"},
		{1, "1h"},
		{2.5, "2.5h"},
		{0.25, "0.25h"},
		{10, "10h"},
		{1.0 / 3, "0.33h"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatHours(tt.hours))
	}
}

func TestRenderer_PlainWhenNotATerminal(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)
	assert.False(t, r.styled)
}

func TestRenderer_TaskTree(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)

	r.taskTree([]*connection.Task{
		{ID: "a", Name: "Build API", Estimation: 1, ChildTasks: []*connection.Task{
			{ID: "b", Name: "Routes", Estimation: 0.5},
			{ID: "c", Name: "Feed", Estimation: 2, ChildTasks: []*connection.Task{
				{ID: "d", Name: "Ping", Estimation: 0.25},
			}},
		}},
		{ID: "e", Name: "Docs"},
	})

	want := "" +
		"Build API  1h  [a]\n" +
		"├─ Routes  0.5h  [b]\n" +
		"└─ Feed  2h  [c]\n" +
		"   └─ Ping  0.25h  [d]\n" +
		"Docs  0h  [e]\n" +
		"Total: 3.75h\n"
	assert.Equal(t, want, buf.String())
}

func TestRenderer_EmptyListings(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)

	r.taskTree(nil)
	r.connections(nil)

	assert.Contains(t, buf.String(), "No tasks.")
	assert.Contains(t, buf.String(), "No connections.")
}

func TestRenderer_ConnectionsAndProjects(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)

	c := &connection.Connection{
		ID: "c1", Company: "Acme", Name: "Ada Lovelace",
		Projects: map[string]connection.Project{
			"p2": {ID: "p2", Name: "Web", TaskLists: map[string]connection.TaskList{
				"t2": {ID: "t2", Name: "Sprint"},
				"t1": {ID: "t1", Name: "Backlog"},
			}},
			"p1": {ID: "p1", Name: "App"},
		},
	}
	r.connections([]*connection.Connection{c})
	r.projects(c)
	r.taskLists(c.Projects["p2"])

	want := "" +
		"Connections\n" +
		"  Acme / Ada Lovelace  [c1]\n" +
		"Projects of Acme\n" +
		"  App  [p1]\n" +
		"  Web  [p2]\n" +
		"Task lists of Web\n" +
		"  Backlog  [t1]\n" +
		"  Sprint  [t2]\n"
	assert.Equal(t, want, buf.String())
}
