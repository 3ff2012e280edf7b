// Package connection holds the local view of linked Teamwork accounts: the
// connection model, the change events that describe how the connections
// collection evolves, the versioned store those events are folded into, and
// the service that creates connections and reads through to Teamwork.
package connection

import (
	"sort"
	"time"

	"github.com/randalmurphal/scopesync/internal/teamwork"
)

// TypeTeamwork is the only connection type.
const TypeTeamwork = "teamwork"

// TaskList and Task are the Teamwork shapes, used unchanged.
type (
	TaskList = teamwork.TaskList
	Task     = teamwork.Task
)

// Connection is a linked Teamwork account plus its locally cached projects.
type Connection struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	ExternalID string             `json:"externalId"`
	BaseURL    string             `json:"baseUrl"`
	UserID     string             `json:"userId"`
	Name       string             `json:"name"`
	Company    string             `json:"company"`
	CompanyID  string             `json:"companyId"`
	Projects   map[string]Project `json:"projects,omitempty"`
	CreatedAt  time.Time          `json:"createdAt"`
	UpdatedAt  time.Time          `json:"updatedAt"`

	// Token is the Teamwork API token. It stays in storage.
	Token string `json:"-"`
}

// Project is a Teamwork project owned by one connection.
type Project struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Created     string              `json:"created"`
	TaskLists   map[string]TaskList `json:"taskLists,omitempty"`
}

// NewConnection is the request to link a Teamwork account.
type NewConnection struct {
	Token string `json:"token"`
}

// FromAccount builds a connection for the account a token resolved to.
func FromAccount(id, token string, account teamwork.AccountInfo, now time.Time) *Connection {
	return &Connection{
		ID:         id,
		Type:       TypeTeamwork,
		ExternalID: account.ID,
		BaseURL:    account.BaseURL,
		UserID:     account.UserID,
		Name:       account.Name,
		Company:    account.Company,
		CompanyID:  account.CompanyID,
		CreatedAt:  now,
		UpdatedAt:  now,
		Token:      token,
	}
}

// ExternalData returns the account details shown when verifying a new connection.
func (c *Connection) ExternalData() teamwork.AccountInfo {
	return teamwork.AccountInfo{
		ID:        c.ExternalID,
		BaseURL:   c.BaseURL,
		UserID:    c.UserID,
		Name:      c.Name,
		Company:   c.Company,
		CompanyID: c.CompanyID,
	}
}

// Project returns the cached project with the given id.
func (c *Connection) Project(id string) (Project, bool) {
	if c == nil || c.Projects == nil {
		return Project{}, false
	}
	p, ok := c.Projects[id]
	return p, ok
}

// Clone returns a deep copy of c.
func (c *Connection) Clone() *Connection {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Projects = cloneProjects(c.Projects)
	return &cp
}

// Public returns a deep copy of c without the token.
func (c *Connection) Public() *Connection {
	cp := c.Clone()
	if cp != nil {
		cp.Token = ""
	}
	return cp
}

// SortedProjects returns the cached projects ordered by name.
func (c *Connection) SortedProjects() []Project {
	projects := make([]Project, 0, len(c.Projects))
	for _, p := range c.Projects {
		projects = append(projects, p)
	}
	sort.Slice(projects, func(i, j int) bool {
		if projects[i].Name != projects[j].Name {
			return projects[i].Name < projects[j].Name
		}
		return projects[i].ID < projects[j].ID
	})
	return projects
}

// SortedTaskLists returns the project's task lists ordered by name.
func (p Project) SortedTaskLists() []TaskList {
	lists := make([]TaskList, 0, len(p.TaskLists))
	for _, tl := range p.TaskLists {
		lists = append(lists, tl)
	}
	sort.Slice(lists, func(i, j int) bool {
		if lists[i].Name != lists[j].Name {
			return lists[i].Name < lists[j].Name
		}
		return lists[i].ID < lists[j].ID
	})
	return lists
}

func cloneProjects(in map[string]Project) map[string]Project {
	if in == nil {
		return nil
	}
	out := make(map[string]Project, len(in))
	for id, p := range in {
		if p.TaskLists != nil {
			lists := make(map[string]TaskList, len(p.TaskLists))
			for tlID, tl := range p.TaskLists {
				lists[tlID] = tl
			}
			p.TaskLists = lists
		}
		out[id] = p
	}
	return out
}

// ProjectFromTeamwork converts a fetched project.
func ProjectFromTeamwork(p teamwork.Project) Project {
	return Project{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Created:     p.Created,
	}
}

// KeyProjects indexes projects by id.
func KeyProjects(projects []teamwork.Project) map[string]Project {
	out := make(map[string]Project, len(projects))
	for _, p := range projects {
		out[p.ID] = ProjectFromTeamwork(p)
	}
	return out
}

// KeyTaskLists indexes task lists by id.
func KeyTaskLists(lists []TaskList) map[string]TaskList {
	out := make(map[string]TaskList, len(lists))
	for _, tl := range lists {
		out[tl.ID] = tl
	}
	return out
}

// MergeProjects replaces the project set of a connection with fetched,
// keeping task lists already cached for projects that are still present.
func MergeProjects(current, fetched map[string]Project) map[string]Project {
	out := make(map[string]Project, len(fetched))
	for id, p := range fetched {
		if prev, ok := current[id]; ok && p.TaskLists == nil {
			p.TaskLists = prev.TaskLists
		}
		out[id] = p
	}
	return cloneProjects(out)
}

// WithTaskLists returns a copy of projects where the project with the given
// id carries lists. Other projects are copied unchanged.
func WithTaskLists(projects map[string]Project, project Project, lists map[string]TaskList) map[string]Project {
	out := cloneProjects(projects)
	if out == nil {
		out = make(map[string]Project, 1)
	}
	project.TaskLists = lists
	out[project.ID] = project
	return out
}
