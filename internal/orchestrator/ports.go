package orchestrator

import (
	"context"

	"github.com/randalmurphal/scopesync/internal/connection"
	"github.com/randalmurphal/scopesync/internal/teamwork"
)

// ConnectionAPI is the internal connection API the orchestrator calls.
// connection.Service implements it in-process; api.Client over HTTP.
type ConnectionAPI interface {
	AddConnection(ctx context.Context, req connection.NewConnection) (*connection.Connection, error)
	GetProjects(ctx context.Context, connectionID string) ([]teamwork.Project, error)
	GetTaskLists(ctx context.Context, connectionID, projectID string) ([]connection.TaskList, error)
}

// Verification is shown to the user after a token was accepted, so they
// can confirm the account it belongs to.
type Verification struct {
	ConnectionID string
	Type         string
	Company      string
	Name         string
}

// Prompter asks the user to confirm a new connection. A non-nil error
// means the user did not confirm.
type Prompter interface {
	Verify(ctx context.Context, v Verification) error
}

// Navigator moves the user to another view.
type Navigator interface {
	Navigate(ctx context.Context, path string) error
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, v Verification) error

// Verify calls f.
func (f PrompterFunc) Verify(ctx context.Context, v Verification) error { return f(ctx, v) }

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, path string) error

// Navigate calls f.
func (f NavigatorFunc) Navigate(ctx context.Context, path string) error { return f(ctx, path) }

var (
	acceptAll  = PrompterFunc(func(context.Context, Verification) error { return nil })
	stayInView = NavigatorFunc(func(context.Context, string) error { return nil })
)
