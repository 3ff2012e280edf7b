package orchestrator

import (
	"context"

	"github.com/randalmurphal/scopesync/internal/connection"
	syncerrors "github.com/randalmurphal/scopesync/internal/errors"
	"github.com/randalmurphal/scopesync/internal/events"
)

const msgAddFailed = "Unable to add the connection. Please try again later."

// AddConnection creates a connection from a Teamwork token, asks the user
// to verify the account it belongs to and then navigates to the dashboard.
//
// A failure is recorded as the add error and returned; the lifecycle state
// of the connection list is left alone.
func (o *Orchestrator) AddConnection(ctx context.Context, req connection.NewConnection) (*connection.Connection, error) {
	c, err := o.api.AddConnection(ctx, req)
	if err != nil {
		return nil, o.addFailed(err)
	}

	account := c.ExternalData()
	if err := o.prompter.Verify(ctx, Verification{
		ConnectionID: c.ID,
		Type:         c.Type,
		Company:      account.Company,
		Name:         account.Name,
	}); err != nil {
		return nil, o.addFailed(err)
	}

	o.dispatch(connection.AddConnectionSucceeded{})
	o.logger.Info("connection added", "connection_id", c.ID, "company", account.Company)
	o.signal(events.EventConnectionAdded, events.SelectionData{ConnectionID: c.ID})

	if err := o.navigator.Navigate(ctx, DashboardPath); err != nil {
		o.logger.Warn("navigation failed", "path", DashboardPath, "error", err)
		return c, nil
	}
	o.signal(events.EventNavigate, events.NavigateData{Path: DashboardPath})
	return c, nil
}

func (o *Orchestrator) addFailed(err error) error {
	msg := syncerrors.Message(err, msgAddFailed)
	o.logger.Warn("add connection failed", "error", err)
	o.dispatch(connection.AddConnectionFailed{Message: msg})
	o.signal(events.EventAddFailed, events.ErrorData{Message: msg})
	return syncerrors.ErrOrchestrator(msg)
}
