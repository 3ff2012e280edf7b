package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/randalmurphal/scopesync/internal/connection"
	syncerrors "github.com/randalmurphal/scopesync/internal/errors"
)

const connectionColumns = `id, type, external_id, base_url, user_id, name, company, company_id,
	token, projects, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (*connection.Connection, error) {
	var (
		c                    connection.Connection
		projects             string
		createdAt, updatedAt string
	)
	if err := row.Scan(&c.ID, &c.Type, &c.ExternalID, &c.BaseURL, &c.UserID, &c.Name,
		&c.Company, &c.CompanyID, &c.Token, &projects, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(projects), &c.Projects); err != nil {
		return nil, fmt.Errorf("decode projects of connection %s: %w", c.ID, err)
	}
	if len(c.Projects) == 0 {
		c.Projects = nil
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &c, nil
}

func encodeProjects(projects map[string]connection.Project) (string, error) {
	if projects == nil {
		return "{}", nil
	}
	b, err := json.Marshal(projects)
	if err != nil {
		return "", fmt.Errorf("encode projects: %w", err)
	}
	return string(b), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// CreateConnection inserts a new connection row.
func (d *DB) CreateConnection(ctx context.Context, c *connection.Connection) error {
	projects, err := encodeProjects(c.Projects)
	if err != nil {
		return err
	}
	_, err = d.ExecContext(ctx, `
		INSERT INTO connections (`+connectionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Type, c.ExternalID, c.BaseURL, c.UserID, c.Name, c.Company, c.CompanyID,
		c.Token, projects, formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert connection %s: %w", c.ID, err)
	}
	return nil
}

// GetConnection loads one connection.
// Returns a CONNECTION_NOT_FOUND error when the id is unknown.
func (d *DB) GetConnection(ctx context.Context, id string) (*connection.Connection, error) {
	return getConnection(ctx, d.driver, id)
}

type querier interface {
	QueryRow(ctx context.Context, query string, args ...any) *sql.Row
}

func getConnection(ctx context.Context, q querier, id string) (*connection.Connection, error) {
	row := q.QueryRow(ctx, `SELECT `+connectionColumns+` FROM connections WHERE id = ?`, id)
	c, err := scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, syncerrors.ErrConnectionNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get connection %s: %w", id, err)
	}
	return c, nil
}

// ListConnections returns every connection ordered by company and name.
func (d *DB) ListConnections(ctx context.Context) ([]*connection.Connection, error) {
	rows, err := d.QueryContext(ctx, `SELECT `+connectionColumns+` FROM connections ORDER BY company, name, id`)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*connection.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate connections: %w", err)
	}
	return out, nil
}

// UpdateConnection merges ch into the stored connection inside a
// transaction and returns the updated row.
func (d *DB) UpdateConnection(ctx context.Context, id string, ch connection.Changes, now time.Time) (*connection.Connection, error) {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	c, err := getConnection(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	ch.ApplyTo(c)
	c.UpdatedAt = now

	projects, err := encodeProjects(c.Projects)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE connections SET type = ?, external_id = ?, base_url = ?, user_id = ?, name = ?,
			company = ?, company_id = ?, projects = ?, updated_at = ?
		WHERE id = ?`,
		c.Type, c.ExternalID, c.BaseURL, c.UserID, c.Name, c.Company, c.CompanyID,
		projects, formatTime(c.UpdatedAt), id,
	); err != nil {
		return nil, fmt.Errorf("update connection %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit connection %s: %w", id, err)
	}
	return c, nil
}

// DeleteConnection removes a connection and returns the deleted row.
func (d *DB) DeleteConnection(ctx context.Context, id string) (*connection.Connection, error) {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	c, err := getConnection(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM connections WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("delete connection %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit connection %s: %w", id, err)
	}
	return c, nil
}
