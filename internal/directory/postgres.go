package directory

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresDirectory resolves identities from the dashboard user tables.
type PostgresDirectory struct {
	db *sql.DB
}

// NewPostgresDirectory constructs a directory backed by Postgres.
func NewPostgresDirectory(db *sql.DB) (*PostgresDirectory, error) {
	if db == nil {
		return nil, errors.New("directory: nil db")
	}
	return &PostgresDirectory{db: db}, nil
}

// ResolveRoleMembers implements Directory.
func (d *PostgresDirectory) ResolveRoleMembers(ctx context.Context, role string) ([]Member, error) {
	if role == "" {
		return nil, ErrUnknownRole
	}
	rows, err := d.db.QueryContext(ctx, `
SELECT u.id, u.name, u.email
FROM users u
JOIN user_roles ur ON ur.user_id = u.id
WHERE ur.role = $1 AND u.active`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.Name, &m.Email); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if members == nil {
		return nil, ErrUnknownRole
	}
	return members, nil
}

// GetUser implements Directory.
func (d *PostgresDirectory) GetUser(ctx context.Context, userID string) (*Member, error) {
	if userID == "" {
		return nil, nil
	}
	row := d.db.QueryRowContext(ctx, `SELECT id, name, email FROM users WHERE id = $1 LIMIT 1`, userID)
	var m Member
	if err := row.Scan(&m.ID, &m.Name, &m.Email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// EscalationTarget implements Directory using the role escalation table.
func (d *PostgresDirectory) EscalationTarget(ctx context.Context, role string) (Target, error) {
	if role == "" {
		return Target{}, nil
	}
	row := d.db.QueryRowContext(ctx, `
SELECT COALESCE(next_role, ''), COALESCE(next_user_id, '')
FROM role_escalations
WHERE role = $1
LIMIT 1`, role)
	var target Target
	if err := row.Scan(&target.Role, &target.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Target{}, nil
		}
		return Target{}, err
	}
	if target.UserID != "" {
		user, err := d.GetUser(ctx, target.UserID)
		if err == nil && user != nil {
			target.Name = user.Name
		}
	}
	return target, nil
}
