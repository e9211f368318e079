package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GroupRepository defines persistence operations for device groups.
type GroupRepository interface {
	// Create inserts a new device group.
	Create(ctx context.Context, group *Group) error
	// GetByID retrieves a device group by ID.
	GetByID(ctx context.Context, id string) (*Group, error)
	// List retrieves all device groups.
	List(ctx context.Context) ([]Group, error)
	// Update modifies an existing device group. Reparenting that would
	// create a cycle is rejected with ErrGroupCycle.
	Update(ctx context.Context, group *Group) error
	// Delete removes a device group by ID. Devices referencing the group
	// have their group_id nulled (weak reference), never deleted.
	Delete(ctx context.Context, id string) error
}

// SQLiteGroupRepository implements GroupRepository using SQLite.
type SQLiteGroupRepository struct {
	db *sql.DB
}

// NewSQLiteGroupRepository creates a new SQLite-backed group repository.
func NewSQLiteGroupRepository(db *sql.DB) *SQLiteGroupRepository {
	return &SQLiteGroupRepository{db: db}
}

// Create inserts a new device group.
func (r *SQLiteGroupRepository) Create(ctx context.Context, group *Group) error {
	if err := ValidateGroup(group); err != nil {
		return err
	}

	if group.ID == "" {
		group.ID = GenerateID()
	}

	now := time.Now().UTC()
	group.CreatedAt = now
	group.UpdatedAt = now

	if group.ParentID != nil {
		if _, err := r.GetByID(ctx, *group.ParentID); err != nil {
			return err
		}
	}

	query := `
		INSERT INTO device_groups (id, name, description, parent_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		group.ID,
		group.Name,
		group.Description,
		nullableString(group.ParentID),
		group.CreatedAt.Format(time.RFC3339),
		group.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrGroupExists
		}
		return fmt.Errorf("inserting device group: %w", err)
	}

	return nil
}

// GetByID retrieves a device group by ID.
func (r *SQLiteGroupRepository) GetByID(ctx context.Context, id string) (*Group, error) {
	query := `
		SELECT id, name, description, parent_id, created_at, updated_at
		FROM device_groups
		WHERE id = ?`

	group, err := scanGroup(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("querying device group: %w", err)
	}
	return group, nil
}

// List retrieves all device groups.
func (r *SQLiteGroupRepository) List(ctx context.Context) ([]Group, error) {
	query := `
		SELECT id, name, description, parent_id, created_at, updated_at
		FROM device_groups
		ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying device groups: %w", err)
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device group: %w", err)
		}
		groups = append(groups, *group)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device groups: %w", err)
	}
	return groups, nil
}

// Update modifies an existing device group.
func (r *SQLiteGroupRepository) Update(ctx context.Context, group *Group) error {
	if err := ValidateGroup(group); err != nil {
		return err
	}

	if group.ParentID != nil {
		if err := r.checkCycle(ctx, group.ID, *group.ParentID); err != nil {
			return err
		}
	}

	group.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE device_groups
		SET name = ?, description = ?, parent_id = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		group.Name,
		group.Description,
		nullableString(group.ParentID),
		group.UpdatedAt.Format(time.RFC3339),
		group.ID,
	)
	if err != nil {
		return fmt.Errorf("updating device group: %w", err)
	}
	return requireRowAffected(result, ErrGroupNotFound)
}

// Delete removes a device group by ID. Member devices keep existing with a
// null group_id (the schema's ON DELETE SET NULL); child groups are
// reparented to the root by the same mechanism.
func (r *SQLiteGroupRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM device_groups WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device group: %w", err)
	}
	return requireRowAffected(result, ErrGroupNotFound)
}

// checkCycle walks the parent chain from newParentID and rejects the update
// if it reaches groupID. Bounded by the group count so a pre-existing cycle
// in stored data cannot loop forever.
func (r *SQLiteGroupRepository) checkCycle(ctx context.Context, groupID, newParentID string) error {
	if groupID == newParentID {
		return ErrGroupCycle
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM device_groups").Scan(&total); err != nil {
		return fmt.Errorf("counting device groups: %w", err)
	}

	current := newParentID
	for i := 0; i < total; i++ {
		var parent sql.NullString
		err := r.db.QueryRowContext(ctx,
			"SELECT parent_id FROM device_groups WHERE id = ?", current).Scan(&parent)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrGroupNotFound
			}
			return fmt.Errorf("walking group parents: %w", err)
		}
		if !parent.Valid {
			return nil
		}
		if parent.String == groupID {
			return ErrGroupCycle
		}
		current = parent.String
	}
	return nil
}

// scanGroup scans a row or rows result into a Group.
func scanGroup(scanner rowScanner) (*Group, error) {
	var g Group
	var parentID sql.NullString
	var createdAt, updatedAt string

	err := scanner.Scan(&g.ID, &g.Name, &g.Description, &parentID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if parentID.Valid {
		g.ParentID = &parentID.String
	}

	var parseErr error
	g.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	g.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	return &g, nil
}
