package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// HeartbeatUpdate carries the fields a heartbeat is allowed to touch.
// Info blobs are replace-whole-field: a nil map means "not reported, keep
// stored value"; a non-nil map replaces the stored blob entirely.
type HeartbeatUpdate struct {
	At           time.Time
	HardwareInfo Info
	SoftwareInfo Info
	NetworkInfo  Info
	Logs         []LogEntry
}

// HeartbeatResult reports the outcome of a transactional heartbeat apply.
type HeartbeatResult struct {
	Previous Status
	Status   Status
	Changed  bool
	LogsKept int
}

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a device by its unique identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// List retrieves all devices.
	List(ctx context.Context) ([]Device, error)

	// ListByStatus retrieves all devices in a specific status.
	ListByStatus(ctx context.Context, status Status) ([]Device, error)

	// ListByGroup retrieves all devices in a specific group.
	ListByGroup(ctx context.Context, groupID string) ([]Device, error)

	// ListByType retrieves all devices of a specific type.
	ListByType(ctx context.Context, t DeviceType) ([]Device, error)

	// Create inserts a new device.
	// Returns ErrDeviceExists if a device with the same ID already exists.
	Create(ctx context.Context, device *Device) error

	// Update modifies the descriptive fields of an existing device.
	// Returns ErrDeviceNotFound if the device does not exist.
	Update(ctx context.Context, device *Device) error

	// Delete removes a device by ID, cascading to its log entries.
	// Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, id string) error

	// SetStatus applies an operator status override unconditionally.
	SetStatus(ctx context.Context, id string, status Status) error

	// ApplyHeartbeat performs the heartbeat write path as a single
	// transaction: state transition, info blob replacement, timestamp
	// refresh, and log insertion commit together or not at all.
	ApplyHeartbeat(ctx context.Context, id string, hb HeartbeatUpdate) (*HeartbeatResult, error)

	// ListStale retrieves online devices whose last heartbeat is older
	// than the cutoff. Used by the staleness sweeper.
	ListStale(ctx context.Context, cutoff time.Time) ([]Device, error)

	// MarkOffline conditionally demotes a device to offline. The update
	// only applies while the device is still online with a stale
	// last_heartbeat, so a racing heartbeat write wins. Returns whether
	// the demotion was applied.
	MarkOffline(ctx context.Context, id string, cutoff time.Time) (bool, error)

	// InsertLogs appends log entries for a device.
	InsertLogs(ctx context.Context, entries []LogEntry) error

	// ListLogs retrieves log entries for a device, newest first.
	// An empty level matches all levels; limit <= 0 applies the default cap.
	ListLogs(ctx context.Context, deviceID string, level LogLevel, limit int) ([]LogEntry, error)
}

// defaultLogListLimit caps log listings when the caller does not specify one.
const defaultLogListLimit = 100

// deviceColumns is the column list shared by all device SELECTs.
const deviceColumns = `id, name, description, device_type, status, group_id,
		location, hardware_info, software_info, network_info,
		last_seen, last_heartbeat, created_by, created_at, updated_at`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	device, err := scanDeviceRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return device, nil
}

// List retrieves all devices.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices ORDER BY name`
	return r.queryDevices(ctx, query)
}

// ListByStatus retrieves all devices in a specific status.
func (r *SQLiteRepository) ListByStatus(ctx context.Context, status Status) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE status = ? ORDER BY name`
	return r.queryDevices(ctx, query, string(status))
}

// ListByGroup retrieves all devices in a specific group.
func (r *SQLiteRepository) ListByGroup(ctx context.Context, groupID string) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE group_id = ? ORDER BY name`
	return r.queryDevices(ctx, query, groupID)
}

// ListByType retrieves all devices of a specific type.
func (r *SQLiteRepository) ListByType(ctx context.Context, t DeviceType) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE device_type = ? ORDER BY name`
	return r.queryDevices(ctx, query, string(t))
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	locationJSON, hardwareJSON, softwareJSON, networkJSON, err := marshalInfoBlobs(device)
	if err != nil {
		return err
	}

	// Set timestamps if not set
	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now
	if device.Status == "" {
		device.Status = StatusOffline
	}

	query := `
		INSERT INTO devices (
			id, name, description, device_type, status, group_id,
			location, hardware_info, software_info, network_info,
			last_seen, last_heartbeat, created_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		device.ID,
		device.Name,
		device.Description,
		string(device.Type),
		string(device.Status),
		nullableString(device.GroupID),
		locationJSON,
		hardwareJSON,
		softwareJSON,
		networkJSON,
		nullableTime(device.LastSeen),
		nullableTime(device.LastHeartbeat),
		device.CreatedBy,
		device.CreatedAt.Format(time.RFC3339),
		device.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}

	return nil
}

// Update modifies the descriptive fields of an existing device. Status and
// liveness timestamps are owned by the heartbeat/sweeper paths and are not
// touched here; status overrides go through SetStatus.
func (r *SQLiteRepository) Update(ctx context.Context, device *Device) error {
	locationJSON, hardwareJSON, softwareJSON, networkJSON, err := marshalInfoBlobs(device)
	if err != nil {
		return err
	}

	device.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE devices SET
			name = ?, description = ?, device_type = ?, group_id = ?,
			location = ?, hardware_info = ?, software_info = ?, network_info = ?,
			updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		device.Name,
		device.Description,
		string(device.Type),
		nullableString(device.GroupID),
		locationJSON,
		hardwareJSON,
		softwareJSON,
		networkJSON,
		device.UpdatedAt.Format(time.RFC3339),
		device.ID,
	)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}

	return requireRowAffected(result, ErrDeviceNotFound)
}

// Delete removes a device by ID. Log entries cascade via the schema's
// foreign key; group membership is a column on the device row itself.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return requireRowAffected(result, ErrDeviceNotFound)
}

// SetStatus applies an operator status override unconditionally.
func (r *SQLiteRepository) SetStatus(ctx context.Context, id string, status Status) error {
	now := time.Now().UTC()
	query := `UPDATE devices SET status = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		string(status),
		now.Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("setting device status: %w", err)
	}
	return requireRowAffected(result, ErrDeviceNotFound)
}

// ApplyHeartbeat performs the heartbeat write path in a single transaction.
//
// The current status is read, the heartbeat transition computed, and the
// device row plus log entries written before commit. SQLite's single-writer
// model serialises this against a concurrent sweeper pass for the same
// device, so the read-then-write cannot lose an update.
func (r *SQLiteRepository) ApplyHeartbeat(ctx context.Context, id string, hb HeartbeatUpdate) (*HeartbeatResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting heartbeat transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op once committed

	var current string
	err = tx.QueryRowContext(ctx, "SELECT status FROM devices WHERE id = ?", id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("reading device status: %w", err)
	}

	previous := Status(current)
	next, changed := Transition(previous, EventHeartbeat, "")

	at := hb.At.UTC()
	sets := []string{"status = ?", "last_seen = ?", "last_heartbeat = ?", "updated_at = ?"}
	args := []any{
		string(next),
		at.Format(time.RFC3339),
		at.Format(time.RFC3339),
		at.Format(time.RFC3339),
	}

	// Replace-whole-field semantics: only reported blobs overwrite stored
	// values; last heartbeat wins per field.
	if hb.HardwareInfo != nil {
		blob, marshalErr := json.Marshal(hb.HardwareInfo)
		if marshalErr != nil {
			return nil, fmt.Errorf("marshalling hardware_info: %w", marshalErr)
		}
		sets = append(sets, "hardware_info = ?")
		args = append(args, string(blob))
	}
	if hb.SoftwareInfo != nil {
		blob, marshalErr := json.Marshal(hb.SoftwareInfo)
		if marshalErr != nil {
			return nil, fmt.Errorf("marshalling software_info: %w", marshalErr)
		}
		sets = append(sets, "software_info = ?")
		args = append(args, string(blob))
	}
	if hb.NetworkInfo != nil {
		blob, marshalErr := json.Marshal(hb.NetworkInfo)
		if marshalErr != nil {
			return nil, fmt.Errorf("marshalling network_info: %w", marshalErr)
		}
		sets = append(sets, "network_info = ?")
		args = append(args, string(blob))
	}

	args = append(args, id)
	query := "UPDATE devices SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("applying heartbeat: %w", err)
	}

	for i := range hb.Logs {
		if err = insertLogTx(ctx, tx, &hb.Logs[i]); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing heartbeat: %w", err)
	}

	return &HeartbeatResult{
		Previous: previous,
		Status:   next,
		Changed:  changed,
		LogsKept: len(hb.Logs),
	}, nil
}

// ListStale retrieves online devices whose last heartbeat is older than the cutoff.
func (r *SQLiteRepository) ListStale(ctx context.Context, cutoff time.Time) ([]Device, error) {
	query := `SELECT ` + deviceColumns + `
		FROM devices
		WHERE status = ? AND (last_heartbeat IS NULL OR last_heartbeat < ?)
		ORDER BY name`

	return r.queryDevices(ctx, query, string(StatusOnline), cutoff.UTC().Format(time.RFC3339))
}

// MarkOffline conditionally demotes a device to offline.
//
// The WHERE clause re-checks both status and staleness, so a heartbeat that
// committed between the sweeper's read and this write bumps last_heartbeat
// and the update affects zero rows: the heartbeat wins, no transition is
// lost silently.
func (r *SQLiteRepository) MarkOffline(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	now := time.Now().UTC()
	query := `
		UPDATE devices
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ? AND (last_heartbeat IS NULL OR last_heartbeat < ?)`

	result, err := r.db.ExecContext(ctx, query,
		string(StatusOffline),
		now.Format(time.RFC3339),
		id,
		string(StatusOnline),
		cutoff.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return false, fmt.Errorf("marking device offline: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// InsertLogs appends log entries for a device.
func (r *SQLiteRepository) InsertLogs(ctx context.Context, entries []LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting log transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op once committed

	for i := range entries {
		if err := insertLogTx(ctx, tx, &entries[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing logs: %w", err)
	}
	return nil
}

// ListLogs retrieves log entries for a device, newest first.
func (r *SQLiteRepository) ListLogs(ctx context.Context, deviceID string, level LogLevel, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = defaultLogListLimit
	}

	query := `
		SELECT id, device_id, level, message, category, metadata, timestamp
		FROM device_logs
		WHERE device_id = ?`
	args := []any{deviceID}

	if level != "" {
		query += " AND level = ?"
		args = append(args, string(level))
	}
	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying device logs: %w", err)
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var e LogEntry
		var category sql.NullString
		var metadataJSON sql.NullString
		var timestamp, level string

		if err := rows.Scan(&e.ID, &e.DeviceID, &level, &e.Message, &category, &metadataJSON, &timestamp); err != nil {
			return nil, fmt.Errorf("scanning log entry: %w", err)
		}

		e.Level = LogLevel(level)
		if category.Valid {
			e.Category = category.String
		}
		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshalling log metadata: %w", err)
			}
		}
		t, err := time.Parse(time.RFC3339, timestamp)
		if err != nil {
			return nil, fmt.Errorf("parsing log timestamp: %w", err)
		}
		e.Timestamp = t

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device logs: %w", err)
	}
	return entries, nil
}

// insertLogTx inserts one log entry within an existing transaction.
func insertLogTx(ctx context.Context, tx *sql.Tx, e *LogEntry) error {
	if e.ID == "" {
		e.ID = GenerateID()
	}

	var metadataJSON sql.NullString
	if e.Metadata != nil {
		blob, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling log metadata: %w", err)
		}
		metadataJSON = sql.NullString{String: string(blob), Valid: true}
	}

	query := `
		INSERT INTO device_logs (id, device_id, level, message, category, metadata, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := tx.ExecContext(ctx, query,
		e.ID,
		e.DeviceID,
		string(e.Level),
		e.Message,
		emptyAsNull(e.Category),
		metadataJSON,
		e.Timestamp.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting log entry: %w", err)
	}
	return nil
}

// queryDevices executes a query and returns a slice of devices.
func (r *SQLiteRepository) queryDevices(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		device, err := scanDeviceRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	return devices, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDeviceRow scans a row or rows result into a Device.
func scanDeviceRow(scanner rowScanner) (*Device, error) {
	var d Device
	var groupID sql.NullString
	var lastSeen, lastHeartbeat sql.NullString
	var locationJSON, hardwareJSON, softwareJSON, networkJSON string
	var deviceType, status string
	var createdAt, updatedAt string

	err := scanner.Scan(
		&d.ID,
		&d.Name,
		&d.Description,
		&deviceType,
		&status,
		&groupID,
		&locationJSON,
		&hardwareJSON,
		&softwareJSON,
		&networkJSON,
		&lastSeen,
		&lastHeartbeat,
		&d.CreatedBy,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Type = DeviceType(deviceType)
	d.Status = Status(status)

	if groupID.Valid {
		d.GroupID = &groupID.String
	}

	if lastSeen.Valid {
		t, err := time.Parse(time.RFC3339, lastSeen.String)
		if err == nil {
			d.LastSeen = &t
		}
	}
	if lastHeartbeat.Valid {
		t, err := time.Parse(time.RFC3339, lastHeartbeat.String)
		if err == nil {
			d.LastHeartbeat = &t
		}
	}

	var parseErr error
	d.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	d.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	if err := json.Unmarshal([]byte(locationJSON), &d.Location); err != nil {
		return nil, fmt.Errorf("unmarshalling location: %w", err)
	}
	if err := json.Unmarshal([]byte(hardwareJSON), &d.HardwareInfo); err != nil {
		return nil, fmt.Errorf("unmarshalling hardware_info: %w", err)
	}
	if err := json.Unmarshal([]byte(softwareJSON), &d.SoftwareInfo); err != nil {
		return nil, fmt.Errorf("unmarshalling software_info: %w", err)
	}
	if err := json.Unmarshal([]byte(networkJSON), &d.NetworkInfo); err != nil {
		return nil, fmt.Errorf("unmarshalling network_info: %w", err)
	}

	return &d, nil
}

// marshalInfoBlobs serialises the four opaque info blobs for storage.
// Nil maps are stored as empty objects so columns stay NOT NULL.
func marshalInfoBlobs(d *Device) (location, hardware, software, network string, err error) {
	blobs := []struct {
		name string
		m    Info
		out  *string
	}{
		{"location", d.Location, &location},
		{"hardware_info", d.HardwareInfo, &hardware},
		{"software_info", d.SoftwareInfo, &software},
		{"network_info", d.NetworkInfo, &network},
	}
	for _, b := range blobs {
		if b.m == nil {
			*b.out = "{}"
			continue
		}
		data, marshalErr := json.Marshal(b.m)
		if marshalErr != nil {
			return "", "", "", "", fmt.Errorf("marshalling %s: %w", b.name, marshalErr)
		}
		*b.out = string(data)
	}
	return location, hardware, software, network, nil
}

// requireRowAffected converts a zero-row result into the given sentinel error.
func requireRowAffected(result sql.Result, missing error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return missing
	}
	return nil
}

// nullableString returns a sql.NullString for optional string pointers.
func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// emptyAsNull returns a sql.NullString that is NULL for empty strings.
func emptyAsNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullableTime returns a sql.NullString for optional time pointers (as RFC3339 strings).
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
