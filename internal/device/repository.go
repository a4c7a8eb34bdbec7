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

// Repository defines the interface for catalog persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a device by id.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id int) (*Device, error)

	// GetByEntityID retrieves the device bound to an entity id.
	// Returns ErrDeviceNotFound when no device carries the binding.
	GetByEntityID(ctx context.Context, entityID string) (*Device, error)

	// List retrieves all devices ordered by id.
	List(ctx context.Context) ([]Device, error)

	// Create inserts a new device with its explicit id.
	// Returns ErrDeviceExists if the id or entity binding is taken.
	Create(ctx context.Context, device *Device) error

	// Update replaces an existing device record.
	// Returns ErrDeviceNotFound if the device does not exist.
	Update(ctx context.Context, device *Device) error

	// Delete removes a device and its mapping row.
	// Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, id int) error

	// Mappings retrieves the full binding table.
	Mappings(ctx context.Context) (Mapping, error)

	// SaveMapping upserts one binding row.
	SaveMapping(ctx context.Context, id int, entityID string) error

	// DeleteMapping removes one binding row; absent rows are not an error.
	DeleteMapping(ctx context.Context, id int) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `id, entity_id, name, room, category, type, icon,
	is_common, visibility, params, mirror, created_at, updated_at`

// GetByID retrieves a device by id.
func (r *SQLiteRepository) GetByID(ctx context.Context, id int) (*Device, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return d, nil
}

// GetByEntityID retrieves the device bound to an entity id.
func (r *SQLiteRepository) GetByEntityID(ctx context.Context, entityID string) (*Device, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE entity_id = ?`, entityID)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by entity id: %w", err)
	}
	return d, nil
}

// List retrieves all devices ordered by id.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM devices ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device rows: %w", err)
	}
	return devices, nil
}

// Create inserts a new device with its explicit id.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	if err := device.Validate(); err != nil {
		return err
	}

	paramsJSON, mirrorJSON, err := marshalBlobs(device)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO devices (id, entity_id, name, room, category, type, icon,
			is_common, visibility, params, mirror, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		device.ID, nullStr(device.EntityID), device.Name, device.Room,
		string(device.Category), device.Type, device.Icon,
		boolInt(device.IsCommon), string(device.Visibility),
		paramsJSON, mirrorJSON,
		device.CreatedAt.Format(time.RFC3339Nano),
		device.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// Update replaces an existing device record.
func (r *SQLiteRepository) Update(ctx context.Context, device *Device) error {
	if err := device.Validate(); err != nil {
		return err
	}

	paramsJSON, mirrorJSON, err := marshalBlobs(device)
	if err != nil {
		return err
	}
	device.UpdatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx, `
		UPDATE devices SET entity_id = ?, name = ?, room = ?, category = ?,
			type = ?, icon = ?, is_common = ?, visibility = ?,
			params = ?, mirror = ?, updated_at = ?
		WHERE id = ?`,
		nullStr(device.EntityID), device.Name, device.Room,
		string(device.Category), device.Type, device.Icon,
		boolInt(device.IsCommon), string(device.Visibility),
		paramsJSON, mirrorJSON,
		device.UpdatedAt.Format(time.RFC3339Nano),
		device.ID,
	)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// Delete removes a device. The mapping row goes with it via the foreign
// key cascade.
func (r *SQLiteRepository) Delete(ctx context.Context, id int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// Mappings retrieves the full binding table.
func (r *SQLiteRepository) Mappings(ctx context.Context) (Mapping, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT device_id, entity_id FROM device_mappings`)
	if err != nil {
		return nil, fmt.Errorf("listing mappings: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	mapping := make(Mapping)
	for rows.Next() {
		var id int
		var entityID string
		if err := rows.Scan(&id, &entityID); err != nil {
			return nil, fmt.Errorf("scanning mapping row: %w", err)
		}
		mapping[id] = entityID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating mapping rows: %w", err)
	}
	return mapping, nil
}

// SaveMapping upserts one binding row.
func (r *SQLiteRepository) SaveMapping(ctx context.Context, id int, entityID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO device_mappings (device_id, entity_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET entity_id = excluded.entity_id`,
		id, entityID, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("saving mapping: %w", err)
	}
	return nil
}

// DeleteMapping removes one binding row.
func (r *SQLiteRepository) DeleteMapping(ctx context.Context, id int) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM device_mappings WHERE device_id = ?`, id); err != nil {
		return fmt.Errorf("deleting mapping: %w", err)
	}
	return nil
}

// rowScanner abstracts sql.Row and sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(scanner rowScanner) (*Device, error) {
	var d Device
	var entityID sql.NullString
	var category, visibility string
	var isCommon int
	var paramsJSON, mirrorJSON string
	var createdAt, updatedAt string

	err := scanner.Scan(
		&d.ID,
		&entityID,
		&d.Name,
		&d.Room,
		&category,
		&d.Type,
		&d.Icon,
		&isCommon,
		&visibility,
		&paramsJSON,
		&mirrorJSON,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if entityID.Valid {
		d.EntityID = entityID.String
	}
	d.Category = Category(category)
	d.Visibility = Visibility(visibility)
	d.IsCommon = isCommon != 0

	if err := json.Unmarshal([]byte(paramsJSON), &d.Params); err != nil {
		return nil, fmt.Errorf("decoding params: %w", err)
	}
	if err := json.Unmarshal([]byte(mirrorJSON), &d.Mirror); err != nil {
		return nil, fmt.Errorf("decoding mirror: %w", err)
	}

	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		d.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		d.UpdatedAt = t
	}
	return &d, nil
}

func marshalBlobs(device *Device) (string, string, error) {
	paramsJSON, err := json.Marshal(device.Params)
	if err != nil {
		return "", "", fmt.Errorf("encoding params: %w", err)
	}
	mirrorJSON, err := json.Marshal(device.Mirror)
	if err != nil {
		return "", "", fmt.Errorf("encoding mirror: %w", err)
	}
	return string(paramsJSON), string(mirrorJSON), nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
