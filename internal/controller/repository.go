package controller

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository persists controller configuration.
// Cached addresses are never stored.
type Repository interface {
	// List returns every stored controller ordered by ID.
	List(ctx context.Context) ([]StoredDevice, error)

	// Get returns one controller.
	// Returns ErrDeviceNotFound if the ID has no row.
	Get(ctx context.Context, id string) (*StoredDevice, error)

	// Seed inserts devices that are not stored yet and leaves existing rows
	// untouched. It returns how many rows were inserted.
	Seed(ctx context.Context, devices []Device) (int, error)

	// SetGuestPin records the guest PIN last accepted by a controller.
	// An empty pin clears it. Returns ErrDeviceNotFound if the ID has no row.
	SetGuestPin(ctx context.Context, id, pin string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open, migrated SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// List returns every stored controller ordered by ID.
func (r *SQLiteRepository) List(ctx context.Context) ([]StoredDevice, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, hostname, port, pin_controller_id, guest_pin, created_at, updated_at
		FROM controllers
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying controllers: %w", err)
	}
	defer rows.Close()

	var devices []StoredDevice
	for rows.Next() {
		d, err := scanController(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating controllers: %w", err)
	}
	return devices, nil
}

// Get returns one controller.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*StoredDevice, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, hostname, port, pin_controller_id, guest_pin, created_at, updated_at
		FROM controllers
		WHERE id = ?`, id)

	d, err := scanController(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}
	return d, nil
}

// Seed inserts devices that are not stored yet, in one transaction.
func (r *SQLiteRepository) Seed(ctx context.Context, devices []Device) (int, error) {
	for _, d := range devices {
		if err := d.Validate(); err != nil {
			return 0, err
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	now := time.Now().UTC().Format(time.RFC3339)
	inserted := 0
	for _, d := range devices {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO controllers (id, hostname, port, pin_controller_id, guest_pin, created_at, updated_at)
			VALUES (?, ?, ?, ?, '', ?, ?)
			ON CONFLICT(id) DO NOTHING`,
			d.ID, d.Hostname, d.Port, d.PinControllerID, now, now)
		if err != nil {
			return 0, fmt.Errorf("seeding controller %s: %w", d.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("checking rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing seed: %w", err)
	}
	return inserted, nil
}

// SetGuestPin records the guest PIN for a controller.
func (r *SQLiteRepository) SetGuestPin(ctx context.Context, id, pin string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE controllers SET guest_pin = ?, updated_at = ? WHERE id = ?`,
		pin, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("updating guest pin: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// Devices returns the static part of each stored record.
func Devices(stored []StoredDevice) []Device {
	devices := make([]Device, len(stored))
	for i, s := range stored {
		devices[i] = s.Device
	}
	return devices
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanController(s scanner) (*StoredDevice, error) {
	var (
		d         StoredDevice
		createdAt string
		updatedAt string
	)
	if err := s.Scan(&d.ID, &d.Hostname, &d.Port, &d.PinControllerID, &d.GuestPIN, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning controller: %w", err)
	}

	d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	d.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled
	return &d, nil
}
