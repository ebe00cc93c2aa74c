package config

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// SetupDatabase initializes the database connection
func SetupDatabase(cfg *Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	// Create tables if they don't exist
	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return db, nil
}

// createTables creates the necessary tables in the database
func createTables(db *sqlx.DB) error {
	// Create organisations table
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS organisations (
			id SERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// Create roles table
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS roles (
			id SERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// Create users table
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id SERIAL PRIMARY KEY,
			email VARCHAR(255) UNIQUE NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			organisation_id INTEGER REFERENCES organisations(id),
			role_id INTEGER REFERENCES roles(id)
		)
	`)
	if err != nil {
		return err
	}

	// Create devices table. The PRIMARY KEY on device_id is what makes
	// first-sight registration race-free (INSERT ... ON CONFLICT DO NOTHING).
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS devices (
			device_id VARCHAR(255) PRIMARY KEY,
			name VARCHAR(255),
			organisation_id INTEGER REFERENCES organisations(id)
		)
	`)
	if err != nil {
		return err
	}

	// Create device_data table. No foreign key to devices: a reading may
	// precede device metadata, ingest creates the bare device row itself.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS device_data (
			id BIGSERIAL PRIMARY KEY,
			device_id VARCHAR(255) NOT NULL,
			volume_ml BIGINT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// Create indexes for better performance
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_device_data_device_ts ON device_data(device_id, timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_devices_organisation ON devices(organisation_id)",
		"CREATE INDEX IF NOT EXISTS idx_users_organisation ON users(organisation_id)",
	}

	for _, idx := range indexes {
		_, err = db.Exec(idx)
		if err != nil {
			log.Warn().Err(err).Msg("failed to create index")
			// Don't return error here, indexes are not critical
		}
	}

	return nil
}
