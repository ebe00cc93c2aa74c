package repository

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/jameshendricken/iot-dashboard/internal/models"
)

// Repository interface defines the methods that any repository implementation must satisfy
type Repository interface {
	// User operations
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	ListUsersByOrganisation(ctx context.Context, orgID int64) ([]models.User, error)
	UpdateUser(ctx context.Context, id int64, update models.UserUpdate) (*models.User, error)

	// Device operations
	GetDevice(ctx context.Context, deviceID string) (*models.Device, error)
	ListDevicesByOrganisation(ctx context.Context, orgID int64) ([]models.Device, error)
	UpdateDevice(ctx context.Context, deviceID string, update models.DeviceUpdate) (*models.Device, error)

	// Reading operations
	InsertReading(ctx context.Context, reading *models.Reading) error
	ListReadings(ctx context.Context, deviceID string, rng models.TimeRange) ([]models.Reading, error)
	SumVolume(ctx context.Context, deviceID string, rng models.TimeRange) (int64, error)
	Histogram(ctx context.Context, deviceID string, rng models.TimeRange, interval string) ([]models.Bucket, error)
	SumVolumeForOrganisation(ctx context.Context, deviceID string, orgID int64, rng models.TimeRange) (int64, error)
	HistogramForOrganisation(ctx context.Context, deviceID string, orgID int64, rng models.TimeRange, interval string) ([]models.Bucket, error)
	DeviceTotalsByOrganisation(ctx context.Context, orgID int64) ([]models.DeviceTotal, error)

	// Organisation and role operations
	ListOrganisations(ctx context.Context) ([]models.Organisation, error)
	GetOrganisation(ctx context.Context, id int64) (*models.Organisation, error)
	GetRole(ctx context.Context, id int64) (*models.Role, error)
}

// PostgresRepository implements the Repository interface using PostgreSQL
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
	}
}

// GetDB returns the underlying database connection
func (r *PostgresRepository) GetDB() *sqlx.DB {
	return r.db
}

// psql builds queries with $n placeholders for PostgreSQL
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// User repository methods
func (r *PostgresRepository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (email, password_hash, organisation_id, role_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	return r.db.QueryRowContext(ctx, query,
		user.Email, user.PasswordHash, user.OrganisationID, user.RoleID).Scan(&user.ID)
}

func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT * FROM users WHERE email = $1`

	var user models.User
	err := r.db.GetContext(ctx, &user, query, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found
		}
		return nil, err
	}

	return &user, nil
}

func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT * FROM users WHERE id = $1`

	var user models.User
	err := r.db.GetContext(ctx, &user, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found
		}
		return nil, err
	}

	return &user, nil
}

func (r *PostgresRepository) ListUsersByOrganisation(ctx context.Context, orgID int64) ([]models.User, error) {
	query := `SELECT * FROM users WHERE organisation_id = $1 ORDER BY id`

	var users []models.User
	err := r.db.SelectContext(ctx, &users, query, orgID)
	if err != nil {
		return nil, err
	}

	return users, nil
}

func (r *PostgresRepository) UpdateUser(ctx context.Context, id int64, update models.UserUpdate) (*models.User, error) {
	builder := psql.Update("users")
	fields := 0

	if update.Email != nil {
		builder = builder.Set("email", *update.Email)
		fields++
	}
	if update.OrganisationID != nil {
		builder = builder.Set("organisation_id", *update.OrganisationID)
		fields++
	}
	if update.RoleID != nil {
		builder = builder.Set("role_id", *update.RoleID)
		fields++
	}

	if fields > 0 {
		query, args, err := builder.Where(sq.Eq{"id": id}).ToSql()
		if err != nil {
			return nil, err
		}

		result, err := r.db.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, nil // User not found
		}
	}

	// Return the full row as it stands after the update
	return r.GetUserByID(ctx, id)
}

// Device repository methods
func (r *PostgresRepository) GetDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	query := `SELECT * FROM devices WHERE device_id = $1`

	var device models.Device
	err := r.db.GetContext(ctx, &device, query, deviceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Device not found
		}
		return nil, err
	}

	return &device, nil
}

func (r *PostgresRepository) ListDevicesByOrganisation(ctx context.Context, orgID int64) ([]models.Device, error) {
	query := `SELECT * FROM devices WHERE organisation_id = $1 ORDER BY device_id`

	var devices []models.Device
	err := r.db.SelectContext(ctx, &devices, query, orgID)
	if err != nil {
		return nil, err
	}

	return devices, nil
}

func (r *PostgresRepository) UpdateDevice(ctx context.Context, deviceID string, update models.DeviceUpdate) (*models.Device, error) {
	builder := psql.Update("devices")
	fields := 0

	if update.Name != nil {
		builder = builder.Set("name", *update.Name)
		fields++
	}
	if update.OrganisationID != nil {
		builder = builder.Set("organisation_id", *update.OrganisationID)
		fields++
	}

	if fields > 0 {
		query, args, err := builder.Where(sq.Eq{"device_id": deviceID}).ToSql()
		if err != nil {
			return nil, err
		}

		result, err := r.db.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, nil // Device not found
		}
	}

	return r.GetDevice(ctx, deviceID)
}

// Reading repository methods

// InsertReading registers the device on first sight and appends the reading,
// both inside one transaction. The UNIQUE constraint on devices.device_id plus
// ON CONFLICT DO NOTHING keeps concurrent first-sight ingests from racing.
func (r *PostgresRepository) InsertReading(ctx context.Context, reading *models.Reading) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
			return
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO devices (device_id) VALUES ($1) ON CONFLICT (device_id) DO NOTHING`,
		reading.DeviceID)
	if err != nil {
		return err
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO device_data (device_id, volume_ml, timestamp) VALUES ($1, $2, $3) RETURNING id`,
		reading.DeviceID, reading.VolumeML, reading.Timestamp).Scan(&reading.ID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// withRange adds inclusive timestamp bounds for any bound that is set.
func withRange(builder sq.SelectBuilder, column string, rng models.TimeRange) sq.SelectBuilder {
	if rng.Start != nil {
		builder = builder.Where(sq.GtOrEq{column: *rng.Start})
	}
	if rng.End != nil {
		builder = builder.Where(sq.LtOrEq{column: *rng.End})
	}
	return builder
}

func (r *PostgresRepository) ListReadings(ctx context.Context, deviceID string, rng models.TimeRange) ([]models.Reading, error) {
	builder := psql.Select("id", "device_id", "volume_ml", "timestamp").
		From("device_data").
		Where(sq.Eq{"device_id": deviceID})
	builder = withRange(builder, "timestamp", rng)

	query, args, err := builder.OrderBy("timestamp DESC").ToSql()
	if err != nil {
		return nil, err
	}

	var readings []models.Reading
	err = r.db.SelectContext(ctx, &readings, query, args...)
	if err != nil {
		return nil, err
	}

	return readings, nil
}

func (r *PostgresRepository) SumVolume(ctx context.Context, deviceID string, rng models.TimeRange) (int64, error) {
	builder := psql.Select("COALESCE(SUM(volume_ml), 0) AS total").
		From("device_data").
		Where(sq.Eq{"device_id": deviceID})
	builder = withRange(builder, "timestamp", rng)

	query, args, err := builder.ToSql()
	if err != nil {
		return 0, err
	}

	var total int64
	err = r.db.GetContext(ctx, &total, query, args...)
	if err != nil {
		return 0, err
	}

	return total, nil
}

func (r *PostgresRepository) Histogram(ctx context.Context, deviceID string, rng models.TimeRange, interval string) ([]models.Bucket, error) {
	builder := psql.Select().
		Column(sq.Alias(sq.Expr("date_trunc(?, timestamp)", interval), "bucket")).
		Column("SUM(volume_ml) AS total").
		From("device_data").
		Where(sq.Eq{"device_id": deviceID})
	builder = withRange(builder, "timestamp", rng)

	query, args, err := builder.GroupBy("bucket").OrderBy("bucket ASC").ToSql()
	if err != nil {
		return nil, err
	}

	var buckets []models.Bucket
	err = r.db.SelectContext(ctx, &buckets, query, args...)
	if err != nil {
		return nil, err
	}

	return buckets, nil
}

func (r *PostgresRepository) SumVolumeForOrganisation(ctx context.Context, deviceID string, orgID int64, rng models.TimeRange) (int64, error) {
	builder := psql.Select("COALESCE(SUM(dd.volume_ml), 0) AS total").
		From("device_data dd").
		Join("devices d ON d.device_id = dd.device_id").
		Where(sq.Eq{"dd.device_id": deviceID, "d.organisation_id": orgID})
	builder = withRange(builder, "dd.timestamp", rng)

	query, args, err := builder.ToSql()
	if err != nil {
		return 0, err
	}

	var total int64
	err = r.db.GetContext(ctx, &total, query, args...)
	if err != nil {
		return 0, err
	}

	return total, nil
}

func (r *PostgresRepository) HistogramForOrganisation(ctx context.Context, deviceID string, orgID int64, rng models.TimeRange, interval string) ([]models.Bucket, error) {
	builder := psql.Select().
		Column(sq.Alias(sq.Expr("date_trunc(?, dd.timestamp)", interval), "bucket")).
		Column("SUM(dd.volume_ml) AS total").
		From("device_data dd").
		Join("devices d ON d.device_id = dd.device_id").
		Where(sq.Eq{"dd.device_id": deviceID, "d.organisation_id": orgID})
	builder = withRange(builder, "dd.timestamp", rng)

	query, args, err := builder.GroupBy("bucket").OrderBy("bucket ASC").ToSql()
	if err != nil {
		return nil, err
	}

	var buckets []models.Bucket
	err = r.db.SelectContext(ctx, &buckets, query, args...)
	if err != nil {
		return nil, err
	}

	return buckets, nil
}

func (r *PostgresRepository) DeviceTotalsByOrganisation(ctx context.Context, orgID int64) ([]models.DeviceTotal, error) {
	query := `
		SELECT d.device_id, d.name, COALESCE(SUM(dd.volume_ml), 0) AS total_volume
		FROM devices d
		LEFT JOIN device_data dd ON d.device_id = dd.device_id
		WHERE d.organisation_id = $1
		GROUP BY d.device_id, d.name
		ORDER BY d.device_id
	`

	var totals []models.DeviceTotal
	err := r.db.SelectContext(ctx, &totals, query, orgID)
	if err != nil {
		return nil, err
	}

	return totals, nil
}

// Organisation and role repository methods
func (r *PostgresRepository) ListOrganisations(ctx context.Context) ([]models.Organisation, error) {
	query := `SELECT * FROM organisations ORDER BY id`

	var organisations []models.Organisation
	err := r.db.SelectContext(ctx, &organisations, query)
	if err != nil {
		return nil, err
	}

	return organisations, nil
}

func (r *PostgresRepository) GetOrganisation(ctx context.Context, id int64) (*models.Organisation, error) {
	query := `SELECT * FROM organisations WHERE id = $1`

	var organisation models.Organisation
	err := r.db.GetContext(ctx, &organisation, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Organisation not found
		}
		return nil, err
	}

	return &organisation, nil
}

func (r *PostgresRepository) GetRole(ctx context.Context, id int64) (*models.Role, error) {
	query := `SELECT * FROM roles WHERE id = $1`

	var role models.Role
	err := r.db.GetContext(ctx, &role, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Role not found
		}
		return nil, err
	}

	return &role, nil
}
