package testutils

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jameshendricken/iot-dashboard/internal/models"
)

// MemoryRepository is an in-memory repository.Repository used by the API
// tests. It mirrors the Postgres implementation's conventions: missing rows
// are (nil, nil), device registration on ingest is idempotent, and histogram
// buckets come back in ascending time order.
type MemoryRepository struct {
	mu sync.Mutex

	nextUserID int64
	nextOrgID  int64
	nextRoleID int64

	users         map[int64]models.User
	devices       map[string]models.Device
	readings      []models.Reading
	organisations map[int64]models.Organisation
	roles         map[int64]models.Role
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:         make(map[int64]models.User),
		devices:       make(map[string]models.Device),
		organisations: make(map[int64]models.Organisation),
		roles:         make(map[int64]models.Role),
	}
}

// Seed helpers, used directly by tests

func (m *MemoryRepository) SeedOrganisation(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextOrgID++
	m.organisations[m.nextOrgID] = models.Organisation{ID: m.nextOrgID, Name: name}
	return m.nextOrgID
}

func (m *MemoryRepository) SeedRole(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextRoleID++
	m.roles[m.nextRoleID] = models.Role{ID: m.nextRoleID, Name: name}
	return m.nextRoleID
}

func (m *MemoryRepository) SeedDevice(deviceID string, name *string, orgID *int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.devices[deviceID] = models.Device{DeviceID: deviceID, Name: name, OrganisationID: orgID}
}

// DeviceCount reports how many device rows exist for a device_id (0 or 1).
func (m *MemoryRepository) DeviceCount(deviceID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.devices[deviceID]; ok {
		return 1
	}
	return 0
}

// User repository methods

func (m *MemoryRepository) CreateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Email == user.Email {
			return errors.New("duplicate key value violates unique constraint")
		}
	}

	m.nextUserID++
	user.ID = m.nextUserID
	m.users[user.ID] = *user
	return nil
}

func (m *MemoryRepository) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Email == email {
			user := u
			return &user, nil
		}
	}
	return nil, nil
}

func (m *MemoryRepository) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	user := u
	return &user, nil
}

func (m *MemoryRepository) ListUsersByOrganisation(_ context.Context, orgID int64) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var users []models.User
	for _, u := range m.users {
		if u.OrganisationID != nil && *u.OrganisationID == orgID {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (m *MemoryRepository) UpdateUser(_ context.Context, id int64, update models.UserUpdate) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}

	if update.Email != nil {
		u.Email = *update.Email
	}
	if update.OrganisationID != nil {
		orgID := *update.OrganisationID
		u.OrganisationID = &orgID
	}
	if update.RoleID != nil {
		roleID := *update.RoleID
		u.RoleID = &roleID
	}

	m.users[id] = u
	user := u
	return &user, nil
}

// Device repository methods

func (m *MemoryRepository) GetDevice(_ context.Context, deviceID string) (*models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.devices[deviceID]
	if !ok {
		return nil, nil
	}
	device := d
	return &device, nil
}

func (m *MemoryRepository) ListDevicesByOrganisation(_ context.Context, orgID int64) ([]models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var devices []models.Device
	for _, d := range m.devices {
		if d.OrganisationID != nil && *d.OrganisationID == orgID {
			devices = append(devices, d)
		}
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].DeviceID < devices[j].DeviceID })
	return devices, nil
}

func (m *MemoryRepository) UpdateDevice(_ context.Context, deviceID string, update models.DeviceUpdate) (*models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.devices[deviceID]
	if !ok {
		return nil, nil
	}

	if update.Name != nil {
		name := *update.Name
		d.Name = &name
	}
	if update.OrganisationID != nil {
		orgID := *update.OrganisationID
		d.OrganisationID = &orgID
	}

	m.devices[deviceID] = d
	device := d
	return &device, nil
}

// Reading repository methods

func (m *MemoryRepository) InsertReading(_ context.Context, reading *models.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.devices[reading.DeviceID]; !ok {
		m.devices[reading.DeviceID] = models.Device{DeviceID: reading.DeviceID}
	}

	reading.ID = int64(len(m.readings) + 1)
	m.readings = append(m.readings, *reading)
	return nil
}

func (m *MemoryRepository) ListReadings(_ context.Context, deviceID string, rng models.TimeRange) ([]models.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var readings []models.Reading
	for _, r := range m.readings {
		if r.DeviceID == deviceID && rng.Contains(r.Timestamp) {
			readings = append(readings, r)
		}
	}
	sort.Slice(readings, func(i, j int) bool { return readings[i].Timestamp.After(readings[j].Timestamp) })
	return readings, nil
}

func (m *MemoryRepository) SumVolume(_ context.Context, deviceID string, rng models.TimeRange) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total int64
	for _, r := range m.readings {
		if r.DeviceID == deviceID && rng.Contains(r.Timestamp) {
			total += r.VolumeML
		}
	}
	return total, nil
}

func (m *MemoryRepository) Histogram(_ context.Context, deviceID string, rng models.TimeRange, interval string) ([]models.Bucket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.histogramLocked(deviceID, nil, rng, interval), nil
}

func (m *MemoryRepository) SumVolumeForOrganisation(_ context.Context, deviceID string, orgID int64, rng models.TimeRange) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.deviceInOrgLocked(deviceID, orgID) {
		return 0, nil
	}

	var total int64
	for _, r := range m.readings {
		if r.DeviceID == deviceID && rng.Contains(r.Timestamp) {
			total += r.VolumeML
		}
	}
	return total, nil
}

func (m *MemoryRepository) HistogramForOrganisation(_ context.Context, deviceID string, orgID int64, rng models.TimeRange, interval string) ([]models.Bucket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.histogramLocked(deviceID, &orgID, rng, interval), nil
}

func (m *MemoryRepository) DeviceTotalsByOrganisation(_ context.Context, orgID int64) ([]models.DeviceTotal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var totals []models.DeviceTotal
	for _, d := range m.devices {
		if d.OrganisationID == nil || *d.OrganisationID != orgID {
			continue
		}

		var total int64
		for _, r := range m.readings {
			if r.DeviceID == d.DeviceID {
				total += r.VolumeML
			}
		}
		totals = append(totals, models.DeviceTotal{DeviceID: d.DeviceID, Name: d.Name, TotalVolume: total})
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].DeviceID < totals[j].DeviceID })
	return totals, nil
}

// Organisation and role repository methods

func (m *MemoryRepository) ListOrganisations(_ context.Context) ([]models.Organisation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var organisations []models.Organisation
	for _, o := range m.organisations {
		organisations = append(organisations, o)
	}
	sort.Slice(organisations, func(i, j int) bool { return organisations[i].ID < organisations[j].ID })
	return organisations, nil
}

func (m *MemoryRepository) GetOrganisation(_ context.Context, id int64) (*models.Organisation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.organisations[id]
	if !ok {
		return nil, nil
	}
	organisation := o
	return &organisation, nil
}

func (m *MemoryRepository) GetRole(_ context.Context, id int64) (*models.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.roles[id]
	if !ok {
		return nil, nil
	}
	role := r
	return &role, nil
}

// Internal helpers

func (m *MemoryRepository) deviceInOrgLocked(deviceID string, orgID int64) bool {
	d, ok := m.devices[deviceID]
	return ok && d.OrganisationID != nil && *d.OrganisationID == orgID
}

func (m *MemoryRepository) histogramLocked(deviceID string, orgID *int64, rng models.TimeRange, interval string) []models.Bucket {
	if orgID != nil && !m.deviceInOrgLocked(deviceID, *orgID) {
		return nil
	}

	sums := make(map[time.Time]int64)
	for _, r := range m.readings {
		if r.DeviceID != deviceID || !rng.Contains(r.Timestamp) {
			continue
		}
		sums[truncateTo(r.Timestamp, interval)] += r.VolumeML
	}

	buckets := make([]models.Bucket, 0, len(sums))
	for ts, total := range sums {
		buckets = append(buckets, models.Bucket{Timestamp: ts, TotalVolume: total})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Timestamp.Before(buckets[j].Timestamp) })
	return buckets
}

// truncateTo floors a timestamp to the start of its bucket, matching
// Postgres date_trunc semantics for hour and day.
func truncateTo(t time.Time, interval string) time.Time {
	t = t.UTC()
	if interval == "hour" {
		return t.Truncate(time.Hour)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
