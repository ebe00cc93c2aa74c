package service

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/jameshendricken/iot-dashboard/internal/models"
	"github.com/jameshendricken/iot-dashboard/internal/repository"
)

// Service defines all the business logic operations
type Service interface {
	// Authentication
	Register(ctx context.Context, req models.RegisterRequest) error
	Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error)
	ResolveIdentity(ctx context.Context, email string) (*models.Identity, error)

	// Ingestion
	Ingest(ctx context.Context, req models.IngestRequest) error
	IngestPayload(ctx context.Context, payload []byte) error

	// Aggregation
	ListReadings(ctx context.Context, deviceID string, rng models.TimeRange) ([]models.ReadingPoint, error)
	Summary(ctx context.Context, deviceID string, rng models.TimeRange) (int64, error)
	Histogram(ctx context.Context, deviceID string, rng models.TimeRange, interval string) ([]models.Bucket, error)
	OrganisationSummary(ctx context.Context, ident *models.Identity, deviceID string, rng models.TimeRange) (int64, error)
	OrganisationHistogram(ctx context.Context, ident *models.Identity, deviceID string, rng models.TimeRange, interval string) ([]models.Bucket, error)
	Dashboard(ctx context.Context, ident *models.Identity) ([]models.DeviceTotal, error)

	// Directory
	ListDevices(ctx context.Context, ident *models.Identity) ([]models.Device, error)
	UpdateDevice(ctx context.Context, ident *models.Identity, deviceID string, update models.DeviceUpdate) (*models.Device, error)
	ListUsers(ctx context.Context, ident *models.Identity) ([]models.User, error)
	GetUser(ctx context.Context, ident *models.Identity, userID int64) (*models.User, error)
	UpdateUser(ctx context.Context, ident *models.Identity, userID int64, update models.UserUpdate) (*models.User, error)
	ListOrganisations(ctx context.Context) ([]models.Organisation, error)
}

// DefaultService implements the Service interface
type DefaultService struct {
	repo repository.Repository
}

// NewDefaultService creates a new DefaultService
func NewDefaultService(repo repository.Repository) Service {
	return &DefaultService{
		repo: repo,
	}
}

// Authentication methods
func (s *DefaultService) Register(ctx context.Context, req models.RegisterRequest) error {
	existing, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return fmt.Errorf("error checking user existence: %w", err)
	}

	if existing != nil {
		return ErrEmailTaken
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("error hashing password: %w", err)
	}

	user := &models.User{
		Email:        req.Email,
		PasswordHash: string(hashed),
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("error creating user: %w", err)
	}

	return nil
}

// Login verifies credentials and resolves the organisation and role names for
// the response body. Missing organisation or role after a successful password
// check is a not-found failure, not an authentication failure.
func (s *DefaultService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	user, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("error getting user: %w", err)
	}

	if user == nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if user.OrganisationID == nil || user.RoleID == nil {
		return nil, ErrNotFound
	}

	organisation, err := s.repo.GetOrganisation(ctx, *user.OrganisationID)
	if err != nil {
		return nil, fmt.Errorf("error getting organisation: %w", err)
	}
	if organisation == nil {
		return nil, ErrNotFound
	}

	role, err := s.repo.GetRole(ctx, *user.RoleID)
	if err != nil {
		return nil, fmt.Errorf("error getting role: %w", err)
	}
	if role == nil {
		return nil, ErrNotFound
	}

	return &models.LoginResponse{
		Email:        user.Email,
		Organisation: organisation.Name,
		Role:         role.Name,
	}, nil
}

// ResolveIdentity maps a session cookie value (the email) to an identity.
// An unknown email yields (nil, nil); the caller decides what anonymity means.
func (s *DefaultService) ResolveIdentity(ctx context.Context, email string) (*models.Identity, error) {
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("error resolving identity: %w", err)
	}

	if user == nil {
		return nil, nil
	}

	return &models.Identity{
		UserID:         user.ID,
		Email:          user.Email,
		OrganisationID: user.OrganisationID,
	}, nil
}

// Ingestion methods
func (s *DefaultService) Ingest(ctx context.Context, req models.IngestRequest) error {
	if req.DeviceID == "" || req.VolumeML < 0 || req.Timestamp.IsZero() {
		return ErrInvalidReading
	}

	reading := &models.Reading{
		DeviceID:  req.DeviceID,
		VolumeML:  req.VolumeML,
		Timestamp: req.Timestamp,
	}

	if err := s.repo.InsertReading(ctx, reading); err != nil {
		return fmt.Errorf("error inserting reading: %w", err)
	}

	return nil
}

// IngestPayload decodes a raw JSON reading (the MQTT wire format, identical to
// the HTTP body) and ingests it.
func (s *DefaultService) IngestPayload(ctx context.Context, payload []byte) error {
	var req models.IngestRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidReading, err)
	}

	return s.Ingest(ctx, req)
}

// Aggregation methods

// ListReadings returns readings newest-first. No matching rows is a not-found
// condition here, unlike Summary which reports 0 for the same situation.
func (s *DefaultService) ListReadings(ctx context.Context, deviceID string, rng models.TimeRange) ([]models.ReadingPoint, error) {
	if rng.Empty() {
		return nil, ErrNotFound
	}

	readings, err := s.repo.ListReadings(ctx, deviceID, rng)
	if err != nil {
		return nil, fmt.Errorf("error listing readings: %w", err)
	}

	if len(readings) == 0 {
		return nil, ErrNotFound
	}

	points := make([]models.ReadingPoint, 0, len(readings))
	for _, r := range readings {
		points = append(points, models.ReadingPoint{
			Timestamp: r.Timestamp,
			VolumeML:  r.VolumeML,
		})
	}

	return points, nil
}

func (s *DefaultService) Summary(ctx context.Context, deviceID string, rng models.TimeRange) (int64, error) {
	if rng.Empty() {
		return 0, nil
	}

	total, err := s.repo.SumVolume(ctx, deviceID, rng)
	if err != nil {
		return 0, fmt.Errorf("error summing volume: %w", err)
	}

	return total, nil
}

func (s *DefaultService) Histogram(ctx context.Context, deviceID string, rng models.TimeRange, interval string) ([]models.Bucket, error) {
	if rng.Empty() {
		return []models.Bucket{}, nil
	}

	buckets, err := s.repo.Histogram(ctx, deviceID, rng, NormalizeInterval(interval))
	if err != nil {
		return nil, fmt.Errorf("error building histogram: %w", err)
	}

	if buckets == nil {
		buckets = []models.Bucket{}
	}

	return buckets, nil
}

func (s *DefaultService) OrganisationSummary(ctx context.Context, ident *models.Identity, deviceID string, rng models.TimeRange) (int64, error) {
	orgID, err := requireOrganisation(ident)
	if err != nil {
		return 0, err
	}

	if rng.Empty() {
		return 0, nil
	}

	total, err := s.repo.SumVolumeForOrganisation(ctx, deviceID, orgID, rng)
	if err != nil {
		return 0, fmt.Errorf("error summing volume: %w", err)
	}

	return total, nil
}

func (s *DefaultService) OrganisationHistogram(ctx context.Context, ident *models.Identity, deviceID string, rng models.TimeRange, interval string) ([]models.Bucket, error) {
	orgID, err := requireOrganisation(ident)
	if err != nil {
		return nil, err
	}

	if rng.Empty() {
		return []models.Bucket{}, nil
	}

	buckets, err := s.repo.HistogramForOrganisation(ctx, deviceID, orgID, rng, NormalizeInterval(interval))
	if err != nil {
		return nil, fmt.Errorf("error building histogram: %w", err)
	}

	if buckets == nil {
		buckets = []models.Bucket{}
	}

	return buckets, nil
}

func (s *DefaultService) Dashboard(ctx context.Context, ident *models.Identity) ([]models.DeviceTotal, error) {
	orgID, err := requireOrganisation(ident)
	if err != nil {
		return nil, err
	}

	totals, err := s.repo.DeviceTotalsByOrganisation(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("error loading dashboard: %w", err)
	}

	if totals == nil {
		totals = []models.DeviceTotal{}
	}

	return totals, nil
}

// Directory methods
func (s *DefaultService) ListDevices(ctx context.Context, ident *models.Identity) ([]models.Device, error) {
	orgID, err := requireOrganisation(ident)
	if err != nil {
		return nil, err
	}

	devices, err := s.repo.ListDevicesByOrganisation(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("error listing devices: %w", err)
	}

	if len(devices) == 0 {
		return nil, ErrNotFound
	}

	return devices, nil
}

// UpdateDevice applies an allow-listed partial update. Devices outside the
// caller's organisation are invisible (not found); unassigned devices stay
// claimable so that auto-created rows can be adopted after first ingest.
func (s *DefaultService) UpdateDevice(ctx context.Context, ident *models.Identity, deviceID string, update models.DeviceUpdate) (*models.Device, error) {
	orgID, err := requireOrganisation(ident)
	if err != nil {
		return nil, err
	}

	device, err := s.repo.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("error getting device: %w", err)
	}
	if device == nil {
		return nil, ErrNotFound
	}

	if device.OrganisationID != nil && *device.OrganisationID != orgID {
		return nil, ErrNotFound
	}

	updated, err := s.repo.UpdateDevice(ctx, deviceID, update)
	if err != nil {
		return nil, fmt.Errorf("error updating device: %w", err)
	}
	if updated == nil {
		return nil, ErrNotFound
	}

	return updated, nil
}

func (s *DefaultService) ListUsers(ctx context.Context, ident *models.Identity) ([]models.User, error) {
	orgID, err := requireOrganisation(ident)
	if err != nil {
		return nil, err
	}

	users, err := s.repo.ListUsersByOrganisation(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("error listing users: %w", err)
	}

	if users == nil {
		users = []models.User{}
	}

	return users, nil
}

func (s *DefaultService) GetUser(ctx context.Context, ident *models.Identity, userID int64) (*models.User, error) {
	orgID, err := requireOrganisation(ident)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error getting user: %w", err)
	}

	if user == nil || user.OrganisationID == nil || *user.OrganisationID != orgID {
		return nil, ErrNotFound
	}

	return user, nil
}

func (s *DefaultService) UpdateUser(ctx context.Context, ident *models.Identity, userID int64, update models.UserUpdate) (*models.User, error) {
	// Visibility check carries the organisation scoping
	if _, err := s.GetUser(ctx, ident, userID); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateUser(ctx, userID, update)
	if err != nil {
		return nil, fmt.Errorf("error updating user: %w", err)
	}
	if updated == nil {
		return nil, ErrNotFound
	}

	return updated, nil
}

func (s *DefaultService) ListOrganisations(ctx context.Context) ([]models.Organisation, error) {
	organisations, err := s.repo.ListOrganisations(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing organisations: %w", err)
	}

	if organisations == nil {
		organisations = []models.Organisation{}
	}

	return organisations, nil
}

// Helper methods

// NormalizeInterval maps a requested histogram granularity to a supported
// one. Anything other than "hour" silently becomes "day".
func NormalizeInterval(interval string) string {
	if interval == "hour" {
		return "hour"
	}
	return "day"
}

func requireOrganisation(ident *models.Identity) (int64, error) {
	if ident == nil || ident.OrganisationID == nil {
		return 0, ErrUnauthenticated
	}
	return *ident.OrganisationID, nil
}
