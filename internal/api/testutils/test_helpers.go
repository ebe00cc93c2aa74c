package testutils

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"

	"github.com/jameshendricken/iot-dashboard/internal/api"
	"github.com/jameshendricken/iot-dashboard/internal/models"
	"github.com/jameshendricken/iot-dashboard/internal/service"
)

// TestContext holds all dependencies for tests
type TestContext struct {
	Router  *gin.Engine
	Repo    *MemoryRepository
	Service service.Service
}

// SetupTestContext builds the full API stack over an in-memory repository
func SetupTestContext(t *testing.T) *TestContext {
	t.Helper()

	repo := NewMemoryRepository()
	svc := service.NewDefaultService(repo)
	handler := api.NewHandler(svc)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(api.RequestIDMiddleware(), api.IdentityMiddleware(svc))
	handler.SetupRoutes(router)

	return &TestContext{
		Router:  router,
		Repo:    repo,
		Service: svc,
	}
}

// CreateUser inserts a user with a bcrypt-hashed password and returns it
func (tc *TestContext) CreateUser(t *testing.T, email, password string, orgID, roleID *int64) *models.User {
	t.Helper()

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	assert.NoError(t, err, "Failed to hash password")

	user := &models.User{
		Email:          email,
		PasswordHash:   string(hashed),
		OrganisationID: orgID,
		RoleID:         roleID,
	}

	err = tc.Repo.CreateUser(context.Background(), user)
	assert.NoError(t, err, "Failed to create test user")

	return user
}

// PerformRequest executes an HTTP request against the router
func PerformRequest(r http.Handler, method, path string, body interface{}, cookies []*http.Cookie) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer

	if body != nil {
		jsonBody, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBody)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	for _, c := range cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// SessionCookie returns the session cookie for an email
func SessionCookie(email string) []*http.Cookie {
	return []*http.Cookie{{Name: api.SessionCookieName, Value: email}}
}

// DecodeJSON unmarshals a response body into out
func DecodeJSON(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), out), "Failed to decode response body")
}

// Ptr returns a pointer to v, for building optional fields in tests
func Ptr[T any](v T) *T {
	return &v
}
