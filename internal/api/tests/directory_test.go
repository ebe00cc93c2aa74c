package api_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jameshendricken/iot-dashboard/internal/api/testutils"
	"github.com/jameshendricken/iot-dashboard/internal/models"
)

func TestListDevicesScoping(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)

	orgID := testCtx.Repo.SeedOrganisation("Acme Water")
	otherOrgID := testCtx.Repo.SeedOrganisation("Rival Water")
	roleID := testCtx.Repo.SeedRole("viewer")
	testCtx.CreateUser(t, "member@example.com", "testpassword", &orgID, &roleID)
	testCtx.CreateUser(t, "empty@example.com", "testpassword", &otherOrgID, &roleID)
	testCtx.Repo.SeedDevice("dev1", testutils.Ptr("Tank A"), &orgID)
	testCtx.Repo.SeedDevice("dev2", testutils.Ptr("Tank B"), &orgID)

	// Anonymous requests are an authentication failure, not an empty list
	w := testutils.PerformRequest(testCtx.Router, http.MethodGet, "/devices", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Members see only their organisation's devices
	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/devices", nil,
		testutils.SessionCookie("member@example.com"))
	assert.Equal(t, http.StatusOK, w.Code)

	var devices []models.Device
	testutils.DecodeJSON(t, w, &devices)
	assert.Len(t, devices, 2)

	// An organisation with no devices is a not-found condition
	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/devices", nil,
		testutils.SessionCookie("empty@example.com"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateDevice(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)

	orgID := testCtx.Repo.SeedOrganisation("Acme Water")
	otherOrgID := testCtx.Repo.SeedOrganisation("Rival Water")
	roleID := testCtx.Repo.SeedRole("admin")
	testCtx.CreateUser(t, "member@example.com", "testpassword", &orgID, &roleID)
	testCtx.Repo.SeedDevice("dev1", nil, &orgID)
	testCtx.Repo.SeedDevice("rival-dev", nil, &otherOrgID)
	testCtx.Repo.SeedDevice("unclaimed", nil, nil)

	cookie := testutils.SessionCookie("member@example.com")

	// Partial update applies only the provided field and returns the full row
	w := testutils.PerformRequest(testCtx.Router, http.MethodPut, "/devices/dev1",
		map[string]interface{}{"name": "Tank A"}, cookie)
	assert.Equal(t, http.StatusOK, w.Code)

	var device models.Device
	testutils.DecodeJSON(t, w, &device)
	assert.Equal(t, "dev1", device.DeviceID)
	assert.NotNil(t, device.Name)
	assert.Equal(t, "Tank A", *device.Name)
	assert.NotNil(t, device.OrganisationID)
	assert.Equal(t, orgID, *device.OrganisationID)

	// Unknown fields are silently ignored
	w = testutils.PerformRequest(testCtx.Router, http.MethodPut, "/devices/dev1",
		map[string]interface{}{"name": "Tank A2", "favourite_color": "blue"}, cookie)
	assert.Equal(t, http.StatusOK, w.Code)
	testutils.DecodeJSON(t, w, &device)
	assert.Equal(t, "Tank A2", *device.Name)

	// Updating a non-existent device is not found
	w = testutils.PerformRequest(testCtx.Router, http.MethodPut, "/devices/missing",
		map[string]interface{}{"name": "x"}, cookie)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Devices of another organisation are invisible
	w = testutils.PerformRequest(testCtx.Router, http.MethodPut, "/devices/rival-dev",
		map[string]interface{}{"name": "x"}, cookie)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// An unassigned (auto-created) device can be claimed
	w = testutils.PerformRequest(testCtx.Router, http.MethodPut, "/devices/unclaimed",
		map[string]interface{}{"organisation_id": orgID}, cookie)
	assert.Equal(t, http.StatusOK, w.Code)
	testutils.DecodeJSON(t, w, &device)
	assert.NotNil(t, device.OrganisationID)
	assert.Equal(t, orgID, *device.OrganisationID)

	// Anonymous updates are rejected
	w = testutils.PerformRequest(testCtx.Router, http.MethodPut, "/devices/dev1",
		map[string]interface{}{"name": "x"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUsersDirectory(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)

	orgID := testCtx.Repo.SeedOrganisation("Acme Water")
	otherOrgID := testCtx.Repo.SeedOrganisation("Rival Water")
	roleID := testCtx.Repo.SeedRole("admin")
	member := testCtx.CreateUser(t, "member@example.com", "testpassword", &orgID, &roleID)
	colleague := testCtx.CreateUser(t, "colleague@example.com", "testpassword", &orgID, &roleID)
	outsider := testCtx.CreateUser(t, "outsider@example.com", "testpassword", &otherOrgID, &roleID)

	cookie := testutils.SessionCookie("member@example.com")

	// Listing is scoped to the caller's organisation
	w := testutils.PerformRequest(testCtx.Router, http.MethodGet, "/users", nil, cookie)
	assert.Equal(t, http.StatusOK, w.Code)

	var users []models.User
	testutils.DecodeJSON(t, w, &users)
	assert.Len(t, users, 2)

	// Getting a colleague works; a user in another organisation is invisible
	w = testutils.PerformRequest(testCtx.Router, http.MethodGet,
		fmt.Sprintf("/users/%d", colleague.ID), nil, cookie)
	assert.Equal(t, http.StatusOK, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet,
		fmt.Sprintf("/users/%d", outsider.ID), nil, cookie)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Allow-listed partial update returns the full updated row
	w = testutils.PerformRequest(testCtx.Router, http.MethodPut,
		fmt.Sprintf("/users/%d", member.ID),
		map[string]interface{}{"email": "renamed@example.com", "is_admin": true}, cookie)
	assert.Equal(t, http.StatusOK, w.Code)

	var updated models.User
	testutils.DecodeJSON(t, w, &updated)
	assert.Equal(t, "renamed@example.com", updated.Email)

	// Anonymous directory access is rejected
	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/users", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListOrganisations(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)

	testCtx.Repo.SeedOrganisation("Acme Water")
	testCtx.Repo.SeedOrganisation("Rival Water")

	// Unrestricted read, no identity required
	w := testutils.PerformRequest(testCtx.Router, http.MethodGet, "/organisations", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var organisations []models.Organisation
	testutils.DecodeJSON(t, w, &organisations)
	assert.Len(t, organisations, 2)
	assert.Equal(t, "Acme Water", organisations[0].Name)
}
