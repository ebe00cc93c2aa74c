package api_test

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jameshendricken/iot-dashboard/internal/api/testutils"
	"github.com/jameshendricken/iot-dashboard/internal/models"
)

// seedReadings ingests the two-reading example data set for dev1:
// 500ml at 10:00 and 300ml at 14:00 on 2024-01-01.
func seedReadings(t *testing.T, testCtx *testutils.TestContext) {
	t.Helper()

	for _, req := range []models.IngestRequest{
		{DeviceID: "dev1", VolumeML: 500, Timestamp: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)},
		{DeviceID: "dev1", VolumeML: 300, Timestamp: time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC)},
	} {
		w := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/ingest", req, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func rangeQuery(start, end string) string {
	q := url.Values{}
	if start != "" {
		q.Set("start", start)
	}
	if end != "" {
		q.Set("end", end)
	}
	return q.Encode()
}

func TestSummary(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	seedReadings(t, testCtx)

	// Both readings fall inside the day range
	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		"/data/dev1/summary?"+rangeQuery("2024-01-01T00:00:00Z", "2024-01-02T00:00:00Z"),
		nil,
		nil,
	)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.SummaryResponse
	testutils.DecodeJSON(t, w, &resp)
	assert.Equal(t, int64(800), resp.TotalVolume)

	// Only the 14:00 reading falls after 12:00
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		"/data/dev1/summary?"+rangeQuery("2024-01-01T12:00:00Z", ""),
		nil,
		nil,
	)
	assert.Equal(t, http.StatusOK, w.Code)
	testutils.DecodeJSON(t, w, &resp)
	assert.Equal(t, int64(300), resp.TotalVolume)

	// Zero matching rows is 0, never 404
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		"/data/unknown-device/summary",
		nil,
		nil,
	)
	assert.Equal(t, http.StatusOK, w.Code)
	testutils.DecodeJSON(t, w, &resp)
	assert.Equal(t, int64(0), resp.TotalVolume)

	// start > end is an empty range: sum is 0
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		"/data/dev1/summary?"+rangeQuery("2024-01-02T00:00:00Z", "2024-01-01T00:00:00Z"),
		nil,
		nil,
	)
	assert.Equal(t, http.StatusOK, w.Code)
	testutils.DecodeJSON(t, w, &resp)
	assert.Equal(t, int64(0), resp.TotalVolume)
}

func TestListReadingsNotFound(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	seedReadings(t, testCtx)

	// No data at all for the device
	w := testutils.PerformRequest(testCtx.Router, http.MethodGet, "/data/unknown-device", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Data exists but nothing matches the range
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		"/data/dev1?"+rangeQuery("2024-02-01T00:00:00Z", "2024-02-02T00:00:00Z"),
		nil,
		nil,
	)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// start > end is an empty range: not found for listing
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		"/data/dev1?"+rangeQuery("2024-01-02T00:00:00Z", "2024-01-01T00:00:00Z"),
		nil,
		nil,
	)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Malformed bound
	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/data/dev1?start=yesterday", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRangeBoundsInclusive(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	seedReadings(t, testCtx)

	// Bounds exactly on the reading timestamps include both readings
	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		"/data/dev1?"+rangeQuery("2024-01-01T10:00:00Z", "2024-01-01T14:00:00Z"),
		nil,
		nil,
	)
	assert.Equal(t, http.StatusOK, w.Code)

	var points []models.ReadingPoint
	testutils.DecodeJSON(t, w, &points)
	assert.Len(t, points, 2)
}

func TestHistogramDay(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	seedReadings(t, testCtx)

	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		"/data/dev1/histogram?interval=day&"+rangeQuery("2024-01-01T00:00:00Z", "2024-01-02T00:00:00Z"),
		nil,
		nil,
	)
	assert.Equal(t, http.StatusOK, w.Code)

	var buckets []models.Bucket
	testutils.DecodeJSON(t, w, &buckets)
	assert.Len(t, buckets, 1)
	assert.True(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Equal(buckets[0].Timestamp))
	assert.Equal(t, int64(800), buckets[0].TotalVolume)
}

func TestHistogramHour(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	seedReadings(t, testCtx)

	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		"/data/dev1/histogram?interval=hour&"+rangeQuery("2024-01-01T00:00:00Z", "2024-01-02T00:00:00Z"),
		nil,
		nil,
	)
	assert.Equal(t, http.StatusOK, w.Code)

	var buckets []models.Bucket
	testutils.DecodeJSON(t, w, &buckets)
	assert.Len(t, buckets, 2)

	// Ascending bucket order, empty hours omitted
	assert.True(t, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC).Equal(buckets[0].Timestamp))
	assert.Equal(t, int64(500), buckets[0].TotalVolume)
	assert.True(t, time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC).Equal(buckets[1].Timestamp))
	assert.Equal(t, int64(300), buckets[1].TotalVolume)
}

func TestHistogramIntervalFallback(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	seedReadings(t, testCtx)

	// An unrecognized interval behaves exactly like "day"
	for _, interval := range []string{"", "week", "banana"} {
		w := testutils.PerformRequest(
			testCtx.Router,
			http.MethodGet,
			"/data/dev1/histogram?interval="+interval+"&"+rangeQuery("2024-01-01T00:00:00Z", "2024-01-02T00:00:00Z"),
			nil,
			nil,
		)
		assert.Equal(t, http.StatusOK, w.Code)

		var buckets []models.Bucket
		testutils.DecodeJSON(t, w, &buckets)
		assert.Len(t, buckets, 1)
		assert.Equal(t, int64(800), buckets[0].TotalVolume)
	}
}

func TestHistogramEmptyRange(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	seedReadings(t, testCtx)

	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		"/data/dev1/histogram?"+rangeQuery("2024-01-02T00:00:00Z", "2024-01-01T00:00:00Z"),
		nil,
		nil,
	)
	assert.Equal(t, http.StatusOK, w.Code)

	var buckets []models.Bucket
	testutils.DecodeJSON(t, w, &buckets)
	assert.Empty(t, buckets)
}

func TestOrganisationScopedSummary(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	seedReadings(t, testCtx)

	orgID := testCtx.Repo.SeedOrganisation("Acme Water")
	otherOrgID := testCtx.Repo.SeedOrganisation("Rival Water")
	roleID := testCtx.Repo.SeedRole("viewer")
	testCtx.CreateUser(t, "member@example.com", "testpassword", &orgID, &roleID)
	testCtx.CreateUser(t, "rival@example.com", "testpassword", &otherOrgID, &roleID)
	testCtx.Repo.SeedDevice("dev1", nil, &orgID)

	path := "/summary/dev1?" + rangeQuery("2024-01-01T00:00:00Z", "2024-01-02T00:00:00Z")

	// Unauthenticated callers are rejected, not given an empty result
	w := testutils.PerformRequest(testCtx.Router, http.MethodGet, path, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// A member of the owning organisation sees the total
	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, path, nil,
		testutils.SessionCookie("member@example.com"))
	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.SummaryResponse
	testutils.DecodeJSON(t, w, &resp)
	assert.Equal(t, int64(800), resp.TotalVolume)

	// A member of another organisation sees nothing of the device
	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, path, nil,
		testutils.SessionCookie("rival@example.com"))
	assert.Equal(t, http.StatusOK, w.Code)
	testutils.DecodeJSON(t, w, &resp)
	assert.Equal(t, int64(0), resp.TotalVolume)
}

func TestOrganisationScopedHistogram(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	seedReadings(t, testCtx)

	orgID := testCtx.Repo.SeedOrganisation("Acme Water")
	roleID := testCtx.Repo.SeedRole("viewer")
	testCtx.CreateUser(t, "member@example.com", "testpassword", &orgID, &roleID)
	testCtx.Repo.SeedDevice("dev1", nil, &orgID)

	path := "/histogram/dev1?interval=day&" + rangeQuery("2024-01-01T00:00:00Z", "2024-01-02T00:00:00Z")

	w := testutils.PerformRequest(testCtx.Router, http.MethodGet, path, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, path, nil,
		testutils.SessionCookie("member@example.com"))
	assert.Equal(t, http.StatusOK, w.Code)

	var buckets []models.Bucket
	testutils.DecodeJSON(t, w, &buckets)
	assert.Len(t, buckets, 1)
	assert.Equal(t, int64(800), buckets[0].TotalVolume)
}

func TestDashboard(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	seedReadings(t, testCtx)

	orgID := testCtx.Repo.SeedOrganisation("Acme Water")
	roleID := testCtx.Repo.SeedRole("viewer")
	testCtx.CreateUser(t, "member@example.com", "testpassword", &orgID, &roleID)
	testCtx.Repo.SeedDevice("dev1", testutils.Ptr("Tank A"), &orgID)
	testCtx.Repo.SeedDevice("dev2", testutils.Ptr("Tank B"), &orgID)

	w := testutils.PerformRequest(testCtx.Router, http.MethodGet, "/dashboard", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/dashboard", nil,
		testutils.SessionCookie("member@example.com"))
	assert.Equal(t, http.StatusOK, w.Code)

	var totals []models.DeviceTotal
	testutils.DecodeJSON(t, w, &totals)
	assert.Len(t, totals, 2)

	// dev1 has readings, dev2 reports a zero total rather than missing
	assert.Equal(t, "dev1", totals[0].DeviceID)
	assert.Equal(t, int64(800), totals[0].TotalVolume)
	assert.Equal(t, "dev2", totals[1].DeviceID)
	assert.Equal(t, int64(0), totals[1].TotalVolume)
}
