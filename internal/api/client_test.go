package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openwrench/servicelink/internal/cache"
	"github.com/openwrench/servicelink/internal/jobstate"
	"github.com/openwrench/servicelink/internal/models"
	"github.com/openwrench/servicelink/internal/transport"
)

func newTestClient(handler http.Handler) (*Client, *cache.Cache, func()) {
	server := httptest.NewServer(handler)
	c := cache.New()
	return New(transport.NewClient(server.URL), c), c, server.Close
}

func TestGetJobs(t *testing.T) {
	calls := 0
	client, store, done := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(models.JobList{
			Available: []models.Job{{ID: "j1", Status: "pending", Revision: 1}},
		})
	}))
	defer done()

	ctx := context.Background()
	list, err := client.GetJobs(ctx, models.RoleTechnician)
	assert.NoError(t, err)
	assert.Len(t, list.Available, 1)
	assert.Equal(t, 1, calls)

	// Second read is served from cache.
	_, err = client.GetJobs(ctx, models.RoleTechnician)
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)

	// After invalidation the read must hit the network again.
	store.InvalidatePrefix(PrefixJobs)
	_, err = client.GetJobs(ctx, models.RoleTechnician)
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestGetProfile_RefetchObservesServerChange(t *testing.T) {
	approved := false
	calls := 0
	client, store, done := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(models.User{ID: "u1", Role: models.RoleTechnician, IsApproved: approved})
	}))
	defer done()

	ctx := context.Background()
	user, err := client.GetProfile(ctx)
	assert.NoError(t, err)
	assert.False(t, user.IsApproved)

	// The technician is approved server-side mid-session.
	approved = true

	// A cached read does not see it yet.
	user, err = client.GetProfile(ctx)
	assert.NoError(t, err)
	assert.False(t, user.IsApproved)
	assert.Equal(t, 1, calls)

	// A full resync invalidates the profile first, so the refetch does.
	store.InvalidatePrefix(PrefixProfile)
	user, err = client.GetProfile(ctx)
	assert.NoError(t, err)
	assert.True(t, user.IsApproved)
	assert.Equal(t, 2, calls)
}

func TestMutationInvalidatesJobsPrefix(t *testing.T) {
	getCalls := 0
	client, _, done := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			getCalls++
			json.NewEncoder(w).Encode(models.JobList{})
			return
		}
		json.NewEncoder(w).Encode(models.Job{ID: "j1", Status: "accepted", Revision: 2})
	}))
	defer done()

	ctx := context.Background()
	_, err := client.GetJobs(ctx, models.RoleTechnician)
	assert.NoError(t, err)
	assert.Equal(t, 1, getCalls)

	job, err := client.AcceptJob(ctx, "j1")
	assert.NoError(t, err)
	assert.Equal(t, "accepted", job.Status)

	_, err = client.GetJobs(ctx, models.RoleTechnician)
	assert.NoError(t, err)
	assert.Equal(t, 2, getCalls, "accept must invalidate the jobs cache")
}

func TestUpdateJobStatus_SendsIntent(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	client, _, done := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(models.Job{ID: "j1", Status: "diagnosing"})
	}))
	defer done()

	job, err := client.UpdateJobStatus(context.Background(), "j1", jobstate.StatusDiagnosing)
	assert.NoError(t, err)
	assert.Equal(t, "/api/jobs/j1/status", gotPath)
	assert.Equal(t, "diagnosing", gotBody["status"])
	// The echoed status is adopted as truth.
	assert.Equal(t, "diagnosing", job.Status)
}

func TestLogin_ClearsCache(t *testing.T) {
	client, store, done := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.LoginResponse{Token: "tok"})
	}))
	defer done()

	store.Set("jobs:technician", models.JobList{Available: []models.Job{{ID: "stale"}}})

	resp, err := client.Login(context.Background(), "tech", "secret123")
	assert.NoError(t, err)
	assert.Equal(t, "tok", resp.Token)
	assert.Equal(t, 0, store.Len(), "login must clear the whole cache")
}

func TestUploadFile_AcceptsEitherField(t *testing.T) {
	field := "url"
	client, _, done := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "image", r.FormValue("type"))
		json.NewEncoder(w).Encode(map[string]string{field: "https://cdn.example/x.jpg"})
	}))
	defer done()

	loc, err := client.UploadFile(context.Background(), "x.jpg", "image", strings.NewReader("fake-bytes"))
	assert.NoError(t, err)
	assert.Equal(t, "https://cdn.example/x.jpg", loc)

	field = "path"
	loc, err = client.UploadFile(context.Background(), "x.jpg", "image", strings.NewReader("fake-bytes"))
	assert.NoError(t, err)
	assert.Equal(t, "https://cdn.example/x.jpg", loc)
}

func TestCancelJob_SendsReason(t *testing.T) {
	var gotBody map[string]string
	client, _, done := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(models.Job{ID: "j1", Status: "cancelled", CancelReason: gotBody["reason"]})
	}))
	defer done()

	job, err := client.CancelJob(context.Background(), "j1", "customer unavailable")
	assert.NoError(t, err)
	assert.Equal(t, "customer unavailable", job.CancelReason)
}
