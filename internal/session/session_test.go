package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openwrench/servicelink/internal/auth"
	"github.com/openwrench/servicelink/internal/cache"
	"github.com/openwrench/servicelink/internal/models"
)

func testToken(t *testing.T, role models.Role) string {
	t.Helper()
	service, err := auth.NewService()
	assert.NoError(t, err)
	token, err := service.GenerateToken(&models.User{
		ID:       "u1",
		Username: "tester",
		Role:     role,
	})
	assert.NoError(t, err)
	return token
}

func TestBeginAndClaims(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	c := cache.New()
	c.Set("jobs:technician", "stale")

	m := NewManager(path, c)
	assert.False(t, m.Active())

	err := m.Begin(testToken(t, models.RoleTechnician))
	assert.NoError(t, err)
	assert.True(t, m.Active())
	assert.Equal(t, "u1", m.Claims().UserID)
	assert.Equal(t, models.RoleTechnician, m.Claims().Role)
	assert.NotEmpty(t, m.Token())

	// Login cleared the previous session's cache.
	assert.Equal(t, 0, c.Len())

	// Token persisted to disk.
	data, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.Equal(t, m.Token(), string(data))
}

func TestRestoreFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	token := testToken(t, models.RoleCustomer)
	assert.NoError(t, os.WriteFile(path, []byte(token), 0o600))

	m := NewManager(path, cache.New())
	assert.True(t, m.Active())
	assert.Equal(t, models.RoleCustomer, m.Claims().Role)
}

func TestRestoreRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	assert.NoError(t, os.WriteFile(path, []byte("not-a-jwt"), 0o600))

	m := NewManager(path, cache.New())
	assert.False(t, m.Active())

	// The bad token file is removed.
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestLogout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	c := cache.New()
	m := NewManager(path, c)
	assert.NoError(t, m.Begin(testToken(t, models.RoleTechnician)))

	c.Set("jobs:technician", "data")
	tornDown := 0
	m.OnLogout(func() { tornDown++ })

	m.Logout()
	assert.False(t, m.Active())
	assert.Empty(t, m.Token())
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 1, tornDown)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// A second logout is a no-op; hooks do not re-fire.
	m.Logout()
	assert.Equal(t, 1, tornDown)
}

func TestForceLogout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	m := NewManager(path, cache.New())
	assert.NoError(t, m.Begin(testToken(t, models.RoleSupplier)))

	fired := false
	m.OnLogout(func() { fired = true })

	// Wired as the transport's 401 handler.
	m.ForceLogout()
	assert.False(t, m.Active())
	assert.True(t, fired)
}
