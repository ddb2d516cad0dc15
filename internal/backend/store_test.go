package backend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffo777/input-right/internal/lead"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore("sqlite", filepath.Join(t.TempDir(), "data", "inputright.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreTenants(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.CreateTenant(ctx, Tenant{ID: "acme", BusinessName: "Acme Plumbing", KnowledgeBase: "We fix pipes."})
	require.NoError(t, err)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := store.GetTenant(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "Acme Plumbing", got.BusinessName)
	assert.Equal(t, "We fix pipes.", got.KnowledgeBase)

	_, err = store.CreateTenant(ctx, Tenant{ID: "acme", BusinessName: "Other"})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = store.GetTenant(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreLeads(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	_, err := store.CreateTenant(ctx, Tenant{ID: "acme", BusinessName: "Acme Plumbing"})
	require.NoError(t, err)

	first, err := store.CreateLead(ctx, "acme", lead.Draft{Name: "Jane", Inquiry: "leaky pipe", Email: "jane@x.com"})
	require.NoError(t, err)
	assert.Equal(t, lead.StatusNew, first.Status)
	assert.Equal(t, "acme", first.TenantID)
	assert.NotZero(t, first.ID)

	second, err := store.CreateLead(ctx, "acme", lead.Draft{Name: "Bob", Inquiry: "new boiler", Email: "bob@x.com", Phone: "555"})
	require.NoError(t, err)

	leads, err := store.ListLeads(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, second.ID, leads[0].ID, "newest first")
	assert.Equal(t, "555", leads[0].Phone)

	_, err = store.CreateLead(ctx, "nobody", lead.Draft{Name: "X", Inquiry: "y", Email: "x@y.z"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteFilePath(t *testing.T) {
	tests := []struct {
		dsn    string
		want   string
		isFile bool
	}{
		{dsn: ":memory:"},
		{dsn: "file::memory:?cache=shared"},
		{dsn: "file:test.db?mode=memory"},
		{dsn: "data/inputright.db", want: "data/inputright.db", isFile: true},
		{dsn: "data/inputright.db?_pragma=busy_timeout(5000)", want: "data/inputright.db", isFile: true},
		{dsn: "file:data/x.db?cache=shared", want: "data/x.db", isFile: true},
	}
	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			got, ok := sqliteFilePath(tt.dsn)
			assert.Equal(t, tt.isFile, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	_, err := OpenStore("mysql", "x")
	assert.Error(t, err)

	_, err = OpenStore("postgres", "")
	assert.Error(t, err)
}
