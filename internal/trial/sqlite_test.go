package trial

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStore(t *testing.T) *SQLiteStore {
	tmpDir, err := os.MkdirTemp("", "trial-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := NewSQLiteStore(filepath.Join(tmpDir, "test.db"))
	require.NoError(t, err)
	return store
}

func TestNewSQLiteStore(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "trial-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)

	require.NoError(t, err)
	require.NotNil(t, store)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "Database file should exist")
}

func TestSQLiteStore_Save(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()

	trial := &Trial{
		TrialID:      "NCT04512345",
		Title:        "Metformin add-on therapy in type 2 diabetes",
		Phase:        "3",
		Sponsor:      "University Hospital",
		CriteriaText: "Age between 18 and 75 AND diagnosed with type 2 diabetes",
	}

	err := store.Save(ctx, trial)

	require.NoError(t, err)
	assert.NotZero(t, trial.ID, "ID should be assigned")
	assert.Equal(t, StatusRecruiting, trial.Status, "Status should default to recruiting")
	assert.False(t, trial.CreatedAt.IsZero(), "CreatedAt should be set")
	assert.False(t, trial.UpdatedAt.IsZero(), "UpdatedAt should be set")
}

func TestSQLiteStore_Save_Update(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()

	trial := &Trial{
		TrialID: "NCT04512345",
		Title:   "Metformin add-on therapy in type 2 diabetes",
		Status:  StatusRecruiting,
	}
	err := store.Save(ctx, trial)
	require.NoError(t, err)
	originalID := trial.ID

	// Update with same trial_id
	trial.Status = StatusCompleted
	trial.Phase = "3"

	err = store.Save(ctx, trial)
	require.NoError(t, err)

	assert.Equal(t, originalID, trial.ID, "Should update existing record")

	retrieved, err := store.Get(ctx, "NCT04512345")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, retrieved.Status)
	assert.Equal(t, "3", retrieved.Phase)
}

func TestSQLiteStore_Get_NotFound(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	retrieved, err := store.Get(context.Background(), "NCT00000000")
	require.NoError(t, err)
	assert.Nil(t, retrieved, "Missing trial should return nil without error")
}

func TestSQLiteStore_ListAndCount(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()

	for _, id := range []string{"NCT00000001", "NCT00000002", "NCT00000003"} {
		err := store.Save(ctx, &Trial{TrialID: id, Title: "Trial " + id})
		require.NoError(t, err)
	}

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	trials, err := store.List(ctx, 2, 0)
	require.NoError(t, err)
	assert.Len(t, trials, 2)

	trials, err = store.List(ctx, 10, 2)
	require.NoError(t, err)
	assert.Len(t, trials, 1)
}

func TestSQLiteStore_Delete(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()

	err := store.Save(ctx, &Trial{TrialID: "NCT00000001", Title: "Trial"})
	require.NoError(t, err)

	err = store.Delete(ctx, "NCT00000001")
	require.NoError(t, err)

	retrieved, err := store.Get(ctx, "NCT00000001")
	require.NoError(t, err)
	assert.Nil(t, retrieved)
}

func TestSQLiteStore_ExportImport(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()

	err := store.Save(ctx, &Trial{
		TrialID:      "NCT04512345",
		Title:        "Metformin add-on therapy in type 2 diabetes",
		Phase:        "3",
		CriteriaText: "Age between 18 and 75",
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	err = store.ExportJSON(ctx, &buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "NCT04512345")

	// Import into a fresh store
	other := createTestStore(t)
	defer other.Close()

	imported, skipped, err := other.ImportJSON(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 1, imported)
	assert.Equal(t, 0, skipped)

	// Re-import skips the existing entry
	imported, skipped, err = other.ImportJSON(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 0, imported)
	assert.Equal(t, 1, skipped)
}
