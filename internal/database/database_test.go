package database

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/marginalia/internal/entities"
)

// setupTestDB creates a fresh test database
func setupTestDB(t *testing.T) (*Database, func()) {
	t.Helper()
	dbPath := "./test_" + t.Name() + ".db"
	db, err := NewDatabase(dbPath)
	require.NoError(t, err)

	cleanup := func() {
		db.Close()
		os.Remove(dbPath)
	}
	return db, cleanup
}

func TestRunLifecycle(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	run, err := db.StartRun("cli")
	require.NoError(t, err)
	assert.NotZero(t, run.ID)
	assert.Equal(t, entities.RunStatusRunning, run.Status)
	assert.Nil(t, run.CompletedAt)

	run.Status = entities.RunStatusCompleted
	run.Applied = 3
	run.Unmatched = 1
	require.NoError(t, db.CompleteRun(run))

	loaded, err := db.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.RunStatusCompleted, loaded.Status)
	assert.Equal(t, 3, loaded.Applied)
	assert.Equal(t, 1, loaded.Unmatched)
	assert.NotNil(t, loaded.CompletedAt)
}

func TestGetRecentRuns(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	for i := 0; i < 3; i++ {
		run, err := db.StartRun("schedule")
		require.NoError(t, err)
		run.Status = entities.RunStatusCompleted
		require.NoError(t, db.CompleteRun(run))
	}

	runs, err := db.GetRecentRuns(2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestAppliedHighlights(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	run, err := db.StartRun("http")
	require.NoError(t, err)

	applied := &entities.AppliedHighlight{
		RunID:        run.ID,
		DocumentPath: "Books/Markdowns/Meditations/Meditations.md",
		BlockID:      "ab12cd34",
		BookTitle:    "Meditations",
		Author:       "Marcus Aurelius",
		Source:       entities.SourceKindle,
		Strategy:     string(entities.MatchExact),
		Confidence:   1.0,
		SpanStart:    120,
		SpanEnd:      180,
		MatchedText:  "You have power over your mind, not outside events.",
	}
	require.NoError(t, db.SaveAppliedHighlight(applied))

	got, err := db.GetAppliedForRun(run.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ab12cd34", got[0].BlockID)
	assert.Equal(t, entities.SourceKindle, got[0].Source)

	byDoc, err := db.GetAppliedForDocument("Books/Markdowns/Meditations/Meditations.md")
	require.NoError(t, err)
	assert.Len(t, byDoc, 1)
}

func TestUnmatchedRecords(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	run, err := db.StartRun("cli")
	require.NoError(t, err)

	require.NoError(t, db.SaveUnmatched(&entities.UnmatchedRecord{
		RunID:     run.ID,
		BookTitle: "Walden",
		Author:    "Henry David Thoreau",
		Source:    entities.SourceAnnotator,
		Text:      "A sentence that was never found.",
		Reason:    "no match above threshold",
	}))

	got, err := db.GetUnmatchedForRun(run.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "no match above threshold", got[0].Reason)
}

func TestGetStats(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	run, err := db.StartRun("cli")
	require.NoError(t, err)
	require.NoError(t, db.SaveAppliedHighlight(&entities.AppliedHighlight{RunID: run.ID, BlockID: "aa"}))
	require.NoError(t, db.SaveUnmatched(&entities.UnmatchedRecord{RunID: run.ID}))

	runs, applied, unmatched, err := db.GetStats()
	require.NoError(t, err)
	assert.EqualValues(t, 1, runs)
	assert.EqualValues(t, 1, applied)
	assert.EqualValues(t, 1, unmatched)
}
