package main

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelf/internal/domain"
	"shelf/internal/storage"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// seedRepo stores items in a fresh badger directory and closes it so a
// command can open the same path.
func seedRepo(t *testing.T, items ...domain.Item) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := storage.NewBadgerRepository(dir, testLogger())
	require.NoError(t, err)
	for _, item := range items {
		require.NoError(t, repo.CreateItem(context.Background(), item))
	}
	require.NoError(t, repo.Close())
	return dir
}

func runShelf(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("STORAGE_DRIVER", "badger")
	t.Setenv("BADGERDB_PATH", dbPath)
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append([]string{"--config-dir", t.TempDir()}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		updateStatus, updateTitle = "", ""
		listStatus, listType, listLimit, listOffset = "", "", storage.DefaultListLimit, 0
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func openSeeded(t *testing.T, dir string) *storage.BadgerRepository {
	t.Helper()
	repo, err := storage.NewBadgerRepository(dir, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, repo.Close()) })
	return repo
}

func TestItemUpdate(t *testing.T) {
	upd, err := itemUpdate("done", "  Dune  ")
	require.NoError(t, err)
	require.NotNil(t, upd.Status)
	assert.Equal(t, domain.StatusDone, *upd.Status)
	require.NotNil(t, upd.Title)
	assert.Equal(t, "Dune", *upd.Title)

	upd, err = itemUpdate("archived", "")
	require.NoError(t, err)
	assert.Nil(t, upd.Title)

	_, err = itemUpdate("finished", "")
	assert.EqualError(t, err, `invalid status "finished"`)

	_, err = itemUpdate("", "   ")
	assert.Error(t, err)
}

func TestUpdateCommand_SetsStatusAndTitle(t *testing.T) {
	dir := seedRepo(t, domain.Item{ID: "1", Type: domain.TypeArticle, Title: "old", Status: domain.StatusInbox, MetadataStatus: domain.MetadataCompleted})

	out, err := runShelf(t, dir, "update", "1", "--status", "reading", "--title", "New title")
	require.NoError(t, err)
	assert.Contains(t, out, "New title")

	item, err := openSeeded(t, dir).GetItem(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReading, item.Status)
	assert.Equal(t, "New title", item.Title)
	assert.Equal(t, domain.MetadataCompleted, item.MetadataStatus)
}

func TestUpdateCommand_UnknownItem(t *testing.T) {
	dir := seedRepo(t)

	_, err := runShelf(t, dir, "update", "missing", "--status", "done")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeleteCommand(t *testing.T) {
	dir := seedRepo(t,
		domain.Item{ID: "1", Type: domain.TypeNote, Title: "keep"},
		domain.Item{ID: "2", Type: domain.TypeNote, Title: "drop"},
	)

	out, err := runShelf(t, dir, "delete", "2")
	require.NoError(t, err)
	assert.Equal(t, "Deleted 2\n", out)

	repo := openSeeded(t, dir)
	_, err = repo.GetItem(context.Background(), "2")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = repo.GetItem(context.Background(), "1")
	assert.NoError(t, err)
}

func TestListCommand_FiltersByUpdatedStatus(t *testing.T) {
	dir := seedRepo(t,
		domain.Item{ID: "1", Type: domain.TypeNote, Title: "first", Status: domain.StatusInbox},
		domain.Item{ID: "2", Type: domain.TypeNote, Title: "second", Status: domain.StatusInbox},
	)

	_, err := runShelf(t, dir, "update", "2", "--status", "done")
	require.NoError(t, err)

	out, err := runShelf(t, dir, "list", "--status", "done")
	require.NoError(t, err)
	assert.Contains(t, out, "second")
	assert.NotContains(t, out, "first")
}
