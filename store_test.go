package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "photos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestFavoritesPersistAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photos.db")
	ctx := context.Background()

	store, err := OpenStore(path)
	require.NoError(t, err)
	fav, err := store.IsFavorite(ctx, 42)
	require.NoError(t, err)
	assert.False(t, fav)
	require.NoError(t, store.SetFavorite(ctx, 42, true))
	require.NoError(t, store.SetFavorite(ctx, 42, true))
	require.NoError(t, store.SetFavorite(ctx, 7, true))
	require.NoError(t, store.Close())

	store, err = OpenStore(path)
	require.NoError(t, err)
	defer store.Close()
	fav, err = store.IsFavorite(ctx, 42)
	require.NoError(t, err)
	assert.True(t, fav)

	ids, err := store.Favorites(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{7, 42}, ids)

	require.NoError(t, store.SetFavorite(ctx, 42, false))
	fav, err = store.IsFavorite(ctx, 42)
	require.NoError(t, err)
	assert.False(t, fav)
}

func TestStoredResponsesExpire(t *testing.T) {
	store := openTestStore(t)
	now := time.Now().Unix()

	require.NoError(t, store.StoreResponse("fresh", []byte("a"), now+60))
	require.NoError(t, store.StoreResponse("stale", []byte("b"), now-60))
	require.NoError(t, store.StoreResponse("fresh", []byte("c"), now+120))

	data, ok := store.GetResponse("fresh", now)
	assert.True(t, ok)
	assert.Equal(t, []byte("c"), data)
	_, ok = store.GetResponse("stale", now)
	assert.False(t, ok)

	n, err := store.DeleteBefore(now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestUsers(t *testing.T) {
	store := openTestStore(t)
	has, err := store.HasUsers()
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, store.AddUser("anna", "s3cret", 1))
	has, err = store.HasUsers()
	require.NoError(t, err)
	assert.True(t, has)

	assert.True(t, store.TestUser("anna", "s3cret"))
	assert.True(t, store.TestUser("anna", "s3cret"), "second check is served from the memo")
	assert.False(t, store.TestUser("anna", "wrong"))
	assert.False(t, store.TestUser("nobody", "s3cret"))
}

func TestReplacedPasswordStopsMatching(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.AddUser("anna", "old", 1))
	require.True(t, store.TestUser("anna", "old"))

	require.NoError(t, store.AddUser("anna", "new", 1))

	assert.False(t, store.TestUser("anna", "old"))
	assert.True(t, store.TestUser("anna", "new"))
}

func TestFavoriteErrorsAreReturned(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	for i := 0; i < 3; i++ {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	store, err := NewStore(db)
	require.NoError(t, err)

	diskFull := errors.New("disk full")
	mock.ExpectQuery("SELECT 1 FROM favorites").WithArgs(int64(5)).WillReturnError(diskFull)
	mock.ExpectExec("INSERT OR IGNORE INTO favorites").WillReturnError(diskFull)

	_, err = store.IsFavorite(context.Background(), 5)
	assert.ErrorIs(t, err, diskFull)
	err = store.SetFavorite(context.Background(), 5, true)
	assert.ErrorIs(t, err, diskFull)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewStoreFailsOnSchemaError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS reqdata").WillReturnError(errors.New("read-only"))

	_, err = NewStore(db)
	assert.ErrorContains(t, err, "read-only")
}
