package main

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/apibillme/cache"
	_ "github.com/mattn/go-sqlite3"
)

type Store struct {
	db        *sql.DB
	log       *log.Logger
	userCache cache.Cache
}

const reqTable string = `
  CREATE TABLE IF NOT EXISTS reqdata (
      hash TEXT PRIMARY KEY,
      httpdata BLOB NOT NULL,
      expiry INT NOT NULL
  )
`

const userTable string = `
  CREATE TABLE IF NOT EXISTS users (
      user TEXT PRIMARY KEY,
      hash TEXT NOT NULL,
      level INT NOT NULL
  )
`

const favoriteTable string = `
  CREATE TABLE IF NOT EXISTS favorites (
      photo_id INTEGER PRIMARY KEY,
      created INT NOT NULL
  )
`

const dbFile string = "data/photos.db"

func OpenStore(filename string) (*Store, error) {
	if filename == "" {
		filename = dbFile
	}
	db, err := sql.Open("sqlite3", "file:"+filename+"?_busy_timeout=5000")
	if err != nil {
		return nil, dbError(err)
	}
	store, err := NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewStore creates the tables on db if needed.
func NewStore(db *sql.DB) (*Store, error) {
	for _, table := range []string{reqTable, userTable, favoriteTable} {
		if _, err := db.Exec(table); err != nil {
			return nil, dbError(err)
		}
	}
	return &Store{
		db:        db,
		log:       log.New(os.Stderr, "(store) ", log.LstdFlags),
		userCache: cache.New(256, cache.WithTTL(1*time.Hour)),
	}, nil
}

func (store *Store) Close() error {
	return store.db.Close()
}

func (store *Store) DeleteBefore(expiry int64) (int64, error) {
	res, err := store.db.Exec("DELETE FROM reqdata WHERE expiry < ?", expiry)
	if err != nil {
		return 0, dbError(err)
	}
	return res.RowsAffected()
}

func (store *Store) GetResponse(hash string, now int64) ([]byte, bool) {
	row := store.db.QueryRow("SELECT httpdata FROM reqdata WHERE hash = ? AND expiry >= ?", hash, now)
	var data []byte
	err := row.Scan(&data)
	if err == nil {
		return data, true
	}
	if !errors.Is(err, sql.ErrNoRows) {
		store.log.Println("Failed to read cached response:", err)
	}
	return nil, false
}

func (store *Store) StoreResponse(hash string, res []byte, expiry int64) error {
	_, err := store.db.Exec("INSERT OR REPLACE INTO reqdata (hash, httpdata, expiry) VALUES (?,?,?)",
		hash,
		res,
		expiry,
	)
	return dbError(err)
}

func (store *Store) IsFavorite(ctx context.Context, photoId int64) (bool, error) {
	var one int
	err := store.db.QueryRowContext(ctx, "SELECT 1 FROM favorites WHERE photo_id = ?", photoId).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, dbError(err)
	}
	return true, nil
}

func (store *Store) SetFavorite(ctx context.Context, photoId int64, favorite bool) error {
	var err error
	if favorite {
		_, err = store.db.ExecContext(ctx, "INSERT OR IGNORE INTO favorites (photo_id, created) VALUES (?, ?)",
			photoId, time.Now().Unix())
	} else {
		_, err = store.db.ExecContext(ctx, "DELETE FROM favorites WHERE photo_id = ?", photoId)
	}
	return dbError(err)
}

// Favorites lists favorite photo ids, oldest first.
func (store *Store) Favorites(ctx context.Context) ([]int64, error) {
	rows, err := store.db.QueryContext(ctx, "SELECT photo_id FROM favorites ORDER BY created, photo_id")
	if err != nil {
		return nil, dbError(err)
	}
	defer rows.Close()
	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, dbError(err)
		}
		ids = append(ids, id)
	}
	return ids, dbError(rows.Err())
}

func (store *Store) AddUser(user string, pass string, level int) error {
	hash, err := argon2id.CreateHash(pass, argon2id.DefaultParams)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if _, err := store.db.Exec("INSERT OR REPLACE INTO users (user, hash, level) VALUES (?,?,?)", user, hash, level); err != nil {
		return dbError(err)
	}
	// A replaced password must stop matching the memoized one at once.
	store.userCache.Set(user, pass)
	return nil
}

func (store *Store) HasUsers() (bool, error) {
	var n int
	if err := store.db.QueryRow("SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return false, dbError(err)
	}
	return n > 0, nil
}

func (store *Store) TestUser(user string, pass string) bool {
	userPass, ok := store.userCache.Get(user)
	if ok && 1 == subtle.ConstantTimeCompare([]byte(userPass.(string)), []byte(pass)) {
		return true
	}
	row := store.db.QueryRow("SELECT hash FROM users WHERE user = ?", user)
	var hash string
	err := row.Scan(&hash)
	if err == nil {
		match, err := argon2id.ComparePasswordAndHash(pass, hash)
		if err != nil {
			store.log.Println("Error comparing password hashes", err.Error())
			return false
		}
		if match {
			store.userCache.Set(user, pass)
			return true
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		store.log.Println(err.Error())
	}
	return false
}

func dbError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("db: %w", err)
}
