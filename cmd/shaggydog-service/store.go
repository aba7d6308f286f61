package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

var (
	errUserExists = errors.New("username already exists")
	errNotFound   = errors.New("not found")
)

const (
	genStatusPending  = "pending"
	genStatusComplete = "complete"
)

type store struct {
	db *sql.DB
	mu sync.Mutex
}

func openStore(path string) (*store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db directory %s: %w", dir, err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o664)
	if err != nil {
		return nil, fmt.Errorf("failed to open db file %s for read/write: %w", path, err)
	}
	_ = f.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sql open failed for %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)
	if _, err := db.Exec(`PRAGMA journal_mode=DELETE;`); err != nil {
		return nil, fmt.Errorf("set journal mode failed for %s: %w", path, err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000;`); err != nil {
		return nil, fmt.Errorf("set busy timeout failed for %s: %w", path, err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
	`); err != nil {
		return nil, err
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS generations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id),
			detected_breed TEXT NOT NULL DEFAULT '',
			breed_reasoning TEXT NOT NULL DEFAULT '',
			original_image BLOB NOT NULL,
			transition_image_1 BLOB,
			transition_image_2 BLOB,
			final_dog_image BLOB,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMP NOT NULL
		);
	`); err != nil {
		return nil, err
	}
	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_generations_user_created
		ON generations (user_id, created_at DESC);
	`); err != nil {
		return nil, err
	}
	return &store{db: db}, nil
}

func isRetryableSQLiteError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database is busy") ||
		strings.Contains(msg, "sqlite_busy") ||
		strings.Contains(msg, "unable to open database file")
}

func withSQLiteRetry(op func() error) error {
	var err error
	backoff := 50 * time.Millisecond
	for i := 0; i < 4; i++ {
		err = op()
		if err == nil {
			return nil
		}
		if !isRetryableSQLiteError(err) {
			return err
		}
		time.Sleep(backoff)
		backoff *= 2
	}
	return err
}

func (s *store) Close() error {
	return s.db.Close()
}

func (s *store) CreateUser(username, passwordHash string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var id int64
	err := withSQLiteRetry(func() error {
		res, err := s.db.Exec(
			`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`,
			username, passwordHash, time.Now().UTC(),
		)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed") {
				return errUserExists
			}
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

func (s *store) GetUserByUsername(username string) (*User, error) {
	var u User
	err := withSQLiteRetry(func() error {
		err := s.db.QueryRow(
			`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`,
			username,
		).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return errNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *store) GetUserByID(id int64) (*User, error) {
	var u User
	err := withSQLiteRetry(func() error {
		err := s.db.QueryRow(
			`SELECT id, username, password_hash, created_at FROM users WHERE id = ?`,
			id,
		).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return errNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *store) CreatePendingGeneration(userID int64, original []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var id int64
	err := withSQLiteRetry(func() error {
		res, err := s.db.Exec(
			`INSERT INTO generations (user_id, original_image, status, created_at) VALUES (?, ?, ?, ?)`,
			userID, original, genStatusPending, time.Now().UTC(),
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

func (s *store) CompleteGeneration(id int64, breed, reasoning string, transition1, transition2, final []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return withSQLiteRetry(func() error {
		res, err := s.db.Exec(`
			UPDATE generations
			SET detected_breed = ?, breed_reasoning = ?,
				transition_image_1 = ?, transition_image_2 = ?, final_dog_image = ?,
				status = ?
			WHERE id = ?`,
			breed, reasoning, transition1, transition2, final, genStatusComplete, id,
		)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return errNotFound
		}
		return nil
	})
}

func (s *store) GetGeneration(id int64) (*Generation, error) {
	var g Generation
	err := withSQLiteRetry(func() error {
		err := s.db.QueryRow(`
			SELECT id, user_id, detected_breed, breed_reasoning,
				original_image, transition_image_1, transition_image_2, final_dog_image,
				status, created_at
			FROM generations WHERE id = ?`,
			id,
		).Scan(
			&g.ID, &g.UserID, &g.DetectedBreed, &g.BreedReasoning,
			&g.OriginalImage, &g.TransitionImage1, &g.TransitionImage2, &g.FinalDogImage,
			&g.Status, &g.CreatedAt,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return errNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &g, nil
}

var generationImageColumns = map[string]string{
	"original":    "original_image",
	"transition1": "transition_image_1",
	"transition2": "transition_image_2",
	"final":       "final_dog_image",
}

// GetGenerationImage loads a single image column so serving one image does not
// drag the other three blobs through memory.
func (s *store) GetGenerationImage(id int64, imageType string) (int64, []byte, error) {
	column, ok := generationImageColumns[imageType]
	if !ok {
		return 0, nil, fmt.Errorf("invalid image type %q", imageType)
	}
	var userID int64
	var data []byte
	err := withSQLiteRetry(func() error {
		err := s.db.QueryRow(
			fmt.Sprintf(`SELECT user_id, %s FROM generations WHERE id = ?`, column),
			id,
		).Scan(&userID, &data)
		if errors.Is(err, sql.ErrNoRows) {
			return errNotFound
		}
		return err
	})
	if err != nil {
		return 0, nil, err
	}
	return userID, data, nil
}

func (s *store) ListGenerations(userID int64) ([]GenerationSummary, error) {
	items := make([]GenerationSummary, 0)
	err := withSQLiteRetry(func() error {
		rows, err := s.db.Query(`
			SELECT id, user_id, detected_breed, status, created_at
			FROM generations
			WHERE user_id = ?
			ORDER BY created_at DESC, id DESC`,
			userID,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		items = items[:0]
		for rows.Next() {
			var g GenerationSummary
			if err := rows.Scan(&g.ID, &g.UserID, &g.DetectedBreed, &g.Status, &g.CreatedAt); err != nil {
				return err
			}
			items = append(items, g)
		}
		return rows.Err()
	})
	return items, err
}

func (s *store) DeleteGeneration(id, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted bool
	err := withSQLiteRetry(func() error {
		res, err := s.db.Exec(`DELETE FROM generations WHERE id = ? AND user_id = ?`, id, userID)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		deleted = affected > 0
		return nil
	})
	return deleted, err
}

// DeletePendingGeneration removes a row that never completed. Ownership is not
// rechecked; only the worker calls this with ids it created.
func (s *store) DeletePendingGeneration(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return withSQLiteRetry(func() error {
		_, err := s.db.Exec(`DELETE FROM generations WHERE id = ? AND status = ?`, id, genStatusPending)
		return err
	})
}
