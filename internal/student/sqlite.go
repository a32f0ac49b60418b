package student

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is a SQLite-backed student store for deployments that
// need records to survive restarts.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &SQLiteStore{db: db}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return store, nil
}

// migrate creates the database schema.
func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		age INTEGER NOT NULL,
		street TEXT NOT NULL DEFAULT '',
		city TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT '',
		zip TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_students_name ON students(name);
	`

	_, err := s.db.Exec(schema)
	return err
}

// List returns all records sorted by name.
func (s *SQLiteStore) List() ([]Student, error) {
	rows, err := s.db.Query(`
		SELECT id, name, email, age, street, city, state, zip
		FROM students ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	var out []Student
	for rows.Next() {
		var st Student
		if err := rows.Scan(&st.ID, &st.Name, &st.Email, &st.Age,
			&st.Address.Street, &st.Address.City, &st.Address.State, &st.Address.Zip); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if out == nil {
		out = []Student{}
	}
	return out, nil
}

// Get looks up one record by ID.
func (s *SQLiteStore) Get(id string) (*Student, error) {
	var st Student
	err := s.db.QueryRow(`
		SELECT id, name, email, age, street, city, state, zip
		FROM students WHERE id = ?`, id).
		Scan(&st.ID, &st.Name, &st.Email, &st.Age,
			&st.Address.Street, &st.Address.City, &st.Address.State, &st.Address.Zip)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query student: %w", err)
	}
	return &st, nil
}

// Add stores a new record and assigns it an ID.
func (s *SQLiteStore) Add(st Student) (*Student, error) {
	st.ID = uuid.New().String()

	_, err := s.db.Exec(`
		INSERT INTO students (id, name, email, age, street, city, state, zip)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.Name, st.Email, st.Age,
		st.Address.Street, st.Address.City, st.Address.State, st.Address.Zip)
	if err != nil {
		return nil, fmt.Errorf("insert student: %w", err)
	}
	return &st, nil
}

// Delete removes a record, returning it if it existed.
func (s *SQLiteStore) Delete(id string) (*Student, error) {
	st, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, nil
	}

	if _, err := s.db.Exec(`DELETE FROM students WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("delete student: %w", err)
	}
	return st, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
