package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/coah80/pastvoices/internal/catalog/migrations"
	"github.com/coah80/pastvoices/internal/models"
)

// SQLiteStore persists full persona records, so video urls survive a
// restart without a side record.
type SQLiteStore struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewSQLiteStore opens (and migrates) the database at path. path may be
// ":memory:".
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database dir: %w", err)
		}
	}

	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, path: path, now: time.Now}, nil
}

// OpenConnection opens a SQLite connection with the PRAGMAs the store needs.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps ":memory:" databases coherent and serialises
	// writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return db, nil
}

const personaColumns = `id, name, title, bio, prompt, bg_color, video_url, avatar_url, voice_file, video_bytes, is_large_asset, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPersona(row rowScanner) (*models.Persona, error) {
	var (
		p                        models.Persona
		video, avatar, voiceFile sql.NullString
	)
	err := row.Scan(&p.ID, &p.Name, &p.Title, &p.Bio, &p.Prompt, &p.BgColor,
		&video, &avatar, &voiceFile, &p.VideoBytes, &p.IsLargeAsset, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.VideoURL = fromNull(video)
	p.AvatarURL = fromNull(avatar)
	p.VoiceFile = fromNull(voiceFile)
	return &p, nil
}

func fromNull(ns sql.NullString) *string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	s := ns.String
	return &s
}

func toNull(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func (s *SQLiteStore) GetPersona(ctx context.Context, id int64) (*models.Persona, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+personaColumns+` FROM personas WHERE id = ?`, id)
	p, err := scanPersona(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting persona %d: %w", id, err)
	}
	return p, nil
}

func (s *SQLiteStore) ListPersonas(ctx context.Context) ([]models.Persona, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+personaColumns+` FROM personas ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing personas: %w", err)
	}
	defer rows.Close()

	out := []models.Persona{}
	for rows.Next() {
		p, err := scanPersona(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning persona: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CountPersonas(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM personas`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting personas: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) CreatePersona(ctx context.Context, in models.InsertPersona) (*models.Persona, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO personas (name, title, bio, prompt, bg_color, video_url, avatar_url, voice_file, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.Name, in.Title, in.Bio, in.Prompt, in.BgColor,
		toNull(in.VideoURL), toNull(in.AvatarURL), toNull(in.VoiceFile), s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("creating persona: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading persona id: %w", err)
	}
	return s.GetPersona(ctx, id)
}

func (s *SQLiteStore) UpdatePersona(ctx context.Context, id int64, patch models.PersonaPatch) (*models.Persona, error) {
	return s.mutate(ctx, id, patch.Apply)
}

func (s *SQLiteStore) UpdateMedia(ctx context.Context, id int64, u models.MediaUpdate) (*models.Persona, error) {
	return s.mutate(ctx, id, u.Apply)
}

func (s *SQLiteStore) mutate(ctx context.Context, id int64, apply func(*models.Persona)) (*models.Persona, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+personaColumns+` FROM personas WHERE id = ?`, id)
	p, err := scanPersona(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading persona %d: %w", id, err)
	}

	apply(p)

	_, err = tx.ExecContext(ctx,
		`UPDATE personas SET name = ?, title = ?, bio = ?, prompt = ?, bg_color = ?,
		 video_url = ?, avatar_url = ?, voice_file = ?, video_bytes = ?, is_large_asset = ?
		 WHERE id = ?`,
		p.Name, p.Title, p.Bio, p.Prompt, p.BgColor,
		toNull(p.VideoURL), toNull(p.AvatarURL), toNull(p.VoiceFile), p.VideoBytes, p.IsLargeAsset, id)
	if err != nil {
		return nil, fmt.Errorf("updating persona %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing persona %d: %w", id, err)
	}
	return p, nil
}

func (s *SQLiteStore) DeletePersona(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM personas WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting persona %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context, subID int64) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sub_id, user_message, ai_response, audio_url, created_at
		 FROM messages WHERE sub_id = ? ORDER BY created_at, id`, subID)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	out := []models.Message{}
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.SubID, &m.UserMessage, &m.AIResponse, &m.AudioURL, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CreateMessage(ctx context.Context, in models.InsertMessage) (*models.Message, error) {
	if _, err := s.GetPersona(ctx, in.SubID); err != nil {
		return nil, err
	}
	createdAt := s.now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (sub_id, user_message, ai_response, audio_url, created_at) VALUES (?, ?, ?, ?, ?)`,
		in.SubID, in.UserMessage, in.AIResponse, in.AudioURL, createdAt)
	if err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.Message{
		ID:          id,
		SubID:       in.SubID,
		UserMessage: in.UserMessage,
		AIResponse:  in.AIResponse,
		AudioURL:    in.AudioURL,
		CreatedAt:   createdAt,
	}, nil
}

func (s *SQLiteStore) VideoURLs(ctx context.Context) (map[int64]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, video_url FROM personas WHERE video_url IS NOT NULL AND video_url != ''`)
	if err != nil {
		return nil, fmt.Errorf("listing video urls: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]string)
	for rows.Next() {
		var (
			id  int64
			url string
		)
		if err := rows.Scan(&id, &url); err != nil {
			return nil, err
		}
		out[id] = url
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
