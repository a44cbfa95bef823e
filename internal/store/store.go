package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/voicecraftlabs/voicecraft-core/internal/config"
	_ "modernc.org/sqlite"
)

// schemaVersion is stamped into the database via PRAGMA user_version. Opening a
// database at a different version triggers the destructive recovery path.
const schemaVersion = 3

const settingsKey = "user_settings"

// ErrNotFound is returned by targeted mutations when the row does not exist.
var ErrNotFound = errors.New("record not found")

// UserSettings is the singleton settings record.
type UserSettings struct {
	TTSLanguage string  `json:"ttsLanguage"`
	TTSMode     string  `json:"ttsMode"`
	Seed        int     `json:"seed"`
	BackendURL  string  `json:"backendUrl"`
	TTSSpeed    float64 `json:"ttsSpeed"`
	CreatedAt   int64   `json:"createdAt"`
	UpdatedAt   int64   `json:"updatedAt"`
}

// SettingsPatch is a partial settings update; nil fields keep their value.
type SettingsPatch struct {
	TTSLanguage *string  `json:"ttsLanguage,omitempty"`
	TTSMode     *string  `json:"ttsMode,omitempty"`
	Seed        *int     `json:"seed,omitempty"`
	BackendURL  *string  `json:"backendUrl,omitempty"`
	TTSSpeed    *float64 `json:"ttsSpeed,omitempty"`
}

// HistoryItem is one recorded synthesis result.
type HistoryItem struct {
	ID          string  `json:"id"`
	Text        string  `json:"text"`
	AudioBase64 string  `json:"audioBase64"`
	Duration    float64 `json:"duration"`
	IsPublished bool    `json:"isPublished"`
	Language    string  `json:"language"`
	Mode        string  `json:"mode"`
	CreatedAt   int64   `json:"createdAt"`
}

// PresetVoiceData is the locally-configured reference for a catalog voice.
type PresetVoiceData struct {
	ID          string `json:"id"`
	Language    string `json:"language"`
	PromptText  string `json:"promptText"`
	AudioBase64 string `json:"audioBase64,omitempty"`
	UpdatedAt   int64  `json:"updatedAt"`
}

// Ready reports whether the voice has enough configuration for synthesis: both
// the transcript and the reference audio must be present.
func (p PresetVoiceData) Ready() bool {
	return p.PromptText != "" && p.AudioBase64 != ""
}

// Store wraps the SQLite-backed studio database. Reads degrade to empty values
// on internal failure; writes surface their errors to the caller.
type Store struct {
	db    *sql.DB
	cfg   config.StoreConfig
	log   *slog.Logger
	clock func() time.Time
	seed  func() int
}

// Open initializes the studio database at the current schema version. When the
// file cannot be opened at this version it is deleted and recreated from
// scratch; availability is preferred over preserving an incompatible database.
// Only a failure of that retry is returned as fatal.
func Open(ctx context.Context, cfg config.StoreConfig, log *slog.Logger) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := openAtVersion(ctx, cfg.Path)
	if err != nil {
		log.Warn("store open failed, recreating database",
			slog.String("path", cfg.Path),
			slog.String("error", err.Error()))
		if rmErr := removeDatabase(cfg.Path); rmErr != nil {
			return nil, fmt.Errorf("remove incompatible database: %w", rmErr)
		}
		db, err = openAtVersion(ctx, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("reopen recreated database: %w", err)
		}
	}

	s := &Store{
		db:    db,
		cfg:   cfg,
		log:   log,
		clock: time.Now,
		seed:  func() int { return rand.Intn(1000000) },
	}

	if cfg.VacuumOnStart {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("store vacuum failed", slog.String("error", err.Error()))
		}
	}

	return s, nil
}

func openAtVersion(ctx context.Context, path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		db.Close()
		return nil, fmt.Errorf("read schema version: %w", err)
	}
	switch version {
	case 0:
		// Fresh file: create the schema and stamp it.
	case schemaVersion:
		// Current; CREATE IF NOT EXISTS below is a no-op.
	default:
		db.Close()
		return nil, fmt.Errorf("incompatible schema version %d (want %d)", version, schemaVersion)
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	ddl := `
CREATE TABLE IF NOT EXISTS settings (
    id TEXT PRIMARY KEY,
    tts_language TEXT NOT NULL,
    tts_mode TEXT NOT NULL,
    seed INTEGER NOT NULL,
    backend_url TEXT NOT NULL,
    tts_speed REAL NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS history (
    id TEXT PRIMARY KEY,
    text TEXT NOT NULL,
    audio_base64 TEXT NOT NULL,
    duration REAL NOT NULL,
    is_published INTEGER NOT NULL DEFAULT 0,
    language TEXT,
    mode TEXT,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_created ON history(created_at);
CREATE TABLE IF NOT EXISTS preset_voices (
    id TEXT PRIMARY KEY,
    language TEXT NOT NULL,
    prompt_text TEXT NOT NULL,
    audio_base64 TEXT,
    updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS speaker_languages (
    speaker_id TEXT PRIMARY KEY,
    language TEXT NOT NULL
);
`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("stamp schema version: %w", err)
	}
	return nil
}

func removeDatabase(path string) error {
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(path + suffix); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Settings returns the singleton settings record, or false when it does not
// exist or cannot be read. Read failures are logged, never returned.
func (s *Store) Settings(ctx context.Context) (UserSettings, bool) {
	var us UserSettings
	err := s.db.QueryRowContext(ctx,
		`SELECT tts_language, tts_mode, seed, backend_url, tts_speed, created_at, updated_at
		 FROM settings WHERE id = ?`, settingsKey).
		Scan(&us.TTSLanguage, &us.TTSMode, &us.Seed, &us.BackendURL, &us.TTSSpeed, &us.CreatedAt, &us.UpdatedAt)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.log.Warn("read settings failed", slog.String("error", err.Error()))
		}
		return UserSettings{}, false
	}
	return us, true
}

func (s *Store) defaultSettings(now int64) UserSettings {
	return UserSettings{
		TTSLanguage: "zh",
		TTSMode:     "zero_shot",
		Seed:        s.seed(),
		BackendURL:  "http://localhost:9880",
		TTSSpeed:    1.0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// EnsureSettings returns the settings record, creating it with defaults on the
// first read.
func (s *Store) EnsureSettings(ctx context.Context) (UserSettings, error) {
	if us, ok := s.Settings(ctx); ok {
		return us, nil
	}
	return s.SaveSettings(ctx, SettingsPatch{})
}

// SaveSettings applies a shallow merge of patch onto the existing record (or
// the defaults when none exists), stamps UpdatedAt and writes the result.
func (s *Store) SaveSettings(ctx context.Context, patch SettingsPatch) (UserSettings, error) {
	now := s.clock().UnixMilli()
	us, ok := s.Settings(ctx)
	if !ok {
		us = s.defaultSettings(now)
	}

	if patch.TTSLanguage != nil {
		us.TTSLanguage = *patch.TTSLanguage
	}
	if patch.TTSMode != nil {
		us.TTSMode = *patch.TTSMode
	}
	if patch.Seed != nil {
		us.Seed = *patch.Seed
	}
	if patch.BackendURL != nil {
		us.BackendURL = *patch.BackendURL
	}
	if patch.TTSSpeed != nil {
		us.TTSSpeed = *patch.TTSSpeed
	}
	us.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings(id, tts_language, tts_mode, seed, backend_url, tts_speed, created_at, updated_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   tts_language=excluded.tts_language, tts_mode=excluded.tts_mode, seed=excluded.seed,
		   backend_url=excluded.backend_url, tts_speed=excluded.tts_speed, updated_at=excluded.updated_at`,
		settingsKey, us.TTSLanguage, us.TTSMode, us.Seed, us.BackendURL, us.TTSSpeed, us.CreatedAt, us.UpdatedAt)
	if err != nil {
		return UserSettings{}, fmt.Errorf("save settings: %w", err)
	}
	return us, nil
}

// History returns all items sorted descending by creation time. Items written
// by older versions without a created_at get one backfilled from a numeric
// parse of their id, else the current time.
func (s *Store) History(ctx context.Context) []HistoryItem {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, audio_base64, duration, is_published, language, mode, created_at
		 FROM history ORDER BY created_at DESC, id DESC`)
	if err != nil {
		s.log.Warn("read history failed", slog.String("error", err.Error()))
		return nil
	}
	defer rows.Close()

	var items []HistoryItem
	for rows.Next() {
		var item HistoryItem
		var language, mode sql.NullString
		if err := rows.Scan(&item.ID, &item.Text, &item.AudioBase64, &item.Duration,
			&item.IsPublished, &language, &mode, &item.CreatedAt); err != nil {
			s.log.Warn("scan history row failed", slog.String("error", err.Error()))
			return nil
		}
		item.Language = language.String
		item.Mode = mode.String
		if item.CreatedAt == 0 {
			if parsed, err := strconv.ParseInt(item.ID, 10, 64); err == nil {
				item.CreatedAt = parsed
			} else {
				item.CreatedAt = s.clock().UnixMilli()
			}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		s.log.Warn("read history failed", slog.String("error", err.Error()))
		return nil
	}
	return items
}

// AddHistory assigns the item an id and creation time, inserts it as a single
// row and evicts everything beyond the retention cap in a follow-up statement.
// There is no collection-level rewrite, so concurrent adds cannot lose items.
func (s *Store) AddHistory(ctx context.Context, item HistoryItem) (HistoryItem, error) {
	item.ID = uuid.NewString()
	item.CreatedAt = s.clock().UnixMilli()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history(id, text, audio_base64, duration, is_published, language, mode, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.Text, item.AudioBase64, item.Duration, item.IsPublished,
		item.Language, item.Mode, item.CreatedAt)
	if err != nil {
		return HistoryItem{}, fmt.Errorf("insert history item: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`DELETE FROM history WHERE id IN (
			SELECT id FROM history ORDER BY created_at DESC, id DESC LIMIT -1 OFFSET ?
		)`, s.cfg.HistoryLimit)
	if err != nil {
		return HistoryItem{}, fmt.Errorf("evict history beyond cap: %w", err)
	}
	return item, nil
}

// SetPublished flips a history item to published. The transition is one-way.
func (s *Store) SetPublished(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE history SET is_published = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("publish history item: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteHistory removes a single item.
func (s *Store) DeleteHistory(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete history item: %w", err)
	}
	return nil
}

// ClearHistory removes all history items.
func (s *Store) ClearHistory(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM history`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// PresetVoices returns all locally-configured preset voices keyed by id.
func (s *Store) PresetVoices(ctx context.Context) map[string]PresetVoiceData {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, language, prompt_text, audio_base64, updated_at FROM preset_voices`)
	if err != nil {
		s.log.Warn("read preset voices failed", slog.String("error", err.Error()))
		return map[string]PresetVoiceData{}
	}
	defer rows.Close()

	voices := make(map[string]PresetVoiceData)
	for rows.Next() {
		var v PresetVoiceData
		var audio sql.NullString
		if err := rows.Scan(&v.ID, &v.Language, &v.PromptText, &audio, &v.UpdatedAt); err != nil {
			s.log.Warn("scan preset voice failed", slog.String("error", err.Error()))
			return map[string]PresetVoiceData{}
		}
		v.AudioBase64 = audio.String
		voices[v.ID] = v
	}
	if err := rows.Err(); err != nil {
		s.log.Warn("read preset voices failed", slog.String("error", err.Error()))
		return map[string]PresetVoiceData{}
	}
	return voices
}

// PresetVoice returns a single configured preset voice.
func (s *Store) PresetVoice(ctx context.Context, id string) (PresetVoiceData, bool) {
	var v PresetVoiceData
	var audio sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, language, prompt_text, audio_base64, updated_at FROM preset_voices WHERE id = ?`, id).
		Scan(&v.ID, &v.Language, &v.PromptText, &audio, &v.UpdatedAt)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.log.Warn("read preset voice failed", slog.String("error", err.Error()))
		}
		return PresetVoiceData{}, false
	}
	v.AudioBase64 = audio.String
	return v, true
}

// SavePresetVoice upserts the configuration for a catalog voice, stamping
// UpdatedAt.
func (s *Store) SavePresetVoice(ctx context.Context, id string, v PresetVoiceData) (PresetVoiceData, error) {
	v.ID = id
	v.UpdatedAt = s.clock().UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO preset_voices(id, language, prompt_text, audio_base64, updated_at)
		 VALUES(?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   language=excluded.language, prompt_text=excluded.prompt_text,
		   audio_base64=excluded.audio_base64, updated_at=excluded.updated_at`,
		v.ID, v.Language, v.PromptText, v.AudioBase64, v.UpdatedAt)
	if err != nil {
		return PresetVoiceData{}, fmt.Errorf("save preset voice: %w", err)
	}
	return v, nil
}

// DeletePresetVoice removes the local configuration for one catalog voice.
func (s *Store) DeletePresetVoice(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM preset_voices WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete preset voice: %w", err)
	}
	return nil
}

// ClearPresetVoices removes all local preset configuration.
func (s *Store) ClearPresetVoices(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM preset_voices`); err != nil {
		return fmt.Errorf("clear preset voices: %w", err)
	}
	return nil
}

// SpeakerLanguages returns the cached language tag for each backend-registered
// speaker id. The backend itself carries no language field.
func (s *Store) SpeakerLanguages(ctx context.Context) map[string]string {
	rows, err := s.db.QueryContext(ctx, `SELECT speaker_id, language FROM speaker_languages`)
	if err != nil {
		s.log.Warn("read speaker languages failed", slog.String("error", err.Error()))
		return map[string]string{}
	}
	defer rows.Close()

	langs := make(map[string]string)
	for rows.Next() {
		var id, lang string
		if err := rows.Scan(&id, &lang); err != nil {
			s.log.Warn("scan speaker language failed", slog.String("error", err.Error()))
			return map[string]string{}
		}
		langs[id] = lang
	}
	if err := rows.Err(); err != nil {
		s.log.Warn("read speaker languages failed", slog.String("error", err.Error()))
		return map[string]string{}
	}
	return langs
}

// SetSpeakerLanguage records the language tag for a custom speaker id.
func (s *Store) SetSpeakerLanguage(ctx context.Context, id, language string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO speaker_languages(speaker_id, language) VALUES(?, ?)
		 ON CONFLICT(speaker_id) DO UPDATE SET language=excluded.language`, id, language)
	if err != nil {
		return fmt.Errorf("set speaker language: %w", err)
	}
	return nil
}

// DeleteSpeakerLanguage purges the cache entry for a deleted custom speaker.
func (s *Store) DeleteSpeakerLanguage(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM speaker_languages WHERE speaker_id = ?`, id); err != nil {
		return fmt.Errorf("delete speaker language: %w", err)
	}
	return nil
}
