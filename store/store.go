// Package store provides the SQLite blog store that exports read from and
// imports are applied to.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/robertmeta/tpxa/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store manages the SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path.
// Use ":memory:" for an in-memory database (useful for testing).
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// every connection to ":memory:" is a database of its own
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	schema := `
	PRAGMA foreign_keys = ON;

	CREATE TABLE IF NOT EXISTS config (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		key TEXT UNIQUE NOT NULL,
		value TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		www TEXT NOT NULL DEFAULT '',
		pw_hash BLOB,
		role INTEGER NOT NULL DEFAULT 0,
		display_name TEXT NOT NULL DEFAULT '',
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		privileges TEXT NOT NULL DEFAULT '',
		extra TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS tags (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		slug TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		is_category INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS posts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uid TEXT UNIQUE NOT NULL,
		slug TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		author_id INTEGER NOT NULL,
		pub_date INTEGER NOT NULL,
		last_update INTEGER NOT NULL,
		comments_enabled INTEGER NOT NULL DEFAULT 1,
		pings_enabled INTEGER NOT NULL DEFAULT 1,
		status INTEGER NOT NULL DEFAULT 0,
		body TEXT NOT NULL DEFAULT '',
		intro TEXT NOT NULL DEFAULT '',
		raw_body TEXT NOT NULL DEFAULT '',
		raw_intro TEXT NOT NULL DEFAULT '',
		parser TEXT NOT NULL DEFAULT '',
		parser_data TEXT NOT NULL DEFAULT '',
		extra TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (author_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS post_tags (
		post_id INTEGER NOT NULL,
		tag_id INTEGER NOT NULL,
		PRIMARY KEY (post_id, tag_id),
		FOREIGN KEY (post_id) REFERENCES posts(id) ON DELETE CASCADE,
		FOREIGN KEY (tag_id) REFERENCES tags(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS comments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		post_id INTEGER NOT NULL,
		parent_id INTEGER,
		user_id INTEGER,
		author TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		www TEXT NOT NULL DEFAULT '',
		pub_date INTEGER NOT NULL,
		blocked INTEGER NOT NULL DEFAULT 0,
		blocked_msg TEXT NOT NULL DEFAULT '',
		is_pingback INTEGER NOT NULL DEFAULT 0,
		status INTEGER NOT NULL DEFAULT 0,
		submitter_ip TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL DEFAULT '',
		raw_body TEXT NOT NULL DEFAULT '',
		parser TEXT NOT NULL DEFAULT '',
		parser_data TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (post_id) REFERENCES posts(id) ON DELETE CASCADE,
		FOREIGN KEY (parent_id) REFERENCES comments(id) ON DELETE SET NULL,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE SET NULL
	);

	CREATE TABLE IF NOT EXISTS pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		key TEXT UNIQUE NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL DEFAULT '',
		raw_body TEXT NOT NULL DEFAULT '',
		extra TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_posts_last_update ON posts(last_update DESC);
	CREATE INDEX IF NOT EXISTS idx_comments_post_id ON comments(post_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SetConfig stores a configuration value, keeping the position of keys that
// already exist.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	return setConfig(ctx, s.db, key, value)
}

func setConfig(ctx context.Context, db execer, key, value string) error {
	_, err := db.ExecContext(ctx,
		"INSERT INTO config (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set config %s: %w", key, err)
	}
	return nil
}

// SaveUser saves a user. A user with an ID of 0 is inserted, otherwise updated.
func (s *Store) SaveUser(ctx context.Context, u *model.User) error {
	return saveUser(ctx, s.db, u)
}

func saveUser(ctx context.Context, db execer, u *model.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	privileges, err := marshalJSON(u.Privileges)
	if err != nil {
		return err
	}
	extra, err := marshalJSON(u.Extra)
	if err != nil {
		return err
	}

	if u.ID == 0 {
		result, err := db.ExecContext(ctx,
			`INSERT INTO users (username, email, www, pw_hash, role, display_name, first_name, last_name, description, privileges, extra)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			u.Username, u.Email, u.WWW, u.PwHash, int(u.Role), u.DisplayName, u.FirstName, u.LastName, u.Description, privileges, extra,
		)
		if err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert ID: %w", err)
		}
		u.ID = id
		return nil
	}

	_, err = db.ExecContext(ctx,
		`UPDATE users SET username = ?, email = ?, www = ?, pw_hash = ?, role = ?, display_name = ?, first_name = ?,
		last_name = ?, description = ?, privileges = ?, extra = ? WHERE id = ?`,
		u.Username, u.Email, u.WWW, u.PwHash, int(u.Role), u.DisplayName, u.FirstName, u.LastName, u.Description, privileges, extra, u.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// GetUserByUsername retrieves a user by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, selectUser+" WHERE username = ?", username))
}

const selectUser = `SELECT id, username, email, www, pw_hash, role, display_name, first_name, last_name, description, privileges, extra FROM users`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*model.User, error) {
	u := &model.User{}
	var role int
	var privileges, extra string
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.WWW, &u.PwHash, &role, &u.DisplayName,
		&u.FirstName, &u.LastName, &u.Description, &privileges, &extra)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	u.Role = model.Role(role)
	if err := unmarshalJSON(privileges, &u.Privileges); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(extra, &u.Extra); err != nil {
		return nil, err
	}
	return u, nil
}

// SaveTag inserts a tag or updates the tag with the same slug.
func (s *Store) SaveTag(ctx context.Context, t *model.Tag) error {
	return saveTag(ctx, s.db, t)
}

func saveTag(ctx context.Context, db execer, t *model.Tag) error {
	if err := t.Validate(); err != nil {
		return err
	}
	err := db.QueryRowContext(ctx,
		`INSERT INTO tags (slug, name, description, is_category) VALUES (?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET name = excluded.name, description = excluded.description,
			is_category = MAX(is_category, excluded.is_category)
		RETURNING id`,
		t.Slug, t.Name, t.Description, boolToInt(t.IsCategory),
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("failed to save tag %s: %w", t.Slug, err)
	}
	return nil
}

// SavePost inserts a post together with its tags. A post without a UID gets
// a random one. Comments are saved separately.
func (s *Store) SavePost(ctx context.Context, p *model.Post) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := savePost(ctx, tx, p); err != nil {
		return err
	}
	return tx.Commit()
}

func savePost(ctx context.Context, db execer, p *model.Post) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.UID == "" {
		p.UID = "urn:uuid:" + uuid.NewString()
	}
	parserData, err := marshalJSON(p.ParserData)
	if err != nil {
		return err
	}
	extra, err := marshalJSON(p.Extra)
	if err != nil {
		return err
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO posts (uid, slug, title, url, author_id, pub_date, last_update, comments_enabled, pings_enabled,
			status, body, intro, raw_body, raw_intro, parser, parser_data, extra)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.UID, p.Slug, p.Title, p.URL, p.AuthorID, p.PubDate.Unix(), p.LastUpdate.Unix(),
		boolToInt(p.CommentsEnabled), boolToInt(p.PingsEnabled), p.Status,
		p.Body, p.Intro, p.RawBody, p.RawIntro, p.Parser, parserData, extra,
	)
	if err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	p.ID = id

	for i := range p.Tags {
		if err := saveTag(ctx, db, &p.Tags[i]); err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx,
			"INSERT OR IGNORE INTO post_tags (post_id, tag_id) VALUES (?, ?)", p.ID, p.Tags[i].ID,
		); err != nil {
			return fmt.Errorf("failed to tag post: %w", err)
		}
	}
	return nil
}

// SaveComment inserts a comment.
func (s *Store) SaveComment(ctx context.Context, c *model.Comment) error {
	return saveComment(ctx, s.db, c)
}

func saveComment(ctx context.Context, db execer, c *model.Comment) error {
	if c.PostID == 0 {
		return errors.New("comment post is required")
	}
	parserData, err := marshalJSON(c.ParserData)
	if err != nil {
		return err
	}
	result, err := db.ExecContext(ctx,
		`INSERT INTO comments (post_id, parent_id, user_id, author, email, www, pub_date, blocked, blocked_msg,
			is_pingback, status, submitter_ip, body, raw_body, parser, parser_data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.PostID, c.ParentID, c.UserID, c.Author, c.Email, c.WWW, c.PubDate.Unix(),
		boolToInt(c.Blocked), c.BlockedMsg, boolToInt(c.IsPingback), c.Status, c.SubmitterIP,
		c.Body, c.RawBody, c.Parser, parserData,
	)
	if err != nil {
		return fmt.Errorf("failed to insert comment: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	c.ID = id
	return nil
}

// SavePage inserts a page or replaces the page with the same key.
func (s *Store) SavePage(ctx context.Context, p *model.Page) error {
	return savePage(ctx, s.db, p)
}

func savePage(ctx context.Context, db execer, p *model.Page) error {
	if err := p.Validate(); err != nil {
		return err
	}
	extra, err := marshalJSON(p.Extra)
	if err != nil {
		return err
	}
	err = db.QueryRowContext(ctx,
		`INSERT INTO pages (key, title, url, body, raw_body, extra) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET title = excluded.title, url = excluded.url, body = excluded.body,
			raw_body = excluded.raw_body, extra = excluded.extra
		RETURNING id`,
		p.Key, p.Title, p.URL, p.Body, p.RawBody, extra,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to save page %s: %w", p.Key, err)
	}
	return nil
}

// GetPost retrieves a post by ID with its tags and comments.
func (s *Store) GetPost(ctx context.Context, id int64) (*model.Post, error) {
	p, err := scanPost(s.db.QueryRowContext(ctx, selectPost+" WHERE id = ?", id))
	if err != nil {
		return nil, err
	}
	if err := s.loadPostDetails(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// CountPosts returns the number of posts.
func (s *Store) CountPosts(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return n, nil
}

func marshalJSON(v any) (string, error) {
	switch x := v.(type) {
	case map[string]any:
		if len(x) == 0 {
			return "", nil
		}
	case []string:
		if len(x) == 0 {
			return "", nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode column: %w", err)
	}
	return string(data), nil
}

func unmarshalJSON(s string, v any) error {
	if s == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("failed to decode column: %w", err)
	}
	return nil
}

// Helper functions for boolean<->int conversion (SQLite doesn't have BOOLEAN type)
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func intToBool(i int) bool {
	return i != 0
}

func unixToTime(unix int64) time.Time {
	return time.Unix(unix, 0).UTC()
}
