package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"

	"github.com/robertmeta/tpxa/model"
)

// pageSize is the number of posts an export holds in memory at a time.
const pageSize = 50

const selectPost = `SELECT id, uid, slug, title, url, author_id, pub_date, last_update, comments_enabled, pings_enabled,
	status, body, intro, raw_body, raw_intro, parser, parser_data, extra FROM posts`

// Config returns the configuration in insertion order.
func (s *Store) Config(ctx context.Context) ([]model.ConfigItem, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM config ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query config: %w", err)
	}
	defer rows.Close()

	var items []model.ConfigItem
	for rows.Next() {
		var item model.ConfigItem
		if err := rows.Scan(&item.Key, &item.Value); err != nil {
			return nil, fmt.Errorf("failed to scan config: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ConfigValue returns one configuration value, or "" when unset.
func (s *Store) ConfigValue(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get config %s: %w", key, err)
	}
	return value, nil
}

// Users returns all users in creation order.
func (s *Store) Users(ctx context.Context) ([]*model.User, error) {
	rows, err := s.db.QueryContext(ctx, selectUser+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ListPosts retrieves posts, most recently updated first, without tags and
// comments.
func (s *Store) ListPosts(ctx context.Context, opts QueryOptions) ([]*model.Post, error) {
	query := selectPost + " WHERE 1=1"
	var args []any

	if opts.Tag != "" {
		query += " AND id IN (SELECT pt.post_id FROM post_tags pt JOIN tags t ON t.id = pt.tag_id WHERE t.slug = ?)"
		args = append(args, opts.Tag)
	}
	if opts.Since != nil {
		query += " AND last_update >= ?"
		args = append(args, opts.Since.Unix())
	}

	query += " ORDER BY last_update DESC, id DESC"

	// SQLite needs a LIMIT clause for OFFSET
	if opts.Limit > 0 || opts.Offset > 0 {
		limit := opts.Limit
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	var posts []*model.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// Posts yields every post with tags and comments, most recently updated
// first. Posts are read one page at a time.
func (s *Store) Posts(ctx context.Context) iter.Seq2[*model.Post, error] {
	return func(yield func(*model.Post, error) bool) {
		for offset := 0; ; offset += pageSize {
			page, err := s.ListPosts(ctx, QueryOptions{Limit: pageSize, Offset: offset})
			if err != nil {
				yield(nil, err)
				return
			}
			for _, p := range page {
				if err := s.loadPostDetails(ctx, p); err != nil {
					yield(nil, err)
					return
				}
				if !yield(p, nil) {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
		}
	}
}

// Pages yields all static pages ordered by key.
func (s *Store) Pages(ctx context.Context) iter.Seq2[*model.Page, error] {
	return func(yield func(*model.Page, error) bool) {
		pages, err := s.listPages(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, p := range pages {
			if !yield(p, nil) {
				return
			}
		}
	}
}

func (s *Store) listPages(ctx context.Context) ([]*model.Page, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, key, title, url, body, raw_body, extra FROM pages ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("failed to query pages: %w", err)
	}
	defer rows.Close()

	var pages []*model.Page
	for rows.Next() {
		p := &model.Page{}
		var extra string
		if err := rows.Scan(&p.ID, &p.Key, &p.Title, &p.URL, &p.Body, &p.RawBody, &extra); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		if err := unmarshalJSON(extra, &p.Extra); err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

func scanPost(row scanner) (*model.Post, error) {
	p := &model.Post{}
	var pubDate, lastUpdate int64
	var commentsEnabled, pingsEnabled int
	var parserData, extra string

	err := row.Scan(&p.ID, &p.UID, &p.Slug, &p.Title, &p.URL, &p.AuthorID, &pubDate, &lastUpdate,
		&commentsEnabled, &pingsEnabled, &p.Status, &p.Body, &p.Intro, &p.RawBody, &p.RawIntro,
		&p.Parser, &parserData, &extra)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("post %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan post: %w", err)
	}

	p.PubDate = unixToTime(pubDate)
	p.LastUpdate = unixToTime(lastUpdate)
	p.CommentsEnabled = intToBool(commentsEnabled)
	p.PingsEnabled = intToBool(pingsEnabled)
	if err := unmarshalJSON(parserData, &p.ParserData); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(extra, &p.Extra); err != nil {
		return nil, err
	}
	return p, nil
}

// loadPostDetails attaches tags and comments. It must not run while another
// result set is open: the store uses a single connection.
func (s *Store) loadPostDetails(ctx context.Context, p *model.Post) error {
	tags, err := s.postTags(ctx, p.ID)
	if err != nil {
		return err
	}
	comments, err := s.postComments(ctx, p.ID)
	if err != nil {
		return err
	}
	p.Tags = tags
	p.Comments = comments
	return nil
}

func (s *Store) postTags(ctx context.Context, postID int64) ([]model.Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.slug, t.name, t.description, t.is_category FROM tags t
		JOIN post_tags pt ON pt.tag_id = t.id WHERE pt.post_id = ? ORDER BY t.slug`,
		postID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	var tags []model.Tag
	for rows.Next() {
		var t model.Tag
		var isCategory int
		if err := rows.Scan(&t.ID, &t.Slug, &t.Name, &t.Description, &isCategory); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		t.IsCategory = intToBool(isCategory)
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func (s *Store) postComments(ctx context.Context, postID int64) ([]model.Comment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, post_id, parent_id, user_id, author, email, www, pub_date, blocked, blocked_msg, is_pingback,
			status, submitter_ip, body, raw_body, parser, parser_data
		FROM comments WHERE post_id = ? ORDER BY pub_date, id`,
		postID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	defer rows.Close()

	var comments []model.Comment
	for rows.Next() {
		var c model.Comment
		var parentID, userID sql.NullInt64
		var pubDate int64
		var blocked, isPingback int
		var parserData string
		if err := rows.Scan(&c.ID, &c.PostID, &parentID, &userID, &c.Author, &c.Email, &c.WWW, &pubDate,
			&blocked, &c.BlockedMsg, &isPingback, &c.Status, &c.SubmitterIP, &c.Body, &c.RawBody,
			&c.Parser, &parserData); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		if parentID.Valid {
			c.ParentID = &parentID.Int64
		}
		if userID.Valid {
			c.UserID = &userID.Int64
		}
		c.PubDate = unixToTime(pubDate)
		c.Blocked = intToBool(blocked)
		c.IsPingback = intToBool(isPingback)
		if err := unmarshalJSON(parserData, &c.ParserData); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}
