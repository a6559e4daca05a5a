package store

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/robertmeta/tpxa/model"
	"github.com/robertmeta/tpxa/tpxa"
)

// ApplyResult counts what an import added to the store.
type ApplyResult struct {
	Authors    int `json:"authors"`
	Tags       int `json:"tags"`
	Categories int `json:"categories"`
	Posts      int `json:"posts"`
	Pages      int `json:"pages"`
	Comments   int `json:"comments"`
	// Skipped counts posts whose UID already existed.
	Skipped int `json:"skipped"`
}

// Apply writes a decoded blog into the store in one transaction. Authors are
// matched to existing users by username, tags and categories by slug. Posts
// whose UID is already present are skipped together with their comments.
func (s *Store) Apply(ctx context.Context, blog *tpxa.Blog) (*ApplyResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	a := &applier{
		tx:         tx,
		result:     &ApplyResult{},
		authors:    make(map[*tpxa.Author]int64),
		tags:       make(map[*tpxa.Tag]model.Tag),
		categories: make(map[*tpxa.Category]model.Tag),
	}
	if err := a.apply(ctx, blog); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit import: %w", err)
	}
	return a.result, nil
}

type applier struct {
	tx     execer
	result *ApplyResult

	authors    map[*tpxa.Author]int64
	tags       map[*tpxa.Tag]model.Tag
	categories map[*tpxa.Category]model.Tag
}

func (a *applier) apply(ctx context.Context, blog *tpxa.Blog) error {
	for _, key := range slices.Sorted(maps.Keys(blog.Configuration)) {
		if err := setConfig(ctx, a.tx, key, blog.Configuration[key]); err != nil {
			return err
		}
	}

	for _, author := range blog.Authors {
		if _, err := a.author(ctx, author); err != nil {
			return err
		}
	}
	for _, t := range blog.Tags {
		if _, err := a.tag(ctx, t); err != nil {
			return err
		}
	}
	for _, c := range blog.Categories {
		if _, err := a.category(ctx, c); err != nil {
			return err
		}
	}

	for _, post := range blog.Posts {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		if post.IsPage() {
			err = a.page(ctx, post)
		} else {
			err = a.post(ctx, post)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *applier) author(ctx context.Context, author *tpxa.Author) (int64, error) {
	if id, ok := a.authors[author]; ok {
		return id, nil
	}

	username := author.Username
	if username == "" {
		username = author.Email
	}
	if username == "" {
		username = "anonymous"
	}

	existing, err := scanUser(a.tx.QueryRowContext(ctx, selectUser+" WHERE username = ?", username))
	switch {
	case err == nil:
		a.authors[author] = existing.ID
		return existing.ID, nil
	case !errors.Is(err, ErrNotFound):
		return 0, err
	}

	u := &model.User{
		Username:    username,
		Email:       author.Email,
		WWW:         author.WWW,
		PwHash:      author.PwHash,
		Role:        author.Role,
		DisplayName: author.DisplayName,
		FirstName:   author.FirstName,
		LastName:    author.LastName,
		Description: author.Description,
		Privileges:  author.Privileges,
		Extra:       author.Extra,
	}
	if u.DisplayName == "" && author.RealName != "" {
		u.DisplayName = author.RealName
	}
	if err := saveUser(ctx, a.tx, u); err != nil {
		return 0, err
	}
	a.authors[author] = u.ID
	a.result.Authors++
	return u.ID, nil
}

func (a *applier) tag(ctx context.Context, t *tpxa.Tag) (model.Tag, error) {
	if tag, ok := a.tags[t]; ok {
		return tag, nil
	}
	tag := model.Tag{Slug: t.Slug, Name: t.Name}
	if tag.Name == "" {
		tag.Name = t.Slug
	}
	if err := saveTag(ctx, a.tx, &tag); err != nil {
		return tag, err
	}
	a.tags[t] = tag
	a.result.Tags++
	return tag, nil
}

func (a *applier) category(ctx context.Context, c *tpxa.Category) (model.Tag, error) {
	if tag, ok := a.categories[c]; ok {
		return tag, nil
	}
	tag := model.Tag{Slug: c.Slug, Name: c.Name, Description: c.Description, IsCategory: true}
	if tag.Name == "" {
		tag.Name = c.Slug
	}
	if err := saveTag(ctx, a.tx, &tag); err != nil {
		return tag, err
	}
	a.categories[c] = tag
	a.result.Categories++
	return tag, nil
}

func (a *applier) post(ctx context.Context, post *tpxa.Post) error {
	var exists int
	if err := a.tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts WHERE uid = ?", post.UID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to look up post %s: %w", post.UID, err)
	}
	if exists > 0 && post.UID != "" {
		a.result.Skipped++
		return nil
	}

	if post.Author == nil {
		return fmt.Errorf("post %q has no author", post.Slug)
	}
	authorID, err := a.author(ctx, post.Author)
	if err != nil {
		return err
	}

	p := &model.Post{
		UID:             post.UID,
		Slug:            post.Slug,
		Title:           post.Title,
		URL:             post.Link,
		AuthorID:        authorID,
		PubDate:         post.Published,
		LastUpdate:      post.Updated,
		CommentsEnabled: post.CommentsEnabled,
		PingsEnabled:    post.PingsEnabled,
		Status:          post.Status,
		Body:            post.Body,
		Intro:           post.Intro,
		RawBody:         post.RawBody,
		RawIntro:        post.RawIntro,
		Parser:          post.Parser,
		ParserData:      post.ParserData,
		Extra:           post.Extra,
	}
	if p.Slug == "" {
		p.Slug = post.UID
	}
	if p.LastUpdate.IsZero() {
		p.LastUpdate = time.Now().UTC()
	}
	for _, t := range post.Tags {
		tag, err := a.tag(ctx, t)
		if err != nil {
			return err
		}
		p.Tags = append(p.Tags, tag)
	}
	for _, c := range post.Categories {
		tag, err := a.category(ctx, c)
		if err != nil {
			return err
		}
		p.Tags = append(p.Tags, tag)
	}
	if err := savePost(ctx, a.tx, p); err != nil {
		return err
	}
	a.result.Posts++

	return a.comments(ctx, p.ID, post.Comments)
}

// comments inserts the comments of one post, then links parents in a second
// pass so declaration order does not matter.
func (a *applier) comments(ctx context.Context, postID int64, comments []*tpxa.Comment) error {
	ids := make(map[*tpxa.Comment]int64, len(comments))
	for _, c := range comments {
		mc := &model.Comment{
			PostID:      postID,
			Author:      c.Author,
			Email:       c.Email,
			WWW:         c.WWW,
			PubDate:     c.Published,
			Blocked:     c.Blocked,
			BlockedMsg:  c.BlockedMsg,
			IsPingback:  c.IsPingback,
			Status:      c.Status,
			SubmitterIP: c.SubmitterIP,
			Body:        c.Body,
			RawBody:     c.Body,
			Parser:      c.Parser,
			ParserData:  c.ParserData,
		}
		if c.User != nil {
			uid, err := a.author(ctx, c.User)
			if err != nil {
				return err
			}
			mc.UserID = &uid
		}
		if err := saveComment(ctx, a.tx, mc); err != nil {
			return err
		}
		ids[c] = mc.ID
		a.result.Comments++
	}

	for _, c := range comments {
		if c.Parent == nil {
			continue
		}
		parentID, ok := ids[c.Parent]
		if !ok {
			return fmt.Errorf("comment %d has a parent outside its post", c.ID)
		}
		if _, err := a.tx.ExecContext(ctx, "UPDATE comments SET parent_id = ? WHERE id = ?", parentID, ids[c]); err != nil {
			return fmt.Errorf("failed to link comment parent: %w", err)
		}
	}
	return nil
}

func (a *applier) page(ctx context.Context, post *tpxa.Post) error {
	key := post.Slug
	if key == "" {
		key = post.UID
	}
	p := &model.Page{
		Key:     key,
		Title:   post.Title,
		URL:     post.Link,
		Body:    post.Body,
		RawBody: post.RawBody,
		Extra:   post.Extra,
	}
	if err := savePage(ctx, a.tx, p); err != nil {
		return err
	}
	a.result.Pages++
	return nil
}
