package tpxa

import (
	"context"
	"iter"

	"github.com/robertmeta/tpxa/model"
)

// Source is the blog store an export reads from.
type Source interface {
	// Config returns the blog configuration in the store's iteration order.
	Config(ctx context.Context) ([]model.ConfigItem, error)
	// Users returns all users.
	Users(ctx context.Context) ([]*model.User, error)
	// Posts yields all posts, most recently updated first, each with its
	// tags and comments.
	Posts(ctx context.Context) iter.Seq2[*model.Post, error]
	// Pages yields all static pages. Stores without pages yield nothing.
	Pages(ctx context.Context) iter.Seq2[*model.Page, error]
}
