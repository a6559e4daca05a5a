package tpxa

import (
	"context"

	"github.com/robertmeta/tpxa/model"
	"github.com/robertmeta/tpxa/xmltree"
)

// Participant takes part in an export. By itself it does nothing; it opts
// into export phases by implementing any of Setupper, DataDumper,
// UserProcessor, PostProcessor and PageProcessor.
type Participant interface {
	Name() string
}

// Setupper is called once before the configuration block is written.
type Setupper interface {
	Setup(ctx context.Context, w *Writer) error
}

// DataDumper contributes at most one top-level block, written before any
// user or entry. A nil node contributes nothing.
type DataDumper interface {
	DumpData(ctx context.Context) (*xmltree.Node, error)
}

// UserProcessor may extend the dependency definition of every user.
type UserProcessor interface {
	ProcessUser(node *xmltree.Node, user *model.User) error
}

// PostProcessor may extend every post entry before it is written.
type PostProcessor interface {
	ProcessPost(node *xmltree.Node, post *model.Post) error
}

// PageProcessor may extend every page entry before it is written.
type PageProcessor interface {
	ProcessPage(node *xmltree.Node, page *model.Page) error
}

// UserProfiles adds the contact details, privileges and extra data of users
// to their dependency definitions.
type UserProfiles struct{}

// Name implements Participant.
func (UserProfiles) Name() string { return "user-profiles" }

// ProcessUser implements UserProcessor.
func (UserProfiles) ProcessUser(node *xmltree.Node, user *model.User) error {
	node.AddText(tp("email"), user.Email)
	node.AddText(tp("www"), user.WWW)
	node.AddText(tp("real_name"), user.RealName())
	for _, p := range user.Privileges {
		node.AddText(tp("privilege"), p)
	}
	if len(user.Extra) > 0 {
		data, err := EncodePayload(user.Extra)
		if err != nil {
			return err
		}
		node.AddText(tp("extra"), data)
	}
	return nil
}

// TagDescriptions attaches tag descriptions to category elements exported
// with the category scheme.
type TagDescriptions struct{}

// Name implements Participant.
func (TagDescriptions) Name() string { return "tag-descriptions" }

// ProcessPost implements PostProcessor.
func (TagDescriptions) ProcessPost(node *xmltree.Node, post *model.Post) error {
	descriptions := make(map[string]string, len(post.Tags))
	for _, t := range post.Tags {
		if t.Description != "" {
			descriptions[t.Slug] = t.Description
		}
	}
	for _, c := range node.FindAll(atom("category")) {
		if c.AttrValue(attrScheme) != CategorySchemeURI {
			continue
		}
		if d, ok := descriptions[c.AttrValue(attrTerm)]; ok {
			c.AddText(tp("description"), d)
		}
	}
	return nil
}

// DefaultParticipants returns the participants a full export uses.
func DefaultParticipants() []Participant {
	return []Participant{UserProfiles{}, TagDescriptions{}}
}
