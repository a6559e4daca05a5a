package tpxa

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/robertmeta/tpxa/model"
	"github.com/robertmeta/tpxa/xmltree"
)

// State is the phase an export is in. Phases are passed strictly in order.
type State int

// Export phases.
const (
	StateInit State = iota
	StatePreamble
	StateConfig
	StatePluginBlocks
	StateUsers
	StateEntries
	StateDependencies
	StateDone
)

var stateNames = [...]string{"init", "preamble", "config", "plugin_blocks", "users", "entries", "dependencies", "done"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown(" + strconv.Itoa(int(s)) + ")"
	}
	return stateNames[s]
}

const timeFormat = "2006-01-02T15:04:05Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

const preambleTemplate = `<?xml version="1.0" encoding="utf-8"?>
<!--

    TextPress eXtended Atom (TPXA) export.

    This file is a superset of Atom 1.0, so any Atom reader can use at
    least the Atom subset of it.  Readers of the full format must use a
    strict, namespace-aware XML parser and match elements by namespace
    URI, never by prefix: prefixes are not stable between exports.

    Entities shared by many entries (currently users) are defined once in
    the trailing tp:dependencies block and referenced from other elements
    through their tp:dependency attribute.

-->
<a:feed xmlns:a="%s" xmlns:tp="%s">` +
	`<a:title>%s</a:title>` +
	`<a:subtitle>%s</a:subtitle>` +
	`<a:id>%s</a:id>` +
	`<a:generator uri="%s" version="%s">%s</a:generator>` +
	`<a:link href="%s"/>` +
	`<a:updated>%s</a:updated>`

const epilog = `</a:feed>`

// errStopped signals that the consumer stopped pulling chunks.
var errStopped = errors.New("consumer stopped")

// Writer exports a blog as TPXA. A Writer produces exactly one document.
type Writer struct {
	src    Source
	opts   ExportOptions
	logger *slog.Logger
	now    func() time.Time

	out   *xmltree.Writer
	deps  DependencyTable
	users map[int64]string
	byID  map[int64]*model.User
	order []*model.User

	state State
	used  bool
}

// NewWriter creates a Writer reading from src.
func NewWriter(src Source, opts ExportOptions) (*Writer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	w := &Writer{
		src:    src,
		opts:   opts,
		logger: opts.Logger,
		now:    opts.Now,
		out:    xmltree.NewWriter(prefixes),
		users:  make(map[int64]string),
		byID:   make(map[int64]*model.User),
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.now == nil {
		w.now = time.Now
	}
	return w, nil
}

// State returns the phase the export is in.
func (w *Writer) State() State {
	return w.state
}

// Dependencies exposes the dependency table so participants can register
// definitions of their own.
func (w *Writer) Dependencies() *DependencyTable {
	return &w.deps
}

// UserDependency returns the dependency id a user was registered under.
func (w *Writer) UserDependency(userID int64) (string, bool) {
	id, ok := w.users[userID]
	return id, ok
}

// Generate returns the export as a sequence of chunks that concatenate to
// one well-formed document. The sequence can be consumed once; a consumer
// that stops early simply abandons the export.
func (w *Writer) Generate(ctx context.Context) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		if w.used {
			yield(nil, ErrAlreadyGenerated)
			return
		}
		w.used = true

		emit := func(chunk []byte) error {
			if !yield(chunk, nil) {
				return errStopped
			}
			return nil
		}
		if err := w.generate(ctx, emit); err != nil && !errors.Is(err, errStopped) {
			yield(nil, err)
		}
	}
}

// WriteTo drains the export into dst.
func (w *Writer) WriteTo(ctx context.Context, dst io.Writer) (int64, error) {
	var total int64
	for chunk, err := range w.Generate(ctx) {
		if err != nil {
			return total, err
		}
		n, err := dst.Write(chunk)
		total += int64(n)
		if err != nil {
			return total, fmt.Errorf("failed to write export: %w", err)
		}
	}
	return total, nil
}

func (w *Writer) enter(next State) {
	if next != w.state+1 {
		panic(fmt.Sprintf("tpxa: export phase %s cannot follow %s", next, w.state))
	}
	w.state = next
	w.logger.Debug("export phase", "phase", next.String())
}

func (w *Writer) dump(n *xmltree.Node) ([]byte, error) {
	chunk, err := w.out.Dump(n)
	if err != nil {
		return nil, NewError(CodeSerialization, err, "failed to serialize %s", n.Name.Local)
	}
	return chunk, nil
}

func (w *Writer) generate(ctx context.Context, emit func([]byte) error) error {
	now := w.now().UTC()

	nextPost, stopPosts := iter.Pull2(w.src.Posts(ctx))
	defer stopPosts()

	first, err, hasPosts := nextPost()
	if hasPosts && err != nil {
		return fmt.Errorf("failed to read posts: %w", err)
	}
	lastUpdate := now
	if hasPosts {
		lastUpdate = first.LastUpdate.UTC()
	}

	cfg, err := w.src.Config(ctx)
	if err != nil {
		return fmt.Errorf("failed to read configuration: %w", err)
	}
	values := make(map[string]string, len(cfg))
	for _, item := range cfg {
		values[item.Key] = item.Value
	}

	w.enter(StatePreamble)
	preamble, err := buildPreamble(values, lastUpdate)
	if err != nil {
		return err
	}
	if err := emit([]byte(preamble)); err != nil {
		return err
	}

	for _, p := range w.opts.Participants {
		if s, ok := p.(Setupper); ok {
			if err := s.Setup(ctx, w); err != nil {
				return fmt.Errorf("participant %s setup: %w", p.Name(), err)
			}
		}
	}

	w.enter(StateConfig)
	cfgNode := xmltree.New(tp("configuration"))
	for _, item := range cfg {
		cfgNode.AddText(tp("item"), item.Value, xmltree.Attr{Name: attrKey, Value: item.Key})
	}
	if err := w.emitNode(cfgNode, emit); err != nil {
		return err
	}

	w.enter(StatePluginBlocks)
	for _, p := range w.opts.Participants {
		d, ok := p.(DataDumper)
		if !ok {
			continue
		}
		n, err := d.DumpData(ctx)
		if err != nil {
			return fmt.Errorf("participant %s dump: %w", p.Name(), err)
		}
		if n == nil {
			continue
		}
		if err := w.emitNode(n, emit); err != nil {
			return err
		}
	}

	w.enter(StateUsers)
	users, err := w.src.Users(ctx)
	if err != nil {
		return fmt.Errorf("failed to read users: %w", err)
	}
	for _, u := range users {
		if err := w.registerUser(u); err != nil {
			return err
		}
	}

	w.enter(StateEntries)
	posts := 0
	for post := first; hasPosts; post, err, hasPosts = nextPost() {
		if err != nil {
			return fmt.Errorf("failed to read posts: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		entry, err := w.dumpPost(post)
		if err != nil {
			return err
		}
		if err := w.emitNode(entry, emit); err != nil {
			return err
		}
		posts++
	}

	pages := 0
	for page, err := range w.src.Pages(ctx) {
		if err != nil {
			return fmt.Errorf("failed to read pages: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		entry, err := w.dumpPage(page, now)
		if err != nil {
			return err
		}
		if err := w.emitNode(entry, emit); err != nil {
			return err
		}
		pages++
	}

	w.enter(StateDependencies)
	if w.deps.Len() > 0 {
		if err := emit([]byte("<tp:dependencies>")); err != nil {
			return err
		}
		for _, n := range w.deps.Flush() {
			if err := w.emitNode(n, emit); err != nil {
				return err
			}
		}
		if err := emit([]byte("</tp:dependencies>")); err != nil {
			return err
		}
	}

	w.enter(StateDone)
	w.logger.Debug("export finished", "users", len(users), "posts", posts, "pages", pages)
	return emit([]byte(epilog))
}

func buildPreamble(values map[string]string, lastUpdate time.Time) (string, error) {
	blogURL := values[model.ConfigBlogURL]
	fields := []struct {
		name  string
		value string
		attr  bool
	}{
		{name: "title", value: values[model.ConfigBlogTitle]},
		{name: "subtitle", value: values[model.ConfigBlogTagline]},
		{name: "id", value: BuildTagURI(blogURL, lastUpdate, "tpxa_export", "full")},
		{name: "generator version", value: Version, attr: true},
		{name: "link", value: blogURL, attr: true},
	}
	escaped := make([]any, len(fields))
	for i, f := range fields {
		var err error
		if f.attr {
			escaped[i], err = xmltree.EscapeAttr(f.value)
		} else {
			escaped[i], err = xmltree.EscapeString(f.value)
		}
		if err != nil {
			return "", NewError(CodeSerialization, err, "failed to serialize feed %s", f.name)
		}
	}
	return fmt.Sprintf(preambleTemplate,
		AtomNS, TextPressNS,
		escaped[0], escaped[1], escaped[2],
		GeneratorURI, escaped[3], GeneratorName,
		escaped[4],
		formatTime(lastUpdate),
	), nil
}

func (w *Writer) emitNode(n *xmltree.Node, emit func([]byte) error) error {
	chunk, err := w.dump(n)
	if err != nil {
		return err
	}
	return emit(chunk)
}

func (w *Writer) registerUser(u *model.User) error {
	id, node, err := w.deps.Register(tp("user"))
	if err != nil {
		return err
	}
	node.AddText(tp("username"), u.Username)
	node.AddText(tp("role"), strconv.Itoa(int(u.Role)))
	node.AddText(tp("pw_hash"), encodeBase64(u.PwHash))
	node.AddText(tp("display_name"), u.DisplayName)
	node.AddText(tp("first_name"), u.FirstName)
	node.AddText(tp("last_name"), u.LastName)
	node.AddText(tp("description"), u.Description)

	for _, p := range w.opts.Participants {
		if up, ok := p.(UserProcessor); ok {
			if err := up.ProcessUser(node, u); err != nil {
				return fmt.Errorf("participant %s user %s: %w", p.Name(), u.Username, err)
			}
		}
	}

	w.users[u.ID] = id
	w.byID[u.ID] = u
	w.order = append(w.order, u)
	return nil
}

func (w *Writer) addAuthor(entry *xmltree.Node, u *model.User) {
	author := entry.SubElement(atom("author"))
	author.Set(dependencyAttr, w.deps.Reference(w.users[u.ID]))
	author.AddText(atom("name"), u.Name())
	author.AddText(atom("email"), u.Email)
}

func (w *Writer) dumpPost(post *model.Post) (*xmltree.Node, error) {
	author, ok := w.byID[post.AuthorID]
	if !ok {
		return nil, referenceErrorf("post %d references unknown user %d", post.ID, post.AuthorID)
	}

	entry := xmltree.New(atom("entry"))
	entry.Set(xmlBase, post.URL)
	entry.AddText(atom("title"), post.Title, xmltree.Attr{Name: attrType, Value: "text"})
	entry.AddText(atom("id"), post.UID)
	entry.AddText(atom("updated"), formatTime(post.LastUpdate))
	entry.AddText(atom("published"), formatTime(post.PubDate))
	entry.SubElement(atom("link"), xmltree.Attr{Name: attrHref, Value: post.URL})
	w.addAuthor(entry, author)

	entry.AddText(tp("slug"), post.Slug)
	entry.AddText(tp("id"), strconv.FormatInt(post.ID, 10))
	entry.AddText(tp("comments_enabled"), yesNo(post.CommentsEnabled))
	entry.AddText(tp("pings_enabled"), yesNo(post.PingsEnabled))
	entry.AddText(tp("status"), strconv.Itoa(post.Status))
	entry.AddText(tp("content_type"), ContentTypeEntry)

	entry.AddText(atom("content"), post.Body, xmltree.Attr{Name: attrType, Value: "html"})
	if post.Intro != "" {
		entry.AddText(atom("summary"), post.Intro, xmltree.Attr{Name: attrType, Value: "html"})
	}
	data, err := EncodePayload(PostData{
		Extra:      post.Extra,
		RawBody:    post.RawBody,
		RawIntro:   post.RawIntro,
		Parser:     post.Parser,
		ParserData: post.ParserData,
	})
	if err != nil {
		return nil, err
	}
	entry.AddText(tp("data"), data)

	for i := range post.Comments {
		if err := w.addComment(entry, &post.Comments[i]); err != nil {
			return nil, err
		}
	}

	for _, tag := range post.Tags {
		cat := entry.SubElement(atom("category"),
			xmltree.Attr{Name: attrTerm, Value: tag.Slug},
			xmltree.Attr{Name: attrScheme, Value: Classify(tag, w.opts)},
		)
		if tag.Name != "" && tag.Name != tag.Slug {
			cat.Set(attrLabel, tag.Name)
		}
	}

	for _, p := range w.opts.Participants {
		if pp, ok := p.(PostProcessor); ok {
			if err := pp.ProcessPost(entry, post); err != nil {
				return nil, fmt.Errorf("participant %s post %d: %w", p.Name(), post.ID, err)
			}
		}
	}
	return entry, nil
}

func (w *Writer) addComment(entry *xmltree.Node, c *model.Comment) error {
	comment := entry.SubElement(tp("comment"))
	comment.AddText(tp("id"), strconv.FormatInt(c.ID, 10))

	author := comment.SubElement(tp("author"))
	if c.UserID != nil {
		if id, ok := w.users[*c.UserID]; ok {
			author.Set(dependencyAttr, w.deps.Reference(id))
		}
	}
	author.AddText(tp("name"), c.Author)
	author.AddText(tp("email"), c.Email)
	author.AddText(tp("uri"), c.WWW)

	comment.AddText(tp("published"), formatTime(c.PubDate))
	comment.AddText(tp("blocked"), yesNo(c.Blocked))
	comment.AddText(tp("is_pingback"), yesNo(c.IsPingback))
	comment.AddText(tp("blocked_msg"), c.BlockedMsg)
	parent := ""
	if c.ParentID != nil {
		parent = strconv.FormatInt(*c.ParentID, 10)
	}
	comment.AddText(tp("parent"), parent)
	comment.AddText(tp("status"), strconv.Itoa(c.Status))
	ip := c.SubmitterIP
	if ip == "" {
		ip = "0.0.0.0"
	}
	comment.AddText(tp("submitter_ip"), ip)

	data, err := EncodePayload(CommentData{
		RawBody:    c.RawBody,
		Parser:     c.Parser,
		ParserData: c.ParserData,
	})
	if err != nil {
		return err
	}
	comment.AddText(tp("data"), data)
	return nil
}

// pageAuthor picks the user pages are attributed to: the first manager, or
// the first user when nobody manages the blog.
func (w *Writer) pageAuthor() *model.User {
	for _, u := range w.order {
		if u.IsManager() {
			return u
		}
	}
	if len(w.order) > 0 {
		return w.order[0]
	}
	return nil
}

func (w *Writer) dumpPage(page *model.Page, now time.Time) (*xmltree.Node, error) {
	id := strconv.FormatInt(page.ID, 10)

	entry := xmltree.New(atom("entry"))
	entry.Set(xmlBase, page.URL)
	entry.AddText(atom("title"), page.Title, xmltree.Attr{Name: attrType, Value: "text"})
	entry.AddText(atom("id"), id)
	entry.AddText(atom("updated"), formatTime(now))
	entry.AddText(atom("published"), formatTime(now))
	entry.SubElement(atom("link"), xmltree.Attr{Name: attrHref, Value: page.URL})
	if author := w.pageAuthor(); author != nil {
		w.addAuthor(entry, author)
	}

	entry.AddText(tp("slug"), page.Key)
	entry.AddText(tp("id"), id)
	entry.AddText(atom("content"), page.Body, xmltree.Attr{Name: attrType, Value: "html"})
	entry.AddText(tp("content_type"), ContentTypePage)

	data, err := EncodePayload(PageData{Extra: page.Extra, RawBody: page.RawBody})
	if err != nil {
		return nil, err
	}
	entry.AddText(tp("data"), data)

	for _, p := range w.opts.Participants {
		if pp, ok := p.(PageProcessor); ok {
			if err := pp.ProcessPage(entry, page); err != nil {
				return nil, fmt.Errorf("participant %s page %d: %w", p.Name(), page.ID, err)
			}
		}
	}
	return entry, nil
}

// BuildTagURI builds a tag URI (RFC 4151) for a resource of the blog at
// blogURL, dated by t.
func BuildTagURI(blogURL string, t time.Time, section, id string) string {
	var host, path string
	if u, err := url.Parse(blogURL); err == nil {
		host = u.Host
		path = strings.TrimSuffix(u.Path, "/")
	}
	return fmt.Sprintf("tag:%s,%s:%s/%s;%s", host, t.UTC().Format("2006-01-02"), path, section, id)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
