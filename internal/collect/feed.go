package collect

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/TobiSchelling/camppulse/internal/database"
)

const (
	DefaultMaxPerFeed = 200
	anonymousAuthor   = "anonymous"
	pseudonymBytes    = 8
)

// FeedParser reads a camp's board feed (RSS or Atom) into posts.
type FeedParser struct {
	parser     *gofeed.Parser
	maxPerFeed int
}

// NewFeedParser creates a new FeedParser.
func NewFeedParser(maxPerFeed int) *FeedParser {
	if maxPerFeed <= 0 {
		maxPerFeed = DefaultMaxPerFeed
	}
	return &FeedParser{parser: gofeed.NewParser(), maxPerFeed: maxPerFeed}
}

// Fetch downloads and parses the feed at feedURL.
func (fp *FeedParser) Fetch(ctx context.Context, feedURL, campID string, now time.Time) ([]database.Post, error) {
	feed, err := fp.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, err
	}
	return fp.Posts(feed, campID, now), nil
}

// Posts maps feed items to student posts. Items without an id or link are
// skipped; undated items are stamped with now.
func (fp *FeedParser) Posts(feed *gofeed.Feed, campID string, now time.Time) []database.Post {
	var posts []database.Post
	for _, item := range feed.Items {
		if len(posts) >= fp.maxPerFeed {
			break
		}
		if p, ok := postFromItem(item, campID, now); ok {
			posts = append(posts, p)
		}
	}
	return posts
}

func postFromItem(item *gofeed.Item, campID string, now time.Time) (database.Post, bool) {
	id := strings.TrimSpace(item.GUID)
	if id == "" {
		id = strings.TrimSpace(item.Link)
	}
	if id == "" {
		return database.Post{}, false
	}

	created := now
	if item.PublishedParsed != nil {
		created = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		created = *item.UpdatedParsed
	}

	var content string
	if item.Content != "" {
		content = stripHTML(item.Content)
	} else if item.Description != "" {
		content = stripHTML(item.Description)
	}
	title := strings.TrimSpace(item.Title)

	p := database.Post{
		ID:        id,
		CampID:    campID,
		AuthorID:  Pseudonym(authorName(item)),
		Role:      database.RoleStudent,
		CreatedAt: created.UTC(),
	}
	if link := strings.TrimSpace(item.Link); link != "" {
		p.Link = &link
	}

	switch {
	case content != "" && title != "" && !strings.HasPrefix(content, title):
		p.Body = title + "\n" + content
	case content != "":
		p.Body = content
	case p.Link == nil:
		p.Body = title
	}
	if p.Body != "" {
		p.ContentFetched = true
	}
	return p, true
}

func authorName(item *gofeed.Item) string {
	if item.Author != nil && strings.TrimSpace(item.Author.Name) != "" {
		return item.Author.Name
	}
	for _, a := range item.Authors {
		if a != nil && strings.TrimSpace(a.Name) != "" {
			return a.Name
		}
	}
	return ""
}

// Pseudonym returns a stable anonymous author id for name. Empty names map
// to "anonymous".
func Pseudonym(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return anonymousAuthor
	}
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:pseudonymBytes])
}

func stripHTML(text string) string {
	var result strings.Builder
	inTag := false
	for _, r := range text {
		switch {
		case r == '<':
			inTag = true
			result.WriteRune(' ')
		case r == '>':
			inTag = false
		case !inTag:
			result.WriteRune(r)
		}
	}

	s := entityReplacer.Replace(result.String())
	return strings.Join(strings.Fields(s), " ")
}

var entityReplacer = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
)
