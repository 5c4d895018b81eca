// Package collect ingests posts from each camp's board feed.
package collect

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/TobiSchelling/camppulse/internal/database"
)

// PostStore stores collected posts.
type PostStore interface {
	InsertPost(p database.Post) (int64, error)
}

// Result holds the results of a collection run.
type Result struct {
	TotalFound  int
	NewPosts    int
	Duplicates  int
	FailedFeeds int
	PerCamp     map[string]int
}

// Collector pulls every camp's board feed into the post store.
type Collector struct {
	store  PostStore
	parser *FeedParser
	log    logrus.FieldLogger
	now    func() time.Time
}

// NewCollector creates a new post collector.
func NewCollector(store PostStore, maxPerFeed int, log logrus.FieldLogger) *Collector {
	return &Collector{
		store:  store,
		parser: NewFeedParser(maxPerFeed),
		log:    log,
		now:    time.Now,
	}
}

// Collect fetches the feeds of the given camps. Camps without a feed URL are
// skipped; a failing feed is logged and does not stop the others.
func (c *Collector) Collect(ctx context.Context, camps []database.Camp) *Result {
	r := &Result{PerCamp: make(map[string]int)}

	for _, camp := range camps {
		if camp.BoardFeedURL == nil || *camp.BoardFeedURL == "" {
			continue
		}
		log := c.log.WithField("camp", camp.ID)

		posts, err := c.parser.Fetch(ctx, *camp.BoardFeedURL, camp.ID, c.now())
		if err != nil {
			r.FailedFeeds++
			log.WithError(err).Warnf("Failed to parse feed %s", *camp.BoardFeedURL)
			continue
		}
		r.TotalFound += len(posts)

		for _, p := range posts {
			n, err := c.store.InsertPost(p)
			if err != nil {
				log.WithError(err).Warn("Storing post failed")
				continue
			}
			if n > 0 {
				r.NewPosts++
				r.PerCamp[camp.ID]++
			} else {
				r.Duplicates++
			}
		}
		log.Infof("Parsed %d posts, %d new", len(posts), r.PerCamp[camp.ID])
	}

	c.log.Infof("Collection complete: %d found, %d new, %d duplicates", r.TotalFound, r.NewPosts, r.Duplicates)
	return r
}
