// Package fetch fills in the body of link-only posts from their permalink.
package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	readability "github.com/go-shiori/go-readability"
	"github.com/sirupsen/logrus"

	"github.com/TobiSchelling/camppulse/internal/database"
)

const (
	DefaultTimeout = 15 * time.Second
	minBodyRunes   = 2
	maxPageBytes   = 4 << 20
)

// Store is the post storage the fetcher reads from and updates.
type Store interface {
	GetPostsNeedingFetch(campID string) ([]database.Post, error)
	UpdatePostBody(postID, body string) error
	MarkPostFetchAttempted(postID string) error
}

// Result holds the results of a content fetch run.
type Result struct {
	Fetched int
	Failed  int
	Skipped int
}

// ContentFetcher fetches post text via HTTP + readability extraction.
type ContentFetcher struct {
	store  Store
	client *http.Client
	log    logrus.FieldLogger
}

// NewContentFetcher creates a new content fetcher.
func NewContentFetcher(store Store, timeout time.Duration, log logrus.FieldLogger) *ContentFetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ContentFetcher{
		store: store,
		log:   log,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// FetchMissingContent fetches bodies for posts that only carry a link. An
// empty campID covers every camp. After an HTTP error from a host, the
// remaining posts on that host are skipped for this run.
func (f *ContentFetcher) FetchMissingContent(ctx context.Context, campID string) (*Result, error) {
	posts, err := f.store.GetPostsNeedingFetch(campID)
	if err != nil {
		return nil, err
	}
	result := &Result{}
	if len(posts) == 0 {
		f.log.Info("No posts need content fetching")
		return result, nil
	}

	failedHosts := make(map[string]struct{})
	for _, p := range posts {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if p.Link == nil {
			continue
		}
		host := ""
		if u, err := url.Parse(*p.Link); err == nil {
			host = strings.ToLower(u.Host)
		}
		log := f.log.WithFields(logrus.Fields{"camp": p.CampID, "post": p.ID})

		if _, failed := failedHosts[host]; failed {
			f.markAttempted(log, p.ID)
			result.Skipped++
			continue
		}

		body, err := f.fetchBody(ctx, *p.Link)
		if err != nil {
			f.markAttempted(log, p.ID)
			result.Failed++
			var he *httpError
			if errors.As(err, &he) && host != "" {
				failedHosts[host] = struct{}{}
				log.Warnf("HTTP %v for %s, skipping remaining posts from %s", err, *p.Link, host)
			} else {
				log.WithError(err).Warnf("Fetching %s failed", *p.Link)
			}
			continue
		}

		if utf8.RuneCountInString(body) < minBodyRunes {
			f.markAttempted(log, p.ID)
			result.Failed++
			log.Debugf("No extractable content from %s", *p.Link)
			continue
		}
		if err := f.store.UpdatePostBody(p.ID, body); err != nil {
			log.WithError(err).Warn("Storing fetched body failed")
			result.Failed++
			continue
		}
		result.Fetched++
	}

	f.log.Infof("Content fetch complete: %d fetched, %d failed, %d skipped", result.Fetched, result.Failed, result.Skipped)
	return result, nil
}

func (f *ContentFetcher) markAttempted(log logrus.FieldLogger, postID string) {
	if err := f.store.MarkPostFetchAttempted(postID); err != nil {
		log.WithError(err).Warn("Marking fetch attempt failed")
	}
}

func (f *ContentFetcher) fetchBody(ctx context.Context, link string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "camppulse/1.0 (feedback board reader)")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &httpError{code: resp.StatusCode}
	}

	parsedURL, _ := url.Parse(link)
	article, err := readability.FromReader(io.LimitReader(resp.Body, maxPageBytes), parsedURL)
	if err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(article.TextContent), " "), nil
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return http.StatusText(e.code)
}
