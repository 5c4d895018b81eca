package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/TobiSchelling/camppulse/internal/database"
	"github.com/TobiSchelling/camppulse/internal/logging"
)

const postPage = `<html><head><title>게시글</title></head><body>
<nav>메뉴 홈 게시판</nav>
<article>
<h1>과제 관련 건의</h1>
<p>이번 주 과제 마감이 너무 촉박해서 다들 밤을 새우고 있습니다. 마감을 하루만 늦춰 주시면 좋겠어요.
과제 설명도 조금 더 자세하면 좋겠습니다. 예시 코드가 있으면 이해가 훨씬 쉬울 것 같아요.</p>
<p>그리고 멘토링 시간이 부족해서 질문을 다 못 하고 있습니다. 질문 채널을 따로 만들어 주시면 좋겠습니다.</p>
</article>
</body></html>`

type fakeStore struct {
	posts     []database.Post
	bodies    map[string]string
	attempted map[string]bool
}

func newFakeStore(posts ...database.Post) *fakeStore {
	return &fakeStore{posts: posts, bodies: map[string]string{}, attempted: map[string]bool{}}
}

func (f *fakeStore) GetPostsNeedingFetch(campID string) ([]database.Post, error) { return f.posts, nil }

func (f *fakeStore) UpdatePostBody(id, body string) error {
	f.bodies[id] = body
	return nil
}

func (f *fakeStore) MarkPostFetchAttempted(id string) error {
	f.attempted[id] = true
	return nil
}

func linkPost(id, link string) database.Post {
	return database.Post{ID: id, CampID: "camp-1", Link: &link}
}

func TestFetchFillsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(postPage))
	}))
	defer srv.Close()

	store := newFakeStore(linkPost("p1", srv.URL+"/posts/1"))
	r, err := NewContentFetcher(store, 0, logging.Discard()).FetchMissingContent(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Fetched != 1 {
		t.Fatalf("expected 1 fetched, got %+v", r)
	}
	if !strings.Contains(store.bodies["p1"], "과제 마감이 너무 촉박해서") {
		t.Errorf("expected article text, got %q", store.bodies["p1"])
	}
}

func TestFetchSkipsHostAfterHTTPError(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.NotFound(w, r)
	}))
	defer srv.Close()

	store := newFakeStore(linkPost("p1", srv.URL+"/a"), linkPost("p2", srv.URL+"/b"))
	r, err := NewContentFetcher(store, 0, logging.Discard()).FetchMissingContent(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits != 1 {
		t.Errorf("expected one request before skipping the host, got %d", hits)
	}
	if r.Failed != 1 || r.Skipped != 1 {
		t.Errorf("unexpected result: %+v", r)
	}
	if !store.attempted["p1"] || !store.attempted["p2"] {
		t.Error("expected both posts marked as attempted")
	}
}

func TestFetchNothingToDo(t *testing.T) {
	r, err := NewContentFetcher(newFakeStore(), 0, logging.Discard()).FetchMissingContent(context.Background(), "camp-1")
	if err != nil || r.Fetched != 0 {
		t.Errorf("unexpected result %+v, %v", r, err)
	}
}
