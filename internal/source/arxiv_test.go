package source

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/newsdispatcher/internal/model"
	"github.com/hitoshi/newsdispatcher/internal/security"
)

const arxivAtom = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
<title>ArXiv Query Results</title>
<entry>
<id>http://arxiv.org/abs/2506.01001v1</id>
<title>Scaling Laws for  Sparse Models</title>
<link href="http://arxiv.org/abs/2506.01001v1" rel="alternate" type="text/html"/>
<published>2025-06-12T17:59:00Z</published>
<updated>2025-06-12T17:59:00Z</updated>
</entry>
<entry>
<id>http://arxiv.org/abs/2401.00002v1</id>
<title>An Older Paper</title>
<link href="http://arxiv.org/abs/2401.00002v1" rel="alternate" type="text/html"/>
<published>2024-01-05T10:00:00Z</published>
<updated>2024-01-05T10:00:00Z</updated>
</entry>
</feed>`

func newTestArxivFetcher(t *testing.T, client *http.Client, endpoint string) *ArxivFetcher {
	t.Helper()
	var buf bytes.Buffer
	f := NewArxivFetcher(client, security.NewTitleSanitizer(), newTestLogger(&buf), 3)
	f.endpoint = endpoint
	f.now = func() time.Time { return fixedNow }
	return f
}

func TestArxivFetcher_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if got := q.Get("search_query"); got != "all:LLM" {
			t.Errorf("search_queryパラメータ = %q, want all:LLM", got)
		}
		if got := q.Get("start"); got != "0" {
			t.Errorf("startパラメータ = %q, want 0", got)
		}
		// 要求件数の3倍を取得する
		if got := q.Get("max_results"); got != "12" {
			t.Errorf("max_resultsパラメータ = %q, want 12", got)
		}
		if got := q.Get("sortBy"); got != "submittedDate" {
			t.Errorf("sortByパラメータ = %q, want submittedDate", got)
		}
		if got := q.Get("sortOrder"); got != "descending" {
			t.Errorf("sortOrderパラメータ = %q, want descending", got)
		}
		w.Header().Set("Content-Type", "application/atom+xml")
		w.Write([]byte(arxivAtom))
	}))
	defer server.Close()

	f := newTestArxivFetcher(t, server.Client(), server.URL)

	spec := &model.QuerySpec{
		Source:      model.SourceArxiv,
		QueryString: "all:LLM",
		MaxResults:  4,
		AfterDays:   7,
	}

	effectiveQuery, candidates, err := f.Fetch(context.Background(), spec)
	if err != nil {
		t.Fatalf("Fetch がエラーを返した: %v", err)
	}
	if effectiveQuery != "all:LLM" {
		t.Errorf("実効クエリ = %q, want all:LLM", effectiveQuery)
	}

	// 期間内の1件のみ。古い論文は除外される。
	if len(candidates) != 1 {
		t.Fatalf("候補数 = %d, want 1", len(candidates))
	}
	if candidates[0].URL != "http://arxiv.org/abs/2506.01001v1" {
		t.Errorf("候補[0].URL = %q", candidates[0].URL)
	}
	if candidates[0].Title != "Scaling Laws for  Sparse Models" {
		t.Errorf("候補[0].Title = %q", candidates[0].Title)
	}
	if candidates[0].PublishedAt == nil {
		t.Error("候補[0].PublishedAt が nil であってはならない")
	}
}

// 公開日時のないエントリは日付フィルタを素通りして保持される。
func TestArxivFetcher_Fetch_KeepsEntriesWithoutDate(t *testing.T) {
	const atom = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
<title>ArXiv Query Results</title>
<entry>
<id>http://arxiv.org/abs/2506.02001v1</id>
<title>A Dated Paper</title>
<link href="http://arxiv.org/abs/2506.02001v1" rel="alternate" type="text/html"/>
<published>2025-06-12T17:59:00Z</published>
<updated>2025-06-12T17:59:00Z</updated>
</entry>
<entry>
<id>http://arxiv.org/abs/2506.02002v1</id>
<title>A Dateless Paper</title>
<link href="http://arxiv.org/abs/2506.02002v1" rel="alternate" type="text/html"/>
</entry>
</feed>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml")
		w.Write([]byte(atom))
	}))
	defer server.Close()

	f := newTestArxivFetcher(t, server.Client(), server.URL)

	spec := &model.QuerySpec{
		Source:      model.SourceArxiv,
		QueryString: "all:LLM",
		MaxResults:  5,
		AfterDays:   7,
	}

	_, candidates, err := f.Fetch(context.Background(), spec)
	if err != nil {
		t.Fatalf("Fetch がエラーを返した: %v", err)
	}

	if len(candidates) != 2 {
		t.Fatalf("候補数 = %d, want 2 (公開日時不明のエントリも保持されるべき)", len(candidates))
	}
	if candidates[1].URL != "http://arxiv.org/abs/2506.02002v1" {
		t.Errorf("候補[1].URL = %q", candidates[1].URL)
	}
	if candidates[1].PublishedAt != nil {
		t.Errorf("公開日時不明の候補のPublishedAt = %v, want nil", candidates[1].PublishedAt)
	}
}

func TestArxivFetcher_Fetch_MaxResultsCappedAt100(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("max_results"); got != "100" {
			t.Errorf("max_resultsパラメータ = %q, want 100", got)
		}
		w.Write([]byte(arxivAtom))
	}))
	defer server.Close()

	f := newTestArxivFetcher(t, server.Client(), server.URL)

	spec := &model.QuerySpec{Source: model.SourceArxiv, QueryString: "all:LLM", MaxResults: 50}
	if _, _, err := f.Fetch(context.Background(), spec); err != nil {
		t.Fatalf("Fetch がエラーを返した: %v", err)
	}
}

func TestArxivFetcher_Fetch_HTTPErrorReturnsFetchError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	f := newTestArxivFetcher(t, server.Client(), server.URL)

	spec := &model.QuerySpec{Source: model.SourceArxiv, QueryString: "all:LLM", MaxResults: 5}
	_, _, err := f.Fetch(context.Background(), spec)
	if err == nil {
		t.Fatal("HTTPエラー時にエラーが返されるべき")
	}

	var fetchErr *model.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("FetchError であるべき: got %T", err)
	}
	if fetchErr.Source != model.SourceArxiv {
		t.Errorf("FetchError.Source = %q, want %q", fetchErr.Source, model.SourceArxiv)
	}
}

func TestArxivFetcher_Fetch_EmptyQueryReturnsNothing(t *testing.T) {
	f := newTestArxivFetcher(t, http.DefaultClient, "http://unused.invalid")

	spec := &model.QuerySpec{Source: model.SourceArxiv, QueryString: "", MaxResults: 5}
	effectiveQuery, candidates, err := f.Fetch(context.Background(), spec)
	if err != nil {
		t.Fatalf("空クエリでエラーが返された: %v", err)
	}
	if effectiveQuery != "" || len(candidates) != 0 {
		t.Errorf("空クエリでは空の結果を返すべき: query=%q, candidates=%d", effectiveQuery, len(candidates))
	}
}
