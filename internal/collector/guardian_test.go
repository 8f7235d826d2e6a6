package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/LJTian/NewsHub/internal/logging"
)

const guardianBody = `{
  "response": {
    "status": "ok",
    "results": [
      {
        "id": "world/2025/oct/04/summit",
        "sectionName": "World news",
        "webTitle": "Leaders meet at summit",
        "webUrl": "https://www.theguardian.com/world/2025/oct/04/summit",
        "webPublicationDate": "2025-10-04T10:00:00Z",
        "fields": {
          "thumbnail": "https://media.guim.co.uk/thumb.jpg",
          "trailText": "<strong>Talks</strong> continue into the night",
          "bodyText": "Full body text."
        },
        "tags": [
          {"type": "keyword", "webTitle": "Diplomacy"},
          {"type": "contributor", "webTitle": "Alice Smith"},
          {"type": "contributor", "webTitle": "Bob Jones"}
        ]
      },
      {
        "id": "culture/2025/oct/04/review",
        "webTitle": "A review",
        "webUrl": "https://www.theguardian.com/culture/2025/oct/04/review",
        "fields": {"trailText": "Short trail"},
        "tags": []
      }
    ]
  }
}`

func newTestGuardian(t *testing.T, handler http.HandlerFunc) *GuardianFetcher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGuardianFetcher("k", srv.URL, 2*time.Second, logging.Discard())
}

func TestGuardianFetchCapsPageSize(t *testing.T) {
	var q map[string]string
	f := newTestGuardian(t, func(w http.ResponseWriter, r *http.Request) {
		q = map[string]string{
			"page-size":   r.URL.Query().Get("page-size"),
			"show-tags":   r.URL.Query().Get("show-tags"),
			"show-fields": r.URL.Query().Get("show-fields"),
			"order-by":    r.URL.Query().Get("order-by"),
		}
		_, _ = w.Write([]byte(guardianBody))
	})

	if _, err := f.Fetch(context.Background(), 1000); err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if q["page-size"] != "50" {
		t.Fatalf("page-size = %q, want 50", q["page-size"])
	}
	if q["show-tags"] != "contributor" || q["order-by"] != "newest" {
		t.Fatalf("unexpected query: %v", q)
	}
	if q["show-fields"] != "thumbnail,trailText,bodyText" {
		t.Fatalf("show-fields = %q", q["show-fields"])
	}
}

func TestGuardianNormalization(t *testing.T) {
	f := newTestGuardian(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(guardianBody))
	})

	items, err := f.Fetch(context.Background(), 10)
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}

	a := items[0]
	if a.Author != "Alice Smith" {
		t.Fatalf("author should be first contributor, got %q", a.Author)
	}
	if a.Description != "Talks continue into the night" {
		t.Fatalf("trailText html not stripped: %q", a.Description)
	}
	if a.Content != "Full body text." {
		t.Fatalf("content should prefer bodyText, got %q", a.Content)
	}
	if a.Category != "World news" || a.ExternalID != "world/2025/oct/04/summit" {
		t.Fatalf("unexpected mapping: %+v", a)
	}
	if a.ImageURL != "https://media.guim.co.uk/thumb.jpg" {
		t.Fatalf("image = %q", a.ImageURL)
	}

	b := items[1]
	if b.Author != "The Guardian" {
		t.Fatalf("author fallback = %q", b.Author)
	}
	if b.Category != DefaultCategory {
		t.Fatalf("category fallback = %q", b.Category)
	}
	if b.Content != "Short trail" {
		t.Fatalf("content should fall back to trailText, got %q", b.Content)
	}
	if b.ImageURL != "" {
		t.Fatalf("image should be empty, got %q", b.ImageURL)
	}
}

func TestGuardianProviderFailuresReturnEmpty(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"malformed json": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"response":`))
		},
		"non-ok status": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"response":{"status":"error","message":"Invalid authentication credentials"}}`))
		},
	}

	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			f := newTestGuardian(t, h)
			items, err := f.Fetch(context.Background(), 10)
			if err != nil {
				t.Fatalf("provider failure should not return error, got %v", err)
			}
			if len(items) != 0 {
				t.Fatalf("expected empty result, got %d", len(items))
			}
		})
	}
}

func TestGuardianTimeoutReturnsEmpty(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	f := NewGuardianFetcher("k", srv.URL, 50*time.Millisecond, logging.Discard())
	items, err := f.Fetch(context.Background(), 10)
	if err != nil || len(items) != 0 {
		t.Fatalf("timeout should yield empty result, got %d items err=%v", len(items), err)
	}
}
