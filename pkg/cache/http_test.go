package cache

import (
	"bytes"
	"io"
	"net/http"
	"testing"
	"time"
)

func TestResponseToEntry(t *testing.T) {
	resp := &http.Response{
		StatusCode: 200,
		Header: http.Header{
			"Cache-Control": []string{"public, max-age=300"},
			"Last-Modified": []string{time.Now().Add(-1 * time.Hour).Format(http.TimeFormat)},
			"Etag":          []string{`"abc123"`},
			"Content-Type":  []string{"application/json"},
		},
		Body: io.NopCloser(bytes.NewReader([]byte(`{"result":"ok"}`))),
	}

	entry, err := ResponseToEntry(resp)
	if err != nil {
		t.Fatalf("ResponseToEntry() error = %v", err)
	}

	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"result":"ok"}` {
		t.Errorf("response body was not restored, got %q", body)
	}
	if string(entry.Data) != `{"result":"ok"}` {
		t.Errorf("Data = %q", entry.Data)
	}
	if entry.ETag != `"abc123"` {
		t.Errorf("ETag = %v, want %v", entry.ETag, `"abc123"`)
	}
	if entry.LastModified.IsZero() {
		t.Error("LastModified was not parsed")
	}
	if ttl := entry.TTL(); ttl < 295*time.Second || ttl > 300*time.Second {
		t.Errorf("TTL() = %v, want about 5m", ttl)
	}
}

func TestResponseToEntry_Nil(t *testing.T) {
	if _, err := ResponseToEntry(nil); err == nil {
		t.Error("expected error for nil response")
	}
}

func TestEntryToResponse(t *testing.T) {
	entry := &Entry{
		Data:       []byte(`{"data":[]}`),
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": []string{"application/json"}},
	}
	req, _ := http.NewRequest(http.MethodGet, "https://api.mangadex.org/author?ids[]=a", nil)

	resp := EntryToResponse(entry, req)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", resp.Header.Get("Content-Type"))
	}
	if resp.Request != req {
		t.Error("Request not set")
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"data":[]}` {
		t.Errorf("body = %q", body)
	}

	resp.Header.Set("X-Test", "1")
	if entry.Headers.Get("X-Test") != "" {
		t.Error("response headers must not alias the cached headers")
	}
}

func TestExpiresAt(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		headers http.Header
		want    time.Time
	}{
		{"max-age", http.Header{"Cache-Control": {"max-age=60"}}, now.Add(time.Minute)},
		{"max-age wins over expires", http.Header{
			"Cache-Control": {"public, max-age=60"},
			"Expires":       {now.Add(time.Hour).Format(http.TimeFormat)},
		}, now.Add(time.Minute)},
		{"no-store", http.Header{"Cache-Control": {"no-store"}}, now},
		{"no-cache", http.Header{"Cache-Control": {"No-Cache"}}, now},
		{"expires", http.Header{"Expires": {now.Add(time.Hour).Format(http.TimeFormat)}}, now.Add(time.Hour)},
		{"expires in the past", http.Header{"Expires": {now.Add(-time.Hour).Format(http.TimeFormat)}}, now},
		{"invalid expires", http.Header{"Expires": {"not a date"}}, now.Add(DefaultTTL)},
		{"invalid max-age falls through", http.Header{"Cache-Control": {"max-age=soon"}}, now.Add(DefaultTTL)},
		{"no freshness headers", http.Header{}, now.Add(DefaultTTL)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExpiresAt(tt.headers, now); !got.Equal(tt.want) {
				t.Errorf("ExpiresAt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestShouldMakeConditionalRequest(t *testing.T) {
	tests := []struct {
		name  string
		entry *Entry
		want  bool
	}{
		{"nil entry", nil, false},
		{"entry with ETag", &Entry{ETag: `"abc123"`}, true},
		{"entry with Last-Modified", &Entry{LastModified: time.Now()}, true},
		{"entry without validators", &Entry{Data: []byte("data")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldMakeConditionalRequest(tt.entry); got != tt.want {
				t.Errorf("ShouldMakeConditionalRequest() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAddConditionalHeaders(t *testing.T) {
	tests := []struct {
		name       string
		entry      *Entry
		wantHeader string
		wantValue  string
	}{
		{"If-None-Match with ETag", &Entry{ETag: `"abc123"`}, "If-None-Match", `"abc123"`},
		{
			"If-Modified-Since with Last-Modified",
			&Entry{LastModified: time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)},
			"If-Modified-Since",
			"Sun, 01 Jan 2023 12:00:00 GMT",
		},
		{
			"prefer ETag over Last-Modified",
			&Entry{ETag: `"abc123"`, LastModified: time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)},
			"If-None-Match",
			`"abc123"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("GET", "https://api.mangadex.org/cover/x", nil)
			AddConditionalHeaders(req, tt.entry)

			if got := req.Header.Get(tt.wantHeader); got != tt.wantValue {
				t.Errorf("Header %s = %v, want %v", tt.wantHeader, got, tt.wantValue)
			}
		})
	}
}

func TestAddConditionalHeaders_NilInputs(t *testing.T) {
	AddConditionalHeaders(nil, &Entry{ETag: "test"})
	AddConditionalHeaders(&http.Request{}, nil)
}
