//go:build integration

package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/mangadex-client/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisContainer creates a Redis container for integration testing.
func setupRedisContainer(t *testing.T) *redis.Client {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := redisContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisContainer.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	t.Cleanup(func() {
		client.Close()
		redisContainer.Terminate(ctx)
	})

	return client
}

func TestIntegration_LookupsCachedListingNot(t *testing.T) {
	redisClient := setupRedisContainer(t)

	var coverHits, listingHits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cover/c1":
			coverHits.Add(1)
			w.Header().Set("Cache-Control", "public, max-age=600")
			w.Write([]byte(`{"data":{"attributes":{"fileName":"c1.jpg"}}}`))
		case "/manga":
			listingHits.Add(1)
			w.Header().Set("Cache-Control", "public, max-age=600")
			w.Write([]byte(`{"data":[]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Redis = redisClient
	client := newTestClient(t, cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		body, err := client.Fetch(ctx, server.URL+"/cover/c1")
		if err != nil {
			t.Fatalf("Fetch(cover) error = %v", err)
		}
		if string(body) != `{"data":{"attributes":{"fileName":"c1.jpg"}}}` {
			t.Errorf("cover body = %s", body)
		}
		if _, err := client.Fetch(ctx, server.URL+"/manga?offset=0"); err != nil {
			t.Fatalf("Fetch(listing) error = %v", err)
		}
	}

	if got := coverHits.Load(); got != 1 {
		t.Errorf("cover requests = %d, want 1 (cached)", got)
	}
	if got := listingHits.Load(); got != 3 {
		t.Errorf("listing requests = %d, want 3 (never cached)", got)
	}
}

func TestIntegration_StaleEntryRevalidated(t *testing.T) {
	redisClient := setupRedisContainer(t)

	var requests, conditional atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			conditional.Add(1)
			w.Header().Set("Cache-Control", "max-age=600")
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Cache-Control", "max-age=1")
		w.Write([]byte(`{"data":[{"attributes":{"name":"Author"}}]}`))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Redis = redisClient
	client := newTestClient(t, cfg)
	ctx := context.Background()
	target := server.URL + "/author?ids[]=a1"

	if _, err := client.Fetch(ctx, target); err != nil {
		t.Fatalf("first Fetch() error = %v", err)
	}

	time.Sleep(1100 * time.Millisecond)

	body, err := client.Fetch(ctx, target)
	if err != nil {
		t.Fatalf("revalidating Fetch() error = %v", err)
	}
	if string(body) != `{"data":[{"attributes":{"name":"Author"}}]}` {
		t.Errorf("body after 304 = %s", body)
	}
	if got := conditional.Load(); got != 1 {
		t.Errorf("conditional requests = %d, want 1", got)
	}

	// Refreshed by the 304: served from cache now.
	if _, err := client.Fetch(ctx, target); err != nil {
		t.Fatalf("third Fetch() error = %v", err)
	}
	if got := requests.Load(); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
}

func TestIntegration_SharedRateLimitState(t *testing.T) {
	redisClient := setupRedisContainer(t)

	reset := time.Now().Add(time.Minute).Unix()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(ratelimit.HeaderRemaining, "0")
		w.Header().Set(ratelimit.HeaderRetryAfter, strconv.FormatInt(reset, 10))
		w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Redis = redisClient
	first := newTestClient(t, cfg)
	second := newTestClient(t, cfg)
	ctx := context.Background()

	if _, err := first.Fetch(ctx, server.URL+"/manga"); err != nil {
		t.Fatalf("first client Fetch() error = %v", err)
	}

	_, err := second.Fetch(ctx, server.URL+"/manga")
	if err == nil {
		t.Fatal("second client should be blocked by the window recorded by the first")
	}
	if ClassOf(err) != ErrorClassRateLimit {
		t.Errorf("error class = %q, want rate_limit", ClassOf(err))
	}
}
