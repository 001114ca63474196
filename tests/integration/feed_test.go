//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/Sternrassler/mangadex-client/internal/testutil"
	"github.com/Sternrassler/mangadex-client/pkg/client"
	"github.com/Sternrassler/mangadex-client/pkg/join"
	"github.com/Sternrassler/mangadex-client/pkg/manga"
	"github.com/Sternrassler/mangadex-client/pkg/pagination"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

// newFeed wires a Redis-backed client and a join engine against the mock.
func newFeed(t *testing.T, redisClient *redis.Client, mock *testutil.MockMangaDex, limit int) *join.Engine {
	t.Helper()

	cfg := client.DefaultConfig(redisClient, "MangaFeedIntegration/1.0 (test@example.com)")
	cfg.RateLimit = 1000
	cfg.Burst = 100
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 10 * time.Millisecond
	mdx, err := client.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { mdx.Close() })

	engine, err := join.New(mdx, join.Config{
		Endpoints:      mock.Endpoints(),
		Query:          pagination.Query{Language: "en", Limit: limit},
		MaxConcurrency: 8,
		FetchTimeout:   5 * time.Second,
	}, join.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	return engine
}

func loadPage(t *testing.T, engine *join.Engine) int {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	offset, err := engine.RequestPage(ctx)
	require.NoError(t, err)
	require.NoError(t, engine.Wait(ctx))
	return offset
}

// TestFeed_Pages loads consecutive pages and checks every joined field.
func TestFeed_Pages(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockMangaDex()
	defer mock.Close()
	titles := mock.Seed(15)

	engine := newFeed(t, redisClient, mock, 10)

	assert.Equal(t, 0, loadPage(t, engine))
	assert.Equal(t, 10, engine.Len())
	assert.Equal(t, 10, loadPage(t, engine))
	assert.Equal(t, 15, engine.Len())
	assert.Empty(t, engine.Incomplete())

	want := make(map[string]manga.Manga, len(titles))
	for _, ti := range titles {
		want[ti.ID] = manga.Manga{
			ID:          ti.ID,
			Title:       ti.Title,
			Description: ti.Description,
			Author:      ti.AuthorName,
			CoverURL:    mock.CoverURL(ti),
		}
	}
	for _, m := range engine.Completed() {
		assert.Equal(t, want[m.ID], m)
	}
}

// TestFeed_LookupsCached checks that a second feed sharing Redis serves
// every author and cover lookup from the cache.
func TestFeed_LookupsCached(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockMangaDex()
	defer mock.Close()
	titles := mock.Seed(5)

	first := newFeed(t, redisClient, mock, 10)
	loadPage(t, first)
	require.Equal(t, 5, first.Len())

	authorRequests := mock.RequestCount("/author")
	coverRequests := mock.RequestCount("/cover/" + titles[0].CoverID)
	assert.Equal(t, 5, authorRequests)
	assert.Equal(t, 1, coverRequests)

	second := newFeed(t, redisClient, mock, 10)
	loadPage(t, second)
	assert.Equal(t, 5, second.Len())

	assert.Equal(t, authorRequests, mock.RequestCount("/author"), "author lookups should be cached")
	assert.Equal(t, coverRequests, mock.RequestCount("/cover/"+titles[0].CoverID), "cover lookups should be cached")
	assert.Equal(t, 2, mock.RequestCount("/manga"), "listing pages are never cached")
}

// TestFeed_FailedEnrichment leaves a manga whose cover keeps failing in the
// incomplete table while the rest of the page completes.
func TestFeed_FailedEnrichment(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockMangaDex()
	defer mock.Close()
	titles := mock.Seed(3)
	mock.Fail("/cover/"+titles[1].CoverID, testutil.Failure{StatusCode: http.StatusInternalServerError})

	engine := newFeed(t, redisClient, mock, 10)
	loadPage(t, engine)

	assert.Equal(t, 2, engine.Len())

	pending := engine.Incomplete()
	require.Len(t, pending, 1)
	assert.Equal(t, titles[1].ID, pending[0].Manga.ID)
	assert.Equal(t, titles[1].AuthorName, pending[0].Manga.Author)
	assert.Empty(t, pending[0].Manga.CoverURL)

	// Server errors are retried before giving up.
	assert.Greater(t, mock.RequestCount("/cover/"+titles[1].CoverID), 1)
}

// TestFeed_OverlappingRequests requests the same window twice before it
// completes; every manga is published once.
func TestFeed_OverlappingRequests(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockMangaDex()
	defer mock.Close()
	mock.Seed(8)

	engine := newFeed(t, redisClient, mock, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	first, err := engine.RequestPage(ctx)
	require.NoError(t, err)
	second, err := engine.RequestPage(ctx)
	require.NoError(t, err)
	require.NoError(t, engine.Wait(ctx))

	assert.Equal(t, 0, first)
	assert.Equal(t, 0, second)
	assert.Equal(t, 8, engine.Len())

	seen := make(map[string]bool)
	for _, m := range engine.Completed() {
		assert.False(t, seen[m.ID], "manga %s published twice", m.ID)
		seen[m.ID] = true
	}
}
