//go:build integration

package progress

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/IshaanNene/gleaner/internal/types"
)

func startContainer(t *testing.T, req testcontainers.ContainerRequest, port string) string {
	t.Helper()
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	if host == "" || host == "null" {
		host = "localhost"
	}
	mapped, err := c.MappedPort(ctx, nat.Port(port))
	require.NoError(t, err)
	return fmt.Sprintf("%s:%s", host, mapped.Port())
}

// exerciseStore checks the Store contract against a fresh backend and a
// second instance opened on the same data.
func exerciseStore(t *testing.T, open func() Store) {
	ctx := context.Background()

	s := open()
	require.NoError(t, s.Load(ctx))

	rec := types.NewRecord("https://x.test/a")
	rec.Set("title", "A")
	rec.Set("date", types.Absent)
	require.NoError(t, s.Record(ctx, types.ProgressEntry{ID: "https://x.test/a", Status: types.StatusPending}))
	require.NoError(t, s.Record(ctx, types.ProgressEntry{ID: "https://x.test/a", Status: types.StatusDone, Record: rec, Attempts: 2}))
	require.NoError(t, s.Record(ctx, types.ProgressEntry{ID: "https://x.test/b", Order: 1, Status: types.StatusSkipped}))
	require.NoError(t, s.Close())

	again := open()
	defer again.Close()
	require.NoError(t, again.Load(ctx))

	assert.True(t, again.Has("https://x.test/a"))
	assert.True(t, again.Has("https://x.test/b"))
	e, ok := again.Get("https://x.test/a")
	require.True(t, ok)
	assert.Equal(t, 2, e.Attempts)
	assert.Equal(t, "A", e.Record.GetString("title"))
	assert.True(t, types.IsAbsent(e.Record.Fields["date"]))
	assert.Len(t, again.All(), 2)
}

func TestMongoStore(t *testing.T) {
	addr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForLog("Waiting for connections").WithStartupTimeout(60 * time.Second),
	}, "27017")

	exerciseStore(t, func() Store {
		s, err := NewMongoStore(context.Background(), "mongodb://"+addr, "gleaner_test", "progress", testLogger)
		require.NoError(t, err)
		return s
	})
}

func TestPostgresStore(t *testing.T) {
	addr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "gleaner",
			"POSTGRES_PASSWORD": "gleaner",
			"POSTGRES_DB":       "gleaner",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}, "5432")

	dsn := fmt.Sprintf("postgres://gleaner:gleaner@%s/gleaner?sslmode=disable", addr)
	exerciseStore(t, func() Store {
		s, err := NewPostgresStore(context.Background(), dsn, "gleaner_progress", testLogger)
		require.NoError(t, err)
		return s
	})
}
