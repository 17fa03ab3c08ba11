package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/mca/internal/history"
)

func startPostgres(ctx context.Context, t *testing.T) string {
	t.Helper()
	c, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("mca"),
		tcpostgres.WithUsername("mca"),
		tcpostgres.WithPassword("mca"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, c.Terminate(context.Background())) })

	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestSinkRecordsRun(t *testing.T) {
	if testing.Short() {
		t.Skip("container test")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	dsn := startPostgres(ctx, t)

	sink, err := New(dsn)
	require.NoError(t, err)
	defer func() { assert.NoError(t, sink.Close()) }()

	// a second sink on the same database must not trip over the existing schema
	again, err := New(dsn)
	require.NoError(t, err)
	require.NoError(t, again.Close())

	now := time.Now().UTC()
	for _, e := range []history.Event{
		{Type: history.EventProxyStart, OccurredAt: now, RunID: "r", Worker: "lyra-flash-6", Port: 4901, PID: 42},
		{Type: history.EventProxyFailed, OccurredAt: now, RunID: "r", Worker: "lyra-flash-6", Port: 4901, Error: "proxy exited with code 1"},
		{Type: history.EventOutcome, OccurredAt: now, RunID: "r", Worker: "cortex-12", Status: "success", DurationMS: 1200},
	} {
		require.NoError(t, sink.Send(ctx, e), e.Type)
	}

	n, err := sink.Count(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	var errText string
	require.NoError(t, sink.db.QueryRowContext(ctx, "SELECT error FROM run_history WHERE type = 'proxy_failed'").Scan(&errText))
	assert.Equal(t, "proxy exited with code 1", errText)

	var nulls int
	require.NoError(t, sink.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM run_history WHERE error IS NULL").Scan(&nulls))
	assert.Equal(t, 2, nulls)
}

func TestNewRejectsEmptyDSN(t *testing.T) {
	_, err := New("  ")
	assert.Error(t, err)
}
