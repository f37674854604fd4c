package store

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/AlexZinkM/solwallet/internal/model"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

type recordStore interface {
	Save(ctx context.Context, record *model.SubmissionRecord) error
	Update(ctx context.Context, record *model.SubmissionRecord) error
	Get(ctx context.Context, id solana.Signature) (*model.SubmissionRecord, error)
	ListBySender(ctx context.Context, sender solana.PublicKey, limit int) ([]*model.SubmissionRecord, error)
}

var (
	_ recordStore = (*Memory)(nil)
	_ recordStore = (*Postgres)(nil)
)

func newRecord(id byte, submittedAt time.Time) *model.SubmissionRecord {
	return &model.SubmissionRecord{
		ID:          solana.Signature{id},
		RequestID:   "req-" + string(rune('a'+id)),
		Sender:      solana.PublicKey{0x01},
		Recipient:   solana.PublicKey{0x02},
		Lamports:    300,
		State:       model.StatePending,
		SubmittedAt: submittedAt,
		ExpiresAt:   submittedAt.Add(time.Minute),
		UpdatedAt:   submittedAt,
		Payload:     []byte{0xde, 0xad},
	}
}

func exerciseStore(t *testing.T, s recordStore) {
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	rec := newRecord(1, base)
	require.NoError(t, s.Save(ctx, rec))

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.RequestID, got.RequestID)
	assert.Equal(t, rec.Sender, got.Sender)
	assert.Equal(t, rec.Payload, got.Payload)
	assert.Equal(t, model.StatePending, got.State)

	rec.RetryCount = 2
	rec.UpdatedAt = base.Add(time.Second)
	require.NoError(t, s.Update(ctx, rec))

	rec.State = model.StateConfirmed
	rec.UpdatedAt = base.Add(2 * time.Second)
	require.NoError(t, s.Update(ctx, rec))

	// terminal records are final
	rec.State = model.StateExpired
	assert.ErrorIs(t, s.Update(ctx, rec), model.ErrTerminalRecord)
	assert.ErrorIs(t, s.Save(ctx, rec), model.ErrTerminalRecord)

	got, err = s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateConfirmed, got.State)
	assert.Equal(t, 2, got.RetryCount)

	_, err = s.Get(ctx, solana.Signature{0x99})
	assert.ErrorIs(t, err, model.ErrUnknownRecord)
	assert.ErrorIs(t, s.Update(ctx, newRecord(0x98, base)), model.ErrUnknownRecord)

	require.NoError(t, s.Save(ctx, newRecord(2, base.Add(time.Hour))))
	list, err := s.ListBySender(ctx, solana.PublicKey{0x01}, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, solana.Signature{2}, list[0].ID)
}

func TestMemory(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	rec := newRecord(1, time.Now())
	require.NoError(t, s.Save(ctx, rec))

	rec.Payload[0] = 0x00
	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, byte(0xde), got.Payload[0])
}

func TestPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	migrations := filepath.Join(findProjectRoot(t), "sql", "postgres")
	entries, err := os.ReadDir(migrations)
	require.NoError(t, err)
	var files []string
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".sql" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	for _, f := range files {
		sql, err := os.ReadFile(filepath.Join(migrations, f))
		require.NoError(t, err)
		_, err = pool.Exec(ctx, string(sql))
		require.NoError(t, err, "failed to execute migration: %s", f)
	}

	exerciseStore(t, NewPostgres(pool))
}

func findProjectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	require.NoError(t, err)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find project root (go.mod)")
		}
		dir = parent
	}
}
