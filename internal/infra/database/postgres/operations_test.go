package postgres

import (
	"context"
	"io"
	"log"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EgorLis/collab-notes/internal/domain"
)

// Тесты с настоящим Postgres: COLLAB_NOTES_TEST_DSN=postgres://...
const testDSNEnv = "COLLAB_NOTES_TEST_DSN"

func newTestRepo(t *testing.T) *PGRepo {
	t.Helper()
	dsn := os.Getenv(testDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", testDSNEnv)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	r, err := NewPGRepo(ctx, log.New(io.Discard, "", 0), dsn, "public")
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func TestAppendOperation_ConcurrentVersionsAreSerial(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	u, err := r.CreateUser(ctx, domain.User{
		Email:    uuid.NewString() + "@example.com",
		Name:     "Writer",
		PassHash: []byte("x"),
	})
	require.NoError(t, err)
	n, err := r.CreateNote(ctx, domain.Note{OwnerID: u.ID, Title: "race", DocumentState: domain.NewDocumentState()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.DeleteNote(context.Background(), n.ID) })

	const writers = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		versions []int64
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			content := "x"
			_, st, err := r.AppendOperation(ctx, domain.OperationInput{
				NoteID: n.ID, UserID: u.ID, Type: domain.OpInsert, Position: i, Content: &content,
			})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			versions = append(versions, st.Version)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	// каждая транзакция видит версию предыдущей: 1..N без дублей
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	want := make([]int64, writers)
	for i := range want {
		want[i] = int64(i + 1)
	}
	assert.Equal(t, want, versions)

	stored, err := r.NoteByID(ctx, n.ID)
	require.NoError(t, err)
	assert.EqualValues(t, writers, stored.DocumentState.Version)
	assert.Len(t, stored.DocumentState.Operations, writers)

	ops, err := r.ListOperations(ctx, n.ID, nil)
	require.NoError(t, err)
	assert.Len(t, ops, writers)
}
