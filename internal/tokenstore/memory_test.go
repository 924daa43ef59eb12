package tokenstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(userID string, access, refresh string) Record {
	return Record{
		UserID:                userID,
		EncryptedAccessToken:  []byte(access),
		EncryptedRefreshToken: []byte(refresh),
		Account:               []byte(`{"subject_id":"sub-1"}`),
		ExpiresAt:             time.Now().Add(time.Hour),
	}
}

func TestMemoryStoreGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	t.Run("unknown user returns ErrNotFound", func(t *testing.T) {
		_, err := store.Get(ctx, "nobody")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("stored record round-trips", func(t *testing.T) {
		rec := testRecord("u1", "at", "rt")
		require.NoError(t, store.Upsert(ctx, rec))

		got, err := store.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, rec.EncryptedAccessToken, got.EncryptedAccessToken)
		assert.Equal(t, rec.EncryptedRefreshToken, got.EncryptedRefreshToken)
		assert.False(t, got.UpdatedAt.IsZero())
	})

	t.Run("returned slices are copies", func(t *testing.T) {
		got, err := store.Get(ctx, "u1")
		require.NoError(t, err)

		got.EncryptedAccessToken[0] = 'X'

		again, err := store.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, byte('a'), again.EncryptedAccessToken[0])
	})
}

func TestMemoryStoreUpsertValidation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	t.Run("rejects missing user id", func(t *testing.T) {
		rec := testRecord("", "at", "rt")
		require.Error(t, store.Upsert(ctx, rec))
	})

	t.Run("rejects record without refresh token", func(t *testing.T) {
		rec := testRecord("u1", "at", "rt")
		rec.EncryptedRefreshToken = nil
		require.Error(t, store.Upsert(ctx, rec))
	})

	t.Run("allows absent access token", func(t *testing.T) {
		rec := testRecord("u2", "", "rt")
		rec.EncryptedAccessToken = nil
		require.NoError(t, store.Upsert(ctx, rec))

		got, err := store.Get(ctx, "u2")
		require.NoError(t, err)
		assert.Nil(t, got.EncryptedAccessToken)
	})
}

func TestMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Upsert(ctx, testRecord("u1", "at", "rt")))
	require.NoError(t, store.Delete(ctx, "u1"))

	_, err := store.Get(ctx, "u1")
	require.ErrorIs(t, err, ErrNotFound)

	// delete is idempotent
	require.NoError(t, store.Delete(ctx, "u1"))
}

// Readers racing a writer must observe a full record from one writer,
// never a mixed access/refresh pair.
func TestMemoryStoreNoTornReads(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Upsert(ctx, testRecord("u1", "pair-0", "pair-0")))

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		pairs := []string{"pair-1", "pair-2", "pair-3"}
		for i := 0; i < 300; i++ {
			p := pairs[i%len(pairs)]
			_ = store.Upsert(ctx, testRecord("u1", p, p))
		}
		close(stop)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			rec, err := store.Get(ctx, "u1")
			if err != nil {
				continue
			}
			assert.Equal(t, rec.EncryptedAccessToken, rec.EncryptedRefreshToken,
				"observed a record mixing two writers")
		}
	}()

	wg.Wait()
}
