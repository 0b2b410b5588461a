package ids

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateULIDSequentialOrdering(t *testing.T) {
	const total = 100
	ids := make([]string, total)
	for i := 0; i < total; i++ {
		ids[i] = CreateULID()
	}

	for i := 0; i < total; i++ {
		require.Len(t, ids[i], 26)
		_, err := ulid.Parse(ids[i])
		require.NoError(t, err)
	}

	for i := 1; i < total; i++ {
		if ids[i-1] >= ids[i] {
			t.Fatalf("expected ULIDs to be strictly increasing, %s >= %s", ids[i-1], ids[i])
		}
	}
}

func TestCreateULIDConcurrentUniqueness(t *testing.T) {
	const goroutines = 10
	const perGoroutine = 20

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]struct{})
	)

	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				id := NewMessageID()
				mu.Lock()
				if _, ok := seen[id]; ok {
					t.Errorf("duplicate ULID generated: %s", id)
				}
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	assert.Len(t, seen, goroutines*perGoroutine)
}

func TestNewJobID(t *testing.T) {
	before := time.Now().Add(-time.Second)
	id := NewJobID()

	assert.Equal(t, strings.ToLower(id), id)
	created, ok := JobTime(id)
	require.True(t, ok)
	assert.True(t, created.After(before))

	_, ok = JobTime("not-a-job")
	assert.False(t, ok)
}
