package correlation

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndResolve(t *testing.T) {
	table := NewTable[string]()

	ch, release, err := table.Register("abc")
	require.NoError(t, err)
	defer release()
	assert.Equal(t, 1, table.Len())

	assert.True(t, table.Resolve("abc", "pong"))
	assert.Equal(t, "pong", <-ch)
	assert.Equal(t, 0, table.Len())

	assert.False(t, table.Resolve("abc", "late"), "a resolved id must not resolve twice")
}

func TestReleaseRemovesEntry(t *testing.T) {
	table := NewTable[int]()

	_, release, err := table.Register("x")
	require.NoError(t, err)

	release()
	release()
	assert.Equal(t, 0, table.Len())
	assert.False(t, table.Resolve("x", 1))
}

func TestStaleReleaseKeepsNewEntry(t *testing.T) {
	table := NewTable[int]()

	_, release, err := table.Register("x")
	require.NoError(t, err)
	release()

	_, releaseAgain, err := table.Register("x")
	require.NoError(t, err)
	defer releaseAgain()

	release()
	assert.Equal(t, 1, table.Len(), "releasing an old registration must not drop a newer one")
}

func TestDuplicateID(t *testing.T) {
	table := NewTable[int]()

	_, release, err := table.Register("dup")
	require.NoError(t, err)
	defer release()

	_, _, err = table.Register("dup")
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestCloseReleasesPending(t *testing.T) {
	table := NewTable[int]()

	ch, _, err := table.Register("a")
	require.NoError(t, err)

	table.Close()
	table.Close()

	_, open := <-ch
	assert.False(t, open, "pending channels are closed on Close")
	assert.Equal(t, 0, table.Len())

	_, _, err = table.Register("b")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestConcurrentResolve(t *testing.T) {
	table := NewTable[int]()
	const total = 50

	channels := make([]<-chan int, total)
	for i := 0; i < total; i++ {
		ch, _, err := table.Register(string(rune('A' + i)))
		require.NoError(t, err)
		channels[i] = ch
	}

	var wg sync.WaitGroup
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			table.Resolve(string(rune('A'+i)), i)
		}(i)
	}
	wg.Wait()

	for i, ch := range channels {
		assert.Equal(t, i, <-ch)
	}
	assert.Equal(t, 0, table.Len())
}
