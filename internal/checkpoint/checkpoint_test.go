package checkpoint

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDuplicated(t *testing.T) {
	c := New(16, time.Minute)

	require.False(t, c.Duplicated("sig-1"))
	require.True(t, c.Duplicated("sig-1"))
	require.False(t, c.Duplicated("sig-2"))
	require.Equal(t, 2, c.Len())
}

func TestDuplicated_EmptySignature(t *testing.T) {
	c := New(16, time.Minute)

	require.False(t, c.Duplicated(""))
	require.False(t, c.Duplicated(""))
	require.Zero(t, c.Len())
}

func TestDuplicated_Expires(t *testing.T) {
	c := New(16, 20*time.Millisecond)
	require.False(t, c.Duplicated("sig"))

	require.Eventually(t, func() bool { return !c.Duplicated("sig") }, time.Second, 10*time.Millisecond)
}

func TestDuplicated_EvictsOldest(t *testing.T) {
	c := New(2, time.Minute)
	require.False(t, c.Duplicated("a"))
	require.False(t, c.Duplicated("b"))
	require.False(t, c.Duplicated("c"))

	require.False(t, c.Duplicated("a"))
}

func TestDuplicated_ConcurrentFirstWins(t *testing.T) {
	c := New(0, 0)
	var firsts atomic.Int64
	var wg sync.WaitGroup

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if !c.Duplicated(fmt.Sprintf("sig-%d", i)) {
					firsts.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 100, firsts.Load())
}
