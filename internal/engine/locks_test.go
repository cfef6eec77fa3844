package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncLocksArePerPath(t *testing.T) {
	var l syncLocks
	unlockA := l.lock("a.md")

	done := make(chan struct{})
	go func() {
		l.lock("b.md")()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("a different path waited on a.md")
	}

	acquired := make(chan struct{})
	go func() {
		unlock := l.lock("a.md")
		close(acquired)
		unlock()
	}()
	select {
	case <-acquired:
		t.Fatal("a.md was locked twice")
	case <-time.After(50 * time.Millisecond):
	}

	unlockA()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired a.md")
	}

	require.Eventually(t, func() bool { return l.held() == 0 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, l.held(), "released entries are removed")
}
