package workdir

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestPathLocks_BasicLockUnlock verifies basic lock/unlock operations.
func TestPathLocks_BasicLockUnlock(t *testing.T) {
	locks := NewPathLocks()

	locks.Lock("builds/run-1")
	locks.Unlock("builds/run-1")

	// Should be able to lock again after unlock
	locks.Lock("builds/run-1")
	locks.Unlock("builds/run-1")
}

// TestPathLocks_SamePathBlocks verifies that locking the same path blocks concurrent access.
func TestPathLocks_SamePathBlocks(t *testing.T) {
	locks := NewPathLocks()
	orderChan := make(chan int, 2)

	go func() {
		locks.Lock("builds/run-1")
		orderChan <- 1
		time.Sleep(50 * time.Millisecond) // Hold the lock briefly
		locks.Unlock("builds/run-1")
	}()

	// Give the first goroutine time to acquire the lock
	time.Sleep(10 * time.Millisecond)

	go func() {
		locks.Lock("builds/run-1")
		orderChan <- 2
		locks.Unlock("builds/run-1")
	}()

	first := <-orderChan
	second := <-orderChan

	if first != 1 || second != 2 {
		t.Errorf("Expected order [1, 2], got [%d, %d]", first, second)
	}
}

// TestPathLocks_DifferentPathsConcurrent verifies that locking different paths doesn't block.
func TestPathLocks_DifferentPathsConcurrent(t *testing.T) {
	locks := NewPathLocks()
	var wg sync.WaitGroup
	var aLocked, bLocked atomic.Bool

	wg.Add(2)

	go func() {
		defer wg.Done()
		locks.Lock("builds/run-a")
		aLocked.Store(true)
		time.Sleep(20 * time.Millisecond)
		locks.Unlock("builds/run-a")
	}()

	go func() {
		defer wg.Done()
		locks.Lock("builds/run-b")
		bLocked.Store(true)
		time.Sleep(20 * time.Millisecond)
		locks.Unlock("builds/run-b")
	}()

	time.Sleep(10 * time.Millisecond)

	if !aLocked.Load() || !bLocked.Load() {
		t.Error("Both goroutines should have acquired their locks concurrently")
	}

	wg.Wait()
}

// TestPathLocks_LockAllOrdering verifies that LockAll sorts and prevents deadlocks.
func TestPathLocks_LockAllOrdering(t *testing.T) {
	locks := NewPathLocks()
	var wg sync.WaitGroup

	// Both goroutines lock the same paths in different orders.
	// If LockAll didn't sort, this could deadlock.
	wg.Add(2)

	go func() {
		defer wg.Done()
		locks.LockAll([]string{"b", "a"})
		time.Sleep(10 * time.Millisecond)
		locks.UnlockAll([]string{"b", "a"})
	}()

	go func() {
		defer wg.Done()
		time.Sleep(5 * time.Millisecond)
		locks.LockAll([]string{"a", "b"})
		time.Sleep(10 * time.Millisecond)
		locks.UnlockAll([]string{"a", "b"})
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Deadlock detected: LockAll did not prevent deadlock through ordering")
	}
}

// TestPathLocks_EmptyPaths verifies that LockAll/UnlockAll handle empty slices.
func TestPathLocks_EmptyPaths(t *testing.T) {
	locks := NewPathLocks()

	locks.LockAll([]string{})
	locks.UnlockAll([]string{})
}
