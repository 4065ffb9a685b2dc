package essync_test

import (
	"sync"
	"testing"

	"github.com/cinemadb/essync"
)

func TestNexter(t *testing.T) {
	n := essync.NewNexter(essync.OptNexterStartFrom(19))
	if num := n.Next(); num != 19 {
		t.Fatalf("expected 19 for Next, but %d", num)
	}
	if num := n.Last(); num != 19 {
		t.Fatalf("expected 19 for Last, but %d", num)
	}
}

func TestNexterConcurrent(t *testing.T) {
	n := essync.NewNexter()
	seen := make([]bool, 100)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			num := n.Next()
			mu.Lock()
			seen[num] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	for i, ok := range seen {
		if !ok {
			t.Fatalf("number %d was never handed out", i)
		}
	}
}
