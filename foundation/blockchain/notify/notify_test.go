package notify_test

import (
	"sync/atomic"
	"testing"

	"github.com/ardanlabs/idchain/foundation/blockchain/notify"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func TestFeed(t *testing.T) {
	feed := notify.New[int]()

	var sum atomic.Int64
	unsub := feed.Subscribe(func(v int) { sum.Add(int64(v)) })
	feed.Subscribe(func(v int) { sum.Add(int64(v) * 10) })

	feed.Publish(1)
	feed.Publish(2)
	feed.Wait()

	if got := sum.Load(); got != 33 {
		t.Fatalf("\t%s\tShould deliver to every subscriber : got %d", failed, got)
	}
	t.Logf("\t%s\tShould deliver to every subscriber.", success)

	unsub()
	feed.Publish(1)
	feed.Wait()

	if got := sum.Load(); got != 43 {
		t.Fatalf("\t%s\tShould stop delivering after unsubscribe : got %d", failed, got)
	}
	t.Logf("\t%s\tShould stop delivering after unsubscribe.", success)

	if feed.Len() != 1 {
		t.Fatalf("\t%s\tShould have one subscriber left : got %d", failed, feed.Len())
	}
	t.Logf("\t%s\tShould have one subscriber left.", success)
}
