package events_test

import (
	"testing"

	"github.com/ardanlabs/idchain/foundation/events"
)

const (
	success = "✓"
	failed  = "✗"
)

func Test_Events(t *testing.T) {
	t.Log("Given the need to route events to registered receivers.")
	{
		evts := events.New()

		all := evts.Acquire("all")
		blocks := evts.Acquire("blocks", "block")

		if evts.Acquire("all") != all {
			t.Fatalf("\t%s\tShould return the same channel for the same id.", failed)
		}
		t.Logf("\t%s\tShould return the same channel for the same id.", success)

		evts.Send("block", "blk 1")
		evts.Send("viewer", "mining")

		if got := len(all); got != 2 {
			t.Fatalf("\t%s\tShould deliver every topic to an unfiltered receiver: got %d", failed, got)
		}
		t.Logf("\t%s\tShould deliver every topic to an unfiltered receiver.", success)

		if got := len(blocks); got != 1 {
			t.Fatalf("\t%s\tShould deliver only the subscribed topic: got %d", failed, got)
		}
		e := <-blocks
		if e.Topic != "block" || e.Data != "blk 1" {
			t.Fatalf("\t%s\tShould receive the block event: got %+v", failed, e)
		}
		t.Logf("\t%s\tShould deliver only the subscribed topic.", success)

		if err := evts.Release("blocks"); err != nil {
			t.Fatalf("\t%s\tShould be able to release a receiver: %v", failed, err)
		}
		if _, open := <-blocks; open {
			t.Fatalf("\t%s\tShould close a released channel.", failed)
		}
		if err := evts.Release("blocks"); err == nil {
			t.Fatalf("\t%s\tShould fail to release an unknown id.", failed)
		}
		t.Logf("\t%s\tShould close released channels once.", success)

		evts.Shutdown()
		if evts.Len() != 0 {
			t.Fatalf("\t%s\tShould remove every receiver on shutdown.", failed)
		}
		<-all
		<-all
		if _, open := <-all; open {
			t.Fatalf("\t%s\tShould close channels on shutdown.", failed)
		}
		t.Logf("\t%s\tShould close channels on shutdown.", success)
	}
}

func Test_SendDoesNotBlock(t *testing.T) {
	t.Log("Given a receiver that never reads.")
	{
		evts := events.New()
		ch := evts.Acquire("slow")

		for i := 0; i < 500; i++ {
			evts.Send("viewer", "msg")
		}

		if len(ch) != cap(ch) {
			t.Fatalf("\t%s\tShould fill the buffer and drop the rest: got %d of %d", failed, len(ch), cap(ch))
		}
		t.Logf("\t%s\tShould fill the buffer and drop the rest.", success)
	}
}
