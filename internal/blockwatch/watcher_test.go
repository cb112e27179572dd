package blockwatch

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestWatcher(t *testing.T) *Watcher {
	t.Helper()
	w, err := NewWatcher(100, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	return w
}

func TestAnnounce_Broadcast(t *testing.T) {
	w := newTestWatcher(t)

	received := make(chan Head, 1)
	w.Subscribe(NewFuncSubscriber("sub1", func(h Head) {
		received <- h
	}))

	w.Announce(Head{Number: 100, Hash: "0xaa"})

	select {
	case h := <-received:
		if h.Number != 100 || h.Hash != "0xaa" {
			t.Errorf("head = %+v", h)
		}
	default:
		t.Fatal("subscriber never notified")
	}
}

func TestAnnounce_DedupByHash(t *testing.T) {
	w := newTestWatcher(t)

	var count int
	w.Subscribe(NewFuncSubscriber("sub1", func(Head) { count++ }))

	// Same head seen from two feeds
	w.Announce(Head{Number: 100, Hash: "0xaa"})
	w.Announce(Head{Number: 100, Hash: "0xaa"})

	if count != 1 {
		t.Errorf("notifications = %d, want 1", count)
	}
}

func TestAnnounce_DedupByNumberWithoutHash(t *testing.T) {
	w := newTestWatcher(t)

	var count int
	w.Subscribe(NewFuncSubscriber("sub1", func(Head) { count++ }))

	// Poller heads carry no hash
	w.Announce(Head{Number: 100})
	w.Announce(Head{Number: 100})
	w.Announce(Head{Number: 101})

	if count != 2 {
		t.Errorf("notifications = %d, want 2", count)
	}
}

func TestUnsubscribe(t *testing.T) {
	w := newTestWatcher(t)

	var count int
	w.Subscribe(NewFuncSubscriber("sub1", func(Head) { count++ }))

	w.Announce(Head{Number: 100, Hash: "0xaa"})
	w.Unsubscribe("sub1")
	w.Announce(Head{Number: 101, Hash: "0xbb"})

	if count != 1 {
		t.Errorf("notifications = %d, want 1", count)
	}
}

func TestParseHead(t *testing.T) {
	msg := []byte(`{"jsonrpc":"2.0","method":"eth_subscription","params":{` +
		`"subscription":"0x1","result":{"number":"0x112a880","hash":"0xaa","parentHash":"0xbb"}}}`)

	head, ok := parseHead(msg)
	if !ok {
		t.Fatal("parseHead rejected a valid notification")
	}
	if head.Number != 18000000 {
		t.Errorf("Number = %d, want 18000000", head.Number)
	}
	if head.Hash != "0xaa" || head.ParentHash != "0xbb" {
		t.Errorf("head = %+v", head)
	}
	if head.SeenAt.IsZero() {
		t.Error("SeenAt not set")
	}
}

func TestParseHead_IgnoresOtherMessages(t *testing.T) {
	cases := [][]byte{
		[]byte(`{"jsonrpc":"2.0","id":1,"result":"0xsubid"}`),
		[]byte(`{"jsonrpc":"2.0","method":"eth_subscription","params":{"result":{}}}`),
		[]byte(`not json`),
	}
	for _, msg := range cases {
		if _, ok := parseHead(msg); ok {
			t.Errorf("parseHead accepted %s", msg)
		}
	}
}

type sourceFunc func() (uint64, error)

func (f sourceFunc) BlockNumber(context.Context) (uint64, error) { return f() }

func TestPoller_AnnouncesIncreasingHeads(t *testing.T) {
	w := newTestWatcher(t)

	received := make(chan Head, 8)
	w.Subscribe(NewFuncSubscriber("sub1", func(h Head) {
		received <- h
	}))

	numbers := make(chan uint64, 4)
	numbers <- 100
	numbers <- 100 // repeat is skipped
	numbers <- 101

	p := NewPoller(sourceFunc(func() (uint64, error) {
		select {
		case n := <-numbers:
			return n, nil
		default:
			return 101, nil
		}
	}), w, 5*time.Millisecond, zerolog.Nop())
	p.Start()
	defer p.Close()

	want := []uint64{100, 101}
	for _, n := range want {
		select {
		case h := <-received:
			if h.Number != n {
				t.Errorf("head = %d, want %d", h.Number, n)
			}
		case <-time.After(time.Second):
			t.Fatalf("head %d never announced", n)
		}
	}
}
