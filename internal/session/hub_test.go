package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startHub spins a hub with an httptest websocket endpoint; identity comes
// from the ?id query param, matching how the HTTP layer passes it through.
func startHub(t *testing.T, broadcasterID string) (*Hub, string) {
	t.Helper()
	h := NewHub("sess-1", broadcasterID, nil, zerolog.Nop())
	go h.Run()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeWS(w, r, r.URL.Query().Get("id"))
	}))
	t.Cleanup(func() {
		h.Stop()
		srv.Close()
	})
	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url, identity string) *Subscriber {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sub, err := Dial(ctx, url+"?id="+identity)
	require.NoError(t, err)
	t.Cleanup(func() { sub.Close() })
	return sub
}

func TestBroadcasterUpdateReachesViewers(t *testing.T) {
	hub, url := startHub(t, "seller")

	viewer := dial(t, url, "viewer-1")
	go viewer.Run(context.Background())

	hub.SetCarousel([]ProductRef{{ID: "p1", Name: "Vintage Tee", PriceCents: 2500}}, true)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m, err := viewer.WaitCarousel(ctx)
	require.NoError(t, err)
	require.Len(t, m.Products, 1)
	assert.Equal(t, "p1", m.Products[0].ID)
	assert.True(t, m.Visible)
}

func TestLateJoinerRecoversSnapshot(t *testing.T) {
	hub, url := startHub(t, "seller")

	// Carousel set before anyone is connected; the broadcast goes nowhere.
	hub.SetCarousel([]ProductRef{{ID: "p1", Name: "Mug", PriceCents: 900}}, true)

	late := dial(t, url, "viewer-late")
	go late.Run(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m, err := late.WaitCarousel(ctx)
	require.NoError(t, err, "state request replays the snapshot to a late joiner")
	require.Len(t, m.Products, 1)
	assert.Equal(t, "p1", m.Products[0].ID)
}

func TestCarouselIsLatestWins(t *testing.T) {
	hub, url := startHub(t, "seller")

	viewer := dial(t, url, "viewer-1")
	go viewer.Run(context.Background())

	hub.SetCarousel([]ProductRef{{ID: "old"}}, true)
	hub.SetCarousel([]ProductRef{{ID: "new"}}, true)

	// Both updates are in flight; wait until the second lands.
	require.Eventually(t, func() bool {
		m, ok := viewer.Carousel()
		return ok && len(m.Products) == 1 && m.Products[0].ID == "new"
	}, 5*time.Second, 10*time.Millisecond, "a later snapshot wholly replaces the earlier one")
}

func TestNonBroadcasterCarouselDropped(t *testing.T) {
	hub, url := startHub(t, "seller")

	rogue := dial(t, url, "viewer-rogue")
	go rogue.Run(context.Background())

	require.NoError(t, rogue.send(Message{
		Type:     TypeCarouselUpdate,
		Products: []ProductRef{{ID: "hijack"}},
	}))

	// Give the hub time to process, then confirm no snapshot took hold.
	time.Sleep(200 * time.Millisecond)
	_, ok := hub.Snapshot()
	assert.False(t, ok, "viewers cannot publish carousel state")
}

func TestChatIsSequencedAndAttributed(t *testing.T) {
	hub, url := startHub(t, "seller")

	var mu sync.Mutex
	var got []Message

	listener := dial(t, url, "viewer-listen")
	listener.OnChat = func(m Message) {
		mu.Lock()
		got = append(got, m)
		mu.Unlock()
	}
	go listener.Run(context.Background())

	// A snapshot round-trip confirms the listener is registered before any
	// chat is published.
	hub.SetCarousel([]ProductRef{{ID: "p1"}}, true)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := listener.WaitCarousel(ctx)
	require.NoError(t, err)

	talker := dial(t, url, "viewer-talk")
	go talker.Run(context.Background())

	require.NoError(t, talker.SendChat("Ava", "first"))
	require.NoError(t, talker.SendChat("Ava", "second"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "first", got[0].Body)
	assert.Equal(t, "second", got[1].Body)
	assert.Equal(t, "viewer-talk", got[0].SenderID, "sender identity is server-assigned")
	assert.NotEmpty(t, got[0].ID)
	assert.Less(t, got[0].Seq, got[1].Seq, "sequence numbers are monotonic")
	assert.False(t, got[0].SentAt.IsZero())
}

func TestWaitCarouselGivesUpAfterBudget(t *testing.T) {
	orig := stateRequestBackoff
	stateRequestBackoff = []time.Duration{10 * time.Millisecond, 10 * time.Millisecond}
	defer func() { stateRequestBackoff = orig }()

	_, url := startHub(t, "seller")

	viewer := dial(t, url, "viewer-1")
	go viewer.Run(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := viewer.WaitCarousel(ctx)
	assert.ErrorIs(t, err, ErrStateUnavailable, "no snapshot ever set, request budget runs out")
}

func TestStopReportsPeakViewers(t *testing.T) {
	hub, url := startHub(t, "seller")

	var mu sync.Mutex
	heard := map[string]bool{}
	onChat := func(who string) func(Message) {
		return func(Message) {
			mu.Lock()
			heard[who] = true
			mu.Unlock()
		}
	}

	v1 := dial(t, url, "viewer-1")
	v1.OnChat = onChat("viewer-1")
	go v1.Run(context.Background())
	v2 := dial(t, url, "viewer-2")
	v2.OnChat = onChat("viewer-2")
	go v2.Run(context.Background())

	// Registration is async; a chat echo reaching both proves both joined.
	require.Eventually(t, func() bool {
		_ = v1.SendChat("Ava", "ping")
		mu.Lock()
		defer mu.Unlock()
		return heard["viewer-1"] && heard["viewer-2"]
	}, 5*time.Second, 50*time.Millisecond)

	peak := hub.Stop()
	assert.GreaterOrEqual(t, peak, 2)
}
