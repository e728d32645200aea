package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jatango/liveshop/internal/metrics"
	"github.com/jatango/liveshop/internal/redisx"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type inbound struct {
	from *Client
	raw  []byte
}

type setCarouselReq struct {
	msg  Message
	resp chan struct{}
}

type snapshotReq struct {
	resp chan snapshotResp
}

type snapshotResp struct {
	msg Message
	ok  bool
}

// Hub fans one session's state out to every connected client. Exactly one
// identity (the broadcaster) may mutate the carousel; the hub holds the
// authoritative snapshot and answers carousel_request by rebroadcasting it,
// which replacement semantics make safe to repeat.
type Hub struct {
	SessionID     string
	BroadcasterID string

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	inbound    chan inbound
	setState   chan setCarouselReq
	getState   chan snapshotReq
	stop       chan struct{}
	stopOnce   sync.Once
	stopped    chan struct{}

	carousel    Message
	hasCarousel bool
	chatSeq     int64
	peakViewers int

	rdb *redis.Client // advisory viewer mirror, may be nil
	log zerolog.Logger
}

func NewHub(sessionID, broadcasterID string, rdb *redis.Client, log zerolog.Logger) *Hub {
	return &Hub{
		SessionID:     sessionID,
		BroadcasterID: broadcasterID,
		clients:       make(map[*Client]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		inbound:       make(chan inbound, 256),
		setState:      make(chan setCarouselReq),
		getState:      make(chan snapshotReq),
		stop:          make(chan struct{}),
		stopped:       make(chan struct{}),
		rdb:           rdb,
		log:           log.With().Str("session_id", sessionID).Logger(),
	}
}

// Run is the hub event loop; all session state is confined to this goroutine.
func (h *Hub) Run() {
	defer close(h.stopped)
	for {
		select {
		case <-h.stop:
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mirrorViewers()
			return

		case c := <-h.register:
			h.clients[c] = true
			if n := h.viewerCount(); n > h.peakViewers {
				h.peakViewers = n
			}
			metrics.ConnectedViewers.WithLabelValues(h.SessionID).Set(float64(h.viewerCount()))
			h.mirrorViewers()
			h.log.Debug().Str("identity", c.identity).Bool("broadcaster", c.broadcaster).Msg("client connected")

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				metrics.ConnectedViewers.WithLabelValues(h.SessionID).Set(float64(h.viewerCount()))
				h.mirrorViewers()
			}

		case in := <-h.inbound:
			h.handle(in)

		case req := <-h.setState:
			h.applyCarousel(req.msg)
			close(req.resp)

		case req := <-h.getState:
			req.resp <- snapshotResp{msg: h.carousel, ok: h.hasCarousel}
		}
	}
}

func (h *Hub) handle(in inbound) {
	var m Message
	if err := json.Unmarshal(in.raw, &m); err != nil {
		h.log.Warn().Err(err).Msg("bad message dropped")
		return
	}
	switch m.Type {
	case TypeCarouselUpdate:
		// Viewers never publish carousel state.
		if !in.from.broadcaster {
			h.log.Warn().Str("identity", in.from.identity).Msg("carousel update from non-broadcaster dropped")
			return
		}
		h.applyCarousel(m)

	case TypeCarouselRequest:
		// Late joiner asking for state. Rebroadcast the current snapshot to
		// everyone; extra copies are idempotent for anyone already caught up.
		if h.hasCarousel {
			h.broadcast(h.carousel)
		}

	case TypeChatMessage:
		h.chatSeq++
		m.ID = uuid.NewString()
		m.SenderID = in.from.identity
		m.Seq = h.chatSeq
		m.SentAt = time.Now().UTC()
		h.broadcast(m)
	}
}

func (h *Hub) applyCarousel(m Message) {
	m.Type = TypeCarouselUpdate
	h.carousel = m
	h.hasCarousel = true
	h.broadcast(m)
}

func (h *Hub) broadcast(m Message) {
	raw, err := json.Marshal(m)
	if err != nil {
		h.log.Error().Err(err).Msg("marshal broadcast")
		return
	}
	if m.Type == TypeCarouselUpdate {
		metrics.CarouselBroadcasts.Inc()
	}
	for c := range h.clients {
		select {
		case c.send <- raw:
		default:
			// Slow consumer: drop the connection, not the whole loop.
			close(c.send)
			delete(h.clients, c)
		}
	}
}

func (h *Hub) viewerCount() int {
	n := 0
	for c := range h.clients {
		if !c.broadcaster {
			n++
		}
	}
	return n
}

// mirrorViewers writes the advisory count to Redis with a short TTL; it is
// approximate by contract and best-effort by implementation.
func (h *Hub) mirrorViewers() {
	if h.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	key := fmt.Sprintf(redisx.KeyViewerCount, h.SessionID)
	_ = h.rdb.Set(ctx, key, h.viewerCount(), redisx.TTLViewerCount).Err()
}

// SetCarousel replaces the snapshot on behalf of the broadcaster's REST call
// and fans it out.
func (h *Hub) SetCarousel(products []ProductRef, visible bool) {
	req := setCarouselReq{
		msg:  Message{Type: TypeCarouselUpdate, Products: products, Visible: visible},
		resp: make(chan struct{}),
	}
	select {
	case h.setState <- req:
		<-req.resp
	case <-h.stopped:
	}
}

// Snapshot returns the current carousel, if one was ever set.
func (h *Hub) Snapshot() (Message, bool) {
	req := snapshotReq{resp: make(chan snapshotResp, 1)}
	select {
	case h.getState <- req:
		r := <-req.resp
		return r.msg, r.ok
	case <-h.stopped:
		return Message{}, false
	}
}

// Stop shuts the loop down and reports the peak viewer count.
func (h *Hub) Stop() int {
	h.stopOnce.Do(func() { close(h.stop) })
	<-h.stopped
	return h.peakViewers
}

// ServeWS upgrades the request and attaches the connection to the hub. The
// identity equal to the broadcaster's gets publish rights on the carousel.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, identity string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("ws upgrade failed")
		return
	}
	c := &Client{
		hub:         h,
		conn:        conn,
		send:        make(chan []byte, 256),
		identity:    identity,
		broadcaster: identity == h.BroadcasterID,
	}
	select {
	case h.register <- c:
	case <-h.stopped:
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}
