package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// stateRequestBackoff is the late-joiner retry schedule: a viewer that
// connects after the latest broadcast keeps asking for the carousel on these
// delays until any carousel message shows up.
var stateRequestBackoff = []time.Duration{
	500 * time.Millisecond,
	1500 * time.Millisecond,
	3 * time.Second,
	5 * time.Second,
	8 * time.Second,
}

// Subscriber is the viewer side of the realtime channel. Carousel messages
// are applied latest-wins; chat is handed to OnChat in arrival order.
type Subscriber struct {
	conn *websocket.Conn

	mu        sync.Mutex
	carousel  Message
	hasState  bool
	stateOnce sync.Once
	stateCh   chan struct{} // closed when the first carousel arrives

	// OnChat, when set before Run, receives every chat message.
	OnChat func(Message)

	readDone chan struct{}
}

func Dial(ctx context.Context, url string) (*Subscriber, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &Subscriber{
		conn:     conn,
		stateCh:  make(chan struct{}),
		readDone: make(chan struct{}),
	}, nil
}

// Run pumps inbound messages until the connection drops or ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context) {
	defer close(s.readDone)
	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var m Message
		if err := json.Unmarshal(raw, &m); err != nil {
			continue
		}
		switch m.Type {
		case TypeCarouselUpdate:
			s.mu.Lock()
			s.carousel = m
			s.hasState = true
			s.mu.Unlock()
			// Any carousel message stops the request loop, addressed to us
			// or not.
			s.stateOnce.Do(func() { close(s.stateCh) })
		case TypeChatMessage:
			if s.OnChat != nil {
				s.OnChat(m)
			}
		}
	}
}

// WaitCarousel runs the late-joiner handshake: request state immediately,
// retry on the backoff schedule, stop the moment any carousel arrives. When
// the budget runs out it fails with ErrStateUnavailable; the session itself
// stays usable.
func (s *Subscriber) WaitCarousel(ctx context.Context) (Message, error) {
	if m, ok := s.Carousel(); ok {
		return m, nil
	}
	if err := s.send(Message{Type: TypeCarouselRequest}); err != nil {
		return Message{}, err
	}

	timer := time.NewTimer(stateRequestBackoff[0])
	defer timer.Stop()
	for attempt := 0; ; {
		select {
		case <-s.stateCh:
			m, _ := s.Carousel()
			return m, nil
		case <-ctx.Done():
			return Message{}, ctx.Err()
		case <-timer.C:
			attempt++
			if attempt >= len(stateRequestBackoff) {
				return Message{}, ErrStateUnavailable
			}
			if err := s.send(Message{Type: TypeCarouselRequest}); err != nil {
				return Message{}, err
			}
			timer.Reset(stateRequestBackoff[attempt])
		}
	}
}

// Carousel returns the latest applied snapshot.
func (s *Subscriber) Carousel() (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.carousel, s.hasState
}

// SendChat publishes a chat message; the hub assigns id, sequence and time.
func (s *Subscriber) SendChat(senderName, body string) error {
	return s.send(Message{Type: TypeChatMessage, SenderName: senderName, Body: body})
}

func (s *Subscriber) send(m Message) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, raw)
}

// Close tears the connection down and waits for the read loop to exit.
func (s *Subscriber) Close() error {
	err := s.conn.Close()
	<-s.readDone
	return err
}
