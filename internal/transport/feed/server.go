// Package feed streams marketplace events to websocket subscribers.
// Clients send HELLO with an optional kind filter, receive WELCOME with
// a market snapshot, and then MARKET_EVENT messages as they happen.
// Slow readers are disconnected rather than allowed to stall the feed.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"aisociety.ai/internal/economy/market"
	"aisociety.ai/internal/economy/resource"
	"aisociety.ai/internal/protocol"
)

const sendBuf = 256

type Server struct {
	mkt *market.Marketplace
	log *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu   sync.Mutex
	subs map[*subscriber]struct{}

	slowDrops atomic.Uint64
}

type subscriber struct {
	id    string
	kinds map[string]struct{} // empty = all kinds
	out   chan []byte
	slow  atomic.Bool
}

func NewServer(mkt *market.Marketplace, logger *log.Logger) *Server {
	return &Server{
		mkt: mkt,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		subs: make(map[*subscriber]struct{}),
	}
}

// OnMarketEvent fans the event out to every matching subscriber. It
// runs under the marketplace lock: sends are non-blocking, and a
// subscriber with a full queue is dropped on the spot.
func (s *Server) OnMarketEvent(evt market.Event) {
	b, err := json.Marshal(protocol.FromMarketEvent(evt))
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		if !sub.wants(evt.Kind) {
			continue
		}
		select {
		case sub.out <- b:
		default:
			// Closing out wakes the writer, which reports E_SLOW_READER.
			sub.slow.Store(true)
			delete(s.subs, sub)
			close(sub.out)
			s.slowDrops.Add(1)
			if s.log != nil {
				s.log.Printf("feed: dropped slow subscriber %s", sub.id)
			}
		}
	}
}

func (sub *subscriber) wants(kind resource.Kind) bool {
	if len(sub.kinds) == 0 || kind == "" {
		return true
	}
	_, ok := sub.kinds[string(kind)]
	return ok
}

func (s *Server) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Server) SlowReaderDrops() uint64 { return s.slowDrops.Load() }

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sub := s.handshake(conn)
		if sub == nil {
			return
		}
		defer s.unsubscribe(sub)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-sub.out:
					if !ok {
						if sub.slow.Load() {
							_ = writeJSON(conn, protocol.ErrorMsg{
								Type:            protocol.TypeError,
								ProtocolVersion: protocol.Version,
								Code:            protocol.ErrSlowReader,
								Message:         "event queue overflow",
							})
						}
						_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "slow reader"), time.Now().Add(time.Second))
						cancel()
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop: a re-sent HELLO updates the kind filter.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeHello {
				continue
			}
			var hello protocol.HelloMsg
			if err := json.Unmarshal(msg, &hello); err != nil {
				continue
			}
			if hello.ProtocolVersion != protocol.Version {
				continue
			}
			kinds, err := s.filterFor(hello.Kinds)
			if err != nil {
				// The writer goroutine owns the connection; queue the
				// error instead of writing from the read side.
				s.sendError(sub, protocol.ErrUnknownKind, err.Error())
				continue
			}
			s.mu.Lock()
			sub.kinds = kinds
			s.mu.Unlock()
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) *subscriber {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		s.reject(conn, protocol.ErrProtoBadRequest, "first message must be HELLO")
		return nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		s.reject(conn, protocol.ErrProtoBadRequest, "malformed HELLO")
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		s.reject(conn, protocol.ErrProtoVersion, fmt.Sprintf("want protocol_version %s", protocol.Version))
		return nil
	}
	kinds, err := s.filterFor(hello.Kinds)
	if err != nil {
		s.reject(conn, protocol.ErrUnknownKind, err.Error())
		return nil
	}

	sub := &subscriber{
		id:    fmt.Sprintf("F%d", s.nextID.Add(1)),
		kinds: kinds,
		out:   make(chan []byte, sendBuf),
	}

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		FeedID:          sub.id,
		Stats:           protocol.FromStats(s.mkt.Stats()),
	}
	if err := writeJSON(conn, welcome); err != nil {
		return nil
	}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()
	return sub
}

// filterFor validates requested kinds against the marketplace's price
// book and open offers. Clients that want everything send no filter.
func (s *Server) filterFor(requested []string) (map[string]struct{}, error) {
	if len(requested) == 0 {
		return nil, nil
	}
	known := make(map[string]struct{})
	for _, k := range s.mkt.KnownKinds() {
		known[string(k)] = struct{}{}
	}
	kinds := make(map[string]struct{}, len(requested))
	for _, k := range requested {
		k = strings.TrimSpace(k)
		if _, ok := known[k]; !ok {
			return nil, fmt.Errorf("unknown kind %q", k)
		}
		kinds[k] = struct{}{}
	}
	return kinds, nil
}

func (s *Server) unsubscribe(sub *subscriber) {
	s.mu.Lock()
	delete(s.subs, sub)
	s.mu.Unlock()
}

// sendError queues an error message on a live subscriber's channel. A
// subscriber already dropped for slowness is skipped; its channel is
// closed.
func (s *Server) sendError(sub *subscriber, code, message string) {
	b, err := json.Marshal(protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         message,
	})
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, live := s.subs[sub]; !live {
		return
	}
	select {
	case sub.out <- b:
	default:
	}
}

func (s *Server) reject(conn *websocket.Conn, code, message string) {
	_ = writeJSON(conn, protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         message,
	})
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
