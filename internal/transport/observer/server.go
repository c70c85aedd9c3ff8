package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"epiworld.sim/internal/observerproto"
	"epiworld.sim/internal/sim/replicate"
)

// Server fans replicate progress out to loopback websocket observers.
type Server struct {
	log *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu      sync.Mutex
	batch   observerproto.BatchInfo
	sent    [][]byte
	done    []byte
	subs    map[string]chan []byte
	dropped uint64
}

func NewServer(batch observerproto.BatchInfo, logger *log.Logger) *Server {
	return &Server{
		log:   logger,
		batch: batch,
		subs:  map[string]chan []byte{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only
		},
	}
}

// Publish broadcasts a finished replicate. Slow observers lose messages instead of
// blocking the batch.
func (s *Server) Publish(ev replicate.ProgressEvent) {
	b, err := json.Marshal(observerproto.ProgressMsg{
		Type:            observerproto.TypeProgress,
		ProtocolVersion: observerproto.Version,
		Done:            ev.Done,
		Total:           ev.Total,
		Replicate:       ev.Replicate,
		Seed:            ev.Seed,
		Digest:          ev.Digest,
		ElapsedMS:       ev.Elapsed.Milliseconds(),
		Counts:          ev.Counts,
	})
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return
	}
	s.sent = append(s.sent, b)
	for id, ch := range s.subs {
		select {
		case ch <- b:
		default:
			s.dropped++
			if s.log != nil {
				s.log.Printf("observer %s: queue full, dropping progress (dropped=%d)", id, s.dropped)
			}
		}
	}
}

// Finish sends DONE to every observer and closes their streams. Later subscribers receive
// DONE right after the handshake.
func (s *Server) Finish(runErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return
	}
	msg := observerproto.DoneMsg{
		Type:            observerproto.TypeDone,
		ProtocolVersion: observerproto.Version,
		Done:            len(s.sent),
		Total:           s.batch.Replicates,
	}
	if runErr != nil {
		msg.Error = runErr.Error()
	}
	b, err := json.Marshal(msg)
	if err != nil {
		b = []byte(`{"type":"DONE"}`)
	}
	s.done = b
	for id, ch := range s.subs {
		select {
		case ch <- b:
		default:
		}
		close(ch)
		delete(s.subs, id)
	}
}

// Dropped reports how many progress messages were not delivered to a slow observer.
func (s *Server) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		s.mu.Lock()
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			Batch:           s.batch,
			Done:            len(s.sent),
		}
		s.mu.Unlock()

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

// subscribe registers an observer. It returns the messages to write before the live
// stream and a nil channel when the batch has already finished.
func (s *Server) subscribe(id string, replay bool) (backlog [][]byte, ch chan []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if replay {
		backlog = append(backlog, s.sent...)
	}
	if s.done != nil {
		return append(backlog, s.done), nil
	}
	ch = make(chan []byte, 256)
	s.subs[id] = ch
	return backlog, ch
}

func (s *Server) unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subs[id]; ok {
		close(ch)
		delete(s.subs, id)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub observerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad subscribe"), time.Now().Add(time.Second))
			return
		}
		if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		backlog, out := s.subscribe(sid, sub.Replay)
		if out != nil {
			defer s.unsubscribe(sid)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine. It closes the connection once the stream ends so the reader
		// loop below returns.
		writeErr := make(chan error, 1)
		go func() {
			write := func(b []byte) error {
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				return conn.WriteMessage(websocket.TextMessage, b)
			}
			finish := func(err error) {
				if err == nil {
					_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "batch done"), time.Now().Add(time.Second))
				}
				_ = conn.Close()
				writeErr <- err
			}
			for _, b := range backlog {
				if err := write(b); err != nil {
					finish(err)
					return
				}
			}
			if out == nil {
				finish(nil)
				return
			}
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b, ok := <-out:
					if !ok {
						finish(nil)
						return
					}
					if err := write(b); err != nil {
						finish(err)
						return
					}
				}
			}
		}()

		// Reader loop: observers only send control frames after the handshake.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		cancel()

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// Mux wires the observer endpoints under /v1/observer.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/observer/bootstrap", s.BootstrapHandler())
	mux.HandleFunc("/v1/observer/ws", s.WSHandler())
	return mux
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
