package observer

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"epiworld.sim/internal/observerproto"
	"epiworld.sim/internal/sim/replicate"
)

func testServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(observerproto.BatchInfo{ID: "b1", Model: "seir", Replicates: 3, Statuses: []string{"S", "I"}}, nil)
	ts := httptest.NewServer(s.Mux())
	t.Cleanup(ts.Close)
	return s, ts
}

func dial(t *testing.T, ts *httptest.Server, sub observerproto.SubscribeMsg) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/observer/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	return conn
}

func readType(t *testing.T, conn *websocket.Conn) (string, []byte) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return head.Type, b
}

func progress(done, idx int) replicate.ProgressEvent {
	return replicate.ProgressEvent{Done: done, Total: 3, Replicate: idx, Seed: int64(idx), Digest: "d", Elapsed: 2 * time.Millisecond, Counts: []int{9, 1}}
}

func TestServer_ReplayThenLiveThenDone(t *testing.T) {
	s, ts := testServer(t)
	s.Publish(progress(1, 0))
	s.Publish(progress(2, 2))

	conn := dial(t, ts, observerproto.SubscribeMsg{Type: observerproto.TypeSubscribe, ProtocolVersion: observerproto.Version, Replay: true})

	var got []observerproto.ProgressMsg
	for len(got) < 2 {
		typ, b := readType(t, conn)
		if typ != observerproto.TypeProgress {
			t.Fatalf("got %s want PROGRESS", typ)
		}
		var m observerproto.ProgressMsg
		_ = json.Unmarshal(b, &m)
		got = append(got, m)
	}
	if got[0].Replicate != 0 || got[1].Replicate != 2 || got[1].Done != 2 {
		t.Fatalf("replay: %+v", got)
	}

	s.Publish(progress(3, 1))
	s.Finish(nil)

	typ, b := readType(t, conn)
	if typ != observerproto.TypeProgress {
		t.Fatalf("got %s want PROGRESS", typ)
	}
	var m observerproto.ProgressMsg
	_ = json.Unmarshal(b, &m)
	if m.Replicate != 1 || m.ElapsedMS != 2 || len(m.Counts) != 2 {
		t.Fatalf("live progress: %+v", m)
	}

	typ, b = readType(t, conn)
	if typ != observerproto.TypeDone {
		t.Fatalf("got %s want DONE", typ)
	}
	var d observerproto.DoneMsg
	_ = json.Unmarshal(b, &d)
	if d.Done != 3 || d.Total != 3 || d.Error != "" {
		t.Fatalf("done: %+v", d)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected connection to close after DONE")
	}
}

func TestServer_SubscribeAfterFinish(t *testing.T) {
	s, ts := testServer(t)
	s.Publish(progress(1, 0))
	s.Finish(errors.New("replicate 1: boom"))
	s.Publish(progress(2, 1)) // ignored after finish

	conn := dial(t, ts, observerproto.SubscribeMsg{Type: observerproto.TypeSubscribe, ProtocolVersion: observerproto.Version})
	typ, b := readType(t, conn)
	if typ != observerproto.TypeDone {
		t.Fatalf("got %s want DONE", typ)
	}
	var d observerproto.DoneMsg
	_ = json.Unmarshal(b, &d)
	if d.Done != 1 || d.Error != "replicate 1: boom" {
		t.Fatalf("done: %+v", d)
	}
}

func TestServer_RejectsBadHandshake(t *testing.T) {
	_, ts := testServer(t)
	conn := dial(t, ts, observerproto.SubscribeMsg{Type: "HELLO", ProtocolVersion: observerproto.Version})
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
}

func TestServer_Bootstrap(t *testing.T) {
	s, ts := testServer(t)
	s.Publish(progress(1, 0))

	resp, err := http.Get(ts.URL + "/v1/observer/bootstrap")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var boot observerproto.BootstrapResponse
	if err := json.NewDecoder(resp.Body).Decode(&boot); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if boot.Batch.ID != "b1" || boot.Done != 1 || len(boot.Batch.Statuses) != 2 {
		t.Fatalf("bootstrap: %+v", boot)
	}

	post, err := http.Post(ts.URL+"/v1/observer/bootstrap", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	post.Body.Close()
	if post.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("post status: %d", post.StatusCode)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:5555": true,
		"[::1]:80":       true,
		"10.0.0.2:80":    false,
		"garbage":        false,
	}
	for addr, want := range cases {
		if got := isLoopbackRemote(addr); got != want {
			t.Fatalf("%s: got %v want %v", addr, got, want)
		}
	}
}
