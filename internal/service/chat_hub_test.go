package service

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestReadPumpReturnsAfterHubStop(t *testing.T) {
	hub := NewChatHub(nil, nil)
	// Run 未启动，unregister 没有接收方
	hub.Stop()

	conns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	defer srv.Close()

	peer, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)

	c := &Client{Hub: hub, Conn: <-conns, Send: make(chan []byte, 1), MemberID: 1, Limiter: rate.NewLimiter(rate.Inf, 1)}
	exited := make(chan struct{})
	go func() {
		c.readPump()
		close(exited)
	}()

	peer.Close()
	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("readPump blocked after hub stopped")
	}
}

func TestStopDisconnectsClients(t *testing.T) {
	hub := NewChatHub(nil, nil)
	go hub.Run()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r, 7)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.IsMemberOnline(7) }, 2*time.Second, 10*time.Millisecond)

	hub.Stop()
	assert.False(t, hub.IsMemberOnline(7))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			var closeErr *websocket.CloseError
			assert.ErrorAs(t, err, &closeErr)
			return
		}
	}
}
