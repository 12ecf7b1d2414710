package router

import (
	"time"

	"github.com/gorilla/websocket"
)

// Voice-agent connections sit idle between utterances, sometimes for minutes,
// so liveness comes from protocol-level pings rather than traffic. A peer
// that goes pongWait without answering is treated as gone and its read loop
// unblocks with an error.
const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
)

// startKeepalive arms the read deadline, installs the pong handler, and pings
// the peer on a timer. Pings share the connection's write mutex with message
// delivery. The returned stop func ends the ping goroutine.
func (cc *clientConn) startKeepalive() (stop func()) {
	conn := cc.conn
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cc.mu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
				cc.mu.Unlock()
				if err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }
}
