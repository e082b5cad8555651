package websocket

import "sync"

// SyncConn serializes writes to a single underlying connection. The fiber
// websocket connection tolerates at most one concurrent writer, and a
// registered connection is written to both by its own read loop (pong and
// error frames) and by registry fan-out goroutines, so every write to a live
// connection must go through the same SyncConn.
type SyncConn struct {
	mu   sync.Mutex
	conn Conn
}

func NewSyncConn(conn Conn) *SyncConn {
	return &SyncConn{conn: conn}
}

func (c *SyncConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *SyncConn) Close() error {
	return c.conn.Close()
}
