package signal

import "sync"

// Hub tracks which registered usernames are attached to this process and the
// connection each one owns. The shared store is the cross-process truth about
// presence; sockets themselves are local, so room broadcasts resolve members
// from the registry and deliver to whichever of them live here.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*WsConn
}

func NewHub() *Hub {
	return &Hub{conns: make(map[string]*WsConn)}
}

func (h *Hub) Attach(username string, conn *WsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[username] = conn
}

func (h *Hub) Detach(username string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, username)
}

func (h *Hub) Get(username string) (*WsConn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conn, ok := h.conns[username]
	return conn, ok
}
