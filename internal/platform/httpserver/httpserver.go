package httpserver

import (
	"net/http"
	"time"
)

// The read/write timeouts bracket the router's 30 second per-request budget
// with headroom for slow result payloads; a stalled client cannot hold a
// connection past them.
const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 35 * time.Second
	writeTimeout      = 35 * time.Second
	idleTimeout       = 2 * time.Minute
)

// New builds the engine's HTTP server around the router.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
}
