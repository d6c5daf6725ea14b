// Package fsrv implements the file-server command loop: the LIST,
// PULL and PUSH verbs of the wire protocol, served against the local
// filesystem. This is the "client" process in the system overview.
package fsrv

import (
	"context"
	"net"

	"github.com/haldring/syncd/internal/synclog"
)

// Server accepts TCP connections and serves the command loop on each.
type Server struct {
	listener net.Listener
	log      synclog.Logger
}

// Listen binds addr and returns a Server ready to Serve.
func Listen(addr string, log synclog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{listener: ln, log: log}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Serve accepts connections until ctx is canceled, handling each on
// its own goroutine. It closes the listener when ctx is done instead
// of polling a shutdown flag on a timer, which is the redesign §9
// calls for in place of the original 5-second-poll accept loop.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		h := &connHandler{conn: conn, log: s.log}
		go h.run(ctx)
	}
}

// Close closes the underlying listener directly, for callers that
// manage their own lifecycle instead of going through Serve's ctx.
func (s *Server) Close() error { return s.listener.Close() }
