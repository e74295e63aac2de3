// Package nsserver implements the name server's connection-handling layer:
// the accept loop, the per-client dispatcher, the per-storage-server
// registration handshake, the metadata refresh fan-out, and the exec
// command executor.
package nsserver

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/marmos91/dfs/internal/logger"
	"github.com/marmos91/dfs/internal/metrics"
	"github.com/marmos91/dfs/internal/nscache"
	"github.com/marmos91/dfs/internal/nsregistry"
	"github.com/marmos91/dfs/internal/nstrie"
	"github.com/marmos91/dfs/internal/nsusers"
	"github.com/marmos91/dfs/internal/wire"
)

// Server is the name server's connection-handling layer: one accept loop
// shared by both storage-server registrations and client sessions,
// dispatching on the first message's source component.
type Server struct {
	listenAddr string

	Trie     *nstrie.Index
	Cache    *nscache.Cache
	Registry *nsregistry.Registry
	Users    *nsusers.Registry
	Metrics  *metrics.NSMetrics

	listener     net.Listener
	shutdown     chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// New creates a Server listening on listenAddr ("ip:port"), with a cache
// of cacheCapacity entries and an SS registry of registryCapacity slots.
func New(listenAddr string, cacheCapacity, registryCapacity int, m *metrics.NSMetrics) *Server {
	trie := nstrie.New()
	cache := nscache.New(cacheCapacity)

	s := &Server{
		listenAddr: listenAddr,
		Trie:       trie,
		Cache:      cache,
		Users:      nsusers.New(),
		Metrics:    m,
		shutdown:   make(chan struct{}),
	}
	s.Registry = nsregistry.New(registryCapacity, s.onSSPurge)
	return s
}

// onSSPurge invalidates every trie and cache entry belonging to a removed
// storage server. It is the registry's onPurge callback.
func (s *Server) onSSPurge(index int) {
	removed := s.Trie.PurgeBySS(index)
	for _, filename := range removed {
		s.Cache.Invalidate(filename)
	}
	s.Cache.InvalidateBySS(index)
	if s.Metrics != nil {
		s.Metrics.SSPurgeTotal.Inc()
	}
}

// ListenAndServe binds the listen address and runs the accept loop until
// Stop is called. It blocks until the listener closes.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.listenAddr, err)
	}
	s.listener = ln
	logger.Info("nsserver: listening", logger.ClientAddr(ln.Addr().String()))

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				s.wg.Wait()
				return nil
			default:
				logger.Warn("nsserver: accept error", logger.Err(err))
				return err
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Stop closes the listener, signalling the accept loop to exit, and waits
// for in-flight connection handlers to finish. It does not forcibly close
// active connections: per-connection handlers observe socket errors on
// their own.
func (s *Server) Stop() {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)
		if s.listener != nil {
			s.listener.Close()
		}
	})
	s.wg.Wait()
}

// StopWithTimeout behaves like Stop but gives up waiting for in-flight
// handlers after timeout elapses, so a stuck connection can't hang shutdown
// forever.
func (s *Server) StopWithTimeout(timeout time.Duration) {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)
		if s.listener != nil {
			s.listener.Close()
		}
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		logger.Warn("nsserver: shutdown timed out waiting for in-flight connections", logger.DurationMs(float64(timeout.Milliseconds())))
	}
}

// Addr returns the bound listen address, or "" if not yet listening.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// handleConn reads the connection's first message and dispatches to either
// the storage-server registration handshake or the client session loop.
// Any other first message is a protocol violation: an error is sent and
// the connection closed.
func (s *Server) handleConn(conn net.Conn) {
	msg, err := wire.ReadMessage(conn)
	if err != nil {
		logger.Debug("nsserver: failed to read first message", logger.Err(err))
		conn.Close()
		return
	}

	switch {
	case msg.Header.Source == wire.ComponentSS && msg.Header.Type == wire.MsgRegister:
		s.handleSSRegistration(conn, msg)
	case msg.Header.Source == wire.ComponentClient && msg.Header.Type == wire.MsgRegisterClient:
		s.handleClientSession(conn, msg)
	default:
		wire.WriteError(conn, wire.ComponentNS, msg.Header.Source, "first message must be register or register_client")
		conn.Close()
	}
}
