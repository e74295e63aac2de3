// Package ssserver implements the storage server's two-sided connection
// layer: the outbound session that registers with the name server and
// serves its internal requests, and the inbound textual listener that
// serves clients directly (read/write/undo/checkpoint/access requests).
package ssserver

import (
	"net"
	"sync"
	"time"

	"github.com/marmos91/dfs/internal/logger"
	"github.com/marmos91/dfs/internal/metrics"
	"github.com/marmos91/dfs/internal/ssaccess"
	"github.com/marmos91/dfs/internal/sscheckpoint"
	"github.com/marmos91/dfs/internal/ssfs"
	"github.com/marmos91/dfs/internal/sslock"
	"github.com/marmos91/dfs/internal/ssmeta"
	"github.com/marmos91/dfs/internal/ssundo"
	"github.com/marmos91/dfs/internal/sswrite"
)

// Server is one storage server: its local stores, its write engine, and
// the two connections it maintains — one outbound to the name server, one
// inbound listener for direct client sessions.
type Server struct {
	ListenAddr string
	NSAddr     string
	PublicIP   string
	PublicPort uint32

	Layout      ssfs.Layout
	Meta        *ssmeta.Store
	Locks       *sslock.Table
	Write       *sswrite.Engine
	Undo        *ssundo.Store
	Checkpoints *sscheckpoint.Store
	Access      *ssaccess.Store
	Metrics     *metrics.SSMetrics

	listener     net.Listener
	shutdown     chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// New wires a Server out of its component stores, all rooted at base.
func New(listenAddr, nsAddr, publicIP string, publicPort uint32, base string, m *metrics.SSMetrics) (*Server, error) {
	layout := ssfs.New(base)
	meta, err := ssmeta.Open(layout.MetadataFile())
	if err != nil {
		return nil, err
	}
	locks := sslock.New()
	undo := ssundo.New(layout)

	return &Server{
		ListenAddr:  listenAddr,
		NSAddr:      nsAddr,
		PublicIP:    publicIP,
		PublicPort:  publicPort,
		Layout:      layout,
		Meta:        meta,
		Locks:       locks,
		Write:       sswrite.New(layout, locks, meta, undo),
		Undo:        undo,
		Checkpoints: sscheckpoint.New(layout),
		Access:      ssaccess.New(layout),
		Metrics:     m,
		shutdown:    make(chan struct{}),
	}, nil
}

// ListenAndServe runs both halves of the server: the NS registration
// session (reconnecting on failure) in the background, and the inbound
// client listener in the foreground. It blocks until Stop is called.
func (s *Server) ListenAndServe() error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runNSSession()
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.watchMetadata()
	}()

	ln, err := net.Listen("tcp", s.ListenAddr)
	if err != nil {
		return err
	}
	s.listener = ln
	logger.Info("ssserver: listening for clients", logger.ClientAddr(ln.Addr().String()))

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				s.wg.Wait()
				return nil
			default:
				logger.Warn("ssserver: accept error", logger.Err(err))
				return err
			}
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleClient(conn)
		}()
	}
}

// Stop closes the client listener and the NS session, and waits for all
// in-flight handlers to exit.
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
// handlers after timeout elapses, so a stuck client or NS session can't
// hang shutdown forever.
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
		logger.Warn("ssserver: shutdown timed out waiting for in-flight connections", logger.DurationMs(float64(timeout.Milliseconds())))
	}
}

// Addr returns the bound client listen address, or "" if not yet listening.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// nsReconnectDelay is how long the session loop waits before redialing the
// name server after a registration or transaction failure.
const nsReconnectDelay = 2 * time.Second
