// Package server runs the inbound HTTP server of the application.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	proxyproto "github.com/pires/go-proxyproto"
	"gitlab.com/gitlab-org/labkit/log"

	"github.com/chtrembl/petstoreapp/internal/config"
)

const readHeaderTimeout = 10 * time.Second

type status int

const (
	StatusStarting status = iota
	StatusReady
	StatusOnShutdown
	StatusClosed
)

// Server serves the application handler on the configured listener.
type Server struct {
	Config *config.Config

	status     status
	statusMu   sync.RWMutex
	listenerMu sync.Mutex
	listener   net.Listener
	httpServer *http.Server
}

// NewServer creates a Server for handler.
func NewServer(cfg *config.Config, handler http.Handler) *Server {
	return &Server{
		Config: cfg,
		httpServer: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}
}

// ListenAndServe accepts connections until Shutdown is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer.BaseContext = func(net.Listener) context.Context { return ctx }

	if err := s.listen(ctx); err != nil {
		return err
	}

	if s.getStatus() != StatusOnShutdown {
		s.changeStatus(StatusReady)
	}

	// Serve returns ErrServerClosed right away when Shutdown came first.
	err := s.httpServer.Serve(s.getListener())
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}

	s.changeStatus(StatusClosed)

	return err
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx is done.
// A Shutdown before ListenAndServe makes it return without serving.
func (s *Server) Shutdown(ctx context.Context) error {
	s.changeStatus(StatusOnShutdown)

	return s.httpServer.Shutdown(ctx)
}

// Addr returns the address the server listens on, or nil before it listens.
func (s *Server) Addr() net.Addr {
	if l := s.getListener(); l != nil {
		return l.Addr()
	}

	return nil
}

// MonitoringServeMux returns the readiness and liveness probes.
func (s *Server) MonitoringServeMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc(s.Config.Server.ReadinessProbe, func(w http.ResponseWriter, r *http.Request) {
		if s.getStatus() == StatusReady {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})

	mux.HandleFunc(s.Config.Server.LivenessProbe, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return mux
}

func (s *Server) listen(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.Config.Server.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen for connection: %w", err)
	}

	if s.Config.Server.ProxyProtocol {
		policy, err := s.proxyPolicy()
		if err != nil {
			_ = listener.Close()
			return fmt.Errorf("invalid policy configuration: %w", err)
		}

		listener = &proxyproto.Listener{
			Listener:          listener,
			Policy:            policy,
			ReadHeaderTimeout: s.Config.ProxyHeaderTimeout(),
		}

		log.ContextLogger(ctx).Info("Proxy protocol is enabled")
	}

	log.WithContextFields(ctx, log.Fields{"tcp_address": listener.Addr().String()}).Info("Listening for HTTP connections")

	s.listenerMu.Lock()
	s.listener = listener
	s.listenerMu.Unlock()

	return nil
}

func (s *Server) getListener() net.Listener {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	return s.listener
}

func (s *Server) changeStatus(st status) {
	s.statusMu.Lock()
	s.status = st
	s.statusMu.Unlock()
}

func (s *Server) getStatus() status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()

	return s.status
}

func (s *Server) proxyPolicy() (proxyproto.PolicyFunc, error) {
	if len(s.Config.Server.ProxyAllowed) > 0 {
		return proxyproto.StrictWhiteListPolicy(s.Config.Server.ProxyAllowed)
	}

	// Values are taken from https://github.com/pires/go-proxyproto/blob/195fedcfbfc1be163f3a0d507fac1709e9d81fed/policy.go#L20
	switch strings.ToLower(s.Config.Server.ProxyPolicy) {
	case "require":
		return staticProxyPolicy(proxyproto.REQUIRE), nil
	case "ignore":
		return staticProxyPolicy(proxyproto.IGNORE), nil
	case "reject":
		return staticProxyPolicy(proxyproto.REJECT), nil
	default:
		return staticProxyPolicy(proxyproto.USE), nil
	}
}

func staticProxyPolicy(policy proxyproto.Policy) proxyproto.PolicyFunc {
	return func(_ net.Addr) (proxyproto.Policy, error) {
		return policy, nil
	}
}
