package webserver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/stake-plus/govdecisions/src/actions/core"
)

var _ core.Module = (*Server)(nil)

// Server runs the REST surface as an actions module.
type Server struct {
	addr    string
	deps    Deps
	httpSrv *http.Server
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewServer(addr string, deps Deps) *Server {
	return &Server{addr: addr, deps: deps}
}

func (s *Server) Name() string { return "http" }

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.httpSrv == nil {
		return s.addr
	}
	return s.httpSrv.Addr
}

func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("http: listen %s: %w", s.addr, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.httpSrv = &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           New(runCtx, s.deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http: %v", err)
		}
	}()
	log.Printf("http: listening on %s", s.httpSrv.Addr)
	return nil
}

func (s *Server) Stop(ctx context.Context) {
	if s.httpSrv == nil {
		return
	}
	shutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutCtx); err != nil {
		log.Printf("http: shutdown: %v", err)
	}
	<-s.done
	s.cancel()
	s.httpSrv = nil
}
