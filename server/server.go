package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sisu-network/lib/log"
)

type Server struct {
	handler       *rpc.Server
	listenAddress string
	srv           *http.Server
}

// NewServer registers the api under the "bridge" namespace.
func NewServer(api *ApiHandler, port int) (*Server, error) {
	handler := rpc.NewServer()
	if err := handler.RegisterName("bridge", api); err != nil {
		return nil, err
	}

	return &Server{
		handler:       handler,
		listenAddress: fmt.Sprintf("0.0.0.0:%d", port),
	}, nil
}

func (s *Server) Run() error {
	listener, err := net.Listen("tcp", s.listenAddress)
	if err != nil {
		return err
	}

	s.srv = &http.Server{Handler: s.handler, ReadHeaderTimeout: 10 * time.Second}
	log.Info("Running server at ", s.listenAddress)

	if err := s.srv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

func (s *Server) Stop() error {
	s.handler.Stop()
	if s.srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
