// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"
	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	"github.com/improbable-eng/grpc-web/go/grpcweb"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"google.golang.org/grpc"

	"github.com/meridian-cloud/meridian/pkg/identity"
	"github.com/meridian-cloud/meridian/pkg/service"
)

// Config tunes the facade.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string
	// AllowedOrigins whitelists browser origins for gRPC-Web. Empty
	// allows none; "*" allows all.
	AllowedOrigins []string
}

// Server serves the domain services over gRPC and gRPC-Web on one port.
type Server struct {
	cfg  Config
	grpc *grpc.Server
	http *http.Server
	log  logr.Logger
}

// New assembles the facade: the JSON codec, the auth interceptor and one
// hand-maintained descriptor per domain service.
func New(cfg Config, services *service.Services, binder *identity.Binder, log logr.Logger) *Server {
	gs := grpc.NewServer(
		grpc.ForceServerCodec(jsonCodec{}),
		grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(
			loggingInterceptor(log),
			authInterceptor(binder),
		)),
	)

	gs.RegisterService(organizationsDesc(services.Organizations), struct{}{})
	gs.RegisterService(projectsDesc(services.Projects), struct{}{})
	gs.RegisterService(zonesDesc(services.Zones), struct{}{})
	gs.RegisterService(hypervisorsDesc(services.Hypervisors), struct{}{})
	gs.RegisterService(instancesDesc(services.Instances), struct{}{})
	gs.RegisterService(vpcsDesc(services.VPCs), struct{}{})
	gs.RegisterService(vnetsDesc(services.VNets), struct{}{})
	gs.RegisterService(securityGroupsDesc(services.SecurityGroups), struct{}{})
	gs.RegisterService(ipamDesc(services.IPAM), struct{}{})
	gs.RegisterService(invitationsDesc(services.Invitations), struct{}{})
	gs.RegisterService(membersDesc(services.Members), struct{}{})
	gs.RegisterService(operationsDesc(services.Operations), struct{}{})

	allowed := func(origin string) bool {
		for _, o := range cfg.AllowedOrigins {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
	wrapped := grpcweb.WrapServer(gs,
		grpcweb.WithOriginFunc(allowed),
		grpcweb.WithAllowedRequestHeaders([]string{"authorization", "content-type", "x-grpc-web", "x-user-agent"}),
	)

	root := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case wrapped.IsGrpcWebRequest(r) || wrapped.IsAcceptableGrpcCorsRequest(r):
			wrapped.ServeHTTP(w, r)
		case r.ProtoMajor == 2 && strings.HasPrefix(r.Header.Get("Content-Type"), "application/grpc"):
			gs.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})

	// h2c lets native gRPC clients speak cleartext HTTP/2 on the same
	// port the gRPC-Web handler serves HTTP/1.1 on.
	handler := h2c.NewHandler(root, &http2.Server{})

	return &Server{
		cfg:  cfg,
		grpc: gs,
		http: &http.Server{Addr: cfg.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second},
		log:  log.WithName("server"),
	}
}

// Run serves until ctx is cancelled, then drains in-flight calls.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.log.Info("serving", "addr", s.cfg.Addr)

	errCh := make(chan error, 1)
	go func() { errCh <- s.http.Serve(lis) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = s.http.Shutdown(shutdownCtx)
		s.grpc.GracefulStop()
		s.log.Info("server stopped")
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
