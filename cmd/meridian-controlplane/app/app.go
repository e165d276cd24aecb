// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

// Package app assembles and runs the control plane process: the gRPC
// facade, the operation worker pool and the instance state machine, all
// over one shared store.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/meridian-cloud/meridian/pkg/authz"
	"github.com/meridian-cloud/meridian/pkg/bastion"
	"github.com/meridian-cloud/meridian/pkg/identity"
	"github.com/meridian-cloud/meridian/pkg/ipam"
	"github.com/meridian-cloud/meridian/pkg/metrics"
	"github.com/meridian-cloud/meridian/pkg/operation"
	"github.com/meridian-cloud/meridian/pkg/operation/executor"
	"github.com/meridian-cloud/meridian/pkg/proxmox"
	"github.com/meridian-cloud/meridian/pkg/server"
	"github.com/meridian-cloud/meridian/pkg/service"
	"github.com/meridian-cloud/meridian/pkg/store"
	"github.com/meridian-cloud/meridian/pkg/vpn"
	"github.com/meridian-cloud/meridian/pkg/worker"
)

// Options are the command line overrides on top of the environment
// configuration.
type Options struct {
	Development bool
	ListenAddr  string
}

// AddFlags implements the flag surface of the command.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Development, "development", false, "log in human-readable development format")
	fs.StringVar(&o.ListenAddr, "listen-addr", "", "override the API listen address")
}

// Apply folds the set flags into cfg.
func (o *Options) Apply(cfg *Config) {
	if o.Development {
		cfg.LogDevelopment = true
	}
	if o.ListenAddr != "" {
		cfg.ListenAddr = o.ListenAddr
	}
}

// NewCommand returns the root command of the control plane.
func NewCommand() *cobra.Command {
	opts := &Options{}
	cmd := &cobra.Command{
		Use:          "meridian-controlplane",
		Short:        "Runs the Meridian cloud control plane",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig()
			if err != nil {
				return err
			}
			opts.Apply(cfg)
			log, err := newLogger(cfg.LogDevelopment)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, log)
		},
	}
	opts.AddFlags(cmd.Flags())
	return cmd
}

func newLogger(development bool) (logr.Logger, error) {
	var (
		zl  *zap.Logger
		err error
	)
	if development {
		zl, err = zap.NewDevelopment()
	} else {
		zl, err = zap.NewProduction()
	}
	if err != nil {
		return logr.Logger{}, err
	}
	return zapr.NewLogger(zl), nil
}

func run(ctx context.Context, cfg *Config, log logr.Logger) (err error) {
	st, err := store.Open(ctx, store.Config{DSN: cfg.DatabaseURL}, log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			err = multierror.Append(err, cerr)
		}
	}()

	authzClient, err := authz.NewClient(cfg.AuthzURL, cfg.AuthzPresharedKey)
	if err != nil {
		return err
	}

	verifier, err := identity.NewOIDCVerifier(ctx, identity.OIDCConfig{
		IssuerURL: cfg.OIDCDiscoveryURL,
		ClientID:  cfg.OIDCClientID,
	})
	if err != nil {
		return err
	}
	binder := identity.NewBinder(st, verifier, log)
	if _, err := binder.EnsureRootServiceAccount(ctx, cfg.RootServiceAccountKey); err != nil {
		return err
	}

	pve, err := proxmox.NewClient(proxmox.Config{
		Endpoint:           cfg.ProxmoxEndpoint,
		TokenID:            cfg.ProxmoxTokenID,
		Secret:             cfg.ProxmoxSecret,
		InsecureSkipVerify: cfg.ProxmoxInsecure,
	}, log)
	if err != nil {
		return err
	}

	vpnClient, err := vpn.New(vpn.Config{Endpoint: cfg.VpnAPIURL, APIToken: cfg.VpnAPIKey})
	if err != nil {
		return err
	}
	bastionClient, err := bastion.New(bastion.Config{Endpoint: cfg.BastionAPIURL, APIToken: cfg.BastionAPIKey})
	if err != nil {
		return err
	}
	k8sClient, err := newK8sClient(cfg.Kubeconfig)
	if err != nil {
		return err
	}

	queue := operation.NewQueue(st, log)
	allocator := ipam.New(st, log)
	snippets := service.NewSnippetStore(cfg.SnippetsDirectory, cfg.SnippetsVolumeID)

	services := service.New(service.Deps{
		Store:     st,
		Authz:     authzClient,
		Queue:     queue,
		Allocator: allocator,
		Proxmox:   pve,
		Snippets:  snippets,
		Log:       log,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	dispatcher := operation.NewDispatcher(
		executor.NewAuthz(authzClient),
		executor.NewVpn(vpnClient),
		executor.NewBastion(bastionClient),
		executor.NewK8s(k8sClient),
	)

	listener, err := store.NewListener(ctx, cfg.DatabaseURL, store.OperationsChannel, log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := listener.Close(context.Background()); cerr != nil {
			err = multierror.Append(err, cerr)
		}
	}()

	pool := worker.NewPool(queue, dispatcher, listener, st, m, log, worker.Config{
		Concurrency:  cfg.WorkerConcurrency,
		PollInterval: cfg.PollInterval(),
	})
	stateMachine := worker.NewStateMachine(st, pve, allocator, m, log, 0)

	api := server.New(server.Config{
		Addr:           cfg.ListenAddr,
		AllowedOrigins: cfg.AllowedOrigins,
	}, services, binder, log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return api.Run(ctx) })
	g.Go(func() error { return pool.Run(ctx) })
	g.Go(func() error { return stateMachine.Run(ctx) })
	g.Go(func() error { return runDebugServer(ctx, cfg.DebugAddr, registry, st, log) })

	log.Info("control plane started")
	return g.Wait()
}

func newK8sClient(kubeconfig string) (kubernetes.Interface, error) {
	var (
		restCfg *rest.Config
		err     error
	)
	if kubeconfig != "" {
		restCfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	} else {
		restCfg, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, err
	}
	return kubernetes.NewForConfig(restCfg)
}

// runDebugServer exposes /healthz, /readyz and /metrics on the debug port.
func runDebugServer(ctx context.Context, addr string, registry *prometheus.Registry, st *store.Store, log logr.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := st.DB().PingContext(pingCtx); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	log.Info("debug server started", "addr", addr)
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
