package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/cuemby/sysrepo-engine/internal/access"
	"github.com/cuemby/sysrepo-engine/internal/builtin"
	"github.com/cuemby/sysrepo-engine/internal/config"
	"github.com/cuemby/sysrepo-engine/internal/dispatch"
	"github.com/cuemby/sysrepo-engine/internal/engine"
	"github.com/cuemby/sysrepo-engine/internal/metrics"
	"github.com/cuemby/sysrepo-engine/internal/notify"
	"github.com/cuemby/sysrepo-engine/internal/persist"
	"github.com/cuemby/sysrepo-engine/internal/schema"
	"github.com/cuemby/sysrepo-engine/internal/session"
	"github.com/cuemby/sysrepo-engine/internal/telemetry"
	"github.com/cuemby/sysrepo-engine/internal/transport"
	"github.com/cuemby/sysrepo-engine/internal/wire"
)

// handlerProxy breaks the construction cycle between transport.Server
// (which needs a RequestHandler up front) and dispatch.Processor (which
// needs the server, via internal/notify.Broker, as its notification
// Dispatcher): the server is built against the proxy, and the real
// processor is swapped in once everything downstream of the server also
// exists.
type handlerProxy struct {
	p atomic.Pointer[dispatch.Processor]
}

func (h *handlerProxy) set(p *dispatch.Processor) { h.p.Store(p) }

func (h *handlerProxy) Handle(conn transport.Conn, req *wire.Request) *wire.Response {
	return h.p.Load().Handle(conn, req)
}

func (h *handlerProxy) ConnectionClosed(connID uint64) {
	h.p.Load().ConnectionClosed(connID)
}

// Run wires up and serves the engine until ctx is cancelled or it receives
// SIGTERM/SIGINT, used identically by cmd/sysrepo-engined's default
// invocation and cmd/sysrepo-enginedctl's "run" subcommand (§4.9
// EXPANSION) so the two binaries share one startup/shutdown path instead
// of reimplementing it twice.
func Run(ctx context.Context, cfg *config.Config) error {
	log := telemetry.WithComponent("main")

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	pidLock, err := AcquirePIDLock(cfg.PIDFile)
	if err != nil {
		return fmt.Errorf("acquire pidfile lock: %w", err)
	}
	defer pidLock.Release()

	sc := schema.NewContext()
	for name, m := range builtin.Registry() {
		if err := sc.Install(m); err != nil {
			return fmt.Errorf("install builtin module %s: %w", name, err)
		}
	}

	ps := persist.NewStore(cfg.DataDir)
	subs := notify.NewIndex(ps)

	sessions := session.NewManager()
	ctl := access.NewController(cfg.DataDir)
	iterators := access.NewIteratorRegistry()

	srvCfg := transport.Config{
		SocketPath: cfg.SocketPath,
		MaxConns:   cfg.MaxConns,
		MaxMsgSize: cfg.MaxMsgSize,
	}
	proxy := &handlerProxy{}
	srv := transport.NewServer(srvCfg, sessions, proxy)

	broker := notify.NewBroker(subs, srv)
	h := engine.New(sc, ps, broker, subs)
	proc := dispatch.New(h, sessions, ctl, iterators, subs, builtin.Registry())
	proxy.set(proc)

	broker.Start()
	defer broker.Stop()

	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn().Err(err).Msg("metrics server exited")
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	log.Info().
		Str("socket", cfg.SocketPath).
		Str("data_dir", cfg.DataDir).
		Str("metrics_addr", cfg.MetricsAddr).
		Msg("sysrepo-engined started")

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-ctx.Done():
		log.Info().Msg("context cancelled, shutting down")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("control socket listener exited unexpectedly")
			return err
		}
	}

	srv.Stop()
	if err := metricsSrv.Shutdown(context.Background()); err != nil {
		log.Warn().Err(err).Msg("metrics server shutdown")
	}
	log.Info().Msg("sysrepo-engined stopped")
	return nil
}
