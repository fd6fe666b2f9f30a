package commands

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/hashicorp/go-multierror"
	"github.com/marmos91/chanrpc/internal/buffer"
	"github.com/marmos91/chanrpc/internal/config"
	"github.com/marmos91/chanrpc/internal/logger"
	"github.com/marmos91/chanrpc/internal/streammgr"
	"github.com/marmos91/chanrpc/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var (
	listenAddress string
	appID         string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chanrpc demo server",
	Long: `serve loads configuration, starts a Prometheus metrics endpoint
(if enabled), and accepts chanrpc connections on the configured listen
address, answering every RpcRequest with its own body.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddress, "listen-address", "", "override server.listen_address")
	serveCmd.Flags().StringVar(&appID, "app-id", "", "override server.app_id")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// CLI flags take precedence over everything the loader merged.
	if cmd.Flags().Changed("listen-address") {
		cfg.Server.ListenAddress = listenAddress
	}
	if cmd.Flags().Changed("app-id") {
		cfg.Server.AppID = appID
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	registry := prometheus.NewRegistry()

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: fmt.Sprintf(":%d", cfg.Metrics.Port), Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		logger.Info("metrics server listening", "port", cfg.Metrics.Port)
	}

	handler := newEchoHandler()
	tc := transport.NewContext(cfg.Transport.ToTransportConfig(), handler, registry)

	listener, err := net.Listen("tcp", cfg.Server.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Server.ListenAddress, err)
	}
	logger.Info("chanrpcd listening", "address", listener.Addr().String(), "app_id", cfg.Server.AppID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return
				default:
					logger.Warn("accept failed", "error", err)
					return
				}
			}
			ch := tc.NewServerChannel(conn, cfg.Server.AppID)
			go ch.Serve()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutdown signal received, closing listener")

	cancel()

	var shutdownErr *multierror.Error
	shutdownErr = multierror.Append(shutdownErr, listener.Close())
	<-acceptDone

	shutdownErr = multierror.Append(shutdownErr, handler.closeAll())

	if metricsServer != nil {
		shutdownErr = multierror.Append(shutdownErr, metricsServer.Shutdown(context.Background()))
	}

	if err := shutdownErr.ErrorOrNil(); err != nil {
		logger.Warn("errors during shutdown", "error", err)
	}

	logger.Info("chanrpcd stopped")
	return nil
}

// echoHandler answers every RpcRequest with its own body, demonstrating
// the transport end to end. It tracks every active client so serve can
// close them all on shutdown.
type echoHandler struct {
	transport.BaseRpcHandler
	sm *streammgr.Manager

	mu      sync.Mutex
	clients map[*transport.Client]struct{}
}

func newEchoHandler() *echoHandler {
	return &echoHandler{sm: streammgr.NewManager(), clients: make(map[*transport.Client]struct{})}
}

func (h *echoHandler) Receive(client *transport.Client, body []byte, callback transport.ResponseCallback) {
	logger.Debug("rpc request", "remote", client.RemoteAddr(), "bytes", len(body))
	callback.OnSuccess(buffer.NewMemoryBuffer(append([]byte(nil), body...)))
}

func (h *echoHandler) StreamManager() *streammgr.Manager { return h.sm }

func (h *echoHandler) ChannelActive(client *transport.Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	logger.Info("channel active", "remote", client.RemoteAddr())
}

func (h *echoHandler) ChannelInactive(client *transport.Client) {
	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()
	logger.Info("channel inactive", "remote", client.RemoteAddr())
}

func (h *echoHandler) ExceptionCaught(err error, client *transport.Client) {
	logger.Warn("channel exception", "remote", client.RemoteAddr(), "error", err)
}

// closeAll closes every tracked client, aggregating any errors via
// go-multierror so one failed close doesn't stop the rest from being
// attempted.
func (h *echoHandler) closeAll() error {
	h.mu.Lock()
	clients := make([]*transport.Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	var result *multierror.Error
	for _, c := range clients {
		result = multierror.Append(result, c.Close())
	}
	return result.ErrorOrNil()
}
