package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cuemby/warren/internal/checkresult"
	"github.com/cuemby/warren/internal/cluster"
	"github.com/cuemby/warren/internal/configseed"
	"github.com/cuemby/warren/internal/facade"
	"github.com/cuemby/warren/internal/ioengine"
	"github.com/cuemby/warren/internal/notification"
	"github.com/cuemby/warren/internal/notifyexec"
	"github.com/cuemby/warren/internal/perfdata"
	"github.com/cuemby/warren/internal/pluginexec"
	"github.com/cuemby/warren/internal/reconciler"
	"github.com/cuemby/warren/internal/registry"
	"github.com/cuemby/warren/internal/scheduler"
	"github.com/cuemby/warren/internal/timer"
	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/metrics"
	"github.com/cuemby/warren/pkg/security"
	"github.com/cuemby/warren/pkg/storage"
	"github.com/cuemby/warren/pkg/types"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "icingad",
	Short:   "icingad runs the distributed monitoring core: scheduler, state machine, notifications and cluster transport",
	Version: Version,
	RunE:    runDaemon,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("icingad version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime))

	flags := rootCmd.Flags()
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "Output logs in JSON format")
	flags.String("data-dir", "./icingad-data", "Data directory for BoltDB state and the certificate authority")
	flags.String("config", "", "Path to a YAML config-seed file (hosts, services, notifications, ...)")
	flags.String("endpoint-name", "endpoint-1", "This process's cluster identity (CommonName on its issued certificate)")
	flags.String("zone", "", "Cluster zone this endpoint belongs to")
	flags.String("cluster-addr", "127.0.0.1:5665", "Address the mTLS cluster RPC listener binds to")
	flags.String("facade-addr", "127.0.0.1:5661", "Address the HTTP facade API listens on")
	flags.String("metrics-addr", "127.0.0.1:9090", "Address the Prometheus metrics/health endpoints listen on")
	flags.Duration("reconcile-interval", 10*time.Second, "Downtime-expiry sweep interval")
	flags.Int("io-concurrency", 0, "CPU-bound admission concurrency for the I/O engine (0 = NumCPU)")
	flags.Int("timer-pool", 4, "Timer wheel callback dispatch concurrency")
	flags.String("graphite-addr", "", "If set, mirror every perfdata point to this Graphite carbon endpoint")

	cobra.OnInitialize(func() {
		logLevel, _ := rootCmd.Flags().GetString("log-level")
		logJSON, _ := rootCmd.Flags().GetBool("log-json")
		log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
	})
}

// multiEventSink fans checkresult.EventSink signals out to every
// registered sink (the notification engine, the facade's event stream),
// since Processor only holds one.
type multiEventSink struct {
	sinks []checkresult.EventSink
}

func (m *multiEventSink) OnNewCheckResult(checkableID string, c *types.Checkable, result *types.CheckResult) {
	for _, s := range m.sinks {
		s.OnNewCheckResult(checkableID, c, result)
	}
}

func (m *multiEventSink) OnStateChange(checkableID string, c *types.Checkable, recovery bool) {
	for _, s := range m.sinks {
		s.OnStateChange(checkableID, c, recovery)
	}
}

func (m *multiEventSink) OnReachabilityChanged(checkableID string, reachable bool) {
	for _, s := range m.sinks {
		s.OnReachabilityChanged(checkableID, reachable)
	}
}

func (m *multiEventSink) OnFlappingChange(checkableID string, c *types.Checkable, started bool) {
	for _, s := range m.sinks {
		s.OnFlappingChange(checkableID, c, started)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	logger := log.WithComponent("icingad")
	flags := cmd.Flags()

	dataDir, _ := flags.GetString("data-dir")
	configPath, _ := flags.GetString("config")
	endpointName, _ := flags.GetString("endpoint-name")
	zone, _ := flags.GetString("zone")
	clusterAddr, _ := flags.GetString("cluster-addr")
	facadeAddr, _ := flags.GetString("facade-addr")
	metricsAddr, _ := flags.GetString("metrics-addr")
	reconcileInterval, _ := flags.GetDuration("reconcile-interval")
	ioConcurrency, _ := flags.GetInt("io-concurrency")
	timerPool, _ := flags.GetInt("timer-pool")
	graphiteAddr, _ := flags.GetString("graphite-addr")

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	store, err := storage.NewBoltStore(dataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	ca := security.NewCertAuthority(store)
	if err := ca.LoadFromStore(); err != nil {
		if err := ca.Initialize(); err != nil {
			return fmt.Errorf("initialize certificate authority: %w", err)
		}
		if err := ca.SaveToStore(); err != nil {
			return fmt.Errorf("persist certificate authority: %w", err)
		}
		logger.Info().Msg("bootstrapped new certificate authority")
	}

	reg := registry.New()

	wheel := timer.New(timerPool)
	wheel.Start()
	defer wheel.Stop()

	engine := ioengine.New(ioConcurrency)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = engine.Shutdown(shutdownCtx)
	}()

	notifier := notification.New(reg, wheel, notifyexec.New(), time.Minute)
	notifier.Start()
	defer notifier.Stop()

	// eventSink fans out to the notification engine and, once built
	// below, the facade's event stream. Processor only accepts one sink,
	// so multiEventSink stands in as a static fan-out list.
	eventSink := &multiEventSink{sinks: []checkresult.EventSink{notifier}}
	processor := checkresult.New(reg, eventSink)

	if graphiteAddr != "" {
		dialer := func() (net.Conn, error) { return net.DialTimeout("tcp", graphiteAddr, 5*time.Second) }
		graphite := perfdata.NewLineWriter("graphite", 1024, dialer, perfdata.GraphiteRecordBuilder("icinga"))
		resumeCtx, cancel := context.WithCancel(context.Background())
		defer cancel()
		graphite.Resume(resumeCtx)
		defer graphite.Disconnect()
		processor.AddPerfWriter(graphite)
		logger.Info().Str("addr", graphiteAddr).Msg("mirroring perfdata to graphite")
	}

	conns := cluster.NewConnRegistry()
	remote := cluster.NewDispatcher(conns)
	sched := scheduler.New(reg, wheel, engine, pluginexec.New(), remote, processor, endpointName)

	f := facade.New(reg, processor, notifier, sched, store)
	defer f.Close()
	eventSink.sinks = append(eventSink.sinks, facade.NewEventSinkAdapter(f))

	if configPath != "" {
		cfgFile, err := os.Open(configPath)
		if err != nil {
			return fmt.Errorf("open config %q: %w", configPath, err)
		}
		err = configseed.Load(cfgFile, reg, store)
		cfgFile.Close()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Info().Str("path", configPath).Msg("config seed loaded")
	}

	recon := reconciler.NewWithInterval(reg, notifier, reconcileInterval)
	recon.Start()
	defer recon.Stop()

	sched.Start()

	router := cluster.NewRouter()
	router.Register("event::CheckResult", func(ctx context.Context, origin cluster.Origin, params []byte) (any, error) {
		var req struct {
			CheckableID string            `json:"checkable_id"`
			Result      types.CheckResult `json:"result"`
		}
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		req.Result.Origin = origin.Identity
		processor.ProcessResult(req.CheckableID, &req.Result)
		return map[string]string{"status": "accepted"}, nil
	})

	heartbeats := cluster.NewHeartbeatMonitor(wheel, cluster.DefaultHeartbeatInterval, cluster.DefaultLivenessTimeout)

	listener, err := startClusterListener(clusterAddr, endpointName, zone, ca, router, heartbeats, conns, logger)
	if err != nil {
		return fmt.Errorf("start cluster listener: %w", err)
	}
	defer listener.Close()

	metrics.SetVersion(Version)
	metrics.RegisterComponent("storage", true, "ready")
	metrics.RegisterComponent("cluster", true, "listening on "+clusterAddr)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler())
	metricsMux.Handle("/health", metrics.HealthHandler())
	metricsMux.Handle("/ready", metrics.ReadyHandler())
	metricsMux.Handle("/live", metrics.LivenessHandler())
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: metricsMux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()
	defer metricsSrv.Close()

	facadeSrv := facade.NewServer(f, store)
	httpSrv := &http.Server{Addr: facadeAddr, Handler: facadeSrv}
	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("facade server error: %w", err)
		}
	}()
	defer httpSrv.Close()

	logger.Info().
		Str("cluster_addr", clusterAddr).
		Str("facade_addr", facadeAddr).
		Str("metrics_addr", metricsAddr).
		Str("endpoint", endpointName).
		Msg("icingad started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		logger.Error().Err(err).Msg("fatal server error")
	}

	return nil
}

func decodeParams(params []byte, v any) error {
	return json.Unmarshal(params, v)
}

// startClusterListener binds an mTLS listener on addr, issuing this
// endpoint's own certificate from ca, and accepts peer connections in the
// background, wiring each into router for inbound RPC dispatch, into
// heartbeats for liveness tracking, and into conns so outbound dispatch
// (internal/cluster.Dispatcher) can find the connection by identity.
func startClusterListener(addr, endpointName, zone string, ca *security.CertAuthority, router *cluster.Router, heartbeats *cluster.HeartbeatMonitor, conns *cluster.ConnRegistry, logger zerolog.Logger) (net.Listener, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	var ips []net.IP
	if ip := net.ParseIP(host); ip != nil {
		ips = append(ips, ip)
	}

	cert, err := ca.IssueEndpointCertificate(endpointName, []string{endpointName, host}, ips)
	if err != nil {
		return nil, fmt.Errorf("issue endpoint certificate: %w", err)
	}

	rootPool := x509.NewCertPool()
	if der := ca.GetRootCACert(); der != nil {
		if rootCert, err := x509.ParseCertificate(der); err == nil {
			rootPool.AddCert(rootCert)
		}
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{*cert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    rootPool,
		MinVersion:   tls.VersionTLS12,
	}

	listener, err := tls.Listen("tcp", addr, tlsConfig)
	if err != nil {
		return nil, err
	}

	go acceptLoop(listener, router, ca, zone, heartbeats, conns, logger)
	return listener, nil
}

func acceptLoop(listener net.Listener, router *cluster.Router, ca *security.CertAuthority, zone string, heartbeats *cluster.HeartbeatMonitor, conns *cluster.ConnRegistry, logger zerolog.Logger) {
	for {
		netConn, err := listener.Accept()
		if err != nil {
			if isClosedErr(err) {
				return
			}
			logger.Warn().Err(err).Msg("cluster listener accept error")
			continue
		}

		conn := cluster.NewConn(netConn, router, ca, cluster.DefaultLivenessTimeout)
		conn.SetAuthHook(conns.Track)
		heartbeats.Watch(conn)

		go func() {
			defer heartbeats.Stop(conn)
			if err := conn.Run(context.Background()); err != nil {
				logger.Debug().Err(err).Str("conn", conn.ID()).Msg("cluster connection closed")
			}
		}()
	}
}

func isClosedErr(err error) bool {
	return err != nil && (errors.Is(err, net.ErrClosed) || os.IsTimeout(err))
}
