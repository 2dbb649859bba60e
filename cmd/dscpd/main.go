package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"go.aporeto.io/dscpd"
	"go.aporeto.io/dscpd/collector"
	"go.aporeto.io/dscpd/constants"
	"go.aporeto.io/dscpd/policy"
	"go.aporeto.io/dscpd/utils/wpactrl"
)

func newRootCommand() *cobra.Command {

	cmd := &cobra.Command{
		Use:           "dscpd",
		Short:         "DSCP policy negotiation daemon",
		Long:          `Applies the DSCP policies negotiated by the access point to the outgoing traffic of a wireless interface`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	flags := cmd.Flags()
	flags.StringP("config", "c", "", "YAML configuration file")
	flags.StringP("interface", "i", "", "Wireless interface of the association")
	flags.String("ctrl-dir", constants.DefaultCtrlInterfaceDir, "Directory of the supplicant control sockets")
	flags.String("implementation", constants.IPTables.String(), "Packet filter implementation (iptables, nftables, noop)")
	flags.Int("max-policies", 0, "Maximum number of active policies")
	flags.Int("blanket-reject", 0, "Reject every policy with this status code, 1 to 255 (0 disables)")
	flags.String("metrics-addr", "", "Address serving the Prometheus metrics")
	flags.StringP("log-level", "l", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "json", "Log format (json, console)")

	return cmd
}

func run(cmd *cobra.Command, _ []string) error {

	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer zap.ReplaceGlobals(logger)()
	defer logger.Sync() // nolint: errcheck

	implementation, ok := constants.ParseImplementationType(cfg.Implementation)
	if !ok {
		return errors.Errorf("unknown implementation %s", cfg.Implementation)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := wpactrl.Open(ctx, filepath.Join(cfg.CtrlInterfaceDir, cfg.Interface))
	if err != nil {
		return err
	}
	defer client.Close() // nolint: errcheck

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, registry)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(sctx) // nolint: errcheck
		}()
	}

	agent := dscpd.New(cfg.Interface,
		dscpd.OptionChannel(client),
		dscpd.OptionImplementation(implementation),
		dscpd.OptionMaxPolicies(cfg.MaxPolicies),
		dscpd.OptionMaxResponseLength(cfg.MaxResponseLength),
		dscpd.OptionMaxSelectorLength(cfg.MaxSelectorLength),
		dscpd.OptionDecodeOptions(policy.DecodeOptions{
			DomainName: cfg.DomainName,
			PortRange:  cfg.PortRange,
		}),
		dscpd.OptionBlanketReject(collector.Status(cfg.BlanketReject)),
		dscpd.OptionMetricsRegisterer(registry),
	)

	if err := agent.Start(ctx); err != nil {
		return err
	}

	return agent.Wait()
}

func serveMetrics(addr string, registry *prometheus.Registry) *http.Server {

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Error("Metrics server failed", zap.Error(err))
		}
	}()

	zap.L().Info("Serving metrics", zap.String("address", addr))

	return srv
}

func main() {

	if err := newRootCommand().Execute(); err != nil {
		zap.L().Error("dscpd exited", zap.Error(err))
		os.Stderr.WriteString("dscpd: " + err.Error() + "\n") // nolint: errcheck
		os.Exit(1)
	}
}
