// Command reactorctl is a small development aid for driving a Reactor by
// hand: it is not a protocol surface for the library, just a CLI entrypoint
// alongside the core package.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/coalmine/reactor"
)

var (
	logLevel    string
	metricsAddr string
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "reactorctl",
		Short: "Drive an event reactor from the command line",
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090)")

	root.AddCommand(newRunCommand())
	root.AddCommand(newDemoTimerCommand())
	root.AddCommand(newDemoIOCommand())
	return root
}

// mustFloat64Flag reads a float64 flag already declared on flags, panicking
// on the programmer error of a missing/mistyped flag name rather than a
// plain lookup miss.
func mustFloat64Flag(flags *pflag.FlagSet, flagName string) float64 {
	val, err := flags.GetFloat64(flagName)
	if err != nil {
		panic(err)
	}
	return val
}

func buildLogger() (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.Set(logLevel); err != nil {
		return nil, fmt.Errorf("reactorctl: log level %q: %w", logLevel, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func buildReactor(logger *zap.Logger) (*reactor.Reactor, *reactor.Metrics, error) {
	reg := prometheus.NewRegistry()
	metrics := reactor.NewMetrics(reg)

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			logger.Info("reactorctl: serving metrics", zap.String("addr", metricsAddr))
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				logger.Error("reactorctl: metrics server stopped", zap.Error(err))
			}
		}()
	}

	r, err := reactor.NewReactor(
		reactor.WithLogger(logger),
		reactor.WithMetrics(metrics),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("reactorctl: new reactor: %w", err)
	}
	return r, metrics, nil
}

func newRunCommand() *cobra.Command {
	var idleSeconds float64
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an empty reactor that idle-terminates once nothing is scheduled",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := buildLogger()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			r, _, err := buildReactor(logger)
			if err != nil {
				return err
			}
			defer r.Close()

			idle := mustFloat64Flag(cmd.Flags(), "idle-seconds")
			if idle > 0 {
				r.Once(func(r *reactor.Reactor, id reactor.WatcherID) {
					logger.Info("reactorctl: idle window elapsed, stopping")
					r.Stop()
				}, time.Duration(idle*float64(time.Second)))
			}

			return r.Run(func(r *reactor.Reactor, id reactor.WatcherID) {
				logger.Info("reactorctl: reactor started")
			})
		},
	}
	cmd.Flags().Float64Var(&idleSeconds, "idle-seconds", 2, "stop after this many seconds with nothing else scheduled")
	return cmd
}

func newDemoTimerCommand() *cobra.Command {
	var interval time.Duration
	var count int
	cmd := &cobra.Command{
		Use:   "demo-timer",
		Short: "Fire a repeating timer a fixed number of times, then stop",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := buildLogger()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			r, _, err := buildReactor(logger)
			if err != nil {
				return err
			}
			defer r.Close()

			fired := 0
			var id reactor.WatcherID
			id = r.Repeat(func(r *reactor.Reactor, _ reactor.WatcherID) {
				fired++
				logger.Info("reactorctl: tick", zap.Int("fired", fired))
				if fired >= count {
					r.Cancel(id)
				}
			}, interval)

			return r.Run(nil)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "timer interval")
	cmd.Flags().IntVar(&count, "count", 5, "number of firings before stopping")
	return cmd
}

func newDemoIOCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo-io",
		Short: "Watch stdin for readability and echo each readiness event",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := buildLogger()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			r, _, err := buildReactor(logger)
			if err != nil {
				return err
			}
			defer r.Close()

			stream := reactor.NewFileStream(os.Stdin)
			buf := make([]byte, 4096)
			r.OnReadable(stream, func(r *reactor.Reactor, id reactor.WatcherID, s reactor.Stream) {
				n, err := os.Stdin.Read(buf)
				if n > 0 {
					logger.Info("reactorctl: stdin readable", zap.Int("bytes", n))
				}
				if err != nil {
					r.Cancel(id)
					r.Stop()
				}
			}, true)

			return r.Run(nil)
		},
	}
	return cmd
}
