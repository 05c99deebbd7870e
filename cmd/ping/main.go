// ping sends ICMP echo requests to a destination over a SLIP link once a
// second, forever, printing one line per reply.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/goslip/internal/cmdutil"
	"github.com/dantte-lp/goslip/internal/icmpecho"
	"github.com/dantte-lp/goslip/internal/metrics"
	"github.com/dantte-lp/goslip/internal/randid"
	"github.com/dantte-lp/goslip/internal/slip"
	appversion "github.com/dantte-lp/goslip/internal/version"
)

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ping:", err)
		os.Exit(cmdutil.ExitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var withMetrics bool

	cmd := &cobra.Command{
		Use:           "ping <src-ip> <dst-ip>",
		Short:         "Send ICMP echo requests over a SLIP link once a second",
		Version:       appversion.Full("ping"),
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, args []string) error {
			return runPing(configPath, withMetrics, args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to configuration file (YAML)")
	cmd.Flags().BoolVar(&withMetrics, "metrics", false, "serve Prometheus metrics on Metrics.Addr")
	return cmd
}

func runPing(configPath string, withMetrics bool, srcArg, dstArg string) error {
	cfg, err := cmdutil.LoadConfig(configPath)
	if err != nil {
		return cmdutil.NewExitError(1, err)
	}
	logger := cmdutil.NewLogger(cfg.Log)

	src, err := cmdutil.ParseIPv4(srcArg)
	if err != nil {
		return cmdutil.NewExitError(1, err)
	}
	dst, err := cmdutil.ParseIPv4(dstArg)
	if err != nil {
		return cmdutil.NewExitError(1, err)
	}

	collector := metrics.NewCollector(prometheus.DefaultRegisterer)

	link, err := cmdutil.OpenLink(logger, cfg.Serial, slip.WithMetrics(collector))
	if err != nil {
		return cmdutil.NewExitError(3, err)
	}
	defer link.Close()

	rng := randid.NewSource(time.Now().Unix())

	echoer := icmpecho.NewEchoer(logger, link, src, dst)
	pinger := icmpecho.NewPinger(echoer, time.Second, func() [2]byte { return rng.Bytes2() })

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	if withMetrics {
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: newMetricsMux(cfg.Metrics.Path)}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("ping: metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return srv.Close()
		})
	}

	g.Go(func() error {
		return pinger.Run(
			func() bool {
				select {
				case <-gctx.Done():
					return true
				default:
					return false
				}
			},
			func(r icmpecho.Reply) {
				collector.ObservePingRTT(r.RTT.Seconds())
				fmt.Printf("reply from %d.%d.%d.%d: seq=%d time=%s\n", dst[0], dst[1], dst[2], dst[3], r.Seq, r.RTT)
			},
			func() {
				fmt.Println("mangled reply, retrying")
			},
		)
	})

	if err := g.Wait(); err != nil {
		return cmdutil.NewExitError(3, err)
	}
	return nil
}

func newMetricsMux(path string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	return mux
}
