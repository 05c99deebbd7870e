// minisock opens a single TCP connection over a SLIP link, sends a
// concatenation of command-line strings, and prints whatever is echoed
// back before the peer closes the connection.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/goslip/internal/cmdutil"
	"github.com/dantte-lp/goslip/internal/dns"
	"github.com/dantte-lp/goslip/internal/errs"
	"github.com/dantte-lp/goslip/internal/metrics"
	"github.com/dantte-lp/goslip/internal/randid"
	"github.com/dantte-lp/goslip/internal/slip"
	"github.com/dantte-lp/goslip/internal/tcpclient"
	appversion "github.com/dantte-lp/goslip/internal/version"
	"github.com/dantte-lp/goslip/internal/wire"
)

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "minisock:", err)
		os.Exit(cmdutil.ExitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var skipResolve bool
	var noCRLF bool
	var withMetrics bool

	cmd := &cobra.Command{
		Use:           "minisock [-in] <src-ip> <dst-ip> [hostname] <port> [string]...",
		Short:         "Open a single TCP connection over a SLIP link and exchange strings",
		Version:       appversion.Full("minisock"),
		Args:          cobra.MinimumNArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, args []string) error {
			return runMinisock(configPath, skipResolve, noCRLF, withMetrics, args)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to configuration file (YAML)")
	cmd.Flags().BoolVarP(&skipResolve, "i", "i", false, "dst-ip is already numeric, skip DNS resolution")
	cmd.Flags().BoolVarP(&noCRLF, "n", "n", false, "do not append CRLF to each string")
	cmd.Flags().BoolVar(&withMetrics, "metrics", false, "serve Prometheus metrics on Metrics.Addr")
	return cmd
}

// runMinisock parses the positional arguments, whose shape depends on
// skipResolve: with DNS resolution there is a hostname between dst-ip
// and port; with -i there is not.
func runMinisock(configPath string, skipResolve, noCRLF, withMetrics bool, args []string) error {
	var hostname string
	var portArg string
	var strs []string

	if skipResolve {
		if len(args) < 3 {
			return cmdutil.NewExitError(1, errors.New("minisock: usage: minisock -i <src> <dst> <port> [string]..."))
		}
		portArg = args[2]
		strs = args[3:]
	} else {
		if len(args) < 4 {
			return cmdutil.NewExitError(1, errors.New("minisock: usage: minisock <src> <dst> <hostname> <port> [string]..."))
		}
		hostname = args[2]
		portArg = args[3]
		strs = args[4:]
	}

	port, err := strconv.Atoi(portArg)
	if err != nil || port < 0 || port > 65535 {
		return cmdutil.NewExitError(1, fmt.Errorf("minisock: invalid port %q", portArg))
	}

	payload := buildPayload(strs, noCRLF)
	if len(payload) > wire.MSSWindow {
		return cmdutil.NewExitError(1, fmt.Errorf("minisock: payload of %d bytes exceeds the %d-byte window", len(payload), wire.MSSWindow))
	}

	cfg, err := cmdutil.LoadConfig(configPath)
	if err != nil {
		return cmdutil.NewExitError(2, err)
	}
	logger := cmdutil.NewLogger(cfg.Log)

	src, err := cmdutil.ParseIPv4(args[0])
	if err != nil {
		return cmdutil.NewExitError(1, err)
	}
	dst, err := cmdutil.ParseIPv4(args[1])
	if err != nil {
		return cmdutil.NewExitError(1, err)
	}

	collector := metrics.NewCollector(prometheus.DefaultRegisterer)

	link, err := cmdutil.OpenLink(logger, cfg.Serial, slip.WithMetrics(collector))
	if err != nil {
		return cmdutil.NewExitError(2, err)
	}
	defer link.Close()

	rng := randid.NewSource(time.Now().Unix())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	workDone := make(chan struct{})

	if withMetrics {
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: newMetricsMux(cfg.Metrics.Path)}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("minisock: metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-gctx.Done():
			case <-workDone:
			}
			return srv.Close()
		})
	}

	var reason tcpclient.CloseReason
	g.Go(func() error {
		defer close(workDone)

		peer := dst
		if !skipResolve {
			var rerr error
			peer, rerr = cmdutil.ResolveRetry(logger, link, rng, src, dst, hostname, cfg.DNS.Retries, dns.WithMetrics(collector))
			if rerr != nil {
				return cmdutil.NewExitError(5, fmt.Errorf("minisock: resolve %s: %w", hostname, rerr))
			}
		}

		conn, derr := tcpclient.Dial(logger, link, rng, src, peer, uint16(port), tcpclient.WithMetrics(collector))
		if derr != nil {
			if errors.Is(derr, errs.ErrConnectionRefused) {
				return cmdutil.NewExitError(4, derr)
			}
			return cmdutil.NewExitError(3, derr)
		}

		var terr error
		reason, terr = conn.Transact(payload, os.Stdout)
		if terr != nil {
			_ = conn.Close(reason)
			return cmdutil.NewExitError(3, terr)
		}

		if closeErr := conn.Close(reason); closeErr != nil {
			return cmdutil.NewExitError(3, closeErr)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	if code := minisockExitCode(reason); code != 0 {
		return cmdutil.NewExitError(code, fmt.Errorf("minisock: %w", errs.ErrConnectionReset))
	}
	return nil
}

func newMetricsMux(path string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	return mux
}

// buildPayload concatenates strs, appending CRLF to each one unless
// noCRLF is set.
func buildPayload(strs []string, noCRLF bool) []byte {
	var b strings.Builder
	for _, s := range strs {
		b.WriteString(s)
		if !noCRLF {
			b.WriteString("\r\n")
		}
	}
	return []byte(b.String())
}

// minisockExitCode maps the terminal condition Transact reported to the
// process exit code: a normal four-way close and an anomalous peer SYN
// (answered with our own RST) are both success; a peer reset is exit 3.
func minisockExitCode(reason tcpclient.CloseReason) int {
	switch reason {
	case tcpclient.CloseNormal, tcpclient.CloseAnomalousSYN:
		return 0
	default:
		return 3
	}
}
