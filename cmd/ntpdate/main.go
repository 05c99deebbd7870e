// ntpdate issues a single NTPv3 query over a SLIP link and prints the
// peer's stratum, reference identifier, and transmit timestamp.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/goslip/internal/cmdutil"
	"github.com/dantte-lp/goslip/internal/errs"
	"github.com/dantte-lp/goslip/internal/ntp"
	"github.com/dantte-lp/goslip/internal/randid"
	appversion "github.com/dantte-lp/goslip/internal/version"
)

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ntp:", err)
		os.Exit(cmdutil.ExitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var skipResolve bool

	cmd := &cobra.Command{
		Use:           "ntp [-i] <src-ip> <dst-ip> [hostname]",
		Short:         "Query an NTPv3 peer over a SLIP link",
		Version:       appversion.Full("ntp"),
		Args:          cobra.RangeArgs(2, 3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, args []string) error {
			var hostname string
			if len(args) == 3 {
				hostname = args[2]
			} else if !skipResolve {
				return cmdutil.NewExitError(1, errors.New("ntp: hostname required unless -i is given"))
			}
			return runNtp(configPath, skipResolve, args[0], args[1], hostname)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to configuration file (YAML)")
	cmd.Flags().BoolVarP(&skipResolve, "i", "i", false, "dst-ip is already numeric, skip DNS resolution")
	return cmd
}

func runNtp(configPath string, skipResolve bool, srcArg, dstArg, hostname string) error {
	cfg, err := cmdutil.LoadConfig(configPath)
	if err != nil {
		return cmdutil.NewExitError(3, err)
	}
	logger := cmdutil.NewLogger(cfg.Log)

	src, err := cmdutil.ParseIPv4(srcArg)
	if err != nil {
		return cmdutil.NewExitError(3, err)
	}
	dst, err := cmdutil.ParseIPv4(dstArg)
	if err != nil {
		return cmdutil.NewExitError(3, err)
	}

	link, err := cmdutil.OpenLink(logger, cfg.Serial)
	if err != nil {
		return cmdutil.NewExitError(2, err)
	}
	defer link.Close()

	rng := randid.NewSource(time.Now().Unix())

	peer := dst
	if !skipResolve {
		peer, err = cmdutil.ResolveRetry(logger, link, rng, src, dst, hostname, cfg.DNS.Retries)
		if err != nil {
			return cmdutil.NewExitError(3, fmt.Errorf("ntp: resolve %s: %w", hostname, err))
		}
	}

	result, err := ntp.Query(logger, link, rng, src, peer)
	if err != nil {
		return cmdutil.NewExitError(ntpExitCode(err), err)
	}

	fmt.Printf("stratum %d, refid %s, time %s\n", result.Stratum, result.RefIDText, result.TransmitTime.Format("2006-01-02 15:04:05 UTC"))
	return nil
}

// ntpExitCode maps each failure kind to its exit code: allocation
// failure->2, SlipFailed->4, a truncated or odd-length reply
// (ErrCorruptResponse) or a checksum mismatch (ErrBadAnswer)->5,
// anything else (resolution failure included)->3.
func ntpExitCode(err error) int {
	switch {
	case errors.Is(err, errs.ErrNomem):
		return 2
	case errors.Is(err, errs.ErrSlipFailed):
		return 4
	case errors.Is(err, errs.ErrCorruptResponse), errors.Is(err, errs.ErrBadAnswer):
		return 5
	default:
		return 3
	}
}
