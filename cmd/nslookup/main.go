// nslookup resolves a single A record over a SLIP link and prints the
// resulting dotted-quad address.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/goslip/internal/cmdutil"
	"github.com/dantte-lp/goslip/internal/errs"
	"github.com/dantte-lp/goslip/internal/randid"
	appversion "github.com/dantte-lp/goslip/internal/version"
)

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "nslookup:", err)
		os.Exit(cmdutil.ExitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "nslookup <src-ip> <resolver-ip> <name>",
		Short:         "Resolve a single A record over a SLIP link",
		Version:       appversion.Full("nslookup"),
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, args []string) error {
			return runNslookup(configPath, args[0], args[1], args[2])
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to configuration file (YAML)")
	return cmd
}

func runNslookup(configPath, srcArg, resolverArg, name string) error {
	cfg, err := cmdutil.LoadConfig(configPath)
	if err != nil {
		return cmdutil.NewExitError(5, err)
	}
	logger := cmdutil.NewLogger(cfg.Log)

	src, err := cmdutil.ParseIPv4(srcArg)
	if err != nil {
		return cmdutil.NewExitError(5, err)
	}
	resolver, err := cmdutil.ParseIPv4(resolverArg)
	if err != nil {
		return cmdutil.NewExitError(5, err)
	}

	link, err := cmdutil.OpenLink(logger, cfg.Serial)
	if err != nil {
		return cmdutil.NewExitError(2, err)
	}
	defer link.Close()

	rng := randid.NewSource(time.Now().Unix())

	result, err := cmdutil.ResolveRetry(logger, link, rng, src, resolver, name, cfg.DNS.Retries)
	if err != nil {
		return cmdutil.NewExitError(nslookupExitCode(err), err)
	}

	fmt.Printf("%d.%d.%d.%d\n", result[0], result[1], result[2], result[3])
	return nil
}

// nslookupExitCode maps each resolution failure to its exit code:
// SlipFailed->2, QueryTooBig->3, question/answer malformed->4,
// NoAnswers/BadAnswer (after exhausting retries)->1, any other fault->5.
func nslookupExitCode(err error) int {
	switch {
	case errors.Is(err, errs.ErrSlipFailed):
		return 2
	case errors.Is(err, errs.ErrQueryTooBig):
		return 3
	case errors.Is(err, errs.ErrQuestionMalformed), errors.Is(err, errs.ErrAnswerMalformed):
		return 4
	case errors.Is(err, errs.ErrNoAnswers), errors.Is(err, errs.ErrBadAnswer):
		return 1
	default:
		return 5
	}
}
