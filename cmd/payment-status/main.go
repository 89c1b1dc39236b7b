// Command payment-status runs the storefront payment poller against one
// payment id and exits with its verdict: 0 approved, 1 rejected or approved
// without tickets, 2 anything else.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/blacknight/storefront/internal/backend"
	"github.com/blacknight/storefront/internal/config"
	"github.com/blacknight/storefront/internal/observability"
	"github.com/blacknight/storefront/internal/payment"
	"github.com/jonboulle/clockwork"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	attempts := flag.Int("attempts", cfg.PaymentPollAttempts, "status checks before giving up")
	interval := flag.Duration("interval", cfg.PaymentPollInterval, "delay between status checks")
	quiet := flag.Bool("quiet", false, "suppress logs")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <payment-id>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	logger := observability.NewLogger()
	if *quiet {
		logger = observability.NewNopLogger()
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg, "payment-status")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	api := backend.New(cfg.BackendURL, cfg.BackendTimeout, logger)
	poller := payment.NewPoller(api, clockwork.NewRealClock(), *interval, *attempts, logger)

	res := poller.Poll(ctx, flag.Arg(0))
	fmt.Printf("%s\t%s\t%d\n", res.Outcome, res.Status, res.Attempts)
	if res.Message != "" {
		fmt.Println(res.Message)
	}

	cancel()
	shutdown()
	os.Exit(exitCode(res))
}

func exitCode(r payment.Result) int {
	switch r.Outcome {
	case payment.OutcomeApproved:
		return 0
	case payment.OutcomeFailed, payment.OutcomeApprovedInvalid:
		return 1
	default:
		return 2
	}
}
