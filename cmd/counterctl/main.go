package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/unkn0wn-root/ledgercache"
	"github.com/unkn0wn-root/ledgercache/counter"
	"github.com/unkn0wn-root/ledgercache/internal/config"
	"github.com/unkn0wn-root/ledgercache/ledger"
)

const defaultConfig = "./counterctl.toml"

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: counterctl [-config path] <command> [args]

Commands:
  address          print the derived counter address and bump
  get              read and decode the counter
  watch            print every state transition until interrupted
  initialize       allocate the counter account
  increment N      add N to the counter
`)
}

func main() {
	fs := flag.NewFlagSet("counterctl", flag.ExitOnError)
	fs.Usage = usage
	configPath := fs.String("config", defaultConfig, "Path to the counterctl config file")
	interval := fs.Duration("interval", 5*time.Second, "Refetch interval for watch")
	_ = fs.Parse(os.Args[1:])

	args := fs.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "counterctl: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, args, *interval); err != nil {
		fmt.Fprintf(os.Stderr, "counterctl: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func run(ctx context.Context, cfg *config.Config, args []string, interval time.Duration) error {
	needsSigner := args[0] == "initialize" || args[0] == "increment"
	a, err := newApp(ctx, cfg, needsSigner)
	if err != nil {
		return err
	}
	defer a.close()

	switch args[0] {
	case "address":
		addr, err := a.cache.Address(a.key)
		if err != nil {
			return err
		}
		fmt.Printf("address: %s\nbump:    %d\n", addr.Key, addr.Bump)
		return nil
	case "get":
		e, err := a.cache.Fetch(ctx, a.key)
		if err != nil {
			return err
		}
		printEntry(e)
		return nil
	case "watch":
		return watch(ctx, a, interval)
	case "initialize":
		return submit(ctx, a, counter.Initialize())
	case "increment":
		if len(args) != 2 {
			return fmt.Errorf("increment takes exactly one amount")
		}
		n, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("increment: invalid amount %q: %w", args[1], err)
		}
		return submit(ctx, a, counter.Increment(n))
	default:
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func submit(ctx context.Context, a *app, op counter.Op) error {
	sig, err := a.invoker.Submit(ctx, op)
	if err != nil {
		return err
	}
	fmt.Printf("%s confirmed: %s\n", op, sig)
	// Submit invalidated the key; this waits for the refetch
	e, err := a.cache.Fetch(ctx, a.key)
	if err != nil {
		return err
	}
	printEntry(e)
	return nil
}

func watch(ctx context.Context, a *app, interval time.Duration) error {
	unsubscribe := a.cache.Subscribe(a.key, printEntry)
	defer unsubscribe()

	if _, err := a.cache.Get(ctx, a.key); err != nil {
		return err
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := a.cache.Invalidate(ctx, a.key); err != nil {
				a.log.Warn("invalidate failed", ledgercache.Fields{"key": a.key, "err": err})
			}
		}
	}
}

func printEntry(e ledgercache.Entry) {
	switch {
	case e.Status == ledgercache.StatusLoading:
		fmt.Printf("[%s] loading (stale=%t)\n", e.Key, e.Stale)
	case e.Status == ledgercache.StatusError:
		fmt.Printf("[%s] error: %v (kind=%s)\n", e.Key, e.Err, e.ErrKind())
		if e.Value != nil {
			fmt.Printf("[%s] last known count=%d\n", e.Key, e.Value.Count)
		}
	case !e.Initialized():
		fmt.Printf("[%s] %s not initialized\n", e.Key, e.Address.Key)
	default:
		fmt.Printf("[%s] count=%d bump=%d decode=%s fetched=%s\n",
			e.Key, e.Value.Count, e.Value.Bump, e.Tag, e.FetchedAt.Format(time.RFC3339))
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, ledger.ErrConnectionUnavailable):
		return 3
	case errors.Is(err, ledger.ErrTransactionFailed):
		return 4
	case errors.Is(err, ledger.ErrDerivationExhausted):
		return 5
	default:
		return 1
	}
}
