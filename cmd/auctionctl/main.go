// auctionctl is a command-line client for auctiond.
// Usage: go run ./cmd/auctionctl [--server URL] <command> [flags]
//
// The server URL defaults to $AUCTIOND_URL, read from the environment or a
// .env file, and falls back to http://localhost:8080.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rickgao/lot-auctions/internal/api"
	"github.com/rickgao/lot-auctions/internal/version"
)

const usage = `usage: auctionctl [--server URL] <command> [flags]

commands:
  health                          server health
  list                            all auctions with live state
  summary                         auction counts by state
  get <id>                        one auction snapshot
  create --lot L --start T --end T --base P
                                  create an auction (T is RFC3339 or a
                                  duration from now, e.g. 30s)
  bid <id> --bidder B --amount A  place a bid
  cancel <id>                     cancel an auction
  delete <id>                     delete an auction
  bids <id>                       bid history, newest first
  config get                      anti-sniping settings
  config set [--enabled] [--threshold S] [--extension S] [--max N]
  watch [id]                      stream observer frames
  version                         client version
`

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	defaultServer := os.Getenv("AUCTIOND_URL")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}

	server := flag.String("server", defaultServer, "auctiond base URL")
	timeout := flag.Duration("timeout", 30*time.Second, "request timeout")
	verbose := flag.Bool("verbose", false, "log requests and retries")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	client := api.NewClient(*server, api.WithTimeout(*timeout), api.WithLogger(logger))
	cli := &cli{client: client, server: *server, logger: logger}

	if err := cli.run(ctx, flag.Arg(0), flag.Args()[1:]); err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) {
			fmt.Fprintf(os.Stderr, "error: %s (%d): %s\n", apiErr.Reason, apiErr.StatusCode, apiErr.Message)
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

type cli struct {
	client *api.Client
	server string
	logger *slog.Logger
}

func (c *cli) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "health":
		return printResult(c.client.Health(ctx))
	case "list":
		return printResult(c.client.ListAuctions(ctx))
	case "summary":
		return printResult(c.client.Summary(ctx))
	case "get":
		id, err := auctionID(args)
		if err != nil {
			return err
		}
		return printResult(c.client.GetAuction(ctx, id))
	case "create":
		return c.create(ctx, args)
	case "bid":
		return c.bid(ctx, args)
	case "cancel":
		id, err := auctionID(args)
		if err != nil {
			return err
		}
		return printResult(c.client.CancelAuction(ctx, id))
	case "delete":
		id, err := auctionID(args)
		if err != nil {
			return err
		}
		if err := c.client.DeleteAuction(ctx, id); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", id)
		return nil
	case "bids":
		id, err := auctionID(args)
		if err != nil {
			return err
		}
		return printResult(c.client.ListBids(ctx, id))
	case "config":
		return c.config(ctx, args)
	case "watch":
		var id string
		if len(args) > 0 {
			id = args[0]
		}
		return c.watch(ctx, id)
	case "version":
		return printJSON(version.Get())
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func auctionID(args []string) (string, error) {
	if len(args) == 0 || args[0] == "" {
		return "", errors.New("auction id required")
	}
	return args[0], nil
}

func printResult[T any](v T, err error) error {
	if err != nil {
		return err
	}
	return printJSON(v)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
