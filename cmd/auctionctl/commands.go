package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/rickgao/lot-auctions/internal/api"
)

func (c *cli) create(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	lot := fs.String("lot", "", "lot reference")
	start := fs.String("start", "0s", "start time (RFC3339 or duration from now)")
	end := fs.String("end", "", "end time (RFC3339 or duration from now)")
	base := fs.String("base", "0", "base price")
	if err := fs.Parse(args); err != nil {
		return err
	}

	now := time.Now()
	startTime, err := parseWhen(*start, now)
	if err != nil {
		return fmt.Errorf("--start: %w", err)
	}
	endTime, err := parseWhen(*end, now)
	if err != nil {
		return fmt.Errorf("--end: %w", err)
	}
	basePrice, err := decimal.NewFromString(*base)
	if err != nil {
		return fmt.Errorf("--base: %w", err)
	}

	return printResult(c.client.CreateAuction(ctx, api.CreateAuctionRequest{
		LotRef:    *lot,
		StartTime: startTime,
		EndTime:   endTime,
		BasePrice: basePrice,
	}))
}

// parseWhen accepts an RFC3339 timestamp or a duration relative to now.
func parseWhen(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("required")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC3339 nor a duration", s)
	}
	return now.Add(d), nil
}

func (c *cli) bid(ctx context.Context, args []string) error {
	id, err := auctionID(args)
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("bid", flag.ContinueOnError)
	bidder := fs.String("bidder", "", "bidder id")
	amount := fs.String("amount", "", "bid amount")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	amt, err := decimal.NewFromString(*amount)
	if err != nil {
		return fmt.Errorf("--amount: %w", err)
	}
	return printResult(c.client.PlaceBid(ctx, id, *bidder, amt))
}

func (c *cli) config(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("config: expected get or set")
	}

	switch args[0] {
	case "get":
		return printResult(c.client.GetAntiSniping(ctx))

	case "set":
		current, err := c.client.GetAntiSniping(ctx)
		if err != nil {
			return err
		}
		fs := flag.NewFlagSet("config set", flag.ContinueOnError)
		enabled := fs.Bool("enabled", current.Enabled, "enable anti-sniping")
		threshold := fs.Int("threshold", current.ThresholdSeconds, "threshold in seconds")
		extension := fs.Int("extension", current.ExtensionSeconds, "extension in seconds")
		maxExt := fs.Int("max", current.MaxExtensions, "max extensions per auction (0 = unlimited)")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}

		next := *current
		next.Enabled = *enabled
		next.ThresholdSeconds = *threshold
		next.ExtensionSeconds = *extension
		next.MaxExtensions = *maxExt
		return printResult(c.client.SetAntiSniping(ctx, next))

	default:
		return fmt.Errorf("config: unknown subcommand %q", args[0])
	}
}

// watch prints observer frames until ctx is cancelled or the server closes
// the connection.
func (c *cli) watch(ctx context.Context, auctionID string) error {
	u, err := url.Parse(c.server)
	if err != nil {
		return fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/auctions"
	if auctionID != "" {
		u.Path += "/" + url.PathEscape(auctionID)
	}

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %s", u, resp.Status)
		}
		return fmt.Errorf("dial %s: %w", u, err)
	}
	defer ws.Close()

	go func() {
		<-ctx.Done()
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		ws.Close()
	}()

	c.logger.Debug("watching", "url", u.String())

	for {
		var frame json.RawMessage
		if err := ws.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}
		if err := printJSON(frame); err != nil {
			return err
		}
	}
}
