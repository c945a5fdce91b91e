package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/Project-Sylos/Chronicle/internal/config"
	"github.com/Project-Sylos/Chronicle/internal/logging"
	"github.com/Project-Sylos/Chronicle/sdk"
)

func main() {
	rootFlags := flag.NewFlagSet("chronicle", flag.ContinueOnError)
	configPath := rootFlags.String("config", "", "configuration file path (defaults are used when empty)")
	baseURL := rootFlags.String("base-url", "", "history server base URL")
	apiKey := rootFlags.String("api-key", "", "API key sent as x-api-key")
	backend := rootFlags.String("cache", "", "item cache backend: memory|duckdb")
	logLevel := rootFlags.String("log-level", "warn", "log level: debug|info|warn|error")

	// open builds a session from the root flags
	open := func() (*sdk.Chronicle, error) {
		cfg, err := config.Load(*configPath, config.Overrides{
			BaseURL:  *baseURL,
			APIKey:   *apiKey,
			Backend:  *backend,
			LogLevel: *logLevel,
		})
		if err != nil {
			return nil, err
		}
		if err := logging.Init(logging.Config{Level: cfg.Log.Level, Format: "console", OutputPath: "stderr"}); err != nil {
			return nil, err
		}
		return sdk.NewFromConfig(cfg)
	}

	historiesFlags := flag.NewFlagSet("histories", flag.ContinueOnError)
	order := historiesFlags.String("order", "", "sort order, e.g. name or size-asc")
	search := historiesFlags.String("search", "", "search text, e.g. 'name:rna tag:paired'")
	historiesCmd := &ffcli.Command{
		Name:       "histories",
		ShortUsage: "chronicle [flags] histories [-order=...] [-search=...]",
		ShortHelp:  "List histories, current first",
		FlagSet:    historiesFlags,
		Exec: func(ctx context.Context, _ []string) error {
			c, err := open()
			if err != nil {
				return err
			}
			defer c.Close()
			return runHistories(ctx, c, *order, *search)
		},
	}

	itemsFlags := flag.NewFlagSet("items", flag.ContinueOnError)
	filterText := itemsFlags.String("filter", "", "filter text, e.g. 'name:fastq state:ok'")
	showDeleted := itemsFlags.Bool("show-deleted", false, "show deleted items only")
	showHidden := itemsFlags.Bool("show-hidden", false, "show hidden items only")
	itemsCmd := &ffcli.Command{
		Name:       "items",
		ShortUsage: "chronicle [flags] items [-filter=...] <history-id>",
		ShortHelp:  "Fetch and list a history's items, most recent first",
		FlagSet:    itemsFlags,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("items requires <history-id>")
			}
			c, err := open()
			if err != nil {
				return err
			}
			defer c.Close()
			return runItems(ctx, c, sdk.FetchItemsRequest{
				HistoryID:   args[0],
				FilterText:  *filterText,
				ShowDeleted: *showDeleted,
				ShowHidden:  *showHidden,
			})
		},
	}

	watchFlags := flag.NewFlagSet("watch", flag.ContinueOnError)
	timeout := watchFlags.Duration("timeout", 10*time.Minute, "give up after this long")
	watchCmd := &ffcli.Command{
		Name:       "watch",
		ShortUsage: "chronicle [flags] watch [-timeout=10m] <history-id>",
		ShortHelp:  "Refresh a history until its jobs are done",
		FlagSet:    watchFlags,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("watch requires <history-id>")
			}
			c, err := open()
			if err != nil {
				return err
			}
			defer c.Close()
			ctx, cancel := context.WithTimeout(ctx, *timeout)
			defer cancel()
			return runWatch(ctx, c, args[0])
		},
	}

	root := &ffcli.Command{
		Name:        "chronicle",
		ShortUsage:  "chronicle [flags] <subcommand> [flags]",
		FlagSet:     rootFlags,
		Options:     []ff.Option{ff.WithEnvVarPrefix("CHRONICLE")},
		Subcommands: []*ffcli.Command{historiesCmd, itemsCmd, watchCmd},
		Exec:        func(context.Context, []string) error { return flag.ErrHelp },
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ParseAndRun(ctx, os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logging.Sync()
}

func runHistories(ctx context.Context, c *sdk.Chronicle, order, search string) error {
	col := c.Histories()
	if order != "" {
		if err := col.SetOrder(order); err != nil {
			return err
		}
	}
	if _, err := col.FetchFirst(ctx); err != nil {
		return fmt.Errorf("failed to fetch histories: %w", err)
	}
	for !col.AllFetched() {
		if _, err := col.FetchMore(ctx); err != nil {
			return fmt.Errorf("failed to fetch more histories: %w", err)
		}
	}

	histories := col.Models()
	if search != "" {
		histories = col.Search(search)
	}
	for _, h := range histories {
		marker := " "
		if h.ID() == col.CurrentID() {
			marker = "*"
		}
		attrs := h.Attributes()
		fmt.Printf("%s %s  %-40s %10s  %3d shown  %s\n",
			marker, h.ID(), h.Name(), h.NiceSize(), h.ContentsShown(),
			attrs.UpdateTime.Format(time.DateTime))
	}
	return nil
}

func runItems(ctx context.Context, c *sdk.Chronicle, req sdk.FetchItemsRequest) error {
	if err := c.FetchHistoryItems(ctx, req); err != nil {
		return fmt.Errorf("failed to fetch items: %w", err)
	}
	items, err := c.GetHistoryItems(req.View())
	if err != nil {
		return err
	}
	for _, item := range items {
		fmt.Printf("%4d  %-12s %-40s %s\n", item.HID, item.State, item.Name, strings.Join(item.Tags, ","))
	}
	fmt.Printf("%d item(s)\n", len(items))
	return nil
}

func runWatch(ctx context.Context, c *sdk.Chronicle, id string) error {
	events := c.Subscribe()
	defer c.Unsubscribe(events)

	h, err := c.Watch(ctx, id)
	if err != nil {
		return err
	}
	if h.PollState() == sdk.PollReady {
		fmt.Printf("%s is ready\n", h)
		return nil
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.Unwatch(id)
			return ctx.Err()
		case <-ticker.C:
			fmt.Printf("%s: %d item(s) running, %d job(s) unfinished\n",
				h, h.NumOfUnfinishedShownContents(), h.NumOfUnfinishedJobs())
		case e := <-events:
			if e.HistoryID != id {
				continue
			}
			switch e.Type {
			case sdk.EventReady:
				fmt.Printf("%s is ready\n", h)
				return nil
			case sdk.EventError:
				return fmt.Errorf("refresh of %s failed: %s", id, e.Message)
			}
		}
	}
}
