package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flexsearch-service/internal/domain/entity"
	"flexsearch-service/internal/infrastructure/config"
	"flexsearch-service/internal/infrastructure/container"
	"flexsearch-service/pkg/logger"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "flexsearch",
		Usage: "Find the cheapest departure date around a target date",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "origin",
				Usage:    "Origin IATA code",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "destination",
				Usage:    "Destination IATA code",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "date",
				Usage:    "Center departure date (YYYY-MM-DD)",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "duration",
				Usage: "Nights between departure and return",
				Value: 7,
			},
			&cli.IntFlag{
				Name:  "adults",
				Usage: "Adult passengers",
				Value: 1,
			},
			&cli.IntFlag{
				Name:  "children",
				Usage: "Child passengers",
			},
			&cli.StringFlag{
				Name:  "range",
				Usage: "Search window (week/month/two-months)",
				Value: string(entity.RangeWeek),
			},
			&cli.BoolFlag{
				Name:  "mock",
				Usage: "Use generated fares even when Amadeus credentials are set",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the final results as JSON",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level",
				Value: "warn",
			},
		},
		Action: searchAction,
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func searchAction(ctx context.Context, cmd *cli.Command) error {
	center, err := time.Parse(entity.DateLayout, cmd.String("date"))
	if err != nil {
		return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
	}
	searchRange, err := entity.ParseSearchRange(cmd.String("range"))
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cmd.Bool("mock") {
		cfg.AmadeusAPIKey, cfg.AmadeusAPISecret = "", ""
	}
	// a one-off search never mails anyone
	cfg.GmailRefreshToken = ""

	appLogger := logger.NewLoggerWithLevel(cmd.String("log-level"))
	defer appLogger.Sync()

	app, err := container.New(ctx, cfg, appLogger, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer app.Close(context.Background())
	defer app.Runner.Shutdown(context.Background())

	res, err := app.Runner.Submit(ctx, entity.SearchRequest{
		UserID:      "cli",
		Origin:      cmd.String("origin"),
		Destination: cmd.String("destination"),
		CenterDate:  center,
		Nights:      cmd.Int("duration"),
		Passengers: entity.Passengers{
			Adults:   cmd.Int("adults"),
			Children: cmd.Int("children"),
		},
		Range: searchRange,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Checking %d dates (about %ds)\n", res.TotalDates, res.EstimatedTime)

	events, err := app.Runner.Subscribe(ctx, res.JobID)
	if err != nil {
		return err
	}

	var last entity.ProgressEvent
	for ev := range events {
		last = ev
		if ev.Type == entity.EventProgress {
			fmt.Fprintf(os.Stderr, "  %3d%%  %d/%d dates checked\n", ev.Progress.Percentage, ev.Progress.Checked, ev.Progress.Total)
		}
	}

	if ctx.Err() != nil {
		app.Runner.Cancel(res.JobID)
		return ctx.Err()
	}

	switch {
	case last.Type == entity.EventFailed:
		return fmt.Errorf("search failed: %s", last.Error)
	case last.Results == nil:
		return fmt.Errorf("search ended without results")
	}

	if cmd.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(last.Results)
	}
	printReport(os.Stdout, *last.Results)
	return nil
}

func printReport(out io.Writer, results entity.Results) {
	stats := results.Statistics
	if stats == nil || stats.TotalOptionsFound == 0 {
		fmt.Fprintln(out, "No fares found.")
		return
	}

	fmt.Fprintln(out, "\n=== Summary ===")
	summary := tablewriter.NewWriter(out)
	summary.Header("Metric", "Value")
	summary.Append("Cheapest date", stats.CheapestDate)
	summary.Append("Most expensive date", stats.MostExpensiveDate)
	summary.Append("Average price", fmt.Sprintf("%.0f", stats.AveragePrice))
	summary.Append("Options found", fmt.Sprintf("%d", stats.TotalOptionsFound))
	summary.Render()

	fmt.Fprintln(out, "\n=== Best dates ===")
	table := tablewriter.NewWriter(out)
	table.Header("Depart", "Return", "Price", "Savings", "Airline", "Stops", "Duration")
	for _, q := range results.TopResults {
		table.Append(
			q.DepartureDate.Format(entity.DateLayout),
			q.ReturnDate.Format(entity.DateLayout),
			fmt.Sprintf("%.2f %s", q.Price, q.Currency),
			fmt.Sprintf("%.0f (%d%%)", q.Savings, q.SavingsPercentage),
			q.Airline,
			fmt.Sprintf("%d", q.Stops),
			q.Duration,
		)
	}
	table.Render()

	if len(results.TopResults) > 0 && results.TopResults[0].DeepLink != "" {
		fmt.Fprintf(out, "\nBook: %s\n", results.TopResults[0].DeepLink)
	}
}
