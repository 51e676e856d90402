// Debug runs single CropSense operations against the configured database and device cloud.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/prite36/cropsense/internal/config"
	"github.com/prite36/cropsense/internal/discovery"
	"github.com/prite36/cropsense/internal/history"
	"github.com/prite36/cropsense/internal/irrigation"
	"github.com/prite36/cropsense/internal/models"
	"github.com/prite36/cropsense/internal/mqtt"
	"github.com/prite36/cropsense/internal/scheduler"
	"github.com/prite36/cropsense/internal/service"
	"github.com/prite36/cropsense/internal/slack"
	"github.com/prite36/cropsense/internal/telemetry"
)

var (
	siteID    string
	token     string
	pinCount  int
	timeOfDay string
	daysMask  string
	asOf      string

	rootCmd = &cobra.Command{
		Use:   "cropsense-debug",
		Short: "CropSense debug tool",
		Long:  "Runs single CropSense operations directly, without the API server or the recorder schedule.",
	}

	pollCmd = &cobra.Command{
		Use:   "poll",
		Short: "Poll the live telemetry of a site",
		RunE:  runPoll,
	}

	scanCmd = &cobra.Command{
		Use:   "scan",
		Short: "Discover and register populated pins of a site",
		RunE:  runScan,
	}

	nextRunCmd = &cobra.Command{
		Use:   "next-run",
		Short: "Compute the next run of a weekly schedule",
		RunE:  runNextRun,
	}

	upcomingCmd = &cobra.Command{
		Use:   "upcoming",
		Short: "Show the next upcoming irrigation schedule",
		RunE:  runUpcoming,
	}

	recordCmd = &cobra.Command{
		Use:   "record",
		Short: "Run one telemetry recorder cycle for every configured site",
		RunE:  runRecord,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&siteID, "site", "s", "", "Site ID")
	rootCmd.PersistentFlags().StringVarP(&token, "token", "t", "", "Device-cloud auth token (defaults to the configured site token)")

	scanCmd.Flags().IntVarP(&pinCount, "pins", "n", 0, "Number of virtual pins to probe (defaults to DISCOVERY_PIN_COUNT)")

	nextRunCmd.Flags().StringVar(&timeOfDay, "time", "", "Time of day, HH:MM")
	nextRunCmd.Flags().StringVar(&daysMask, "days", "1111111", "Active days as a Mon..Sun 1/0 mask")
	nextRunCmd.Flags().StringVar(&asOf, "as-of", "", "Reference instant, RFC3339 (defaults to now)")
	_ = nextRunCmd.MarkFlagRequired("time")

	rootCmd.AddCommand(pollCmd, scanCmd, nextRunCmd, upcomingCmd, recordCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withCore builds the core components into targets and returns a function releasing them.
func withCore(cfg *config.Config, targets ...interface{}) (func(), error) {
	app := fx.New(
		fx.Supply(cfg),
		service.Core,
		fx.Populate(targets...),
		fx.NopLogger,
	)
	if err := app.Err(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return nil, err
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = app.Stop(ctx)
	}, nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, cfg.Validate()
}

func siteToken(cfg *config.Config) (string, error) {
	if siteID == "" {
		return "", fmt.Errorf("--site is required")
	}
	if token != "" {
		return token, nil
	}
	if t, ok := cfg.SiteToken(siteID); ok {
		return t, nil
	}
	return "", fmt.Errorf("no auth token for site %s", siteID)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runPoll(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tok, err := siteToken(cfg)
	if err != nil {
		return err
	}

	var aggregator *telemetry.Aggregator
	release, err := withCore(cfg, &aggregator)
	if err != nil {
		return err
	}
	defer release()

	snapshot, err := aggregator.PollSite(cmd.Context(), siteID, tok)
	if err != nil {
		return err
	}
	return printJSON(map[string]interface{}{
		"snapshot":    snapshot,
		"alerts":      telemetry.Alerts(snapshot),
		"avgMoisture": telemetry.AverageMoisture(snapshot),
	})
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tok, err := siteToken(cfg)
	if err != nil {
		return err
	}
	if pinCount <= 0 {
		pinCount = cfg.Discovery.PinCount
	}

	var scanner *discovery.Scanner
	release, err := withCore(cfg, &scanner)
	if err != nil {
		return err
	}
	defer release()

	created, err := scanner.Scan(cmd.Context(), siteID, tok, discovery.DefaultAddressSpace(pinCount))
	if err != nil {
		return err
	}
	fmt.Printf("Registered %d new pin(s)\n", len(created))
	return printJSON(created)
}

func runNextRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	at, err := irrigation.ParseTimeOfDay(timeOfDay)
	if err != nil {
		return err
	}
	var days models.Weekdays
	if err := days.Scan(daysMask); err != nil {
		return err
	}

	ref := time.Now().In(loc)
	if asOf != "" {
		parsed, err := time.Parse(time.RFC3339, asOf)
		if err != nil {
			return fmt.Errorf("invalid --as-of: %w", err)
		}
		ref = parsed.In(loc)
	}

	next := irrigation.ComputeNextRun(days, at, ref)
	if next == nil {
		fmt.Println("No active days, the schedule never runs.")
		return nil
	}
	fmt.Printf("Next run: %s (in %s)\n", next.Format(time.RFC3339), next.Sub(ref).Round(time.Minute))
	return nil
}

func runUpcoming(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var store *irrigation.Store
	release, err := withCore(cfg, &store)
	if err != nil {
		return err
	}
	defer release()

	sched, ok, err := store.Upcoming(cmd.Context(), siteID)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("No upcoming irrigation is scheduled.")
		return nil
	}
	return printJSON(sched)
}

// runRecord is the debugging counterpart of the recorder schedule: it runs one cycle in the foreground.
func runRecord(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var (
		aggregator *telemetry.Aggregator
		store      *history.Store
		logger     *zap.Logger
	)
	release, err := withCore(cfg, &aggregator, &store, &logger)
	if err != nil {
		return err
	}
	defer release()

	publisher, err := mqtt.NewClient(cfg.MQTT.Broker, cfg.MQTT.ClientID+"-debug", cfg.MQTT.Username, cfg.MQTT.Password, cfg.MQTT.TopicPrefix, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()
	notifier := slack.NewClient(cfg.Slack.BotToken, cfg.Slack.ChannelID, logger)

	recorder, err := scheduler.NewScheduler(cfg, aggregator, store, publisher, notifier, logger)
	if err != nil {
		return err
	}

	logger.Info("executing recorder cycle directly", zap.Int("sites", len(cfg.Sites)))
	recorder.RunJob()
	logger.Info("debug run finished")
	return nil
}
