// warmup runs the email network interaction engine: it cross-sends
// warmup messages between the configured accounts, watches their
// mailboxes, and keeps the interaction lifecycle records current.
//
// Usage:
//
//	warmup [-config path] run       start the engine and run warmup rounds
//	warmup [-config path] probe ID  validate one account's credentials
//	warmup [-config path] stats     print network statistics
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/emailmax/warmup/internal/app"
	"github.com/emailmax/warmup/internal/credential"
	"github.com/emailmax/warmup/internal/model"
	"github.com/emailmax/warmup/internal/transport"
)

const (
	// verifyInterval paces the delivery/read/rescue passes while the
	// engine runs.
	verifyInterval = 5 * time.Minute

	// retentionDays bounds how long interaction records are kept.
	retentionDays = 30
)

func main() {
	configPath := flag.String("config", model.DefaultConfigPath(), "Path to YAML configuration file")
	templateID := flag.String("template", "greeting", "Template id for warmup rounds")
	senders := flag.String("senders", "", "Comma-separated sender account ids (default: all accounts)")
	receivers := flag.String("receivers", "", "Comma-separated receiver account ids (default: all accounts)")
	flag.Parse()

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warmup: %v\n", err)
		os.Exit(1)
	}
	setupLogging(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch flag.Arg(0) {
	case "", "run":
		err = runEngine(ctx, cfg, *templateID, splitIDs(*senders), splitIDs(*receivers))
	case "probe":
		if flag.Arg(1) == "" {
			err = fmt.Errorf("probe: account id required")
		} else {
			err = runProbe(ctx, cfg, flag.Arg(1))
		}
	case "stats":
		err = runStats(ctx, cfg)
	default:
		err = fmt.Errorf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "warmup: %v\n", err)
		os.Exit(1)
	}
}

// setupLogging installs the process-wide slog handler per configuration.
func setupLogging(cfg model.LoggingConfig) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func splitIDs(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// runEngine starts the engine, performs one warmup round, and then keeps
// the verification passes running until the process is signalled.
func runEngine(ctx context.Context, cfg *model.Config, templateID string, senders, receivers []string) error {
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Start(ctx); err != nil {
		return err
	}

	orch := a.Orchestrator()
	if _, err := orch.CleanupOldInteractions(ctx, retentionDays); err != nil {
		slog.Warn("cleanup failed", "error", err)
	}

	all := a.Directory().AccountIDs()
	if len(senders) == 0 {
		senders = all
	}
	if len(receivers) == 0 {
		receivers = all
	}

	res, err := orch.CrossSend(ctx, senders, receivers, templateID, nil, nil)
	if err != nil {
		if res == nil {
			return err
		}
		slog.Warn("warmup round interrupted", "error", err,
			"successful", res.Successful, "failed", res.Failed)
	} else {
		slog.Info("warmup round complete",
			"total", res.Total, "successful", res.Successful,
			"failed", res.Failed, "delivery_rate", res.DeliveryRate)
	}

	ticker := time.NewTicker(verifyInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("shutting down")
			return nil
		case <-ticker.C:
			runVerification(ctx, a)
		}
	}
}

// runVerification runs one delivery/rescue/read sweep. Errors are
// logged, not fatal: individual accounts may be temporarily unreachable.
func runVerification(ctx context.Context, a *app.App) {
	orch := a.Orchestrator()

	if n, err := orch.VerifyDelivery(ctx); err != nil {
		slog.Warn("delivery verification incomplete", "updated", n, "error", err)
	} else if n > 0 {
		slog.Info("deliveries verified", "updated", n)
	}

	if n, err := orch.RescueFromSpam(ctx); err != nil {
		slog.Warn("spam rescue incomplete", "rescued", n, "error", err)
	} else if n > 0 {
		slog.Info("messages rescued from spam", "rescued", n)
	}

	if n, err := orch.CheckReadStatus(ctx); err != nil {
		slog.Warn("read check incomplete", "updated", n, "error", err)
	} else if n > 0 {
		slog.Info("reads recorded", "updated", n)
	}
}

// runProbe validates one account's credentials end to end and prints the
// per-step diagnostic report.
func runProbe(ctx context.Context, cfg *model.Config, accountID string) error {
	directory, err := credential.NewStaticDirectory(ctx, cfg.Accounts)
	if err != nil {
		return err
	}
	creds, err := directory.GetCredentials(ctx, accountID)
	if err != nil {
		return err
	}

	report := transport.Probe(ctx, &transport.NetDialer{}, creds)
	for _, step := range report.Steps {
		mark := "ok"
		if !step.Success {
			mark = "FAIL"
		}
		fmt.Printf("%-4s %-12s %s\n", mark, step.Name, step.Message)
	}
	if report.Hint != "" {
		fmt.Printf("hint: %s\n", report.Hint)
	}
	if !report.Success {
		return fmt.Errorf("probe failed for %s", accountID)
	}
	return nil
}

// runStats prints the network statistics as JSON.
func runStats(ctx context.Context, cfg *model.Config) error {
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.Orchestrator().NetworkStatistics(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}
