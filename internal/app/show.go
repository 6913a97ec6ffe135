package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"collateral-oracle/internal/storage"
)

// Show prints recent samples, and optionally the config audit trail and
// alert history.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show samples")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if err := showSamples(ctx, store, opts.Limit); err != nil {
		return err
	}
	if opts.Events {
		if err := showEvents(ctx, store, opts.Limit); err != nil {
			return err
		}
	}
	if opts.Alerts {
		if err := showAlerts(ctx, store, opts.Limit); err != nil {
			return err
		}
	}
	return nil
}

func showSamples(ctx context.Context, store storage.ShareSampleStore, limit int) error {
	samples, err := store.ListRecentSamples(ctx, limit)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		fmt.Fprintln(os.Stdout, "no samples found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tVault\tShare Price\tBlock\tStatus\tError")

	for _, sample := range samples {
		block := ""
		if sample.BlockNumber != nil {
			block = strconv.FormatInt(*sample.BlockNumber, 10)
		}
		errMsg := ""
		if sample.Error != nil {
			errMsg = sanitizeInline(*sample.Error)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\n",
			sample.Bucket.UTC().Format(time.RFC3339),
			sample.Vault,
			sample.SharePrice.StringFixed(6),
			block,
			sample.Status,
			errMsg,
		)
	}

	return writer.Flush()
}

func showEvents(ctx context.Context, store storage.EventStore, limit int) error {
	events, err := store.ListRecentEvents(ctx, limit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(os.Stdout, "no events found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tKind\tAsset\tValue\tActor")
	for _, ev := range events {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\n",
			ev.OccurredAt.UTC().Format(time.RFC3339),
			ev.Kind,
			ev.Asset,
			sanitizeInline(ev.Value),
			ev.Actor,
		)
	}
	return writer.Flush()
}

func showAlerts(ctx context.Context, store storage.AlertStore, limit int) error {
	alerts, err := store.ListRecentAlerts(ctx, limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tVault\tReason\tDetail\tChannels")
	for _, alert := range alerts {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\n",
			alert.SampleTS.UTC().Format(time.RFC3339),
			alert.Vault,
			alert.Reason,
			sanitizeInline(alert.Detail),
			strings.Join(alert.Channels, ","),
		)
	}
	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
