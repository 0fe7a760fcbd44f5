package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/amaumene/gokino/internal/classify"
	"github.com/amaumene/gokino/internal/controllers"
	"github.com/amaumene/gokino/internal/localstore"
)

func newScrapeCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "scrape",
		Short: "Run every source once, then export the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			app, cleanup, err := initServerApp(c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer cleanup()

			results, err := app.Scrape.RunAll(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderResults(results))

			snapshot, err := app.Export.Export(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported version %s (%d showtimes)\n", snapshot.Version, len(snapshot.ShowTimes))
			return nil
		},
	}
}

func newExportCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Export the catalog without scraping",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			app, cleanup, err := initServerApp(c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer cleanup()

			snapshot, err := app.Export.Export(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported version %s (%d showtimes)\n", snapshot.Version, len(snapshot.ShowTimes))
			return nil
		},
	}
}

func newSyncCommand(c *cli) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Update the local cache from the catalog server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			app, cleanup, err := initClientApp(c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer cleanup()

			if watch {
				if err := app.Scheduler.Start(); err != nil {
					return fmt.Errorf("failed to start scheduler: %w", err)
				}
				c.logger.WithField("schedule", c.cfg.SyncSchedule).Info("Watching catalog")
				<-ctx.Done()
				app.Scheduler.Stop()
				return nil
			}

			outcome, err := app.Syncer.Poll(ctx)
			if err != nil {
				return err
			}
			status := app.Syncer.Status()
			fmt.Fprintf(cmd.OutOrStdout(), "Sync %s, state %s, version %s\n", outcome, status.State, displayVersion(status.Version))
			return nil
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "keep running and poll on SYNC_SCHEDULE")
	return cmd
}

func newCacheCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the local cache",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show what the local cache holds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := initClientApp(c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer cleanup()

			version, err := app.Store.Version()
			if err != nil {
				return err
			}
			counts, err := app.Store.Counts()
			if err != nil {
				return err
			}

			rows := [][]string{
				{"Version", displayVersion(version)},
				{"Cinemas", strconv.Itoa(counts.Cinemas)},
				{"Movies", strconv.Itoa(counts.Movies)},
				{"Showtimes", strconv.Itoa(counts.ShowTimes)},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}

	var hours int
	showTimes := &cobra.Command{
		Use:   "showtimes",
		Short: "List upcoming showtimes from the local cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if hours <= 0 {
				return errors.New("--hours must be positive")
			}

			app, cleanup, err := initClientApp(c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer cleanup()

			now := time.Now()
			rows, err := showTimeRows(app.Store, now, now.Add(time.Duration(hours)*time.Hour), c.cfg.Location)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No showtimes in the local cache for this window")
				return nil
			}
			headers := []string{"Start", "Movie", "Cinema", "Language", "Version", "Event"}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, nil))
			return nil
		},
	}
	showTimes.Flags().IntVar(&hours, "hours", 24, "how far ahead to list")

	cmd.AddCommand(status, showTimes)
	return cmd
}

// showTimeRows lists showtimes in [from, to) with movie and cinema names resolved
func showTimeRows(store *localstore.Store, from, to time.Time, location *time.Location) ([][]string, error) {
	showTimes, err := store.ShowTimesBetween(from, to)
	if err != nil {
		return nil, err
	}
	movies, err := store.MoviesWithShowTimes()
	if err != nil {
		return nil, err
	}
	cinemas, err := store.CinemasWithShowTimes()
	if err != nil {
		return nil, err
	}

	movieNames := make(map[uint64]string, len(movies))
	for _, m := range movies {
		movieNames[m.ID] = m.DisplayName
	}
	cinemaNames := make(map[uint64]string, len(cinemas))
	for _, c := range cinemas {
		cinemaNames[c.ID] = c.DisplayName
	}

	rows := make([][]string, 0, len(showTimes))
	for _, st := range showTimes {
		rows = append(rows, []string{
			st.StartTime.In(location).Format("Mon 02.01. 15:04"),
			movieNames[st.MovieID],
			cinemaNames[st.CinemaID],
			classify.LanguageName(st.Language),
			classify.DubVariantName(st.DubVariant),
			st.SpecialEvent,
		})
	}
	return rows, nil
}

func renderResults(results []controllers.SourceResult) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		errText := ""
		if r.Err != nil {
			errText = r.Err.Error()
		}
		rows = append(rows, []string{
			r.Cinema,
			string(r.Status),
			strconv.Itoa(r.Stats.Accepted),
			strconv.Itoa(r.Stats.Skipped),
			strconv.Itoa(r.Stats.Duplicates),
			r.Duration.Round(time.Millisecond).String(),
			errText,
		})
	}
	headers := []string{"Cinema", "Status", "Accepted", "Skipped", "Duplicates", "Duration", "Error"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft}
	return renderTable(headers, rows, aligns)
}

func displayVersion(version string) string {
	if version == "" {
		return "(never synced)"
	}
	return version
}
