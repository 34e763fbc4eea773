package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"calmate/internal/capture"
	"calmate/internal/config"
	"calmate/internal/ics"
	"calmate/internal/model"
	"calmate/internal/tools"
)

func newEventsCmd(a *app) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List scheduled events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), formatEvents(a.session().Schedule(), date))
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "only show events on this date (YYYY-MM-DD)")

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <index>",
		Short: "Remove the event at index (as shown by 'events', with or without --date)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("index must be an integer: %w", err)
			}
			out, err := a.session().HandleFunctionCall(model.FunctionCall{
				Name: string(tools.NameRemoveEvent),
				Args: map[string]any{"index": i},
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	})
	return cmd
}

// formatEvents lists the events on date, or all events when date is empty.
// Each line carries the event's index in the full schedule so it can be
// passed to 'events remove' unchanged.
func formatEvents(sched model.Schedule, date string) string {
	var lines []string
	for i, ev := range sched.Events {
		if date != "" && ev.Date != date {
			continue
		}
		lines = append(lines, fmt.Sprintf("%d. %s on %s at %s", i, ev.Description, ev.Date, ev.Time))
	}
	if len(lines) > 0 {
		return strings.Join(lines, "\n")
	}
	if date != "" {
		return fmt.Sprintf("No events scheduled on %s.", date)
	}
	return "No events scheduled."
}

func newProfileCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show the user profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printProfile(cmd, a.session().Profile())
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set key=value...",
		Short: "Add or overwrite profile entries",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			updates := model.Profile{}
			for _, kv := range args {
				k, v, ok := strings.Cut(kv, "=")
				k = strings.TrimSpace(k)
				if !ok || k == "" {
					return fmt.Errorf("expected key=value, got %q", kv)
				}
				updates[k] = v
			}
			s := a.session()
			if err := s.UpdateProfile(updates); err != nil {
				return err
			}
			return printProfile(cmd, s.Profile())
		},
	})
	return cmd
}

func printProfile(cmd *cobra.Command, p model.Profile) error {
	if len(p) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No profile information available.")
		return nil
	}
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}

func newExportICSCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export-ics [file]",
		Short: "Write the schedule as an iCalendar file (stdout when no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := ics.Export(a.store().LoadSchedule(), a.cfg.Location(), time.Now())
			if len(args) == 0 {
				_, err := fmt.Fprint(cmd.OutOrStdout(), body)
				return err
			}
			if err := config.WriteFileAtomic(args[0], []byte(body), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported schedule to %s\n", args[0])
			return nil
		},
	}
}

func newImportICSCmd(a *app) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "import-ics <url|file|id>",
		Short: "Import upcoming events from an iCalendar feed",
		Long: "Import upcoming events from an iCalendar feed. The argument is a URL, a local\n" +
			"file, or the id/name of a feed listed under 'ics' in the config.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				days = a.cfg.HorizonDays
			}
			src := a.resolveSource(args[0])

			imported, err := ics.Import(cmd.Context(), ics.NewFetcher(a.cfg.CacheDir()), src, ics.ImportOptions{
				Location:    a.cfg.Location(),
				Today:       time.Now(),
				HorizonDays: days,
			})
			if err != nil {
				return fmt.Errorf("import %s: %w", src.ID, err)
			}

			st := a.store()
			sched := st.LoadSchedule()
			added := mergeEvents(&sched, imported)
			if added > 0 {
				if err := st.SaveSchedule(sched); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d new events (%d in feed window)\n", added, len(imported))
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "how many days ahead to import (default from config)")
	return cmd
}

// resolveSource maps a configured feed id or name to its source, otherwise
// treats arg as a URL or path.
func (a *app) resolveSource(arg string) ics.Source {
	for _, c := range a.cfg.ICS {
		if c.URL != "" && (c.ID == arg || c.Name == arg) {
			id := c.ID
			if id == "" {
				id = c.Name
			}
			return ics.Source{ID: id, URL: c.URL}
		}
	}
	return ics.Source{ID: arg, URL: arg}
}

// mergeEvents appends the events not already present verbatim, so repeated
// imports do not duplicate entries. It returns how many were added.
func mergeEvents(sched *model.Schedule, events []model.Event) int {
	seen := make(map[model.Event]bool, len(sched.Events))
	for _, ev := range sched.Events {
		seen[ev] = true
	}
	added := 0
	for _, ev := range events {
		if seen[ev] {
			continue
		}
		seen[ev] = true
		sched.Events = append(sched.Events, ev)
		added++
	}
	return added
}

func newSnapshotCmd(a *app) *cobra.Command {
	var url, output string

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Render the served calendar page to PNG (needs 'calmate serve' running)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := capture.OptionsFromConfig(a.cfg)
			if url != "" {
				opts.URL = url
			}
			if output != "" {
				opts.OutputPath = output
			}
			if err := capture.CalendarPNG(cmd.Context(), opts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", opts.OutputPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "page to capture (default: the configured listen address)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "PNG path (default from config)")
	return cmd
}
