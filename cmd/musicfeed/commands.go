package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"musicfeed/internal/domain"
	"musicfeed/internal/service"
)

func newSweepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Refresh every artist with stale content once",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, stop := exitOnSignal(cmd.Context())
			defer stop()

			return ctx.withApp(runCtx, func(a *app) error {
				stats, err := a.refresh.Sweep(runCtx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "artists=%d refreshed=%d failed=%d duration=%s\n",
					stats.Artists, stats.Refreshed, stats.Failed, stats.Duration.Round(time.Millisecond))
				return nil
			})
		},
	}
}

func newRefreshCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <slug>",
		Short: "Refresh one artist from every provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, stop := exitOnSignal(cmd.Context())
			defer stop()

			return ctx.withApp(runCtx, func(a *app) error {
				artist, err := a.artists.GetBySlug(runCtx, args[0])
				if err != nil {
					return err
				}
				report, err := a.refresh.RefreshArtist(runCtx, artist.ID)
				if err != nil {
					return err
				}
				return writeJSON(cmd, report)
			})
		},
	}
}

func newResolveCommand(ctx *commandContext) *cobra.Command {
	var region string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "resolve <name>",
		Short: "Resolve an artist through the music catalog and store it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := domain.ParseRegion(strings.ToUpper(region))
			if err != nil {
				return err
			}
			name := strings.Join(args, " ")

			return ctx.withApp(cmd.Context(), func(a *app) error {
				if dryRun {
					candidates, err := a.artists.SearchByName(cmd.Context(), name, r)
					if err != nil {
						return err
					}
					return writeJSON(cmd, candidates)
				}
				artist, err := a.artists.Resolve(cmd.Context(), name, r)
				if err != nil {
					return err
				}
				return writeJSON(cmd, artist)
			})
		},
	}

	cmd.Flags().StringVar(&region, "region", "", "Catalog market region (ZA, UK, EU, GLOBAL)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show candidates without storing")
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var region, window, kind string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list <slug>",
		Short: "Show an artist's ranked content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := parseListFlags(region, window, kind)
			if err != nil {
				return err
			}

			return ctx.withApp(cmd.Context(), func(a *app) error {
				artist, err := a.artists.GetBySlug(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				items, err := a.listing.ListItems(cmd.Context(), artist.ID, q)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, items)
				}
				return writeItemTable(cmd, items)
			})
		},
	}

	cmd.Flags().StringVar(&region, "region", "", "Ranking region (ZA, UK, EU, GLOBAL)")
	cmd.Flags().StringVar(&window, "window", "", "Recency window (24h, 7d, 30d)")
	cmd.Flags().StringVar(&kind, "kind", "", "Only this kind (news, video, audio, release)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func parseListFlags(region, window, kind string) (service.ListQuery, error) {
	r, err := domain.ParseRegion(strings.ToUpper(region))
	if err != nil {
		return service.ListQuery{}, err
	}
	w, err := domain.ParseWindow(window)
	if err != nil {
		return service.ListQuery{}, err
	}
	q := service.ListQuery{Region: r, Window: w}
	if kind != "" {
		k, err := domain.ParseKind(kind)
		if err != nil {
			return service.ListQuery{}, err
		}
		q.Kind = &k
	}
	return q, nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

func writeItemTable(cmd *cobra.Command, items []domain.ContentItem) error {
	if len(items) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No items")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tKIND\tPUBLISHED\tPIN\tTITLE")
	for _, item := range items {
		pin := ""
		if item.Pinned {
			pin = "*"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			item.RegionScore, item.Kind, item.PublishedAt.Format(time.DateTime), pin, item.Title)
	}
	return tw.Flush()
}
