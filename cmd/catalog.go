package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/lipgloss/v2/table"
	"github.com/spf13/cobra"

	"github.com/BatmanBruc/pdf-batch-bot/internal/catalog"
	"github.com/BatmanBruc/pdf-batch-bot/internal/metrics"
	"github.com/BatmanBruc/pdf-batch-bot/types"
)

func newCatalogCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and maintain the catalog of delivered PDFs",
	}

	var (
		limit    int
		uploader int64
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List the newest entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd.Context(), flags, func(ctx context.Context, svc *catalog.Service) error {
				var (
					entries []types.CatalogEntry
					err     error
				)
				if uploader != 0 {
					entries, err = svc.ByUploader(ctx, uploader, limit)
				} else {
					entries, err = svc.Recent(ctx, limit)
				}
				if err != nil {
					return err
				}
				return printEntries(cmd.OutOrStdout(), entries)
			})
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", catalog.DefaultListLen, "number of entries")
	list.Flags().Int64Var(&uploader, "uploader", 0, "only entries from this user id")

	find := &cobra.Command{
		Use:   "find query",
		Short: "Search titles and slugs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd.Context(), flags, func(ctx context.Context, svc *catalog.Service) error {
				entries, err := svc.Find(ctx, strings.Join(args, " "), catalog.MaxListLen)
				if err != nil {
					return err
				}
				return printEntries(cmd.OutOrStdout(), entries)
			})
		},
	}

	rename := &cobra.Command{
		Use:   "rename slug title",
		Short: "Change an entry's title",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd.Context(), flags, func(ctx context.Context, svc *catalog.Service) error {
				title, err := svc.Rename(ctx, args[0], strings.Join(args[1:], " "), 0)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", args[0], title)
				return nil
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete slug...",
		Short: "Remove entries",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd.Context(), flags, func(ctx context.Context, svc *catalog.Service) error {
				for _, slug := range args {
					if err := svc.Delete(ctx, slug, 0); err != nil {
						return fmt.Errorf("%s: %w", slug, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", slug)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(list, find, rename, del)
	return cmd
}

// withCatalog opens the configured backend with operator rights.
func withCatalog(ctx context.Context, flags *globalFlags, fn func(context.Context, *catalog.Service) error) error {
	cfg, logger, err := flags.load()
	if err != nil {
		return err
	}
	var cl closers
	defer cl.close()
	backend, err := openCatalog(ctx, cfg, map[string]metrics.HealthFunc{}, &cl)
	if err != nil {
		return err
	}
	operator := func(int64) bool { return true }
	return fn(ctx, catalog.NewService(backend, operator, logger))
}

func printEntries(w io.Writer, entries []types.CatalogEntry) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderRow(false).
		Headers("SLUG", "TITLE", "UPLOADER", "CREATED", "FILE ID")
	for _, e := range entries {
		t.Row(e.Slug, e.Title, strconv.FormatInt(e.UploaderID, 10),
			time.Unix(e.CreatedAt, 0).UTC().Format(time.RFC3339), e.FileID)
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}
