package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	appLog "turnocal/internal/log"
	"turnocal/internal/roster"
)

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>...",
		Short: "Import roster documents (.csv, .tsv, .txt, .json)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				rows [][]string
				errs []error
			)
			for _, path := range args {
				res, err := a.svc.ImportFile(cmd.Context(), path)
				if err != nil {
					appLog.Error("import failed", err, "file", path)
					errs = append(errs, fmt.Errorf("%s: %w", path, err))
					rows = append(rows, []string{path, "-", "-", "-", "-", "failed"})
					continue
				}
				status := "merged"
				if res.Merge.AlreadyPresent {
					status = "already present"
				}
				rows = append(rows, []string{
					path,
					res.Partition.Key(),
					shortHash(res.Hash),
					strconv.Itoa(res.Merge.Rows),
					strconv.Itoa(len(res.Roster.Anomalies)),
					status,
				})
				for _, an := range res.Roster.Anomalies {
					printNote(cmd.ErrOrStderr(), "anomaly: %s day %d %q", an.Person, an.Day, an.Token)
				}
			}
			printTable(cmd.OutOrStdout(), []string{"File", "Partition", "Hash", "Rows", "Anomalies", "Status"}, rows)
			return errors.Join(errs...)
		},
	}
}

func newPartitionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "partitions",
		Short: "List stored months, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			infos, err := a.svc.ListPartitions(cmd.Context())
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				printNote(cmd.OutOrStdout(), "no partitions yet")
				return nil
			}
			rows := make([][]string, 0, len(infos))
			for _, info := range infos {
				rows = append(rows, []string{info.Partition.Key(), strconv.Itoa(info.Rows)})
			}
			printTable(cmd.OutOrStdout(), []string{"Partition", "Rows"}, rows)
			return nil
		},
	}
}

func newLookupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "lookup <partition> <name>",
		Short:   "Show a person's decoded shifts next to the source cells",
		Example: "  turnocal lookup April-2025 ROSSI",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := roster.ParsePartition(args[0])
			if err != nil {
				return err
			}
			view, err := a.svc.PersonalView(cmd.Context(), p, args[1])
			if err != nil {
				return err
			}

			headers := []string{"Day"}
			for i := range view.Decoded {
				headers = append(headers, fmt.Sprintf("Decoded #%d", i+1))
			}
			for i := range view.Original {
				headers = append(headers, fmt.Sprintf("Source #%d", i+1))
			}

			days := len(view.Header) - 1
			rows := make([][]string, 0, days)
			for day := 1; day <= days; day++ {
				row := []string{strconv.Itoa(day)}
				for _, d := range view.Decoded {
					row = append(row, d.Cell(day))
				}
				for _, o := range view.Original {
					v := ""
					if day < len(o) {
						v = o[day]
					}
					row = append(row, v)
				}
				rows = append(rows, row)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s, %s\n", view.Person, p)
			printTable(cmd.OutOrStdout(), headers, rows)
			return nil
		},
	}
}

func newSwapCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "swap <YYYY-MM-DD> <HH:MM> <hours>",
		Short:   "List who works the given shift, i.e. possible swap partners",
		Example: "  turnocal swap 2025-04-10 07:30 4",
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := time.ParseInLocation("2006-01-02", args[0], a.svc.Location())
			if err != nil {
				return fmt.Errorf("invalid date %q: %w", args[0], err)
			}
			hours, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid hours %q: %w", args[2], err)
			}
			people, err := a.svc.SwapCandidates(cmd.Context(), date, args[1], hours)
			if err != nil {
				return err
			}
			if len(people) == 0 {
				printNote(cmd.OutOrStdout(), "nobody works %s (%d) on %s", args[1], hours, args[0])
				return nil
			}
			rows := make([][]string, 0, len(people))
			for _, name := range people {
				rows = append(rows, []string{name})
			}
			printTable(cmd.OutOrStdout(), []string{fmt.Sprintf("%s %s (%d)", args[0], args[1], hours)}, rows)
			return nil
		},
	}
}

func newCalendarCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "calendar <partition> <name>",
		Short: "Write a person's .ics feed for a month from the stored history",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := roster.ParsePartition(args[0])
			if err != nil {
				return err
			}
			path, err := a.svc.SynthesizeCalendar(cmd.Context(), p, args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func newImportsCmd(a *app) *cobra.Command {
	var (
		partition string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "imports",
		Short: "Show the import catalog, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			imps, err := a.svc.Imports(cmd.Context(), partition, limit)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(imps))
			for _, imp := range imps {
				dup := ""
				if imp.AlreadyPresent {
					dup = "yes"
				}
				rows = append(rows, []string{
					imp.ImportedAt.In(a.svc.Location()).Format("2006-01-02 15:04"),
					imp.Partition,
					imp.Filename,
					shortHash(imp.Hash),
					strconv.Itoa(imp.Rows),
					strconv.Itoa(imp.Anomalies),
					dup,
				})
			}
			printTable(cmd.OutOrStdout(), []string{"When", "Partition", "File", "Hash", "Rows", "Anomalies", "Duplicate"}, rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&partition, "partition", "", "Only this partition, e.g. April-2025")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum entries (0 for all)")
	return cmd
}
