package main

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/latexmt-web/internal/jobs"
	"github.com/MimeLyc/latexmt-web/internal/persistence"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect stored jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every stored job, archived ones included",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		return printJobs(cmd.Context(), store, cmd)
	},
}

func init() {
	jobsCmd.AddCommand(jobsListCmd)
}

func printJobs(ctx context.Context, store *persistence.SQLStore, cmd *cobra.Command) error {
	all, err := store.List(ctx)
	if err != nil {
		return err
	}
	list := make([]jobs.Job, 0, len(all))
	for _, job := range all {
		list = append(list, job)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tSRC\tTGT\tDOWNLOAD")
	for _, job := range list {
		url := "-"
		if job.DownloadURL != nil {
			url = *job.DownloadURL
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", job.ID, job.Status, job.SrcLang, job.TgtLang, url)
	}
	return w.Flush()
}
