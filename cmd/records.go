package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/maps-harvest/internal/model"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Inspect and edit the stored business table",
}

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored records",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "records")
		if err != nil {
			return err
		}
		defer env.Close()

		printRecords(cmd.OutOrStdout(), env.Records.All())
		return nil
	},
}

var recordsRemoveCmd = &cobra.Command{
	Use:   "remove <index>",
	Short: "Remove the record at index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := strconv.Atoi(args[0])
		if err != nil {
			return eris.Errorf("records: index must be an integer, got %q", args[0])
		}
		env, err := initEnv(cmd.Context(), "records")
		if err != nil {
			return err
		}
		defer env.Close()

		removed, err := env.Records.RemoveAt(cmd.Context(), idx)
		if err != nil {
			return err
		}
		if !removed {
			fmt.Fprintf(cmd.OutOrStdout(), "no record at index %d\n", idx)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed; %d records left\n", env.Records.Len())
		return nil
	},
}

var recordsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every stored record",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "records")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Records.Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "cleared")
		return nil
	},
}

func printRecords(out io.Writer, recs []model.BusinessRecord) {
	if len(recs) == 0 {
		_, _ = fmt.Fprintln(out, "No records.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "#\tNAME\tCATEGORY\tPHONE\tRATING\tWEBSITE\tEMAILS")
	_, _ = fmt.Fprintln(w, "-\t----\t--------\t-----\t------\t-------\t------")
	for i, r := range recs {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			i, r.Name, r.Category, r.Phone, r.Rating, r.Website, r.Emails)
	}
	_ = w.Flush()
}

func init() {
	recordsCmd.AddCommand(recordsListCmd, recordsRemoveCmd, recordsClearCmd)
	rootCmd.AddCommand(recordsCmd)
}
