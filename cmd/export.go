package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/maps-harvest/internal/export"
)

var (
	exportFormat  string
	exportOut     string
	exportColumns []string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the business table as TSV, CSV or XLSX",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := export.ParseFormat(exportFormat)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		env, err := initEnv(ctx, "export")
		if err != nil {
			return err
		}
		defer env.Close()

		if cmd.Flags().Changed("columns") {
			if err := export.SaveColumnPrefs(ctx, env.KV, exportColumns); err != nil {
				return err
			}
		}
		cols, err := export.LoadColumns(ctx, env.KV)
		if err != nil {
			return err
		}

		var w io.Writer = cmd.OutOrStdout()
		if exportOut != "" && exportOut != "-" {
			f, err := os.Create(exportOut)
			if err != nil {
				return eris.Wrap(err, "export: create file")
			}
			defer f.Close()
			w = f
		} else if format == export.XLSX {
			return eris.New("export: xlsx needs --out")
		}

		recs := env.Records.All()
		if err := export.Write(w, format, recs, cols); err != nil {
			return err
		}
		if exportOut != "" && exportOut != "-" {
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d records to %s\n", len(recs), exportOut)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "tsv", "output format: tsv, csv or xlsx")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file (default stdout)")
	exportCmd.Flags().StringSliceVar(&exportColumns, "columns", nil, "column keys in order; saved as the new preference")
	rootCmd.AddCommand(exportCmd)
}
