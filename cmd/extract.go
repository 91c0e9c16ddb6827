package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/maps-harvest/internal/extract"
	"github.com/sells-group/maps-harvest/internal/model"
	"github.com/sells-group/maps-harvest/internal/records"
)

var (
	extractHTML string
	extractURL  string
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract the business shown on a place page and add it to the table",
	Long:  "Extracts one business record, either from a saved place page (--html) or by opening --url in the controlled browser, and adds it unless a record with the same name and address exists.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "extract")
		if err != nil {
			return err
		}
		defer env.Close()

		var rec model.BusinessRecord
		if extractHTML != "" {
			ex, err := initExtractor()
			if err != nil {
				return err
			}
			rec, err = extractFile(ex, extractHTML, extractURL)
			if err != nil {
				return err
			}
		} else {
			if extractURL != "" {
				cfg.Browser.StartURL = extractURL
			}
			if cfg.Browser.StartURL == "" {
				return eris.New("extract: --html or --url is required")
			}
			client, err := env.withChrome(ctx)
			if err != nil {
				return err
			}
			rec, err = client.ExtractData(ctx)
			if err != nil {
				return err
			}
		}

		return addRecord(ctx, env.Records, rec, cmd.OutOrStdout())
	},
}

// extractFile runs the extractor over a saved page.
func extractFile(ex *extract.Extractor, path, pageURL string) (model.BusinessRecord, error) {
	markup, err := os.ReadFile(path)
	if err != nil {
		return model.BusinessRecord{}, eris.Wrapf(err, "extract: read %s", path)
	}
	return ex.Extract(extract.NewPage(string(markup), pageURL)), nil
}

// addRecord stores rec and reports the outcome.
func addRecord(ctx context.Context, recs *records.Store, rec model.BusinessRecord, out io.Writer) error {
	accepted, err := recs.Add(ctx, rec)
	if errors.Is(err, records.ErrMissingName) {
		return eris.New("extract: page is not showing a place profile")
	}
	if err != nil {
		return err
	}
	if !accepted {
		fmt.Fprintf(out, "duplicate: %s (%s) is already in the table\n", rec.Name, rec.Address)
		return nil
	}

	if missing := rec.MissingFields(); len(missing) > 0 {
		zap.L().Info("extracted record is incomplete", zap.String("name", rec.Name), zap.Strings("missing", missing))
	}
	fmt.Fprintf(out, "added #%d: %s\n", recs.Len()-1, rec.Name)
	return nil
}

func init() {
	extractCmd.Flags().StringVar(&extractHTML, "html", "", "saved place page to extract from")
	extractCmd.Flags().StringVar(&extractURL, "url", "", "place page URL (opened in the browser, or the source URL of --html)")
	rootCmd.AddCommand(extractCmd)
}
