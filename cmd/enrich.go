package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/maps-harvest/internal/enrich"
)

var (
	enrichIndex  int
	enrichAll    bool
	enrichFailed bool
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Mine business websites for emails, phones and social links",
	Long:  "Enriches the most recent record by default, the record at --index, every record with a website that has not been enriched (--all), or re-attempts the logged failures once (--failed).",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		coord := env.withEnricher()
		out := cmd.OutOrStdout()
		switch {
		case enrichFailed:
			sum, err := coord.RetryFailed(ctx)
			if err != nil {
				return err
			}
			printSummary(out, sum)
		case enrichAll:
			sum, err := coord.EnrichAll(ctx, coord.Pending())
			if err != nil {
				return err
			}
			printSummary(out, sum)
		default:
			idx := enrichIndex
			if !cmd.Flags().Changed("index") {
				idx = env.Records.Len() - 1
			}
			return enrichOne(ctx, coord, env, idx, out)
		}
		return nil
	},
}

func enrichOne(ctx context.Context, coord *enrich.Coordinator, env *harvestEnv, idx int, out io.Writer) error {
	rec, ok := env.Records.Get(idx)
	if !ok {
		return eris.Errorf("enrich: no record at index %d", idx)
	}
	if _, err := coord.Apply(ctx, rec); err != nil {
		if errors.Is(err, enrich.ErrNoWebsite) {
			fmt.Fprintf(out, "%s has no website\n", rec.Name)
			return nil
		}
		return err
	}
	rec, _ = env.Records.Get(idx)
	fmt.Fprintf(out, "%s\n  emails: %s\n  phones: %s\n", rec.Name, rec.Emails, rec.WebPhones)
	return nil
}

func printSummary(out io.Writer, s enrich.Summary) {
	fmt.Fprintf(out, "attempted %d, merged %d, failed %d, no website %d\n",
		s.Attempted, s.Merged, s.Failed, s.NoWebsite)
}

func init() {
	enrichCmd.Flags().IntVar(&enrichIndex, "index", -1, "record index to enrich (default: most recent)")
	enrichCmd.Flags().BoolVar(&enrichAll, "all", false, "enrich every record with a website and no enrichment yet")
	enrichCmd.Flags().BoolVar(&enrichFailed, "failed", false, "re-attempt logged enrichment failures once")
	enrichCmd.MarkFlagsMutuallyExclusive("index", "all", "failed")
	rootCmd.AddCommand(enrichCmd)
}
