package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/maps-harvest/internal/autoseq"
)

var (
	autoRestart  bool
	autoContinue bool
)

var autoCmd = &cobra.Command{
	Use:   "auto",
	Short: "Walk the open results list, extracting and enriching every business",
	Long:  "Focuses each result of the map search opened at browser.start_url in turn, waits for its profile, extracts and enriches it, and saves progress after every item. Ctrl-C stops after the current step.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "auto")
		if err != nil {
			return err
		}
		defer env.Close()

		client, err := env.withChrome(ctx)
		if err != nil {
			return err
		}
		ctrl := autoseq.New(client, env.Records, env.KV,
			autoseq.WithEnricher(env.withEnricher()),
			autoseq.WithTiming(autoTiming()),
		)
		if err := ctrl.Load(ctx); err != nil {
			return err
		}

		release := stopOnInterrupt(ctx, ctrl.Stop)
		defer release()

		err = ctrl.Run(ctx, restartChooser(cmd.InOrStdin(), cmd.OutOrStdout()))
		st := ctrl.Status()
		fmt.Fprintf(cmd.OutOrStdout(), "stopped at result %d: %d extracted, %d added, %d enriched, %d skipped\n",
			st.CursorIndex, st.Processed, st.Added, st.Enriched, st.Skipped)
		return err
	},
}

// stopOnInterrupt calls stop once on SIGINT or SIGTERM, or when ctx ends.
// The returned release unregisters the handler without calling stop.
func stopOnInterrupt(ctx context.Context, stop func()) (release func()) {
	sigCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	unregister := context.AfterFunc(sigCtx, func() {
		zap.L().Info("stop requested, finishing current step")
		stop()
	})
	return func() {
		unregister()
		cancel()
	}
}

// restartChooser decides between restarting and continuing a saved run,
// asking on in unless --restart or --continue was given.
func restartChooser(in io.Reader, out io.Writer) func(cursor int) bool {
	return func(cursor int) bool {
		switch {
		case autoRestart:
			return true
		case autoContinue:
			return false
		}
		fmt.Fprintf(out, "A previous run stopped at result %d. Restart from the first result? [y/N] ", cursor)
		line, _ := bufio.NewReader(in).ReadString('\n')
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	}
}

func init() {
	autoCmd.Flags().BoolVar(&autoRestart, "restart", false, "start again from the first result")
	autoCmd.Flags().BoolVar(&autoContinue, "continue", false, "continue from the saved position")
	autoCmd.MarkFlagsMutuallyExclusive("restart", "continue")
	rootCmd.AddCommand(autoCmd)
}
