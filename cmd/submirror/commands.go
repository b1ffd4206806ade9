package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"submirror/internal/config"
	"submirror/internal/engine"
)

const opTimeout = 60 * time.Second

var (
	flagPlanID      string
	flagProration   string
	flagAtPeriodEnd bool
	flagProrate     bool
)

var syncCmd = &cobra.Command{
	Use:   "sync <email>",
	Short: "Reconcile one identity's mirror row against the provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOp(func(ctx context.Context, eng *engine.Engine) (any, error) {
			return eng.Sync(ctx, args[0])
		})
	},
}

var changePlanCmd = &cobra.Command{
	Use:   "change-plan <email>",
	Short: "Move an identity's subscription to a new plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagPlanID == "" {
			return fmt.Errorf("--plan is required")
		}
		return runOp(func(ctx context.Context, eng *engine.Engine) (any, error) {
			opts := engine.PlanChangeOptions{
				ProrationBehavior: config.ProrationBehavior(flagProration),
			}
			return eng.ChangePlan(ctx, args[0], flagPlanID, opts)
		})
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <email>",
	Short: "Cancel an identity's active subscription",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOp(func(ctx context.Context, eng *engine.Engine) (any, error) {
			return eng.Cancel(ctx, args[0], engine.CancelOptions{
				AtPeriodEnd: flagAtPeriodEnd,
				Prorate:     flagProrate,
			})
		})
	},
}

func init() {
	changePlanCmd.Flags().StringVar(&flagPlanID, "plan", "", "Target price ID")
	changePlanCmd.Flags().StringVar(&flagProration, "proration", "", "Proration behavior override (create_prorations, always_invoice)")
	cancelCmd.Flags().BoolVar(&flagAtPeriodEnd, "at-period-end", false, "Cancel at the end of the current billing period instead of immediately")
	cancelCmd.Flags().BoolVar(&flagProrate, "prorate", false, "Issue prorated credit on immediate cancellation")
}

// runOp wires the engine, runs one operation, and prints the result as JSON.
func runOp(fn func(ctx context.Context, eng *engine.Engine) (any, error)) error {
	eng, store, err := setup()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	result, err := fn(ctx, eng)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
