package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/leads-cli/internal/rerank"
)

var rerankCmd = &cobra.Command{
	Use:   "rerank <workorder-id>",
	Short: "Recompute lead display order from triage statuses",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		workorderID := args[0]

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if _, err := env.Store.GetWorkorder(ctx, workorderID); err != nil {
			return err
		}
		leads, err := env.Store.LeadsByWorkorder(ctx, workorderID)
		if err != nil {
			return err
		}

		order := rerank.Rerank(leads)
		if err := env.Store.SetDisplayOrder(ctx, workorderID, order); err != nil {
			return err
		}

		cmd.Printf("reranked %d leads in workorder %s\n", len(order), workorderID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rerankCmd)
}
