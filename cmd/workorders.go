package main

import (
	"github.com/spf13/cobra"
)

var workordersCmd = &cobra.Command{
	Use:   "workorders",
	Short: "List workorders",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		workorders, err := st.ListWorkorders(ctx)
		if err != nil {
			return err
		}

		if len(workorders) == 0 {
			cmd.Println("no workorders")
			return nil
		}
		for _, w := range workorders {
			cmd.Printf("%s  %-10s  %s  %s\n",
				w.ID, w.Status, w.UploadedAt.Format("2006-01-02 15:04"), w.Filename)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workordersCmd)
}
