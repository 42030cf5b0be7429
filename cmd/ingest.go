package main

import (
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leads-cli/internal/ingest"
	"github.com/sells-group/leads-cli/internal/model"
)

var ingestSkipProcess bool

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.csv|file.xlsx>",
	Short: "Create a workorder from a lead spreadsheet and enrich it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		workorder, err := env.Store.CreateWorkorder(ctx, args[0])
		if err != nil {
			return err
		}

		leads, err := leadsFromFile(workorder.ID, args[0])
		if err != nil {
			_ = env.Store.UpdateWorkorderStatus(ctx, workorder.ID, model.WorkorderFailed)
			return err
		}
		if err := env.Store.InsertLeads(ctx, leads); err != nil {
			return err
		}

		cmd.Printf("workorder %s created with %d leads\n", workorder.ID, len(leads))

		if ingestSkipProcess {
			return nil
		}
		if err := env.Processor.ProcessWorkorder(ctx, workorder.ID); err != nil {
			return err
		}
		cmd.Printf("workorder %s enriched\n", workorder.ID)
		return nil
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestSkipProcess, "skip-process", false, "insert leads without running enrichment")
	rootCmd.AddCommand(ingestCmd)
}

// leadsFromFile parses a spreadsheet into lead records for one workorder.
// Display order starts as the spreadsheet row order.
func leadsFromFile(workorderID, path string) ([]model.Lead, error) {
	header, rows, err := ingest.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, eris.Errorf("no data rows in %s", path)
	}

	now := time.Now().UTC()
	leads := make([]model.Lead, 0, len(rows))
	for i, row := range rows {
		fields := ingest.LeadFields(header, row)
		order := i
		leads = append(leads, model.Lead{
			ID:           uuid.New().String(),
			WorkorderID:  workorderID,
			Fields:       fields,
			CompanyName:  ingest.ExtractCompanyName(fields, header),
			Status:       model.StatusUnchecked,
			DisplayOrder: &order,
			CreatedAt:    now,
		})
	}
	return leads, nil
}
