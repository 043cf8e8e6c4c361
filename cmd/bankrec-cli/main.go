// bankrec-cli runs reconciliation maintenance tasks against the configured database.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/bankrec-cli seed-demo
//	go run ./cmd/bankrec-cli candidates --business <id> --statement-line 12 [--batch 3 --batch 4]
//	go run ./cmd/bankrec-cli outbox-status --business <id> --type STATEMENT_LINE --id 12
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mmdatafocus/bankrec_backend/config"
	"github.com/mmdatafocus/bankrec_backend/models"
	"github.com/mmdatafocus/bankrec_backend/utils"
	"github.com/mmdatafocus/bankrec_backend/workflow"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	businessID      string
	statementLineID int
	batchIDs        []int
	referenceType   string
	referenceID     int
	migrate         bool
)

var rootCmd = &cobra.Command{
	Use:   "bankrec-cli",
	Short: "Bank reconciliation maintenance commands",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

var seedDemoCmd = &cobra.Command{
	Use:   "seed-demo",
	Short: "Create a demo business with a batch of two posted payments and a matching statement line",
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := connect()
		if err != nil {
			return err
		}
		if migrate {
			models.MigrateTable()
		}
		demo, err := seedDemo(cmd.Context(), db)
		if err != nil {
			return err
		}
		return printJSON(demo)
	},
}

var candidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "Print the entries a statement line may settle through batch payments",
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := connect()
		if err != nil {
			return err
		}
		settings, err := workflow.SettingsFromEnv()
		if err != nil {
			return err
		}
		ctx := utils.SetBusinessIdInContext(cmd.Context(), businessID)
		validator := &workflow.Validator{DB: db, Settings: settings, Logger: config.GetLogger()}
		engine := validator.Engine(db.WithContext(ctx), businessID)

		session, err := engine.NewSession(ctx, "", statementLineID)
		if err != nil {
			return err
		}
		var ids []int
		if cmd.Flags().Changed("batch") {
			ids = batchIDs
		}
		available, err := engine.FetchAvailableAmlsInBatchPayments(ctx, session, ids)
		if err != nil {
			return err
		}
		return printJSON(map[string]interface{}{
			"statement_line_id": statementLineID,
			"available_amls":    available,
		})
	},
}

var outboxStatusCmd = &cobra.Command{
	Use:   "outbox-status",
	Short: "Show the publish state of the outbox rows of a statement line or batch payment",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if _, err := connect(); err != nil {
			return err
		}
		refType, err := models.ParseOutboxReferenceType(referenceType)
		if err != nil {
			return err
		}
		ctx := utils.SetBusinessIdInContext(cmd.Context(), businessID)
		status, err := models.GetOutboxStatus(ctx, refType, referenceID)
		if err != nil {
			return err
		}
		return printJSON(status)
	},
}

func connect() (*gorm.DB, error) {
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		return nil, fmt.Errorf("database not initialized (config.GetDB returned nil). Set DB_* env vars")
	}
	return db, nil
}

func printJSON(v interface{}) error {
	out, err := utils.MarshalToJSON(v)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

func init() {
	seedDemoCmd.Flags().BoolVar(&migrate, "migrate", false, "Run AutoMigrate before seeding")

	candidatesCmd.Flags().StringVar(&businessID, "business", "", "Business id")
	candidatesCmd.Flags().IntVar(&statementLineID, "statement-line", 0, "Statement line id")
	candidatesCmd.Flags().IntSliceVar(&batchIDs, "batch", nil, "Restrict to these batch payment ids (repeatable)")
	_ = candidatesCmd.MarkFlagRequired("business")
	_ = candidatesCmd.MarkFlagRequired("statement-line")

	outboxStatusCmd.Flags().StringVar(&businessID, "business", "", "Business id")
	outboxStatusCmd.Flags().StringVar(&referenceType, "type", string(models.OutboxReferenceStatementLine), "STATEMENT_LINE or BATCH_PAYMENT")
	outboxStatusCmd.Flags().IntVar(&referenceID, "id", 0, "Statement line or batch payment id")
	_ = outboxStatusCmd.MarkFlagRequired("business")
	_ = outboxStatusCmd.MarkFlagRequired("id")

	rootCmd.AddCommand(seedDemoCmd)
	rootCmd.AddCommand(candidatesCmd)
	rootCmd.AddCommand(outboxStatusCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
