package commands

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/marshallshelly/procuredb/cmd/procuredb/output"
	"github.com/marshallshelly/procuredb/internal/models"
	"github.com/marshallshelly/procuredb/internal/service"
	"github.com/marshallshelly/procuredb/internal/store"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the demo accounts",
	Long: `Create the demo accounts, one per tier plus an admin. Existing usernames are
left untouched, so the command can run repeatedly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		pool, err := connect(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		reg, err := models.NewRegistry()
		if err != nil {
			return err
		}
		set, err := models.Policies()
		if err != nil {
			return err
		}
		st := store.New(pool, reg, set, store.WithLogger(log))

		res, err := service.Seed(ctx, st, service.DemoAccounts, cfg.Auth.BcryptCost, log.Named("seed"))
		if err != nil {
			return err
		}
		if jsonOutput {
			return output.JSON(res)
		}
		for _, name := range res.Created {
			output.Success("Created %s", name)
		}
		for _, name := range res.Skipped {
			output.Muted("  skipped %s (exists)", name)
		}
		log.Debug("seed finished", zap.Int("created", len(res.Created)), zap.Int("skipped", len(res.Skipped)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
