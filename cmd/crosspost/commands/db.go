package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/crosspost/errors"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the crosspost database",
	Long: `Manage the crosspost database schema.

Migrations are embedded in the binary, one set per driver (sqlite3, pgx),
and applied in order. Every command that opens the database migrates it
first; "db migrate" does only that.

Examples:
  crosspost db migrate
  CROSSPOST_DATABASE_DRIVER=pgx DATABASE_URL=postgres://... crosspost db migrate`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations",
	Args:  cobra.NoArgs,
	RunE:  runDbMigrate,
}

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	h, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer h.Close()

	pterm.Success.Printfln("Database schema is up to date (%s)", cfg.Database.Driver)
	return nil
}
