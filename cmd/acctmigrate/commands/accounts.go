package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/neudinger/acctmigrate/internal/cli/output"
	"github.com/neudinger/acctmigrate/internal/config"
	"github.com/neudinger/acctmigrate/internal/directory"
	"github.com/neudinger/acctmigrate/internal/domain"
	"github.com/neudinger/acctmigrate/internal/export"
)

var (
	accountsFrom   string
	accountsLimit  int
	accountsOutput string
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Inspect directory accounts",
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the accounts of the source or destination directory",
	Long: `List accounts page by page, in directory order.

Examples:
  acctmigrate accounts list
  acctmigrate accounts list --from destination --limit 20
  acctmigrate accounts list -o json`,
	RunE: runAccountsList,
}

func init() {
	accountsListCmd.Flags().StringVar(&accountsFrom, "from", "source", "directory to list (source|destination)")
	accountsListCmd.Flags().IntVar(&accountsLimit, "limit", 0, "stop after this many accounts (0 lists all)")
	accountsListCmd.Flags().StringVarP(&accountsOutput, "output", "o", "table", "output format (table|json|yaml)")

	accountsCmd.AddCommand(accountsListCmd)
}

// accountList renders records as a table.
type accountList []domain.AccountRecord

func (l accountList) Headers() []string {
	return []string{"UID", "Email", "Display Name", "Verified", "Disabled", "Created"}
}

func (l accountList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, r := range l {
		created := ""
		if r.CreatedAt != nil {
			created = r.CreatedAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, []string{
			r.ExternalID,
			r.Email,
			r.DisplayName,
			strconv.FormatBool(r.EmailVerified),
			strconv.FormatBool(r.Disabled),
			created,
		})
	}
	return rows
}

func runAccountsList(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(accountsOutput)
	if err != nil {
		return err
	}

	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	var dirCfg config.DirectoryConfig
	switch accountsFrom {
	case "source":
		dirCfg = a.cfg.Source
	case "destination":
		dirCfg = a.cfg.Destination
	default:
		return preflight(fmt.Errorf("invalid --from %q (valid: source, destination)", accountsFrom))
	}

	ctx := cmd.Context()
	dir, err := openDirectory(ctx, dirCfg)
	if err != nil {
		return preflight(err)
	}
	defer func() { _ = directory.Close(dir) }()

	exporter := export.New(dir,
		export.WithPageSize(a.cfg.Migration.PageSize),
		export.WithLogger(a.logger))

	var list accountList
	for rec, err := range exporter.Records(ctx) {
		if err != nil {
			return preflight(err)
		}
		list = append(list, rec)
		if accountsLimit > 0 && len(list) >= accountsLimit {
			break
		}
	}

	if format == output.FormatTable {
		if err := output.PrintTable(cmd.OutOrStdout(), list); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\n%d accounts in %s\n", len(list), directoryLabel(dirCfg))
		return nil
	}
	if list == nil {
		list = accountList{}
	}
	return output.Print(cmd.OutOrStdout(), format, []domain.AccountRecord(list))
}
