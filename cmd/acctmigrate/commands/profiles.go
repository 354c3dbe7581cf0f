package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/neudinger/acctmigrate/internal/cli/output"
	"github.com/neudinger/acctmigrate/internal/export"
)

var (
	profilesOut    string
	profilesLimit  int
	profilesOutput string
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Inspect and export profile documents",
	Long: `Read the per-account profile documents of the document store.

Subcommands:
  list    List profile documents
  export  Dump every profile document to a file`,
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the profile documents",
	Long: `List profile documents in key order.

Examples:
  acctmigrate profiles list
  acctmigrate profiles list --limit 20 -o json`,
	RunE: runProfilesList,
}

var profilesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every profile document",
	Long: `Write every profile document, its key as "uid" plus all stored fields,
as a JSON list (YAML when the path ends in .yaml or .yml).

Examples:
  acctmigrate profiles export
  acctmigrate profiles export --out s3://migrations/user-profiles.json`,
	RunE: runProfilesExport,
}

func init() {
	profilesListCmd.Flags().IntVar(&profilesLimit, "limit", 0, "stop after this many profiles (0 lists all)")
	profilesListCmd.Flags().StringVarP(&profilesOutput, "output", "o", "table", "output format (table|json|yaml)")
	profilesExportCmd.Flags().StringVar(&profilesOut, "out", "", "export location (default: paths.profiles)")

	profilesCmd.AddCommand(profilesListCmd)
	profilesCmd.AddCommand(profilesExportCmd)
}

// profileList renders profiles as a table.
type profileList []export.Profile

func (l profileList) Headers() []string {
	return []string{"UID", "Email", "Display Name", "Fields"}
}

func (l profileList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, p := range l {
		rows = append(rows, []string{
			p.UID(),
			p.String("email"),
			p.String("displayName"),
			strconv.Itoa(len(p) - 1),
		})
	}
	return rows
}

// readProfiles lists the profile collection. Every error is a pre-flight
// failure: nothing has been written yet.
func (a *app) readProfiles(cmd *cobra.Command) ([]export.Profile, string, error) {
	ctx := cmd.Context()
	collection := a.cfg.DocStore.ProfilesCollection
	label := docStoreLabel(a.cfg.DocStore.Type, collection)

	store, err := openDocStore(ctx, a.cfg)
	if err != nil {
		return nil, label, preflight(fmt.Errorf("document store: %w", err))
	}
	defer func() { _ = store.Close() }()

	docs, err := store.List(ctx, collection)
	if err != nil {
		return nil, label, preflight(accessError(label, err))
	}
	return export.Profiles(docs), label, nil
}

func runProfilesList(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(profilesOutput)
	if err != nil {
		return err
	}

	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	profiles, label, err := a.readProfiles(cmd)
	if err != nil {
		return err
	}
	if profilesLimit > 0 && len(profiles) > profilesLimit {
		profiles = profiles[:profilesLimit]
	}

	out := cmd.OutOrStdout()
	if format == output.FormatTable {
		if err := output.PrintTable(out, profileList(profiles)); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "\n%d profiles in %s\n", len(profiles), label)
		return nil
	}
	if profiles == nil {
		profiles = []export.Profile{}
	}
	return output.Print(out, format, profiles)
}

func runProfilesExport(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	profiles, label, err := a.readProfiles(cmd)
	if err != nil {
		return err
	}
	log := a.logger.With("collection", label)
	if len(profiles) == 0 {
		log.Warn("Profile collection is empty")
	}

	uri := flagOr(cmd, "out", profilesOut, a.cfg.Paths.Profiles)
	if err := export.WriteProfiles(cmd.Context(), a.artifacts, uri, profiles); err != nil {
		return preflight(err)
	}
	log.Info("Profiles exported", "count", len(profiles), "path", uri)
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Exported %d profiles from %s to %s\n", len(profiles), label, uri)
	return nil
}
