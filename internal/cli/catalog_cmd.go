package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"datachat/internal/domain"
)

func newCatalogCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the authorized table catalog",
	}
	cmd.AddCommand(newCatalogListCmd(rt), newCatalogRegisterCmd(rt))
	return cmd
}

func newCatalogListCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the authorized tables and their columns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := rt.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			tables, err := s.App.Catalog.ListTables(cmd.Context())
			if err != nil {
				return err
			}
			if len(tables) == 0 {
				fmt.Fprintln(os.Stdout, "The catalog is empty. Register tables with \"datachat catalog register --file tables.yaml\".")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TABLE\tCOLUMNS\tKEYWORDS\tDESCRIPTION")
			for i := range tables {
				t := &tables[i]
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
					t.QualifiedName(), len(t.Columns),
					strings.Join(t.Keywords, ","), t.Description)
			}
			return w.Flush()
		},
	}
}

// catalogFile is the YAML shape accepted by "catalog register".
type catalogFile struct {
	Tables []struct {
		Name        string   `yaml:"name"`
		Schema      string   `yaml:"schema"`
		Description string   `yaml:"description"`
		Keywords    []string `yaml:"keywords"`
		Columns     []struct {
			Name       string `yaml:"name"`
			Type       string `yaml:"type"`
			Nullable   bool   `yaml:"nullable"`
			Comment    string `yaml:"comment"`
			PrimaryKey bool   `yaml:"primary_key"`
		} `yaml:"columns"`
	} `yaml:"tables"`
}

func newCatalogRegisterCmd(rt *runtime) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register or update catalog tables from a YAML file",
		Long:  "Reads table descriptors from a YAML file and upserts them into the catalog. Re-registering a table replaces its column set.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read %s: %w", file, err)
			}
			var cf catalogFile
			if err := yaml.Unmarshal(data, &cf); err != nil {
				return fmt.Errorf("parse %s: %w", file, err)
			}
			if len(cf.Tables) == 0 {
				return fmt.Errorf("%s declares no tables", file)
			}

			s, err := rt.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			for _, t := range cf.Tables {
				desc := domain.TableDescriptor{
					Name:        t.Name,
					Schema:      t.Schema,
					Description: t.Description,
					Keywords:    t.Keywords,
				}
				for _, c := range t.Columns {
					desc.Columns = append(desc.Columns, domain.Column{
						Name:       c.Name,
						Type:       c.Type,
						Nullable:   c.Nullable,
						Comment:    c.Comment,
						PrimaryKey: c.PrimaryKey,
					})
				}
				if err := s.App.Catalog.RegisterTable(cmd.Context(), &desc); err != nil {
					return fmt.Errorf("register %s: %w", desc.QualifiedName(), err)
				}
				fmt.Fprintf(os.Stdout, "Registered %s (%d columns)\n", desc.QualifiedName(), len(desc.Columns))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "tables.yaml", "YAML file with table descriptors")

	return cmd
}
