package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/algomgr/internal/builtin"
	"github.com/zjrosen/algomgr/internal/catalog"
)

// algorithmEntry is one row of `algomgr list`.
type algorithmEntry struct {
	Name     string `json:"name" yaml:"name"`
	Category string `json:"category" yaml:"category"`
	Versions []int  `json:"versions" yaml:"versions"`
}

// builtinCatalog returns a catalog holding the built-in algorithms.
func builtinCatalog() (*catalog.Catalog, error) {
	cat := catalog.New()
	if err := builtin.Register(cat); err != nil {
		return nil, err
	}
	return cat, nil
}

func catalogEntries(cat *catalog.Catalog) []algorithmEntry {
	ncs := cat.NamesAndCategories()
	out := make([]algorithmEntry, 0, len(ncs))
	for _, nc := range ncs {
		out = append(out, algorithmEntry{Name: nc.Name, Category: nc.Category, Versions: cat.Versions(nc.Name)})
	}
	return out
}

func newListCmd(_ *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered algorithms",
		Long: `List every registered algorithm with its category and versions.

Examples:
  algomgr list
  algomgr list -o json | jq '.[].name'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := builtinCatalog()
			if err != nil {
				return err
			}
			return writeEntries(cmd.OutOrStdout(), output, catalogEntries(cat))
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table, yaml or json")
	return cmd
}

func writeEntries(w io.Writer, format string, entries []algorithmEntry) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(entries); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
		rows := make([][]string, 0, len(entries))
		for _, e := range entries {
			vs := make([]string, len(e.Versions))
			for i, v := range e.Versions {
				vs[i] = strconv.Itoa(v)
			}
			rows = append(rows, []string{e.Name, e.Category, strings.Join(vs, ",")})
		}
		_, err := io.WriteString(w, renderTable([]string{"NAME", "CATEGORY", "VERSIONS"}, rows))
		return err
	default:
		return fmt.Errorf("unknown output format %q (want table, yaml or json)", format)
	}
}
