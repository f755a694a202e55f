package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/zjrosen/algomgr/internal/algorithm"
	"github.com/zjrosen/algomgr/internal/catalog"
)

// noMarginStyle removes glamour's document margins.
const noMarginStyle = `{
	"document": {
		"margin": 0,
		"block_prefix": "",
		"block_suffix": ""
	}
}`

func newDescribeCmd(_ *rootOptions) *cobra.Command {
	var (
		version int
		raw     bool
		width   int
	)

	cmd := &cobra.Command{
		Use:   "describe NAME",
		Short: "Show an algorithm's summary and properties",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := builtinCatalog()
			if err != nil {
				return err
			}
			w, err := cat.Create(args[0], version)
			if err != nil {
				return err
			}
			if err := w.Initialize(); err != nil {
				return err
			}

			md := describeMarkdown(w, cat.Versions(w.Name()))
			if raw {
				_, err = fmt.Fprint(cmd.OutOrStdout(), md)
				return err
			}
			r, err := glamour.NewTermRenderer(
				glamour.WithStylePath("dark"),
				glamour.WithStylesFromJSONBytes([]byte(noMarginStyle)),
				glamour.WithWordWrap(width),
			)
			if err != nil {
				return err
			}
			out, err := r.Render(md)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().IntVar(&version, "version", catalog.LatestVersion, "algorithm version (default: latest)")
	cmd.Flags().BoolVar(&raw, "raw", false, "print markdown without rendering")
	cmd.Flags().IntVar(&width, "width", 80, "word wrap width")
	return cmd
}

func describeMarkdown(w algorithm.Worker, versions []int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s v%d\n\n", w.Name(), w.Version())
	fmt.Fprintf(&b, "*Category:* `%s`  \n", w.Category())
	vs := make([]string, len(versions))
	for i, v := range versions {
		vs[i] = fmt.Sprintf("%d", v)
	}
	fmt.Fprintf(&b, "*Versions:* %s\n\n", strings.Join(vs, ", "))
	if s := w.Summary(); s != "" {
		b.WriteString(s)
		b.WriteString("\n\n")
	}

	b.WriteString("## Properties\n\n")
	b.WriteString("| Name | Default | Required | Description |\n")
	b.WriteString("|------|---------|----------|-------------|\n")
	for _, p := range w.Properties().List() {
		req := ""
		if p.Mandatory {
			req = "yes"
		}
		def := p.Default
		if def != "" {
			def = "`" + def + "`"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", p.Name, def, req, p.Doc)
	}
	return b.String()
}
