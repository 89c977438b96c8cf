package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/framestep/internal/life"
)

func newPatternsCmd() *cobra.Command {
	var show bool

	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "List the named seed patterns accepted by --pattern",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := life.DefaultRegistry()
			out := cmd.OutOrStdout()
			for _, name := range reg.Names() {
				p, _ := reg.Lookup(name)
				fmt.Fprintf(out, "%-12s %dx%d, %d alive\n", name, p.Cols(), p.Rows(), life.Population(p))
				if show {
					fmt.Fprint(out, life.Render(p))
					fmt.Fprintln(out)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&show, "show", false, "Render each pattern")

	return cmd
}
