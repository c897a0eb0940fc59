package command

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fasmide/portname/portmap"
)

// Programs lists the portmapper registrations, like rpcinfo -p
func Programs(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "programs",
		Short: "List rpc programs registered with the portmapper",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pm := cfg.portmapper()
			if pm == nil {
				return fmt.Errorf("rpc is disabled")
			}

			mappings, err := pm.Dump(cmd.Context())
			if err != nil {
				return fmt.Errorf("unable to list programs from %s: %w", cfg.Portmapper, err)
			}

			sort.SliceStable(mappings, func(i, j int) bool {
				if mappings[i].Program != mappings[j].Program {
					return mappings[i].Program < mappings[j].Program
				}
				return mappings[i].Version < mappings[j].Version
			})

			names := cfg.programs()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PROGRAM\tVERS\tPROTO\tPORT\tSERVICE")
			for _, m := range mappings {
				name, _ := names.Name(int(m.Program))
				fmt.Fprintf(tw, "%d\t%d\t%s\t%d\t%s\n", m.Program, m.Version, portmap.ProtocolName(m.Protocol), m.Port, name)
			}

			return tw.Flush()
		},
	}
}
