package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fasmide/portname/portname"
)

const lookupHelp = `Lookup:
  Resolve ports and rpc program numbers into names

  Arguments are ports with an optional protocol, tcp is assumed
  when none is given. Prefix an argument with rpc: to resolve an
  rpc program number instead of a port.

    portname lookup 22 53/udp rpc:100003 rpc:100005/udp

  Ports without a name are printed as numbers.
`

type query struct {
	arg   string
	port  int
	proto portname.Protocol
	ns    portname.Namespace
}

// parseQuery parses "80", "53/udp" and "rpc:100003/tcp"
func parseQuery(arg string) (query, error) {
	q := query{arg: arg, proto: portname.TCP, ns: portname.ServiceName}

	s := arg
	if strings.HasPrefix(s, "rpc:") {
		q.ns = portname.ProgramName
		s = strings.TrimPrefix(s, "rpc:")
	}

	if i := strings.IndexByte(s, '/'); i >= 0 {
		proto, ok := portname.ParseProtocol(s[i+1:])
		if !ok {
			return q, fmt.Errorf("%s: unknown protocol %q", arg, s[i+1:])
		}
		q.proto = proto
		s = s[:i]
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return q, fmt.Errorf("%s: not a number", arg)
	}
	q.port = n

	return q, nil
}

// Lookup resolves its arguments
func Lookup(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup PORT[/PROTO] | rpc:PROGRAM[/PROTO] ...",
		Short: "Resolve ports and rpc program numbers into names",
		Long:  lookupHelp,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queries := make([]query, 0, len(args))
			for _, a := range args {
				q, err := parseQuery(a)
				if err != nil {
					return err
				}
				queries = append(queries, q)
			}

			cache := cfg.Cache()
			if cfg.Preload {
				cache.Preload(cmd.Context())
			}

			bold := color.New(color.Bold)
			out := cmd.OutOrStdout()
			for _, q := range queries {
				name, found := cache.Resolve(cmd.Context(), q.port, q.proto, q.ns)
				if !found {
					fmt.Fprintf(out, "%s\t%d\n", q.arg, q.port)
					continue
				}

				fmt.Fprintf(out, "%s\t%s\n", q.arg, bold.Sprint(name))
			}

			return nil
		},
	}
}
