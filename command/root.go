// Package command holds the portname command line
package command

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/fasmide/portname/netdb"
	"github.com/fasmide/portname/portmap"
	"github.com/fasmide/portname/portname"
)

// Config is shared by all commands, filled from flags and environment
type Config struct {
	ServicesPath      string
	RPCPath           string
	Portmapper        string
	PortmapperNetwork string
	RPCTimeout        time.Duration
	NoRPC             bool
	Preload           bool
	Color             string
	Quiet             bool
}

// Root is the top level command, embedding all others
func Root() *cobra.Command {
	cfg := &Config{}

	c := &cobra.Command{
		Use:          "portname",
		Short:        "Resolve ports and rpc programs into names",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cfg.apply(cmd.OutOrStdout())
		},
	}

	bindFlags(c.PersistentFlags(), cfg)

	c.AddCommand(Lookup(cfg))
	c.AddCommand(Programs(cfg))
	c.AddCommand(Sockets(cfg))
	c.AddCommand(Version())

	return c
}

func bindFlags(f *pflag.FlagSet, cfg *Config) {
	f.StringVar(&cfg.ServicesPath, "services", getEnv("PORTNAME_SERVICES", netdb.DefaultServicesPath), "services database")
	f.StringVar(&cfg.RPCPath, "rpc", getEnv("PORTNAME_RPC", netdb.DefaultRPCPath), "rpc program database")
	f.StringVar(&cfg.Portmapper, "portmapper", getEnv("PORTNAME_PORTMAPPER", portmap.DefaultAddress), "portmapper address")
	f.StringVar(&cfg.PortmapperNetwork, "portmapper-network", getEnv("PORTNAME_PORTMAPPER_NETWORK", "tcp"), "portmapper transport, tcp or udp")
	f.DurationVar(&cfg.RPCTimeout, "rpc-timeout", getEnvDuration("PORTNAME_RPC_TIMEOUT", portmap.DefaultTimeout), "timeout of a single portmapper conversation")
	f.BoolVar(&cfg.NoRPC, "no-rpc", false, "do not talk to the portmapper")
	f.BoolVar(&cfg.Preload, "preload", true, "scan the services database and portmapper up front instead of port by port")
	f.StringVar(&cfg.Color, "color", "auto", "colorize names: auto, always or never")
	f.BoolVarP(&cfg.Quiet, "quiet", "q", false, "do not log lookup failures")
}

// apply sets up process wide output settings
func (cfg *Config) apply(out io.Writer) error {
	switch cfg.Color {
	case "always":
		color.NoColor = false
	case "never":
		color.NoColor = true
	case "auto":
		f, ok := out.(*os.File)
		color.NoColor = !ok || !term.IsTerminal(int(f.Fd()))
	default:
		return fmt.Errorf("unknown color mode %q", cfg.Color)
	}

	if cfg.PortmapperNetwork != "tcp" && cfg.PortmapperNetwork != "udp" {
		return fmt.Errorf("unknown portmapper network %q", cfg.PortmapperNetwork)
	}

	if cfg.Quiet {
		portname.SetLogOutput(io.Discard)
		logger.SetOutput(io.Discard)
	}

	return nil
}

// portmapper returns nil when rpc is disabled
func (cfg *Config) portmapper() *portmap.Client {
	if cfg.NoRPC {
		return nil
	}

	return &portmap.Client{
		Network: cfg.PortmapperNetwork,
		Address: cfg.Portmapper,
		Timeout: cfg.RPCTimeout,
	}
}

func (cfg *Config) programs() *netdb.ProgramTable {
	return &netdb.ProgramTable{Path: cfg.RPCPath}
}

// Cache builds a name cache from the configuration, extra options are
// applied last
func (cfg *Config) Cache(extra ...portname.Option) *portname.Cache {
	opts := []portname.Option{
		portname.WithServiceDB(&netdb.ServicesFile{Path: cfg.ServicesPath}),
		portname.WithProgramTable(cfg.programs()),
		portname.WithRemoteTimeout(cfg.RPCTimeout),
	}

	// a nil *portmap.Client must not end up as a non-nil interface
	if pm := cfg.portmapper(); pm != nil {
		opts = append(opts, portname.WithPortmapper(pm))
	}

	return portname.New(append(opts, extra...)...)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
