package command

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/fasmide/portname/portname"
	"github.com/fasmide/portname/sockets"
)

// Sockets lists open sockets with their ports resolved
func Sockets(cfg *Config) *cobra.Command {
	var numeric bool
	var watch time.Duration
	var metricsListen string

	c := &cobra.Command{
		Use:   "sockets",
		Short: "List open tcp and udp sockets",
		Long:  "List open tcp and udp sockets\n\nPorts are shown by name when the services database or the portmapper knows them.\nSockets of other users are only visible to root.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			cache := cfg.Cache(portname.WithRegistry(reg))
			if cfg.Preload && !numeric {
				cache.Preload(cmd.Context())
			}

			if metricsListen != "" {
				_, err := serveMetrics(cmd.Context(), metricsListen, reg)
				if err != nil {
					return err
				}
			}

			p := &sockets.Printer{Resolver: cache, Numeric: numeric}
			return run(cmd.Context(), watch, func(ctx context.Context) error {
				socks, err := (&sockets.System{}).List(ctx)
				if err != nil {
					return err
				}

				if watch > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", time.Now().Format("15:04:05"))
				}

				return p.Fprint(ctx, cmd.OutOrStdout(), socks)
			})
		},
	}

	c.Flags().BoolVarP(&numeric, "numeric", "n", false, "do not resolve port names")
	c.Flags().DurationVar(&watch, "watch", 0, "list again every interval until interrupted")
	c.Flags().StringVar(&metricsListen, "metrics-listen", "", "serve cache metrics on this address, e.g. :9102")

	return c
}

// run calls fn once, or every interval until ctx is done
func run(ctx context.Context, interval time.Duration, fn func(context.Context) error) error {
	err := fn(ctx)
	if err != nil || interval <= 0 {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			err := fn(ctx)
			if err != nil {
				return err
			}
		}
	}
}
