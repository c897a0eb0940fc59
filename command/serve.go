package command

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var logger *log.Logger

func init() {
	logger = log.New(os.Stderr, "[metrics] ", log.Flags())
}

// serveMetrics exposes g on addr until ctx is done, listen errors are
// returned right away
func serveMetrics(ctx context.Context, addr string, g prometheus.Gatherer) (net.Addr, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("cannot accept metrics on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	server := &http.Server{Handler: mux}

	go func() {
		<-ctx.Done()
		server.Close()
	}()

	go func() {
		logger.Printf("accepting metrics on %s", l.Addr())

		err := server.Serve(l)
		if err != nil && err != http.ErrServerClosed {
			logger.Printf("metrics on %s stopped serving with error: %s", l.Addr(), err)
		}
	}()

	return l.Addr(), nil
}
