package portname

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// lookup results
const (
	resultCached        = "cached"
	resultAuthoritative = "authoritative"
	resultPoint         = "point"
	resultSkipped       = "skipped"
)

// point lookup and bulk load outcomes
const (
	outcomeResolved = "resolved"
	outcomeAbsent   = "absent"
	outcomeError    = "error"
	outcomeOK       = "ok"
)

type metrics struct {
	lookups      *prometheus.CounterVec
	pointLookups *prometheus.CounterVec
	loads        *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer, t *Table) *metrics {
	m := &metrics{
		lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portname_lookups_total",
				Help: "Name lookups, labeled by namespace and how they were answered",
			},
			[]string{"namespace", "result"},
		),
		pointLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portname_point_lookups_total",
				Help: "Single key queries against the services database or portmapper",
			},
			[]string{"namespace", "outcome"},
		),
		loads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portname_bulk_loads_total",
				Help: "Full scans of the services database or portmapper",
			},
			[]string{"namespace", "outcome"},
		),
	}

	m.lookups = registerCounters(reg, m.lookups)
	m.pointLookups = registerCounters(reg, m.pointLookups)
	m.loads = registerCounters(reg, m.loads)

	for _, ns := range []Namespace{ServiceName, ProgramName} {
		for _, proto := range []Protocol{TCP, UDP} {
			b := t.Bucket(ns, proto)
			err := reg.Register(prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "portname_entries",
					Help: "Cached entries per bucket, negative ones included",
					ConstLabels: prometheus.Labels{
						"namespace": ns.String(),
						"protocol":  proto.String(),
					},
				},
				func() float64 { return float64(b.Len()) },
			))
			if err != nil {
				logger.Printf("not exporting size of %s/%s bucket: %s", ns, proto, err)
			}
		}
	}

	return m
}

// registerCounters registers c, or returns the vector registered before it
// by another cache
func registerCounters(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	err := reg.Register(c)
	if err == nil {
		return c
	}

	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
			return existing
		}
	}

	logger.Printf("unable to register metrics: %s", err)
	return c
}

func (m *metrics) lookup(ns Namespace, result string) {
	m.lookups.WithLabelValues(ns.String(), result).Inc()
}

func (m *metrics) point(ns Namespace, outcome string) {
	m.pointLookups.WithLabelValues(ns.String(), outcome).Inc()
}

func (m *metrics) load(ns Namespace, outcome string) {
	m.loads.WithLabelValues(ns.String(), outcome).Inc()
}
