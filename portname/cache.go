// Package portname turns port numbers and rpc program numbers into names.
//
// A Cache keeps four buckets - service names and rpc program names, each for
// tcp and udp. Buckets are either filled by a single bulk scan of their source
// (the services database, or a portmapper dump), after which a miss is final,
// or lazily one port at a time. Every answer, including "no name", is kept
// for the lifetime of the Cache.
package portname

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/fasmide/portname/netdb"
	"github.com/fasmide/portname/portmap"
)

// ServiceDB is the services database
type ServiceDB interface {
	// Services enumerates every record
	Services() ([]netdb.Service, error)

	// ServiceByPort looks up a single port, netdb.ErrNotFound when the port
	// has no name
	ServiceByPort(port int, proto string) (string, error)
}

// Portmapper is the daemon mapping rpc programs to ports
type Portmapper interface {
	Dump(ctx context.Context) ([]portmap.Mapping, error)
	GetPort(ctx context.Context, prog, vers, prot uint32) (uint32, error)
}

// ProgramTable names rpc program numbers
type ProgramTable interface {
	Name(program int) (string, bool)
}

// Cache resolves ports and program numbers into names, it is safe for
// concurrent use
type Cache struct {
	table *Table

	services   ServiceDB
	portmapper Portmapper
	programs   ProgramTable
	timeout    time.Duration

	flights     singleflight.Group
	serviceOnce sync.Once
	programOnce sync.Once

	// bound maps ports in use by registered rpc programs to their names,
	// indexed by Protocol
	boundLock sync.RWMutex
	bound     [2]map[int]string

	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
	metrics    *metrics
}

// Option configures a Cache
type Option func(*Cache)

// WithServiceDB replaces the default /etc/services database
func WithServiceDB(db ServiceDB) Option {
	return func(c *Cache) {
		c.services = db
	}
}

// WithPortmapper enables rpc program names, without a portmapper every
// ProgramName lookup comes back empty
func WithPortmapper(p Portmapper) Option {
	return func(c *Cache) {
		c.portmapper = p
	}
}

// WithProgramTable replaces the default /etc/rpc program table
func WithProgramTable(t ProgramTable) Option {
	return func(c *Cache) {
		c.programs = t
	}
}

// WithRemoteTimeout bounds every portmapper conversation
func WithRemoteTimeout(d time.Duration) Option {
	return func(c *Cache) {
		c.timeout = d
	}
}

// WithRegistry registers the cache metrics with r instead of a private
// registry. Caches sharing r also share their counters, bucket sizes are
// only exported for the first of them.
func WithRegistry(r prometheus.Registerer) Option {
	return func(c *Cache) {
		c.registerer = r
	}
}

// New returns an empty cache
func New(opts ...Option) *Cache {
	c := &Cache{
		table:    NewTable(),
		services: &netdb.ServicesFile{},
		programs: &netdb.ProgramTable{},
		timeout:  portmap.DefaultTimeout,
		bound:    [2]map[int]string{make(map[int]string), make(map[int]string)},
	}

	for _, o := range opts {
		o(c)
	}

	if c.registerer == nil {
		reg := prometheus.NewRegistry()
		c.registerer, c.gatherer = reg, reg
	} else if g, ok := c.registerer.(prometheus.Gatherer); ok {
		c.gatherer = g
	} else {
		c.gatherer = prometheus.Gatherers{}
	}
	c.metrics = newMetrics(c.registerer, c.table)

	return c
}

// Table exposes the underlying buckets
func (c *Cache) Table() *Table {
	return c.table
}

// Gatherer collects the cache metrics, it is empty when WithRegistry was
// given something that cannot be gathered
func (c *Cache) Gatherer() prometheus.Gatherer {
	return c.gatherer
}

// Preload fills every bucket it can with bulk scans, resolving afterwards
// mostly avoids point lookups
func (c *Cache) Preload(ctx context.Context) {
	c.LoadServiceNames()
	c.LoadProgramNames(ctx)
}

// ServiceName resolves a port into its service name
func (c *Cache) ServiceName(ctx context.Context, port int, proto Protocol) (string, bool) {
	return c.Resolve(ctx, port, proto, ServiceName)
}

// ProgramName resolves an rpc program number into its name
func (c *Cache) ProgramName(ctx context.Context, program int, proto Protocol) (string, bool) {
	return c.Resolve(ctx, program, proto, ProgramName)
}

// Resolve returns the name of port in namespace ns, false means there is no
// name and callers should show the number
func (c *Cache) Resolve(ctx context.Context, port int, proto Protocol, ns Namespace) (string, bool) {
	if !c.resolvable(port, proto, ns) {
		c.metrics.lookup(ns, resultSkipped)
		return "", false
	}

	b := c.table.Bucket(ns, proto)

	e, ok, scanned := b.lookup(port)
	if ok {
		c.metrics.lookup(ns, resultCached)
		return e.Name, e.Status == Resolved
	}

	if scanned {
		// remember the miss so the next lookup is a plain hit
		c.table.Insert(ns, proto, port, "", false)
		c.metrics.lookup(ns, resultAuthoritative)
		return "", false
	}

	// only the caller running the flight changes result, callers joining
	// it are answered from its entry
	result := resultCached

	key := fmt.Sprintf("%s/%s/%d", ns, proto, port)
	v, _, _ := c.flights.Do(key, func() (interface{}, error) {
		// an earlier flight for the same key may have finished after our lookup
		if e, ok, scanned := b.lookup(port); ok {
			return e, nil
		} else if scanned {
			result = resultAuthoritative
			return c.table.Insert(ns, proto, port, "", false), nil
		}

		result = resultPoint

		var name string
		var found bool
		switch ns {
		case ServiceName:
			name, found = c.lookupService(port, proto)
		case ProgramName:
			name, found = c.lookupProgram(ctx, port, proto)
		}

		// the caller gave up, that is no answer about the port
		if !found && ctx.Err() != nil {
			return newEntry(port, proto, "", false), nil
		}

		return c.table.Insert(ns, proto, port, name, found), nil
	})

	c.metrics.lookup(ns, result)

	e = v.(Entry)
	return e.Name, e.Status == Resolved
}

// resolvable filters sentinel values callers pass for "unknown"
func (c *Cache) resolvable(port int, proto Protocol, ns Namespace) bool {
	if port <= 0 || !proto.valid() {
		return false
	}

	switch ns {
	case ServiceName:
		return port <= math.MaxUint16
	case ProgramName:
		return c.portmapper != nil && uint64(port) <= math.MaxUint32
	default:
		return false
	}
}
