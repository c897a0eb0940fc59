package portname

import (
	"errors"

	"github.com/fasmide/portname/netdb"
)

// LoadServiceNames scans the services database once and fills both service
// buckets. If the database cannot be read the buckets are left unscanned
// and lookups fall back to point queries.
func (c *Cache) LoadServiceNames() {
	c.serviceOnce.Do(c.loadServiceNames)
}

func (c *Cache) loadServiceNames() {
	services, err := c.services.Services()
	if err != nil {
		logger.Printf("unable to load service names, using point lookups: %s", err)
		c.metrics.load(ServiceName, outcomeError)
		return
	}

	// the first record of a port wins, same as getservbyport would answer
	type key struct {
		proto Protocol
		port  int
	}
	seen := make(map[key]struct{}, len(services))

	for _, svc := range services {
		proto, ok := ParseProtocol(svc.Protocol)
		if !ok {
			continue
		}

		k := key{proto: proto, port: svc.Port}
		if _, exists := seen[k]; exists {
			continue
		}
		seen[k] = struct{}{}

		c.table.Insert(ServiceName, proto, svc.Port, svc.Name, true)
	}

	c.table.MarkScanned(ServiceName, TCP)
	c.table.MarkScanned(ServiceName, UDP)
	c.metrics.load(ServiceName, outcomeOK)
}

func (c *Cache) lookupService(port int, proto Protocol) (string, bool) {
	name, err := c.services.ServiceByPort(port, proto.String())
	if errors.Is(err, netdb.ErrNotFound) || (err == nil && name == "") {
		c.metrics.point(ServiceName, outcomeAbsent)
		return "", false
	}

	if err != nil {
		logger.Printf("unable to look up service %d/%s: %s", port, proto, err)
		c.metrics.point(ServiceName, outcomeError)
		return "", false
	}

	c.metrics.point(ServiceName, outcomeResolved)
	return name, true
}
