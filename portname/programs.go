package portname

import (
	"context"
	"strconv"
)

// LoadProgramNames dumps the portmapper once and fills both program buckets.
// A failing dump leaves the buckets unscanned, lookups then ask the
// portmapper for one program at a time. Without a portmapper this does nothing.
func (c *Cache) LoadProgramNames(ctx context.Context) {
	if c.portmapper == nil {
		return
	}

	c.programOnce.Do(func() {
		c.loadProgramNames(ctx)
	})
}

func (c *Cache) loadProgramNames(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	mappings, err := c.portmapper.Dump(ctx)
	if err != nil {
		logger.Printf("unable to dump portmapper, using point lookups: %s", err)
		c.metrics.load(ProgramName, outcomeError)
		return
	}

	for _, m := range mappings {
		proto, ok := fromIPProto(m.Protocol)
		if !ok {
			continue
		}

		name, found := c.programs.Name(int(m.Program))
		c.table.Insert(ProgramName, proto, int(m.Program), name, found)

		if !found {
			name = strconv.FormatUint(uint64(m.Program), 10)
		}

		c.boundLock.Lock()
		c.bound[proto][int(m.Port)] = name
		c.boundLock.Unlock()
	}

	c.table.MarkScanned(ProgramName, TCP)
	c.table.MarkScanned(ProgramName, UDP)
	c.metrics.load(ProgramName, outcomeOK)
}

// lookupProgram asks the portmapper if program is registered at all, the
// version is left at zero so any registered version matches
func (c *Cache) lookupProgram(ctx context.Context, program int, proto Protocol) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	port, err := c.portmapper.GetPort(ctx, uint32(program), 0, proto.ipproto())
	if err != nil {
		// cached as absent like any other miss, a dead portmapper is not asked twice
		logger.Printf("unable to look up rpc program %d/%s: %s", program, proto, err)
		c.metrics.point(ProgramName, outcomeError)
		return "", false
	}

	if port == 0 {
		c.metrics.point(ProgramName, outcomeAbsent)
		return "", false
	}

	name, ok := c.programs.Name(program)
	if !ok {
		c.metrics.point(ProgramName, outcomeAbsent)
		return "", false
	}

	c.metrics.point(ProgramName, outcomeResolved)
	return name, true
}

// ProgramOnPort returns the name of the rpc program registered on a local
// port. It only knows what a successful portmapper dump reported.
func (c *Cache) ProgramOnPort(port int, proto Protocol) (string, bool) {
	if !proto.valid() {
		return "", false
	}

	c.boundLock.RLock()
	defer c.boundLock.RUnlock()

	name, ok := c.bound[proto][port]
	return name, ok
}
