package netdb

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

// DefaultRPCPath is where the rpc program database usually lives
const DefaultRPCPath = "/etc/rpc"

// builtinRPC is used when the system has no rpc database, some
// distributions stopped shipping /etc/rpc
//
//go:embed rpc.builtin
var builtinRPC string

// Program is a single /etc/rpc record
type Program struct {
	Name    string
	Aliases []string
	Number  int
}

// ProgramTable maps rpc program numbers into names
type ProgramTable struct {
	// Path of the rpc database, DefaultRPCPath if empty
	Path string

	once  sync.Once
	names map[int]string
}

// Name returns the name of program
func (t *ProgramTable) Name(program int) (string, bool) {
	t.once.Do(t.load)

	n, ok := t.names[program]
	return n, ok
}

// Len reports how many programs the table knows about
func (t *ProgramTable) Len() int {
	t.once.Do(t.load)
	return len(t.names)
}

func (t *ProgramTable) load() {
	path := t.Path
	if path == "" {
		path = DefaultRPCPath
	}

	programs, err := readPrograms(path)
	if err != nil {
		programs, err = ParsePrograms(strings.NewReader(builtinRPC))
		if err != nil {
			panic(fmt.Sprintf("builtin rpc table is broken: %s", err))
		}
	}

	t.names = make(map[int]string, len(programs))
	for _, p := range programs {
		// first entry wins, same as getrpcbynumber
		if _, exists := t.names[p.Number]; !exists {
			t.names[p.Number] = p.Name
		}
	}
}

func readPrograms(path string) ([]Program, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, err)
	}
	defer fd.Close()

	return ParsePrograms(fd)
}

// ParsePrograms reads records in /etc/rpc format e.g.
// "nfs		100003	nfsprog", lines which cannot be parsed are skipped
func ParsePrograms(r io.Reader) ([]Program, error) {
	programs := make([]Program, 0, 64)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 0 {
			continue
		}

		programs = append(programs, Program{
			Name:    fields[0],
			Aliases: fields[2:],
			Number:  n,
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return programs, nil
}
