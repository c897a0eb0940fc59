// Package netdb reads the system service and rpc program databases
// (/etc/services and /etc/rpc)
package netdb

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// DefaultServicesPath is where the services database usually lives
const DefaultServicesPath = "/etc/services"

// ErrNotFound is returned when a database has no entry for a query
var ErrNotFound = errors.New("not found")

// ErrUnavailable is returned when a database cannot be opened or read
var ErrUnavailable = errors.New("database unavailable")

// Service is a single /etc/services record
type Service struct {
	Name     string
	Aliases  []string
	Port     int
	Protocol string
}

// ServicesFile is a services database backed by a file in /etc/services format
type ServicesFile struct {
	Path string
}

// Services enumerates every record of the database
func (s *ServicesFile) Services() ([]Service, error) {
	fd, err := os.Open(s.path())
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, err)
	}
	defer fd.Close()

	services, err := ParseServices(fd)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to read %s: %s", ErrUnavailable, s.path(), err)
	}

	return services, nil
}

// ServiceByPort looks up the name of a single port, like getservbyport it
// scans the file and returns the first match
func (s *ServicesFile) ServiceByPort(port int, proto string) (string, error) {
	fd, err := os.Open(s.path())
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnavailable, err)
	}
	defer fd.Close()

	proto = strings.ToLower(proto)

	var found string
	err = scan(fd, func(svc Service) bool {
		if svc.Port == port && svc.Protocol == proto {
			found = svc.Name
			return false
		}
		return true
	})
	if err != nil {
		return "", fmt.Errorf("%w: unable to read %s: %s", ErrUnavailable, s.path(), err)
	}

	if found == "" {
		return "", fmt.Errorf("%w: %d/%s", ErrNotFound, port, proto)
	}

	return found, nil
}

func (s *ServicesFile) path() string {
	if s.Path == "" {
		return DefaultServicesPath
	}
	return s.Path
}

// ParseServices reads records in /etc/services format, lines which cannot
// be parsed are skipped
func ParseServices(r io.Reader) ([]Service, error) {
	services := make([]Service, 0, 512)
	err := scan(r, func(svc Service) bool {
		services = append(services, svc)
		return true
	})
	if err != nil {
		return nil, err
	}
	return services, nil
}

// scan calls fn for every valid record until fn returns false
func scan(r io.Reader, fn func(Service) bool) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		svc, ok := parseServiceLine(scanner.Text())
		if !ok {
			continue
		}

		if !fn(svc) {
			return nil
		}
	}

	return scanner.Err()
}

// parseServiceLine parses lines like "http  80/tcp  www  # WorldWideWeb HTTP"
func parseServiceLine(line string) (Service, bool) {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}

	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Service{}, false
	}

	portproto := strings.SplitN(fields[1], "/", 2)
	if len(portproto) != 2 {
		return Service{}, false
	}

	port, err := strconv.Atoi(portproto[0])
	if err != nil || port <= 0 || port > 65535 {
		return Service{}, false
	}

	return Service{
		Name:     fields[0],
		Aliases:  fields[2:],
		Port:     port,
		Protocol: strings.ToLower(portproto[1]),
	}, true
}
