// Package access holds the client IP allow-list.
package access

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Gate is an immutable set of permitted client IP strings. The zero value
// and a Gate built from an unreadable file deny every address.
type Gate struct {
	allowed map[string]struct{}
}

// New returns a Gate permitting exactly the given addresses.
func New(addrs ...string) *Gate {
	g := &Gate{allowed: make(map[string]struct{}, len(addrs))}
	for _, a := range addrs {
		if a = strings.TrimSpace(a); a != "" {
			g.allowed[a] = struct{}{}
		}
	}
	return g
}

// Load reads one address per line from path. Blank lines and lines starting
// with '#' are skipped. If the file cannot be read, Load returns an empty
// deny-all Gate together with the error so the caller can warn and carry on.
func Load(path string) (*Gate, error) {
	f, err := os.Open(path)
	if err != nil {
		return New(), fmt.Errorf("opening allow-list %s: %w", path, err)
	}
	defer f.Close()

	var addrs []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		addrs = append(addrs, line)
	}
	if err := sc.Err(); err != nil {
		return New(), fmt.Errorf("reading allow-list %s: %w", path, err)
	}
	return New(addrs...), nil
}

// IsAllowed reports whether ip is present verbatim in the list.
func (g *Gate) IsAllowed(ip string) bool {
	if g == nil {
		return false
	}
	_, ok := g.allowed[ip]
	return ok
}

// Len returns the number of permitted addresses.
func (g *Gate) Len() int {
	if g == nil {
		return 0
	}
	return len(g.allowed)
}

// Addresses returns the permitted addresses in sorted order.
func (g *Gate) Addresses() []string {
	if g == nil {
		return nil
	}
	out := make([]string, 0, len(g.allowed))
	for a := range g.allowed {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
