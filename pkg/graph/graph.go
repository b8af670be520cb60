// Package graph orders services so that each one starts after everything it
// depends on.
package graph

import (
	"fmt"
	"strings"

	"github.com/eduard-lt/Harbor/pkg/config"
	"github.com/pkg/errors"
)

// ErrGraph is matched by both a dependency cycle and a reference to an
// unknown service.
var ErrGraph = errors.New("graph error")

type Error struct {
	// Unresolved lists services that never became ready, in declaration order.
	Unresolved []string
	// Missing lists depends_on targets that name no service, as "svc -> target".
	Missing []string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("cannot order services")
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, ": unknown dependencies %s", strings.Join(e.Missing, ", "))
	}
	if len(e.Unresolved) > 0 {
		if len(e.Missing) > 0 {
			b.WriteString(";")
		} else {
			b.WriteString(": cycle detected;")
		}
		fmt.Fprintf(&b, " unresolved %s", strings.Join(e.Unresolved, ", "))
	}
	return b.String()
}

func (e *Error) Is(target error) bool { return target == ErrGraph }

// Resolve returns services in startup order using Kahn's algorithm. Services
// that become ready together keep their declaration order.
func Resolve(services []config.Service) ([]config.Service, error) {
	index := make(map[string]int, len(services))
	for i, s := range services {
		index[s.Name] = i
	}

	indegree := make([]int, len(services))
	dependents := make([][]int, len(services))
	var missing []string
	for i, s := range services {
		seen := map[string]struct{}{}
		for _, dep := range s.DependsOn {
			if _, dup := seen[dep]; dup {
				continue
			}
			seen[dep] = struct{}{}
			indegree[i]++
			j, ok := index[dep]
			if !ok {
				missing = append(missing, s.Name+" -> "+dep)
				continue
			}
			dependents[j] = append(dependents[j], i)
		}
	}

	queue := make([]int, 0, len(services))
	for i := range services {
		if indegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	order := make([]config.Service, 0, len(services))
	done := make([]bool, len(services))
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		order = append(order, services[i])
		done[i] = true
		for _, j := range dependents[i] {
			indegree[j]--
			if indegree[j] == 0 {
				queue = append(queue, j)
			}
		}
	}

	if len(order) < len(services) {
		e := &Error{Missing: missing}
		for i, s := range services {
			if !done[i] {
				e.Unresolved = append(e.Unresolved, s.Name)
			}
		}
		return nil, e
	}
	return order, nil
}

// Dependents maps each service name to the services that directly depend on
// it, in declaration order.
func Dependents(services []config.Service) map[string][]string {
	out := make(map[string][]string, len(services))
	for _, s := range services {
		for _, dep := range s.DependsOn {
			if !contains(out[dep], s.Name) {
				out[dep] = append(out[dep], s.Name)
			}
		}
	}
	return out
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
