package graph

import (
	"math/rand"
	"strconv"
	"testing"

	"github.com/eduard-lt/Harbor/pkg/config"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func svc(name string, deps ...string) config.Service {
	return config.Service{Name: name, Command: "true", DependsOn: deps}
}

func names(services []config.Service) []string {
	out := make([]string, 0, len(services))
	for _, s := range services {
		out = append(out, s.Name)
	}
	return out
}

func TestResolve_Chain(t *testing.T) {
	order, err := Resolve([]config.Service{
		svc("frontend", "backend"),
		svc("db"),
		svc("backend", "db"),
	})
	require.NoError(t, err)
	require.Equal(t, []string{"db", "backend", "frontend"}, names(order))
}

func TestResolve_IndependentKeepsDeclarationOrder(t *testing.T) {
	order, err := Resolve([]config.Service{svc("a"), svc("b")})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, names(order))

	order, err = Resolve([]config.Service{svc("b"), svc("a"), svc("c", "b"), svc("d", "a")})
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a", "c", "d"}, names(order))
}

func TestResolve_Empty(t *testing.T) {
	order, err := Resolve(nil)
	require.NoError(t, err)
	require.Empty(t, order)
}

func TestResolve_Cycle(t *testing.T) {
	_, err := Resolve([]config.Service{svc("a", "b"), svc("b", "a"), svc("c")})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrGraph))

	var ge *Error
	require.True(t, errors.As(err, &ge))
	require.Equal(t, []string{"a", "b"}, ge.Unresolved)
	require.Empty(t, ge.Missing)
	require.Contains(t, err.Error(), "cycle")
}

func TestResolve_SelfDependency(t *testing.T) {
	_, err := Resolve([]config.Service{svc("a", "a")})
	require.True(t, errors.Is(err, ErrGraph))
}

func TestResolve_MissingDependencyIsGraphError(t *testing.T) {
	_, err := Resolve([]config.Service{svc("api", "cache"), svc("web", "api")})
	require.True(t, errors.Is(err, ErrGraph))

	var ge *Error
	require.True(t, errors.As(err, &ge))
	require.Equal(t, []string{"api -> cache"}, ge.Missing)
	require.Equal(t, []string{"api", "web"}, ge.Unresolved)
	require.Contains(t, err.Error(), "unknown dependencies api -> cache")
}

func TestResolve_DuplicateDependencyEntries(t *testing.T) {
	order, err := Resolve([]config.Service{svc("b", "a", "a"), svc("a")})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, names(order))
}

func TestResolve_RandomDAGsRespectDependencies(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for round := 0; round < 50; round++ {
		n := 1 + r.Intn(12)
		services := make([]config.Service, n)
		for i := 0; i < n; i++ {
			s := svc("s" + strconv.Itoa(i))
			for j := 0; j < i; j++ {
				if r.Intn(3) == 0 {
					s.DependsOn = append(s.DependsOn, "s"+strconv.Itoa(j))
				}
			}
			services[i] = s
		}
		r.Shuffle(n, func(i, j int) { services[i], services[j] = services[j], services[i] })

		order, err := Resolve(services)
		require.NoError(t, err)
		require.Len(t, order, n)

		pos := map[string]int{}
		for i, s := range order {
			_, dup := pos[s.Name]
			require.False(t, dup)
			pos[s.Name] = i
		}
		for _, s := range order {
			for _, dep := range s.DependsOn {
				require.Less(t, pos[dep], pos[s.Name], "%s must start after %s", s.Name, dep)
			}
		}
	}
}

func TestDependents(t *testing.T) {
	d := Dependents([]config.Service{svc("db"), svc("api", "db"), svc("worker", "db", "db"), svc("web", "api")})
	require.Equal(t, []string{"api", "worker"}, d["db"])
	require.Equal(t, []string{"web"}, d["api"])
	require.Empty(t, d["web"])
}
