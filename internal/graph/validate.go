package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Validation is the outcome of a structural check. Re-validating the same
// graph always yields the same result.
type Validation struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// Validate checks a graph without executing it: cycles, dangling edge
// endpoints, missing entry points, orphaned nodes, and node types the
// caller has no runner for. known may be nil, in which case only the
// built-in kinds are accepted.
func Validate(g *Graph, known func(NodeType) bool) Validation {
	if known == nil {
		known = KnownType
	}
	g = g.Enabled()

	var errs []string

	nodeIDs := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		nodeIDs[n.ID] = true
	}

	for _, e := range g.Edges {
		if !nodeIDs[e.Source] {
			errs = append(errs, fmt.Sprintf("edge %s references unknown source node: %s", e.ID, e.Source))
		}
		if !nodeIDs[e.Target] {
			errs = append(errs, fmt.Sprintf("edge %s references unknown target node: %s", e.ID, e.Target))
		}
	}

	if _, err := Compile(g); err != nil {
		var ge *GraphError
		switch {
		case errors.As(err, &ge) && errors.Is(ge.Err, ErrCycle):
			errs = append(errs, ge.Error())
		case errors.As(err, &ge) && errors.Is(ge.Err, ErrNoEntryPoint):
			errs = append(errs, ge.Error())
		default:
			errs = append(errs, err.Error())
		}
	}

	// Orphans: nodes touched by no edge. A single-node workflow is its
	// own trigger and is not an orphan.
	if len(g.Nodes) > 1 {
		connected := make(map[string]bool)
		for _, e := range g.Edges {
			connected[e.Source] = true
			connected[e.Target] = true
		}
		var orphans []string
		for _, n := range g.Nodes {
			if !connected[n.ID] {
				orphans = append(orphans, n.ID)
			}
		}
		if len(orphans) > 0 {
			sort.Strings(orphans)
			errs = append(errs, fmt.Sprintf("orphaned nodes found: [%s]", strings.Join(orphans, ", ")))
		}
	}

	for _, n := range g.Nodes {
		if !known(n.Type) {
			errs = append(errs, fmt.Sprintf("invalid node type: %s", n.Type))
		}
	}

	return Validation{Valid: len(errs) == 0, Errors: errs}
}
