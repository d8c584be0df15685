package network

import (
	"strconv"

	"github.com/this-is-a-tpyo/mel-metro-pid/internal/ptv"
)

// Service groups not taken from the line table
const (
	GroupLongDistance = "vline"
	GroupSpecial      = "special"
)

// RouteGroups maps route ids to service group tags (the route colour map).
// It is built once per refresh and read-only afterwards.
type RouteGroups map[int]string

// BuildRouteGroups assigns a group to every route of a departures response:
// non-metro routes are long distance, metro routes without a published line
// id are special, the rest come from the line table (special when absent).
func (n *Network) BuildRouteGroups(routes map[string]ptv.Route) RouteGroups {
	groups := make(RouteGroups, len(routes))
	for key, route := range routes {
		id, err := strconv.Atoi(key)
		if err != nil {
			id = route.RouteID
		}
		groups[id] = n.groupOf(route)
	}
	return groups
}

func (n *Network) groupOf(route ptv.Route) string {
	if route.RouteType != ptv.RouteTypeTrain {
		return GroupLongDistance
	}
	if len(route.RouteGTFSID) <= 2 {
		return GroupSpecial
	}
	if group, ok := n.Lines[route.RouteGTFSID[2:]]; ok && group != "" {
		return group
	}
	return GroupSpecial
}

// Lookup returns the group of a route and whether the route is known
func (g RouteGroups) Lookup(routeID int) (string, bool) {
	group, ok := g[routeID]
	return group, ok
}

// Group returns the group of a route, special when the route is unknown
func (g RouteGroups) Group(routeID int) string {
	if group, ok := g[routeID]; ok {
		return group
	}
	return GroupSpecial
}
