package pbf

import (
	"fmt"
	"strings"

	"github.com/paulmach/osm"

	"github.com/kirillkom/city-osm-features/internal/core/domain"
)

type set map[string]struct{}

func newSet(values ...string) set {
	s := make(set, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

func (s set) has(v string) bool {
	_, ok := s[v]
	return ok
}

var (
	drivableHighways = newSet(
		"motorway", "motorway_link", "trunk", "trunk_link", "primary", "primary_link",
		"secondary", "secondary_link", "tertiary", "tertiary_link", "unclassified",
		"residential", "living_street", "road",
	)
	notWalkable  = newSet("motorway", "motorway_link", "trunk", "trunk_link", "bus_guideway", "raceway")
	notCyclable  = newSet("motorway", "motorway_link", "footway", "steps", "corridor", "elevator", "escalator", "bus_guideway")
	notBuiltRoad = newSet("construction", "proposed", "planned", "abandoned", "disused", "dismantled", "razed", "platform")
	privateUse   = newSet("private", "no")
)

// wayPredicate decides whether a highway way belongs to a network mode.
type wayPredicate func(tags osm.Tags) bool

// NetworkModes lists the supported network modes.
func NetworkModes() []string {
	return []string{"driving", "driving+service", "walking", "cycling", "all"}
}

// normalizeMode is the canonical spelling of a mode; layer caching keys on it.
func normalizeMode(mode string) string {
	return strings.ToLower(strings.TrimSpace(mode))
}

func networkPredicate(mode string) (wayPredicate, error) {
	switch normalizeMode(mode) {
	case "driving":
		return func(tags osm.Tags) bool {
			return isRoad(tags) && drivableHighways.has(tags.Find("highway")) && motorAllowed(tags)
		}, nil
	case "driving+service":
		return func(tags osm.Tags) bool {
			highway := tags.Find("highway")
			return isRoad(tags) && (drivableHighways.has(highway) || highway == "service") && motorAllowed(tags)
		}, nil
	case "walking":
		return func(tags osm.Tags) bool {
			return isRoad(tags) && !notWalkable.has(tags.Find("highway")) &&
				tags.Find("foot") != "no" && !privateUse.has(tags.Find("access"))
		}, nil
	case "cycling":
		return func(tags osm.Tags) bool {
			return isRoad(tags) && !notCyclable.has(tags.Find("highway")) &&
				tags.Find("bicycle") != "no" && !privateUse.has(tags.Find("access"))
		}, nil
	case "all":
		return isRoad, nil
	default:
		return nil, domain.WrapError(domain.ErrArgumentType, "network mode", fmt.Errorf("unsupported mode %q", mode))
	}
}

// isRoad keeps built, linear highway ways.
func isRoad(tags osm.Tags) bool {
	highway := tags.Find("highway")
	return highway != "" && !notBuiltRoad.has(highway) && tags.Find("area") != "yes"
}

func motorAllowed(tags osm.Tags) bool {
	return !privateUse.has(tags.Find("access")) &&
		tags.Find("motor_vehicle") != "no" &&
		tags.Find("motorcar") != "no"
}
