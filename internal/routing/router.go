package routing

import (
	"strings"

	"callbridge/internal/phone"
)

// Pure destination resolution. No I/O, no retries; every input terminates
// with a usable route (PSTN fallback).
//
// Precedence, first match wins:
//  1. Destination equals the client's call-center SIP number (compared
//     normalized) -> aircall_sip with a region-scoped SIP URI.
//  2. Destination already looks like a SIP/SIPS URI -> other_sip, verbatim.
//  3. Anything else -> pstn, verbatim.

// regionDomains is the fixed call-center SIP domain table.
var regionDomains = map[string]string{
	"americas":     "sip.us1.aircall.io",
	"europe":       "sip.eu1.aircall.io",
	"asia-pacific": "sip.ap1.aircall.io",
}

const defaultRegion = "americas"

// Resolve maps a raw destination string and client configuration to a Route.
func Resolve(destination string, client ClientConfig) Route {
	dest := strings.TrimSpace(destination)

	if client.AircallSIPNumber != "" && phone.Equal(dest, client.AircallSIPNumber) {
		normalized := phone.Normalize(dest)
		return Route{
			Type:   RouteAircallSIP,
			Method: MethodSIP,
			SIPURI: "sip:" + normalized + "@" + RegionDomain(client.Region),
		}
	}

	lower := strings.ToLower(dest)
	if strings.HasPrefix(lower, "sip:") || strings.HasPrefix(lower, "sips:") {
		return Route{
			Type:   RouteOtherSIP,
			Method: MethodSIP,
			SIPURI: dest,
		}
	}

	return Route{
		Type:        RoutePSTN,
		Method:      MethodDial,
		Destination: dest,
		Trunk:       client.TrunkOverride,
	}
}

// RegionDomain returns the call-center SIP domain for a region, defaulting
// to the Americas domain for unknown or empty regions.
func RegionDomain(region string) string {
	if d, ok := regionDomains[strings.ToLower(strings.TrimSpace(region))]; ok {
		return d
	}
	return regionDomains[defaultRegion]
}
