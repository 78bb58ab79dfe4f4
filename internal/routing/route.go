package routing

// Route is the derived, never-persisted decision object describing how a
// transfer destination should be dialed.
//
// It must contain only what the telephony execution boundary needs; no
// provider credentials and no persistence concerns belong here.

type Route struct {
	Type        RouteType `json:"type"`
	Method      string    `json:"method"`
	Destination string    `json:"destination,omitempty"`
	SIPURI      string    `json:"sip_uri,omitempty"`
	Trunk       string    `json:"trunk,omitempty"`
}

type RouteType string

const (
	// RouteAircallSIP targets the call-center platform's own SIP endpoint.
	RouteAircallSIP RouteType = "aircall_sip"
	// RouteOtherSIP targets any other SIP/SIPS URI given verbatim.
	RouteOtherSIP RouteType = "other_sip"
	// RoutePSTN is the fallback: dial the destination as a phone number.
	RoutePSTN RouteType = "pstn"
)

const (
	MethodSIP  = "sip"
	MethodDial = "dial"
)

// ClientConfig is the per-tenant routing configuration consulted when
// resolving a destination.
type ClientConfig struct {
	// AircallSIPNumber is the client's known call-center SIP number
	// (E.164), if the client uses the call-center platform.
	AircallSIPNumber string

	// Region selects the call-center platform's SIP domain.
	// One of "americas", "europe", "asia-pacific"; default americas.
	Region string

	// TrunkOverride forces PSTN dials through a named trunk when set.
	TrunkOverride string
}
