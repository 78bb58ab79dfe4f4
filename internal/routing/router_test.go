package routing

import "testing"

func TestResolve_AircallSIPNumberWins(t *testing.T) {
	client := ClientConfig{AircallSIPNumber: "+14168189171", Region: "europe"}

	// Raw formatting differences must not matter; comparison is normalized.
	r := Resolve("(416) 818-9171", client)
	if r.Type != RouteAircallSIP {
		t.Fatalf("expected aircall_sip, got %q", r.Type)
	}
	if r.SIPURI != "sip:+14168189171@sip.eu1.aircall.io" {
		t.Fatalf("unexpected sip uri: %q", r.SIPURI)
	}
	if r.Method != MethodSIP {
		t.Fatalf("unexpected method: %q", r.Method)
	}
}

func TestResolve_SIPPrefixGoesVerbatim(t *testing.T) {
	for _, dest := range []string{"sip:agent-9@pbx.example.com", "SIP:agent-9@pbx.example.com", "sips:secure@pbx.example.com"} {
		r := Resolve(dest, ClientConfig{})
		if r.Type != RouteOtherSIP {
			t.Fatalf("Resolve(%q): expected other_sip, got %q", dest, r.Type)
		}
		if r.SIPURI != dest {
			t.Fatalf("Resolve(%q): sip uri must be passed as given, got %q", dest, r.SIPURI)
		}
	}
}

func TestResolve_PSTNFallback(t *testing.T) {
	r := Resolve("+15551234567", ClientConfig{TrunkOverride: "trunk-a"})
	if r.Type != RoutePSTN {
		t.Fatalf("expected pstn, got %q", r.Type)
	}
	if r.Destination != "+15551234567" {
		t.Fatalf("unexpected destination: %q", r.Destination)
	}
	if r.Trunk != "trunk-a" {
		t.Fatalf("expected trunk override to carry through, got %q", r.Trunk)
	}
}

func TestResolve_AircallMatchRequiresConfiguredNumber(t *testing.T) {
	// With no configured call-center number, even a plain number is PSTN.
	r := Resolve("4168189171", ClientConfig{})
	if r.Type != RoutePSTN {
		t.Fatalf("expected pstn, got %q", r.Type)
	}
}

func TestRegionDomain_DefaultsToAmericas(t *testing.T) {
	if got := RegionDomain(""); got != "sip.us1.aircall.io" {
		t.Fatalf("unexpected default domain: %q", got)
	}
	if got := RegionDomain("Asia-Pacific"); got != "sip.ap1.aircall.io" {
		t.Fatalf("region lookup should be case-insensitive, got %q", got)
	}
	if got := RegionDomain("mars"); got != "sip.us1.aircall.io" {
		t.Fatalf("unknown regions fall back to americas, got %q", got)
	}
}
