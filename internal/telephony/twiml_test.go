package telephony

import (
	"strings"
	"testing"

	"callbridge/internal/routing"
)

func TestRenderTransferTwiML_SIP(t *testing.T) {
	route := routing.Route{Type: routing.RouteAircallSIP, SIPURI: "sip:+14168189171@sip.us1.aircall.io"}
	out, err := RenderTransferTwiML(route)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !strings.Contains(out, "<Sip>sip:+14168189171@sip.us1.aircall.io</Sip>") {
		t.Fatalf("expected Sip dial, got:\n%s", out)
	}
}

func TestRenderTransferTwiML_PSTN(t *testing.T) {
	route := routing.Route{Type: routing.RoutePSTN, Destination: "+15551234567"}
	out, err := RenderTransferTwiML(route)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !strings.Contains(out, "<Number>+15551234567</Number>") {
		t.Fatalf("expected Number dial, got:\n%s", out)
	}
}

func TestRenderTransferTwiML_RejectsEmptyTargets(t *testing.T) {
	if _, err := RenderTransferTwiML(routing.Route{Type: routing.RouteOtherSIP}); err == nil {
		t.Fatalf("expected error for sip route without uri")
	}
	if _, err := RenderTransferTwiML(routing.Route{Type: routing.RoutePSTN}); err == nil {
		t.Fatalf("expected error for pstn route without destination")
	}
}
