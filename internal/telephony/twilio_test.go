package telephony

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"callbridge/internal/routing"
)

func TestTwilioExecutor_PostsTransferTwiML(t *testing.T) {
	var gotPath, gotTwiml string
	var gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, _, _ = r.BasicAuth()
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotTwiml = r.PostFormValue("Twiml")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	e := NewTwilioExecutor("ACxxxx", "token")
	e.BaseURL = srv.URL

	err := e.ExecuteTransfer(context.Background(), TransferCommand{
		TelephonyCallID: "CA0123456789abcdef0123456789abcdef",
		Route:           routing.Route{Type: routing.RoutePSTN, Destination: "+15559876543"},
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if !strings.Contains(gotPath, "/Accounts/ACxxxx/Calls/CA0123456789abcdef0123456789abcdef.json") {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if gotUser != "ACxxxx" {
		t.Fatalf("expected basic auth with account sid, got %q", gotUser)
	}
	if !strings.Contains(gotTwiml, "<Number>+15559876543</Number>") {
		t.Fatalf("unexpected twiml: %s", gotTwiml)
	}
}

func TestTwilioExecutor_CarrierErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"call not in-progress"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	e := NewTwilioExecutor("ACxxxx", "token")
	e.BaseURL = srv.URL

	err := e.ExecuteTransfer(context.Background(), TransferCommand{
		TelephonyCallID: "CA0123456789abcdef0123456789abcdef",
		Route:           routing.Route{Type: routing.RoutePSTN, Destination: "+15559876543"},
	})
	if err == nil {
		t.Fatal("expected carrier error")
	}
	if !strings.Contains(err.Error(), "400") {
		t.Fatalf("error should carry carrier status: %v", err)
	}
}

func TestTwilioExecutor_RequiresCallID(t *testing.T) {
	e := NewTwilioExecutor("ACxxxx", "token")
	err := e.ExecuteTransfer(context.Background(), TransferCommand{
		Route: routing.Route{Type: routing.RoutePSTN, Destination: "+15559876543"},
	})
	if !errors.Is(err, ErrMissingCallID) {
		t.Fatalf("expected ErrMissingCallID, got %v", err)
	}
}
