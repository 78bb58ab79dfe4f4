package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"

	"callbridge/internal/routing"
)

// Minimal TwiML builder for transfer commands. It intentionally avoids any
// provider SDK dependency; a Twilio-style execution layer posts this
// document to redirect the live leg.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlDial struct {
	XMLName xml.Name  `xml:"Dial"`
	Number  string    `xml:"Number,omitempty"`
	Sip     *twimlSip `xml:"Sip,omitempty"`
}

type twimlSip struct {
	URI string `xml:",chardata"`
}

// RenderTransferTwiML maps a resolved route to the TwiML that executes it.
func RenderTransferTwiML(route routing.Route) (string, error) {
	var r twimlResponse

	switch route.Type {
	case routing.RouteAircallSIP, routing.RouteOtherSIP:
		if strings.TrimSpace(route.SIPURI) == "" {
			return "", errors.New("telephony: sip_uri required for sip route")
		}
		r.Verbs = append(r.Verbs, twimlDial{Sip: &twimlSip{URI: route.SIPURI}})
	case routing.RoutePSTN:
		if strings.TrimSpace(route.Destination) == "" {
			return "", errors.New("telephony: destination required for pstn route")
		}
		r.Verbs = append(r.Verbs, twimlDial{Number: route.Destination})
	default:
		return "", errors.New("telephony: unknown route type")
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
