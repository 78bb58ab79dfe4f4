package correlation

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"callbridge/internal/phone"

	"github.com/google/uuid"
)

// Service owns the create-once binding between the AI platform's call id
// and the carrier's call id, plus the degraded fallback used when an
// inbound tool invocation arrives without a usable primary identifier.

type Service struct {
	repo Repository
	log  *slog.Logger

	// recencyWindow bounds the number-based fallback search.
	recencyWindow time.Duration
	clock         func() time.Time
}

const defaultRecencyWindow = 5 * time.Minute

func NewService(repo Repository, log *slog.Logger, recencyWindow time.Duration) *Service {
	if log == nil {
		log = slog.Default()
	}
	if recencyWindow <= 0 {
		recencyWindow = defaultRecencyWindow
	}
	return &Service{repo: repo, log: log, recencyWindow: recencyWindow, clock: time.Now}
}

// Create inserts the binding for a newly established call. Fails with
// ErrDuplicate when either identifier is already mapped.
func (s *Service) Create(ctx context.Context, aiCallID, telephonyCallID, callerNumber, calleeNumber string) (Record, error) {
	rec := Record{
		ID:              uuid.NewString(),
		AICallID:        aiCallID,
		TelephonyCallID: telephonyCallID,
		CallerNumber:    phone.Normalize(callerNumber),
		CalleeNumber:    phone.Normalize(calleeNumber),
		CreatedAt:       s.clock().UTC(),
	}
	if err := s.repo.Insert(ctx, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *Service) LookupByAICallID(ctx context.Context, id string) (Record, error) {
	return s.repo.GetByAICallID(ctx, id)
}

func (s *Service) LookupByTelephonyID(ctx context.Context, id string) (Record, error) {
	return s.repo.GetByTelephonyID(ctx, id)
}

// ResolveHints carries whatever identifiers an inbound tool invocation
// happened to include.
type ResolveHints struct {
	AICallID        string
	TelephonyCallID string
	CallbackNumber  string
}

// Resolution is the outcome of identifier resolution. Degraded marks a
// last-resort match that traded precision for availability; the audit log
// must carry that flag.
type Resolution struct {
	Record   Record
	Degraded bool
	// Via names the resolution path: ai_call_id, telephony_call_id,
	// telephony_id_shape, caller_number.
	Via string
}

// telephonyIDPattern matches carrier call ids (Twilio CallSid shape).
var telephonyIDPattern = regexp.MustCompile(`^CA[0-9a-fA-F]{32}$`)

// Resolve finds the correlation record for a tool invocation.
//
// Order: primary AI-call-id lookup; direct use of a telephony-id-shaped
// value; most-recent caller-number match within the recency window. The
// later paths are degraded-confidence and flagged as such.
func (s *Service) Resolve(ctx context.Context, hints ResolveHints) (Resolution, error) {
	if id := cleanHint(hints.AICallID); id != "" {
		rec, err := s.repo.GetByAICallID(ctx, id)
		if err == nil {
			return Resolution{Record: rec, Via: "ai_call_id"}, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Resolution{}, err
		}
	}

	if id := cleanHint(hints.TelephonyCallID); id != "" {
		rec, err := s.repo.GetByTelephonyID(ctx, id)
		if err == nil {
			return Resolution{Record: rec, Via: "telephony_call_id"}, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Resolution{}, err
		}
		// A value shaped like a carrier call id is usable even without a
		// stored mapping: downstream carrier commands only need the id.
		if telephonyIDPattern.MatchString(id) {
			s.log.Warn("correlation resolved by id shape only", "telephony_call_id", id)
			return Resolution{
				Record:   Record{TelephonyCallID: id},
				Degraded: true,
				Via:      "telephony_id_shape",
			}, nil
		}
	}

	if number := cleanHint(hints.CallbackNumber); number != "" {
		since := s.clock().UTC().Add(-s.recencyWindow)
		rec, err := s.repo.LatestByCallerNumber(ctx, phone.Normalize(number), since)
		if err == nil {
			s.log.Warn("correlation resolved by caller number fallback",
				"caller_number", rec.CallerNumber, "telephony_call_id", rec.TelephonyCallID)
			return Resolution{Record: rec, Degraded: true, Via: "caller_number"}, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Resolution{}, err
		}
	}

	return Resolution{}, ErrNotFound
}

// cleanHint rejects empty values and un-substituted template placeholders.
func cleanHint(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || IsTemplatePlaceholder(v) {
		return ""
	}
	return v
}

// IsTemplatePlaceholder reports whether a value is an un-substituted
// template placeholder (e.g. "{{call_id}}") that some platforms forward
// verbatim. Such values must never be used as identifiers or destinations.
func IsTemplatePlaceholder(v string) bool {
	return strings.Contains(v, "{{") || strings.Contains(v, "}}")
}
