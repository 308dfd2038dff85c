package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// LeadState enumerates workflow stages for leads.
type LeadState string

const (
	LeadStatePending    LeadState = "PENDING"
	LeadStateReachedOut LeadState = "REACHED_OUT"
)

// LeadStates lists every valid state.
var LeadStates = []LeadState{LeadStatePending, LeadStateReachedOut}

// ParseLeadState validates a wire value.
func ParseLeadState(raw string) (LeadState, error) {
	switch LeadState(raw) {
	case LeadStatePending:
		return LeadStatePending, nil
	case LeadStateReachedOut:
		return LeadStateReachedOut, nil
	default:
		return "", fmt.Errorf("unknown lead state %q", raw)
	}
}

// Valid reports whether s is a known state.
func (s LeadState) Valid() bool {
	_, err := ParseLeadState(string(s))
	return err == nil
}

// Lead is a candidate submission.
type Lead struct {
	ID            string
	FirstName     string
	LastName      string
	Email         string
	ResumeBlobKey string
	// ResumeURL is derived on read and never stored.
	ResumeURL *string
	State     LeadState
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transitions are forward-only. Re-applying the current state is allowed.
var allowedTransitions = map[LeadState][]LeadState{
	LeadStatePending:    {LeadStatePending, LeadStateReachedOut},
	LeadStateReachedOut: {LeadStateReachedOut},
}

// CanTransition reports whether a lead in current may move to next.
func CanTransition(current, next LeadState) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// AllowedPredecessors returns the states from which next is reachable.
func AllowedPredecessors(next LeadState) []LeadState {
	var out []LeadState
	for _, state := range LeadStates {
		if CanTransition(state, next) {
			out = append(out, state)
		}
	}
	return out
}

const leadIDSuffixLen = 4

// NewLeadID builds lead_<slug>_<4 hex>.
func NewLeadID(lastName string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:leadIDSuffixLen]
	return fmt.Sprintf("lead_%s_%s", slugify(lastName), suffix)
}

func slugify(name string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), name)
	if err != nil {
		folded = name
	}
	folded = strings.ToLower(strings.TrimSpace(folded))

	var b strings.Builder
	dash := false
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if slug == "" {
		return "anon"
	}
	return slug
}
