package reconcile

import (
	"regexp"
	"strings"
)

// AwaitingCustomerMarker is prefixed to the event subject while the customer
// has not answered yet.
const AwaitingCustomerMarker = "[Awaiting customer]"

var (
	awaitingMarkers = regexp.MustCompile(`(?i)[\[(]\s*(awaiting|pending)\s+customer[^\])]*[\])]`)
	spaceRun        = regexp.MustCompile(`\s{2,}`)
)

// StripAwaitingMarkers removes every awaiting/pending-customer tag from a subject.
func StripAwaitingMarkers(subject string) string {
	s := awaitingMarkers.ReplaceAllString(subject, " ")
	s = spaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// WithAwaitingMarker prefixes the marker once.
func WithAwaitingMarker(subject string) string {
	return AwaitingCustomerMarker + " " + StripAwaitingMarkers(subject)
}
