package protocol

import (
	"fmt"
	"net/url"
)

// Kind is the type of entity a client tracks
type Kind string

const (
	KindCrew Kind = "crew"
	KindFlow Kind = "flow"
)

// ParseKind validates a user-supplied kind
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindCrew, KindFlow:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown entity kind %q (want crew or flow)", s)
}

// Plural returns the REST collection segment for the kind
func (k Kind) Plural() string {
	return string(k) + "s"
}

// SocketPath returns the live visualization endpoint for one entity
func (k Kind) SocketPath(id string) string {
	if k == KindFlow {
		return "/ws/flow/" + url.PathEscape(id)
	}
	return "/ws/crew-visualization/" + url.PathEscape(id)
}
