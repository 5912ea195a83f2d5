package topology

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/scylladb/alternator-go-client/internal/clienterrors"
)

// NodeURI is a value object representing one cluster node's fully
// qualified scheme://host:port address. It is immutable and compared
// by value, by literal textual form. Two URIs that would resolve to
// the same host via DNS but are spelled differently are NOT equal —
// there is no DNS normalization, so membership comparisons stay cheap
// and don't depend on resolver state.
type NodeURI struct {
	raw string
}

// NewNodeURI parses and validates a node address.
func NewNodeURI(raw string) (NodeURI, error) {
	if raw == "" {
		return NodeURI{}, clienterrors.InvalidArgument("topology: node URI cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return NodeURI{}, clienterrors.InvalidArgument(fmt.Sprintf("topology: invalid node URI %q", raw)).WithCause(err)
	}
	if u.Scheme == "" || u.Host == "" {
		return NodeURI{}, clienterrors.InvalidArgument(fmt.Sprintf("topology: node URI %q must be scheme://host:port", raw))
	}
	return NodeURI{raw: u.String()}, nil
}

// MustNodeURI panics on invalid input; reserved for literals (tests,
// constants), never for user- or network-supplied data.
func MustNodeURI(raw string) NodeURI {
	u, err := NewNodeURI(raw)
	if err != nil {
		panic(err)
	}
	return u
}

// newNodeURIFromHost rebuilds a URI for a bare host string returned by
// /localnodes, reusing the seed's scheme and port.
func newNodeURIFromHost(host string, scheme string, port string) (NodeURI, error) {
	if host == "" {
		return NodeURI{}, errors.New("topology: empty host in /localnodes response")
	}
	hostPort := host
	if port != "" {
		hostPort = host + ":" + port
	}
	return NewNodeURI(fmt.Sprintf("%s://%s", scheme, hostPort))
}

// String returns the literal address.
func (u NodeURI) String() string { return u.raw }

// Equals compares two node URIs by their literal textual form.
func (u NodeURI) Equals(other NodeURI) bool { return u.raw == other.raw }

// IsZero reports whether u is the unset value.
func (u NodeURI) IsZero() bool { return u.raw == "" }

// MarshalJSON implements json.Marshaler.
func (u NodeURI) MarshalJSON() ([]byte, error) {
	return []byte(`"` + u.raw + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *NodeURI) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return errors.New("topology: NodeURI must be a JSON string")
	}
	u.raw = string(data[1 : len(data)-1])
	return nil
}

// schemeAndPort extracts the scheme and port this URI carries, so the
// poller can stamp them onto bare hostnames returned by /localnodes.
func (u NodeURI) schemeAndPort() (scheme string, port string, err error) {
	parsed, err := url.Parse(u.raw)
	if err != nil {
		return "", "", err
	}
	return parsed.Scheme, parsed.Port(), nil
}
