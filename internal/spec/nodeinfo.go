package spec

import (
	"fmt"
	"net"
	"strconv"

	"code.dogecoin.org/gossip/dnet"
)

// NodeID is IDSize lowercase hex digits.
type NodeID string

func (id NodeID) IsValid() bool {
	if len(id) != IDSize {
		return false
	}
	for _, c := range []byte(id) {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

// Bits returns the id as an integer; zero if the id is not valid.
func (id NodeID) Bits() uint64 {
	v, err := strconv.ParseUint(string(id), 16, 64)
	if err != nil {
		return 0
	}
	return v
}

func (id NodeID) String() string {
	return string(id)
}

func ParseNodeID(s string) (NodeID, error) {
	id := NodeID(s)
	if !id.IsValid() {
		return "", fmt.Errorf("invalid node id: %q", s)
	}
	return id, nil
}

// Distance is the XOR metric between two ids.
func Distance(a, b NodeID) uint64 {
	return a.Bits() ^ b.Bits()
}

// NodeInfo describes a peer. It is immutable once observed.
type NodeInfo struct {
	ID        NodeID
	IP        string
	Port      uint16
	PublicKey []byte // PEM
	Bootstrap bool
	Miner     bool
}

func (n NodeInfo) IsValid() bool {
	return n.ID.IsValid() && n.Port != 0 && net.ParseIP(n.IP) != nil
}

// Address of the node's overlay listener.
func (n NodeInfo) Address() dnet.Address {
	return dnet.Address{Host: net.ParseIP(n.IP), Port: n.Port}
}

// String is the canonical form used in signed content.
func (n NodeInfo) String() string {
	return fmt.Sprintf("{%s %s %d %t %t %s}", n.ID, n.IP, n.Port, n.Bootstrap, n.Miner, n.PublicKey)
}

// JoinInfos concatenates the canonical forms of a list of nodes.
func JoinInfos(list []NodeInfo) string {
	s := ""
	for _, n := range list {
		s += n.String()
	}
	return s
}

// ParseHostPort parses "ip:port" into an address.
func ParseHostPort(hostport string) (dnet.Address, error) {
	addr, err := dnet.ParseAddress(hostport)
	if err != nil {
		return dnet.Address{}, fmt.Errorf("bad address %q: %w", hostport, err)
	}
	return addr, nil
}
