/*
File Name:  address.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Address encoding and the network families the address book can place into
buckets. The byte layout mirrors BIP155: a one-byte network tag followed by
the network's native address bytes, with the port appended separately where
relevant.
*/

package addrbook

import (
	"encoding/binary"
	"fmt"
)

// Network identifies the transport family an Address belongs to.
type Network uint8

const (
	NetworkIPv4 Network = 1
	NetworkIPv6 Network = 2
	NetworkTorV3 Network = 4
	NetworkI2P Network = 5
	NetworkCJDNS Network = 6
)

func (n Network) String() string {
	switch n {
	case NetworkIPv4:
		return "ipv4"
	case NetworkIPv6:
		return "ipv6"
	case NetworkTorV3:
		return "torv3"
	case NetworkI2P:
		return "i2p"
	case NetworkCJDNS:
		return "cjdns"
	default:
		return fmt.Sprintf("network(%d)", uint8(n))
	}
}

// addrLen returns the length in bytes of the native address payload for a
// network family, or 0 if unknown.
func addrLen(n Network) int {
	switch n {
	case NetworkIPv4:
		return 4
	case NetworkIPv6, NetworkCJDNS:
		return 16
	case NetworkTorV3:
		return 32
	case NetworkI2P:
		return 32
	default:
		return 0
	}
}

// NetAddr is an Address without a port: the part that determines which
// network group an address belongs to.
type NetAddr struct {
	Net Network
	IP  []byte
}

// Key returns the canonical byte representation of the NetAddr: network tag
// followed by the raw address bytes.
func (a NetAddr) Key() []byte {
	buf := make([]byte, 1+len(a.IP))
	buf[0] = byte(a.Net)
	copy(buf[1:], a.IP)
	return buf
}

func (a NetAddr) mapKey() string {
	return string(a.Key())
}

// Equal reports whether two NetAddr values denote the same network
// endpoint (ignoring port).
func (a NetAddr) Equal(b NetAddr) bool {
	return a.Net == b.Net && string(a.IP) == string(b.IP)
}

// Address is a transport-level endpoint: a NetAddr plus a port. Two
// addresses are equal iff all three components (network, bytes, port)
// match, per spec §3.
type Address struct {
	NetAddr
	Port uint16
}

// Key returns the canonical byte representation used as the hash input for
// the tried-bucket computation: network tag, address bytes, big-endian
// port.
func (a Address) Key() []byte {
	buf := make([]byte, 1+len(a.IP)+2)
	buf[0] = byte(a.Net)
	copy(buf[1:], a.IP)
	binary.BigEndian.PutUint16(buf[1+len(a.IP):], a.Port)
	return buf
}

func (a Address) mapKey() string {
	return string(a.Key())
}

// Equal reports whether two addresses denote the same endpoint.
func (a Address) Equal(b Address) bool {
	return a.NetAddr.Equal(b.NetAddr) && a.Port == b.Port
}

// NA returns the address with its port stripped.
func (a Address) NA() NetAddr {
	return a.NetAddr
}

// IsRoutable reports whether an address is eligible to be stored at all.
// This is the one network-classification judgment the core makes
// itself (everything else, including group membership, is delegated to
// NetGroup): addresses with no address bytes, or with a length mismatch
// for their declared network, are never routable.
func (a Address) IsRoutable() bool {
	if len(a.IP) == 0 {
		return false
	}
	want := addrLen(a.Net)
	if want != 0 && len(a.IP) != want {
		return false
	}
	return true
}

// String renders host:port for logging and debugging.
func (a Address) String() string {
	return fmt.Sprintf("%s:%d", a.NetAddr.String(), a.Port)
}

func (a NetAddr) String() string {
	return fmt.Sprintf("%s/%x", a.Net, a.IP)
}

// ServiceFlags is a bitmask of services a peer advertises, matching the
// shape of decred's wire.ServiceFlag / NetAddressV2.Services.
type ServiceFlags uint64

// NetGroupFunc maps an address to an opaque group key (e.g. an AS number or
// a /16-equivalent), used to cap how many buckets a single network cluster
// can occupy. The caller supplies this; asmap is consumed only by the
// caller's implementation of it (spec §1 — out of scope for this core).
type NetGroupFunc func(addr NetAddr) []byte

// DefaultNetGroup groups IPv4 by /16, IPv6 by /32, and puts every address
// of any other network family in a group of its own (each peer its own
// group) — the
// same fallback Bitcoin Core uses for address families with no ASN map.
func DefaultNetGroup(addr NetAddr) []byte {
	switch addr.Net {
	case NetworkIPv4:
		if len(addr.IP) == 4 {
			return append([]byte{byte(NetworkIPv4)}, addr.IP[:2]...)
		}
	case NetworkIPv6:
		if len(addr.IP) == 16 {
			return append([]byte{byte(NetworkIPv6)}, addr.IP[:4]...)
		}
	}
	return addr.Key()
}
