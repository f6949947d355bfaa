// Package discovery implements the UDP discovery protocol. A request is
// an 8-byte datagram: a 6-byte magic followed by the requester's catalog
// port. Serving instances answer by pushing their catalog to that port.
package discovery

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Magic prefixes every discovery request.
const Magic = "POKEME"

// requestLen is the exact datagram size: magic plus big-endian port.
const requestLen = len(Magic) + 2

// EncodeRequest builds a discovery datagram advertising the catalog port.
func EncodeRequest(catalogPort uint16) []byte {
	b := make([]byte, requestLen)
	copy(b, Magic)
	binary.BigEndian.PutUint16(b[len(Magic):], catalogPort)
	return b
}

// DecodeRequest parses a discovery datagram, returning the advertised
// catalog port. Datagrams of any other length or magic are rejected.
func DecodeRequest(b []byte) (uint16, error) {
	if len(b) != requestLen {
		return 0, fmt.Errorf("bad request length %d", len(b))
	}
	if string(b[:len(Magic)]) != Magic {
		return 0, errors.New("bad request magic")
	}
	return binary.BigEndian.Uint16(b[len(Magic):]), nil
}
