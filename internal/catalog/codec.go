// Package catalog implements the TCP catalog exchange and the
// deduplicated resource list the consume role builds from it.
//
// A catalog stream is a sequence of records, each a big-endian item
// port followed by a NUL-terminated path, ended by a zero port. The
// pushing side closes the connection after the sentinel.
package catalog

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

// A Record pairs a served item's TCP port with its wire path.
// Directory paths carry a trailing slash.
type Record struct {
	Port uint16
	Path string
}

// WriteCatalog writes all records followed by the terminating sentinel.
func WriteCatalog(w io.Writer, recs []Record) error {
	var hdr [2]byte
	for _, rec := range recs {
		binary.BigEndian.PutUint16(hdr[:], rec.Port)
		if _, err := w.Write(hdr[:]); err != nil {
			return fmt.Errorf("write record port: %w", err)
		}
		if _, err := io.WriteString(w, rec.Path); err != nil {
			return fmt.Errorf("write record path: %w", err)
		}
		if _, err := w.Write([]byte{0}); err != nil {
			return fmt.Errorf("write record terminator: %w", err)
		}
	}
	hdr[0], hdr[1] = 0, 0
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("write sentinel: %w", err)
	}
	return nil
}

// ReadCatalog reads records until the sentinel, consuming nothing
// beyond it. Record order is preserved.
func ReadCatalog(r io.Reader) ([]Record, error) {
	var recs []Record
	var hdr [2]byte
	for {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return recs, fmt.Errorf("read record port: %w", err)
		}
		port := binary.BigEndian.Uint16(hdr[:])
		if port == 0 {
			return recs, nil
		}
		path, err := readUntilNul(r)
		if err != nil {
			return recs, fmt.Errorf("read record path: %w", err)
		}
		recs = append(recs, Record{Port: port, Path: path})
	}
}

// readUntilNul reads one byte at a time so the reader is left exactly
// past the terminator. Catalogs are small; this is not a hot path.
func readUntilNul(r io.Reader) (string, error) {
	var sb strings.Builder
	var one [1]byte
	for {
		if _, err := io.ReadFull(r, one[:]); err != nil {
			return "", err
		}
		if one[0] == 0 {
			return sb.String(), nil
		}
		sb.WriteByte(one[0])
	}
}
