// Package snapshot implements the versioned, section-based chain-state snapshot
// stream: header, an ordered list of named sections (each snappy-compressed), and a
// SHA-256 integrity hash of the stream exactly as written, compressed sections included.
package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/golang/snappy"

	"github.com/ledgerd-io/ledgerd/schema"
)

// CurrentVersion is the header version this build writes. Versions 2..CurrentVersion
// remain readable via the legacy fixups in legacy.go.
var CurrentVersion = schema.FormatVersion.Major

// Section is one named, opaquely-encoded chunk of chain state.
type Section struct {
	Name string
	Rows []byte
}

// Write serializes sections in schema.SectionOrder (filtering out any section absent
// from the supplied list) and returns the SHA-256 integrity hash of the bytes it wrote
// to w.
func Write(w io.Writer, sections []Section) (integrityHash [32]byte, err error) {
	byName := make(map[string]Section, len(sections))
	for _, s := range sections {
		byName[s.Name] = s
	}

	h := sha256.New()
	mw := io.MultiWriter(w, h)

	if err := writeU32(mw, CurrentVersion); err != nil {
		return [32]byte{}, err
	}

	for _, name := range schema.SectionOrder {
		s, ok := byName[name]
		if !ok {
			continue
		}
		if err := writeSection(mw, s); err != nil {
			return [32]byte{}, fmt.Errorf("snapshot: writing section %q: %w", name, err)
		}
	}

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

// Read parses a snapshot stream, applying the version-appropriate legacy fixups so the
// returned sections always match the current in-memory shape regardless of which
// historical version wrote the stream.
func Read(r io.Reader) ([]Section, error) {
	version, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("snapshot: reading header version: %w", err)
	}
	if version < 2 || version > CurrentVersion {
		return nil, fmt.Errorf("snapshot: unsupported format version %d", version)
	}

	var sections []Section
	for {
		s, err := readSection(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("snapshot: reading section: %w", err)
		}
		sections = append(sections, s)
	}

	return applyLegacyFixups(version, sections)
}

func writeSection(w io.Writer, s Section) error {
	nameBytes := []byte(s.Name)
	if err := writeU32(w, uint32(len(nameBytes))); err != nil {
		return err
	}
	if _, err := w.Write(nameBytes); err != nil {
		return err
	}

	compressed := snappy.Encode(nil, s.Rows)
	if err := writeU32(w, uint32(len(compressed))); err != nil {
		return err
	}
	_, err := w.Write(compressed)
	return err
}

func readSection(r io.Reader) (Section, error) {
	nameLen, err := readU32(r)
	if err != nil {
		return Section{}, err
	}
	nameBytes := make([]byte, nameLen)
	if _, err := io.ReadFull(r, nameBytes); err != nil {
		return Section{}, err
	}

	size, err := readU32(r)
	if err != nil {
		return Section{}, err
	}
	compressed := make([]byte, size)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return Section{}, err
	}
	rows, err := snappy.Decode(nil, compressed)
	if err != nil {
		return Section{}, fmt.Errorf("snappy decode: %w", err)
	}

	return Section{Name: string(nameBytes), Rows: rows}, nil
}

func writeU32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return 0, io.EOF
		}
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// VerifyIntegrity recomputes the SHA-256 of the exact bytes Write would have produced
// for sections and compares it against want: two nodes holding identical state must
// agree on the hash.
func VerifyIntegrity(sections []Section, want [32]byte) (bool, error) {
	var buf bytes.Buffer
	got, err := Write(&buf, sections)
	if err != nil {
		return false, err
	}
	return got == want, nil
}
