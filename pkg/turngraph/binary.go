package turngraph

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"unsafe"
)

const (
	magicBytes = "TURNGRPH"
	version    = uint32(1)
	maxNodes   = 10_000_000
	maxEdges   = 50_000_000
)

// fileHeader is the binary header.
type fileHeader struct {
	Magic            [8]byte
	Version          uint32
	NumNodes         uint32
	NumEdges         uint32
	NumOriginalEdges uint32
	NumPenalties     uint32
	HasCoords        uint32
}

// WriteBinary serializes a TurnGraph to a binary file.
// Uses unsafe.Slice for zero-copy I/O and writes through a temp file
// with an atomic rename.
func WriteBinary(path string, g *TurnGraph) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath) // clean up on error
	}()

	crcWriter := crc32Writer{w: f, hash: crc32.NewIEEE()}
	w := &crcWriter

	hdr := fileHeader{
		Version:          version,
		NumNodes:         g.NumNodes,
		NumEdges:         g.NumEdges,
		NumOriginalEdges: g.FirstOriginal[g.NumNodes],
		NumPenalties:     uint32(len(g.Penalties)),
	}
	copy(hdr.Magic[:], magicBytes)
	if g.NodeLat != nil {
		hdr.HasCoords = 1
	}
	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	if err := writeUint32Slice(w, g.FirstOut); err != nil {
		return fmt.Errorf("write FirstOut: %w", err)
	}
	if err := writeUint32Slice(w, g.From); err != nil {
		return fmt.Errorf("write From: %w", err)
	}
	if err := writeUint32Slice(w, g.Head); err != nil {
		return fmt.Errorf("write Head: %w", err)
	}
	if err := writeUint32Slice(w, g.EdgeDistance); err != nil {
		return fmt.Errorf("write EdgeDistance: %w", err)
	}
	if err := writeUint32Slice(w, g.EdgeID); err != nil {
		return fmt.Errorf("write EdgeID: %w", err)
	}
	if err := writeUint8Slice(w, g.EdgeFlags); err != nil {
		return fmt.Errorf("write EdgeFlags: %w", err)
	}
	if err := writeUint8Slice(w, g.EdgeSourceLocal); err != nil {
		return fmt.Errorf("write EdgeSourceLocal: %w", err)
	}
	if err := writeUint8Slice(w, g.EdgeTargetLocal); err != nil {
		return fmt.Errorf("write EdgeTargetLocal: %w", err)
	}
	if err := writeInt32Slice(w, g.ShortcutChild1); err != nil {
		return fmt.Errorf("write ShortcutChild1: %w", err)
	}
	if err := writeInt32Slice(w, g.ShortcutChild2); err != nil {
		return fmt.Errorf("write ShortcutChild2: %w", err)
	}
	if err := writeUint32Slice(w, g.FirstOriginal); err != nil {
		return fmt.Errorf("write FirstOriginal: %w", err)
	}
	if err := writeUint32Slice(w, g.PenaltyFirst); err != nil {
		return fmt.Errorf("write PenaltyFirst: %w", err)
	}
	if err := writeUint8Slice(w, g.Penalties); err != nil {
		return fmt.Errorf("write Penalties: %w", err)
	}

	if hdr.HasCoords == 1 {
		if err := writeFloat64Slice(w, g.NodeLat); err != nil {
			return fmt.Errorf("write NodeLat: %w", err)
		}
		if err := writeFloat64Slice(w, g.NodeLon); err != nil {
			return fmt.Errorf("write NodeLon: %w", err)
		}
	}

	// CRC32 trailer over everything written so far.
	checksum := crcWriter.hash.Sum32()
	if err := binary.Write(f, binary.LittleEndian, checksum); err != nil {
		return fmt.Errorf("write CRC32: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}

	return nil
}

// ReadBinary deserializes a TurnGraph from a binary file.
func ReadBinary(path string) (*TurnGraph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	crcReader := crc32Reader{r: f, hash: crc32.NewIEEE()}
	r := &crcReader

	var hdr fileHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	if string(hdr.Magic[:]) != magicBytes {
		return nil, fmt.Errorf("invalid magic bytes: %q", hdr.Magic)
	}
	if hdr.Version != version {
		return nil, fmt.Errorf("unsupported version: %d", hdr.Version)
	}
	if hdr.NumNodes > maxNodes {
		return nil, fmt.Errorf("NumNodes %d exceeds limit %d", hdr.NumNodes, maxNodes)
	}
	if hdr.NumEdges > maxEdges {
		return nil, fmt.Errorf("NumEdges %d exceeds limit %d", hdr.NumEdges, maxEdges)
	}

	g := &TurnGraph{NumNodes: hdr.NumNodes, NumEdges: hdr.NumEdges}
	nodes := int(hdr.NumNodes)
	edges := int(hdr.NumEdges)

	if g.FirstOut, err = readUint32Slice(r, nodes+1); err != nil {
		return nil, fmt.Errorf("read FirstOut: %w", err)
	}
	if g.From, err = readUint32Slice(r, edges); err != nil {
		return nil, fmt.Errorf("read From: %w", err)
	}
	if g.Head, err = readUint32Slice(r, edges); err != nil {
		return nil, fmt.Errorf("read Head: %w", err)
	}
	if g.EdgeDistance, err = readUint32Slice(r, edges); err != nil {
		return nil, fmt.Errorf("read EdgeDistance: %w", err)
	}
	if g.EdgeID, err = readUint32Slice(r, edges); err != nil {
		return nil, fmt.Errorf("read EdgeID: %w", err)
	}
	if g.EdgeFlags, err = readUint8Slice(r, edges); err != nil {
		return nil, fmt.Errorf("read EdgeFlags: %w", err)
	}
	if g.EdgeSourceLocal, err = readUint8Slice(r, edges); err != nil {
		return nil, fmt.Errorf("read EdgeSourceLocal: %w", err)
	}
	if g.EdgeTargetLocal, err = readUint8Slice(r, edges); err != nil {
		return nil, fmt.Errorf("read EdgeTargetLocal: %w", err)
	}
	if g.ShortcutChild1, err = readInt32Slice(r, edges); err != nil {
		return nil, fmt.Errorf("read ShortcutChild1: %w", err)
	}
	if g.ShortcutChild2, err = readInt32Slice(r, edges); err != nil {
		return nil, fmt.Errorf("read ShortcutChild2: %w", err)
	}
	if g.FirstOriginal, err = readUint32Slice(r, nodes+1); err != nil {
		return nil, fmt.Errorf("read FirstOriginal: %w", err)
	}
	if g.PenaltyFirst, err = readUint32Slice(r, nodes+1); err != nil {
		return nil, fmt.Errorf("read PenaltyFirst: %w", err)
	}
	if g.Penalties, err = readUint8Slice(r, int(hdr.NumPenalties)); err != nil {
		return nil, fmt.Errorf("read Penalties: %w", err)
	}

	if hdr.HasCoords == 1 {
		if g.NodeLat, err = readFloat64Slice(r, nodes); err != nil {
			return nil, fmt.Errorf("read NodeLat: %w", err)
		}
		if g.NodeLon, err = readFloat64Slice(r, nodes); err != nil {
			return nil, fmt.Errorf("read NodeLon: %w", err)
		}
	}

	expectedCRC := crcReader.hash.Sum32()
	var storedCRC uint32
	if err := binary.Read(f, binary.LittleEndian, &storedCRC); err != nil {
		return nil, fmt.Errorf("read CRC32: %w", err)
	}
	if storedCRC != expectedCRC {
		return nil, fmt.Errorf("CRC32 mismatch: stored=%08x computed=%08x", storedCRC, expectedCRC)
	}

	if err := g.validate(); err != nil {
		return nil, fmt.Errorf("graph invalid: %w", err)
	}

	return g, nil
}

// validate checks the CSR and slot-block invariants of a loaded graph.
func (g *TurnGraph) validate() error {
	if err := validateMonotonic(g.FirstOut, g.NumNodes, g.NumEdges, "FirstOut"); err != nil {
		return err
	}
	if uint32(len(g.FirstOriginal)) != g.NumNodes+1 {
		return fmt.Errorf("FirstOriginal length %d != NumNodes+1 %d", len(g.FirstOriginal), g.NumNodes+1)
	}
	if err := validateMonotonic(g.FirstOriginal, g.NumNodes, g.FirstOriginal[g.NumNodes], "FirstOriginal"); err != nil {
		return err
	}
	if err := validateMonotonic(g.PenaltyFirst, g.NumNodes, uint32(len(g.Penalties)), "PenaltyFirst"); err != nil {
		return err
	}
	for n := uint32(0); n < g.NumNodes; n++ {
		deg := g.FirstOriginal[n+1] - g.FirstOriginal[n]
		if g.PenaltyFirst[n+1]-g.PenaltyFirst[n] != deg*deg {
			return fmt.Errorf("node %d: penalty table size %d, want %d", n, g.PenaltyFirst[n+1]-g.PenaltyFirst[n], deg*deg)
		}
	}
	for e := uint32(0); e < g.NumEdges; e++ {
		if g.Head[e] >= g.NumNodes || g.From[e] >= g.NumNodes {
			return fmt.Errorf("edge %d: endpoint out of range", e)
		}
		if g.EdgeFlags[e]&flagShortcut != 0 {
			c1, c2 := g.ShortcutChild1[e], g.ShortcutChild2[e]
			if c1 < 0 || c2 < 0 || uint32(c1) >= g.NumEdges || uint32(c2) >= g.NumEdges {
				return fmt.Errorf("edge %d: shortcut children out of range", e)
			}
		}
	}
	return nil
}

func validateMonotonic(firstOut []uint32, numNodes, total uint32, name string) error {
	if uint32(len(firstOut)) != numNodes+1 {
		return fmt.Errorf("%s length %d != NumNodes+1 %d", name, len(firstOut), numNodes+1)
	}
	if firstOut[numNodes] != total {
		return fmt.Errorf("%s[last]=%d, want %d", name, firstOut[numNodes], total)
	}
	for i := uint32(1); i <= numNodes; i++ {
		if firstOut[i] < firstOut[i-1] {
			return fmt.Errorf("%s not monotonic at %d", name, i)
		}
	}
	return nil
}

// Zero-copy I/O helpers using unsafe.Slice.

func writeUint32Slice(w io.Writer, s []uint32) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4)
	_, err := w.Write(b)
	return err
}

func writeInt32Slice(w io.Writer, s []int32) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4)
	_, err := w.Write(b)
	return err
}

func writeUint8Slice(w io.Writer, s []uint8) error {
	if len(s) == 0 {
		return nil
	}
	_, err := w.Write(s)
	return err
}

func writeFloat64Slice(w io.Writer, s []float64) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*8)
	_, err := w.Write(b)
	return err
}

func readUint32Slice(r io.Reader, n int) ([]uint32, error) {
	if n == 0 {
		return nil, nil
	}
	s := make([]uint32, n)
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*4)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return s, nil
}

func readInt32Slice(r io.Reader, n int) ([]int32, error) {
	if n == 0 {
		return nil, nil
	}
	s := make([]int32, n)
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*4)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return s, nil
}

func readUint8Slice(r io.Reader, n int) ([]uint8, error) {
	if n == 0 {
		return nil, nil
	}
	s := make([]uint8, n)
	if _, err := io.ReadFull(r, s); err != nil {
		return nil, err
	}
	return s, nil
}

func readFloat64Slice(r io.Reader, n int) ([]float64, error) {
	if n == 0 {
		return nil, nil
	}
	s := make([]float64, n)
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*8)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return s, nil
}

// CRC32 wrapping writers/readers.

type crc32Writer struct {
	w    io.Writer
	hash crc32Hash
}

type crc32Hash interface {
	Write([]byte) (int, error)
	Sum32() uint32
}

func (cw *crc32Writer) Write(p []byte) (int, error) {
	cw.hash.Write(p)
	return cw.w.Write(p)
}

type crc32Reader struct {
	r    io.Reader
	hash crc32Hash
}

func (cr *crc32Reader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.hash.Write(p[:n])
	}
	return n, err
}
