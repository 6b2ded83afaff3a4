// Package snapshot serializes amplitude buffers.
//
// A buffer of 2^n amplitudes, where bit q of the index is qubit q, is stored as
// an n-axis tensor with every axis of extent 2 in C order. Axis k then holds
// qubit n-1-k and the flat layout is unchanged.
package snapshot

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/bits"
	"regexp"
	"strconv"
	"strings"
)

// MaxRank is the largest tensor rank accepted on read or write.
const MaxRank = 31

var (
	// ErrBadShape is returned for tensors that are not 2x2x...x2 or whose
	// payload does not match the declared shape.
	ErrBadShape = errors.New("snapshot: bad tensor shape")

	// ErrFormat is returned for blobs that are not valid .npy data.
	ErrFormat = errors.New("snapshot: malformed npy blob")
)

var npyMagic = []byte("\x93NUMPY")

var (
	descrRe   = regexp.MustCompile(`'descr'\s*:\s*'([^']*)'`)
	fortranRe = regexp.MustCompile(`'fortran_order'\s*:\s*(True|False)`)
	shapeRe   = regexp.MustCompile(`'shape'\s*:\s*\(([^)]*)\)`)
)

// chunk bounds the number of amplitudes converted per binary read or write.
const chunk = 4096

// RankOf returns n for a buffer of 2^n amplitudes.
func RankOf(data []complex128) (int, error) {
	n := len(data)
	if n < 2 || n&(n-1) != 0 {
		return 0, fmt.Errorf("%w: %d amplitudes is not a power of two", ErrBadShape, n)
	}
	rank := bits.TrailingZeros(uint(n))
	if rank > MaxRank {
		return 0, fmt.Errorf("%w: rank %d exceeds %d", ErrBadShape, rank, MaxRank)
	}
	return rank, nil
}

// WriteNPY writes data as a little-endian complex128 (<c16) .npy tensor of
// shape (2, 2, ..., 2).
func WriteNPY(w io.Writer, data []complex128) error {
	rank, err := RankOf(data)
	if err != nil {
		return err
	}

	dims := make([]string, rank)
	for i := range dims {
		dims[i] = "2"
	}
	shape := strings.Join(dims, ", ")
	if rank == 1 {
		shape += ","
	}
	header := fmt.Sprintf("{'descr': '<c16', 'fortran_order': False, 'shape': (%s), }", shape)

	// magic + version + uint16 length + header + '\n' is padded to 64 bytes
	preamble := len(npyMagic) + 2 + 2
	total := preamble + len(header) + 1
	if pad := total % 64; pad != 0 {
		header += strings.Repeat(" ", 64-pad)
	}
	header += "\n"

	bw := bufio.NewWriter(w)
	bw.Write(npyMagic)
	bw.Write([]byte{1, 0})
	if err := binary.Write(bw, binary.LittleEndian, uint16(len(header))); err != nil {
		return err
	}
	bw.WriteString(header)

	for start := 0; start < len(data); start += chunk {
		end := min(start+chunk, len(data))
		if err := binary.Write(bw, binary.LittleEndian, data[start:end]); err != nil {
			return fmt.Errorf("failed to write amplitudes: %w", err)
		}
	}
	return bw.Flush()
}

// ReadNPY reads a .npy tensor of shape (2, ..., 2) holding complex64 (c8) or
// complex128 (c16) values. complex64 data is widened to complex128.
func ReadNPY(r io.Reader) ([]complex128, int, error) {
	br := bufio.NewReader(r)

	magic := make([]byte, len(npyMagic)+2)
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if !bytes.Equal(magic[:len(npyMagic)], npyMagic) {
		return nil, 0, fmt.Errorf("%w: bad magic", ErrFormat)
	}

	var headerLen int
	switch major := magic[len(npyMagic)]; major {
	case 1:
		var n uint16
		if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrFormat, err)
		}
		headerLen = int(n)
	case 2, 3:
		var n uint32
		if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrFormat, err)
		}
		headerLen = int(n)
	default:
		return nil, 0, fmt.Errorf("%w: unsupported version %d", ErrFormat, major)
	}

	header := make([]byte, headerLen)
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	descr, fortran, rank, err := parseHeader(string(header))
	if err != nil {
		return nil, 0, err
	}

	var order binary.ByteOrder = binary.LittleEndian
	if descr[0] == '>' {
		order = binary.BigEndian
	}

	data := make([]complex128, 1<<rank)
	switch descr[1:] {
	case "c16":
		for start := 0; start < len(data); start += chunk {
			end := min(start+chunk, len(data))
			if err := binary.Read(br, order, data[start:end]); err != nil {
				return nil, 0, fmt.Errorf("%w: payload shorter than shape: %v", ErrBadShape, err)
			}
		}
	case "c8":
		buf := make([]complex64, chunk)
		for start := 0; start < len(data); start += chunk {
			end := min(start+chunk, len(data))
			narrow := buf[:end-start]
			if err := binary.Read(br, order, narrow); err != nil {
				return nil, 0, fmt.Errorf("%w: payload shorter than shape: %v", ErrBadShape, err)
			}
			for i, v := range narrow {
				data[start+i] = complex128(v)
			}
		}
	}

	if fortran {
		data = reverseAxes(data, rank)
	}
	return data, rank, nil
}

func parseHeader(h string) (descr string, fortran bool, rank int, err error) {
	m := descrRe.FindStringSubmatch(h)
	if m == nil {
		return "", false, 0, fmt.Errorf("%w: missing descr", ErrFormat)
	}
	descr = m[1]
	if len(descr) != 4 && len(descr) != 3 || !strings.ContainsRune("<>|=", rune(descr[0])) {
		return "", false, 0, fmt.Errorf("%w: unsupported dtype %q", ErrFormat, descr)
	}
	if kind := descr[1:]; kind != "c8" && kind != "c16" {
		return "", false, 0, fmt.Errorf("%w: dtype %q is not complex", ErrFormat, descr)
	}

	m = fortranRe.FindStringSubmatch(h)
	if m == nil {
		return "", false, 0, fmt.Errorf("%w: missing fortran_order", ErrFormat)
	}
	fortran = m[1] == "True"

	m = shapeRe.FindStringSubmatch(h)
	if m == nil {
		return "", false, 0, fmt.Errorf("%w: missing shape", ErrFormat)
	}
	for _, dim := range strings.Split(m[1], ",") {
		dim = strings.TrimSpace(dim)
		if dim == "" {
			continue
		}
		v, convErr := strconv.Atoi(dim)
		if convErr != nil {
			return "", false, 0, fmt.Errorf("%w: bad dimension %q", ErrFormat, dim)
		}
		if v != 2 {
			return "", false, 0, fmt.Errorf("%w: axis extent %d, want 2", ErrBadShape, v)
		}
		rank++
	}
	if rank < 1 || rank > MaxRank {
		return "", false, 0, fmt.Errorf("%w: rank %d outside [1, %d]", ErrBadShape, rank, MaxRank)
	}
	return descr, fortran, rank, nil
}

// reverseAxes converts a Fortran-ordered buffer to C order by reversing the
// bits of every index.
func reverseAxes(data []complex128, rank int) []complex128 {
	out := make([]complex128, len(data))
	shift := bits.UintSize - rank
	for i, v := range data {
		out[bits.Reverse(uint(i))>>shift] = v
	}
	return out
}
