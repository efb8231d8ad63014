package wasm

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Names holds debug names recovered from a module's "name" custom section.
type Names struct {
	Module string
	Funcs  map[uint32]string
}

// FuncName returns the recorded name of a function index, or "".
func (n *Names) FuncName(idx uint32) string {
	return n.Funcs[idx]
}

// Scanning errors returned by DecodeNames.
var (
	ErrInvalidMagic   = errors.New("invalid wasm magic number")
	ErrInvalidVersion = errors.New("invalid wasm version")
)

// DecodeNames scans a binary module for the "name" custom section and
// decodes the module name and function name subsections. Non-custom
// sections are skipped undecoded. Custom section payloads are best
// effort: a malformed one ends the scan with whatever was recovered,
// matching how the format treats custom sections, but a truncated or
// misordered outer structure is an error.
func DecodeNames(bin []byte) (Names, error) {
	var names Names
	r := bytes.NewReader(bin)

	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return names, fmt.Errorf("header: %w", err)
	}
	if !bytes.Equal(header[:4], Header[:4]) {
		return names, ErrInvalidMagic
	}
	if !bytes.Equal(header[4:], Header[4:]) {
		return names, ErrInvalidVersion
	}

	for {
		id, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return names, nil
			}
			return names, fmt.Errorf("section header: %w", err)
		}
		size, err := ReadLEB128u(r)
		if err != nil {
			return names, fmt.Errorf("section size: %w", err)
		}
		if int64(size) > int64(r.Len()) {
			return names, fmt.Errorf("section %d: size %d exceeds remaining %d bytes", id, size, r.Len())
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			return names, fmt.Errorf("section %d: %w", id, err)
		}
		if id != SectionCustom {
			continue
		}

		pr := bytes.NewReader(payload)
		secName, ok := readName(pr)
		if !ok {
			continue
		}
		if secName == "name" {
			decodeNameSubsections(pr, &names)
		}
	}
}

func decodeNameSubsections(r *bytes.Reader, names *Names) {
	for {
		id, err := r.ReadByte()
		if err != nil {
			return
		}
		size, err := ReadLEB128u(r)
		if err != nil || int64(size) > int64(r.Len()) {
			return
		}
		sub := make([]byte, size)
		if _, err := io.ReadFull(r, sub); err != nil {
			return
		}

		switch id {
		case NameSubsectionModule:
			if s, ok := readName(bytes.NewReader(sub)); ok {
				names.Module = s
			}
		case NameSubsectionFunction:
			decodeFuncNames(bytes.NewReader(sub), names)
		}
	}
}

func decodeFuncNames(r *bytes.Reader, names *Names) {
	count, err := ReadLEB128u(r)
	if err != nil {
		return
	}
	for i := uint32(0); i < count; i++ {
		idx, err := ReadLEB128u(r)
		if err != nil {
			return
		}
		s, ok := readName(r)
		if !ok {
			return
		}
		if names.Funcs == nil {
			names.Funcs = make(map[uint32]string)
		}
		names.Funcs[idx] = s
	}
}

func readName(r *bytes.Reader) (string, bool) {
	n, err := ReadLEB128u(r)
	if err != nil || int64(n) > int64(r.Len()) {
		return "", false
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", false
	}
	return string(buf), true
}
