package textpack

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/flate"
	"github.com/seiflotfy/textpack/bitpack"
	"github.com/seiflotfy/textpack/grammar"
)

const (
	archiveMagic   = "TXPK"
	archiveVersion = uint16(1)

	stageLabels     = "labels"
	stageFrames     = "frames"
	stageCodeTable  = "code_table"
	stageDictionary = "dictionary"

	stageFramesParamRaw   = uint8(1) // frames concatenated, each led by its length byte
	stageFramesParamFlate = uint8(2) // flate(raw)

	maxArchiveStages     = 16
	maxStagePayloadBytes = 64 << 20 // 64 MiB
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("textpack: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Wire format (version 1):
//
//	magic[4] = "TXPK"
//	version  = uint16 little-endian
//	stageCnt = uint16 little-endian
//	repeat stageCnt times:
//	  nameLen  = uint8
//	  paramLen = uint16 little-endian
//	  dataLen  = uint32 little-endian
//	  name     = nameLen bytes
//	  params   = paramLen bytes
//	  payload  = dataLen bytes
//
// Required stage names:
//
//	labels, frames, code_table, dictionary
//
// Unknown stages are skipped via dataLen framing.
type wireStageHeader struct {
	name     string
	paramLen uint16
	dataLen  uint32
}

func writeBytes(w io.Writer, b []byte) (int64, error) {
	n, err := w.Write(b)
	if err != nil {
		return int64(n), err
	}
	if n != len(b) {
		return int64(n), io.ErrShortWrite
	}
	return int64(n), nil
}

func writeStage(w io.Writer, name string, params []byte, payload []byte) (int64, error) {
	if len(name) == 0 || len(name) > 255 {
		return 0, fmt.Errorf("invalid stage name length: %d", len(name))
	}
	if len(params) > int(^uint16(0)) {
		return 0, fmt.Errorf("stage params too large for %q: %d", name, len(params))
	}
	if len(payload) > maxStagePayloadBytes {
		return 0, fmt.Errorf("stage payload too large for %q: %d", name, len(payload))
	}

	var hdr [7]byte
	hdr[0] = uint8(len(name))
	binary.LittleEndian.PutUint16(hdr[1:3], uint16(len(params)))
	binary.LittleEndian.PutUint32(hdr[3:7], uint32(len(payload)))

	var total int64
	for _, part := range [][]byte{hdr[:], []byte(name), params, payload} {
		n, err := writeBytes(w, part)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func readStageHeader(r io.Reader) (wireStageHeader, int64, error) {
	var hdr [7]byte
	n, err := io.ReadFull(r, hdr[:])
	total := int64(n)
	if err != nil {
		return wireStageHeader{}, total, err
	}
	nameLen := hdr[0]
	if nameLen == 0 {
		return wireStageHeader{}, total, fmt.Errorf("stage name length must be > 0")
	}
	dataLen := binary.LittleEndian.Uint32(hdr[3:7])
	if dataLen > uint32(maxStagePayloadBytes) {
		return wireStageHeader{}, total, fmt.Errorf("stage payload too large: %d", dataLen)
	}

	nameBytes := make([]byte, int(nameLen))
	n, err = io.ReadFull(r, nameBytes)
	total += int64(n)
	if err != nil {
		return wireStageHeader{}, total, err
	}

	return wireStageHeader{
		name:     string(nameBytes),
		paramLen: binary.LittleEndian.Uint16(hdr[1:3]),
		dataLen:  dataLen,
	}, total, nil
}

// Archive holds the framed entries together with everything needed to
// decode them again.
type Archive struct {
	Labels     []string            // Entry labels, in emission order
	Frames     [][]byte            // One length-framed bit stream per entry
	CodeTable  *CodeTable          // Short codes for frequent literals
	Dictionary *grammar.Dictionary // Token runs
	TokenLimit int                 // Exclusive bound on token ids used
	BitOrder   bitpack.Order       // Bit order within frame bytes
}

// Rows returns the number of entries in this archive.
func (a *Archive) Rows() int {
	return len(a.Frames)
}

// Index returns the row of the entry with the given label.
func (a *Archive) Index(label string) (int, bool) {
	for i, l := range a.Labels {
		if l == label {
			return i, true
		}
	}
	return 0, false
}

// Frame returns the framed bytes of one entry: length byte then payload.
func (a *Archive) Frame(index int) ([]byte, error) {
	if index < 0 || index >= a.Rows() {
		return nil, fmt.Errorf("index out of bounds: %d", index)
	}
	return a.Frames[index], nil
}

// Symbols decodes one entry to its tokenized symbol sequence.
func (a *Archive) Symbols(index int) ([]byte, error) {
	frame, err := a.Frame(index)
	if err != nil {
		return nil, err
	}
	symbols, err := decodeSymbols(a.CodeTable, frame, a.BitOrder)
	if err != nil {
		return nil, fmt.Errorf("row %d: %w", index, err)
	}
	return symbols, nil
}

// AppendRow appends the decoded bytes of one entry to dst.
func (a *Archive) AppendRow(dst []byte, index int) ([]byte, error) {
	symbols, err := a.Symbols(index)
	if err != nil {
		return dst, err
	}
	dst, err = a.Dictionary.Expand(dst, symbols)
	if err != nil {
		return dst, fmt.Errorf("row %d: %w", index, err)
	}
	return dst, nil
}

// AppendAll appends all decoded entries to dst, back to back.
func (a *Archive) AppendAll(dst []byte) ([]byte, error) {
	for i := range a.Frames {
		var err error
		dst, err = a.AppendRow(dst, i)
		if err != nil {
			return dst, err
		}
	}
	return dst, nil
}

// DecompressString decodes one entry into buffer and returns its length.
func (a *Archive) DecompressString(index int, buffer []byte) (int, error) {
	row, err := a.AppendRow(nil, index)
	if err != nil {
		return 0, err
	}
	if len(row) > len(buffer) {
		return 0, fmt.Errorf("%w at row %d: need %d bytes, have %d", ErrShortBuffer, index, len(row), len(buffer))
	}
	return copy(buffer, row), nil
}

// TokenFrames encodes every token run with the archive's code table, in
// token id order, so a decoder can rebuild the dictionary.
func (a *Archive) TokenFrames() ([][]byte, error) {
	rules := a.Dictionary.Rules()
	frames := make([][]byte, len(rules))
	for i, r := range rules {
		frame, err := encodeSymbols(a.CodeTable, r.Run, a.TokenLimit, a.BitOrder)
		if err != nil {
			return nil, fmt.Errorf("token %d: %w", r.ID, err)
		}
		frames[i] = frame
	}
	return frames, nil
}

// FramedSize returns the total size of all entry frames, headers included.
func (a *Archive) FramedSize() int {
	n := 0
	for _, f := range a.Frames {
		n += len(f)
	}
	return n
}

// SpaceUsed returns the bytes a decoder needs: entry frames, token frames
// and one byte per code table literal.
func (a *Archive) SpaceUsed() int {
	n := a.FramedSize() + a.CodeTable.Len()
	if frames, err := a.TokenFrames(); err == nil {
		for _, f := range frames {
			n += len(f)
		}
	}
	return n
}

func encodeLabelsStage(a *Archive) ([]byte, error) {
	return cborEncMode.Marshal(a.Labels)
}

func encodeFramesStage(a *Archive) ([]byte, uint8, error) {
	var buf bytes.Buffer
	var count [4]byte
	binary.LittleEndian.PutUint32(count[:], uint32(len(a.Frames)))
	buf.Write(count[:])
	for _, f := range a.Frames {
		buf.Write(f)
	}
	raw := buf.Bytes()
	if len(raw) > maxStagePayloadBytes {
		return nil, 0, fmt.Errorf("frames too large: %d", len(raw))
	}

	compressed, err := encodeFlatePayload(raw)
	if err != nil {
		return nil, 0, err
	}
	if len(compressed) < len(raw) {
		return compressed, stageFramesParamFlate, nil
	}
	return raw, stageFramesParamRaw, nil
}

func encodeFlatePayload(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeFlatePayload(payload []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(payload))
	defer r.Close()

	limited := io.LimitReader(r, maxStagePayloadBytes+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if len(raw) > maxStagePayloadBytes {
		return nil, fmt.Errorf("flate payload expands beyond limit")
	}
	return raw, nil
}

func encodeCodeTableStage(a *Archive) []byte {
	entries := a.CodeTable.Entries()
	payload := make([]byte, 0, 1+len(entries)*5)
	payload = append(payload, uint8(len(entries)))
	for _, e := range entries {
		payload = append(payload, e.Literal)
		payload = binary.LittleEndian.AppendUint32(payload, uint32(e.Count))
	}
	return payload
}

// The dictionary stage stores every run back to back followed by varint
// run lengths.
func encodeDictionaryStage(a *Archive) []byte {
	rules := a.Dictionary.Rules()
	var runs []byte
	lengths := make([]byte, 0, len(rules))
	for _, r := range rules {
		runs = append(runs, r.Run...)
		lengths = binary.AppendUvarint(lengths, uint64(len(r.Run)))
	}

	payload := make([]byte, 0, 8+len(runs)+len(lengths))
	payload = binary.LittleEndian.AppendUint32(payload, uint32(len(rules)))
	payload = binary.LittleEndian.AppendUint32(payload, uint32(len(runs)))
	payload = append(payload, runs...)
	return append(payload, lengths...)
}

func decodeLabelsStage(dst *Archive, params []byte, payload []byte) error {
	if len(params) != 0 {
		return fmt.Errorf("invalid labels params: %v", params)
	}
	var labels []string
	if err := cbor.Unmarshal(payload, &labels); err != nil {
		return fmt.Errorf("unmarshal labels: %w", err)
	}
	dst.Labels = labels
	return nil
}

func decodeFramesStage(dst *Archive, params []byte, payload []byte) error {
	if len(params) != 2 {
		return fmt.Errorf("invalid frames params: %v", params)
	}
	raw := payload
	switch params[0] {
	case stageFramesParamRaw:
	case stageFramesParamFlate:
		var err error
		if raw, err = decodeFlatePayload(payload); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid frames params: %v", params)
	}
	switch order := bitpack.Order(params[1]); order {
	case bitpack.MSBFirst, bitpack.LSBFirst:
		dst.BitOrder = order
	default:
		return fmt.Errorf("invalid bit order: %d", params[1])
	}

	if len(raw) < 4 {
		return fmt.Errorf("frames payload too short: %d", len(raw))
	}
	count := binary.LittleEndian.Uint32(raw[:4])
	if uint64(count) > uint64(len(raw)-4) {
		return fmt.Errorf("frame count too large: %d", count)
	}
	raw = raw[4:]

	frames := make([][]byte, count)
	for i := range frames {
		if len(raw) == 0 {
			return fmt.Errorf("frames truncated at row %d", i)
		}
		n := int(raw[0])
		if n == 0 || n > len(raw) {
			return fmt.Errorf("invalid frame length %d at row %d", n, i)
		}
		frames[i] = append([]byte(nil), raw[:n]...)
		raw = raw[n:]
	}
	if len(raw) != 0 {
		return fmt.Errorf("frames trailing bytes: %d", len(raw))
	}
	dst.Frames = frames
	return nil
}

func decodeCodeTableStage(dst *Archive, params []byte, payload []byte) error {
	if len(params) != 0 {
		return fmt.Errorf("invalid code_table params: %v", params)
	}
	if len(payload) < 1 {
		return fmt.Errorf("code_table payload too short: %d", len(payload))
	}
	n := int(payload[0])
	if len(payload) != 1+n*5 {
		return fmt.Errorf("code_table length mismatch: payload=%d expected=%d", len(payload), 1+n*5)
	}
	entries := make([]CodeEntry, n)
	for i := range entries {
		off := 1 + i*5
		entries[i] = CodeEntry{
			Literal: payload[off],
			Count:   int(binary.LittleEndian.Uint32(payload[off+1 : off+5])),
			Code:    uint8(i),
		}
	}
	table, err := NewCodeTable(entries)
	if err != nil {
		return err
	}
	dst.CodeTable = table
	return nil
}

func decodeDictionaryStage(dst *Archive, params []byte, payload []byte) error {
	if len(params) != 1 {
		return fmt.Errorf("invalid dictionary params: %v", params)
	}
	limit := int(params[0])
	if limit < grammar.FirstToken || limit > grammar.MaxTokenLimit {
		return fmt.Errorf("invalid token limit: %d", limit)
	}
	if len(payload) < 8 {
		return fmt.Errorf("dictionary payload too short: %d", len(payload))
	}
	count := binary.LittleEndian.Uint32(payload[0:4])
	runsLen := binary.LittleEndian.Uint32(payload[4:8])
	if count > uint32(limit-grammar.FirstToken) {
		return fmt.Errorf("dictionary holds %d tokens, limit %d", count, limit)
	}
	if uint64(runsLen) > uint64(len(payload)-8) {
		return fmt.Errorf("dictionary runs length %d exceeds payload", runsLen)
	}
	runs := payload[8 : 8+runsLen]
	lengths := payload[8+runsLen:]

	out := make([][]byte, count)
	offset := 0
	for i := range out {
		n, k := binary.Uvarint(lengths)
		if k <= 0 {
			return fmt.Errorf("invalid run length at token %d", grammar.FirstToken+i)
		}
		lengths = lengths[k:]
		if n > uint64(len(runs)-offset) {
			return fmt.Errorf("run length %d out of range at token %d", n, grammar.FirstToken+i)
		}
		out[i] = runs[offset : offset+int(n)]
		offset += int(n)
	}
	if offset != len(runs) || len(lengths) != 0 {
		return fmt.Errorf("dictionary trailing bytes")
	}

	dict, err := grammar.NewDictionary(limit, out)
	if err != nil {
		return err
	}
	dst.Dictionary = dict
	dst.TokenLimit = limit
	return nil
}

func validateArchiveStructure(a *Archive) error {
	if a.CodeTable == nil {
		return fmt.Errorf("missing code table")
	}
	if a.Dictionary == nil {
		return fmt.Errorf("missing dictionary")
	}
	if len(a.Labels) != len(a.Frames) {
		return fmt.Errorf("label count %d does not match frame count %d", len(a.Labels), len(a.Frames))
	}
	if a.TokenLimit < grammar.FirstToken || a.TokenLimit > grammar.MaxTokenLimit {
		return fmt.Errorf("invalid token limit: %d", a.TokenLimit)
	}
	if a.Dictionary.Limit() > a.TokenLimit {
		return fmt.Errorf("dictionary limit %d above archive limit %d", a.Dictionary.Limit(), a.TokenLimit)
	}
	if err := a.Dictionary.Validate(); err != nil {
		return err
	}
	for i, f := range a.Frames {
		if _, err := bitpack.Unframe(f); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	return nil
}

// WriteTo serializes the Archive to an io.Writer.
func (a *Archive) WriteTo(w io.Writer) (int64, error) {
	if err := validateArchiveStructure(a); err != nil {
		return 0, fmt.Errorf("invalid archive: %w", err)
	}

	labelsPayload, err := encodeLabelsStage(a)
	if err != nil {
		return 0, err
	}
	framesPayload, framesParam, err := encodeFramesStage(a)
	if err != nil {
		return 0, err
	}

	stages := []struct {
		name    string
		params  []byte
		payload []byte
	}{
		{
			name:    stageLabels,
			payload: labelsPayload,
		},
		{
			name:    stageFrames,
			params:  []byte{framesParam, uint8(a.BitOrder)},
			payload: framesPayload,
		},
		{
			name:    stageCodeTable,
			payload: encodeCodeTableStage(a),
		},
		{
			name:    stageDictionary,
			params:  []byte{uint8(a.TokenLimit)},
			payload: encodeDictionaryStage(a),
		},
	}

	var head [8]byte
	copy(head[:4], archiveMagic)
	binary.LittleEndian.PutUint16(head[4:6], archiveVersion)
	binary.LittleEndian.PutUint16(head[6:8], uint16(len(stages)))
	total, err := writeBytes(w, head[:])
	if err != nil {
		return total, err
	}

	for _, stage := range stages {
		n, err := writeStage(w, stage.name, stage.params, stage.payload)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// ReadFrom deserializes an Archive from an io.Reader.
func (a *Archive) ReadFrom(r io.Reader) (int64, error) {
	var head [8]byte
	n, err := io.ReadFull(r, head[:])
	total := int64(n)
	if err != nil {
		return total, fmt.Errorf("read archive header: %w", err)
	}
	if string(head[:4]) != archiveMagic {
		return total, fmt.Errorf("invalid archive magic: %q", string(head[:4]))
	}
	if version := binary.LittleEndian.Uint16(head[4:6]); version != archiveVersion {
		return total, fmt.Errorf("unsupported archive version: %d", version)
	}
	stageCount := binary.LittleEndian.Uint16(head[6:8])
	if stageCount == 0 || stageCount > maxArchiveStages {
		return total, fmt.Errorf("invalid stage count: %d", stageCount)
	}

	var tmp Archive
	seenStages := make(map[string]bool, stageCount)
	decoders := map[string]func(*Archive, []byte, []byte) error{
		stageLabels:     decodeLabelsStage,
		stageFrames:     decodeFramesStage,
		stageCodeTable:  decodeCodeTableStage,
		stageDictionary: decodeDictionaryStage,
	}

	for i := 0; i < int(stageCount); i++ {
		headerOffset := total
		header, n, err := readStageHeader(r)
		total += n
		if err != nil {
			return total, fmt.Errorf("read stage header at offset %d (stage index %d): %w", headerOffset, i, err)
		}
		if seenStages[header.name] {
			return total, fmt.Errorf("duplicate stage %q at stage index %d", header.name, i)
		}

		params := make([]byte, int(header.paramLen))
		nParams, err := io.ReadFull(r, params)
		total += int64(nParams)
		if err != nil {
			return total, fmt.Errorf("read stage %q params (stage index %d): %w", header.name, i, err)
		}

		decode, known := decoders[header.name]
		if !known {
			skipped, err := io.CopyN(io.Discard, r, int64(header.dataLen))
			total += skipped
			if err != nil {
				return total, fmt.Errorf("skip unknown stage %q (stage index %d): %w", header.name, i, err)
			}
			continue
		}

		payloadOffset := total
		payload := make([]byte, int(header.dataLen))
		nPayload, err := io.ReadFull(r, payload)
		total += int64(nPayload)
		if err != nil {
			return total, fmt.Errorf("read stage %q payload at offset %d (stage index %d): %w", header.name, payloadOffset, i, err)
		}
		if err := decode(&tmp, params, payload); err != nil {
			return total, fmt.Errorf("decode stage %q at offset %d (stage index %d): %w", header.name, payloadOffset, i, err)
		}
		seenStages[header.name] = true
	}

	for _, stageName := range []string{stageLabels, stageFrames, stageCodeTable, stageDictionary} {
		if !seenStages[stageName] {
			return total, fmt.Errorf("missing required stage %q", stageName)
		}
	}
	if err := validateArchiveStructure(&tmp); err != nil {
		return total, fmt.Errorf("invalid archive structure: %w", err)
	}

	*a = tmp
	return total, nil
}
