// Package blockcodec implements the signed-block wire format:
// block_header || producer_signature || transaction_receipts[] || block_extensions[],
// with LEB128 lengths and little-endian fixed-width integers throughout.
package blockcodec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/ledgerd-io/ledgerd/chaintypes"
)

var (
	ErrTruncated      = errors.New("blockcodec: truncated input")
	ErrUnknownReceipt = errors.New("blockcodec: unknown transaction receipt discriminant")
)

// receipt discriminants for the {packed_trx | trx_id} variant.
const (
	discPackedTrx byte = 0
	discRefTrx    byte = 1
)

// Signed is a fully assembled, signed block ready for the wire or the block log.
type Signed struct {
	Header          chaintypes.BlockHeader
	Signatures      [][]byte
	Receipts        []chaintypes.TransactionReceipt
	BlockExtensions []chaintypes.Extension
}

// Encode serializes blk in exact field order.
func Encode(blk Signed) []byte {
	var buf bytes.Buffer
	encodeHeader(&buf, blk.Header)
	encodeSignatures(&buf, blk.Signatures)
	encodeReceipts(&buf, blk.Receipts)
	encodeExtensions(&buf, blk.BlockExtensions)
	return buf.Bytes()
}

// Decode parses a Signed block from b, erroring on truncation rather than panicking.
func Decode(b []byte) (Signed, error) {
	r := bytes.NewReader(b)
	var blk Signed
	var err error
	if blk.Header, err = decodeHeader(r); err != nil {
		return Signed{}, fmt.Errorf("blockcodec: header: %w", err)
	}
	if blk.Signatures, err = decodeSignatures(r); err != nil {
		return Signed{}, fmt.Errorf("blockcodec: signatures: %w", err)
	}
	if blk.Receipts, err = decodeReceipts(r); err != nil {
		return Signed{}, fmt.Errorf("blockcodec: receipts: %w", err)
	}
	if blk.BlockExtensions, err = decodeExtensions(r); err != nil {
		return Signed{}, fmt.Errorf("blockcodec: block extensions: %w", err)
	}
	return blk, nil
}

func encodeHeader(buf *bytes.Buffer, h chaintypes.BlockHeader) {
	writeU32(buf, uint32(h.Timestamp))
	writeU64(buf, uint64(h.Producer))
	writeU16(buf, h.Confirmed)
	buf.Write(h.Previous[:])
	buf.Write(h.TransactionMRoot[:])
	buf.Write(h.ActionMRoot[:])
	writeU32(buf, h.ScheduleVersion)
	if h.NewProducers == nil {
		buf.WriteByte(0)
	} else {
		buf.WriteByte(1)
		writeU32(buf, h.NewProducers.Version)
		writeLEB128(buf, uint64(len(h.NewProducers.Producers)))
		for _, p := range h.NewProducers.Producers {
			writeU64(buf, uint64(p))
		}
	}
	encodeExtensions(buf, h.HeaderExtensions)
}

func decodeHeader(r *bytes.Reader) (chaintypes.BlockHeader, error) {
	var h chaintypes.BlockHeader
	ts, err := readU32(r)
	if err != nil {
		return h, err
	}
	h.Timestamp = chaintypes.BlockTimestamp(ts)

	producer, err := readU64(r)
	if err != nil {
		return h, err
	}
	h.Producer = chaintypes.AccountName(producer)

	confirmed, err := readU16(r)
	if err != nil {
		return h, err
	}
	h.Confirmed = confirmed

	if _, err := io.ReadFull(r, h.Previous[:]); err != nil {
		return h, ErrTruncated
	}
	if _, err := io.ReadFull(r, h.TransactionMRoot[:]); err != nil {
		return h, ErrTruncated
	}
	if _, err := io.ReadFull(r, h.ActionMRoot[:]); err != nil {
		return h, ErrTruncated
	}
	if h.ScheduleVersion, err = readU32(r); err != nil {
		return h, err
	}

	hasNewProducers, err := r.ReadByte()
	if err != nil {
		return h, ErrTruncated
	}
	if hasNewProducers == 1 {
		version, err := readU32(r)
		if err != nil {
			return h, err
		}
		n, err := readLEB128(r)
		if err != nil {
			return h, err
		}
		producers := make([]chaintypes.AccountName, n)
		for i := range producers {
			p, err := readU64(r)
			if err != nil {
				return h, err
			}
			producers[i] = chaintypes.AccountName(p)
		}
		h.NewProducers = &chaintypes.ProducerScheduleChange{Version: version, Producers: producers}
	}

	if h.HeaderExtensions, err = decodeExtensions(r); err != nil {
		return h, err
	}
	return h, nil
}

func encodeSignatures(buf *bytes.Buffer, sigs [][]byte) {
	writeLEB128(buf, uint64(len(sigs)))
	for _, s := range sigs {
		writeLEB128(buf, uint64(len(s)))
		buf.Write(s)
	}
}

func decodeSignatures(r *bytes.Reader) ([][]byte, error) {
	n, err := readLEB128(r)
	if err != nil {
		return nil, err
	}
	sigs := make([][]byte, n)
	for i := range sigs {
		if sigs[i], err = readBytes(r); err != nil {
			return nil, err
		}
	}
	return sigs, nil
}

func encodeReceipts(buf *bytes.Buffer, receipts []chaintypes.TransactionReceipt) {
	writeLEB128(buf, uint64(len(receipts)))
	for _, rcpt := range receipts {
		encodeReceipt(buf, rcpt)
	}
}

func encodeReceipt(buf *bytes.Buffer, rcpt chaintypes.TransactionReceipt) {
	buf.WriteByte(byte(rcpt.Status))
	writeU32(buf, rcpt.CPUUsageUS)
	writeU32(buf, rcpt.NetUsageWords)
	rcpt.Trx.Match(
		func(packed []byte) {
			buf.WriteByte(discPackedTrx)
			writeLEB128(buf, uint64(len(packed)))
			buf.Write(packed)
		},
		func(id [32]byte) {
			buf.WriteByte(discRefTrx)
			buf.Write(id[:])
		},
	)
}

func decodeReceipts(r *bytes.Reader) ([]chaintypes.TransactionReceipt, error) {
	n, err := readLEB128(r)
	if err != nil {
		return nil, err
	}
	out := make([]chaintypes.TransactionReceipt, n)
	for i := range out {
		statusByte, err := r.ReadByte()
		if err != nil {
			return nil, ErrTruncated
		}
		out[i].Status = chaintypes.ReceiptStatus(statusByte)
		if out[i].CPUUsageUS, err = readU32(r); err != nil {
			return nil, err
		}
		if out[i].NetUsageWords, err = readU32(r); err != nil {
			return nil, err
		}
		disc, err := r.ReadByte()
		if err != nil {
			return nil, ErrTruncated
		}
		switch disc {
		case discPackedTrx:
			packed, err := readBytes(r)
			if err != nil {
				return nil, err
			}
			out[i].Trx = chaintypes.PackedTrx(packed)
		case discRefTrx:
			var id [32]byte
			if _, err := io.ReadFull(r, id[:]); err != nil {
				return nil, ErrTruncated
			}
			out[i].Trx = chaintypes.RefTrx(id)
		default:
			return nil, fmt.Errorf("%w: %d", ErrUnknownReceipt, disc)
		}
	}
	return out, nil
}

func encodeExtensions(buf *bytes.Buffer, exts []chaintypes.Extension) {
	writeLEB128(buf, uint64(len(exts)))
	for _, e := range exts {
		writeU16(buf, e.ID)
		writeLEB128(buf, uint64(len(e.Data)))
		buf.Write(e.Data)
	}
}

func decodeExtensions(r *bytes.Reader) ([]chaintypes.Extension, error) {
	n, err := readLEB128(r)
	if err != nil {
		return nil, err
	}
	out := make([]chaintypes.Extension, n)
	for i := range out {
		id, err := readU16(r)
		if err != nil {
			return nil, err
		}
		data, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		out[i] = chaintypes.Extension{ID: id, Data: data}
	}
	return out, nil
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readLEB128(r)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, ErrTruncated
	}
	return out, nil
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func readU16(r *bytes.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, ErrTruncated
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func readU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, ErrTruncated
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readU64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, ErrTruncated
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// writeLEB128 encodes v as unsigned LEB128.
func writeLEB128(buf *bytes.Buffer, v uint64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		buf.WriteByte(b)
		if v == 0 {
			return
		}
	}
}

func readLEB128(r *bytes.Reader) (uint64, error) {
	var v uint64
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, ErrTruncated
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, nil
		}
		shift += 7
		if shift >= 64 {
			return 0, fmt.Errorf("blockcodec: LEB128 value too large")
		}
	}
}
