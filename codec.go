package qlog

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Record layout inside a queue:
//
//	offset 0  : descriptor id (u32)
//	offset 4  : logger id     (u32)
//	offset 8  : timestamp     (u64, cycles or unix nanos)
//	offset 16 : arguments, each padded to its own alignment
//
// Every record starts at an offset aligned to headerAlign; the queues keep
// that invariant by rounding all committed and consumed sizes up to it.
const (
	headerSize  = 16
	headerAlign = 8
)

// alignUp rounds n up to the next multiple of align (a power of two)
//
//go:inline
func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

// argAlign returns the required alignment of an encoded argument
func argAlign(kind ArgKind) int {
	switch kind {
	case KindBool, KindInt8, KindUint8, KindString:
		return 1
	case KindInt16, KindUint16:
		return 2
	case KindInt32, KindUint32, KindFloat32, KindBytes:
		return 4
	default:
		return 8
	}
}

// recordSize precomputes the total byte count of a record, header included,
// and stashes each string-like argument's length (terminator included) in
// scratch. The same argument values must then be passed to encodeRecord.
func recordSize(args []Arg, scratch *[MaxArgs]int) int {
	pos := headerSize
	strIdx := 0
	for i := range args {
		a := &args[i]
		pos = alignUp(pos, argAlign(a.Kind))
		switch a.Kind {
		case KindString:
			n := len(a.str) + 1
			scratch[strIdx] = n
			strIdx++
			pos += n
		case KindBytes:
			pos += 4 + len(a.b)
		case KindBool, KindInt8, KindUint8:
			pos++
		case KindInt16, KindUint16:
			pos += 2
		case KindInt32, KindUint32, KindFloat32:
			pos += 4
		default:
			pos += 8
		}
	}
	return pos
}

// encodeRecord lays out the header and arguments into buf, which must hold
// at least the size returned by recordSize for the same arguments. Returns
// the number of bytes written.
func encodeRecord(buf []byte, descriptorID, loggerID uint32, timestamp uint64, args []Arg, scratch *[MaxArgs]int) int {
	binary.LittleEndian.PutUint32(buf[0:], descriptorID)
	binary.LittleEndian.PutUint32(buf[4:], loggerID)
	binary.LittleEndian.PutUint64(buf[8:], timestamp)

	pos := headerSize
	strIdx := 0
	for i := range args {
		a := &args[i]
		pos = alignUp(pos, argAlign(a.Kind))
		switch a.Kind {
		case KindString:
			n := scratch[strIdx]
			strIdx++
			copy(buf[pos:], a.str[:n-1])
			buf[pos+n-1] = 0
			pos += n
		case KindBytes:
			binary.LittleEndian.PutUint32(buf[pos:], uint32(len(a.b)))
			pos += 4
			copy(buf[pos:], a.b)
			pos += len(a.b)
		case KindBool, KindInt8, KindUint8:
			buf[pos] = byte(a.num)
			pos++
		case KindInt16, KindUint16:
			binary.LittleEndian.PutUint16(buf[pos:], uint16(a.num))
			pos += 2
		case KindInt32, KindUint32, KindFloat32:
			binary.LittleEndian.PutUint32(buf[pos:], uint32(a.num))
			pos += 4
		default:
			binary.LittleEndian.PutUint64(buf[pos:], a.num)
			pos += 8
		}
	}
	return pos
}

// readHeader decodes the fixed header at the start of a record
//
//go:inline
func readHeader(buf []byte) (descriptorID, loggerID uint32, timestamp uint64) {
	descriptorID = binary.LittleEndian.Uint32(buf[0:])
	loggerID = binary.LittleEndian.Uint32(buf[4:])
	timestamp = binary.LittleEndian.Uint64(buf[8:])
	return
}

// peekTimestamp reads the timestamp of the record at the start of buf
//
//go:inline
func peekTimestamp(buf []byte) uint64 {
	return binary.LittleEndian.Uint64(buf[8:])
}

// decodeArgs walks the argument bytes that follow a header according to the
// descriptor's kind tuple. String views point into in and are only valid
// until the queue region is released. Returns the bytes consumed.
func decodeArgs(in []byte, kinds []ArgKind, out *[MaxArgs]Arg) (int, error) {
	pos := headerSize
	for i, kind := range kinds {
		pos = alignUp(pos, argAlign(kind))
		a := &out[i]
		a.Kind = kind
		switch kind {
		case KindString:
			end := bytes.IndexByte(in[pos:], 0)
			if end < 0 {
				return 0, fmt.Errorf("qlog: unterminated string argument %d", i)
			}
			a.str = unsafeString(in[pos : pos+end])
			pos += end + 1
		case KindBytes:
			if pos+4 > len(in) {
				return 0, fmt.Errorf("qlog: truncated bytes argument %d", i)
			}
			n := int(binary.LittleEndian.Uint32(in[pos:]))
			pos += 4
			if pos+n > len(in) {
				return 0, fmt.Errorf("qlog: truncated bytes argument %d", i)
			}
			a.b = in[pos : pos+n]
			pos += n
		case KindBool, KindInt8, KindUint8:
			if pos+1 > len(in) {
				return 0, fmt.Errorf("qlog: truncated argument %d", i)
			}
			a.num = uint64(in[pos])
			pos++
		case KindInt16, KindUint16:
			if pos+2 > len(in) {
				return 0, fmt.Errorf("qlog: truncated argument %d", i)
			}
			a.num = uint64(binary.LittleEndian.Uint16(in[pos:]))
			pos += 2
		case KindInt32, KindUint32, KindFloat32:
			if pos+4 > len(in) {
				return 0, fmt.Errorf("qlog: truncated argument %d", i)
			}
			a.num = uint64(binary.LittleEndian.Uint32(in[pos:]))
			pos += 4
		default:
			if pos+8 > len(in) {
				return 0, fmt.Errorf("qlog: truncated argument %d", i)
			}
			a.num = binary.LittleEndian.Uint64(in[pos:])
			pos += 8
		}
	}
	return pos, nil
}

// appendFormat renders format into dst, substituting one argument per "{}"
// placeholder. "{{" and "}}" escape a literal brace. Placeholders past the
// last argument render literally; surplus arguments are ignored.
func appendFormat(dst []byte, format string, args []Arg) []byte {
	next := 0
	for i := 0; i < len(format); {
		c := format[i]
		if c == '}' && i+1 < len(format) && format[i+1] == '}' {
			dst = append(dst, '}')
			i += 2
			continue
		}
		if c == '{' && i+1 < len(format) {
			if format[i+1] == '{' {
				dst = append(dst, '{')
				i += 2
				continue
			}
			if format[i+1] == '}' && next < len(args) {
				dst = appendArg(dst, &args[next])
				next++
				i += 2
				continue
			}
		}
		dst = append(dst, c)
		i++
	}
	return dst
}

// appendArg renders a single decoded argument. Only durations allocate, as
// they are rendered through time.Duration.String.
func appendArg(dst []byte, a *Arg) []byte {
	switch a.Kind {
	case KindBool:
		return strconv.AppendBool(dst, a.num != 0)
	case KindInt8:
		return strconv.AppendInt(dst, int64(int8(a.num)), 10)
	case KindInt16:
		return strconv.AppendInt(dst, int64(int16(a.num)), 10)
	case KindInt32:
		return strconv.AppendInt(dst, int64(int32(a.num)), 10)
	case KindInt64:
		return strconv.AppendInt(dst, int64(a.num), 10)
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return strconv.AppendUint(dst, a.num, 10)
	case KindFloat32:
		return strconv.AppendFloat(dst, float64(math.Float32frombits(uint32(a.num))), 'g', -1, 32)
	case KindFloat64:
		return strconv.AppendFloat(dst, math.Float64frombits(a.num), 'g', -1, 64)
	case KindString:
		return append(dst, a.str...)
	case KindBytes:
		return appendHexBytes(dst, a.b)
	case KindTime:
		return time.Unix(0, int64(a.num)).UTC().AppendFormat(dst, time.RFC3339Nano)
	case KindDuration:
		return append(dst, time.Duration(a.num).String()...)
	default:
		return append(dst, '?')
	}
}

// appendHexBytes encodes bytes as lowercase hex
func appendHexBytes(dst, data []byte) []byte {
	const hex = "0123456789abcdef"
	for _, b := range data {
		dst = append(dst, hex[b>>4], hex[b&0xf])
	}
	return dst
}
