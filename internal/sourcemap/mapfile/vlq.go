package mapfile

import (
	"errors"
	"fmt"
	"strings"
)

const (
	vlqBaseShift       = 5
	vlqBase            = 1 << vlqBaseShift
	vlqBaseMask        = vlqBase - 1
	vlqContinuationBit = vlqBase
)

const base64Chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

var base64Values [256]int8

func init() {
	for i := range base64Values {
		base64Values[i] = -1
	}
	for i := 0; i < len(base64Chars); i++ {
		base64Values[base64Chars[i]] = int8(i)
	}
}

// ErrInvalidMappings is returned when the mappings string is malformed.
var ErrInvalidMappings = errors.New("invalid mappings")

// segment is one decoded mapping. Lines and columns are 0-based. A
// segment with source < 0 maps generated text to no authored source.
type segment struct {
	genLine int
	genCol  int
	source  int
	srcLine int
	srcCol  int
	name    int
}

// decodeVLQ decodes one base64 VLQ value from s starting at pos and
// returns it with the position after it.
func decodeVLQ(s string, pos int) (int, int, error) {
	var (
		result int
		shift  uint
	)
	for {
		if pos >= len(s) {
			return 0, pos, fmt.Errorf("%w: truncated value", ErrInvalidMappings)
		}
		digit := base64Values[s[pos]]
		if digit < 0 {
			return 0, pos, fmt.Errorf("%w: bad character %q at %d", ErrInvalidMappings, s[pos], pos)
		}
		pos++

		result += int(digit&vlqBaseMask) << shift
		if digit&vlqContinuationBit == 0 {
			break
		}
		shift += vlqBaseShift
		if shift > 31 {
			return 0, pos, fmt.Errorf("%w: value overflows", ErrInvalidMappings)
		}
	}

	negative := result&1 == 1
	result >>= 1
	if negative {
		result = -result
	}
	return result, pos, nil
}

// decodeMappings expands a v3 mappings string into absolute segments in
// generated order.
func decodeMappings(mappings string, numSources int) ([]segment, error) {
	var (
		out                           []segment
		source, srcLine, srcCol, name int
	)

	for genLine, line := range strings.Split(mappings, ";") {
		genCol := 0
		for _, group := range strings.Split(line, ",") {
			if group == "" {
				continue
			}

			var fields [5]int
			n := 0
			for pos := 0; pos < len(group); {
				if n == len(fields) {
					return nil, fmt.Errorf("%w: too many fields in segment %q", ErrInvalidMappings, group)
				}
				v, next, err := decodeVLQ(group, pos)
				if err != nil {
					return nil, err
				}
				fields[n] = v
				n++
				pos = next
			}

			genCol += fields[0]
			seg := segment{genLine: genLine, genCol: genCol, source: -1, name: -1}

			switch n {
			case 1:
			case 4, 5:
				source += fields[1]
				srcLine += fields[2]
				srcCol += fields[3]
				if source < 0 || source >= numSources {
					return nil, fmt.Errorf("%w: source index %d out of range", ErrInvalidMappings, source)
				}
				seg.source, seg.srcLine, seg.srcCol = source, srcLine, srcCol
				if n == 5 {
					name += fields[4]
					seg.name = name
				}
			default:
				return nil, fmt.Errorf("%w: segment %q has %d fields", ErrInvalidMappings, group, n)
			}

			if genCol < 0 || (seg.source >= 0 && (seg.srcLine < 0 || seg.srcCol < 0)) {
				return nil, fmt.Errorf("%w: negative position in segment %q", ErrInvalidMappings, group)
			}
			out = append(out, seg)
		}
	}
	return out, nil
}
