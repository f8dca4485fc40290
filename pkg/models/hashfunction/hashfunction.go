package hashfunction

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-faster/city"
	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"
)

type HashFunctionType int

/* Pre-defined hash functions */
const (
	HashFunctionIdent  = HashFunctionType(0)
	HashFunctionMurmur = HashFunctionType(1)
	HashFunctionCity   = HashFunctionType(2)
)

// Sharding column types.
const (
	ColumnTypeInteger  = "integer"
	ColumnTypeUinteger = "uinteger"
	ColumnTypeVarchar  = "varchar"
	ColumnTypeUUID     = "uuid"
)

var (
	errUnknownColumnType = func(ctype string, hf HashFunctionType) error {
		return fmt.Errorf("unknown column type '%s' for hash function '%s'", ctype, ToString(hf))
	}
	errUnknownValueType = func(v any, ctype string) error {
		return fmt.Errorf("value of type %T can not be used as sharding key of type '%s'", v, ctype)
	}
)

func EncodeUInt64(input uint64) []byte {
	const ENCODING_BYTES_BIG = binary.MaxVarintLen64
	const ENCODING_BYTES = 8
	const BOUND = 1 << 56 /* 72057594037927936 */

	sz := ENCODING_BYTES
	if input >= BOUND {
		sz = ENCODING_BYTES_BIG
	}

	buf := make([]byte, sz)
	binary.PutUvarint(buf, input)
	return buf
}

// NormalizeValue converts a sharding value as it comes from a statement
// (literal or bound parameter) into the canonical Go type of ctype:
// int64 for integer, uint64 for uinteger and string otherwise.
func NormalizeValue(input any, ctype string) (any, error) {
	switch ctype {
	case ColumnTypeInteger, "":
		switch v := input.(type) {
		case int64:
			return v, nil
		case int:
			return int64(v), nil
		case int32:
			return int64(v), nil
		case int16:
			return int64(v), nil
		case int8:
			return int64(v), nil
		case uint32:
			return int64(v), nil
		case uint64:
			return int64(v), nil
		case float64:
			// JSON numbers
			if v == math.Trunc(v) {
				return int64(v), nil
			}
		case string:
			return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		case []byte:
			return strconv.ParseInt(strings.TrimSpace(string(v)), 10, 64)
		}
	case ColumnTypeUinteger:
		switch v := input.(type) {
		case uint64:
			return v, nil
		case uint:
			return uint64(v), nil
		case uint32:
			return uint64(v), nil
		case int64:
			if v >= 0 {
				return uint64(v), nil
			}
		case int:
			if v >= 0 {
				return uint64(v), nil
			}
		case float64:
			if v >= 0 && v == math.Trunc(v) {
				return uint64(v), nil
			}
		case string:
			return strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		}
	case ColumnTypeVarchar, ColumnTypeUUID:
		switch v := input.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		}
	default:
		return nil, fmt.Errorf("unknown column type '%s'", ctype)
	}
	return nil, errUnknownValueType(input, ctype)
}

func ApplyMurmurHashFunction(input any, ctype string) (uint32, error) {
	switch ctype {
	case ColumnTypeInteger, "":
		if res, ok := input.(int64); ok {
			return murmur3.Sum32(EncodeUInt64(uint64(res))), nil
		}
	case ColumnTypeUinteger:
		if res, ok := input.(uint64); ok {
			return murmur3.Sum32(EncodeUInt64(res)), nil
		}
	case ColumnTypeVarchar, ColumnTypeUUID:
		if res, ok := input.(string); ok {
			return murmur3.Sum32([]byte(res)), nil
		}
	default:
		return 0, errUnknownColumnType(ctype, HashFunctionMurmur)
	}
	return 0, errUnknownValueType(input, ctype)
}

func ApplyCityHashFunction(input any, ctype string) (uint32, error) {
	switch ctype {
	case ColumnTypeInteger, "":
		if res, ok := input.(int64); ok {
			return city.Hash32(EncodeUInt64(uint64(res))), nil
		}
	case ColumnTypeUinteger:
		if res, ok := input.(uint64); ok {
			return city.Hash32(EncodeUInt64(res)), nil
		}
	case ColumnTypeVarchar, ColumnTypeUUID:
		if res, ok := input.(string); ok {
			return city.Hash32([]byte(res)), nil
		}
	default:
		return 0, errUnknownColumnType(ctype, HashFunctionCity)
	}
	return 0, errUnknownValueType(input, ctype)
}

// ApplyHashFunction normalizes input to ctype and hashes it with hf.
// The identity function returns the normalized value itself.
func ApplyHashFunction(input any, ctype string, hf HashFunctionType) (any, error) {
	v, err := NormalizeValue(input, ctype)
	if err != nil {
		return nil, err
	}

	switch hf {
	case HashFunctionIdent:
		if ctype == ColumnTypeUUID {
			if err := uuid.Validate(strings.ToLower(v.(string))); err != nil {
				return nil, err
			}
		}
		return v, nil
	case HashFunctionMurmur:
		h, err := ApplyMurmurHashFunction(v, ctype)
		return uint64(h), err
	case HashFunctionCity:
		h, err := ApplyCityHashFunction(v, ctype)
		return uint64(h), err
	default:
		return nil, fmt.Errorf("unknown hash function type: %d", hf)
	}
}

// Bucket maps input onto [0, count). Integer identity keys are taken
// modulo count directly, everything else goes through the hash value.
// Strings under the identity function are hashed with murmur, since a
// bucket needs a number.
func Bucket(input any, ctype string, hf HashFunctionType, count int) (int, error) {
	if count <= 0 {
		return 0, fmt.Errorf("bucket count must be positive, got %d", count)
	}
	h, err := ApplyHashFunction(input, ctype, hf)
	if err != nil {
		return 0, err
	}
	switch v := h.(type) {
	case int64:
		m := v % int64(count)
		if m < 0 {
			m += int64(count)
		}
		return int(m), nil
	case uint64:
		return int(v % uint64(count)), nil
	case string:
		return int(murmur3.Sum32([]byte(v)) % uint32(count)), nil
	}
	return 0, errUnknownValueType(h, ctype)
}

// HashFunctionByName returns the corresponding HashFunctionType based on the given hash function name.
// An empty name means identity.
func HashFunctionByName(hfn string) (HashFunctionType, error) {
	switch hfn {
	case "identity", "ident", "":
		return HashFunctionIdent, nil
	case "murmur":
		return HashFunctionMurmur, nil
	case "city":
		return HashFunctionCity, nil
	default:
		return 0, fmt.Errorf("unknown hash function type: %s", hfn)
	}
}

// ToString converts a HashFunctionType to its corresponding string representation.
// If the input HashFunctionType is not recognized, an empty string is returned.
func ToString(hf HashFunctionType) string {
	switch hf {
	case HashFunctionIdent:
		return "identity"
	case HashFunctionMurmur:
		return "murmur"
	case HashFunctionCity:
		return "city"
	}
	return ""
}
