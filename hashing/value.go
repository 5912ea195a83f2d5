// Package hashing turns a DynamoDB attribute value into the canonical
// byte form the server uses for partition placement, and hashes it.
package hashing

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/scylladb/alternator-go-client/internal/clienterrors"
)

// Type-prefix bytes. Every value, normative across languages: change
// one and every client that has to agree with the server on partition
// placement breaks.
const (
	prefixString    byte = 0x01
	prefixNumber    byte = 0x02
	prefixBinary    byte = 0x03
	prefixBool      byte = 0x04
	prefixNull      byte = 0x05
	prefixStringSet byte = 0x06
	prefixNumberSet byte = 0x07
	prefixBinarySet byte = 0x08
	prefixList      byte = 0x09
	prefixMap       byte = 0x0A
)

// ToBytes serializes v into the canonical byte form described in the
// attribute-hashing design: a one-byte type tag followed by a payload
// whose shape depends on the tag. Sets are sorted so hash(v) does not
// depend on iteration order; lists and map values carry length
// prefixes so ["a","bc"] and ["ab","c"] never collide.
func ToBytes(v types.AttributeValue) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeValue(buf *bytes.Buffer, v types.AttributeValue) error {
	switch tv := v.(type) {
	case *types.AttributeValueMemberS:
		buf.WriteByte(prefixString)
		buf.WriteString(tv.Value)
		return nil

	case *types.AttributeValueMemberN:
		buf.WriteByte(prefixNumber)
		buf.WriteString(tv.Value)
		return nil

	case *types.AttributeValueMemberB:
		buf.WriteByte(prefixBinary)
		buf.Write(tv.Value)
		return nil

	case *types.AttributeValueMemberBOOL:
		buf.WriteByte(prefixBool)
		if tv.Value {
			buf.WriteByte(0x01)
		} else {
			buf.WriteByte(0x00)
		}
		return nil

	case *types.AttributeValueMemberNULL:
		if !tv.Value {
			return clienterrors.InvalidArgument("hashing: Null(false) is not a valid attribute value")
		}
		buf.WriteByte(prefixNull)
		buf.WriteByte(0x01)
		return nil

	case *types.AttributeValueMemberSS:
		elems := append([]string(nil), tv.Value...)
		sort.Strings(elems)
		buf.WriteByte(prefixStringSet)
		for _, e := range elems {
			writeLengthPrefixed(buf, []byte(e))
		}
		return nil

	case *types.AttributeValueMemberNS:
		elems := append([]string(nil), tv.Value...)
		sort.Strings(elems)
		buf.WriteByte(prefixNumberSet)
		for _, e := range elems {
			writeLengthPrefixed(buf, []byte(e))
		}
		return nil

	case *types.AttributeValueMemberBS:
		elems := append([][]byte(nil), tv.Value...)
		sort.Slice(elems, func(i, j int) bool { return bytes.Compare(elems[i], elems[j]) < 0 })
		buf.WriteByte(prefixBinarySet)
		for _, e := range elems {
			writeLengthPrefixed(buf, e)
		}
		return nil

	case *types.AttributeValueMemberL:
		buf.WriteByte(prefixList)
		for _, child := range tv.Value {
			childBytes, err := ToBytes(child)
			if err != nil {
				return err
			}
			writeLengthPrefixed(buf, childBytes)
		}
		return nil

	case *types.AttributeValueMemberM:
		keys := make([]string, 0, len(tv.Value))
		for k := range tv.Value {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte(prefixMap)
		for _, k := range keys {
			writeLengthPrefixed(buf, []byte(k))
			valBytes, err := ToBytes(tv.Value[k])
			if err != nil {
				return err
			}
			writeLengthPrefixed(buf, valBytes)
		}
		return nil

	default:
		return clienterrors.InvalidArgument(fmt.Sprintf("hashing: unsupported attribute value shape %T", v))
	}
}

func writeLengthPrefixed(buf *bytes.Buffer, payload []byte) {
	var lenBytes [4]byte
	binary.BigEndian.PutUint32(lenBytes[:], uint32(len(payload)))
	buf.Write(lenBytes[:])
	buf.Write(payload)
}

// IsNull reports whether v is the Null variant (used by callers that
// need to special-case hash(Null) = 0 before reaching for ToBytes).
func IsNull(v types.AttributeValue) bool {
	_, ok := v.(*types.AttributeValueMemberNULL)
	return ok
}
