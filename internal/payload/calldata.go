package payload

import (
	"github.com/jmerrifield20/BaseProofs/internal/digest"
)

// selector is the first four bytes of keccak256(AnchorSignature).
var selector = func() [SelectorLen]byte {
	full := digest.Bytes(AnchorSignature)
	var s [SelectorLen]byte
	copy(s[:], full[:SelectorLen])
	return s
}()

// Selector returns the anchorProof(bytes32) method selector.
func Selector() [SelectorLen]byte {
	return selector
}

// CallData frames a ledger write: selector || digest || payload.
func CallData(d [digest.Size]byte, payload []byte) []byte {
	out := make([]byte, 0, PrefixLen+len(payload))
	out = append(out, selector[:]...)
	out = append(out, d[:]...)
	out = append(out, payload...)
	return out
}

// SplitCallData separates the fixed prefix from the payload. ok is false
// when callData is too short to hold anything beyond the prefix.
func SplitCallData(callData []byte) (arg [digest.Size]byte, payload []byte, ok bool) {
	if len(callData) >= PrefixLen {
		copy(arg[:], callData[SelectorLen:PrefixLen])
	}
	if len(callData) <= PrefixLen {
		return arg, nil, false
	}
	return arg, callData[PrefixLen:], true
}

// DecodeCallData decodes the payload carried by a full transaction input.
// Inputs without anything past the call prefix decode to KindNone.
func DecodeCallData(callData []byte) Decoded {
	_, p, ok := SplitCallData(callData)
	if !ok {
		return Decoded{Kind: KindNone}
	}
	return Decode(p)
}

// NonceDigest is the digest argument used by status update writes. The
// contract requires a bytes32 argument; the status payload itself carries
// the target digest, so the argument only needs to be unique per write.
func NonceDigest(statusPayload []byte) [digest.Size]byte {
	return digest.Bytes(string(statusPayload))
}
