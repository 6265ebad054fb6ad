package types

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/crypto/blake2b"
)

const DigestLength = 32

// Digest is a blake2b-256 hash identifying state roots, transactions and
// addressable entities.
type Digest [DigestLength]byte

func HashBytes(data []byte) Digest {
	return Digest(blake2b.Sum256(data))
}

func (d Digest) Bytes() []byte { return d[:] }

func (d Digest) IsZero() bool { return d == Digest{} }

func (d Digest) String() string { return hexutil.Encode(d[:]) }

func (d Digest) MarshalJSON() ([]byte, error) {
	return []byte(`"` + hexutil.Encode(d[:]) + `"`), nil
}

func (d *Digest) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	raw, err := hexutil.Decode(s)
	if err != nil {
		return err
	}
	copy(d[:], raw)
	return nil
}
