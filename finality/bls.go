package finality

import (
	blst "github.com/supranational/blst/bindings/go"
)

// BLSBackend is the narrow seam every direct blst call passes through. Isolating the
// binding here means an API-shape mismatch in the underlying library only ever touches
// this one file; the rest of the package (aggregator, safety, claim validation) programs
// against this interface exclusively.
type BLSBackend interface {
	Sign(secretKey []byte, message []byte) (signature []byte, err error)
	Verify(publicKey []byte, message []byte, signature []byte) bool
	Aggregate(signatures [][]byte) (aggregated []byte, err error)
	AggregateVerify(publicKeys [][]byte, message []byte, aggregated []byte) bool
}

// blstBackend is the production BLSBackend, implemented on top of
// supranational/blst's min-pubkey-size ("P1 for pubkeys, P2 for signatures") variant.
type blstBackend struct{}

// NewBLSBackend returns the production blst-backed implementation.
func NewBLSBackend() BLSBackend { return blstBackend{} }

type (
	blstSecretKey  = blst.SecretKey
	blstP1Affine   = blst.P1Affine
	blstP2Affine   = blst.P2Affine
)

const dst = "LEDGERD_FINALITY_BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_POP_"

func (blstBackend) Sign(secretKeyBytes []byte, message []byte) ([]byte, error) {
	var sk blstSecretKey
	sk.Deserialize(secretKeyBytes)
	sig := new(blst.P2Affine).Sign(&sk, message, []byte(dst))
	return sig.Compress(), nil
}

func (blstBackend) Verify(publicKey []byte, message []byte, signature []byte) bool {
	pk := new(blstP1Affine).Uncompress(publicKey)
	sig := new(blstP2Affine).Uncompress(signature)
	if pk == nil || sig == nil {
		return false
	}
	return sig.Verify(true, pk, true, message, []byte(dst))
}

func (blstBackend) Aggregate(signatures [][]byte) ([]byte, error) {
	sigs := make([]*blstP2Affine, 0, len(signatures))
	for _, s := range signatures {
		p := new(blstP2Affine).Uncompress(s)
		if p == nil {
			return nil, ErrInvalidSignatureEncoding
		}
		sigs = append(sigs, p)
	}
	agg := new(blst.P2Aggregate)
	if !agg.Aggregate(sigs, true) {
		return nil, ErrAggregationFailed
	}
	return agg.ToAffine().Compress(), nil
}

func (blstBackend) AggregateVerify(publicKeys [][]byte, message []byte, aggregated []byte) bool {
	sig := new(blstP2Affine).Uncompress(aggregated)
	if sig == nil {
		return false
	}
	pks := make([]*blstP1Affine, 0, len(publicKeys))
	msgs := make([][]byte, 0, len(publicKeys))
	for _, pkBytes := range publicKeys {
		pk := new(blstP1Affine).Uncompress(pkBytes)
		if pk == nil {
			return false
		}
		pks = append(pks, pk)
		msgs = append(msgs, message)
	}
	return sig.AggregateVerify(true, pks, true, msgs, []byte(dst))
}
