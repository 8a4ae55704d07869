// Package transcript implements the Fiat-Shamir transcript shared by provers
// and verifiers of linear-relation proofs.
//
// A Transcript absorbs a label, the statements being proven and the prover's
// public nonces, and squeezes challenges from everything absorbed so far.
// Provers additionally derive their secret nonces from a fork of the same state.
package transcript

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/zkcoinjoin/wabisabi/internal/hash"
	"github.com/zkcoinjoin/wabisabi/internal/params"
	"github.com/zkcoinjoin/wabisabi/pkg/math/curve"
	"github.com/zkcoinjoin/wabisabi/pkg/math/sample"
)

const (
	protocolDomain  = "WabiSabi_v1.0"
	labelDomain     = "domain-separator"
	nonceDomain     = "public-nonces"
	challengeDomain = "challenge"
	secretDomain    = "secret-nonce-witness"
	entropyDomain   = "secret-nonce-entropy"
)

// Transcript is a running Fiat-Shamir state.
//
// A Transcript is not safe for concurrent use; call Clone to fork it.
type Transcript struct {
	h *hash.Hash
}

// New returns a transcript initialized with the protocol domain and label.
//
// Proofs generated under one label never verify under another.
func New(label []byte) *Transcript {
	t := &Transcript{h: hash.New(protocolDomain)}
	_ = t.h.WriteAny(hash.BytesWithDomain{TheDomain: labelDomain, Bytes: label})
	return t
}

// Clone returns an independent copy of the transcript in its current state.
func (t *Transcript) Clone() *Transcript {
	return &Transcript{h: t.h.Clone()}
}

// CommitStatement absorbs the public description of a statement.
func (t *Transcript) CommitStatement(statement hash.WriterToWithDomain) {
	_ = t.h.WriteAny(statement)
}

// CommitPublicNonces absorbs the prover's public nonces for one statement.
func (t *Transcript) CommitPublicNonces(nonces []*curve.Point) {
	_ = t.h.WriteAny(hash.BytesWithDomain{TheDomain: nonceDomain, Bytes: binary.BigEndian.AppendUint64(nil, uint64(len(nonces)))})
	for _, n := range nonces {
		_ = t.h.WriteAny(n)
	}
}

// GenerateChallenge derives a challenge from everything absorbed so far.
//
// The transcript is advanced, so that consecutive challenges differ.
func (t *Transcript) GenerateChallenge() *curve.Scalar {
	_ = t.h.WriteAny(hash.BytesWithDomain{TheDomain: challengeDomain, Bytes: nil})
	return sample.Scalar(t.h.Digest())
}

// SyntheticNonces returns a provider of secret nonces for a proof of knowledge of secrets.
//
// The nonces are squeezed from a fork of the transcript that has absorbed the
// secrets and fresh randomness read from rand. They are unpredictable as long
// as either rand or the secrets are, and differ for every statement the
// transcript was bound to. The receiver is not modified.
func (t *Transcript) SyntheticNonces(secrets []*curve.Scalar, rand io.Reader) (*NonceProvider, error) {
	fork := t.h.Clone()
	for _, s := range secrets {
		_ = fork.WriteAny(hash.BytesWithDomain{TheDomain: secretDomain, Bytes: s.Bytes()})
	}
	entropy := make([]byte, params.NonceEntropyBytes)
	if _, err := io.ReadFull(rand, entropy); err != nil {
		return nil, fmt.Errorf("transcript: failed to read nonce entropy: %w", err)
	}
	_ = fork.WriteAny(hash.BytesWithDomain{TheDomain: entropyDomain, Bytes: entropy})
	return &NonceProvider{stream: fork.Digest()}, nil
}

// NonceProvider is an unbounded stream of secret nonces.
type NonceProvider struct {
	stream io.Reader
}

// Next returns the next nonce in the stream.
func (p *NonceProvider) Next() *curve.Scalar {
	return sample.Scalar(p.stream)
}

// Take returns the next n nonces in the stream.
func (p *NonceProvider) Take(n int) []*curve.Scalar {
	nonces := make([]*curve.Scalar, n)
	for i := range nonces {
		nonces[i] = p.Next()
	}
	return nonces
}
