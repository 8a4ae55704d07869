package credential

import (
	"crypto/rand"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zkcoinjoin/wabisabi/internal/types"
	"github.com/zkcoinjoin/wabisabi/pkg/math/curve"
	"github.com/zkcoinjoin/wabisabi/pkg/math/sample"
	"github.com/zkcoinjoin/wabisabi/pkg/pool"
	"github.com/zkcoinjoin/wabisabi/pkg/protocol"
)

const testMaxAmount = 1000

var testContext = []byte("round-1/amount")

func setup(t *testing.T) (*Issuer, *Client) {
	t.Helper()
	sk := NewSecretKey(rand.Reader)
	issuer, err := NewIssuer(sk, testMaxAmount, testContext, rand.Reader, nil)
	require.NoError(t, err)
	client, err := NewClient(issuer.Parameters(), testMaxAmount, testContext, rand.Reader)
	require.NoError(t, err)
	return issuer, client
}

func zeroCredentials(t *testing.T, issuer *Issuer, client *Client) []*Credential {
	t.Helper()
	req, validator, err := client.CreateRequestForZeroAmount()
	require.NoError(t, err)
	resp, err := issuer.HandleRequest(req)
	require.NoError(t, err)
	creds, err := client.HandleResponse(resp, validator)
	require.NoError(t, err)
	return creds
}

func issue(t *testing.T, issuer *Issuer, client *Client, amounts []uint64, present []*Credential) []*Credential {
	t.Helper()
	req, validator, err := client.CreateRequest(amounts, present)
	require.NoError(t, err)
	resp, err := issuer.HandleRequest(req)
	require.NoError(t, err)
	creds, err := client.HandleResponse(resp, validator)
	require.NoError(t, err)
	return creds
}

func assertCode(t *testing.T, err error, code protocol.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	actual, ok := protocol.CodeOf(err)
	require.True(t, ok, "expected a protocol error, got %v", err)
	assert.Equal(t, code, actual, "unexpected error %v", err)
}

func TestGenerators(t *testing.T) {
	all := []*curve.Point{Gw, Gwp, Gx0, Gx1, Ga, Gs, Gg, Gh, GV}
	for i := range all {
		assert.False(t, all[i].IsIdentity())
		for j := i + 1; j < len(all); j++ {
			assert.False(t, all[i].Equal(all[j]), "generators %d and %d collide", i, j)
		}
	}
	assert.True(t, GeneratorFromText("Gg").Equal(Gg))
	assert.True(t, Gg.HasEvenY())
}

func TestMAC(t *testing.T) {
	sk := NewSecretKey(rand.Reader)
	require.NoError(t, sk.Validate())
	attr := NewAttribute(42, rand.Reader)

	mac := ComputeMAC(sk, attr.Ma, rand.Reader)
	assert.True(t, mac.Verify(sk, attr.Ma))
	assert.False(t, mac.Verify(NewSecretKey(rand.Reader), attr.Ma), "other key")
	assert.False(t, mac.Verify(sk, NewAttribute(42, rand.Reader).Ma), "other attribute")

	other := ComputeMAC(sk, attr.Ma, rand.Reader)
	assert.False(t, mac.T.Equal(other.T))
	assert.True(t, other.Verify(sk, attr.Ma))

	assert.False(t, (&MAC{T: curve.NewScalar(), V: mac.V}).Verify(sk, attr.Ma))
}

func TestIssuerParameters(t *testing.T) {
	sk := NewSecretKey(rand.Reader)
	p := sk.Parameters()
	require.NoError(t, p.Validate())

	expectedCw := curve.NewIdentityPoint().ScalarMult(sk.W, Gw)
	expectedCw.Add(expectedCw, curve.NewIdentityPoint().ScalarMult(sk.Wp, Gwp))
	assert.True(t, expectedCw.Equal(p.Cw))

	sk.X0 = curve.NewScalar()
	assert.Error(t, sk.Validate())
	_, err := NewIssuer(sk, testMaxAmount, nil, rand.Reader, nil)
	assert.Error(t, err)

	assert.Error(t, (&IssuerParameters{Cw: p.Cw, I: curve.NewIdentityPoint()}).Validate())
}

func TestProofStatements(t *testing.T) {
	sk := NewSecretKey(rand.Reader)
	attr := NewAttribute(300, rand.Reader)
	mac := ComputeMAC(sk, attr.Ma, rand.Reader)

	k := IssuerParametersKnowledge(sk, mac, attr.Ma)
	assert.True(t, k.Statement.IsSatisfiedBy(k.Witness))

	cred := &Credential{Value: attr.Value, Randomness: attr.Randomness, Mac: mac}
	z := sample.ScalarNonZero(rand.Reader)
	p := cred.Present(z)
	show := ShowCredentialKnowledge(p, z, cred, sk.Parameters())
	assert.True(t, show.Statement.IsSatisfiedBy(show.Witness))
	assert.True(t, p.ComputeZ(sk).Equal(show.Statement.Equations[0].Public))

	bitRandomness := make([]*curve.Scalar, RangeWidth(testMaxAmount))
	for i := range bitRandomness {
		bitRandomness[i] = sample.ScalarNonZero(rand.Reader)
	}
	rangeKnowledge, bits := RangeProofKnowledge(attr.Value, attr.Randomness, bitRandomness)
	assert.Len(t, bits, 10)
	assert.True(t, rangeKnowledge.Statement.IsSatisfiedBy(rangeKnowledge.Witness))
	assert.True(t, rangeKnowledge.Statement.Equations[0].Public.Equal(
		curve.NewIdentityPoint().Sub(attr.Ma, sumOfPowers(bits))))

	// A commitment to 2 (not a bit) in place of the first bit cannot be opened.
	forged := RangeProofStatement(attr.Ma, append([]*curve.Point{commit(2, bitRandomness[0])}, bits[1:]...))
	assert.False(t, forged.IsSatisfiedBy(rangeKnowledge.Witness))

	zero := NewAttribute(0, rand.Reader)
	zk := ZeroProofKnowledge(zero.Ma, zero.Randomness)
	assert.True(t, zk.Statement.IsSatisfiedBy(zk.Witness))
	assert.False(t, ZeroProofStatement(attr.Ma).IsSatisfiedBy([]*curve.Scalar{attr.Randomness}))
}

func sumOfPowers(bits []*curve.Point) *curve.Point {
	sum := curve.NewIdentityPoint()
	for i, b := range bits {
		sum.Add(sum, curve.NewIdentityPoint().ScalarMult(curve.NewScalarUint64(1<<uint(i)), b))
	}
	return sum
}

func TestZeroCredentials(t *testing.T) {
	issuer, client := setup(t)
	creds := zeroCredentials(t, issuer, client)
	require.Len(t, creds, 2)
	for _, c := range creds {
		assert.Equal(t, uint64(0), c.Value)
		assert.True(t, c.Mac.Verify(issuer.sk, c.Ma()))
	}
	assert.Equal(t, int64(0), issuer.Balance())
}

func TestRealCredentialsFlow(t *testing.T) {
	pl := pool.NewPool(0)
	defer pl.TearDown()

	sk := NewSecretKey(rand.Reader)
	issuer, err := NewIssuer(sk, testMaxAmount, testContext, rand.Reader, pl)
	require.NoError(t, err)
	client, err := NewClient(issuer.Parameters(), testMaxAmount, testContext, rand.Reader)
	require.NoError(t, err)

	zero := zeroCredentials(t, issuer, client)

	// Register value: delta = +1000.
	creds := issue(t, issuer, client, []uint64{testMaxAmount}, zero)
	require.Len(t, creds, 2)
	assert.Equal(t, uint64(testMaxAmount), creds[0].Value)
	assert.Equal(t, uint64(0), creds[1].Value)
	assert.Equal(t, int64(testMaxAmount), issuer.Balance())

	// Reissue: delta = 0.
	creds = issue(t, issuer, client, []uint64{600, 400}, creds)
	assert.Equal(t, uint64(600), creds[0].Value)
	assert.Equal(t, uint64(400), creds[1].Value)
	assert.Equal(t, int64(testMaxAmount), issuer.Balance())

	// Spend: delta = -700.
	creds = issue(t, issuer, client, []uint64{300}, creds)
	assert.Equal(t, int64(300), issuer.Balance())
	for _, c := range creds {
		assert.True(t, c.Mac.Verify(sk, c.Ma()))
	}
}

func TestSerialNumbers(t *testing.T) {
	issuer, client := setup(t)
	zero := zeroCredentials(t, issuer, client)
	creds := issue(t, issuer, client, []uint64{10}, zero)

	// Presenting the same credentials again is a double spend.
	req, _, err := client.CreateRequest([]uint64{10}, creds)
	require.NoError(t, err)
	_, err = issuer.HandleRequest(req)
	require.NoError(t, err)
	req, _, err = client.CreateRequest([]uint64{10}, creds)
	require.NoError(t, err)
	_, err = issuer.HandleRequest(req)
	assertCode(t, err, protocol.SerialNumberAlreadyUsed)

	// The same credential twice within a request.
	fresh := zeroCredentials(t, issuer, client)
	req, _, err = client.CreateRequest(nil, []*Credential{fresh[0], fresh[0]})
	require.NoError(t, err)
	_, err = issuer.HandleRequest(req)
	assertCode(t, err, protocol.SerialNumberDuplicated)
}

func TestPrepareCommit(t *testing.T) {
	issuer, client := setup(t)
	zero := zeroCredentials(t, issuer, client)

	req1, _, err := client.CreateRequest([]uint64{5}, zero)
	require.NoError(t, err)
	req2, _, err := client.CreateRequest([]uint64{7}, zero)
	require.NoError(t, err)

	p1, err := issuer.Prepare(req1)
	require.NoError(t, err)
	p2, err := issuer.Prepare(req2)
	require.NoError(t, err, "nothing is recorded before commit")
	assert.Equal(t, int64(5), p1.Delta())
	assert.Equal(t, int64(0), issuer.Balance())

	require.NoError(t, p1.Check())
	require.NoError(t, p2.Check())
	_, err = p1.Commit()
	require.NoError(t, err)
	_, err = p1.Commit()
	assert.ErrorIs(t, err, ErrAlreadyCommitted)
	assert.ErrorIs(t, p1.Check(), ErrAlreadyCommitted)

	assertCode(t, p2.Check(), protocol.SerialNumberAlreadyUsed)
	_, err = p2.Commit()
	assertCode(t, err, protocol.SerialNumberAlreadyUsed)
	assert.Equal(t, int64(5), issuer.Balance())
}

func TestRejections(t *testing.T) {
	issuer, client := setup(t)
	zero := zeroCredentials(t, issuer, client)

	fresh := func() *RealCredentialsRequest {
		req, _, err := client.CreateRequest([]uint64{10, 20}, zero)
		require.NoError(t, err)
		return req
	}

	req := fresh()
	req.Presented = req.Presented[:1]
	_, err := issuer.HandleRequest(req)
	assertCode(t, err, protocol.InvalidNumberOfPresentedCredentials)

	req = fresh()
	req.Requested = append(req.Requested, req.Requested[0])
	_, err = issuer.HandleRequest(req)
	assertCode(t, err, protocol.InvalidNumberOfRequestedCredentials)

	req = fresh()
	req.Delta = -1
	_, err = issuer.HandleRequest(req)
	assertCode(t, err, protocol.NegativeBalance)

	req = fresh()
	req.Presented[1].CV = curve.NewIdentityPoint()
	_, err = issuer.HandleRequest(req)
	assertCode(t, err, protocol.InvalidPoint)

	req = fresh()
	req.Requested[0].BitCommitments[3] = curve.NewIdentityPoint()
	_, err = issuer.HandleRequest(req)
	assertCode(t, err, protocol.InvalidPoint)

	req = fresh()
	req.Requested[1].BitCommitments = req.Requested[1].BitCommitments[1:]
	_, err = issuer.HandleRequest(req)
	assertCode(t, err, protocol.InvalidBitCommitment)

	// Claiming more value than the proofs support.
	req = fresh()
	req.Delta++
	_, err = issuer.HandleRequest(req)
	assertCode(t, err, protocol.CoordinatorReceivedInvalidProofs)

	req = fresh()
	req.Proofs[len(req.Proofs)-1], req.Proofs[0] = req.Proofs[0], req.Proofs[len(req.Proofs)-1]
	_, err = issuer.HandleRequest(req)
	assertCode(t, err, protocol.CoordinatorReceivedInvalidProofs)

	// Nothing was recorded by the rejected requests.
	assert.Equal(t, int64(0), issuer.Balance())
	issue(t, issuer, client, []uint64{10, 20}, zero)
}

func TestZeroRequestRejections(t *testing.T) {
	issuer, client := setup(t)

	req, _, err := client.CreateRequestForZeroAmount()
	require.NoError(t, err)
	req.Requested = req.Requested[:1]
	_, err = issuer.HandleRequest(req)
	assertCode(t, err, protocol.InvalidNumberOfRequestedCredentials)

	req, _, err = client.CreateRequestForZeroAmount()
	require.NoError(t, err)
	req.Requested[0].Ma = NewAttribute(1, rand.Reader).Ma
	_, err = issuer.HandleRequest(req)
	assertCode(t, err, protocol.CoordinatorReceivedInvalidProofs)

	req, _, err = client.CreateRequestForZeroAmount()
	require.NoError(t, err)
	req.Requested[0].BitCommitments = []*curve.Point{Gg}
	_, err = issuer.HandleRequest(req)
	assertCode(t, err, protocol.InvalidBitCommitment)
}

func TestContextBinding(t *testing.T) {
	issuer, client := setup(t)
	other, err := NewIssuer(issuer.sk, testMaxAmount, []byte("round-2/amount"), rand.Reader, nil)
	require.NoError(t, err)

	req, _, err := client.CreateRequestForZeroAmount()
	require.NoError(t, err)
	_, err = other.HandleRequest(req)
	assertCode(t, err, protocol.CoordinatorReceivedInvalidProofs)
}

func TestClientRejectsBadResponses(t *testing.T) {
	issuer, client := setup(t)

	req, validator, err := client.CreateRequestForZeroAmount()
	require.NoError(t, err)
	resp, err := issuer.HandleRequest(req)
	require.NoError(t, err)

	short := &CredentialsResponse{IssuedCredentials: resp.IssuedCredentials[:1], Proofs: resp.Proofs}
	_, err = client.HandleResponse(short, validator)
	assertCode(t, err, protocol.IssuedCredentialNumberMismatch)

	forged := &CredentialsResponse{
		IssuedCredentials: []MAC{resp.IssuedCredentials[0], resp.IssuedCredentials[1]},
		Proofs:            resp.Proofs,
	}
	forged.IssuedCredentials[1].V = curve.NewIdentityPoint().Add(forged.IssuedCredentials[1].V, Gg)
	_, err = client.HandleResponse(forged, validator)
	assertCode(t, err, protocol.ClientReceivedInvalidProofs)

	// A response produced by another issuer key does not verify.
	impostor, err := NewIssuer(NewSecretKey(rand.Reader), testMaxAmount, testContext, rand.Reader, nil)
	require.NoError(t, err)
	req, validator, err = client.CreateRequestForZeroAmount()
	require.NoError(t, err)
	resp, err = impostor.HandleRequest(req)
	require.NoError(t, err)
	_, err = client.HandleResponse(resp, validator)
	assertCode(t, err, protocol.ClientReceivedInvalidProofs)
}

func TestClientRequestValidation(t *testing.T) {
	issuer, client := setup(t)
	zero := zeroCredentials(t, issuer, client)

	_, _, err := client.CreateRequest([]uint64{testMaxAmount + 1}, zero)
	assert.Error(t, err)

	_, _, err = client.CreateRequest([]uint64{1, 2, 3}, zero)
	assertCode(t, err, protocol.InvalidNumberOfRequestedCredentials)

	_, _, err = client.CreateRequest([]uint64{1}, zero[:1])
	assertCode(t, err, protocol.InvalidNumberOfPresentedCredentials)
}

func TestPresentationUnlinkability(t *testing.T) {
	issuer, client := setup(t)
	zero := zeroCredentials(t, issuer, client)
	creds := issue(t, issuer, client, []uint64{50}, zero)
	cred := creds[0]

	z1, z2 := sample.ScalarNonZero(rand.Reader), sample.ScalarNonZero(rand.Reader)
	p1, p2 := cred.Present(z1), cred.Present(z2)

	assert.False(t, types.StructurallyEqual(p1, p2))
	assert.False(t, p1.Ca.Equal(p2.Ca))
	assert.False(t, p1.CV.Equal(p2.CV))
	assert.Equal(t, p1.SerialNumber(), p2.SerialNumber())

	// Both are valid presentations under the issuer key.
	params := issuer.Parameters()
	for _, c := range []struct {
		p *Presentation
		z *curve.Scalar
	}{{p1, z1}, {p2, z2}} {
		expected := curve.NewIdentityPoint().ScalarMult(c.z, params.I)
		assert.True(t, c.p.ComputeZ(issuer.sk).Equal(expected))
		k := ShowCredentialKnowledge(c.p, c.z, cred, params)
		assert.True(t, k.Statement.IsSatisfiedBy(k.Witness))
	}
}

func TestRequestEncoding(t *testing.T) {
	issuer, client := setup(t)
	zero := zeroCredentials(t, issuer, client)
	req, validator, err := client.CreateRequest([]uint64{1, 2}, zero)
	require.NoError(t, err)

	data, err := json.Marshal(req)
	require.NoError(t, err)
	var decodedJSON RealCredentialsRequest
	require.NoError(t, json.Unmarshal(data, &decodedJSON))
	assert.True(t, req.Equal(&decodedJSON))

	data, err = types.CanonicalMarshal(req)
	require.NoError(t, err)
	var decodedCBOR RealCredentialsRequest
	require.NoError(t, types.CanonicalUnmarshal(data, &decodedCBOR))
	assert.True(t, req.Equal(&decodedCBOR))

	// The decoded request is accepted like the original.
	resp, err := issuer.HandleRequest(&decodedCBOR)
	require.NoError(t, err)
	_, err = client.HandleResponse(resp, validator)
	require.NoError(t, err)

	other := decodedJSON
	other.Delta++
	assert.False(t, req.Equal(&other))
}
