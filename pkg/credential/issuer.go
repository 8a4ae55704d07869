package credential

import (
	"errors"
	"fmt"
	"io"
	"math/bits"
	"sync"

	"github.com/zkcoinjoin/wabisabi/internal/hash"
	"github.com/zkcoinjoin/wabisabi/internal/params"
	"github.com/zkcoinjoin/wabisabi/pkg/math/curve"
	"github.com/zkcoinjoin/wabisabi/pkg/pool"
	"github.com/zkcoinjoin/wabisabi/pkg/protocol"
	"github.com/zkcoinjoin/wabisabi/pkg/transcript"
	"github.com/zkcoinjoin/wabisabi/pkg/zk"
)

// RangeWidth returns the number of bit commitments needed to prove that a value
// lies in [0, maxAmount].
func RangeWidth(maxAmount uint64) int {
	return bits.Len64(maxAmount)
}

// newTranscript returns the transcript shared by a request and its response.
//
// The label fixes the shape of the request, and context binds it to a single
// issuer, so that proofs cannot be replayed against another round.
func newTranscript(context []byte, k int, isNull bool) *transcript.Transcript {
	t := transcript.New([]byte(fmt.Sprintf("UnifiedRegistration/%d/%t", k, isNull)))
	t.CommitStatement(hash.BytesWithDomain{TheDomain: "issuer-context", Bytes: context})
	return t
}

// Issuer verifies credential requests and issues MACs.
//
// An Issuer keeps the serial numbers of every credential presented to it, and
// the balance of values issued minus values presented. It is safe for concurrent use.
type Issuer struct {
	sk         *SecretKey
	params     *IssuerParameters
	maxAmount  uint64
	rangeWidth int
	context    []byte
	rand       io.Reader
	pool       *pool.Pool

	mu      sync.Mutex
	serials map[string]struct{}
	balance int64
}

// NewIssuer returns an issuer for values in [0, maxAmount].
//
// context identifies the issuer, and must be shared with clients. pl may be nil.
func NewIssuer(sk *SecretKey, maxAmount uint64, context []byte, rand io.Reader, pl *pool.Pool) (*Issuer, error) {
	if err := sk.Validate(); err != nil {
		return nil, err
	}
	if maxAmount == 0 {
		return nil, errors.New("credential: max amount must be positive")
	}
	return &Issuer{
		sk:         sk,
		params:     sk.Parameters(),
		maxAmount:  maxAmount,
		rangeWidth: RangeWidth(maxAmount),
		context:    append([]byte(nil), context...),
		rand:       pool.NewLockedReader(rand),
		pool:       pl,
		serials:    make(map[string]struct{}),
	}, nil
}

// Parameters returns the issuer's public parameters.
func (i *Issuer) Parameters() *IssuerParameters {
	return i.params
}

// MaxAmount returns the largest value a single credential can hold.
func (i *Issuer) MaxAmount() uint64 {
	return i.maxAmount
}

// Balance returns the total value issued minus the total value presented.
func (i *Issuer) Balance() int64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.balance
}

// PreparedResponse is a verified request whose effects on the issuer have not
// been applied yet.
type PreparedResponse struct {
	issuer   *Issuer
	delta    int64
	serials  []string
	response *CredentialsResponse

	mu        sync.Mutex
	committed bool
}

// Delta returns the value the request adds to the issuer's balance.
func (p *PreparedResponse) Delta() int64 {
	return p.delta
}

// HandleRequest verifies req and issues the requested credentials.
func (i *Issuer) HandleRequest(req Request) (*CredentialsResponse, error) {
	prepared, err := i.Prepare(req)
	if err != nil {
		return nil, err
	}
	return prepared.Commit()
}

// Prepare verifies req and computes the response, without recording the
// presented serial numbers or updating the balance.
//
// The response is only released by Commit, so that a caller can verify several
// requests before accepting any of them.
func (i *Issuer) Prepare(req Request) (*PreparedResponse, error) {
	switch r := req.(type) {
	case *ZeroCredentialsRequest:
		return i.prepareZero(r)
	case *RealCredentialsRequest:
		return i.prepareReal(r)
	default:
		return nil, fmt.Errorf("credential: unknown request type %T", req)
	}
}

func (i *Issuer) prepareZero(req *ZeroCredentialsRequest) (*PreparedResponse, error) {
	if len(req.Requested) != params.NumberOfCredentials {
		return nil, protocol.Errorf(protocol.InvalidNumberOfRequestedCredentials,
			"got %d, expected %d", len(req.Requested), params.NumberOfCredentials)
	}
	for _, r := range req.Requested {
		if err := validPoints(r.Ma); err != nil {
			return nil, &protocol.Error{Code: protocol.InvalidPoint, Err: err}
		}
		if len(r.BitCommitments) != 0 {
			return nil, protocol.Errorf(protocol.InvalidBitCommitment, "zero requests carry no bit commitments")
		}
	}

	t := newTranscript(i.context, params.NumberOfCredentials, true)
	statements := make([]*zk.Statement, len(req.Requested))
	for j, r := range req.Requested {
		statements[j] = ZeroProofStatement(r.Ma)
	}
	if !zk.Verify(t, statements, req.Proofs, i.pool) {
		return nil, protocol.NewError(protocol.CoordinatorReceivedInvalidProofs)
	}

	response, err := i.issue(t, req.RequestedMa())
	if err != nil {
		return nil, err
	}
	return &PreparedResponse{issuer: i, response: response}, nil
}

func (i *Issuer) prepareReal(req *RealCredentialsRequest) (*PreparedResponse, error) {
	k := params.NumberOfCredentials
	if len(req.Presented) != k {
		return nil, protocol.Errorf(protocol.InvalidNumberOfPresentedCredentials,
			"got %d, expected %d", len(req.Presented), k)
	}
	if len(req.Requested) != k {
		return nil, protocol.Errorf(protocol.InvalidNumberOfRequestedCredentials,
			"got %d, expected %d", len(req.Requested), k)
	}

	if balance := i.Balance(); balance+req.Delta < 0 {
		return nil, protocol.Errorf(protocol.NegativeBalance, "balance %d, delta %d", balance, req.Delta)
	}

	for _, p := range req.Presented {
		if err := validPoints(p.points()...); err != nil {
			return nil, &protocol.Error{Code: protocol.InvalidPoint, Err: err}
		}
	}
	for _, r := range req.Requested {
		if err := validPoints(r.Ma); err != nil {
			return nil, &protocol.Error{Code: protocol.InvalidPoint, Err: err}
		}
		if err := validPoints(r.BitCommitments...); err != nil {
			return nil, &protocol.Error{Code: protocol.InvalidPoint, Err: err}
		}
	}

	serials := make([]string, len(req.Presented))
	seen := make(map[string]struct{}, len(req.Presented))
	for j := range req.Presented {
		s := req.Presented[j].SerialNumber()
		if _, ok := seen[s]; ok {
			return nil, protocol.NewError(protocol.SerialNumberDuplicated)
		}
		seen[s] = struct{}{}
		serials[j] = s
	}
	if i.anyUsed(serials) {
		return nil, protocol.NewError(protocol.SerialNumberAlreadyUsed)
	}

	for _, r := range req.Requested {
		if len(r.BitCommitments) != i.rangeWidth {
			return nil, protocol.Errorf(protocol.InvalidBitCommitment,
				"got %d bit commitments, expected %d", len(r.BitCommitments), i.rangeWidth)
		}
	}

	statements := make([]*zk.Statement, 0, 2*k+1)
	presentedCa := make([]*curve.Point, k)
	for j := range req.Presented {
		p := &req.Presented[j]
		statements = append(statements, ShowCredentialStatement(p, p.ComputeZ(i.sk), i.params))
		presentedCa[j] = p.Ca
	}
	for _, r := range req.Requested {
		statements = append(statements, RangeProofStatement(r.Ma, r.BitCommitments))
	}
	balance := BalanceCommitment(presentedCa, req.RequestedMa(), req.Delta)
	statements = append(statements, BalanceProofStatement(balance))

	t := newTranscript(i.context, k, false)
	if !zk.Verify(t, statements, req.Proofs, i.pool) {
		return nil, protocol.NewError(protocol.CoordinatorReceivedInvalidProofs)
	}

	response, err := i.issue(t, req.RequestedMa())
	if err != nil {
		return nil, err
	}
	return &PreparedResponse{issuer: i, delta: req.Delta, serials: serials, response: response}, nil
}

// issue computes a MAC on every commitment, and proves their correctness on t.
func (i *Issuer) issue(t *transcript.Transcript, commitments []*curve.Point) (*CredentialsResponse, error) {
	macs := make([]MAC, len(commitments))
	knowledge := make([]zk.Knowledge, len(commitments))
	for j, ma := range commitments {
		macs[j] = *ComputeMAC(i.sk, ma, i.rand)
		knowledge[j] = IssuerParametersKnowledge(i.sk, &macs[j], ma)
	}
	proofs, err := zk.Prove(t, knowledge, i.rand)
	if err != nil {
		return nil, fmt.Errorf("credential: failed to prove issuance: %w", err)
	}
	return &CredentialsResponse{IssuedCredentials: macs, Proofs: proofs}, nil
}

func (i *Issuer) anyUsed(serials []string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, s := range serials {
		if _, ok := i.serials[s]; ok {
			return true
		}
	}
	return false
}

// ErrAlreadyCommitted is returned when a prepared response is committed twice.
var ErrAlreadyCommitted = errors.New("credential: response already committed")

// Check returns the error Commit would return now, without committing.
func (p *PreparedResponse) Check() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.committed {
		return ErrAlreadyCommitted
	}
	p.issuer.mu.Lock()
	defer p.issuer.mu.Unlock()
	return p.check()
}

// Commit records the serial numbers and balance change of p, and releases its response.
//
// The checks on serial numbers and balance are repeated, since other requests
// may have been committed since p was prepared.
func (p *PreparedResponse) Commit() (*CredentialsResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.committed {
		return nil, ErrAlreadyCommitted
	}

	i := p.issuer
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := p.check(); err != nil {
		return nil, err
	}
	for _, s := range p.serials {
		i.serials[s] = struct{}{}
	}
	i.balance += p.delta
	p.committed = true
	return p.response, nil
}

// check must be called with the issuer's lock held.
func (p *PreparedResponse) check() error {
	i := p.issuer
	for _, s := range p.serials {
		if _, ok := i.serials[s]; ok {
			return protocol.NewError(protocol.SerialNumberAlreadyUsed)
		}
	}
	if i.balance+p.delta < 0 {
		return protocol.Errorf(protocol.NegativeBalance, "balance %d, delta %d", i.balance, p.delta)
	}
	return nil
}
