// Package round describes the lifecycle of a CoinJoin round, as seen by both
// the coordinator and its clients.
package round

import (
	"fmt"

	"github.com/zkcoinjoin/wabisabi/pkg/protocol"
)

// Phase is the stage a round is in. Phases only ever increase.
type Phase int

const (
	InputRegistration Phase = iota
	ConnectionConfirmation
	OutputRegistration
	TransactionSigning
	Ended
)

var phaseNames = [...]string{
	InputRegistration:      "InputRegistration",
	ConnectionConfirmation: "ConnectionConfirmation",
	OutputRegistration:     "OutputRegistration",
	TransactionSigning:     "TransactionSigning",
	Ended:                  "Ended",
}

// String implements fmt.Stringer.
func (p Phase) String() string {
	if p.Valid() {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Valid returns true if p is one of the defined phases.
func (p Phase) Valid() bool {
	return p >= InputRegistration && p <= Ended
}

// Next returns the phase following p. Ended is followed by itself.
func (p Phase) Next() Phase {
	if p >= Ended {
		return Ended
	}
	return p + 1
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("round: invalid phase %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(text []byte) error {
	for i, name := range phaseNames {
		if name == string(text) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("round: unknown phase %q", text)
}

// CheckPhase returns a WrongPhase error unless s is in one of the expected phases.
func CheckPhase(s *State, expected ...Phase) error {
	for _, p := range expected {
		if s.Phase == p {
			return nil
		}
	}
	return protocol.Errorf(protocol.WrongPhase, "round %s is in %s, expected %v", s.ID, s.Phase, expected)
}
