package domain

import (
	"errors"
	"fmt"
)

// ConnState é o estado de uma conexão no pipeline:
//
//	Opening -> Admitted | Rejected
//	Admitted -> Open -> Closed
//
// Rejected e Closed são terminais.
type ConnState int

const (
	StateOpening ConnState = iota
	StateAdmitted
	StateRejected
	StateOpen
	StateClosed
)

var ErrInvalidTransition = errors.New("domain: invalid connection state transition")

func (s ConnState) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateAdmitted:
		return "admitted"
	case StateRejected:
		return "rejected"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("ConnState(%d)", int(s))
}

func (s ConnState) Terminal() bool { return s == StateRejected || s == StateClosed }

// Next valida a transição s -> to.
func (s ConnState) Next(to ConnState) (ConnState, error) {
	ok := false
	switch s {
	case StateOpening:
		ok = to == StateAdmitted || to == StateRejected
	case StateAdmitted:
		// uma falha de upgrade fecha sem nunca abrir
		ok = to == StateOpen || to == StateClosed
	case StateOpen:
		ok = to == StateClosed
	}
	if !ok {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, to)
	}
	return to, nil
}
