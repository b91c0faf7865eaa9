package stake

import (
	"errors"
	"fmt"
	"math/big"
)

// Kind classifies engine failures.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindValidation
	KindAuthorization
	KindState
	KindArithmetic
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindState:
		return "state"
	case KindArithmetic:
		return "arithmetic"
	default:
		return "unknown"
	}
}

// Error is a classified sentinel. Callers compare with errors.Is against the
// exported values and use KindOf to branch on the class.
type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string { return e.msg }

func newError(kind Kind, msg string) *Error { return &Error{Kind: kind, msg: msg} }

// KindOf returns the class of the first classified error in err's chain.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return KindUnknown
}

var (
	errNilState = errors.New("stake engine: state not configured")

	ErrNoUnbondingPeriodFound    = newError(KindValidation, "stake: no unbonding period found")
	ErrZeroAmount                = newError(KindValidation, "stake: amount must be positive")
	ErrSameUnbondingRebond       = newError(KindValidation, "stake: cannot rebond to the same unbonding period")
	ErrInvalidAsset              = newError(KindValidation, "stake: invalid reward asset")
	ErrDistributionAlreadyExists = newError(KindValidation, "stake: distribution flow already exists for asset")
	ErrNoDistributionFlow        = newError(KindValidation, "stake: no distribution flow for asset")
	ErrInvalidRewards            = newError(KindValidation, "stake: invalid reward schedule")
	ErrTooManyDistributions      = newError(KindValidation, "stake: too many distribution flows")
	ErrTokenMismatch             = newError(KindValidation, "stake: received token does not match the staked token")
	ErrMassDelegateTooMuch       = newError(KindValidation, "stake: delegations exceed the received amount")
	ErrPastStartingTime          = newError(KindValidation, "stake: funding cannot start in the past")
	ErrInsufficientStake         = newError(KindValidation, "stake: insufficient releasable stake")
	ErrInvalidConfig             = newError(KindValidation, "stake: invalid configuration")
	ErrEmptyHook                 = newError(KindValidation, "stake: receive hook carries no action")

	ErrUnauthorized = newError(KindAuthorization, "stake: unauthorized")

	ErrNothingToClaim        = newError(KindState, "stake: nothing to claim")
	ErrFlagAlreadySet        = newError(KindState, "stake: unbond all flag already in requested state")
	ErrNoConverter           = newError(KindState, "stake: no converter configured")
	ErrDelegateIfUnbondAll   = newError(KindState, "stake: cannot delegate while unbond all is active")
	ErrRebondIfUnbondAll     = newError(KindState, "stake: cannot rebond while unbond all is active")
	ErrDistributeIfUnbondAll = newError(KindState, "stake: cannot distribute while unbond all is active")
	ErrAlreadyInstantiated   = newError(KindState, "stake: engine already instantiated")
	ErrNotInstantiated       = newError(KindState, "stake: engine not instantiated")
	ErrModulePaused          = newError(KindState, "stake: module paused")

	ErrOverflow        = newError(KindArithmetic, "stake: arithmetic overflow")
	ErrUnderflow       = newError(KindArithmetic, "stake: arithmetic underflow")
	ErrNegativeRewards = newError(KindArithmetic, "stake: negative withdrawable rewards")
)

func insufficientStake(have, want *big.Int) error {
	return fmt.Errorf("%w: have %s, want %s", ErrInsufficientStake, have, want)
}

func unknownPeriod(period uint64) error {
	return fmt.Errorf("%w: %d", ErrNoUnbondingPeriodFound, period)
}
