package curve

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrNoSteps         = errors.New("curve: piecewise curve requires at least one step")
	ErrStepsNotOrdered = errors.New("curve: step timestamps must be strictly increasing")
	ErrIncreasing      = errors.New("curve: curve value increases over time")
	ErrUnknownKind     = errors.New("curve: unknown curve kind")
	ErrNoParts         = errors.New("curve: sum curve requires at least one part")
)

// Kind enumerates the supported curve shapes.
type Kind uint8

const (
	KindConstant Kind = iota
	KindSaturatingLinear
	KindPiecewiseLinear
	KindSum
)

func (k Kind) String() string {
	switch k {
	case KindConstant:
		return "constant"
	case KindSaturatingLinear:
		return "saturating_linear"
	case KindPiecewiseLinear:
		return "piecewise_linear"
	case KindSum:
		return "sum"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Point is a single (timestamp, value) breakpoint.
type Point struct {
	X uint64
	Y *big.Int
}

// Curve is a time-indexed schedule of amounts. A constant curve carries a
// single step whose X is ignored; a saturating linear curve carries exactly
// two steps; a piecewise linear curve carries one or more. Values clamp to the
// first and last step outside of the covered range. A sum curve carries no
// steps; its value is the exact sum of its parts, none of which is a sum.
//
// Curves are treated as immutable values: every method returns fresh big.Int
// instances and combinators build new curves.
type Curve struct {
	Kind  Kind
	Steps []Point
	Parts []Curve
}

// Constant returns a curve with the same value at every point in time.
func Constant(y *big.Int) Curve {
	return Curve{Kind: KindConstant, Steps: []Point{{X: 0, Y: cloneInt(y)}}}
}

// SaturatingLinear returns a curve that stays at min.Y until min.X, moves
// linearly to max.Y at max.X, and stays there afterwards.
func SaturatingLinear(min, max Point) Curve {
	return Curve{Kind: KindSaturatingLinear, Steps: []Point{clonePoint(min), clonePoint(max)}}
}

// PiecewiseLinear returns a curve interpolating linearly between steps.
func PiecewiseLinear(steps ...Point) Curve {
	out := make([]Point, len(steps))
	for i := range steps {
		out[i] = clonePoint(steps[i])
	}
	return Curve{Kind: KindPiecewiseLinear, Steps: out}
}

// Clone returns a deep copy of the curve.
func (c Curve) Clone() Curve {
	out := Curve{Kind: c.Kind, Steps: make([]Point, len(c.Steps))}
	for i := range c.Steps {
		out.Steps[i] = clonePoint(c.Steps[i])
	}
	if len(c.Parts) > 0 {
		out.Parts = make([]Curve, len(c.Parts))
		for i := range c.Parts {
			out.Parts[i] = c.Parts[i].Clone()
		}
	}
	return out
}

// Validate checks the structural constraints of the curve.
func (c Curve) Validate() error {
	switch c.Kind {
	case KindConstant:
		if len(c.Steps) != 1 {
			return fmt.Errorf("curve: constant curve requires exactly one step, got %d", len(c.Steps))
		}
		return nil
	case KindSaturatingLinear:
		if len(c.Steps) != 2 {
			return fmt.Errorf("curve: saturating linear curve requires two steps, got %d", len(c.Steps))
		}
	case KindPiecewiseLinear:
		if len(c.Steps) == 0 {
			return ErrNoSteps
		}
	case KindSum:
		if len(c.Parts) == 0 {
			return ErrNoParts
		}
		for i := range c.Parts {
			if c.Parts[i].Kind == KindSum {
				return fmt.Errorf("curve: nested sum at part %d", i)
			}
			if err := c.Parts[i].Validate(); err != nil {
				return fmt.Errorf("curve: part %d: %w", i, err)
			}
		}
		return nil
	default:
		return ErrUnknownKind
	}
	for i := 1; i < len(c.Steps); i++ {
		if c.Steps[i].X <= c.Steps[i-1].X {
			return ErrStepsNotOrdered
		}
	}
	for i := range c.Steps {
		if y := c.Steps[i].Y; y != nil && y.Sign() < 0 {
			return fmt.Errorf("curve: negative value at step %d", i)
		}
	}
	return nil
}

// Value evaluates the curve at x.
func (c Curve) Value(x uint64) *big.Int {
	if c.Kind == KindSum {
		total := big.NewInt(0)
		for i := range c.Parts {
			total.Add(total, c.Parts[i].Value(x))
		}
		return total
	}
	if len(c.Steps) == 0 {
		return big.NewInt(0)
	}
	if c.Kind == KindConstant {
		return cloneInt(c.Steps[0].Y)
	}
	first := c.Steps[0]
	if x < first.X {
		return cloneInt(first.Y)
	}
	for i := 0; i+1 < len(c.Steps); i++ {
		lo, hi := c.Steps[i], c.Steps[i+1]
		if x >= lo.X && x < hi.X {
			return interpolate(lo, hi, x)
		}
	}
	return cloneInt(c.Steps[len(c.Steps)-1].Y)
}

// Range returns the lowest and highest values the curve takes. For a sum the
// bounds add up the ranges of the parts, which is exact when every part moves
// in the same direction.
func (c Curve) Range() (*big.Int, *big.Int) {
	if c.Kind == KindSum {
		lo, hi := big.NewInt(0), big.NewInt(0)
		for i := range c.Parts {
			plo, phi := c.Parts[i].Range()
			lo.Add(lo, plo)
			hi.Add(hi, phi)
		}
		return lo, hi
	}
	if len(c.Steps) == 0 {
		return big.NewInt(0), big.NewInt(0)
	}
	lo := cloneInt(c.Steps[0].Y)
	hi := cloneInt(c.Steps[0].Y)
	for _, step := range c.Steps[1:] {
		y := cloneInt(step.Y)
		if y.Cmp(lo) < 0 {
			lo = y
		}
		if y.Cmp(hi) > 0 {
			hi = new(big.Int).Set(y)
		}
	}
	return lo, hi
}

// End returns the timestamp after which the curve no longer changes. Constant
// curves have no end.
func (c Curve) End() (uint64, bool) {
	if c.Kind == KindSum {
		var end uint64
		found := false
		for i := range c.Parts {
			if x, ok := c.Parts[i].End(); ok && (!found || x > end) {
				end, found = x, true
			}
		}
		return end, found
	}
	if c.Kind == KindConstant || len(c.Steps) == 0 {
		return 0, false
	}
	return c.Steps[len(c.Steps)-1].X, true
}

// Combine returns the exact pointwise sum of c and other. Constants fold
// into a single offset; the remaining schedules are kept side by side as the
// parts of a sum curve, so no value is ever re-sampled.
func (c Curve) Combine(other Curve) Curve {
	parts := make([]Curve, 0, len(c.Parts)+len(other.Parts)+2)
	parts = append(parts, c.components()...)
	parts = append(parts, other.components()...)
	return sumOf(big.NewInt(0), parts, nil)
}

// Compact folds every part that has finished by at into the constant offset.
// The result equals c at every x >= at.
func (c Curve) Compact(at uint64) Curve {
	return sumOf(big.NewInt(0), c.components(), func(p Curve) bool {
		end, ok := p.End()
		return ok && end <= at
	})
}

func (c Curve) components() []Curve {
	if c.Kind == KindSum {
		return c.Parts
	}
	return []Curve{c}
}

// sumOf builds the simplest curve equal to offset plus parts. Parts matching
// fold, and all constants, collapse into the offset at their final value.
func sumOf(offset *big.Int, parts []Curve, fold func(Curve) bool) Curve {
	kept := make([]Curve, 0, len(parts))
	for _, p := range parts {
		switch {
		case p.Kind == KindConstant:
			offset.Add(offset, p.Value(0))
		case fold != nil && fold(p):
			end, _ := p.End()
			offset.Add(offset, p.Value(end))
		default:
			kept = append(kept, p.Clone())
		}
	}
	if offset.Sign() != 0 || len(kept) == 0 {
		kept = append([]Curve{Constant(offset)}, kept...)
	}
	if len(kept) == 1 {
		return kept[0]
	}
	return Curve{Kind: KindSum, Parts: kept}
}

// ValidateMonotonicDecreasing reports ErrIncreasing when any step is higher
// than its predecessor.
func (c Curve) ValidateMonotonicDecreasing() error {
	switch c.Kind {
	case KindConstant:
		return nil
	case KindSum:
		for i := range c.Parts {
			if err := c.Parts[i].ValidateMonotonicDecreasing(); err != nil {
				return err
			}
		}
		return nil
	}
	for i := 1; i < len(c.Steps); i++ {
		if intOrZero(c.Steps[i].Y).Cmp(intOrZero(c.Steps[i-1].Y)) > 0 {
			return fmt.Errorf("%w: step %d at %d", ErrIncreasing, i, c.Steps[i].X)
		}
	}
	return nil
}

// interpolate evaluates the segment lo..hi at x. Decreasing segments subtract
// the floored decrement, so values round up between breakpoints.
func interpolate(lo, hi Point, x uint64) *big.Int {
	loY, hiY := intOrZero(lo.Y), intOrZero(hi.Y)
	if hi.X == lo.X {
		return new(big.Int).Set(hiY)
	}
	dx := new(big.Int).SetUint64(x - lo.X)
	span := new(big.Int).SetUint64(hi.X - lo.X)
	if hiY.Cmp(loY) > 0 {
		delta := new(big.Int).Sub(hiY, loY)
		delta.Mul(delta, dx).Quo(delta, span)
		return delta.Add(delta, loY)
	}
	delta := new(big.Int).Sub(loY, hiY)
	delta.Mul(delta, dx).Quo(delta, span)
	return new(big.Int).Sub(loY, delta)
}

func intOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func clonePoint(p Point) Point {
	return Point{X: p.X, Y: cloneInt(p.Y)}
}
