// Package schedule decides, per layer, how the plate moves and how long the
// slice image is exposed.
package schedule

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Method is the motion/exposure recipe for one layer.
type Method int

const (
	// Dip blanks, lowers the plate by the dip distance, waits, raises it back
	// leaving one layer of clearance, lets the resin settle, then exposes.
	Dip Method = iota
	// Continuous exposes while raising the plate one layer over the exposure.
	Continuous
	// Bottom exposes with no motion.
	Bottom
	// SlowDip is Dip with the slow dip distance and speed.
	SlowDip
)

func (m Method) String() string {
	switch m {
	case Dip:
		return "dip"
	case Continuous:
		return "cont"
	case Bottom:
		return "bottom"
	case SlowDip:
		return "slow_dip"
	default:
		return fmt.Sprintf("method(%d)", int(m))
	}
}

// ParseMethod accepts the canonical names plus the spellings used by older
// slice direction tables.
func ParseMethod(name string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "dip":
		return Dip, nil
	case "cont", "continuous":
		return Continuous, nil
	case "bottom":
		return Bottom, nil
	case "slow_dip", "slow dip", "slowdip", "slow-dip":
		return SlowDip, nil
	default:
		return 0, fmt.Errorf("unknown slice method %q", name)
	}
}

// Breakpoint starts a run of layers that share a directive.
type Breakpoint struct {
	Layer  int
	Method Method
	Factor float64
}

// Directive is what to do for a single layer.
type Directive struct {
	Method Method
	Factor float64
}

// DisplayTime scales the job exposure by the directive's factor.
func (d Directive) DisplayTime(exposure time.Duration) time.Duration {
	return time.Duration(d.Factor * float64(exposure))
}

// DirectiveFor returns the directive of the last breakpoint whose layer is at
// or below layer. Breakpoints must be sorted ascending; layers before the
// first breakpoint use the first entry.
func DirectiveFor(layer int, bps []Breakpoint) Directive {
	if len(bps) == 0 {
		return Directive{Method: Dip, Factor: 1}
	}
	i := sort.Search(len(bps), func(i int) bool { return bps[i].Layer > layer })
	if i > 0 {
		i--
	}
	return Directive{Method: bps[i].Method, Factor: bps[i].Factor}
}

// Expand resolves a directive for every layer of a job.
func Expand(numSlices int, bps []Breakpoint) []Directive {
	if numSlices <= 0 {
		return nil
	}
	out := make([]Directive, numSlices)
	for layer := range out {
		out[layer] = DirectiveFor(layer, bps)
	}
	return out
}
