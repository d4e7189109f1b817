package printer

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrUnknownCommand is returned for wire maps whose verb is not recognised.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrMalformed is returned for wire maps with missing or invalid fields.
	ErrMalformed = errors.New("malformed command")
)

// Kind tags a Command.
type Kind int

const (
	KindHome Kind = iota + 1
	KindBlank
	KindFocus
	KindLiftMove
	KindPrintObject
	KindCalibrate
	KindPause
	KindUnpause
	KindAbort
	KindResetZero
	KindSetupResin
)

var kindVerbs = map[Kind]string{
	KindHome:        "home",
	KindBlank:       "blank",
	KindFocus:       "focus",
	KindLiftMove:    "lift_move",
	KindPrintObject: "print_object",
	KindCalibrate:   "calibration",
	KindPause:       "pause",
	KindUnpause:     "unpause",
	KindAbort:       "abort",
	KindResetZero:   "reset_zero",
	KindSetupResin:  "setup_resin",
}

var verbKinds = func() map[string]Kind {
	m := make(map[string]Kind, len(kindVerbs)+2)
	for k, v := range kindVerbs {
		m[v] = k
	}
	m["calibrate"] = KindCalibrate
	m["printobject"] = KindPrintObject
	return m
}()

func (k Kind) String() string {
	if v, ok := kindVerbs[k]; ok {
		return v
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Direction is the lift travel direction for manual moves.
type Direction int

const (
	// Down moves away from home.
	Down Direction = iota
	// Up moves towards home.
	Up
)

func (d Direction) String() string {
	if d == Up {
		return "up"
	}
	return "down"
}

// Wire keys shared with the front end and the persisted variables.
const (
	KeyCommand     = "command"
	KeyDirection   = "dir"
	KeyLiftAmount  = "lift_amount"
	KeyLiftSpeed   = "lift_speed"
	KeyObjectPath  = "object_path"
	KeyExposure    = "exposure_time"
	KeyCaliMinTime = "cali_min_time"
	KeyCaliMaxTime = "cali_max_time"
)

// Command is one operator request. Only the fields for its Kind are set.
type Command struct {
	Kind       Kind
	Direction  Direction
	Amount     float64 // microns
	Speed      float64 // microns per second
	ObjectPath string
	Exposure   time.Duration
	MinTime    time.Duration
	MaxTime    time.Duration
}

// Verb returns the wire name of the command.
func (c Command) Verb() string {
	return c.Kind.String()
}

// NormalizeVerb folds a wire verb to its canonical spelling.
func NormalizeVerb(verb string) string {
	verb = strings.ToLower(strings.TrimSpace(verb))
	return strings.NewReplacer("+", "_", " ", "_", "-", "_").Replace(verb)
}

// LookupVerb returns the Kind named by a wire verb.
func LookupVerb(verb string) (Kind, bool) {
	k, ok := verbKinds[NormalizeVerb(verb)]
	return k, ok
}

// Parse converts a wire map into a Command. It never returns a partially
// valid command: any error means the map must be dropped.
func Parse(wire map[string]string) (Command, error) {
	verb, ok := wire[KeyCommand]
	if !ok || strings.TrimSpace(verb) == "" {
		return Command{}, fmt.Errorf("%w: missing %q", ErrMalformed, KeyCommand)
	}
	kind, ok := LookupVerb(verb)
	if !ok {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, verb)
	}

	cmd := Command{Kind: kind}
	var err error
	switch kind {
	case KindLiftMove:
		switch strings.ToLower(strings.TrimSpace(wire[KeyDirection])) {
		case "up":
			cmd.Direction = Up
		case "down":
			cmd.Direction = Down
		default:
			return Command{}, fmt.Errorf("%w: %s must be up or down, got %q", ErrMalformed, KeyDirection, wire[KeyDirection])
		}
		if cmd.Amount, err = number(wire, KeyLiftAmount); err != nil {
			return Command{}, err
		}
		if cmd.Amount < 0 {
			return Command{}, fmt.Errorf("%w: %s must not be negative", ErrMalformed, KeyLiftAmount)
		}
		if cmd.Speed, err = positive(wire, KeyLiftSpeed); err != nil {
			return Command{}, err
		}
	case KindPrintObject:
		cmd.ObjectPath = strings.TrimSpace(wire[KeyObjectPath])
		if cmd.ObjectPath == "" {
			return Command{}, fmt.Errorf("%w: missing %q", ErrMalformed, KeyObjectPath)
		}
		if cmd.Exposure, err = seconds(wire, KeyExposure); err != nil {
			return Command{}, err
		}
	case KindCalibrate:
		if cmd.MinTime, err = seconds(wire, KeyCaliMinTime); err != nil {
			return Command{}, err
		}
		if cmd.MaxTime, err = seconds(wire, KeyCaliMaxTime); err != nil {
			return Command{}, err
		}
		if cmd.MaxTime < cmd.MinTime {
			return Command{}, fmt.Errorf("%w: %s is below %s", ErrMalformed, KeyCaliMaxTime, KeyCaliMinTime)
		}
	}
	return cmd, nil
}

// Wire renders the command back into its wire map.
func (c Command) Wire() map[string]string {
	wire := map[string]string{KeyCommand: c.Verb()}
	switch c.Kind {
	case KindLiftMove:
		wire[KeyDirection] = c.Direction.String()
		wire[KeyLiftAmount] = formatFloat(c.Amount)
		wire[KeyLiftSpeed] = formatFloat(c.Speed)
	case KindPrintObject:
		wire[KeyObjectPath] = c.ObjectPath
		wire[KeyExposure] = formatFloat(c.Exposure.Seconds())
	case KindCalibrate:
		wire[KeyCaliMinTime] = formatFloat(c.MinTime.Seconds())
		wire[KeyCaliMaxTime] = formatFloat(c.MaxTime.Seconds())
	}
	return wire
}

func number(wire map[string]string, key string) (float64, error) {
	raw, ok := wire[key]
	if !ok || strings.TrimSpace(raw) == "" {
		return 0, fmt.Errorf("%w: missing %q", ErrMalformed, key)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s is not a number: %q", ErrMalformed, key, raw)
	}
	return v, nil
}

func positive(wire map[string]string, key string) (float64, error) {
	v, err := number(wire, key)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive", ErrMalformed, key)
	}
	return v, nil
}

func seconds(wire map[string]string, key string) (time.Duration, error) {
	v, err := positive(wire, key)
	if err != nil {
		return 0, err
	}
	return time.Duration(v * float64(time.Second)), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
