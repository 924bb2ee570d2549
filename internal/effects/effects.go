package effects

import (
	"fmt"
	"strings"
)

// Effect selects one of the fixed animation styles. Dispatch is an
// exhaustive switch in Render, so adding a case here without a render arm
// is a compile-visible omission.
type Effect int

const (
	None Effect = iota
	Glitch
	Float
	Sparkle
	Wave
	Rainbow
)

const (
	MinIntensity = 1
	MaxIntensity = 10
	MinSpeed     = 1
	MaxSpeed     = 10
)

var effectNames = map[Effect]string{
	None:    "none",
	Glitch:  "glitch",
	Float:   "float",
	Sparkle: "sparkle",
	Wave:    "wave",
	Rainbow: "rainbow",
}

func (e Effect) String() string {
	if name, ok := effectNames[e]; ok {
		return name
	}
	return "none"
}

func (e Effect) Valid() bool {
	_, ok := effectNames[e]
	return ok
}

// Parse maps a wire-format effect name to its Effect value.
func Parse(name string) (Effect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none", "static":
		return None, nil
	case "glitch":
		return Glitch, nil
	case "float":
		return Float, nil
	case "sparkle":
		return Sparkle, nil
	case "wave":
		return Wave, nil
	case "rainbow":
		return Rainbow, nil
	default:
		return None, fmt.Errorf("unknown effect: %q", name)
	}
}

// Names returns the accepted effect names in enum order.
func Names() []string {
	return []string{"none", "glitch", "float", "sparkle", "wave", "rainbow"}
}

func ClampIntensity(n int) int {
	if n < MinIntensity {
		return MinIntensity
	}
	if n > MaxIntensity {
		return MaxIntensity
	}
	return n
}

func ClampSpeed(n int) int {
	if n < MinSpeed {
		return MinSpeed
	}
	if n > MaxSpeed {
		return MaxSpeed
	}
	return n
}

// TickStep is the logical clock advance for one tick at the given speed.
// A speed of 5 advances 16ms per tick.
func TickStep(speed int) float64 {
	return 0.016 * float64(ClampSpeed(speed)) / 5
}
