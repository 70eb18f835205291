package energy

import "fmt"

// Unit is an energy unit expressed as joules per unit. Integration
// happens in power x time (joules) and is converted on the way out.
type Unit struct {
	Name   string
	Joules float64
}

var (
	Joule        = Unit{Name: "J", Joules: 1}
	WattHour     = Unit{Name: "Wh", Joules: 3600}
	KilowattHour = Unit{Name: "kWh", Joules: 3.6e6}
)

// ParseUnit reads "J", "Wh" or "kWh".
func ParseUnit(s string) (Unit, error) {
	switch s {
	case "J":
		return Joule, nil
	case "Wh":
		return WattHour, nil
	case "kWh":
		return KilowattHour, nil
	}
	return Unit{}, fmt.Errorf("invalid energy unit %q", s)
}

// FromJoules converts joules into the unit.
func (u Unit) FromJoules(j float64) float64 { return j / u.Joules }
