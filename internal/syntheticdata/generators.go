// Package syntheticdata implements C8: generating synthetic training
// samples for a model's tag vocabulary, reservoir-sampling the
// user-provided samples alongside them, and exporting both to CSV.
package syntheticdata

import (
	"strconv"
	"strings"

	"github.com/Pallinder/go-randomdata"
)

// Generators maps a tag name to a local fake-value generator backed by
// go-randomdata; each call returns a fresh random value.
// Tags with no matching generator fall back to an LLM completion via
// Completer.
var Generators = map[string]func() string{
	"NAME":    func() string { return randomdata.FullName(randomdata.RandomGender) },
	"EMAIL":   func() string { return strings.ToLower(randomdata.Email()) },
	"PHONE":   func() string { return randomdata.PhoneNumber() },
	"ADDRESS": func() string { return randomdata.Address() },
	"CITY":    func() string { return randomdata.City() },
	"STATE":   func() string { return randomdata.State(randomdata.Large) },
	"COUNTRY": func() string { return randomdata.Country(randomdata.FullCountry) },
	"COMPANY": func() string { return randomdata.SillyName() },
	"DATE":    func() string { return randomdata.FullDate() },
	"NUMBER":  func() string { return strconv.Itoa(randomdata.Number(1, 10000)) },
	"CURRENCY": func() string {
		return strconv.FormatFloat(randomdata.Decimal(1, 10000), 'f', 2, 64)
	},
}

// Generate returns a fake value for tag using the local generator if one
// exists. The bool reports whether a generator matched;
// callers fall back to the LLM completer when it is false.
func Generate(tag string) (string, bool) {
	gen, ok := Generators[strings.ToUpper(tag)]
	if !ok {
		return "", false
	}
	return gen(), true
}
