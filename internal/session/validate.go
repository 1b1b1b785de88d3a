package session

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	ErrInvalidName = errors.New("session: invalid name")
	ErrInvalidShip = errors.New("session: invalid ship")
)

var (
	nameRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)
	// Ship names are ~ followed by dash-separated syllable groups, e.g.
	// ~zod or ~sampel-palnet.
	shipRegexp = regexp.MustCompile(`^~[a-z]{3}(-?[a-z]{3})*$`)
)

// ValidateName checks that name is usable as a session directory name.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("%w %q: must match %s", ErrInvalidName, name, nameRegexp)
	}
	return nil
}

// ValidateShip checks the identity a session syncs as.
func ValidateShip(ship string) error {
	if !shipRegexp.MatchString(ship) {
		return fmt.Errorf("%w %q", ErrInvalidShip, ship)
	}
	return nil
}
