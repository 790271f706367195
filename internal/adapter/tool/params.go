package tool

import (
	"fmt"
	"strings"
	"unicode"
)

const maxPlaceLen = 200

// Checks validates decoded tool params and keeps the first failure.
//
//	if err := new(Checks).Place("location", p.Location).Err(); err != nil { ... }
type Checks struct {
	err error
}

func (c *Checks) fail(format string, args ...any) *Checks {
	if c.err == nil {
		c.err = fmt.Errorf(format, args...)
	}
	return c
}

// Place requires a non-blank place name of reasonable length with no
// control characters.
func (c *Checks) Place(name, v string) *Checks {
	switch {
	case strings.TrimSpace(v) == "":
		return c.fail("'%s' is required", name)
	case len(v) > maxPlaceLen:
		return c.fail("%s exceeds maximum length of %d", name, maxPlaceLen)
	case strings.IndexFunc(v, unicode.IsControl) >= 0:
		return c.fail("%s contains control characters", name)
	}
	return c
}

// MaxLen rejects v longer than n bytes.
func (c *Checks) MaxLen(name, v string, n int) *Checks {
	if len(v) > n {
		return c.fail("%s exceeds maximum length of %d", name, n)
	}
	return c
}

// Range rejects v outside [lo, hi].
func (c *Checks) Range(name string, v, lo, hi int) *Checks {
	if v < lo || v > hi {
		return c.fail("%s must be %d-%d", name, lo, hi)
	}
	return c
}

func (c *Checks) Err() error {
	return c.err
}
