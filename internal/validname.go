package internal

import (
	"regexp"
)

const (
	// A valid member name is non-empty and has no control characters.
	pattern = `^[^\pC]+$`
	// It may not begin or end with a whitespace character.
	antiPattern = `(^\pZ|\pZ$)`
)

var (
	re     *regexp.Regexp
	antiRe *regexp.Regexp
)

func init() {
	var err error
	re, err = regexp.Compile(pattern)
	if err != nil {
		panic(err)
	}
	antiRe, err = regexp.Compile(antiPattern)
	if err != nil {
		panic(err)
	}
}

// IsValidMemberName returns true if name can name a compound member or an
// enumeration value.
func IsValidMemberName(name string) bool {
	return re.MatchString(name) && !antiRe.MatchString(name)
}
