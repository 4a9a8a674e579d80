// Package version orders release style version strings such as 4.1,
// 4.1-beta1 or 4.0rc1. Pre-release tags sort before the release they precede.
package version

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	pep440 "github.com/aquasecurity/go-pep440-version"
)

var ErrInvalidVersion = errors.New("invalid version")

var release = regexp.MustCompile(
	`(?i)^(\d+)(?:\.(\d+))?((?:\.\d+)*)(?:[-_.]?(?:a|b|c|rc|alpha|beta|pre|preview)[-_.]?\d*)?$`,
)

func normalize(v string) string {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, ".") {
		v = "0" + v
	}
	return v
}

// leadingRelease matches the numeric release a free form version starts with.
var leadingRelease = regexp.MustCompile(`^\d+(?:\.\d+)*`)

type sortKey struct {
	raw     string
	base    pep440.Version
	hasBase bool
	exact   bool
}

func keyOf(v string) sortKey {
	k := sortKey{raw: normalize(v)}
	parsed, err := pep440.Parse(k.raw)
	if err == nil {
		k.base, k.hasBase, k.exact = parsed, true, true
		return k
	}
	prefix := leadingRelease.FindString(k.raw)
	if prefix == "" {
		return k
	}
	parsed, err = pep440.Parse(prefix)
	if err == nil {
		k.base, k.hasBase = parsed, true
	}
	return k
}

// Compare returns -1, 0 or 1 as a is lower, equal or greater than b.
// A string outside the release grammar ranks by the numeric release it
// starts with, right after that release, and naturally among its peers.
// Strings with no leading release sort first.
func Compare(a, b string) int {
	ka, kb := keyOf(a), keyOf(b)
	switch {
	case ka.hasBase && !kb.hasBase:
		return 1
	case !ka.hasBase && kb.hasBase:
		return -1
	case ka.hasBase:
		if c := ka.base.Compare(kb.base); c != 0 {
			return c
		}
	}

	switch {
	case ka.exact && kb.exact:
		return 0
	case ka.exact:
		return -1
	case kb.exact:
		return 1
	}
	return naturalCompare(ka.raw, kb.raw)
}

func Less(a, b string) bool {
	return Compare(a, b) < 0
}

// Sorted returns an ascending copy of versions. Equal versions keep their
// input order.
func Sorted(versions []string) []string {
	sorted := make([]string, len(versions))
	copy(sorted, versions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return Less(sorted[i], sorted[j])
	})
	return sorted
}

// Max returns the greatest of versions, or "" when empty.
func Max(versions []string) string {
	var highest string
	for i, v := range versions {
		if i == 0 || Compare(v, highest) > 0 {
			highest = v
		}
	}
	return highest
}

// NextMinor returns the smallest version above v with everything after the
// minor component dropped: 3.5.4 gives 3.6, 3 gives 3.1.
func NextMinor(v string) (string, error) {
	match := release.FindStringSubmatch(normalize(v))
	if match == nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidVersion, v)
	}
	major, err := strconv.Atoi(match[1])
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidVersion, v)
	}
	minor := 0
	if match[2] != "" {
		minor, err = strconv.Atoi(match[2])
		if err != nil {
			return "", fmt.Errorf("%w: %q", ErrInvalidVersion, v)
		}
	}
	return fmt.Sprintf("%d.%d", major, minor+1), nil
}

// MinorLine returns the major.minor prefix of v, or v itself when it does
// not follow the release grammar.
func MinorLine(v string) string {
	match := release.FindStringSubmatch(normalize(v))
	if match == nil {
		return v
	}
	minor := match[2]
	if minor == "" {
		minor = "0"
	}
	return match[1] + "." + minor
}

// MajorLine returns the major component of v.
func MajorLine(v string) string {
	match := release.FindStringSubmatch(normalize(v))
	if match == nil {
		return v
	}
	return match[1]
}

func naturalCompare(a, b string) int {
	ca, cb := chunks(a), chunks(b)
	for i := 0; i < len(ca) && i < len(cb); i++ {
		x, y := ca[i], cb[i]
		nx, errX := strconv.Atoi(x)
		ny, errY := strconv.Atoi(y)
		switch {
		case errX == nil && errY == nil:
			if nx != ny {
				return cmp(nx, ny)
			}
		case errX == nil:
			return 1
		case errY == nil:
			return -1
		default:
			if x != y {
				return strings.Compare(x, y)
			}
		}
	}
	return cmp(len(ca), len(cb))
}

func chunks(v string) []string {
	var parts []string
	var current strings.Builder
	digit := false
	for i, r := range v {
		isDigit := unicode.IsDigit(r)
		if i > 0 && isDigit != digit {
			parts = append(parts, current.String())
			current.Reset()
		}
		digit = isDigit
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

func cmp(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
