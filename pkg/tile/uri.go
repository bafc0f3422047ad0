package tile

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrTemplate is returned for malformed resource URI templates
var ErrTemplate = errors.New("invalid uri template")

// placeholderPattern matches {key} and {key:width}
var placeholderPattern = regexp.MustCompile(`\{([^{}:]*)(?::([^{}]*))?\}`)

// Template turns tile coordinates into resource identifiers. Placeholders are
// {x:W}, {y:W} and {z:W}; each is replaced by the coordinate zero-padded to
// W digits. A bare {x} means no padding.
type Template struct {
	raw    string
	parts  []string // literal text, len(fields)+1 entries
	fields []field
}

type field struct {
	key   byte
	width int
}

// ParseTemplate validates a template. All three of x, y and z must appear.
func ParseTemplate(s string) (*Template, error) {
	t := &Template{raw: s}
	seen := map[byte]bool{}

	last := 0
	for _, m := range placeholderPattern.FindAllStringSubmatchIndex(s, -1) {
		key := s[m[2]:m[3]]
		if key != "x" && key != "y" && key != "z" {
			return nil, fmt.Errorf("%w: unknown placeholder %q in %q", ErrTemplate, s[m[0]:m[1]], s)
		}

		width := 0
		if m[4] >= 0 {
			w, err := strconv.Atoi(s[m[4]:m[5]])
			if err != nil || w < 0 {
				return nil, fmt.Errorf("%w: width of %q must be a non-negative integer", ErrTemplate, s[m[0]:m[1]])
			}
			width = w
		}

		t.parts = append(t.parts, s[last:m[0]])
		t.fields = append(t.fields, field{key: key[0], width: width})
		seen[key[0]] = true
		last = m[1]
	}
	t.parts = append(t.parts, s[last:])

	for _, k := range []byte{'x', 'y', 'z'} {
		if !seen[k] {
			return nil, fmt.Errorf("%w: %q has no {%c} placeholder", ErrTemplate, s, k)
		}
	}
	if strings.ContainsAny(strings.Join(t.parts, ""), "{}") {
		return nil, fmt.Errorf("%w: unbalanced braces in %q", ErrTemplate, s)
	}

	return t, nil
}

// MustParseTemplate is ParseTemplate that panics on error
func MustParseTemplate(s string) *Template {
	t, err := ParseTemplate(s)
	if err != nil {
		panic(err)
	}
	return t
}

// Format substitutes the coordinate into the template
func (t *Template) Format(c TileCoord) string {
	var b strings.Builder
	for i, f := range t.fields {
		b.WriteString(t.parts[i])

		var v int
		switch f.key {
		case 'x':
			v = c.X
		case 'y':
			v = c.Y
		case 'z':
			v = c.Z
		}
		fmt.Fprintf(&b, "%0*d", f.width, v)
	}
	b.WriteString(t.parts[len(t.parts)-1])
	return b.String()
}

func (t *Template) String() string {
	return t.raw
}
