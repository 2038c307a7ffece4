package permission

import (
	"errors"
	"strings"
)

// ErrEmptyCode is returned when a permission string carries no operation.
var ErrEmptyCode = errors.New("permission: empty code")

// ErrUnknownOperation is returned when a permission string carries a letter
// outside C, R, U and D.
var ErrUnknownOperation = errors.New("permission: unknown operation")

const allSentinel = "ALL"

var letters = [...]struct {
	op     Code
	letter byte
}{
	{Create, 'C'},
	{Read, 'R'},
	{Update, 'U'},
	{Delete, 'D'},
}

// Parse decodes a wire permission string such as "CRU" or "ALL".
//
// Letters are case-insensitive, may repeat and may appear in any order.
// Surrounding whitespace is ignored.
func Parse(s string) (Code, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, ErrEmptyCode
	}
	if s == allSentinel {
		return All, nil
	}

	var c Code
	for i := 0; i < len(s); i++ {
		op, ok := fromLetter(s[i])
		if !ok {
			return 0, ErrUnknownOperation
		}
		c.Set(op)
	}
	return c, nil
}

// MustParse is Parse for compile-time constants. It panics on error.
func MustParse(s string) Code {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Satisfies reports whether the granted wire code covers the required wire
// code. Any parse failure denies.
func Satisfies(granted, required string) bool {
	g, err := Parse(granted)
	if err != nil {
		return false
	}
	r, err := Parse(required)
	if err != nil {
		return false
	}
	return g.Has(r)
}

// String renders c in canonical CRUD order, or "ALL" for the sentinel.
func (c Code) String() string {
	if c.IsAll() {
		return allSentinel
	}
	var b strings.Builder
	for _, l := range letters {
		if c&l.op != 0 {
			b.WriteByte(l.letter)
		}
	}
	return b.String()
}

func (c Code) MarshalText() ([]byte, error) {
	if c&(crudMask|All) == 0 {
		return nil, ErrEmptyCode
	}
	return []byte(c.String()), nil
}

func (c *Code) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func fromLetter(b byte) (Code, bool) {
	for _, l := range letters {
		if l.letter == b {
			return l.op, true
		}
	}
	return 0, false
}
