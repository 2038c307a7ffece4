package permission

import "testing"

// FuzzParse exercises the wire codec with arbitrary strings.
// Goal: no panics; anything that parses renders to a canonical form that
// parses back to the same code.
func FuzzParse(f *testing.F) {
	f.Add("CRUD")
	f.Add("ALL")
	f.Add("r")
	f.Add("")
	f.Add("CRX")
	f.Add("alll")
	f.Add("\x00C")

	f.Fuzz(func(t *testing.T, s string) {
		c, err := Parse(s)
		if err != nil {
			return
		}

		text, err := c.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText failed after successful Parse(%q): %v", s, err)
		}

		var back Code
		if err := back.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q) failed: %v", text, err)
		}
		if back != c {
			t.Fatalf("roundtrip mismatch: %08b vs %08b", back, c)
		}
	})
}
