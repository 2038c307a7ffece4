package permission

// Code is the set of operations granted to a profile. The low bits hold
// Create, Read, Update and Delete; the highest bit is the ALL sentinel and
// grants every operation including ones added later.
type Code uint8

const (
	Create Code = 1 << iota
	Read
	Update
	Delete

	// All is reserved on the highest bit so that widening the operation set
	// never collides with it.
	All Code = 1 << 7

	crudMask = Create | Read | Update | Delete
)

// Has reports whether every operation in required is granted by c.
//
// An empty required set is never satisfied. Requiring All is satisfied only
// by a code that carries the All bit itself.
func (c Code) Has(required Code) bool {
	if required == 0 {
		return false
	}
	if c&All != 0 {
		return true
	}
	if required&All != 0 {
		return false
	}
	return c&required == required
}

func (c *Code) Set(op Code) {
	*c |= op
}

func (c *Code) Clear(op Code) {
	*c &^= op
}

// IsAll reports whether the ALL sentinel is present.
func (c Code) IsAll() bool {
	return c&All != 0
}

func (c Code) Raw() uint8 {
	return uint8(c)
}
