package vm

// Type is an enumeration of Lunar runtime types.
type Type int

// TypeNone is the type reported for a non-valid but acceptable stack index
// and for an empty (never-assigned) reference. It is distinct from TypeNil.
const TypeNone Type = Type(-1)

// Value types.
const (
	TypeNil Type = iota
	TypeBoolean
	TypeNumber
	TypeString
	TypeTable
	TypeFunction
	TypeUserdata
	TypeThread
)

// String returns the name of the type.
func (t Type) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeNil:
		return "nil"
	case TypeBoolean:
		return "boolean"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeTable:
		return "table"
	case TypeFunction:
		return "function"
	case TypeUserdata:
		return "userdata"
	case TypeThread:
		return "thread"
	default:
		return "unknown"
	}
}
