package keys

import "fmt"

// Operation is the kind of write a mutation performs on an entity.
type Operation int

const (
	OpCreate Operation = iota + 1
	OpUpdate
	OpDelete
)

func (o Operation) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("operation(%d)", int(o))
	}
}

// ParseOperation maps the textual form back to an Operation.
func ParseOperation(s string) (Operation, error) {
	switch s {
	case "create":
		return OpCreate, nil
	case "update":
		return OpUpdate, nil
	case "delete":
		return OpDelete, nil
	}
	return 0, fmt.Errorf("keys: unknown operation %q", s)
}
