package mechanism

import "fmt"

// DuplicateIDError reports two bodies, or two joints, sharing a name.
type DuplicateIDError struct {
	Kind string // "body" or "joint"
	Name string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Kind, e.Name)
}

// DanglingReferenceError reports a joint naming a body that does not exist.
type DanglingReferenceError struct {
	Joint string
	Body  string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("joint %q: body %q not found", e.Joint, e.Body)
}

// InvalidSpecError reports a malformed body or joint spec.
type InvalidSpecError struct {
	Kind   string
	Name   string
	Reason string
}

func (e *InvalidSpecError) Error() string {
	return fmt.Sprintf("%s %q: %s", e.Kind, e.Name, e.Reason)
}
