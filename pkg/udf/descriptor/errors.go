package descriptor

import "fmt"

// UnknownTagIdentifierError is returned when a descriptor tag carries an identifier outside of the recognized set.
type UnknownTagIdentifierError struct {
	ID     uint16
	Offset int64
}

func (e *UnknownTagIdentifierError) Error() string {
	return fmt.Sprintf("unknown descriptor tag identifier %d at offset %d", e.ID, e.Offset)
}

// UnexpectedTagError is returned when a descriptor at a fixed location is not of the required kind.
type UnexpectedTagError struct {
	Offset   int64
	Expected TagIdentifier
	Actual   TagIdentifier
}

func (e *UnexpectedTagError) Error() string {
	return fmt.Sprintf("unexpected descriptor tag %s at offset %d, expected %s", e.Actual, e.Offset, e.Expected)
}
