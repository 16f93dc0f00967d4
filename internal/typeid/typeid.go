package typeid

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

const (
	PrefixDiagram    = "diag"
	PrefixNode       = "node"
	PrefixConnection = "conn"
	PrefixOp         = "op"
)

func New(prefix string) string {
	id := typeid.MustGenerate(prefix)
	return id.String()
}

func NewDiagramID() string    { return New(PrefixDiagram) }
func NewNodeID() string       { return New(PrefixNode) }
func NewConnectionID() string { return New(PrefixConnection) }
func NewOpID() string         { return New(PrefixOp) }

func Validate(id, expectedPrefix string) error {
	parsed, err := typeid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid typeid %q: %w", id, err)
	}
	if parsed.Prefix() != expectedPrefix {
		return fmt.Errorf("expected prefix %q but got %q in id %q", expectedPrefix, parsed.Prefix(), id)
	}
	return nil
}
