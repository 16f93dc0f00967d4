package diagram

import "errors"

var (
	ErrUnknownNodeType    = errors.New("unknown node type")
	ErrInvalidNodeData    = errors.New("invalid node data")
	ErrDanglingConnection = errors.New("connection references a missing node")
	ErrInvalidDiagram     = errors.New("invalid diagram")
)

var (
	ErrNotFound = errors.New("diagram not found")
	ErrExists   = errors.New("diagram already exists")
)
