package spec

import "context"

// Operator is the surface exposed to a node's operator (web API).
type Operator interface {
	Info() NodeInfo
	Neighbours() []NodeInfo
	Quantities() []int
	Chain() []Block
	SendTransaction(ctx context.Context, value int64, destination NodeID) (sent int, err error)
	FindNode(ctx context.Context, id NodeID) (*NodeInfo, error)
}
