package overlay

import (
	"context"
	"log"

	"code.dogecoin.org/kadchain/internal/node"
	"code.dogecoin.org/kadchain/internal/rpc"
)

// Refresh pings every neighbour and removes those that do not answer.
// Returns the number still active.
func Refresh(ctx context.Context, n *node.Node, client *rpc.Client) (int, error) {
	self := n.Info()
	neighbours, err := client.GetNeighbours(ctx, self.Address())
	if err != nil {
		return 0, err
	}
	active := 0
	for _, c := range neighbours {
		if client.Ping(ctx, c.Address()) {
			active++
			continue
		}
		if ctx.Err() != nil {
			return active, ctx.Err()
		}
		if _, err := client.RemoveNode(ctx, self.Address(), c); err != nil {
			log.Printf("[%s] cannot remove %s: %v", self.ID, c.ID, err)
		}
	}
	return active, nil
}
