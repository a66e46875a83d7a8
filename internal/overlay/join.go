package overlay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"code.dogecoin.org/gossip/dnet"

	"code.dogecoin.org/kadchain/internal/node"
	"code.dogecoin.org/kadchain/internal/rpc"
	"code.dogecoin.org/kadchain/internal/spec"
)

// ErrNoSeeds means no bootstrap gave a usable answer.
var ErrNoSeeds = errors.New("no bootstrap answered the join")

type answer struct {
	neighbours []spec.NodeInfo
	chain      []spec.Block
}

// Join enters the overlay through the bootstraps and returns the seed
// contacts. A bootstrap asks only the first other bootstrap that answers;
// when none does, it is the first bootstrap and starts alone.
func Join(ctx context.Context, n *node.Node, client *rpc.Client, bootstraps []dnet.Address) ([]spec.NodeInfo, error) {
	self := n.Info()
	selfAddr := self.Address().String()
	var answers []answer
	if self.Bootstrap {
		for _, addr := range bootstraps {
			if addr.String() == selfAddr {
				continue
			}
			nbrs, chain, err := client.Join(ctx, addr, self)
			if err != nil {
				log.Printf("[%s] join via %v: %v", self.ID, addr, err)
				continue
			}
			answers = append(answers, answer{nbrs, chain})
			break
		}
		if len(answers) == 0 {
			log.Printf("[%s] no other bootstrap: starting a new overlay", self.ID)
			return nil, nil
		}
	} else {
		answers = askAll(ctx, client, self, bootstraps)
	}

	lists := make([][]spec.NodeInfo, len(answers))
	for i, a := range answers {
		lists[i] = a.neighbours
	}
	win := plurality(lists)
	if win < 0 {
		return nil, ErrNoSeeds
	}
	seeds := answers[win].neighbours

	// announce ourselves to every seed, then take the seeds in
	for _, s := range seeds {
		if s.ID == self.ID {
			continue
		}
		if _, err := client.UpdateNode(ctx, s.Address(), []spec.NodeInfo{self}); err != nil {
			log.Printf("[%s] cannot announce to %s: %v", self.ID, s.ID, err)
		}
	}
	if _, err := client.UpdateNode(ctx, self.Address(), seeds); err != nil {
		return nil, fmt.Errorf("cannot update own table: %w", err)
	}
	if n.AdoptChain(answers[win].chain) {
		log.Printf("[%s] adopted chain of %d blocks", self.ID, len(answers[win].chain))
	}
	return seeds, nil
}

// askAll queries every bootstrap at once; answers keep bootstrap order.
func askAll(ctx context.Context, client *rpc.Client, self spec.NodeInfo, bootstraps []dnet.Address) []answer {
	results := make([]*answer, len(bootstraps))
	var wg sync.WaitGroup
	for i, addr := range bootstraps {
		wg.Add(1)
		go func(i int, addr dnet.Address) {
			defer wg.Done()
			nbrs, chain, err := client.Join(ctx, addr, self)
			if err != nil {
				log.Printf("[%s] join via %v: %v", self.ID, addr, err)
				return
			}
			results[i] = &answer{nbrs, chain}
		}(i, addr)
	}
	wg.Wait()
	var answers []answer
	for _, r := range results {
		if r != nil {
			answers = append(answers, *r)
		}
	}
	return answers
}
