package netsvc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"slices"

	"code.dogecoin.org/kadchain/internal/chain"
	"code.dogecoin.org/kadchain/internal/msg"
	"code.dogecoin.org/kadchain/internal/rpc"
	"code.dogecoin.org/kadchain/internal/spec"
)

// authenticate pins the key of a known source, then checks the signature.
func (ns *NetService) authenticate(source spec.NodeID, content string, env msg.Envelope) error {
	if err := ns.node.CheckKey(source, env.PublicKey); err != nil {
		return err
	}
	return env.Verify(content)
}

func (ns *NetService) seal(content string) (msg.Envelope, error) {
	return msg.Seal(ns.node, content)
}

func hasID(list []spec.NodeInfo, id spec.NodeID) bool {
	return slices.ContainsFunc(list, func(n spec.NodeInfo) bool { return n.ID == id })
}

func (ns *NetService) handleJoin(payload []byte) ([]byte, error) {
	req, err := msg.DecodeJoinRequest(payload)
	if err != nil {
		return nil, err
	}
	sender := req.Node
	if err := ns.authenticate(sender.ID, req.Content(), req.Sig); err != nil {
		return nil, err
	}
	if !bytes.Equal(sender.PublicKey, req.Sig.PublicKey) {
		return nil, errors.New("join: signing key differs from node info")
	}
	var res msg.JoinResponse
	self := ns.node.Info()
	if self.Bootstrap {
		var list []spec.NodeInfo
		if sender.Bootstrap {
			list = ns.node.Neighbours()
		} else {
			list = ns.node.Closest(sender.ID, spec.KSize)
		}
		list = slices.DeleteFunc(list, func(n spec.NodeInfo) bool { return n.ID == sender.ID })
		list = append(list, self)
		for _, b := range ns.node.Bootstraps() {
			if b.ID != sender.ID && !hasID(list, b.ID) {
				list = append(list, b)
			}
		}
		res.Neighbours = list
		res.Chain = ns.node.Chain()
	}
	// non-bootstraps answer with empty lists: the joiner asks elsewhere
	if res.Sig, err = ns.seal(res.Content()); err != nil {
		return nil, err
	}
	return res.Encode(), nil
}

func (ns *NetService) handleFindNode(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := msg.DecodeFindNodeRequest(payload)
	if err != nil {
		return nil, err
	}
	if err := ns.authenticate(req.SourceID, req.Content(), req.Sig); err != nil {
		return nil, err
	}
	res := msg.FindNodeResponse{SourceID: ns.node.ID()}
	res.Node = ns.findNode(ctx, req)
	if res.Sig, err = ns.seal(res.Content()); err != nil {
		return nil, err
	}
	return res.Encode(), nil
}

// findNode is a depth-first lookup: a direct neighbour wins, otherwise
// the first contact near the target that finds it.
func (ns *NetService) findNode(ctx context.Context, req msg.FindNodeRequest) *spec.NodeInfo {
	self := ns.node.Info()
	if req.Target == self.ID {
		return &self
	}
	if found, ok := ns.node.Neighbour(req.Target); ok {
		return &found
	}
	if req.Hops >= MaxFindHops {
		return nil
	}
	candidates := ns.node.Closest(req.Target, 0)
	if len(candidates) == 0 {
		// nothing near the target: ask whoever we know
		candidates = ns.node.Neighbours()
	}
	for _, c := range candidates {
		if c.ID == req.SourceID {
			continue
		}
		found, err := ns.client.FindNode(ctx, c.Address(), req.Target, req.Hops+1)
		if err != nil {
			log.Printf("[%s] find %s via %s: %v", ns.who, req.Target, c.ID, err)
			continue
		}
		if found != nil {
			return found
		}
	}
	return nil
}

func (ns *NetService) handleGetNeighbours(payload []byte) ([]byte, error) {
	req, err := msg.DecodeSourceRequest(payload)
	if err != nil {
		return nil, err
	}
	if err := ns.authenticate(req.SourceID, req.Content(), req.Sig); err != nil {
		return nil, err
	}
	res := msg.NeighboursResponse{SourceID: ns.node.ID(), Neighbours: ns.node.Neighbours()}
	if res.Sig, err = ns.seal(res.Content()); err != nil {
		return nil, err
	}
	return res.Encode(), nil
}

func (ns *NetService) handleUpdateNode(payload []byte) ([]byte, error) {
	req, err := msg.DecodeUpdateNodeRequest(payload)
	if err != nil {
		return nil, err
	}
	if err := ns.authenticate(req.SourceID, req.Content(), req.Sig); err != nil {
		return nil, err
	}
	ns.node.AddContacts(req.Neighbours)
	res := msg.BoolResponse{SourceID: ns.node.ID(), OK: true}
	if res.Sig, err = ns.seal(res.Content()); err != nil {
		return nil, err
	}
	return res.Encode(), nil
}

func (ns *NetService) handleRemoveNode(payload []byte) ([]byte, error) {
	req, err := msg.DecodeRemoveNodeRequest(payload)
	if err != nil {
		return nil, err
	}
	if err := ns.authenticate(req.SourceID, req.Content(), req.Sig); err != nil {
		return nil, err
	}
	removed := ns.node.Remove(req.Node.ID)
	if removed {
		log.Printf("[%s] removed contact %s", ns.who, req.Node.ID)
	}
	res := msg.BoolResponse{SourceID: ns.node.ID(), OK: removed}
	if res.Sig, err = ns.seal(res.Content()); err != nil {
		return nil, err
	}
	return res.Encode(), nil
}

func (ns *NetService) handleTransaction(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := msg.DecodeTransactionRequest(payload)
	if err != nil {
		return nil, err
	}
	if err := ns.authenticate(req.SourceID, req.Content(), req.Sig); err != nil {
		return nil, err
	}
	self := ns.node.Info()
	tx := req.Record()
	state := ""
	if miner := ns.node.Miner(); miner != nil {
		var batch []string
		state, batch = miner.Write(tx)
		if batch != nil {
			ns.mineBatch(ctx, miner, batch)
		}
	}
	if self.Bootstrap {
		ns.relayTransaction(ctx, req)
	}
	if req.Destination == self.ID {
		if err := ns.node.Store().AddTransaction(tx); err != nil {
			return nil, fmt.Errorf("cannot record transaction: %w", err)
		}
	}
	res := msg.TransactionResponse{SourceID: self.ID, State: state}
	if res.Sig, err = ns.seal(res.Content()); err != nil {
		return nil, err
	}
	return res.Encode(), nil
}

// relayTransaction forwards to every non-bootstrap neighbour.
func (ns *NetService) relayTransaction(ctx context.Context, req msg.TransactionRequest) {
	for _, n := range ns.node.Neighbours() {
		if n.Bootstrap || n.ID == req.SourceID {
			continue
		}
		to := n
		ns.spawn(func() {
			if _, err := ns.client.Transaction(ctx, to.Address(), req.Sender, req.Value, req.Destination); err != nil {
				log.Printf("[%s] relay to %s: %v", ns.who, to.ID, err)
			}
		})
	}
}

// mineBatch asks the local mining service for a block, commits it
// and propagates it.
func (ns *NetService) mineBatch(ctx context.Context, miner *chain.MinerInfo, batch []string) {
	ok := false
	defer func() { miner.Mined(ok) }()
	addr, err := spec.ParseHostPort(miner.ListenAddr)
	if err != nil {
		log.Printf("[%s] mining service: %v", ns.who, err)
		return
	}
	block, err := ns.client.Mine(ctx, addr, ns.node.Tip(), batch)
	if err != nil {
		log.Printf("[%s] mining failed: %v", ns.who, err)
		return
	}
	height, err := ns.node.AppendBlock(block)
	if err != nil {
		log.Printf("[%s] mined block is stale: %v", ns.who, err)
		return
	}
	ok = true
	log.Printf("[%s] mined block %d: %s", ns.who, height, chain.Digest(block))
	ns.propagate(ctx, block)
}

// propagate hands a new block to a bootstrap, which floods it.
// A bootstrap floods it directly.
func (ns *NetService) propagate(ctx context.Context, block spec.Block) {
	if ns.node.Info().Bootstrap {
		ns.flood(ctx, block, "")
		return
	}
	for _, b := range ns.node.Bootstraps() {
		err := ns.client.UpdateBlockchain(ctx, b.Address(), block)
		if err == nil {
			return
		}
		log.Printf("[%s] bootstrap %s refused block: %v", ns.who, b.ID, err)
	}
	log.Printf("[%s] no bootstrap accepted block %s", ns.who, chain.Digest(block))
}

// flood forwards an accepted block to every neighbour except its source.
// Peers that already hold it reject it, which ends the flood.
func (ns *NetService) flood(ctx context.Context, block spec.Block, source spec.NodeID) {
	for _, n := range ns.node.Neighbours() {
		if n.ID == source {
			continue
		}
		to := n
		ns.spawn(func() {
			err := ns.client.UpdateBlockchain(ctx, to.Address(), block)
			if err != nil && !errors.Is(err, rpc.ErrNoResponse) {
				log.Printf("[%s] flood to %s: %v", ns.who, to.ID, err)
			}
		})
	}
}

func (ns *NetService) handleObtainTransactions(payload []byte) ([]byte, error) {
	req, err := msg.DecodeSourceRequest(payload)
	if err != nil {
		return nil, err
	}
	if err := ns.authenticate(req.SourceID, req.Content(), req.Sig); err != nil {
		return nil, err
	}
	txs, err := ns.node.Store().Transactions()
	if err != nil {
		return nil, err
	}
	res := msg.TransactionsResponse{SourceID: ns.node.ID(), Transactions: txs}
	if res.Sig, err = ns.seal(res.Content()); err != nil {
		return nil, err
	}
	return res.Encode(), nil
}

func (ns *NetService) handleRetrieveBlockchain(payload []byte) ([]byte, error) {
	req, err := msg.DecodeSourceRequest(payload)
	if err != nil {
		return nil, err
	}
	if err := ns.authenticate(req.SourceID, req.Content(), req.Sig); err != nil {
		return nil, err
	}
	res := msg.ChainResponse{SourceID: ns.node.ID(), Chain: ns.node.Chain()}
	if res.Sig, err = ns.seal(res.Content()); err != nil {
		return nil, err
	}
	return res.Encode(), nil
}

func (ns *NetService) handleUpdateBlockchain(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := msg.DecodeUpdateBlockchainRequest(payload)
	if err != nil {
		return nil, err
	}
	if err := ns.authenticate(req.SourceID, req.Content(), req.Sig); err != nil {
		return nil, err
	}
	height, err := ns.node.AppendBlock(req.Block)
	if err != nil {
		return nil, err
	}
	log.Printf("[%s] accepted block %d from %s", ns.who, height, req.SourceID)
	if ns.node.Info().Bootstrap {
		ns.flood(ctx, req.Block, req.SourceID)
	}
	res := msg.UpdateBlockchainResponse{SourceID: ns.node.ID()}
	if res.Sig, err = ns.seal(res.Content()); err != nil {
		return nil, err
	}
	return res.Encode(), nil
}

func (ns *NetService) handleCreateBid(payload []byte) ([]byte, error) {
	req, err := msg.DecodeCreateBidRequest(payload)
	if err != nil {
		return nil, err
	}
	if err := ns.authenticate(req.SourceID, req.Content(), req.Sig); err != nil {
		return nil, err
	}
	return nil, msg.ErrUnimplemented
}

func (ns *NetService) handleBidValue(payload []byte) ([]byte, error) {
	req, err := msg.DecodeBidValueRequest(payload)
	if err != nil {
		return nil, err
	}
	if err := ns.authenticate(req.SourceID, req.Content(), req.Sig); err != nil {
		return nil, err
	}
	return nil, msg.ErrUnimplemented
}
