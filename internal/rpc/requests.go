package rpc

import (
	"context"

	"code.dogecoin.org/gossip/dnet"

	"code.dogecoin.org/kadchain/internal/msg"
	"code.dogecoin.org/kadchain/internal/spec"
)

// Join asks a bootstrap for seed contacts and its chain.
func (c *Client) Join(ctx context.Context, to dnet.Address, self spec.NodeInfo) ([]spec.NodeInfo, []spec.Block, error) {
	req := msg.JoinRequest{Node: self}
	var err error
	if req.Sig, err = c.seal(req.Content()); err != nil {
		return nil, nil, err
	}
	reply, err := c.exchange(ctx, to, msg.TagJoin, req.Encode())
	if err != nil {
		return nil, nil, err
	}
	res, err := msg.DecodeJoinResponse(reply)
	if err != nil {
		return nil, nil, err
	}
	if err := c.authenticate("", res.Content(), res.Sig); err != nil {
		return nil, nil, err
	}
	return res.Neighbours, res.Chain, nil
}

// FindNode asks a peer to locate target; nil when not found.
func (c *Client) FindNode(ctx context.Context, to dnet.Address, target spec.NodeID, hops uint8) (*spec.NodeInfo, error) {
	req := msg.FindNodeRequest{SourceID: c.local.ID(), Target: target, Hops: hops}
	var err error
	if req.Sig, err = c.seal(req.Content()); err != nil {
		return nil, err
	}
	reply, err := c.exchange(ctx, to, msg.TagFindNode, req.Encode())
	if err != nil {
		return nil, err
	}
	res, err := msg.DecodeFindNodeResponse(reply)
	if err != nil {
		return nil, err
	}
	if err := c.authenticate(res.SourceID, res.Content(), res.Sig); err != nil {
		return nil, err
	}
	return res.Node, nil
}

func (c *Client) sourceRequest(ctx context.Context, to dnet.Address, tag dnet.Tag4CC) ([]byte, error) {
	req := msg.SourceRequest{SourceID: c.local.ID()}
	var err error
	if req.Sig, err = c.seal(req.Content()); err != nil {
		return nil, err
	}
	return c.exchange(ctx, to, tag, req.Encode())
}

func (c *Client) GetNeighbours(ctx context.Context, to dnet.Address) ([]spec.NodeInfo, error) {
	reply, err := c.sourceRequest(ctx, to, msg.TagGetNeighbours)
	if err != nil {
		return nil, err
	}
	res, err := msg.DecodeNeighboursResponse(reply)
	if err != nil {
		return nil, err
	}
	if err := c.authenticate(res.SourceID, res.Content(), res.Sig); err != nil {
		return nil, err
	}
	return res.Neighbours, nil
}

// UpdateNode pushes contacts into the peer's routing table.
func (c *Client) UpdateNode(ctx context.Context, to dnet.Address, contacts []spec.NodeInfo) (bool, error) {
	req := msg.UpdateNodeRequest{SourceID: c.local.ID(), Neighbours: contacts}
	var err error
	if req.Sig, err = c.seal(req.Content()); err != nil {
		return false, err
	}
	reply, err := c.exchange(ctx, to, msg.TagUpdateNode, req.Encode())
	if err != nil {
		return false, err
	}
	return c.boolResponse(reply)
}

// RemoveNode asks the peer to drop target from its routing table.
func (c *Client) RemoveNode(ctx context.Context, to dnet.Address, target spec.NodeInfo) (bool, error) {
	req := msg.RemoveNodeRequest{SourceID: c.local.ID(), Node: target}
	var err error
	if req.Sig, err = c.seal(req.Content()); err != nil {
		return false, err
	}
	reply, err := c.exchange(ctx, to, msg.TagRemoveNode, req.Encode())
	if err != nil {
		return false, err
	}
	return c.boolResponse(reply)
}

func (c *Client) boolResponse(reply []byte) (bool, error) {
	res, err := msg.DecodeBoolResponse(reply)
	if err != nil {
		return false, err
	}
	if err := c.authenticate(res.SourceID, res.Content(), res.Sig); err != nil {
		return false, err
	}
	return res.OK, nil
}

// Transaction submits or relays a transaction from sender.
func (c *Client) Transaction(ctx context.Context, to dnet.Address, sender spec.NodeID, value int64, destination spec.NodeID) (string, error) {
	req := msg.TransactionRequest{SourceID: c.local.ID(), Sender: sender, Value: value, Destination: destination}
	var err error
	if req.Sig, err = c.seal(req.Content()); err != nil {
		return "", err
	}
	reply, err := c.exchange(ctx, to, msg.TagTransaction, req.Encode())
	if err != nil {
		return "", err
	}
	res, err := msg.DecodeTransactionResponse(reply)
	if err != nil {
		return "", err
	}
	if err := c.authenticate(res.SourceID, res.Content(), res.Sig); err != nil {
		return "", err
	}
	return res.State, nil
}

// ObtainTransactions lists the transactions the peer has received.
func (c *Client) ObtainTransactions(ctx context.Context, to dnet.Address) ([]string, error) {
	reply, err := c.sourceRequest(ctx, to, msg.TagObtainTransactions)
	if err != nil {
		return nil, err
	}
	res, err := msg.DecodeTransactionsResponse(reply)
	if err != nil {
		return nil, err
	}
	if err := c.authenticate(res.SourceID, res.Content(), res.Sig); err != nil {
		return nil, err
	}
	return res.Transactions, nil
}

func (c *Client) RetrieveBlockchain(ctx context.Context, to dnet.Address) ([]spec.Block, error) {
	reply, err := c.sourceRequest(ctx, to, msg.TagRetrieveBlockchain)
	if err != nil {
		return nil, err
	}
	res, err := msg.DecodeChainResponse(reply)
	if err != nil {
		return nil, err
	}
	if err := c.authenticate(res.SourceID, res.Content(), res.Sig); err != nil {
		return nil, err
	}
	return res.Chain, nil
}

// UpdateBlockchain offers a new block. A nil error means it was accepted.
func (c *Client) UpdateBlockchain(ctx context.Context, to dnet.Address, block spec.Block) error {
	req := msg.UpdateBlockchainRequest{SourceID: c.local.ID(), Block: block}
	var err error
	if req.Sig, err = c.seal(req.Content()); err != nil {
		return err
	}
	reply, err := c.exchange(ctx, to, msg.TagUpdateBlockchain, req.Encode())
	if err != nil {
		return err
	}
	res, err := msg.DecodeSourceRequest(reply)
	if err != nil {
		return err
	}
	return c.authenticate(res.SourceID, res.Content(), res.Sig)
}

func (c *Client) CreateBid(ctx context.Context, to dnet.Address, value int64) error {
	req := msg.CreateBidRequest{SourceID: c.local.ID(), Value: value}
	var err error
	if req.Sig, err = c.seal(req.Content()); err != nil {
		return err
	}
	_, err = c.exchange(ctx, to, msg.TagCreateBid, req.Encode())
	return err
}

func (c *Client) BidValue(ctx context.Context, to dnet.Address, bidID string) error {
	req := msg.BidValueRequest{SourceID: c.local.ID(), BidID: bidID}
	var err error
	if req.Sig, err = c.seal(req.Content()); err != nil {
		return err
	}
	_, err = c.exchange(ctx, to, msg.TagBidValue, req.Encode())
	return err
}

// Mine asks the local mining service for a block. Not signed.
func (c *Client) Mine(ctx context.Context, to dnet.Address, previous spec.Block, transactions []string) (spec.Block, error) {
	req := msg.MineRequest{SourceID: c.local.ID(), Previous: previous, Transactions: transactions}
	reply, err := c.exchange(ctx, to, msg.TagMine, req.Encode())
	if err != nil {
		return spec.Block{}, err
	}
	res, err := msg.DecodeMineResponse(reply)
	if err != nil {
		return spec.Block{}, err
	}
	return res.Block, nil
}

func (c *Client) Abort(ctx context.Context, to dnet.Address) error {
	req := msg.AbortRequest{SourceID: c.local.ID()}
	_, err := c.exchange(ctx, to, msg.TagAbort, req.Encode())
	return err
}
