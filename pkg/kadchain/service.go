package kadchain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"code.dogecoin.org/gossip/dnet"
	"code.dogecoin.org/governor"

	"code.dogecoin.org/kadchain/internal/chain"
	"code.dogecoin.org/kadchain/internal/identity"
	"code.dogecoin.org/kadchain/internal/miner"
	"code.dogecoin.org/kadchain/internal/netsvc"
	"code.dogecoin.org/kadchain/internal/node"
	"code.dogecoin.org/kadchain/internal/overlay"
	"code.dogecoin.org/kadchain/internal/rpc"
	"code.dogecoin.org/kadchain/internal/spec"
	"code.dogecoin.org/kadchain/internal/store"
	"code.dogecoin.org/kadchain/internal/web"
)

type KadChainConfig struct {
	IP            string
	Port          uint16 // 0: ephemeral
	Bootstrap     bool
	Miner         bool
	Bootstraps    []dnet.Address
	Batch         int           // TRANSACTION_NUMBER
	RefreshPeriod time.Duration // REFRESH_PERIOD
	DBFile        string        // SQLite DSN; store.MemoryDSN if empty
	BindWeb       string        // operator API; none if empty
	KeyBoundID    bool          // derive the NodeID from the public key
	ID            spec.NodeID   // fixed NodeID, mostly for tests
}

// DefaultBootstraps are the well-known bootstrap ports on localhost.
func DefaultBootstraps() []dnet.Address {
	var res []dnet.Address
	for _, port := range spec.BootstrapPorts {
		res = append(res, dnet.Address{Host: net.ParseIP(spec.DefaultIP), Port: port})
	}
	return res
}

// Peer is one node with its services.
type Peer struct {
	node       *node.Node
	client     *rpc.Client
	db         spec.Store
	net        *netsvc.NetService
	miner      *miner.MinerService // nil unless mining
	maintainer *overlay.Maintainer
	web        governor.Service // nil without BindWeb
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

var _ spec.Operator = &Peer{}

// New creates the node identity and binds its listeners.
func New(ctx context.Context, cfg KadChainConfig) (p *Peer, err error) {
	if cfg.IP == "" {
		cfg.IP = spec.DefaultIP
	}
	if cfg.RefreshPeriod <= 0 {
		cfg.RefreshPeriod = spec.RefreshPeriod
	}
	if cfg.DBFile == "" {
		cfg.DBFile = store.MemoryDSN
	}
	keys, err := identity.Generate()
	if err != nil {
		return nil, err
	}
	id := cfg.ID
	switch {
	case id != "":
		if !id.IsValid() {
			return nil, fmt.Errorf("invalid node id %q", id)
		}
	case cfg.KeyBoundID:
		id = identity.NodeIDFromPublicKey(keys.Pub)
	default:
		if id, err = identity.NewNodeID(); err != nil {
			return nil, err
		}
	}

	var closers []func()
	defer func() {
		if err != nil {
			for _, c := range closers {
				c()
			}
		}
	}()
	listener, err := netsvc.Listen(ctx, net.JoinHostPort(cfg.IP, strconv.Itoa(int(cfg.Port))))
	if err != nil {
		return nil, err
	}
	closers = append(closers, func() { listener.Close() })
	info := spec.NodeInfo{
		ID:        id,
		IP:        cfg.IP,
		Port:      uint16(listener.Addr().(*net.TCPAddr).Port),
		PublicKey: keys.Pub,
		Bootstrap: cfg.Bootstrap,
		Miner:     cfg.Miner,
	}

	var minerInfo *chain.MinerInfo
	var minerListener net.Listener
	if cfg.Miner {
		minerListener, err = netsvc.Listen(ctx, net.JoinHostPort(cfg.IP, "0"))
		if err != nil {
			return nil, err
		}
		closers = append(closers, func() { minerListener.Close() })
		minerInfo = chain.NewMinerInfo(minerListener.Addr().String(), cfg.Batch)
	}

	db, err := store.NewSQLiteStore(cfg.DBFile, ctx)
	if err != nil {
		log.Printf("Error opening database: %v [%s]\n", err, cfg.DBFile)
		return nil, err
	}

	n := node.New(node.Config{Info: info, Keys: keys, Miner: minerInfo, Store: db.WithCtx(context.Background())})
	client := rpc.New(n)
	p = &Peer{
		node:       n,
		client:     client,
		db:         db,
		net:        netsvc.New(n, client, listener),
		maintainer: overlay.NewMaintainer(n, client, cfg.Bootstraps, cfg.RefreshPeriod),
	}
	if cfg.Miner {
		p.miner = miner.New(id, minerListener)
	}
	if cfg.BindWeb != "" {
		p.web = web.New(cfg.BindWeb, p, db)
	}
	log.Printf("[%s] node %s on %v (bootstrap=%t miner=%t)", id, id, info.Address(), info.Bootstrap, info.Miner)
	return p, nil
}

// AddServices hands every service of the peer to a governor.
func (p *Peer) AddServices(gov governor.Governor) {
	gov.Add("overlay", p.net)
	if p.miner != nil {
		gov.Add("miner", p.miner)
	}
	gov.Add("maintain", p.maintainer)
	if p.web != nil {
		gov.Add("web-api", p.web)
	}
}

// Start runs the peer's services without a governor (web API excluded).
// Close stops them.
func (p *Peer) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	run := func(f func(context.Context)) {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			f(ctx)
		}()
	}
	run(p.net.Serve)
	if p.miner != nil {
		run(p.miner.Serve)
	}
	run(p.maintainer.Loop)
}

func (p *Peer) Close() {
	if p.cancel != nil {
		p.cancel()
	}
	p.net.Stop()
	if p.miner != nil {
		p.miner.Stop()
	}
	p.wg.Wait()
	p.db.Close()
}

// Joined is closed once the peer has joined the overlay.
func (p *Peer) Joined() <-chan struct{} {
	return p.maintainer.Joined()
}

func (p *Peer) Node() *node.Node {
	return p.node
}

func (p *Peer) Client() *rpc.Client {
	return p.client
}

// OPERATOR

func (p *Peer) Info() spec.NodeInfo {
	return p.node.Info()
}

func (p *Peer) Neighbours() []spec.NodeInfo {
	return p.node.Neighbours()
}

func (p *Peer) Quantities() []int {
	return p.node.Quantities()
}

func (p *Peer) Chain() []spec.Block {
	return p.node.Chain()
}

// SendTransaction sends a transaction from this node to every neighbour.
// Returns how many accepted it.
func (p *Peer) SendTransaction(ctx context.Context, value int64, destination spec.NodeID) (int, error) {
	nbrs := p.node.Neighbours()
	if len(nbrs) == 0 {
		return 0, errors.New("no neighbours")
	}
	self := p.node.ID()
	sent := 0
	for _, n := range nbrs {
		state, err := p.client.Transaction(ctx, n.Address(), self, value, destination)
		if err != nil {
			log.Printf("[%s] transaction to %s: %v", self, n.ID, err)
			continue
		}
		if state != "" {
			log.Printf("[%s] transaction %s by %s", self, state, n.ID)
		}
		sent++
	}
	return sent, nil
}

// FindNode runs a lookup starting at this node.
func (p *Peer) FindNode(ctx context.Context, id spec.NodeID) (*spec.NodeInfo, error) {
	return p.client.FindNode(ctx, p.node.Info().Address(), id, 0)
}

// ReceivedTransactions lists transactions addressed to this node.
func (p *Peer) ReceivedTransactions(ctx context.Context) ([]string, error) {
	return p.client.ObtainTransactions(ctx, p.node.Info().Address())
}
