package netsvc

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"code.dogecoin.org/gossip/dnet"
	"code.dogecoin.org/governor"

	"code.dogecoin.org/kadchain/internal/msg"
	"code.dogecoin.org/kadchain/internal/node"
	"code.dogecoin.org/kadchain/internal/rpc"
)

// IdleTimeout closes connections that send nothing.
const IdleTimeout = 60 * time.Second

const WriteTimeout = 30 * time.Second

// MaxFindHops bounds FindNode recursion.
const MaxFindHops = 3

// NetService serves the overlay RPCs of one node.
type NetService struct {
	governor.ServiceCtx
	node     *node.Node
	client   *rpc.Client
	listener net.Listener
	who      string
	tasks    sync.WaitGroup // connections, relays and floods
	// MUTEX state:
	mutex       sync.Mutex
	connections []net.Conn // all current network connections
	stopping    bool
}

func New(n *node.Node, client *rpc.Client, listener net.Listener) *NetService {
	return &NetService{
		node:     n,
		client:   client,
		listener: listener,
		who:      "overlay " + string(n.ID()),
	}
}

// goroutine
func (ns *NetService) Run() {
	ns.Serve(ns.Context)
}

// Serve accepts connections until ctx is cancelled or Stop is called.
func (ns *NetService) Serve(ctx context.Context) {
	stop := context.AfterFunc(ctx, ns.Stop)
	defer stop()
	log.Printf("[%s] listening on %v", ns.who, ns.listener.Addr())
	for {
		conn, err := ns.listener.Accept()
		if err != nil {
			if !ns.isStopping() {
				log.Printf("[%s] accept failed: %v", ns.who, err)
			}
			break
		}
		if !ns.trackConn(conn) {
			conn.Close()
			break
		}
		ns.spawn(func() { ns.serveConn(ctx, conn) })
	}
	ns.tasks.Wait()
}

// called from any
func (ns *NetService) Stop() {
	ns.mutex.Lock() // vs trackConn, closeConn
	defer ns.mutex.Unlock()
	if ns.stopping {
		return
	}
	ns.stopping = true
	ns.listener.Close()
	for _, c := range ns.connections {
		c.Close()
	}
}

func (ns *NetService) isStopping() bool {
	ns.mutex.Lock() // vs Stop
	defer ns.mutex.Unlock()
	return ns.stopping
}

// returns false if service is stopping
func (ns *NetService) trackConn(conn net.Conn) bool {
	ns.mutex.Lock() // vs Stop, closeConn
	defer ns.mutex.Unlock()
	if ns.stopping {
		return false
	}
	ns.connections = append(ns.connections, conn)
	return true
}

func (ns *NetService) closeConn(conn net.Conn) {
	conn.Close()
	ns.mutex.Lock() // vs Stop, trackConn
	defer ns.mutex.Unlock()
	for i, c := range ns.connections {
		if c == conn {
			// remove from unordered array
			ns.connections[i] = ns.connections[len(ns.connections)-1]
			ns.connections = ns.connections[:len(ns.connections)-1]
			break
		}
	}
}

// goroutine
func (ns *NetService) serveConn(ctx context.Context, conn net.Conn) {
	defer ns.closeConn(conn)
	reader := bufio.NewReader(conn)
	for {
		conn.SetReadDeadline(time.Now().Add(IdleTimeout))
		tag, payload, err := msg.ReadMessage(reader)
		if err != nil {
			if err != io.EOF && !ns.isStopping() {
				log.Printf("[%s] bad message from %v: %v", ns.who, conn.RemoteAddr(), err)
			}
			return // pings close without sending
		}
		reply, err := ns.dispatch(ctx, tag, payload)
		rtag := tag
		if err != nil {
			if !errors.Is(err, msg.ErrUnimplemented) {
				// aborted handlers do not respond
				log.Printf("[%s] %s from %v aborted: %v", ns.who, tag.String(), conn.RemoteAddr(), err)
				return
			}
			rtag = msg.TagReject
			reply = msg.Reject{Code: msg.REJECT_UNIMPLEMENTED, Reason: tag.String() + " is not implemented"}.Encode()
		}
		conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
		if err := msg.WriteMessage(conn, rtag, reply); err != nil {
			log.Printf("[%s] cannot reply to %v: %v", ns.who, conn.RemoteAddr(), err)
			return
		}
	}
}

// spawn runs a transient task that finishes before Serve returns.
func (ns *NetService) spawn(task func()) {
	ns.tasks.Add(1)
	go func() {
		defer ns.tasks.Done()
		task()
	}()
}

func (ns *NetService) dispatch(ctx context.Context, tag dnet.Tag4CC, payload []byte) ([]byte, error) {
	switch tag {
	case msg.TagJoin:
		return ns.handleJoin(payload)
	case msg.TagFindNode:
		return ns.handleFindNode(ctx, payload)
	case msg.TagGetNeighbours:
		return ns.handleGetNeighbours(payload)
	case msg.TagUpdateNode:
		return ns.handleUpdateNode(payload)
	case msg.TagRemoveNode:
		return ns.handleRemoveNode(payload)
	case msg.TagTransaction:
		return ns.handleTransaction(ctx, payload)
	case msg.TagObtainTransactions:
		return ns.handleObtainTransactions(payload)
	case msg.TagRetrieveBlockchain:
		return ns.handleRetrieveBlockchain(payload)
	case msg.TagUpdateBlockchain:
		return ns.handleUpdateBlockchain(ctx, payload)
	case msg.TagCreateBid:
		return ns.handleCreateBid(payload)
	case msg.TagBidValue:
		return ns.handleBidValue(payload)
	default:
		return nil, errors.New("unknown message tag")
	}
}
