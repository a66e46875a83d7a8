package miner

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

	"code.dogecoin.org/kadchain/internal/chain"
	"code.dogecoin.org/kadchain/internal/msg"
	"code.dogecoin.org/kadchain/internal/spec"
)

const WriteTimeout = 30 * time.Second

// MinerService runs proof-of-work searches for its node's overlay service.
// It listens on its own address, published in MinerInfo.
type MinerService struct {
	governor.ServiceCtx
	id       spec.NodeID
	listener net.Listener
	who      string
	tasks    sync.WaitGroup // connections
	// MUTEX state:
	mutex       sync.Mutex
	connections []net.Conn
	stopping    bool
}

func New(id spec.NodeID, listener net.Listener) *MinerService {
	return &MinerService{id: id, listener: listener, who: "miner " + string(id)}
}

// goroutine
func (ms *MinerService) Run() {
	ms.Serve(ms.Context)
}

func (ms *MinerService) Serve(ctx context.Context) {
	stop := context.AfterFunc(ctx, ms.Stop)
	defer stop()
	log.Printf("[%s] mining service on %v", ms.who, ms.listener.Addr())
	for {
		conn, err := ms.listener.Accept()
		if err != nil {
			if !ms.isStopping() {
				log.Printf("[%s] accept failed: %v", ms.who, err)
			}
			break
		}
		if !ms.trackConn(conn) {
			conn.Close()
			break
		}
		ms.tasks.Add(1)
		go func() {
			defer ms.tasks.Done()
			ms.serveConn(ctx, conn)
		}()
	}
	ms.tasks.Wait()
}

// called from any
func (ms *MinerService) Stop() {
	ms.mutex.Lock() // vs trackConn, closeConn
	defer ms.mutex.Unlock()
	if ms.stopping {
		return
	}
	ms.stopping = true
	ms.listener.Close()
	for _, c := range ms.connections {
		c.Close()
	}
}

func (ms *MinerService) isStopping() bool {
	ms.mutex.Lock() // vs Stop
	defer ms.mutex.Unlock()
	return ms.stopping
}

func (ms *MinerService) trackConn(conn net.Conn) bool {
	ms.mutex.Lock() // vs Stop, closeConn
	defer ms.mutex.Unlock()
	if ms.stopping {
		return false
	}
	ms.connections = append(ms.connections, conn)
	return true
}

func (ms *MinerService) closeConn(conn net.Conn) {
	conn.Close()
	ms.mutex.Lock() // vs Stop, trackConn
	defer ms.mutex.Unlock()
	for i, c := range ms.connections {
		if c == conn {
			ms.connections[i] = ms.connections[len(ms.connections)-1]
			ms.connections = ms.connections[:len(ms.connections)-1]
			break
		}
	}
}

// goroutine
func (ms *MinerService) serveConn(ctx context.Context, conn net.Conn) {
	defer ms.closeConn(conn)
	reader := bufio.NewReader(conn)
	for {
		tag, payload, err := msg.ReadMessage(reader)
		if err != nil {
			if err != io.EOF && !ms.isStopping() {
				log.Printf("[%s] bad message: %v", ms.who, err)
			}
			return
		}
		rtag, reply, err := ms.dispatch(ctx, tag, payload)
		if err != nil {
			log.Printf("[%s] %s aborted: %v", ms.who, tag.String(), err)
			return
		}
		conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
		if err := msg.WriteMessage(conn, rtag, reply); err != nil {
			return
		}
	}
}

func (ms *MinerService) dispatch(ctx context.Context, tag dnet.Tag4CC, payload []byte) (dnet.Tag4CC, []byte, error) {
	switch tag {
	case msg.TagMine:
		req, err := msg.DecodeMineRequest(payload)
		if err != nil {
			return 0, nil, err
		}
		start := time.Now()
		block, err := chain.Mine(ctx, req.Previous, req.Transactions)
		if err != nil {
			return 0, nil, err
		}
		log.Printf("[%s] found nonce %d for %d transactions in %v", ms.who, block.Nonce, len(req.Transactions), time.Since(start))
		return tag, msg.MineResponse{SourceID: ms.id, Block: block}.Encode(), nil
	case msg.TagAbort:
		// TODO: keep a cancel func per search so Abort can stop it
		if _, err := msg.DecodeAbortRequest(payload); err != nil {
			return 0, nil, err
		}
		rej := msg.Reject{Code: msg.REJECT_UNIMPLEMENTED, Reason: "abort is not implemented"}
		return msg.TagReject, rej.Encode(), nil
	default:
		return 0, nil, errors.New("unknown message tag")
	}
}
