package msg

import "code.dogecoin.org/gossip/dnet"

// A response carries the same tag as its request, or TagReject.
var (
	TagJoin               = dnet.NewTag("Join")
	TagFindNode           = dnet.NewTag("FNod")
	TagGetNeighbours      = dnet.NewTag("Nbrs")
	TagUpdateNode         = dnet.NewTag("UpdN")
	TagRemoveNode         = dnet.NewTag("RemN")
	TagTransaction        = dnet.NewTag("Tran")
	TagObtainTransactions = dnet.NewTag("OTxs")
	TagRetrieveBlockchain = dnet.NewTag("RBlk")
	TagUpdateBlockchain   = dnet.NewTag("UBlk")
	TagCreateBid          = dnet.NewTag("CBid")
	TagBidValue           = dnet.NewTag("BidV")
	TagMine               = dnet.NewTag("Mine")
	TagAbort              = dnet.NewTag("Abrt")
	TagReject             = dnet.NewTag("Rjct")
)
