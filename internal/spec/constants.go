package spec

import "time"

// IDSize is the length of a NodeID in hex digits (40 bits).
const IDSize = 10

// NBuckets is one bucket per bit of NodeID.
const NBuckets = IDSize * 4

// KSize is the bucket capacity on ordinary nodes.
const KSize = 5

// RefreshPeriod is how often bootstraps ping their contacts.
const RefreshPeriod = 5 * time.Second

// PrefixLength is the number of leading '0' hex digits a mined block needs.
const PrefixLength = 2

// TransactionNumber is the default size of a mining batch.
const TransactionNumber = 10

// Genesis is the prev_hash of the first block on every chain.
const Genesis = "00f151242e0010e58cde0d6644d9db53a8552f0e2d26628c9a72199005b5a76e"

// BootstrapPorts are the well-known bootstrap ports, in join order.
var BootstrapPorts = []uint16{55555, 55556, 55557}

const DefaultIP = "127.0.0.1"

// Transaction states returned by the Transaction RPC.
const (
	StateProcessed = "processed"
	StateQueued    = "queued"
)
