package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"code.dogecoin.org/gossip/dnet"
	"code.dogecoin.org/governor"
	"github.com/urfave/cli/v2"

	"code.dogecoin.org/kadchain/internal/spec"
	"code.dogecoin.org/kadchain/pkg/kadchain"
)

func main() {
	app := &cli.App{
		Name:  "kadchain",
		Usage: "Run a Kademlia overlay node that keeps a proof-of-work blockchain",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "ip",
				Usage:   "IP address to listen on",
				Value:   spec.DefaultIP,
				EnvVars: []string{"KADCHAIN_IP"},
			},
			&cli.UintFlag{
				Name:    "port",
				Usage:   "TCP port to listen on (0 picks a free port)",
				EnvVars: []string{"KADCHAIN_PORT"},
			},
			&cli.BoolFlag{
				Name:    "bootstrap",
				Usage:   "run as a bootstrap node",
				EnvVars: []string{"KADCHAIN_BOOTSTRAP"},
			},
			&cli.BoolFlag{
				Name:    "miner",
				Usage:   "run a mining endpoint and batch transactions into blocks",
				EnvVars: []string{"KADCHAIN_MINER"},
			},
			&cli.StringSliceFlag{
				Name:    "bootstraps",
				Usage:   "bootstrap addresses as ip:port (default: the well-known local ports)",
				EnvVars: []string{"KADCHAIN_BOOTSTRAPS"},
			},
			&cli.IntFlag{
				Name:    "batch",
				Usage:   "transactions per block",
				Value:   spec.TransactionNumber,
				EnvVars: []string{"KADCHAIN_BATCH"},
			},
			&cli.DurationFlag{
				Name:    "refresh",
				Usage:   "bootstrap refresh period",
				Value:   spec.RefreshPeriod,
				EnvVars: []string{"KADCHAIN_REFRESH"},
			},
			&cli.StringFlag{
				Name:    "web",
				Usage:   "bind the operator HTTP API to ip:port",
				EnvVars: []string{"KADCHAIN_WEB"},
			},
			&cli.StringFlag{
				Name:    "db",
				Usage:   "SQLite database file (default: in memory)",
				EnvVars: []string{"KADCHAIN_DB"},
			},
			&cli.BoolFlag{
				Name:    "key-id",
				Usage:   "derive the node id from the public key",
				EnvVars: []string{"KADCHAIN_KEY_ID"},
			},
		},
		Action: run,
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	port := c.Uint("port")
	if port > 65535 {
		return fmt.Errorf("bad port: %d", port)
	}
	bootstraps := kadchain.DefaultBootstraps()
	if list := c.StringSlice("bootstraps"); len(list) > 0 {
		bootstraps = nil
		for _, s := range list {
			for _, hp := range strings.Split(s, ",") {
				addr, err := dnet.ParseAddress(strings.TrimSpace(hp))
				if err != nil {
					return fmt.Errorf("bad bootstrap address %q: %w", hp, err)
				}
				bootstraps = append(bootstraps, addr)
			}
		}
	}

	peer, err := kadchain.New(context.Background(), kadchain.KadChainConfig{
		IP:            c.String("ip"),
		Port:          uint16(port),
		Bootstrap:     c.Bool("bootstrap"),
		Miner:         c.Bool("miner"),
		Bootstraps:    bootstraps,
		Batch:         c.Int("batch"),
		RefreshPeriod: c.Duration("refresh"),
		DBFile:        c.String("db"),
		BindWeb:       c.String("web"),
		KeyBoundID:    c.Bool("key-id"),
	})
	if err != nil {
		return err
	}
	defer peer.Close()

	gov := governor.New().CatchSignals()
	peer.AddServices(gov)

	// run services until interrupted.
	gov.Start()
	gov.WaitForShutdown()
	fmt.Println("finished.")
	return nil
}
