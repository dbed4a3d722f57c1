// Command ledgerd runs a single coordination node: it registers
// against the north-bound account registry, joins the peer transport,
// and runs the mutex coordinator and operator HTTP surface until
// interrupted.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	ledgerdconfig "github.com/lamportchain/ledgerd/internal/config"
	"github.com/lamportchain/ledgerd/internal/coordinator"
	"github.com/lamportchain/ledgerd/internal/directory"
	"github.com/lamportchain/ledgerd/internal/logging"
	"github.com/lamportchain/ledgerd/internal/operator"
	"github.com/lamportchain/ledgerd/internal/registry"
	"github.com/lamportchain/ledgerd/internal/transport"
	"github.com/lamportchain/ledgerd/internal/types"
)

func main() {
	app := &cli.App{
		Name:  "ledgerd",
		Usage: "a Lamport-clock-ordered value-transfer coordination node",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "registry",
				Usage:    "base URL of the north-bound account registry",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "endpoint",
				Value: "ledgerd-node",
				Usage: "this node's advertised peer endpoint, recorded at registration",
			},
			&cli.StringFlag{
				Name:  "peers",
				Usage: "comma-separated id=endpoint seeds to merge with the registry's peer list",
			},
			&cli.StringFlag{
				Name:  "operator-listen",
				Value: ":8091",
				Usage: "address for the inspection/transfer HTTP surface, empty to disable",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	log := logging.NewDefaultLogger("ledgerd")
	log.ToggleDebug(c.Bool("debug"))

	cfg := ledgerdconfig.Config{
		RegistryAddr: c.String("registry"),
		OperatorAddr: c.String("operator-listen"),
		Debug:        c.Bool("debug"),
	}

	seeds, err := ledgerdconfig.ParseSeeds(c.String("peers"))
	if err != nil {
		return err
	}
	cfg.Seeds = seeds

	reg := registry.NewHTTPClient(cfg.RegistryAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res, err := reg.Register(ctx, directory.Endpoint(c.String("endpoint")))
	if err != nil {
		return fmt.Errorf("ledgerd: registering with %s: %w", cfg.RegistryAddr, err)
	}
	log.Infof("registered as node %d with initial balance %d", res.NodeID, res.InitialBalance)

	members := make(map[types.NodeID]directory.Endpoint, len(res.Peers)+len(cfg.Seeds))
	for id, ep := range res.Peers {
		members[id] = ep
	}
	for id, ep := range cfg.Seeds {
		members[id] = ep
	}
	dir := directory.New(res.NodeID, members)

	trans, err := transport.NewReltTransport(res.NodeID, log)
	if err != nil {
		return fmt.Errorf("ledgerd: starting transport: %w", err)
	}
	defer trans.Close()

	coord := coordinator.New(res.NodeID, dir, reg, trans, log)
	go coord.Run(ctx)
	defer coord.Stop()

	go func() {
		for err := range coord.Errors() {
			log.Warnf("node %d: %v", res.NodeID, err)
		}
	}()

	var opServer *http.Server
	if cfg.OperatorAddr != "" {
		op := operator.New(coord, reg, log)
		opServer = &http.Server{Addr: cfg.OperatorAddr, Handler: op}
		go func() {
			log.Infof("operator surface listening on %s", cfg.OperatorAddr)
			if err := opServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorf("operator surface stopped: %v", err)
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Infof("node %d shutting down", res.NodeID)
	if opServer != nil {
		_ = opServer.Shutdown(context.Background())
	}
	return nil
}
