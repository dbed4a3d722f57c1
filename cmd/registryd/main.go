// Command registryd runs a minimal reference implementation of the
// north-bound account registry named in spec §6, so a ledgerd cluster
// can be brought up end-to-end without a stub.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/lamportchain/ledgerd/internal/logging"
	"github.com/lamportchain/ledgerd/internal/registry"
)

func main() {
	app := &cli.App{
		Name:  "registryd",
		Usage: "reference north-bound account registry for a ledgerd cluster",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Value: ":8090",
				Usage: "address to serve the registry RPC on",
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
	log := logging.NewDefaultLogger("registryd")
	log.ToggleDebug(c.Bool("debug"))

	reg := registry.NewInMemory()
	server := registry.NewHTTPServer(reg, log)

	addr := c.String("listen")
	log.Infof("registryd listening on %s", addr)
	return http.ListenAndServe(addr, server.Handler())
}
