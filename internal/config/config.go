// Package config resolves the flags a ledgerd node is started with
// into the values its components need, the way cmd/geth's flag set
// resolves into an eth.Config before the node is assembled.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lamportchain/ledgerd/internal/directory"
	"github.com/lamportchain/ledgerd/internal/types"
)

// Config is the resolved set of values a ledgerd node needs to start.
type Config struct {
	// RegistryAddr is the base URL of the north-bound registry RPC.
	RegistryAddr string
	// OperatorAddr is the address the inspection/action HTTP server
	// binds to. Empty disables it.
	OperatorAddr string
	// Seeds is the set of peer endpoints known before this node
	// registers, used to pre-seed the directory alongside whatever the
	// registry's RegisterResult returns.
	Seeds map[types.NodeID]directory.Endpoint
	// Debug enables debug-level logging.
	Debug bool
}

// ParseSeeds parses a comma-separated "id=endpoint" list, the flag
// shape cmd/ledgerd accepts for --peers.
func ParseSeeds(raw string) (map[types.NodeID]directory.Endpoint, error) {
	seeds := make(map[types.NodeID]directory.Endpoint)
	if raw == "" {
		return seeds, nil
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("config: malformed peer entry %q, want id=endpoint", entry)
		}
		id, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("config: malformed peer id %q: %w", parts[0], err)
		}
		seeds[types.NodeID(id)] = directory.Endpoint(parts[1])
	}
	return seeds, nil
}
