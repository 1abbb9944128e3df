package network

import "fmt"

// RPCConfig holds the connection parameters for a node's JSON-RPC interface.
type RPCConfig struct {
	URL      string `json:"url"`
	User     string `json:"user"`
	Password string `json:"password"`
	Network  string `json:"network"`
	// Rescan makes ImportAddress rescan the chain for existing outputs.
	Rescan bool `json:"rescan"`
	// Retries is how often a call that could not reach the node is retried.
	Retries int `json:"retries"`
}

// NetworkPresets holds local-node defaults. Mainnet has none and must be
// configured explicitly.
var NetworkPresets = map[string]RPCConfig{
	"regtest": {URL: "http://localhost:18332", User: "ledgerfs", Password: "ledgerfs", Rescan: true},
	"testnet": {URL: "http://localhost:18333", User: "ledgerfs", Password: "ledgerfs"},
}

// ResolveConfig layers the non-empty fields of override on top of the preset
// for network. Environment overrides are applied by the config package before
// override is built.
func ResolveConfig(override RPCConfig, network string) (*RPCConfig, error) {
	cfg := NetworkPresets[network]
	cfg.Network = network

	if override.URL != "" {
		cfg.URL = override.URL
	}
	if override.User != "" {
		cfg.User = override.User
	}
	if override.Password != "" {
		cfg.Password = override.Password
	}
	cfg.Rescan = cfg.Rescan || override.Rescan
	if override.Retries > 0 {
		cfg.Retries = override.Retries
	}

	if cfg.URL == "" {
		return nil, fmt.Errorf("network: %s has no node preset; set rpcurl in the config file or LEDGERFS_RPC_URL", network)
	}
	return &cfg, nil
}
