package registry_dto

// NetworkFileRaw is the YAML document listing upstream networks.
//
//	networks:
//	  eth:
//	    rpc: https://rpc.example.com/eth
//	    wss: wss://ws.example.com/eth
type NetworkFileRaw struct {
	Networks map[string]EndpointRaw `yaml:"networks"`
}

// EndpointRaw holds the upstream URLs of one network as written by the operator.
type EndpointRaw struct {
	RPC string `yaml:"rpc,omitempty"`
	WSS string `yaml:"wss,omitempty"`
}
