package store

import (
	"net"
	"strconv"

	as "github.com/aerospike/aerospike-client-go/v7"
)

// defaultPort is Aerospike's standard client port, used when an address in
// aerospike_nodes/aerospike_addr doesn't specify one.
const defaultPort = 3000

// Hosts turns the configured node addresses into aerospike.Host values,
// accepting either bare "host" or "host:port" entries.
func Hosts(addrs []string) []*as.Host {
	hosts := make([]*as.Host, 0, len(addrs))
	for _, a := range addrs {
		host, port := splitHostPort(a)
		hosts = append(hosts, as.NewHost(host, port))
	}
	return hosts
}

func splitHostPort(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, defaultPort
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return addr, defaultPort
	}
	return host, port
}
