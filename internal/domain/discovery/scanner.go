package discovery

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	maxScanHosts        = 1024
	defaultProbeWorkers = 64
	defaultProbeTimeout = 750 * time.Millisecond
	minNASConf          = 0.3
)

// Dialer lets tests stub the port probe.
type Dialer func(network, address string, timeout time.Duration) (net.Conn, error)

type hostResult struct {
	ip        string
	openPorts []int
}

// expandCIDR lists the usable host addresses in a CIDR range, skipping
// the network and broadcast addresses for IPv4 subnets.
func expandCIDR(cidr string) ([]string, error) {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return nil, fmt.Errorf("parse cidr: %w", err)
	}
	if !prefix.Addr().Is4() {
		return nil, fmt.Errorf("only IPv4 ranges are supported")
	}
	if prefix.Bits() < 22 {
		return nil, fmt.Errorf("range %s is too large, narrowest allowed is /22", cidr)
	}

	var hosts []string
	first := prefix.Masked().Addr()
	for addr := first; prefix.Contains(addr); addr = addr.Next() {
		hosts = append(hosts, addr.String())
	}
	// Drop network and broadcast for subnets that have them.
	if prefix.Bits() < 31 && len(hosts) > 2 {
		hosts = hosts[1 : len(hosts)-1]
	}
	if len(hosts) > maxScanHosts {
		hosts = hosts[:maxScanHosts]
	}
	return hosts, nil
}

// probeSubnet checks every host in parallel with a bounded worker pool
// and returns the hosts that answered on at least one port.
func probeSubnet(ctx context.Context, dial Dialer, hosts []string, workers int, timeout time.Duration) ([]hostResult, error) {
	results := make([]hostResult, len(hosts))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, host := range hosts {
		i, host := i, host
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = hostResult{ip: host, openPorts: probeHost(dial, host, timeout)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var found []hostResult
	for _, r := range results {
		if len(r.openPorts) > 0 {
			found = append(found, r)
		}
	}
	return found, nil
}

func probeHost(dial Dialer, host string, timeout time.Duration) []int {
	var open []int
	for _, port := range ProbePorts {
		conn, err := dial("tcp", net.JoinHostPort(host, strconv.Itoa(port)), timeout)
		if err != nil {
			continue
		}
		conn.Close()
		open = append(open, port)
	}
	return open
}
