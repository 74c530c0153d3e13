// Package custodianresolver maps custodian node ids to the HTTP
// endpoints their API servers listen on. Three resolution schemes are
// provided: a static map for fixed deployments, the custodian set
// registry for governed deployments, and DNS SRV lookup for
// environments that publish custodians under a service zone.
package custodianresolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/ruteri/key-custody-backend/api/custodianapi"
	"github.com/ruteri/key-custody-backend/interfaces"
)

// ErrNoEndpoint indicates no endpoint is registered for a node.
var ErrNoEndpoint = errors.New("no endpoint registered for custodian")

// Resolver maps a custodian node id to a base URL.
type Resolver interface {
	Endpoint(ctx context.Context, id interfaces.NodeID) (string, error)
}

// StaticResolver serves endpoints from a fixed map.
type StaticResolver map[interfaces.NodeID]string

// Endpoint returns the configured endpoint for id.
func (s StaticResolver) Endpoint(_ context.Context, id interfaces.NodeID) (string, error) {
	endpoint, ok := s[id]
	if !ok || endpoint == "" {
		return "", fmt.Errorf("%w: %s", ErrNoEndpoint, id)
	}
	return endpoint, nil
}

// SetResolver reads endpoints from the custodian set registry, so
// deployments that register custodians onchain need no extra
// configuration.
type SetResolver struct {
	Set interfaces.CustodianSet
}

// Endpoint returns the endpoint registered for id in the custodian set.
func (s SetResolver) Endpoint(_ context.Context, id interfaces.NodeID) (string, error) {
	endpoint, err := s.Set.CustodianEndpoint(id)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrNoEndpoint, id, err)
	}
	if endpoint == "" {
		return "", fmt.Errorf("%w: %s", ErrNoEndpoint, id)
	}
	return endpoint, nil
}

// DNSResolver looks up custodian endpoints through SRV records named
// _<node>._custodian.<zone>. The SRV target and port form the endpoint.
type DNSResolver struct {
	// Zone is the DNS zone custodian records live under.
	Zone string

	// ServerAddr is the DNS server to query. Defaults to the local
	// systemd resolver.
	ServerAddr string

	// Scheme for the resulting endpoint URL. Defaults to http.
	Scheme string
}

// Endpoint resolves the SRV record for id and returns the first
// target as a base URL.
func (d DNSResolver) Endpoint(_ context.Context, id interfaces.NodeID) (string, error) {
	name := dns.Fqdn(fmt.Sprintf("_%s._custodian.%s", id, d.Zone))

	m1 := new(dns.Msg)
	m1.Id = dns.Id()
	m1.RecursionDesired = true
	m1.Question = make([]dns.Question, 1)
	m1.Question[0] = dns.Question{Name: name, Qtype: dns.TypeSRV, Qclass: dns.ClassINET}

	serverAddr := d.ServerAddr
	if serverAddr == "" {
		serverAddr = "127.0.0.53:53"
	}

	c := new(dns.Client)
	in, _, err := c.Exchange(m1, serverAddr)
	if err != nil {
		return "", fmt.Errorf("SRV lookup for %s failed: %w", name, err)
	}

	scheme := d.Scheme
	if scheme == "" {
		scheme = "http"
	}

	for _, answer := range in.Answer {
		if srv, ok := answer.(*dns.SRV); ok {
			host := strings.TrimSuffix(srv.Target, ".")
			return fmt.Sprintf("%s://%s:%d", scheme, host, srv.Port), nil
		}
	}

	return "", fmt.Errorf("%w: %s: no SRV records under %s", ErrNoEndpoint, id, name)
}

// ResolveClients resolves every known custodian and dials its API,
// returning clients keyed by node id. Nodes that fail to resolve or
// answer are skipped and their failures joined into the returned
// error, so a caller can proceed with a partial set when enough
// custodians for the release threshold are up.
func ResolveClients(ctx context.Context, r Resolver, timeout time.Duration) (map[interfaces.NodeID]interfaces.ShareCustodian, error) {
	clients := make(map[interfaces.NodeID]interfaces.ShareCustodian)
	var errs []error

	for _, id := range interfaces.AllNodeIDs() {
		endpoint, err := r.Endpoint(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		client, err := custodianapi.NewClient(ctx, endpoint, timeout)
		if err != nil {
			errs = append(errs, fmt.Errorf("custodian %s at %s: %w", id, endpoint, err))
			continue
		}
		if client.NodeID() != id {
			errs = append(errs, fmt.Errorf("custodian at %s identifies as %s, expected %s", endpoint, client.NodeID(), id))
			continue
		}

		clients[id] = client
	}

	return clients, errors.Join(errs...)
}
