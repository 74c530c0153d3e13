package custodianresolver

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/key-custody-backend/api/custodianapi"
	"github.com/ruteri/key-custody-backend/custody"
	"github.com/ruteri/key-custody-backend/governance"
	"github.com/ruteri/key-custody-backend/interfaces"
	"github.com/ruteri/key-custody-backend/vaultservice"
)

func TestStaticResolver(t *testing.T) {
	r := StaticResolver{
		interfaces.AlphaNode: "http://alpha.internal:8080",
	}

	endpoint, err := r.Endpoint(context.Background(), interfaces.AlphaNode)
	require.NoError(t, err)
	assert.Equal(t, "http://alpha.internal:8080", endpoint)

	_, err = r.Endpoint(context.Background(), interfaces.BetaNode)
	assert.ErrorIs(t, err, ErrNoEndpoint)
}

func TestSetResolver(t *testing.T) {
	set, err := governance.NewStaticCustodianSet(2, 3)
	require.NoError(t, err)

	identity, err := custody.IdentityFromSeed(interfaces.BetaNode, []byte("resolver-test-seed"), custody.DeriveHKDF)
	require.NoError(t, err)
	_, err = set.RegisterCustodian(interfaces.BetaNode, identity.PublicKey(), "http://beta.internal:8080")
	require.NoError(t, err)

	r := SetResolver{Set: set}

	endpoint, err := r.Endpoint(context.Background(), interfaces.BetaNode)
	require.NoError(t, err)
	assert.Equal(t, "http://beta.internal:8080", endpoint)

	_, err = r.Endpoint(context.Background(), interfaces.GammaNode)
	assert.ErrorIs(t, err, ErrNoEndpoint)
}

func runTestDNS(t *testing.T, mux *dns.ServeMux) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	server := &dns.Server{PacketConn: pc, Handler: mux}
	go server.ActivateAndServe()
	t.Cleanup(func() { server.Shutdown() })

	return pc.LocalAddr().String()
}

func TestDNSResolver_SRV(t *testing.T) {
	mux := dns.NewServeMux()
	mux.HandleFunc("_alpha._custodian.custody.test.", func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		m.Answer = append(m.Answer, &dns.SRV{
			Hdr:    dns.RR_Header{Name: r.Question[0].Name, Rrtype: dns.TypeSRV, Class: dns.ClassINET, Ttl: 60},
			Port:   8181,
			Target: "alpha.custody.test.",
		})
		w.WriteMsg(m)
	})

	r := DNSResolver{
		Zone:       "custody.test",
		ServerAddr: runTestDNS(t, mux),
	}

	endpoint, err := r.Endpoint(context.Background(), interfaces.AlphaNode)
	require.NoError(t, err)
	assert.Equal(t, "http://alpha.custody.test:8181", endpoint)

	_, err = r.Endpoint(context.Background(), interfaces.BetaNode)
	assert.ErrorIs(t, err, ErrNoEndpoint)
}

func runTestCustodian(t *testing.T, id interfaces.NodeID) string {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	identity, err := custody.IdentityFromSeed(id, []byte("resolver-node-seed-"+string(id)), custody.DeriveHKDF)
	require.NoError(t, err)
	node, err := vaultservice.NewCustodianNode(identity, log)
	require.NoError(t, err)

	mux := chi.NewRouter()
	custodianapi.NewHandler(node, log).RegisterRoutes(mux)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts.URL
}

func TestResolveClients_PartialSet(t *testing.T) {
	r := StaticResolver{
		interfaces.AlphaNode: runTestCustodian(t, interfaces.AlphaNode),
		interfaces.BetaNode:  runTestCustodian(t, interfaces.BetaNode),
	}

	clients, err := ResolveClients(context.Background(), r, time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoEndpoint)

	require.Len(t, clients, 2)
	assert.Equal(t, interfaces.AlphaNode, clients[interfaces.AlphaNode].NodeID())
	assert.Equal(t, interfaces.BetaNode, clients[interfaces.BetaNode].NodeID())
}

func TestResolveClients_RejectsMismatchedNode(t *testing.T) {
	betaURL := runTestCustodian(t, interfaces.BetaNode)

	// The alpha slot points at a node that identifies as beta.
	r := StaticResolver{
		interfaces.AlphaNode: betaURL,
		interfaces.BetaNode:  betaURL,
		interfaces.GammaNode: runTestCustodian(t, interfaces.GammaNode),
	}

	clients, err := ResolveClients(context.Background(), r, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "identifies as beta")

	require.Len(t, clients, 2)
	assert.NotContains(t, clients, interfaces.AlphaNode)
}
