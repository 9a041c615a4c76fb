package selector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Conduit is an open outbound channel to one endpoint.
type Conduit interface {
	// Address returns the endpoint URI the conduit was opened for.
	Address() string

	// Close releases the conduit.
	Close() error
}

// ConduitInitiator opens conduits for the URI schemes it supports.
type ConduitInitiator interface {
	// Schemes returns the URI schemes handled (e.g., "http", "https").
	Schemes() []string

	// Open creates a conduit to address.
	Open(ctx context.Context, address string) (Conduit, error)
}

// HTTPInitiator opens HTTP conduits sharing one client.
type HTTPInitiator struct {
	client *http.Client
}

// NewHTTPInitiator creates an HTTP initiator. A nil client uses http.DefaultClient.
func NewHTTPInitiator(client *http.Client) *HTTPInitiator {
	if client == nil {
		client = http.DefaultClient
	}

	return &HTTPInitiator{client: client}
}

// Schemes returns "http" and "https".
func (i *HTTPInitiator) Schemes() []string {
	return []string{"http", "https"}
}

// Open parses address as the base URL of the conduit.
func (i *HTTPInitiator) Open(_ context.Context, address string) (Conduit, error) {
	base, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP address %q: %w", address, err)
	}

	return &HTTPConduit{address: address, base: base, client: i.client}, nil
}

// HTTPConduit sends requests to one HTTP endpoint.
type HTTPConduit struct {
	address string
	base    *url.URL
	client  *http.Client
}

// Address returns the base URL.
func (c *HTTPConduit) Address() string { return c.address }

// Close is a no-op; the client is shared.
func (c *HTTPConduit) Close() error { return nil }

// NewRequest builds a request for path below the base URL.
func (c *HTTPConduit) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), body)
}

// Do sends req with the shared client.
func (c *HTTPConduit) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req)
}

// GRPCInitiator opens gRPC client connections for "grpc://host:port" addresses.
type GRPCInitiator struct {
	options []grpc.DialOption
}

// NewGRPCInitiator creates a gRPC initiator.
//
// Without options connections use insecure transport credentials.
func NewGRPCInitiator(opts ...grpc.DialOption) *GRPCInitiator {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}

	return &GRPCInitiator{options: opts}
}

// Schemes returns "grpc".
func (i *GRPCInitiator) Schemes() []string {
	return []string{"grpc"}
}

// Open creates a client connection to the address host. The connection is
// established lazily by the first RPC.
func (i *GRPCInitiator) Open(_ context.Context, address string) (Conduit, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("invalid gRPC address %q: %w", address, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("gRPC address %q has no host", address)
	}

	conn, err := grpc.NewClient(u.Host, i.options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC client for %s: %w", address, err)
	}

	return &GRPCConduit{address: address, conn: conn}, nil
}

// GRPCConduit wraps a gRPC client connection.
type GRPCConduit struct {
	address string
	conn    *grpc.ClientConn
}

// Address returns the endpoint URI.
func (c *GRPCConduit) Address() string { return c.address }

// Conn returns the client connection for generated stubs.
func (c *GRPCConduit) Conn() *grpc.ClientConn { return c.conn }

// Close closes the client connection.
func (c *GRPCConduit) Close() error { return c.conn.Close() }
