package raft

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/jsonraft/raftcore/internal/errors"
	"github.com/jsonraft/raftcore/internal/logger"
)

// Transport is the external collaborator that carries messages between
// named peers (§2, §5). Cast is best-effort and one-way: it must not block
// the caller, and there is no delivery guarantee. Responses to a request
// are ordinary messages cast back, not RPC return values.
type Transport interface {
	// Cast sends message to peer. It returns immediately; delivery, if it
	// happens at all, happens asynchronously.
	Cast(peer string, message interface{})

	// Register installs the function the transport delivers inbound
	// messages to. self is the identity this transport answers to.
	Register(self string, handler func(message interface{}))

	// Run starts accepting inbound traffic, if the transport has any
	// listening to do. It is a no-op for transports with nothing to start.
	Run() error

	// Shutdown stops accepting inbound traffic and releases resources.
	Shutdown() error
}

func init() {
	gob.Register(&RequestVoteRequest{})
	gob.Register(&RequestVoteResponse{})
	gob.Register(&AppendEntriesRequest{})
	gob.Register(&AppendEntriesResponse{})
}

// wireEnvelope is the gob-encoded payload carried inside the gRPC
// transport's wrapperspb.BytesValue message. See DESIGN.md for why the
// wire format is gob-over-a-well-known-wrapper-message rather than a
// hand-authored protoc-generated message.
type wireEnvelope struct {
	Msg interface{}
}

func encodeEnvelope(message interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(wireEnvelope{Msg: message}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeEnvelope(data []byte) (interface{}, error) {
	var env wireEnvelope
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&env); err != nil {
		return nil, err
	}
	return env.Msg, nil
}

const transportServiceName = "raftcore.Transport"

// transportServer is the server-side contract gRPC dispatches into. It
// takes the place of a protoc-generated *_grpc.pb.go server interface.
type transportServer interface {
	Send(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
}

type transportClient interface {
	Send(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
}

type transportClientImpl struct {
	cc grpc.ClientConnInterface
}

func newTransportClient(cc grpc.ClientConnInterface) transportClient {
	return &transportClientImpl{cc: cc}
}

func (c *transportClientImpl) Send(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, "/"+transportServiceName+"/Send", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// transportGRPCServiceDesc is written by hand in the exact shape
// protoc-gen-go-grpc emits, since there is no .proto file in this
// repository to generate it from.
var transportGRPCServiceDesc = grpc.ServiceDesc{
	ServiceName: transportServiceName,
	HandlerType: (*transportServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Send",
			Handler:    transportSendHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "raftcore/transport.proto",
}

func transportSendHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(transportServer).Send(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + transportServiceName + "/Send"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(transportServer).Send(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// GRPCTransport is the production Transport: every peer runs one, bound to
// its own listen address, dialing its peers lazily on first Cast.
type GRPCTransport struct {
	self      string
	address   string
	addresses map[string]string

	mu       sync.Mutex
	running  bool
	server   *grpc.Server
	listener net.Listener

	connMu  sync.Mutex
	conns   map[string]*grpc.ClientConn
	clients map[string]transportClient

	handler func(interface{})
	log     *logger.Logger
}

// NewGRPCTransport creates a transport for self, listening on address, with
// addresses giving the dial target for every other peer in the cohort.
func NewGRPCTransport(self, address string, addresses map[string]string, log *logger.Logger) *GRPCTransport {
	if log == nil {
		log, _ = logger.New()
	}
	return &GRPCTransport{
		self:      self,
		address:   address,
		addresses: addresses,
		conns:     map[string]*grpc.ClientConn{},
		clients:   map[string]transportClient{},
		log:       log,
	}
}

func (t *GRPCTransport) Register(self string, handler func(interface{})) {
	t.handler = handler
}

func (t *GRPCTransport) Run() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return nil
	}
	lis, err := net.Listen("tcp", t.address)
	if err != nil {
		return errors.Wrap(err, "could not listen on %s", t.address)
	}
	t.listener = lis
	t.server = grpc.NewServer()
	t.server.RegisterService(&transportGRPCServiceDesc, t)
	t.running = true
	go func() {
		if err := t.server.Serve(lis); err != nil {
			t.log.Debugf("transport %s: serve exited: %v", t.self, err)
		}
	}()
	return nil
}

func (t *GRPCTransport) Shutdown() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = false
	server := t.server
	t.mu.Unlock()

	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-time.After(shutdownGracePeriod):
		server.Stop()
	case <-stopped:
	}

	t.connMu.Lock()
	for id, c := range t.conns {
		c.Close()
		delete(t.conns, id)
		delete(t.clients, id)
	}
	t.connMu.Unlock()
	return nil
}

func (t *GRPCTransport) getClient(peer string) (transportClient, error) {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	if c, ok := t.clients[peer]; ok {
		return c, nil
	}
	address, ok := t.addresses[peer]
	if !ok {
		return nil, fmt.Errorf("raftcore: no address known for peer %q", peer)
	}
	conn, err := grpc.Dial(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	t.conns[peer] = conn
	client := newTransportClient(conn)
	t.clients[peer] = client
	return client, nil
}

// Cast dials peer lazily, encodes message, and fires the RPC in the
// background. Failures are logged and dropped: a lost cast is exactly what
// the engine already has to tolerate (§5).
func (t *GRPCTransport) Cast(peer string, message interface{}) {
	go func() {
		client, err := t.getClient(peer)
		if err != nil {
			t.log.Debugf("transport %s: cast to %s: %v", t.self, peer, err)
			return
		}
		data, err := encodeEnvelope(message)
		if err != nil {
			t.log.Errorf("transport %s: encode for %s: %v", t.self, peer, err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 4*heartbeatInterval)
		defer cancel()
		if _, err := client.Send(ctx, &wrapperspb.BytesValue{Value: data}); err != nil {
			t.log.Debugf("transport %s: cast to %s failed: %v", t.self, peer, err)
		}
	}()
}

// Send implements transportServer: invoked by gRPC when a peer's Cast
// reaches this node.
func (t *GRPCTransport) Send(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	message, err := decodeEnvelope(in.GetValue())
	if err != nil {
		return nil, err
	}
	if t.handler != nil {
		t.handler(message)
	}
	return &wrapperspb.BytesValue{}, nil
}
