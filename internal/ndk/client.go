// Package ndk is a thin client for the SR Linux NetOps Development Kit
// services the agent talks to: agent registration, keep-alives, notification
// streams and the telemetry (state datastore) service.
package ndk

import (
	"context"
	"errors"
	"fmt"

	ndkpb "github.com/nokia/srlinux-ndk-go/ndk"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/proto"

	"github.com/signalsfoundry/satellite-agent/internal/logging"
)

const (
	// DefaultAddress is where the SDK manager listens on an SR Linux box.
	DefaultAddress = "127.0.0.1:50053"
	// AgentLiveliness is the keep-alive period, in seconds, announced at
	// registration.
	AgentLiveliness = 10

	agentNameMetadataKey = "agent_name"
)

// ErrStatusFailed is wrapped by every error caused by the SDK manager
// answering with a failed status.
var ErrStatusFailed = errors.New("sdk manager returned failed status")

// StatusError reports a failed SDK manager status for one operation.
type StatusError struct {
	Op     string
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrStatusFailed)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrStatusFailed, e.Detail)
}

func (e *StatusError) Unwrap() error { return ErrStatusFailed }

// checkStatus maps a failed SdkMgrStatus to a StatusError. Responses without an
// error string pass "" as detail.
func checkStatus(op string, status ndkpb.SdkMgrStatus, detail string) error {
	if status == ndkpb.SdkMgrStatus_kSdkMgrFailed {
		return &StatusError{Op: op, Detail: detail}
	}
	return nil
}

// Client wraps the generated NDK stubs. Every call carries the agent name in
// the outgoing metadata.
type Client struct {
	agentName string
	mgr       ndkpb.SdkMgrServiceClient
	notify    ndkpb.SdkNotificationServiceClient
	telemetry ndkpb.SdkMgrTelemetryServiceClient
	log       logging.Logger
}

// Dial opens an insecure channel to the SDK manager at addr. Extra options
// (interceptors, stats handlers) are appended to the defaults.
func Dial(addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	if addr == "" {
		addr = DefaultAddress
	}
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial sdk manager %s: %w", addr, err)
	}
	return conn, nil
}

// NewClient builds a Client over conn.
func NewClient(conn grpc.ClientConnInterface, agentName string, log logging.Logger) *Client {
	return newClient(
		agentName,
		ndkpb.NewSdkMgrServiceClient(conn),
		ndkpb.NewSdkNotificationServiceClient(conn),
		ndkpb.NewSdkMgrTelemetryServiceClient(conn),
		log,
	)
}

func newClient(agentName string, mgr ndkpb.SdkMgrServiceClient, notify ndkpb.SdkNotificationServiceClient, telemetry ndkpb.SdkMgrTelemetryServiceClient, log logging.Logger) *Client {
	if log == nil {
		log = logging.Noop()
	}
	return &Client{
		agentName: agentName,
		mgr:       mgr,
		notify:    notify,
		telemetry: telemetry,
		log:       log.With(logging.String("component", "ndk")),
	}
}

// AgentName returns the name sent in the call metadata.
func (c *Client) AgentName() string { return c.agentName }

func (c *Client) outgoing(ctx context.Context) context.Context {
	return metadata.AppendToOutgoingContext(ctx, agentNameMetadataKey, c.agentName)
}

// trace logs the request at debug level, tagged with the poll cycle when ctx
// carries one.
func (c *Client) trace(ctx context.Context, op string, msg proto.Message) {
	log := c.log
	if id := logging.CycleIDFromContext(ctx); id != "" {
		log = log.With(logging.String("cycle_id", id))
	}
	log.Debug(ctx, "ndk request", logging.String("op", op), logging.String("request", prototext.Format(msg)))
}

// Register announces the agent to the SDK manager and returns the assigned
// application ID.
func (c *Client) Register(ctx context.Context) (uint32, error) {
	req := &ndkpb.AgentRegistrationRequest{AgentLiveliness: AgentLiveliness}
	c.trace(ctx, "AgentRegister", req)
	resp, err := c.mgr.AgentRegister(c.outgoing(ctx), req)
	if err != nil {
		return 0, fmt.Errorf("agent register: %w", err)
	}
	if err := checkStatus("agent register", resp.GetStatus(), resp.GetErrorStr()); err != nil {
		return 0, err
	}
	return resp.GetAppId(), nil
}

// Unregister removes the agent registration.
func (c *Client) Unregister(ctx context.Context) error {
	req := &ndkpb.AgentRegistrationRequest{}
	c.trace(ctx, "AgentUnRegister", req)
	resp, err := c.mgr.AgentUnRegister(c.outgoing(ctx), req)
	if err != nil {
		return fmt.Errorf("agent unregister: %w", err)
	}
	return checkStatus("agent unregister", resp.GetStatus(), resp.GetErrorStr())
}

// KeepAlive signals liveness.
func (c *Client) KeepAlive(ctx context.Context) error {
	resp, err := c.mgr.KeepAlive(c.outgoing(ctx), &ndkpb.KeepAliveRequest{})
	if err != nil {
		return fmt.Errorf("keep alive: %w", err)
	}
	return checkStatus("keep alive", resp.GetStatus(), "")
}

// CreateStream creates a notification stream and returns its ID.
func (c *Client) CreateStream(ctx context.Context) (uint64, error) {
	req := &ndkpb.NotificationRegisterRequest{Op: ndkpb.NotificationRegisterRequest_Create}
	c.trace(ctx, "NotificationRegister", req)
	resp, err := c.mgr.NotificationRegister(c.outgoing(ctx), req)
	if err != nil {
		return 0, fmt.Errorf("create notification stream: %w", err)
	}
	if err := checkStatus("create notification stream", resp.GetStatus(), ""); err != nil {
		return 0, err
	}
	return resp.GetStreamId(), nil
}

// SubscribeConfig adds a configuration subscription to stream and returns
// the subscription ID.
func (c *Client) SubscribeConfig(ctx context.Context, streamID uint64) (uint64, error) {
	req := &ndkpb.NotificationRegisterRequest{
		Op:       ndkpb.NotificationRegisterRequest_AddSubscription,
		StreamId: streamID,
		SubscriptionTypes: &ndkpb.NotificationRegisterRequest_Config{
			Config: &ndkpb.ConfigSubscriptionRequest{},
		},
	}
	c.trace(ctx, "NotificationRegister", req)
	resp, err := c.mgr.NotificationRegister(c.outgoing(ctx), req)
	if err != nil {
		return 0, fmt.Errorf("config subscription: %w", err)
	}
	if err := checkStatus("config subscription", resp.GetStatus(), ""); err != nil {
		return 0, err
	}
	return resp.GetSubId(), nil
}

// Notifications opens the server stream for streamID. The stream ends when
// ctx is cancelled.
func (c *Client) Notifications(ctx context.Context, streamID uint64) (*Stream, error) {
	req := &ndkpb.NotificationStreamRequest{StreamId: streamID}
	c.trace(ctx, "NotificationStream", req)
	stream, err := c.notify.NotificationStream(c.outgoing(ctx), req)
	if err != nil {
		return nil, fmt.Errorf("open notification stream %d: %w", streamID, err)
	}
	return &Stream{recv: stream}, nil
}

// UpdateTelemetry writes jsonContent at jsPath in the state datastore.
func (c *Client) UpdateTelemetry(ctx context.Context, jsPath, jsonContent string) error {
	req := &ndkpb.TelemetryUpdateRequest{
		State: []*ndkpb.TelemetryInfo{{
			Key:  &ndkpb.TelemetryKey{JsPath: jsPath},
			Data: &ndkpb.TelemetryData{JsonContent: jsonContent},
		}},
	}
	c.trace(ctx, "TelemetryAddOrUpdate", req)
	resp, err := c.telemetry.TelemetryAddOrUpdate(c.outgoing(ctx), req)
	if err != nil {
		return fmt.Errorf("telemetry update %s: %w", jsPath, err)
	}
	return checkStatus("telemetry update "+jsPath, resp.GetStatus(), resp.GetErrorStr())
}
