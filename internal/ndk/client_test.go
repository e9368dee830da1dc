package ndk

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	ndkpb "github.com/nokia/srlinux-ndk-go/ndk"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/satellite-agent/internal/logging"
)

// fakeMgr captures SdkMgrService calls.
type fakeMgr struct {
	ndkpb.SdkMgrServiceClient

	mu       sync.Mutex
	contexts []context.Context
	register *ndkpb.AgentRegistrationRequest
	notifReq []*ndkpb.NotificationRegisterRequest

	registerStatus ndkpb.SdkMgrStatus
	notifStatus    ndkpb.SdkMgrStatus
	keepAliveErr   error
}

func (f *fakeMgr) record(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contexts = append(f.contexts, ctx)
}

func (f *fakeMgr) AgentRegister(ctx context.Context, req *ndkpb.AgentRegistrationRequest, _ ...grpc.CallOption) (*ndkpb.AgentRegistrationResponse, error) {
	f.record(ctx)
	f.register = req
	return &ndkpb.AgentRegistrationResponse{Status: f.registerStatus, ErrorStr: "no room", AppId: 42}, nil
}

func (f *fakeMgr) AgentUnRegister(ctx context.Context, req *ndkpb.AgentRegistrationRequest, _ ...grpc.CallOption) (*ndkpb.AgentRegistrationResponse, error) {
	f.record(ctx)
	return &ndkpb.AgentRegistrationResponse{Status: ndkpb.SdkMgrStatus_kSdkMgrSuccess}, nil
}

func (f *fakeMgr) KeepAlive(ctx context.Context, _ *ndkpb.KeepAliveRequest, _ ...grpc.CallOption) (*ndkpb.KeepAliveResponse, error) {
	f.record(ctx)
	if f.keepAliveErr != nil {
		return nil, f.keepAliveErr
	}
	return &ndkpb.KeepAliveResponse{Status: ndkpb.SdkMgrStatus_kSdkMgrSuccess}, nil
}

func (f *fakeMgr) NotificationRegister(ctx context.Context, req *ndkpb.NotificationRegisterRequest, _ ...grpc.CallOption) (*ndkpb.NotificationRegisterResponse, error) {
	f.record(ctx)
	f.mu.Lock()
	f.notifReq = append(f.notifReq, req)
	f.mu.Unlock()
	return &ndkpb.NotificationRegisterResponse{
		Status:   f.notifStatus,
		StreamId: 7,
		SubId:    3,
	}, nil
}

type fakeTelemetry struct {
	ndkpb.SdkMgrTelemetryServiceClient
	req    *ndkpb.TelemetryUpdateRequest
	status ndkpb.SdkMgrStatus
}

func (f *fakeTelemetry) TelemetryAddOrUpdate(_ context.Context, req *ndkpb.TelemetryUpdateRequest, _ ...grpc.CallOption) (*ndkpb.TelemetryUpdateResponse, error) {
	f.req = req
	return &ndkpb.TelemetryUpdateResponse{Status: f.status, ErrorStr: "bad path"}, nil
}

func TestRegisterSendsLivelinessAndAgentName(t *testing.T) {
	mgr := &fakeMgr{registerStatus: ndkpb.SdkMgrStatus_kSdkMgrSuccess}
	c := newClient("satellite", mgr, nil, nil, logging.Noop())

	appID, err := c.Register(context.Background())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if appID != 42 {
		t.Fatalf("appID = %d, want 42", appID)
	}
	if mgr.register.GetAgentLiveliness() != AgentLiveliness {
		t.Fatalf("liveliness = %d, want %d", mgr.register.GetAgentLiveliness(), AgentLiveliness)
	}

	md, ok := metadata.FromOutgoingContext(mgr.contexts[0])
	if !ok {
		t.Fatalf("expected outgoing metadata")
	}
	if vals := md.Get("agent_name"); len(vals) != 1 || vals[0] != "satellite" {
		t.Fatalf("agent_name metadata = %v", vals)
	}
}

func TestRegisterFailedStatus(t *testing.T) {
	mgr := &fakeMgr{registerStatus: ndkpb.SdkMgrStatus_kSdkMgrFailed}
	c := newClient("satellite", mgr, nil, nil, nil)

	_, err := c.Register(context.Background())
	if !errors.Is(err, ErrStatusFailed) {
		t.Fatalf("Register error = %v, want ErrStatusFailed", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Detail != "no room" {
		t.Fatalf("StatusError detail = %+v", se)
	}
}

func TestKeepAliveTransportError(t *testing.T) {
	mgr := &fakeMgr{keepAliveErr: status.Error(codes.Unavailable, "down")}
	c := newClient("satellite", mgr, nil, nil, nil)

	err := c.KeepAlive(context.Background())
	if status.Code(errors.Unwrap(err)) != codes.Unavailable {
		t.Fatalf("KeepAlive error = %v, want wrapped Unavailable", err)
	}
}

func TestStreamCreateAndSubscribe(t *testing.T) {
	mgr := &fakeMgr{}
	c := newClient("satellite", mgr, nil, nil, nil)

	id, err := c.CreateStream(context.Background())
	if err != nil || id != 7 {
		t.Fatalf("CreateStream = %d, %v", id, err)
	}
	sub, err := c.SubscribeConfig(context.Background(), id)
	if err != nil || sub != 3 {
		t.Fatalf("SubscribeConfig = %d, %v", sub, err)
	}

	if len(mgr.notifReq) != 2 {
		t.Fatalf("NotificationRegister calls = %d, want 2", len(mgr.notifReq))
	}
	if mgr.notifReq[0].GetOp() != ndkpb.NotificationRegisterRequest_Create {
		t.Fatalf("first op = %v, want Create", mgr.notifReq[0].GetOp())
	}
	subReq := mgr.notifReq[1]
	if subReq.GetOp() != ndkpb.NotificationRegisterRequest_AddSubscription || subReq.GetStreamId() != 7 {
		t.Fatalf("subscription request = %v", subReq)
	}
	if subReq.GetConfig() == nil {
		t.Fatalf("subscription request missing config subscription")
	}
}

func TestStreamCreateFailedStatus(t *testing.T) {
	mgr := &fakeMgr{notifStatus: ndkpb.SdkMgrStatus_kSdkMgrFailed}
	c := newClient("satellite", mgr, nil, nil, nil)

	id, err := c.CreateStream(context.Background())
	if !errors.Is(err, ErrStatusFailed) {
		t.Fatalf("CreateStream error = %v, want ErrStatusFailed", err)
	}
	if id != 0 {
		t.Fatalf("CreateStream id = %d, want 0 on failure", id)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Op != "create notification stream" || se.Detail != "" {
		t.Fatalf("StatusError = %+v", se)
	}

	if _, err := c.SubscribeConfig(context.Background(), 7); !errors.Is(err, ErrStatusFailed) {
		t.Fatalf("SubscribeConfig error = %v, want ErrStatusFailed", err)
	}
}

func TestUpdateTelemetry(t *testing.T) {
	tel := &fakeTelemetry{status: ndkpb.SdkMgrStatus_kSdkMgrSuccess}
	c := newClient("satellite", nil, nil, tel, nil)

	if err := c.UpdateTelemetry(context.Background(), ".satellite", `{"name":{"value":"iss"}}`); err != nil {
		t.Fatalf("UpdateTelemetry: %v", err)
	}
	state := tel.req.GetState()
	if len(state) != 1 {
		t.Fatalf("state entries = %d, want 1", len(state))
	}
	if state[0].GetKey().GetJsPath() != ".satellite" {
		t.Fatalf("js_path = %q", state[0].GetKey().GetJsPath())
	}
	if state[0].GetData().GetJsonContent() != `{"name":{"value":"iss"}}` {
		t.Fatalf("json_content = %q", state[0].GetData().GetJsonContent())
	}

	tel.status = ndkpb.SdkMgrStatus_kSdkMgrFailed
	if err := c.UpdateTelemetry(context.Background(), ".satellite", "{}"); !errors.Is(err, ErrStatusFailed) {
		t.Fatalf("UpdateTelemetry error = %v, want ErrStatusFailed", err)
	}
}

type fakeReceiver struct {
	batches []*ndkpb.NotificationStreamResponse
}

func (f *fakeReceiver) Recv() (*ndkpb.NotificationStreamResponse, error) {
	if len(f.batches) == 0 {
		return nil, io.EOF
	}
	b := f.batches[0]
	f.batches = f.batches[1:]
	return b, nil
}

func TestStreamRecvConvertsNotifications(t *testing.T) {
	recv := &fakeReceiver{batches: []*ndkpb.NotificationStreamResponse{{
		Notification: []*ndkpb.Notification{
			{SubscriptionTypes: &ndkpb.Notification_Config{Config: &ndkpb.ConfigNotification{
				Key:  &ndkpb.ConfigKey{JsPath: ".satellite"},
				Data: &ndkpb.ConfigData{DataType: &ndkpb.ConfigData_Json{Json: `{"interval":{"value":20}}`}},
			}}},
			{SubscriptionTypes: &ndkpb.Notification_Intf{Intf: &ndkpb.InterfaceNotification{}}},
		},
	}}}
	s := &Stream{recv: recv}

	got, err := s.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("notifications = %d, want 2", len(got))
	}
	if got[0].Kind != KindConfig || got[0].JsPath != ".satellite" || got[0].JSON != `{"interval":{"value":20}}` {
		t.Fatalf("config notification = %+v", got[0])
	}
	if got[1].Kind != "intf" {
		t.Fatalf("second kind = %q, want intf", got[1].Kind)
	}

	if _, err := s.Recv(); !errors.Is(err, io.EOF) {
		t.Fatalf("Recv after end = %v, want EOF", err)
	}
}
