package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/sessionbroker/broker/pkg/types"
)

var errConnStateUnchanged = errors.New("adapter: connection state did not change")

const exchangeMethod = "/sessionbroker.backend.v1.Backend/Exchange"

// GRPCAdapterConfig configures a GRPCAdapter.
type GRPCAdapterConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
	Capabilities     Capabilities
}

func (c GRPCAdapterConfig) withDefaults() GRPCAdapterConfig {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.KeepaliveTime == 0 {
		c.KeepaliveTime = 2 * time.Minute
	}
	if c.KeepaliveTimeout == 0 {
		c.KeepaliveTimeout = 10 * time.Second
	}
	return c
}

// GRPCAdapter is an outbound-spawn adapter (spec §4.3 style 1) that
// dials a long-lived backend service over gRPC and exchanges
// UnifiedMessages as JSON frames on one bidirectional stream per
// session.
type GRPCAdapter struct {
	name string
	cfg  GRPCAdapterConfig
}

// NewGRPCAdapter builds a GRPCAdapter identified by name and dialing
// cfg.Address.
func NewGRPCAdapter(name string, cfg GRPCAdapterConfig) *GRPCAdapter {
	return &GRPCAdapter{name: name, cfg: cfg.withDefaults()}
}

func (a *GRPCAdapter) Name() string              { return a.name }
func (a *GRPCAdapter) Capabilities() Capabilities { return a.cfg.Capabilities }
func (a *GRPCAdapter) Style() ConnectionStyle     { return StyleOutboundSpawn }

// wireFrame is the JSON shape exchanged on the gRPC stream: T2 encodes a
// UnifiedMessage into one, T3 decodes one back into a UnifiedMessage.
type wireFrame struct {
	SessionID string          `json:"sessionId"`
	Type      string          `json:"type"`
	Role      string          `json:"role,omitempty"`
	MessageID string          `json:"messageId,omitempty"`
	ToolUseID string          `json:"toolUseId,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

func encodeFrame(sessionID string, msg types.UnifiedMessage) (*wireFrame, error) {
	content, err := json.Marshal(msg.Content)
	if err != nil {
		return nil, fmt.Errorf("adapter: encode content: %w", err)
	}
	metadata, err := msg.Metadata.CanonicalJSON()
	if err != nil {
		return nil, fmt.Errorf("adapter: encode metadata: %w", err)
	}
	return &wireFrame{
		SessionID: sessionID,
		Type:      string(msg.Type),
		Role:      string(msg.Role),
		MessageID: msg.MessageID,
		ToolUseID: msg.ToolUseID,
		Content:   content,
		Metadata:  metadata,
	}, nil
}

// decodeFrame is T3: nil, true means "intentionally consumed" (a frame
// with no type, e.g. a keep-alive); nil, false means unmapped.
func decodeFrame(f *wireFrame, nowMs int64) (*types.UnifiedMessage, bool) {
	if f == nil || f.Type == "" {
		return nil, true
	}

	var content []types.ContentBlock
	if len(f.Content) > 0 {
		if err := json.Unmarshal(f.Content, &content); err != nil {
			return nil, false
		}
	}
	var metadata types.Metadata
	if len(f.Metadata) > 0 {
		if err := json.Unmarshal(f.Metadata, &metadata); err != nil {
			return nil, false
		}
	}

	return &types.UnifiedMessage{
		Type:       types.UnifiedMessageType(f.Type),
		Role:       types.Role(f.Role),
		Content:    content,
		Metadata:   metadata,
		MessageID:  f.MessageID,
		ToolUseID:  f.ToolUseID,
		ReceivedAt: nowMs,
	}, true
}

// Connect dials the backend, waits for the connection to become ready,
// and opens the one bidirectional stream this session's messages flow
// over for its lifetime.
func (a *GRPCAdapter) Connect(ctx context.Context, sessionID string, opts ConnectOptions) (BackendSession, error) {
	kacp := keepalive.ClientParameters{
		Time:                a.cfg.KeepaliveTime,
		Timeout:             a.cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}

	conn, err := grpc.NewClient(a.cfg.Address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	)
	if err != nil {
		return BackendSession{}, fmt.Errorf("adapter %s: dial %s: %w", a.name, a.cfg.Address, err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, a.cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		_ = conn.Close()
		return BackendSession{}, fmt.Errorf("adapter %s: backend at %s not ready: %w", a.name, a.cfg.Address, err)
	}

	streamCtx, streamCancel := context.WithCancel(ctx)
	stream, err := conn.NewStream(streamCtx, &grpc.StreamDesc{
		StreamName:    "Exchange",
		ServerStreams: true,
		ClientStreams: true,
	}, exchangeMethod, grpc.CallContentSubtype(jsonCodecName))
	if err != nil {
		streamCancel()
		_ = conn.Close()
		return BackendSession{}, fmt.Errorf("adapter %s: open stream: %w", a.name, err)
	}

	if err := stream.SendMsg(&wireFrame{SessionID: sessionID, Type: "session_open"}); err != nil {
		streamCancel()
		_ = conn.Close()
		return BackendSession{}, fmt.Errorf("adapter %s: send session_open: %w", a.name, err)
	}

	messages := make(chan types.UnifiedMessage, 32)
	errs := make(chan error, 1)

	go func() {
		defer close(messages)
		defer close(errs)
		for {
			var frame wireFrame
			if err := stream.RecvMsg(&frame); err != nil {
				if !errors.Is(err, io.EOF) {
					errs <- err
				}
				return
			}
			msg, ok := decodeFrame(&frame, time.Now().UnixMilli())
			if !ok || msg == nil {
				continue
			}
			select {
			case messages <- *msg:
			case <-streamCtx.Done():
				return
			}
		}
	}()

	closeOnce := make(chan struct{})
	closeFn := func() error {
		select {
		case <-closeOnce:
			return nil
		default:
			close(closeOnce)
		}
		streamCancel()
		return conn.Close()
	}

	return BackendSession{
		SessionID: sessionID,
		Send: func(ctx context.Context, msg types.UnifiedMessage) error {
			select {
			case <-closeOnce:
				return ErrSessionClosed
			default:
			}
			frame, err := encodeFrame(sessionID, msg)
			if err != nil {
				return err
			}
			return stream.SendMsg(frame)
		},
		SendRaw: func(ctx context.Context, data []byte) error {
			select {
			case <-closeOnce:
				return ErrSessionClosed
			default:
			}
			return stream.SendMsg(&wireFrame{SessionID: sessionID, Type: "raw", Content: data})
		},
		Close:    closeFn,
		Messages: messages,
		Errors:   errs,
	}, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errors.New("adapter: connection shutdown")
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnStateUnchanged, state)
		}
	}
}
