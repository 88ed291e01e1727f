package eventbus

import "github.com/sessionbroker/broker/pkg/types"

// ConsumerConnectedData accompanies ConsumerConnected.
type ConsumerConnectedData struct {
	ConsumerID string
	Role       types.ConsumerRole
}

// ConsumerDisconnectedData accompanies ConsumerDisconnected.
type ConsumerDisconnectedData struct {
	ConsumerID string
}

// BackendConnectedData accompanies BackendConnected.
type BackendConnectedData struct {
	AdapterName      string
	BackendSessionID string
	Inverted         bool
}

// BackendDisconnectedData accompanies BackendDisconnected.
type BackendDisconnectedData struct {
	AdapterName string
	Reason      string
}

// PermissionRequestedData accompanies PermissionRequested.
type PermissionRequestedData struct {
	Request types.PermissionRequest
}

// PermissionResolvedData accompanies PermissionResolved.
type PermissionResolvedData struct {
	RequestID string
	Behavior  string
}

// CapabilitiesReadyData accompanies CapabilitiesReady.
type CapabilitiesReadyData struct {
	Models        []string
	SlashCommands []string
	Account       string
	MCPServers    []string
}

// CapabilitiesTimeoutData accompanies CapabilitiesTimeout.
type CapabilitiesTimeoutData struct {
	Waited string
}

// BackendRelaunchNeededData accompanies BackendRelaunchNeeded.
type BackendRelaunchNeededData struct {
	Reason string
}

// TeamStateChangedData accompanies TeamStateChanged.
type TeamStateChangedData struct {
	Previous *types.TeamState
	Current  *types.TeamState
}

// AuthFailedData accompanies AuthFailed.
type AuthFailedData struct {
	Reason string
}
