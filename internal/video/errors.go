package video

import "errors"

// Sentinel errors, mirroring the teacher's internal/server/errors.go
// wrapping convention.
var (
	ErrPipelineInit   = errors.New("pipeline_init")
	ErrPipelineState  = errors.New("pipeline_state")
	ErrBranchAttach   = errors.New("branch_attach")
	ErrHandshakeBind  = errors.New("handshake_bind")
	ErrHandshakeNonce = errors.New("handshake_nonce")
	ErrCameraDiscover = errors.New("camera_discover")
)
