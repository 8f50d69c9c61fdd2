package hub

import "errors"

var (
	ErrHubAlreadyRunning     = errors.New("hub is already running")
	ErrHubNotRunning         = errors.New("hub is not running")
	ErrEventChannelFull      = errors.New("event channel is full")
	ErrJoinChannelFull       = errors.New("join channel is full")
	ErrUnregisterChannelFull = errors.New("unregister channel is full")
)
