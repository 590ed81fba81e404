package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidPrice = errors.New("invalid price value")
	ErrWSDisconnect = errors.New("websocket disconnected")
	ErrFeedClosed   = errors.New("feed channel closed")
)
