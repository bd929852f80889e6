package config

import "time"

const (
	// Connection pumps
	WriteWait      = 10 * time.Second
	PongWait       = 60 * time.Second
	PingPeriod     = (PongWait * 9) / 10
	MaxMessageSize = 64 * 1024
	MailboxSize    = 256

	// Close codes (private range 4000-4999)
	CloseBanned       = 4003
	CloseIdentityGone = 4004
	CloseSlowConsumer = 4008

	// History paging
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)
