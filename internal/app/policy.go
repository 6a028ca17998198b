package app

import "github.com/dkeye/Tree/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
)

// Policy decides what happens to a session whose send failed.
// The broadcast itself always carries on.
type Policy interface {
	OnDeliveryFault(sess *core.ClientSession, err error) BackpressureAction
}

// SimplePolicy kicks any session that cannot keep up. A kicked client
// reconnects and gets a fresh snapshot.
type SimplePolicy struct{}

func (SimplePolicy) OnDeliveryFault(*core.ClientSession, error) BackpressureAction {
	return KickMember
}

// TolerantPolicy leaves faulted sessions alone; the read side will notice
// a dead socket on its own.
type TolerantPolicy struct{}

func (TolerantPolicy) OnDeliveryFault(*core.ClientSession, error) BackpressureAction {
	return NoAction
}

// DeliveryFault is one failed send of a broadcast.
type DeliveryFault struct {
	Session *core.ClientSession
	Err     error
}

// PublishResult reports delivery stats of one broadcast.
type PublishResult struct {
	SentTo  int
	Dropped []DeliveryFault
}
