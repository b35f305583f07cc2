// Package notify fans capacity snapshots out to interested observers.
package notify

import (
	"github.com/GoAffiliate/tiergate/internal/model"
	"github.com/GoAffiliate/tiergate/internal/pkg/logger"
)

// Observer receives every published snapshot.
type Observer interface {
	OnSnapshot(snap *model.CapacitySnapshot)
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(snap *model.CapacitySnapshot)

func (f ObserverFunc) OnSnapshot(snap *model.CapacitySnapshot) { f(snap) }

// Notifier is a best-effort publish list: one observer's failure never
// blocks the others.
type Notifier struct {
	observers []Observer
}

func New() *Notifier {
	return &Notifier{}
}

// Subscribe registers an observer. Subscription happens during wiring,
// before publishing starts, so no lock is needed on the list.
func (n *Notifier) Subscribe(o Observer) {
	n.observers = append(n.observers, o)
}

// Publish hands the snapshot to every observer, catching panics per
// observer and continuing.
func (n *Notifier) Publish(snap *model.CapacitySnapshot) {
	for _, o := range n.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Snapshot observer panicked", "panic", r)
				}
			}()
			o.OnSnapshot(snap)
		}()
	}
}
