package notify

import (
	"testing"

	"github.com/GoAffiliate/tiergate/internal/model"
)

func TestPublishReachesAllObservers(t *testing.T) {
	n := New()

	var first, second *model.CapacitySnapshot
	n.Subscribe(ObserverFunc(func(snap *model.CapacitySnapshot) { first = snap }))
	n.Subscribe(ObserverFunc(func(snap *model.CapacitySnapshot) { second = snap }))

	snap := &model.CapacitySnapshot{Clicks: model.ResourceUsage{Used: 1, Limit: 10, Remaining: 9}}
	n.Publish(snap)

	if first != snap || second != snap {
		t.Fatalf("expected both observers to see the snapshot")
	}
}

func TestPanickingObserverDoesNotBlockOthers(t *testing.T) {
	n := New()

	var survived bool
	n.Subscribe(ObserverFunc(func(snap *model.CapacitySnapshot) { panic("boom") }))
	n.Subscribe(ObserverFunc(func(snap *model.CapacitySnapshot) { survived = true }))

	n.Publish(&model.CapacitySnapshot{})

	if !survived {
		t.Fatalf("expected the second observer to run despite the panic")
	}
}
