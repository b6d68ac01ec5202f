package mqtt

import (
	"time"

	"github.com/golang/glog"
	structpb "github.com/golang/protobuf/ptypes/struct"

	"github.com/robotalks/aicupg/pkg/framework"
	"github.com/robotalks/aicupg/pkg/uart/bridge"
)

// DefaultStatusInterval is the default period of status publishing.
const DefaultStatusInterval = time.Second

// Topic suffixes under <prefix>aicupg/<device-id>/.
const (
	TopicEvents = "events"
	TopicStatus = "status"
)

// DeviceTopic builds the topic of a device.
func DeviceTopic(deviceID, suffix string) string {
	return "aicupg/" + deviceID + "/" + suffix
}

// SnapshotSource provides bridge snapshots.
type SnapshotSource interface {
	Snapshot() bridge.Snapshot
}

// Reporter publishes bridge events and periodic status. It runs as a
// loop controller and never waits on the broker.
type Reporter struct {
	Publisher Publisher
	DeviceID  string
	Source    SnapshotSource
	// Interval of status publishing, 0 disables it.
	Interval time.Duration

	lastStatus time.Time
	published  int
}

// NewReporter creates a Reporter.
func NewReporter(pub Publisher, deviceID string, src SnapshotSource) *Reporter {
	return &Reporter{
		Publisher: pub,
		DeviceID:  deviceID,
		Source:    src,
		Interval:  DefaultStatusInterval,
	}
}

// Published returns the number of payloads handed to the publisher.
func (r *Reporter) Published() int {
	return r.published
}

// Control implements framework.Controller.
func (r *Reporter) Control(cc framework.ControlContext) error {
	for _, msg := range cc.Messages() {
		if ev, ok := EventOf(msg); ok {
			r.publish(TopicEvents, ev, false)
		}
	}
	now := cc.Time()
	if r.Source != nil && r.Interval > 0 && now.Sub(r.lastStatus) >= r.Interval {
		r.lastStatus = now
		r.publish(TopicStatus, StatusEvent(now, r.Source.Snapshot()), true)
	}
	return nil
}

// AddToLoop registers the reporter at the report level.
func (r *Reporter) AddToLoop(l *framework.Loop) {
	l.AddController(framework.PrLvReport, r)
}

func (r *Reporter) publish(suffix string, ev *structpb.Struct, retain bool) {
	payload, err := EncodeEvent(ev)
	if err != nil {
		glog.Errorf("encode %s event: %v", EventKind(ev), err)
		return
	}
	r.Publisher.PubWith(DeviceTopic(r.DeviceID, suffix), payload, 0, retain)
	r.published++
}
