package mqtt

import (
	"bytes"
	"time"

	"github.com/golang/protobuf/jsonpb"
	structpb "github.com/golang/protobuf/ptypes/struct"

	"github.com/robotalks/aicupg/pkg/framework"
	"github.com/robotalks/aicupg/pkg/uart/bridge"
)

// Event kinds carried in the "kind" field.
const (
	KindTransfer = "transfer"
	KindBaudrate = "baudrate"
	KindStatus   = "status"
)

func strValue(s string) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_StringValue{StringValue: s}}
}

func numValue(n float64) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_NumberValue{NumberValue: n}}
}

func boolValue(b bool) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_BoolValue{BoolValue: b}}
}

func timeValue(t time.Time) *structpb.Value {
	return strValue(t.UTC().Format(time.RFC3339Nano))
}

func newEvent(kind string, t time.Time) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"kind": strValue(kind),
		"time": timeValue(t),
	}}
}

func setErr(ev *structpb.Struct, err error) {
	if err != nil {
		ev.Fields["error"] = strValue(err.Error())
	}
}

// EventOf converts a loop message into an event. Messages other than
// bridge events are not converted.
func EventOf(msg framework.Message) (*structpb.Struct, bool) {
	switch m := msg.(type) {
	case *bridge.TransferEvent:
		ev := newEvent(KindTransfer, m.Time)
		ev.Fields["dir"] = strValue(m.Dir.String())
		ev.Fields["length"] = numValue(float64(m.Length))
		ev.Fields["transferred"] = numValue(float64(m.Transferred))
		ev.Fields["ok"] = boolValue(m.Err == nil)
		setErr(ev, m.Err)
		return ev, true
	case *bridge.BaudEvent:
		ev := newEvent(KindBaudrate, m.Time)
		ev.Fields["baudrate"] = numValue(float64(m.Baudrate))
		ev.Fields["ok"] = boolValue(m.Err == nil)
		setErr(ev, m.Err)
		return ev, true
	}
	return nil, false
}

// StatusEvent converts a bridge snapshot into an event.
func StatusEvent(t time.Time, s bridge.Snapshot) *structpb.Struct {
	ev := newEvent(KindStatus, t)
	ev.Fields["ready"] = boolValue(s.Ready)
	ev.Fields["baudrate"] = numValue(float64(s.Baudrate))
	if !s.Ready {
		return ev
	}
	timeline := make([]*structpb.Value, 0, len(s.Timeline))
	for _, stage := range s.Timeline {
		timeline = append(timeline, strValue(stage.String()))
	}
	ev.Fields["conn"] = strValue(s.Conn.String())
	ev.Fields["stage"] = strValue(s.Stage.String())
	ev.Fields["timeline"] = &structpb.Value{Kind: &structpb.Value_ListValue{
		ListValue: &structpb.ListValue{Values: timeline},
	}}
	ev.Fields["pending"] = numValue(float64(s.Pending))
	if s.PendingBaudrate != 0 {
		ev.Fields["pending_baudrate"] = numValue(float64(s.PendingBaudrate))
	}
	ev.Fields["stats"] = &structpb.Value{Kind: &structpb.Value_StructValue{
		StructValue: &structpb.Struct{Fields: map[string]*structpb.Value{
			"frames_sent":     numValue(float64(s.Stats.FramesSent)),
			"frames_received": numValue(float64(s.Stats.FramesReceived)),
			"duplicates":      numValue(float64(s.Stats.Duplicates)),
			"naks_sent":       numValue(float64(s.Stats.NAKsSent)),
			"naks_received":   numValue(float64(s.Stats.NAKsReceived)),
			"retransmits":     numValue(float64(s.Stats.Retransmits)),
			"aborts":          numValue(float64(s.Stats.Aborts)),
		}},
	}}
	return ev
}

// EncodeEvent renders an event as JSON.
func EncodeEvent(ev *structpb.Struct) ([]byte, error) {
	var buf bytes.Buffer
	if err := (&jsonpb.Marshaler{}).Marshal(&buf, ev); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeEvent parses a JSON event.
func DecodeEvent(payload []byte) (*structpb.Struct, error) {
	ev := &structpb.Struct{}
	if err := jsonpb.Unmarshal(bytes.NewReader(payload), ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// EventKind returns the kind field of an event.
func EventKind(ev *structpb.Struct) string {
	if v := ev.GetFields()["kind"]; v != nil {
		return v.GetStringValue()
	}
	return ""
}
