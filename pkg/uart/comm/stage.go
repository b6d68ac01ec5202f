package comm

// ConnState is the state of the link handshake.
type ConnState int

const (
	// ConnDetecting means SIG_A is being sent, waiting for SIG_C.
	ConnDetecting ConnState = iota
	// ConnConnected means the handshake completed and frames flow.
	ConnConnected
)

// String implements Stringer.
func (s ConnState) String() string {
	if s == ConnConnected {
		return "CONNECTED"
	}
	return "DETECTING"
}

// Stage is the protocol stage of a session.
type Stage byte

// Stages.
const (
	StageCmdRecv Stage = iota
	StageDataSend
	StageDataSendBuf
	StageDataSendDone
	StageDataRecv
	StageDataRecvBuf
	StageDataRecvDone
	StageSendAck
	StageWaitAck
)

var stageNames = [...]string{
	StageCmdRecv:      "CMD_RECV",
	StageDataSend:     "DATA_SEND",
	StageDataSendBuf:  "DATA_SEND_BUF",
	StageDataSendDone: "DATA_SEND_DONE",
	StageDataRecv:     "DATA_RECV",
	StageDataRecvBuf:  "DATA_RECV_BUF",
	StageDataRecvDone: "DATA_RECV_DONE",
	StageSendAck:      "SEND_ACK",
	StageWaitAck:      "WAIT_ACK",
}

// String implements Stringer.
func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "UNKNOWN"
}

// IsIdle indicates no transfer is in flight.
func (s Stage) IsIdle() bool {
	return s == StageCmdRecv || s == StageWaitAck
}

// IsDone indicates a transfer completed and waits to be reported.
func (s Stage) IsDone() bool {
	return s == StageDataSendDone || s == StageDataRecvDone
}
