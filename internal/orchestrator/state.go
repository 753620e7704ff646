package orchestrator

import "fmt"

// State 是单个会话轮次所处的阶段。
type State int

const (
	Idle State = iota
	AwaitingPatientReply
	DigestReady
	FeedbackRequested
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingPatientReply:
		return "awaiting_patient_reply"
	case DigestReady:
		return "digest_ready"
	case FeedbackRequested:
		return "feedback_requested"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// 合法的状态迁移。AwaitingPatientReply → Idle 只在病人回复失败时发生。
var transitions = map[State][]State{
	Idle:                 {AwaitingPatientReply},
	AwaitingPatientReply: {DigestReady, Idle},
	DigestReady:          {FeedbackRequested},
	FeedbackRequested:    {Idle},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Observer 在每次状态迁移后被调用。
type Observer func(conversationID string, from, to State)

// machine 跟踪一个轮次的当前状态。
type machine struct {
	conversationID string
	state          State
	observer       Observer
}

func (m *machine) to(next State) {
	if !canTransition(m.state, next) {
		panic(fmt.Sprintf("orchestrator: illegal transition %s -> %s", m.state, next))
	}
	prev := m.state
	m.state = next
	if m.observer != nil {
		m.observer(m.conversationID, prev, next)
	}
}
