package transport

import "time"

// maxShift 限制退避指数，避免 Duration 溢出
const maxShift = 32

// AttemptTimeout 返回第 n 次尝试的等待时长：base * 2^n
func AttemptTimeout(base time.Duration, n uint) time.Duration {
	if n > maxShift {
		n = maxShift
	}
	return base << n
}

// stateKind 重试状态
type stateKind uint8

const (
	stateAttempt stateKind = iota
	stateSuccess
	stateExhausted
	stateFatal
)

// String 返回状态名
func (k stateKind) String() string {
	switch k {
	case stateAttempt:
		return "attempt"
	case stateSuccess:
		return "success"
	case stateExhausted:
		return "exhausted"
	case stateFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// state 当前状态，attempt 从 1 开始计数
type state struct {
	kind    stateKind
	attempt uint
}

// event 一次尝试的结果
type event uint8

const (
	// eventTimeout 读超时
	eventTimeout event = iota
	// eventForeign 收到非网关来源的数据报
	eventForeign
	// eventReply 收到网关数据报
	eventReply
	// eventFatal 不可恢复的套接字错误或取消
	eventFatal
)

// String 返回事件名
func (ev event) String() string {
	switch ev {
	case eventTimeout:
		return "timeout"
	case eventForeign:
		return "foreign"
	case eventReply:
		return "reply"
	case eventFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// initialState 第一次尝试
func initialState() state {
	return state{kind: stateAttempt, attempt: 1}
}

// next 状态转移
//
// 终止状态不再变化。非网关来源的数据报与超时一样消耗本次尝试。
func next(s state, ev event, maxTries uint) state {
	if s.kind != stateAttempt {
		return s
	}

	switch ev {
	case eventReply:
		return state{kind: stateSuccess, attempt: s.attempt}
	case eventFatal:
		return state{kind: stateFatal, attempt: s.attempt}
	default:
		if s.attempt >= maxTries {
			return state{kind: stateExhausted, attempt: s.attempt}
		}
		return state{kind: stateAttempt, attempt: s.attempt + 1}
	}
}
