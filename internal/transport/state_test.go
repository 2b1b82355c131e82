package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNext(t *testing.T) {
	tests := []struct {
		name     string
		from     state
		ev       event
		maxTries uint
		want     state
	}{
		{"超时后重试", state{stateAttempt, 1}, eventTimeout, 3, state{stateAttempt, 2}},
		{"非网关来源后重试", state{stateAttempt, 2}, eventForeign, 3, state{stateAttempt, 3}},
		{"最后一次超时", state{stateAttempt, 3}, eventTimeout, 3, state{stateExhausted, 3}},
		{"最后一次非网关来源", state{stateAttempt, 1}, eventForeign, 1, state{stateExhausted, 1}},
		{"收到响应", state{stateAttempt, 2}, eventReply, 3, state{stateSuccess, 2}},
		{"致命错误", state{stateAttempt, 1}, eventFatal, 3, state{stateFatal, 1}},
		{"终止状态不变", state{stateSuccess, 1}, eventTimeout, 3, state{stateSuccess, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, next(tt.from, tt.ev, tt.maxTries))
		})
	}
}

// 从初始状态只经历超时，恰好 maxTries 次后耗尽
func TestNext_ExactBound(t *testing.T) {
	for _, maxTries := range []uint{1, 2, 9} {
		st := initialState()
		var attempts uint
		for st.kind == stateAttempt {
			attempts++
			st = next(st, eventTimeout, maxTries)
		}
		assert.Equal(t, stateExhausted, st.kind)
		assert.Equal(t, maxTries, attempts)
	}
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "exhausted", stateExhausted.String())
	assert.Equal(t, "foreign", eventForeign.String())
}
