package state

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrStatePoisoned 表示之前某个读写作用域内发生了 panic，句柄已不可用。
var ErrStatePoisoned = errors.New("state handle poisoned")

// StateAccessError 表示无法获得状态的读/写作用域。
type StateAccessError struct {
	Op  string
	Err error
}

func (e *StateAccessError) Error() string {
	return fmt.Sprintf("state %s: %v", e.Op, e.Err)
}

func (e *StateAccessError) Unwrap() error {
	return e.Err
}

// Handle 是节点之间共享的会话状态句柄。
//
// 访问只能通过 Read/Write 作用域进行，作用域结束时锁一定会释放。
// 节点不得在作用域内发起工具调用等耗时操作：先读、释放、计算，再写。
type Handle struct {
	mu       sync.RWMutex
	st       *ConversationState
	poisoned atomic.Bool
}

func NewHandle(s *ConversationState) *Handle {
	if s == nil {
		s = NewConversationState(DefaultAgentType)
	}
	return &Handle{st: s}
}

// Read 在读锁下执行 fn。fn 不得修改 s。
func (h *Handle) Read(fn func(s *ConversationState) error) (err error) {
	if h.poisoned.Load() {
		return &StateAccessError{Op: "read", Err: ErrStatePoisoned}
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	defer h.recoverInto("read", &err)

	return fn(h.st)
}

// Write 在写锁下对状态副本执行 fn，fn 返回 nil 时整体提交，否则丢弃全部修改。
func (h *Handle) Write(fn func(s *ConversationState) error) (err error) {
	if h.poisoned.Load() {
		return &StateAccessError{Op: "write", Err: ErrStatePoisoned}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	defer h.recoverInto("write", &err)

	draft := h.st.Clone()
	if err := fn(draft); err != nil {
		return err
	}
	h.st = draft
	return nil
}

// Snapshot 返回当前状态的深拷贝。
func (h *Handle) Snapshot() (*ConversationState, error) {
	var out *ConversationState
	err := h.Read(func(s *ConversationState) error {
		out = s.Clone()
		return nil
	})
	return out, err
}

func (h *Handle) recoverInto(op string, err *error) {
	if r := recover(); r != nil {
		h.poisoned.Store(true)
		*err = &StateAccessError{Op: op, Err: fmt.Errorf("%w: panic: %v", ErrStatePoisoned, r)}
	}
}
