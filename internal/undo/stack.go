package undo

// DefaultDepth is how many actions a user can step back through.
const DefaultDepth = 5

// Stack is a bounded LIFO of actions, oldest first. The zero value is
// an empty stack. Stack values are copied on every change so a snapshot
// held by one reader never sees another writer's push.
type Stack []Action

// Push returns a new stack with a on top. When the stack is already at
// depth the oldest entry is evicted. A depth below one means DefaultDepth.
func (s Stack) Push(a Action, depth int) Stack {
	if depth < 1 {
		depth = DefaultDepth
	}
	next := make(Stack, 0, depth)
	next = append(next, s...)
	next = append(next, a)
	if over := len(next) - depth; over > 0 {
		next = next[over:]
	}
	return append(Stack(nil), next...)
}

// Pop returns the top action and the remaining stack. ok is false when
// the stack is empty.
func (s Stack) Pop() (a Action, rest Stack, ok bool) {
	if len(s) == 0 {
		return Action{}, s, false
	}
	top := s[len(s)-1]
	return top, append(Stack(nil), s[:len(s)-1]...), true
}

// Peek returns the top action without removing it.
func (s Stack) Peek() (Action, bool) {
	if len(s) == 0 {
		return Action{}, false
	}
	return s[len(s)-1], true
}
