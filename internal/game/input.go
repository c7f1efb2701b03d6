package game

// InputState is the per-player action state sampled once per tick.
type InputState struct {
	Left   bool `json:"left" msgpack:"left"`
	Right  bool `json:"right" msgpack:"right"`
	Jump   bool `json:"jump" msgpack:"jump"`
	Attack bool `json:"attack" msgpack:"attack"`
}

// Latch returns next with any jump or attack press from s kept. Held
// directions come from next.
func (s InputState) Latch(next InputState) InputState {
	next.Jump = next.Jump || s.Jump
	next.Attack = next.Attack || s.Attack
	return next
}

// Direction returns -1, 0 or +1 for the horizontal input.
func (s InputState) Direction() float64 {
	switch {
	case s.Left && !s.Right:
		return -1
	case s.Right && !s.Left:
		return 1
	default:
		return 0
	}
}

// InputEdges holds the actions that went down this tick.
type InputEdges struct {
	Jump   bool
	Attack bool
}

// Pressed compares s with the previous frame's state.
func (s InputState) Pressed(prev InputState) InputEdges {
	return InputEdges{
		Jump:   s.Jump && !prev.Jump,
		Attack: s.Attack && !prev.Attack,
	}
}

// InputCommand is a remote input frame waiting in the engine's inbox.
type InputCommand struct {
	Player int
	State  InputState
}
