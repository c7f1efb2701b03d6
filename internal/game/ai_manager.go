package game

import (
	"log"
	"math/rand"
	"time"

	"arena-brawl/internal/config"
)

// AIManager owns the controllers of every AI player in a world.
type AIManager struct {
	settings    config.AISettings
	rng         *rand.Rand
	controllers []*AIController // slot order
}

// NewAIManager creates an empty manager.
func NewAIManager(settings config.AISettings, rng *rand.Rand) *AIManager {
	return &AIManager{settings: settings, rng: rng}
}

// Add attaches a controller to p. An existing controller is replaced.
func (m *AIManager) Add(p *Player, difficulty string) *AIController {
	m.Remove(p.Slot)
	ai := NewAIController(p, m.settings, difficulty, m.rng)
	p.AI = true

	i := 0
	for i < len(m.controllers) && m.controllers[i].player.Slot < p.Slot {
		i++
	}
	m.controllers = append(m.controllers, nil)
	copy(m.controllers[i+1:], m.controllers[i:])
	m.controllers[i] = ai

	log.Printf("🤖 AI attached to player %d (%s, %s)", p.Slot, ai.Difficulty(), ai.Personality())
	return ai
}

// Remove detaches the controller of slot. Its queued actions die with it.
func (m *AIManager) Remove(slot int) bool {
	for i, ai := range m.controllers {
		if ai.player.Slot == slot {
			ai.player.AI = false
			m.controllers = append(m.controllers[:i], m.controllers[i+1:]...)
			return true
		}
	}
	return false
}

// Controller returns the controller of slot, nil if it is not AI driven.
func (m *AIManager) Controller(slot int) *AIController {
	for _, ai := range m.controllers {
		if ai.player.Slot == slot {
			return ai
		}
	}
	return nil
}

// Controllers returns every controller in slot order. Read-only.
func (m *AIManager) Controllers() []*AIController { return m.controllers }

// Update steps every controller. actorFor supplies the actor for a player.
func (m *AIManager) Update(now time.Time, players []*Player, objectives func(*Player) []Objective, actorFor func(*Player) AIActor) {
	for _, ai := range m.controllers {
		ai.Update(now, players, objectives(ai.player), actorFor(ai.player))
	}
}

// SetGlobalDifficulty applies a preset to every controller. Returns false
// for unknown presets, leaving controllers unchanged.
func (m *AIManager) SetGlobalDifficulty(name string) bool {
	if _, ok := m.settings.Difficulties[name]; !ok {
		return false
	}
	for _, ai := range m.controllers {
		ai.SetDifficulty(name)
	}
	m.settings.DefaultDifficulty = name
	log.Printf("🤖 AI difficulty set to %s", name)
	return true
}

// Status reports every controller.
func (m *AIManager) Status() []AIStatus {
	out := make([]AIStatus, len(m.controllers))
	for i, ai := range m.controllers {
		out[i] = ai.Status()
	}
	return out
}

// Clear detaches every controller.
func (m *AIManager) Clear() {
	for _, ai := range m.controllers {
		ai.player.AI = false
	}
	m.controllers = nil
}
