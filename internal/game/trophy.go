package game

import (
	"arena-brawl/internal/config"
	"arena-brawl/internal/game/geom"
)

// Trophy is the money objective. It lies at an objective spawn until a
// living player touches it, then pays its carrier until the carrier dies.
type Trophy struct {
	Position geom.Vec3
	Carrier  int // NoPlayer while lying in the world

	settings config.TrophySettings
	events   EventSink
}

// NewTrophy places the trophy at pos.
func NewTrophy(settings config.TrophySettings, pos geom.Vec3, events EventSink) *Trophy {
	return &Trophy{
		Position: pos,
		Carrier:  NoPlayer,
		settings: settings,
		events:   events,
	}
}

// Carried reports whether someone holds the trophy.
func (t *Trophy) Carried() bool { return t.Carrier != NoPlayer }

// Update follows the carrier and pays passive income, or hands the trophy
// to the first living player in slot order within pickup range.
func (t *Trophy) Update(players []*Player, lookup func(slot int) *Player, dt float64) {
	if t.Carried() {
		carrier := lookup(t.Carrier)
		if carrier == nil || !carrier.Alive() {
			// Carrier left without dying through combat.
			t.release(carrier)
			return
		}
		t.Position = carrier.kin.Position
		carrier.Money += t.settings.PassiveIncome * dt
		return
	}

	for _, p := range players {
		if !p.Alive() {
			continue
		}
		if p.kin.Position.Dist(t.Position) > t.settings.PickupRadius {
			continue
		}
		t.Carrier = p.Slot
		p.HasTrophy = true
		p.Money += t.settings.PickupBounty
		emit(t.events, Event{Kind: EventTrophyPickedUp, Player: p.Slot, Other: NoPlayer, Position: t.Position})
		emit(t.events, Event{Kind: EventMoneyGained, Player: p.Slot, Other: NoPlayer, Amount: t.settings.PickupBounty, Position: t.Position, Reason: "pickup"})
		return
	}
}

// Drop releases the trophy at the victim's position. A killer other than
// the victim receives the steal bounty. No-op if victim is not the carrier.
func (t *Trophy) Drop(victim *Player, killer *Player) bool {
	if victim == nil || t.Carrier != victim.Slot {
		return false
	}
	t.release(victim)
	if killer != nil && killer.Slot != victim.Slot {
		killer.Money += t.settings.StealBounty
		emit(t.events, Event{Kind: EventMoneyGained, Player: killer.Slot, Other: victim.Slot, Amount: t.settings.StealBounty, Position: t.Position, Reason: "steal"})
	}
	return true
}

func (t *Trophy) release(p *Player) {
	from := NoPlayer
	if p != nil {
		t.Position = p.kin.Position
		p.HasTrophy = false
		from = p.Slot
	}
	t.Carrier = NoPlayer
	emit(t.events, Event{Kind: EventTrophyDropped, Player: from, Other: NoPlayer, Position: t.Position})
}

// Reset puts the trophy back at pos with no carrier.
func (t *Trophy) Reset(pos geom.Vec3) {
	t.Position = pos
	t.Carrier = NoPlayer
}
