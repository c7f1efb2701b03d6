package game

import (
	"log"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"arena-brawl/internal/config"
	"arena-brawl/internal/game/geom"
)

// TargetKind tags what an AI is currently going after.
type TargetKind uint8

const (
	TargetNone TargetKind = iota
	TargetPlayer
	TargetObjective
	TargetSafe
)

func (k TargetKind) String() string {
	switch k {
	case TargetPlayer:
		return "player"
	case TargetObjective:
		return "objective"
	case TargetSafe:
		return "safe"
	default:
		return "none"
	}
}

// ObjectiveKind is the kind of world objective an AI can walk to.
type ObjectiveKind uint8

const (
	ObjectiveMoney ObjectiveKind = iota
	ObjectiveWeapon
)

func (k ObjectiveKind) String() string {
	if k == ObjectiveWeapon {
		return "weapon"
	}
	return "money"
}

// Objective is a point of interest. Distance and Priority are filled in by
// Perceive.
type Objective struct {
	Kind     ObjectiveKind
	Position geom.Vec3
	Distance float64
	Priority float64
}

// Sighting is another living player as seen by an AI.
type Sighting struct {
	Player   *Player
	Distance float64
	Threat   float64 // only set for entries of Perception.Threats
}

// Perception is what an AI knows about the world at decision time.
type Perception struct {
	Nearby     []Sighting  // living opponents, nearest first
	Objectives []Objective // highest priority first
	Threats    []Sighting  // opponents within combat range, most threatening first
}

// Target is the tagged variant an AI moves toward.
type Target struct {
	Kind      TargetKind
	Player    *Player       // TargetPlayer
	Objective ObjectiveKind // TargetObjective
	Position  geom.Vec3
	Distance  float64
	Safety    float64 // TargetSafe: mean distance to threats
}

// AIActor performs the actions an AI decides on. The world implements it
// for each AI player.
type AIActor interface {
	Jump() bool
	Attack(aim geom.Vec3) bool
}

// AIController drives one player. It never owns the player; it only reads
// its state and acts through an AIActor and its movement axis.
type AIController struct {
	player *Player

	settings        config.AISettings
	difficultyName  string
	difficulty      config.DifficultySettings
	personalityName string
	personality     config.PersonalitySettings

	rng    *rand.Rand
	queue  *actionQueue
	target Target
	axis   float64 // held horizontal input

	lastDecision time.Time
	lastAttack   time.Time

	lastPosition geom.Vec3
	stuckCount   int
}

// NewAIController attaches an AI to player with the named difficulty and a
// random personality. Unknown difficulties fall back to the default preset.
func NewAIController(player *Player, settings config.AISettings, difficulty string, rng *rand.Rand) *AIController {
	ai := &AIController{
		player:       player,
		settings:     settings,
		rng:          rng,
		queue:        newActionQueue(settings.ActionStaleAfter.Duration()),
		lastPosition: player.kin.Position,
	}
	if !ai.SetDifficulty(difficulty) {
		ai.SetDifficulty(settings.DefaultDifficulty)
	}

	names := make([]string, 0, len(settings.Personalities))
	for name := range settings.Personalities {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > 0 {
		ai.SetPersonality(names[rng.Intn(len(names))])
	} else {
		ai.personality = config.PersonalitySettings{Aggression: 1, Patience: 1, RiskTaking: 1}
	}
	return ai
}

// Player returns the controlled player.
func (ai *AIController) Player() *Player { return ai.player }

// Axis is the horizontal input the AI is holding.
func (ai *AIController) Axis() float64 { return ai.axis }

// Target returns the current target.
func (ai *AIController) Target() Target { return ai.target }

// SetDifficulty switches to a named preset. Returns false for unknown names.
func (ai *AIController) SetDifficulty(name string) bool {
	d, ok := ai.settings.Difficulties[name]
	if !ok {
		log.Printf("⚠️ Unknown AI difficulty %q for player %d", name, ai.player.Slot)
		return false
	}
	ai.difficultyName = name
	ai.difficulty = d
	return true
}

// SetPersonality switches to a named personality, case-insensitively.
func (ai *AIController) SetPersonality(name string) bool {
	key := strings.ToLower(name)
	p, ok := ai.settings.Personalities[key]
	if !ok {
		return false
	}
	ai.personalityName = key
	ai.personality = p
	return true
}

// Difficulty returns the active preset name.
func (ai *AIController) Difficulty() string { return ai.difficultyName }

// Personality returns the active personality name.
func (ai *AIController) Personality() string { return ai.personalityName }

// Update runs due actions every tick and re-evaluates the target once the
// decision cooldown has elapsed.
func (ai *AIController) Update(now time.Time, others []*Player, objectives []Objective, actor AIActor) {
	if !ai.player.Alive() {
		ai.queue.Clear()
		ai.axis = 0
		ai.stuckCount = 0
		return
	}

	for {
		a, ok := ai.queue.PopDue(now)
		if !ok {
			break
		}
		ai.perform(a, now, actor)
	}

	if !ai.lastDecision.IsZero() && now.Sub(ai.lastDecision) < ai.settings.DecisionCooldown.Duration() {
		return
	}

	perception := ai.Perceive(others, objectives)
	ai.target = ai.SelectTarget(perception)
	ai.decide(now)
	ai.lastDecision = now
	ai.detectStuck(now, actor)
}

// =============================================================================
// PERCEPTION
// =============================================================================

// Perceive sorts living opponents by distance, objectives by priority and
// scores the opponents within combat range.
func (ai *AIController) Perceive(others []*Player, objectives []Objective) Perception {
	self := ai.player.kin.Position
	var per Perception

	for _, o := range others {
		if o == ai.player || !o.Alive() {
			continue
		}
		per.Nearby = append(per.Nearby, Sighting{Player: o, Distance: self.Dist(o.kin.Position)})
	}
	sort.SliceStable(per.Nearby, func(i, j int) bool { return per.Nearby[i].Distance < per.Nearby[j].Distance })

	for _, obj := range objectives {
		obj.Distance = self.Dist(obj.Position)
		obj.Priority = 10 - math.Min(obj.Distance, 10)
		per.Objectives = append(per.Objectives, obj)
	}
	sort.SliceStable(per.Objectives, func(i, j int) bool { return per.Objectives[i].Priority > per.Objectives[j].Priority })

	for _, s := range per.Nearby {
		if s.Distance >= ai.settings.CombatRange {
			continue
		}
		s.Threat = ai.ThreatLevel(s.Player)
		per.Threats = append(per.Threats, s)
	}
	sort.SliceStable(per.Threats, func(i, j int) bool { return per.Threats[i].Threat > per.Threats[j].Threat })

	return per
}

// ThreatLevel scores an opponent from relative health, weapon advantage and
// proximity. Higher is more dangerous.
func (ai *AIController) ThreatLevel(enemy *Player) float64 {
	selfHealth := math.Max(ai.player.vit.Health, 1)
	threat := enemy.vit.Health / selfHealth * 30

	if enemy.Armed() && !ai.player.Armed() {
		threat += 40
	}

	d := ai.player.kin.Position.Dist(enemy.kin.Position)
	threat += math.Max(0, 50-d*5)
	return threat
}

// SelectTarget applies the target priorities in order: flee when hurt,
// fetch a weapon when unarmed, attack when aggressive, take an objective,
// else drift toward one of the nearest players.
func (ai *AIController) SelectTarget(per Perception) Target {
	if ai.player.vit.Fraction() < ai.settings.FleeThreshold {
		return ai.safePosition(per.Threats)
	}

	if !ai.player.Armed() {
		for _, obj := range per.Objectives {
			if obj.Kind == ObjectiveWeapon {
				return Target{Kind: TargetObjective, Objective: obj.Kind, Position: obj.Position, Distance: obj.Distance}
			}
		}
	}

	if len(per.Threats) > 0 && ai.difficulty.Aggression*ai.personality.Aggression > 0.5 {
		nearest := per.Threats[0]
		for _, s := range per.Threats[1:] {
			if s.Distance < nearest.Distance {
				nearest = s
			}
		}
		return playerTarget(nearest)
	}

	if len(per.Objectives) > 0 {
		obj := per.Objectives[0]
		return Target{Kind: TargetObjective, Objective: obj.Kind, Position: obj.Position, Distance: obj.Distance}
	}

	if len(per.Nearby) > 0 {
		n := min(3, len(per.Nearby))
		return playerTarget(per.Nearby[ai.rng.Intn(n)])
	}

	return Target{}
}

func playerTarget(s Sighting) Target {
	return Target{Kind: TargetPlayer, Player: s.Player, Position: s.Player.kin.Position, Distance: s.Distance}
}

// safePosition samples points on a circle around the player and keeps the
// one farthest, on average, from every threat.
func (ai *AIController) safePosition(threats []Sighting) Target {
	self := ai.player.kin.Position
	samples := max(ai.settings.SafeSamples, 1)
	best := Target{Kind: TargetSafe, Safety: -1}

	for i := 0; i < samples; i++ {
		angle := 2 * math.Pi * float64(i) / float64(samples)
		pos := self.Add(geom.V(math.Cos(angle), math.Sin(angle), 0).Scale(ai.settings.SafeRadius))

		safety := 0.0
		for _, t := range threats {
			safety += pos.Dist(t.Player.kin.Position)
		}
		safety /= float64(max(len(threats), 1))

		if safety > best.Safety {
			best.Position = pos
			best.Distance = self.Dist(pos)
			best.Safety = safety
		}
	}
	return best
}

// =============================================================================
// ACTIONS
// =============================================================================

func (ai *AIController) decide(now time.Time) {
	switch ai.target.Kind {
	case TargetPlayer:
		enemy := ai.target.Player
		d := ai.player.kin.Position.Dist(enemy.kin.Position)
		if d < ai.settings.CombatRange && ai.player.Armed() {
			if ai.attackReady(now) {
				ai.planAttack(enemy, now)
			}
			return
		}
		ai.planMovement(enemy.kin.Position, now)
	case TargetObjective, TargetSafe:
		ai.planMovement(ai.target.Position, now)
	}
}

func (ai *AIController) attackReady(now time.Time) bool {
	if !ai.lastAttack.IsZero() && now.Sub(ai.lastAttack) <= ai.settings.AttackCooldown.Duration() {
		return false
	}
	return ai.player.Weapon.Ready(now)
}

func (ai *AIController) reaction() time.Duration {
	return ai.difficulty.ReactionTime.Duration()
}

// planAttack rolls against accuracy. A failed roll still spends the
// decision cycle.
func (ai *AIController) planAttack(enemy *Player, now time.Time) {
	acc := ai.difficulty.Accuracy
	if ai.rng.Float64() >= acc {
		return
	}

	variance := (1 - acc) * ai.settings.MaxAimVariance
	aim := enemy.kin.Position
	aim.X += (ai.rng.Float64() - 0.5) * variance
	aim.Y += (ai.rng.Float64() - 0.5) * variance

	if dx := aim.X - ai.player.kin.Position.X; dx != 0 {
		ai.player.kin.Facing = geom.Sign(dx)
	}

	jitter := time.Duration(ai.rng.Float64() * float64(100*time.Millisecond))
	ai.queue.Schedule(aiAction{Kind: ActionAttack, Due: now.Add(ai.reaction() + jitter), Aim: aim})
}

func (ai *AIController) planMovement(dest geom.Vec3, now time.Time) {
	self := ai.player.kin.Position
	dx := dest.X - self.X
	if math.Abs(dx) <= 0.5 {
		ai.queue.Schedule(aiAction{Kind: ActionStop, Due: now})
		return
	}

	delay := time.Duration(ai.rng.Float64() * float64(ai.reaction()))
	ai.queue.Schedule(aiAction{
		Kind:      ActionMove,
		Due:       now.Add(delay),
		Direction: geom.Sign(dx) * ai.difficulty.MovementSpeed,
	})

	if ai.shouldJump(dest) {
		jitter := time.Duration(ai.rng.Float64() * float64(200*time.Millisecond))
		ai.queue.Schedule(aiAction{Kind: ActionJump, Due: now.Add(ai.reaction() + jitter)})
	}
}

// shouldJump jumps toward higher targets with jump precision as the odds,
// plus a small random chance for variety.
func (ai *AIController) shouldJump(dest geom.Vec3) bool {
	precision := ai.difficulty.JumpPrecision
	if dest.Y > ai.player.kin.Position.Y+0.5 {
		return ai.rng.Float64() < precision
	}
	return ai.rng.Float64() < 0.1*precision
}

func (ai *AIController) perform(a aiAction, now time.Time, actor AIActor) {
	switch a.Kind {
	case ActionMove:
		ai.axis = geom.Clamp(a.Direction, -1, 1)
	case ActionStop:
		ai.axis = 0
	case ActionJump:
		if ai.player.kin.Grounded && actor != nil {
			actor.Jump()
		}
	case ActionAttack:
		if ai.player.Armed() && actor != nil {
			actor.Attack(a.Aim)
			ai.lastAttack = now
		}
	}
}

// detectStuck counts decision cycles with almost no displacement and kicks
// the AI loose on the StuckChecks-th in a row.
func (ai *AIController) detectStuck(now time.Time, actor AIActor) {
	pos := ai.player.kin.Position
	if pos.Dist(ai.lastPosition) < ai.settings.StuckEpsilon {
		ai.stuckCount++
	} else {
		ai.stuckCount = 0
	}
	ai.lastPosition = pos

	if ai.stuckCount < ai.settings.StuckChecks {
		return
	}
	ai.stuckCount = 0

	if ai.player.kin.Grounded && ai.rng.Float64() < 0.7 && actor != nil {
		actor.Jump()
	}
	dir := 1.0
	if ai.rng.Float64() > 0.5 {
		dir = -1
	}
	ai.queue.Schedule(aiAction{Kind: ActionMove, Due: now, Direction: dir})
	log.Printf("🤖 AI player %d unsticking", ai.player.Slot)
}

// AIStatus is a read-only view of a controller for inspection.
type AIStatus struct {
	Slot        int    `json:"slot"`
	Difficulty  string `json:"difficulty"`
	Personality string `json:"personality"`
	Target      string `json:"target"`
	Stuck       bool   `json:"stuck"`
	Scheduled   int    `json:"scheduled"`
}

// Status reports the controller's current state.
func (ai *AIController) Status() AIStatus {
	target := ai.target.Kind.String()
	switch ai.target.Kind {
	case TargetPlayer:
		target = "player:" + ai.target.Player.Name
	case TargetObjective:
		target = ai.target.Objective.String()
	}
	return AIStatus{
		Slot:        ai.player.Slot,
		Difficulty:  ai.difficultyName,
		Personality: ai.personalityName,
		Target:      target,
		Stuck:       ai.stuckCount > 0 && 2*ai.stuckCount >= ai.settings.StuckChecks,
		Scheduled:   ai.queue.Len(),
	}
}
