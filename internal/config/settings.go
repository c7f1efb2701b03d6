package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Millis is a duration expressed in whole milliseconds in settings files.
type Millis int64

// Duration converts m to a time.Duration.
func (m Millis) Duration() time.Duration {
	return time.Duration(m) * time.Millisecond
}

// Victory condition names accepted in MatchSettings.VictoryConditions.
const (
	VictoryMoney       = "money"
	VictoryElimination = "elimination"
	VictoryTime        = "time"
	VictoryKills       = "kills"
)

// =============================================================================
// GAME SETTINGS
// =============================================================================

// GameSettings is the flat tuning surface read by the simulation core.
// It is read-only for the lifetime of a match.
type GameSettings struct {
	Movement    MovementSettings              `yaml:"movement" json:"movement"`
	Combat      CombatSettings                `yaml:"combat" json:"combat"`
	Weapons     map[string]WeaponSettings     `yaml:"weapons" json:"weapons"`
	Projectiles map[string]ProjectileSettings `yaml:"projectiles" json:"projectiles"`
	Match       MatchSettings                 `yaml:"match" json:"match"`
	Trophy      TrophySettings                `yaml:"trophy" json:"trophy"`
	Pickups     PickupSettings                `yaml:"pickups" json:"pickups"`
	Healing     HealingSettings               `yaml:"healing" json:"healing"`
	AI          AISettings                    `yaml:"ai" json:"ai"`
}

// MovementSettings tunes the character controller. Accelerations and
// friction coefficients are per 1/60 s frame and rescaled by dt.
type MovementSettings struct {
	MoveSpeed      float64 `yaml:"move_speed" json:"move_speed"`
	Acceleration   float64 `yaml:"acceleration" json:"acceleration"` // fraction of MoveSpeed gained per frame
	JumpVelocity   float64 `yaml:"jump_velocity" json:"jump_velocity"`
	Gravity        float64 `yaml:"gravity" json:"gravity"` // units/s², positive pulls down
	GroundFriction float64 `yaml:"ground_friction" json:"ground_friction"`
	AirFriction    float64 `yaml:"air_friction" json:"air_friction"`
	MaxFallSpeed   float64 `yaml:"max_fall_speed" json:"max_fall_speed"`
	CoyoteTime     Millis  `yaml:"coyote_time_ms" json:"coyote_time_ms"`
	JumpBuffer     Millis  `yaml:"jump_buffer_ms" json:"jump_buffer_ms"`
	MaxStep        Millis  `yaml:"max_step_ms" json:"max_step_ms"`
	ProbeDistance  float64 `yaml:"probe_distance" json:"probe_distance"`
	SnapTolerance  float64 `yaml:"snap_tolerance" json:"snap_tolerance"`
	FallRecoveryY  float64 `yaml:"fall_recovery_y" json:"fall_recovery_y"`
	RecoveryHeight float64 `yaml:"recovery_height" json:"recovery_height"`
}

// CombatSettings covers health, hit windows and respawning.
type CombatSettings struct {
	MaxHealth       float64 `yaml:"max_health" json:"max_health"`
	Invulnerability Millis  `yaml:"invulnerability_ms" json:"invulnerability_ms"`
	HurtDuration    Millis  `yaml:"hurt_ms" json:"hurt_ms"`
	RespawnDelay    Millis  `yaml:"respawn_delay_ms" json:"respawn_delay_ms"`
	HitRadius       float64 `yaml:"hit_radius" json:"hit_radius"`
	RecoilScale     float64 `yaml:"recoil_scale" json:"recoil_scale"`
}

// WeaponSettings describes one weapon kind, keyed by its name.
type WeaponSettings struct {
	Cooldown    Millis  `yaml:"cooldown_ms" json:"cooldown_ms"`
	Damage      float64 `yaml:"damage" json:"damage"`
	Projectile  string  `yaml:"projectile" json:"projectile"`
	Pellets     int     `yaml:"pellets" json:"pellets"`
	Spread      float64 `yaml:"spread_deg" json:"spread_deg"` // total fan angle for multi-pellet weapons
	Jitter      float64 `yaml:"jitter_deg" json:"jitter_deg"` // random aim offset for single shots
	Ammo        int     `yaml:"ammo" json:"ammo"`             // 0 = unlimited
	Lifespan    Millis  `yaml:"lifespan_ms" json:"lifespan_ms"`
	Automatic   bool    `yaml:"automatic" json:"automatic"`
	SpawnWeight int     `yaml:"spawn_weight" json:"spawn_weight"`
}

// ProjectileSettings describes one projectile kind.
type ProjectileSettings struct {
	Speed            float64 `yaml:"speed" json:"speed"`
	Mass             float64 `yaml:"mass" json:"mass"`
	DamageMultiplier float64 `yaml:"damage_multiplier" json:"damage_multiplier"`
}

// MatchSettings holds victory and lobby settings.
type MatchSettings struct {
	WinMoney          float64  `yaml:"win_money" json:"win_money"`
	KillLimit         int      `yaml:"kill_limit" json:"kill_limit"`
	VictoryConditions []string `yaml:"victory_conditions" json:"victory_conditions"`
	Duration          Millis   `yaml:"duration_ms" json:"duration_ms"` // 0 = no time limit
}

// TrophySettings tunes the money objective.
type TrophySettings struct {
	Enabled       bool    `yaml:"enabled" json:"enabled"`
	PassiveIncome float64 `yaml:"passive_income" json:"passive_income"` // money per second while carried
	PickupBounty  float64 `yaml:"pickup_bounty" json:"pickup_bounty"`
	StealBounty   float64 `yaml:"steal_bounty" json:"steal_bounty"`
	PickupRadius  float64 `yaml:"pickup_radius" json:"pickup_radius"`
}

// PickupSettings tunes weapon spawns and dropped weapons.
type PickupSettings struct {
	RefillDelay  Millis  `yaml:"refill_delay_ms" json:"refill_delay_ms"`
	PickupRadius float64 `yaml:"pickup_radius" json:"pickup_radius"`
	DroppedTTL   Millis  `yaml:"dropped_ttl_ms" json:"dropped_ttl_ms"`
}

// HealingSettings tunes out-of-combat regeneration.
type HealingSettings struct {
	Cooldown     Millis  `yaml:"cooldown_ms" json:"cooldown_ms"`
	AmountPerSec float64 `yaml:"amount_per_sec" json:"amount_per_sec"`
}

// DifficultySettings is one AI difficulty preset.
type DifficultySettings struct {
	ReactionTime    Millis  `yaml:"reaction_time_ms" json:"reaction_time_ms"`
	Accuracy        float64 `yaml:"accuracy" json:"accuracy"`
	Aggression      float64 `yaml:"aggression" json:"aggression"`
	JumpPrecision   float64 `yaml:"jump_precision" json:"jump_precision"`
	MovementSpeed   float64 `yaml:"movement_speed" json:"movement_speed"`
	DecisionQuality float64 `yaml:"decision_quality" json:"decision_quality"`
}

// PersonalitySettings scales an AI's difficulty traits.
type PersonalitySettings struct {
	Aggression float64 `yaml:"aggression" json:"aggression"`
	Patience   float64 `yaml:"patience" json:"patience"`
	RiskTaking float64 `yaml:"risk_taking" json:"risk_taking"`
}

// AISettings tunes the AI decision engine.
type AISettings struct {
	DecisionCooldown  Millis                         `yaml:"decision_cooldown_ms" json:"decision_cooldown_ms"`
	AttackCooldown    Millis                         `yaml:"attack_cooldown_ms" json:"attack_cooldown_ms"`
	ActionStaleAfter  Millis                         `yaml:"action_stale_after_ms" json:"action_stale_after_ms"`
	CombatRange       float64                        `yaml:"combat_range" json:"combat_range"`
	FleeThreshold     float64                        `yaml:"flee_threshold" json:"flee_threshold"`
	MaxAimVariance    float64                        `yaml:"max_aim_variance" json:"max_aim_variance"`
	SafeRadius        float64                        `yaml:"safe_radius" json:"safe_radius"`
	SafeSamples       int                            `yaml:"safe_samples" json:"safe_samples"`
	StuckEpsilon      float64                        `yaml:"stuck_epsilon" json:"stuck_epsilon"`
	StuckChecks       int                            `yaml:"stuck_checks" json:"stuck_checks"`
	DefaultDifficulty string                         `yaml:"default_difficulty" json:"default_difficulty"`
	Difficulties      map[string]DifficultySettings  `yaml:"difficulties" json:"difficulties"`
	Personalities     map[string]PersonalitySettings `yaml:"personalities" json:"personalities"`
}

// DefaultGame returns the canonical tuning of the arena.
func DefaultGame() GameSettings {
	return GameSettings{
		Movement: MovementSettings{
			MoveSpeed:      8,
			Acceleration:   0.4,
			JumpVelocity:   2.2 * 8,
			Gravity:        35 * 0.6,
			GroundFriction: 0.85,
			AirFriction:    0.98,
			MaxFallSpeed:   15,
			CoyoteTime:     150,
			JumpBuffer:     100,
			MaxStep:        50,
			ProbeDistance:  5,
			SnapTolerance:  0.2,
			FallRecoveryY:  -5,
			RecoveryHeight: 10,
		},
		Combat: CombatSettings{
			MaxHealth:       100,
			Invulnerability: 1000,
			HurtDuration:    200,
			RespawnDelay:    5000,
			HitRadius:       1.0,
			RecoilScale:     0.1,
		},
		Weapons: map[string]WeaponSettings{
			"bow":     {Cooldown: 1000, Damage: 10, Projectile: "arrow", Pellets: 1, Ammo: 3, SpawnWeight: 1},
			"gun":     {Cooldown: 500, Damage: 30, Projectile: "bullet", Pellets: 1, SpawnWeight: 1},
			"shotgun": {Cooldown: 750, Damage: 6, Projectile: "bullet", Pellets: 6, Spread: 20, Lifespan: 200, SpawnWeight: 1},
			"minigun": {Cooldown: 100, Damage: 3, Projectile: "bullet", Pellets: 1, Jitter: 3, Automatic: true, SpawnWeight: 1},
		},
		Projectiles: map[string]ProjectileSettings{
			"arrow":  {Speed: 35, Mass: 0.1, DamageMultiplier: 10},
			"bullet": {Speed: 100, Mass: 0.05, DamageMultiplier: 1},
		},
		Match: MatchSettings{
			WinMoney:          10000,
			KillLimit:         10,
			VictoryConditions: []string{VictoryMoney},
		},
		Trophy: TrophySettings{
			Enabled:       true,
			PassiveIncome: 100,
			PickupBounty:  1000,
			StealBounty:   2000,
			PickupRadius:  1.5,
		},
		Pickups: PickupSettings{
			RefillDelay:  5000,
			PickupRadius: 1.5,
			DroppedTTL:   10000,
		},
		Healing: HealingSettings{
			Cooldown:     1000,
			AmountPerSec: 5,
		},
		AI: AISettings{
			DecisionCooldown:  500,
			AttackCooldown:    1000,
			ActionStaleAfter:  1000,
			CombatRange:       8,
			FleeThreshold:     0.3,
			MaxAimVariance:    2,
			SafeRadius:        10,
			SafeSamples:       8,
			StuckEpsilon:      0.1,
			StuckChecks:       20,
			DefaultDifficulty: "normal",
			Difficulties: map[string]DifficultySettings{
				"easy":   {ReactionTime: 800, Accuracy: 0.6, Aggression: 0.3, JumpPrecision: 0.4, MovementSpeed: 0.7, DecisionQuality: 0.5},
				"normal": {ReactionTime: 500, Accuracy: 0.75, Aggression: 0.6, JumpPrecision: 0.7, MovementSpeed: 0.85, DecisionQuality: 0.7},
				"hard":   {ReactionTime: 300, Accuracy: 0.9, Aggression: 0.8, JumpPrecision: 0.9, MovementSpeed: 1.0, DecisionQuality: 0.9},
				"expert": {ReactionTime: 150, Accuracy: 0.95, Aggression: 0.9, JumpPrecision: 0.95, MovementSpeed: 1.0, DecisionQuality: 0.95},
			},
			Personalities: map[string]PersonalitySettings{
				"aggressive":  {Aggression: 1.2, Patience: 0.5, RiskTaking: 0.9},
				"defensive":   {Aggression: 0.6, Patience: 1.3, RiskTaking: 0.3},
				"opportunist": {Aggression: 0.8, Patience: 0.9, RiskTaking: 0.7},
				"berserker":   {Aggression: 1.5, Patience: 0.2, RiskTaking: 1.2},
			},
		},
	}
}

// GameFromEnv applies ARENA_* overrides on top of base.
func GameFromEnv(base GameSettings) GameSettings {
	cfg := base

	if v := getEnvFloat("ARENA_WIN_MONEY", 0); v > 0 {
		cfg.Match.WinMoney = v
	}
	if v := getEnvInt("ARENA_KILL_LIMIT", 0); v > 0 {
		cfg.Match.KillLimit = v
	}
	if d := getEnvDuration("ARENA_MATCH_DURATION", 0); d > 0 {
		cfg.Match.Duration = Millis(d / time.Millisecond)
	}
	if v := os.Getenv("ARENA_VICTORY"); v != "" {
		cfg.Match.VictoryConditions = splitList(v)
	}
	if v := os.Getenv("ARENA_AI_DIFFICULTY"); v != "" {
		cfg.AI.DefaultDifficulty = v
	}
	if d := getEnvDuration("ARENA_RESPAWN_DELAY", 0); d > 0 {
		cfg.Combat.RespawnDelay = Millis(d / time.Millisecond)
	}

	return cfg
}

// =============================================================================
// SETTINGS FILES
// =============================================================================

// LoadSettingsFile merges a YAML (.yaml/.yml) or JSON (.json) file over
// DefaultGame. Sections and fields missing from the file keep their default
// values; a weapon, projectile or AI preset entry only needs the fields it
// changes.
func LoadSettingsFile(path string) (GameSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return GameSettings{}, fmt.Errorf("read settings %s: %w", path, err)
	}
	return ParseSettings(data, filepath.Ext(path))
}

// ParseSettings decodes data in the format named by ext (".yaml", ".yml"
// or ".json") and merges it over DefaultGame.
func ParseSettings(data []byte, ext string) (GameSettings, error) {
	defaults := DefaultGame()
	cfg := DefaultGame()

	// Map entries decode into fresh zero values; they are back-filled below.
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return GameSettings{}, fmt.Errorf("parse yaml settings: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return GameSettings{}, fmt.Errorf("parse json settings: %w", err)
		}
	default:
		return GameSettings{}, fmt.Errorf("unsupported settings format %q", ext)
	}

	for name, w := range cfg.Weapons {
		if d, ok := defaults.Weapons[name]; ok {
			cfg.Weapons[name] = mergeWeapon(w, d)
		}
	}
	for name, p := range cfg.Projectiles {
		if d, ok := defaults.Projectiles[name]; ok {
			cfg.Projectiles[name] = mergeProjectile(p, d)
		}
	}
	for name, ds := range cfg.AI.Difficulties {
		if d, ok := defaults.AI.Difficulties[name]; ok {
			cfg.AI.Difficulties[name] = mergeDifficulty(ds, d)
		}
	}

	if err := cfg.Validate(); err != nil {
		return GameSettings{}, err
	}
	return cfg, nil
}

func mergeWeapon(w, d WeaponSettings) WeaponSettings {
	if w.Cooldown == 0 {
		w.Cooldown = d.Cooldown
	}
	if w.Damage == 0 {
		w.Damage = d.Damage
	}
	if w.Projectile == "" {
		w.Projectile = d.Projectile
	}
	if w.Pellets == 0 {
		w.Pellets = d.Pellets
	}
	if w.Spread == 0 {
		w.Spread = d.Spread
	}
	if w.Jitter == 0 {
		w.Jitter = d.Jitter
	}
	if w.Ammo == 0 {
		w.Ammo = d.Ammo
	}
	if w.Lifespan == 0 {
		w.Lifespan = d.Lifespan
	}
	if !w.Automatic {
		w.Automatic = d.Automatic
	}
	if w.SpawnWeight == 0 {
		w.SpawnWeight = d.SpawnWeight
	}
	return w
}

func mergeProjectile(p, d ProjectileSettings) ProjectileSettings {
	if p.Speed == 0 {
		p.Speed = d.Speed
	}
	if p.Mass == 0 {
		p.Mass = d.Mass
	}
	if p.DamageMultiplier == 0 {
		p.DamageMultiplier = d.DamageMultiplier
	}
	return p
}

func mergeDifficulty(s, d DifficultySettings) DifficultySettings {
	if s.ReactionTime == 0 {
		s.ReactionTime = d.ReactionTime
	}
	if s.Accuracy == 0 {
		s.Accuracy = d.Accuracy
	}
	if s.Aggression == 0 {
		s.Aggression = d.Aggression
	}
	if s.JumpPrecision == 0 {
		s.JumpPrecision = d.JumpPrecision
	}
	if s.MovementSpeed == 0 {
		s.MovementSpeed = d.MovementSpeed
	}
	if s.DecisionQuality == 0 {
		s.DecisionQuality = d.DecisionQuality
	}
	return s
}

// =============================================================================
// VALIDATION
// =============================================================================

// ErrInvalidSettings wraps every validation failure.
var ErrInvalidSettings = errors.New("invalid settings")

// Validate rejects malformed settings. Unknown weapon or projectile
// references are not errors; the core falls back to generic values.
func (g GameSettings) Validate() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidSettings, fmt.Sprintf(format, args...))
	}

	if g.Combat.MaxHealth <= 0 {
		return bad("combat.max_health must be positive, got %v", g.Combat.MaxHealth)
	}
	if g.Movement.MoveSpeed <= 0 {
		return bad("movement.move_speed must be positive, got %v", g.Movement.MoveSpeed)
	}
	if g.Movement.MaxStep <= 0 {
		return bad("movement.max_step_ms must be positive, got %d", g.Movement.MaxStep)
	}
	for _, f := range []float64{g.Movement.GroundFriction, g.Movement.AirFriction} {
		if f < 0 || f > 1 {
			return bad("friction must be within [0, 1], got %v", f)
		}
	}
	if g.Combat.RespawnDelay < 0 || g.Combat.Invulnerability < 0 {
		return bad("combat timers must not be negative")
	}
	for name, w := range g.Weapons {
		if w.Cooldown < 0 || w.Damage < 0 || w.Ammo < 0 || w.Pellets < 0 {
			return bad("weapon %q has negative values", name)
		}
	}
	for _, c := range g.Match.VictoryConditions {
		switch c {
		case VictoryMoney, VictoryElimination, VictoryTime, VictoryKills:
		default:
			return bad("unknown victory condition %q", c)
		}
	}
	if g.Match.Duration < 0 {
		return bad("match.duration_ms must not be negative")
	}
	if _, ok := g.AI.Difficulties[g.AI.DefaultDifficulty]; !ok {
		return bad("ai.default_difficulty %q has no preset", g.AI.DefaultDifficulty)
	}
	return nil
}
