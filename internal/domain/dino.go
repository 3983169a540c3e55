package domain

import (
	"math"
	"strings"
	"time"
)

// MaxStoredGrowth keeps one point of headroom below 100 so the in-game mutation
// choice at full growth is still offered after a restore.
const MaxStoredGrowth = 99

// Stats holds the 0–100 integer scale values kept in storage.
type Stats struct {
	Growth int
	Hunger int
	Thirst int
	Health int
}

// Snapshot is a live reading of a player's dinosaur on the game server.
// Fractional fields are on the 0–1 scale reported by the server.
type Snapshot struct {
	PlayerID string
	Name     string
	Species  string
	Growth   float64
	Hunger   float64
	Thirst   float64
	Health   float64
	Stamina  float64
	Position Position
}

type Position struct {
	X, Y, Z float64
}

// StoredStats converts the snapshot to the storage scale with growth capped.
func (s *Snapshot) StoredStats() Stats {
	growth := ToPercent(s.Growth)
	if growth > MaxStoredGrowth {
		growth = MaxStoredGrowth
	}
	return Stats{
		Growth: growth,
		Hunger: ToPercent(s.Hunger),
		Thirst: ToPercent(s.Thirst),
		Health: ToPercent(s.Health),
	}
}

// ToPercent truncates a 0–1 fraction to an integer percentage in [0,100].
// The epsilon absorbs float artifacts such as 0.29*100 = 28.999999999999996.
func ToPercent(f float64) int {
	if math.IsNaN(f) || f <= 0 {
		return 0
	}
	v := int(math.Floor(f*100 + 1e-6))
	if v > 100 {
		return 100
	}
	return v
}

// PendingSave is a staged save waiting for its departure log line.
type PendingSave struct {
	ID        int64
	SteamID   string
	DiscordID string
	Callback  string
	Species   string
	Stats
	CreatedAt time.Time
}

// CommittedDino is a banked dinosaur owned by a Steam account.
type CommittedDino struct {
	ID        string
	SteamID   string
	Species   string
	Stats
	CreatedAt time.Time
}

// Player links a chat account to a game account and holds the currency balance.
type Player struct {
	DiscordID    string
	SteamID      string
	Balance      int64
	RegisteredAt time.Time
}

func (p *Player) Linked() bool { return p != nil && strings.TrimSpace(p.SteamID) != "" }

type Subscription struct {
	ID          int64
	DiscordID   string
	Tier        string
	DinoSlots   int
	Active      bool
	AutoRenewal bool
	PurchasedAt time.Time
	ExpiresAt   time.Time
}

// NormalizeSpecies maps both the RCON class name (BP_Triceratops_C) and the
// log name (Triceratops) to the same comparable key.
func NormalizeSpecies(s string) string {
	return strings.ToLower(SpeciesLabel(s))
}

// SameSpecies reports whether two species names refer to the same dinosaur.
func SameSpecies(a, b string) bool {
	na, nb := NormalizeSpecies(a), NormalizeSpecies(b)
	return na != "" && na == nb
}

// SpeciesLabel strips the blueprint decoration but keeps the original case.
func SpeciesLabel(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 3 && strings.EqualFold(s[:3], "bp_") {
		s = s[3:]
	}
	if len(s) > 2 && strings.EqualFold(s[len(s)-2:], "_c") {
		s = s[:len(s)-2]
	}
	return s
}

// Departure is a "left while safelogged" event read from the server log.
type Departure struct {
	SteamID string
	Species string
	Growth  float64
}
