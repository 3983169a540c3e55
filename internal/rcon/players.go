package rcon

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/park285/isle-dino-bot/internal/domain"
)

var (
	reBlockSplit = regexp.MustCompile(`(?:\[\d{4}\.\d{2}\.\d{2}-\d{2}\.\d{2}\.\d{2}\]\s*)?(?:PlayerDataName|Name): `)
	rePlayerID   = regexp.MustCompile(`PlayerID: (\d+)`)
	reLocation   = regexp.MustCompile(`Location: X=([-\d.]+) Y=([-\d.]+) Z=([-\d.]+)`)
	reClass      = regexp.MustCompile(`Class: ([^,]+)`)
	reGrowth     = regexp.MustCompile(`Growth: ([\d.]+)`)
	reHealth     = regexp.MustCompile(`Health: ([\d.]+)`)
	reStamina    = regexp.MustCompile(`Stamina: ([\d.]+)`)
	reHunger     = regexp.MustCompile(`Hunger: ([\d.]+)`)
	reThirst     = regexp.MustCompile(`Thirst: ([\d.]+)`)
)

// ParsePlayers extracts one snapshot per player block of a player list
// response. Blocks without a player id are skipped. Missing numeric fields
// read as zero.
func ParsePlayers(resp string) []domain.Snapshot {
	blocks := reBlockSplit.Split(resp, -1)
	out := make([]domain.Snapshot, 0, len(blocks))
	for _, block := range blocks {
		if strings.TrimSpace(block) == "" {
			continue
		}
		m := rePlayerID.FindStringSubmatch(block)
		if m == nil {
			continue
		}
		s := domain.Snapshot{PlayerID: m[1]}
		if i := strings.IndexByte(block, ','); i >= 0 {
			s.Name = strings.TrimSpace(block[:i])
		}
		if m := reClass.FindStringSubmatch(block); m != nil {
			s.Species = strings.TrimSpace(m[1])
		}
		if m := reLocation.FindStringSubmatch(block); m != nil {
			s.Position = domain.Position{X: parseFloat(m[1]), Y: parseFloat(m[2]), Z: parseFloat(m[3])}
		}
		s.Growth = firstFloat(reGrowth, block)
		s.Health = firstFloat(reHealth, block)
		s.Stamina = firstFloat(reStamina, block)
		s.Hunger = firstFloat(reHunger, block)
		s.Thirst = firstFloat(reThirst, block)
		out = append(out, s)
	}
	return out
}

// FindPlayer returns the snapshot for playerID, if present.
func FindPlayer(players []domain.Snapshot, playerID string) (domain.Snapshot, bool) {
	for _, p := range players {
		if p.PlayerID == playerID {
			return p, true
		}
	}
	return domain.Snapshot{}, false
}

func firstFloat(re *regexp.Regexp, s string) float64 {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	return parseFloat(m[1])
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimRight(s, "."), 64)
	if err != nil {
		return 0
	}
	return f
}
