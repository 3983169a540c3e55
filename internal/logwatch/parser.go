package logwatch

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/park285/isle-dino-bot/internal/domain"
)

// DepartureMarker is the phrase the server writes when a player logs out
// safely. The spelling matches the server's output.
const DepartureMarker = "Left The Server whilebeing safelogged"

var (
	ErrNotDeparture = errors.New("logwatch: not a departure line")
	ErrIncomplete   = errors.New("logwatch: departure line missing fields")
)

var (
	reSteamID = regexp.MustCompile(`\[(\d{17})\]`)
	reSpecies = regexp.MustCompile(`Was playing as: ([^,]+)`)
	reGrowth  = regexp.MustCompile(`Growth: ([\d.]+)`)
)

// ParseDeparture extracts the player, species and growth from a departure
// line. Each field is probed independently, so their order does not matter.
func ParseDeparture(line string) (domain.Departure, error) {
	if !strings.Contains(line, DepartureMarker) {
		return domain.Departure{}, ErrNotDeparture
	}
	id := reSteamID.FindStringSubmatch(line)
	species := reSpecies.FindStringSubmatch(line)
	growth := reGrowth.FindStringSubmatch(line)
	if id == nil || species == nil || growth == nil {
		return domain.Departure{}, ErrIncomplete
	}
	g, err := strconv.ParseFloat(growth[1], 64)
	if err != nil {
		return domain.Departure{}, ErrIncomplete
	}
	name := strings.TrimSpace(species[1])
	if name == "" {
		return domain.Departure{}, ErrIncomplete
	}
	return domain.Departure{SteamID: id[1], Species: name, Growth: g}, nil
}
