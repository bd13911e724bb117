package migration

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ksred/hoopstats/internal/schema"
)

var playerIDPattern = regexp.MustCompile(`/players/[a-z]/([^.]+)\.html`)

var gameDateFormats = []string{
	"2006-01-02",
	"01/02/2006",
	"Jan 2, 2006",
}

// ExtractPlayerID derives the basketball-reference player ID from a
// player's profile URL.
func ExtractPlayerID(record schema.Record) (schema.Record, error) {
	url := stringValue(record, "player_url")
	if url == "" {
		url = stringValue(record, "url")
	}
	if url == "" {
		return record, nil
	}

	match := playerIDPattern.FindStringSubmatch(url)
	if match != nil {
		record["player_id"] = match[1]
	}
	return record, nil
}

// ParseGameDate normalizes a scraped game date and derives the season
// year. A season spanning October through June belongs to its starting
// calendar year.
func ParseGameDate(record schema.Record) (schema.Record, error) {
	raw := stringValue(record, "date")
	if raw == "" {
		raw = stringValue(record, "game_date")
	}
	if raw == "" {
		return record, nil
	}

	raw = strings.TrimSpace(raw)
	for _, format := range gameDateFormats {
		parsed, err := time.Parse(format, raw)
		if err != nil {
			continue
		}
		record["parsed_date"] = parsed.Format("2006-01-02")
		if parsed.Month() >= time.October {
			record["season_year"] = parsed.Year()
		} else {
			record["season_year"] = parsed.Year() - 1
		}
		return record, nil
	}

	return record, fmt.Errorf("unrecognized game date %q", raw)
}

// CalculateAgeOnDate computes a player's age in years on the game date.
func CalculateAgeOnDate(record schema.Record) (schema.Record, error) {
	birth := stringValue(record, "birth_date")
	game := stringValue(record, "game_date")
	if game == "" {
		game = stringValue(record, "parsed_date")
	}
	if birth == "" || game == "" {
		return record, nil
	}

	birthDate, err := time.Parse("2006-01-02", birth)
	if err != nil {
		return record, fmt.Errorf("invalid birth date %q: %w", birth, err)
	}
	gameDate, err := time.Parse("2006-01-02", game)
	if err != nil {
		return record, fmt.Errorf("invalid game date %q: %w", game, err)
	}

	ageDays := gameDate.Sub(birthDate).Hours() / 24
	record["age_on_date"] = math.Round(ageDays/365.25*100) / 100
	return record, nil
}

func stringValue(record schema.Record, key string) string {
	if v, ok := record[key].(string); ok {
		return v
	}
	return ""
}

// RegisterBuiltins registers the stock migration functions used by the
// operator CLI.
func RegisterBuiltins(registry *Registry, logger zerolog.Logger) error {
	builtins := []Function{
		{
			Name:          "extract_player_id",
			Description:   "Extract player ID from basketball-reference URLs",
			Transform:     ExtractPlayerID,
			TargetColumns: []string{"player_id"},
			SourceColumns: []string{"player_url", "url"},
			Version:       "1.0",
			ContentHash:   "extract-player-id-v1",
		},
		{
			Name:          "parse_game_dates",
			Description:   "Parse game dates and derive the season year",
			Transform:     ParseGameDate,
			TargetColumns: []string{"parsed_date", "season_year"},
			SourceColumns: []string{"date", "game_date"},
			Version:       "1.0",
			ContentHash:   "parse-game-dates-v1",
		},
		{
			Name:          "calculate_age_on_date",
			Description:   "Calculate player age on the game date",
			Transform:     CalculateAgeOnDate,
			TargetColumns: []string{"age_on_date"},
			SourceColumns: []string{"birth_date", "game_date", "parsed_date"},
			Version:       "1.0",
			ContentHash:   "calculate-age-on-date-v1",
		},
	}

	for _, fn := range builtins {
		if err := registry.Register(fn); err != nil {
			return err
		}
	}
	logger.Debug().Int("count", len(builtins)).Msg("registered builtin migration functions")
	return nil
}
