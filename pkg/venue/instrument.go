package venue

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/drawdownguard/collar-engine/pkg/money"
	"github.com/drawdownguard/collar-engine/pkg/ptypes"
)

// ParseInstrument decodes a venue instrument name in either the Deribit-
// style option format ASSET-DDMONYY-STRIKE-{P|C} or the perpetual format
// ASSET-PERPETUAL.
func ParseInstrument(name string) (Instrument, error) {
	parts := strings.Split(name, "-")
	if len(parts) == 2 && parts[1] == "PERPETUAL" {
		return Instrument{
			Name:  name,
			Asset: ptypes.Asset(parts[0]),
			Kind:  "perpetual",
		}, nil
	}

	if len(parts) != 4 {
		return Instrument{}, fmt.Errorf("venue: malformed instrument %q", name)
	}

	strike, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return Instrument{}, fmt.Errorf("venue: bad strike in %q: %w", name, err)
	}

	expiryTime, err := parseDDMONYY(parts[1])
	if err != nil {
		return Instrument{}, fmt.Errorf("venue: bad expiry in %q: %w", name, err)
	}

	var optType ptypes.OptionType
	switch parts[3] {
	case "P":
		optType = ptypes.OptionPut
	case "C":
		optType = ptypes.OptionCall
	default:
		return Instrument{}, fmt.Errorf("venue: bad option type in %q", name)
	}

	return Instrument{
		Name:       name,
		Asset:      ptypes.Asset(parts[0]),
		Kind:       "option",
		Strike:     money.NewFromFloat(strike),
		OptionType: optType,
		ExpiryTag:  parts[1],
		ExpiryTime: expiryTime.UnixMilli(),
	}, nil
}

// FormatOptionInstrument builds the ASSET-DDMONYY-STRIKE-{P|C} name for a
// given asset, expiry day, strike, and option type.
func FormatOptionInstrument(asset ptypes.Asset, expiry time.Time, strike money.Value, opt ptypes.OptionType) string {
	tag := formatDDMONYY(expiry)
	letter := "C"
	if opt == ptypes.OptionPut {
		letter = "P"
	}
	return fmt.Sprintf("%s-%s-%s-%s", asset, tag, strike.Round2().String(), letter)
}

// FormatPerpetualInstrument builds the ASSET-PERPETUAL name.
func FormatPerpetualInstrument(asset ptypes.Asset) string {
	return fmt.Sprintf("%s-PERPETUAL", asset)
}

var months = []string{"JAN", "FEB", "MAR", "APR", "MAY", "JUN", "JUL", "AUG", "SEP", "OCT", "NOV", "DEC"}

func formatDDMONYY(t time.Time) string {
	return fmt.Sprintf("%02d%s%02d", t.Day(), months[int(t.Month())-1], t.Year()%100)
}

func parseDDMONYY(tag string) (time.Time, error) {
	if len(tag) < 5 {
		return time.Time{}, fmt.Errorf("expiry tag too short: %q", tag)
	}
	day, err := strconv.Atoi(tag[:2])
	if err != nil {
		return time.Time{}, err
	}
	monStr := strings.ToUpper(tag[2 : len(tag)-2])
	yy, err := strconv.Atoi(tag[len(tag)-2:])
	if err != nil {
		return time.Time{}, err
	}

	monthIdx := -1
	for i, m := range months {
		if m == monStr {
			monthIdx = i
			break
		}
	}
	if monthIdx < 0 {
		return time.Time{}, fmt.Errorf("unknown month %q", monStr)
	}

	year := 2000 + yy
	return time.Date(year, time.Month(monthIdx+1), day, 8, 0, 0, 0, time.UTC), nil
}
