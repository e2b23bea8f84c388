package calibration

import (
	"fmt"
	"math"
)

// MaxExperience is the sentinel requirement for levels past the cap.
const MaxExperience = math.MaxUint64

const (
	MinVariant = 1
	MaxVariant = 4

	firstTouchMultiplier = 3
	levelFactorStart     = 10
	levelFactorEnd       = 50
	levelFactorFloor     = 50
	timeFactorCeiling    = 200
)

// Stat names used to seed growth rolls.
const (
	StatProwess      = "prowess"
	StatAgility      = "agility"
	StatIntelligence = "intelligence"
)

// ValidVariant reports whether v is a known item variant.
func ValidVariant(v uint8) bool {
	return v >= MinVariant && v <= MaxVariant
}

// RequiredExperience is the cumulative experience needed to hold level:
// zero at or below level 1, level^2*100 up to MaxLevel, and MaxExperience
// beyond it so leveling loops stop at the cap.
func RequiredExperience(level int) uint64 {
	if level <= MinLevel {
		return 0
	}
	if level > MaxLevel {
		return MaxExperience
	}
	l := uint64(level)
	return l * l * 100
}

// BaseExperience is the per-inspection experience before time and level factors.
func BaseExperience(variant uint8) uint64 {
	return 10 + uint64(variant)*5
}

// TimeFactor rewards longer gaps between calibrations, in percent: 100 at
// zero days rising linearly to 150 at one week, then 150 + 5*sqrt(days-7)
// up to a ceiling of 200.
func TimeFactor(daysSince int64) uint64 {
	if daysSince <= 0 {
		return 100
	}
	if daysSince < 7 {
		return 100 + uint64(daysSince)*50/7
	}
	f := 150 + 5*isqrt(uint64(daysSince-7))
	if f > timeFactorCeiling {
		return timeFactorCeiling
	}
	return f
}

// LevelFactor penalizes high-level grinding, in percent: 100 through level
// 10, falling linearly to 50 at level 50 and flat after.
func LevelFactor(level int) uint64 {
	if level <= levelFactorStart {
		return 100
	}
	if level >= levelFactorEnd {
		return levelFactorFloor
	}
	return uint64(100 - (level-levelFactorStart)*50/(levelFactorEnd-levelFactorStart))
}

// ExperienceGain computes the experience an inspection awards. The first
// calibration of an item always grants three times the base, regardless of
// time or level.
func ExperienceGain(r Record, variant uint8, now int64) uint64 {
	base := BaseExperience(variant)
	if r.CalibrationCount == 0 {
		return base * firstTouchMultiplier
	}
	var days int64
	if r.LastRecalibration != 0 {
		days = elapsedUnits(r.LastRecalibration, now, daySeconds)
	}
	return base * TimeFactor(days) * LevelFactor(r.Level) / 10000
}

// ResolveLevel scans upward from current+1 and returns the highest level
// whose requirement experience satisfies. It never returns less than current.
func ResolveLevel(current int, experience uint64) int {
	if current < MinLevel {
		current = MinLevel
	}
	level := current
	for candidate := current + 1; candidate <= MaxLevel; candidate++ {
		if RequiredExperience(candidate) > experience {
			break
		}
		level = candidate
	}
	return level
}

// StatGain is the growth drawn for one crossed level.
type StatGain struct {
	Level        int `json:"level"`
	Prowess      int `json:"prowess"`
	Agility      int `json:"agility"`
	Intelligence int `json:"intelligence"`
}

// VariantTier maps a variant to its growth tier (1, 2 or 3).
func VariantTier(variant uint8) int {
	if variant >= 3 {
		return 3
	}
	if variant < 1 {
		return 1
	}
	return int(variant)
}

// baseStatDelta is the tier plus the variant-specific affinity bonus.
func baseStatDelta(variant uint8, stat string) int {
	delta := VariantTier(variant)
	switch {
	case variant == 2 && stat == StatAgility,
		variant == 3 && stat == StatIntelligence,
		variant == 4 && stat == StatProwess:
		delta++
	}
	return delta
}

// StatDelta draws the growth of one stat for one crossed level: the base delta
// jittered by -1, 0 or +1, floored at zero.
func StatDelta(variant uint8, stat string, itemID uint64, level int, now int64) int {
	jitter := int(Roll(now, itemID, fmt.Sprintf("%s:%d", stat, level))%3) - 1
	delta := baseStatDelta(variant, stat) + jitter
	if delta < 0 {
		return 0
	}
	return delta
}

// LevelUp resolves the level reached by r's experience and draws stat growth
// for every level crossed. The returned record has level and stats updated.
func LevelUp(r Record, variant uint8, now int64) (Record, []StatGain) {
	target := ResolveLevel(r.Level, r.Experience)
	if target <= r.Level {
		if r.Level < MinLevel {
			r.Level = MinLevel
		}
		return r, nil
	}
	gains := make([]StatGain, 0, target-r.Level)
	for level := r.Level + 1; level <= target; level++ {
		g := StatGain{
			Level:        level,
			Prowess:      StatDelta(variant, StatProwess, r.ItemID, level, now),
			Agility:      StatDelta(variant, StatAgility, r.ItemID, level, now),
			Intelligence: StatDelta(variant, StatIntelligence, r.ItemID, level, now),
		}
		r.Prowess += g.Prowess
		r.Agility += g.Agility
		r.Intelligence += g.Intelligence
		gains = append(gains, g)
	}
	r.Level = target
	return r, gains
}

// AddExperience adds gain to experience, saturating instead of wrapping.
func AddExperience(experience, gain uint64) uint64 {
	if experience > MaxExperience-gain {
		return MaxExperience
	}
	return experience + gain
}

func isqrt(n uint64) uint64 {
	if n < 2 {
		return n
	}
	x := uint64(math.Sqrt(float64(n)))
	for x*x > n {
		x--
	}
	for (x+1)*(x+1) <= n {
		x++
	}
	return x
}
