package calibration

const (
	hourSeconds = int64(60 * 60)
	daySeconds  = 24 * hourSeconds
	weekSeconds = 7 * daySeconds

	// chargeLossPercentPerDay is the share of current charge lost per elapsed day.
	chargeLossPercentPerDay = 5
)

// ProjectKinship returns kinship as of now. One point is lost per
// interactPeriod*2 hours since the last interaction, saturating at zero.
// Records that were never interacted with keep their stored kinship.
func ProjectKinship(r Record, interactPeriod int64, now int64) int {
	kinship := clamp(r.Kinship, 0, MaxKinship)
	if r.LastInteraction == 0 {
		return kinship
	}
	unit := max64(interactPeriod, 1) * 2 * hourSeconds
	elapsed := elapsedUnits(r.LastInteraction, now, unit)
	if int64(kinship) <= elapsed {
		return 0
	}
	return kinship - int(elapsed)
}

// ProjectCharge returns charge as of now. Each whole day since the last
// charge removes 5% of the stored charge, rescaled inversely by the group's
// regen multiplier (a multiplier of 200 halves the loss).
func ProjectCharge(r Record, regenMultiplier int, now int64) int {
	charge := r.Charge
	if charge < 0 {
		charge = 0
	}
	if r.LastCharge == 0 || charge == 0 {
		return charge
	}
	days := elapsedUnits(r.LastCharge, now, daySeconds)
	if days == 0 {
		return charge
	}
	if regenMultiplier <= 0 {
		regenMultiplier = DefaultRegenMultiplier
	}
	loss := int64(charge) * days * chargeLossPercentPerDay / 100
	loss = loss * 100 / int64(regenMultiplier)
	if loss >= int64(charge) {
		return 0
	}
	return charge - int(loss)
}

// ProjectWear returns wear as of now: one point per whole week since the last
// recalibration, capped at MaxWear. Wear never shrinks here; only repair and
// inspection luck reduce it.
func ProjectWear(r Record, now int64) int {
	wear := clamp(r.Wear, 0, MaxWear)
	if r.LastRecalibration == 0 {
		return wear
	}
	weeks := elapsedUnits(r.LastRecalibration, now, weekSeconds)
	if weeks == 0 {
		return wear
	}
	if weeks >= int64(MaxWear-wear) {
		return MaxWear
	}
	return wear + int(weeks)
}

// TuneKinship returns kinship after a paid interaction: the projected value
// plus the settings' tune value, plus the neglect bonus when the projected
// value sits below the bonus threshold, capped at MaxKinship.
func TuneKinship(r Record, s Settings, now int64) int {
	current := ProjectKinship(r, s.InteractPeriod, now)
	gain := s.TuneValue
	if current < s.BonusThreshold {
		gain += s.BonusValue
	}
	return clamp(current+gain, 0, MaxKinship)
}

// BioLevel is the derived vitality composite of kinship, charge (capped at the
// base ceiling) and integrity (100 - wear). It is never stored.
func BioLevel(kinship, charge, wear int) int {
	return (clamp(kinship, 0, MaxKinship) + clamp(charge, 0, BaseMaxCharge) + (MaxWear - clamp(wear, 0, MaxWear))) / 3
}

// Projection is a record advanced to a point in time without being written.
type Projection struct {
	Record   Record `json:"record"`
	Kinship  int    `json:"kinship"`
	Charge   int    `json:"charge"`
	Wear     int    `json:"wear"`
	BioLevel int    `json:"bio_level"`
	Status   Status `json:"status"`
	// ReadyAt is the unix time the cooldown ends; zero when ready.
	ReadyAt int64 `json:"ready_at"`
}

// Project applies all three decay projections plus the derived values.
func Project(r Record, g Group, s Settings, now int64) Projection {
	p := Projection{
		Record:  r,
		Kinship: ProjectKinship(r, s.InteractPeriod, now),
		Charge:  ProjectCharge(r, g.Regen(), now),
		Wear:    ProjectWear(r, now),
		Status:  StatusAt(r, s.InteractPeriod, now),
	}
	p.BioLevel = BioLevel(p.Kinship, p.Charge, p.Wear)
	if p.Status == StatusCoolingDown {
		p.ReadyAt = CooldownEnd(r, s.InteractPeriod)
	}
	return p
}

func elapsedUnits(since, now, unit int64) int64 {
	if now <= since || unit <= 0 {
		return 0
	}
	return (now - since) / unit
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
