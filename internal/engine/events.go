package engine

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/lazypower/calibrator/internal/calibration"
	"github.com/lazypower/calibrator/internal/store"
)

// Event kinds.
const (
	EventInspected              = "inspected"
	EventBatchInspected         = "batch_inspected"
	EventExperienceGained       = "experience_gained"
	EventLevelUp                = "level_up"
	EventWearChanged            = "wear_changed"
	EventWearRepaired           = "wear_repaired"
	EventChargeUpdated          = "charge_updated"
	EventStatusUpdated          = "calibration_status_updated"
	EventFeeCollected           = "fee_collected"
	EventFeeBurned              = "fee_burned"
	EventGroupRegistered        = "group_registered"
	EventGroupUpdated           = "group_updated"
	EventGroupDeregistered      = "group_deregistered"
	EventSettingsUpdated        = "settings_updated"
	EventProcessorChanged       = "processor_approval_changed"
	EventStakingContractChanged = "staking_contract_changed"
	EventStakingSync            = "staking_sync"
	EventMinted                 = "minted"
)

// Emitter receives events after the transaction that produced them commits.
type Emitter interface {
	Emit(e store.Event)
}

// NoopEmitter discards events.
type NoopEmitter struct{}

func (NoopEmitter) Emit(store.Event) {}

// LogEmitter writes each event as one log line.
type LogEmitter struct {
	Logger *log.Logger
}

func (l LogEmitter) Emit(e store.Event) {
	line := "event: " + e.Kind
	if e.GroupID != 0 || e.ItemID != 0 {
		line += " " + calibration.Key{GroupID: e.GroupID, ItemID: e.ItemID}.String()
	}
	if !e.Actor.IsZero() {
		line += " actor=" + e.Actor.String()
	}
	if len(e.Attrs) > 0 {
		keys := make([]string, 0, len(e.Attrs))
		for k := range e.Attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s=%v", k, e.Attrs[k])
		}
		line += " " + strings.Join(parts, " ")
	}
	if l.Logger != nil {
		l.Logger.Print(line)
		return
	}
	log.Print(line)
}

