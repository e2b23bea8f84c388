package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/calibrator/internal/calibration"
	"github.com/lazypower/calibrator/internal/collab"
	"github.com/lazypower/calibrator/internal/engine"
)

func init() {
	eventsCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 20, "Maximum number of events")
	eventsCmd.Flags().Uint64Var(&eventsGroup, "group", 0, "Only events for this group (requires --item)")
	eventsCmd.Flags().Uint64Var(&eventsItem, "item", 0, "Only events for this item")
}

// readEngine opens an engine for read-only commands. Probes and event reads
// never consult the item registries.
func readEngine() (*engine.Engine, func() error, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	db, err := openDB(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	return engine.New(db, collab.RegistrySet{}), db.Close, nil
}

// --- probe command ---

var probeCmd = &cobra.Command{
	Use:   "probe <group> <item>",
	Short: "Show the projected vitality of one item",
	Args:  cobra.ExactArgs(2),
	RunE:  runProbe,
}

func runProbe(cmd *cobra.Command, args []string) error {
	groupID, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid group id %q", args[0])
	}
	itemID, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid item id %q", args[1])
	}

	eng, closeDB, err := readEngine()
	if err != nil {
		return err
	}
	defer closeDB()

	p, err := eng.Probe(cmd.Context(), groupID, itemID)
	if err != nil {
		return err
	}
	printProjection(cmd, calibration.Key{GroupID: groupID, ItemID: itemID}, p)
	return nil
}

func printProjection(cmd *cobra.Command, key calibration.Key, p calibration.Projection) {
	out := cmd.OutOrStdout()
	r := p.Record
	fmt.Fprintf(out, "%s  %s\n", key, p.Status)
	if p.Status == calibration.StatusUninitialized {
		return
	}
	fmt.Fprintf(out, "  owner:      %s\n", r.Owner)
	fmt.Fprintf(out, "  level:      %d (%d xp)\n", r.Level, r.Experience)
	fmt.Fprintf(out, "  kinship:    %d\n", p.Kinship)
	fmt.Fprintf(out, "  charge:     %d\n", p.Charge)
	fmt.Fprintf(out, "  wear:       %d\n", p.Wear)
	fmt.Fprintf(out, "  bio level:  %d\n", p.BioLevel)
	fmt.Fprintf(out, "  stats:      prowess %d, agility %d, intelligence %d\n", r.Prowess, r.Agility, r.Intelligence)
	fmt.Fprintf(out, "  inspected:  %d times\n", r.CalibrationCount)
	if r.Locked {
		fmt.Fprintln(out, "  locked")
	}
	if p.ReadyAt > 0 {
		fmt.Fprintf(out, "  ready at:   %s\n", time.Unix(p.ReadyAt, 0).UTC().Format(time.RFC3339))
	}
}

// --- events command ---

var (
	eventsLimit int
	eventsGroup uint64
	eventsItem  uint64
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List recent engine events",
	RunE:  runEvents,
}

func runEvents(cmd *cobra.Command, args []string) error {
	eng, closeDB, err := readEngine()
	if err != nil {
		return err
	}
	defer closeDB()

	key := calibration.Key{GroupID: eventsGroup, ItemID: eventsItem}
	events, err := eng.Events(cmd.Context(), key, eventsLimit)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(events) == 0 {
		fmt.Fprintln(out, "No events found.")
		return nil
	}
	for _, e := range events {
		ts := time.Unix(e.CreatedAt, 0).UTC().Format(time.RFC3339)
		line := fmt.Sprintf("%s  %-28s", ts, e.Kind)
		if e.ItemID != 0 {
			line += " " + calibration.Key{GroupID: e.GroupID, ItemID: e.ItemID}.String()
		} else if e.GroupID != 0 {
			line += fmt.Sprintf(" group %d", e.GroupID)
		}
		fmt.Fprintln(out, line)
	}
	return nil
}
