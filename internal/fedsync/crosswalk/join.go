package crosswalk

import (
	"sort"

	"github.com/sells-group/disaster-recon/internal/model"
	"go.uber.org/zap"
)

// maxLoggedZIPs caps the unmapped ZIPs included in the join warning.
const maxLoggedZIPs = 10

// JoinStats describes the outcome of a Join.
type JoinStats struct {
	Matched int
	Dropped int
	// DroppedZIPs lists the distinct unmapped ZIPs, sorted.
	DroppedZIPs []string
}

// Join attaches a county to each line item by ZIP. It is an inner join:
// items whose ZIP has no crosswalk entry are dropped and counted. Input
// order is preserved.
func (c *Crosswalk) Join(items []model.MissionAssignment) ([]model.CountyLineItem, JoinStats) {
	out := make([]model.CountyLineItem, 0, len(items))
	var stats JoinStats
	dropped := map[string]bool{}

	for _, item := range items {
		county, ok := c.Lookup(string(item.ZIP))
		if !ok {
			stats.Dropped++
			dropped[string(item.ZIP)] = true
			continue
		}
		out = append(out, model.CountyLineItem{
			MissionAssignment: item,
			StateFIPS:         county.StateFIPS,
			CountyFIPS:        county.CountyFIPS,
		})
	}
	stats.Matched = len(out)

	for zip := range dropped {
		stats.DroppedZIPs = append(stats.DroppedZIPs, zip)
	}
	sort.Strings(stats.DroppedZIPs)

	if stats.Dropped > 0 {
		sample := stats.DroppedZIPs
		if len(sample) > maxLoggedZIPs {
			sample = sample[:maxLoggedZIPs]
		}
		zap.L().Warn("crosswalk: line items dropped for unmapped ZIPs",
			zap.Int("dropped", stats.Dropped),
			zap.Int("matched", stats.Matched),
			zap.Int("distinct_zips", len(stats.DroppedZIPs)),
			zap.Strings("sample_zips", sample),
		)
	}

	return out, stats
}
