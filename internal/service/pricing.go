package service

import (
	"math"
	"sort"
	"strings"
	"time"
)

// Resource families the pattern detectors reason about. Classification is
// heuristic: provider service names and usage types differ wildly, so the
// markers below cover the common shapes of all three clouds.
const (
	familyCompute  = "compute"
	familyStorage  = "storage"
	familySnapshot = "snapshot"
	familyOther    = "other"
)

var computeMarkers = []string{"compute", "virtual machine", "ec2"}

var storageMarkers = []string{"storage", "disk", "block store", "s3", "blob"}

// resourceFamily classifies one billed line by service and usage type.
// Usage type wins over service name: EC2 bills volumes and snapshots under
// its compute service, and only the usage type tells them apart.
func resourceFamily(service, usageType string) string {
	s := strings.ToLower(service)
	u := strings.ToLower(usageType)
	switch {
	case strings.Contains(s, "snapshot"), strings.Contains(u, "snapshot"):
		return familySnapshot
	case strings.Contains(u, "volume"), strings.Contains(u, "storage"):
		return familyStorage
	case containsAny(s, computeMarkers):
		return familyCompute
	case containsAny(s, storageMarkers):
		return familyStorage
	default:
		return familyOther
	}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// Instance size tiers ordered smallest to largest, with representative
// on-demand hourly unit prices. Each tier costs double the one below it,
// which keeps the rightsizing savings estimate strictly positive.
var sizeLadder = []string{"micro", "small", "medium", "large", "xlarge", "2xlarge", "4xlarge"}

var onDemandHourly = map[string]float64{
	"micro":   0.0104,
	"small":   0.0208,
	"medium":  0.0416,
	"large":   0.0832,
	"xlarge":  0.1664,
	"2xlarge": 0.3328,
	"4xlarge": 0.6656,
}

// Tag keys that may carry an instance size, in lookup order.
var sizeTagKeys = []string{"instance_type", "vm_size", "machine_type", "size"}

// sizeFromTags resolves an instance size tier from resource tags. Values
// like "m5.xlarge" or "n1-standard-large" resolve through their last
// dot- or dash-separated token.
func sizeFromTags(tags map[string]string) (string, bool) {
	for _, key := range sizeTagKeys {
		v, ok := tags[key]
		if !ok || v == "" {
			continue
		}
		v = strings.ToLower(v)
		if _, known := onDemandHourly[v]; known {
			return v, true
		}
		if i := strings.LastIndexAny(v, ".-"); i >= 0 && i+1 < len(v) {
			tail := v[i+1:]
			if _, known := onDemandHourly[tail]; known {
				return tail, true
			}
		}
	}
	return "", false
}

// tierBelow returns the next smaller size tier, or false at the bottom of
// the ladder.
func tierBelow(size string) (string, bool) {
	for i, s := range sizeLadder {
		if s == size {
			if i == 0 {
				return "", false
			}
			return sizeLadder[i-1], true
		}
	}
	return "", false
}

// Detection thresholds.
const (
	minComputeDailyRunCost = 0.125 // daily cost of the cheapest tier that is actually powered on
	idleActivityRatio      = 0.05
	idleRecoveryFactor     = 0.95
	minUnusedMonthly       = 5.0
	minStaleMonthly        = 2.0
	minReservedAvgDaily    = 1.0
	reservedDiscount       = 0.35
	maxSteadyVariation     = 0.10

	idleMinDays      = 25
	unusedMinDays    = 20
	staleMinDays     = 28
	rightsizeMinDays = 25
	reservedRunDays  = 28

	monthDays   = 30
	hoursPerDay = 24
)

// meanAndVariation returns the arithmetic mean of vs and the coefficient of
// variation (population stddev over mean). A zero mean reports infinite
// variation so callers never treat it as steady.
func meanAndVariation(vs []float64) (mean, variation float64) {
	if len(vs) == 0 {
		return 0, math.Inf(1)
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	mean = sum / float64(len(vs))
	if mean == 0 {
		return 0, math.Inf(1)
	}
	var sq float64
	for _, v := range vs {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq/float64(len(vs))) / mean
}

// longestConsecutiveRun returns the length of the longest streak of
// consecutive calendar days in dates.
func longestConsecutiveRun(dates []time.Time) int {
	if len(dates) == 0 {
		return 0
	}
	sorted := make([]time.Time, len(dates))
	copy(sorted, dates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	best, run := 1, 1
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Sub(sorted[i-1]) == 24*time.Hour {
			run++
			if run > best {
				best = run
			}
		} else if !sorted[i].Equal(sorted[i-1]) {
			run = 1
		}
	}
	return best
}
