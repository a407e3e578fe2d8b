package sim

import "time"

// Signal names exchanged over the bus. The set is deliberately small: one
// informational activation event and one terminal deactivation event that may
// be requested redundantly by independent detectors, plus a whole-run stop.
const (
	SignalCropEmerged = "crop_emerged"
	SignalCropFinish  = "crop_finish"
	SignalTerminate   = "terminate"
)

// CropEmerged announces that the crop has emerged. Informational; no consumer
// is required.
type CropEmerged struct {
	Day time.Time
}

// CropFinish requests the end of the crop cycle. Several producers may fire
// it on the same day (maturity, frost kill, external harvest); the first
// request is authoritative and later ones must be accepted without error.
type CropFinish struct {
	Day    time.Time
	Reason string
	// Delete requests removal of the crop subtree from further stepping.
	Delete bool
}

// Finish reasons used by the built-in producers.
const (
	FinishMaturity    = "maturity"
	FinishFrostKill   = "frost kill"
	FinishHarvest     = "harvest"
	FinishMaxDuration = "max duration reached"
)
