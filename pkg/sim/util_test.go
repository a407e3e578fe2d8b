package sim

import (
	"testing"
	"time"
)

func TestDayLength_Seasons(t *testing.T) {
	lat := 52.0
	summer := DayLength(time.Date(2025, 6, 21, 0, 0, 0, 0, time.UTC), lat)
	winter := DayLength(time.Date(2025, 12, 21, 0, 0, 0, 0, time.UTC), lat)
	equinox := DayLength(time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC), lat)

	if summer <= winter {
		t.Fatalf("summer %g not longer than winter %g", summer, winter)
	}
	if summer < 15 || summer > 19 {
		t.Fatalf("midsummer at 52N = %g h", summer)
	}
	if winter < 6 || winter > 10 {
		t.Fatalf("midwinter at 52N = %g h", winter)
	}
	// the -4 degree angle makes the equinox day slightly longer than 12 h
	if equinox < 12 || equinox > 14 {
		t.Fatalf("equinox at 52N = %g h", equinox)
	}
}

func TestDayLength_PolarClamping(t *testing.T) {
	if got := DayLength(time.Date(2025, 6, 21, 0, 0, 0, 0, time.UTC), 80); got != 24 {
		t.Fatalf("polar summer = %g h, want 24", got)
	}
	if got := DayLength(time.Date(2025, 12, 21, 0, 0, 0, 0, time.UTC), 80); got != 0 {
		t.Fatalf("polar winter = %g h, want 0", got)
	}
}
