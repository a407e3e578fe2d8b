// Package cohort implements the age-cohort ledger used by organs that senesce
// gradually: an ordered sequence of biomass classes, newest at the head, with
// tail-first partial removal, age-indexed queries and uniform rescaling.
package cohort

// Cohort is one discrete age class of accumulated biomass, tracked as a unit
// until fully senesced.
type Cohort struct {
	Biomass      float64
	SpecificArea float64
	AgeDays      float64
}

// Ledger holds cohorts ordered from newest (index 0) to oldest. Ages are
// non-decreasing from head to tail after every update.
type Ledger struct {
	cohorts []Cohort
}

// New returns a ledger seeded with a single cohort, or an empty ledger when
// initial biomass is zero.
func New(biomass, specificArea float64) *Ledger {
	l := &Ledger{}
	if biomass > 0 {
		l.cohorts = []Cohort{{Biomass: biomass, SpecificArea: specificArea}}
	}
	return l
}

// Update performs the daily ledger transition:
//
//  1. deathDemand mass is consumed from the tail: whole cohorts are removed
//     while they fit, then the first cohort exceeding the remaining demand is
//     partially reduced. Demand beyond the total mass empties the ledger.
//  2. every surviving cohort ages by ageStep (a temperature-scaled
//     day-equivalent, not necessarily 1).
//  3. a new head cohort {growth, specificArea, age 0} is inserted.
func (l *Ledger) Update(growth, specificArea, ageStep, deathDemand float64) {
	if deathDemand > 0 {
		l.removeFromTail(deathDemand)
	}
	for i := range l.cohorts {
		l.cohorts[i].AgeDays += ageStep
	}
	l.cohorts = append([]Cohort{{Biomass: growth, SpecificArea: specificArea}}, l.cohorts...)
}

func (l *Ledger) removeFromTail(demand float64) {
	for i := len(l.cohorts) - 1; i >= 0 && demand > 0; i-- {
		c := l.cohorts[i]
		if demand >= c.Biomass {
			demand -= c.Biomass
			l.cohorts = l.cohorts[:i]
			continue
		}
		l.cohorts[i].Biomass -= demand
		demand = 0
	}
}

// Mass returns the total ledger biomass.
func (l *Ledger) Mass() float64 {
	var sum float64
	for _, c := range l.cohorts {
		sum += c.Biomass
	}
	return sum
}

// Area returns the total area, biomass times specific area summed over all
// cohorts.
func (l *Ledger) Area() float64 {
	var sum float64
	for _, c := range l.cohorts {
		sum += c.Biomass * c.SpecificArea
	}
	return sum
}

// MassOlderThan returns the summed biomass of all cohorts whose age exceeds
// the span threshold. Organ components merge this into their death demand.
func (l *Ledger) MassOlderThan(span float64) float64 {
	var sum float64
	for _, c := range l.cohorts {
		if c.AgeDays > span {
			sum += c.Biomass
		}
	}
	return sum
}

// Rescale multiplies every cohort's biomass by targetMass/Mass(), preserving
// ordering and per-cohort specific areas. When the ledger is empty or massless
// it is replaced by a single cohort of the target mass at specificArea. Used
// when an external process forcibly overrides the organ's total size.
func (l *Ledger) Rescale(targetMass, specificArea float64) {
	current := l.Mass()
	if current <= 0 {
		l.cohorts = nil
		if targetMass > 0 {
			l.cohorts = []Cohort{{Biomass: targetMass, SpecificArea: specificArea}}
		}
		return
	}
	ratio := targetMass / current
	for i := range l.cohorts {
		l.cohorts[i].Biomass *= ratio
	}
}

// Len returns the number of cohorts.
func (l *Ledger) Len() int { return len(l.cohorts) }

// Cohorts returns a copy of the ledger contents, head first.
func (l *Ledger) Cohorts() []Cohort {
	out := make([]Cohort, len(l.cohorts))
	copy(out, l.cohorts)
	return out
}
