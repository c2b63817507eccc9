// Package badge maps point totals to presentational tiers.
package badge

// Tier is a badge level. Higher values rank above lower ones.
type Tier int

const (
	Newbie Tier = iota
	Beginner
	Intermediate
	Master
)

// Lower bounds (inclusive) of each tier above Newbie.
const (
	BeginnerMin     = 1
	IntermediateMin = 100
	MasterMin       = 500
)

// For returns the tier for a point total.
func For(points int64) Tier {
	switch {
	case points >= MasterMin:
		return Master
	case points >= IntermediateMin:
		return Intermediate
	case points >= BeginnerMin:
		return Beginner
	default:
		return Newbie
	}
}

// Name returns the bare tier label.
func (t Tier) Name() string {
	switch t {
	case Master:
		return "Master"
	case Intermediate:
		return "Intermediate"
	case Beginner:
		return "Beginner"
	default:
		return "Newbie"
	}
}

// String returns the label as shown in chat replies.
func (t Tier) String() string {
	switch t {
	case Master:
		return "🥇 " + t.Name()
	case Intermediate:
		return "🥈 " + t.Name()
	case Beginner:
		return "🥉 " + t.Name()
	default:
		return "❌ " + t.Name()
	}
}
