// Package energy implements the Mifflin-St Jeor resting energy estimate and
// the activity-scaled daily expenditure derived from it.
package energy

import "nutrilog"

// DefaultActivityMultiplier applies to activity levels missing from the table.
const DefaultActivityMultiplier = 1.375

var activityMultipliers = map[nutrilog.ActivityLevel]float64{
	nutrilog.ActivitySedentary:        1.2,
	nutrilog.ActivityLightlyActive:    1.375,
	nutrilog.ActivityModeratelyActive: 1.55,
	nutrilog.ActivityVeryActive:       1.725,
	nutrilog.ActivitySuperActive:      1.9,
}

type Energy struct {
	BMR  float64 `json:"bmr"`
	TDEE float64 `json:"tdee"`
}

// ActivityMultiplier returns the TDEE multiplier for level.
func ActivityMultiplier(level nutrilog.ActivityLevel) float64 {
	if m, ok := activityMultipliers[level]; ok {
		return m
	}
	return DefaultActivityMultiplier
}

// ComputeTDEE returns BMR and TDEE in kcal/day. Callers validate the profile first;
// for a valid profile both values are finite and positive.
func ComputeTDEE(p nutrilog.UserProfile) Energy {
	bmr := 10*p.WeightKG + 6.25*p.HeightCM - 5*float64(p.Age)
	if p.Gender == nutrilog.GenderMale {
		bmr += 5
	} else {
		bmr -= 161
	}

	return Energy{
		BMR:  bmr,
		TDEE: bmr * ActivityMultiplier(p.ActivityLevel),
	}
}
