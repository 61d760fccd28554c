package reporting

import "fmt"

// ValidateClinicalData range-checks the measurements. Out-of-range
// values are errors; in-range but clinically concerning values come
// back as warnings.
func ValidateClinicalData(d ClinicalData) ValidationResult {
	result := ValidationResult{Data: d}

	checkRange := func(name string, v *float64, min, max float64) bool {
		if v == nil {
			return false
		}
		if *v < min || *v > max {
			result.Errors = append(result.Errors,
				fmt.Sprintf("%s %.1f outside valid range %g-%g", name, *v, min, max))
			return false
		}
		return true
	}

	if checkRange("ejection fraction", d.EjectionFraction, 0, 100) && *d.EjectionFraction < 40 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("ejection fraction %.1f%% is below 40%%, reduced systolic function", *d.EjectionFraction))
	}
	checkRange("LV mass", d.LVMass, 0, 500)
	checkRange("calcium score", d.CalciumScore, 0, 5000)
	if checkRange("CBF", d.CBF, 0, 150) && *d.CBF < 20 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("CBF %.1f mL/100g/min is below 20, possible hypoperfusion", *d.CBF))
	}
	checkRange("MTT", d.MTT, 0, 15)
	checkRange("ischemia extent", d.IschemiaExtent, 0, 100)

	if d.BIRADS != nil && (*d.BIRADS < 0 || *d.BIRADS > 6) {
		result.Errors = append(result.Errors,
			fmt.Sprintf("BI-RADS category %d outside valid range 0-6", *d.BIRADS))
	}

	result.Valid = len(result.Errors) == 0
	return result
}
