/*
bands.go - Risk dimensions and attribute bucketing

PURPOSE:
  Maps raw vehicle/client attributes onto the discrete rating keys the
  table is keyed by, and declares which dimensions each product requires.

  The dimension set per product is a closed, explicit mapping - not an
  open string-keyed bag. Tests can enumerate exactly what each product
  needs, and a new dimension cannot sneak in without being declared here.

BAND CONVENTIONS:
  Band names carry their numeric range. Lower bound inclusive, upper bound
  exclusive except for the open-ended top band:
    ENGINE_1400_1800 covers 1400 <= cc < 1800.
  Vehicle and driver age bands are inclusive on both ends where named so
  (VEHICLE_AGE_0_3 covers ages 0..3).
*/
package rating

// =============================================================================
// DIMENSIONS - What each product is rated on
// =============================================================================

// Dimension is one axis of risk a product is rated on. Each dimension
// derives exactly one RatingKey from the calculation input.
type Dimension string

const (
	DimVehicleAge     Dimension = "vehicle_age"
	DimEngineCapacity Dimension = "engine_capacity"
	DimPower          Dimension = "power"
	DimClientAge      Dimension = "client_age"
	DimCoverage       Dimension = "coverage"
)

// productDimensions is the closed required-dimension set per product.
// OC and AC share the vehicle dimensions; AC additionally rates the
// client's age; NNW is rated on its coverage flag alone.
var productDimensions = map[InsuranceType][]Dimension{
	TypeOC:  {DimVehicleAge, DimEngineCapacity, DimPower, DimCoverage},
	TypeAC:  {DimVehicleAge, DimEngineCapacity, DimPower, DimClientAge, DimCoverage},
	TypeNNW: {DimCoverage},
}

// Dimensions returns the required dimension set for a product.
func Dimensions(t InsuranceType) []Dimension {
	dims := productDimensions[t]
	out := make([]Dimension, len(dims))
	copy(out, dims)
	return out
}

// Coverage flags, one per product.
const (
	KeyOCCoverage  RatingKey = "OC_COVERAGE"
	KeyACCoverage  RatingKey = "AC_COVERAGE"
	KeyNNWCoverage RatingKey = "NNW_COVERAGE"
)

var coverageKeys = map[InsuranceType]RatingKey{
	TypeOC:  KeyOCCoverage,
	TypeAC:  KeyACCoverage,
	TypeNNW: KeyNNWCoverage,
}

// =============================================================================
// INPUT ATTRIBUTES
// =============================================================================

// VehicleAttributes are the rating-relevant vehicle facts, supplied by the
// surrounding application as read-only input.
type VehicleAttributes struct {
	ManufactureYear  int
	EngineCapacityCC int
	PowerKW          int
}

// ClientAttributes are the rating-relevant client facts.
type ClientAttributes struct {
	BirthDate Date
}

// =============================================================================
// BUCKETING
// =============================================================================

// VehicleAgeKey buckets the vehicle's age (in calendar years at asOf) into
// a band key. Vehicles "from the future" (manufacture year past asOf)
// count as age 0.
func VehicleAgeKey(asOf Date, manufactureYear int) RatingKey {
	age := asOf.Year() - manufactureYear
	switch {
	case age <= 3:
		return "VEHICLE_AGE_0_3"
	case age <= 10:
		return "VEHICLE_AGE_4_10"
	default:
		return "VEHICLE_AGE_OVER_10"
	}
}

// EngineCapacityKey buckets engine displacement in cc.
func EngineCapacityKey(capacityCC int) RatingKey {
	switch {
	case capacityCC < 1000:
		return "ENGINE_TO_1000"
	case capacityCC < 1400:
		return "ENGINE_1000_1400"
	case capacityCC < 1800:
		return "ENGINE_1400_1800"
	case capacityCC < 2500:
		return "ENGINE_1800_2500"
	default:
		return "ENGINE_OVER_2500"
	}
}

// PowerKey buckets engine power in kW.
func PowerKey(powerKW int) RatingKey {
	switch {
	case powerKW < 50:
		return "POWER_TO_50"
	case powerKW < 100:
		return "POWER_50_100"
	case powerKW < 150:
		return "POWER_100_150"
	default:
		return "POWER_OVER_150"
	}
}

// ClientAgeKey buckets the client's age in full years at asOf. Young
// drivers carry their own band; only AC rates on this dimension.
func ClientAgeKey(asOf Date, birthDate Date) RatingKey {
	age := asOf.YearsSince(birthDate)
	switch {
	case age < 25:
		return "DRIVER_AGE_TO_25"
	case age < 60:
		return "DRIVER_AGE_25_60"
	default:
		return "DRIVER_AGE_OVER_60"
	}
}

// keyFor derives the concrete rating key for one dimension of a product.
func keyFor(dim Dimension, t InsuranceType, asOf Date, vehicle VehicleAttributes, client ClientAttributes) RatingKey {
	switch dim {
	case DimVehicleAge:
		return VehicleAgeKey(asOf, vehicle.ManufactureYear)
	case DimEngineCapacity:
		return EngineCapacityKey(vehicle.EngineCapacityCC)
	case DimPower:
		return PowerKey(vehicle.PowerKW)
	case DimClientAge:
		return ClientAgeKey(asOf, client.BirthDate)
	case DimCoverage:
		return coverageKeys[t]
	default:
		return ""
	}
}

// RequiredKeys derives the full concrete key set a calculation will
// resolve, in the product's declared dimension order.
func RequiredKeys(t InsuranceType, asOf Date, vehicle VehicleAttributes, client ClientAttributes) []RatingKey {
	dims := productDimensions[t]
	keys := make([]RatingKey, 0, len(dims))
	for _, dim := range dims {
		keys = append(keys, keyFor(dim, t, asOf, vehicle, client))
	}
	return keys
}
