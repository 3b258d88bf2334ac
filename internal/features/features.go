package features

// FeatureVector is the strictly ordered feature set the price regression
// model expects. The order of Values and FeatureNames is the model contract;
// any reorder produces wrong predictions.
type FeatureVector struct {
	MetroNearestTime int
	TotalArea        float64
	Floor            float64

	HasBath             int
	HasShower           int
	HasInternet         int
	HasAC               int
	HasRoomFurniture    int
	HasKitchenFurniture int
	HasDishwasher       int
	HasWasher           int
	HasTV               int
	HasFridge           int

	UtilityFixedBill         int
	UtilityUsageBillFlag     int
	UtilityCountersExtraFlag int

	Comission           float64
	PrepaymentMonthsCnt int
	RentTermMonthsCnt   int

	CombinedBathroomsCnt int
	SeparateBathroomsCnt int
	RepairCat            int
	FreightElevatorsCnt  int
	PassengerElevatorsCnt int
	ParkingCat           int
	HeatingCat           int

	BalconyCnt int
	LoggiaCnt  int

	HasGarbageChute int
	HasConcierge    int
	EntrancesCnt    int

	IndividualProject int
	EraCat            int

	HouseTypeMonolithic      int
	HouseTypeMonolithicBrick int
	HouseTypePanel           int

	DistrictKrasnogvardeysky int
	DistrictKrasnoselsky     int
	DistrictMoskovsky        int
	DistrictNevsky           int
	DistrictOther            int
	DistrictPrimorsky        int
	DistrictVyborgsky        int
}

var featureNames = []string{
	"metro_nearest_time",
	"total_area",
	"floor",
	"has_bath_flg",
	"has_shower_flg",
	"has_internet_flg",
	"has_ac_flg",
	"has_room_furniture_flg",
	"has_kitchen_furniture_flg",
	"has_dishwasher_flg",
	"has_washer_flg",
	"has_tv_flg",
	"has_fridge_flg",
	"utility_fixed_bill",
	"utility_usage_bill_flg",
	"utility_counters_extra_flg",
	"comission",
	"prepayment_months_cnt",
	"rent_term_months_cnt",
	"combined_bathrooms_cnt",
	"separate_bathrooms_cnt",
	"repair_cat",
	"freight_elevators_cnt",
	"passenger_elevators_cnt",
	"parking_cat",
	"heating_cat",
	"balcony_cnt",
	"loggia_cnt",
	"has_garbage_chute_flg",
	"has_concierge_flg",
	"entrances_cnt",
	"individual_project_flg",
	"era_cat",
	"house_type_monolithic_flg",
	"house_type_monolithic_brick_flg",
	"house_type_panel_flg",
	"district_krasnogvardeysky_flg",
	"district_krasnoselsky_flg",
	"district_moskovsky_flg",
	"district_nevsky_flg",
	"district_other_flg",
	"district_primorsky_flg",
	"district_vyborgsky_flg",
}

// FeatureNames returns the model feature names in vector order.
func FeatureNames() []string {
	names := make([]string, len(featureNames))
	copy(names, featureNames)
	return names
}

// NumFeatures is the width of the model input vector.
func NumFeatures() int {
	return len(featureNames)
}

// Values returns the feature values in the order matching FeatureNames.
func (v *FeatureVector) Values() []float32 {
	return []float32{
		float32(v.MetroNearestTime),
		float32(v.TotalArea),
		float32(v.Floor),
		float32(v.HasBath),
		float32(v.HasShower),
		float32(v.HasInternet),
		float32(v.HasAC),
		float32(v.HasRoomFurniture),
		float32(v.HasKitchenFurniture),
		float32(v.HasDishwasher),
		float32(v.HasWasher),
		float32(v.HasTV),
		float32(v.HasFridge),
		float32(v.UtilityFixedBill),
		float32(v.UtilityUsageBillFlag),
		float32(v.UtilityCountersExtraFlag),
		float32(v.Comission),
		float32(v.PrepaymentMonthsCnt),
		float32(v.RentTermMonthsCnt),
		float32(v.CombinedBathroomsCnt),
		float32(v.SeparateBathroomsCnt),
		float32(v.RepairCat),
		float32(v.FreightElevatorsCnt),
		float32(v.PassengerElevatorsCnt),
		float32(v.ParkingCat),
		float32(v.HeatingCat),
		float32(v.BalconyCnt),
		float32(v.LoggiaCnt),
		float32(v.HasGarbageChute),
		float32(v.HasConcierge),
		float32(v.EntrancesCnt),
		float32(v.IndividualProject),
		float32(v.EraCat),
		float32(v.HouseTypeMonolithic),
		float32(v.HouseTypeMonolithicBrick),
		float32(v.HouseTypePanel),
		float32(v.DistrictKrasnogvardeysky),
		float32(v.DistrictKrasnoselsky),
		float32(v.DistrictMoskovsky),
		float32(v.DistrictNevsky),
		float32(v.DistrictOther),
		float32(v.DistrictPrimorsky),
		float32(v.DistrictVyborgsky),
	}
}
