package features

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"rentradar-backend/pkg/models"
)

// Transformer converts raw listing inputs into the model feature vector.
type Transformer struct{}

func NewTransformer() *Transformer {
	return &Transformer{}
}

var repairCatMapping = map[string]int{
	"без ремонта":   0,
	"косметический": 1,
	"евроремонт":    2,
	"дизайнерский":  3,
}

var parkingCatMapping = map[string]int{
	"наземная":       1,
	"открытая":       1,
	"многоуровневая": 2,
	"подземная":      2,
}

var heatingCatMapping = map[string]int{
	"нет информации":                0,
	"печь":                          1,
	"центральное":                   1,
	"автономная котельная":          2,
	"индивидуальный тепловой пункт": 3,
	"котел/квартирное отопление":    3,
}

var (
	balconyRe = regexp.MustCompile(`(\d+)\s+балк`)
	loggiaRe  = regexp.MustCompile(`(\d+)\s+лодж`)
	digitsRe  = regexp.MustCompile(`[^\d]`)
)

// Transform builds the feature vector for a single listing.
func (t *Transformer) Transform(item models.RawListingInput) (*FeatureVector, error) {
	f := item.Features

	factsSet := make(map[string]struct{}, len(item.Facts))
	for _, fact := range item.Facts {
		factsSet[strings.ToLower(fact)] = struct{}{}
	}

	if f.TotalArea <= 0 {
		return nil, fmt.Errorf("listing %q: total_area must be positive", item.Title)
	}

	v := &FeatureVector{
		MetroNearestTime:    f.MetroNearestTime,
		TotalArea:           f.TotalArea,
		Floor:               relativeFloor(f.FloorNumber, f.TotalFloorsCnt),
		Comission:           f.Comission,
		PrepaymentMonthsCnt: f.PrepaymentMonthsCnt,
		RentTermMonthsCnt:   f.RentTermMonthsCnt,

		CombinedBathroomsCnt:  f.CombinedBathroomsCnt,
		SeparateBathroomsCnt:  f.SeparateBathroomsCnt,
		FreightElevatorsCnt:   f.FreightElevatorsCnt,
		PassengerElevatorsCnt: f.PassengerElevatorsCnt,
		EntrancesCnt:          f.EntrancesCnt,

		RepairCat:  repairCatMapping[strings.ToLower(f.RepairCat)],
		ParkingCat: parkingCatMapping[strings.ToLower(f.ParkingCat)],
		HeatingCat: heatingCatMapping[strings.ToLower(f.HeatingCat)],

		IndividualProject: individualProjectFlag(f.ConstructionSeries),
		EraCat:            eraCat(f.BuildYear),
	}

	parseUtilities(f.HcsPrice, v)
	parseBalconyLoggia(f.BalconyLoggiaCnt, v)
	entranceFlags(f.EntranceInfo, v)
	houseTypeFlags(f.HouseTypeCat, v)
	districtFlags(item.Address, v)
	factFlags(factsSet, v)

	return v, nil
}

// relativeFloor maps a floor position into [0, 1]; 0 when the total is unknown.
func relativeFloor(floorNumber, totalFloors int) float64 {
	if totalFloors > 0 {
		return float64(floorNumber) / float64(totalFloors)
	}
	return 0.0
}

func parseUtilities(hcsPrice string, v *FeatureVector) {
	if hcsPrice == "" {
		return
	}

	lower := strings.ToLower(hcsPrice)
	if clean := digitsRe.ReplaceAllString(hcsPrice, ""); clean != "" {
		if n, err := strconv.Atoi(clean); err == nil {
			v.UtilityFixedBill = n
		}
	}

	if strings.Contains(lower, "не включена") {
		v.UtilityUsageBillFlag = 1
		v.UtilityCountersExtraFlag = 1
	}
	if strings.Contains(lower, "без счётчиков") {
		v.UtilityCountersExtraFlag = 1
	}
}

func parseBalconyLoggia(s string, v *FeatureVector) {
	if s == "" {
		return
	}
	lower := strings.ToLower(s)

	if m := balconyRe.FindStringSubmatch(lower); m != nil {
		v.BalconyCnt, _ = strconv.Atoi(m[1])
	}
	if m := loggiaRe.FindStringSubmatch(lower); m != nil {
		v.LoggiaCnt, _ = strconv.Atoi(m[1])
	}
}

func entranceFlags(entranceInfo string, v *FeatureVector) {
	if entranceInfo == "" {
		return
	}
	lower := strings.ToLower(entranceInfo)
	if strings.Contains(lower, "мусоропровод") {
		v.HasGarbageChute = 1
	}
	if strings.Contains(lower, "консьерж") {
		v.HasConcierge = 1
	}
}

func individualProjectFlag(series string) int {
	if strings.Contains(strings.ToLower(series), "индивидуальный проект") {
		return 1
	}
	return 0
}

// eraCat buckets build years into construction eras: pre-revolution, soviet,
// early post-soviet and modern. Unknown years map to 0.
func eraCat(year int) int {
	switch {
	case year == 0:
		return 0
	case year <= 1917:
		return 1
	case year <= 1991:
		return 2
	case year <= 2013:
		return 3
	default:
		return 4
	}
}

func houseTypeFlags(houseType string, v *FeatureVector) {
	ht := strings.ToLower(houseType)
	monolithic := strings.Contains(ht, "монолит")
	brick := strings.Contains(ht, "кирпич")

	if monolithic && !brick {
		v.HouseTypeMonolithic = 1
	}
	if monolithic && brick {
		v.HouseTypeMonolithicBrick = 1
	}
	if strings.Contains(ht, "панель") {
		v.HouseTypePanel = 1
	}
}

// Baseline districts are encoded as all-zeros; everything else that is not one
// of the seven tracked districts raises the "other" flag.
var baselineDistricts = []string{"центральный", "петроградский", "адмиралтейский", "василеостровский"}

func districtFlags(address string, v *FeatureVector) {
	addr := strings.ToLower(address)

	known := 0
	set := func(flag *int, name string) {
		if strings.Contains(addr, name) {
			*flag = 1
			known++
		}
	}
	set(&v.DistrictKrasnogvardeysky, "красногвардейский")
	set(&v.DistrictKrasnoselsky, "красносельский")
	set(&v.DistrictMoskovsky, "московский")
	set(&v.DistrictNevsky, "невский")
	set(&v.DistrictPrimorsky, "приморский")
	set(&v.DistrictVyborgsky, "выборгский")

	if known == 0 {
		for _, d := range baselineDistricts {
			if strings.Contains(addr, d) {
				return
			}
		}
		v.DistrictOther = 1
	}
}

// factFlags accepts both collector-internal keys and the Russian labels that
// appear on the offer pages themselves.
func factFlags(factsSet map[string]struct{}, v *FeatureVector) {
	has := func(keys ...string) int {
		for _, k := range keys {
			if _, ok := factsSet[k]; ok {
				return 1
			}
		}
		return 0
	}

	v.HasBath = has("bathtub", "ванна")
	v.HasShower = has("shower_cabin", "душевая кабина")
	v.HasInternet = has("internet", "интернет")
	v.HasAC = has("ac", "кондиционер")
	v.HasRoomFurniture = has("room_furniture", "мебель в комнатах")
	v.HasKitchenFurniture = has("kitchen_furniture", "мебель на кухне")
	v.HasDishwasher = has("dishwasher", "посудомоечная машина")
	v.HasWasher = has("washing_machine", "стиральная машина")
	v.HasTV = has("tv", "телевизор")
	v.HasFridge = has("refrigerator", "холодильник")
}
