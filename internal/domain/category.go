package domain

// CategoryOther is the fallback category for rows the labeling
// collaborator cannot place.
const CategoryOther = "other"

// Categories is the fixed expense vocabulary. Labels outside this set are
// rewritten to CategoryOther before storage.
var Categories = []string{
	"insurance",
	"subscription",
	"convenience_store",
	"online_shopping",
	"transport",
	"food_drink",
	"supermarket",
	"telecom",
	"travel",
	"auto_service",
	"health",
	"shopping",
	CategoryOther,
}

// Subcategories maps each category to its allowed subcategory set.
// Categories absent from the map take no subcategory.
var Subcategories = map[string][]string{
	"food_drink":        {"restaurant", "cafe", "food_delivery", "snacks"},
	"online_shopping":   {"shopee", "lazada", "amazon", "other"},
	"transport":         {"tollway", "taxi", "rail", "fuel"},
	"travel":            {"hotel", "flight", "tour", "attraction", "car_rental"},
	"subscription":      {"streaming", "music", "games", "cloud_software"},
	"convenience_store": {"cj", "seven_eleven", "family_mart", "lotus_go", "other"},
	"supermarket":       {"lotus", "big_c", "tops", "villa_market", "makro"},
	"telecom":           {"ais", "true", "dtac", "nt", "fiber"},
	"insurance":         {"auto", "health", "life", "property"},
	"auto_service":      {"tires_brakes", "fuel", "battery", "maintenance", "car_wash"},
	"health":            {"hospital", "clinic", "pharmacy", "dental", "checkup"},
	"shopping":          {"sports", "clothing", "home", "department_store", "electronics"},
}

// ValidCategory reports whether c is in the fixed category set.
func ValidCategory(c string) bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// NormalizeLabel coerces a collaborator-supplied label into the fixed
// vocabulary: unknown categories become CategoryOther, and a subcategory
// survives only when it belongs to its category's set.
func NormalizeLabel(category, subcategory string) (string, string) {
	if !ValidCategory(category) {
		return CategoryOther, ""
	}
	for _, s := range Subcategories[category] {
		if s == subcategory {
			return category, subcategory
		}
	}
	return category, ""
}
