package grocery

import "strings"

// Fallback is the category used when nothing matches.
const Fallback = "Other"

// Categorize returns the food group for an item name that arrived without a
// category label. Matching is case-insensitive: exact name first, then the
// first keyword contained in the name.
func Categorize(itemName string) string {
	name := strings.ToLower(strings.TrimSpace(itemName))
	if name == "" {
		return Fallback
	}

	if cat, ok := exactMatch[name]; ok {
		return cat
	}

	for _, entry := range keywords {
		if strings.Contains(name, entry.keyword) {
			return entry.category
		}
	}

	return Fallback
}

var exactMatch = map[string]string{
	"apple":    "Produce",
	"apples":   "Produce",
	"banana":   "Produce",
	"bananas":  "Produce",
	"berries":  "Produce",
	"spinach":  "Produce",
	"kale":     "Produce",
	"broccoli": "Produce",
	"carrots":  "Produce",
	"avocado":  "Produce",
	"eggs":     "Protein",
	"tofu":     "Protein",
	"tempeh":   "Protein",
	"lentils":  "Protein",
	"milk":     "Dairy",
	"kefir":    "Dairy",
	"yogurt":   "Dairy",
	"cheese":   "Dairy",
	"oats":     "Grains",
	"rice":     "Grains",
	"quinoa":   "Grains",
	"bread":    "Grains",
	"honey":    "Pantry",
	"coffee":   "Beverages",
	"tea":      "Beverages",
	"water":    "Beverages",
}

// keywords are ordered more specific first.
var keywords = []struct {
	keyword  string
	category string
}{
	{"frozen", "Frozen"},
	{"ice cream", "Frozen"},
	{"protein powder", "Supplements"},
	{"whey", "Supplements"},
	{"vitamin", "Supplements"},
	{"creatine", "Supplements"},
	{"peanut butter", "Pantry"},
	{"almond butter", "Pantry"},
	{"olive oil", "Pantry"},
	{"greek yogurt", "Dairy"},
	{"cottage cheese", "Dairy"},
	{"almond milk", "Dairy"},
	{"oat milk", "Dairy"},
	{"chicken", "Protein"},
	{"turkey", "Protein"},
	{"beef", "Protein"},
	{"salmon", "Protein"},
	{"tuna", "Protein"},
	{"shrimp", "Protein"},
	{"egg", "Protein"},
	{"beans", "Protein"},
	{"chickpea", "Protein"},
	{"yogurt", "Dairy"},
	{"cheese", "Dairy"},
	{"milk", "Dairy"},
	{"butter", "Dairy"},
	{"oat", "Grains"},
	{"rice", "Grains"},
	{"pasta", "Grains"},
	{"bread", "Grains"},
	{"tortilla", "Grains"},
	{"cereal", "Grains"},
	{"nuts", "Snacks"},
	{"almonds", "Snacks"},
	{"bar", "Snacks"},
	{"chips", "Snacks"},
	{"dark chocolate", "Snacks"},
	{"juice", "Beverages"},
	{"sparkling", "Beverages"},
	{"kombucha", "Beverages"},
	{"spice", "Pantry"},
	{"sauce", "Pantry"},
	{"vinegar", "Pantry"},
	{"oil", "Pantry"},
	{"flour", "Pantry"},
	{"lettuce", "Produce"},
	{"tomato", "Produce"},
	{"pepper", "Produce"},
	{"onion", "Produce"},
	{"garlic", "Produce"},
	{"potato", "Produce"},
	{"berry", "Produce"},
	{"fruit", "Produce"},
	{"greens", "Produce"},
}
