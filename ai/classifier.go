package ai

import (
	"regexp"
	"strings"
)

// classification is the rule-based result used to backfill any attribute
// the LLM vision call left empty. Fully deterministic, no external calls.
type classification struct {
	Category    string
	ProductName string
	Confidence  int // 0-100 scale, capped at 95
}

// Primary category patterns, checked in order. First match wins.
var primaryCategoryPatterns = []struct {
	category string
	pattern  *regexp.Regexp
}{
	{"electronics", regexp.MustCompile(`phone|smartphone|iphone|android|mobile|tablet|laptop|computer|tv|camera|headphone|speaker|watch|smartwatch`)},
	{"fashion", regexp.MustCompile(`shirt|dress|pants|jeans|shoe|boot|sneaker|jacket|coat|hat|bag|purse|clothing|apparel|fashion|wear`)},
	{"food", regexp.MustCompile(`food|meal|burger|pizza|sandwich|drink|beverage|snack|restaurant|kitchen|cooking|eat|dish`)},
	{"health", regexp.MustCompile(`supplement|vitamin|medicine|health|beauty|cosmetic|skincare|makeup|cream|lotion|shampoo`)},
	{"home", regexp.MustCompile(`furniture|chair|table|bed|sofa|lamp|decoration|plant|garden|home|house|room`)},
	{"sports", regexp.MustCompile(`sport|fitness|gym|exercise|ball|equipment|outdoor|bike|run|swim|yoga`)},
	{"automotive", regexp.MustCompile(`car|auto|vehicle|tire|engine|part|motor|drive|wheel|brake`)},
	{"books", regexp.MustCompile(`book|read|education|learn|study|school|university|knowledge|text`)},
	{"toys", regexp.MustCompile(`toy|game|play|child|kid|puzzle|doll|action|figure|board|card`)},
	{"jewelry", regexp.MustCompile(`jewelry|ring|necklace|bracelet|watch|accessory|gold|silver|diamond|precious`)},
}

var (
	brandPattern     = regexp.MustCompile(`apple|samsung|nike|adidas|mcdonald|coca.*cola|pepsi|sony|lg|hp|dell`)
	iphonePattern    = regexp.MustCompile(`iphone.*(\d+)`)
	galaxyPattern    = regexp.MustCompile(`samsung.*galaxy`)
	shoeBrandPattern = regexp.MustCompile(`(nike|adidas|puma|reebok)`)
	colorPattern     = regexp.MustCompile(`(red|blue|green|black|white|yellow|pink|purple|orange|gray|brown)`)
	sizePattern      = regexp.MustCompile(`(small|medium|large|big|huge|tiny|mini|xl|xxl)`)
	qualityPattern   = regexp.MustCompile(`(premium|luxury|professional|pro|deluxe|classic|modern|vintage)`)
)

var productTypeBySubcategory = map[string]string{
	"mobile_phones":       "Smartphone",
	"computers":           "Computer",
	"displays":            "Display",
	"cameras":             "Camera",
	"audio":               "Audio Device",
	"tops":                "Top",
	"bottoms":             "Pants",
	"dresses":             "Dress",
	"footwear":            "Shoes",
	"outerwear":           "Jacket",
	"fast_food":           "Fast Food",
	"pizza":               "Pizza",
	"beverages":           "Beverage",
	"snacks":              "Snack",
	"general_electronics": "Electronic Product",
	"general_fashion":     "Fashion Item",
	"general_food":        "Food Product",
	"general":             "Product",
}

var categoryKeywords = map[string][]string{
	"electronics": {"technology", "digital", "smart", "electronic", "device", "gadget"},
	"fashion":     {"style", "wear", "clothing", "apparel", "fashion", "outfit"},
	"food":        {"eat", "taste", "delicious", "fresh", "organic", "natural"},
	"health":      {"wellness", "healthy", "natural", "supplement", "care", "medical"},
	"home":        {"home", "house", "indoor", "decoration", "furniture", "living"},
	"sports":      {"fitness", "active", "sport", "exercise", "outdoor", "athletic"},
	"automotive":  {"car", "vehicle", "auto", "drive", "motor", "transport"},
	"books":       {"read", "learn", "education", "knowledge", "study", "literature"},
	"toys":        {"play", "fun", "game", "entertainment", "child", "kids"},
	"jewelry":     {"luxury", "elegant", "precious", "beautiful", "jewelry", "accessory"},
}

// classifyProduct resolves category/name/confidence from annotation output.
// The high-confidence hierarchical pass runs first; below 70 it degrades to
// a feature-based guess from the most prominent detected object.
func classifyProduct(detectedItems []string, textContent string) classification {
	items := strings.ToLower(strings.Join(detectedItems, " "))
	text := strings.ToLower(textContent)
	combined := items + " " + text

	result := hierarchicalClassification(combined, detectedItems)
	if result.Confidence > 70 {
		return result
	}

	return featureBasedClassification(combined, detectedItems)
}

// hierarchicalClassification resolves three levels: primary category,
// sub-category, then a specific product name.
func hierarchicalClassification(combined string, detectedItems []string) classification {
	primary := getPrimaryCategory(combined)
	sub := getSubCategory(combined, primary)
	name := getSpecificProduct(combined, sub)

	return classification{
		Category:    primary,
		ProductName: name,
		Confidence:  calculateClassifierConfidence(combined, detectedItems, primary),
	}
}

func getPrimaryCategory(combined string) string {
	for _, entry := range primaryCategoryPatterns {
		if entry.pattern.MatchString(combined) {
			return entry.category
		}
	}
	return "unknown"
}

func getSubCategory(combined, primary string) string {
	contains := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(combined, w) {
				return true
			}
		}
		return false
	}

	switch primary {
	case "electronics":
		switch {
		case contains("phone", "smartphone", "iphone", "android", "mobile"):
			return "mobile_phones"
		case contains("laptop", "computer", "desktop", "pc"):
			return "computers"
		case contains("tv", "television", "monitor", "display"):
			return "displays"
		case contains("camera", "photo", "video"):
			return "cameras"
		case contains("headphone", "speaker", "audio", "music"):
			return "audio"
		}
		return "general_electronics"
	case "fashion":
		switch {
		case contains("shirt", "t-shirt", "blouse", "top"):
			return "tops"
		case contains("pants", "jeans", "trousers", "shorts"):
			return "bottoms"
		case contains("dress", "gown", "skirt"):
			return "dresses"
		case contains("shoe", "boot", "sneaker", "sandal"):
			return "footwear"
		case contains("jacket", "coat", "sweater", "hoodie"):
			return "outerwear"
		}
		return "general_fashion"
	case "food":
		switch {
		case contains("burger", "sandwich", "fast food", "mcdonald", "kfc", "burger king"):
			return "fast_food"
		case contains("pizza", "italian"):
			return "pizza"
		case contains("drink", "beverage", "coffee", "tea", "juice", "soda"):
			return "beverages"
		case contains("snack", "chip", "cookie", "candy"):
			return "snacks"
		}
		return "general_food"
	}
	return "general"
}

// getSpecificProduct resolves brand/model matches first, then builds a
// descriptive name from adjectives and the sub-category noun.
func getSpecificProduct(combined, sub string) string {
	if strings.Contains(combined, "big mac") || strings.Contains(combined, "mcdonald") {
		return "Big Mac Burger"
	}
	if m := iphonePattern.FindString(combined); m != "" {
		return "Apple " + m
	}
	if galaxyPattern.MatchString(combined) {
		return "Samsung Galaxy Phone"
	}
	if brand := shoeBrandPattern.FindString(combined); brand != "" {
		return brand + " " + sub
	}

	adjectives := extractAdjectives(combined)
	productType := productTypeBySubcategory[sub]
	if productType == "" {
		productType = "Product"
	}
	if len(adjectives) > 0 {
		return strings.Join(adjectives, " ") + " " + productType
	}
	return productType
}

func extractAdjectives(combined string) []string {
	var adjectives []string
	if color := colorPattern.FindString(combined); color != "" {
		adjectives = append(adjectives, color)
	}
	if size := sizePattern.FindString(combined); size != "" {
		adjectives = append(adjectives, size)
	}
	if quality := qualityPattern.FindString(combined); quality != "" {
		adjectives = append(adjectives, quality)
	}
	return adjectives
}

// calculateClassifierConfidence: base 50, +25 for a recognized brand, up to
// +20 for matched detected features, up to +15 for category keyword density,
// capped at 95.
func calculateClassifierConfidence(combined string, detectedItems []string, category string) int {
	confidence := 50

	if brandPattern.MatchString(combined) {
		confidence += 25
	}

	featureMatches := 0
	for _, item := range detectedItems {
		if strings.Contains(combined, strings.ToLower(item)) {
			featureMatches++
		}
	}
	confidence += min(featureMatches*5, 20)

	keywordMatches := 0
	for _, keyword := range categoryKeywords[category] {
		if strings.Contains(combined, keyword) {
			keywordMatches++
		}
	}
	confidence += min(keywordMatches*3, 15)

	return min(confidence, 95)
}

// featureBasedClassification uses the most prominent detected object as the
// product name. Confidence shrinks with noisier detections.
func featureBasedClassification(combined string, detectedItems []string) classification {
	if len(detectedItems) > 0 {
		category := getPrimaryCategory(combined)
		if category == "unknown" {
			category = "general"
		}
		return classification{
			Category:    category,
			ProductName: detectedItems[0],
			Confidence:  max(40, 70-len(detectedItems)*5),
		}
	}

	return classification{
		Category:    "unknown",
		ProductName: "Unknown Product",
		Confidence:  30,
	}
}

// generateTargetAudience returns demographic descriptors for the resolved
// category and product name. Audience copy is Traditional Chinese to match
// the ad-platform market the product serves.
func generateTargetAudience(category, productName string) []string {
	name := strings.ToLower(productName)
	has := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(name, w) {
				return true
			}
		}
		return false
	}

	switch category {
	case "electronics":
		switch {
		case has("phone", "smartphone"):
			return []string{"18-45歲數位用戶", "科技愛好者", "商務人士", "學生群體"}
		case has("laptop", "computer"):
			return []string{"22-50歲專業人士", "學生群體", "創作者", "IT工作者"}
		case has("camera"):
			return []string{"25-55歲攝影愛好者", "創作者", "旅行愛好者", "專業攝影師"}
		}
		return []string{"18-65歲科技消費者", "早期科技採用者", "數位原住民"}
	case "fashion":
		switch {
		case has("sneaker", "shoe"):
			return []string{"16-40歲時尚青年", "運動愛好者", "街頭文化愛好者"}
		case has("dress", "gown"):
			return []string{"20-50歲職業女性", "社交活躍人群", "時尚意識女性"}
		case has("nike", "adidas"):
			return []string{"16-45歲運動時尚愛好者", "健身人群", "品牌追隨者"}
		}
		return []string{"18-45歲時尚消費者", "購物愛好者", "品質追求者"}
	case "food":
		switch {
		case has("burger", "fast food"):
			return []string{"16-35歲年輕群體", "忙碌上班族", "學生群體", "便利消費者"}
		case has("pizza"):
			return []string{"18-45歲社交人群", "家庭聚餐者", "夜間消費者"}
		case has("coffee", "beverage"):
			return []string{"25-50歲職場人士", "咖啡愛好者", "社交人群"}
		}
		return []string{"20-60歲美食愛好者", "家庭主力消費者", "生活品質追求者"}
	case "health":
		switch {
		case has("supplement", "vitamin"):
			return []string{"30-65歲健康意識人群", "運動愛好者", "中高收入群體"}
		case has("fitness", "gym"):
			return []string{"20-50歲健身愛好者", "運動員", "健康生活追求者"}
		}
		return []string{"25-70歲健康關注者", "保健品使用者", "醫療需求者"}
	case "beauty":
		switch {
		case has("skincare", "cream"):
			return []string{"18-60歲護膚關注者", "美容愛好者", "品質追求女性"}
		case has("makeup", "cosmetic"):
			return []string{"16-50歲化妝愛好者", "時尚女性", "專業化妝師"}
		}
		return []string{"18-55歲美容消費者", "自我護理關注者", "品牌忠誠者"}
	case "home":
		switch {
		case has("furniture"):
			return []string{"25-60歲家居裝修者", "新婚夫婦", "搬家人群", "生活品質追求者"}
		case has("decoration", "lamp"):
			return []string{"25-55歲居家美學愛好者", "室內設計愛好者", "品味追求者"}
		}
		return []string{"25-65歲家庭主力消費者", "居家生活愛好者", "品質生活追求者"}
	case "sports":
		switch {
		case has("fitness", "gym"):
			return []string{"18-50歲健身愛好者", "運動員", "健康生活追求者"}
		case has("outdoor", "bike"):
			return []string{"20-60歲戶外愛好者", "冒險者", "運動愛好者"}
		}
		return []string{"16-65歲運動參與者", "健康意識人群", "活躍生活方式者"}
	case "automotive":
		if has("car", "vehicle") {
			return []string{"25-65歲車主", "汽車愛好者", "通勤族", "家庭用車需求者"}
		}
		return []string{"20-70歲駕駛者", "汽車維護需求者", "交通工具使用者"}
	case "books":
		return []string{"16-70歲知識追求者", "學生群體", "專業人士", "終身學習者"}
	case "toys":
		return []string{"25-45歲父母群體", "禮品購買者", "兒童娛樂關注者"}
	case "jewelry":
		return []string{"25-65歲精品消費者", "禮品購買者", "特殊場合需求者", "收藏愛好者"}
	}
	return []string{"25-55歲主流消費者", "網購人群", "品質追求者", "便利購物者"}
}

// generateAdKeywords returns ad-platform-compatible English keywords for the
// resolved category and product name, seeded with up to two detected items.
func generateAdKeywords(category, productName string, detectedItems []string) []string {
	name := strings.ToLower(productName)
	base := make([]string, 0, 6)
	base = append(base, detectedItems[:min(len(detectedItems), 2)]...)
	has := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(name, w) {
				return true
			}
		}
		return false
	}

	switch category {
	case "electronics":
		switch {
		case has("phone", "smartphone"):
			return append(base, "mobile technology", "smartphones", "communication", "digital lifestyle")
		case has("laptop", "computer"):
			return append(base, "computers", "productivity", "work technology", "digital tools")
		case has("camera"):
			return append(base, "photography", "cameras", "digital imaging", "creative tools")
		}
		return append(base, "technology", "electronics", "gadgets", "innovation")
	case "fashion":
		switch {
		case has("sneaker", "shoe"):
			return append(base, "footwear", "sneakers", "street fashion", "athletic wear")
		case has("nike", "adidas"):
			return append(base, "sportswear", "athletic brands", "fitness fashion", "active lifestyle")
		case has("dress"):
			return append(base, "women fashion", "formal wear", "business attire", "special occasions")
		}
		return append(base, "fashion", "clothing", "style", "apparel")
	case "food":
		switch {
		case has("burger", "fast food"):
			return append(base, "fast food", "quick meals", "convenience food", "casual dining")
		case has("pizza"):
			return append(base, "pizza", "italian food", "delivery food", "social dining")
		case has("coffee", "beverage"):
			return append(base, "coffee", "beverages", "cafe culture", "morning routine")
		}
		return append(base, "food", "dining", "culinary", "gourmet")
	case "health":
		switch {
		case has("supplement", "vitamin"):
			return append(base, "health supplements", "wellness", "nutrition", "vitamins")
		case has("fitness"):
			return append(base, "fitness", "exercise", "health", "wellness")
		}
		return append(base, "health", "wellness", "medical", "healthcare")
	case "beauty":
		switch {
		case has("skincare"):
			return append(base, "skincare", "beauty", "cosmetics", "anti-aging")
		case has("makeup"):
			return append(base, "makeup", "cosmetics", "beauty products", "personal care")
		}
		return append(base, "beauty", "cosmetics", "personal care", "self care")
	case "home":
		if has("furniture") {
			return append(base, "home furniture", "interior design", "home decor", "living space")
		}
		return append(base, "home", "household", "interior", "home improvement")
	case "sports":
		if has("fitness") {
			return append(base, "fitness equipment", "exercise", "gym", "health")
		}
		return append(base, "sports", "athletics", "fitness", "outdoor activities")
	case "automotive":
		return append(base, "automotive", "cars", "vehicles", "transportation")
	case "books":
		return append(base, "books", "education", "reading", "knowledge")
	case "toys":
		return append(base, "toys", "children", "games", "entertainment")
	case "jewelry":
		return append(base, "jewelry", "accessories", "luxury", "gifts")
	}
	return append(base, "products", "shopping", "retail", "consumer goods")
}
