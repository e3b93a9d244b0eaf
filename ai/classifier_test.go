package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyProductBrandedPhone(t *testing.T) {
	result := classifyProduct([]string{"iPhone 15", "Phone"}, "Apple iPhone 15 Pro")

	assert.Equal(t, "electronics", result.Category)
	assert.Equal(t, "Apple iphone 15", result.ProductName)
	// 50 base + 25 brand + 10 feature matches.
	assert.Equal(t, 85, result.Confidence)
}

func TestClassifyProductFastFood(t *testing.T) {
	result := classifyProduct([]string{"Burger", "Food"}, "McDonald's Big Mac")

	assert.Equal(t, "food", result.Category)
	assert.Equal(t, "Big Mac Burger", result.ProductName)
	assert.Equal(t, 85, result.Confidence)
}

func TestClassifyProductDescriptiveName(t *testing.T) {
	result := classifyProduct([]string{"Dress", "Gown", "Clothing", "Style"}, "red premium fashion")

	assert.Equal(t, "fashion", result.Category)
	assert.Equal(t, "red premium Dress", result.ProductName)
	assert.Equal(t, 79, result.Confidence)
}

func TestClassifyProductFeatureFallback(t *testing.T) {
	result := classifyProduct([]string{"Widget"}, "")

	assert.Equal(t, "general", result.Category)
	assert.Equal(t, "Widget", result.ProductName)
	assert.Equal(t, 65, result.Confidence)
}

func TestClassifyProductNothingDetected(t *testing.T) {
	result := classifyProduct(nil, "")

	assert.Equal(t, "unknown", result.Category)
	assert.Equal(t, "Unknown Product", result.ProductName)
	assert.Equal(t, 30, result.Confidence)
}

func TestClassifierConfidenceCap(t *testing.T) {
	// Brand + many matched features + dense keywords must still cap at 95.
	items := []string{"phone", "smartphone", "device", "gadget", "technology"}
	combined := "apple phone smartphone device gadget technology digital smart electronic"
	assert.Equal(t, 95, calculateClassifierConfidence(combined, items, "electronics"))
}

func TestGenerateTargetAudience(t *testing.T) {
	phone := generateTargetAudience("electronics", "Smartphone")
	assert.Contains(t, phone, "18-45歲數位用戶")

	generic := generateTargetAudience("other", "Mystery Item")
	assert.Contains(t, generic, "25-55歲主流消費者")
}

func TestGenerateAdKeywordsSeedsDetectedItems(t *testing.T) {
	keywords := generateAdKeywords("food", "Big Mac Burger", []string{"Burger", "Food", "Fries"})

	// At most two detected items lead, category keywords follow.
	assert.Equal(t, []string{"Burger", "Food", "fast food", "quick meals", "convenience food", "casual dining"}, keywords)
}

func TestGenerateAdKeywordsWithoutDetections(t *testing.T) {
	keywords := generateAdKeywords("jewelry", "Gold Ring", nil)
	assert.Equal(t, []string{"jewelry", "accessories", "luxury", "gifts"}, keywords)
}
