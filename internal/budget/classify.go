package budget

import (
	"strings"
)

// Bucket is a 50/30/20 spending class.
type Bucket string

const (
	Needs   Bucket = "needs"
	Wants   Bucket = "wants"
	Savings Bucket = "savings"
)

var needsKeywords = []string{
	"Rent", "Mortgage", "Utilities", "Groceries", "Healthcare",
	"Insurance", "Transportation", "Loan Payment", "Education",
}

var wantsKeywords = []string{
	"Entertainment", "Dining Out", "Shopping", "Travel", "Hobbies",
	"Food Delivery", "Subscriptions", "Fitness", "Personal Care",
}

// ClassifyCategory maps a category name to a bucket by keyword. Unknown
// categories are treated as needs.
func ClassifyCategory(category string) Bucket {
	upper := strings.ToUpper(category)
	for _, k := range needsKeywords {
		if strings.Contains(upper, strings.ToUpper(k)) {
			return Needs
		}
	}
	for _, k := range wantsKeywords {
		if strings.Contains(upper, strings.ToUpper(k)) {
			return Wants
		}
	}
	if strings.Contains(upper, "SAVING") || strings.Contains(upper, "INVESTMENT") {
		return Savings
	}
	return Needs
}
