package scanner

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// The upstream model contract is loose: sometimes a JSON array, sometimes a
// single object wrapped in prose, sometimes plain text. ParseResponse tries
// each shape in order and is guaranteed to return a (possibly empty) slice,
// never to panic. The scheduler loop depends on that guarantee.

const (
	defaultConfidence   = 0.6
	heuristicConfidence = 0.3
	maxHeuristicName    = 50
)

var categoryVocabulary = []string{
	"Electronics",
	"Furniture",
	"Clothing",
	"Shoes",
	"Books",
	"Toys",
	"Kitchen",
	"Appliances",
	"Sports",
	"Tools",
	"Jewelry",
	"Art",
	"Music",
	"Garden",
	"Collectibles",
}

var priceHintPattern = regexp.MustCompile(`[$€£]\s?\d+(?:[.,]\d{1,2})?(?:\s?-\s?[$€£]?\s?\d+(?:[.,]\d{1,2})?)?`)

type parseStrategy func(text string) ([]DetectedItem, bool)

func ParseResponse(text string) []DetectedItem {
	text = strings.TrimSpace(text)
	if text == "" {
		return []DetectedItem{}
	}

	strategies := []parseStrategy{
		parseJSONArray,
		parseJSONObject,
		parseHeuristic,
	}
	for _, strategy := range strategies {
		if items, ok := strategy(text); ok {
			return items
		}
	}
	return []DetectedItem{}
}

func parseJSONArray(text string) ([]DetectedItem, bool) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil, false
	}

	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, false
	}

	items := make([]DetectedItem, 0, len(raw))
	for _, elem := range raw {
		var fields map[string]any
		if err := json.Unmarshal(elem, &fields); err != nil {
			continue
		}
		items = append(items, itemFromFields(fields))
	}
	return items, true
}

func parseJSONObject(text string) ([]DetectedItem, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, false
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &fields); err != nil {
		return nil, false
	}
	return []DetectedItem{itemFromFields(fields)}, true
}

// parseHeuristic is the catch-all for plain prose: it pulls a price-like
// token, matches the category vocabulary and uses the first sentence as a
// name. Confidence stays low to mark the result as a guess, not a
// model-asserted detection.
func parseHeuristic(text string) ([]DetectedItem, bool) {
	item := DetectedItem{
		ID:          uuid.NewString(),
		Name:        firstSentence(text),
		Category:    matchCategory(text),
		PriceHint:   priceHintPattern.FindString(text),
		Confidence:  heuristicConfidence,
		Description: text,
		Box:         placeholderBox(),
	}
	return []DetectedItem{item}, true
}

func itemFromFields(fields map[string]any) DetectedItem {
	name := stringField(fields, "itemName", "name", "item")
	if name == "" {
		name = "Detected Item"
	}

	category := stringField(fields, "category", "type")
	if category == "" {
		category = "Other"
	}

	confidence, ok := floatField(fields, "confidence")
	if !ok {
		confidence = defaultConfidence
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return DetectedItem{
		ID:          uuid.NewString(),
		Name:        name,
		Category:    category,
		Condition:   stringField(fields, "condition"),
		PriceHint:   stringField(fields, "priceHint", "price", "estimatedPrice"),
		Confidence:  confidence,
		Description: stringField(fields, "description"),
		Box:         boxFromFields(fields),
	}
}

func boxFromFields(fields map[string]any) BoundingBox {
	for _, key := range []string{"boundingBox", "box", "position"} {
		raw, ok := fields[key].(map[string]any)
		if !ok {
			continue
		}
		x, okX := floatField(raw, "x")
		y, okY := floatField(raw, "y")
		w, okW := floatField(raw, "width", "w")
		h, okH := floatField(raw, "height", "h")
		if okX && okY && okW && okH {
			return BoundingBox{X: x, Y: y, Width: w, Height: h}
		}
	}
	return placeholderBox()
}

// placeholderBox is a deliberate stub: the upstream model in this domain
// typically returns no coordinates, so items without a position get a fixed
// centered box rather than a fabricated random one.
func placeholderBox() BoundingBox {
	return BoundingBox{X: 35, Y: 35, Width: 30, Height: 30}
}

func stringField(fields map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := fields[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func floatField(fields map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		switch v := fields[key].(type) {
		case float64:
			return v, true
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func matchCategory(text string) string {
	lower := strings.ToLower(text)
	for _, category := range categoryVocabulary {
		if strings.Contains(lower, strings.ToLower(category)) {
			return category
		}
	}
	return "Other"
}

func firstSentence(text string) string {
	if idx := strings.IndexAny(text, ".!?\n"); idx > 0 {
		text = text[:idx]
	}
	text = strings.TrimSpace(text)
	if runes := []rune(text); len(runes) > maxHeuristicName {
		text = string(runes[:maxHeuristicName])
	}
	if text == "" {
		return "Detected Item"
	}
	return text
}
