package converters

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout keeps microseconds so reprocessing the same message never
// collides with an earlier artifact.
const TimestampLayout = "2006-01-02-15-04-05.000000"

const (
	ResultPrefix   = "results/"
	EnrichedPrefix = "enriched/"

	ocrMarker            = "_ocr_"
	classificationMarker = "_classification_"

	ContentTypeText = "text/plain"
	ContentTypeJSON = "application/json"
)

// FormatTimestamp renders t in UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// OCRKey results/{document}_ocr_{timestamp}.txt
func OCRKey(document string, t time.Time) string {
	return ResultPrefix + document + ocrMarker + FormatTimestamp(t) + ".txt"
}

// ClassificationKey results/{document}_classification_{timestamp}.json
func ClassificationKey(document string, t time.Time) string {
	return ResultPrefix + document + classificationMarker + FormatTimestamp(t) + ".json"
}

// EnrichedKey enriched/{document}
func EnrichedKey(document string) string {
	return EnrichedPrefix + document
}

// IsClassificationKey reports whether key names a classification artifact.
func IsClassificationKey(key string) bool {
	_, _, err := ParseClassificationKey(key)
	return err == nil
}

// ParseClassificationKey recovers the document name and timestamp from a
// classification artifact key. Document names may themselves contain the
// marker, so the last occurrence wins.
func ParseClassificationKey(key string) (string, time.Time, error) {
	if !strings.HasPrefix(key, ResultPrefix) || !strings.HasSuffix(key, ".json") {
		return "", time.Time{}, fmt.Errorf("not a classification key: %s", key)
	}
	rest := strings.TrimSuffix(strings.TrimPrefix(key, ResultPrefix), ".json")
	i := strings.LastIndex(rest, classificationMarker)
	if i <= 0 {
		return "", time.Time{}, fmt.Errorf("not a classification key: %s", key)
	}
	ts, err := time.ParseInLocation(TimestampLayout, rest[i+len(classificationMarker):], time.UTC)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("invalid timestamp in key %s: %w", key, err)
	}
	return rest[:i], ts, nil
}

// OCRKeyFor returns the OCR text key written alongside a classification artifact.
func OCRKeyFor(classificationKey string) (string, string, error) {
	document, ts, err := ParseClassificationKey(classificationKey)
	if err != nil {
		return "", "", err
	}
	return document, OCRKey(document, ts), nil
}
