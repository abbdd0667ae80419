package converters

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/models"
)

// ClassificationDocument 分类结果的持久化格式
type ClassificationDocument struct {
	ClassificationResult string `json:"classification_result"`
}

// EncodeClassification renders {"classification_result": label} indented by two spaces.
func EncodeClassification(r *models.ClassificationResult) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("no classification to encode")
	}
	data, err := json.MarshalIndent(ClassificationDocument{ClassificationResult: r.Label}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal classification: %w", err)
	}
	return data, nil
}

// DecodeClassification reads the label back from a classification artifact.
func DecodeClassification(data []byte) (string, error) {
	var doc ClassificationDocument
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return "", fmt.Errorf("failed to decode classification: %w", err)
	}
	if doc.ClassificationResult == "" {
		return "", fmt.Errorf("classification artifact has no classification_result")
	}
	return doc.ClassificationResult, nil
}
