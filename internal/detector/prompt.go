package detector

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
)

//go:embed prompts/detect_objects.txt
var detectObjectsPrompt string

// buildDetectPrompt appends the known class vocabulary, if any, to the base prompt.
func buildDetectPrompt(vocabulary []string) string {
	if len(vocabulary) == 0 {
		return detectObjectsPrompt
	}
	var b strings.Builder
	b.WriteString(detectObjectsPrompt)
	b.WriteString("\nPrefer these class names when they fit: ")
	b.WriteString(strings.Join(vocabulary, ", "))
	b.WriteString("\n")
	return b.String()
}

// parseDetections decodes a vision model answer. Labels are trimmed and
// empty ones dropped.
func parseDetections(content string) ([]Detection, error) {
	var resp detectResponse
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse detections: %w", err)
	}
	out := make([]Detection, 0, len(resp.Detections))
	for _, d := range resp.Detections {
		d.Label = strings.TrimSpace(d.Label)
		if d.Label == "" {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}
