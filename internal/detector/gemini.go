package detector

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

const geminiModel = "gemini-2.5-flash"

// GeminiDetector asks a Gemini vision model to list the objects in an image.
type GeminiDetector struct {
	client     *genai.Client
	vocabulary []string
}

// NewGeminiDetector creates a detector backed by the Gemini API.
func NewGeminiDetector(ctx context.Context, apiKey string, vocabulary []string) (*GeminiDetector, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiDetector{client: client, vocabulary: vocabulary}, nil
}

func (d *GeminiDetector) Name() string {
	return geminiModel
}

func (d *GeminiDetector) Detect(ctx context.Context, imageData []byte) ([]Detection, error) {
	const maxRetries = 3

	resizedData, err := ResizeImage(imageData, visionMaxSize)
	if err != nil {
		return nil, fmt.Errorf("failed to resize image: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: buildDetectPrompt(d.vocabulary)},
				{InlineData: &genai.Blob{Data: resizedData, MIMEType: "image/jpeg"}},
			},
		},
	}
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	var lastError error
	for range maxRetries {
		result, err := d.client.Models.GenerateContent(ctx, geminiModel, contents, config)
		if err != nil {
			return nil, fmt.Errorf("gemini API error: %w", err)
		}

		content := result.Text()
		if content == "" {
			return nil, errors.New("no response from Gemini")
		}

		detections, err := parseDetections(content)
		if err != nil {
			lastError = err
			contents = append(contents,
				&genai.Content{Role: "model", Parts: []*genai.Part{{Text: content}}},
				&genai.Content{Role: "user", Parts: []*genai.Part{{Text: fmt.Sprintf("JSON parse error: %v. Please answer with valid JSON only.", err)}}},
			)
			continue
		}
		return detections, nil
	}

	return nil, fmt.Errorf("failed to parse detections after %d attempts: %w", maxRetries, lastError)
}
