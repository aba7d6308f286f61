package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type openAIClient struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	visionModel string
	imageModel  string
}

func newOpenAIClient(baseURL, apiKey, visionModel, imageModel string) *openAIClient {
	return &openAIClient{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		visionModel: visionModel,
		imageModel:  imageModel,
	}
}

type chatContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

const describePrompt = `Describe the visual characteristics you see in this image. Focus on:

1. Face shape: (round, oval, square, long, heart-shaped, angular, rectangular)
2. Eye characteristics: (shape - almond/round/oval, size, spacing, positioning)
3. Color palette: (dominant colors, skin tone, hair color if visible, overall color scheme)
4. Hair/texture: (if visible - color, texture, length, style)
5. Facial structure: (cheekbone prominence, jawline shape, nose shape and size, facial angles)
6. Build/physique: (if visible - athletic, stocky, lean, petite, large-framed, body proportions)
7. Expression: (friendly, serious, playful, calm, intense - based on visual cues)
8. Overall proportions: (head size relative to body, facial feature proportions)

Provide a detailed description of these visual characteristics. Be specific about colors, shapes, and proportions.`

const breedPromptFormat = `Based on this visual description, determine which dog breed would be the best artistic match:

VISUAL DESCRIPTION:
%s

Analyze the described characteristics and match them to a dog breed considering:
- Facial structure similarities (face shape, jawline, cheekbones, nose)
- Color matching (skin/hair colors matching coat colors)
- Build similarities (athletic, stocky, lean, etc.)
- Proportional similarities (head-to-body ratio, feature proportions)
- Overall energy/expression match

Respond in EXACTLY this format:
BREED: [specific dog breed name - be precise]
REASONING: [2-3 sentences explaining which specific characteristics from the description led to this breed match]`

const fallbackDescription = "A portrait image with various visual characteristics including facial features, coloring, and structure."

// DetectBreed analyzes a headshot in two steps: a visual description first,
// then a breed determination from that description. The indirection keeps the
// vision model off identifying individuals.
func (c *openAIClient) DetectBreed(ctx context.Context, image []byte) (string, string, error) {
	dataURI := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image)

	description, err := c.chatCompletion(ctx, []chatMessage{
		{
			Role:    "system",
			Content: "You are a visual analyst that describes images in detail. You focus on observable visual characteristics, shapes, colors, textures, and patterns without identifying specific individuals.",
		},
		{
			Role: "user",
			Content: []chatContentPart{
				{Type: "text", Text: describePrompt},
				{Type: "image_url", ImageURL: &chatImageURL{URL: dataURI}},
			},
		},
	}, 400, 0.3)
	if err != nil {
		return "", "", fmt.Errorf("description request failed: %w", err)
	}
	if isRefusal(description) {
		logger.Warn("description step refused, using fallback description")
		description = fallbackDescription
	}

	result, err := c.chatCompletion(ctx, []chatMessage{
		{
			Role:    "system",
			Content: "You are an expert at matching visual characteristics to dog breeds for creative art projects. You analyze descriptions of visual features and determine which dog breed would be the best artistic match.",
		},
		{
			Role:    "user",
			Content: fmt.Sprintf(breedPromptFormat, description),
		},
	}, 300, 0.4)
	if err != nil {
		return "", "", fmt.Errorf("breed request failed: %w", err)
	}
	if isRefusal(result) {
		return "", "", fmt.Errorf("content policy restriction: %s", truncate(result, 100))
	}

	breed, reasoning := parseBreedResponse(result)
	if breed == "" {
		return "", "", fmt.Errorf("could not determine breed from analysis: %s", truncate(result, 200))
	}
	if len(breed) > 50 || isRefusal(breed) {
		return "", "", fmt.Errorf("invalid breed detected in response")
	}
	if reasoning == "" {
		reasoning = "Based on facial features and physical characteristics observed in the image."
	}
	return breed, reasoning, nil
}

// GeneratePortrait submits a generation request and returns the result URL.
func (c *openAIClient) GeneratePortrait(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model":   c.imageModel,
		"prompt":  prompt,
		"size":    "1024x1024",
		"quality": "standard",
		"n":       1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/images/generations", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Data []struct {
			URL string `json:"url"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Data) == 0 || result.Data[0].URL == "" {
		return "", fmt.Errorf("no image returned")
	}
	return result.Data[0].URL, nil
}

func (c *openAIClient) chatCompletion(ctx context.Context, messages []chatMessage, maxTokens int, temperature float64) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model":       c.visionModel,
		"messages":    messages,
		"max_tokens":  maxTokens,
		"temperature": temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

var refusalKeywords = []string{
	"sorry", "can't", "cannot", "unable", "not able",
	"i'm not", "i cannot", "i can't",
}

func isRefusal(s string) bool {
	if strings.TrimSpace(s) == "" {
		return true
	}
	lower := strings.ToLower(s)
	for _, keyword := range refusalKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

var knownBreeds = []string{
	"Golden Retriever", "Labrador Retriever", "Labrador", "German Shepherd",
	"Beagle", "French Bulldog", "Bulldog", "Poodle", "Siberian Husky", "Husky",
	"Border Collie", "Pembroke Welsh Corgi", "Corgi", "Shih Tzu", "Pug",
	"Chihuahua", "Dachshund", "Australian Shepherd", "Rottweiler", "Doberman",
	"Boxer", "Great Dane", "Mastiff", "Saint Bernard", "Bernese Mountain Dog",
	"Shiba Inu", "Akita", "Chow Chow", "Dalmatian", "Weimaraner",
}

// parseBreedResponse extracts the BREED:/REASONING: lines. When the model
// ignored the format, it falls back to scanning for a known breed name.
func parseBreedResponse(result string) (string, string) {
	var breed, reasoning string
	for _, line := range strings.Split(result, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "BREED:") {
			breed = strings.TrimSpace(strings.TrimPrefix(line, "BREED:"))
		} else if strings.HasPrefix(line, "REASONING:") {
			reasoning = strings.TrimSpace(strings.TrimPrefix(line, "REASONING:"))
		}
	}
	if breed == "" {
		lower := strings.ToLower(result)
		for _, candidate := range knownBreeds {
			idx := strings.Index(lower, strings.ToLower(candidate))
			if idx < 0 {
				continue
			}
			breed = candidate
			from := idx - 50
			if from < 0 {
				from = 0
			}
			to := idx + 200
			if to > len(result) {
				to = len(result)
			}
			reasoning = strings.TrimSpace(result[from:to])
			break
		}
	}
	if len(breed) < 2 {
		return "", ""
	}
	return breed, reasoning
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
