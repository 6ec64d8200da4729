package recommendation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// GeneratorGemini identifies advice produced by GeminiGenerator.
const GeneratorGemini = "gemini"

// GeminiGenerator asks a generative-language endpoint for advice and falls
// back to another Generator when the call or the reply cannot be used.
type GeminiGenerator struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	fallback   Generator
	logger     *slog.Logger
}

// GeminiOption configures a GeminiGenerator.
type GeminiOption func(*GeminiGenerator)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) GeminiOption {
	return func(g *GeminiGenerator) { g.httpClient = client }
}

// WithFallback overrides the fallback generator.
func WithFallback(fallback Generator) GeminiOption {
	return func(g *GeminiGenerator) { g.fallback = fallback }
}

// WithLogger sets the logger used to report fallbacks.
func WithLogger(logger *slog.Logger) GeminiOption {
	return func(g *GeminiGenerator) { g.logger = logger }
}

// NewGeminiGenerator constructs a generator for the generateContent endpoint.
func NewGeminiGenerator(endpoint, apiKey string, timeout time.Duration, opts ...GeminiOption) *GeminiGenerator {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	g := &GeminiGenerator{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		fallback:   NewRuleGenerator(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate implements Generator.
func (g *GeminiGenerator) Generate(ctx context.Context, activity ActivitySnapshot) (Recommendation, error) {
	text, err := g.call(ctx, buildPrompt(activity))
	if err == nil {
		var rec Recommendation
		rec, err = parseAdvice(text)
		if err == nil {
			rec.ActivityID = activity.ActivityID
			rec.UserID = activity.UserID
			rec.ActivityType = activity.ActivityType
			rec.Generator = GeneratorGemini
			return rec, nil
		}
	}

	g.logger.Warn("ai recommendation unavailable, using fallback", "activity_id", activity.ActivityID, "error", err)
	recordFallback()
	return g.fallback.Generate(ctx, activity)
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (g *GeminiGenerator) call(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(geminiRequest{Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}}})
	if err != nil {
		return "", err
	}

	endpoint := g.endpoint
	if g.apiKey != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint += sep + "key=" + url.QueryEscape(g.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("gemini api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var payload geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}
	if len(payload.Candidates) == 0 || len(payload.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("empty gemini response")
	}
	return payload.Candidates[0].Content.Parts[0].Text, nil
}

func buildPrompt(a ActivitySnapshot) string {
	var sb strings.Builder
	sb.WriteString("Analyze this fitness activity and provide detailed recommendations in the following EXACT JSON format:\n")
	sb.WriteString(`{
  "analysis": {"overall": "", "pace": "", "heartRate": "", "caloriesBurned": ""},
  "improvements": [{"area": "", "recommendation": ""}],
  "suggestions": [{"workout": "", "description": ""}],
  "safety": [""]
}`)
	sb.WriteString("\n\nAnalyze this activity:\n")
	fmt.Fprintf(&sb, "Activity Type: %s\n", a.ActivityType)
	fmt.Fprintf(&sb, "Duration: %d minutes\n", a.DurationMin)
	fmt.Fprintf(&sb, "Calories Burned: %d\n", a.CaloriesBurned)
	if len(a.AdditionalMetrics) > 0 {
		keys := make([]string, 0, len(a.AdditionalMetrics))
		for k := range a.AdditionalMetrics {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("Additional Metrics:\n")
		for _, k := range keys {
			fmt.Fprintf(&sb, "- %s: %v\n", k, a.AdditionalMetrics[k])
		}
	}
	sb.WriteString("\nFocus on performance analysis, areas for improvement, next workout suggestions and safety guidelines. Ensure the response follows the EXACT JSON format shown above.")
	return sb.String()
}

type advicePayload struct {
	Analysis struct {
		Overall        string `json:"overall"`
		Pace           string `json:"pace"`
		HeartRate      string `json:"heartRate"`
		CaloriesBurned string `json:"caloriesBurned"`
	} `json:"analysis"`
	Improvements []struct {
		Area           string `json:"area"`
		Recommendation string `json:"recommendation"`
	} `json:"improvements"`
	Suggestions []struct {
		Workout     string `json:"workout"`
		Description string `json:"description"`
	} `json:"suggestions"`
	Safety []string `json:"safety"`
}

// parseAdvice extracts the JSON object from the model reply, which may be
// wrapped in a markdown code fence.
func parseAdvice(text string) (Recommendation, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return Recommendation{}, errors.New("no json object in reply")
	}

	var payload advicePayload
	if err := json.Unmarshal([]byte(text[start:end+1]), &payload); err != nil {
		return Recommendation{}, fmt.Errorf("decode advice: %w", err)
	}

	var analysis []string
	addSection := func(prefix, value string) {
		if v := strings.TrimSpace(value); v != "" {
			analysis = append(analysis, prefix+v)
		}
	}
	addSection("Overall: ", payload.Analysis.Overall)
	addSection("Pace: ", payload.Analysis.Pace)
	addSection("Heart Rate: ", payload.Analysis.HeartRate)
	addSection("Calories: ", payload.Analysis.CaloriesBurned)
	if len(analysis) == 0 {
		return Recommendation{}, errors.New("reply has no analysis")
	}

	rec := Recommendation{Analysis: strings.Join(analysis, "\n\n")}
	for _, imp := range payload.Improvements {
		rec.Improvements = append(rec.Improvements, fmt.Sprintf("%s: %s", imp.Area, imp.Recommendation))
	}
	for _, s := range payload.Suggestions {
		rec.Suggestions = append(rec.Suggestions, fmt.Sprintf("%s: %s", s.Workout, s.Description))
	}
	for _, s := range payload.Safety {
		if strings.TrimSpace(s) != "" {
			rec.Safety = append(rec.Safety, s)
		}
	}

	if len(rec.Improvements) == 0 {
		rec.Improvements = []string{"General: Continue with your current routine"}
	}
	if len(rec.Suggestions) == 0 {
		rec.Suggestions = []string{"General Fitness: Consider various types of workouts"}
	}
	if len(rec.Safety) == 0 {
		rec.Safety = []string{"Always warm up before exercise", "Stay hydrated", "Listen to your body"}
	}
	return rec, nil
}
