package llm

// OpenRouter attribution headers, required by their API terms.
const (
	refererURL = "https://github.com/sandevgo/chorus"
	appTitle   = "Chorus"
)

type OpenRouter struct {
	*OpenAICompatible
}

func NewOpenRouter(apiKey, model string) *OpenRouter {
	return &OpenRouter{
		OpenAICompatible: NewOpenAICompatible(OpenAICompatibleConfig{
			BaseURL:    "https://openrouter.ai/api",
			APIKey:     apiKey,
			Model:      model,
			AuthHeader: "Authorization",
			AuthPrefix: "Bearer ",
			ExtraHeaders: map[string]string{
				"HTTP-Referer": refererURL,
				"X-Title":      appTitle,
			},
		}),
	}
}
