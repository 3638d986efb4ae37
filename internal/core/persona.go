package core

// Persona is a named system-prompt configuration bound to one model
// provider. Personas are loaded once at startup; CRUD lives outside this
// service.
type Persona struct {
	Name         string `json:"name"`
	DisplayName  string `json:"display_name"`
	SystemPrompt string `json:"system_prompt"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
}
