package realtime

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Persona is the agent descriptor sent to the realtime service when a session opens.
type Persona struct {
	Name         string `yaml:"name"`
	Instructions string `yaml:"instructions"`
}

// DefaultPersona is the experiences planning agent.
func DefaultPersona() Persona {
	return Persona{
		Name: "Experiences_agent",
		Instructions: `You are an agent that helps me plan my experiences and activities.
You help me discover unique activities hosted by local experts. These are designed
to let travelers (and even locals) explore a city, culture, or hobby in a more personal
and immersive way.

For example: You could book a pasta-making class with an Italian grandmother,
or in Tokyo, take part in a calligraphy workshop with a local artist.

IMPORTANT: Never answer any questions that are not related to experiences and activities.`,
	}
}

// LoadPersona reads a persona YAML file. Empty path returns DefaultPersona.
func LoadPersona(path string) (Persona, error) {
	if path == "" {
		return DefaultPersona(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Persona{}, fmt.Errorf("realtime: read persona: %w", err)
	}
	var p Persona
	if err := yaml.Unmarshal(b, &p); err != nil {
		return Persona{}, fmt.Errorf("realtime: parse persona: %w", err)
	}
	p.Name = strings.TrimSpace(p.Name)
	p.Instructions = strings.TrimSpace(p.Instructions)
	if p.Instructions == "" {
		return Persona{}, errors.New("realtime: persona instructions are required")
	}
	if p.Name == "" {
		p.Name = DefaultPersona().Name
	}
	return p, nil
}
