package slm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/jeefy/mindjournal/internal/models"
)

const perspectivePrompt = `Journal entry: %q
Related past entries: %q

You are a small advisory board for the writer's wellbeing. Reply with three short responses, at most 20 words each:
- "stoic": calm and logical, focused on what is within the writer's control.
- "coach": direct and action-oriented, tough love.
- "friend": warm, empathetic and validating.

Respond with a single JSON object with exactly the keys "stoic", "coach" and "friend", for example {"stoic": "...", "coach": "...", "friend": "..."}.`

// buildPrompt renders the persona prompt for text and its retrieved context.
func buildPrompt(text string, related []string) string {
	return fmt.Sprintf(perspectivePrompt, text, strings.Join(related, "\n"))
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Format string `json:"format"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// personaReply uses pointers so a missing key can be told apart from an
// explicit value.
type personaReply struct {
	Stoic  *string `json:"stoic"`
	Coach  *string `json:"coach"`
	Friend *string `json:"friend"`
}

// Generate asks the generation model for the three persona responses. Any
// transport failure, unparsable payload or missing persona yields
// models.OfflinePerspectives; a partial answer is never returned.
func (o *Ollama) Generate(ctx context.Context, text string, related []string) models.Perspectives {
	p, err := o.generate(ctx, text, related)
	if err != nil {
		log.Printf("slm: generation failed, using offline perspectives: %v", err)
		return models.OfflinePerspectives()
	}
	return p
}

func (o *Ollama) generate(ctx context.Context, text string, related []string) (models.Perspectives, error) {
	req := generateRequest{
		Model:  o.generateModel,
		Prompt: buildPrompt(text, related),
		Format: "json",
		Stream: false,
	}
	var gr generateResponse
	if err := o.postJSON(ctx, "/api/generate", req, &gr); err != nil {
		return models.Perspectives{}, err
	}
	return parsePerspectives(gr.Response)
}

// parsePerspectives decodes the model's structured payload. Every persona
// must be present as a string; values are kept as the model wrote them.
func parsePerspectives(payload string) (models.Perspectives, error) {
	var reply personaReply
	if err := json.Unmarshal([]byte(payload), &reply); err != nil {
		return models.Perspectives{}, fmt.Errorf("decode perspectives: %w", err)
	}
	fields := []struct {
		name string
		val  *string
	}{{"stoic", reply.Stoic}, {"coach", reply.Coach}, {"friend", reply.Friend}}
	for _, f := range fields {
		if f.val == nil {
			return models.Perspectives{}, fmt.Errorf("perspectives missing %q", f.name)
		}
	}
	return models.Perspectives{
		Stoic:  *reply.Stoic,
		Coach:  *reply.Coach,
		Friend: *reply.Friend,
	}, nil
}
