package extraction

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/xeipuuv/gojsonschema"
)

func systemPrompt(instructions string, schema map[string]any) (string, error) {
	if len(schema) == 0 {
		return instructions, nil
	}

	encoded, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode output schema: %w", err)
	}

	var prompt strings.Builder

	prompt.WriteString(instructions)

	if instructions != "" {
		prompt.WriteString("\n\n")
	}

	prompt.WriteString("Respond only with a JSON document that conforms to this JSON schema:\n")
	prompt.Write(encoded)

	return prompt.String(), nil
}

// parseOutput decodes the final model answer. With a schema the answer must be
// conforming JSON; without one, non-JSON answers are kept as text.
func parseOutput(answer string, schema map[string]any) (any, error) {
	body := stripCodeFence(answer)

	var output any

	err := json.Unmarshal([]byte(body), &output)
	if len(schema) == 0 {
		if err != nil {
			return strings.TrimSpace(answer), nil
		}

		return output, nil
	}

	if err != nil {
		return nil, fmt.Errorf("%w: output is not valid JSON: %w", ErrSchemaValidation, err)
	}

	if err := validateJSONSchema(schema, output); err != nil {
		return nil, err
	}

	return output, nil
}

func validateJSONSchema(schema map[string]any, data any) error {
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSchemaValidation, err)
	}

	if !result.Valid() {
		var errorMessages []string
		for _, desc := range result.Errors() {
			errorMessages = append(errorMessages, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrSchemaValidation, strings.Join(errorMessages, "; "))
	}

	return nil
}

// stripCodeFence removes a surrounding markdown code fence, with or without a language tag.
func stripCodeFence(answer string) string {
	text := strings.TrimSpace(answer)
	if !strings.HasPrefix(text, "```") || !strings.HasSuffix(text, "```") || len(text) < 6 {
		return text
	}

	text = strings.TrimSuffix(strings.TrimPrefix(text, "```"), "```")

	if newline := strings.IndexByte(text, '\n'); newline >= 0 {
		tag := strings.TrimSpace(text[:newline])
		if tag == "" || !strings.ContainsAny(tag, "{[\"") {
			text = text[newline+1:]
		}
	}

	return strings.TrimSpace(text)
}
