package models

// ConditionalExpression guards an edge. Expression is rendered as a template
// against the execution state and the result is interpreted by Language.
type ConditionalExpression struct {
	Language   string `json:"language,omitempty"`
	Expression string `json:"expression"`
}

type Conditional interface {
	Evaluate(exp any) (bool, error)
}

// GetConditional returns the interpreter for the expression language, nil when unsupported.
func GetConditional(c ConditionalExpression) Conditional {
	if c.Language == "simple" || c.Language == "" {
		return &SimpleConditionalInterpreter{}
	}

	return nil
}
