package domain

import (
	"fmt"
	"strings"
)

// ModelVariant names one of the supported generation configurations.
type ModelVariant string

const (
	ModelGPT4       ModelVariant = "gpt-4"
	ModelGPT35Turbo ModelVariant = "gpt-3.5-turbo"
	ModelGPT4Turbo  ModelVariant = "gpt-4-turbo-preview"

	DefaultModelName = ModelGPT4
)

var modelLabels = map[ModelVariant]string{
	ModelGPT4:       "GPT-4 (Most Capable)",
	ModelGPT35Turbo: "GPT-3.5-Turbo (Faster)",
	ModelGPT4Turbo:  "GPT-4-Turbo (Balanced)",
}

// AllModelVariants lists the variants in display order.
func AllModelVariants() []ModelVariant {
	return []ModelVariant{ModelGPT4, ModelGPT35Turbo, ModelGPT4Turbo}
}

// IsValid reports whether m is one of the known variants.
func (m ModelVariant) IsValid() bool {
	_, ok := modelLabels[m]
	return ok
}

// Label returns the human readable name of the variant.
func (m ModelVariant) Label() string {
	if label, ok := modelLabels[m]; ok {
		return label
	}
	return string(m)
}

func (m ModelVariant) String() string {
	return string(m)
}

// ParseModelVariant accepts either the variant name or its label.
// An empty string resolves to the default variant.
func ParseModelVariant(s string) (ModelVariant, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultModelName, nil
	}
	m := ModelVariant(strings.ToLower(s))
	if m.IsValid() {
		return m, nil
	}
	for variant, label := range modelLabels {
		if strings.EqualFold(label, s) {
			return variant, nil
		}
	}
	return "", NewDomainErrorWithCause(ErrCodeValidation, ErrInvalidModel.Message,
		fmt.Errorf("%q is not one of %s, %s, %s", s, ModelGPT4, ModelGPT35Turbo, ModelGPT4Turbo))
}
