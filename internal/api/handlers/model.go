package handlers

import (
	"net/http"

	"github.com/cloo-solutions/pdfqa/internal/api"
	"github.com/cloo-solutions/pdfqa/internal/domain"
)

type ModelResponse struct {
	Name    string `json:"name"`
	Label   string `json:"label"`
	Default bool   `json:"default"`
}

type ModelHandler struct {
	defaultModel domain.ModelVariant
}

func NewModelHandler(defaultModel domain.ModelVariant) *ModelHandler {
	if !defaultModel.IsValid() {
		defaultModel = domain.DefaultModelName
	}
	return &ModelHandler{defaultModel: defaultModel}
}

func (h *ModelHandler) List(w http.ResponseWriter, r *http.Request) {
	variants := domain.AllModelVariants()
	models := make([]ModelResponse, 0, len(variants))
	for _, m := range variants {
		models = append(models, ModelResponse{
			Name:    m.String(),
			Label:   m.Label(),
			Default: m == h.defaultModel,
		})
	}
	api.Success(w, http.StatusOK, models)
}
