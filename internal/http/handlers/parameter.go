package handlers

import (
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/services"
)

// ParameterHandler serves /parameters/?project=.
type ParameterHandler struct {
	projectCRUD[domain.Parameter, services.ParameterInput]
}

func NewParameterHandler(params services.ParameterService) *ParameterHandler {
	return &ParameterHandler{projectCRUD[domain.Parameter, services.ParameterInput]{
		list:   params.List,
		get:    params.Get,
		create: params.Create,
		update: params.Update,
	}}
}

// LabelHandler serves /labels/?project=.
type LabelHandler struct {
	projectCRUD[domain.Label, services.LabelInput]
}

func NewLabelHandler(labels services.LabelService) *LabelHandler {
	return &LabelHandler{projectCRUD[domain.Label, services.LabelInput]{
		list:   labels.List,
		get:    labels.Get,
		create: labels.Create,
		update: labels.Update,
	}}
}

// CustomAttributeHandler serves /custom-attributes/?project=.
type CustomAttributeHandler struct {
	projectCRUD[domain.CustomAttribute, services.CustomAttributeInput]
}

func NewCustomAttributeHandler(attrs services.CustomAttributeService) *CustomAttributeHandler {
	return &CustomAttributeHandler{projectCRUD[domain.CustomAttribute, services.CustomAttributeInput]{
		list:   attrs.List,
		get:    attrs.Get,
		create: attrs.Create,
		update: attrs.Update,
	}}
}
