package services

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"gorm.io/datatypes"

	"github.com/yungbote/testbridge-backend/internal/access"
	"github.com/yungbote/testbridge-backend/internal/data/repos"
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

// attributeTargets are the kinds a custom attribute may be applied to.
var attributeTargets = map[domain.Kind]bool{
	domain.KindPlan:   true,
	domain.KindCase:   true,
	domain.KindResult: true,
	domain.KindSuite:  true,
}

// AttributeScope describes the entity being validated.
type AttributeScope struct {
	Kind     domain.Kind
	SuiteID  *uint
	StatusID *uint
}

// RequiredAttributes returns the sorted names of attrs required for scope.
func RequiredAttributes(attrs []*domain.CustomAttribute, scope AttributeScope) []string {
	var out []string
	for _, a := range attrs {
		cfg, ok := a.AppliedTo.Data()[scope.Kind]
		if !ok || !cfg.IsRequired {
			continue
		}
		if len(cfg.SuiteIDs) > 0 && (scope.SuiteID == nil || !slices.Contains(cfg.SuiteIDs, *scope.SuiteID)) {
			continue
		}
		if scope.Kind == domain.KindResult && len(cfg.StatusSpecific) > 0 &&
			(scope.StatusID == nil || !slices.Contains(cfg.StatusSpecific, *scope.StatusID)) {
			continue
		}
		out = append(out, a.Name)
	}
	sort.Strings(out)
	return slices.Compact(out)
}

// ValidateAttributes checks attribute keys and the presence of required ones.
func ValidateAttributes(values map[string]any, required []string) error {
	const op = "custom_attributes.validate"
	var commas []string
	for k := range values {
		if strings.Contains(k, ",") {
			commas = append(commas, k)
		}
	}
	if len(commas) > 0 {
		sort.Strings(commas)
		return apierr.FieldValidation(op, "attributes", fmt.Sprintf("Attribute keys cannot contain commas: %s", listing(commas)))
	}
	var missing, empty []string
	for _, name := range required {
		v, ok := values[name]
		switch {
		case !ok:
			missing = append(missing, name)
		case isEmptyValue(v):
			empty = append(empty, name)
		}
	}
	if len(missing) > 0 {
		return apierr.FieldValidation(op, "attributes", "Missing following required attributes: "+listing(missing))
	}
	if len(empty) > 0 {
		return apierr.FieldValidation(op, "attributes", "Found empty required attributes: "+listing(empty))
	}
	return nil
}

func listing(names []string) string { return "[" + strings.Join(names, ", ") + "]" }

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

type CustomAttributeInput struct {
	Name      string                                `json:"name"`
	Type      domain.CustomAttributeType            `json:"type"`
	AppliedTo map[domain.Kind]domain.AppliedConfig `json:"applied_to"`
}

type CustomAttributeService interface {
	List(ctx context.Context, projectID uint, q repos.Query) (*repos.Page[domain.CustomAttribute], error)
	Get(ctx context.Context, id uint) (*domain.CustomAttribute, error)
	Create(ctx context.Context, projectID uint, in CustomAttributeInput) (*domain.CustomAttribute, error)
	Update(ctx context.Context, id uint, in CustomAttributeInput) (*domain.CustomAttribute, error)
	// Validate checks values of an entity against the project's required attributes.
	Validate(dbc dbctx.Context, projectID uint, scope AttributeScope, values map[string]any) error
}

type customAttributeService struct {
	core *Core
	log  *logger.Logger
}

func NewCustomAttributeService(core *Core) CustomAttributeService {
	return &customAttributeService{core: core, log: core.Log.With("service", "CustomAttributeService")}
}

func (s *customAttributeService) List(ctx context.Context, projectID uint, q repos.Query) (*repos.Page[domain.CustomAttribute], error) {
	if err := s.core.checkIn(ctx, projectID, "customattribute", access.ActionView); err != nil {
		return nil, err
	}
	return s.core.Repos.CustomAttribute.List(read(ctx), q, repos.ProjectScope(projectID))
}

func (s *customAttributeService) Get(ctx context.Context, id uint) (*domain.CustomAttribute, error) {
	a, err := s.core.Repos.CustomAttribute.Get(read(ctx), id)
	if err != nil {
		return nil, err
	}
	if err := s.core.checkIn(ctx, a.ProjectID, "customattribute", access.ActionView); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *customAttributeService) validateInput(dbc dbctx.Context, projectID uint, in CustomAttributeInput) error {
	const op = "custom_attribute.validate"
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return apierr.FieldValidation(op, "name", "This field may not be blank.")
	}
	if strings.Contains(name, ",") {
		return apierr.FieldValidation(op, "name", "Name cannot contain commas.")
	}
	if in.Type < domain.AttributeText || in.Type > domain.AttributeJSON {
		return apierr.FieldValidation(op, "type", fmt.Sprintf("%d is not a valid choice.", in.Type))
	}
	for kind, cfg := range in.AppliedTo {
		if !attributeTargets[kind] {
			return apierr.FieldValidation(op, "applied_to", fmt.Sprintf("%q cannot carry custom attributes.", kind))
		}
		if len(cfg.StatusSpecific) > 0 && kind != domain.KindResult {
			return apierr.FieldValidation(op, "applied_to", "status_specific is only allowed for testresult.")
		}
		if len(cfg.SuiteIDs) > 0 {
			suites, err := s.core.Repos.Suite.GetByIDs(dbc, uniq(cfg.SuiteIDs))
			if err != nil {
				return err
			}
			for _, su := range suites {
				if su.ProjectID != projectID {
					return apierr.FieldValidation(op, "applied_to", fmt.Sprintf("Suite %d does not belong to the project.", su.ID))
				}
			}
			if len(suites) != len(uniq(cfg.SuiteIDs)) {
				return apierr.FieldValidation(op, "applied_to", "Unknown suite in suite_ids.")
			}
		}
	}
	return nil
}

func (s *customAttributeService) Create(ctx context.Context, projectID uint, in CustomAttributeInput) (*domain.CustomAttribute, error) {
	if err := s.core.checkIn(ctx, projectID, "customattribute", access.ActionAdd); err != nil {
		return nil, err
	}
	var out *domain.CustomAttribute
	err := s.core.Writer.Write(ctx, "custom_attribute.create", func(dbc dbctx.Context) error {
		if _, err := s.core.liveProject(dbc, projectID); err != nil {
			return err
		}
		if err := s.validateInput(dbc, projectID, in); err != nil {
			return err
		}
		out = &domain.CustomAttribute{
			ProjectID: projectID,
			Name:      strings.TrimSpace(in.Name),
			Type:      in.Type,
			AppliedTo: datatypes.NewJSONType(in.AppliedTo),
		}
		return s.core.Repos.CustomAttribute.Create(dbc, out)
	})
	return out, err
}

func (s *customAttributeService) Update(ctx context.Context, id uint, in CustomAttributeInput) (*domain.CustomAttribute, error) {
	var out *domain.CustomAttribute
	err := s.core.Writer.Write(ctx, "custom_attribute.update", func(dbc dbctx.Context) error {
		a, err := s.core.Repos.CustomAttribute.Get(dbc, id)
		if err != nil {
			return err
		}
		if err := s.core.checkIn(ctx, a.ProjectID, "customattribute", access.ActionChange); err != nil {
			return err
		}
		if err := s.validateInput(dbc, a.ProjectID, in); err != nil {
			return err
		}
		a.Name = strings.TrimSpace(in.Name)
		a.Type = in.Type
		a.AppliedTo = datatypes.NewJSONType(in.AppliedTo)
		out = a
		return s.core.Repos.CustomAttribute.Save(dbc, a)
	})
	return out, err
}

func (s *customAttributeService) Validate(dbc dbctx.Context, projectID uint, scope AttributeScope, values map[string]any) error {
	attrs, err := s.core.Repos.CustomAttribute.Find(dbc, repos.ProjectScope(projectID))
	if err != nil {
		return err
	}
	return ValidateAttributes(values, RequiredAttributes(attrs, scope))
}
