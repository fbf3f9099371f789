package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"qualgate/internal/domain"
	"qualgate/internal/engine"
	"qualgate/internal/queue"
	"qualgate/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"approval_blocked"`
	Message string         `json:"message" example:"approval blocked by critical check failures"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Qualgate API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Qualgate API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerMaterials(group, cfg.Engine)
	registerSuppliers(group, cfg.Engine)
	registerDocuments(group, cfg.Engine)
	registerOverrides(group, cfg.Engine)
	registerWorkQueue(group, cfg.Engine)
	registerDefinitions(group, cfg.Engine)
	registerSettings(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, engine.ErrBlocked) {
		return newAPIError(http.StatusUnprocessableEntity, "approval_blocked", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrNotEligible) {
		return newAPIError(http.StatusUnprocessableEntity, "approval_not_eligible", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "pending") && strings.Contains(lowered, "override"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") || strings.Contains(lowered, "unknown"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func bodyBytes(ctx context.Context) []byte {
	if b, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return b
	}
	return nil
}

var mutationErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusUnprocessableEntity,
	http.StatusInternalServerError,
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Qualgate API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

type MaterialPath struct {
	MaterialID string `path:"material_id"`
}

func registerMaterials(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-material",
		Method:        http.MethodPost,
		Path:          "/materials",
		Summary:       "Create material",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateMaterialRequest `json:"body"`
	}) (*struct {
		Body domain.Material `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		m, err := e.CreateMaterial(ctx, engine.MaterialCreateOptions{
			ID:          deref(input.Body.ID),
			Name:        input.Body.Name,
			Code:        deref(input.Body.Code),
			Category:    deref(input.Body.Category),
			CoARequired: input.Body.CoARequired != nil && *input.Body.CoARequired,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Material `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-materials",
		Method:      http.MethodGet,
		Path:        "/materials",
		Summary:     "List materials",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"draft,pending,approved,conditional,rejected,"`
	}) (*struct {
		Body []domain.Material `json:"body"`
	}, error) {
		var statuses []string
		if input.Status != "" {
			statuses = []string{input.Status}
		}
		materials, err := e.Repo.ListMaterials(ctx, statuses...)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Material `json:"body"`
		}{Body: materials}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-material",
		Method:      http.MethodGet,
		Path:        "/materials/{material_id}",
		Summary:     "Material detail",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *MaterialPath) (*struct {
		Body MaterialDetailResponse `json:"body"`
	}, error) {
		m, err := e.Repo.GetMaterial(ctx, input.MaterialID)
		if err != nil {
			return nil, handleError(err)
		}
		links, err := e.Repo.ListSupplierLinks(ctx, m.ID)
		if err != nil {
			return nil, handleError(err)
		}
		docs, err := e.Repo.ListDocuments(ctx, "material", m.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MaterialDetailResponse `json:"body"`
		}{Body: MaterialDetailResponse{Material: m, Suppliers: links, Documents: docs}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-material",
		Method:      http.MethodPatch,
		Path:        "/materials/{material_id}",
		Summary:     "Update material fields",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		MaterialPath
		Body UpdateMaterialRequest `json:"body"`
	}) (*struct {
		Body domain.Material `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.Repo.GetMaterial(ctx, input.MaterialID)
		if err != nil {
			return nil, handleError(err)
		}
		applyMaterialPatch(&m, input.Body)
		m, err = e.UpdateMaterial(ctx, m, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Material `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "evaluate-material",
		Method:      http.MethodGet,
		Path:        "/materials/{material_id}/checks",
		Summary:     "Run compliance checks",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *MaterialPath) (*struct {
		Body EvaluationResponse `json:"body"`
	}, error) {
		results, summary, err := e.EvaluateMaterial(ctx, input.MaterialID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EvaluationResponse `json:"body"`
		}{Body: EvaluationResponse{MaterialID: input.MaterialID, Results: results, Summary: summary}}, nil
	})

	registerMaterialTransition(api, "approve-material", "/materials/{material_id}/approve", "Approve material",
		func(ctx context.Context, materialID, actorID string) (domain.Material, error) {
			return e.ApproveMaterial(ctx, materialID, actorID)
		})
	registerMaterialTransition(api, "conditional-approve-material", "/materials/{material_id}/conditional-approve", "Conditionally approve material",
		func(ctx context.Context, materialID, actorID string) (domain.Material, error) {
			return e.ConditionalApproveMaterial(ctx, materialID, actorID)
		})

	huma.Register(api, huma.Operation{
		OperationID: "reject-material",
		Method:      http.MethodPost,
		Path:        "/materials/{material_id}/reject",
		Summary:     "Reject material",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		MaterialPath
		Body RejectMaterialRequest `json:"body"`
	}) (*struct {
		Body domain.Material `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.RejectMaterial(ctx, input.MaterialID, actorID, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Material `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "link-supplier",
		Method:      http.MethodPost,
		Path:        "/materials/{material_id}/suppliers",
		Summary:     "Link supplier to material",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		MaterialPath
		Body LinkSupplierRequest `json:"body"`
	}) (*struct {
		Body []domain.SupplierLink `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if _, err := e.Repo.GetMaterial(ctx, input.MaterialID); err != nil {
			return nil, handleError(err)
		}
		if _, err := e.Repo.GetSupplier(ctx, input.Body.SupplierID); err != nil {
			return nil, handleError(err)
		}
		if err := e.Repo.LinkSupplier(ctx, input.MaterialID, input.Body.SupplierID, input.Body.IsManufacturer); err != nil {
			return nil, handleError(err)
		}
		links, err := e.Repo.ListSupplierLinks(ctx, input.MaterialID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.SupplierLink `json:"body"`
		}{Body: links}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "unlink-supplier",
		Method:      http.MethodDelete,
		Path:        "/materials/{material_id}/suppliers/{supplier_id}",
		Summary:     "Unlink supplier from material",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		MaterialPath
		SupplierID string `path:"supplier_id"`
	}) (*struct{}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if err := e.Repo.UnlinkSupplier(ctx, input.MaterialID, input.SupplierID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerMaterialTransition(api huma.API, opID, route, summary string, fn func(ctx context.Context, materialID, actorID string) (domain.Material, error)) {
	huma.Register(api, huma.Operation{
		OperationID: opID,
		Method:      http.MethodPost,
		Path:        route,
		Summary:     summary,
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *MaterialPath) (*struct {
		Body domain.Material `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := fn(ctx, input.MaterialID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Material `json:"body"`
		}{Body: m}, nil
	})
}

func registerSuppliers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-supplier",
		Method:        http.MethodPost,
		Path:          "/suppliers",
		Summary:       "Create supplier",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateSupplierRequest `json:"body"`
	}) (*struct {
		Body domain.Supplier `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		s, err := e.CreateSupplier(ctx, engine.SupplierCreateOptions{
			ID:             deref(input.Body.ID),
			Name:           input.Body.Name,
			Code:           deref(input.Body.Code),
			NextReviewDate: deref(input.Body.NextReviewDate),
			ActorID:        actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Supplier `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-suppliers",
		Method:      http.MethodGet,
		Path:        "/suppliers",
		Summary:     "List suppliers",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"draft,pending,approved,conditional,rejected,"`
	}) (*struct {
		Body []domain.Supplier `json:"body"`
	}, error) {
		var statuses []string
		if input.Status != "" {
			statuses = []string{input.Status}
		}
		suppliers, err := e.Repo.ListSuppliers(ctx, statuses...)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Supplier `json:"body"`
		}{Body: suppliers}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-supplier-status",
		Method:      http.MethodPost,
		Path:        "/suppliers/{supplier_id}/status",
		Summary:     "Set supplier status",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		SupplierID string                   `path:"supplier_id"`
		Body       SetSupplierStatusRequest `json:"body"`
	}) (*struct {
		Body domain.Supplier `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.SetSupplierStatus(ctx, input.SupplierID, input.Body.Status, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Supplier `json:"body"`
		}{Body: s}, nil
	})
}

func registerDocuments(api huma.API, e engine.Engine) {
	addDoc := func(entityType, route, opID string) {
		huma.Register(api, huma.Operation{
			OperationID:   opID,
			Method:        http.MethodPost,
			Path:          route,
			Summary:       "Attach document",
			DefaultStatus: http.StatusCreated,
			Errors:        mutationErrors,
		}, func(ctx context.Context, input *struct {
			EntityID string             `path:"entity_id"`
			Body     AddDocumentRequest `json:"body"`
		}) (*struct {
			Body domain.Document `json:"body"`
		}, error) {
			actorID, authErr := actorIDFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			d, err := e.AddDocument(ctx, domain.Document{
				EntityType:    entityType,
				EntityID:      input.EntityID,
				Name:          input.Body.Name,
				DocType:       deref(input.Body.DocType),
				RequirementID: input.Body.RequirementID,
				ExpiryDate:    input.Body.ExpiryDate,
			}, actorID)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body domain.Document `json:"body"`
			}{Body: d}, nil
		})
	}
	addDoc("material", "/materials/{entity_id}/documents", "add-material-document")
	addDoc("supplier", "/suppliers/{entity_id}/documents", "add-supplier-document")

	huma.Register(api, huma.Operation{
		OperationID: "archive-document",
		Method:      http.MethodDelete,
		Path:        "/documents/{document_id}",
		Summary:     "Archive document",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		DocumentID string `path:"document_id"`
	}) (*struct{}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if err := e.Repo.ArchiveDocument(ctx, input.DocumentID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerOverrides(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "request-override",
		Method:        http.MethodPost,
		Path:          "/overrides",
		Summary:       "Request check override",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateOverrideRequest `json:"body"`
	}) (*struct {
		Body domain.OverrideRequest `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.RequestOverride(ctx, engine.OverrideRequestOptions{
			CheckKey:   input.Body.CheckKey,
			EntityType: input.Body.EntityType,
			EntityID:   input.Body.EntityID,
			Reason:     input.Body.Reason,
			ActorID:    actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.OverrideRequest `json:"body"`
		}{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-overrides",
		Method:      http.MethodGet,
		Path:        "/overrides",
		Summary:     "List override requests",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"pending,approved,rejected,"`
	}) (*struct {
		Body []domain.OverrideRequest `json:"body"`
	}, error) {
		overrides, err := e.Repo.ListOverrides(ctx, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.OverrideRequest `json:"body"`
		}{Body: overrides}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "decide-override",
		Method:      http.MethodPost,
		Path:        "/overrides/{override_id}/decide",
		Summary:     "Approve or reject an override request",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		OverrideID string                `path:"override_id"`
		Body       DecideOverrideRequest `json:"body"`
	}) (*struct {
		Body domain.OverrideRequest `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.DecideOverride(ctx, input.OverrideID, input.Body.Approve, deref(input.Body.FollowUpDate), actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.OverrideRequest `json:"body"`
		}{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-override",
		Method:      http.MethodPost,
		Path:        "/overrides/{override_id}/resolve",
		Summary:     "Resolve an approved override's follow-up",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		OverrideID string `path:"override_id"`
	}) (*struct {
		Body domain.OverrideRequest `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.ResolveOverrideFollowUp(ctx, input.OverrideID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.OverrideRequest `json:"body"`
		}{Body: o}, nil
	})
}

func registerWorkQueue(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "work-queue",
		Method:      http.MethodGet,
		Path:        "/work-queue",
		Summary:     "Prioritized compliance work queue",
	}, func(ctx context.Context, input *struct {
		Type     []string `query:"type"`
		Priority []string `query:"priority"`
		Category []string `query:"category"`
		Search   string   `query:"search"`
	}) (*struct {
		Body WorkQueueResponse `json:"body"`
	}, error) {
		items := e.BuildWorkQueue(ctx, queue.Filters{
			Types:      input.Type,
			Priorities: input.Priority,
			Categories: input.Category,
			Search:     input.Search,
		})
		return &struct {
			Body WorkQueueResponse `json:"body"`
		}{Body: WorkQueueResponse{Items: items, Total: len(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "work-queue-summary",
		Method:      http.MethodGet,
		Path:        "/work-queue/summary",
		Summary:     "Work queue aggregate counts",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WorkQueueSummary `json:"body"`
	}, error) {
		return &struct {
			Body WorkQueueSummary `json:"body"`
		}{Body: WorkQueueSummary(e.WorkQueueSummary(ctx))}, nil
	})
}

func registerDefinitions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-check-definitions",
		Method:      http.MethodGet,
		Path:        "/checks/definitions",
		Summary:     "List check definitions",
	}, func(ctx context.Context, input *struct {
		EntityType string `query:"entity_type" enum:"material,supplier,"`
	}) (*struct {
		Body []checksDefinitionBody `json:"body"`
	}, error) {
		defs, err := e.Repo.ListCheckDefinitions(ctx, input.EntityType)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]checksDefinitionBody, 0, len(defs))
		for _, d := range defs {
			out = append(out, checksDefinitionBody{
				Key:                  d.Key,
				Tier:                 d.Tier,
				EntityType:           d.EntityType,
				ApplicableCategories: d.ApplicableCategories,
				IsActive:             d.IsActive,
				SortOrder:            d.SortOrder,
				Description:          d.Description,
			})
		}
		return &struct {
			Body []checksDefinitionBody `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-check-definition-active",
		Method:      http.MethodPatch,
		Path:        "/checks/definitions/{key}",
		Summary:     "Enable or disable a check",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		Key  string                     `path:"key"`
		Body SetDefinitionActiveRequest `json:"body"`
	}) (*struct{}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if err := e.Repo.SetCheckDefinitionActive(ctx, input.Key, input.Body.Active); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "upsert-check-definition",
		Method:      http.MethodPut,
		Path:        "/checks/definitions/{key}",
		Summary:     "Create or replace a check definition",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		Key  string                  `path:"key"`
		Body UpsertDefinitionRequest `json:"body"`
	}) (*struct {
		Body checksDefinitionBody `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		d := input.Body.definition(input.Key)
		if err := e.Repo.UpsertCheckDefinition(ctx, d); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body checksDefinitionBody `json:"body"`
		}{Body: checksDefinitionBody{
			Key:                  d.Key,
			Tier:                 d.Tier,
			EntityType:           d.EntityType,
			ApplicableCategories: d.ApplicableCategories,
			IsActive:             d.IsActive,
			SortOrder:            d.SortOrder,
			Description:          d.Description,
		}}, nil
	})
}

type checksDefinitionBody struct {
	Key                  string   `json:"key"`
	Tier                 string   `json:"tier" enum:"critical,important,recommended"`
	EntityType           string   `json:"entity_type"`
	ApplicableCategories []string `json:"applicable_categories,omitempty"`
	IsActive             bool     `json:"is_active"`
	SortOrder            int      `json:"sort_order"`
	Description          string   `json:"description,omitempty"`
}

func registerSettings(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-settings",
		Method:      http.MethodGet,
		Path:        "/settings",
		Summary:     "List settings",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Setting `json:"body"`
	}, error) {
		out, err := e.Repo.ListSettings(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Setting `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-setting",
		Method:      http.MethodPut,
		Path:        "/settings/{key}",
		Summary:     "Set a setting value",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		Key  string            `path:"key"`
		Body SetSettingRequest `json:"body"`
	}) (*struct{}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if err := e.Repo.SetSetting(ctx, input.Key, input.Body.Value); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Audit log tail",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" minimum:"1" maximum:"1000"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		limit := input.Limit
		if limit == 0 {
			limit = 50
		}
		evts, err := e.Repo.ListEvents(ctx, limit)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]EventResponse, 0, len(evts))
		for _, ev := range evts {
			var payload map[string]any
			_ = json.Unmarshal([]byte(ev.Payload), &payload)
			out = append(out, EventResponse{
				ID:         ev.ID,
				TS:         ev.TS,
				Type:       ev.Type,
				EntityKind: ev.EntityKind,
				EntityID:   ev.EntityID,
				ActorID:    ev.ActorID,
				Payload:    payload,
			})
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: out}, nil
	})
}

func applyMaterialPatch(m *domain.Material, p UpdateMaterialRequest) {
	if p.Name != nil {
		m.Name = *p.Name
	}
	if p.Code != nil {
		m.Code = *p.Code
	}
	if p.Category != nil {
		m.Category = *p.Category
	}
	if p.CoARequired != nil {
		m.CoARequired = *p.CoARequired
	}
	if p.GLAccountID != nil {
		m.GLAccountID = p.GLAccountID
	}
	if p.HACCPStep != nil {
		m.HACCPStep = p.HACCPStep
	}
	if p.HACCPHazard != nil {
		m.HACCPHazard = p.HACCPHazard
	}
	if p.StorageTempMin != nil {
		m.StorageTempMin = p.StorageTempMin
	}
	if p.StorageTempMax != nil {
		m.StorageTempMax = p.StorageTempMax
	}
	if p.FraudScore != nil {
		m.FraudScore = p.FraudScore
	}
	if p.CountryOfOrigin != nil {
		m.CountryOfOrigin = p.CountryOfOrigin
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
