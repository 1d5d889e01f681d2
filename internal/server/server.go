package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"adventdrop/internal/engine"
	"adventdrop/internal/repo"
	"adventdrop/internal/reveal"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig

	// Now lets tests pin the reveal clock.
	Now func() time.Time
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"hidden"`
	Message string         `json:"message" example:"gift not yet revealed"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the reveal API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	huma.DefaultArrayNullable = false
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
	router.Use(newAuthMiddleware(cfg.Auth))
	hcfg := huma.DefaultConfig("Adventdrop API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerCommitment(group, cfg)
	registerDisclosure(group, cfg)
	registerVerify(group, cfg)
	registerExecutions(group, cfg)
	registerEvents(group, cfg)
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
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, reveal.ErrNotYetRevealed):
		return newAPIError(http.StatusForbidden, "hidden", err.Error(), nil)
	case errors.Is(err, engine.ErrAlreadyCommitted):
		return newAPIError(http.StatusConflict, "already_committed", err.Error(), nil)
	case errors.Is(err, engine.ErrAlreadyExecuted):
		return newAPIError(http.StatusConflict, "already_executed", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "required") || strings.Contains(lowered, "invalid") ||
		strings.Contains(lowered, "incomplete") || strings.Contains(lowered, "duplicate") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
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

func registerCommitment(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "get-commitment",
		Method:      http.MethodGet,
		Path:        "/commitment",
		Summary:     "Published season commitment",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body CommitmentResponse `json:"body"`
	}, error) {
		c, err := cfg.Engine.Repo.GetCommitment(ctx, cfg.Engine.Config.Season.Tag)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CommitmentResponse `json:"body"`
		}{Body: CommitmentResponse{Season: c.Season, Root: c.Root, CommittedAt: c.CommittedAt}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "commit-season",
		Method:        http.MethodPost,
		Path:          "/season/commit",
		Summary:       "Commit the season's gift specs (admin)",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CommitSeasonRequest `json:"body"`
	}) (*struct {
		Body CommitmentResponse `json:"body"`
	}, error) {
		actorID, authErr := requireAdmin(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if len(input.Body.Gifts) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "gifts are required", nil)
		}
		c, err := cfg.Engine.CommitSeason(ctx, input.Body.Gifts, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CommitmentResponse `json:"body"`
		}{Body: CommitmentResponse{Season: c.Season, Root: c.Root, CommittedAt: c.CommittedAt}}, nil
	})
}

func registerDisclosure(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "get-disclosure",
		Method:      http.MethodGet,
		Path:        "/days/{day}",
		Summary:     "Disclose a day's gift per its reveal phase",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Day int `path:"day" minimum:"1" maximum:"24"`
	}) (*struct {
		Body DisclosureResponse `json:"body"`
	}, error) {
		d, err := cfg.Engine.DiscloseDay(ctx, input.Day, cfg.Now(), false)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DisclosureResponse `json:"body"`
		}{Body: DisclosureResponse{Disclosure: d}}, nil
	})
}

func registerVerify(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "verify-disclosure",
		Method:      http.MethodPost,
		Path:        "/verify",
		Summary:     "Verify a disclosure against the published root",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body VerifyRequest `json:"body"`
	}) (*struct {
		Body VerificationResponse `json:"body"`
	}, error) {
		v, err := cfg.Engine.VerifyDisclosure(ctx, input.Body.Disclosure)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body VerificationResponse `json:"body"`
		}{Body: VerificationResponse{Verification: v}}, nil
	})
}

func registerExecutions(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "get-execution",
		Method:      http.MethodGet,
		Path:        "/days/{day}/execution",
		Summary:     "A day's persisted execution result",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Day int `path:"day" minimum:"1" maximum:"24"`
	}) (*struct {
		Body ExecutionResponse `json:"body"`
	}, error) {
		e, err := cfg.Engine.Repo.GetExecution(ctx, input.Day)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ExecutionResponse `json:"body"`
		}{Body: ExecutionResponse{Execution: e}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "execute-day",
		Method:        http.MethodPost,
		Path:          "/days/{day}/execute",
		Summary:       "Evaluate and persist a day's distribution (admin)",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Day  int               `path:"day" minimum:"1" maximum:"24"`
		Body ExecuteDayRequest `json:"body"`
	}) (*struct {
		Body ExecutionResponse `json:"body"`
	}, error) {
		actorID, authErr := requireAdmin(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.Blockhash == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "blockhash is required", nil)
		}
		exec, err := cfg.Engine.ExecuteDay(ctx, input.Day, executeInputs(input.Body), actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ExecutionResponse `json:"body"`
		}{Body: ExecutionResponse{Execution: exec}}, nil
	})
}

func registerEvents(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Audit log",
	}, func(ctx context.Context, input *struct {
		N          int    `query:"n" default:"20"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body EventsResponse `json:"body"`
	}, error) {
		items, err := cfg.Engine.Repo.LatestEvents(ctx, input.N, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EventsResponse `json:"body"`
		}{Body: EventsResponse{Events: items}}, nil
	})
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
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Adventdrop API Docs</title>
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
  </body>
</html>`, specURL)
}
