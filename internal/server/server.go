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
	"reflect"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/jercomio/LuT-1/internal/auth"
	"github.com/jercomio/LuT-1/internal/engine"
	"github.com/jercomio/LuT-1/internal/repo"
)

// DefaultBasePath is where the API is mounted when Config.BasePath is empty.
const DefaultBasePath = "/api"

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     auth.Config
	// CORSOrigins lists allowed origins; empty allows any.
	CORSOrigins []string
	Logger      *zerolog.Logger
}

type bodyBytesKey struct{}

// apiError models the error envelope shared by every endpoint.
type apiError struct {
	status  int
	Message string       `json:"error" example:"Invalid task data"`
	Details []FieldError `json:"details,omitempty"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Message }

// New returns an HTTP handler exposing the Lunar Tasks API.
func New(cfg Config) (http.Handler, error) {
	basePath := normalizeBasePath(cfg.BasePath)
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the API envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, msg, fieldErrors(errs))
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		return huma.NewError(status, msg, errs...)
	}

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := chi.NewRouter()
	router.Use(hlog.NewHandler(logger))
	router.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	router.Use(cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler)
	router.Use(newAuthMiddleware(basePath, auth.NewGate(cfg.Auth)))
	router.Use(captureBody)

	hcfg := huma.DefaultConfig("Lunar Tasks API", "1.0.0")
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = "" // custom Swagger UI below
	hcfg.SchemasPath = ""
	// No $schema link transformer.
	hcfg.CreateHooks = nil
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerTasks(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func normalizeBasePath(basePath string) string {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return DefaultBasePath
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	return strings.TrimRight(basePath, "/")
}

func newAPIError(status int, message string, details []FieldError) huma.StatusError {
	return &apiError{
		status:  status,
		Message: message,
		Details: details,
	}
}

// maxBodyBytes caps request payloads read by captureBody.
const maxBodyBytes = 1 << 20

// captureBody buffers the request body into the context for the
// hand-written validators. Oversized bodies are rejected with 413.
func captureBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				respondStatusError(w, newAPIError(http.StatusRequestEntityTooLarge, "Request body too large", nil))
				return
			}
			respondStatusError(w, newAPIError(http.StatusBadRequest, "Unreadable request body", nil))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(data))
		ctx := context.WithValue(r.Context(), bodyBytesKey{}, data)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func fieldErrors(errs []error) []FieldError {
	var out []FieldError
	for _, err := range errs {
		if err == nil {
			continue
		}
		var ed *huma.ErrorDetail
		if errors.As(err, &ed) {
			out = append(out, FieldError{Field: ed.Location, Message: ed.Message})
			continue
		}
		out = append(out, FieldError{Message: err.Error()})
	}
	return out
}

// handleError maps engine, gate and validation errors onto the envelope.
// Raw errors are logged and never returned to the client.
func handleError(ctx context.Context, err error) huma.StatusError {
	if err == nil {
		return nil
	}
	log := zerolog.Ctx(ctx)
	var ae *auth.Error
	if errors.As(err, &ae) {
		status := ae.Kind.Status()
		if status >= http.StatusInternalServerError {
			log.Error().Err(err).Msg("authorization unavailable")
		} else {
			log.Warn().Err(err).Int("status", status).Msg("authorization rejected")
		}
		return newAPIError(status, ae.Kind.Message(), nil)
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, ve.Message, ve.Fields)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "Task not found", nil)
	}
	log.Error().Err(err).Msg("request failed")
	return newAPIError(http.StatusInternalServerError, "Internal Server Error", nil)
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join("/", basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
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
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	healthPath := path.Join("/", basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete} {
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
	specURL := path.Join("/", basePath, "openapi.json")
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Lunar Tasks API Docs</title>
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
      Authenticate with Authorization: Bearer &lt;token&gt;.
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

// jsonRequestBody documents a payload without enforcing it: operations using
// it set SkipValidateBody and run their own validator on the captured bytes,
// including the empty-body case.
func jsonRequestBody(schema *huma.Schema) *huma.RequestBody {
	return &huma.RequestBody{
		Content: map[string]*huma.MediaType{
			"application/json": {Schema: schema},
		},
	}
}

func registerTasks(api huma.API, e engine.Engine) {
	registry := api.OpenAPI().Components.Schemas
	createSchema := registry.Schema(reflect.TypeOf(CreateTaskRequest{}), true, "CreateTaskRequest")
	updateSchema := registry.Schema(reflect.TypeOf(UpdateTaskRequest{}), true, "UpdateTaskRequest")
	deleteSchema := registry.Schema(reflect.TypeOf(DeleteTaskRequest{}), true, "DeleteTaskRequest")
	gated := []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusInternalServerError}

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
		Errors:      gated,
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []TaskResponse `json:"body"`
	}, error) {
		tasks, err := e.ListTasks(context.WithoutCancel(ctx))
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body []TaskResponse `json:"body"`
		}{Body: mapTasks(tasks)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{identifier}",
		Summary:     "Get task by identifier",
		Description: "The identifier is matched case-insensitively.",
		Errors:      append([]int{http.StatusNotFound}, gated...),
	}, func(ctx context.Context, input *struct {
		Identifier string `path:"identifier" example:"TASK-0001"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		t, err := e.GetTask(context.WithoutCancel(ctx), input.Identifier)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:      "create-task",
		Method:           http.MethodPost,
		Path:             "/tasks",
		Summary:          "Create task",
		DefaultStatus:    http.StatusCreated,
		RequestBody:      jsonRequestBody(createSchema),
		SkipValidateBody: true,
		Errors:           append([]int{http.StatusBadRequest}, gated...),
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		opts, err := validateCreate(bodyBytes(ctx))
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if cred, ok := credentialFromContext(ctx); ok {
			opts.Token = cred.Token
		}
		t, err := e.CreateTask(context.WithoutCancel(ctx), opts)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:      "update-task",
		Method:           http.MethodPut,
		Path:             "/tasks",
		Summary:          "Update task",
		Description:      "Only fields present in the payload change. userPriority is recomputed when priority is sent.",
		RequestBody:      jsonRequestBody(updateSchema),
		SkipValidateBody: true,
		Errors:           append([]int{http.StatusBadRequest, http.StatusNotFound}, gated...),
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		opts, err := validateUpdate(bodyBytes(ctx))
		if err != nil {
			return nil, handleError(ctx, err)
		}
		t, err := e.UpdateTask(context.WithoutCancel(ctx), opts)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-tasks",
		Method:      http.MethodDelete,
		Path:        "/tasks",
		Summary:     "Delete one task or many",
		Description: "An object deletes one task and returns it. An array deletes every listed task and returns {count}.",
		RequestBody: jsonRequestBody(&huma.Schema{
			OneOf: []*huma.Schema{
				deleteSchema,
				{Type: huma.TypeArray, Items: deleteSchema},
			},
		}),
		SkipValidateBody: true,
		Errors:           append([]int{http.StatusBadRequest, http.StatusNotFound}, gated...),
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body any `json:"body"`
	}, error) {
		targets, bulk, err := validateDelete(bodyBytes(ctx))
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if bulk {
			ids := make([]string, 0, len(targets))
			actorID := ""
			for _, t := range targets {
				ids = append(ids, t.ID)
				if actorID == "" {
					actorID = t.UserID
				}
			}
			count, err := e.DeleteTasks(context.WithoutCancel(ctx), ids, actorID)
			if err != nil {
				return nil, handleError(ctx, err)
			}
			return &struct {
				Body any `json:"body"`
			}{Body: DeleteManyResponse{Count: count}}, nil
		}
		deleted, err := e.DeleteTask(context.WithoutCancel(ctx), targets[0].ID, targets[0].UserID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body any `json:"body"`
		}{Body: taskResponse(deleted)}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	return nil
}
