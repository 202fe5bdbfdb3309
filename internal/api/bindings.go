package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/sysbind/internal/binding"
	"github.com/kalambet/sysbind/internal/bootup"
	"github.com/kalambet/sysbind/internal/storage"
)

const maxRequestBodySize = 64 << 10 // 64KB

// Bindings looks up the settings exposed by the server. Implemented by
// binding.Screen.
type Bindings interface {
	Get(key string) (*binding.Binding, bool)
	Bindings() []*binding.Binding
}

// BootupRegistry enumerates and removes bootup entries. Implemented by
// bootup.Registry.
type BootupRegistry interface {
	All(ctx context.Context, category string) ([]bootup.Entry, error)
	Delete(ctx context.Context, category, key string) error
}

// Restorer replays bootup entries. Implemented by bootup.Restorer.
type Restorer interface {
	Run(ctx context.Context, category string) (bootup.RestoreReport, error)
}

type AppDeps struct {
	Screen   Bindings
	Registry BootupRegistry
	Restorer Restorer
	Token    string
}

// SetRequest is the body of PUT /bindings/{key}. Value is a JSON string,
// or a JSON bool for toggles.
type SetRequest struct {
	Value json.RawMessage `json:"value"`
}

// SetResponse reports the value applied and the outcome per control file.
type SetResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	binding.WriteReport
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/bindings", handleListBindings(deps))
		r.Get("/bindings/{key}", handleGetBinding(deps))
		r.Put("/bindings/{key}", handleSetBinding(deps))
		r.Get("/bootup", handleListBootup(deps))
		r.Delete("/bootup/{category}/{key}", handleDeleteBootup(deps))
		r.Post("/bootup/restore", handleRestore(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleListBindings(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, snapshots(deps))
	}
}

func handleGetBinding(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		b, ok := deps.Screen.Get(key)
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "binding %q not found", key)
			return
		}
		b.InitValue(r.Context())
		writeJSON(w, http.StatusOK, b.Snapshot())
	}
}

func handleSetBinding(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		b, ok := deps.Screen.Get(key)
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "binding %q not found", key)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req SetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if len(req.Value) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "value is required")
			return
		}

		v, err := parseValue(b, req.Value)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if !b.IsSupported() {
			httpError(w, http.StatusConflict, "unsupported", "binding %q has no control file on this device", key)
			return
		}

		report := b.Apply(r.Context(), v)
		writeJSON(w, http.StatusOK, SetResponse{Key: key, Value: v.String(), WriteReport: report})
	}
}

// parseValue converts a request value into a binding value of the right kind.
func parseValue(b *binding.Binding, raw json.RawMessage) (binding.Value, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var flag bool
		if b.Kind() != binding.KindToggle || json.Unmarshal(raw, &flag) != nil {
			return binding.Value{}, fmt.Errorf("value must be a string")
		}
		return binding.Toggle(flag), nil
	}

	switch b.Kind() {
	case binding.KindToggle:
		checked, err := binding.ParseToggle(s)
		if err != nil {
			return binding.Value{}, err
		}
		return binding.Toggle(checked), nil
	default:
		if s == "" {
			return binding.Value{}, fmt.Errorf("value must not be empty")
		}
		v := binding.Option(s)
		if !b.Allows(v) {
			return binding.Value{}, fmt.Errorf("value %q is not one of %v", s, b.Choices())
		}
		return v, nil
	}
}

func handleListBootup(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := deps.Registry.All(r.Context(), r.URL.Query().Get("category"))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list bootup entries: %v", err)
			return
		}
		if entries == nil {
			entries = []bootup.Entry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleDeleteBootup(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		category := chi.URLParam(r, "category")
		key := chi.URLParam(r, "key")

		err := deps.Registry.Delete(r.Context(), category, key)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "bootup entry %s/%s not found", category, key)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete bootup entry: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleRestore(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := deps.Restorer.Run(r.Context(), r.URL.Query().Get("category"))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "restore failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
