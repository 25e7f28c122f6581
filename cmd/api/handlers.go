package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/WessleyAI/geoaudit/engine/dashboard"
	"github.com/WessleyAI/geoaudit/engine/domain"
	"github.com/WessleyAI/geoaudit/engine/jsonld"
	"github.com/WessleyAI/geoaudit/pkg/config"
	"github.com/WessleyAI/geoaudit/pkg/metrics"
	"github.com/WessleyAI/geoaudit/pkg/mid"
	"github.com/WessleyAI/geoaudit/pkg/repo"
	"github.com/WessleyAI/geoaudit/pkg/wordpress"
)

const maxBody = 1 << 20

// api holds the handlers of the dashboard routes.
type api struct {
	svc    *dashboard.Service
	logger *slog.Logger
}

func newHandler(svc *dashboard.Service, m *metrics.Metrics, sc config.ServerConfig, logger *slog.Logger) http.Handler {
	a := &api{svc: svc, logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)

	mux.HandleFunc("POST /api/audits", a.auth(a.createAudit))
	mux.HandleFunc("GET /api/audits", a.auth(a.listAudits))
	mux.HandleFunc("GET /api/audits/stats", a.auth(a.stats))
	mux.HandleFunc("GET /api/audits/{id}", a.auth(a.getAudit))
	mux.HandleFunc("DELETE /api/audits/{id}", a.auth(a.deleteAudit))
	mux.HandleFunc("GET /api/audits/{id}/similar", a.auth(a.similarAudits))
	mux.HandleFunc("GET /api/websites", a.auth(a.listWebsites))
	mux.HandleFunc("GET /api/websites/{id}/audits", a.auth(a.websiteAudits))

	mux.HandleFunc("POST /api/integrations", a.auth(a.connect))
	mux.HandleFunc("GET /api/integrations", a.auth(a.listIntegrations))
	mux.HandleFunc("DELETE /api/integrations/{id}", a.auth(a.deleteIntegration))
	mux.HandleFunc("GET /api/integrations/{id}/posts", a.auth(a.listPosts))
	mux.HandleFunc("POST /api/integrations/{id}/posts/{postID}/audit", a.auth(a.auditPost))
	mux.HandleFunc("GET /api/integrations/{id}/post-audits", a.auth(a.postAudits))
	mux.HandleFunc("POST /api/integrations/{id}/posts/{postID}/publish", a.auth(a.publish))
	mux.HandleFunc("GET /api/publications", a.auth(a.listPublications))

	mux.HandleFunc("POST /api/schema/preview", a.previewSchema)
	mux.Handle("GET /metrics", m.Handler())

	return mid.Chain(mux,
		mid.Recover(logger),
		mid.RequestID(),
		mid.User(),
		mid.Logger(logger),
		mid.OTel("geoaudit-api"),
		mid.Secure(sc.Dev),
		mid.CORS(sc.CORSOrigin),
		m.Middleware,
	)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusOf maps service errors to an HTTP status and a client-safe message.
func statusOf(err error) (int, string) {
	var ve *domain.ValidationError
	var we *wordpress.APIError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Error()
	case errors.Is(err, repo.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrNoAudit), errors.Is(err, domain.ErrNotConnected), errors.Is(err, repo.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, wordpress.ErrUnauthorized):
		return http.StatusBadGateway, "wordpress rejected the credentials"
	case errors.As(err, &we):
		return http.StatusBadGateway, fmt.Sprintf("wordpress answered %d", we.Status)
	case errors.Is(err, dashboard.ErrIndexDisabled):
		return http.StatusServiceUnavailable, "similar-audit search is not enabled"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusOf(err)
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed", "path", r.URL.Path, "request_id", mid.RequestIDFrom(r.Context()), "err", err)
	} else {
		a.logger.Debug("request rejected", "path", r.URL.Path, "status", status, "err", err)
	}
	writeError(w, status, msg)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// auth rejects anonymous requests and passes the signed-in user on.
func (a *api) auth(h func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := mid.UserFrom(r.Context())
		if user == "" {
			writeError(w, http.StatusUnauthorized, domain.ErrUnauthenticated.Error())
			return
		}
		h(w, r, user)
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil && v > 0 {
		return v
	}
	return fallback
}

func postID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := domain.ParsePostID(r.PathValue("postID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	return id, true
}

// --- Handlers ---

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// AuditRequest is the JSON body for POST /api/audits.
type AuditRequest struct {
	URL string `json:"url"`
}

func (a *api) createAudit(w http.ResponseWriter, r *http.Request, user string) {
	var req AuditRequest
	if !decode(w, r, &req) {
		return
	}
	out, err := a.svc.AuditWebsite(r.Context(), user, req.URL)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (a *api) listAudits(w http.ResponseWriter, r *http.Request, user string) {
	out, err := a.svc.ListAudits(r.Context(), user, queryInt(r, "limit", 0))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) stats(w http.ResponseWriter, r *http.Request, user string) {
	out, err := a.svc.Stats(r.Context(), user)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) getAudit(w http.ResponseWriter, r *http.Request, user string) {
	out, err := a.svc.GetAudit(r.Context(), user, r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) deleteAudit(w http.ResponseWriter, r *http.Request, user string) {
	if err := a.svc.DeleteAudit(r.Context(), user, r.PathValue("id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) similarAudits(w http.ResponseWriter, r *http.Request, user string) {
	out, err := a.svc.SimilarAudits(r.Context(), user, r.PathValue("id"), queryInt(r, "k", 5))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) listWebsites(w http.ResponseWriter, r *http.Request, user string) {
	out, err := a.svc.ListWebsites(r.Context(), user)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) websiteAudits(w http.ResponseWriter, r *http.Request, user string) {
	out, err := a.svc.WebsiteAudits(r.Context(), user, r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) connect(w http.ResponseWriter, r *http.Request, user string) {
	var creds domain.Credentials
	if !decode(w, r, &creds) {
		return
	}
	out, err := a.svc.ConnectWordPress(r.Context(), user, creds)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (a *api) listIntegrations(w http.ResponseWriter, r *http.Request, user string) {
	out, err := a.svc.ListIntegrations(r.Context(), user)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) deleteIntegration(w http.ResponseWriter, r *http.Request, user string) {
	if err := a.svc.DeleteIntegration(r.Context(), user, r.PathValue("id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) listPosts(w http.ResponseWriter, r *http.Request, user string) {
	opts := wordpress.ListOpts{
		Page:    queryInt(r, "page", 1),
		PerPage: queryInt(r, "per_page", 20),
		Search:  r.URL.Query().Get("search"),
	}
	out, err := a.svc.ListPosts(r.Context(), user, r.PathValue("id"), opts)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) auditPost(w http.ResponseWriter, r *http.Request, user string) {
	id, ok := postID(w, r)
	if !ok {
		return
	}
	out, err := a.svc.AuditPost(r.Context(), user, r.PathValue("id"), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) postAudits(w http.ResponseWriter, r *http.Request, user string) {
	out, err := a.svc.PostAudits(r.Context(), user, r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) publish(w http.ResponseWriter, r *http.Request, user string) {
	id, ok := postID(w, r)
	if !ok {
		return
	}
	out, err := a.svc.PublishPostSchema(r.Context(), user, r.PathValue("id"), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) listPublications(w http.ResponseWriter, r *http.Request, user string) {
	out, err := a.svc.ListPublications(r.Context(), user)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// PreviewResponse carries the schema object and its script tag.
type PreviewResponse struct {
	Schema    jsonld.GeneratedSchema `json:"schema"`
	ScriptTag string                 `json:"scriptTag"`
}

func (a *api) previewSchema(w http.ResponseWriter, r *http.Request) {
	var meta jsonld.PostMeta
	if !decode(w, r, &meta) {
		return
	}
	g, err := a.svc.PreviewSchema(meta)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	tag, err := g.ScriptTag()
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PreviewResponse{Schema: g, ScriptTag: tag})
}
