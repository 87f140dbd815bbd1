package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/goliatone/go-mailhooks/postmark"
)

// inventoryClient is the slice of postmark.Client the proxy endpoints
// use, extracted so tests can stub the upstream API.
type inventoryClient interface {
	ListServers(ctx context.Context, offset int, count int) ([]postmark.Server, error)
	ListTemplates(ctx context.Context, offset int, count int) ([]postmark.Template, error)
	GetTemplate(ctx context.Context, templateAlias string) (postmark.Template, error)
}

// inventoryAPI proxies Postmark server/template inventory for form
// builders. Failures degrade to empty lists with success=false so the
// consuming UI renders an empty dropdown instead of an error page.
type inventoryAPI struct {
	client inventoryClient
}

func (a *inventoryAPI) listServers(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{"success": false, "servers": []postmark.Choice{}}
	servers, err := a.client.ListServers(r.Context(), 0, 0)
	if err != nil {
		response["message"] = err.Error()
		writeJSON(w, http.StatusOK, response)
		return
	}
	response["success"] = true
	response["servers"] = postmark.FormatServerChoices(servers)
	writeJSON(w, http.StatusOK, response)
}

func (a *inventoryAPI) listTemplates(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{"success": false, "templates": []postmark.Choice{}}
	templates, err := a.client.ListTemplates(r.Context(), 0, 0)
	if err != nil {
		response["message"] = err.Error()
		writeJSON(w, http.StatusOK, response)
		return
	}
	response["success"] = true
	response["templates"] = postmark.FormatTemplateChoices(templates)
	writeJSON(w, http.StatusOK, response)
}

func (a *inventoryAPI) templateVariables(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{"success": false, "variables": []string{}}
	alias := chi.URLParam(r, "alias")
	template, err := a.client.GetTemplate(r.Context(), alias)
	if err != nil {
		response["message"] = err.Error()
		writeJSON(w, http.StatusOK, response)
		return
	}
	response["success"] = true
	response["variables"] = postmark.TemplateVariables(template)
	response["template_name"] = template.Name
	writeJSON(w, http.StatusOK, response)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
