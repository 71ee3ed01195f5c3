package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/billing/pkg/catalog"
)

// listPlans returns active plans, or every plan with ?all=true.
func (rt *router) listPlans(w http.ResponseWriter, r *http.Request) {
	all := false
	if v := r.URL.Query().Get("all"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			rt.writeError(w, r, ErrInvalidQuery)
			return
		}
		all = b
	}

	list := rt.plans.ListActive
	if all {
		list = rt.plans.ListAll
	}
	plans, err := list(r.Context())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	views := make([]planView, 0, len(plans))
	for _, p := range plans {
		views = append(views, newPlanView(p))
	}
	writeData(w, http.StatusOK, views)
}

func (rt *router) createPlan(w http.ResponseWriter, r *http.Request) {
	var spec catalog.Spec
	if err := decodeJSON(r, &spec); err != nil {
		rt.writeError(w, r, err)
		return
	}
	plan, err := rt.plans.CreatePlan(r.Context(), spec)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, newPlanView(plan))
}

func (rt *router) getPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := rt.plans.GetPlan(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, newPlanView(plan))
}

func (rt *router) deletePlan(w http.ResponseWriter, r *http.Request) {
	if err := rt.plans.Delete(r.Context(), chi.URLParam(r, "code")); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *router) activatePlan(w http.ResponseWriter, r *http.Request) {
	rt.setPlanActive(w, r, rt.plans.Activate)
}

func (rt *router) deactivatePlan(w http.ResponseWriter, r *http.Request) {
	rt.setPlanActive(w, r, rt.plans.Deactivate)
}

func (rt *router) setPlanActive(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) error) {
	code := chi.URLParam(r, "code")
	if err := fn(r.Context(), code); err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.getPlan(w, r)
}
