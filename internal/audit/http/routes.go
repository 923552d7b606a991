package audithttp

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/pronas-pcd/pronas-core/internal/identity"
)

const exportLimit = 10
const exportWindow = time.Minute

// MountRoutes registers the timeline and CSV export endpoints. The caller
// wraps them with the audit-read and audit-export route guards.
func (h *Handler) MountRoutes(r chi.Router, requireRead, requireExport func(http.Handler) http.Handler) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(exportLimit, exportWindow,
		httprate.WithKeyFuncs(exportRateKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)
	r.Group(func(gr chi.Router) {
		gr.Use(requireRead)
		gr.Get("/", h.handleTimeline)
	})
	r.Group(func(gr chi.Router) {
		gr.Use(requireExport, limiter)
		gr.Get("/export.csv", h.handleExport)
	})
}

// exportRateKey keys the export limiter by actor, falling back to client IP
// for anything that slipped past authentication.
func exportRateKey(r *http.Request) (string, error) {
	if ident := identity.FromContext(r.Context()); ident != nil {
		if email := strings.TrimSpace(ident.Email); email != "" {
			return "actor:" + email, nil
		}
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
