package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

const adminShutdownTimeout = 5 * time.Second

// serviceStatus is one service entry of the /status response, and the
// body of the /services/{name} response.
type serviceStatus struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Port string `json:"port"`
}

// statusResponse is the /status admin response.
type statusResponse struct {
	Name     string          `json:"name"`
	Sessions int             `json:"sessions"`
	Services []serviceStatus `json:"services"`
}

// adminRouter builds the read-only status router for sup. It never
// exposes session parameters or capabilities, only counts and the
// publicly queryable service descriptions.
func (sup *Supervisor) adminRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		resp := statusResponse{
			Name:     sup.Server.Name,
			Sessions: sup.Server.Sessions.Len(),
		}
		for _, svc := range sup.Server.Services {
			resp.Services = append(resp.Services, serviceStatus{
				Name: svc.Name,
				Type: svc.Type,
				Port: svc.Port,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	r.Get("/services/{name}", func(w http.ResponseWriter, req *http.Request) {
		name := chi.URLParam(req, "name")
		svc := sup.Server.FindService(name)
		if svc == nil {
			http.Error(w, "unknown service", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(serviceStatus{Name: svc.Name, Type: svc.Type, Port: svc.Port})
	})

	return r
}

// serveAdmin runs the admin status endpoint on addr until ctx is
// cancelled. A disabled admin endpoint (empty addr) is handled by the
// caller, which simply skips calling this.
func (sup *Supervisor) serveAdmin(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: sup.adminRouter()}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), adminShutdownTimeout)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	log.Info().Str("addr", addr).Msg("supervisor: admin status endpoint listening")
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
