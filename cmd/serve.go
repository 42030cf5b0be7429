package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leads-cli/internal/model"
	"github.com/sells-group/leads-cli/internal/rerank"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the workorder API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(ctx, env, cfg.Upload.Dir),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// server carries the long-lived dependencies of the HTTP handlers. baseCtx
// outlives individual requests so background processing survives the
// request that triggered it.
type server struct {
	env       *pipelineEnv
	baseCtx   context.Context
	uploadDir string
}

func newRouter(ctx context.Context, env *pipelineEnv, uploadDir string) http.Handler {
	s := &server{env: env, baseCtx: ctx, uploadDir: uploadDir}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/workorders", func(r chi.Router) {
		r.Get("/", s.handleListWorkorders)
		r.Post("/upload", s.handleUpload)
		r.Get("/{workorderID}", s.handleGetWorkorder)
		r.Post("/{workorderID}/rerank", s.handleRerank)
		r.Post("/{workorderID}/leads/{leadID}/status", s.handleLeadStatus)
	})

	return r
}

func (s *server) handleListWorkorders(w http.ResponseWriter, r *http.Request) {
	workorders, err := s.env.Store.ListWorkorders(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if workorders == nil {
		workorders = []model.Workorder{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"workorders": workorders})
}

func (s *server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, "create upload dir")
		return
	}

	// Saved under a fresh UUID so repeated uploads of the same filename
	// never collide.
	dst := filepath.Join(s.uploadDir, uuid.New().String()+filepath.Ext(header.Filename))
	out, err := os.Create(dst)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "save upload")
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		writeError(w, http.StatusInternalServerError, "save upload")
		return
	}
	out.Close()

	workorder, err := s.env.Store.CreateWorkorder(r.Context(), header.Filename)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	leads, err := leadsFromFile(workorder.ID, dst)
	if err != nil {
		_ = s.env.Store.UpdateWorkorderStatus(r.Context(), workorder.ID, model.WorkorderFailed)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.env.Store.InsertLeads(r.Context(), leads); err != nil {
		writeStoreError(w, err)
		return
	}

	// Enrichment runs in the background; poll GET /workorders/{id} for
	// progress.
	go func() {
		if err := s.env.Processor.ProcessWorkorder(s.baseCtx, workorder.ID); err != nil {
			zap.L().Error("upload processing failed",
				zap.String("workorder_id", workorder.ID), zap.Error(err))
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"workorder": workorder,
		"leads":     len(leads),
	})
}

func (s *server) handleGetWorkorder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "workorderID")

	workorder, err := s.env.Store.GetWorkorder(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	leads, err := s.env.Store.LeadsByWorkorder(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if leads == nil {
		leads = []model.Lead{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"workorder": workorder,
		"leads":     leads,
	})
}

func (s *server) handleRerank(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "workorderID")

	if _, err := s.env.Store.GetWorkorder(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	leads, err := s.env.Store.LeadsByWorkorder(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	order := rerank.Rerank(leads)
	if err := s.env.Store.SetDisplayOrder(r.Context(), id, order); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"workorder_id": id,
		"order":        order,
	})
}

func (s *server) handleLeadStatus(w http.ResponseWriter, r *http.Request) {
	workorderID := chi.URLParam(r, "workorderID")
	leadID := chi.URLParam(r, "leadID")

	var req struct {
		Status model.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !model.ValidStatus(req.Status) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid status %q", req.Status))
		return
	}

	lead, err := s.env.Store.GetLead(r.Context(), leadID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if lead.WorkorderID != workorderID {
		writeError(w, http.StatusNotFound, fmt.Sprintf("lead not found: %s", leadID))
		return
	}

	if err := s.env.Store.UpdateLeadStatus(r.Context(), leadID, req.Status); err != nil {
		writeStoreError(w, err)
		return
	}
	lead.Status = req.Status

	writeJSON(w, http.StatusOK, map[string]any{"lead": lead})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeStoreError(w http.ResponseWriter, err error) {
	if strings.Contains(err.Error(), "not found") {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	zap.L().Error("store error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
