package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// only 限定请求方法
func only(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != method {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h(w, req)
	}
}

// RegisterHealthRoutes 健康检查
func (r *Router) RegisterHealthRoutes() {
	r.Handle("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, Ok(map[string]any{"status": "ok"}))
	})
}

// RegisterVitalsRoutes 注册生命体征看板、告警和计划管理路由
func (r *Router) RegisterVitalsRoutes(h *VitalsHandler) {
	const base = "/api/v1/vitals"

	// dashboard
	r.Handle(base+"/dashboard", only(http.MethodGet, h.GetDashboard))
	r.Handle(base+"/dashboard/export", only(http.MethodGet, h.ExportDashboard))

	// alerts
	r.Handle(base+"/alerts", only(http.MethodGet, h.GetActiveAlerts))
	r.Handle(base+"/alerts/history", only(http.MethodGet, h.GetAlertHistory))
	r.Handle(base+"/alerts/", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		episodeID, action := pathID(req.URL.Path, base+"/alerts/")
		if episodeID == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch action {
		case "dismiss":
			h.DismissAlert(w, req, episodeID)
		case "acknowledge":
			h.AcknowledgeAlert(w, req, episodeID)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	r.Handle(base+"/scope", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			h.GetScope(w, req)
		case http.MethodPut:
			h.SetScope(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	// schedules
	r.Handle(base+"/admissions/", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		id, action := pathID(req.URL.Path, base+"/admissions/")
		if id == "" || action != "schedule" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.CreateSchedule(w, req, id)
	})
	r.Handle(base+"/schedules/", func(w http.ResponseWriter, req *http.Request) {
		id, action := pathID(req.URL.Path, base+"/schedules/")
		if id == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch {
		case action == "" && req.Method == http.MethodPut:
			h.UpdateSchedule(w, req, id)
		case action == "stop" && req.Method == http.MethodPost:
			h.StopSchedule(w, req, id)
		case action == "record" && req.Method == http.MethodPost:
			h.RecordVitals(w, req, id)
		case action == "" || action == "stop" || action == "record":
			w.WriteHeader(http.StatusMethodNotAllowed)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	// status / intervals
	r.Handle(base+"/status", only(http.MethodGet, h.GetStatus))
	r.Handle(base+"/intervals/preview", only(http.MethodGet, h.PreviewIntervals))

	// settings
	r.Handle(base+"/alert-settings", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			h.GetAlertSettings(w, req)
		case http.MethodPut:
			h.SaveAlertSettings(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}
