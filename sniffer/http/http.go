package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chzchzchz/sniffrx/dsp"
	"github.com/chzchzchz/sniffrx/sniffer"
	"github.com/chzchzchz/sniffrx/store"
)

// ServeHttp serves the engine API on serv until ctx is done. Sinks opened
// through the API are files in sinkDir.
func ServeHttp(ctx context.Context, e *sniffer.Engine, serv, sinkDir string) error {
	srv := &http.Server{Addr: serv, Handler: NewHandler(e, sinkDir)}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(sctx)
	}()
	log.Printf("[http] serving on %s", serv)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// NewHandler serves the engine API. An empty sinkDir disables opening sinks.
func NewHandler(e *sniffer.Engine, sinkDir string) http.Handler {
	h := &handler{e: e, sinkDir: sinkDir}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", h.handleStatus)
	mux.HandleFunc("/api/messages", h.handleMessages)
	mux.HandleFunc("/api/live", h.handleLive)
	mux.HandleFunc("/api/config", h.handleConfig)
	mux.HandleFunc("/api/clear", h.handleClear)
	mux.HandleFunc("/api/sink", h.handleSink)
	mux.HandleFunc("/api/export", h.handleExport)
	mux.HandleFunc("/api/events", h.handleEvents)
	mux.Handle("/", newIndexHandler(h))
	return mux
}

type handler struct {
	e        *sniffer.Engine
	sinkDir  string
	upgrader websocket.Upgrader
}

var errBadSinkName = errors.New("sink must be a plain file name")

// sinkPath places a client supplied file name inside the sink directory.
func (h *handler) sinkPath(name string) (string, error) {
	if name == "" || name == "." || name == ".." || filepath.IsAbs(name) ||
		name != filepath.Base(name) || strings.ContainsAny(name, `/\`) {
		return "", errBadSinkName
	}
	return filepath.Join(h.sinkDir, name), nil
}

type Status struct {
	State      sniffer.State `json:"state"`
	Cursor     int64         `json:"cursor"`
	Messages   int           `json:"messages"`
	Config     dsp.Config    `json:"config"`
	SinkActive bool          `json:"sink_active"`
	Watermark  int64         `json:"watermark"`
}

// RenderedMessage is a message with its bits in the requested view.
type RenderedMessage struct {
	Index int    `json:"index"`
	Start int64  `json:"start"`
	End   int64  `json:"end"`
	Pause int64  `json:"pause"`
	Text  string `json:"text"`
}

type LiveWindow struct {
	Begin int64     `json:"begin"`
	Mags  []float32 `json:"mags"`
}

type SinkRequest struct {
	// Path is a file name inside the sink directory.
	Path string `json:"path"`
	View string `json:"view"`
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[http] %v", err)
	}
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func queryInt(r *http.Request, key string, def int64) (int64, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func queryFormatter(r *http.Request) (sniffer.Formatter, error) {
	view := r.URL.Query().Get("view")
	if view == "" {
		return sniffer.Bits, nil
	}
	return sniffer.FormatterByName(view)
}

func (h *handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, h.status())
}

func (h *handler) status() Status {
	return Status{
		State:      h.e.State(),
		Cursor:     h.e.Cursor(),
		Messages:   h.e.MessageCount(),
		Config:     h.e.Config(),
		SinkActive: h.e.SinkActive(),
		Watermark:  h.e.Live().Watermark(),
	}
}

func (h *handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	f, err := queryFormatter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	from, err := queryInt(r, "from", 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := queryInt(r, "to", int64(h.e.MessageCount()))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	msgs := h.e.Messages(int(from), int(to))
	if from < 0 {
		from = 0
	}
	out := make([]RenderedMessage, len(msgs))
	for i, m := range msgs {
		out[i] = RenderedMessage{
			Index: int(from) + i,
			Start: m.Start,
			End:   m.End,
			Pause: m.Pause,
			Text:  f.Format(m),
		}
	}
	writeJSON(w, out)
}

func (h *handler) handleLive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	begin, err := queryInt(r, "begin", h.e.Live().Watermark())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	end, err := queryInt(r, "end", h.e.Live().End())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	lo, mags := h.e.LiveWindow(begin, end)
	writeJSON(w, LiveWindow{Begin: lo, Mags: mags})
}

func (h *handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, h.e.Config())
	case http.MethodPost:
		// Absent fields keep their current value.
		cfg := h.e.Config()
		if err := readJSON(r, &cfg); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := h.e.Reconfigure(cfg); err != nil {
			code := http.StatusInternalServerError
			if errors.Is(err, dsp.ErrBadConfig) {
				code = http.StatusBadRequest
			}
			http.Error(w, err.Error(), code)
			return
		}
		writeJSON(w, cfg)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	h.e.Clear()
	// Form posts from the index page go back to it.
	if r.URL.Query().Get("redirect") == "/" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) handleSink(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req SinkRequest
		if err := readJSON(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.View == "" {
			req.View = "bits"
		}
		f, err := sniffer.FormatterByName(req.View)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if h.sinkDir == "" {
			http.Error(w, "no sink directory configured", http.StatusForbidden)
			return
		}
		fpath, err := h.sinkPath(req.Path)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s, err := store.OpenFileSink(fpath, f)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		h.e.SetOutputSink(s)
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		h.e.SetOutputSink(nil)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleExport writes the whole log as CSV. Exporting is refused while a
// sink persists messages as they are sealed.
func (h *handler) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.e.SinkActive() {
		http.Error(w, "messages are already written to a sink", http.StatusConflict)
		return
	}
	f, err := queryFormatter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	if err := store.ExportCSV(w, h.e.Messages(0, h.e.MessageCount()), f); err != nil {
		log.Printf("[http] export: %v", err)
	}
}

func (h *handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	// Subscribe first so nothing published after the handshake is missed.
	sub := h.e.Subscribe()
	defer sub.Close()
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	closedc := make(chan struct{})
	go func() {
		defer close(closedc)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()
	for {
		select {
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-closedc:
			return
		}
	}
}
