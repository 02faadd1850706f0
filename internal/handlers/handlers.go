package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/Brownie44l1/squeezenet-api/internal/app"
	"github.com/Brownie44l1/squeezenet-api/internal/classify"
	"github.com/Brownie44l1/squeezenet-api/internal/imageio"
	"github.com/Brownie44l1/squeezenet-api/internal/model"
	"github.com/Brownie44l1/squeezenet-api/internal/samples"
	"github.com/Brownie44l1/squeezenet-api/internal/tensor"
	"go.uber.org/zap"
)

type Handler struct {
	pipeline  *classify.Pipeline
	shell     *app.Shell
	catalog   *samples.Catalog
	events    http.Handler
	maxUpload int64
	logger    *zap.Logger
}

// Options configures a Handler. Catalog and Events may be nil.
type Options struct {
	Pipeline  *classify.Pipeline
	Shell     *app.Shell
	Catalog   *samples.Catalog
	Events    http.Handler
	MaxUpload int64
	Logger    *zap.Logger
}

func NewHandler(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxUpload <= 0 {
		opts.MaxUpload = 10 << 20
	}
	return &Handler{
		pipeline:  opts.Pipeline,
		shell:     opts.Shell,
		catalog:   opts.Catalog,
		events:    opts.Events,
		maxUpload: opts.MaxUpload,
		logger:    opts.Logger,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /predict", h.Predict)
	mux.HandleFunc("POST /predict/image", h.PredictFromImage)

	mux.HandleFunc("GET /state", h.State)
	mux.HandleFunc("POST /image", h.ChooseImage)
	mux.HandleFunc("POST /capture/enable", h.EnableCapture)
	mux.HandleFunc("POST /capture/cancel", h.CancelCapture)
	mux.HandleFunc("POST /capture", h.Capture)
	mux.HandleFunc("POST /sample/random", h.RandomSample)
	mux.HandleFunc("POST /classify", h.Classify)
	mux.HandleFunc("GET /samples/{name}", h.Sample)
	if h.events != nil {
		mux.Handle("GET /ws", h.events)
	}
}

type clientCounter interface {
	Clients() int
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":      "healthy",
		"input_shape": h.pipeline.Classifier.InputShape(),
	}
	if h.catalog != nil {
		resp["samples"] = h.catalog.Len()
	}
	if c, ok := h.events.(clientCounter); ok {
		resp["ws_clients"] = c.Clients()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Predict classifies an already encoded planar tensor.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	var req model.PredictionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, h.maxUpload)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	shape := h.pipeline.Classifier.InputShape()
	if len(req.Image) != shape.Len() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Expected %d values, got %d", shape.Len(), len(req.Image)))
		return
	}
	t, err := tensor.New(shape, req.Image)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.pipeline.RunTensor(r.Context(), t)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.NewPredictionResponse(result))
}

// PredictFromImage classifies a multipart "image" upload without touching
// the shell state.
func (h *Handler) PredictFromImage(w http.ResponseWriter, r *http.Request) {
	file, _, err := h.formFile(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer file.Close()

	img, err := h.pipeline.Loader.DecodeReader(file)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Debug("image decoded",
		zap.String("request_id", RequestID(r.Context())),
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()))

	result, err := h.pipeline.RunImage(r.Context(), img)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.NewPredictionResponse(result))
}

func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.shell.Snapshot().View())
}

type imageRequest struct {
	URL string `json:"url"`
}

// ChooseImage selects a multipart upload, or a JSON {"url": ...} pointing at
// an http(s) or data URL.
func (h *Handler) ChooseImage(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req imageRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, h.maxUpload)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		if !remoteRef(req.URL) {
			writeError(w, http.StatusBadRequest, "url must be an http(s) or data URL")
			return
		}
		writeJSON(w, http.StatusOK, h.shell.ChooseFile(req.URL).View())
		return
	}

	data, mime, err := h.readUpload(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.shell.ChooseFile(imageio.DataURL(mime, data)).View())
}

func (h *Handler) EnableCapture(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.shell.EnableCapture().View())
}

func (h *Handler) CancelCapture(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.shell.CancelCapture().View())
}

// Capture accepts a camera still frame as a raw JPEG body or as a data URL
// in a text body.
func (h *Handler) Capture(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxUpload+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	if int64(len(body)) > h.maxUpload {
		writeError(w, http.StatusRequestEntityTooLarge, "Frame too large")
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "Empty frame")
		return
	}

	ref := strings.TrimSpace(string(body))
	if !strings.HasPrefix(ref, "data:") {
		ref = imageio.DataURL("image/jpeg", body)
	}

	st, err := h.shell.Capture(ref)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st.View())
}

func (h *Handler) RandomSample(w http.ResponseWriter, r *http.Request) {
	st, err := h.shell.RandomSample()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st.View())
}

func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	st, err := h.shell.Classify(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st.View())
}

func (h *Handler) Sample(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		http.NotFound(w, r)
		return
	}
	path, ok := h.catalog.Lookup(r.PathValue("name"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, path)
}

func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	file, header, err := h.formFile(w, r)
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", errors.New("Failed to read image")
	}
	return data, header.Header.Get("Content-Type"), nil
}

func (h *Handler) formFile(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		return nil, nil, errors.New("Failed to parse form")
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		return nil, nil, errors.New("No image file provided. Use 'image' as the form field name")
	}
	h.logger.Info("received file",
		zap.String("request_id", RequestID(r.Context())),
		zap.String("filename", header.Filename),
		zap.Int64("size", header.Size))
	return file, header, nil
}

// fail maps pipeline and shell errors to responses.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		de *imageio.DecodeError
		ie *model.InferenceError
	)
	switch {
	case errors.Is(err, app.ErrNoImage):
		writeError(w, http.StatusBadRequest, app.MsgNoImage)
	case errors.As(err, &de):
		writeError(w, http.StatusBadRequest, app.MsgUnreadable)
	case errors.Is(err, app.ErrSuperseded):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrCaptureDisabled):
		writeError(w, http.StatusConflict, "Capture mode is not enabled")
	case errors.Is(err, samples.ErrNoSamples):
		writeError(w, http.StatusNotFound, "No sample images available")
	case errors.As(err, &ie):
		h.logger.Error("Error during inference",
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, app.MsgInferenceError)
	default:
		h.logger.Error("request failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error")
	}
}

func remoteRef(ref string) bool {
	return strings.HasPrefix(ref, "http://") ||
		strings.HasPrefix(ref, "https://") ||
		strings.HasPrefix(ref, "data:")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
