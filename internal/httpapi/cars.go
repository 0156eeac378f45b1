package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/carbase/carbase/internal/catalog"
	"github.com/carbase/carbase/internal/common/logger"
	"github.com/gorilla/mux"
)

// CarHandler /cars 与 /makes 路由的 HTTP 适配层。
// 只做解码/校验转发/编码，领域规则全部在 catalog.Service。
type CarHandler struct {
	svc *catalog.Service
	log logger.Logger
}

func NewCarHandler(svc *catalog.Service, log logger.Logger) *CarHandler {
	return &CarHandler{svc: svc, log: log}
}

type carCreateRequest struct {
	CarModelID uint   `json:"car_model_id"`
	Make       string `json:"make"`
	Model      string `json:"model"`
	Year       int    `json:"year"`
	VIN        string `json:"vin"`
}

type carUpdateRequest struct {
	Make  *string `json:"make"`
	Model *string `json:"model"`
	Year  *int    `json:"year"`
}

type carListResponse struct {
	Items      []catalog.CarView `json:"items"`
	NextCursor *uint64           `json:"next_cursor"`
	Limit      int               `json:"limit"`
}

func (h *CarHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req carCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	view, err := h.svc.CreateCar(r.Context(), catalog.CreateCarInput{
		CarModelID: req.CarModelID,
		Make:       strings.TrimSpace(req.Make),
		Model:      strings.TrimSpace(req.Model),
		Year:       req.Year,
		VIN:        strings.TrimSpace(req.VIN),
	})
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *CarHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	view, err := h.svc.GetCar(r.Context(), id, queryFields(r))
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *CarHandler) List(w http.ResponseWriter, r *http.Request) {
	in := catalog.ListCarsInput{
		Fields: queryFields(r),
		Make:   r.URL.Query().Get("make"),
		Model:  r.URL.Query().Get("model"),
	}

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		in.Limit = n
	}
	if v := r.URL.Query().Get("cursor"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "cursor must be a non-negative integer")
			return
		}
		in.Cursor = n
	}
	if v := r.URL.Query().Get("year"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "year must be an integer")
			return
		}
		in.Year = n
	}

	page, err := h.svc.ListCars(r.Context(), in)
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	if page.Items == nil {
		page.Items = []catalog.CarView{}
	}
	writeJSON(w, http.StatusOK, carListResponse{
		Items:      page.Items,
		NextCursor: page.NextCursor,
		Limit:      page.Limit,
	})
}

func (h *CarHandler) Patch(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, false)
}

func (h *CarHandler) Put(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, true)
}

func (h *CarHandler) update(w http.ResponseWriter, r *http.Request, replace bool) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req carUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	view, err := h.svc.UpdateCar(r.Context(), id, catalog.UpdateCarInput{
		Make:  req.Make,
		Model: req.Model,
		Year:  req.Year,
	}, replace)
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *CarHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteCar(r.Context(), id); err != nil {
		writeCatalogError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteMake 删除整个品牌子树（级联）。
func (h *CarHandler) DeleteMake(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteMake(r.Context(), id); err != nil {
		writeCatalogError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	raw := mux.Vars(r)["id"]
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || n == 0 {
		writeError(w, http.StatusBadRequest, "id must be a positive integer")
		return 0, false
	}
	return uint(n), true
}

// queryFields 支持 ?fields=make,model 与 ?fields=make&fields=model 两种写法。
func queryFields(r *http.Request) []string {
	var out []string
	for _, raw := range r.URL.Query()["fields"] {
		for _, f := range strings.Split(raw, ",") {
			f = strings.TrimSpace(f)
			if f != "" {
				out = append(out, f)
			}
		}
	}
	return out
}
