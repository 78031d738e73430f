package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"hms-vitals/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError 校验错误 422（附字段），不存在 404，其余 200 + Fail
func writeError(w http.ResponseWriter, err error) {
	var ve *models.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, FailWith(ve.Error(), ve.Fields))
	case errors.Is(err, models.ErrNotFound):
		writeJSON(w, http.StatusNotFound, Fail(err.Error()))
	default:
		writeJSON(w, http.StatusOK, Fail(err.Error()))
	}
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

// parseInterval 解析 interval_minutes 查询参数；缺省取默认值，非整数返回校验错误
func parseInterval(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	i, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, models.NewValidationError("interval_minutes", "interval_minutes must be an integer")
	}
	return i, nil
}

// parseWardID 解析 ward_id 查询参数；空表示全部病区
func parseWardID(r *http.Request) (*int64, error) {
	raw := r.URL.Query().Get("ward_id")
	if raw == "" || raw == "null" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, models.NewValidationError("ward_id", "ward_id must be a positive integer")
	}
	return &id, nil
}

// pathID 解析 prefix 之后的 "{id}" 或 "{id}/{action}"
func pathID(path, prefix string) (id string, action string) {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	id, action, _ = strings.Cut(rest, "/")
	return id, action
}

func readBodyJSON(r *http.Request, maxBytes int64, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}
