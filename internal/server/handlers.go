package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/acostock/stocksuite/internal/utils"
	"github.com/acostock/stocksuite/pkg/batch"
	"github.com/acostock/stocksuite/pkg/qc"
	"github.com/acostock/stocksuite/pkg/storage"
	"github.com/tidwall/gjson"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		utils.Log.Debugf("Writing response failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]interface{}{"ok": false, "error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "version": Version})
}

// webhookEvent is the part of a monday webhook delivery the server reads.
type webhookEvent struct {
	Type     string
	BoardID  int64
	GroupID  string
	ItemID   int64
	ItemName string
	UserID   int64
}

// parseEvent reads an event whose ids may arrive as numbers or strings.
func parseEvent(body []byte) webhookEvent {
	ev := gjson.GetBytes(body, "event")
	itemID := ev.Get("pulseId").Int()
	if itemID == 0 {
		itemID = ev.Get("itemId").Int()
	}
	name := ev.Get("pulseName").String()
	if name == "" {
		name = ev.Get("value.name").String()
	}
	return webhookEvent{
		Type:     ev.Get("type").String(),
		BoardID:  ev.Get("boardId").Int(),
		GroupID:  ev.Get("groupId").String(),
		ItemID:   itemID,
		ItemName: strings.TrimSpace(name),
		UserID:   ev.Get("userId").Int(),
	}
}

func isCreate(t string) bool { return t == "create_pulse" || t == "create_item" }

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if challenge := gjson.GetBytes(body, "challenge"); challenge.Exists() {
		writeJSON(w, http.StatusOK, map[string]interface{}{"challenge": challenge.Value()})
		return
	}
	if !gjson.ValidBytes(body) {
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}

	ev := parseEvent(body)
	kind, ok := s.Batches.KindOf(ev.BoardID)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "ignored": true, "reason": "unknown board"})
		return
	}

	// A dropped delivery must not abort a half processed batch.
	ctx := context.WithoutCancel(r.Context())
	if isCreate(ev.Type) && ev.ItemID != 0 && !qc.IsSentinel(ev.ItemName) {
		if _, err := s.Batches.AutoLink(ctx, kind, ev.ItemID); err != nil {
			utils.Log.Warnf("Auto-link of item %d failed: %v", ev.ItemID, err)
		}
	}

	if !qc.IsSentinel(ev.ItemName) || !(isCreate(ev.Type) || ev.Type == "change_name") {
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "ignored": true, "type": ev.Type})
		return
	}

	utils.Log.Infof("%s batch triggered by item %d on board %d", kind, ev.ItemID, ev.BoardID)
	res, err := s.run(ctx, kind, batch.Trigger{GroupID: ev.GroupID, UserID: ev.UserID, SentinelItemID: ev.ItemID})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	// A blocked entry batch already dealt with its completion row.
	if kind == batch.KindExit || !res.Blocked {
		if err := s.Batches.RemoveSentinel(ctx, kind, ev.ItemID); err != nil {
			utils.Log.Warnf("%v", err)
		}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleProcess(kind batch.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			GroupID string `json:"groupId"`
			UserID  int64  `json:"userId"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		res, err := s.run(r.Context(), kind, batch.Trigger{GroupID: req.GroupID, UserID: req.UserID})
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, batch.ErrNotConfigured) {
				status = http.StatusBadRequest
			}
			writeError(w, status, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func queryLimit(r *http.Request, def int) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid limit %q", v)
	}
	return n, nil
}

func (s *Server) requireDB(w http.ResponseWriter) bool {
	if s.DB == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("run history is disabled"))
		return false
	}
	return true
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	limit, err := queryLimit(r, 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	runs, err := s.DB.ListRecentRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	run, err := s.DB.GetRun(r.Context(), r.PathValue("id"))
	if errors.Is(err, storage.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleExportRuns(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	limit, err := queryLimit(r, 500)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="runs.xlsx"`)
	if err := s.DB.ExportRuns(r.Context(), w, limit); err != nil {
		utils.Log.Errorf("Exporting runs failed: %v", err)
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	stats, err := s.DB.GetStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if stats == nil {
		stats = []storage.KindStats{}
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSetupMe(w http.ResponseWriter, r *http.Request) {
	me, err := s.API.Me(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, me)
}

func (s *Server) handleSetupBoards(w http.ResponseWriter, r *http.Request) {
	boards, err := s.API.Boards(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, boards)
}

func boardParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := utils.ParseID(r.URL.Query().Get("board"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("board: %w", err))
		return 0, false
	}
	return id, true
}

func (s *Server) handleSetupGroups(w http.ResponseWriter, r *http.Request) {
	boardID, ok := boardParam(w, r)
	if !ok {
		return
	}
	groups, err := s.API.Groups(r.Context(), boardID)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) handleSetupColumns(w http.ResponseWriter, r *http.Request) {
	boardID, ok := boardParam(w, r)
	if !ok {
		return
	}
	cols, err := s.API.Columns(r.Context(), boardID)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, cols)
}
