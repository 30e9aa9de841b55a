package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/story-crawler/internal/crawler"
	"github.com/JakeFAU/story-crawler/internal/pipeline"
	"github.com/JakeFAU/story-crawler/internal/upsert"
)

// Actions accepted by POST /api/crawler.
const (
	ActionFetchInfo           = "fetch-info"
	ActionFetchChapters       = "fetch-chapters"
	ActionFetchChapterContent = "fetch-chapter-content"
	ActionSaveStory           = "save-story"
	ActionSaveChapter         = "save-chapter"
)

// envelope is the response body of every /api/crawler route.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Note    string `json:"note,omitempty"`
	Debug   any    `json:"debug,omitempty"`
}

type actionRequest struct {
	Action        string     `json:"action"`
	URL           string     `json:"url"`
	StoryName     string     `json:"storyName"`
	StoryAuthor   string     `json:"storyAuthor"`
	StoryData     *storyData `json:"storyData"`
	StoryID       flexInt    `json:"storyId"`
	SID           flexInt    `json:"sId"`
	TargetStoryID flexInt    `json:"targetStoryId"`
	Title         string     `json:"title"`
	Content       string     `json:"content"`
	Number        flexInt    `json:"number"`
}

type storyData struct {
	Name        string   `json:"name"`
	Author      string   `json:"author"`
	Description string   `json:"description"`
	Image       string   `json:"image"`
	Status      string   `json:"status"`
	Categories  []string `json:"categories"`
	SourceURL   string   `json:"source_url"`
}

// flexInt accepts a JSON number, a numeric string or null.
type flexInt struct {
	Value int64
	Set   bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	raw := string(b)
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("decode id: %w", err)
		}
		raw = strings.TrimSpace(s)
		if raw == "" {
			return nil
		}
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("decode id %q: %w", raw, err)
	}
	f.Value, f.Set = n, n != 0
	return nil
}

// storyID picks the first of storyId, sId and targetStoryId that is set.
func (r actionRequest) storyID() int64 {
	for _, f := range []flexInt{r.StoryID, r.SID, r.TargetStoryID} {
		if f.Set {
			return f.Value
		}
	}
	return 0
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	switch req.Action {
	case ActionFetchInfo:
		s.fetchInfo(w, r, req)
	case ActionFetchChapters:
		s.fetchChapters(w, r, req)
	case ActionFetchChapterContent:
		s.fetchChapterContent(w, r, req)
	case ActionSaveStory:
		s.saveStory(w, r, req)
	case ActionSaveChapter:
		s.saveChapter(w, r, req)
	default:
		writeFailure(w, http.StatusBadRequest, "Invalid action")
	}
}

func (s *Server) fetchInfo(w http.ResponseWriter, r *http.Request, req actionRequest) {
	if strings.TrimSpace(req.URL) == "" {
		writeFailure(w, http.StatusBadRequest, "URL is required")
		return
	}
	info, err := s.ops.FetchInfo(r.Context(), req.URL)
	if err != nil {
		s.writeOpError(w, r, req.Action, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: info})
}

func (s *Server) fetchChapters(w http.ResponseWriter, r *http.Request, req actionRequest) {
	if strings.TrimSpace(req.URL) == "" {
		writeFailure(w, http.StatusBadRequest, "URL is required")
		return
	}
	if strings.TrimSpace(req.StoryName) == "" {
		writeFailure(w, http.StatusBadRequest, "storyName is required")
		return
	}
	res, err := s.ops.FetchChapters(r.Context(), pipeline.ChaptersRequest{
		URL:         req.URL,
		StoryName:   req.StoryName,
		StoryAuthor: req.StoryAuthor,
	})
	if err != nil {
		s.writeOpError(w, r, req.Action, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: chapterList(res.Stubs), Debug: res.Debug})
}

func (s *Server) fetchChapterContent(w http.ResponseWriter, r *http.Request, req actionRequest) {
	if strings.TrimSpace(req.URL) == "" {
		writeFailure(w, http.StatusBadRequest, "URL is required")
		return
	}
	content, err := s.ops.FetchChapterContent(r.Context(), req.URL)
	if err != nil {
		s.writeOpError(w, r, req.Action, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: content})
}

func (s *Server) saveStory(w http.ResponseWriter, r *http.Request, req actionRequest) {
	if req.StoryData == nil {
		writeFailure(w, http.StatusBadRequest, "Story data is required")
		return
	}
	d := req.StoryData
	res, err := s.ops.SaveStory(r.Context(), crawler.StorySourceInfo{
		Name:        d.Name,
		Author:      d.Author,
		Description: d.Description,
		Image:       d.Image,
		Status:      d.Status,
		Categories:  d.Categories,
		SourceURL:   d.SourceURL,
	})
	if err != nil {
		s.writeOpError(w, r, req.Action, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: res})
}

func (s *Server) saveChapter(w http.ResponseWriter, r *http.Request, req actionRequest) {
	storyID := req.storyID()
	if storyID == 0 || strings.TrimSpace(req.Title) == "" || req.Content == "" {
		writeFailure(w, http.StatusBadRequest, "Target story ID, title, and content are required")
		return
	}
	in := upsert.ChapterInput{
		StoryID:   storyID,
		Title:     req.Title,
		Content:   req.Content,
		SourceURL: req.URL,
	}
	if req.Number.Set {
		n := int(req.Number.Value)
		in.Number = &n
	}
	res, err := s.ops.SaveChapter(r.Context(), in)
	if err != nil {
		s.writeOpError(w, r, req.Action, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: res.Chapter, Note: res.Note})
}

// chapterList keeps an empty list as [] rather than null.
func chapterList(stubs []crawler.ReconciledChapterStub) []crawler.ReconciledChapterStub {
	if stubs == nil {
		return []crawler.ReconciledChapterStub{}
	}
	return stubs
}

// statusFor maps operation errors to HTTP statuses: invalid input is the
// caller's fault, a failed source fetch is an upstream failure, and anything
// else (store errors included) is ours.
func statusFor(err error) int {
	var fe *crawler.FetchError
	switch {
	case errors.Is(err, crawler.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, crawler.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &fe):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeOpError(w http.ResponseWriter, r *http.Request, action string, err error) {
	status := statusFor(err)
	log := s.logger.Warn
	if status >= http.StatusInternalServerError {
		log = s.logger.Error
	}
	log("crawler action failed",
		zap.String("request_id", RequestID(r.Context())),
		zap.String("action", action),
		zap.Int("status", status),
		zap.Error(err))
	writeFailure(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeFailure(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Error: msg})
}
