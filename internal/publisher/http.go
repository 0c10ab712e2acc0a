package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"archivist/internal/config"
	"archivist/internal/services"
)

const userAgent = "archivist/0.1"

// httpBackend talks to a platform API rooted at baseURL:
//
//	POST /artifacts                               multipart metadata+files -> {"id"}
//	PUT  /artifacts/{id}                          multipart replacement    -> {"id"}
//	GET  /artifacts/{id}                          -> {"id","trackId"}
//	POST /artifacts/{id}/comments                 {"text"}
//	POST /artifacts/{id}/tracks/{track}/captions  multipart caption file
type httpBackend struct {
	baseURL string
	token   string
	client  *http.Client
}

func newHTTPBackend(account config.Account) *httpBackend {
	return &httpBackend{
		baseURL: strings.TrimRight(account.BaseURL, "/"),
		token:   account.Token,
		// Uploads are bounded by the caller's context rather than a client timeout.
		client: &http.Client{},
	}
}

type artifactMetadata struct {
	SessionID   string `json:"sessionId"`
	RoomID      int64  `json:"roomId"`
	Variant     string `json:"variant"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Tags        string `json:"tags"`
	ChannelID   int64  `json:"channelId"`
	Source      string `json:"source"`
}

type artifactResponse struct {
	ID      string `json:"id"`
	TrackID string `json:"trackId"`
}

func metadataFor(upload Upload) artifactMetadata {
	return artifactMetadata{
		SessionID:   upload.SessionID,
		RoomID:      upload.RoomID,
		Variant:     upload.Variant.String(),
		Title:       upload.Title,
		Description: upload.Description,
		Tags:        upload.Tags,
		ChannelID:   upload.ChannelID,
		Source:      upload.Source,
	}
}

func (h *httpBackend) publish(ctx context.Context, upload Upload) (string, error) {
	meta, err := json.Marshal(metadataFor(upload))
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	method, endpoint := http.MethodPost, h.baseURL+"/artifacts"
	if upload.ArtifactID != "" {
		method, endpoint = http.MethodPut, h.baseURL+"/artifacts/"+url.PathEscape(upload.ArtifactID)
	}
	files := map[string]string{"video": upload.Video}
	if upload.Thumbnail != "" {
		files["thumbnail"] = upload.Thumbnail
	}
	var resp artifactResponse
	if err := h.sendMultipart(ctx, method, endpoint, map[string]string{"metadata": string(meta)}, files, &resp); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "publish", "upload", upload.Video, err)
	}
	return resp.ID, nil
}

func (h *httpBackend) lookupTrackID(ctx context.Context, artifactID string) (string, error) {
	req, err := h.newRequest(ctx, http.MethodGet, h.baseURL+"/artifacts/"+url.PathEscape(artifactID), nil)
	if err != nil {
		return "", err
	}
	var resp artifactResponse
	if err := h.do(req, &resp); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "caption", "lookup track", artifactID, err)
	}
	if strings.TrimSpace(resp.TrackID) == "" {
		return "", ErrTrackPending
	}
	return resp.TrackID, nil
}

func (h *httpBackend) postComment(ctx context.Context, artifactID, text string) error {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("encode comment: %w", err)
	}
	req, err := h.newRequest(ctx, http.MethodPost, h.baseURL+"/artifacts/"+url.PathEscape(artifactID)+"/comments", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := h.do(req, nil); err != nil {
		return services.Wrap(services.ErrExternalTool, "comment", "post", artifactID, err)
	}
	return nil
}

func (h *httpBackend) postCaption(ctx context.Context, artifactID, trackID, path string) error {
	endpoint := h.baseURL + "/artifacts/" + url.PathEscape(artifactID) + "/tracks/" + url.PathEscape(trackID) + "/captions"
	if err := h.sendMultipart(ctx, http.MethodPost, endpoint, nil, map[string]string{"caption": path}, nil); err != nil {
		return services.Wrap(services.ErrExternalTool, "caption", "post", artifactID, err)
	}
	return nil
}

// sendMultipart streams fields and files as multipart/form-data without
// buffering the files in memory.
func (h *httpBackend) sendMultipart(ctx context.Context, method, endpoint string, fields, files map[string]string, out any) error {
	for field, path := range files {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeParts(mw, fields, files))
	}()

	req, err := h.newRequest(ctx, method, endpoint, pr)
	if err != nil {
		_ = pr.Close()
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	err = h.do(req, out)
	_ = pr.Close()
	return err
}

func writeParts(mw *multipart.Writer, fields, files map[string]string) error {
	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			return err
		}
	}
	for name, path := range files {
		part, err := mw.CreateFormFile(name, filepath.Base(path))
		if err != nil {
			return err
		}
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(part, file)
		file.Close()
		if err != nil {
			return err
		}
	}
	return mw.Close()
}

func (h *httpBackend) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	return req, nil
}

func (h *httpBackend) do(req *http.Request, out any) error {
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body)), retryAfter: resp.Header.Get("Retry-After")}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type statusError struct {
	code       int
	body       string
	retryAfter string
}

func (e *statusError) Error() string {
	msg := fmt.Sprintf("platform returned %d", e.code)
	if e.body != "" {
		msg += ": " + e.body
	}
	if secs, err := strconv.Atoi(e.retryAfter); err == nil && secs > 0 {
		msg += fmt.Sprintf(" (retry after %s)", time.Duration(secs)*time.Second)
	}
	return msg
}
