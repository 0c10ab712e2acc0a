package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"archivist/internal/config"
	"archivist/internal/logging"
	"archivist/internal/services"
	"archivist/internal/state"
)

// ErrTrackPending is returned by LookupTrackID while the destination has not
// finished processing an artifact.
var ErrTrackPending = errors.New("track id not assigned yet")

// Upload is one publish request.
type Upload struct {
	SessionID   string
	RoomID      int64
	Account     string
	Variant     state.Variant
	Video       string
	Thumbnail   string
	Annotations string
	Title       string
	Description string
	Tags        string
	ChannelID   int64
	Source      string
	// ArtifactID is set when the session already has a published artifact
	// that this upload replaces.
	ArtifactID string
}

// Comment is the companion comment for a published artifact. The body is
// built from the highlight and super-chat lists when it is posted.
type Comment struct {
	Account       string
	ArtifactID    string
	HighlightPath string
	SuperChatPath string
}

// Caption attaches a caption file to an artifact's track.
type Caption struct {
	Account    string
	ArtifactID string
	TrackID    string
	Path       string
}

// Client is the publishing contract used by the workflow workers.
type Client interface {
	Publish(ctx context.Context, upload Upload) (string, error)
	LookupTrackID(ctx context.Context, account, artifactID string) (string, error)
	PostComment(ctx context.Context, comment Comment) error
	PostCaption(ctx context.Context, caption Caption) error
}

// backend is implemented by each destination kind. Comments arrive as the
// final text.
type backend interface {
	publish(ctx context.Context, upload Upload) (string, error)
	lookupTrackID(ctx context.Context, artifactID string) (string, error)
	postComment(ctx context.Context, artifactID, text string) error
	postCaption(ctx context.Context, artifactID, trackID, path string) error
}

type route struct {
	backend       backend
	commentPrefix string
}

// Router dispatches publisher calls to the backend of the named account.
type Router struct {
	mu     sync.RWMutex
	routes map[string]route
	logger *slog.Logger
}

// NewRouter builds one backend per configured account.
func NewRouter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Router, error) {
	r := &Router{logger: logging.NewComponentLogger(logger, "publisher")}
	if err := r.SetAccounts(ctx, cfg.Accounts); err != nil {
		return nil, err
	}
	return r, nil
}

// SetAccounts rebuilds every backend from accounts and swaps them in. The
// current routes stay active when any account fails to build.
func (r *Router) SetAccounts(ctx context.Context, accounts map[string]config.Account) error {
	names := make([]string, 0, len(accounts))
	for name := range accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	routes := make(map[string]route, len(accounts))
	for _, name := range names {
		account := accounts[name]
		b, err := newBackend(ctx, account, r.logger)
		if err != nil {
			return fmt.Errorf("account %s: %w", name, err)
		}
		routes[name] = route{backend: b, commentPrefix: account.CommentPrefix}
		r.logger.Debug("publisher account ready",
			logging.String("account", name),
			logging.String("kind", account.Kind),
		)
	}
	r.mu.Lock()
	r.routes = routes
	r.mu.Unlock()
	return nil
}

func newBackend(ctx context.Context, account config.Account, logger *slog.Logger) (backend, error) {
	switch account.Kind {
	case config.AccountHTTP:
		return newHTTPBackend(account), nil
	case config.AccountS3:
		return newS3Backend(ctx, account, logger)
	case config.AccountLocal:
		return newLocalBackend(account), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "publish", "route",
			fmt.Sprintf("unsupported account kind %q", account.Kind), nil)
	}
}

func (r *Router) route(account string) (route, error) {
	r.mu.RLock()
	rt, ok := r.routes[strings.TrimSpace(account)]
	r.mu.RUnlock()
	if !ok {
		return route{}, services.Wrap(services.ErrConfiguration, "publish", "route",
			fmt.Sprintf("unknown account %q", account), nil)
	}
	return rt, nil
}

// Publish uploads the artifact and returns its external id.
func (r *Router) Publish(ctx context.Context, upload Upload) (string, error) {
	rt, err := r.route(upload.Account)
	if err != nil {
		return "", err
	}
	id, err := rt.backend.publish(ctx, upload)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(id) == "" {
		return "", services.Wrap(services.ErrExternalTool, "publish", "upload", "destination returned an empty artifact id", nil)
	}
	return id, nil
}

// LookupTrackID resolves the track that captions attach to.
func (r *Router) LookupTrackID(ctx context.Context, account, artifactID string) (string, error) {
	rt, err := r.route(account)
	if err != nil {
		return "", err
	}
	return rt.backend.lookupTrackID(ctx, artifactID)
}

// PostComment builds the comment body and posts it.
func (r *Router) PostComment(ctx context.Context, comment Comment) error {
	rt, err := r.route(comment.Account)
	if err != nil {
		return err
	}
	text, err := BuildComment(rt.commentPrefix, comment.HighlightPath, comment.SuperChatPath)
	if err != nil {
		return err
	}
	return rt.backend.postComment(ctx, comment.ArtifactID, text)
}

// PostCaption attaches a caption file.
func (r *Router) PostCaption(ctx context.Context, caption Caption) error {
	rt, err := r.route(caption.Account)
	if err != nil {
		return err
	}
	return rt.backend.postCaption(ctx, caption.ArtifactID, caption.TrackID, caption.Path)
}
