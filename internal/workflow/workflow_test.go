package workflow

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"archivist/internal/logging"
	"archivist/internal/publisher"
	"archivist/internal/state"
	"archivist/internal/testsupport"
)

func newManager(t *testing.T, client publisher.Client) (*Manager, *state.Ledger) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	ledger, _ := testsupport.MustOpenLedger(t, cfg)
	mgr := NewManager(cfg, ledger, client, logging.NewNop(), WithPollInterval(20*time.Millisecond))
	return mgr, ledger
}

func start(t *testing.T, mgr *Manager) {
	t.Helper()
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(mgr.Stop)
}

func task(sessionID string, variant state.Variant, captionPath string) PublishTask {
	return PublishTask{
		Upload: publisher.Upload{
			SessionID: sessionID, RoomID: 1, Account: "main", Variant: variant,
			Video: "/v/" + sessionID + ".mp4",
		},
		HighlightPath: "/v/he.txt",
		SuperChatPath: "/v/sc.txt",
		CaptionPath:   captionPath,
	}
}

func TestQueueFIFO(t *testing.T) {
	q := NewQueue[int]()
	for i := 1; i <= 3; i++ {
		q.Push(i)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for want := 1; want <= 3; want++ {
		got, ok := q.Pop(ctx)
		if !ok || got != want {
			t.Fatalf("pop = %d, %v; want %d", got, ok, want)
		}
	}
	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()
	if _, ok := q.Pop(short); ok {
		t.Fatalf("pop on empty queue should block until ctx ends")
	}
	q.Push(7)
	if drained := q.Drain(); len(drained) != 1 || drained[0] != 7 || q.Len() != 0 {
		t.Fatalf("drain = %v", drained)
	}
}

func TestPushFrontRestoresDrainedOrder(t *testing.T) {
	q := NewQueue[int]()
	for i := 1; i <= 3; i++ {
		q.Push(i)
	}
	drained := q.Drain()
	q.Push(4)
	q.PushFront(drained...)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for want := 1; want <= 4; want++ {
		got, ok := q.Pop(ctx)
		if !ok || got != want {
			t.Fatalf("pop = %d, %v; want %d", got, ok, want)
		}
	}
}

func TestPublishStopsAtRetryCeiling(t *testing.T) {
	client := testsupport.NewFakePublisher()
	client.PublishErr = func(publisher.Upload, int) error { return errors.New("upload refused") }
	mgr, ledger := newManager(t, client)
	start(t, mgr)

	mgr.EnqueuePublish(task("s1", state.VariantEarly, ""))
	for i := 1; i <= MaxPublishRetries+1; i++ {
		select {
		case <-client.Published:
		case <-time.After(5 * time.Second):
			t.Fatalf("attempt %d never happened", i)
		}
	}
	select {
	case <-client.Published:
		t.Fatalf("task was attempted more than %d times", MaxPublishRetries+1)
	case <-time.After(200 * time.Millisecond):
	}
	if mgr.Status().PendingPublish != 0 {
		t.Fatalf("abandoned task still queued")
	}
	if _, ok := ledger.ArtifactID("s1"); ok {
		t.Fatalf("failed publish recorded an artifact")
	}
}

func TestFailedPublishRequeuesAtTail(t *testing.T) {
	client := testsupport.NewFakePublisher()
	client.PublishErr = func(upload publisher.Upload, attempt int) error {
		if upload.SessionID == "a" && attempt == 1 {
			return errors.New("flaky")
		}
		return nil
	}
	mgr, _ := newManager(t, client)
	mgr.EnqueuePublish(task("a", state.VariantEarly, ""))
	mgr.EnqueuePublish(task("b", state.VariantEarly, ""))
	start(t, mgr)

	var order []string
	for len(order) < 3 {
		select {
		case upload := <-client.Published:
			order = append(order, upload.SessionID)
		case <-time.After(5 * time.Second):
			t.Fatalf("only saw attempts %v", order)
		}
	}
	if order[0] != "a" || order[1] != "b" || order[2] != "a" {
		t.Fatalf("attempt order = %v, want [a b a]", order)
	}
}

func TestFirstPublishCreatesSingleComment(t *testing.T) {
	client := testsupport.NewFakePublisher()
	mgr, ledger := newManager(t, client)
	start(t, mgr)

	mgr.EnqueuePublish(task("s1", state.VariantEarly, ""))
	mgr.EnqueuePublish(task("s1", state.VariantFinal, ""))

	testsupport.Eventually(t, "both publishes", func() bool {
		uploads, comments, _ := client.Snapshot()
		return len(uploads) == 2 && len(comments) == 1
	})
	uploads, comments, _ := client.Snapshot()
	if uploads[1].ArtifactID != "art-s1" {
		t.Fatalf("second publish should replace the first artifact, got %q", uploads[1].ArtifactID)
	}
	if comments[0].ArtifactID != "art-s1" || comments[0].HighlightPath != "/v/he.txt" {
		t.Fatalf("comment = %+v", comments[0])
	}
	time.Sleep(100 * time.Millisecond)
	if _, comments, _ := client.Snapshot(); len(comments) != 1 {
		t.Fatalf("expected exactly one comment, got %d", len(comments))
	}
	testsupport.Eventually(t, "comment completion", func() bool { return len(ledger.CommentTasks()) == 0 })
}

func TestCommentRetriedUntilItSucceeds(t *testing.T) {
	client := testsupport.NewFakePublisher()
	failures := 3
	client.CommentErr = func(publisher.Comment) error {
		if failures > 0 {
			failures--
			return errors.New("rate limited")
		}
		return nil
	}
	mgr, ledger := newManager(t, client)
	if _, err := ledger.RecordArtifact(context.Background(), "s1", "A"); err != nil {
		t.Fatalf("record artifact: %v", err)
	}
	mgr.EnqueueComment(state.CommentTask{SessionID: "s1", RoomID: 1, Account: "main"})
	start(t, mgr)

	testsupport.Eventually(t, "comment posted", func() bool {
		_, comments, _ := client.Snapshot()
		return len(comments) == 1
	})
	testsupport.Eventually(t, "active set emptied", func() bool { return len(ledger.CommentTasks()) == 0 })
}

func TestCommentWaitsForArtifact(t *testing.T) {
	client := testsupport.NewFakePublisher()
	mgr, ledger := newManager(t, client)
	mgr.EnqueueComment(state.CommentTask{SessionID: "s1", RoomID: 1, Account: "main"})
	start(t, mgr)

	testsupport.Eventually(t, "comment persisted", func() bool { return len(ledger.CommentTasks()) == 1 })
	time.Sleep(60 * time.Millisecond)
	if _, comments, _ := client.Snapshot(); len(comments) != 0 {
		t.Fatalf("comment posted before the session had an artifact")
	}
	if _, err := ledger.RecordArtifact(context.Background(), "s1", "A"); err != nil {
		t.Fatalf("record artifact: %v", err)
	}
	testsupport.Eventually(t, "comment posted", func() bool {
		_, comments, _ := client.Snapshot()
		return len(comments) == 1
	})
}

func TestFinalCaptionSupersedesEarly(t *testing.T) {
	client := testsupport.NewFakePublisher()
	client.CaptionErr = func(c publisher.Caption) error {
		if c.ArtifactID == "early" {
			return errors.New("still processing")
		}
		return nil
	}
	mgr, ledger := newManager(t, client)
	ctx := context.Background()
	if _, err := ledger.AppendCaptionTasks(ctx,
		state.CaptionTask{SessionID: "s1", Account: "main", ArtifactID: "early", TrackID: "t1", Variant: state.VariantEarly, CaptionPath: "/c.srt"},
		state.CaptionTask{SessionID: "s1", Account: "main", ArtifactID: "final", TrackID: "t2", Variant: state.VariantFinal, CaptionPath: "/c.srt"},
		state.CaptionTask{SessionID: "s2", Account: "main", ArtifactID: "early", TrackID: "t3", Variant: state.VariantEarly, CaptionPath: "/c.srt"},
	); err != nil {
		t.Fatalf("append: %v", err)
	}
	start(t, mgr)

	testsupport.Eventually(t, "supersede", func() bool {
		tasks := ledger.CaptionTasks()
		return len(tasks) == 1 && tasks[0].SessionID == "s2"
	})
}

func TestCaptionResolvesMissingTrack(t *testing.T) {
	client := testsupport.NewFakePublisher()
	pending := true
	client.TrackErr = func(string) error {
		if pending {
			pending = false
			return publisher.ErrTrackPending
		}
		return nil
	}
	mgr, ledger := newManager(t, client)
	mgr.EnqueueCaption(state.CaptionTask{SessionID: "s1", Account: "main", ArtifactID: "A", Variant: state.VariantEarly, CaptionPath: "/c.srt"})
	start(t, mgr)

	testsupport.Eventually(t, "caption posted", func() bool {
		_, _, captions := client.Snapshot()
		return len(captions) == 1
	})
	_, _, captions := client.Snapshot()
	if captions[0].TrackID != "track-A" {
		t.Fatalf("track = %q", captions[0].TrackID)
	}
	testsupport.Eventually(t, "caption completion", func() bool { return len(ledger.CaptionTasks()) == 0 })
}

func TestPublishQueuesCaptionWhenFileExists(t *testing.T) {
	client := testsupport.NewFakePublisher()
	mgr, ledger := newManager(t, client)
	srt := filepath.Join(t.TempDir(), "a.all.sc.srt")
	testsupport.WriteText(t, srt, "1\n")
	start(t, mgr)

	mgr.EnqueuePublish(task("s1", state.VariantEarly, srt))
	testsupport.Eventually(t, "caption posted", func() bool {
		_, _, captions := client.Snapshot()
		return len(captions) == 1
	})
	_, _, captions := client.Snapshot()
	if captions[0].ArtifactID != "art-s1" || captions[0].Path != srt {
		t.Fatalf("caption = %+v", captions[0])
	}
	testsupport.Eventually(t, "caption completion", func() bool { return len(ledger.CaptionTasks()) == 0 })
}

func TestRestartResumesCommentWithoutRepublish(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()

	store, err := state.Open(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ledger, err := state.NewLedger(ctx, store)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if _, err := ledger.RecordArtifact(ctx, "s1", "A"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := ledger.AppendCommentTasks(ctx, state.CommentTask{SessionID: "s1", Account: "main"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, _ := testsupport.MustOpenLedger(t, cfg)
	client := testsupport.NewFakePublisher()
	mgr := NewManager(cfg, reopened, client, logging.NewNop(), WithPollInterval(20*time.Millisecond))
	start(t, mgr)

	testsupport.Eventually(t, "resumed comment", func() bool {
		_, comments, _ := client.Snapshot()
		return len(comments) == 1
	})
	uploads, comments, _ := client.Snapshot()
	if len(uploads) != 0 {
		t.Fatalf("restart re-published %d artifacts", len(uploads))
	}
	if comments[0].ArtifactID != "A" {
		t.Fatalf("comment artifact = %q", comments[0].ArtifactID)
	}
}

func TestDelayedRequeue(t *testing.T) {
	client := testsupport.NewFakePublisher()
	client.PublishErr = func(_ publisher.Upload, attempt int) error {
		if attempt == 1 {
			return errors.New("flaky")
		}
		return nil
	}
	cfg := testsupport.NewConfig(t)
	ledger, _ := testsupport.MustOpenLedger(t, cfg)
	mgr := NewManager(cfg, ledger, client, logging.NewNop(),
		WithPollInterval(time.Hour), WithRetryDelay(50*time.Millisecond))
	start(t, mgr)

	began := time.Now()
	mgr.EnqueuePublish(task("s1", state.VariantEarly, ""))
	<-client.Published
	select {
	case <-client.Published:
		if elapsed := time.Since(began); elapsed < 50*time.Millisecond {
			t.Fatalf("retry happened after %v, before the delay", elapsed)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("retry never happened")
	}
}
