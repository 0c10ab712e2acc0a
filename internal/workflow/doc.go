// Package workflow drains the three stage queues that follow a session's
// pipeline: publish, comment, and caption.
//
// The publish worker consumes its queue one task at a time. A failed task is
// appended to the tail again until it has been retried MaxPublishRetries
// times, then it is dropped with an error log. On the first successful
// publish for a session a comment task is queued; every successful publish
// queues a caption task for the artifact's track.
//
// The comment and caption workers poll. Each cycle moves newly queued tasks
// into the persisted active set, attempts every active task, and removes the
// ones that succeeded. Failed tasks stay active and are attempted again on
// the next cycle without limit. A successful caption also retires active
// caption tasks for earlier variants of the same session.
//
// The Manager owns the three loops. Every change to the active sets goes
// through state.Ledger, so it is durable before the worker moves on.
package workflow
