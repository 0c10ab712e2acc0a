// Package notifications announces session milestones to outside listeners.
//
// Each room may name a webhook base URL; events are POSTed as JSON to
// <webhook>/<event>. When a Redis address is configured the same events are
// also published on <prefix><event> channels. Delivery is best effort: the
// Hub logs failures and never returns them, so the pipeline is unaffected.
package notifications
