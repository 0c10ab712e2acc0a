package preflight

import (
	"context"
	"sort"
	"strings"

	"archivist/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the applicable preflight checks for the given config.
// Network checks run only for configured services.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Storage directory", cfg.Paths.StorageDir),
		CheckFreeSpace("Storage free space", cfg.Paths.StorageDir, MinFreeBytes),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}

	if strings.TrimSpace(cfg.Notifications.RedisAddr) != "" {
		results = append(results, CheckRedis(ctx, cfg.Notifications))
	}

	names := make([]string, 0, len(cfg.Accounts))
	for name := range cfg.Accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		account := cfg.Accounts[name]
		switch account.Kind {
		case config.AccountHTTP:
			results = append(results, CheckPlatform(ctx, "Account "+name, account.BaseURL, account.Token))
		case config.AccountLocal:
			results = append(results, CheckDirectoryAccess("Account "+name, account.ArchiveDir))
		}
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
