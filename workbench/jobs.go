package workbench

import (
	"context"
	"fmt"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/jobs"
	"github.com/goliatone/go-query-cache/notify"
)

// Job categories of the workbench.
const (
	JobCrawler         = "crawler"
	JobPreprocessing   = "preprocessing"
	JobStatusAggregate = "status-aggregate"
	JobExport          = "export"
)

// DownloadFunc retrieves the file an export job produced.
type DownloadFunc func(ctx context.Context, url string) error

// projectKeys derives dependent keys from the job's project_id parameter.
func projectKeys(build ...func(projectID int) cache.Key) func(jobs.Descriptor) []cache.Key {
	return func(d jobs.Descriptor) []cache.Key {
		projectID, ok := d.IntParam("project_id")
		if !ok {
			return nil
		}
		out := make([]cache.Key, 0, len(build))
		for _, fn := range build {
			out = append(out, fn(projectID))
		}
		return out
	}
}

func say(outcome notify.Outcome, format string) func(jobs.Descriptor) (notify.Outcome, string) {
	return func(d jobs.Descriptor) (notify.Outcome, string) {
		return outcome, fmt.Sprintf(format, d.ID)
	}
}

// JobRules returns the terminal side effects of workbench jobs. download may
// be nil, in which case finished exports are only announced.
func JobRules(download DownloadFunc) (*jobs.RuleSet, error) {
	return jobs.NewRuleSet(
		jobs.Rule{
			Name:     "crawler-finished",
			Category: JobCrawler,
			Keys:     projectKeys(SdocsAwaitingKey),
			Notify:   say(notify.Success, "Crawler job %s finished"),
		},
		jobs.Rule{
			Name:     "preprocessing-finished",
			Category: JobPreprocessing,
			Keys:     projectKeys(SdocsAwaitingKey, ProjectSdocsKey),
			Notify:   say(notify.Success, "Preprocessing job %s finished"),
		},
		jobs.Rule{
			Name:      "search-index-ready",
			Category:  JobStatusAggregate,
			Condition: "has(result.remaining) && result.remaining == 0",
			Keys:      projectKeys(SearchIndexKey),
			Notify:    say(notify.Info, "All documents of job %s are indexed"),
		},
		jobs.Rule{
			Name:     "export-finished",
			Category: JobExport,
			Then: func(ctx context.Context, d jobs.Descriptor) error {
				if download == nil {
					return nil
				}
				url, ok := d.Result["url"].(string)
				if !ok || url == "" {
					return fmt.Errorf("workbench: export job %s has no file url", d.ID)
				}
				return download(ctx, url)
			},
			Notify: say(notify.Success, "Export %s is ready"),
		},
		jobs.Rule{
			Name:     "job-failed",
			Statuses: []jobs.Status{jobs.StatusFailed},
			Notify: func(d jobs.Descriptor) (notify.Outcome, string) {
				return notify.Failure, fmt.Sprintf("%s job %s failed", d.Category, d.ID)
			},
		},
	)
}
