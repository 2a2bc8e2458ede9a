package testsupport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/jobs"
	"github.com/google/uuid"
)

// Script is the status sequence one job goes through. The first status is
// returned on submit; every status read advances by one and the last status
// repeats.
type Script struct {
	Category string
	Params   map[string]any
	Result   map[string]any
	Statuses []jobs.Status
}

type scriptedJob struct {
	script  Script
	created time.Time
	reads   int
}

// JobServer serves scripted job statuses.
type JobServer struct {
	mu   sync.Mutex
	jobs map[string]*scriptedJob
}

// NewJobServer returns an empty job server.
func NewJobServer() *JobServer {
	return &JobServer{jobs: make(map[string]*scriptedJob)}
}

// Define returns a submit function that starts a new job following sc.
func (s *JobServer) Define(sc Script) jobs.SubmitFunc {
	return func(ctx context.Context) (jobs.Descriptor, error) {
		if err := ctx.Err(); err != nil {
			return jobs.Descriptor{}, err
		}
		id := uuid.NewString()
		job := &scriptedJob{script: sc, created: time.Now()}

		s.mu.Lock()
		s.jobs[id] = job
		s.mu.Unlock()
		return job.descriptor(id, 0), nil
	}
}

// Status is the jobs.StatusFunc of the server.
func (s *JobServer) Status(ctx context.Context, id string) (jobs.Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return jobs.Descriptor{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return jobs.Descriptor{}, cache.RemoteError(http.StatusNotFound, "job "+id+" not found")
	}
	job.reads++
	return job.descriptor(id, job.reads), nil
}

// Reads returns how many status reads job id received.
func (s *JobServer) Reads(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		return job.reads
	}
	return 0
}

func (j *scriptedJob) descriptor(id string, step int) jobs.Descriptor {
	statuses := j.script.Statuses
	if len(statuses) == 0 {
		statuses = []jobs.Status{jobs.StatusFinished}
	}
	if step >= len(statuses) {
		step = len(statuses) - 1
	}
	d := jobs.Descriptor{
		ID:        id,
		Category:  j.script.Category,
		Status:    statuses[step],
		CreatedAt: j.created,
		Params:    j.script.Params,
	}
	if d.Status.Terminal() {
		d.Result = j.script.Result
		d.FinishedAt = j.created
	}
	return d
}
