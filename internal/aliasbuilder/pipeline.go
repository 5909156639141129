package aliasbuilder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aslstream/fingerspell/internal/jobstore"
	"github.com/aslstream/fingerspell/internal/lexicon"
	"github.com/aslstream/fingerspell/internal/objectstore"
	"github.com/aslstream/fingerspell/internal/observe"
	"github.com/aslstream/fingerspell/pkg/types"
)

const (
	uploadsBucket = "uploads"
	rawBucket     = "raw"
	aliasesBucket = "aliases"
)

// Pipeline wires the four alias-builder stages (§4.6) — submit, ingest,
// synthesize, persist — on top of [jobstore.Store], [objectstore.Store],
// and [lexicon.Store], replacing the original's S3/DynamoDB/SQS/SNS/Textract
// chain with direct in-process calls.
type Pipeline struct {
	jobs    jobstore.Store
	objects objectstore.Store
	lexicon lexicon.Store
	synth   *Synthesizer
	metrics *observe.Metrics
	jobTTL  time.Duration
}

// NewPipeline constructs a [Pipeline]. metrics may be nil, in which case
// [observe.DefaultMetrics] is used. jobTTL defaults to 30 days, matching
// kb-submit's DynamoDB TTL.
func NewPipeline(jobs jobstore.Store, objects objectstore.Store, lex lexicon.Store, synth *Synthesizer, metrics *observe.Metrics, jobTTL time.Duration) *Pipeline {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	if jobTTL <= 0 {
		jobTTL = 30 * 24 * time.Hour
	}
	return &Pipeline{jobs: jobs, objects: objects, lexicon: lex, synth: synth, metrics: metrics, jobTTL: jobTTL}
}

// computeRequestID mirrors kb-submit's compute_request_id: the first 16 hex
// characters of SHA-256(bucket|key|etag), giving a stable idempotency key
// for re-deliveries of the same upload notification.
func computeRequestID(bucket, key, etag string) string {
	sum := sha256.Sum256([]byte(bucket + "|" + key + "|" + etag))
	return hex.EncodeToString(sum[:])[:16]
}

// Submit registers an uploaded document for processing (kb-submit). If an
// equivalent request (same bucket/key/etag) was already submitted, the
// existing job is returned instead of creating a duplicate.
func (p *Pipeline) Submit(ctx context.Context, bucket, key, userID string) (types.Job, error) {
	ctx, span := observe.StartSpan(ctx, "aliasbuilder.submit")
	defer span.End()

	size, etag, err := p.objects.Head(ctx, bucket, key)
	if err != nil {
		return types.Job{}, fmt.Errorf("aliasbuilder: head %s/%s: %w", bucket, key, err)
	}

	requestID := computeRequestID(bucket, key, etag)
	if existing, err := p.jobs.GetByRequestID(ctx, requestID); err == nil {
		observe.Logger(ctx).Info("aliasbuilder: submit idempotent hit", "request_id", requestID, "job_id", existing.JobID)
		return existing, nil
	} else if err != jobstore.ErrNotFound {
		return types.Job{}, fmt.Errorf("aliasbuilder: lookup request id: %w", err)
	}

	job := types.Job{
		JobID:     uuid.NewString(),
		RequestID: requestID,
		UserID:    userID,
		Bucket:    bucket,
		Key:       key,
		ETag:      etag,
		FileSize:  size,
		Status:    types.JobRunning,
		TTL:       time.Now().Add(p.jobTTL),
	}
	if err := p.jobs.Create(ctx, job); err != nil {
		return types.Job{}, fmt.Errorf("aliasbuilder: create job: %w", err)
	}

	p.metrics.RecordAliasJob(ctx, "submitted")
	return job, nil
}

// Ingest cleans and tokenizes rawText extracted from the uploaded document
// (kb-ingest), writes the raw text and terms manifest to the object store,
// and advances the job to INGESTED. notificationID deduplicates repeated
// deliveries of the same completion event; a duplicate is a no-op, not an
// error, since the original lambda skips silently in this case.
func (p *Pipeline) Ingest(ctx context.Context, jobID, notificationID, rawText string) error {
	ctx, span := observe.StartSpan(ctx, "aliasbuilder.ingest")
	defer span.End()

	job, err := p.jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("aliasbuilder: get job %s: %w", jobID, err)
	}

	if err := p.jobs.SetNotification(ctx, jobID, notificationID); err != nil {
		if err == jobstore.ErrDuplicateNotification {
			observe.Logger(ctx).Info("aliasbuilder: duplicate ingest notification, skipping", "job_id", jobID)
			return nil
		}
		return fmt.Errorf("aliasbuilder: set notification: %w", err)
	}

	terms := Tokenize(rawText)
	base := baseName(job.Key)

	textKey := path.Join(job.UserID, base+".txt")
	if _, err := p.objects.Put(ctx, rawBucket, textKey, []byte(rawText)); err != nil {
		return fmt.Errorf("aliasbuilder: write raw text: %w", err)
	}

	termsKey := path.Join(job.UserID, base+"_terms.json")
	termsPayload, err := json.MarshalIndent(termsManifest{
		JobID:        jobID,
		UserID:       job.UserID,
		OriginalFile: job.Key,
		TermCount:    len(terms),
		Terms:        sortedCopy(terms),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("aliasbuilder: marshal terms manifest: %w", err)
	}
	if _, err := p.objects.Put(ctx, rawBucket, termsKey, termsPayload); err != nil {
		return fmt.Errorf("aliasbuilder: write terms manifest: %w", err)
	}

	metadataKey := path.Join(job.UserID, base+"_metadata.json")
	metadataPayload, err := json.MarshalIndent(ingestMetadata{
		JobID:             jobID,
		UserID:            job.UserID,
		OriginalFile:      job.Key,
		ProcessedAt:       time.Now().UTC(),
		RawWordCount:      len(strings.Fields(rawText)),
		CleanedTermCount:  len(terms),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("aliasbuilder: marshal metadata: %w", err)
	}
	if _, err := p.objects.Put(ctx, rawBucket, metadataKey, metadataPayload); err != nil {
		return fmt.Errorf("aliasbuilder: write metadata: %w", err)
	}

	if err := p.jobs.SetRawTextKey(ctx, jobID, termsKey); err != nil {
		return fmt.Errorf("aliasbuilder: set raw text key: %w", err)
	}
	if err := p.jobs.UpdateStatus(ctx, jobID, types.JobIngested); err != nil {
		return fmt.Errorf("aliasbuilder: update status: %w", err)
	}

	p.metrics.RecordAliasJob(ctx, "ingested")
	return nil
}

// SynthesizeAndPersist runs the LLM-driven alias synthesis step (kb-aliases)
// over the terms produced by Ingest, validates and scores the results, and
// upserts one [lexicon.Store] entry per surface term that validated at
// least one alias. It writes the full alias set to the object store and
// marks the job COMPLETED, or FAILED if synthesis itself errors.
func (p *Pipeline) SynthesizeAndPersist(ctx context.Context, jobID string) error {
	ctx, span := observe.StartSpan(ctx, "aliasbuilder.synthesize")
	defer span.End()
	start := time.Now()
	defer func() {
		p.metrics.AliasBuilderJobDuration.Record(ctx, time.Since(start).Seconds())
	}()

	job, err := p.jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("aliasbuilder: get job %s: %w", jobID, err)
	}

	raw, err := p.objects.Get(ctx, rawBucket, job.RawTextKey)
	if err != nil {
		return fmt.Errorf("aliasbuilder: read terms manifest: %w", err)
	}
	var manifest termsManifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return fmt.Errorf("aliasbuilder: unmarshal terms manifest: %w", err)
	}

	aliases, synthErr := p.synth.Synthesize(ctx, manifest.Terms)
	if synthErr != nil {
		_ = p.jobs.UpdateStatus(ctx, jobID, types.JobFailed)
		p.metrics.RecordAliasJob(ctx, "failed")
		return fmt.Errorf("aliasbuilder: synthesize: %w", synthErr)
	}

	now := time.Now().UTC()
	for surface, scored := range aliases {
		entry := types.LexiconEntry{
			Surface:          surface,
			UserID:           job.UserID,
			ConfidenceScores: make(map[string]float64, len(scored)),
			UpdatedAt:        now,
		}
		for _, sa := range scored {
			entry.Aliases = append(entry.Aliases, sa.Alias)
			entry.ConfidenceScores[sa.Alias] = sa.Confidence
		}
		if err := p.lexicon.Upsert(ctx, entry); err != nil {
			_ = p.jobs.UpdateStatus(ctx, jobID, types.JobFailed)
			p.metrics.RecordAliasJob(ctx, "failed")
			return fmt.Errorf("aliasbuilder: upsert lexicon entry %q: %w", surface, err)
		}
	}

	base := strings.TrimSuffix(path.Base(job.RawTextKey), "_terms.json")
	aliasesKey := path.Join(job.UserID, base+"_aliases.json")
	payload, err := json.MarshalIndent(aliasesManifest{
		JobID:        jobID,
		UserID:       job.UserID,
		TermsCount:   len(manifest.Terms),
		AliasesCount: len(aliases),
		ProcessedAt:  now,
		Aliases:      aliases,
		Status:       string(types.JobCompleted),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("aliasbuilder: marshal aliases manifest: %w", err)
	}
	if _, err := p.objects.Put(ctx, aliasesBucket, aliasesKey, payload); err != nil {
		return fmt.Errorf("aliasbuilder: write aliases manifest: %w", err)
	}

	if err := p.jobs.UpdateStatus(ctx, jobID, types.JobCompleted); err != nil {
		return fmt.Errorf("aliasbuilder: update status: %w", err)
	}

	p.metrics.RecordAliasJob(ctx, "completed")
	return nil
}

type termsManifest struct {
	JobID        string   `json:"job_id"`
	UserID       string   `json:"user_id"`
	OriginalFile string   `json:"original_file"`
	TermCount    int      `json:"term_count"`
	Terms        []string `json:"terms"`
}

type ingestMetadata struct {
	JobID            string    `json:"job_id"`
	UserID           string    `json:"user_id"`
	OriginalFile     string    `json:"original_file"`
	ProcessedAt      time.Time `json:"processed_at"`
	RawWordCount     int       `json:"raw_word_count"`
	CleanedTermCount int       `json:"cleaned_term_count"`
}

type aliasesManifest struct {
	JobID        string                   `json:"job_id"`
	UserID       string                   `json:"user_id"`
	TermsCount   int                      `json:"terms_count"`
	AliasesCount int                      `json:"aliases_count"`
	ProcessedAt  time.Time                `json:"processed_at"`
	Aliases      map[string][]ScoredAlias `json:"aliases"`
	Status       string                   `json:"status"`
}

func baseName(key string) string {
	b := path.Base(key)
	if idx := strings.LastIndex(b, "."); idx > 0 {
		return b[:idx]
	}
	return b
}

func sortedCopy(terms []string) []string {
	out := make([]string, len(terms))
	copy(out, terms)
	sort.Strings(out)
	return out
}
