// Package export runs the CSV export pipeline: validate the request, render
// the CSV, upload it with upsert semantics and sign a download URL.
//
// A run moves through Validating, Serializing, Uploading and Signing before
// it is Responded. Failure in any stage ends the run there; a completed
// upload is never rolled back.
package export

import (
	"context"
	"errors"
	"time"

	"savecsv/internal/csvexport"
	"savecsv/internal/domain"
	"savecsv/internal/journal"
	"savecsv/internal/metrics"
	"savecsv/internal/storage"
	u "savecsv/internal/utils"
)

// Stage is a step of the export state machine.
type Stage int

const (
	StageIdle Stage = iota
	StageValidating
	StageSerializing
	StageUploading
	StageSigning
	StageResponded
)

func (s Stage) String() string {
	switch s {
	case StageValidating:
		return "validating"
	case StageSerializing:
		return "serializing"
	case StageUploading:
		return "uploading"
	case StageSigning:
		return "signing"
	case StageResponded:
		return "responded"
	default:
		return "idle"
	}
}

// TimeoutMessage is returned to clients when a storage call outlives the
// request deadline.
const TimeoutMessage = "storage request timed out"

const journalTimeout = 2 * time.Second

// Result is the success body of an export.
type Result struct {
	OK          bool   `json:"ok"`
	SavedTo     string `json:"saved_to"`
	DownloadURL string `json:"download_url,omitempty"`
	Rows        int    `json:"-"`
	Bytes       int    `json:"-"`
}

// Exporter is safe for concurrent use; it holds no per-request state.
type Exporter struct {
	storageCfg u.StorageConfig
	exportCfg  u.ExportConfig
	store      storage.ObjectStore
	journal    journal.Journal
	metrics    *metrics.Metrics
	now        func() time.Time
}

// Option customises an Exporter.
type Option func(*Exporter)

// WithJournal records successful uploads to j.
func WithJournal(j journal.Journal) Option {
	return func(e *Exporter) {
		if j != nil {
			e.journal = j
		}
	}
}

// WithMetrics observes runs and storage calls on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Exporter) { e.metrics = m }
}

// New builds an Exporter. store may be nil when storage credentials are
// missing; every run then fails with the configuration message.
func New(cfg u.Config, store storage.ObjectStore, opts ...Option) *Exporter {
	e := &Exporter{
		storageCfg: cfg.Storage,
		exportCfg:  cfg.Export,
		store:      store,
		journal:    journal.Nop{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export runs the pipeline for one request body.
func (e *Exporter) Export(ctx context.Context, requestID string, body []byte) (*Result, error) {
	res, err := e.run(ctx, requestID, body)
	outcome := "ok"
	if err != nil {
		outcome = domain.KindOf(err).String()
	} else if res.DownloadURL == "" {
		outcome = "unsigned"
	}
	var rows, size int
	if res != nil {
		rows, size = res.Rows, res.Bytes
	}
	e.metrics.ObserveExport(outcome, rows, size)
	return res, err
}

func (e *Exporter) run(ctx context.Context, requestID string, body []byte) (*Result, error) {
	stage := func(s Stage) { u.Debug("Export stage", "request_id", requestID, "stage", s.String()) }

	stage(StageValidating)
	req, err := domain.ParseExportRequest(body)
	if err != nil {
		return nil, err
	}
	if err := e.storageCfg.Check(); err != nil {
		return nil, domain.Wrap(err, domain.KindConfig, err.Error())
	}
	if e.store == nil {
		return nil, domain.New(domain.KindConfig, "storage backend is not configured")
	}

	stage(StageSerializing)
	doc := csvexport.Build(req)
	data := doc.Encode(csvexport.EncodeOptions{BOM: e.exportCfg.UTF8BOM})
	path := domain.ObjectPath(req.MemberCode)
	res := &Result{
		OK:      true,
		SavedTo: e.storageCfg.Bucket + "/" + path,
		Rows:    doc.Lines() - 1,
		Bytes:   len(data),
	}

	ctx, cancel := context.WithTimeout(ctx, e.exportCfg.Timeout)
	defer cancel()

	stage(StageUploading)
	start := time.Now()
	err = e.store.Put(ctx, e.storageCfg.Bucket, path, data, storage.PutOptions{
		ContentType:  csvexport.ContentType,
		Upsert:       true,
		CacheControl: e.storageCfg.CacheControl(),
	})
	e.metrics.ObserveStorage("put", err, time.Since(start))
	if err != nil {
		return nil, classify(err, domain.KindStorage)
	}

	stage(StageSigning)
	start = time.Now()
	link, err := e.store.Sign(ctx, e.storageCfg.Bucket, path, e.exportCfg.SignExpiry)
	e.metrics.ObserveStorage("sign", err, time.Since(start))
	switch {
	case err == nil:
		res.DownloadURL = link
	case e.exportCfg.SignFailure == u.SignFailureDegrade && !isTimeout(err):
		u.Warn("Signing failed, responding without download URL",
			"request_id", requestID, "path", path, "error", err)
	default:
		e.record(ctx, requestID, req.MemberCode, path, res)
		return nil, classify(err, domain.KindSigning)
	}

	e.record(ctx, requestID, req.MemberCode, path, res)
	stage(StageResponded)
	return res, nil
}

// History lists recent exports of memberCode, newest first.
func (e *Exporter) History(ctx context.Context, memberCode string, limit int) ([]journal.Entry, error) {
	return e.journal.Recent(ctx, memberCode, limit)
}

// record appends to the journal. Failures are logged and otherwise ignored.
func (e *Exporter) record(ctx context.Context, requestID, memberCode, path string, res *Result) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()
	err := e.journal.Record(ctx, journal.Entry{
		MemberCode: memberCode,
		Path:       path,
		Rows:       res.Rows,
		Bytes:      res.Bytes,
		Signed:     res.DownloadURL != "",
		RequestID:  requestID,
		At:         e.now().UTC(),
	})
	if err != nil {
		u.Warn("Failed to record export", "request_id", requestID, "path", path, "error", err)
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// classify keeps the storage service's message as the client message.
func classify(err error, kind domain.Kind) error {
	if isTimeout(err) {
		return domain.Wrap(err, domain.KindTimeout, TimeoutMessage)
	}
	return domain.Wrap(err, kind, err.Error())
}
