// Package archive keeps the verbatim intake payload of every persisted lead
// in object storage, next to the copy stored on the lead row.
package archive

import (
	"bytes"
	"context"
	"io"
	"path"

	"leadmarket_backend/internal/events"
	"leadmarket_backend/platform/logger"
)

// ObjectStore is the object storage the archive writes to.
type ObjectStore interface {
	EnsureBucketExists(ctx context.Context, bucket string) error
	PutObject(ctx context.Context, bucket, key, contentType string, reader io.Reader, size int64) error
}

// Archiver writes raw payloads to <bucket>/<portal>/<lead>.json.
type Archiver struct {
	store  ObjectStore
	bucket string
	log    *logger.Logger
}

func New(store ObjectStore, bucket string, log *logger.Logger) *Archiver {
	return &Archiver{store: store, bucket: bucket, log: log}
}

// RegisterHandlers subscribes the archiver to ingested leads.
func (a *Archiver) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.LeadIngested{}.EventName(), events.HandlerFunc(a.handleLeadIngested))
}

func (a *Archiver) handleLeadIngested(ctx context.Context, event events.Event) error {
	e, ok := event.(events.LeadIngested)
	if !ok || len(e.RawPayload) == 0 {
		return nil
	}

	key := ObjectKey(e)
	if err := a.store.PutObject(ctx, a.bucket, key, "application/json", bytes.NewReader(e.RawPayload), int64(len(e.RawPayload))); err != nil {
		// The lead row already holds the payload; a missed archive copy is not fatal.
		a.log.Warn("raw payload archive failed", "leadId", e.LeadID, "key", key, "error", err)
	}
	return nil
}

// ObjectKey is the archive path of a lead's payload within the bucket.
func ObjectKey(e events.LeadIngested) string {
	return path.Join(e.PortalID.String(), e.LeadID.String()+".json")
}
