// Package document stores references to documents attached to applications.
package document

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/onboarding/models"
	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/storage"
	id "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain"
	txcontext "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/tx"
)

type InMemoryStore struct {
	mu   sync.RWMutex
	docs map[id.ApplicationID][]models.Document
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{docs: make(map[id.ApplicationID][]models.Document)}
}

func (s *InMemoryStore) Add(_ context.Context, doc models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// append to a copy so snapshots never share a backing array
	s.docs[doc.ApplicationID] = append(slices.Clone(s.docs[doc.ApplicationID]), doc)
	return nil
}

func (s *InMemoryStore) ListByApplication(_ context.Context, appID id.ApplicationID) ([]models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := slices.Clone(s.docs[appID])
	if out == nil {
		out = []models.Document{}
	}
	return out, nil
}

func (s *InMemoryStore) Snapshot() func() {
	s.mu.RLock()
	saved := storage.CloneMap(s.docs)
	s.mu.RUnlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.docs = saved
	}
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Add(ctx context.Context, doc models.Document) error {
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO application_documents (id, application_id, document_type, url, uploaded_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.UUID(doc.ID), uuid.UUID(doc.ApplicationID), string(doc.DocumentType), doc.URL, doc.UploadedBy, doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByApplication(ctx context.Context, appID id.ApplicationID) ([]models.Document, error) {
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, `
		SELECT id, application_id, document_type, url, uploaded_by, created_at
		FROM application_documents WHERE application_id = $1 ORDER BY created_at, id`,
		uuid.UUID(appID))
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := []models.Document{}
	for rows.Next() {
		var (
			doc     models.Document
			docID   uuid.UUID
			ownerID uuid.UUID
			docType string
		)
		if err := rows.Scan(&docID, &ownerID, &docType, &doc.URL, &doc.UploadedBy, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc.ID = id.DocumentID(docID)
		doc.ApplicationID = id.ApplicationID(ownerID)
		doc.DocumentType = models.DocumentType(docType)
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}
