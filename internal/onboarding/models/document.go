package models

import (
	"time"

	id "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain"
)

// DocumentType classifies an uploaded document.
type DocumentType string

const (
	DocumentLicense     DocumentType = "license"
	DocumentDiploma     DocumentType = "diploma"
	DocumentResume      DocumentType = "resume"
	DocumentMalpractice DocumentType = "malpractice_insurance"
	DocumentGovernment  DocumentType = "government_id"
	DocumentOther       DocumentType = "other"
)

func (t DocumentType) IsValid() bool {
	switch t {
	case DocumentLicense, DocumentDiploma, DocumentResume, DocumentMalpractice, DocumentGovernment, DocumentOther:
		return true
	}
	return false
}

// Document references a file held in external storage. URL is opaque.
// Documents belong to one application and are not carried over to a resubmission.
type Document struct {
	ID            id.DocumentID    `json:"id"`
	ApplicationID id.ApplicationID `json:"application_id"`
	DocumentType  DocumentType     `json:"document_type"`
	URL           string           `json:"url"`
	UploadedBy    string           `json:"uploaded_by"`
	CreatedAt     time.Time        `json:"created_at"`
}
