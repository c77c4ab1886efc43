package scorm

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"mime"
	"path"

	"scorm-quiz-service/internal/domain"
	"scorm-quiz-service/internal/storage"
)

//go:embed templates/*
var defaultTemplates embed.FS

// TemplatePrefix is where the player and schema files live in the blob store.
const TemplatePrefix = "template/"

var (
	schemaFiles = []string{
		"adlcp_rootv1p2.xsd",
		"ims_xml.xsd",
		"imscp_rootv1p1p2.xsd",
		"imsmd_rootv1p2p1.xsd",
	}
	playerFiles = []string{"index.html", "index.js"}
)

const iconFile = "audioicon.svg"

// TemplateFiles lists every template the builder reads.
func TemplateFiles() []string {
	out := append([]string(nil), schemaFiles...)
	out = append(out, playerFiles...)
	return append(out, iconFile)
}

// SeedTemplates uploads the embedded default templates. Existing templates are
// kept unless overwrite is set. It returns the number of files written.
func SeedTemplates(ctx context.Context, blobs storage.BlobStore, overwrite bool) (int, error) {
	written := 0
	for _, name := range TemplateFiles() {
		key := TemplatePrefix + name
		if !overwrite {
			rc, err := blobs.Get(ctx, key)
			if err == nil {
				rc.Close()
				continue
			}
			if !errors.Is(err, domain.ErrNotFound) {
				return written, fmt.Errorf("check template %s: %w", name, err)
			}
		}
		data, err := defaultTemplates.ReadFile("templates/" + name)
		if err != nil {
			return written, err
		}
		if err := blobs.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType(name)); err != nil {
			return written, fmt.Errorf("seed template %s: %w", name, err)
		}
		written++
	}
	return written, nil
}

func contentType(name string) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
