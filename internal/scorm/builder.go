package scorm

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"scorm-quiz-service/internal/app"
	"scorm-quiz-service/internal/domain"
	"scorm-quiz-service/internal/metrics"
	"scorm-quiz-service/internal/storage"
)

// ArchiveName is the file name the package is delivered as.
const ArchiveName = "download.zip"

// zipEpoch is stamped on every archive entry so identical input gives
// identical bytes.
var zipEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// Builder assembles SCORM 1.2 packages. Every build stages its files in the
// blob store under its own zips/{quizId}/{buildId}/ prefix in a fixed order
// (schemas, media, player, icon, quiz.json); the manifest is generated from
// what was staged and the prefix is removed once the archive is written.
type Builder struct {
	blobs       storage.BlobStore
	fetcher     app.Fetcher // optional, for media that was never uploaded
	concurrency int
	newID       func() string
	log         *zap.Logger
}

func NewBuilder(blobs storage.BlobStore, fetcher app.Fetcher, concurrency int, log *zap.Logger) *Builder {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Builder{blobs: blobs, fetcher: fetcher, concurrency: concurrency, newID: uuid.NewString, log: log}
}

// StagingPrefix is the blob prefix one build of a quiz is staged under.
func StagingPrefix(quizID, buildID string) string {
	return "zips/" + quizID + "/" + buildID + "/"
}

// Build produces the zipped package of quiz. Any failure aborts the whole
// build; no partial archive is returned.
func (b *Builder) Build(ctx context.Context, quiz domain.Quiz) ([]byte, error) {
	start := time.Now()
	data, err := b.build(ctx, quiz)
	status := "ok"
	if err != nil {
		status = "error"
		b.log.Error("scorm build failed", zap.String("quizId", quiz.ID), zap.Error(err))
	} else {
		b.log.Info("scorm package built", zap.String("quizId", quiz.ID), zap.Int("bytes", len(data)), zap.Duration("took", time.Since(start)))
	}
	metrics.PackageBuildDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	return data, err
}

func (b *Builder) build(ctx context.Context, quiz domain.Quiz) ([]byte, error) {
	if quiz.ID == "" || strings.ContainsAny(quiz.ID, "/\\") {
		return nil, fmt.Errorf("%w: bad quiz id %q", domain.ErrInvalidQuiz, quiz.ID)
	}
	names, err := planMedia(quiz)
	if err != nil {
		return nil, err
	}

	root := StagingPrefix(quiz.ID, b.newID())
	public := root + "res/public/"
	defer func() {
		if err := storage.DeletePrefix(context.WithoutCancel(ctx), b.blobs, root); err != nil {
			b.log.Warn("clear staging", zap.String("prefix", root), zap.Error(err))
		}
	}()

	// schemas
	if err := b.stage(ctx, schemaFiles, func(ctx context.Context, name string) error {
		return b.copyTemplate(ctx, name, root+name)
	}); err != nil {
		return nil, err
	}

	// media
	urls := make([]string, 0, len(names))
	for u := range names {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	if err := b.stage(ctx, urls, func(ctx context.Context, u string) error {
		return b.copyMedia(ctx, u, public+names[u])
	}); err != nil {
		return nil, err
	}

	// player
	if err := b.stage(ctx, playerFiles, func(ctx context.Context, name string) error {
		return b.copyTemplate(ctx, name, root+"res/"+name)
	}); err != nil {
		return nil, err
	}

	// icon
	if err := b.copyTemplate(ctx, iconFile, public+iconFile); err != nil {
		return nil, err
	}

	// quiz.json
	rewritten, err := json.Marshal(rewriteQuiz(quiz, names))
	if err != nil {
		return nil, fmt.Errorf("encode quiz.json: %w", err)
	}
	if err := b.blobs.Put(ctx, public+"quiz.json", bytes.NewReader(rewritten), int64(len(rewritten)), "application/json"); err != nil {
		return nil, fmt.Errorf("stage quiz.json: %w", err)
	}

	staged, err := b.blobs.List(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("list staging: %w", err)
	}
	sort.Slice(staged, func(i, j int) bool { return staged[i].Key < staged[j].Key })
	var publicFiles []string
	for _, obj := range staged {
		if rel := strings.TrimPrefix(obj.Key, public); rel != obj.Key && !strings.Contains(rel, "/") {
			publicFiles = append(publicFiles, rel)
		}
	}
	manifest, err := buildManifest(quiz.ID, quiz.Title, publicFiles)
	if err != nil {
		return nil, fmt.Errorf("render manifest: %w", err)
	}
	return b.archive(ctx, root, staged, manifest)
}

// stage runs fn for every item with bounded parallelism and returns once all
// of them finished.
func (b *Builder) stage(ctx context.Context, items []string, fn func(context.Context, string) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for _, item := range items {
		item := item // per-iteration copy (go 1.21 loop semantics)
		g.Go(func() error { return fn(gctx, item) })
	}
	return g.Wait()
}

func (b *Builder) copyTemplate(ctx context.Context, name, dst string) error {
	if err := storage.Copy(ctx, b.blobs, TemplatePrefix+name, dst, contentType(name)); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("template %s missing, run `templates seed`: %w", name, err)
		}
		return err
	}
	return nil
}

func (b *Builder) copyMedia(ctx context.Context, u, dst string) error {
	var data []byte
	key, err := SourceKey(u)
	if err == nil {
		data, err = storage.ReadAll(ctx, b.blobs, key)
	}
	if (errors.Is(err, domain.ErrNotFound) || errors.Is(err, ErrNotUploaded)) && b.fetcher != nil {
		var res app.Resource
		res, err = b.fetcher.Fetch(ctx, u)
		data = res.Data
	}
	if err != nil {
		return fmt.Errorf("media %s: %w", u, err)
	}
	return b.blobs.Put(ctx, dst, bytes.NewReader(data), int64(len(data)), contentType(dst))
}

func (b *Builder) archive(ctx context.Context, root string, staged []storage.Object, manifest []byte) ([]byte, error) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)

	write := func(name string, data []byte) error {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: zipEpoch})
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}

	if err := write("imsmanifest.xml", manifest); err != nil {
		return nil, err
	}
	for _, obj := range staged {
		data, err := storage.ReadAll(ctx, b.blobs, obj.Key)
		if err != nil {
			return nil, fmt.Errorf("read staged %s: %w", obj.Key, err)
		}
		if err := write(strings.TrimPrefix(obj.Key, root), data); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
