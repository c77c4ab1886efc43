package scorm

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"scorm-quiz-service/internal/domain"
)

var (
	// ErrMediaName is returned when no file name can be derived from a media URL.
	ErrMediaName = errors.New("cannot derive media file name")
	// ErrMediaConflict is returned when two media references map to the same
	// package file, or one collides with a reserved player file.
	ErrMediaConflict = errors.New("media file name conflict")
	// ErrNotUploaded is returned by SourceKey for URLs that do not point at
	// the media upload area.
	ErrNotUploaded = errors.New("media url is not an upload")
)

const (
	// MediaPrefix is where uploaded quiz media live in the blob store.
	MediaPrefix = "quizzes/"
	// MediaRoute is the HTTP path uploaded media are served under.
	MediaRoute = "/api/media/"
)

var reservedNames = map[string]struct{}{
	"quiz.json": {},
	iconFile:    {},
}

// MediaName derives the package file name of a media URL: the last path
// segment, percent-decoded, then its last slash-separated part. Storage URLs
// that encode the object path in one segment ("quizzes%2Fclip.mp3") thus
// yield "clip.mp3".
func MediaName(raw string) (string, error) {
	_, name, err := splitMedia(raw)
	return name, err
}

// SourceKey returns the blob key a media URL was uploaded under. Only storage
// URLs naming an object below quizzes/ and URLs of the media route map to a
// key; anything else yields ErrNotUploaded.
func SourceKey(raw string) (string, error) {
	decoded, name, err := splitMedia(raw)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(decoded, MediaPrefix) && !strings.Contains(strings.TrimPrefix(decoded, MediaPrefix), "/") {
		return decoded, nil
	}
	u, _ := url.Parse(raw)
	if rest, ok := strings.CutPrefix(u.EscapedPath(), MediaRoute); ok && rest != "" && !strings.Contains(rest, "/") {
		return MediaPrefix + name, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotUploaded, raw)
}

func splitMedia(raw string) (decoded, name string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrMediaName, err)
	}
	escaped := u.EscapedPath()
	segment := escaped[strings.LastIndex(escaped, "/")+1:]
	decoded, err = url.PathUnescape(segment)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrMediaName, err)
	}
	name = decoded[strings.LastIndex(decoded, "/")+1:]
	if name == "" || name == "." || name == ".." {
		return "", "", fmt.Errorf("%w: %q", ErrMediaName, raw)
	}
	return decoded, name, nil
}

// planMedia maps every distinct media URL of the quiz to its package file name.
func planMedia(quiz domain.Quiz) (map[string]string, error) {
	names := make(map[string]string)
	owner := make(map[string]string)
	for _, u := range domain.MediaURLs(quiz) {
		name, err := MediaName(u)
		if err != nil {
			return nil, err
		}
		if _, reserved := reservedNames[name]; reserved {
			return nil, fmt.Errorf("%w: %s is reserved", ErrMediaConflict, name)
		}
		if prev, taken := owner[name]; taken {
			return nil, fmt.Errorf("%w: %s and %s both map to %s", ErrMediaConflict, prev, u, name)
		}
		owner[name] = u
		names[u] = name
	}
	return names, nil
}

// rewriteQuiz returns a copy of quiz whose media references point into the
// package. The input is not modified.
func rewriteQuiz(quiz domain.Quiz, names map[string]string) domain.Quiz {
	out := quiz.Clone()
	for i := range out.Questions {
		q := &out.Questions[i]
		if q.AudioURL != "" {
			q.AudioURL = "./public/" + names[q.AudioURL]
		}
		for j := range q.Answers {
			if img := q.Answers[j].ImageURL; img != "" {
				q.Answers[j].ImageURL = "./public/" + names[img]
			}
		}
	}
	return out
}
