package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidInput is returned when an input descriptor cannot be normalized.
var ErrInvalidInput = errors.New("invalid input descriptor")

// SourceKind tags a normalized input source.
type SourceKind string

const (
	// SourceStoragePath is a path inside the default object storage bucket.
	SourceStoragePath SourceKind = "storagePath"
	// SourceRemoteURI is a scheme://bucket/path or bucket/path locator.
	SourceRemoteURI SourceKind = "remoteUri"
	// SourceDownloadURL is an http(s) URL fetched with GET.
	SourceDownloadURL SourceKind = "downloadUrl"
)

// Source is one normalized input location.
type Source struct {
	Kind     SourceKind
	Location string
}

// Input is the persisted input descriptor of a job.
// Several fields may be present; Sources defines the order they are tried in.
type Input struct {
	StoragePath string `json:"storagePath,omitempty"`
	RemoteURI   string `json:"remoteUri,omitempty"`
	DownloadURL string `json:"downloadUrl,omitempty"`
}

// IsZero reports whether no source is declared.
func (in Input) IsZero() bool {
	return in.StoragePath == "" && in.RemoteURI == "" && in.DownloadURL == ""
}

// Sources returns the declared sources in resolution order:
// storage path, remote URI, then download URL.
func (in Input) Sources() []Source {
	var out []Source
	if in.StoragePath != "" {
		out = append(out, Source{Kind: SourceStoragePath, Location: in.StoragePath})
	}
	if in.RemoteURI != "" {
		out = append(out, Source{Kind: SourceRemoteURI, Location: in.RemoteURI})
	}
	if in.DownloadURL != "" {
		out = append(out, Source{Kind: SourceDownloadURL, Location: in.DownloadURL})
	}
	return out
}

// ParseInputString normalizes a bare string descriptor.
// http(s) URLs are download URLs, other scheme://bucket/path strings are remote
// URIs, and anything else is a storage path.
func ParseInputString(s string) (Input, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Input{}, fmt.Errorf("%w: empty string", ErrInvalidInput)
	}
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return Input{DownloadURL: s}, nil
	case strings.Contains(s, "://"):
		return Input{RemoteURI: s}, nil
	default:
		return Input{StoragePath: strings.TrimPrefix(s, "/")}, nil
	}
}

// inputAliases accepts the field spellings older clients send.
type inputAliases struct {
	StoragePath    string `json:"storagePath"`
	RemoteURI      string `json:"remoteUri"`
	GSURI          string `json:"gsUri"`
	DownloadURL    string `json:"downloadUrl"`
	DownloadURLAlt string `json:"downloadURL"`
}

// UnmarshalJSON accepts either a bare string or an object with optional fields.
func (in *Input) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*in = Input{}
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		parsed, err := ParseInputString(s)
		if err != nil {
			return err
		}
		*in = parsed
		return nil
	}

	var raw inputAliases
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	*in = Input{
		StoragePath: strings.TrimPrefix(strings.TrimSpace(raw.StoragePath), "/"),
		RemoteURI:   firstNonEmpty(raw.RemoteURI, raw.GSURI),
		DownloadURL: firstNonEmpty(raw.DownloadURL, raw.DownloadURLAlt),
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
