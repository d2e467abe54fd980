// Package model holds the canonical in-memory shape of a collection entry.
package model

import (
	"path"
	"slices"
	"strings"
	"time"
)

// Kind is the tagged variant of an item, fixed at ingestion.
type Kind int

const (
	KindOther Kind = iota
	KindFolder
	KindImage
	KindVideo
	KindAudio
	KindDocument
)

var kindNames = [...]string{
	KindOther:    "other",
	KindFolder:   "folder",
	KindImage:    "image",
	KindVideo:    "video",
	KindAudio:    "audio",
	KindDocument: "document",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "other"
}

// IsMedia reports whether items of this kind can be previewed.
func (k Kind) IsMedia() bool {
	return k == KindImage || k == KindVideo || k == KindAudio
}

// ParseKind accepts the canonical names plus the aliases servers send.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "folder", "dir", "directory":
		return KindFolder, true
	case "image", "img", "photo", "picture":
		return KindImage, true
	case "video", "movie":
		return KindVideo, true
	case "audio", "sound", "music":
		return KindAudio, true
	case "document", "doc", "text", "pdf":
		return KindDocument, true
	case "other":
		return KindOther, true
	}
	return KindOther, false
}

var extKinds = map[string]Kind{
	".jpg": KindImage, ".jpeg": KindImage, ".png": KindImage, ".gif": KindImage,
	".webp": KindImage, ".bmp": KindImage, ".tif": KindImage, ".tiff": KindImage,
	".heic": KindImage, ".heif": KindImage, ".svg": KindImage,

	".mp4": KindVideo, ".mov": KindVideo, ".mkv": KindVideo, ".webm": KindVideo,
	".avi": KindVideo, ".m4v": KindVideo,

	".mp3": KindAudio, ".wav": KindAudio, ".flac": KindAudio, ".ogg": KindAudio,
	".m4a": KindAudio, ".aac": KindAudio,

	".pdf": KindDocument, ".txt": KindDocument, ".md": KindDocument, ".doc": KindDocument,
	".docx": KindDocument, ".odt": KindDocument, ".rtf": KindDocument, ".csv": KindDocument,
	".xls": KindDocument, ".xlsx": KindDocument, ".ppt": KindDocument, ".pptx": KindDocument,
	".json": KindDocument,
}

// KindFromName guesses a file kind from its extension.
func KindFromName(name string) Kind {
	if k, ok := extKinds[strings.ToLower(path.Ext(name))]; ok {
		return k
	}
	return KindOther
}

// Item is one entry in a folder listing.
type Item struct {
	ID         string
	Path       string
	Name       string
	Kind       Kind
	Size       int64
	ModifiedAt time.Time
	CreatedAt  time.Time
	Tags       []string
	SharedBy   string
}

// IsFolder reports whether the item is a folder.
func (i Item) IsFolder() bool {
	return i.Kind == KindFolder
}

// HasTag reports whether tag is present, ignoring case.
func (i Item) HasTag(tag string) bool {
	for _, t := range i.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no slices with i.
func (i Item) Clone() Item {
	i.Tags = slices.Clone(i.Tags)
	return i
}

// CloneAll copies a listing.
func CloneAll(items []Item) []Item {
	out := make([]Item, len(items))
	for i := range items {
		out[i] = items[i].Clone()
	}
	return out
}
