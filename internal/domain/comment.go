package domain

import (
	"strconv"
	"strings"
)

// Well-known comment metadata keys.
const (
	MetaStrategy = "strategy"
	MetaDepth    = "depth"
	MetaMode     = "mode"
)

// CommentMeta is the structured content of a broker order comment.
//
// The wire format is `key:value` pairs separated by `|`; a segment without
// a colon is a bare tag. Malformed segments (empty key or value) are
// silently dropped — a bad comment must never poison the whole position.
type CommentMeta struct {
	Tags map[string]bool
	Meta map[string]string
}

// ParseComment parsea el comment de una orden al esquema tags/metadata.
func ParseComment(comment string) CommentMeta {
	cm := CommentMeta{
		Tags: make(map[string]bool),
		Meta: make(map[string]string),
	}

	for _, seg := range strings.Split(comment, "|") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}

		key, value, found := strings.Cut(seg, ":")
		if !found {
			cm.Tags[strings.ToLower(seg)] = true
			continue
		}

		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue // malformed segment, ignore
		}
		cm.Meta[key] = value
	}

	return cm
}

// Strategy is the entry-strategy label, empty if absent.
func (cm CommentMeta) Strategy() string {
	return cm.Meta[MetaStrategy]
}

// RecoveryDepth is the recovery-chain depth, 0 for an original entry or
// when the value is missing or unparseable.
func (cm CommentMeta) RecoveryDepth() int {
	v, ok := cm.Meta[MetaDepth]
	if !ok {
		return 0
	}
	depth, err := strconv.Atoi(v)
	if err != nil || depth < 0 {
		return 0
	}
	return depth
}

// HasTag reports whether the comment carried the given bare tag.
func (cm CommentMeta) HasTag(tag string) bool {
	return cm.Tags[strings.ToLower(tag)]
}

// FormatComment builds a comment string in the same schema, used when the
// bot opens its own recovery orders.
func FormatComment(tags []string, meta map[string]string) string {
	segs := make([]string, 0, len(tags)+len(meta))
	for _, t := range tags {
		if t != "" {
			segs = append(segs, t)
		}
	}
	// Deterministic order for the known keys, the rest appended as-is.
	for _, k := range []string{MetaStrategy, MetaDepth, MetaMode} {
		if v, ok := meta[k]; ok {
			segs = append(segs, k+":"+v)
		}
	}
	for k, v := range meta {
		switch k {
		case MetaStrategy, MetaDepth, MetaMode:
			continue
		}
		segs = append(segs, k+":"+v)
	}
	return strings.Join(segs, "|")
}
