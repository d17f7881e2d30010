// Package deeplink builds URLs that open PPM views directly in the browser.
package deeplink

import (
	"net/url"
	"strings"

	"github.com/ahmetk3436/ppmchat/internal/ppm"
)

// Link is a labelled URL.
type Link struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

type Builder struct {
	base     string
	isCustom func(objectType string) bool
}

// NewBuilder returns a builder for the UI at baseURL. isCustom routes custom
// object types to their own view; nil treats every type as standard.
func NewBuilder(baseURL string, isCustom func(string) bool) *Builder {
	if isCustom == nil {
		isCustom = func(string) bool { return false }
	}
	return &Builder{base: strings.TrimRight(baseURL, "/"), isCustom: isCustom}
}

func (b *Builder) view(objectType string, custom bool) string {
	if custom {
		return b.base + "/pm/#/custom/" + url.PathEscape(objectType)
	}
	return b.base + "/pm/#/" + url.PathEscape(objectType)
}

// List links to the list view of an object type.
func (b *Builder) List(objectType string, isCustom bool) string {
	return b.view(objectType, isCustom)
}

// Record links to one record.
func (b *Builder) Record(objectType, id string) string {
	return b.view(objectType, b.isCustom(objectType)) + "/" + url.PathEscape(id)
}

// Filtered links to a list narrowed by equality filters. Filters are
// rendered in key order so equal inputs give equal URLs.
func (b *Builder) Filtered(objectType string, filters map[string]string) string {
	list := b.view(objectType, b.isCustom(objectType))
	if len(filters) == 0 {
		return list
	}
	return list + "?" + url.Values{"filter": {ppm.FilterAll(filters)}}.Encode()
}

// ForResult picks the most specific link for an executed operation.
func (b *Builder) ForResult(objectType, recordID string, filters map[string]string) string {
	switch {
	case objectType == "":
		return ""
	case recordID != "":
		return b.Record(objectType, recordID)
	case len(filters) > 0:
		return b.Filtered(objectType, filters)
	default:
		return b.List(objectType, b.isCustom(objectType))
	}
}
