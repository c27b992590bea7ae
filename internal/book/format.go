package book

import (
	"strings"
)

// Format is the file format of a downloadable book.
type Format int

const (
	FormatUnknown Format = iota
	FormatPDF
	FormatEPUB
	FormatMOBI
	FormatAZW3
)

var formatNames = map[Format]string{
	FormatUnknown: "unknown",
	FormatPDF:     "pdf",
	FormatEPUB:    "epub",
	FormatMOBI:    "mobi",
	FormatAZW3:    "azw3",
}

// SupportedFormats lists the recognised formats in their canonical order.
var SupportedFormats = []Format{FormatPDF, FormatEPUB, FormatMOBI, FormatAZW3}

// ParseFormat maps an extension or label such as "PDF" or ".epub" to a Format.
// Anything unrecognised becomes FormatUnknown.
func ParseFormat(s string) Format {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, ".")
	for _, f := range SupportedFormats {
		if formatNames[f] == s {
			return f
		}
	}
	return FormatUnknown
}

// FormatFromPath infers the format from the extension of a URL path or file name.
func FormatFromPath(p string) Format {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	dot := strings.LastIndex(p, ".")
	if dot < 0 || dot < strings.LastIndex(p, "/") {
		return FormatUnknown
	}
	return ParseFormat(p[dot+1:])
}

// Extension returns the lowercase file extension without a dot.
func (f Format) Extension() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return formatNames[FormatUnknown]
}

func (f Format) String() string {
	return strings.ToUpper(f.Extension())
}

// Supported reports whether f is one of the known downloadable formats.
func (f Format) Supported() bool {
	return f != FormatUnknown && formatNames[f] != ""
}

func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Format) UnmarshalText(b []byte) error {
	*f = ParseFormat(string(b))
	return nil
}

// FormatSet is an immutable set of formats. The zero value is empty.
type FormatSet uint8

// AllFormats is the default filter: every supported format.
var AllFormats = NewFormatSet(SupportedFormats...)

// NewFormatSet builds a set from the given formats, ignoring FormatUnknown.
func NewFormatSet(formats ...Format) FormatSet {
	var s FormatSet
	for _, f := range formats {
		s = s.With(f)
	}
	return s
}

// ParseFormatSet builds a set from labels. Unknown labels are ignored.
func ParseFormatSet(labels []string) FormatSet {
	var s FormatSet
	for _, l := range labels {
		s = s.With(ParseFormat(l))
	}
	return s
}

// With returns a copy of s that also contains f.
func (s FormatSet) With(f Format) FormatSet {
	if !f.Supported() {
		return s
	}
	return s | 1<<uint(f)
}

// Without returns a copy of s with f removed.
func (s FormatSet) Without(f Format) FormatSet {
	if !f.Supported() {
		return s
	}
	return s &^ (1 << uint(f))
}

// Toggle adds f when absent and removes it when present.
func (s FormatSet) Toggle(f Format) FormatSet {
	if s.Has(f) {
		return s.Without(f)
	}
	return s.With(f)
}

// Has reports whether f is in the set.
func (s FormatSet) Has(f Format) bool {
	return f.Supported() && s&(1<<uint(f)) != 0
}

// Empty reports whether the set contains no format.
func (s FormatSet) Empty() bool {
	return s == 0
}

// Formats lists the members in canonical order.
func (s FormatSet) Formats() []Format {
	var out []Format
	for _, f := range SupportedFormats {
		if s.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

func (s FormatSet) String() string {
	parts := make([]string, 0, len(SupportedFormats))
	for _, f := range s.Formats() {
		parts = append(parts, f.String())
	}
	return strings.Join(parts, ",")
}
